package mcp

import (
	"context"
	"errors"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedCallLogger() (*CallLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewCallLogger(zap.New(core)), logs
}

func toolRequest(name string) *mcplib.CallToolRequest {
	req := &mcplib.CallToolRequest{}
	req.Params.Name = name
	return req
}

func TestCallLogger_LogsCompletedCall(t *testing.T) {
	cl, logs := newObservedCallLogger()
	ctx := context.Background()
	req := toolRequest("analyze_query_log")

	cl.beforeCallTool(ctx, int64(1), req)
	cl.afterCallTool(ctx, int64(1), req, &mcplib.CallToolResult{})

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "tool call completed" {
		t.Errorf("expected message %q, got %q", "tool call completed", entry.Message)
	}
	if entry.Level != zapcore.DebugLevel {
		t.Errorf("expected debug level, got %v", entry.Level)
	}
	if entry.ContextMap()["tool"] != "analyze_query_log" {
		t.Errorf("expected tool field, got %v", entry.ContextMap()["tool"])
	}
	if _, ok := entry.ContextMap()["duration"]; !ok {
		t.Error("expected duration field")
	}
}

func TestCallLogger_WarnsOnErrorResult(t *testing.T) {
	cl, logs := newObservedCallLogger()
	ctx := context.Background()
	req := toolRequest("analyze_query_log")

	cl.beforeCallTool(ctx, int64(2), req)
	cl.afterCallTool(ctx, int64(2), req, &mcplib.CallToolResult{IsError: true})

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "tool call returned error result" {
		t.Errorf("expected error-result message, got %q", entry.Message)
	}
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", entry.Level)
	}
}

func TestCallLogger_LogsProtocolError(t *testing.T) {
	cl, logs := newObservedCallLogger()
	ctx := context.Background()
	req := toolRequest("cache_stats")

	cl.beforeCallTool(ctx, int64(3), req)
	cl.onError(ctx, int64(3), mcplib.MethodToolsCall, req, errors.New("boom"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "tool call failed" {
		t.Errorf("expected failure message, got %q", entry.Message)
	}
	if entry.Level != zapcore.ErrorLevel {
		t.Errorf("expected error level, got %v", entry.Level)
	}
	if entry.ContextMap()["tool"] != "cache_stats" {
		t.Errorf("expected tool field, got %v", entry.ContextMap()["tool"])
	}
}

func TestCallLogger_IgnoresNonToolErrors(t *testing.T) {
	cl, logs := newObservedCallLogger()

	cl.onError(context.Background(), int64(4), mcplib.MethodToolsList, nil, errors.New("boom"))

	if logs.Len() != 0 {
		t.Errorf("expected no log entries for non-tool errors, got %d", logs.Len())
	}
}

func TestCallLogger_CompletionWithoutStartStillLogs(t *testing.T) {
	cl, logs := newObservedCallLogger()
	req := toolRequest("health")

	// No beforeCallTool: the duration is measured from now instead.
	cl.afterCallTool(context.Background(), int64(5), req, &mcplib.CallToolResult{})

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
}

func TestCallLogger_StartTimesAreRemoved(t *testing.T) {
	cl, _ := newObservedCallLogger()
	ctx := context.Background()
	req := toolRequest("analyze_query_log")

	cl.beforeCallTool(ctx, int64(6), req)
	cl.afterCallTool(ctx, int64(6), req, &mcplib.CallToolResult{})

	if _, ok := cl.startTimes.Load(int64(6)); ok {
		t.Error("expected start time to be removed after completion")
	}
}
