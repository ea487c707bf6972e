package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// CallLogger logs every tool invocation with its outcome and duration.
type CallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

func NewCallLogger(logger *zap.Logger) *CallLogger {
	return &CallLogger{logger: logger.Named("mcp")}
}

// Hooks returns mcp-go Hooks that feed this logger.
func (c *CallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
}

func (c *CallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	start, _ := c.loadAndDeleteStart(id)

	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", time.Since(start)),
	}
	if result != nil && result.IsError {
		c.logger.Warn("tool call returned error result", fields...)
		return
	}
	c.logger.Debug("tool call completed", fields...)
}

func (c *CallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}

	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	start, _ := c.loadAndDeleteStart(id)
	c.logger.Error("tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
}

func (c *CallLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}
