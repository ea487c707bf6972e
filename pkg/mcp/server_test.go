package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querypatrol/pkg/analysis"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(ToolDeps{
		Engine:  analysis.NewEngine(analysis.EngineConfig{}, nil, zap.NewNop()),
		Logger:  zap.NewNop(),
		Version: "test-version",
	})
}

func TestNewServer_RegistersAnalysisTools(t *testing.T) {
	s := newTestServer(t)
	if s.MCP() == nil {
		t.Fatal("expected non-nil mcp server")
	}

	result := s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resultBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	registered := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		registered[tool.Name] = true
	}
	for _, want := range []string{"analyze_query_log", "cache_stats", "health"} {
		if !registered[want] {
			t.Errorf("tool %q not found in tools/list response: %v", want, registered)
		}
	}
}

func TestNewServer_NilLoggerTolerated(t *testing.T) {
	s := NewServer(ToolDeps{
		Engine:  analysis.NewEngine(analysis.EngineConfig{}, nil, zap.NewNop()),
		Version: "v1",
	})
	if s == nil || s.logger == nil {
		t.Fatal("expected a usable server with a fallback logger")
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := newTestServer(t)

	httpServer := s.NewStreamableHTTPServer()
	if httpServer == nil {
		t.Fatal("expected non-nil HTTP server")
	}
}
