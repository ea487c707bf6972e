package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querypatrol/pkg/analysis"
	"github.com/ekaya-inc/querypatrol/pkg/collector"
	"github.com/ekaya-inc/querypatrol/pkg/logging"
	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
)

// ToolDeps defines dependencies for the analysis MCP tools.
type ToolDeps struct {
	Engine *analysis.Engine

	// Facts are the baseline relation facts used when a call does not
	// supply its own. May be nil.
	Facts *relations.Facts

	Logger  *zap.Logger
	Version string
}

// analyzeResponse is the response format for analyze_query_log.
type analyzeResponse struct {
	Records  int               `json:"records"`
	Count    int               `json:"count"`
	Findings []*models.Finding `json:"findings"`
}

// RegisterAnalyzeTool registers the analyze_query_log tool.
func RegisterAnalyzeTool(s *server.MCPServer, deps ToolDeps) {
	tool := mcplib.NewTool(
		"analyze_query_log",
		mcplib.WithDescription(`Analyze a batch of executed SQL statements for structural anti-patterns:
repeated-statement bursts, unused or over-eager joins, unbounded scans, unsafe pagination.
The batch is JSON Lines, one object per statement:
{"sql": "...", "params": {"$1": 7}, "execution_time_ms": 1.5, "row_count": 10}
Returns deduplicated findings ordered by severity.`),
		mcplib.WithString("log",
			mcplib.Required(),
			mcplib.Description("Query log in JSON Lines format")),
		mcplib.WithString("facts",
			mcplib.Description("Relation facts as YAML (tables with primary keys, associations). Overrides the server's configured facts for this call.")),
		mcplib.WithString("disabled_detectors",
			mcplib.Description("Comma-separated detector names to skip for this call")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		logText, err := req.RequireString("log")
		if err != nil {
			return NewErrorResult("invalid_parameters", "log parameter is required"), nil
		}

		records, err := collector.ReadLog(strings.NewReader(logText))
		if err != nil {
			return NewErrorResult("invalid_log", err.Error()), nil
		}

		facts := deps.Facts
		if factsText := getOptionalString(req, "facts"); factsText != "" {
			parsed, err := relations.Parse([]byte(factsText))
			if err != nil {
				return NewErrorResult("invalid_facts", err.Error()), nil
			}
			facts = parsed
		}

		if len(records) > 0 {
			deps.Logger.Debug("analyzing query log",
				zap.Int("records", len(records)),
				zap.String("first_statement", logging.SanitizeQuery(records[0].SQL)))
		}

		var findings []*models.Finding
		if disabled := getOptionalString(req, "disabled_detectors"); disabled != "" {
			detectors := analysis.DefaultDetectors(splitList(disabled)...)
			findings, err = deps.Engine.RunDetectors(ctx, records, facts, detectors)
		} else {
			findings, err = deps.Engine.Run(ctx, records, facts)
		}
		if err != nil {
			deps.Logger.Error("analysis failed", zap.Error(err))
			return nil, fmt.Errorf("analysis failed: %w", err)
		}
		if findings == nil {
			findings = []*models.Finding{}
		}

		result, err := json.Marshal(analyzeResponse{
			Records:  len(records),
			Count:    len(findings),
			Findings: findings,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analysis result: %w", err)
		}
		return mcplib.NewToolResultText(string(result)), nil
	})
}

// RegisterCacheStatsTool registers the cache_stats tool.
func RegisterCacheStatsTool(s *server.MCPServer, deps ToolDeps) {
	tool := mcplib.NewTool(
		"cache_stats",
		mcplib.WithDescription("Returns normalization cache statistics (entries, hits, misses, hit rate). Pass reset=true to clear the caches after reading."),
		mcplib.WithBoolean("reset",
			mcplib.Description("Clear the normalization and extraction caches after reading")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		stats := deps.Engine.CacheStats()
		if getOptionalBool(req, "reset") {
			deps.Engine.ClearCaches()
			deps.Logger.Info("analysis caches cleared", zap.Int("entries_dropped", stats.Entries))
		}

		result, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache stats: %w", err)
		}
		return mcplib.NewToolResultText(string(result)), nil
	})
}

type healthResult struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Detectors []string `json:"detectors"`
}

// RegisterHealthTool registers a health check tool reporting the server
// version and the registered detector set.
func RegisterHealthTool(s *server.MCPServer, version string) {
	tool := mcplib.NewTool(
		"health",
		mcplib.WithDescription("Returns server health status, version and the registered detectors"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		names := make([]string, 0)
		for _, d := range analysis.DefaultDetectors() {
			names = append(names, d.Name())
		}

		result, err := json.Marshal(healthResult{Status: "ok", Version: version, Detectors: names})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcplib.NewToolResultText(string(result)), nil
	})
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcplib.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalBool extracts an optional boolean argument from the request.
func getOptionalBool(req mcplib.CallToolRequest, key string) bool {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return false
	}
	val, ok := args[key].(bool)
	return ok && val
}

// splitList splits a comma-separated parameter into trimmed names.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
