package mcp

import (
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse is the structured error shape returned inside tool results.
// Recoverable problems (bad parameters, malformed logs) come back this way
// as successful tool results so the calling agent can see and fix them;
// system failures still surface as protocol errors.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcplib.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context
// that might help the caller correct the request.
func NewErrorResultWithDetails(code, message string, details any) *mcplib.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcplib.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}
