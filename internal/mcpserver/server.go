// Package mcpserver exposes the datastack operations as MCP tools. Each
// tool server (query, datastore, email, render, ml) registers its own
// tool set; the shared helpers here shape results the same way across
// all of them.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/observability"
)

func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// instrumented wraps a handler so every invocation lands in the tool
// call metrics, including ones rejected as tool errors.
func instrumented[In, Out any](metrics *observability.Metrics, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, in)
		failed := err != nil || (res != nil && res.IsError)
		metrics.RecordToolCall(ctx, name, failed)
		return res, out, err
	}
}
