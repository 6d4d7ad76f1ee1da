package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes read-side dashboard operations as MCP tools so local
// agents can query market data and export history without going through the
// HTTP surface.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"whalescope",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("whalescope — local market analytics backend; loads section data and reports export activity."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("load_data",
			mcp.WithDescription("Load a dashboard section's data from the analytics service."),
			mcp.WithString("section", mcp.Description("Section name (bitcoin, eth, binance_market, binance_polar, marketbrain)"), mcp.Required()),
			mcp.WithString("symbol", mcp.Description("Trading symbol, e.g. BTCUSDT")),
			mcp.WithString("start_date", mcp.Description("Range start, YYYY-MM-DD")),
			mcp.WithString("end_date", mcp.Description("Range end, YYYY-MM-DD")),
		),
		mcpLoadData(deps),
	)

	s.AddTool(
		mcp.NewTool("latest_snapshot",
			mcp.WithDescription("Return the most recently cached payload for a section without touching the analytics service."),
			mcp.WithString("section", mcp.Description("Section name"), mcp.Required()),
		),
		mcpLatestSnapshot(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_exports",
			mcp.WithDescription("List recently completed exports."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpRecentExports(deps),
	)

	return s
}

func mcpLoadData(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		section, err := req.RequireString("section")
		if err != nil {
			return mcpError("section is required"), nil
		}

		params := map[string]string{}
		if v := req.GetString("symbol", ""); v != "" {
			params["symbol"] = v
		}
		if v := req.GetString("start_date", ""); v != "" {
			params["startDate"] = v
		}
		if v := req.GetString("end_date", ""); v != "" {
			params["endDate"] = v
		}

		payload, err := deps.Service.Load(ctx, section, params)
		if err != nil {
			return mcpError(fmt.Sprintf("load failed: %v", err)), nil
		}
		return mcpText(string(payload)), nil
	}
}

func mcpLatestSnapshot(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		section, err := req.RequireString("section")
		if err != nil {
			return mcpError("section is required"), nil
		}

		snap, err := deps.Store.LatestSnapshot(section)
		if err != nil {
			return mcpError(fmt.Sprintf("no snapshot: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"section":    snap.Section,
			"fetched_at": snap.FetchedAt.Format(time.RFC3339),
			"payload":    json.RawMessage(snap.Payload),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal snapshot: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentExports(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		recs, err := deps.Store.RecentExports(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list exports: %v", err)), nil
		}
		if len(recs) == 0 {
			return mcpText("[]"), nil
		}

		type entry struct {
			Kind        string `json:"kind"`
			Section     string `json:"section"`
			Symbol      string `json:"symbol,omitempty"`
			Destination string `json:"destination"`
			CreatedAt   string `json:"created_at"`
		}
		out := make([]entry, len(recs))
		for i, rec := range recs {
			out[i] = entry{
				Kind:        rec.Kind,
				Section:     rec.Section,
				Symbol:      rec.Symbol,
				Destination: rec.Destination,
				CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal exports: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
