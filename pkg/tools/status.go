package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/geosint/overpassmcp/pkg/overpass"
)

// OverpassStatusTool returns the tool definition for the slot probe
func OverpassStatusTool() mcp.Tool {
	return mcp.NewTool("overpass_status",
		mcp.WithDescription("Check whether the configured Overpass API server currently has a free processing slot"),
	)
}

// HandleOverpassStatus reports slot availability of the configured server
func (s *Service) HandleOverpassStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := s.logger.With("tool", "overpass_status")

	available := s.client.SlotAvailable(ctx, s.server)

	output := struct {
		Server        string `json:"server"`
		StatusURL     string `json:"status_url"`
		SlotAvailable bool   `json:"slot_available"`
	}{
		Server:        s.server,
		StatusURL:     overpass.StatusURL(s.server),
		SlotAvailable: available,
	}

	resultBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}

	return mcp.NewToolResultText(string(resultBytes)), nil
}
