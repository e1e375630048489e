package tools

import (
	"context"
	"encoding/json"
	"runtime"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/geosint/overpassmcp/pkg/version"
)

// GetVersionTool returns the tool definition for version information
func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version information for this Overpass MCP server"),
	)
}

// HandleGetVersion returns build and runtime information
func (s *Service) HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output := struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildDate string `json:"build_date"`
		GoVersion string `json:"go_version"`
		Server    string `json:"server"`
	}{
		Version:   version.BuildVersion,
		Commit:    version.BuildCommit,
		BuildDate: version.BuildDate,
		GoVersion: runtime.Version(),
		Server:    s.server,
	}

	resultBytes, err := json.Marshal(output)
	if err != nil {
		s.logger.Error("failed to marshal version info", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}

	return mcp.NewToolResultText(string(resultBytes)), nil
}
