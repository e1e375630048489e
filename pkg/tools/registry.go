package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/geosint/overpassmcp/pkg/monitoring"
	"github.com/geosint/overpassmcp/pkg/overpass"
	"github.com/geosint/overpassmcp/pkg/tracing"
)

// Service holds the shared dependencies of all tool handlers
type Service struct {
	client *overpass.Client
	server string
	logger *slog.Logger
}

// NewService creates the tool service around an Overpass client
func NewService(client *overpass.Client, serverURL string, logger *slog.Logger) *Service {
	if serverURL == "" {
		serverURL = overpass.DefaultServer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		server: serverURL,
		logger: logger,
	}
}

// ToolDefinition pairs a tool definition with its handler
type ToolDefinition struct {
	Name    string
	Tool    mcp.Tool
	Handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Definitions returns every tool this server exposes
func (s *Service) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:    "query_region",
			Tool:    QueryRegionTool(),
			Handler: s.HandleQueryRegion,
		},
		{
			Name:    "overpass_status",
			Tool:    OverpassStatusTool(),
			Handler: s.HandleOverpassStatus,
		},
		{
			Name:    "get_version",
			Tool:    GetVersionTool(),
			Handler: s.HandleGetVersion,
		},
	}
}

// Register adds all tools to the MCP server, each wrapped with tracing
// and metrics.
func (s *Service) Register(srv *server.MCPServer) {
	for _, def := range s.Definitions() {
		srv.AddTool(def.Tool, s.instrument(def.Name, def.Handler))
	}
}

func (s *Service) instrument(
	name string,
	handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, "mcp.tool "+name,
			trace.WithAttributes(attribute.String(tracing.AttrToolName, name)),
		)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(start)

		success := err == nil && (result == nil || !result.IsError)
		monitoring.RecordToolRequest(name, duration, success)

		if success {
			span.SetStatus(codes.Ok, "")
			span.SetAttributes(attribute.String(tracing.AttrToolStatus, tracing.StatusSuccess))
		} else {
			span.SetStatus(codes.Error, "tool error")
			span.SetAttributes(attribute.String(tracing.AttrToolStatus, tracing.StatusError))
			if err != nil {
				span.RecordError(err)
			}
		}

		return result, err
	}
}
