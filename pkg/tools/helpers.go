// Package tools provides the Overpass MCP tool implementations.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/geosint/overpassmcp/pkg/overpass"
)

// ErrorResponse creates an error result with the given message
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ErrorResponseFrom converts a structured client error into a tool
// result carrying the error's code and guidance as JSON.
func ErrorResponseFrom(err error) *mcp.CallToolResult {
	if overpassErr, ok := err.(*overpass.Error); ok {
		errorJSON, marshalErr := json.Marshal(overpassErr)
		if marshalErr == nil {
			return mcp.NewToolResultError(string(errorJSON))
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("ERROR: %v", err))
}

// InputParser is a generic function to parse request arguments into a
// strongly typed struct.
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, ErrorResponse(fmt.Sprintf("Invalid input format: %v", err)), err
	}

	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, ErrorResponse(fmt.Sprintf("Failed to parse input: %v", err)), err
	}

	return input, nil, nil
}
