package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/geosint/overpassmcp/pkg/geom"
	"github.com/geosint/overpassmcp/pkg/overpass"
)

// Input validation limits
const (
	maxTagCount       = 20
	maxTagKeyLength   = 100
	maxTagValueLength = 200
)

// QueryRegionInput defines the input parameters for the query_region tool
type QueryRegionInput struct {
	AreaName      string         `json:"area_name,omitempty"`
	BBox          []float64      `json:"bbox,omitempty"`
	Tags          map[string]any `json:"tags"`
	ElementTypes  []string       `json:"element_types,omitempty"`
	Output        string         `json:"output,omitempty"`
	CSVFields     []string       `json:"csv_fields,omitempty"`
	ParseGeometry *bool          `json:"parse_geometry,omitempty"`
	Timeout       int            `json:"timeout,omitempty"`
}

// QueryRegionTool returns the tool definition for querying a region
func QueryRegionTool() mcp.Tool {
	return mcp.NewTool("query_region",
		mcp.WithDescription("Execute an Overpass query for a named region or bounding box with tag filters, i.e. the semantic map data such as amenities, highways, etc. that you want to retrieve. Tag values may be a string (exact match), a string with '|' (any of the alternatives), a string starting with '~' (regex), or a boolean (key present/absent). Example: tags: {\"amenity\": \"hospital|clinic\", \"name\": true}"),
		mcp.WithString("area_name",
			mcp.Description("Name of the administrative area to search, e.g. \"Berlin\". Ignored when bbox is set."),
		),
		mcp.WithArray("bbox",
			mcp.Description("Bounding box as [south, west, north, east] in decimal degrees"),
		),
		mcp.WithObject("tags",
			mcp.Required(),
			mcp.Description("Tag filters as key-value pairs. Values: string, \"a|b\" alternation, \"~regex\", or boolean for presence/absence."),
		),
		mcp.WithArray("element_types",
			mcp.Description("Element kinds to query; defaults to [\"node\", \"way\", \"relation\"]"),
		),
		mcp.WithString("output",
			mcp.Description("Output mode: json, csv or raw"),
			mcp.DefaultString("json"),
		),
		mcp.WithArray("csv_fields",
			mcp.Description("Field names for csv output, e.g. [\"name\", \"amenity\"]"),
		),
		mcp.WithBoolean("parse_geometry",
			mcp.Description("Decode elements into validated geometry records (json output only)"),
			mcp.DefaultBool(true),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Server-side query timeout in seconds"),
			mcp.DefaultNumber(25),
		),
	)
}

// validateTags bounds tag input before it reaches the query grammar
func validateTags(tags map[string]any) error {
	if len(tags) == 0 {
		return fmt.Errorf("at least one tag is required")
	}
	if len(tags) > maxTagCount {
		return fmt.Errorf("too many tags: %d (maximum: %d)", len(tags), maxTagCount)
	}

	for key, value := range tags {
		if len(key) == 0 {
			return fmt.Errorf("empty tag key")
		}
		if len(key) > maxTagKeyLength {
			return fmt.Errorf("tag key too long: %d characters (maximum: %d)", len(key), maxTagKeyLength)
		}
		if strings.ContainsAny(key, "\x00\r\n\t\"") {
			return fmt.Errorf("tag key contains invalid characters")
		}
		if s, ok := value.(string); ok {
			if len(s) > maxTagValueLength {
				return fmt.Errorf("tag value too long: %d characters (maximum: %d)", len(s), maxTagValueLength)
			}
			if strings.ContainsAny(s, "\x00\r\n\t\"") {
				return fmt.Errorf("tag value contains invalid characters")
			}
		}
	}

	return nil
}

// tagFilters converts the untyped tag object into an ordered filter
// chain. JSON objects carry no order, so keys are sorted for a
// deterministic query text.
func tagFilters(tags map[string]any) []overpass.TagFilter {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	filters := make([]overpass.TagFilter, 0, len(keys))
	for _, key := range keys {
		filters = append(filters, overpass.TagValue(key, tags[key]))
	}
	return filters
}

// HandleQueryRegion implements the query_region tool
func (s *Service) HandleQueryRegion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := s.logger.With("tool", "query_region")

	input, errResult, err := InputParser[QueryRegionInput](req)
	if err != nil {
		logger.Error("failed to parse input", "error", err)
		return errResult, nil
	}

	if err := validateTags(input.Tags); err != nil {
		logger.Error("invalid tags", "error", err)
		return ErrorResponse(fmt.Sprintf("Invalid tags: %v", err)), nil
	}

	if len(input.BBox) != 0 && len(input.BBox) != 4 {
		logger.Error("invalid bbox", "length", len(input.BBox))
		return ErrorResponse("Bounding box must be [south, west, north, east]"), nil
	}

	parseGeometry := true
	if input.ParseGeometry != nil {
		parseGeometry = *input.ParseGeometry
	}

	spec := overpass.QuerySpec{
		AreaName:      input.AreaName,
		Tags:          tagFilters(input.Tags),
		ElementTypes:  input.ElementTypes,
		Timeout:       input.Timeout,
		Output:        overpass.OutputMode(input.Output),
		CSVFields:     input.CSVFields,
		ParseGeometry: parseGeometry,
		Server:        s.server,
	}
	if len(input.BBox) == 4 {
		spec.BBox = &overpass.BBox{
			South: input.BBox[0],
			West:  input.BBox[1],
			North: input.BBox[2],
			East:  input.BBox[3],
		}
	}

	result, err := s.client.Run(ctx, spec)
	if err != nil {
		logger.Error("invalid query spec", "error", err)
		return ErrorResponseFrom(err), nil
	}
	if result.Failed() {
		logger.Error("query failed", "error", result.Err)
		return ErrorResponseFrom(result.Err), nil
	}

	return queryResultText(result, logger)
}

// queryResultText serializes a successful result for the tool caller
func queryResultText(result overpass.QueryResult, logger *slog.Logger) (*mcp.CallToolResult, error) {
	switch result.Kind {
	case overpass.KindRecords:
		output := struct {
			Count   int           `json:"count"`
			Records []geom.Record `json:"records"`
		}{
			Count:   len(result.Records),
			Records: result.Records,
		}
		resultBytes, err := json.Marshal(output)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}
		return mcp.NewToolResultText(string(resultBytes)), nil

	case overpass.KindRows:
		output := struct {
			Count int            `json:"count"`
			Rows  []overpass.Row `json:"rows"`
		}{
			Count: len(result.Rows),
			Rows:  result.Rows,
		}
		resultBytes, err := json.Marshal(output)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}
		return mcp.NewToolResultText(string(resultBytes)), nil

	default:
		return mcp.NewToolResultText(string(result.Raw)), nil
	}
}
