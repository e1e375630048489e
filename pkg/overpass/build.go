package overpass

import (
	"fmt"
	"strconv"
	"strings"
)

// render produces the bracket filter for one tag entry
func (f TagFilter) render() string {
	switch f.Op {
	case OpAbsent:
		return fmt.Sprintf("[!%s]", f.Key)
	case OpEquals:
		return fmt.Sprintf("[%s=\"%s\"]", f.Key, f.Value)
	case OpRegex:
		return fmt.Sprintf("[%s~\"%s\"]", f.Key, f.Value)
	case OpOneOf:
		return fmt.Sprintf("[%s~\"^%s$\"]", f.Key, strings.Join(f.Alternatives, "|"))
	default:
		return fmt.Sprintf("[%s]", f.Key)
	}
}

// renderTags concatenates the tag filter chain in stored order
func renderTags(tags []TagFilter) string {
	var b strings.Builder
	for _, f := range tags {
		b.WriteString(f.render())
	}
	return b.String()
}

// formatBBox renders the four components literally, Overpass order
func formatBBox(b BBox) string {
	parts := []string{
		strconv.FormatFloat(b.South, 'f', -1, 64),
		strconv.FormatFloat(b.West, 'f', -1, 64),
		strconv.FormatFloat(b.North, 'f', -1, 64),
		strconv.FormatFloat(b.East, 'f', -1, 64),
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Build renders the spec into Overpass QL. It is pure and deterministic:
// the same spec always yields the same query text.
//
// Three output contracts exist, selected by (Output, CSVFields,
// ParseGeometry):
//   - CSV with an explicit field list requests centroid-only geometry
//     ("out center").
//   - JSON with geometry parsing requests full per-element geometry
//     ("out geom").
//   - Everything else requests a full recursive dump ("out body",
//     child recursion, skeleton with metadata).
func (s QuerySpec) Build() (string, error) {
	spec := s.withDefaults()
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var location string
	if spec.BBox != nil {
		location = formatBBox(*spec.BBox)
	} else {
		location = "(area)"
	}

	tagFilter := renderTags(spec.Tags)
	statements := make([]string, 0, len(spec.ElementTypes))
	for _, et := range spec.ElementTypes {
		statements = append(statements, fmt.Sprintf("%s%s%s;", et, tagFilter, location))
	}

	var areaPart string
	if spec.BBox == nil {
		areaPart = fmt.Sprintf("area[name=\"%s\"][admin_level];\n", spec.AreaName)
	}

	body := fmt.Sprintf("%s(\n%s\n);", areaPart, strings.Join(statements, "\n"))

	switch {
	case spec.Output == OutputCSV && len(spec.CSVFields) > 0:
		header := strings.Join(spec.CSVFields, ",")
		return fmt.Sprintf("[out:csv(%s)][timeout:%d];\n%s\nout center;", header, spec.Timeout, body), nil
	case spec.Output == OutputJSON && spec.ParseGeometry:
		return fmt.Sprintf("[out:json][timeout:%d];\n%s\nout geom;", spec.Timeout, body), nil
	default:
		return fmt.Sprintf("[out:%s][timeout:%d];\n%s\nout body;\n>;\nout skel qt;", spec.Output, spec.Timeout, body), nil
	}
}
