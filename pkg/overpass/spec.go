package overpass

import (
	"fmt"
	"strings"
	"time"
)

// Default query parameters, matching the public Overpass API conventions.
const (
	DefaultServer     = "https://overpass-api.de/api/interpreter"
	DefaultTimeout    = 25
	DefaultMaxRetries = 3
	DefaultRetryDelay = 10 * time.Second
)

// OutputMode selects the wire format requested from the Overpass API.
type OutputMode string

const (
	OutputCSV  OutputMode = "csv"
	OutputJSON OutputMode = "json"
	OutputRaw  OutputMode = "raw"
)

// TagOp enumerates the kinds of tag filter the query grammar supports.
type TagOp int

const (
	// OpPresent requires the tag key to exist.
	OpPresent TagOp = iota
	// OpAbsent requires the tag key to not exist.
	OpAbsent
	// OpEquals matches an exact tag value.
	OpEquals
	// OpRegex matches an unanchored regular expression.
	OpRegex
	// OpOneOf matches any of a set of values via an anchored alternation.
	OpOneOf
)

// TagFilter is one entry of a query's tag filter chain.
type TagFilter struct {
	Key          string
	Op           TagOp
	Value        string   // OpEquals and OpRegex
	Alternatives []string // OpOneOf
}

// Tag creates a filter requiring the key to be present
func Tag(key string) TagFilter {
	return TagFilter{Key: key, Op: OpPresent}
}

// NotTag creates a filter requiring the key to be absent
func NotTag(key string) TagFilter {
	return TagFilter{Key: key, Op: OpAbsent}
}

// TagEquals creates an exact-value filter
func TagEquals(key, value string) TagFilter {
	return TagFilter{Key: key, Op: OpEquals, Value: value}
}

// TagRegex creates an unanchored regular-expression filter
func TagRegex(key, pattern string) TagFilter {
	return TagFilter{Key: key, Op: OpRegex, Value: pattern}
}

// TagOneOf creates a filter matching any of the given values
func TagOneOf(key string, values ...string) TagFilter {
	return TagFilter{Key: key, Op: OpOneOf, Alternatives: values}
}

// TagValue classifies an untyped tag value into a TagFilter:
// true means present, false means absent, a leading "~" marks an explicit
// regex pattern, a value containing "|" becomes an anchored alternation,
// and anything else is an exact match.
func TagValue(key string, value any) TagFilter {
	switch v := value.(type) {
	case bool:
		if v {
			return Tag(key)
		}
		return NotTag(key)
	case string:
		if strings.HasPrefix(v, "~") {
			return TagRegex(key, strings.TrimPrefix(v, "~"))
		}
		if strings.Contains(v, "|") {
			return TagOneOf(key, strings.Split(v, "|")...)
		}
		return TagEquals(key, v)
	default:
		return TagEquals(key, fmt.Sprint(v))
	}
}

// BBox is a rectangular geographic filter in Overpass order:
// south, west, north, east.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// QuerySpec describes one Overpass query. Exactly one location selector
// must resolve: a bounding box takes precedence over an area name, and a
// spec with neither is invalid.
type QuerySpec struct {
	// Location selectors
	AreaName string
	BBox     *BBox

	// Tag filter chain, applied identically to every element type.
	// Order is preserved in the rendered query; keys must be unique.
	Tags []TagFilter

	// Element kinds to query; defaults to node, way and relation.
	ElementTypes []string

	// Timeout is the server-side query timeout in seconds.
	Timeout int

	Output        OutputMode
	CSVFields     []string
	ParseGeometry bool

	Server     string
	MaxRetries int
	RetryDelay time.Duration
}

// withDefaults returns a copy of the spec with zero fields filled in
func (s QuerySpec) withDefaults() QuerySpec {
	if len(s.ElementTypes) == 0 {
		s.ElementTypes = []string{"node", "way", "relation"}
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Output == "" {
		s.Output = OutputJSON
	}
	if s.Server == "" {
		s.Server = DefaultServer
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryDelay <= 0 {
		s.RetryDelay = DefaultRetryDelay
	}
	return s
}

// Validate checks that the spec can produce a query
func (s QuerySpec) Validate() error {
	if s.BBox == nil && s.AreaName == "" {
		return NewError(ErrInvalidQuery, "either a bounding box or an area name must be specified").
			WithGuidance("Set BBox for a rectangular search or AreaName for a named administrative area.")
	}
	return nil
}
