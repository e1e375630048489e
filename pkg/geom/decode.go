package geom

import (
	"encoding/json"
	"log/slog"
)

// Element is one raw element from an Overpass JSON response. Fields are
// kind-specific: nodes carry a single coordinate, ways carry an ordered
// vertex list, relations carry member references.
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry []Vertex          `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// Vertex is one way vertex as delivered by "out geom"
type Vertex struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member reference. Members are never resolved
// here; multipolygon assembly is out of scope.
type Member struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// Record is one decoded element: its id, its tags and a validated
// geometry.
type Record struct {
	ID       int64
	Tags     map[string]string
	Geometry Geometry
}

// MarshalJSON flattens the tags alongside the reserved "id" and
// "geometry" keys. A tag colliding with a reserved key is overwritten
// by the reserved field.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Tags)+2)
	for k, v := range r.Tags {
		flat[k] = v
	}
	flat["id"] = r.ID
	flat["geometry"] = r.Geometry
	return json.Marshal(flat)
}

// Decoder converts raw elements into records. The logger receives a
// diagnostic for every skipped element; decoding itself never fails.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a Decoder. A nil logger falls back to the default.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// DecodeElements converts a batch of raw elements, dropping anything
// that cannot yield a finite geometry. A malformed element is skipped
// with a diagnostic, never aborting the batch, and the result is always
// a non-nil slice.
func (d *Decoder) DecodeElements(elements []Element) []Record {
	records := make([]Record, 0, len(elements))
	for i := range elements {
		record, ok := d.decodeElement(elements[i])
		if ok {
			records = append(records, record)
		}
	}
	return records
}

func (d *Decoder) decodeElement(el Element) (record Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("skipping element", "id", el.ID, "type", el.Type, "error", r)
			ok = false
		}
	}()

	var g Geometry
	switch el.Type {
	case "node":
		if el.Lat == nil || el.Lon == nil {
			return Record{}, false
		}
		g = Point{Lon: *el.Lon, Lat: *el.Lat}

	case "way":
		coords := make([]Coord, 0, len(el.Geometry))
		for _, v := range el.Geometry {
			c := Coord{Lon: v.Lon, Lat: v.Lat}
			if c.Finite() {
				coords = append(coords, c)
			}
		}
		if len(coords) == 0 {
			return Record{}, false
		}
		// Ring closure: first equals last with at least three points.
		if len(coords) >= 3 && coords[0] == coords[len(coords)-1] {
			g = Polygon{coords}
		} else {
			g = LineString(coords)
		}

	default:
		// Relations would need multipolygon assembly from their members.
		return Record{}, false
	}

	if !g.Finite() {
		d.logger.Debug("dropping element with non-finite geometry", "id", el.ID, "type", el.Type)
		return Record{}, false
	}

	return Record{ID: el.ID, Tags: el.Tags, Geometry: g}, true
}
