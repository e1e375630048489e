package geom

import (
	"encoding/json"
	"math"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestDecodeNode(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "node", ID: 42, Lat: f64(52.52), Lon: f64(13.405), Tags: map[string]string{"amenity": "cafe"}},
	})

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.ID != 42 {
		t.Errorf("id = %d, want 42", r.ID)
	}
	point, ok := r.Geometry.(Point)
	if !ok {
		t.Fatalf("geometry = %T, want Point", r.Geometry)
	}
	if point.Lon != 13.405 || point.Lat != 52.52 {
		t.Errorf("point = %+v", point)
	}
	if r.Tags["amenity"] != "cafe" {
		t.Errorf("tags = %v", r.Tags)
	}
}

func TestDecodeNodeMissingCoordinate(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "node", ID: 1, Lat: f64(52.5)},
		{Type: "node", ID: 2, Lon: f64(13.4)},
		{Type: "node", ID: 3},
	})

	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestDecodeWayClassification(t *testing.T) {
	open := []Vertex{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}}
	closed := append(append([]Vertex{}, open...), Vertex{Lat: 0, Lon: 0})
	twoPointLoop := []Vertex{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0}}

	tests := []struct {
		name     string
		vertices []Vertex
		wantType string
	}{
		{"open_way", open, "LineString"},
		{"closed_way", closed, "Polygon"},
		{"single_vertex", []Vertex{{Lat: 1, Lon: 2}}, "LineString"},
		{"degenerate_loop", twoPointLoop, "LineString"},
	}

	d := NewDecoder(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := d.DecodeElements([]Element{{Type: "way", ID: 7, Geometry: tt.vertices}})
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			if got := records[0].Geometry.GeometryType(); got != tt.wantType {
				t.Errorf("geometry type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestDecodeWayFiltersNonFiniteVertices(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "way", ID: 1, Geometry: []Vertex{
			{Lat: 0, Lon: 0},
			{Lat: math.NaN(), Lon: 1},
			{Lat: 1, Lon: math.Inf(1)},
			{Lat: 2, Lon: 2},
		}},
	})

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	line, ok := records[0].Geometry.(LineString)
	if !ok {
		t.Fatalf("geometry = %T, want LineString", records[0].Geometry)
	}
	if len(line) != 2 {
		t.Errorf("got %d vertices, want 2 after filtering", len(line))
	}
	if !line.Finite() {
		t.Error("filtered line still carries non-finite coordinates")
	}
}

func TestDecodeWayAllVerticesDropped(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "way", ID: 1, Geometry: []Vertex{{Lat: math.NaN(), Lon: math.NaN()}}},
		{Type: "way", ID: 2},
	})

	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestDecodeNodeNonFinite(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "node", ID: 1, Lat: f64(math.NaN()), Lon: f64(13.4)},
		{Type: "node", ID: 2, Lat: f64(52.5), Lon: f64(math.Inf(-1))},
	})

	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestDecodeRelationDropped(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "relation", ID: 9, Members: []Member{{Type: "way", Ref: 1, Role: "outer"}}},
	})

	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestDecodeSkipsBadElementsKeepsGood(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements([]Element{
		{Type: "node", ID: 1, Lat: f64(1), Lon: f64(1)},
		{Type: "relation", ID: 2},
		{Type: "node", ID: 3, Lat: f64(2), Lon: f64(2)},
	})

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != 1 || records[1].ID != 3 {
		t.Errorf("record ids = %d, %d; want 1, 3", records[0].ID, records[1].ID)
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	d := NewDecoder(nil)
	records := d.DecodeElements(nil)
	if records == nil || len(records) != 0 {
		t.Errorf("got %v, want empty non-nil slice", records)
	}
}

func TestRecordMarshalFlattensTags(t *testing.T) {
	r := Record{
		ID:       5,
		Tags:     map[string]string{"name": "Spree", "id": "tag-id-should-lose"},
		Geometry: Point{Lon: 13.4, Lat: 52.5},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if got["name"] != "Spree" {
		t.Errorf("name = %v", got["name"])
	}
	if got["id"] != float64(5) {
		t.Errorf("id = %v, want the element id, not the tag", got["id"])
	}
	geometry, ok := got["geometry"].(map[string]any)
	if !ok {
		t.Fatalf("geometry = %T", got["geometry"])
	}
	if geometry["type"] != "Point" {
		t.Errorf("geometry type = %v", geometry["type"])
	}
}
