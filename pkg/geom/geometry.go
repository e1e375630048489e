// Package geom converts raw Overpass elements into validated geometry
// records that are safe to serialize: no record with a NaN or infinite
// coordinate ever leaves this package.
package geom

import (
	"encoding/json"
	"math"
)

// Coord is a single WGS84 coordinate. It marshals in GeoJSON order,
// [lon, lat].
type Coord struct {
	Lon float64
	Lat float64
}

// MarshalJSON renders the coordinate as a two-element array
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lon, c.Lat})
}

// Finite reports whether both components are finite
func (c Coord) Finite() bool {
	return finite(c.Lon) && finite(c.Lat)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Geometry is one of Point, LineString or Polygon
type Geometry interface {
	// GeometryType returns the GeoJSON type name
	GeometryType() string
	// Finite reports whether every coordinate component, across all
	// nested rings, is finite.
	Finite() bool
}

// Point is a single position
type Point Coord

// LineString is an open path of at least one position
type LineString []Coord

// Polygon is one or more closed rings; the first ring is the outer
// boundary. Ring closure means the first and last coordinates coincide.
type Polygon [][]Coord

// GeometryType implements Geometry
func (Point) GeometryType() string { return "Point" }

// GeometryType implements Geometry
func (LineString) GeometryType() string { return "LineString" }

// GeometryType implements Geometry
func (Polygon) GeometryType() string { return "Polygon" }

// Finite implements Geometry
func (p Point) Finite() bool {
	return Coord(p).Finite()
}

// Finite implements Geometry
func (l LineString) Finite() bool {
	for _, c := range l {
		if !c.Finite() {
			return false
		}
	}
	return true
}

// Finite implements Geometry
func (p Polygon) Finite() bool {
	for _, ring := range p {
		for _, c := range ring {
			if !c.Finite() {
				return false
			}
		}
	}
	return true
}

// geoJSON is the wire envelope for any geometry
type geoJSON struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// MarshalJSON renders the point as GeoJSON
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSON{Type: p.GeometryType(), Coordinates: Coord(p)})
}

// MarshalJSON renders the line as GeoJSON
func (l LineString) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSON{Type: l.GeometryType(), Coordinates: []Coord(l)})
}

// MarshalJSON renders the polygon as GeoJSON
func (p Polygon) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSON{Type: p.GeometryType(), Coordinates: [][]Coord(p)})
}
