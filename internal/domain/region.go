package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// ErrNoPolygon is returned when a GeoJSON document holds no polygon geometry.
var ErrNoPolygon = errors.New("no polygon geometry")

// BBox is a geographic bounding box in signed degrees.
type BBox struct {
	North float64
	South float64
	West  float64
	East  float64
}

// CoquimboBBox covers the Coquimbo region of Chile.
var CoquimboBBox = BBox{North: -29.0366, South: -32.28247, West: -71.71782, East: -69.809361}

// Validate checks the box is well ordered and inside geographic ranges.
func (b BBox) Validate() error {
	switch {
	case b.North > 90 || b.South < -90:
		return fmt.Errorf("bbox latitude outside [-90, 90]: north %g south %g", b.North, b.South)
	case b.North <= b.South:
		return fmt.Errorf("bbox north %g must be greater than south %g", b.North, b.South)
	case b.West < -180 || b.East > 180:
		return fmt.Errorf("bbox longitude outside [-180, 180]: west %g east %g", b.West, b.East)
	case b.East <= b.West:
		return fmt.Errorf("bbox east %g must be greater than west %g", b.East, b.West)
	}
	return nil
}

// Area returns the box in CDS order: north, west, south, east.
func (b BBox) Area() []float64 {
	return []float64{b.North, b.West, b.South, b.East}
}

// Contains reports whether a signed-longitude point lies in the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat <= b.North && lat >= b.South && lon >= b.West && lon <= b.East
}

// ParseRegion reads a clip polygon from GeoJSON. A bare geometry, a Feature
// or a FeatureCollection are accepted; every Polygon and MultiPolygon found is
// merged into one MultiPolygon.
func ParseRegion(data []byte) (geom.MultiPolygon, error) {
	var doc struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
		Features []struct {
			Geometry json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse region: %w", err)
	}

	var raws []json.RawMessage
	switch doc.Type {
	case "FeatureCollection":
		for _, f := range doc.Features {
			raws = append(raws, f.Geometry)
		}
	case "Feature":
		raws = append(raws, doc.Geometry)
	default:
		raws = append(raws, data)
	}

	var out geom.MultiPolygon
	for _, raw := range raws {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		g, err := geojson.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("parse region geometry: %w", err)
		}
		switch p := g.(type) {
		case geom.Polygon:
			out = append(out, p)
		case *geom.Polygon:
			out = append(out, *p)
		case geom.MultiPolygon:
			out = append(out, p...)
		case *geom.MultiPolygon:
			out = append(out, *p...)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPolygon
	}
	return out, nil
}
