package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/geom"
	"github.com/geal-ai/grib2hrrr"
)

// DefaultMinDischarge is the discharge (m3/s) below which clipped cells are
// treated as noise.
const DefaultMinDischarge = 0.1

// ClipOptions controls value masking after the polygon clip.
type ClipOptions struct {
	// MinValue masks values strictly below it in MaskVars.
	MinValue float64
	MaskVars []string
}

// DefaultClipOptions masks discharge below DefaultMinDischarge.
func DefaultClipOptions() ClipOptions {
	return ClipOptions{
		MinValue: DefaultMinDischarge,
		MaskVars: []string{VarMeanDischarge, VarDischarge},
	}
}

// Clip returns a copy of g restricted to region. Cells outside the region are
// set to NaN but stay on the axes, so (row, col) positions are unchanged.
// Longitudes above 180 are folded to the signed convention and the CRS is set
// to EPSG:4326 when the grid declares none.
func Clip(g *Grid, region geom.Polygonal, opts ClipOptions) (*Grid, error) {
	out := g.Clone()
	if out.CRS == "" {
		out.CRS = CRSWGS84
	}
	names, err := ResolveAxes(out)
	if err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	var lats, lons []float64
	for i := range out.Dims {
		switch out.Dims[i].Name {
		case names.Lon:
			for j, lon := range out.Dims[i].Values {
				out.Dims[i].Values[j] = grib2hrrr.NormLon(lon)
			}
			lons = out.Dims[i].Values
		case names.Lat:
			lats = out.Dims[i].Values
		}
	}

	inside := make([]bool, len(lats)*len(lons))
	for r, lat := range lats {
		for c, lon := range lons {
			inside[r*len(lons)+c] = geom.Point{X: lon, Y: lat}.Within(region) != geom.Outside
		}
	}

	for _, v := range out.Vars {
		latPos := slices.Index(v.Dims, names.Lat)
		lonPos := slices.Index(v.Dims, names.Lon)
		if latPos < 0 || lonPos < 0 {
			continue
		}
		shape, err := out.Shape(v)
		if err != nil {
			return nil, fmt.Errorf("clip: %w", err)
		}
		if product(shape) != len(v.Data) {
			return nil, fmt.Errorf("clip: %w: %q", ErrShapeMismatch, v.Name)
		}
		st := strides(shape)
		threshold := slices.Contains(opts.MaskVars, v.Name)
		for n := range v.Data {
			r := (n / st[latPos]) % shape[latPos]
			c := (n / st[lonPos]) % shape[lonPos]
			if !inside[r*len(lons)+c] || (threshold && v.Data[n] < opts.MinValue) {
				v.Data[n] = math.NaN()
			}
		}
	}
	return out, nil
}
