package domain

import (
	"fmt"
	"math"

	"github.com/geal-ai/grib2hrrr"
)

// AxisNames is a pair of latitude/longitude axis names used by one file.
type AxisNames struct {
	Lat string
	Lon string
}

var (
	// PrimaryAxes are the names GloFAS forecast grids use.
	PrimaryAxes = AxisNames{Lat: AxisLatitude, Lon: AxisLongitude}
	// GenericAxes occur in threshold (return-level) grids.
	GenericAxes = AxisNames{Lat: AxisLat, Lon: AxisLon}
)

// axisProbeOrder is the order in which axis name sets are tried.
var axisProbeOrder = []AxisNames{PrimaryAxes, GenericAxes}

// Cell is the grid position nearest to a query point.
type Cell struct {
	Axes AxisNames
	Row  int
	Col  int
	// Lat and Lon are the grid coordinates of the cell in the grid's own convention.
	Lat float64
	Lon float64
}

// AdjustLongitude folds a longitude into [0, 360), equivalent to
// (lon + 360) mod 360 for signed inputs. Values already in range are returned
// unchanged.
func AdjustLongitude(lon float64) float64 {
	adj := math.Mod(lon, 360)
	if adj < 0 {
		adj += 360
	}
	if adj >= 360 {
		adj -= 360
	}
	return adj
}

// SignedLongitude folds a longitude into the signed (-180, 180] convention.
func SignedLongitude(lon float64) float64 {
	return grib2hrrr.NormLon(AdjustLongitude(lon))
}

// NearestIndex returns the position on axis closest to target. Ties go to
// the lower index. On axes with two or more values, a target more than half
// the smallest spacing beyond either end is out of bounds.
func NearestIndex(axis []float64, target float64) (int, error) {
	if len(axis) == 0 {
		return 0, ErrEmptyAxis
	}
	best := 0
	bestDist := math.Abs(axis[0] - target)
	for i := 1; i < len(axis); i++ {
		if d := math.Abs(axis[i] - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	if len(axis) > 1 {
		lo, hi := minMax(axis)
		half := minSpacing(axis) / 2
		if target < lo-half || target > hi+half {
			return 0, fmt.Errorf("%w: %g not within [%g, %g]", ErrOutOfBounds, target, lo, hi)
		}
	}
	return best, nil
}

// ResolveAxes returns the first axis name set fully present on the grid.
func ResolveAxes(g *Grid) (AxisNames, error) {
	for _, names := range axisProbeOrder {
		if g.HasDim(names.Lat) && g.HasDim(names.Lon) {
			return names, nil
		}
	}
	return AxisNames{}, fmt.Errorf("%w: neither %s/%s nor %s/%s present", ErrAxisNotFound,
		PrimaryAxes.Lat, PrimaryAxes.Lon, GenericAxes.Lat, GenericAxes.Lon)
}

// ResolveCell maps a query point (signed longitude) to the nearest grid cell.
// The longitude is folded into [0, 360) unless the grid's longitude axis holds
// negative values, in which case the signed convention is used.
func ResolveCell(g *Grid, lat, lon float64) (Cell, error) {
	names, err := ResolveAxes(g)
	if err != nil {
		return Cell{}, err
	}
	latAxis, _ := g.Dim(names.Lat)
	lonAxis, _ := g.Dim(names.Lon)

	target := AdjustLongitude(lon)
	if isSigned(lonAxis.Values) {
		target = SignedLongitude(lon)
	}

	row, err := NearestIndex(latAxis.Values, lat)
	if err != nil {
		return Cell{}, fmt.Errorf("%s: %w", names.Lat, err)
	}
	col, err := NearestIndex(lonAxis.Values, target)
	if err != nil {
		return Cell{}, fmt.Errorf("%s: %w", names.Lon, err)
	}
	return Cell{
		Axes: names,
		Row:  row,
		Col:  col,
		Lat:  latAxis.Values[row],
		Lon:  lonAxis.Values[col],
	}, nil
}

func isSigned(lons []float64) bool {
	for _, v := range lons {
		if v < 0 {
			return true
		}
	}
	return false
}

func minMax(axis []float64) (lo, hi float64) {
	lo, hi = axis[0], axis[0]
	for _, v := range axis[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func minSpacing(axis []float64) float64 {
	spacing := math.Inf(1)
	for i := 1; i < len(axis); i++ {
		if d := math.Abs(axis[i] - axis[i-1]); d > 0 && d < spacing {
			spacing = d
		}
	}
	if math.IsInf(spacing, 1) {
		return 0
	}
	return spacing
}
