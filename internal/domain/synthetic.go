package domain

import "math"

// CellFunc yields a synthetic value for one grid position.
type CellFunc func(horizon, row, col int) float64

// SyntheticSummary builds a summary grid over the given axes. Longitudes are
// stored as given and forecast periods in hours. mean and std fill
// mean_dis24 and std_dis24; a nil std leaves it at zero.
func SyntheticSummary(lats, lons []float64, hours []int, mean, std CellFunc) *Grid {
	periods := make([]float64, len(hours))
	for i, h := range hours {
		periods[i] = float64(h)
	}
	dims := []string{AxisForecastPeriod, AxisLatitude, AxisLongitude}
	meanData := make([]float64, 0, len(hours)*len(lats)*len(lons))
	stdData := make([]float64, 0, cap(meanData))
	for h := range hours {
		for r := range lats {
			for c := range lons {
				meanData = append(meanData, mean(h, r, c))
				if std == nil {
					stdData = append(stdData, 0)
				} else {
					stdData = append(stdData, std(h, r, c))
				}
			}
		}
	}
	return &Grid{
		Dims: []Dimension{
			{Name: AxisForecastPeriod, Values: periods, Units: "hours"},
			{Name: AxisLatitude, Values: lats, Units: "degrees_north"},
			{Name: AxisLongitude, Values: lons, Units: "degrees_east"},
		},
		Vars: []*Variable{
			{Name: VarMeanDischarge, Dims: dims, Data: meanData, Attrs: map[string]string{"units": "m3 s-1"}},
			{Name: VarStdDischarge, Dims: append([]string(nil), dims...), Data: stdData, Attrs: map[string]string{"units": "m3 s-1"}},
		},
		Attrs: map[string]string{"source": "synthetic"},
		CRS:   CRSWGS84,
	}
}

// SyntheticThreshold builds a single-variable return-level grid on lat/lon
// axes with signed longitudes, the layout of the threshold rasters.
func SyntheticThreshold(name string, lats, lons []float64, fn func(row, col int) float64) *Grid {
	data := make([]float64, 0, len(lats)*len(lons))
	for r := range lats {
		for c := range lons {
			x := fn(r, c)
			if math.IsInf(x, 0) {
				x = math.NaN()
			}
			data = append(data, x)
		}
	}
	signed := make([]float64, len(lons))
	for i, lon := range lons {
		signed[i] = SignedLongitude(lon)
	}
	return &Grid{
		Dims: []Dimension{
			{Name: AxisLat, Values: lats, Units: "degrees_north"},
			{Name: AxisLon, Values: signed, Units: "degrees_east"},
		},
		Vars: []*Variable{
			{Name: name, Dims: []string{AxisLat, AxisLon}, Data: data, Attrs: map[string]string{"units": "m3 s-1"}},
		},
		CRS: CRSWGS84,
	}
}
