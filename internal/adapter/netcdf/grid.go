package netcdf

import (
	"fmt"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

// crsHolders are scalar variables that carry CRS metadata as attributes.
var crsHolders = map[string]bool{"spatial_ref": true, "crs": true}

// rawVar is a variable as read from either container, before it is sorted
// into coordinates and data.
type rawVar struct {
	name  string
	dims  []string
	shape []int
	data  []float64
	attrs map[string]any
}

func (v rawVar) isCoordinate() bool {
	return len(v.dims) == 1 && v.dims[0] == v.name
}

// buildGrid sorts raw variables into axes and data variables. Axes without a
// coordinate variable get index coordinates 0..n-1.
func buildGrid(vars []rawVar, globals map[string]any) (*domain.Grid, error) {
	g := &domain.Grid{Attrs: make(map[string]string, len(globals))}
	for k, v := range globals {
		g.Attrs[k] = attrString(v)
	}

	coords := make(map[string]rawVar)
	lengths := make(map[string]int)
	var order []string
	for _, v := range vars {
		if len(v.dims) == 0 {
			if crsHolders[v.name] {
				if wkt, ok := v.attrs[AttrCRSWKT]; ok && g.Attrs[AttrCRSWKT] == "" {
					g.Attrs[AttrCRSWKT] = attrString(wkt)
				}
			}
			continue
		}
		if len(v.shape) != len(v.dims) {
			return nil, fmt.Errorf("variable %s: %d dimensions but data of rank %d", v.name, len(v.dims), len(v.shape))
		}
		for i, d := range v.dims {
			if prev, seen := lengths[d]; seen && prev != v.shape[i] {
				return nil, fmt.Errorf("dimension %s: length %d in %s, %d elsewhere", d, v.shape[i], v.name, prev)
			}
			if _, seen := lengths[d]; !seen {
				order = append(order, d)
			}
			lengths[d] = v.shape[i]
		}
		if v.isCoordinate() {
			coords[v.name] = v
		}
	}

	for _, name := range order {
		dim := domain.Dimension{Name: name}
		if c, ok := coords[name]; ok {
			dim.Values = c.data
			if u, ok := c.attrs["units"]; ok {
				dim.Units = attrString(u)
			}
		} else {
			dim.Values = make([]float64, lengths[name])
			for i := range dim.Values {
				dim.Values[i] = float64(i)
			}
		}
		g.Dims = append(g.Dims, dim)
	}

	for _, v := range vars {
		if len(v.dims) == 0 || v.isCoordinate() {
			continue
		}
		attrs := make(map[string]string, len(v.attrs))
		for k, a := range v.attrs {
			switch k {
			case "_FillValue", "missing_value", "scale_factor", "add_offset":
				continue
			}
			attrs[k] = attrString(a)
		}
		g.Vars = append(g.Vars, &domain.Variable{Name: v.name, Dims: v.dims, Data: v.data, Attrs: attrs})
	}
	return g, nil
}
