package netcdf

import (
	"errors"
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

func decodeHDF5(path string) (*domain.Grid, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf-4: %w", err)
	}
	defer nc.Close()

	var vars []rawVar
	for _, name := range nc.ListVariables() {
		v, err := nc.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		data, shape, err := flatten(v.Values)
		if errors.Is(err, errNotNumeric) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		attrs := attributeMap(v.Attributes)
		unpack(data, attrs)
		vars = append(vars, rawVar{
			name:  name,
			dims:  v.Dimensions,
			shape: shape,
			data:  data,
			attrs: attrs,
		})
	}
	return buildGrid(vars, attributeMap(nc.Attributes()))
}

func attributeMap(am api.AttributeMap) map[string]any {
	out := make(map[string]any)
	if am == nil {
		return out
	}
	for _, k := range am.Keys() {
		if v, ok := am.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
