package netcdf

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var errNotNumeric = errors.New("not numeric")

// flatten converts a scalar, slice or nested slice of numbers into a
// row-major []float64 and its shape.
func flatten(values any) ([]float64, []int, error) {
	if values == nil {
		return nil, nil, errNotNumeric
	}
	rv := reflect.ValueOf(values)
	var shape []int
	for probe := rv; probe.Kind() == reflect.Slice || probe.Kind() == reflect.Array; probe = probe.Index(0) {
		shape = append(shape, probe.Len())
		if probe.Len() == 0 {
			break
		}
	}
	out := make([]float64, 0, product(shape))
	if err := appendValues(&out, rv); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func appendValues(out *[]float64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := appendValues(out, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return errNotNumeric
		}
		return appendValues(out, rv.Elem())
	}
	x, ok := numeric(rv)
	if !ok {
		return fmt.Errorf("%w: %s", errNotNumeric, rv.Type())
	}
	*out = append(*out, x)
	return nil
}

func numeric(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}

// attrFloats returns the numeric values of an attribute.
func attrFloats(v any) ([]float64, bool) {
	if _, isString := v.(string); isString {
		return nil, false
	}
	data, _, err := flatten(v)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// attrString renders an attribute value as text. Numeric arrays are joined
// with commas.
func attrString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return strings.TrimRight(string(x), "\x00")
	}
	data, ok := attrFloats(v)
	if !ok {
		return fmt.Sprint(v)
	}
	parts := make([]string, len(data))
	for i, f := range data {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// unpack masks fill values and applies CF packing attributes in place.
func unpack(data []float64, attrs map[string]any) {
	var fills []float64
	for _, name := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs[name]; ok {
			if f, ok := attrFloats(v); ok {
				fills = append(fills, f...)
			}
		}
	}
	scale, offset := 1.0, 0.0
	if f, ok := attrFloats(attrs["scale_factor"]); ok {
		scale = f[0]
	}
	if f, ok := attrFloats(attrs["add_offset"]); ok {
		offset = f[0]
	}
	for i, x := range data {
		if isFill(x, fills) {
			data[i] = math.NaN()
			continue
		}
		if scale != 1 || offset != 0 {
			data[i] = x*scale + offset
		}
	}
}

func isFill(x float64, fills []float64) bool {
	for _, f := range fills {
		if x == f || (math.IsNaN(f) && math.IsNaN(x)) {
			return true
		}
	}
	return false
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
