package netcdf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

// fillValue is the NetCDF default fill for doubles. NaN cells are written as
// fillValue and read back as NaN.
const fillValue = 9.969209968386869e36

func decodeClassic(path string) (*domain.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("open classic netcdf: %w", err)
	}
	h := nc.Header

	var vars []rawVar
	for _, name := range h.Variables() {
		r := nc.Reader(name, nil, nil)
		buf := r.Zero(-1)
		if _, isChar := buf.([]byte); isChar {
			continue
		}
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		data, _, err := flatten(buf)
		if errors.Is(err, errNotNumeric) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		attrs := make(map[string]any)
		for _, a := range h.Attributes(name) {
			attrs[a] = h.GetAttribute(name, a)
		}
		unpack(data, attrs)
		vars = append(vars, rawVar{
			name:  name,
			dims:  h.Dimensions(name),
			shape: recordShape(h.Lengths(name), len(data)),
			data:  data,
			attrs: attrs,
		})
	}

	globals := make(map[string]any)
	for _, a := range h.Attributes("") {
		globals[a] = h.GetAttribute("", a)
	}
	return buildGrid(vars, globals)
}

// recordShape fills in the length of an unlimited (record) dimension, which
// the header reports as zero, from the number of values read.
func recordShape(lengths []int, n int) []int {
	shape := append([]int(nil), lengths...)
	fixed := 1
	rec := -1
	for i, l := range shape {
		if l == 0 {
			rec = i
			continue
		}
		fixed *= l
	}
	if rec >= 0 && fixed > 0 {
		shape[rec] = n / fixed
	}
	return shape
}

// Encode writes g to path as classic NetCDF with float64 data. Coordinate
// axes are written as same-named variables with their units, and the CRS is
// stored in the global crs (and for EPSG:4326, crs_wkt) attributes.
func Encode(path string, g *domain.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	names := make([]string, len(g.Dims))
	lengths := make([]int, len(g.Dims))
	for i, d := range g.Dims {
		if d.Len() == 0 {
			return fmt.Errorf("encode %s: %w: %s", path, domain.ErrEmptyAxis, d.Name)
		}
		names[i] = d.Name
		lengths[i] = d.Len()
	}

	h := cdf.NewHeader(names, lengths)
	for _, d := range g.Dims {
		h.AddVariable(d.Name, []string{d.Name}, []float64{0})
		if d.Units != "" {
			h.AddAttribute(d.Name, "units", d.Units)
		}
	}
	for _, v := range g.Vars {
		h.AddVariable(v.Name, v.Dims, []float64{0})
		h.AddAttribute(v.Name, "_FillValue", []float64{fillValue})
		for _, k := range sortedKeys(v.Attrs) {
			if k == "_FillValue" || k == "missing_value" {
				continue
			}
			h.AddAttribute(v.Name, k, v.Attrs[k])
		}
	}
	for _, k := range sortedKeys(g.Attrs) {
		if k == AttrCRS || k == AttrCRSWKT {
			continue
		}
		h.AddAttribute("", k, g.Attrs[k])
	}
	if g.CRS != "" {
		h.AddAttribute("", AttrCRS, g.CRS)
		if g.CRS == domain.CRSWGS84 {
			h.AddAttribute("", AttrCRSWKT, wgs84WKT)
		}
	}
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := writeClassic(f, h, g); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func writeClassic(f *os.File, h *cdf.Header, g *domain.Grid) error {
	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("create classic netcdf: %w", err)
	}
	for _, d := range g.Dims {
		n, err := nc.Writer(d.Name, nil, nil).Write(d.Values)
		if err := checkWrite(n, len(d.Values), err); err != nil {
			return fmt.Errorf("write axis %s: %w", d.Name, err)
		}
	}
	for _, v := range g.Vars {
		data := make([]float64, len(v.Data))
		for i, x := range v.Data {
			if math.IsNaN(x) {
				x = fillValue
			}
			data[i] = x
		}
		n, err := nc.Writer(v.Name, nil, nil).Write(data)
		if err := checkWrite(n, len(data), err); err != nil {
			return fmt.Errorf("write variable %s: %w", v.Name, err)
		}
	}
	return nil
}

// checkWrite interprets a cdf writer result. The writer reports io.EOF once a
// write reaches the end of the variable, so a full write ending in io.EOF
// succeeded.
func checkWrite(n, want int, err error) error {
	if err != nil && !(errors.Is(err, io.EOF) && n == want) {
		return err
	}
	if n != want {
		return fmt.Errorf("short write: %d of %d values", n, want)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
