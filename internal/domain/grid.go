package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Axis and variable names used by GloFAS grids.
const (
	AxisLatitude       = "latitude"
	AxisLongitude      = "longitude"
	AxisLat            = "lat"
	AxisLon            = "lon"
	AxisForecastPeriod = "forecast_period"
	AxisReferenceTime  = "forecast_reference_time"
	AxisMember         = "number"

	VarDischarge     = "dis24"
	VarMeanDischarge = "mean_dis24"
	VarStdDischarge  = "std_dis24"

	// CRSWGS84 is the geographic CRS assigned to grids before clipping.
	CRSWGS84 = "EPSG:4326"
)

var (
	ErrAxisNotFound     = errors.New("axis not found")
	ErrVariableNotFound = errors.New("variable not found")
	ErrEmptyAxis        = errors.New("axis has no coordinates")
	ErrOutOfBounds      = errors.New("coordinate outside grid")
	ErrShapeMismatch    = errors.New("variable data does not match its dimensions")
)

// Dimension is a named coordinate axis. Values holds one coordinate per
// position in the units given by Units (empty when the file declares none).
type Dimension struct {
	Name   string
	Values []float64
	Units  string
}

// Len returns the number of positions along the axis.
func (d Dimension) Len() int { return len(d.Values) }

// Variable is a data field stored row-major over Dims. Missing values are NaN.
type Variable struct {
	Name  string
	Dims  []string
	Data  []float64
	Attrs map[string]string
}

// HasDim reports whether the variable is indexed by the named axis.
func (v *Variable) HasDim(name string) bool {
	return slices.Contains(v.Dims, name)
}

// Grid is a multi-dimensional set of data variables sharing coordinate axes.
// Vars keeps declaration order so the first declared data variable can be
// discovered in files whose variable name is not known in advance.
type Grid struct {
	Dims  []Dimension
	Vars  []*Variable
	Attrs map[string]string
	CRS   string
}

// Dim returns the named axis.
func (g *Grid) Dim(name string) (Dimension, bool) {
	for _, d := range g.Dims {
		if d.Name == name {
			return d, true
		}
	}
	return Dimension{}, false
}

// HasDim reports whether the grid declares the named axis.
func (g *Grid) HasDim(name string) bool {
	_, ok := g.Dim(name)
	return ok
}

// Var returns the named data variable.
func (g *Grid) Var(name string) (*Variable, bool) {
	for _, v := range g.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// VarNames lists data variables in declaration order.
func (g *Grid) VarNames() []string {
	names := make([]string, len(g.Vars))
	for i, v := range g.Vars {
		names[i] = v.Name
	}
	return names
}

// FirstDataVar returns the first declared variable that is not a coordinate.
func (g *Grid) FirstDataVar() (*Variable, bool) {
	for _, v := range g.Vars {
		if !g.HasDim(v.Name) {
			return v, true
		}
	}
	return nil, false
}

// Shape returns the length of each of the variable's dimensions.
func (g *Grid) Shape(v *Variable) ([]int, error) {
	shape := make([]int, len(v.Dims))
	for i, name := range v.Dims {
		d, ok := g.Dim(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q used by %q", ErrAxisNotFound, name, v.Name)
		}
		shape[i] = d.Len()
	}
	return shape, nil
}

// Validate checks that every variable's data length matches its dimensions.
func (g *Grid) Validate() error {
	for _, v := range g.Vars {
		shape, err := g.Shape(v)
		if err != nil {
			return err
		}
		if n := product(shape); n != len(v.Data) {
			return fmt.Errorf("%w: %q has %d values, dimensions %v need %d",
				ErrShapeMismatch, v.Name, len(v.Data), v.Dims, n)
		}
	}
	return nil
}

// ValueAt returns the value at the given per-axis positions. Axes of the
// variable missing from idx are pinned at position 0, which selects the only
// value of length-1 axes such as forecast_reference_time.
func (g *Grid) ValueAt(v *Variable, idx map[string]int) (float64, error) {
	shape, err := g.Shape(v)
	if err != nil {
		return math.NaN(), err
	}
	offset := 0
	for i, name := range v.Dims {
		pos := idx[name]
		if pos < 0 || pos >= shape[i] {
			return math.NaN(), fmt.Errorf("%w: %s index %d of %d", ErrOutOfBounds, name, pos, shape[i])
		}
		offset = offset*shape[i] + pos
	}
	if offset >= len(v.Data) {
		return math.NaN(), fmt.Errorf("%w: %q", ErrShapeMismatch, v.Name)
	}
	return v.Data[offset], nil
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Dims:  make([]Dimension, len(g.Dims)),
		Vars:  make([]*Variable, len(g.Vars)),
		Attrs: cloneAttrs(g.Attrs),
		CRS:   g.CRS,
	}
	for i, d := range g.Dims {
		out.Dims[i] = Dimension{Name: d.Name, Values: slices.Clone(d.Values), Units: d.Units}
	}
	for i, v := range g.Vars {
		out.Vars[i] = &Variable{
			Name:  v.Name,
			Dims:  slices.Clone(v.Dims),
			Data:  slices.Clone(v.Data),
			Attrs: cloneAttrs(v.Attrs),
		}
	}
	return out
}

func cloneAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// strides returns the row-major step of each axis in shape.
func strides(shape []int) []int {
	st := make([]int, len(shape))
	step := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = step
		step *= shape[i]
	}
	return st
}
