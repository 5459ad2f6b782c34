package domain

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Prefixes of the summary variables written by ReduceEnsemble.
const (
	MeanPrefix = "mean_"
	StdPrefix  = "std_"
)

// ReduceEnsemble collapses memberAxis of the named variable into
// mean_<name> and std_<name>. NaN members are skipped; a cell with no valid
// member stays NaN. The standard deviation is the population form. Every
// other axis is kept unchanged.
func ReduceEnsemble(g *Grid, name, memberAxis string) (*Grid, error) {
	v, found := g.Var(name)
	if !found {
		return nil, fmt.Errorf("reduce ensemble: %w: %q", ErrVariableNotFound, name)
	}
	k := slices.Index(v.Dims, memberAxis)
	if k < 0 {
		return nil, fmt.Errorf("reduce ensemble: %w: %q not indexed by %q", ErrAxisNotFound, name, memberAxis)
	}
	shape, err := g.Shape(v)
	if err != nil {
		return nil, fmt.Errorf("reduce ensemble: %w", err)
	}
	if product(shape) != len(v.Data) {
		return nil, fmt.Errorf("reduce ensemble: %w: %q", ErrShapeMismatch, name)
	}

	outer := product(shape[:k])
	members := shape[k]
	inner := product(shape[k+1:])

	mean := make([]float64, outer*inner)
	std := make([]float64, outer*inner)
	valid := make([]float64, 0, members)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			valid = valid[:0]
			for m := 0; m < members; m++ {
				x := v.Data[(o*members+m)*inner+i]
				if !math.IsNaN(x) {
					valid = append(valid, x)
				}
			}
			cell := o*inner + i
			if len(valid) == 0 {
				mean[cell], std[cell] = math.NaN(), math.NaN()
				continue
			}
			mu, variance := stat.PopMeanVariance(valid, nil)
			mean[cell], std[cell] = mu, math.Sqrt(variance)
		}
	}

	dims := slices.Delete(slices.Clone(v.Dims), k, k+1)
	out := &Grid{Attrs: cloneAttrs(g.Attrs), CRS: g.CRS}
	for _, d := range g.Dims {
		if d.Name == memberAxis {
			continue
		}
		out.Dims = append(out.Dims, Dimension{Name: d.Name, Values: slices.Clone(d.Values), Units: d.Units})
	}
	out.Vars = []*Variable{
		{Name: MeanPrefix + name, Dims: dims, Data: mean, Attrs: summaryAttrs(v, "ensemble mean")},
		{Name: StdPrefix + name, Dims: slices.Clone(dims), Data: std, Attrs: summaryAttrs(v, "ensemble standard deviation")},
	}
	return out, nil
}

func summaryAttrs(v *Variable, label string) map[string]string {
	attrs := map[string]string{"long_name": label + " of " + v.Name}
	if units, ok := v.Attrs["units"]; ok {
		attrs["units"] = units
	}
	return attrs
}
