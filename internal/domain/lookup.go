package domain

import "fmt"

// SummaryLookup holds the independent mean and standard-deviation series
// resolved from a summary grid.
type SummaryLookup struct {
	Cell Cell
	Mean Resolution
	Std  Resolution
}

// LookupSummary resolves mean_dis24 and std_dis24 at a query point. A
// missing statistic only fails its own resolution.
func LookupSummary(g *Grid, lat, lon float64) SummaryLookup {
	cell, err := ResolveCell(g, lat, lon)
	if err != nil {
		return SummaryLookup{
			Mean: Resolution{Variable: VarMeanDischarge, Outcome: failedOutcome(err)},
			Std:  Resolution{Variable: VarStdDischarge, Outcome: failedOutcome(err)},
		}
	}
	return SummaryLookup{
		Cell: cell,
		Mean: lookupNamed(g, VarMeanDischarge, cell),
		Std:  lookupNamed(g, VarStdDischarge, cell),
	}
}

// LookupPrimary resolves the first declared data variable of g, whatever its
// name, against whichever latitude/longitude axis names the file uses. The
// returned Resolution names the variable it found.
func LookupPrimary(g *Grid, lat, lon float64) Resolution {
	v, found := g.FirstDataVar()
	if !found {
		return Resolution{Outcome: failedOutcome(fmt.Errorf("%w: grid has no data variables", ErrVariableNotFound))}
	}
	cell, err := ResolveCell(g, lat, lon)
	if err != nil {
		return Resolution{Variable: v.Name, Outcome: failedOutcome(err)}
	}
	return AssembleHorizons(g, v, cell)
}

func lookupNamed(g *Grid, name string, cell Cell) Resolution {
	v, found := g.Var(name)
	if !found {
		return Resolution{Variable: name, Outcome: failedOutcome(fmt.Errorf("%w: %q", ErrVariableNotFound, name))}
	}
	return AssembleHorizons(g, v, cell)
}
