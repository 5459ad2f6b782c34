package domain

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Status tags how a lookup ended.
type Status int

const (
	// StatusOK means a finite value was resolved.
	StatusOK Status = iota
	// StatusAbsent means the lookup worked but the cell holds no data.
	StatusAbsent
	// StatusFailed means the lookup itself could not run (missing axis or
	// variable, point outside the grid, malformed data).
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAbsent:
		return "absent"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a single lookup.
type Outcome struct {
	Status Status
	Err    error
}

// OK reports whether the lookup produced a value.
func (o Outcome) OK() bool { return o.Status == StatusOK }

func okOutcome() Outcome { return Outcome{Status: StatusOK} }
func absentOutcome() Outcome { return Outcome{Status: StatusAbsent} }
func failedOutcome(err error) Outcome { return Outcome{Status: StatusFailed, Err: err} }

// Value is either a single scalar or a series keyed by forecast horizon in
// whole hours. The zero Value is empty and encodes as JSON null.
type Value struct {
	Scalar   *float64
	Horizons map[int]float64
}

// ScalarValue wraps a single reading.
func ScalarValue(v float64) Value { return Value{Scalar: &v} }

// IsEmpty reports whether the value carries no data at all.
func (v Value) IsEmpty() bool {
	return v.Scalar == nil && len(v.Horizons) == 0
}

// Hours returns the horizon keys in ascending order.
func (v Value) Hours() []int {
	hours := make([]int, 0, len(v.Horizons))
	for h := range v.Horizons {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

// MarshalJSON encodes a scalar as a number, a series as an object keyed by
// hour ("24", "48", ...), and an empty value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Scalar != nil:
		return json.Marshal(*v.Scalar)
	case v.Horizons != nil:
		out := make(map[string]float64, len(v.Horizons))
		for h, x := range v.Horizons {
			out[strconv.Itoa(h)] = x
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}

// HorizonSkip records a horizon left out of a series and why. Raw is the
// forecast_period coordinate as stored; Hours is zero when Raw could not be
// converted.
type HorizonSkip struct {
	Hours   int
	Raw     float64
	Outcome Outcome
}

// Resolution is the (variable name, value) pair produced by one lookup,
// tagged with its outcome. Skipped lists horizons omitted from a series.
type Resolution struct {
	Variable string
	Value    Value
	Outcome  Outcome
	Skipped  []HorizonSkip
}
