package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrUnknownUnits is returned for forecast_period units that cannot be
// converted to a duration.
var ErrUnknownUnits = errors.New("unknown forecast period units")

// HorizonHours converts a forecast period to its whole-hour key, truncating
// any fractional hour.
func HorizonHours(d time.Duration) int {
	return int(d / time.Hour)
}

// PeriodDuration converts a stored forecast_period value to a duration.
// Empty units are read as nanoseconds. CF style "hours since ..." units keep
// only the leading unit word.
func PeriodDuration(value float64, units string) (time.Duration, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("forecast period %v is not finite", value)
	}
	unit := strings.ToLower(strings.TrimSpace(units))
	if i := strings.Index(unit, " since"); i >= 0 {
		unit = unit[:i]
	}
	var scale time.Duration
	switch unit {
	case "", "ns", "nanosecond", "nanoseconds":
		scale = time.Nanosecond
	case "us", "microsecond", "microseconds":
		scale = time.Microsecond
	case "ms", "millisecond", "milliseconds":
		scale = time.Millisecond
	case "s", "sec", "second", "seconds":
		scale = time.Second
	case "min", "minute", "minutes":
		scale = time.Minute
	case "h", "hr", "hour", "hours":
		scale = time.Hour
	case "d", "day", "days":
		scale = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnits, units)
	}
	return time.Duration(math.Round(value * float64(scale))), nil
}

// AssembleHorizons reads v at cell. Variables without a forecast_period axis
// yield a scalar. Otherwise each forecast_period position is resolved on its
// own; absent or failed horizons are left out of the series and listed in
// Skipped.
func AssembleHorizons(g *Grid, v *Variable, cell Cell) Resolution {
	res := Resolution{Variable: v.Name}
	if !v.HasDim(cell.Axes.Lat) || !v.HasDim(cell.Axes.Lon) {
		res.Outcome = failedOutcome(fmt.Errorf("%w: %q is not indexed by %s/%s",
			ErrAxisNotFound, v.Name, cell.Axes.Lat, cell.Axes.Lon))
		return res
	}
	idx := map[string]int{cell.Axes.Lat: cell.Row, cell.Axes.Lon: cell.Col}

	period, hasPeriod := g.Dim(AxisForecastPeriod)
	if !hasPeriod || !v.HasDim(AxisForecastPeriod) {
		x, err := g.ValueAt(v, idx)
		switch {
		case err != nil:
			res.Outcome = failedOutcome(err)
		case missing(x):
			res.Outcome = absentOutcome()
		default:
			res.Value = ScalarValue(x)
			res.Outcome = okOutcome()
		}
		return res
	}

	series := make(map[int]float64, period.Len())
	var firstErr error
	for i, raw := range period.Values {
		d, err := PeriodDuration(raw, period.Units)
		if err != nil {
			res.Skipped = append(res.Skipped, HorizonSkip{Raw: raw, Outcome: failedOutcome(err)})
			firstErr = firstError(firstErr, err)
			continue
		}
		hours := HorizonHours(d)
		idx[AxisForecastPeriod] = i
		x, err := g.ValueAt(v, idx)
		if err != nil {
			res.Skipped = append(res.Skipped, HorizonSkip{Hours: hours, Raw: raw, Outcome: failedOutcome(err)})
			firstErr = firstError(firstErr, err)
			continue
		}
		if missing(x) {
			res.Skipped = append(res.Skipped, HorizonSkip{Hours: hours, Raw: raw, Outcome: absentOutcome()})
			continue
		}
		series[hours] = x
	}

	switch {
	case len(series) > 0:
		res.Value = Value{Horizons: series}
		res.Outcome = okOutcome()
	case firstErr != nil:
		res.Outcome = failedOutcome(firstErr)
	default:
		res.Outcome = absentOutcome()
	}
	return res
}

// missing reports whether a cell holds no usable reading. Infinities are
// treated like fill since they cannot be encoded as JSON numbers.
func missing(x float64) bool {
	return math.IsNaN(x) || math.IsInf(x, 0)
}

func firstError(first, next error) error {
	if first != nil {
		return first
	}
	return next
}
