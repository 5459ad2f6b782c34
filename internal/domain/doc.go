// Package domain models GloFAS river-discharge forecast grids and the lookups
// served from them.
//
// # Data Source
//
// Raw grids come from the Copernicus Emergency Management Service GloFAS
// forecast (dataset "cems-glofas-forecast") retrieved through the CDS API for
// a fixed bounding box around the Coquimbo region. Each raw grid carries the
// variable "dis24" (river discharge in the last 24 hours, m3/s) indexed by:
//
//	number                   ensemble member, present only in raw grids
//	forecast_reference_time  issue time of the forecast
//	forecast_period          lead time, one value per horizon (24h ... 360h)
//	latitude                 descending
//	longitude                ascending, stored in [0, 360)
//
// # Summary Grids
//
// The producer collapses the member axis into "mean_dis24" and "std_dis24"
// (see [ReduceEnsemble]). Missing members are skipped rather than poisoning a
// cell; the standard deviation is the population form. Summary grids keep
// every other axis at full resolution and are the unit written to the shared
// store and read back by the query service.
//
// # Coordinate Conventions
//
// Callers supply longitudes in the signed convention (-180..180). Grids may
// store either [0, 360) or signed longitudes and either "latitude"/"longitude"
// or "lat"/"lon" axis names. [ResolveCell] probes both name sets and folds the
// query longitude into whichever convention the axis uses:
//
//	adjusted = (lon + 360) mod 360      for [0, 360) axes
//	signed   = adjusted - 360 if > 180  for signed axes
//
// Nearest-neighbour search runs independently per axis. Ties resolve to the
// lower index. A coordinate more than half a cell beyond either end of an axis
// is out of bounds.
//
// # Forecast Horizons
//
// Horizon keys are whole hours: the forecast_period duration divided by one
// hour, truncated. Stored periods carry a units attribute (hours in GloFAS
// files); a missing unit is read as nanoseconds.
//
// # Lookup Results
//
// Lookups never return errors for per-cell problems. Each resolution carries an
// [Outcome] that separates a legitimately missing value ([StatusAbsent], a NaN
// cell) from a failed mechanism ([StatusFailed], such as a missing axis).
package domain
