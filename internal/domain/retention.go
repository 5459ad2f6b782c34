package domain

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// PlanRetention returns the names that fall beyond keep once names are
// sorted descending. Dated names sort chronologically, so the result is the
// oldest files. A non-positive keep retains everything.
func PlanRetention(names []string, keep int) []string {
	if keep <= 0 || len(names) <= keep {
		return nil
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	return sorted[keep:]
}

// HasExtension returns a name predicate matching the given file extension,
// case-insensitively.
func HasExtension(ext string) func(string) bool {
	ext = strings.ToLower(ext)
	return func(name string) bool {
		return strings.ToLower(path.Ext(name)) == ext
	}
}

// SummaryFileName names the daily summary grid, e.g. 20251014.nc.
func SummaryFileName(date time.Time) string {
	return date.UTC().Format("20060102") + ".nc"
}

// ClippedFileName names the clipped raster derivative, e.g. 20251014_clip.nc.
func ClippedFileName(date time.Time) string {
	return date.UTC().Format("20060102") + "_clip.nc"
}

// MeteoFileName names an ECMWF open-data message: day-first date, P for
// precipitation or T for temperature, then the step in hours.
func MeteoFileName(date time.Time, param string, step int) string {
	kind := "T"
	if param == ParamPrecipitation {
		kind = "P"
	}
	return fmt.Sprintf("%s%s%d.grib2", date.UTC().Format("02012006"), kind, step)
}
