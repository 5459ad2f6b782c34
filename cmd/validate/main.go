// Command validate checks the grid files in a local store the way the query
// service will read them: the newest summary grid, every threshold grid, and
// optionally a point lookup against both.
//
// Usage:
//
//	go run ./cmd/validate -dir ./data -lat -30.5 -lon -71.2
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/localstore"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	dir             string
	downloadFolder  string
	thresholdFolder string
	lat, lon        string
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", "./data", "local store root")
	flag.StringVar(&opts.downloadFolder, "download-folder", "download", "summary folder inside the store")
	flag.StringVar(&opts.thresholdFolder, "threshold-folder", "thresholds", "threshold folder inside the store")
	flag.StringVar(&opts.lat, "lat", "", "optional query latitude")
	flag.StringVar(&opts.lon, "lon", "", "optional query longitude")
	flag.Parse()

	if (opts.lat == "") != (opts.lon == "") {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

// loaded is a decoded store file.
type loaded struct {
	entry store.Entry
	grid  *domain.Grid
}

func run(opts options) int {
	fmt.Println("=== Discharge Grid Validation ===")
	fmt.Println()

	st, err := localstore.New(opts.dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	staging, err := os.MkdirTemp("", "validate-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: staging dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(staging)

	ctx := context.Background()
	latest, err := store.Latest(ctx, st, opts.downloadFolder, domain.HasExtension(".nc"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: find summary in %s: %v\n", opts.downloadFolder, err)
		return 1
	}
	summary, err := load(ctx, st, staging, latest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	thresholdEntries, err := st.List(ctx, opts.thresholdFolder, domain.HasExtension(".nc"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list %s: %v\n", opts.thresholdFolder, err)
		return 1
	}
	thresholds := make([]loaded, 0, len(thresholdEntries))
	var loadErrors []string
	for _, e := range thresholdEntries {
		l, err := load(ctx, st, staging, e)
		if err != nil {
			loadErrors = append(loadErrors, err.Error())
			continue
		}
		thresholds = append(thresholds, l)
	}

	phases := []*phase{
		validateSummary(summary),
		validateThresholds(thresholds, loadErrors),
	}
	if opts.lat != "" {
		phases = append(phases, validateLookup(summary, thresholds, opts.lat, opts.lon))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Files: summary %s, %d threshold grids\n", summary.entry.Path, len(thresholdEntries))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func load(ctx context.Context, st store.Store, staging string, e store.Entry) (loaded, error) {
	data, err := st.Fetch(ctx, e)
	if err != nil {
		return loaded{}, fmt.Errorf("fetch %s: %w", e.Path, err)
	}
	local := filepath.Join(staging, e.Name)
	if err := os.WriteFile(local, data, 0o600); err != nil {
		return loaded{}, err
	}
	g, err := netcdf.Decode(local)
	if err != nil {
		return loaded{}, fmt.Errorf("decode %s: %w", e.Path, err)
	}
	return loaded{entry: e, grid: g}, nil
}

// ── Phase 1: Summary grid ──
// The newest summary must carry both statistics over a descending latitude,
// a 0..360 longitude and whole-hour forecast periods, with non-negative
// values or NaN fill.

func validateSummary(s loaded) *phase {
	p := &phase{name: "Phase 1: Summary grid (" + s.entry.Name + ")"}
	g := s.grid

	if names, err := domain.ResolveAxes(g); err != nil {
		p.errorf("axes: %v", err)
	} else {
		checkAxes(p, g, names)
	}
	period, ok := g.Dim(domain.AxisForecastPeriod)
	if !ok {
		p.errorf("missing %s axis", domain.AxisForecastPeriod)
	} else {
		checkPeriods(p, period)
	}
	if g.HasDim(domain.AxisMember) {
		p.errorf("summary still has a %s axis", domain.AxisMember)
	}

	for _, name := range []string{domain.VarMeanDischarge, domain.VarStdDischarge} {
		v, ok := g.Var(name)
		if !ok {
			p.errorf("missing variable %s", name)
			continue
		}
		if !v.HasDim(domain.AxisForecastPeriod) {
			p.errorf("%s is not indexed by %s", name, domain.AxisForecastPeriod)
		}
		checkValues(p, v)
	}
	return p
}

func checkAxes(p *phase, g *domain.Grid, names domain.AxisNames) {
	lat, _ := g.Dim(names.Lat)
	for i := 1; i < lat.Len(); i++ {
		if lat.Values[i] >= lat.Values[i-1] {
			p.errorf("%s is not descending at position %d", names.Lat, i)
			break
		}
	}
	lon, _ := g.Dim(names.Lon)
	for _, x := range lon.Values {
		if x < 0 || x >= 360 {
			p.errorf("%s value %v outside [0, 360)", names.Lon, x)
			break
		}
	}
}

func checkPeriods(p *phase, period domain.Dimension) {
	prev := -1
	for _, x := range period.Values {
		d, err := domain.PeriodDuration(x, period.Units)
		if err != nil {
			p.errorf("%s: %v", domain.AxisForecastPeriod, err)
			return
		}
		if d%time.Hour != 0 {
			p.errorf("%s value %v is not a whole hour", domain.AxisForecastPeriod, x)
		}
		h := domain.HorizonHours(d)
		if h <= prev {
			p.errorf("%s values are not ascending", domain.AxisForecastPeriod)
			return
		}
		prev = h
	}
}

func checkValues(p *phase, v *domain.Variable) {
	finite, negative := 0, 0
	for _, x := range v.Data {
		switch {
		case math.IsNaN(x):
		case math.IsInf(x, 0):
			p.errorf("%s holds an infinite value", v.Name)
			return
		case x < 0:
			negative++
		default:
			finite++
		}
	}
	if negative > 0 {
		p.errorf("%s has %d negative values", v.Name, negative)
	}
	if finite == 0 {
		p.errorf("%s has no finite values", v.Name)
	}
}

// ── Phase 2: Threshold grids ──
// Every threshold file must decode and expose a data variable on a
// recognised latitude/longitude pair.

func validateThresholds(thresholds []loaded, loadErrors []string) *phase {
	p := &phase{name: "Phase 2: Threshold grids"}
	for _, e := range loadErrors {
		p.errorf("%s", e)
	}
	for _, t := range thresholds {
		v, ok := t.grid.FirstDataVar()
		if !ok {
			p.errorf("%s: no data variable", t.entry.Name)
			continue
		}
		if _, err := domain.ResolveAxes(t.grid); err != nil {
			p.errorf("%s: %v", t.entry.Name, err)
			continue
		}
		checkValues(p, v)
	}
	return p
}

// ── Phase 3: Point lookup ──
// A lookup at the given point must resolve both statistics and every
// threshold the way /consultar would.

func validateLookup(summary loaded, thresholds []loaded, latArg, lonArg string) *phase {
	p := &phase{name: "Phase 3: Point lookup (" + latArg + ", " + lonArg + ")"}
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		p.errorf("lat: %v", err)
		return p
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		p.errorf("lon: %v", err)
		return p
	}

	res := domain.LookupSummary(summary.grid, lat, lon)
	for _, r := range []domain.Resolution{res.Mean, res.Std} {
		if !r.Outcome.OK() {
			p.errorf("%s: %s %v", r.Variable, r.Outcome.Status, r.Outcome.Err)
			continue
		}
		if !slices.IsSorted(r.Value.Hours()) || len(r.Value.Hours()) == 0 {
			p.errorf("%s: empty or unordered horizons", r.Variable)
		}
		for _, skip := range r.Skipped {
			p.errorf("%s: horizon %dh (raw %v) skipped: %v", r.Variable, skip.Hours, skip.Raw, skip.Outcome.Err)
		}
	}
	fmt.Printf("Cell: lat %.4f lon %.4f (row %d, col %d)\n", res.Cell.Lat, res.Cell.Lon, res.Cell.Row, res.Cell.Col)

	for _, t := range thresholds {
		r := domain.LookupPrimary(t.grid, lat, lon)
		if r.Outcome.Status == domain.StatusFailed {
			p.errorf("%s: %v", t.entry.Name, r.Outcome.Err)
			continue
		}
		if r.Value.Scalar != nil {
			fmt.Printf("Threshold %s (%s): %.3f\n", t.entry.Name, r.Variable, *r.Value.Scalar)
		}
	}
	return p
}
