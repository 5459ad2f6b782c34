// Command genmock writes synthetic summary and return-level grids into a local
// store so the query service can be exercised without CDS credentials. The
// grids go through the same NetCDF encoder the producer uses.
//
// Usage:
//
//	go run ./cmd/genmock -dir ./data -date 2025-10-14
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/localstore"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// returnPeriods are the threshold rasters written next to the summary, keyed
// by return period in years.
var returnPeriods = []int{2, 5, 20}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dir := flag.String("dir", "./data", "local store root")
	dateFlag := flag.String("date", "", "reference date YYYY-MM-DD (default today, UTC)")
	downloadFolder := flag.String("download-folder", "download", "summary folder inside the store")
	thresholdFolder := flag.String("threshold-folder", "thresholds", "threshold folder inside the store")
	resolution := flag.Float64("resolution", 0.05, "grid spacing in degrees")
	days := flag.Int("days", 30, "number of daily horizons")
	flag.Parse()

	date := domain.Today()
	if *dateFlag != "" {
		d, err := time.Parse(time.DateOnly, *dateFlag)
		if err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
		date = d
	}
	if *resolution <= 0 || *days <= 0 {
		return fmt.Errorf("-resolution and -days must be positive")
	}

	st, err := localstore.New(*dir)
	if err != nil {
		return err
	}
	staging, err := os.MkdirTemp("", "genmock-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	box := domain.CoquimboBBox
	lats := axis(box.North, box.South, -*resolution)
	signed := axis(box.West, box.East, *resolution)
	// GloFAS publishes 0..360 longitudes.
	unsigned := make([]float64, len(signed))
	for i, lon := range signed {
		unsigned[i] = domain.AdjustLongitude(lon)
	}
	hours := make([]int, *days)
	for i := range hours {
		hours[i] = 24 * (i + 1)
	}

	summary := domain.SyntheticSummary(lats, unsigned, hours,
		func(h, r, c int) float64 { return baseFlow(r, c, len(lats), len(signed)) * pulse(h) },
		func(h, r, c int) float64 { return 0.1 * baseFlow(r, c, len(lats), len(signed)) * math.Sqrt(float64(h+1)) })

	ctx := context.Background()
	g := writer{store: st, staging: staging}
	if err := g.publish(ctx, store.Join(*downloadFolder, domain.SummaryFileName(date)), summary); err != nil {
		return err
	}
	for _, rp := range returnPeriods {
		scale := 1 + math.Log(float64(rp))
		th := domain.SyntheticThreshold(fmt.Sprintf("rl_%d", rp), lats, signed,
			func(r, c int) float64 { return scale * baseFlow(r, c, len(lats), len(signed)) })
		if err := g.publish(ctx, store.Join(*thresholdFolder, fmt.Sprintf("rl_%d.nc", rp)), th); err != nil {
			return err
		}
	}

	log.Printf("grid: %d lat x %d lon x %d horizons", len(lats), len(signed), len(hours))
	return nil
}

type writer struct {
	store   store.Store
	staging string
}

func (w writer) publish(ctx context.Context, path string, g *domain.Grid) error {
	local := filepath.Join(w.staging, filepath.Base(path))
	if err := netcdf.Encode(local, g); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	e, err := store.Upsert(ctx, w.store, path, data, "genmock "+path)
	if err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	log.Printf("%s: %d bytes (version %s)", e.Path, len(data), e.Version)
	return nil
}

// axis returns from, from+step, ... up to and including to.
func axis(from, to, step float64) []float64 {
	n := int(math.Floor((to-from)/step)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((from+float64(i)*step)*1e6) / 1e6
	}
	return out
}

// baseFlow rises toward the coast (west) and along a central river band.
func baseFlow(r, c, rows, cols int) float64 {
	west := 1 - float64(c)/float64(cols)
	band := math.Exp(-math.Pow(float64(r)/float64(rows)-0.5, 2) * 20)
	return 5 + 100*west*band
}

// pulse is a flood wave peaking on day five.
func pulse(h int) float64 {
	return 1 + 2*math.Exp(-math.Pow(float64(h-4), 2)/4)
}
