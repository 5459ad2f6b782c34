// Package ecmwf downloads short-range surface forecasts from ECMWF open data.
//
// Each forecast step is published as one GRIB2 file with a JSON-lines index
// giving the byte offset and length of every message. Only the messages for
// the requested parameters are fetched, with HTTP range requests.
package ecmwf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/geal-ai/grib2hrrr"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/breaker"
	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
)

const (
	defaultBaseURL = "https://data.ecmwf.int/forecasts"
	maxIndexBytes  = 10 << 20
)

var (
	// ErrNotIndexed is returned when a requested parameter is missing from
	// the step index.
	ErrNotIndexed = errors.New("parameter not in index")
	// ErrNotGRIB is returned when a fetched message lacks the GRIB indicator.
	ErrNotGRIB = errors.New("not a GRIB message")
)

// indexRecord is one line of a step index.
type indexRecord struct {
	Param   string `json:"param"`
	Step    string `json:"step"`
	LevType string `json:"levtype"`
	Offset  int64  `json:"_offset"`
	Length  int64  `json:"_length"`
}

// Client fetches the operational high-resolution surface forecast.
type Client struct {
	baseURL string
	http    *breaker.Client
	raw     *grib2hrrr.HRRRClient
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates an open-data client. An empty baseURL uses the public
// ECMWF mirror.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	b := breaker.New("ecmwf", &http.Client{Timeout: timeout}, "discharge-forecast-service", breaker.Settings{})
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: base,
		http:    b,
		raw:     &grib2hrrr.HRRRClient{HTTPClient: b.HTTPClient(), BaseURL: base},
		metrics: metrics,
		logger:  logger,
	}
}

// stepURL returns the base URL (without extension) of the 00 UTC run file
// for one step.
func (c *Client) stepURL(date time.Time, step int) string {
	d := date.UTC().Format("20060102")
	return fmt.Sprintf("%s/%s/00z/ifs/0p25/oper/%s000000-%dh-oper-fc", c.baseURL, d, d, step)
}

// Fetch downloads the surface messages of params at each step of the 00 UTC
// run of date. A failing step or parameter is logged and skipped; the error
// joins every failure so callers can tell a partial result from a full one.
func (c *Client) Fetch(ctx context.Context, date time.Time, params []string, steps []int) ([]domain.MeteoMessage, error) {
	var out []domain.MeteoMessage
	var errs []error
	for _, step := range steps {
		msgs, err := c.fetchStep(ctx, date, step, params)
		out = append(out, msgs...)
		if err != nil {
			c.logger.Error("ecmwf step failed", "date", date.Format(time.DateOnly), "step", step, "error", err)
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

// Source fetches a fixed parameter and step set.
// It implements pipeline.MeteoSource.
type Source struct {
	Client *Client
	Params []string
	Steps  []int
}

func (s Source) FetchMeteo(ctx context.Context, date time.Time) ([]domain.MeteoMessage, error) {
	return s.Client.Fetch(ctx, date, s.Params, s.Steps)
}

func (c *Client) fetchStep(ctx context.Context, date time.Time, step int, params []string) ([]domain.MeteoMessage, error) {
	base := c.stepURL(date, step)
	records, err := c.index(ctx, base+".index")
	if err != nil {
		c.observe("error")
		return nil, fmt.Errorf("step %d: %w", step, err)
	}

	var out []domain.MeteoMessage
	var errs []error
	for _, param := range params {
		rec, ok := findRecord(records, param, step)
		if !ok {
			c.observe("error")
			errs = append(errs, fmt.Errorf("step %d %s: %w", step, param, ErrNotIndexed))
			continue
		}
		data, err := c.raw.FetchRaw(ctx, base+".grib2", rec.Offset, rec.Offset+rec.Length-1)
		if err == nil && !bytes.HasPrefix(data, []byte("GRIB")) {
			err = ErrNotGRIB
		}
		if err != nil {
			c.observe("error")
			errs = append(errs, fmt.Errorf("step %d %s: %w", step, param, err))
			continue
		}
		c.observe("success")
		c.logger.Info("ecmwf message fetched", "param", param, "step", step, "bytes", len(data))
		out = append(out, domain.MeteoMessage{Param: param, Step: step, Data: data})
	}
	return out, errors.Join(errs...)
}

func (c *Client) observe(outcome string) {
	c.metrics.UpstreamRequests.WithLabelValues("ecmwf", outcome).Inc()
}

// index reads the JSON-lines index of one step file.
func (c *Client) index(ctx context.Context, u string) ([]indexRecord, error) {
	start := time.Now()
	defer func() {
		c.metrics.UpstreamDuration.WithLabelValues("ecmwf").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index fetch HTTP %d for %s", resp.StatusCode, u)
	}
	return parseIndex(io.LimitReader(resp.Body, maxIndexBytes))
}

func parseIndex(r io.Reader) ([]indexRecord, error) {
	var out []indexRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec indexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse index line %q: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return out, nil
}

// findRecord picks the surface message for param at step. Accumulated
// parameters carry a range step such as "0-12"; its end is matched.
func findRecord(records []indexRecord, param string, step int) (indexRecord, bool) {
	want := strconv.Itoa(step)
	i := slices.IndexFunc(records, func(r indexRecord) bool {
		if r.Param != param || r.Length <= 0 {
			return false
		}
		if r.LevType != "" && r.LevType != "sfc" {
			return false
		}
		s := r.Step
		if _, end, ok := strings.Cut(s, "-"); ok {
			s = end
		}
		return s == want
	})
	if i < 0 {
		return indexRecord{}, false
	}
	return records[i], true
}
