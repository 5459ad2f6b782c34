// Package cds retrieves GloFAS forecast grids from the Copernicus data store
// retrieve API. A retrieval submits a job, polls it until it finishes and then
// downloads the result asset.
package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/breaker"
	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
)

// DatasetGloFAS is the GloFAS global forecast dataset.
const DatasetGloFAS = "cems-glofas-forecast"

var (
	// ErrJobFailed is returned when the job ends in a state other than successful.
	ErrJobFailed = errors.New("cds job failed")
	// ErrTimeout is returned when the job does not finish in time.
	ErrTimeout = errors.New("cds job timed out")
)

// Request is one retrieve call.
type Request struct {
	Dataset string
	Inputs  map[string]any
}

// GloFASRequest builds the ensemble discharge request for one issue date.
func GloFASRequest(date time.Time, box domain.BBox, leadTimes []int) Request {
	hours := make([]string, len(leadTimes))
	for i, h := range leadTimes {
		hours[i] = strconv.Itoa(h)
	}
	return Request{
		Dataset: DatasetGloFAS,
		Inputs: map[string]any{
			"system_version":     []string{"operational"},
			"hydrological_model": []string{"lisflood"},
			"product_type":       []string{"ensemble_perturbed_forecasts"},
			"variable":           []string{"river_discharge_in_the_last_24_hours"},
			"year":               []string{date.Format("2006")},
			"month":              []string{date.Format("01")},
			"day":                []string{date.Format("02")},
			"leadtime_hour":      hours,
			"data_format":        "netcdf",
			"download_format":    "unarchived",
			"area":               box.Area(),
		},
	}
}

// GloFASSource retrieves the daily ensemble for a fixed area and horizons.
// It implements pipeline.EnsembleSource.
type GloFASSource struct {
	Client    *Client
	BBox      domain.BBox
	LeadTimes []int
}

func (s GloFASSource) FetchEnsemble(ctx context.Context, date time.Time, dst string) error {
	_, err := s.Client.Retrieve(ctx, GloFASRequest(date, s.BBox, s.LeadTimes), dst)
	return err
}

// Options configure a Client.
type Options struct {
	BaseURL      string
	Key          string
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	Clock        clockwork.Clock
}

// Client talks to one CDS endpoint.
type Client struct {
	baseURL string
	key     string
	poll    time.Duration
	timeout time.Duration
	http    *breaker.Client
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a CDS client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Hour
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     opts.Key,
		poll:    opts.PollInterval,
		timeout: opts.Timeout,
		http:    breaker.New("cds", opts.HTTPClient, "discharge-forecast-service", breaker.Settings{}),
		clock:   opts.Clock,
		metrics: metrics,
		logger:  logger,
	}
}

type jobStatus struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

type results struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Size int64  `json:"file:size"`
		} `json:"value"`
	} `json:"asset"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Retrieve runs req to completion and writes the result to dst, returning
// the number of bytes written.
func (c *Client) Retrieve(ctx context.Context, req Request, dst string) (int64, error) {
	start := c.clock.Now()
	n, err := c.retrieve(ctx, req, dst)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.UpstreamRequests.WithLabelValues("cds", outcome).Inc()
	c.metrics.UpstreamDuration.WithLabelValues("cds").Observe(c.clock.Since(start).Seconds())
	return n, err
}

func (c *Client) retrieve(ctx context.Context, req Request, dst string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	job, err := c.submit(ctx, req)
	if err != nil {
		return 0, err
	}
	c.logger.Info("cds job submitted", "dataset", req.Dataset, "job_id", job.JobID, "status", job.Status)

	if err := c.wait(ctx, job); err != nil {
		return 0, err
	}

	var res results
	if err := c.getJSON(ctx, c.baseURL+"/retrieve/v1/jobs/"+url.PathEscape(job.JobID)+"/results", &res); err != nil {
		return 0, fmt.Errorf("cds results %s: %w", job.JobID, err)
	}
	href := res.Asset.Value.Href
	if href == "" {
		return 0, fmt.Errorf("cds results %s: no asset href", job.JobID)
	}
	n, err := c.download(ctx, href, dst)
	if err != nil {
		return 0, err
	}
	c.logger.Info("cds result downloaded", "job_id", job.JobID, "bytes", n, "path", dst)
	return n, nil
}

func (c *Client) submit(ctx context.Context, req Request) (jobStatus, error) {
	body, err := json.Marshal(map[string]any{"inputs": req.Inputs})
	if err != nil {
		return jobStatus{}, fmt.Errorf("encode request: %w", err)
	}
	u := c.baseURL + "/retrieve/v1/processes/" + url.PathEscape(req.Dataset) + "/execution"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return jobStatus{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var job jobStatus
	if err := c.doJSON(httpReq, &job); err != nil {
		return jobStatus{}, fmt.Errorf("cds submit %s: %w", req.Dataset, err)
	}
	if job.JobID == "" {
		return jobStatus{}, fmt.Errorf("cds submit %s: response without jobID", req.Dataset)
	}
	return job, nil
}

// wait polls the job until it reaches a final state.
func (c *Client) wait(ctx context.Context, job jobStatus) error {
	u := c.baseURL + "/retrieve/v1/jobs/" + url.PathEscape(job.JobID)
	status := job.Status
	for {
		switch status {
		case "successful":
			return nil
		case "failed", "rejected", "dismissed":
			return fmt.Errorf("%w: job %s %s", ErrJobFailed, job.JobID, status)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: job %s still %s", ErrTimeout, job.JobID, status)
			}
			return ctx.Err()
		case <-c.clock.After(c.poll):
		}

		var current jobStatus
		if err := c.getJSON(ctx, u, &current); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: job %s still %s", ErrTimeout, job.JobID, status)
			}
			return fmt.Errorf("cds poll %s: %w", job.JobID, err)
		}
		if current.Status != status {
			c.logger.Debug("cds job status", "job_id", job.JobID, "status", current.Status)
		}
		status = current.Status
	}
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("PRIVATE-TOKEN", c.key)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, href, dst string) (int64, error) {
	u, err := c.resolve(href)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cds download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cds download: %w", responseError(resp))
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("cds download: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("cds download: %w", err)
	}
	return n, nil
}

// resolve makes a relative asset href absolute against the API base URL.
func (c *Client) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("cds asset href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return href, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("cds base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var e apiError
	if json.Unmarshal(raw, &e) == nil && (e.Title != "" || e.Detail != "") {
		return fmt.Errorf("cds API error: status %d: %s: %s", resp.StatusCode, e.Title, e.Detail)
	}
	return fmt.Errorf("cds API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
}
