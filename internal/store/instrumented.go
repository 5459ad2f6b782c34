package store

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
)

// Instrumented records request counts and latency for every operation of the
// wrapped store.
type Instrumented struct {
	next    Store
	backend string
	metrics *observability.Metrics
}

// NewInstrumented wraps s, labelling its metrics with backend.
func NewInstrumented(s Store, backend string, metrics *observability.Metrics) *Instrumented {
	return &Instrumented{next: s, backend: backend, metrics: metrics}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	i.metrics.StoreRequests.WithLabelValues(i.backend, op, outcome).Inc()
	i.metrics.StoreDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) List(ctx context.Context, folder string, match func(string) bool) ([]Entry, error) {
	start := time.Now()
	entries, err := i.next.List(ctx, folder, match)
	i.observe("list", start, err)
	return entries, err
}

func (i *Instrumented) Stat(ctx context.Context, path string) (Entry, error) {
	start := time.Now()
	e, err := i.next.Stat(ctx, path)
	i.observe("stat", start, err)
	return e, err
}

func (i *Instrumented) Fetch(ctx context.Context, e Entry) ([]byte, error) {
	start := time.Now()
	data, err := i.next.Fetch(ctx, e)
	i.observe("fetch", start, err)
	return data, err
}

func (i *Instrumented) Put(ctx context.Context, path string, data []byte, prevVersion, message string) (Entry, error) {
	start := time.Now()
	e, err := i.next.Put(ctx, path, data, prevVersion, message)
	i.observe("put", start, err)
	return e, err
}

func (i *Instrumented) Delete(ctx context.Context, e Entry, message string) error {
	start := time.Now()
	err := i.next.Delete(ctx, e, message)
	i.observe("delete", start, err)
	return err
}
