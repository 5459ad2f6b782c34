package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
)

func TestInstrumented_RecordsOutcomes(t *testing.T) {
	m := observability.NewMetricsForTesting()
	s := NewInstrumented(newMemStore(), "memory", m)
	ctx := context.Background()

	e, err := s.Put(ctx, "download/a.nc", []byte("a"), "", "Update a.nc")
	require.NoError(t, err)
	_, err = s.Put(ctx, "download/a.nc", []byte("b"), "stale", "Update a.nc")
	require.ErrorIs(t, err, ErrConflict)
	_, err = s.Stat(ctx, "download/missing.nc")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.List(ctx, "download", func(string) bool { return true })
	require.NoError(t, err)
	_, err = s.Fetch(ctx, e)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, e, "Remove a.nc"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRequests.WithLabelValues("memory", "put", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRequests.WithLabelValues("memory", "put", "conflict")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRequests.WithLabelValues("memory", "stat", "not_found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRequests.WithLabelValues("memory", "list", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRequests.WithLabelValues("memory", "fetch", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRequests.WithLabelValues("memory", "delete", "success")), 0)
}
