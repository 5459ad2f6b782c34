package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

// memStore is an in-memory Store with the same version rules as the real
// backends.
type memStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	deletes []string
	failDel map[string]bool
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, failDel: map[string]bool{}}
}

func version(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (m *memStore) entry(p string) Entry {
	return Entry{Name: path.Base(p), Path: p, Version: version(m.files[p]), Size: int64(len(m.files[p]))}
}

func (m *memStore) List(_ context.Context, folder string, match func(string) bool) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for p := range m.files {
		if path.Dir(p) == folder && match(path.Base(p)) {
			out = append(out, m.entry(p))
		}
	}
	SortDescending(out)
	return out, nil
}

func (m *memStore) Stat(_ context.Context, p string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return Entry{}, ErrNotFound
	}
	return m.entry(p), nil
}

func (m *memStore) Fetch(_ context.Context, e Entry) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[e.Path]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *memStore) Put(_ context.Context, p string, data []byte, prev, _ string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.files[p]
	if (exists && prev != version(current)) || (!exists && prev != "") {
		return Entry{}, ErrConflict
	}
	m.files[p] = data
	return m.entry(p), nil
}

func (m *memStore) Delete(_ context.Context, e Entry, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel[e.Path] {
		return errors.New("boom")
	}
	current, exists := m.files[e.Path]
	if !exists {
		return ErrNotFound
	}
	if e.Version != version(current) {
		return ErrConflict
	}
	delete(m.files, e.Path)
	m.deletes = append(m.deletes, e.Path)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	first, err := Upsert(ctx, s, "download/20251014.nc", []byte("v1"), "Upload file")
	require.NoError(t, err)
	assert.Equal(t, "20251014.nc", first.Name)

	second, err := Upsert(ctx, s, "download/20251014.nc", []byte("v2"), "Upload file")
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)
	assert.Equal(t, []byte("v2"), s.files["download/20251014.nc"])
}

func TestPutWithStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	e, err := s.Put(ctx, "a.nc", []byte("1"), "", "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "a.nc", []byte("2"), e.Version, "")
	require.NoError(t, err)

	_, err = s.Put(ctx, "a.nc", []byte("3"), e.Version, "")
	require.ErrorIs(t, err, ErrConflict)
	_, err = s.Put(ctx, "a.nc", []byte("3"), "", "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	_, err := Latest(ctx, s, "download", domain.HasExtension(".nc"))
	require.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"20251012.nc", "20251014.nc", "20251013.nc", "notes.txt"} {
		_, err := s.Put(ctx, "download/"+name, []byte(name), "", "")
		require.NoError(t, err)
	}
	e, err := Latest(ctx, s, "download", domain.HasExtension(".nc"))
	require.NoError(t, err)
	assert.Equal(t, "download/20251014.nc", e.Path)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()

	t.Run("six files cap five removes only the oldest", func(t *testing.T) {
		s := newMemStore()
		for _, day := range []string{"09", "10", "11", "12", "13", "14"} {
			_, err := s.Put(ctx, "download/202510"+day+".nc", []byte(day), "", "")
			require.NoError(t, err)
		}
		_, err := s.Put(ctx, "download/readme.md", []byte("x"), "", "")
		require.NoError(t, err)

		removed, err := Prune(ctx, s, "download", domain.HasExtension(".nc"), 5, discardLogger())
		require.NoError(t, err)
		require.Len(t, removed, 1)
		assert.Equal(t, "download/20251009.nc", removed[0].Path)
		assert.Equal(t, []string{"download/20251009.nc"}, s.deletes)
		assert.Len(t, s.files, 6)
	})

	t.Run("delete failures are reported, others still removed", func(t *testing.T) {
		s := newMemStore()
		for _, day := range []string{"10", "11", "12", "13"} {
			_, err := s.Put(ctx, "download/202510"+day+".nc", []byte(day), "", "")
			require.NoError(t, err)
		}
		s.failDel["download/20251010.nc"] = true

		removed, err := Prune(ctx, s, "download", domain.HasExtension(".nc"), 2, discardLogger())
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "20251010.nc"))
		require.Len(t, removed, 1)
		assert.Equal(t, "download/20251011.nc", removed[0].Path)
	})
}
