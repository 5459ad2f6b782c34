package github

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

const (
	testRepo  = "acme/grids"
	testToken = "ghp_test"
)

// fakeGitHub serves a minimal contents API over an in-memory tree.
type fakeGitHub struct {
	t     *testing.T
	mu    sync.Mutex
	files map[string][]byte
	srv   *httptest.Server
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{t: t, files: map[string][]byte{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func sha(data []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (f *fakeGitHub) item(p string) content {
	return content{
		Type:        "file",
		Name:        path.Base(p),
		Path:        p,
		SHA:         sha(f.files[p]),
		Size:        int64(len(f.files[p])),
		DownloadURL: f.srv.URL + "/raw/" + p,
	}
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "token "+testToken {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		return
	}
	if p, ok := strings.CutPrefix(r.URL.Path, "/raw/"); ok {
		data, exists := f.files[p]
		if !exists {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}

	p, ok := strings.CutPrefix(r.URL.Path, "/repos/"+testRepo+"/contents/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		assert.Equal(f.t, "main", r.URL.Query().Get("ref"))
		if _, exists := f.files[p]; exists {
			_ = json.NewEncoder(w).Encode(f.item(p))
			return
		}
		var list []content
		for name := range f.files {
			if path.Dir(name) == p {
				list = append(list, f.item(name))
			}
		}
		if list == nil {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		list = append(list, content{Type: "dir", Name: "nested", Path: p + "/nested"})
		_ = json.NewEncoder(w).Encode(list)
	case http.MethodPut:
		var req writeRequest
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(f.t, "main", req.Branch)
		current, exists := f.files[p]
		switch {
		case exists && req.SHA == "":
			http.Error(w, `{"message":"\"sha\" wasn't supplied."}`, http.StatusUnprocessableEntity)
			return
		case exists && req.SHA != sha(current):
			http.Error(w, `{"message":"does not match"}`, http.StatusConflict)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if !assert.NoError(f.t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.files[p] = data
		status := http.StatusOK
		if !exists {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(writeResponse{Content: f.item(p)})
	case http.MethodDelete:
		var req writeRequest
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current, exists := f.files[p]
		if !exists {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		if req.SHA != sha(current) {
			http.Error(w, `{"message":"does not match"}`, http.StatusConflict)
			return
		}
		delete(f.files, p)
		_, _ = io.WriteString(w, `{"commit":{}}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(f *fakeGitHub) *Store {
	return New(Options{Token: testToken, Repo: testRepo, Branch: "main", BaseURL: f.srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStore_PutStatFetch(t *testing.T) {
	f := newFakeGitHub(t)
	s := newTestStore(f)
	ctx := context.Background()

	e, err := s.Put(ctx, "download/20251014.nc", []byte("grid"), "", "Update 20251014.nc")
	require.NoError(t, err)
	assert.Equal(t, "20251014.nc", e.Name)
	assert.Equal(t, sha([]byte("grid")), e.Version)

	got, err := s.Stat(ctx, "download/20251014.nc")
	require.NoError(t, err)
	assert.Equal(t, e.Version, got.Version)

	data, err := s.Fetch(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, []byte("grid"), data)
}

func TestStore_FetchWithoutDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
		assert.Equal(t, "token "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "/repos/"+testRepo+"/contents/download/a.nc", r.URL.Path)
		_, _ = w.Write([]byte("raw"))
	}))
	defer srv.Close()
	s := New(Options{Token: testToken, Repo: testRepo, BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	data, err := s.Fetch(context.Background(), store.Entry{Path: "download/a.nc"})
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)
}

func TestStore_List(t *testing.T) {
	f := newFakeGitHub(t)
	f.files["download/20251012.nc"] = []byte("a")
	f.files["download/20251014.nc"] = []byte("b")
	f.files["download/20251013.nc"] = []byte("c")
	f.files["download/README.md"] = []byte("d")
	s := newTestStore(f)

	entries, err := s.List(context.Background(), "download", domain.HasExtension(".nc"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "20251014.nc", entries[0].Name)
	assert.Equal(t, "20251012.nc", entries[2].Name)
}

func TestStore_ListMissingFolder(t *testing.T) {
	f := newFakeGitHub(t)
	s := newTestStore(f)

	entries, err := s.List(context.Background(), "download", domain.HasExtension(".nc"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_StatNotFound(t *testing.T) {
	f := newFakeGitHub(t)
	s := newTestStore(f)

	_, err := s.Stat(context.Background(), "download/none.nc")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_Conflicts(t *testing.T) {
	f := newFakeGitHub(t)
	f.files["download/a.nc"] = []byte("old")
	s := newTestStore(f)
	ctx := context.Background()

	_, err := s.Put(ctx, "download/a.nc", []byte("new"), "", "Update a.nc")
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Put(ctx, "download/a.nc", []byte("new"), sha([]byte("stale")), "Update a.nc")
	require.ErrorIs(t, err, store.ErrConflict)

	err = s.Delete(ctx, store.Entry{Path: "download/a.nc", Version: "deadbeef"}, "Remove a.nc")
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, []byte("old"), f.files["download/a.nc"])
}

func TestStore_UpsertAndPrune(t *testing.T) {
	f := newFakeGitHub(t)
	for _, day := range []string{"09", "10", "11", "12", "13", "14"} {
		f.files["download/202510"+day+".nc"] = []byte(day)
	}
	s := newTestStore(f)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := store.Upsert(ctx, s, "download/20251014.nc", []byte("fresh"), "Update 20251014.nc")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), f.files["download/20251014.nc"])

	removed, err := store.Prune(ctx, s, "download", domain.HasExtension(".nc"), 5, logger)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "20251009.nc", removed[0].Name)
	assert.Len(t, f.files, 5)
}

func TestStore_Unauthorized(t *testing.T) {
	f := newFakeGitHub(t)
	s := New(Options{Token: "wrong", Repo: testRepo, BaseURL: f.srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := s.Stat(context.Background(), "download/a.nc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
