// Package localstore implements store.Store on a local directory tree.
// Versions are git blob SHA-1 digests of the content, so a file keeps the
// same identifier it would have in the GitHub backend.
package localstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// Store keeps files under a root directory.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{root: abs}, nil
}

// BlobSHA returns the git blob object id of data.
func BlobSHA(data []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid store path %q", p)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *Store) entry(p string, data []byte) store.Entry {
	full, _ := s.resolve(p)
	return store.Entry{
		Name:        path.Base(p),
		Path:        strings.TrimPrefix(path.Clean("/"+p), "/"),
		Version:     BlobSHA(data),
		Size:        int64(len(data)),
		DownloadURL: (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(),
	}
}

func (s *Store) List(_ context.Context, folder string, match func(string) bool) ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.root
	if clean := strings.TrimPrefix(path.Clean("/"+folder), "/"); clean != "" {
		dir = filepath.Join(s.root, filepath.FromSlash(clean))
	}
	items, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var out []store.Entry
	for _, item := range items {
		if item.IsDir() || !match(item.Name()) {
			continue
		}
		p := path.Join(folder, item.Name())
		data, err := os.ReadFile(filepath.Join(dir, item.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, s.entry(p, data))
	}
	store.SortDescending(out)
	return out, nil
}

func (s *Store) Stat(_ context.Context, p string) (store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read(p)
	if err != nil {
		return store.Entry{}, err
	}
	return s.entry(p, data), nil
}

func (s *Store) Fetch(_ context.Context, e store.Entry) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(e.Path)
}

func (s *Store) Put(_ context.Context, p string, data []byte, prevVersion, _ string) (store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(p)
	if err != nil {
		return store.Entry{}, err
	}
	current, err := s.read(p)
	switch {
	case err == nil:
		if prevVersion != BlobSHA(current) {
			return store.Entry{}, fmt.Errorf("%w: %s", store.ErrConflict, p)
		}
	case errors.Is(err, store.ErrNotFound):
		if prevVersion != "" {
			return store.Entry{}, fmt.Errorf("%w: %s does not exist", store.ErrConflict, p)
		}
	default:
		return store.Entry{}, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return store.Entry{}, fmt.Errorf("create folder for %s: %w", p, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return store.Entry{}, fmt.Errorf("stage %s: %w", p, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return store.Entry{}, fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return store.Entry{}, fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return store.Entry{}, fmt.Errorf("write %s: %w", p, err)
	}
	return s.entry(p, data), nil
}

func (s *Store) Delete(_ context.Context, e store.Entry, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(e.Path)
	if err != nil {
		return err
	}
	if e.Version != BlobSHA(current) {
		return fmt.Errorf("%w: %s", store.ErrConflict, e.Path)
	}
	full, _ := s.resolve(e.Path)
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete %s: %w", e.Path, err)
	}
	return nil
}

func (s *Store) read(p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}
