// Package store defines the shared flat-file store the producer writes grid
// files to and the query service reads them from.
//
// Paths are slash separated and relative to the store root ("download/20251014.nc").
// Every stored file has an opaque version identifier; overwriting or deleting
// a file requires the current identifier, and a missing or stale one is
// rejected with ErrConflict. Callers treat a conflict as fatal for that file
// and never retry it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write or delete carries a missing or
	// stale version identifier.
	ErrConflict = errors.New("version conflict")
)

// Entry describes one stored file.
type Entry struct {
	Name        string
	Path        string
	Version     string
	Size        int64
	DownloadURL string
}

// Store is a flat-file store addressed by slash-separated paths.
type Store interface {
	// List returns the files directly inside folder whose names satisfy match,
	// sorted by name descending. A missing folder yields an empty list.
	List(ctx context.Context, folder string, match func(name string) bool) ([]Entry, error)
	// Stat returns the entry at path or ErrNotFound.
	Stat(ctx context.Context, path string) (Entry, error)
	// Fetch downloads the raw bytes of an entry.
	Fetch(ctx context.Context, e Entry) ([]byte, error)
	// Put writes data to path. prevVersion must be the current version of an
	// existing file, or empty when the file must not exist yet.
	Put(ctx context.Context, path string, data []byte, prevVersion, message string) (Entry, error)
	// Delete removes the entry, which must carry the current version.
	Delete(ctx context.Context, e Entry, message string) error
}

// SortDescending orders entries by name, newest dated name first.
func SortDescending(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name > entries[j].Name })
}

// Join builds a store path from a folder and a file name.
func Join(folder, name string) string {
	return path.Join(folder, name)
}

// Latest returns the newest matching entry in folder, or ErrNotFound when the
// folder holds none.
func Latest(ctx context.Context, s Store, folder string, match func(string) bool) (Entry, error) {
	entries, err := s.List(ctx, folder, match)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: no matching files in %s", ErrNotFound, folder)
	}
	return entries[0], nil
}

// Upsert writes data to path, overwriting an existing file with its current
// version identifier obtained by a prior Stat.
func Upsert(ctx context.Context, s Store, p string, data []byte, message string) (Entry, error) {
	prev := ""
	current, err := s.Stat(ctx, p)
	switch {
	case err == nil:
		prev = current.Version
	case !errors.Is(err, ErrNotFound):
		return Entry{}, fmt.Errorf("stat %s: %w", p, err)
	}
	e, err := s.Put(ctx, p, data, prev, message)
	if err != nil {
		return Entry{}, fmt.Errorf("put %s: %w", p, err)
	}
	return e, nil
}

// Prune deletes the matching files in folder beyond the newest keep. Only the
// planned victims are touched; every delete is attempted and failures are
// joined into the returned error.
func Prune(ctx context.Context, s Store, folder string, match func(string) bool, keep int, logger *slog.Logger) ([]Entry, error) {
	entries, err := s.List(ctx, folder, match)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	byName := make(map[string]Entry, len(entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		byName[e.Name] = e
		names[i] = e.Name
	}

	var removed []Entry
	var errs []error
	for _, name := range domain.PlanRetention(names, keep) {
		e := byName[name]
		if err := s.Delete(ctx, e, "Remove old file "+e.Name); err != nil {
			logger.Error("retention delete failed", "path", e.Path, "error", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", e.Path, err))
			continue
		}
		logger.Info("retention removed file", "path", e.Path, "keep", keep)
		removed = append(removed, e)
	}
	return removed, errors.Join(errs...)
}
