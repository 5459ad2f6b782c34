package domain

import "time"

// Kinds of published grid files.
const (
	KindSummary = "summary"
	KindClipped = "clipped"
	KindMeteo   = "meteo"
)

// GridPublished announces a file written to the shared store.
type GridPublished struct {
	Kind          string    `json:"kind"`
	Path          string    `json:"path"`
	Version       string    `json:"version"`
	ReferenceDate string    `json:"reference_date"`
	Variables     []string  `json:"variables,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
}

// NewGridPublished stamps a notification with the current time.
func NewGridPublished(kind, path, version string, reference time.Time, variables []string) GridPublished {
	return GridPublished{
		Kind:          kind,
		Path:          path,
		Version:       version,
		ReferenceDate: reference.UTC().Format(time.DateOnly),
		Variables:     variables,
		PublishedAt:   clock.Now().UTC(),
	}
}
