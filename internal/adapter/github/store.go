// Package github implements store.Store on the GitHub contents API. A
// repository branch acts as the shared file store; versions are the blob SHAs
// GitHub returns, so overwrites and deletes carry the SHA read beforehand.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/breaker"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

const defaultBaseURL = "https://api.github.com"

// Options configure a Store.
type Options struct {
	Token   string
	Repo    string // owner/name
	Branch  string
	BaseURL string
	Timeout time.Duration
}

// Store talks to one repository branch.
type Store struct {
	token   string
	repo    string
	branch  string
	baseURL string
	client  *breaker.Client
	logger  *slog.Logger
}

// New creates a GitHub-backed store.
func New(opts Options, logger *slog.Logger) *Store {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Store{
		token:   opts.Token,
		repo:    opts.Repo,
		branch:  opts.Branch,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  breaker.New("github", &http.Client{Timeout: opts.Timeout}, "discharge-forecast-service", breaker.Settings{}),
		logger:  logger,
	}
}

// content is one item of the contents API.
type content struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

func (c content) entry() store.Entry {
	return store.Entry{Name: c.Name, Path: c.Path, Version: c.SHA, Size: c.Size, DownloadURL: c.DownloadURL}
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type writeResponse struct {
	Content content `json:"content"`
}

func (s *Store) contentsURL(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/repos/%s/contents/%s", s.baseURL, s.repo, strings.Join(segments, "/"))
}

func (s *Store) List(ctx context.Context, folder string, match func(string) bool) ([]store.Entry, error) {
	u := s.contentsURL(folder) + "?ref=" + url.QueryEscape(s.branch)
	var items []content
	err := s.do(ctx, http.MethodGet, u, nil, &items)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var out []store.Entry
	for _, it := range items {
		if it.Type != "file" || !match(it.Name) {
			continue
		}
		out = append(out, it.entry())
	}
	store.SortDescending(out)
	return out, nil
}

func (s *Store) Stat(ctx context.Context, p string) (store.Entry, error) {
	u := s.contentsURL(p) + "?ref=" + url.QueryEscape(s.branch)
	var it content
	if err := s.do(ctx, http.MethodGet, u, nil, &it); err != nil {
		return store.Entry{}, fmt.Errorf("stat %s: %w", p, err)
	}
	if it.Type != "" && it.Type != "file" {
		return store.Entry{}, fmt.Errorf("stat %s: %w: not a file", p, store.ErrNotFound)
	}
	return it.entry(), nil
}

// Fetch downloads the entry from its download URL, falling back to the raw
// media type of the contents API for entries without one.
func (s *Store) Fetch(ctx context.Context, e store.Entry) ([]byte, error) {
	u, accept := e.DownloadURL, ""
	if u == "" {
		u = s.contentsURL(e.Path) + "?ref=" + url.QueryEscape(s.branch)
		accept = "application/vnd.github.raw"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, statusError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, p string, data []byte, prevVersion, message string) (store.Entry, error) {
	body := writeRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     prevVersion,
		Branch:  s.branch,
	}
	var out writeResponse
	if err := s.do(ctx, http.MethodPut, s.contentsURL(p), body, &out); err != nil {
		return store.Entry{}, fmt.Errorf("put %s: %w", p, err)
	}
	s.logger.Info("github file written", "path", p, "sha", out.Content.SHA, "bytes", len(data))
	return out.Content.entry(), nil
}

func (s *Store) Delete(ctx context.Context, e store.Entry, message string) error {
	body := writeRequest{Message: message, SHA: e.Version, Branch: s.branch}
	if err := s.do(ctx, http.MethodDelete, s.contentsURL(e.Path), body, nil); err != nil {
		return fmt.Errorf("delete %s: %w", e.Path, err)
	}
	s.logger.Info("github file deleted", "path", e.Path, "sha", e.Version)
	return nil
}

func (s *Store) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "token "+s.token)
	}
}

// do sends a JSON request to the contents API and decodes a JSON reply into out.
func (s *Store) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps a non-2xx contents API reply to the store errors. GitHub
// answers 409 for a stale sha and 422 when a sha is missing or unexpected.
func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, bytes.TrimSpace(msg))
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d: %s", store.ErrConflict, resp.StatusCode, bytes.TrimSpace(msg))
	default:
		return fmt.Errorf("github API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}
