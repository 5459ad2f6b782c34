package s3store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// fakeS3 is an in-memory bucket honouring If-Match and If-None-Match.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	lastPut  *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, pageSize: 1000}
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		rest, ok := strings.CutPrefix(k, prefix)
		if ok && !strings.Contains(rest, "/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		_, _ = fmt.Sscanf(tok, "%d", &start)
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(fmt.Sprint(end))
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			ETag: aws.String(etag(f.objects[k])),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	return out, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, apiError("NotFound")
	}
	return &s3.HeadObjectOutput{ETag: aws.String(etag(data)), ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, apiError("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPut = in
	key := aws.ToString(in.Key)
	current, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, apiError("PreconditionFailed")
	}
	if in.IfMatch != nil && (!exists || aws.ToString(in.IfMatch) != etag(current)) {
		return nil, apiError("PreconditionFailed")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{ETag: aws.String(etag(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	current, exists := f.objects[key]
	if !exists {
		return nil, apiError("NoSuchKey")
	}
	if in.IfMatch != nil && aws.ToString(in.IfMatch) != etag(current) {
		return nil, apiError("PreconditionFailed")
	}
	delete(f.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestStore_PutStatFetch(t *testing.T) {
	f := newFakeS3()
	s := New(f, "grids", "/prod/")
	ctx := context.Background()

	e, err := s.Put(ctx, "download/20251014.nc", []byte("grid"), "", "Update 20251014.nc")
	require.NoError(t, err)
	assert.Equal(t, "download/20251014.nc", e.Path)
	assert.Equal(t, "s3://grids/prod/download/20251014.nc", e.DownloadURL)
	assert.Equal(t, "*", aws.ToString(f.lastPut.IfNoneMatch))
	assert.Equal(t, "application/x-netcdf", aws.ToString(f.lastPut.ContentType))
	assert.Contains(t, f.objects, "prod/download/20251014.nc")

	got, err := s.Stat(ctx, "download/20251014.nc")
	require.NoError(t, err)
	assert.Equal(t, e.Version, got.Version)
	assert.Equal(t, int64(4), got.Size)

	data, err := s.Fetch(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, []byte("grid"), data)
}

func TestStore_ListPaginates(t *testing.T) {
	f := newFakeS3()
	f.pageSize = 2
	for _, name := range []string{"20251010.nc", "20251011.nc", "20251012.nc", "notes.txt"} {
		f.objects["download/"+name] = []byte(name)
	}
	f.objects["download/old/20240101.nc"] = []byte("nested")
	s := New(f, "grids", "")

	entries, err := s.List(context.Background(), "download", domain.HasExtension(".nc"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "20251012.nc", entries[0].Name)
	assert.Equal(t, "download/20251010.nc", entries[2].Path)
}

func TestStore_ListMissingFolder(t *testing.T) {
	s := New(newFakeS3(), "grids", "")
	entries, err := s.List(context.Background(), "download", domain.HasExtension(".nc"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_VersionChecks(t *testing.T) {
	f := newFakeS3()
	f.objects["download/a.nc"] = []byte("old")
	s := New(f, "grids", "")
	ctx := context.Background()

	_, err := s.Put(ctx, "download/a.nc", []byte("new"), "", "Update a.nc")
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = s.Put(ctx, "download/a.nc", []byte("new"), etag([]byte("stale")), "Update a.nc")
	require.ErrorIs(t, err, store.ErrConflict)
	require.ErrorIs(t, s.Delete(ctx, store.Entry{Path: "download/a.nc"}, "Remove a.nc"), store.ErrConflict)
	require.ErrorIs(t, s.Delete(ctx, store.Entry{Path: "download/a.nc", Version: `"x"`}, "Remove a.nc"), store.ErrConflict)

	_, err = s.Stat(ctx, "download/b.nc")
	require.ErrorIs(t, err, store.ErrNotFound)

	e, err := store.Upsert(ctx, s, "download/a.nc", []byte("new"), "Update a.nc")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), f.objects["download/a.nc"])
	require.NoError(t, s.Delete(ctx, e, "Remove a.nc"))
	assert.NotContains(t, f.objects, "download/a.nc")
}

func TestMapError_PassesOtherErrors(t *testing.T) {
	err := mapError(apiError("AccessDenied"))
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrConflict)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-netcdf", contentType("download/a.nc"))
	assert.Equal(t, "application/x-grib2", contentType("meteo/14102025P12.grib2"))
	assert.Equal(t, "application/octet-stream", contentType("notes.txt"))
}
