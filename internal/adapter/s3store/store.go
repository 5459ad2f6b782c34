// Package s3store implements store.Store on an S3 bucket. Versions are
// object ETags; overwrites use If-Match and creations If-None-Match so a stale
// or missing version is rejected by S3 itself.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// API is the subset of the S3 client the store uses.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store keeps files under an optional key prefix of one bucket.
type Store struct {
	client API
	bucket string
	prefix string
}

// New creates a Store. Paths map to keys as prefix/path.
func New(client API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Connect builds a Store from the default AWS credential chain. A custom
// endpoint (AWS_ENDPOINT_URL, for MinIO in local dev) switches to path-style
// addressing.
func Connect(ctx context.Context, bucket, prefix string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = os.Getenv("AWS_ENDPOINT_URL") != ""
	})
	return New(client, bucket, prefix), nil
}

func (s *Store) key(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *Store) path(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

func (s *Store) entry(key, etag string, size int64) store.Entry {
	return store.Entry{
		Name:        path.Base(key),
		Path:        s.path(key),
		Version:     etag,
		Size:        size,
		DownloadURL: fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}
}

func (s *Store) List(ctx context.Context, folder string, match func(string) bool) ([]store.Entry, error) {
	prefix := strings.TrimSuffix(s.key(folder), "/")
	if prefix != "" {
		prefix += "/"
	}
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	var out []store.Entry
	for {
		page, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", folder, mapError(err))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || !match(path.Base(key)) {
				continue
			}
			out = append(out, s.entry(key, aws.ToString(obj.ETag), aws.ToInt64(obj.Size)))
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}
	store.SortDescending(out)
	return out, nil
}

func (s *Store) Stat(ctx context.Context, p string) (store.Entry, error) {
	key := s.key(p)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return store.Entry{}, fmt.Errorf("stat %s: %w", p, mapError(err))
	}
	return s.entry(key, aws.ToString(head.ETag), aws.ToInt64(head.ContentLength)), nil
}

func (s *Store) Fetch(ctx context.Context, e store.Entry) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key(e.Path))})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, mapError(err))
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, p string, data []byte, prevVersion, message string) (store.Entry, error) {
	key := s.key(p)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(key)),
		Metadata:      map[string]string{"message": message},
	}
	if prevVersion == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(prevVersion)
	}
	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return store.Entry{}, fmt.Errorf("put %s: %w", p, mapError(err))
	}
	return s.entry(key, aws.ToString(out.ETag), int64(len(data))), nil
}

func (s *Store) Delete(ctx context.Context, e store.Entry, _ string) error {
	if e.Version == "" {
		return fmt.Errorf("delete %s: %w: version required", e.Path, store.ErrConflict)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(s.key(e.Path)),
		IfMatch: aws.String(e.Version),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.Path, mapError(err))
	}
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".nc":
		return "application/x-netcdf"
	case ".grib2":
		return "application/x-grib2"
	default:
		return "application/octet-stream"
	}
}

// mapError translates S3 error codes into the store errors.
func mapError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %s", store.ErrNotFound, apiErr.ErrorMessage())
	case "PreconditionFailed", "ConditionalRequestConflict":
		return fmt.Errorf("%w: %s", store.ErrConflict, apiErr.ErrorCode())
	default:
		return err
	}
}
