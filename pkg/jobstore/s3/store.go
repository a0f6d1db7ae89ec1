package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ jobs.Repository = (*Store)(nil)

// Store persists each job record as <prefix>/<job_id>.json.
//
// Listings read every object under the prefix, so this backend suits
// services that keep their job history short (see cleanup.KeepLastJobs).
type Store struct {
	client API
	bucket string
	prefix string
}

// New creates a Store with an S3 client built from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &jobstore.StoreError{Op: "New", Backend: jobstore.BackendS3, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates a Store on an existing client.
func NewWithClient(client API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) key(id string) string {
	if s.prefix == "" {
		return id + ".json"
	}
	return s.prefix + "/" + id + ".json"
}

func (s *Store) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *Store) CreateOrUpdate(ctx context.Context, record *jobs.Record) error {
	if record == nil || record.ID == "" || strings.Contains(record.ID, "/") {
		return fmt.Errorf("job record with a valid id is required")
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(record.ID)),
		Body:          bytes.NewReader(b),
		ContentLength: aws.Int64(int64(len(b))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return s.wrapError("CreateOrUpdate", record.ID, err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, id string) (*jobs.Record, error) {
	return s.get(ctx, s.key(id), id)
}

func (s *Store) get(ctx context.Context, key, id string) (*jobs.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError("FindOne", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.wrapError("FindOne", id, err)
	}
	var rec jobs.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, s.wrapError("FindOne", id, fmt.Errorf("parse job record: %w", err))
	}
	return &rec, nil
}

func (s *Store) FindAll(ctx context.Context) ([]*jobs.Record, error) {
	return s.list(ctx, func(*jobs.Record) bool { return true })
}

func (s *Store) FindByType(ctx context.Context, jobType string) ([]*jobs.Record, error) {
	return s.list(ctx, func(r *jobs.Record) bool { return r.JobType == jobType })
}

func (s *Store) FindLatest(ctx context.Context, n int) ([]*jobs.Record, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.Limit(all, n), nil
}

func (s *Store) FindLatestBy(ctx context.Context, jobType string, n int) ([]*jobs.Record, error) {
	byType, err := s.FindByType(ctx, jobType)
	if err != nil {
		return nil, err
	}
	return jobs.Limit(byType, n), nil
}

func (s *Store) FindRunning(ctx context.Context) ([]*jobs.Record, error) {
	return s.list(ctx, func(r *jobs.Record) bool { return !r.IsStopped() })
}

func (s *Store) RemoveIfStopped(ctx context.Context, id string) error {
	rec, err := s.FindOne(ctx, id)
	if err != nil {
		if jobs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !rec.IsStopped() {
		return nil
	}
	return s.delete(ctx, id)
}

func (s *Store) DeleteAll(ctx context.Context) error {
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.delete(ctx, idFromKey(key)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return s.wrapError("Delete", id, err)
	}
	return nil
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.listPrefix()),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError("List", "", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rest := strings.TrimPrefix(key, s.listPrefix())
			// Only direct children named <id>.json are job records.
			if strings.Contains(rest, "/") || !strings.HasSuffix(rest, ".json") {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Store) list(ctx context.Context, keep func(*jobs.Record) bool) ([]*jobs.Record, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*jobs.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.get(ctx, key, idFromKey(key))
		if err != nil {
			if jobs.IsNotFound(err) {
				// Deleted between list and get.
				continue
			}
			return nil, err
		}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	jobs.SortNewestFirst(out)
	return out, nil
}

func idFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), ".json")
}

// wrapError converts S3 errors to store errors; missing objects become
// jobs.ErrJobNotFound.
func (s *Store) wrapError(op, id string, err error) error {
	wrapped := &jobstore.StoreError{Op: op, Backend: jobstore.BackendS3, ID: id, Err: err}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		wrapped.Err = jobs.ErrJobNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = jobs.ErrJobNotFound
		}
	}
	return wrapped
}
