package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/edison/internal/config"
	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore"
	"github.com/3leaps/edison/pkg/jobstore/file"
	"github.com/3leaps/edison/pkg/jobstore/memory"
	"github.com/3leaps/edison/pkg/jobstore/mongo"
	"github.com/3leaps/edison/pkg/jobstore/s3"
	"github.com/3leaps/edison/pkg/jobstore/sqlite"
)

// CloseFunc releases a backend's resources.
type CloseFunc func(ctx context.Context) error

func noClose(context.Context) error { return nil }

// OpenRepository opens the configured job repository backend.
func OpenRepository(ctx context.Context, cfg config.RepositoryConfig) (jobs.Repository, CloseFunc, error) {
	switch jobstore.Backend(strings.ToLower(strings.TrimSpace(cfg.Kind))) {
	case jobstore.BackendMemory:
		return memory.New(), noClose, nil

	case jobstore.BackendFile:
		return file.New(cfg.Path), noClose, nil

	case jobstore.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil

	case jobstore.BackendMongo:
		store, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case jobstore.BackendS3:
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return store, noClose, nil

	default:
		return nil, nil, fmt.Errorf("unknown repository kind %q", cfg.Kind)
	}
}
