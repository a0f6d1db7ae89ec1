package jobs

import "context"

// Repository persists job records.
//
// Implementations should:
//   - Be safe for concurrent use across different job ids
//   - Provide read-after-write consistency for a single record
//   - Return copies, so mutating a returned record never changes stored state
//   - Return listings newest first (see SortNewestFirst)
type Repository interface {
	// CreateOrUpdate stores the record, replacing any record with the same ID.
	CreateOrUpdate(ctx context.Context, record *Record) error

	// FindOne returns the record with the given id, or ErrJobNotFound.
	FindOne(ctx context.Context, id string) (*Record, error)

	// FindAll returns every record.
	FindAll(ctx context.Context) ([]*Record, error)

	// FindByType returns every record of the given job type.
	FindByType(ctx context.Context, jobType string) ([]*Record, error)

	// FindLatest returns the n most recently started records of any type.
	FindLatest(ctx context.Context, n int) ([]*Record, error)

	// FindLatestBy returns the n most recently started records of a type.
	FindLatestBy(ctx context.Context, jobType string, n int) ([]*Record, error)

	// FindRunning returns every record without a stopped timestamp.
	FindRunning(ctx context.Context) ([]*Record, error)

	// RemoveIfStopped deletes the record if it is stopped. Removing a missing
	// or running record is a no-op.
	RemoveIfStopped(ctx context.Context, id string) error

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
}
