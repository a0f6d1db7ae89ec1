package jobstore

import "fmt"

// Backend identifies a repository implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMongo  Backend = "mongo"
	BackendS3     Backend = "s3"
)

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}

// StoreError wraps backend errors with context.
type StoreError struct {
	// Op is the repository operation that failed (e.g., "FindOne").
	Op string

	// Backend is the repository backend.
	Backend Backend

	// ID is the job id, if applicable.
	ID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}
