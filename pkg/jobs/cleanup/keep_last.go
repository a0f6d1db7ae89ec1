package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/edison/pkg/jobs"
)

// KeepLastJobs deletes old stopped jobs so that at most N remain per job type.
//
// The most recent OK job of each type is never deleted. When it is older than
// the N newest it is kept in addition to them. Running jobs are ignored.
//
// Several instances sweeping the same repository may delete more than
// strictly needed.
type KeepLastJobs struct {
	repo   jobs.Repository
	keep   int
	filter string
	opts   options
}

// NewKeepLastJobs creates the strategy. filter is a doublestar glob matched
// against job types ("" or "**" match every type).
func NewKeepLastJobs(repo jobs.Repository, keep int, filter string, opts ...Option) (*KeepLastJobs, error) {
	if keep < 1 {
		return nil, &jobs.ConfigError{Field: "cleanup.keep_last", Message: "number of jobs to keep must be at least 1"}
	}
	if filter != "" && !doublestar.ValidatePattern(filter) {
		return nil, &jobs.ConfigError{Field: "cleanup.keep_last.job_types", Message: fmt.Sprintf("invalid pattern %q", filter)}
	}
	return &KeepLastJobs{repo: repo, keep: keep, filter: filter, opts: newOptions(opts)}, nil
}

// Name implements Strategy.
func (k *KeepLastJobs) Name() string { return "keep-last-jobs" }

func (k *KeepLastJobs) matches(jobType string) bool {
	if k.filter == "" {
		return true
	}
	ok, err := doublestar.Match(k.filter, jobType)
	return err == nil && ok
}

// DoCleanUp implements Strategy.
func (k *KeepLastJobs) DoCleanUp(ctx context.Context) error {
	all, err := k.repo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("keep last jobs: %w", err)
	}

	byType := make(map[string][]*jobs.Record)
	var order []string
	for _, rec := range all {
		if !rec.IsStopped() || !k.matches(rec.JobType) {
			continue
		}
		if _, seen := byType[rec.JobType]; !seen {
			order = append(order, rec.JobType)
		}
		byType[rec.JobType] = append(byType[rec.JobType], rec)
	}

	var errs []error
	deleted := 0
	for _, jobType := range order {
		for _, rec := range k.obsolete(byType[jobType]) {
			if err := k.repo.RemoveIfStopped(ctx, rec.ID); err != nil {
				errs = append(errs, fmt.Errorf("remove job %s: %w", rec.ID, err))
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		k.opts.logger.Info("Removed old jobs", zap.Int("deleted", deleted), zap.Int("keep", k.keep))
	}
	return errors.Join(errs...)
}

// obsolete returns the records of one type to delete.
func (k *KeepLastJobs) obsolete(records []*jobs.Record) []*jobs.Record {
	jobs.SortNewestFirst(records)
	if len(records) <= k.keep {
		return nil
	}

	var out []*jobs.Record
	protected := false
	for i, rec := range records {
		if rec.Status == jobs.StatusOK && !protected {
			// last known good
			protected = true
			continue
		}
		if i < k.keep {
			continue
		}
		out = append(out, rec)
	}
	return out
}
