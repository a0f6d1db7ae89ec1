package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/edison/pkg/status"
)

// StatusDetailIndicator derives a status detail from the latest job of a
// type.
//
//   - no job yet: OK
//   - latest job OK and running, or stopped within maxAge: OK
//   - latest job OK but stopped longer ago than maxAge: WARNING ("too old")
//   - latest job ERROR or DEAD: WARNING
//
// A maxAge of zero disables the age check.
type StatusDetailIndicator struct {
	repo    Repository
	name    string
	jobType string
	maxAge  time.Duration
	clock   Clock
}

// NewStatusDetailIndicator creates an indicator for jobType.
func NewStatusDetailIndicator(repo Repository, name, jobType string, maxAge time.Duration) *StatusDetailIndicator {
	return &StatusDetailIndicator{
		repo:    repo,
		name:    name,
		jobType: jobType,
		maxAge:  maxAge,
		clock:   systemClock,
	}
}

// WithClock returns the indicator using clock for age checks.
func (i *StatusDetailIndicator) WithClock(clock Clock) *StatusDetailIndicator {
	if clock != nil {
		i.clock = clock
	}
	return i
}

// StatusDetails implements status.Indicator.
func (i *StatusDetailIndicator) StatusDetails(ctx context.Context) []status.Detail {
	latest, err := i.repo.FindLatestBy(ctx, i.jobType, 1)
	if err != nil {
		return []status.Detail{{
			Name:    i.name,
			Status:  status.Error,
			Message: fmt.Sprintf("Failed to load latest %s job: %v", i.jobType, err),
		}}
	}
	if len(latest) == 0 {
		return []status.Detail{{
			Name:    i.name,
			Status:  status.OK,
			Message: "No job run yet",
		}}
	}
	return []status.Detail{i.detailFor(latest[0])}
}

func (i *StatusDetailIndicator) detailFor(rec *Record) status.Detail {
	d := status.Detail{Name: i.name}.
		WithAttribute("uri", rec.URI).
		WithAttribute("started", rec.Started.UTC().Format(time.RFC3339))
	if rec.Stopped != nil {
		d = d.WithAttribute("stopped", rec.Stopped.UTC().Format(time.RFC3339))
	} else {
		d = d.WithAttribute("running", "true")
	}

	switch {
	case rec.Status != StatusOK:
		d.Status = status.Warning
		d.Message = fmt.Sprintf("Last %s job finished with status %s", i.jobType, rec.Status)
	case rec.Stopped == nil:
		d.Status = status.OK
		d.Message = "Job is running"
	case i.maxAge > 0 && i.clock().Sub(*rec.Stopped) > i.maxAge:
		d.Status = status.Warning
		d.Message = fmt.Sprintf("Job too old: last run stopped %s ago, max age is %s",
			i.clock().Sub(*rec.Stopped).Round(time.Second), i.maxAge)
	default:
		d.Status = status.OK
		d.Message = "Last job was successful"
	}
	return d
}
