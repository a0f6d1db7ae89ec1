// Package status models health signals contributed by subsystems and their
// aggregation into one application status.
//
// A subsystem contributes by implementing Indicator. Composition is plain
// function application: Aggregate collects the details of every indicator and
// derives the overall level as the worst level seen.
package status

import (
	"context"
	"time"
)

// Level is the severity of a status detail.
//
// NOTE: These values are rendered in JSON status documents and are part of the
// stable wire contract.
type Level string

const (
	OK      Level = "OK"
	Warning Level = "WARNING"
	Error   Level = "ERROR"
)

func (l Level) severity() int {
	switch l {
	case OK:
		return 0
	case Warning:
		return 1
	case Error:
		return 2
	default:
		// Unknown levels are treated as errors so they are never hidden.
		return 2
	}
}

// Worst returns the most severe of the given levels. No levels yields OK.
func Worst(levels ...Level) Level {
	worst := OK
	for _, l := range levels {
		if l.severity() > worst.severity() {
			worst = l
		}
	}
	return worst
}

// Detail is a named health signal contributed by one subsystem.
type Detail struct {
	Name       string            `json:"name"`
	Status     Level             `json:"status"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// WithAttribute returns a copy of d with key set to value.
func (d Detail) WithAttribute(key, value string) Detail {
	attrs := make(map[string]string, len(d.Attributes)+1)
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	d.Attributes = attrs
	return d
}

// Indicator is implemented by anything that reports status details.
type Indicator interface {
	StatusDetails(ctx context.Context) []Detail
}

// IndicatorFunc adapts a function to the Indicator interface.
type IndicatorFunc func(ctx context.Context) []Detail

// StatusDetails calls f(ctx).
func (f IndicatorFunc) StatusDetails(ctx context.Context) []Detail {
	return f(ctx)
}

// Snapshot is an immutable view of the aggregated application status.
type Snapshot struct {
	Status    Level     `json:"status"`
	Details   []Detail  `json:"details"`
	CheckedAt time.Time `json:"checked_at"`
}

// Aggregate queries every indicator in order and derives the overall status.
func Aggregate(ctx context.Context, indicators ...Indicator) Snapshot {
	details := make([]Detail, 0, len(indicators))
	for _, ind := range indicators {
		if ind == nil {
			continue
		}
		details = append(details, ind.StatusDetails(ctx)...)
	}

	levels := make([]Level, 0, len(details))
	for _, d := range details {
		levels = append(levels, d.Status)
	}

	return Snapshot{
		Status:    Worst(levels...),
		Details:   details,
		CheckedAt: time.Now().UTC(),
	}
}
