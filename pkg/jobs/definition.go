package jobs

import (
	"strings"
	"time"
)

// Definition is static metadata about a job type.
type Definition struct {
	Type        string        `json:"type" yaml:"type"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	FixedDelay  time.Duration `json:"fixed_delay,omitempty" yaml:"fixed_delay,omitempty"`
	Cron        string        `json:"cron,omitempty" yaml:"cron,omitempty"`
	MaxAge      time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	Retries     int           `json:"retries,omitempty" yaml:"retries,omitempty"`
	RetryDelay  time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate checks that required fields are present and consistent.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return &ConfigError{Field: "type", Message: "job type is required"}
	}
	if strings.TrimSpace(d.Name) == "" {
		return &ConfigError{Field: d.Type + ".name", Message: "job name is required"}
	}
	if d.FixedDelay != 0 && strings.TrimSpace(d.Cron) != "" {
		return &ConfigError{Field: d.Type + ".schedule", Message: "fixed_delay and cron are mutually exclusive"}
	}
	if d.FixedDelay < 0 || d.MaxAge < 0 || d.RetryDelay < 0 || d.Timeout < 0 {
		return &ConfigError{Field: d.Type, Message: "durations must not be negative"}
	}
	if d.Retries < 0 {
		return &ConfigError{Field: d.Type + ".retries", Message: "retries must not be negative"}
	}
	return nil
}

// Scheduled reports whether the definition declares a trigger schedule.
func (d Definition) Scheduled() bool {
	return d.FixedDelay > 0 || strings.TrimSpace(d.Cron) != ""
}

// Schedule returns the trigger schedule as a cron spec, using the "@every"
// descriptor for fixed delays. It is empty for manually triggered jobs.
func (d Definition) Schedule() string {
	if c := strings.TrimSpace(d.Cron); c != "" {
		return c
	}
	if d.FixedDelay > 0 {
		return "@every " + d.FixedDelay.String()
	}
	return ""
}
