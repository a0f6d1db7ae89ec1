package jobs

import (
	"fmt"
	"strings"
)

// MutexGroup names a set of job types that must not run concurrently.
type MutexGroup struct {
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	JobTypes []string `json:"job_types" yaml:"job_types" mapstructure:"job_types"`
}

// Contains reports whether jobType belongs to the group.
func (g MutexGroup) Contains(jobType string) bool {
	for _, t := range g.JobTypes {
		if t == jobType {
			return true
		}
	}
	return false
}

// Validate checks the group is named and lists at least two distinct types.
func (g MutexGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return &ConfigError{Field: "mutex_groups.name", Message: "mutex group name is required"}
	}
	seen := make(map[string]struct{}, len(g.JobTypes))
	for _, t := range g.JobTypes {
		if strings.TrimSpace(t) == "" {
			return &ConfigError{Field: "mutex_groups." + g.Name, Message: "job type must not be empty"}
		}
		seen[t] = struct{}{}
	}
	if len(seen) < 2 {
		return &ConfigError{Field: "mutex_groups." + g.Name, Message: "mutex group needs at least two distinct job types"}
	}
	return nil
}

// MutexGroups is a validated set of mutex groups.
type MutexGroups []MutexGroup

// NewMutexGroups validates every group and rejects duplicate names.
func NewMutexGroups(groups ...MutexGroup) (MutexGroups, error) {
	names := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := names[g.Name]; dup {
			return nil, &ConfigError{Field: "mutex_groups." + g.Name, Message: "duplicate mutex group name"}
		}
		names[g.Name] = struct{}{}
	}
	return MutexGroups(groups), nil
}

// ValidateJobTypes fails if a group references a job type not in known.
func (gs MutexGroups) ValidateJobTypes(known []string) error {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	for _, g := range gs {
		for _, t := range g.JobTypes {
			if _, ok := set[t]; !ok {
				return &ConfigError{
					Field:   "mutex_groups." + g.Name,
					Message: fmt.Sprintf("unknown job type %q", t),
				}
			}
		}
	}
	return nil
}

// GroupsFor returns the groups containing jobType.
func (gs MutexGroups) GroupsFor(jobType string) []MutexGroup {
	var out []MutexGroup
	for _, g := range gs {
		if g.Contains(jobType) {
			out = append(out, g)
		}
	}
	return out
}

// Blocking returns the first running record of another type that shares a
// mutex group with jobType.
//
// The check is advisory: running is a snapshot read from the repository.
func (gs MutexGroups) Blocking(jobType string, running []*Record) (MutexGroup, *Record, bool) {
	for _, g := range gs.GroupsFor(jobType) {
		for _, r := range running {
			if r == nil || r.IsStopped() || r.JobType == jobType {
				continue
			}
			if g.Contains(r.JobType) {
				return g, r, true
			}
		}
	}
	return MutexGroup{}, nil, false
}
