package execjob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/edison/pkg/jobs"
)

// File is the on-disk format of a job definitions file.
//
//	jobs:
//	  - type: reindex
//	    name: Rebuild search index
//	    cron: "0 3 * * *"
//	    max_age: 26h
//	    command: ["/usr/local/bin/reindex", "--all"]
//	mutex_groups:
//	  - name: search
//	    job_types: [reindex, compact]
type File struct {
	Jobs        []Spec            `yaml:"jobs" json:"jobs"`
	MutexGroups []jobs.MutexGroup `yaml:"mutex_groups,omitempty" json:"mutex_groups,omitempty"`
}

// Load reads and validates a definitions file.
//
// The format is determined by extension: .json for JSON, anything else is
// parsed as YAML (a superset of JSON).
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job definitions file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading job definitions: %s", path)
		}
		return nil, fmt.Errorf("failed to read job definitions file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader reads and validates a definitions file from r.
func LoadFromReader(r io.Reader, path string) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read job definitions: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a definitions file. Unknown fields are
// rejected.
func LoadFromBytes(data []byte, path string) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("job definitions file is empty")
	}

	var f File
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("invalid JSON in job definitions: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("invalid YAML in job definitions: %w", err)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every spec, duplicate types, and mutex group references.
func (f *File) Validate() error {
	seen := make(map[string]struct{}, len(f.Jobs))
	known := make([]string, 0, len(f.Jobs))
	for _, s := range f.Jobs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Type]; dup {
			return &jobs.ConfigError{Field: s.Type, Message: "duplicate job type"}
		}
		seen[s.Type] = struct{}{}
		known = append(known, s.Type)
	}
	groups, err := jobs.NewMutexGroups(f.MutexGroups...)
	if err != nil {
		return err
	}
	return groups.ValidateJobTypes(known)
}

// Runnables returns a Command for every spec in file order.
func (f *File) Runnables() ([]jobs.Runnable, error) {
	out := make([]jobs.Runnable, 0, len(f.Jobs))
	for _, s := range f.Jobs {
		c, err := New(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
