// Package config loads service configuration from defaults, an optional
// YAML file, EDISON_* environment variables and runtime overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore"
	s3store "github.com/3leaps/edison/pkg/jobstore/s3"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Status  StatusConfig  `mapstructure:"status"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TriggerRate limits job trigger requests per second; TriggerBurst is
	// the bucket size. A rate of 0 disables limiting.
	TriggerRate  float64 `mapstructure:"trigger_rate"`
	TriggerBurst int     `mapstructure:"trigger_burst"`
}

// LoggingConfig configures the service logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// JobsConfig configures the job subsystem.
type JobsConfig struct {
	URIBase           string            `mapstructure:"uri_base"`
	Repository        RepositoryConfig  `mapstructure:"repository"`
	DefinitionsFile   string            `mapstructure:"definitions_file"`
	HeartbeatInterval time.Duration     `mapstructure:"heartbeat_interval"`
	MaxConcurrent     int               `mapstructure:"max_concurrent"`
	MutexGroups       []jobs.MutexGroup `mapstructure:"mutex_groups"`
	Cleanup           CleanupConfig     `mapstructure:"cleanup"`
}

// RepositoryConfig selects and configures the job repository backend.
type RepositoryConfig struct {
	// Kind is one of memory, file, sqlite, mongo, s3.
	Kind string `mapstructure:"kind"`

	// Path is the root directory (file) or database file (sqlite).
	Path string `mapstructure:"path"`

	Mongo MongoConfig    `mapstructure:"mongo"`
	S3    s3store.Config `mapstructure:"s3"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// CleanupConfig configures the periodic repository sweeps.
type CleanupConfig struct {
	KeepLast KeepLastConfig `mapstructure:"keep_last"`
	StopDead StopDeadConfig `mapstructure:"stop_dead"`
}

// KeepLastConfig configures cleanup.KeepLastJobs.
type KeepLastConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Count    int    `mapstructure:"count"`
	JobTypes string `mapstructure:"job_types"`
	Schedule string `mapstructure:"schedule"`
}

// StopDeadConfig configures cleanup.StopDeadJobs.
type StopDeadConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Schedule string        `mapstructure:"schedule"`
}

// StatusConfig configures the cached status aggregate.
type StatusConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

var repositoryKinds = []jobstore.Backend{
	jobstore.BackendMemory,
	jobstore.BackendFile,
	jobstore.BackendSQLite,
	jobstore.BackendMongo,
	jobstore.BackendS3,
}

// Validate checks values that would otherwise fail later at wiring time.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &jobs.ConfigError{Field: "server.port", Message: fmt.Sprintf("port %d out of range", c.Server.Port)}
	}
	if c.Server.TriggerRate < 0 || c.Server.TriggerBurst < 0 {
		return &jobs.ConfigError{Field: "server.trigger_rate", Message: "rate and burst must not be negative"}
	}

	kind := strings.ToLower(strings.TrimSpace(c.Jobs.Repository.Kind))
	known := false
	for _, k := range repositoryKinds {
		if kind == k.String() {
			known = true
			break
		}
	}
	if !known {
		return &jobs.ConfigError{Field: "jobs.repository.kind", Message: fmt.Sprintf("unknown repository kind %q", c.Jobs.Repository.Kind)}
	}
	switch jobstore.Backend(kind) {
	case jobstore.BackendFile, jobstore.BackendSQLite:
		if strings.TrimSpace(c.Jobs.Repository.Path) == "" {
			return &jobs.ConfigError{Field: "jobs.repository.path", Message: "path is required for " + kind}
		}
	case jobstore.BackendMongo:
		if c.Jobs.Repository.Mongo.URI == "" {
			return &jobs.ConfigError{Field: "jobs.repository.mongo.uri", Message: "uri is required"}
		}
	case jobstore.BackendS3:
		if err := c.Jobs.Repository.S3.Validate(); err != nil {
			return err
		}
	}

	if c.Jobs.MaxConcurrent < 0 {
		return &jobs.ConfigError{Field: "jobs.max_concurrent", Message: "must not be negative"}
	}
	if c.Jobs.Cleanup.KeepLast.Enabled && c.Jobs.Cleanup.KeepLast.Count < 1 {
		return &jobs.ConfigError{Field: "jobs.cleanup.keep_last.count", Message: "must be at least 1"}
	}
	if c.Jobs.Cleanup.StopDead.Enabled && c.Jobs.Cleanup.StopDead.MaxAge <= 0 {
		return &jobs.ConfigError{Field: "jobs.cleanup.stop_dead.max_age", Message: "must be positive"}
	}
	if c.Jobs.Cleanup.StopDead.Enabled && c.Jobs.HeartbeatInterval > 0 &&
		c.Jobs.Cleanup.StopDead.MaxAge <= c.Jobs.HeartbeatInterval {
		return &jobs.ConfigError{Field: "jobs.cleanup.stop_dead.max_age", Message: "must exceed jobs.heartbeat_interval"}
	}
	return nil
}
