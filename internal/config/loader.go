package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable the service reads.
	EnvPrefix = "EDISON"

	// ConfigName is the base name of the config file (edison.yaml).
	ConfigName = "edison"

	// ConfigFileEnv names an explicit config file path.
	ConfigFileEnv = EnvPrefix + "_CONFIG"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// EnvSpec maps a short environment variable to a config key. Every key is
// also reachable as EDISON_<KEY> with dots replaced by underscores, e.g.
// EDISON_JOBS_REPOSITORY_KIND.
type EnvSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []EnvSpec {
	short := map[string]string{
		"HOST":             "server.host",
		"PORT":             "server.port",
		"READ_TIMEOUT":     "server.read_timeout",
		"WRITE_TIMEOUT":    "server.write_timeout",
		"IDLE_TIMEOUT":     "server.idle_timeout",
		"SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
		"LOG_LEVEL":        "logging.level",
		"LOG_PROFILE":      "logging.profile",
		"REPOSITORY":       "jobs.repository.kind",
		"REPOSITORY_PATH":  "jobs.repository.path",
		"MONGO_URI":        "jobs.repository.mongo.uri",
		"S3_BUCKET":        "jobs.repository.s3.bucket",
		"S3_ENDPOINT":      "jobs.repository.s3.endpoint",
		"DEFINITIONS_FILE": "jobs.definitions_file",
	}
	specs := make([]EnvSpec, 0, len(short))
	for name, path := range short {
		specs = append(specs, EnvSpec{Name: EnvPrefix + "_" + name, Path: path})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// setDefaults registers every key so that environment variables can reach
// it through AutomaticEnv.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trigger_rate", 1.0)
	v.SetDefault("server.trigger_burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("jobs.uri_base", "/internal/jobs")
	v.SetDefault("jobs.repository.kind", "memory")
	v.SetDefault("jobs.repository.path", "")
	v.SetDefault("jobs.repository.mongo.uri", "")
	v.SetDefault("jobs.repository.mongo.database", "edison")
	v.SetDefault("jobs.repository.mongo.collection", "jobs")
	v.SetDefault("jobs.repository.s3.bucket", "")
	v.SetDefault("jobs.repository.s3.prefix", "edison/jobs")
	v.SetDefault("jobs.repository.s3.region", "")
	v.SetDefault("jobs.repository.s3.endpoint", "")
	v.SetDefault("jobs.repository.s3.profile", "")
	v.SetDefault("jobs.repository.s3.access_key_id", "")
	v.SetDefault("jobs.repository.s3.secret_access_key", "")
	v.SetDefault("jobs.repository.s3.force_path_style", false)
	v.SetDefault("jobs.definitions_file", "")
	v.SetDefault("jobs.heartbeat_interval", "1m")
	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("jobs.mutex_groups", []any{})

	v.SetDefault("jobs.cleanup.keep_last.enabled", true)
	v.SetDefault("jobs.cleanup.keep_last.count", 10)
	v.SetDefault("jobs.cleanup.keep_last.job_types", "")
	v.SetDefault("jobs.cleanup.keep_last.schedule", "@every 1h")
	v.SetDefault("jobs.cleanup.stop_dead.enabled", true)
	v.SetDefault("jobs.cleanup.stop_dead.max_age", "30m")
	v.SetDefault("jobs.cleanup.stop_dead.schedule", "@every 1m")

	v.SetDefault("status.refresh_interval", "10s")
}

// Load builds the configuration and makes it available through GetConfig.
//
// Precedence, lowest first: defaults, config file, environment, overrides.
// The config file is EDISON_CONFIG if set, otherwise edison.yaml in the
// working directory, the user config directory, or /etc/edison.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file, which takes the place of
// EDISON_CONFIG and the search path. An empty path behaves like Load.
func LoadFile(_ context.Context, path string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name, EnvPrefix+"_"+envKey(spec.Path)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func readConfigFile(v *viper.Viper, explicit string) error {
	v.SetConfigType("yaml")
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(ConfigFileEnv))
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func getUserConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigName))
	}
	return append(paths, filepath.Join("/etc", ConfigName))
}

func envKey(path string) string {
	return strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
