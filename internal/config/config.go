// Package config resolves process-wide configuration from config.yaml,
// environment variables, and built-in defaults, via a package-level viper
// instance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TrustBoundary gates whether agent-sourced writes are accepted.
type TrustBoundary string

const (
	TrustAgentWithIntent TrustBoundary = "agent_with_intent"
	TrustHumanOnly       TrustBoundary = "human_only"
)

// Config is the resolved process-wide configuration.
type Config struct {
	StoragePath         string
	VectorModel         string
	VectorWorkers       int
	TrustBoundary       TrustBoundary
	EnableGit           bool
	TTLDays             int
	MergeThreshold      float64
	ReflectionInterval  time.Duration
	DecayInterval       time.Duration
	MergeInterval       time.Duration
	EmbeddingCachePath  string
	EnableTelemetry     bool
}

// v is the package-level viper instance, populated by Init.
var v *viper.Viper

func defaults() map[string]any {
	return map[string]any{
		"storage_path":           ".ledgermind",
		"vector_model":           "mock",
		"vector_workers":         1,
		"trust_boundary":         string(TrustAgentWithIntent),
		"enable_git":             true,
		"ttl_days":               30,
		"merge_threshold":        0.9,
		"reflection_interval_s":  60,
		"decay_interval_s":       3600,
		"merge_interval_s":       3600,
		"embedding_cache_path":   "",
		"enable_telemetry":       false,
	}
}

// Init loads configuration from dir/config.yaml, environment variables
// prefixed LEDGERMIND_, and defaults. Environment variables override the
// file, and the file overrides the defaults.
// It watches the config file for changes and applies them live.
func Init(dir string) (*Config, error) {
	v = viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("LEDGERMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", filepath.Join(dir, "config.yaml"), err)
		}
	}

	v.WatchConfig()
	v.OnConfigChange(func(fsnotify.Event) {})

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		StoragePath:        v.GetString("storage_path"),
		VectorModel:        v.GetString("vector_model"),
		VectorWorkers:      v.GetInt("vector_workers"),
		TrustBoundary:      TrustBoundary(v.GetString("trust_boundary")),
		EnableGit:          v.GetBool("enable_git"),
		TTLDays:            v.GetInt("ttl_days"),
		MergeThreshold:     v.GetFloat64("merge_threshold"),
		ReflectionInterval: time.Duration(v.GetInt("reflection_interval_s")) * time.Second,
		DecayInterval:      time.Duration(v.GetInt("decay_interval_s")) * time.Second,
		MergeInterval:      time.Duration(v.GetInt("merge_interval_s")) * time.Second,
		EmbeddingCachePath: v.GetString("embedding_cache_path"),
		EnableTelemetry:    v.GetBool("enable_telemetry"),
	}
}

// Current re-reads the live viper instance into a fresh Config, picking up
// any change WatchConfig has applied since Init.
func Current() (*Config, error) {
	if v == nil {
		return nil, fmt.Errorf("config: Init not called")
	}
	return fromViper(v), nil
}

// EnsureStorageDir creates cfg.StoragePath if it does not already exist.
func EnsureStorageDir(cfg *Config) error {
	return os.MkdirAll(cfg.StoragePath, 0o755)
}
