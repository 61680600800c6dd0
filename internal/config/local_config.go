package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds the subset of config.yaml fields that must be read
// directly from disk rather than through the viper singleton, because they
// gate how the process starts up (which store backend to open, where) and
// so have to be known before Init runs.
type LocalConfig struct {
	StoragePath   string `yaml:"storage_path"`
	EnableGit     bool   `yaml:"enable_git"`
	TrustBoundary string `yaml:"trust_boundary"`
}

// LoadLocalConfig reads and parses dir/config.yaml directly, bypassing the
// viper singleton. Returns an empty LocalConfig (not nil) if the file does
// not exist or cannot be parsed.
func LoadLocalConfig(dir string) *LocalConfig {
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return &LocalConfig{}
	}
	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies LEDGERMIND_ environment
// variable overrides, which take precedence over the file.
func LoadLocalConfigWithEnv(dir string) *LocalConfig {
	cfg := LoadLocalConfig(dir)
	if envPath := os.Getenv("LEDGERMIND_STORAGE_PATH"); envPath != "" {
		cfg.StoragePath = envPath
	}
	if envTrust := os.Getenv("LEDGERMIND_TRUST_BOUNDARY"); envTrust != "" {
		cfg.TrustBoundary = envTrust
	}
	return cfg
}

// IsGitEnabled reports whether enable_git is set in dir's config.yaml. An
// absent or unparseable file defaults to the audited backend, matching
// defaults().
func IsGitEnabled(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return true
	}
	var raw struct {
		EnableGit *bool `yaml:"enable_git"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil || raw.EnableGit == nil {
		return true
	}
	return *raw.EnableGit
}
