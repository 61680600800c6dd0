package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Init(dir)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if cfg.TTLDays != 30 {
		t.Fatalf("TTLDays = %d, want 30", cfg.TTLDays)
	}
	if cfg.TrustBoundary != TrustAgentWithIntent {
		t.Fatalf("TrustBoundary = %q, want %q", cfg.TrustBoundary, TrustAgentWithIntent)
	}
	if cfg.MergeThreshold != 0.9 {
		t.Fatalf("MergeThreshold = %v, want 0.9", cfg.MergeThreshold)
	}
}

func TestInitReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "storage_path: /tmp/custom\nttl_days: 10\ntrust_boundary: human_only\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	cfg, err := Init(dir)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if cfg.StoragePath != "/tmp/custom" {
		t.Fatalf("StoragePath = %q, want /tmp/custom", cfg.StoragePath)
	}
	if cfg.TTLDays != 10 {
		t.Fatalf("TTLDays = %d, want 10", cfg.TTLDays)
	}
	if cfg.TrustBoundary != TrustHumanOnly {
		t.Fatalf("TrustBoundary = %q, want %q", cfg.TrustBoundary, TrustHumanOnly)
	}
}

func TestLoadLocalConfigMissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := LoadLocalConfig(dir)
	if cfg.StoragePath != "" {
		t.Fatalf("LoadLocalConfig() on missing file = %+v, want zero value", cfg)
	}
}

func TestIsGitEnabledDefaultsTrue(t *testing.T) {
	dir := t.TempDir()
	if !IsGitEnabled(dir) {
		t.Fatal("IsGitEnabled() with no config.yaml = false, want true")
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("enable_git: false\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if IsGitEnabled(dir) {
		t.Fatal("IsGitEnabled() with enable_git: false = true, want false")
	}
}

func TestIsYamlOnlyKey(t *testing.T) {
	if !IsYamlOnlyKey("storage_path") {
		t.Fatal("storage_path should be yaml-only")
	}
	if IsYamlOnlyKey("ttl_days") {
		t.Fatal("ttl_days should not be yaml-only (lives in the metadata index config table)")
	}
}

func TestUpdateYamlKeyAppendsWhenAbsent(t *testing.T) {
	out := updateYamlKey("storage_path: /a\n", "ttl_days", "15")
	if out != "storage_path: /a\n\nttl_days: 15" {
		t.Fatalf("updateYamlKey() = %q", out)
	}
}

func TestUpdateYamlKeyReplacesInPlace(t *testing.T) {
	out := updateYamlKey("# ttl_days: 30\nstorage_path: /a\n", "ttl_days", "15")
	want := "ttl_days: 15\nstorage_path: /a"
	if out != want {
		t.Fatalf("updateYamlKey() = %q, want %q", out, want)
	}
}
