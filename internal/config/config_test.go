// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	SetConfigDirOverride(t.TempDir())
	t.Cleanup(Reset)

	cfg, path, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty without a config file", path)
	}
	if cfg.ContainerEngine != "auto" {
		t.Errorf("ContainerEngine = %q, want auto", cfg.ContainerEngine)
	}
	if cfg.DefaultRunner != "container" {
		t.Errorf("DefaultRunner = %q, want container", cfg.DefaultRunner)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_CUEFile(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	content := `container_engine: "podman"
default_runner: "process"
default_image: "dataformco/dataform:3.0.0"
log: level: "debug"
`
	cfgPath := filepath.Join(dir, "config.cue")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if path != cfgPath {
		t.Errorf("resolved path = %q, want %q", path, cfgPath)
	}
	if cfg.ContainerEngine != "podman" {
		t.Errorf("ContainerEngine = %q, want podman", cfg.ContainerEngine)
	}
	if cfg.DefaultRunner != "process" {
		t.Errorf("DefaultRunner = %q, want process", cfg.DefaultRunner)
	}
	if cfg.DefaultImage != "dataformco/dataform:3.0.0" {
		t.Errorf("DefaultImage = %q", cfg.DefaultImage)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_PartialCUEFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	content := `container_engine: "docker"` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "config.cue"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ContainerEngine != "docker" {
		t.Errorf("ContainerEngine = %q, want docker", cfg.ContainerEngine)
	}
	if cfg.DefaultRunner != "container" {
		t.Errorf("DefaultRunner = %q, want default to survive partial file", cfg.DefaultRunner)
	}
}

func TestLoad_InvalidEngineValue(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	content := `container_engine: "kubernetes"` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "config.cue"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := Load(LoadOptions{})
	if err == nil {
		t.Fatal("expected error for invalid container_engine")
	}
}

func TestLoad_InvalidCUESyntax(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	if err := os.WriteFile(filepath.Join(dir, "config.cue"), []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := Load(LoadOptions{})
	if err == nil {
		t.Fatal("expected error for invalid CUE syntax")
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	SetConfigDirOverride(t.TempDir())
	t.Cleanup(Reset)

	_, _, err := Load(LoadOptions{ConfigFilePath: "/nonexistent/config.cue"})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v, want mention of missing file", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	SetConfigDirOverride(t.TempDir())
	t.Cleanup(Reset)
	t.Setenv("DATAFORM_TASK_DEFAULT_RUNNER", "virtual")
	t.Setenv("DATAFORM_TASK_LOG_LEVEL", "warn")

	cfg, _, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DefaultRunner != "virtual" {
		t.Errorf("DefaultRunner = %q, want env override", cfg.DefaultRunner)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env override", cfg.Log.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{name: "bad engine", mutate: func(c *Config) { c.ContainerEngine = "lxc" }, wantErr: true},
		{name: "bad runner", mutate: func(c *Config) { c.DefaultRunner = "kubernetes" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
