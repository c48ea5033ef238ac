package config

import (
	"path/filepath"
	"testing"
)

func TestResolveRuntimePaths_Default(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvWaveCodeConfig, "")
	t.Setenv(EnvWaveCodeHome, "")

	paths := ResolveRuntimePaths()
	wantHome := filepath.Join(home, ".wavecode")

	if paths.HomeDir != wantHome {
		t.Errorf("HomeDir = %q, want %q", paths.HomeDir, wantHome)
	}
	if paths.ConfigPath != filepath.Join(wantHome, "config.json") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(wantHome, "config.json"))
	}
	if paths.CheckpointDir != filepath.Join(wantHome, "checkpoints") {
		t.Errorf("CheckpointDir = %q, want %q", paths.CheckpointDir, filepath.Join(wantHome, "checkpoints"))
	}
	if paths.EventLogDir != filepath.Join(wantHome, "events") {
		t.Errorf("EventLogDir = %q, want %q", paths.EventLogDir, filepath.Join(wantHome, "events"))
	}
}

func TestResolveRuntimePaths_UsesWaveCodeHomeOverride(t *testing.T) {
	homeOverride := filepath.Join(t.TempDir(), "wavecode-home")
	t.Setenv(EnvWaveCodeConfig, "")
	t.Setenv(EnvWaveCodeHome, homeOverride)

	paths := ResolveRuntimePaths()

	if paths.HomeDir != homeOverride {
		t.Errorf("HomeDir = %q, want %q", paths.HomeDir, homeOverride)
	}
	if paths.ConfigPath != filepath.Join(homeOverride, "config.json") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(homeOverride, "config.json"))
	}
}

func TestResolveRuntimePaths_ConfigOverrideTakesPrecedence(t *testing.T) {
	homeOverride := filepath.Join(t.TempDir(), "wavecode-home")
	configDir := filepath.Join(t.TempDir(), "custom-config-dir")
	configPath := filepath.Join(configDir, "config.json")

	t.Setenv(EnvWaveCodeHome, homeOverride)
	t.Setenv(EnvWaveCodeConfig, configPath)

	paths := ResolveRuntimePaths()

	if paths.ConfigPath != configPath {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, configPath)
	}
	if paths.HomeDir != configDir {
		t.Errorf("HomeDir = %q, want %q", paths.HomeDir, configDir)
	}
}
