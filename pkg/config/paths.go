package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvWaveCodeConfig = "WAVECODE_CONFIG"
	EnvWaveCodeHome   = "WAVECODE_HOME"
)

// RuntimePaths locates the files a run needs: its config file, its
// checkpoint directory (spec.md §4.10's SwarmCheckpoint persistence),
// and its event-log directory (C2's JSONL persistence).
type RuntimePaths struct {
	HomeDir         string
	ConfigPath      string
	CheckpointDir   string
	EventLogDir     string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvWaveCodeConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvWaveCodeHome)))
	if homeDir == "" {
		homeDir = defaultWaveCodeHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultWaveCodeHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".wavecode"
	}
	return filepath.Join(home, ".wavecode")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:       homeDir,
		ConfigPath:    configPath,
		CheckpointDir: filepath.Join(homeDir, "checkpoints"),
		EventLogDir:   filepath.Join(homeDir, "events"),
	}
}
