// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package config loads the process-wide, immutable-once-a-run-starts
// SwarmConfig (spec.md §3.1): orchestrator model ID, retry limits, wave
// scheduling policy, auto-split limits, acceptance thresholds, and the
// task-type table (spec.md §3.3). Loading overlays a JSON file with
// env-tagged struct fields parsed via github.com/caarlos0/env/v11.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// ProviderConfig selects and authenticates the model backend used for
// both decomposition/synthesis calls and worker spawns.
type ProviderConfig struct {
	Kind    string `json:"kind" env:"WAVECODE_PROVIDER_KIND"` // "anthropic" | "openai" | "copilot"
	Model   string `json:"model" env:"WAVECODE_PROVIDER_MODEL"`
	APIKey  string `json:"api_key" env:"WAVECODE_PROVIDER_API_KEY"`
	BaseURL string `json:"base_url" env:"WAVECODE_PROVIDER_BASE_URL"`
}

// OrchestratorConfig governs the run-level policy knobs named in
// spec.md §3.1 that aren't part of the per-task-type table.
type OrchestratorConfig struct {
	MaxWaveSize        int     `json:"max_wave_size" env:"WAVECODE_ORCHESTRATOR_MAX_WAVE_SIZE"`
	MidWaveTickDelayMs int     `json:"mid_wave_tick_delay_ms" env:"WAVECODE_ORCHESTRATOR_MID_WAVE_TICK_DELAY_MS"`
	GlobalDoomThreshold int    `json:"global_doom_threshold" env:"WAVECODE_ORCHESTRATOR_GLOBAL_DOOM_THRESHOLD"`
	Workspace          string  `json:"workspace" env:"WAVECODE_ORCHESTRATOR_WORKSPACE"`
}

// BudgetConfig seeds C4's pool (spec.md §4.4).
type BudgetConfig struct {
	ParentTotal         int `json:"parent_total" env:"WAVECODE_BUDGET_PARENT_TOTAL"`
	MinAllocation       int `json:"min_allocation" env:"WAVECODE_BUDGET_MIN_ALLOCATION"`
	SequentialSpawnCapPct int `json:"sequential_spawn_cap_pct" env:"WAVECODE_BUDGET_SEQUENTIAL_SPAWN_CAP_PCT"`
}

// RecoveryConfig seeds C7 (spec.md §4.7).
type RecoveryConfig struct {
	RateLimitWindowSec int `json:"rate_limit_window_sec" env:"WAVECODE_RECOVERY_RATE_LIMIT_WINDOW_SEC"`
	RateLimitMaxHits   int `json:"rate_limit_max_hits" env:"WAVECODE_RECOVERY_RATE_LIMIT_MAX_HITS"`
	BreakerCooldownSec int `json:"breaker_cooldown_sec" env:"WAVECODE_RECOVERY_BREAKER_COOLDOWN_SEC"`
	StaggerInitialMs   int `json:"stagger_initial_ms" env:"WAVECODE_RECOVERY_STAGGER_INITIAL_MS"`
	StaggerCapMs       int `json:"stagger_cap_ms" env:"WAVECODE_RECOVERY_STAGGER_CAP_MS"`
}

// QualityConfig seeds C6 (spec.md §4.6).
type QualityConfig struct {
	UseJudge           bool `json:"use_judge" env:"WAVECODE_QUALITY_USE_JUDGE"`
	UseCritic          bool `json:"use_critic" env:"WAVECODE_QUALITY_USE_CRITIC"`
	FixupCountsAsRetry bool `json:"fixup_counts_as_retry" env:"WAVECODE_QUALITY_FIXUP_COUNTS_AS_RETRY"`
}

// SwarmConfig is the immutable-once-a-run-starts configuration named in
// spec.md §3.1. It's loaded once per process via LoadConfig and shared
// read-only by every component the orchestrator wires up.
type SwarmConfig struct {
	Provider     ProviderConfig                                    `json:"provider"`
	Orchestrator OrchestratorConfig                                `json:"orchestrator"`
	Budget       BudgetConfig                                      `json:"budget"`
	Recovery     RecoveryConfig                                    `json:"recovery"`
	Quality      QualityConfig                                     `json:"quality"`
	TaskTypes    map[swarmtypes.TaskType]swarmtypes.TaskTypeConfig `json:"task_types"`
	DefaultTaskType swarmtypes.TaskTypeConfig                      `json:"default_task_type"`

	mu sync.RWMutex
}

// DefaultConfig returns the built-in task-type table (spec.md §3.3) and
// conservative run-level defaults.
func DefaultConfig() *SwarmConfig {
	return &SwarmConfig{
		Provider: ProviderConfig{
			Kind:  "anthropic",
			Model: "claude-sonnet-4-5-20250929",
		},
		Orchestrator: OrchestratorConfig{
			MaxWaveSize:         5,
			MidWaveTickDelayMs:  25,
			GlobalDoomThreshold: 15,
			Workspace:           "~/.wavecode/workspace",
		},
		Budget: BudgetConfig{
			ParentTotal:           200_000,
			MinAllocation:         500,
			SequentialSpawnCapPct: 60,
		},
		Recovery: RecoveryConfig{
			RateLimitWindowSec: 60,
			RateLimitMaxHits:   3,
			BreakerCooldownSec: 30,
			StaggerInitialMs:   200,
			StaggerCapMs:       5000,
		},
		Quality: QualityConfig{
			UseJudge:           true,
			UseCritic:          false,
			FixupCountsAsRetry: true,
		},
		TaskTypes:       defaultTaskTypeTable(),
		DefaultTaskType: swarmtypes.TaskTypeConfig{AcceptanceThreshold: 0.70, RetryLimit: 1, AutoSplitComplexity: 5},
	}
}

// LoadConfig reads path (a JSON file) over the built-in defaults, then
// overlays env:"..."-tagged fields: file values win over defaults, env
// values win over both.
func LoadConfig(path string) (*SwarmConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if envErr := env.Parse(cfg); envErr != nil {
				return nil, fmt.Errorf("config: parse env overlay: %w", envErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env overlay: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path as indented JSON, creating parent
// directories as needed.
func SaveConfig(path string, cfg *SwarmConfig) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// TaskTypeConfigFor returns the configured policy for t, falling back to
// DefaultTaskType when t has no entry in the table.
func (c *SwarmConfig) TaskTypeConfigFor(t swarmtypes.TaskType) swarmtypes.TaskTypeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cfg, ok := c.TaskTypes[t]; ok {
		return cfg
	}
	return c.DefaultTaskType
}

// Workspace returns the orchestrator's sandbox workspace with a leading
// "~" expanded to the user's home directory.
func (c *SwarmConfig) Workspace() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Orchestrator.Workspace)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
