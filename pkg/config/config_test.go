package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

func TestDefaultConfigHasEntryForEveryTaskType(t *testing.T) {
	cfg := DefaultConfig()
	allTypes := []swarmtypes.TaskType{
		swarmtypes.TaskImplement, swarmtypes.TaskResearch, swarmtypes.TaskReview,
		swarmtypes.TaskTest, swarmtypes.TaskRefactor, swarmtypes.TaskDesign,
		swarmtypes.TaskFix, swarmtypes.TaskIntegrate, swarmtypes.TaskDocumentation,
	}
	for _, tt := range allTypes {
		if _, ok := cfg.TaskTypes[tt]; !ok {
			t.Errorf("default task-type table missing entry for %q", tt)
		}
	}
}

func TestTaskTypeConfigForFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTaskType = swarmtypes.TaskTypeConfig{AcceptanceThreshold: 0.5, RetryLimit: 1, AutoSplitComplexity: 5}

	got := cfg.TaskTypeConfigFor(swarmtypes.TaskType("unknown"))
	if got != cfg.DefaultTaskType {
		t.Errorf("TaskTypeConfigFor(unknown) = %+v, want default %+v", got, cfg.DefaultTaskType)
	}

	got = cfg.TaskTypeConfigFor(swarmtypes.TaskImplement)
	if got != cfg.TaskTypes[swarmtypes.TaskImplement] {
		t.Errorf("TaskTypeConfigFor(implement) = %+v, want table entry", got)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Budget.ParentTotal != DefaultConfig().Budget.ParentTotal {
		t.Errorf("ParentTotal = %d, want default", cfg.Budget.ParentTotal)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"orchestrator": {"max_wave_size": 9}, "budget": {"parent_total": 500000}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Orchestrator.MaxWaveSize != 9 {
		t.Errorf("MaxWaveSize = %d, want 9", cfg.Orchestrator.MaxWaveSize)
	}
	if cfg.Budget.ParentTotal != 500000 {
		t.Errorf("ParentTotal = %d, want 500000", cfg.Budget.ParentTotal)
	}
	// Untouched fields keep their defaults.
	if cfg.Quality.UseJudge != DefaultConfig().Quality.UseJudge {
		t.Errorf("UseJudge = %v, want default preserved", cfg.Quality.UseJudge)
	}
}

func TestLoadConfigEnvOverlayWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"provider": {"model": "from-file"}}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	t.Setenv("WAVECODE_PROVIDER_MODEL", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Provider.Model != "from-env" {
		t.Errorf("Provider.Model = %q, want from-env", cfg.Provider.Model)
	}
}

func TestSaveConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Orchestrator.MaxWaveSize = 7

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Orchestrator.MaxWaveSize != 7 {
		t.Errorf("MaxWaveSize = %d, want 7", loaded.Orchestrator.MaxWaveSize)
	}
}

func TestWorkspaceExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	cfg.Orchestrator.Workspace = "~/swarm-ws"

	got := cfg.Workspace()
	want := filepath.Join(home, "swarm-ws")
	if got != want {
		t.Errorf("Workspace() = %q, want %q", got, want)
	}
}
