package spawnadapter

import (
	"context"
	"testing"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

func TestAdapterSpawnParsesStructuredStdout(t *testing.T) {
	adapter := New(Config{
		Command:   "sh",
		Args:      []string{"-c", `echo "preamble line"; echo '{"success":true,"response":"done","artifacts_changed":["main.go"],"tokens_used":42,"cost_usd":0.01}'`},
		Workspace: t.TempDir(),
		Restrict:  true,
	})

	task := &swarmtypes.SwarmTask{ID: "t1", Description: "write main.go"}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "coder-1", Model: "test-model"}

	result, err := adapter.Spawn(context.Background(), task, spec, "be a good coder")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false, want true")
	}
	if result.Response != "done" {
		t.Errorf("Response = %q, want %q", result.Response, "done")
	}
	if result.TaskID != "t1" {
		t.Errorf("TaskID = %q, want t1", result.TaskID)
	}
	if len(result.ArtifactsChanged) != 1 || result.ArtifactsChanged[0] != "main.go" {
		t.Errorf("ArtifactsChanged = %v", result.ArtifactsChanged)
	}
	if result.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", result.TokensUsed)
	}
}

func TestAdapterSpawnFallsBackToRawStdout(t *testing.T) {
	adapter := New(Config{
		Command:   "sh",
		Args:      []string{"-c", `printf "plain text reply"`},
		Workspace: t.TempDir(),
		Restrict:  true,
	})

	task := &swarmtypes.SwarmTask{ID: "t2", Description: "summarize"}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "coder-1", Model: "test-model"}

	result, err := adapter.Spawn(context.Background(), task, spec, "")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if result.Response != "plain text reply" {
		t.Errorf("Response = %q, want %q", result.Response, "plain text reply")
	}
	if !result.Success {
		t.Errorf("Success = false, want true for non-empty plain output")
	}
}

func TestAdapterSpawnReportsNonZeroExit(t *testing.T) {
	adapter := New(Config{
		Command:   "sh",
		Args:      []string{"-c", `exit 3`},
		Workspace: t.TempDir(),
		Restrict:  true,
	})

	task := &swarmtypes.SwarmTask{ID: "t3", Description: "fail"}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "coder-1", Model: "test-model"}

	result, err := adapter.Spawn(context.Background(), task, spec, "")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if result.Success {
		t.Errorf("Success = true, want false for nonzero exit")
	}
	if result.FailureMode != "nonzero_exit" {
		t.Errorf("FailureMode = %q, want nonzero_exit", result.FailureMode)
	}
}
