// Package spawnadapter provides a reference implementation of
// workerpool.SpawnAgentFunc (spec.md §6.1's spawn operation): it runs an
// external coding-agent CLI as a subprocess inside a sandbox and parses
// its stdout as the worker's result, grounded on
// pkg/agent/sandbox's HostSandbox.Exec and pkg/multiagent/spawn.go's
// async-invocation bookkeeping.
package spawnadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wavecode/wavecode/pkg/agent/sandbox"
	"github.com/wavecode/wavecode/pkg/logger"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// wireResult is the JSON contract an agent CLI process writes to stdout
// on completion. Anything on stdout that isn't valid JSON is treated as
// the raw response text from a plain, non-structured CLI.
type wireResult struct {
	Success          bool     `json:"success"`
	Response         string   `json:"response"`
	ArtifactsChanged []string `json:"artifacts_changed"`
	TokensUsed       int      `json:"tokens_used"`
	CostUsd          float64  `json:"cost_usd"`
	FailureMode      string   `json:"failure_mode"`
}

// Config configures the subprocess an Adapter shells out to.
type Config struct {
	// Command is the agent CLI binary (e.g. "claude-code-worker").
	Command string
	// Args are passed through verbatim ahead of the adapter's own
	// --task/--system-prompt/--workdir flags.
	Args []string
	// Workspace is the sandbox root each spawn is confined to.
	Workspace string
	// Restrict enables os.Root-based workspace confinement.
	Restrict bool
}

// Adapter shells agent spawns out to a CLI subprocess via a sandbox.
type Adapter struct {
	cfg Config

	startOnce sync.Once
	startErr  error
	sb        *sandbox.HostSandbox
}

// New constructs an Adapter. The sandbox is started lazily on first Spawn.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg: cfg,
		sb:  sandbox.NewHostSandbox(cfg.Workspace, cfg.Restrict),
	}
}

// Spawn matches workerpool.SpawnAgentFunc: run the configured CLI with the
// task description and system prompt, parse its stdout, and map the
// result onto a SwarmTaskResult.
func (a *Adapter) Spawn(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
	runID := uuid.NewString()

	a.startOnce.Do(func() { a.startErr = a.sb.Start(ctx) })
	if a.startErr != nil {
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, FailureMode: "sandbox_start_failed"}, fmt.Errorf("spawnadapter: start sandbox: %w", a.startErr)
	}

	promptPath, cleanup, err := writeSystemPrompt(a.sb, runID, systemPrompt)
	if err != nil {
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, FailureMode: "prompt_write_failed"}, fmt.Errorf("spawnadapter: write system prompt: %w", err)
	}
	defer cleanup()

	args := append(append([]string{}, a.cfg.Args...),
		"--task", task.Description,
		"--model", spec.Model,
		"--worker-id", spec.WorkerID,
		"--system-prompt-file", promptPath,
	)

	logCtx := logger.Context{RunID: runID, TaskID: task.ID, WorkerID: spec.WorkerID}

	logger.InfoCX("spawnadapter", "spawning worker", logCtx, map[string]any{
		"model": spec.Model,
	})

	start := time.Now()
	execRes, err := a.sb.Exec(ctx, sandbox.ExecRequest{
		Command:    a.cfg.Command,
		Args:       args,
		WorkingDir: a.cfg.Workspace,
		TaskID:     task.ID,
		WorkerID:   spec.WorkerID,
	})
	duration := time.Since(start)

	if err != nil {
		logger.WarnCX("spawnadapter", "worker process failed to run", logCtx, map[string]any{
			"error": err.Error(),
		})
		return swarmtypes.SwarmTaskResult{
			TaskID:      task.ID,
			FailureMode: "process_error",
			DurationMs:  duration.Milliseconds(),
		}, err
	}

	result := parseWireResult(execRes.Stdout)
	result.TaskID = task.ID
	result.DurationMs = duration.Milliseconds()

	if execRes.ExitCode != 0 && result.FailureMode == "" {
		result.Success = false
		result.FailureMode = "nonzero_exit"
	}

	logger.InfoCX("spawnadapter", "worker process completed", logCtx, map[string]any{
		"exit_code":   execRes.ExitCode,
		"success":     result.Success,
		"duration_ms": result.DurationMs,
	})

	return result, nil
}

// parseWireResult decodes stdout as the wire JSON contract, falling back
// to treating the whole of stdout as the response text for CLIs that
// don't emit structured output.
func parseWireResult(stdout string) swarmtypes.SwarmTaskResult {
	trimmed := strings.TrimSpace(stdout)
	var wire wireResult
	if trimmed != "" {
		if idx := strings.LastIndex(trimmed, "{"); idx >= 0 {
			if err := json.Unmarshal([]byte(trimmed[idx:]), &wire); err == nil {
				return swarmtypes.SwarmTaskResult{
					Success:          wire.Success,
					Response:         wire.Response,
					ArtifactsChanged: wire.ArtifactsChanged,
					TokensUsed:       wire.TokensUsed,
					CostUsd:          wire.CostUsd,
					FailureMode:      wire.FailureMode,
				}
			}
		}
	}
	return swarmtypes.SwarmTaskResult{Success: trimmed != "", Response: trimmed}
}

func writeSystemPrompt(sb *sandbox.HostSandbox, runID, systemPrompt string) (path string, cleanup func(), err error) {
	relPath := filepath.Join(".swarm-prompts", runID+".txt")
	if err := sb.Fs().WriteFile(context.Background(), relPath, []byte(systemPrompt), true); err != nil {
		return "", func() {}, err
	}
	absPath := relPath
	if sb.GetWorkspace(context.Background()) != "" {
		absPath = filepath.Join(sb.GetWorkspace(context.Background()), relPath)
	}
	return absPath, func() {
		_ = os.Remove(absPath)
	}, nil
}
