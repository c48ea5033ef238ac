package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

func specs() []swarmtypes.SwarmWorkerSpec {
	return []swarmtypes.SwarmWorkerSpec{
		{
			WorkerID: "coder-broad", Model: "model-a", Role: swarmtypes.RoleCoder,
			Capabilities: map[swarmtypes.Capability]bool{"code": true, "test": true, "review": true},
		},
		{
			WorkerID: "coder-tight", Model: "model-b", Role: swarmtypes.RoleCoder,
			Capabilities: map[swarmtypes.Capability]bool{"code": true},
		},
	}
}

func TestSelectWorkerPrefersTightestFit(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, WorkerSpecs: specs()})
	spec, err := p.SelectWorker([]swarmtypes.Capability{"code"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.WorkerID != "coder-tight" {
		t.Fatalf("expected the narrower capability set to win, got %s", spec.WorkerID)
	}
}

func TestSelectWorkerRejectsNonSupersetCandidates(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, WorkerSpecs: specs()})
	spec, err := p.SelectWorker([]swarmtypes.Capability{"code", "review"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.WorkerID != "coder-broad" {
		t.Fatalf("expected the only superset-capable worker, got %s", spec.WorkerID)
	}
}

func TestSelectWorkerTieBreaksByFailureRate(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, WorkerSpecs: []swarmtypes.SwarmWorkerSpec{
		{WorkerID: "a", Model: "model-a", Capabilities: map[swarmtypes.Capability]bool{"code": true}},
		{WorkerID: "b", Model: "model-b", Capabilities: map[swarmtypes.Capability]bool{"code": true}},
	}})
	p.RecordOutcome("model-a", false, "generic_failure", 10)
	p.RecordOutcome("model-b", true, "", 10)

	spec, err := p.SelectWorker([]swarmtypes.Capability{"code"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.WorkerID != "b" {
		t.Fatalf("expected the healthier model to win the tie-break, got %s", spec.WorkerID)
	}
}

func TestSelectWorkerFallsThroughToFallbackList(t *testing.T) {
	p := New(Config{
		MaxConcurrent:   1,
		WorkerSpecs:     specs(),
		FallbackWorkers: []string{"coder-broad"},
	})
	spec, err := p.SelectWorker([]swarmtypes.Capability{"nonexistent-capability"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.WorkerID != "coder-broad" {
		t.Fatalf("expected fallback worker, got %s", spec.WorkerID)
	}
}

func TestSelectWorkerErrorsWithNoFallback(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, WorkerSpecs: specs()})
	_, err := p.SelectWorker([]swarmtypes.Capability{"nonexistent-capability"})
	if err == nil {
		t.Fatal("expected an error when no worker matches and no fallback is configured")
	}
}

func TestSpawnSucceedsAndRecordsHealth(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, BaseTimeoutMs: 5000})
	task := &swarmtypes.SwarmTask{ID: "t1", Complexity: 1, Type: swarmtypes.TaskImplement}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "w1", Model: "model-a"}

	fn := func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, Success: true}, nil
	}
	result, err := p.Spawn(context.Background(), task, spec, 1, nil, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	health := p.HealthSnapshot()
	if health["model-a"].Successes != 1 {
		t.Fatalf("expected health to record one success, got %+v", health["model-a"])
	}
}

func TestSpawnClassifiesFailureMode(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, BaseTimeoutMs: 5000})
	task := &swarmtypes.SwarmTask{ID: "t1", Complexity: 1}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "w1", Model: "model-a"}

	fn := func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
		return swarmtypes.SwarmTaskResult{}, errors.New("received 429 rate limit from provider")
	}
	result, err := p.Spawn(context.Background(), task, spec, 1, nil, fn)
	if err == nil {
		t.Fatal("expected an error")
	}
	if result.FailureMode != "rate_limit" {
		t.Fatalf("expected rate_limit classification, got %s", result.FailureMode)
	}
}

func TestSpawnRespectsConcurrencyLimit(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, BaseTimeoutMs: 5000})
	task := &swarmtypes.SwarmTask{ID: "t1", Complexity: 1}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "w1", Model: "model-a"}

	release := make(chan struct{})
	started := make(chan struct{})
	fn := func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
		close(started)
		<-release
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, Success: true}, nil
	}

	done := make(chan struct{})
	go func() {
		p.Spawn(context.Background(), task, spec, 1, nil, fn)
		close(done)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Spawn(ctx, task, spec, 1, nil, fn)
	if err == nil {
		t.Fatal("expected the second spawn to block until the permit is released and time out")
	}

	close(release)
	<-done
}

func TestSpawnHonorsCancelDone(t *testing.T) {
	p := New(Config{MaxConcurrent: 0, BaseTimeoutMs: 5000})
	task := &swarmtypes.SwarmTask{ID: "t1"}
	spec := swarmtypes.SwarmWorkerSpec{WorkerID: "w1"}
	cancelled := make(chan struct{})
	close(cancelled)

	// MaxConcurrent normalizes to 1 with a permit available, so hold it
	// first to force the cancelDone path.
	p.sem <- struct{}{}
	_, err := p.Spawn(context.Background(), task, spec, 1, cancelled, nil)
	if err == nil {
		t.Fatal("expected cancellation to short-circuit the spawn")
	}
}

func TestBuildSystemPromptTiersByAttempt(t *testing.T) {
	task := &swarmtypes.SwarmTask{ID: "t1", Type: swarmtypes.TaskImplement, Description: "do the thing", LastFailureMode: "timeout"}

	p1 := buildSystemPrompt(task, 1)
	if contains(p1, "timeout") || contains(p1, "different approach") {
		t.Fatalf("attempt 1 prompt should be bare, got %q", p1)
	}
	p2 := buildSystemPrompt(task, 2)
	if !contains(p2, "timeout") || contains(p2, "different approach") {
		t.Fatalf("attempt 2 prompt should include failure evidence only, got %q", p2)
	}
	p3 := buildSystemPrompt(task, 3)
	if !contains(p3, "timeout") || !contains(p3, "different approach") {
		t.Fatalf("attempt 3 prompt should include evidence and the retry directive, got %q", p3)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
