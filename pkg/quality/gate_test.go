package quality

import (
	"testing"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

func implementTypeConfig() swarmtypes.TaskTypeConfig {
	return swarmtypes.TaskTypeConfig{
		AcceptanceThreshold: 0.75,
		RetryLimit:          2,
		AutoSplitComplexity: 4,
		DegradedAcceptable:  true,
		RequiresArtifacts:   true,
	}
}

func alwaysExists(path string) (bool, bool) { return true, true }

func TestPreFlightRejectsMissingArtifacts(t *testing.T) {
	g := New(Config{}, nil, nil)
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1"}

	eval := g.Evaluate(implementTypeConfig(), task, result, nil, alwaysExists)
	if eval.Accepted || eval.Score != 0 {
		t.Fatalf("expected rejection with score 0, got %+v", eval)
	}
}

func TestArtifactInventoryPartialScore(t *testing.T) {
	g := New(Config{}, nil, nil)
	task := &swarmtypes.SwarmTask{ID: "t1", TargetFiles: []string{"a.py", "b.py"}}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1", ArtifactsChanged: []string{"a.py"}}

	missing := func(path string) (bool, bool) {
		if path == "a.py" {
			return true, true
		}
		return false, false
	}

	eval := g.Evaluate(implementTypeConfig(), task, result, nil, missing)
	if eval.Accepted {
		t.Fatal("expected rejection with half the declared files present")
	}
	want := 0.4 * 0.5
	if eval.Score != want {
		t.Fatalf("expected score %v, got %v", want, eval.Score)
	}
}

func TestHollowCompletionDetection(t *testing.T) {
	g := New(Config{}, nil, nil)
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{
		TaskID:           "t1",
		ArtifactsChanged: nil,
		Response:         "In a real implementation, this would parse the file.",
	}

	eval := g.Evaluate(implementTypeConfig(), task, result, nil, alwaysExists)
	if eval.Accepted || eval.Score != 0.2 {
		t.Fatalf("expected hollow-completion score 0.2, got %+v", eval)
	}
}

func TestNoArtifactsWithoutHollowMarkerScoresZero(t *testing.T) {
	g := New(Config{}, nil, nil)
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1", Response: "done."}

	eval := g.Evaluate(implementTypeConfig(), task, result, nil, alwaysExists)
	if eval.Accepted || eval.Score != 0 {
		t.Fatalf("expected plain pre-flight rejection at score 0, got %+v", eval)
	}
}

func TestAcceptedAtOrAboveThreshold(t *testing.T) {
	g := New(Config{}, nil, nil)
	cfg := implementTypeConfig()
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1", ArtifactsChanged: []string{"a.py"}}

	eval := g.Evaluate(cfg, task, result, nil, alwaysExists)
	if !eval.Accepted || eval.Degraded {
		t.Fatalf("expected plain acceptance with no judge configured, got %+v", eval)
	}
}

func TestDegradedAcceptance(t *testing.T) {
	g := New(Config{UseJudge: true}, func(task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) (string, error) {
		return `{"score": 0.45, "verdict": "fixup", "reasons": ["partial"]}`, nil
	}, nil)
	cfg := implementTypeConfig() // threshold 0.75, degradedAcceptable=true -> floor 0.375
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1", ArtifactsChanged: []string{"a.py"}}

	eval := g.Evaluate(cfg, task, result, nil, alwaysExists)
	if !eval.Accepted || !eval.Degraded {
		t.Fatalf("expected degraded acceptance, got %+v", eval)
	}
}

func TestJudgeParseFailureNeverAbortsRun(t *testing.T) {
	g := New(Config{UseJudge: true}, func(task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) (string, error) {
		return "not json at all", nil
	}, nil)
	cfg := implementTypeConfig()
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1", ArtifactsChanged: []string{"a.py"}}

	eval := g.Evaluate(cfg, task, result, nil, alwaysExists)
	// score=0.5, threshold=0.75, degraded floor=0.375 with artifacts -> degraded accept
	if !eval.Accepted || !eval.Degraded {
		t.Fatalf("expected judge-parse-failure fallback to land on degraded accept, got %+v", eval)
	}
}

func TestCriticDowngradesApproveToFixup(t *testing.T) {
	g := New(Config{UseJudge: true, UseCritic: true},
		func(task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) (string, error) {
			return `{"score": 0.9, "verdict": "approve", "reasons": []}`, nil
		},
		func(task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) (string, error) {
			return `{"score": 0.9, "verdict": "fixup", "reasons": ["skeptical concern"]}`, nil
		},
	)
	cfg := implementTypeConfig()
	task := &swarmtypes.SwarmTask{ID: "t1"}
	result := swarmtypes.SwarmTaskResult{TaskID: "t1", ArtifactsChanged: []string{"a.py"}}

	eval := g.Evaluate(cfg, task, result, nil, alwaysExists)
	// Score stays 0.9 (>= threshold) so it's still accepted, but the
	// critic's reasons must be folded in.
	if !eval.Accepted {
		t.Fatalf("expected acceptance on high score despite critic downgrade, got %+v", eval)
	}
	found := false
	for _, r := range eval.Reasons {
		if r == "skeptical concern" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected critic's reason to be included, got %v", eval.Reasons)
	}
}
