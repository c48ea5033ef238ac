// Package quality implements the quality gate (spec.md §4.6): a
// short-circuiting pipeline of pre-flight schema checks, artifact
// inventory checks, and an optional LLM judge pass, followed by a
// threshold/degraded-acceptance decision and hollow-completion
// detection.
//
// No teacher file implements an LLM-judge acceptance pipeline (the
// closest relative, pkg/agent/errors.go, maps failures to user-facing
// strings, not scores), so this package's control flow is original,
// written in the teacher's short-circuit-validation style (see
// pkg/config/config.go's field-by-field validation functions) and its
// judge-response parsing follows the defensive "don't trust the model's
// JSON" posture visible throughout pkg/providers (response parsing
// that never panics on malformed input, always falls back to a safe
// default).
package quality

import (
	"encoding/json"
	"strings"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// Verdict is the judge's structured-output verdict (spec.md §4.6).
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictFixup   Verdict = "fixup"
	VerdictReject  Verdict = "reject"
)

// JudgeResult is the parsed judge response.
type JudgeResult struct {
	Score   float64  `json:"score"`
	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons"`
}

// Judge calls an external structured-output-capable model and returns
// its raw text response. The quality gate never constructs provider
// calls itself (the core consumes the Provider interface only via the
// orchestrator, per spec.md §1 OUT OF SCOPE); callers supply this as a
// plain function so the gate stays provider-agnostic and trivially
// mockable in tests.
type Judge func(task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) (string, error)

// EvaluationResult is evaluate()'s return value (spec.md §4.6).
type EvaluationResult struct {
	Accepted      bool
	Score         float64
	Reasons       []string
	RequiresFixup bool
	Degraded      bool
}

// hollowMarkers are boilerplate/future-intent phrases that, combined
// with zero artifacts on a task that requires them, force a score of
// 0.2 (spec.md §4.6 "Hollow-completion detection").
var hollowMarkers = []string{
	"i will now implement",
	"i would implement",
	"in a real implementation",
	"this is a placeholder",
	"todo: implement",
	"left as an exercise",
	"for brevity, the full implementation is omitted",
}

// Config configures Gate behavior.
type Config struct {
	UseJudge            bool
	UseCritic           bool // see SPEC_FULL.md §12: optional secondary skeptical judge pass
	FixupCountsAsRetry  bool // spec.md §9 Open Questions, default false
}

// Gate evaluates task results against their type's policy.
type Gate struct {
	cfg    Config
	judge  Judge
	critic Judge // optional secondary skeptical pass
}

// New constructs a Gate. judge/critic may be nil when UseJudge/UseCritic
// is false.
func New(cfg Config, judge, critic Judge) *Gate {
	return &Gate{cfg: cfg, judge: judge, critic: critic}
}

// Evaluate runs the three-stage decision pipeline (spec.md §4.6),
// short-circuiting on the first stage that produces a terminal
// score/accepted verdict.
func (g *Gate) Evaluate(typeCfg swarmtypes.TaskTypeConfig, task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult, acceptanceCriteria []string, artifactExists func(path string) (exists bool, nonEmpty bool)) EvaluationResult {
	// 1. Pre-flight schema checks.
	if typeCfg.RequiresArtifacts && len(result.ArtifactsChanged) == 0 {
		if containsHollowMarker(result.Response) {
			// Hollow-completion detection takes priority over the bare
			// "no artifacts" rejection so the two failure modes stay
			// distinguishable downstream (spec.md §4.6).
			return EvaluationResult{Accepted: false, Score: 0.2, Reasons: []string{"hollow completion: boilerplate response with no artifacts"}}
		}
		return EvaluationResult{Accepted: false, Score: 0, Reasons: []string{"requires artifacts but none changed"}}
	}
	for _, crit := range acceptanceCriteria {
		if strings.TrimSpace(crit) == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(result.Response), strings.ToLower(crit)) {
			return EvaluationResult{Accepted: false, Score: 0, Reasons: []string{"missing declared acceptance criterion: " + crit}}
		}
	}

	// 2. Artifact inventory check.
	if len(task.TargetFiles) > 0 {
		present := 0
		changedSet := make(map[string]bool, len(result.ArtifactsChanged))
		for _, a := range result.ArtifactsChanged {
			changedSet[a] = true
		}
		for _, declared := range task.TargetFiles {
			if !changedSet[declared] {
				continue
			}
			exists, nonEmpty := artifactExists(declared)
			if exists && nonEmpty {
				present++
			}
		}
		if present < len(task.TargetFiles) {
			score := 0.4 * (float64(present) / float64(len(task.TargetFiles)))
			return g.finalize(typeCfg, result, score, []string{"declared target files missing or empty on disk"})
		}
	}

	// 3. LLM judge (optional).
	if g.cfg.UseJudge && g.judge != nil {
		jr := g.runJudge(g.judge, task, result)
		if g.cfg.UseCritic && g.critic != nil && jr.Verdict == VerdictApprove {
			// SPEC_FULL.md §12: a skeptical second pass may downgrade
			// approve to fixup; it never upgrades a verdict.
			cr := g.runJudge(g.critic, task, result)
			if cr.Verdict == VerdictFixup || cr.Verdict == VerdictReject {
				jr.Verdict = VerdictFixup
				jr.Reasons = append(jr.Reasons, cr.Reasons...)
			}
		}
		return g.finalize(typeCfg, result, jr.Score, jr.Reasons)
	}

	// No judge configured: accept purely on the artifact/schema checks
	// already passed, at full score.
	return g.finalize(typeCfg, result, 1.0, nil)
}

func (g *Gate) runJudge(j Judge, task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) JudgeResult {
	raw, err := j(task, result)
	if err != nil {
		return JudgeResult{Score: 0.5, Verdict: VerdictFixup, Reasons: []string{"judge parse failed"}}
	}
	jr, ok := parseJudgeResult(raw)
	if !ok {
		return JudgeResult{Score: 0.5, Verdict: VerdictFixup, Reasons: []string{"judge parse failed"}}
	}
	return jr
}

// parseJudgeResult extracts the first JSON object from raw and decodes
// it as a JudgeResult. Models routinely wrap structured output in
// prose or markdown fences, so this scans for the first balanced
// `{...}` span rather than requiring the whole string to be JSON.
func parseJudgeResult(raw string) (JudgeResult, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return JudgeResult{}, false
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var jr JudgeResult
				if err := json.Unmarshal([]byte(raw[start:i+1]), &jr); err != nil {
					return JudgeResult{}, false
				}
				if jr.Verdict == "" {
					jr.Verdict = VerdictFixup
				}
				return jr, true
			}
		}
	}
	return JudgeResult{}, false
}

func containsHollowMarker(response string) bool {
	lower := strings.ToLower(response)
	for _, marker := range hollowMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// finalize applies the acceptance-threshold / degraded-acceptance rule
// common to every pipeline exit (spec.md §4.6 "Acceptance").
func (g *Gate) finalize(typeCfg swarmtypes.TaskTypeConfig, result swarmtypes.SwarmTaskResult, score float64, reasons []string) EvaluationResult {
	if score >= typeCfg.AcceptanceThreshold {
		return EvaluationResult{Accepted: true, Score: score, Reasons: reasons}
	}
	if typeCfg.DegradedAcceptable && score >= 0.5*typeCfg.AcceptanceThreshold && len(result.ArtifactsChanged) > 0 {
		return EvaluationResult{Accepted: true, Degraded: true, Score: score, Reasons: reasons}
	}
	return EvaluationResult{Accepted: false, Score: score, Reasons: reasons, RequiresFixup: true}
}
