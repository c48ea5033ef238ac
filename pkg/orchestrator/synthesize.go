// synthesize.go implements the dedicated synthesis step (spec.md
// §4.10 step 5), kept as its own file rather than inlined in the main
// loop, mirroring original_source/attocode's
// integrations/agents/result_synthesizer.py (SPEC_FULL.md §12).
package orchestrator

import (
	"time"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// synthesize collapses the accumulated task results into the final
// SwarmExecutionResult (spec.md §4.10 step 5, §7).
func synthesize(results []swarmtypes.SwarmTaskResult, stats swarmtypes.QueueStats, startedAt time.Time, success bool, reason string) swarmtypes.SwarmExecutionResult {
	artifactSet := make(map[string]bool)
	for _, r := range results {
		for _, a := range r.ArtifactsChanged {
			artifactSet[a] = true
		}
	}
	artifacts := make([]string, 0, len(artifactSet))
	for a := range artifactSet {
		artifacts = append(artifacts, a)
	}

	return swarmtypes.SwarmExecutionResult{
		Success:     success,
		TaskResults: results,
		Stats:       stats,
		Artifacts:   artifacts,
		DurationMs:  time.Since(startedAt).Milliseconds(),
		Reason:      reason,
	}
}
