// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package config

import "github.com/wavecode/wavecode/pkg/swarmtypes"

// defaultTaskTypeTable is the built-in type -> policy map named in
// spec.md §3.3. Values are illustrative starting points a deployment
// overrides via the config file, not tuned thresholds.
func defaultTaskTypeTable() map[swarmtypes.TaskType]swarmtypes.TaskTypeConfig {
	return map[swarmtypes.TaskType]swarmtypes.TaskTypeConfig{
		swarmtypes.TaskImplement: {
			AcceptanceThreshold: 0.75,
			RetryLimit:          2,
			AutoSplitComplexity: 4,
			DegradedAcceptable:  true,
			RequiresArtifacts:   true,
		},
		swarmtypes.TaskResearch: {
			AcceptanceThreshold: 0.60,
			RetryLimit:          1,
			AutoSplitComplexity: 5,
			DegradedAcceptable:  true,
			RequiresArtifacts:   false,
		},
		swarmtypes.TaskReview: {
			AcceptanceThreshold: 0.70,
			RetryLimit:          1,
			AutoSplitComplexity: 5,
			DegradedAcceptable:  false,
			RequiresArtifacts:   false,
		},
		swarmtypes.TaskTest: {
			AcceptanceThreshold: 0.70,
			RetryLimit:          1,
			AutoSplitComplexity: 5,
			DegradedAcceptable:  false,
			RequiresArtifacts:   false,
		},
		swarmtypes.TaskRefactor: {
			AcceptanceThreshold: 0.75,
			RetryLimit:          2,
			AutoSplitComplexity: 4,
			DegradedAcceptable:  true,
			RequiresArtifacts:   true,
		},
		swarmtypes.TaskDesign: {
			AcceptanceThreshold: 0.65,
			RetryLimit:          1,
			AutoSplitComplexity: 5,
			DegradedAcceptable:  true,
			RequiresArtifacts:   false,
		},
		swarmtypes.TaskFix: {
			AcceptanceThreshold: 0.80,
			RetryLimit:          2,
			AutoSplitComplexity: 3,
			DegradedAcceptable:  false,
			RequiresArtifacts:   true,
		},
		swarmtypes.TaskIntegrate: {
			AcceptanceThreshold: 0.75,
			RetryLimit:          2,
			AutoSplitComplexity: 4,
			DegradedAcceptable:  true,
			RequiresArtifacts:   true,
		},
		swarmtypes.TaskDocumentation: {
			AcceptanceThreshold: 0.60,
			RetryLimit:          1,
			AutoSplitComplexity: 5,
			DegradedAcceptable:  true,
			RequiresArtifacts:   true,
		},
	}
}
