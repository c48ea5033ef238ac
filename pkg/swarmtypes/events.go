package swarmtypes

import "time"

// EventType enumerates the outbound event taxonomy (spec.md §6.2).
type EventType string

const (
	EventSpawn          EventType = "spawn"
	EventClaim          EventType = "claim"
	EventWrite          EventType = "write"
	EventConflict       EventType = "conflict"
	EventComplete       EventType = "complete"
	EventFail           EventType = "fail"
	EventSkip           EventType = "skip"
	EventBudget         EventType = "budget"
	EventInfo           EventType = "info"
	EventWaveStart      EventType = "wave.start"
	EventWaveEnd        EventType = "wave.end"
	EventWaveReview     EventType = "wave.review"
	EventPhase          EventType = "phase"
	EventRateLimit      EventType = "rate_limit"
	EventCircuitBreaker EventType = "circuit_breaker"
)

// SwarmEvent is one occurrence on the bus. Data carries a type-specific
// payload (see the Event*Data structs below); it is declared as `any` so
// the bus stays generic, but every producer in this repo populates it
// with one of the typed structs rather than an ad-hoc map — the map
// escape hatch exists only for producers outside this module (§9).
type SwarmEvent struct {
	Type      EventType
	Timestamp time.Time
	TaskID    string
	AgentID   string
	Data      any
	Message   string
}

// SpawnEventData accompanies EventSpawn.
type SpawnEventData struct {
	WorkerID string
	Model    string
	Attempt  int
}

// ClaimEventData accompanies EventClaim.
type ClaimEventData struct {
	Path    string
	Granted bool
}

// WriteEventData accompanies EventWrite.
type WriteEventData struct {
	Path        string
	BaseHash    string
	CurrentHash string
}

// ConflictEventData accompanies EventConflict.
type ConflictEventData struct {
	Path           string
	WinningTaskID  string
	LosingTaskID   string
}

// CompleteEventData accompanies EventComplete.
type CompleteEventData struct {
	Score    float64
	Degraded bool
}

// FailEventData accompanies EventFail.
type FailEventData struct {
	FailureMode string
	Attempt     int
	Retryable   bool
}

// SkipEventData accompanies EventSkip.
type SkipEventData struct {
	Reason SkipReason
}

// BudgetEventData accompanies EventBudget.
type BudgetEventData struct {
	AllocatedTokens int
	UsedTokens      int
	Available       int
}

// WaveEventData accompanies EventWaveStart/EventWaveEnd/EventWaveReview.
type WaveEventData struct {
	WaveNumber int
	TaskIDs    []string
}

// PhaseEventData accompanies EventPhase.
type PhaseEventData struct {
	From Phase
	To   Phase
}

// RateLimitEventData accompanies EventRateLimit.
type RateLimitEventData struct {
	WorkerID string
	Count    int
}

// CircuitBreakerEventData accompanies EventCircuitBreaker.
type CircuitBreakerEventData struct {
	Active   bool
	PauseMs  int64
	WindowN  int
}
