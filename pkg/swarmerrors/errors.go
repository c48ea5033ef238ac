// Package swarmerrors classifies the error kinds the swarm components
// surface to callers and to each other (spec.md §7). It mirrors the
// teacher's FailoverReason/ClassifyError pattern in
// pkg/providers/fallback.go: a closed enum of reasons plus a classifier
// that maps raw errors and worker failure modes onto it, rather than
// exporting distinct Go error types per kind.
package swarmerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a closed classification of swarm-level failures.
type Kind string

const (
	KindBudgetExhausted       Kind = "budget_exhausted"
	KindCancelled             Kind = "cancelled"
	KindProviderRetryable     Kind = "provider_error_retryable"
	KindProviderNonRetryable  Kind = "provider_error_non_retryable"
	KindWorkerRateLimited     Kind = "worker_rate_limited"
	KindWorkerTimeout         Kind = "worker_timeout"
	KindWorkerContextOverflow Kind = "worker_context_overflow"
	KindWorkerQualityRejected Kind = "worker_quality_rejected"
	KindWorkerGeneric         Kind = "worker_generic"
	KindLedgerConflict        Kind = "ledger_conflict"
	KindToolNotFound          Kind = "tool_not_found"
	KindPermissionDenied      Kind = "permission_denied"
	KindConfigurationError    Kind = "configuration_error"
	KindInternalInvariant     Kind = "internal_invariant_violation"
)

// Retryable reports whether the orchestrator should absorb this kind of
// error internally (§7 "Propagation") rather than surface it as a fatal
// run outcome.
func (k Kind) Retryable() bool {
	switch k {
	case KindProviderRetryable, KindWorkerRateLimited, KindWorkerTimeout, KindLedgerConflict:
		return true
	default:
		return false
	}
}

// Fatal reports whether this kind halts the run with no partial result
// (§7: configuration_error and internal_invariant_violation are fatal).
func (k Kind) Fatal() bool {
	return k == KindConfigurationError || k == KindInternalInvariant
}

// SwarmError wraps an underlying cause with its classified Kind.
type SwarmError struct {
	Kind Kind
	Err  error
}

func (e *SwarmError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SwarmError) Unwrap() error { return e.Err }

// New wraps err with the given Kind. A nil err still produces a
// classified sentinel, useful for callers that only need the Kind.
func New(kind Kind, err error) *SwarmError {
	return &SwarmError{Kind: kind, Err: err}
}

// As extracts a *SwarmError from err's chain, mirroring errors.As.
func As(err error) (*SwarmError, bool) {
	var se *SwarmError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ClassifyFailureMode maps a worker-reported failureMode string (from
// SpawnResult, §6.1) onto a Kind. This is the "extensible classifier"
// the design notes call for (§9 Open Questions) — raw worker stderr
// parsing beyond the known buckets belongs in pkg/spawnadapter, which
// should populate one of these exact strings before returning.
func ClassifyFailureMode(failureMode string) Kind {
	switch failureMode {
	case "rate_limit":
		return KindWorkerRateLimited
	case "timeout":
		return KindWorkerTimeout
	case "context_overflow":
		return KindWorkerContextOverflow
	case "quality_rejection":
		return KindWorkerQualityRejected
	case "cancelled":
		return KindCancelled
	case "tool_error":
		return KindToolNotFound
	default:
		return KindWorkerGeneric
	}
}

// ClassifyContextError maps ctx.Err() onto a Kind, used whenever a
// suspension point (§5) observes context cancellation/deadline.
func ClassifyContextError(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindWorkerTimeout
	default:
		return KindWorkerGeneric
	}
}
