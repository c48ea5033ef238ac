// Package cancel implements the cancellation tree (spec.md §4.1): a root
// token with linked children, where cancelling a parent atomically
// cancels every currently-linked descendant. It is grounded on the
// teacher's pkg/multiagent/cascade.go RunRegistry.CascadeStop, which
// walks a parent-key index with a seen-set guard against re-entrant
// loops; here the same cascade is expressed as a tree of *Token nodes
// instead of a flat registry keyed by session string, since the core
// needs direct parent/child handles rather than lookup-by-key.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wavecode/wavecode/pkg/swarmerrors"
)

// CancelFunc cancels the token it was returned alongside. Only the
// first call has effect; the reason from that call is retained.
type CancelFunc func(reason string)

// Token is a node in the cancellation tree.
type Token struct {
	mu        sync.Mutex
	cancelled atomic.Bool
	reason    atomic.Value // string
	done      chan struct{}
	children  []*Token
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// NewRoot creates a top-level token with no parent.
func NewRoot() (*Token, CancelFunc) {
	t := newToken()
	return t, t.cancel
}

// LinkedChild creates a token linked to parent. If parent is already
// cancelled, the child begins in the cancelled state with the same
// reason (§4.1: "A child created after the parent was already
// cancelled must begin in the cancelled state").
func LinkedChild(parent *Token) (*Token, CancelFunc) {
	child := newToken()
	if parent == nil {
		return child, child.cancel
	}
	parent.mu.Lock()
	if parent.cancelled.Load() {
		reason := parent.Reason()
		parent.mu.Unlock()
		child.cancel(reason)
		return child, child.cancel
	}
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return child, child.cancel
}

// cancel is idempotent; only the first reason is retained, and the
// cascade to children happens outside the node's own lock so a deep
// tree never holds a single mutex while recursing.
func (t *Token) cancel(reason string) {
	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		return
	}
	t.cancelled.Store(true)
	t.reason.Store(reason)
	children := t.children
	t.children = nil
	close(t.done)
	t.mu.Unlock()

	for _, c := range children {
		c.cancel(reason)
	}
}

// IsCancelled reports the token's cancellation state.
func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// Reason returns the retained cancellation reason, or "" if not
// cancelled.
func (t *Token) Reason() string {
	v := t.reason.Load()
	if v == nil {
		return ""
	}
	return v.(string)
}

// Check returns a classified cancellation error if the token has been
// cancelled, nil otherwise. Suspension points call this on entry and
// after every resumption (§5).
func (t *Token) Check() error {
	if t.IsCancelled() {
		return swarmerrors.New(swarmerrors.KindCancelled, nil)
	}
	return nil
}

// Done returns a channel closed exactly once, when the token is
// cancelled. Callers select on it alongside other waits rather than
// blocking exclusively on Wait, keeping every suspension point
// responsive within the soft 50ms propagation target (§4.1).
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the token is cancelled. Prefer Done() in a select
// when the caller has other work to do concurrently.
func (t *Token) Wait() {
	<-t.done
}

// WithContext derives a context.Context from parent that is also
// cancelled when this token is cancelled, for handing to provider SDK
// calls that only understand context.Context (§5 "all must honor the
// root cancellation token").
func (t *Token) WithContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
