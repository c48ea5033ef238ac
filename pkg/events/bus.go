// Package events implements the swarm event bus (spec.md §4.2): typed
// pub/sub with a bounded in-memory history and an optional best-effort
// JSONL sink. It is grounded on the teacher's
// pkg/multiagent/announce.go Announcer, but adapted rather than copied:
// Announcer is a per-session delivery queue with drop-oldest
// back-pressure on the delivery path itself, whereas this bus needs a
// single global emit-order history with oldest-first eviction AND
// synchronous, error-isolated delivery to arbitrary subscriber
// callbacks (not channel consumers) — two different contracts, so the
// ring-buffer-history and the subscriber-dispatch loop are both
// original to this package, built in the teacher's mutex-guarded-slice
// style (see pkg/multiagent/blackboard.go for the same map+RWMutex
// texture).
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/wavecode/wavecode/pkg/logger"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// DefaultHistoryCap is the default ring size (spec.md §4.2: "bounded to
// an implementation-chosen cap (≥1024)").
const DefaultHistoryCap = 1024

// Subscriber receives events in emit order. A panic or any observable
// side effect inside fn must never affect other subscribers or the
// emitter; Bus recovers from subscriber panics itself.
type Subscriber func(event swarmtypes.SwarmEvent)

type subscription struct {
	id int64
	fn Subscriber
}

// Bus is the event bus. Zero value is not usable; construct with New.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID int64

	historyCap int
	history    []swarmtypes.SwarmEvent

	persistFile *os.File
	persistW    *bufio.Writer
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithHistoryCap overrides DefaultHistoryCap.
func WithHistoryCap(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historyCap = n
		}
	}
}

// WithPersistPath opens path for append and writes one JSON object per
// line per emitted event. Open failures are logged, not returned: per
// spec.md §4.2 persistence is best-effort and must never affect the
// emitter.
func WithPersistPath(path string) Option {
	return func(b *Bus) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WarnCF("events", "failed to open persistence sink", map[string]any{
				"path": path, "error": err.Error(),
			})
			return
		}
		b.persistFile = f
		b.persistW = bufio.NewWriter(f)
	}
}

// New constructs a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{historyCap: DefaultHistoryCap}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close flushes and closes the persistence sink, if configured.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.persistW != nil {
		_ = b.persistW.Flush()
	}
	if b.persistFile != nil {
		return b.persistFile.Close()
	}
	return nil
}

// Subscribe registers fn and returns a token for Unsubscribe.
func (b *Bus) Subscribe(fn Subscriber) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a previously-registered subscriber. A no-op if id
// is unknown (already unsubscribed, or never valid).
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit publishes event to history and every current subscriber, in
// emit order. The whole operation is serialized by the bus mutex so
// concurrent emitters from different workers still produce a single
// total order that every subscriber observes identically (spec.md
// §3.2: "The event bus publishes events in their emit order").
func (b *Bus) Emit(event swarmtypes.SwarmEvent) {
	b.mu.Lock()
	b.appendHistoryLocked(event)
	b.persistLocked(event)
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		b.dispatchSafely(s, event)
	}
}

func (b *Bus) dispatchSafely(s subscription, event swarmtypes.SwarmEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCX("events", "subscriber panicked, isolated",
				logger.Context{TaskID: event.TaskID, WorkerID: event.AgentID},
				map[string]any{
					"subscriber_id": s.id,
					"event_type":    string(event.Type),
					"recovered":     fmt.Sprintf("%v", r),
				})
		}
	}()
	s.fn(event)
}

func (b *Bus) appendHistoryLocked(event swarmtypes.SwarmEvent) {
	b.history = append(b.history, event)
	if over := len(b.history) - b.historyCap; over > 0 {
		// Oldest-first eviction: drop the front of the slice.
		b.history = append([]swarmtypes.SwarmEvent(nil), b.history[over:]...)
	}
}

func (b *Bus) persistLocked(event swarmtypes.SwarmEvent) {
	if b.persistW == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		logger.WarnCF("events", "failed to marshal event for persistence", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if _, err := b.persistW.Write(line); err != nil {
		logger.WarnCF("events", "failed to write event to persistence sink", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if _, err := b.persistW.WriteString("\n"); err != nil {
		logger.WarnCF("events", "failed to write newline to persistence sink", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if err := b.persistW.Flush(); err != nil {
		logger.WarnCF("events", "failed to flush persistence sink", map[string]any{
			"error": err.Error(),
		})
	}
}

// Recent returns the last n events in emit order (oldest of the
// returned slice first). If n exceeds the history size, the full
// history is returned.
func (b *Bus) Recent(n int) []swarmtypes.SwarmEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	start := len(b.history) - n
	out := make([]swarmtypes.SwarmEvent, n)
	copy(out, b.history[start:])
	return out
}

// History returns the full bounded history in emit order.
func (b *Bus) History() []swarmtypes.SwarmEvent {
	return b.Recent(-1)
}
