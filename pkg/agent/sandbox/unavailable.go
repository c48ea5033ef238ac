package sandbox

import (
	"context"
	"errors"
	"os"
)

// ErrSandboxUnavailable is returned by every operation on a sandbox that
// failed to resolve (for example a Manager with no configured runtime).
var ErrSandboxUnavailable = errors.New("sandbox: unavailable")

// unavailableSandboxManager is a Sandbox/Manager that always fails,
// carrying the reason it could not resolve a real sandbox. It lets
// callers fall back to FromContext/Resolve error handling instead of a
// nil-pointer check at every call site.
type unavailableSandboxManager struct {
	reason error
}

// NewUnavailableSandboxManager returns a Manager whose Resolve and direct
// Sandbox operations all fail with reason (or ErrSandboxUnavailable when
// reason is nil).
func NewUnavailableSandboxManager(reason error) Manager {
	return &unavailableSandboxManager{reason: reason}
}

func (m *unavailableSandboxManager) err() error {
	if m.reason != nil {
		return m.reason
	}
	return ErrSandboxUnavailable
}

func (m *unavailableSandboxManager) Start(ctx context.Context) error { return m.err() }
func (m *unavailableSandboxManager) Prune(ctx context.Context) error { return nil }

func (m *unavailableSandboxManager) Exec(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	return nil, m.err()
}

func (m *unavailableSandboxManager) ExecStream(ctx context.Context, req ExecRequest, onEvent func(ExecEvent) error) (*ExecResult, error) {
	return nil, m.err()
}

func (m *unavailableSandboxManager) Fs() FsBridge {
	return &unavailableFS{err: m.err()}
}

func (m *unavailableSandboxManager) Resolve(ctx context.Context) (Sandbox, error) {
	return nil, m.err()
}

type unavailableFS struct {
	err error
}

func (f *unavailableFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return nil, f.err
}

func (f *unavailableFS) WriteFile(ctx context.Context, path string, data []byte, mkdir bool) error {
	return f.err
}

func (f *unavailableFS) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	return nil, f.err
}
