package cancel

import (
	"testing"
	"time"
)

func TestCancelIdempotentFirstReasonRetained(t *testing.T) {
	root, cancelFn := NewRoot()
	cancelFn("first")
	cancelFn("second")

	if !root.IsCancelled() {
		t.Fatal("expected root to be cancelled")
	}
	if root.Reason() != "first" {
		t.Fatalf("expected reason %q, got %q", "first", root.Reason())
	}
}

func TestLinkedChildCascades(t *testing.T) {
	root, cancelRoot := NewRoot()
	child, _ := LinkedChild(root)
	grandchild, _ := LinkedChild(child)

	if child.IsCancelled() || grandchild.IsCancelled() {
		t.Fatal("children must not start cancelled")
	}

	cancelRoot("shutdown")

	select {
	case <-grandchild.Done():
	case <-time.After(50 * time.Millisecond):
		t.Fatal("grandchild not cancelled within propagation deadline")
	}

	if !child.IsCancelled() || child.Reason() != "shutdown" {
		t.Fatal("child must be cancelled with the parent's reason")
	}
	if !grandchild.IsCancelled() || grandchild.Reason() != "shutdown" {
		t.Fatal("grandchild must be cancelled with the parent's reason")
	}
}

func TestLinkedChildOfAlreadyCancelledParentStartsCancelled(t *testing.T) {
	root, cancelRoot := NewRoot()
	cancelRoot("already-gone")

	child, _ := LinkedChild(root)
	if !child.IsCancelled() {
		t.Fatal("child of already-cancelled parent must start cancelled")
	}
	if child.Reason() != "already-gone" {
		t.Fatalf("expected inherited reason, got %q", child.Reason())
	}
}

func TestCheckReturnsClassifiedError(t *testing.T) {
	root, cancelRoot := NewRoot()
	if err := root.Check(); err != nil {
		t.Fatalf("expected nil before cancellation, got %v", err)
	}
	cancelRoot("stop")
	if err := root.Check(); err == nil {
		t.Fatal("expected an error after cancellation")
	}
}

func TestCascadeDoesNotReviveAfterDeregistrationPattern(t *testing.T) {
	// Regression against double-cancel re-entering children twice: a
	// child cancelled directly must not be cancelled again (with a
	// different reason) when the parent later cancels.
	root, cancelRoot := NewRoot()
	child, cancelChild := LinkedChild(root)
	cancelChild("child-initiated")
	cancelRoot("root-initiated")

	if child.Reason() != "child-initiated" {
		t.Fatalf("expected first reason retained, got %q", child.Reason())
	}
}
