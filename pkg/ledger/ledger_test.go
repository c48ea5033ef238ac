package ledger

import (
	"path/filepath"
	"testing"
)

func TestClaimExclusivity(t *testing.T) {
	l := New()
	if !l.Claim("x.py", "agent-a", "t1") {
		t.Fatal("expected first claim to succeed")
	}
	if l.Claim("x.py", "agent-b", "t2") {
		t.Fatal("expected conflicting claim to fail")
	}
}

func TestClaimIdempotentBySameAgent(t *testing.T) {
	l := New()
	if !l.Claim("x.py", "agent-a", "t1") {
		t.Fatal("expected first claim to succeed")
	}
	if !l.Claim("x.py", "agent-a", "t1") {
		t.Fatal("expected repeat claim by the same agent to be idempotent")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l := New()
	l.Claim("x.py", "agent-a", "t1")
	l.Release("x.py", "agent-a")
	l.Release("x.py", "agent-a") // must not panic or error

	if !l.Claim("x.py", "agent-b", "t2") {
		t.Fatal("expected claim to succeed after release")
	}
}

func TestReleaseAllReleasesOnlyThatAgentsClaims(t *testing.T) {
	l := New()
	l.Claim("a.py", "agent-a", "t1")
	l.Claim("b.py", "agent-b", "t2")
	l.ReleaseAll("agent-a")

	if len(l.GetActiveClaims()) != 1 {
		t.Fatalf("expected 1 remaining claim, got %d", len(l.GetActiveClaims()))
	}
	if _, ok := l.GetActiveClaims()["b.py"]; !ok {
		t.Fatal("expected agent-b's claim to survive")
	}
}

func TestSnapshotOfAbsentFileIsEmptyContent(t *testing.T) {
	l := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "nope.txt")

	v, err := l.Snapshot(path, "agent-a")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if v.ContentSnapshot != "" {
		t.Fatalf("expected empty content for absent file, got %q", v.ContentSnapshot)
	}
}

func TestAttemptWriteSucceedsOnMatchingBaseHash(t *testing.T) {
	l := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "x.py")

	v, err := l.Snapshot(path, "agent-a")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	res, err := l.AttemptWrite(AttemptWriteRequest{
		Path: path, AgentID: "agent-a", TaskID: "t1",
		NewContent: "print('hi')", BaseHash: v.VersionHash,
	})
	if err != nil {
		t.Fatalf("attempt write: %v", err)
	}
	if !res.Success || res.Conflict {
		t.Fatalf("expected successful write, got %+v", res)
	}
}

func TestAttemptWriteConflictsOnStaleBaseHash(t *testing.T) {
	l := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "y.py")

	v1, _ := l.Snapshot(path, "agent-1")
	// agent-2 writes first, advancing the on-disk hash.
	if _, err := l.AttemptWrite(AttemptWriteRequest{
		Path: path, AgentID: "agent-2", TaskID: "t2",
		NewContent: "v2", BaseHash: v1.VersionHash,
	}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// agent-1 attempts to write using its now-stale base hash.
	res, err := l.AttemptWrite(AttemptWriteRequest{
		Path: path, AgentID: "agent-1", TaskID: "t1",
		NewContent: "v1-content", BaseHash: v1.VersionHash,
	})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if res.Success || !res.Conflict {
		t.Fatalf("expected conflict, got %+v", res)
	}
}

func TestVersionLinearizability(t *testing.T) {
	l := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "z.py")

	v0, _ := l.Snapshot(path, "agent-1")
	w1, err := l.AttemptWrite(AttemptWriteRequest{
		Path: path, AgentID: "agent-1", TaskID: "t1",
		NewContent: "content-after-w1", BaseHash: v0.VersionHash,
	})
	if err != nil || !w1.Success {
		t.Fatalf("w1 failed: %v %+v", err, w1)
	}

	// W2's baseHash must equal hash(content-after-W1) to succeed.
	w2, err := l.AttemptWrite(AttemptWriteRequest{
		Path: path, AgentID: "agent-2", TaskID: "t2",
		NewContent: "content-after-w2", BaseHash: w1.CurrentHash,
	})
	if err != nil || !w2.Success {
		t.Fatalf("w2 failed: %v %+v", err, w2)
	}
}
