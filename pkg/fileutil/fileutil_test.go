package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicCreatesFileAndDirs(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "out.txt")

	if err := WriteFileAtomic(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", string(got), "hello")
	}

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("expected parent dir to exist: %v", err)
	}
}

func TestWriteFileAtomicOverwritesExisting(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "out.txt")

	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", string(got), "second")
	}

	matches, _ := filepath.Glob(filepath.Join(root, "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
