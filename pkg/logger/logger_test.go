package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInfoCXWritesCorrelationFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")
	if err := EnableFileLogging(path); err != nil {
		t.Fatal(err)
	}
	defer DisableFileLogging()

	InfoCX("workerpool", "dispatching task to worker", Context{RunID: "r1", TaskID: "t1", WorkerID: "w1"}, map[string]any{"model": "gpt"})

	entry := readLastEntry(t, path)
	if entry.RunID != "r1" || entry.TaskID != "t1" || entry.WorkerID != "w1" {
		t.Fatalf("expected correlation fields to round-trip, got %+v", entry)
	}
}

func TestInfoCFLeavesCorrelationFieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")
	if err := EnableFileLogging(path); err != nil {
		t.Fatal(err)
	}
	defer DisableFileLogging()

	InfoCF("events", "no correlation context here", map[string]any{"x": 1})

	entry := readLastEntry(t, path)
	if entry.RunID != "" || entry.TaskID != "" || entry.WorkerID != "" {
		t.Fatalf("expected empty correlation fields, got %+v", entry)
	}
}

func TestLogMessageCtxRedactsFieldsAndMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")
	if err := EnableFileLogging(path); err != nil {
		t.Fatal(err)
	}
	defer DisableFileLogging()

	SetRedactionEnabled(true)
	WarnCX("spawnadapter", "worker process failed to run", Context{TaskID: "t1"}, map[string]any{
		"error": "auth failed, api_key=sk-ant-REDACTED",
	})

	entry := readLastEntry(t, path)
	errVal, _ := entry.Fields["error"].(string)
	if errVal == "" || errVal == "auth failed, api_key=sk-ant-REDACTED" {
		t.Fatalf("expected the provider key in the field value to be redacted, got %q", errVal)
	}
}

func readLastEntry(t *testing.T, path string) LogEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lastLine = line
		}
	}
	if lastLine == "" {
		t.Fatal("expected at least one JSON log line")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lastLine), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	return entry
}
