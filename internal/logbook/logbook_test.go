package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	lb, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	lb.Info("run started with %d samples", 5)
	lb.Phase("distribute", "op %d complete", 0)
	lb.Error("op %d failed", 1)

	lines := lb.Tail(10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "run started with 5 samples") {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "[distribute]") {
		t.Fatalf("phase tag missing: %s", lines[1])
	}
	if !strings.Contains(lines[2], "ERROR") {
		t.Fatalf("error level missing: %s", lines[2])
	}
}

func TestTailTruncatesToMostRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	lb, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 10; i++ {
		lb.Info("entry %d", i)
	}
	lines := lb.Tail(3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[2], "entry 9") {
		t.Fatalf("expected newest entry last, got %s", lines[2])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var lb *Logbook
	lb.Info("ignored")
	lb.Phase("mix", "ignored")
	lb.Error("ignored")
	if lb.Tail(5) != nil {
		t.Fatal("nil logbook should have no tail")
	}
	if lb.Path() != "" {
		t.Fatal("nil logbook should have no path")
	}
}
