package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "hash-1", ActionScan, 1); err != nil {
		t.Fatalf("append scan: %v", err)
	}
	if err := s.Append(ctx, "hash-1", ActionDelete, 42); err != nil {
		t.Fatalf("append delete: %v", err)
	}
	if err := s.Append(ctx, "hash-2", ActionBlock, 1); err != nil {
		t.Fatalf("append block: %v", err)
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Action != ActionScan || entries[1].Count != 42 || entries[2].UserHash != "hash-2" {
		t.Fatalf("unexpected rows: %+v", entries)
	}
	if time.Since(entries[0].Timestamp) > time.Minute {
		t.Fatalf("timestamp not recent: %v", entries[0].Timestamp)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	s1, err := NewStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.Append(context.Background(), "h", ActionScan, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	s1.Close()

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	entries, err := s2.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("rows survived reopen = %d, want 1", len(entries))
	}
}

func TestRecorder_SwallowsFailures(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, nil)
	ctx := context.Background()

	r.Record(ctx, "hash-1", ActionScan, 1)
	entries, err := s.Entries(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries = %v, %v", entries, err)
	}

	// A dead store must not panic or surface anything.
	s.Close()
	r.Record(ctx, "hash-1", ActionDelete, 3)

	var nilRecorder *Recorder
	nilRecorder.Record(ctx, "hash-1", ActionBlock, 1)
}
