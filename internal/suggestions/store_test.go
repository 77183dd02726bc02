package suggestions

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "suggestions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAddAndPending(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Add("post about lasagna")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := s.Add("check the aithoughts submolt")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first.ID == second.ID {
		t.Error("suggestion ids must be unique even within the same millisecond")
	}

	pending := s.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Text != "post about lasagna" {
		t.Errorf("text = %q", pending[0].Text)
	}
	if pending[0].Status != StatusPending {
		t.Errorf("status = %q, want pending", pending[0].Status)
	}
}

func TestMarkSeenKeepsEntry(t *testing.T) {
	s := newTestStore(t)
	sg, _ := s.Add("one idea")

	if err := s.MarkSeen(sg.ID); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if got := s.Pending(); len(got) != 0 {
		t.Errorf("pending after MarkSeen = %d, want 0", len(got))
	}
	all := s.All()
	if len(all) != 1 || all[0].Status != StatusSeen || all[0].SeenAt == nil {
		t.Errorf("all = %+v, want one seen entry with seen_at", all)
	}
}

func TestMarkAllPendingSeenPrunes(t *testing.T) {
	s := newTestStore(t)
	s.Add("a")
	s.Add("b")
	kept, _ := s.Add("c")
	s.MarkSeen(kept.ID)

	consumed := s.MarkAllPendingSeen()
	if consumed != 2 {
		t.Errorf("consumed = %d, want 2", consumed)
	}
	all := s.All()
	if len(all) != 1 || all[0].ID != kept.ID {
		t.Errorf("file after prune = %+v, want only the already-seen entry", all)
	}
	if s.MarkAllPendingSeen() != 0 {
		t.Error("second prune should consume nothing")
	}
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suggestions.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := s.All(); len(got) != 0 {
		t.Errorf("corrupt file should read as empty, got %v", got)
	}

	// Writes recover the file.
	if _, err := s.Add("fresh start"); err != nil {
		t.Fatalf("Add after corruption: %v", err)
	}
	if got := s.Pending(); len(got) != 1 {
		t.Errorf("pending = %d, want 1", len(got))
	}
}

func TestExternalEditsVisibleWithoutRestart(t *testing.T) {
	s := newTestStore(t)
	s.Add("original")

	// Simulate a human editing the file directly.
	external := `[{"id": 1, "text": "edited by hand", "created_at": "2025-06-01T10:00:00Z", "status": "pending"}]`
	if err := os.WriteFile(s.Path(), []byte(external), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	pending := s.Pending()
	if len(pending) != 1 || pending[0].Text != "edited by hand" {
		t.Errorf("pending = %+v, want the externally edited entry", pending)
	}
}

func TestWatcherFiresOnExternalWrite(t *testing.T) {
	s := newTestStore(t)

	var fired atomic.Int32
	w, err := Watch(s.Path(), func() { fired.Add(1) })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Stop()

	if _, err := s.Add("trigger the watcher"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
