package cli

import (
	"path/filepath"
	"testing"

	"moltbot/internal/activity"
	"moltbot/internal/suggestions"
)

func TestSuggestionsChangedRecordsActivity(t *testing.T) {
	store, err := suggestions.NewStore(filepath.Join(t.TempDir(), "suggestions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Add("post about molting season"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add("reply to the pinned thread"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	alog := activity.NewLog()
	suggestionsChanged(alog, store)()

	events := alog.Recent(10)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Type != "suggestions_changed" {
		t.Fatalf("type = %q, want suggestions_changed", events[0].Type)
	}
	if got := events[0].Details["pending"]; got != 2 {
		t.Fatalf("pending = %v, want 2", got)
	}
}
