package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(t time.Time)         { c.t = t }

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "rate_limits.json")
	return NewTracker(path, WithClock(clock.Now)), clock
}

func TestCanCommentFresh(t *testing.T) {
	tr, _ := newTestTracker(t)

	d := tr.CanComment()
	if !d.Allowed {
		t.Fatalf("fresh tracker should allow comments, got %+v", d)
	}
	if d.CommentsRemaining != 50 {
		t.Errorf("remaining = %d, want 50", d.CommentsRemaining)
	}
}

func TestCommentCooldown(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.RecordComment()

	d := tr.CanComment()
	if d.Allowed {
		t.Fatal("comment immediately after recording should be denied")
	}
	if d.Reason != "cooldown" {
		t.Errorf("reason = %q, want cooldown", d.Reason)
	}
	if d.WaitSeconds != 20 {
		t.Errorf("wait_seconds = %d, want 20", d.WaitSeconds)
	}

	// Wait monotonically decreases as time advances.
	clock.Advance(7 * time.Second)
	if d = tr.CanComment(); d.WaitSeconds != 13 {
		t.Errorf("wait_seconds after 7s = %d, want 13", d.WaitSeconds)
	}

	clock.Advance(14 * time.Second)
	if d = tr.CanComment(); !d.Allowed {
		t.Errorf("comment after cooldown elapsed should be allowed, got %+v", d)
	}
}

func TestDailyLimit(t *testing.T) {
	tr, clock := newTestTracker(t)

	for i := 0; i < 50; i++ {
		d := tr.CanComment()
		if !d.Allowed {
			t.Fatalf("comment %d unexpectedly denied: %+v", i+1, d)
		}
		tr.RecordComment()
		clock.Advance(21 * time.Second)
	}

	d := tr.CanComment()
	if d.Allowed {
		t.Fatal("51st comment should be denied")
	}
	if d.Reason != "daily_limit" {
		t.Errorf("reason = %q, want daily_limit", d.Reason)
	}
	if d.CommentsRemaining != 0 {
		t.Errorf("remaining = %d, want 0", d.CommentsRemaining)
	}
}

func TestDailyRollover(t *testing.T) {
	tr, clock := newTestTracker(t)

	for i := 0; i < 10; i++ {
		tr.RecordComment()
		clock.Advance(30 * time.Second)
	}
	if st := tr.Status(); st.Comments.Used != 10 {
		t.Fatalf("used = %d, want 10", st.Comments.Used)
	}

	// Cross UTC midnight. The counter resets lazily on the next access.
	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	st := tr.Status()
	if st.Comments.Used != 0 {
		t.Errorf("used after rollover = %d, want 0", st.Comments.Used)
	}
	if st.ResetDate != "2026-03-11" {
		t.Errorf("reset_date = %q, want 2026-03-11", st.ResetDate)
	}
}

func TestApplyCommentRateLimit(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.ApplyCommentRateLimit(120, -1)
	d := tr.CanComment()
	if d.Allowed || d.Reason != "cooldown" {
		t.Fatalf("expected cooldown denial, got %+v", d)
	}
	if d.WaitSeconds != 120 {
		t.Errorf("wait_seconds = %d, want 120", d.WaitSeconds)
	}

	// A smaller retry-after must not shorten the active block.
	clock.Advance(10 * time.Second)
	tr.ApplyCommentRateLimit(30, -1)
	if d = tr.CanComment(); d.WaitSeconds != 110 {
		t.Errorf("wait_seconds after smaller reapply = %d, want 110", d.WaitSeconds)
	}

	// A successful comment clears the stale block.
	clock.Advance(2 * time.Minute)
	tr.RecordComment()
	clock.Advance(21 * time.Second)
	if d = tr.CanComment(); !d.Allowed {
		t.Errorf("expected allowed after block expiry and cooldown, got %+v", d)
	}
}

func TestApplyCommentRateLimitDailyReconciliation(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.RecordComment()
	clock.Advance(time.Minute)

	// Server says only 5 remain: local counter must rise to 45.
	tr.ApplyCommentRateLimit(0, 5)
	if st := tr.Status(); st.Comments.Used != 45 {
		t.Errorf("used = %d, want 45", st.Comments.Used)
	}

	// Server reporting more remaining than local must NOT lower the local
	// counter (conservative reconciliation).
	tr.ApplyCommentRateLimit(0, 49)
	if st := tr.Status(); st.Comments.Used != 45 {
		t.Errorf("used after optimistic report = %d, want 45", st.Comments.Used)
	}

	// Out-of-range remaining is clamped.
	tr.ApplyCommentRateLimit(0, 1000)
	if st := tr.Status(); st.Comments.Used != 45 {
		t.Errorf("used after clamped report = %d, want 45", st.Comments.Used)
	}
}

func TestPostCooldown(t *testing.T) {
	tr, clock := newTestTracker(t)

	if d := tr.CanPost(); !d.Allowed {
		t.Fatalf("fresh tracker should allow posts, got %+v", d)
	}

	tr.RecordPost()
	d := tr.CanPost()
	if d.Allowed {
		t.Fatal("post immediately after recording should be denied")
	}
	if d.Reason != "cooldown" {
		t.Errorf("reason = %q, want cooldown", d.Reason)
	}
	if d.WaitMinutes < 29 || d.WaitMinutes > 31 {
		t.Errorf("wait_minutes = %d, want ~30", d.WaitMinutes)
	}

	clock.Advance(31 * time.Minute)
	if d = tr.CanPost(); !d.Allowed {
		t.Errorf("post after cooldown should be allowed, got %+v", d)
	}
}

func TestApplyPostRateLimit(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.ApplyPostRateLimit(15)
	d := tr.CanPost()
	if d.Allowed {
		t.Fatal("post should be denied after server throttle")
	}
	if d.WaitMinutes < 14 || d.WaitMinutes > 16 {
		t.Errorf("wait_minutes = %d, want ~15", d.WaitMinutes)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "rate_limits.json")

	tr := NewTracker(path, WithClock(clock.Now))
	for i := 0; i < 3; i++ {
		tr.RecordComment()
		clock.Advance(21 * time.Second)
	}
	tr.RecordPost()
	before := tr.Status()

	// A fresh tracker over the same file must answer identically.
	reloaded := NewTracker(path, WithClock(clock.Now))
	after := reloaded.Status()

	if before.Comments.Used != after.Comments.Used {
		t.Errorf("used: before=%d after=%d", before.Comments.Used, after.Comments.Used)
	}
	if before.Posts.CanPost != after.Posts.CanPost {
		t.Errorf("can_post: before=%v after=%v", before.Posts.CanPost, after.Posts.CanPost)
	}
	c1, c2 := tr.CanComment(), reloaded.CanComment()
	if c1.Allowed != c2.Allowed || c1.Reason != c2.Reason {
		t.Errorf("can_comment diverged: %+v vs %+v", c1, c2)
	}
}

func TestCorruptStateFallsBackToFresh(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "rate_limits.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(path, WithClock(clock.Now))
	if d := tr.CanComment(); !d.Allowed || d.CommentsRemaining != 50 {
		t.Errorf("corrupt state should yield fresh tracker, got %+v", d)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RecordComment()

	// No temp files left behind after a save.
	entries, err := os.ReadDir(filepath.Dir(tr.path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(tr.path) {
			t.Errorf("unexpected leftover file %q", e.Name())
		}
	}
}
