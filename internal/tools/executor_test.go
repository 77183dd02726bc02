package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"moltbot/internal/moltbook"
	"moltbot/internal/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Record(eventType string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

type fakeMemory struct {
	similar []string
	kept    []string
}

func (m *fakeMemory) Remember(kind, title, content string) error {
	m.kept = append(m.kept, kind+":"+title)
	return nil
}

func (m *fakeMemory) SimilarPosts(title string) ([]string, error) {
	return m.similar, nil
}

type testEnv struct {
	executor *Executor
	clock    *fakeClock
	sink     *recordingSink
	memory   *fakeMemory
	requests *int
}

func newTestEnv(t *testing.T, handler http.HandlerFunc) (*testEnv, *httptest.Server) {
	t.Helper()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	clock := newFakeClock()
	tracker := ratelimit.NewTracker(
		filepath.Join(t.TempDir(), "rate_limits.json"),
		ratelimit.WithClock(clock.Now),
	)

	sink := &recordingSink{}
	mem := &fakeMemory{}
	exec := NewExecutor(Deps{
		Client:   moltbook.NewClient("test-key", srv.URL),
		Limiter:  tracker,
		Activity: sink,
		Memory:   mem,
	})
	return &testEnv{executor: exec, clock: clock, sink: sink, memory: mem, requests: &requests}, srv
}

func okJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestExecuteUnknownTool(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true}`)
	})

	out := env.executor.Execute(context.Background(), "launch_rocket", map[string]any{})
	if out.Success {
		t.Fatal("unknown tool should not succeed")
	}
	if !strings.Contains(out.Err, "Unknown tool") {
		t.Errorf("error = %q, want mention of unknown tool", out.Err)
	}
	if *env.requests != 0 {
		t.Errorf("unknown tool hit the server %d times", *env.requests)
	}
}

func TestExecuteRejectsInvalidArgs(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true}`)
	})

	// read_post requires post_id
	out := env.executor.Execute(context.Background(), "read_post", map[string]any{})
	if out.Success {
		t.Fatal("missing required arg should fail validation")
	}
	if *env.requests != 0 {
		t.Errorf("invalid args hit the server %d times", *env.requests)
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	env.executor.Registry()["explode"] = Tool{
		Name:       "explode",
		SchemaJSON: `{"type": "object"}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			panic("boom")
		},
	}

	out := env.executor.Execute(context.Background(), "explode", nil)
	if out.Success {
		t.Fatal("panicking tool should report failure")
	}
	if !strings.Contains(out.Err, "boom") {
		t.Errorf("error = %q, want panic message", out.Err)
	}
}

func TestCreateCommentBlockedLocallySkipsServer(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true}`)
	})
	ctx := context.Background()

	first := env.executor.Execute(ctx, "create_comment", map[string]any{
		"post_id": "p1", "content": "nice post",
	})
	if !first.Success {
		t.Fatalf("first comment failed: %s", first.Err)
	}
	served := *env.requests

	// Cooldown is active now; the second attempt must never reach the API.
	second := env.executor.Execute(ctx, "create_comment", map[string]any{
		"post_id": "p2", "content": "another one",
	})
	if second.Success {
		t.Fatal("comment during cooldown should be denied")
	}
	if !second.RateLimited {
		t.Error("denial should be flagged as rate limited")
	}
	if second.Data["reason"] != "cooldown" {
		t.Errorf("reason = %v, want cooldown", second.Data["reason"])
	}
	if *env.requests != served {
		t.Errorf("rate-limited comment hit the server (%d -> %d requests)", served, *env.requests)
	}

	env.clock.Advance(21 * time.Second)
	third := env.executor.Execute(ctx, "create_comment", map[string]any{
		"post_id": "p3", "content": "cooldown over",
	})
	if !third.Success {
		t.Fatalf("comment after cooldown failed: %s", third.Err)
	}
}

func TestCreateCommentServer429AppliesBlock(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		okJSON(w, `{"success": false, "error": "slow down", "retry_after_seconds": 90}`)
	})
	ctx := context.Background()

	out := env.executor.Execute(ctx, "create_comment", map[string]any{
		"post_id": "p1", "content": "hello there",
	})
	if out.Success || !out.RateLimited {
		t.Fatalf("429 should yield rate-limited outcome, got %+v", out)
	}
	if out.Data["reason"] != "cooldown" {
		t.Errorf("reason = %v, want cooldown", out.Data["reason"])
	}

	// The server block must now gate local decisions too.
	env.clock.Advance(30 * time.Second)
	blocked := env.executor.Execute(ctx, "create_comment", map[string]any{
		"post_id": "p2", "content": "still here",
	})
	if blocked.Success {
		t.Fatal("server block should still deny after 30s of a 90s block")
	}

}

func TestCreatePostValidation(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true}`)
	})
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"short title", map[string]any{"submolt": "general", "title": "a", "content": "long enough content here"}},
		{"short content", map[string]any{"submolt": "general", "title": "A real title", "content": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := env.executor.Execute(ctx, "create_post", tt.args)
			if out.Success {
				t.Fatal("malformed content should be rejected locally")
			}
			if out.RateLimited {
				t.Error("local content rejection is not a rate limit")
			}
		})
	}
	if *env.requests != 0 {
		t.Errorf("rejected posts hit the server %d times", *env.requests)
	}
}

func TestCreateLinkPostRequiresHTTPS(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true}`)
	})

	out := env.executor.Execute(context.Background(), "create_link_post", map[string]any{
		"submolt": "general", "title": "Check this out", "url": "ftp://example.com/file",
	})
	if out.Success {
		t.Fatal("non-https link should be rejected")
	}
	if *env.requests != 0 {
		t.Error("rejected link post hit the server")
	}
}

func TestCreatePostDuplicateGuard(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true}`)
	})
	env.memory.similar = []string{"My thoughts on robot chickens"}

	out := env.executor.Execute(context.Background(), "create_post", map[string]any{
		"submolt": "general",
		"title":   "My thoughts on robot chickens",
		"content": "I have been thinking about robot chickens again.",
	})
	if out.Success {
		t.Fatal("near-duplicate post should be rejected")
	}
	if !strings.Contains(out.Err, "similar") {
		t.Errorf("error = %q, want duplicate explanation", out.Err)
	}
	if *env.requests != 0 {
		t.Error("duplicate post hit the server")
	}
}

func TestCreatePostSuccessRecordsAndRemembers(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"success": true, "post": {"id": "new1"}}`)
	})
	ctx := context.Background()

	out := env.executor.Execute(ctx, "create_post", map[string]any{
		"submolt": "general",
		"title":   "A fresh topic",
		"content": "Something I have never posted about before.",
	})
	if !out.Success {
		t.Fatalf("post failed: %s", out.Err)
	}
	if len(env.memory.kept) != 1 || env.memory.kept[0] != "post:A fresh topic" {
		t.Errorf("memory = %v, want the post remembered", env.memory.kept)
	}

	// The 30-minute post cooldown is now active.
	second := env.executor.Execute(ctx, "create_post", map[string]any{
		"submolt": "general",
		"title":   "Another topic",
		"content": "More content that is long enough.",
	})
	if second.Success || !second.RateLimited {
		t.Fatalf("second post inside cooldown should be rate limited, got %+v", second)
	}
}

func TestGetFeedTruncatesBodies(t *testing.T) {
	longBody := strings.Repeat("x", 500)
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"success": true,
			"posts": []map[string]any{{
				"id":            "p1",
				"title":         "Long post",
				"content":       longBody,
				"author":        map[string]any{"name": "someone"},
				"submolt":       "general",
				"upvotes":       3,
				"comment_count": 7,
			}},
		}
		json.NewEncoder(w).Encode(body)
	})

	out := env.executor.Execute(context.Background(), "get_feed", map[string]any{
		"sort": "hot", "limit": 10,
	})
	if !out.Success {
		t.Fatalf("get_feed failed: %s", out.Err)
	}
	posts, ok := out.Data["posts"].([]map[string]any)
	if !ok || len(posts) != 1 {
		t.Fatalf("posts payload = %#v", out.Data["posts"])
	}
	content, _ := posts[0]["content"].(string)
	if len(content) != 200 {
		t.Errorf("content length = %d, want 200", len(content))
	}
	if posts[0]["author"] != "someone" {
		t.Errorf("author = %v", posts[0]["author"])
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 30)
	got := truncate(long, bodyPreviewLen)
	if utf8.RuneCountInString(got) != bodyPreviewLen {
		t.Fatalf("rune count = %d, want %d", utf8.RuneCountInString(got), bodyPreviewLen)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncated string is not valid UTF-8")
	}
	if !strings.HasPrefix(long, got) {
		t.Fatal("truncation must be a prefix of the input")
	}
	if short := truncate("héé", 10); short != "héé" {
		t.Fatalf("short strings must pass through, got %q", short)
	}
}

func TestDoneForNow(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	out := env.executor.Execute(context.Background(), "done_for_now", map[string]any{
		"reason": "did enough today",
	})
	if !out.Success || !out.Done {
		t.Fatalf("done_for_now outcome = %+v", out)
	}
	if !IsDone(out) {
		t.Error("IsDone should report true")
	}
	if *env.requests != 0 {
		t.Error("done_for_now hit the server")
	}
}

func TestRespondToUserEmitsActivity(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	out := env.executor.Execute(context.Background(), "respond_to_user", map[string]any{
		"message": "hey, saw your suggestion",
	})
	if !out.Success {
		t.Fatalf("respond_to_user failed: %s", out.Err)
	}
	if len(env.sink.events) != 1 || env.sink.events[0] != "user_response" {
		t.Errorf("events = %v, want one user_response", env.sink.events)
	}
}

func TestOutcomeJSONShape(t *testing.T) {
	out := Outcome{
		Success:     false,
		Err:         "slow down",
		RateLimited: true,
		Data:        map[string]any{"wait_seconds": 12},
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out.JSON()), &decoded); err != nil {
		t.Fatalf("outcome JSON did not parse: %v", err)
	}
	if decoded["success"] != false || decoded["error"] != "slow down" {
		t.Errorf("decoded = %v", decoded)
	}
	if decoded["rate_limit"] != true {
		t.Error("rate_limit flag missing")
	}
	if decoded["wait_seconds"].(float64) != 12 {
		t.Error("payload field missing")
	}
}

func TestSchemasAreSortedAndComplete(t *testing.T) {
	env, _ := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	schemas := env.executor.Registry().Schemas()
	if len(schemas) != 34 {
		t.Fatalf("tool count = %d, want 34", len(schemas))
	}
	for i := 1; i < len(schemas); i++ {
		if schemas[i-1].Name >= schemas[i].Name {
			t.Fatalf("schemas not sorted: %s before %s", schemas[i-1].Name, schemas[i].Name)
		}
	}
	for _, s := range schemas {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s.JSONSchema), &obj); err != nil {
			t.Errorf("schema for %s is not valid JSON: %v", s.Name, err)
		}
	}
}
