package moltbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL+"/api/v1")
}

func TestBearerAuthAttached(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"status": "claimed"})
	})

	res := c.GetStatus(context.Background())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if status, _ := res.Str("status"); status != "claimed" {
		t.Errorf("status = %q, want claimed", status)
	}
}

func TestRedirectRefused(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://evil.example.com/", http.StatusFound)
	})

	res := c.GetFeed(context.Background(), "hot", 10)
	if res.Success {
		t.Fatal("redirect response must not be treated as success")
	}
	if res.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", res.StatusCode)
	}
	if res.Err == "" {
		t.Error("expected an explanatory error for the refused redirect")
	}
}

func TestNonCanonicalHostRefused(t *testing.T) {
	c := NewClient("test-key", "https://moltbook.evil.example/api/v1")
	res := c.GetStatus(context.Background())
	if res.Success {
		t.Fatal("request to non-canonical host must fail")
	}
	if res.Err == "" {
		t.Error("expected credential-guard error")
	}
}

func TestAbsoluteEndpointRefused(t *testing.T) {
	c := NewClient("test-key", "")
	res := c.request(context.Background(), http.MethodGet, "https://elsewhere.example/feed", nil)
	if res.Success || res.Err == "" {
		t.Fatalf("absolute endpoint must be refused, got %+v", res)
	}
}

func TestErrorBodyDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": "title too short"})
	})

	res := c.CreatePost(context.Background(), "general", "x", "body")
	if res.Success {
		t.Fatal("4xx must not be success")
	}
	if res.Err != "title too short" {
		t.Errorf("err = %q, want server message", res.Err)
	}
}

func TestRateLimitHints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":               "rate limit exceeded",
			"retry_after_seconds": 45,
			"daily_remaining":     3,
		})
	})

	res := c.CreateComment(context.Background(), "p1", "nice post", "")
	if !res.RateLimited() {
		t.Fatalf("expected rate-limited result, got %+v", res)
	}
	if sec, ok := res.Int("retry_after_seconds"); !ok || sec != 45 {
		t.Errorf("retry_after_seconds = %d (%v), want 45", sec, ok)
	}
	if rem, ok := res.Int("daily_remaining"); !ok || rem != 3 {
		t.Errorf("daily_remaining = %d (%v), want 3", rem, ok)
	}
}

func TestNoContentIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	res := c.DeletePost(context.Background(), "p1")
	if !res.Success {
		t.Fatalf("204 should be success, got %+v", res)
	}
}
