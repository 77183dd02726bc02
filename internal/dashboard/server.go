// Package dashboard serves the local web UI: loop status, live activity
// stream, and the suggestion inbox humans use to nudge the agent.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"moltbot/internal/activity"
	"moltbot/internal/agent"
	"moltbot/internal/ratelimit"
	"moltbot/internal/suggestions"
)

//go:embed static
var staticFS embed.FS

// StatsSource exposes the loop counters to the status endpoint.
type StatsSource interface {
	Stats() agent.Stats
}

type errorResponse struct {
	Error string `json:"error"`
}

// Deps bundles the stores the dashboard reads from and writes to.
type Deps struct {
	Stats       StatsSource
	Tracker     *ratelimit.Tracker
	Activity    *activity.Log
	Archive     *activity.Archive // optional, nil disables /api/activity/history
	Suggestions *suggestions.Store
}

// Config holds server tuning.
type Config struct {
	Addr string
	// HeartbeatInterval paces SSE keepalive comments. Default 30s.
	HeartbeatInterval time.Duration
}

type Server struct {
	deps      Deps
	heartbeat time.Duration
	server    *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	s := &Server{deps: deps, heartbeat: cfg.HeartbeatInterval}
	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the router. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logMiddleware())

	r.Get("/", s.index)
	r.Get("/api/status", s.status)
	r.Get("/api/suggestions", s.listSuggestions)
	r.Post("/api/suggestions", s.addSuggestion)
	r.Get("/api/activity/recent", s.recentActivity)
	r.Get("/api/activity/history", s.activityHistory)
	r.Get("/api/activity/stream", s.streamActivity)

	return r
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("dashboard listening")
	err := s.server.ListenAndServe()
	if err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "dashboard page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

type statusResponse struct {
	Running           bool             `json:"running"`
	UptimeHours       float64          `json:"uptime_hours"`
	TotalActions      int              `json:"total_actions"`
	SuccessfulActions int              `json:"successful_actions"`
	SuccessRate       float64          `json:"success_rate"`
	LastActivity      *time.Time       `json:"last_activity"`
	RateLimits        ratelimit.Status `json:"rate_limits"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{RateLimits: s.deps.Tracker.Status()}
	if s.deps.Stats != nil {
		st := s.deps.Stats.Stats()
		resp.Running = true
		resp.UptimeHours = round2(st.UptimeHours)
		resp.TotalActions = st.TotalActions
		resp.SuccessfulActions = st.SuccessfulActions
		resp.SuccessRate = round1(st.SuccessRate)
		if !st.LastActivity.IsZero() {
			t := st.LastActivity
			resp.LastActivity = &t
		}
	}
	render.JSON(w, r, resp)
}

func (s *Server) listSuggestions(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"success":     true,
		"suggestions": s.deps.Suggestions.Pending(),
	})
}

type suggestionRequest struct {
	Text string `json:"text"`
}

func (s *Server) addSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "unable to parse body"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, map[string]any{"success": false, "error": "Empty suggestion"})
		return
	}

	sug, err := s.deps.Suggestions.Add(text)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.deps.Activity.Record("suggestion_received", map[string]any{
		"text":          text,
		"suggestion_id": sug.ID,
	})

	render.JSON(w, r, map[string]any{"success": true, "suggestion": sug})
}

func (s *Server) recentActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	render.JSON(w, r, map[string]any{
		"success":    true,
		"activities": s.deps.Activity.Recent(limit),
	})
}

func (s *Server) activityHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "activity archive disabled"})
		return
	}
	limit := queryLimit(r, 200)
	events, err := s.deps.Archive.History(limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "activities": events})
}

func (s *Server) streamActivity(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.deps.Activity.Subscribe()
	defer cancel()

	fmt.Fprint(w, "data: {\"type\":\"connected\",\"message\":\"Connected to activity stream\"}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func round2(f float64) float64 { return float64(int(f*100+0.5)) / 100 }
func round1(f float64) float64 { return float64(int(f*10+0.5)) / 10 }

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))
	return c.Then
}
