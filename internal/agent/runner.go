// Package agent drives the autonomous loop: build context, let the model
// decide, execute the chosen tools, feed results back, repeat.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"moltbot/internal/engine"
	"moltbot/internal/memory"
	"moltbot/internal/moltbook"
	"moltbot/internal/persona"
	"moltbot/internal/ratelimit"
	"moltbot/internal/suggestions"
	"moltbot/internal/tools"
)

// Decider is the slice of the decision engine the loop needs.
type Decider interface {
	Reset()
	Decide(ctx context.Context, userContext string, schemas []engine.ToolSchema) (engine.LLMResponse, error)
	AddToolResult(callID, content string)
}

// ToolRunner executes one tool call and exposes the tool menu.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any) tools.Outcome
	Schemas() []engine.ToolSchema
}

// StatusClient checks whether this agent identity is ready to act.
type StatusClient interface {
	GetStatus(ctx context.Context) moltbook.Result
}

// ActivityLogger receives loop events for the dashboard feed.
type ActivityLogger interface {
	Record(eventType string, details map[string]any)
}

// Config holds loop tuning. Zero values get sane defaults in NewRunner.
type Config struct {
	// MaxIterations caps decision rounds per cycle so a chatty model
	// cannot spin forever. Default 10.
	MaxIterations int
	// CycleInterval is the pause between cycles. Default 0 (the model
	// call latency is the natural pacing).
	CycleInterval time.Duration
	// ErrorPause is the backoff after a failed cycle. Default 2s.
	ErrorPause time.Duration
}

// Stats is a point-in-time snapshot of the loop counters.
type Stats struct {
	TotalActions      int       `json:"total_actions"`
	SuccessfulActions int       `json:"successful_actions"`
	SuccessRate       float64   `json:"success_rate"`
	StartTime         time.Time `json:"start_time"`
	UptimeHours       float64   `json:"uptime_hours"`
	LastActivity      time.Time `json:"last_activity"`
}

// Runner owns one agent identity's autonomous loop.
type Runner struct {
	client      StatusClient
	decider     Decider
	executor    ToolRunner
	tracker     *ratelimit.Tracker
	activity    ActivityLogger
	suggestions *suggestions.Store
	memory      *memory.Index
	persona     persona.Persona
	cfg         Config
	now         func() time.Time

	mu                sync.Mutex
	totalActions      int
	successfulActions int
	startTime         time.Time
	lastActivity      time.Time
}

// Deps bundles everything a Runner needs.
type Deps struct {
	Client      StatusClient
	Decider     Decider
	Executor    ToolRunner
	Tracker     *ratelimit.Tracker
	Activity    ActivityLogger
	Suggestions *suggestions.Store
	Memory      *memory.Index
	Persona     persona.Persona
	Now         func() time.Time
}

func NewRunner(d Deps, cfg Config) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = 2 * time.Second
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		client:      d.Client,
		decider:     d.Decider,
		executor:    d.Executor,
		tracker:     d.Tracker,
		activity:    d.Activity,
		suggestions: d.Suggestions,
		memory:      d.Memory,
		persona:     d.Persona,
		cfg:         cfg,
		now:         now,
		startTime:   now(),
	}
}

// Stats returns a snapshot of the loop counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		TotalActions:      r.totalActions,
		SuccessfulActions: r.successfulActions,
		StartTime:         r.startTime,
		UptimeHours:       r.now().Sub(r.startTime).Hours(),
		LastActivity:      r.lastActivity,
	}
	if s.TotalActions > 0 {
		s.SuccessRate = float64(s.SuccessfulActions) / float64(s.TotalActions) * 100
	}
	return s
}

func (r *Runner) recordAction(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalActions++
	if success {
		r.successfulActions++
	}
	r.lastActivity = r.now()
}

// checkClaimed verifies the identity is claimed before any autonomy starts.
func (r *Runner) checkClaimed(ctx context.Context) error {
	res := r.client.GetStatus(ctx)
	if res.Err != "" && res.Data == nil {
		return fmt.Errorf("status check failed: %s", res.Err)
	}
	status, _ := res.Str("status")
	if status != "claimed" {
		return fmt.Errorf("agent not claimed (status %q), refusing to start", status)
	}
	log.Info().Msg("agent is claimed and ready")
	return nil
}

// Run executes the autonomous loop until ctx is cancelled. It returns an
// error only for fatal startup conditions; per-cycle failures are logged
// and retried.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().Str("persona", r.persona.Name).Msg("starting autonomous operation")

	if err := r.checkClaimed(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("cycle failed")
			r.activity.Record("error", map[string]any{"error": err.Error()})
			if err := sleepCtx(ctx, r.cfg.ErrorPause); err != nil {
				return err
			}
			continue
		}
		if err := sleepCtx(ctx, r.cfg.CycleInterval); err != nil {
			return err
		}
	}
}

// runCycle is one full decide-and-act round: fresh history, fresh context,
// up to MaxIterations model turns.
func (r *Runner) runCycle(ctx context.Context) error {
	log.Info().Msg("cycle start: deciding what to do")

	r.decider.Reset()
	userContext := r.buildContext()
	schemas := r.executor.Schemas()

	done := false
	for iteration := 1; !done && iteration <= r.cfg.MaxIterations; iteration++ {
		log.Info().Int("iteration", iteration).Msg("deciding")
		r.activity.Record("thinking", map[string]any{"iteration": iteration})

		resp, err := r.decider.Decide(ctx, userContext, schemas)
		if err != nil {
			return fmt.Errorf("decision failed: %w", err)
		}

		if resp.Assistant.Content != "" {
			r.activity.Record("thought", map[string]any{"content": resp.Assistant.Content})
		}

		if len(resp.ToolCalls) == 0 {
			log.Info().Msg("no more actions this cycle")
			break
		}

		for _, call := range resp.ToolCalls {
			if call.Name == "done_for_now" {
				reason := "Taking a break"
				if v, ok := call.Args["reason"].(string); ok && v != "" {
					reason = v
				}
				log.Info().Str("reason", reason).Msg("done for now")
				r.activity.Record("done", map[string]any{"reason": reason})
				done = true
				break
			}

			out := r.executor.Execute(ctx, call.Name, call.Args)

			if out.RateLimited {
				r.activity.Record("rate_limit", map[string]any{
					"tool":               call.Name,
					"message":            out.Err,
					"reason":             out.Data["reason"],
					"comments_remaining": out.Data["comments_remaining"],
					"wait_seconds":       out.Data["wait_seconds"],
					"wait_until":         out.Data["wait_until"],
					"wait_minutes":       out.Data["wait_minutes"],
				})
				log.Warn().Str("tool", call.Name).Str("error", out.Err).Msg("rate limited")
			}

			r.recordAction(out.Success)
			if out.Success {
				r.logToolActivity(call.Name, call.Args, out)
			} else {
				errMsg := out.Err
				if errMsg == "" {
					errMsg = "Unknown error"
				}
				r.activity.Record("error", map[string]any{"tool": call.Name, "error": errMsg})
			}

			resultJSON := out.JSON()
			// Results are keyed by the provider's tool-call ID; the name is
			// only a fallback for backends that do not assign IDs.
			callID := call.ID
			if callID == "" {
				callID = call.Name
			}
			r.decider.AddToolResult(callID, resultJSON)
			userContext = fmt.Sprintf("Tool %s result: %s\n\nWhat do you want to do next?", call.Name, resultJSON)
		}
	}

	stats := r.Stats()
	log.Info().
		Int("actions", stats.TotalActions).
		Float64("success_rate", stats.SuccessRate).
		Float64("uptime_hours", stats.UptimeHours).
		Msg("cycle end")
	return nil
}

// logToolActivity maps successful tool runs onto dashboard feed events.
// Only the tools worth surfacing get an entry.
func (r *Runner) logToolActivity(name string, args map[string]any, out tools.Outcome) {
	argStr := func(key string) string {
		v, _ := args[key].(string)
		return v
	}
	clip := func(s string, n int) string {
		if len(s) > n {
			return s[:n]
		}
		return s
	}

	switch name {
	case "get_feed":
		sort := argStr("sort")
		if sort == "" {
			sort = "hot"
		}
		count := 0
		if posts, ok := out.Data["posts"].([]map[string]any); ok {
			count = len(posts)
		} else if posts, ok := out.Data["posts"].([]any); ok {
			count = len(posts)
		}
		r.activity.Record("get_feed", map[string]any{"count": count, "sort": sort})
	case "read_post":
		title := "Unknown"
		if post, ok := out.Data["post"].(map[string]any); ok {
			if t, ok := post["title"].(string); ok {
				title = t
			}
		}
		r.activity.Record("read_post", map[string]any{
			"post_id": argStr("post_id"),
			"title":   clip(title, 100),
		})
	case "create_post", "create_link_post":
		r.activity.Record("post_created", map[string]any{
			"title":   argStr("title"),
			"submolt": argStr("submolt"),
			"content": clip(argStr("content"), 100),
		})
	case "create_comment":
		r.activity.Record("comment_created", map[string]any{
			"post_id": argStr("post_id"),
			"content": argStr("content"),
		})
	case "upvote_post":
		r.activity.Record("upvote", map[string]any{"post_id": argStr("post_id")})
	case "downvote_post":
		r.activity.Record("downvote", map[string]any{"post_id": argStr("post_id")})
	case "search_posts":
		r.activity.Record("search", map[string]any{"query": argStr("query")})
	case "follow_agent":
		r.activity.Record("follow", map[string]any{"agent_name": argStr("agent_name")})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
