// Package ratelimit tracks the platform's write quotas locally so the agent
// can refuse an action before the server has to.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Limits holds the platform's write quotas.
type Limits struct {
	CommentsPerDay         int
	CommentCooldownSeconds int
	PostCooldownMinutes    int
}

// DefaultLimits returns the quotas Moltbook enforces server-side.
func DefaultLimits() Limits {
	return Limits{
		CommentsPerDay:         50,
		CommentCooldownSeconds: 20,
		PostCooldownMinutes:    30,
	}
}

// State is the persisted rate-limit bookkeeping for one agent identity.
// Timestamps are unix seconds; zero means never/none.
type State struct {
	ResetDate           string `json:"reset_date"`
	CommentsToday       int    `json:"comments_today"`
	LastCommentTime     int64  `json:"last_comment_time"`
	LastPostTime        int64  `json:"last_post_time"`
	CommentBlockedUntil int64  `json:"comment_blocked_until"`
	PostBlockedUntil    int64  `json:"post_blocked_until"`
}

// Decision is the answer to a can-I-do-this query.
type Decision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason,omitempty"` // "cooldown" | "daily_limit"
	Message           string `json:"message,omitempty"`
	WaitSeconds       int    `json:"wait_seconds,omitempty"`
	WaitMinutes       int    `json:"wait_minutes,omitempty"`
	WaitUntil         string `json:"wait_until,omitempty"`
	CommentsRemaining int    `json:"comments_remaining"`
}

// Status is a human/LLM-readable aggregate of both checks.
type Status struct {
	ResetDate string        `json:"reset_date"`
	Comments  CommentStatus `json:"comments"`
	Posts     PostStatus    `json:"posts"`
}

type CommentStatus struct {
	Used          int    `json:"used"`
	Limit         int    `json:"limit"`
	Remaining     int    `json:"remaining"`
	CanComment    bool   `json:"can_comment"`
	NextAvailable string `json:"next_available"`
}

type PostStatus struct {
	CanPost         bool   `json:"can_post"`
	CooldownMinutes int    `json:"cooldown_minutes"`
	LastPost        string `json:"last_post"`
	NextAvailable   string `json:"next_available"`
}

// Tracker is the single source of truth for whether a write action is
// currently permitted. One instance per agent identity; safe for concurrent
// use (the dashboard reads status while the loop mutates).
type Tracker struct {
	mu     sync.Mutex
	path   string
	limits Limits
	now    func() time.Time
	state  State
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Tests use this to simulate cooldowns
// and day boundaries.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLimits overrides the default quotas.
func WithLimits(l Limits) Option {
	return func(t *Tracker) { t.limits = l }
}

// NewTracker loads prior state from path, or starts fresh if the file is
// missing or unreadable. A load failure is never fatal.
func NewTracker(path string, opts ...Option) *Tracker {
	t := &Tracker{
		path:   path,
		limits: DefaultLimits(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := t.load(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("rate limit state unreadable, starting fresh")
		t.state = t.freshState()
		t.save()
	}
	t.rolloverLocked()

	log.Info().
		Int("comments_today", t.state.CommentsToday).
		Int("daily_limit", t.limits.CommentsPerDay).
		Msg("rate limit tracker initialized")
	return t
}

func (t *Tracker) freshState() State {
	return State{ResetDate: t.today()}
}

func (t *Tracker) today() string {
	return t.now().UTC().Format("2006-01-02")
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse rate limit state: %w", err)
	}
	t.state = st
	return nil
}

// save writes the state atomically: marshal to a temp file in the same
// directory, then rename over the old file. A crash mid-write leaves the
// previous state intact.
func (t *Tracker) save() {
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal rate limit state")
		return
	}
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".rate_limits-*.tmp")
	if err != nil {
		log.Error().Err(err).Msg("failed to create temp rate limit file")
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.Error().Err(err).Msg("failed to write rate limit state")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		log.Error().Err(err).Msg("failed to flush rate limit state")
		return
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		log.Error().Err(err).Msg("failed to replace rate limit state")
	}
}

// rolloverLocked zeroes the daily counter when the stored reset date differs
// from the current UTC date. Called lazily on every access because the
// process may idle across midnight. Caller must hold mu or be single-owner
// during construction.
func (t *Tracker) rolloverLocked() {
	today := t.today()
	if t.state.ResetDate == today {
		return
	}
	old := t.state.CommentsToday
	t.state.ResetDate = today
	t.state.CommentsToday = 0
	t.save()
	log.Info().Int("previous_day_comments", old).Msg("daily rate limit reset")
}

// CanComment reports whether a comment is permitted right now.
// Precedence: server-imposed block, then daily cap, then local cooldown.
func (t *Tracker) CanComment() Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	now := t.now().Unix()
	remaining := t.limits.CommentsPerDay - t.state.CommentsToday

	if t.state.CommentBlockedUntil > now {
		wait := int(t.state.CommentBlockedUntil - now)
		return Decision{
			Reason:            "cooldown",
			Message:           "Server-imposed comment block active",
			WaitSeconds:       wait,
			CommentsRemaining: remaining,
		}
	}

	if t.state.CommentsToday >= t.limits.CommentsPerDay {
		return Decision{
			Reason:            "daily_limit",
			Message:           fmt.Sprintf("Daily comment limit reached (%d/day)", t.limits.CommentsPerDay),
			WaitUntil:         "tomorrow (UTC midnight)",
			CommentsRemaining: 0,
		}
	}

	cooldown := int64(t.limits.CommentCooldownSeconds)
	if since := now - t.state.LastCommentTime; since < cooldown {
		return Decision{
			Reason:            "cooldown",
			Message:           fmt.Sprintf("Comment cooldown active (%ds between comments)", t.limits.CommentCooldownSeconds),
			WaitSeconds:       int(cooldown - since),
			CommentsRemaining: remaining,
		}
	}

	return Decision{Allowed: true, CommentsRemaining: remaining}
}

// CanPost reports whether a post is permitted right now.
func (t *Tracker) CanPost() Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	now := t.now().Unix()

	if t.state.PostBlockedUntil > now {
		wait := int(t.state.PostBlockedUntil-now)/60 + 1
		return Decision{
			Reason:      "cooldown",
			Message:     "Server-imposed post block active",
			WaitMinutes: wait,
		}
	}

	cooldown := int64(t.limits.PostCooldownMinutes) * 60
	if since := now - t.state.LastPostTime; since < cooldown {
		return Decision{
			Reason:      "cooldown",
			Message:     fmt.Sprintf("Post cooldown active (1 post per %d minutes)", t.limits.PostCooldownMinutes),
			WaitMinutes: int(cooldown-since)/60 + 1,
		}
	}

	return Decision{Allowed: true}
}

// RecordComment books a confirmed successful comment. Clears any stale
// server block for comments.
func (t *Tracker) RecordComment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	t.state.CommentsToday++
	t.state.LastCommentTime = t.now().Unix()
	t.state.CommentBlockedUntil = 0
	t.save()

	log.Info().
		Int("remaining", t.limits.CommentsPerDay-t.state.CommentsToday).
		Msg("comment recorded")
}

// RecordPost books a confirmed successful post. Clears any stale server
// block for posts.
func (t *Tracker) RecordPost() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	t.state.LastPostTime = t.now().Unix()
	t.state.PostBlockedUntil = 0
	t.save()

	log.Info().Int("cooldown_minutes", t.limits.PostCooldownMinutes).Msg("post recorded")
}

// ApplyCommentRateLimit records server-reported comment throttling.
// retryAfterSeconds <= 0 means the server gave no hint; dailyRemaining < 0
// means no daily figure was reported. An existing longer block is never
// shortened. The daily reconciliation is best-effort and conservative: the
// local counter only moves toward more-restrictive.
func (t *Tracker) ApplyCommentRateLimit(retryAfterSeconds, dailyRemaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	if retryAfterSeconds > 0 {
		until := t.now().Unix() + int64(retryAfterSeconds)
		if until > t.state.CommentBlockedUntil {
			t.state.CommentBlockedUntil = until
		}
	}
	if dailyRemaining >= 0 {
		used := t.limits.CommentsPerDay - dailyRemaining
		if used < 0 {
			used = 0
		}
		if used > t.limits.CommentsPerDay {
			used = t.limits.CommentsPerDay
		}
		if used > t.state.CommentsToday {
			t.state.CommentsToday = used
		}
	}
	t.save()

	log.Warn().
		Int("retry_after_seconds", retryAfterSeconds).
		Int("daily_remaining", dailyRemaining).
		Msg("server comment rate limit applied")
}

// ApplyPostRateLimit records server-reported post throttling.
func (t *Tracker) ApplyPostRateLimit(retryAfterMinutes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	if retryAfterMinutes > 0 {
		until := t.now().Unix() + int64(retryAfterMinutes)*60
		if until > t.state.PostBlockedUntil {
			t.state.PostBlockedUntil = until
		}
	}
	t.save()

	log.Warn().Int("retry_after_minutes", retryAfterMinutes).Msg("server post rate limit applied")
}

// Status aggregates both checks into a snapshot for the context builder and
// the dashboard.
func (t *Tracker) Status() Status {
	comment := t.CanComment()
	post := t.CanPost()

	t.mu.Lock()
	defer t.mu.Unlock()

	commentNext := "now"
	if !comment.Allowed {
		if comment.WaitUntil != "" {
			commentNext = comment.WaitUntil
		} else {
			commentNext = fmt.Sprintf("%ds", comment.WaitSeconds)
		}
	}
	postNext := "now"
	if !post.Allowed {
		postNext = fmt.Sprintf("%dm", post.WaitMinutes)
	}

	return Status{
		ResetDate: t.state.ResetDate,
		Comments: CommentStatus{
			Used:          t.state.CommentsToday,
			Limit:         t.limits.CommentsPerDay,
			Remaining:     t.limits.CommentsPerDay - t.state.CommentsToday,
			CanComment:    comment.Allowed,
			NextAvailable: commentNext,
		},
		Posts: PostStatus{
			CanPost:         post.Allowed,
			CooldownMinutes: t.limits.PostCooldownMinutes,
			LastPost:        t.formatAgo(t.state.LastPostTime),
			NextAvailable:   postNext,
		},
	}
}

func (t *Tracker) formatAgo(ts int64) string {
	if ts == 0 {
		return "never"
	}
	diff := t.now().Unix() - ts
	switch {
	case diff < 60:
		return fmt.Sprintf("%ds ago", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	default:
		return fmt.Sprintf("%dh ago", diff/3600)
	}
}
