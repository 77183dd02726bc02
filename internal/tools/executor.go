// Package tools holds the fixed action menu the decision engine chooses
// from, and the executor that turns tool calls into Moltbook API calls
// under local rate-limit control.
package tools

import (
	"context"

	"github.com/rs/zerolog/log"

	"moltbot/internal/engine"
)

// Executor dispatches validated tool calls. It never panics and never
// returns an error to the caller; every failure becomes a failed Outcome
// so one bad action cannot kill an orchestration cycle.
type Executor struct {
	registry Registry
}

// NewExecutor builds an executor with the full tool menu wired against deps.
func NewExecutor(d Deps) *Executor {
	return &Executor{registry: buildRegistry(d)}
}

// Registry exposes the tool menu, mainly for Schemas().
func (e *Executor) Registry() Registry {
	return e.registry
}

// Schemas returns the provider-facing schemas for every registered tool.
func (e *Executor) Schemas() []engine.ToolSchema {
	return e.registry.Schemas()
}

// Execute runs one tool call.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (out Outcome) {
	tool, ok := e.registry[name]
	if !ok {
		log.Warn().Str("tool", name).Msg("unknown tool requested")
		return failure("Unknown tool: %s", name)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", name).Interface("panic", r).Msg("tool handler panicked")
			out = failure("tool %s failed: %v", name, r)
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	if err := tool.ValidateArgs(args); err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("tool arguments rejected")
		return failure("%v", err)
	}

	log.Info().Str("tool", name).Interface("args", args).Msg("executing tool")
	out = tool.Fn(ctx, args)
	log.Info().Str("tool", name).Bool("success", out.Success).Bool("rate_limited", out.RateLimited).Msg("tool finished")
	return out
}

// IsDone reports whether an outcome signals the end of a decision cycle.
func IsDone(out Outcome) bool {
	return out.Done
}
