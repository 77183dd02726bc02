package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Engine drives the language-model backend through a multi-turn tool-calling
// exchange. It owns the conversation history; the orchestrator resets it at
// the start of every cycle.
type Engine struct {
	llm       LLMClient
	model     string
	history   *History
	opts      ChatOptions
	onThought ThoughtFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithThoughtCallback delivers incremental free-text chunks while the model
// streams. The callback runs synchronously on the deciding goroutine.
func WithThoughtCallback(fn ThoughtFunc) EngineOption {
	return func(e *Engine) { e.onThought = fn }
}

// WithChatOptions overrides the default request knobs.
func WithChatOptions(opts ChatOptions) EngineOption {
	return func(e *Engine) { e.opts = opts }
}

// WithMaxHistory caps the conversation length.
func WithMaxHistory(n int) EngineOption {
	return func(e *Engine) { e.history = NewHistory(e.history.system, n) }
}

// New creates a decision engine rooted at the given persona system prompt.
func New(llm LLMClient, model, systemPrompt string, opts ...EngineOption) *Engine {
	e := &Engine{
		llm:     llm,
		model:   model,
		history: NewHistory(ChatMessage{Role: RoleSystem, Content: systemPrompt}, DefaultMaxMessages),
		opts: ChatOptions{
			Temperature:     0.8,
			MaxOutputTokens: 1024,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset drops the conversation back to just the system message.
func (e *Engine) Reset() {
	e.history.Reset()
}

// HistoryLen reports the current conversation length.
func (e *Engine) HistoryLen() int {
	return e.history.Len()
}

// Decide appends the situational context as a user message, asks the backend
// for the next actions, and records the assistant's reply (including its
// requested tool calls) in history.
func (e *Engine) Decide(ctx context.Context, userContext string, schemas []ToolSchema) (LLMResponse, error) {
	e.history.Append(ChatMessage{Role: RoleUser, Content: userContext})

	policy := DefaultRetryPolicy()
	if e.opts.RetryPolicy != nil {
		policy = *e.opts.RetryPolicy
	}

	resp, err := RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (LLMResponse, error) {
			return e.chatOnce(ctx, schemas)
		},
		ClassifyLLMError,
		func(attempt int, delay time.Duration, retryErr error) {
			log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(retryErr).
				Msg("llm call failed, retrying")
		},
	)
	if err != nil {
		return LLMResponse{}, err
	}

	assistant := resp.Assistant
	assistant.ToolCalls = resp.ToolCalls
	e.history.Append(assistant)
	return resp, nil
}

// AddToolResult feeds a tool execution result back into history so the model
// can see what its last request produced. callID must be the tool-call ID
// from the assistant message that requested the tool; hosted backends reject
// tool results that do not reference a known call ID. Backends that do not
// assign IDs get the tool name instead.
func (e *Engine) AddToolResult(callID, content string) {
	e.history.Append(ChatMessage{Role: RoleTool, Name: callID, Content: content})
}

// chatOnce performs a single backend call, streaming when a thought callback
// is installed.
func (e *Engine) chatOnce(ctx context.Context, schemas []ToolSchema) (LLMResponse, error) {
	msgs := e.history.Messages()

	if e.onThought == nil {
		return e.llm.Chat(ctx, e.model, msgs, schemas, e.opts)
	}

	opts := e.opts
	opts.Stream = true
	events, errs := e.llm.Stream(ctx, e.model, msgs, schemas, opts)

	var resp LLMResponse
	var content []byte
	for ev := range events {
		switch ev.Type {
		case "text_delta":
			content = append(content, ev.Text...)
			e.onThought(ev.Text)
		case "tool_call":
			resp.ToolCalls = append(resp.ToolCalls, ev.ToolCall)
		case "usage":
			resp.Usage = ev.Usage
		}
	}
	if err := <-errs; err != nil {
		return LLMResponse{}, err
	}

	resp.Assistant = ChatMessage{Role: RoleAssistant, Content: string(content)}
	resp.FinishReason = "stop"
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = "tool_calls"
		resp.Assistant.ToolCalls = resp.ToolCalls
	}
	return resp, nil
}
