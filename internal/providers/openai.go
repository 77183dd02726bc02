// Package providers adapts chat-completion SDKs to the engine.LLMClient
// interface. The OpenAI client also serves any OpenAI-compatible endpoint
// (a local Ollama server, for instance) through a BaseURL override.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"moltbot/internal/engine"
)

// OpenAIClient implements engine.LLMClient over the OpenAI chat API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL may point at any
// OpenAI-compatible server; empty means api.openai.com.
func NewOpenAIClient(apiKey, modelName, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
	}, nil
}

// convertMessages maps engine history to the OpenAI wire format. The system
// message is extracted and re-prepended by the caller.
func convertMessages(messages []engine.ChatMessage) (msgs []openai.ChatCompletionMessage, systemMsg string) {
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemMsg = msg.Content
			prevAssistantHadToolCalls = false
		case engine.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
			prevAssistantHadToolCalls = false
		case engine.RoleAssistant:
			// The SDK serializes empty content as null, which some servers
			// reject; a single space is semantically equivalent.
			content := msg.Content
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			// Tool messages must follow an assistant message with tool calls.
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.Name,
				Content:    content,
			})
			if i+1 < len(messages) && messages[i+1].Role == engine.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return msgs, systemMsg
}

func convertTools(toolSchemas []engine.ToolSchema) ([]openai.Tool, error) {
	var tools []openai.Tool
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	return tools, nil
}

func (c *OpenAIClient) buildRequest(messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions, modelName string) (openai.ChatCompletionRequest, error) {
	openaiMsgs, systemMsg := convertMessages(messages)
	tools, err := convertTools(toolSchemas)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: openaiMsgs,
	}
	if systemMsg != "" {
		req.Messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemMsg,
		}}, req.Messages...)
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		req.Temperature = &temp
	}
	return req, nil
}

// Chat implements engine.LLMClient.Chat.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req, err := c.buildRequest(messages, toolSchemas, opts, modelName)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, fmt.Errorf("empty response from chat backend")
	}

	choice := resp.Choices[0]
	assistantMsg := engine.ChatMessage{
		Role:    engine.RoleAssistant,
		Content: choice.Message.Content,
	}

	var toolCalls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = make(map[string]any)
			}
		}
		toolCalls = append(toolCalls, engine.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	assistantMsg.ToolCalls = toolCalls

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case choice.FinishReason == openai.FinishReasonLength:
		finishReason = "length"
	case choice.FinishReason == openai.FinishReasonContentFilter:
		finishReason = "content_filter"
	}

	return engine.LLMResponse{
		Assistant:    assistantMsg,
		ToolCalls:    toolCalls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}

// Stream implements engine.LLMClient.Stream with per-chunk delivery.
// Tool-call arguments arrive as JSON fragments and are accumulated until
// the stream ends.
func (c *OpenAIClient) Stream(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		req, err := c.buildRequest(messages, toolSchemas, opts, modelName)
		if err != nil {
			errCh <- err
			return
		}
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			httpStatus, retryAfter := extractErrorMetadata(err)
			errCh <- engine.WrapLLMError(err, httpStatus, retryAfter)
			return
		}
		defer stream.Close()

		type accum struct {
			index int
			call  engine.ToolCall
			args  strings.Builder
		}
		calls := make(map[string]*accum)
		var currentID string
		nextIndex := 0

		for {
			response, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
					httpStatus, retryAfter := extractErrorMetadata(err)
					errCh <- engine.WrapLLMError(err, httpStatus, retryAfter)
					return
				}
				break
			}

			if response.Usage != nil {
				eventCh <- engine.StreamEvent{Type: "usage", Usage: engine.Usage{
					Prompt:     response.Usage.PromptTokens,
					Completion: response.Usage.CompletionTokens,
					Total:      response.Usage.TotalTokens,
				}}
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta

			if delta.Content != "" {
				eventCh <- engine.StreamEvent{Type: "text_delta", Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				// A new ID starts a new call; argument fragments that follow
				// carry no ID and belong to the current one.
				if tc.ID != "" {
					currentID = tc.ID
				}
				if currentID == "" {
					continue
				}
				acc, ok := calls[currentID]
				if !ok {
					acc = &accum{index: nextIndex, call: engine.ToolCall{ID: currentID}}
					calls[currentID] = acc
					nextIndex++
				}
				if tc.Function.Name != "" {
					acc.call.Name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
		}

		// Emit accumulated tool calls in request order.
		ordered := make([]*accum, 0, len(calls))
		for _, acc := range calls {
			ordered = append(ordered, acc)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
		for _, acc := range ordered {
			args := make(map[string]any)
			if acc.args.Len() > 0 {
				if err := json.Unmarshal([]byte(acc.args.String()), &args); err != nil {
					args = make(map[string]any)
				}
			}
			acc.call.Args = args
			eventCh <- engine.StreamEvent{Type: "tool_call", ToolCall: acc.call}
		}

		errCh <- nil
	}()

	return eventCh, errCh
}

// extractErrorMetadata pulls an HTTP status and Retry-After hint out of an
// SDK error string.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	switch {
	case strings.Contains(errStr, "429"):
		httpStatus = http.StatusTooManyRequests
	case strings.Contains(errStr, "500"):
		httpStatus = http.StatusInternalServerError
	case strings.Contains(errStr, "502"):
		httpStatus = http.StatusBadGateway
	case strings.Contains(errStr, "503"):
		httpStatus = http.StatusServiceUnavailable
	case strings.Contains(errStr, "504"):
		httpStatus = http.StatusGatewayTimeout
	case strings.Contains(errStr, "401"):
		httpStatus = http.StatusUnauthorized
	case strings.Contains(errStr, "403"):
		httpStatus = http.StatusForbidden
	case strings.Contains(errStr, "402"):
		httpStatus = http.StatusPaymentRequired
	case strings.Contains(errStr, "400"):
		httpStatus = http.StatusBadRequest
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	if idx := strings.Index(lower, "retry-after"); idx != -1 {
		if parts := strings.Fields(errStr[idx+len("retry-after"):]); len(parts) > 0 {
			retryAfter = strings.Trim(parts[0], ":")
		}
	} else if idx := strings.Index(lower, "retry after"); idx != -1 {
		if parts := strings.Fields(errStr[idx+len("retry after"):]); len(parts) > 0 {
			retryAfter = parts[0]
		}
	}

	return httpStatus, retryAfter
}
