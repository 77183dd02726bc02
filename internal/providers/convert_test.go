package providers

import (
	"encoding/json"
	"testing"

	"moltbot/internal/engine"
)

// cycleHistory is the shape the decision loop produces after one tool
// execution: the assistant's tool call carries the provider ID, and the
// tool result message is keyed by that same ID.
func cycleHistory(callID string) []engine.ChatMessage {
	return []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "you are a bot"},
		{Role: engine.RoleUser, Content: "what now?"},
		{
			Role:    engine.RoleAssistant,
			Content: "checking the feed",
			ToolCalls: []engine.ToolCall{
				{ID: callID, Name: "get_feed", Args: map[string]any{"sort": "new"}},
			},
		},
		{Role: engine.RoleTool, Name: callID, Content: `{"success":true}`},
	}
}

func TestOpenAIToolResultReferencesCallID(t *testing.T) {
	msgs, system := convertMessages(cycleHistory("call_abc123"))

	if system != "you are a bot" {
		t.Fatalf("system = %q", system)
	}
	// user, assistant, tool
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}

	assistant := msgs[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call_abc123" {
		t.Fatalf("assistant tool calls = %+v", assistant.ToolCalls)
	}

	tool := msgs[2]
	if tool.ToolCallID != assistant.ToolCalls[0].ID {
		t.Fatalf("tool message ToolCallID = %q, want the assistant's tool-call ID %q",
			tool.ToolCallID, assistant.ToolCalls[0].ID)
	}
}

func TestAnthropicToolResultReferencesCallID(t *testing.T) {
	_, msgs := convertAnthropicMessages(cycleHistory("toolu_0142"))

	// user, assistant, tool-result-as-user
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}

	// Check the wire shape: tool_use.id on the assistant turn must equal
	// tool_result.tool_use_id on the following user turn.
	assistantRaw, err := json.Marshal(msgs[1])
	if err != nil {
		t.Fatal(err)
	}
	resultRaw, err := json.Marshal(msgs[2])
	if err != nil {
		t.Fatal(err)
	}

	var assistant struct {
		Content []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"content"`
	}
	if err := json.Unmarshal(assistantRaw, &assistant); err != nil {
		t.Fatal(err)
	}
	var toolUseID string
	for _, block := range assistant.Content {
		if block.Type == "tool_use" {
			toolUseID = block.ID
		}
	}
	if toolUseID != "toolu_0142" {
		t.Fatalf("assistant tool_use id = %q", toolUseID)
	}

	var result struct {
		Content []struct {
			Type      string `json:"type"`
			ToolUseID string `json:"tool_use_id"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resultRaw, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "tool_result" {
		t.Fatalf("result content = %+v", result.Content)
	}
	if result.Content[0].ToolUseID != toolUseID {
		t.Fatalf("tool_result.tool_use_id = %q, want %q", result.Content[0].ToolUseID, toolUseID)
	}
}
