package engine

import (
	"fmt"
	"testing"
)

func TestHistorySystemMessagePermanent(t *testing.T) {
	h := NewHistory(ChatMessage{Role: RoleSystem, Content: "persona"}, 4)

	for i := 0; i < 10; i++ {
		h.Append(ChatMessage{Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
	}

	msgs := h.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "persona" {
		t.Errorf("first message must remain the system message, got %+v", msgs[0])
	}
	// Oldest non-system messages evicted first.
	if msgs[1].Content != "msg 7" {
		t.Errorf("oldest surviving = %q, want msg 7", msgs[1].Content)
	}
	if msgs[3].Content != "msg 9" {
		t.Errorf("newest = %q, want msg 9", msgs[3].Content)
	}
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory(ChatMessage{Role: RoleSystem, Content: "persona"}, 10)
	h.Append(ChatMessage{Role: RoleUser, Content: "hello"})
	h.Append(ChatMessage{Role: RoleAssistant, Content: "hi"})

	h.Reset()

	if h.Len() != 1 {
		t.Fatalf("len after reset = %d, want 1", h.Len())
	}
	if msgs := h.Messages(); msgs[0].Content != "persona" {
		t.Errorf("system message lost on reset: %+v", msgs[0])
	}
}

func TestChatMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     ChatMessage
		wantErr bool
	}{
		{"valid user", ChatMessage{Role: RoleUser, Content: "hi"}, false},
		{"valid tool", ChatMessage{Role: RoleTool, Name: "get_feed", Content: "{}"}, false},
		{"tool without name", ChatMessage{Role: RoleTool, Content: "{}"}, true},
		{"bogus role", ChatMessage{Role: "narrator", Content: "hi"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
