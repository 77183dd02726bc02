package engine

// History is the append-only conversation log for one decision engine.
// The first message is always the system/persona message; it is permanent
// and excluded from eviction. When the log grows past the cap, the oldest
// non-system messages are dropped first.
type History struct {
	system ChatMessage
	rest   []ChatMessage
	max    int // cap on total message count, including the system message
}

// DefaultMaxMessages bounds the context size fed to the model.
const DefaultMaxMessages = 40

// NewHistory creates a history rooted at the given system message.
func NewHistory(system ChatMessage, max int) *History {
	if max < 2 {
		max = DefaultMaxMessages
	}
	system.Role = RoleSystem
	return &History{system: system, max: max}
}

// Reset drops everything but the system message.
func (h *History) Reset() {
	h.rest = h.rest[:0]
}

// Append adds a message, evicting the oldest non-system entries when the
// total would exceed the cap.
func (h *History) Append(msg ChatMessage) {
	h.rest = append(h.rest, msg)
	if over := len(h.rest) + 1 - h.max; over > 0 {
		h.rest = append(h.rest[:0], h.rest[over:]...)
	}
}

// Messages returns the full ordered conversation, system message first.
// The returned slice is a copy; callers may not mutate history through it.
func (h *History) Messages() []ChatMessage {
	out := make([]ChatMessage, 0, len(h.rest)+1)
	out = append(out, h.system)
	out = append(out, h.rest...)
	return out
}

// Len reports the total message count, including the system message.
func (h *History) Len() int {
	return len(h.rest) + 1
}
