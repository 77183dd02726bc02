// Package suggestions is the inbox the human uses to steer the agent.
// Suggestions live in a small JSON file so they can be inspected and edited
// by hand while the agent runs.
package suggestions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	StatusPending = "pending"
	StatusSeen    = "seen"
)

// Suggestion is one note from the human.
type Suggestion struct {
	ID        int64      `json:"id"` // milliseconds since epoch, unique per file
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	Status    string     `json:"status"`
	SeenAt    *time.Time `json:"seen_at,omitempty"`
}

// Store reads and writes the suggestions file. Safe for concurrent use
// within one process; external writers are picked up because every read
// goes back to disk.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens (or creates) the suggestions file.
func NewStore(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(nil); err != nil {
			return nil, fmt.Errorf("create suggestions file: %w", err)
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) read() []Suggestion {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var out []Suggestion
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("suggestions file unreadable, treating as empty")
		return nil
	}
	return out
}

func (s *Store) write(list []Suggestion) error {
	if list == nil {
		list = []Suggestion{}
	}
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".suggestions-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Add appends a new pending suggestion.
func (s *Store) Add(text string) (Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.read()
	id := s.now().UnixMilli()
	for _, existing := range list {
		if existing.ID >= id {
			id = existing.ID + 1
		}
	}
	sg := Suggestion{
		ID:        id,
		Text:      text,
		CreatedAt: s.now(),
		Status:    StatusPending,
	}
	list = append(list, sg)
	if err := s.write(list); err != nil {
		return Suggestion{}, fmt.Errorf("save suggestion: %w", err)
	}
	log.Info().Int64("id", sg.ID).Msg("suggestion added")
	return sg, nil
}

// Pending returns suggestions not yet shown to the agent.
func (s *Store) Pending() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Suggestion
	for _, sg := range s.read() {
		if sg.Status == StatusPending {
			pending = append(pending, sg)
		}
	}
	return pending
}

// All returns every suggestion currently in the file.
func (s *Store) All() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// MarkSeen marks one suggestion as seen.
func (s *Store) MarkSeen(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.read()
	for i := range list {
		if list[i].ID == id {
			list[i].Status = StatusSeen
			t := s.now()
			list[i].SeenAt = &t
			break
		}
	}
	return s.write(list)
}

// MarkAllPendingSeen removes every pending suggestion from the file once it
// has been handed to the agent, so the inbox does not grow unbounded.
// Returns how many were consumed.
func (s *Store) MarkAllPendingSeen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.read()
	var kept []Suggestion
	consumed := 0
	for _, sg := range list {
		if sg.Status == StatusPending {
			consumed++
		} else {
			kept = append(kept, sg)
		}
	}
	if err := s.write(kept); err != nil {
		log.Error().Err(err).Msg("failed to prune consumed suggestions")
	}
	if consumed > 0 {
		log.Info().Int("count", consumed).Msg("suggestions consumed")
	}
	return consumed
}
