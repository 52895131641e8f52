// Package transcript keeps the persisted, append-only chat log.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/state"
)

// Role identifies who wrote a message.
type Role string

// Roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one chat message. APISources holds copies of the catalog
// entries an answer drew on.
type Message struct {
	ID         string        `json:"id" yaml:"id"`
	Role       Role          `json:"role" yaml:"role"`
	Content    string        `json:"content" yaml:"content"`
	Timestamp  time.Time     `json:"timestamp" yaml:"timestamp"`
	APISources []catalog.API `json:"apiSources,omitempty" yaml:"apiSources,omitempty"`
}

const idPrefix = "msg-"

func formatID(seq int) string {
	return fmt.Sprintf("%s%06d", idPrefix, seq)
}

func parseID(id string) (int, bool) {
	if !strings.HasPrefix(id, idPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Transcript is the ordered chat log. Message ids are unique and increase
// strictly with creation order, including across restarts.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	seq      int
	now      func() time.Time
	store    *state.Manager
}

// Option configures a Transcript.
type Option func(*Transcript)

// WithClock sets the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Transcript) { t.now = now }
}

// New restores the transcript slot from store.
func New(store *state.Manager, opts ...Option) *Transcript {
	if store == nil {
		store = state.NewManager(state.NewMemoryStore(), nil, nil)
	}
	t := &Transcript{
		now:   time.Now,
		store: store,
	}
	for _, opt := range opts {
		opt(t)
	}

	var messages []Message
	if store.Load(state.SlotTranscript, &messages) {
		t.messages = messages
	}
	for _, m := range t.messages {
		if n, ok := parseID(m.ID); ok && n > t.seq {
			t.seq = n
		}
	}
	if t.seq < len(t.messages) {
		t.seq = len(t.messages)
	}
	return t
}

// Append adds a message and persists the log. The returned message is
// kept in memory even when the write fails.
func (t *Transcript) Append(role Role, content string, sources []catalog.API) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("invalid role %q", role)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	msg := Message{
		ID:        formatID(t.seq),
		Role:      role,
		Content:   content,
		Timestamp: t.now(),
	}
	if len(sources) > 0 {
		msg.APISources = append([]catalog.API(nil), sources...)
	}
	t.messages = append(t.messages, msg)

	return copyMessage(msg), t.store.Save(state.SlotTranscript, t.messages)
}

func copyMessage(m Message) Message {
	if m.APISources != nil {
		m.APISources = append([]catalog.API(nil), m.APISources...)
	}
	return m
}

// Messages returns the log in creation order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = copyMessage(m)
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
