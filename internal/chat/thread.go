package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"comfypilot/internal/logging"
)

// ChangeHandler is called after the thread's history changes.
type ChangeHandler func(t *Thread)

// Thread is one conversation. Messages are append-only except for the
// newest message, which may be updated in place while it streams.
type Thread struct {
	ID        string
	Title     string
	StartTime time.Time

	messages []*Message
	version  int64
	onChange ChangeHandler
	mu       sync.RWMutex
}

// NewThread creates an empty thread.
func NewThread() *Thread {
	return &Thread{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	}
}

// RestoreThread rebuilds a thread from persisted messages.
func RestoreThread(id, title string, started time.Time, msgs []*Message) *Thread {
	return &Thread{
		ID:        id,
		Title:     title,
		StartTime: started,
		messages:  msgs,
	}
}

// SetChangeHandler sets the callback for history changes.
func (t *Thread) SetChangeHandler(h ChangeHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = h
}

// Append adds a message to the end of the thread.
func (t *Thread) Append(msg *Message) {
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	if t.Title == "" && msg.Role == RoleUser {
		t.Title = titleFrom(msg.Text())
	}
	t.version++
	h := t.onChange
	t.mu.Unlock()

	t.notify(h)
}

// UpdateMessage applies fn to the message with the given ID under the
// thread lock and returns a snapshot of the result. Only the newest
// message may be updated.
func (t *Thread) UpdateMessage(id string, fn func(m *Message)) (*Message, bool) {
	t.mu.Lock()
	n := len(t.messages)
	if n == 0 || t.messages[n-1].ID != id {
		t.mu.Unlock()
		logging.Debug("refusing update of non-newest message", "thread", t.ID, "message", id)
		return nil, false
	}
	last := t.messages[n-1]
	fn(last)
	t.version++
	snapshot := last.Clone()
	h := t.onChange
	t.mu.Unlock()

	t.notify(h)
	return snapshot, true
}

// Messages returns a deep copy of the history.
func (t *Thread) Messages() []*Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

// Last returns a copy of the newest message.
func (t *Thread) Last() (*Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return nil, false
	}
	return t.messages[len(t.messages)-1].Clone(), true
}

// Len returns the number of messages.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Version increments on every change.
func (t *Thread) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Thread) notify(h ChangeHandler) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("thread change handler panicked", "thread", t.ID, "panic", r)
		}
	}()
	h(t)
}

func titleFrom(text string) string {
	const maxTitle = 60
	runes := []rune(text)
	if len(runes) > maxTitle {
		return string(runes[:maxTitle]) + "..."
	}
	return text
}
