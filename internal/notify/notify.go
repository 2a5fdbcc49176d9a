package notify

import (
	"log/slog"
	"sync"
)

// Level classifies a user-facing notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notifier is the sink for user-facing messages (toasts in a UI).
type Notifier interface {
	Notify(level Level, message string)
}

// Log writes notifications to a logger.
type Log struct {
	log *slog.Logger
}

// NewLog returns a Notifier that logs every message.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (n *Log) Notify(level Level, message string) {
	if level == LevelError {
		n.log.Warn("notification", "level", level, "message", message)
		return
	}
	n.log.Info("notification", "level", level, "message", message)
}

// Message is one recorded notification.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Recorder keeps notifications in memory. The MCP surface drains it so
// clients see what a UI would have shown; tests inspect it directly.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	next     Notifier
}

// NewRecorder returns a Recorder that also forwards to next when non-nil.
func NewRecorder(next Notifier) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Level: level, Text: message})
	r.mu.Unlock()
	if r.next != nil {
		r.next.Notify(level, message)
	}
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Drain returns and forgets the recorded messages.
func (r *Recorder) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}

// Count returns how many recorded messages have the given text.
func (r *Recorder) Count(text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Text == text {
			n++
		}
	}
	return n
}
