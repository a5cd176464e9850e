// ABOUTME: Merged per-chat message log with optimistic send reconciliation.
// ABOUTME: Confirmed messages replace matching optimistic ones and merge at most once.

package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks ids of optimistic records created before confirmation.
const LocalIDPrefix = "local-"

// Origin tells whether a message has been confirmed by the platform.
type Origin int

const (
	Optimistic Origin = iota
	Confirmed
)

func (o Origin) String() string {
	if o == Confirmed {
		return "confirmed"
	}
	return "optimistic"
}

// Message is one entry in a conversation.
type Message struct {
	ID          string
	Chat        ChatID
	SenderID    string
	SenderLabel string
	Content     string
	Timestamp   time.Time
	Origin      Origin
}

// MergeResult describes what Merge did with a confirmed message.
type MergeResult int

const (
	// Appended means the message was new and added at the end.
	Appended MergeResult = iota
	// Reconciled means an optimistic record was replaced in place.
	Reconciled
	// Duplicate means the confirmed id was already present; nothing changed.
	Duplicate
)

func (r MergeResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Reconciled:
		return "reconciled"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Log is the merged view of every chat. It is safe for concurrent use.
type Log struct {
	mu        sync.Mutex
	chats     map[ChatID][]Message
	confirmed map[string]struct{}
	now       func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		chats:     make(map[ChatID][]Message),
		confirmed: make(map[string]struct{}),
		now:       time.Now,
	}
}

// AddOptimistic records a locally initiated message before the platform has
// confirmed it and returns the stored record.
func (l *Log) AddOptimistic(chat ChatID, senderID, senderLabel, content string) Message {
	msg := Message{
		ID:          LocalIDPrefix + uuid.New().String(),
		Chat:        chat,
		SenderID:    senderID,
		SenderLabel: senderLabel,
		Content:     content,
		Timestamp:   l.now(),
		Origin:      Optimistic,
	}

	l.mu.Lock()
	l.chats[chat] = append(l.chats[chat], msg)
	l.mu.Unlock()
	return msg
}

// Merge folds a confirmed message into its chat. It returns the stored record,
// what happened, and for Reconciled the id of the optimistic record that was
// replaced.
func (l *Log) Merge(msg Message) (Message, MergeResult, string) {
	msg.Origin = Confirmed

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.confirmed[msg.ID]; ok {
		return msg, Duplicate, ""
	}
	if msg.ID != "" {
		l.confirmed[msg.ID] = struct{}{}
	}

	entries := l.chats[msg.Chat]
	for i := range entries {
		e := &entries[i]
		if e.Origin != Optimistic || e.SenderID != msg.SenderID || e.Content != msg.Content {
			continue
		}
		replaced := e.ID
		if msg.SenderLabel == "" {
			msg.SenderLabel = e.SenderLabel
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = e.Timestamp
		}
		*e = msg
		return msg, Reconciled, replaced
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}
	l.chats[msg.Chat] = append(entries, msg)
	return msg, Appended, ""
}

// Messages returns a copy of the chat's merged messages in insertion order.
func (l *Log) Messages(chat ChatID) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.chats[chat]
	out := make([]Message, len(entries))
	copy(out, entries)
	return out
}

// LastActivity returns the timestamp of the chat's newest entry.
func (l *Log) LastActivity(chat ChatID) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var latest time.Time
	for _, e := range l.chats[chat] {
		if e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}
	return latest, !latest.IsZero()
}

// Chats returns every chat that has at least one entry.
func (l *Log) Chats() []ChatID {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ChatID, 0, len(l.chats))
	for chat := range l.chats {
		out = append(out, chat)
	}
	return out
}
