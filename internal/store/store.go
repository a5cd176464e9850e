// ABOUTME: Store interface and record types for the bridge ledger
// ABOUTME: Defines chat summaries, tool call records, and the MessageStore contract

package store

import (
	"context"
	"errors"
	"time"

	"github.com/x6nux/linkclaw-sub000/internal/conversation"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ChatSummary describes one chat in the ledger.
type ChatSummary struct {
	Chat         conversation.ChatID
	MessageCount int
	LastActivity time.Time
}

// ToolCall is one audited tool invocation.
type ToolCall struct {
	ID        string
	Tool      string
	Arguments string
	Result    string
	IsError   bool
	Duration  time.Duration
	CreatedAt time.Time
}

// MessageStore is the persistence contract used by the CLI.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg conversation.Message) error
	DeleteMessage(ctx context.Context, id string) error
	ListMessages(ctx context.Context, chat conversation.ChatID, limit int) ([]conversation.Message, error)
	ListChats(ctx context.Context) ([]ChatSummary, error)
	SaveToolCall(ctx context.Context, call *ToolCall) error
	ListToolCalls(ctx context.Context, limit int) ([]*ToolCall, error)
	Close() error
}
