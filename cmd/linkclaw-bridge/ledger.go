// ABOUTME: Consumer collaborator for the run command: prints inbound messages and persists the log.
// ABOUTME: Mirrors every conversation update into the SQLite ledger, replacing reconciled local ids.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/x6nux/linkclaw-sub000/internal/bridge"
	"github.com/x6nux/linkclaw-sub000/internal/conversation"
	"github.com/x6nux/linkclaw-sub000/internal/store"
)

const ledgerWriteTimeout = 5 * time.Second

// ledger prints messages to out and, when a store is configured, records them.
type ledger struct {
	store  store.MessageStore
	logger *slog.Logger

	mu  sync.Mutex
	out io.Writer
}

func newLedger(s store.MessageStore, out io.Writer, logger *slog.Logger) *ledger {
	return &ledger{
		store:  s,
		out:    out,
		logger: logger.With("component", "ledger"),
	}
}

// HandleMessage prints one inbound message.
func (l *ledger) HandleMessage(msg conversation.Message, meta bridge.ChatMeta) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := msg.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	fmt.Fprintf(l.out, "%s %s %s %s\n",
		color.HiBlackString(stamp.Format("15:04:05")),
		color.CyanString(meta.Title),
		color.New(color.Bold).Sprint(msg.SenderLabel+":"),
		msg.Content,
	)
}

// HandleUpdate persists one change to the conversation log.
func (l *ledger) HandleUpdate(u conversation.Update) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
	defer cancel()

	if u.Replaced != "" {
		if err := l.store.DeleteMessage(ctx, u.Replaced); err != nil && !errors.Is(err, store.ErrNotFound) {
			l.logger.Warn("failed to drop reconciled message", "id", u.Replaced, "error", err)
		}
	}
	if err := l.store.SaveMessage(ctx, u.Message); err != nil {
		l.logger.Warn("failed to persist message", "id", u.Message.ID, "error", err)
	}
}

// HandleInitRequired reports the platform's request for agent initialization.
func (l *ledger) HandleInitRequired(data json.RawMessage) {
	l.logger.Warn("platform requires agent initialization", "data", string(data))
}
