// ABOUTME: In-memory fan-out of conversation log changes to per-chat subscribers.
// ABOUTME: Publishing never blocks; full subscriber buffers drop updates.

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Update is one change to a chat's log.
type Update struct {
	Message Message
	// Replaced is the id of the optimistic record the message superseded, if any.
	Replaced string
}

// Broadcaster provides in-memory pub/sub of log updates keyed by chat.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[ChatID]map[string]chan Update // chat -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[ChatID]map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for updates on chat. The returned channel is closed when
// ctx is cancelled, on Unsubscribe, or on Close.
func (b *Broadcaster) Subscribe(ctx context.Context, chat ChatID) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[chat]; !ok {
		b.subscribers[chat] = make(map[string]chan Update)
	}
	b.subscribers[chat][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "chat", Key(chat), "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(chat, subID)
	}()

	return ch, subID
}

// Publish sends u to every subscriber of chat without blocking.
func (b *Broadcaster) Publish(chat ChatID, u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[chat] {
		select {
		case ch <- u:
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"chat", Key(chat),
				"message_id", u.Message.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(chat ChatID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[chat]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, chat)
	}
}

// Close closes every subscriber channel. Later subscriptions start closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for chat, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, chat)
	}
	b.closed = true
}
