// ABOUTME: Message bridge between platform socket events and local conversations.
// ABOUTME: Suppresses echoes, resolves chat ids and labels, and reconciles optimistic sends.

package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/x6nux/linkclaw-sub000/internal/conversation"
	"github.com/x6nux/linkclaw-sub000/internal/dedupe"
	"github.com/x6nux/linkclaw-sub000/internal/duplex"
)

// Socket event types handled by the bridge.
const (
	EventMessageNew   = "message.new"
	EventMessageSend  = "message.send"
	EventInitRequired = "init_required"
)

const msgTypeText = "text"

// Channel is the socket the bridge reads from and writes to.
// *duplex.Channel satisfies it.
type Channel interface {
	Send(eventType string, data any) bool
	On(eventType string, handler duplex.Handler) func()
}

// ChatMeta describes the chat an inbound message belongs to.
type ChatMeta struct {
	Chat         conversation.ChatID
	Title        string
	LastActivity time.Time
	IsGroup      bool
}

// Consumer receives normalized inbound messages. It is called on the socket's
// read goroutine and should return quickly.
type Consumer interface {
	HandleMessage(msg conversation.Message, meta ChatMeta)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(msg conversation.Message, meta ChatMeta)

// HandleMessage calls f.
func (f ConsumerFunc) HandleMessage(msg conversation.Message, meta ChatMeta) {
	f(msg, meta)
}

// InitHandler is implemented by consumers that want the platform's
// init_required event.
type InitHandler interface {
	HandleInitRequired(data json.RawMessage)
}

// UpdateHandler is implemented by consumers that track every change to the
// conversation log, including optimistic sends and echo confirmations.
type UpdateHandler interface {
	HandleUpdate(u conversation.Update)
}

// Config holds the settings for a Bridge.
type Config struct {
	// SelfID is the agent's own platform id, used for echo suppression.
	SelfID string
	// SelfLabel labels optimistic messages; defaults to SelfID.
	SelfLabel string
	// Directory seeds the name cache at Start. Nil leaves it empty.
	Directory Directory

	DedupeTTL  time.Duration
	DedupeSize int
}

// Bridge routes messages between a Channel and a Consumer.
type Bridge struct {
	cfg      Config
	channel  Channel
	consumer Consumer
	logger   *slog.Logger

	names   *NameCache
	log     *conversation.Log
	updates *conversation.Broadcaster
	seen    *dedupe.Cache

	mu      sync.Mutex
	dispose []func()
}

// inboundMessage is the data of a message.new frame.
type inboundMessage struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	ReceiverID  string `json:"receiver_id"`
	Content     string `json:"content"`
	MsgType     string `json:"msg_type"`
	CreatedAt   string `json:"created_at"`
}

// outboundMessage is the data of a message.send frame.
type outboundMessage struct {
	Content    string `json:"content"`
	Channel    string `json:"channel,omitempty"`
	ReceiverID string `json:"receiver_id,omitempty"`
}

// New creates a Bridge. Call Start to begin receiving.
func New(cfg Config, channel Channel, consumer Consumer, logger *slog.Logger) *Bridge {
	if cfg.SelfLabel == "" {
		cfg.SelfLabel = cfg.SelfID
	}
	if logger == nil {
		logger = slog.Default()
	}
	if consumer == nil {
		consumer = ConsumerFunc(func(conversation.Message, ChatMeta) {})
	}
	logger = logger.With("component", "bridge")

	return &Bridge{
		cfg:      cfg,
		channel:  channel,
		consumer: consumer,
		logger:   logger,
		names:    NewNameCache(),
		log:      conversation.NewLog(),
		updates:  conversation.NewBroadcaster(logger),
		seen:     dedupe.New(dedupe.Config{TTL: cfg.DedupeTTL, MaxSize: cfg.DedupeSize}),
	}
}

// Start loads the name cache and subscribes to socket events. A failed
// directory fetch is logged and otherwise ignored. Calling Start again does
// nothing.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dispose != nil {
		return
	}

	if b.cfg.Directory != nil {
		if err := b.names.Load(ctx, b.cfg.Directory); err != nil {
			b.logger.Warn("name cache incomplete, falling back to raw ids", "error", err)
		}
		agents, channels := b.names.Len()
		b.logger.Info("name cache loaded", "agents", agents, "channels", channels)
	}

	b.dispose = []func(){
		b.channel.On(EventMessageNew, b.handleMessage),
		b.channel.On(EventInitRequired, b.handleInitRequired),
		b.channel.On(duplex.EventConnected, func(duplex.Frame) {
			b.logger.Debug("platform connection confirmed")
		}),
	}
}

// Stop removes the socket subscriptions and closes update subscribers. A
// stopped bridge cannot be started again.
func (b *Bridge) Stop() {
	b.mu.Lock()
	dispose := b.dispose
	b.dispose = nil
	b.mu.Unlock()

	for _, fn := range dispose {
		fn()
	}
	b.updates.Close()
	b.seen.Close()
	b.logger.Debug("bridge stopped", "chats", len(b.log.Chats()))
}

// Names exposes the name cache.
func (b *Bridge) Names() *NameCache {
	return b.names
}

// Conversation returns the merged messages of chat.
func (b *Bridge) Conversation(chat conversation.ChatID) []conversation.Message {
	return b.log.Messages(chat)
}

// Subscribe streams every change to chat's conversation until ctx ends.
func (b *Bridge) Subscribe(ctx context.Context, chat conversation.ChatID) <-chan conversation.Update {
	ch, _ := b.updates.Subscribe(ctx, chat)
	return ch
}

// Send records content as an optimistic message in chat and writes it to the
// socket. It reports false if the socket was not open; the optimistic record
// stays in the conversation either way.
func (b *Bridge) Send(chat conversation.ChatID, content string) (conversation.Message, bool) {
	msg := b.log.AddOptimistic(chat, b.cfg.SelfID, b.cfg.SelfLabel, content)
	b.publish(conversation.Update{Message: msg})

	out := outboundMessage{Content: content}
	switch c := chat.(type) {
	case conversation.Channel:
		out.Channel = c.Name
	case conversation.DirectMessage:
		out.ReceiverID = c.CounterpartID
	}

	ok := b.channel.Send(EventMessageSend, out)
	if !ok {
		b.logger.Warn("message not sent, socket closed", "chat", conversation.Key(chat))
	}
	return msg, ok
}

func (b *Bridge) handleMessage(f duplex.Frame) {
	var in inboundMessage
	if err := f.Decode(&in); err != nil {
		b.logger.Debug("dropping undecodable message event", "error", err)
		return
	}

	if b.cfg.SelfID != "" && in.SenderID == b.cfg.SelfID {
		b.confirmEcho(in)
		return
	}

	if !isText(in.MsgType) {
		b.logger.Debug("ignoring non-text message", "message_id", in.ID, "msg_type", in.MsgType)
		return
	}

	chat, title := b.resolveChat(in)
	if chat == nil {
		b.logger.Debug("dropping message without chat", "message_id", in.ID)
		return
	}

	if in.ID != "" && b.seen.Seen(in.ID) {
		b.logger.Debug("dropping redelivered message", "message_id", in.ID)
		return
	}

	msg, result, replaced := b.log.Merge(conversation.Message{
		ID:          in.ID,
		Chat:        chat,
		SenderID:    in.SenderID,
		SenderLabel: b.agentLabel(in.SenderID, in.SenderName),
		Content:     in.Content,
		Timestamp:   parseTimestamp(in.CreatedAt),
	})
	if result == conversation.Duplicate {
		return
	}
	b.publish(conversation.Update{Message: msg, Replaced: replaced})

	b.logger.Debug("← message",
		"message_id", msg.ID,
		"chat", conversation.Key(chat),
		"sender", msg.SenderLabel,
	)

	last, ok := b.log.LastActivity(chat)
	if !ok {
		last = msg.Timestamp
	}
	b.consumer.HandleMessage(msg, ChatMeta{
		Chat:         chat,
		Title:        title,
		LastActivity: last,
		IsGroup:      chat.IsGroup(),
	})
}

// confirmEcho folds the platform's copy of our own send into the log without
// delivering it.
func (b *Bridge) confirmEcho(in inboundMessage) {
	if !isText(in.MsgType) {
		return
	}
	chat, _ := b.resolveChat(in)
	if chat == nil {
		return
	}

	msg, result, replaced := b.log.Merge(conversation.Message{
		ID:          in.ID,
		Chat:        chat,
		SenderID:    in.SenderID,
		SenderLabel: b.cfg.SelfLabel,
		Content:     in.Content,
		Timestamp:   parseTimestamp(in.CreatedAt),
	})
	if result != conversation.Duplicate {
		b.publish(conversation.Update{Message: msg, Replaced: replaced})
	}
	b.logger.Debug("echo suppressed", "message_id", in.ID, "merge", result.String())
}

func (b *Bridge) publish(u conversation.Update) {
	b.updates.Publish(u.Message.Chat, u)
	if h, ok := b.consumer.(UpdateHandler); ok {
		h.HandleUpdate(u)
	}
}

func (b *Bridge) handleInitRequired(f duplex.Frame) {
	h, ok := b.consumer.(InitHandler)
	if !ok {
		b.logger.Info("platform requested initialization, no handler registered")
		return
	}
	h.HandleInitRequired(f.Data)
}

// resolveChat picks the chat for an event and a human-readable title for it.
// Channels use their display name; direct messages use the other party's id.
func (b *Bridge) resolveChat(in inboundMessage) (conversation.ChatID, string) {
	if in.ChannelID != "" {
		name, ok := b.names.ChannelName(in.ChannelID)
		if !ok {
			name = in.ChannelName
		}
		if name == "" {
			name = in.ChannelID
		}
		chat := conversation.Channel{Name: name}
		return chat, chat.String()
	}

	counterpart := in.SenderID
	label := in.SenderName
	if counterpart == b.cfg.SelfID || counterpart == "" {
		counterpart, label = in.ReceiverID, ""
	}
	if counterpart == "" {
		return nil, ""
	}
	return conversation.DirectMessage{CounterpartID: counterpart}, b.agentLabel(counterpart, label)
}

func (b *Bridge) agentLabel(id, eventName string) string {
	if name, ok := b.names.AgentName(id); ok {
		return name
	}
	if eventName != "" {
		return eventName
	}
	return id
}

func isText(msgType string) bool {
	return msgType == "" || msgType == msgTypeText
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
