// ABOUTME: Composition root wiring one duplex channel, one RPC transport, one bridge and one tool registry.
// ABOUTME: Derives the agent identity from the platform token and owns startup and shutdown order.

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/x6nux/linkclaw-sub000/internal/auth"
	"github.com/x6nux/linkclaw-sub000/internal/bridge"
	"github.com/x6nux/linkclaw-sub000/internal/config"
	"github.com/x6nux/linkclaw-sub000/internal/conversation"
	"github.com/x6nux/linkclaw-sub000/internal/duplex"
	"github.com/x6nux/linkclaw-sub000/internal/rpc"
	"github.com/x6nux/linkclaw-sub000/internal/tools"
)

// ErrNotStarted is returned by operations that need Start or StartTools first.
var ErrNotStarted = errors.New("integration not started")

// Integration is one logical connection to the platform.
type Integration struct {
	base   *slog.Logger
	logger *slog.Logger
	self   auth.Identity

	channel   *duplex.Channel
	transport *rpc.Transport
	bridge    *bridge.Bridge

	// startMu serializes StartTools so a failed handshake can be retried.
	startMu sync.Mutex

	mu       sync.Mutex
	registry *tools.Registry
	server   *rpc.InitializeResult
	started  bool
	stopped  bool
}

// New builds an Integration from cfg. Nothing connects until Start.
func New(cfg *config.Config, consumer bridge.Consumer, logger *slog.Logger) (*Integration, error) {
	if logger == nil {
		logger = slog.Default()
	}

	self, err := resolveIdentity(cfg.Platform)
	if err != nil {
		return nil, err
	}
	logger = logger.With("agent_id", self.AgentID)

	transport, err := rpc.NewTransport(rpc.Config{
		BaseURL:        cfg.Platform.MCPURL,
		StreamPath:     cfg.RPC.StreamPath,
		Token:          cfg.Platform.Token,
		Timeout:        cfg.RPC.RequestTimeout,
		ReconnectDelay: cfg.RPC.ReconnectDelay,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rpc transport: %w", err)
	}

	channel := duplex.New(duplex.Config{
		URL:               cfg.Platform.WSURL,
		Token:             cfg.Platform.Token,
		HeartbeatInterval: cfg.Duplex.HeartbeatInterval,
		ReconnectBase:     cfg.Duplex.ReconnectBase,
		ReconnectMax:      cfg.Duplex.ReconnectMax,
	}, logger)

	var dir bridge.Directory
	if cfg.Platform.APIURL != "" {
		dir = bridge.NewRESTDirectory(cfg.Platform.APIURL, cfg.Platform.Token, nil)
	}

	label := cfg.Platform.SelfName
	if label == "" {
		label = self.Name
	}

	b := bridge.New(bridge.Config{
		SelfID:     self.AgentID,
		SelfLabel:  label,
		Directory:  dir,
		DedupeTTL:  cfg.Bridge.DedupeTTL,
		DedupeSize: cfg.Bridge.DedupeSize,
	}, channel, consumer, logger)

	return &Integration{
		base:      logger,
		logger:    logger.With("component", "integration"),
		self:      self,
		channel:   channel,
		transport: transport,
		bridge:    b,
	}, nil
}

// resolveIdentity prefers an explicit self_id and otherwise reads the token.
func resolveIdentity(p config.PlatformConfig) (auth.Identity, error) {
	var secret []byte
	if p.TokenSecret != "" {
		secret = []byte(p.TokenSecret)
	}

	id, err := auth.NewJWTReader(secret).Identity(p.Token)
	if p.SelfID != "" {
		// An opaque token is fine when the id is configured.
		return auth.Identity{AgentID: p.SelfID, Name: id.Name, ExpiresAt: id.ExpiresAt}, nil
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("reading agent id from token (set platform.self_id to override): %w", err)
	}
	return id, nil
}

// Self returns the agent identity used for echo suppression.
func (i *Integration) Self() auth.Identity {
	return i.self
}

// Start connects both transports, performs the RPC handshake, loads the tool
// registry and starts the bridge. The websocket connects in the background and
// keeps retrying; only RPC handshake failures are returned.
func (i *Integration) Start(ctx context.Context) error {
	if err := i.StartTools(ctx); err != nil {
		return err
	}

	i.bridge.Start(ctx)
	i.channel.Connect(ctx)

	i.logger.Info("integration started", "tools", i.Tools().Len())
	return nil
}

// StartTools starts only the RPC side: stream, handshake and tool listing.
// It is enough for one-shot tool calls. Once it has succeeded, further calls
// do nothing.
func (i *Integration) StartTools(ctx context.Context) error {
	i.startMu.Lock()
	defer i.startMu.Unlock()

	i.mu.Lock()
	stopped, started := i.stopped, i.started
	i.mu.Unlock()
	if stopped {
		return rpc.ErrClosed
	}
	if started {
		return nil
	}

	i.transport.Start(ctx)

	server, err := i.transport.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initializing rpc session: %w", err)
	}

	registry, err := tools.Load(ctx, i.transport, i.base)
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.server = server
	i.registry = registry
	i.started = true
	i.mu.Unlock()
	return nil
}

// Run starts the integration and blocks until ctx is cancelled, then stops it.
func (i *Integration) Run(ctx context.Context) error {
	if err := i.Start(ctx); err != nil {
		i.Stop()
		return err
	}
	<-ctx.Done()
	i.logger.Info("shutting down integration")
	i.Stop()
	return nil
}

// Stop tears everything down in reverse order. It is safe to call more than once.
func (i *Integration) Stop() {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return
	}
	i.stopped = true
	i.mu.Unlock()

	i.bridge.Stop()
	i.channel.Disconnect()
	i.transport.Close()
}

// Bridge returns the message bridge.
func (i *Integration) Bridge() *bridge.Bridge {
	return i.bridge
}

// Channel returns the duplex channel.
func (i *Integration) Channel() *duplex.Channel {
	return i.channel
}

// Server describes the platform's RPC server, or nil before StartTools.
func (i *Integration) Server() *rpc.InitializeResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.server
}

// Tools returns the tool registry. Before StartTools it is empty.
func (i *Integration) Tools() *tools.Registry {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.registry == nil {
		return tools.Build(nil, i.transport, i.base)
	}
	return i.registry
}

// Send writes content to chat through the bridge.
func (i *Integration) Send(chat conversation.ChatID, content string) (conversation.Message, bool) {
	return i.bridge.Send(chat, content)
}

// Ping checks the RPC session.
func (i *Integration) Ping(ctx context.Context) error {
	i.mu.Lock()
	started := i.started
	i.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	return i.transport.Ping(ctx)
}
