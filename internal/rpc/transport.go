// ABOUTME: JSON-RPC client over an SSE response stream and HTTP POST submission.
// ABOUTME: Handles the endpoint handshake, request correlation, timeouts, and stream recovery.

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout bounds each request, including the wait for the handshake.
	DefaultTimeout = 30 * time.Second
	// DefaultReconnectDelay is the fixed pause before reopening a lost stream.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultStreamPath is appended to BaseURL to open the event stream.
	DefaultStreamPath = "/sse"

	eventEndpoint = "endpoint"
	eventMessage  = "message"

	maxErrorBody = 4 << 10
)

// Config holds the settings for a Transport.
type Config struct {
	// BaseURL is the platform's RPC root; the endpoint path is resolved against it.
	BaseURL    string
	StreamPath string
	Token      string

	Timeout        time.Duration
	ReconnectDelay time.Duration

	// HTTPClient is used for both the stream and submissions. It must not set
	// a client-wide Timeout, which would cut the long-lived stream.
	HTTPClient *http.Client

	ClientName    string
	ClientVersion string
}

// Transport is one logical RPC connection. It is safe for concurrent use.
type Transport struct {
	cfg     Config
	base    *url.URL
	client  *http.Client
	logger  *slog.Logger
	nextID  atomic.Int64
	pending *pendingRequests

	mu       sync.Mutex
	endpoint *url.URL
	ready    chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
	closing  chan struct{}
}

// NewTransport creates a Transport. It returns an error if BaseURL is not a
// valid absolute URL.
func NewTransport(cfg Config, logger *slog.Logger) (*Transport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https scheme")
	}

	if cfg.StreamPath == "" {
		cfg.StreamPath = DefaultStreamPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "linkclaw-bridge"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		cfg:     cfg,
		base:    base,
		client:  client,
		logger:  logger.With("component", "rpc"),
		pending: newPendingRequests(),
		ready:   make(chan struct{}),
		closing: make(chan struct{}),
	}, nil
}

// Start opens the event stream in the background and returns immediately.
// Requests issued before the handshake completes wait for it.
func (t *Transport) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
}

// Close stops the stream and fails every pending request with ErrClosed.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.closing)
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	n := t.pending.close(ErrClosed)
	t.logger.Info("transport closed", "pending_cancelled", n)
}

// Ready reports whether a submission endpoint is currently available.
func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint != nil
}

// PendingCount returns the number of requests awaiting a response.
func (t *Transport) PendingCount() int {
	return t.pending.len()
}

// Request sends method with params and waits for the correlated response.
// It fails with *TimeoutError if no response arrives within the configured
// timeout, which also covers waiting for the handshake.
func (t *Transport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	endpoint, err := t.awaitEndpoint(ctx, method)
	if err != nil {
		return nil, err
	}

	id := t.nextID.Add(1)
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	ch, err := t.pending.add(id)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("→ rpc request", "method", method, "request_id", id)

	if err := t.submit(ctx, endpoint, method, body); err != nil {
		t.pending.remove(id)
		if ctx.Err() != nil {
			return nil, t.contextError(ctx, method)
		}
		return nil, err
	}

	select {
	case o := <-ch:
		return t.unwrap(method, id, o)
	case <-ctx.Done():
		if t.pending.remove(id) {
			t.logger.Warn("rpc request timed out or cancelled",
				"method", method,
				"request_id", id,
				"error", ctx.Err(),
			)
			return nil, t.contextError(ctx, method)
		}
		// A response settled the entry while the deadline fired.
		return t.unwrap(method, id, <-ch)
	}
}

// Notify sends a JSON-RPC notification. Only submission is confirmed.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	endpoint, err := t.awaitEndpoint(ctx, method)
	if err != nil {
		return err
	}

	body, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", method, err)
	}
	if err := t.submit(ctx, endpoint, method, body); err != nil {
		if ctx.Err() != nil {
			return t.contextError(ctx, method)
		}
		return err
	}
	return nil
}

func (t *Transport) unwrap(method string, id int64, o outcome) (json.RawMessage, error) {
	if o.err != nil {
		return nil, o.err
	}
	t.logger.Debug("← rpc response", "method", method, "request_id", id, "is_error", o.resp.Error != nil)
	if o.resp.Error != nil {
		return nil, &ProtocolError{
			Method:  method,
			Code:    o.resp.Error.Code,
			Message: o.resp.Error.Message,
		}
	}
	return o.resp.Result, nil
}

func (t *Transport) contextError(ctx context.Context, method string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: method, After: t.cfg.Timeout}
	}
	return ctx.Err()
}

// awaitEndpoint blocks until the handshake has produced a submission endpoint.
func (t *Transport) awaitEndpoint(ctx context.Context, method string) (*url.URL, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, ErrClosed
		}
		endpoint, ready := t.endpoint, t.ready
		t.mu.Unlock()

		if endpoint != nil {
			return endpoint, nil
		}

		select {
		case <-ready:
		case <-t.closing:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, t.contextError(ctx, method)
		}
	}
}

func (t *Transport) submit(ctx context.Context, endpoint *url.URL, method string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &SubmissionError{
			Method: method,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func (t *Transport) authorize(req *http.Request) {
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
}

// run keeps one stream open at a time, reopening it after a fixed delay.
func (t *Transport) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := t.stream(ctx)
		t.resetSession()
		if ctx.Err() != nil {
			return
		}

		if n := t.pending.failAll(ErrStreamLost); n > 0 {
			t.logger.Warn("failed in-flight requests after stream loss", "count", n)
		}
		t.logger.Warn("event stream lost, reconnecting",
			"error", err,
			"delay", t.cfg.ReconnectDelay,
		)

		timer := time.NewTimer(t.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stream opens the SSE stream and serves it until it ends.
func (t *Transport) stream(ctx context.Context) error {
	streamURL := t.base.ResolveReference(&url.URL{Path: joinPath(t.base.Path, t.cfg.StreamPath)})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		return fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("event stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	t.logger.Info("event stream opened", "url", streamURL.String())

	return readSSE(ctx, resp.Body, func(ev sseEvent) {
		t.handleEvent(ctx, ev)
	})
}

func (t *Transport) handleEvent(ctx context.Context, ev sseEvent) {
	switch ev.Event {
	case eventEndpoint:
		t.setEndpoint(ev.Data)
	case eventMessage:
		t.handleMessage(ctx, []byte(ev.Data))
	default:
		t.logger.Debug("ignoring stream event", "event", ev.Event)
	}
}

func (t *Transport) setEndpoint(raw string) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		t.logger.Warn("invalid endpoint event", "data", raw, "error", err)
		return
	}
	endpoint := t.base.ResolveReference(ref)

	t.mu.Lock()
	first := t.endpoint == nil
	t.endpoint = endpoint
	if first {
		close(t.ready)
	}
	t.mu.Unlock()

	t.logger.Info("session endpoint negotiated", "endpoint", endpoint.String())
}

// resetSession invalidates the session endpoint. New requests block again until
// the next handshake.
func (t *Transport) resetSession() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.endpoint != nil {
		t.endpoint = nil
		t.ready = make(chan struct{})
	}
}

func (t *Transport) handleMessage(ctx context.Context, data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.logger.Debug("dropping malformed stream message", "error", err)
		return
	}

	// Anything carrying a method originates at the server. Its id lives in the
	// server's own id space and must never settle one of ours.
	if resp.Method != "" {
		if resp.hasID() {
			go t.answerServer(ctx, resp)
		} else {
			t.logger.Debug("server notification", "method", resp.Method)
		}
		return
	}

	id, ok := resp.requestID()
	if !ok {
		return
	}

	if !t.pending.settle(id, outcome{resp: &resp}) {
		t.logger.Debug("discarding response for unknown request", "request_id", id)
	}
}

// answerServer replies to a server-initiated request. Only ping is supported;
// everything else gets method-not-found.
func (t *Transport) answerServer(ctx context.Context, req Response) {
	reply := Response{JSONRPC: "2.0", ID: req.ID}
	if req.Method == MethodPing {
		reply.Result = json.RawMessage("{}")
	} else {
		reply.Error = &ErrorObject{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return
	}

	t.mu.Lock()
	endpoint := t.endpoint
	t.mu.Unlock()
	if endpoint == nil {
		t.logger.Debug("no endpoint for server request reply", "method", req.Method)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	if err := t.submit(ctx, endpoint, req.Method, body); err != nil {
		t.logger.Warn("failed to answer server request", "method", req.Method, "error", err)
		return
	}
	t.logger.Debug("answered server request", "method", req.Method)
}

func joinPath(basePath, p string) string {
	if p == "" {
		return basePath
	}
	if strings.HasPrefix(p, "/") && basePath != "" {
		return strings.TrimSuffix(basePath, "/") + p
	}
	if basePath == "" {
		return p
	}
	return strings.TrimSuffix(basePath, "/") + "/" + p
}
