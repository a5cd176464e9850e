// ABOUTME: End-to-end tests for the composition root against one in-process fake platform.
// ABOUTME: The fake serves the websocket, the SSE/RPC endpoints and the REST directory.

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x6nux/linkclaw-sub000/internal/auth"
	"github.com/x6nux/linkclaw-sub000/internal/bridge"
	"github.com/x6nux/linkclaw-sub000/internal/config"
	"github.com/x6nux/linkclaw-sub000/internal/conversation"
)

const testSecret = "integration-secret"

type rpcRequest struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakePlatform is a minimal platform: one websocket, one SSE session.
type fakePlatform struct {
	srv *httptest.Server

	toClient   chan string
	fromClient chan map[string]any
	sseOut     chan string

	mu      sync.Mutex
	methods []string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{
		toClient:   make(chan string, 16),
		fromClient: make(chan map[string]any, 16),
		sseOut:     make(chan string, 16),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected","data":{}}`))

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame map[string]any
				if json.Unmarshal(data, &frame) == nil {
					p.fromClient <- frame
				}
			}
		}()

		for {
			select {
			case msg := <-p.toClient:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	})
	mux.HandleFunc("GET /mcp/sse", p.serveStream)
	mux.HandleFunc("POST /mcp/messages", p.serveMessage)
	mux.HandleFunc("GET /api/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"agent-bob","name":"Bob"}]}`))
	})
	mux.HandleFunc("GET /api/v1/channels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"ch-1","name":"general"}]}`))
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePlatform) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "event: endpoint\ndata: /mcp/messages?sessionId=s1\n\n")
	flusher.Flush()

	for {
		select {
		case msg := <-p.sseOut:
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (p *fakePlatform) serveMessage(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.methods = append(p.methods, req.Method)
	p.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)

	if req.ID == nil {
		return
	}

	var result string
	switch req.Method {
	case "initialize":
		result = `{"protocolVersion":"2024-11-05","capabilities":{},"serverInfo":{"name":"fake","version":"1.0"}}`
	case "tools/list":
		result = `{"tools":[{"name":"search","description":"Search messages","inputSchema":{"type":"object"}}]}`
	case "tools/call":
		var params struct {
			Arguments json.RawMessage `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &params)
		text, _ := json.Marshal("got " + string(params.Arguments))
		result = fmt.Sprintf(`{"content":[{"type":"text","text":%s}]}`, text)
	default:
		result = `{}`
	}
	p.sseOut <- fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, *req.ID, result)
}

func (p *fakePlatform) seenMethods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.methods...)
}

func (p *fakePlatform) config(t *testing.T) *config.Config {
	t.Helper()
	token, err := auth.Generate([]byte(testSecret), "agent-self", time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Platform.WSURL = "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/ws"
	cfg.Platform.APIURL = p.srv.URL
	cfg.Platform.MCPURL = p.srv.URL + "/mcp"
	cfg.Platform.Token = token
	cfg.Platform.TokenSecret = testSecret
	cfg.Platform.SelfName = "Self"
	cfg.Duplex.ReconnectBase = 10 * time.Millisecond
	cfg.Duplex.ReconnectMax = 50 * time.Millisecond
	cfg.RPC.RequestTimeout = 2 * time.Second
	cfg.RPC.ReconnectDelay = 20 * time.Millisecond
	return cfg
}

type inbox struct {
	ch chan conversation.Message
}

func (in *inbox) HandleMessage(msg conversation.Message, meta bridge.ChatMeta) {
	in.ch <- msg
}

func TestNew_ResolvesIdentity(t *testing.T) {
	p := newFakePlatform(t)

	cfg := p.config(t)
	integ, err := New(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-self", integ.Self().AgentID)

	cfg.Platform.Token = "opaque"
	_, err = New(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.self_id")

	cfg.Platform.SelfID = "configured"
	integ, err = New(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "configured", integ.Self().AgentID)
}

func TestIntegration_EndToEnd(t *testing.T) {
	p := newFakePlatform(t)
	in := &inbox{ch: make(chan conversation.Message, 4)}

	integ, err := New(p.config(t), in, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, integ.Start(ctx))
	defer integ.Stop()

	assert.Equal(t, "fake", integ.Server().ServerInfo.Name)
	require.Equal(t, 1, integ.Tools().Len())

	res := integ.Tools().Call(ctx, "search", json.RawMessage(`{"q":"go"}`))
	assert.False(t, res.IsError, res.Text)
	assert.Equal(t, `got {"q":"go"}`, res.Text)
	assert.Contains(t, p.seenMethods(), "notifications/initialized")

	p.toClient <- `{"type":"message.new","data":{"id":"m1","sender_id":"agent-bob","receiver_id":"agent-self","content":"hi","msg_type":"text"}}`

	select {
	case msg := <-in.ch:
		assert.Equal(t, conversation.DirectMessage{CounterpartID: "agent-bob"}, msg.Chat)
		assert.Equal(t, "Bob", msg.SenderLabel)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	dm := conversation.DirectMessage{CounterpartID: "agent-bob"}
	require.Eventually(t, func() bool {
		_, ok := integ.Send(dm, "hello back")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case frame := <-p.fromClient:
		for frame["type"] == "ping" {
			frame = <-p.fromClient
		}
		assert.Equal(t, "message.send", frame["type"])
		data := frame["data"].(map[string]any)
		assert.Equal(t, "agent-bob", data["receiver_id"])
		assert.Equal(t, "hello back", data["content"])
	case <-ctx.Done():
		t.Fatal("send not received")
	}

	require.NoError(t, integ.Ping(ctx))
}

func TestIntegration_StopIsIdempotent(t *testing.T) {
	p := newFakePlatform(t)
	integ, err := New(p.config(t), nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, integ.Ping(context.Background()), ErrNotStarted)
	assert.Equal(t, 0, integ.Tools().Len())

	integ.Stop()
	integ.Stop()

	assert.Error(t, integ.StartTools(context.Background()))
}
