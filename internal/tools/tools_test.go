// ABOUTME: Tests for the tool proxy: verbatim descriptors and never-throwing calls.
// ABOUTME: Uses a scripted invoker so each rpc failure kind can be produced directly.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x6nux/linkclaw-sub000/internal/rpc"
)

type scriptedBackend struct {
	caps    []rpc.Capability
	listErr error

	text    string
	err     error
	panics  bool
	gotName string
	gotArgs json.RawMessage
}

func (s *scriptedBackend) ListCapabilities(context.Context) ([]rpc.Capability, error) {
	return s.caps, s.listErr
}

func (s *scriptedBackend) InvokeCapability(_ context.Context, name string, args json.RawMessage) (string, error) {
	if s.panics {
		panic("boom")
	}
	s.gotName, s.gotArgs = name, args
	return s.text, s.err
}

var taskCaps = []rpc.Capability{
	{Name: "task_list", Description: "List tasks", InputSchema: json.RawMessage(`{"type":"object"}`)},
	{Name: "task_create", Description: "Create a task", InputSchema: json.RawMessage(`{"type":"object","required":["title"]}`)},
	{Name: ""},
}

func TestBuild_CopiesDescriptorsVerbatim(t *testing.T) {
	r := Build(taskCaps, &scriptedBackend{}, nil)

	require.Equal(t, 2, r.Len(), "nameless descriptors are skipped")
	tool, ok := r.Get("task_create")
	require.True(t, ok)
	assert.Equal(t, "Create a task", tool.Description)
	assert.JSONEq(t, `{"type":"object","required":["title"]}`, string(tool.Schema))

	names := []string{}
	for _, tl := range r.List() {
		names = append(names, tl.Name)
	}
	assert.Equal(t, []string{"task_create", "task_list"}, names)
}

func TestLoad(t *testing.T) {
	r, err := Load(context.Background(), &scriptedBackend{caps: taskCaps}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	_, err = Load(context.Background(), &scriptedBackend{listErr: rpc.ErrClosed}, nil)
	assert.ErrorIs(t, err, rpc.ErrClosed)
}

func TestCall_SuccessForwardsArgsUnchanged(t *testing.T) {
	backend := &scriptedBackend{text: "3 open tasks"}
	r := Build(taskCaps, backend, nil)

	args := json.RawMessage(`{"status":"open","limit":3}`)
	res := r.Call(context.Background(), "task_list", args)

	assert.Equal(t, Result{Text: "3 open tasks"}, res)
	assert.Equal(t, "task_list", backend.gotName)
	assert.Equal(t, string(args), string(backend.gotArgs))
}

func TestCall_FailuresBecomeResults(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		err           error
		wantText      string
		wantRetryable bool
	}{
		{
			name:     "remote tool error keeps its text",
			text:     "task not found",
			err:      &rpc.CapabilityError{Name: "task_list", Text: "task not found"},
			wantText: "task not found",
		},
		{
			name:     "remote tool error without text",
			err:      &rpc.CapabilityError{Name: "task_list"},
			wantText: "tool task_list reported an error",
		},
		{
			name:          "timeout",
			err:           &rpc.TimeoutError{Method: "tools/call", After: 30 * time.Second},
			wantText:      "tool task_list timed out after 30s",
			wantRetryable: true,
		},
		{
			name:          "submission rejected",
			err:           &rpc.SubmissionError{Method: "tools/call", Status: http.StatusBadGateway},
			wantText:      "tool task_list could not be submitted (HTTP 502)",
			wantRetryable: true,
		},
		{
			name:     "protocol error",
			err:      &rpc.ProtocolError{Method: "tools/call", Code: rpc.CodeInvalidParams, Message: "missing title"},
			wantText: "tool task_list was rejected: missing title (code -32602)",
		},
		{
			name:          "stream lost",
			err:           rpc.ErrStreamLost,
			wantText:      "tool task_list: connection to the platform was lost",
			wantRetryable: true,
		},
		{
			name:     "closed",
			err:      rpc.ErrClosed,
			wantText: "tool task_list: connection to the platform is closed",
		},
		{
			name:     "anything else",
			err:      errors.New("dial tcp: refused"),
			wantText: "tool task_list failed: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Build(taskCaps, &scriptedBackend{text: tt.text, err: tt.err}, nil)
			res := r.Call(context.Background(), "task_list", nil)

			assert.True(t, res.IsError)
			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, tt.wantRetryable, res.Retryable)
		})
	}
}

func TestCall_UnknownTool(t *testing.T) {
	r := Build(taskCaps, &scriptedBackend{}, nil)

	res := r.Call(context.Background(), "nope", nil)
	assert.True(t, res.IsError)
	assert.Equal(t, `unknown tool "nope"`, res.Text)
}

func TestCall_InvalidArgs(t *testing.T) {
	backend := &scriptedBackend{}
	r := Build(taskCaps, backend, nil)

	res := r.Call(context.Background(), "task_list", json.RawMessage(`{broken`))
	assert.True(t, res.IsError)
	assert.Empty(t, backend.gotName, "invalid arguments are not sent")
}

func TestCall_PanicBecomesResult(t *testing.T) {
	r := Build(taskCaps, &scriptedBackend{panics: true}, nil)

	var res Result
	require.NotPanics(t, func() {
		res = r.Call(context.Background(), "task_list", nil)
	})
	assert.True(t, res.IsError)
}

func TestCall_AgainstTransport(t *testing.T) {
	// A transport that was never started fails every call; the proxy still
	// returns a Result.
	tr, err := rpc.NewTransport(rpc.Config{BaseURL: "http://127.0.0.1:1", Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer tr.Close()

	r := Build(taskCaps, tr, nil)
	res := r.Call(context.Background(), "task_list", nil)
	assert.True(t, res.IsError)
	assert.True(t, res.Retryable)
	assert.Contains(t, res.Text, "timed out")
}
