// ABOUTME: Local tool wrappers around remotely advertised capabilities.
// ABOUTME: Converts every invocation failure into an error-flagged Result.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/x6nux/linkclaw-sub000/internal/rpc"
)

// Invoker runs a capability on the platform.
type Invoker interface {
	InvokeCapability(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Lister lists the platform's capabilities.
type Lister interface {
	ListCapabilities(ctx context.Context) ([]rpc.Capability, error)
}

// Backend is what Load needs. *rpc.Transport satisfies it.
type Backend interface {
	Invoker
	Lister
}

// Result is the outcome of one tool call.
type Result struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error,omitempty"`
	// Retryable is set on errors that may succeed if the call is repeated.
	Retryable bool `json:"retryable,omitempty"`
}

func errorResult(text string, retryable bool) Result {
	return Result{Text: text, IsError: true, Retryable: retryable}
}

// Tool is one locally callable capability.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage

	invoker Invoker
	logger  *slog.Logger
}

// Call invokes the tool with args passed through unchanged.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tool call panicked", "tool", t.Name, "panic", r)
			res = errorResult(fmt.Sprintf("tool %s failed unexpectedly", t.Name), false)
		}
	}()

	if len(args) > 0 && !json.Valid(args) {
		return errorResult(fmt.Sprintf("tool %s: arguments are not valid JSON", t.Name), false)
	}

	text, err := t.invoker.InvokeCapability(ctx, t.Name, args)
	if err != nil {
		t.logger.Warn("tool call failed", "tool", t.Name, "error", err)
		return errorResult(describe(t.Name, text, err), rpc.Retryable(err))
	}
	return Result{Text: text}
}

// describe renders err for the model reading the result.
func describe(name, text string, err error) string {
	var (
		capErr     *rpc.CapabilityError
		timeoutErr *rpc.TimeoutError
		subErr     *rpc.SubmissionError
		protoErr   *rpc.ProtocolError
	)

	switch {
	case errors.As(err, &capErr):
		if text != "" {
			return text
		}
		return fmt.Sprintf("tool %s reported an error", name)
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("tool %s timed out after %s", name, timeoutErr.After)
	case errors.As(err, &subErr):
		return fmt.Sprintf("tool %s could not be submitted (HTTP %d)", name, subErr.Status)
	case errors.As(err, &protoErr):
		return fmt.Sprintf("tool %s was rejected: %s (code %d)", name, protoErr.Message, protoErr.Code)
	case errors.Is(err, rpc.ErrStreamLost):
		return fmt.Sprintf("tool %s: connection to the platform was lost", name)
	case errors.Is(err, rpc.ErrClosed):
		return fmt.Sprintf("tool %s: connection to the platform is closed", name)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("tool %s was cancelled", name)
	default:
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
}

// Registry holds the tools built from one capability listing. It is not
// modified after Build, so it is safe for concurrent use.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// Build wraps each descriptor as a Tool. Later duplicates of a name replace
// earlier ones.
func Build(descs []rpc.Capability, invoker Invoker, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	r := &Registry{tools: make(map[string]*Tool, len(descs)), logger: logger}
	for _, d := range descs {
		if d.Name == "" {
			continue
		}
		r.tools[d.Name] = &Tool{
			Name:        d.Name,
			Description: d.Description,
			Schema:      d.InputSchema,
			invoker:     invoker,
			logger:      logger,
		}
	}
	return r
}

// Load lists the backend's capabilities and builds a registry from them.
func Load(ctx context.Context, backend Backend, logger *slog.Logger) (*Registry, error) {
	descs, err := backend.ListCapabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing capabilities: %w", err)
	}
	r := Build(descs, backend, logger)
	r.logger.Info("tools loaded", "count", r.Len())
	return r, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every tool sorted by name.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Call invokes the named tool. Unknown names produce an error Result.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) Result {
	t, ok := r.Get(name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", name), false)
	}
	return t.Call(ctx, args)
}
