// ABOUTME: Capability calls built on Request: initialize, tools/list, tools/call, ping.
// ABOUTME: Follows the MCP method names and result shapes the platform speaks.

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion is the MCP protocol revision sent in the handshake.
const ProtocolVersion = "2024-11-05"

// Well-known methods.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
	MethodPing        = "ping"
)

// maxListPages stops a server that keeps returning cursors.
const maxListPages = 100

// Capability describes one remotely invocable tool.
type Capability struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ServerInfo identifies the remote implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the handshake answer.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

type listToolsResult struct {
	Tools      []Capability `json:"tools"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Initialize performs the protocol handshake and announces readiness.
func (t *Transport) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    t.cfg.ClientName,
			"version": t.cfg.ClientVersion,
		},
	}

	raw, err := t.Request(ctx, MethodInitialize, params)
	if err != nil {
		return nil, err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding initialize result: %w", err)
	}

	if err := t.Notify(ctx, MethodInitialized, nil); err != nil {
		return nil, err
	}

	t.logger.Info("rpc session initialized",
		"protocol_version", result.ProtocolVersion,
		"server", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
	)
	return &result, nil
}

// ListCapabilities returns every tool the platform advertises, following
// pagination cursors.
func (t *Transport) ListCapabilities(ctx context.Context) ([]Capability, error) {
	var all []Capability
	cursor := ""

	for page := 0; page < maxListPages; page++ {
		var params any
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}

		raw, err := t.Request(ctx, MethodListTools, params)
		if err != nil {
			return nil, err
		}

		var result listToolsResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("decoding tools/list result: %w", err)
		}
		all = append(all, result.Tools...)

		if result.NextCursor == "" {
			return all, nil
		}
		cursor = result.NextCursor
	}

	return all, fmt.Errorf("tools/list: more than %d pages", maxListPages)
}

// InvokeCapability calls the named tool with args passed through unchanged,
// except that missing or null args are sent as an empty object. It returns the
// tool's text content. When the tool reports failure, the text is still
// returned together with a *CapabilityError.
func (t *Transport) InvokeCapability(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	raw, err := t.Request(ctx, MethodCallTool, callToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding tools/call result: %w", err)
	}

	text := joinText(result.Content)
	if result.IsError {
		return text, &CapabilityError{Name: name, Text: text}
	}
	return text, nil
}

// Ping checks that the remote end is alive.
func (t *Transport) Ping(ctx context.Context) error {
	_, err := t.Request(ctx, MethodPing, nil)
	return err
}

func joinText(blocks []contentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
