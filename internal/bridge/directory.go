// ABOUTME: REST client for the platform's agent and channel listings.
// ABOUTME: Feeds the name cache once at bridge startup.

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Entry is one named object in a directory listing.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory lists the agents and channels known to the platform.
type Directory interface {
	Agents(ctx context.Context) ([]Entry, error)
	Channels(ctx context.Context) ([]Entry, error)
}

type listResponse struct {
	Data []Entry `json:"data"`
}

// RESTDirectory reads listings from GET {BaseURL}/api/v1/agents and
// /api/v1/channels.
type RESTDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRESTDirectory creates a directory client. A nil client uses
// http.DefaultClient.
func NewRESTDirectory(baseURL, token string, client *http.Client) *RESTDirectory {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTDirectory{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Agents lists every agent.
func (d *RESTDirectory) Agents(ctx context.Context) ([]Entry, error) {
	return d.list(ctx, "/api/v1/agents")
}

// Channels lists every channel.
func (d *RESTDirectory) Channels(ctx context.Context) ([]Entry, error) {
	return d.list(ctx, "/api/v1/channels")
}

func (d *RESTDirectory) list(ctx context.Context, path string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetching %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return out.Data, nil
}
