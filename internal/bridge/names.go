// ABOUTME: Id to display-name cache for agents and channels.
// ABOUTME: Filled once from a Directory and read-only afterwards.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NameCache maps opaque platform ids to display names.
type NameCache struct {
	mu       sync.RWMutex
	agents   map[string]string
	channels map[string]string
}

// NewNameCache creates an empty cache.
func NewNameCache() *NameCache {
	return &NameCache{
		agents:   make(map[string]string),
		channels: make(map[string]string),
	}
}

// Load fetches both listings. A listing that fails is skipped; the other is
// still stored. The returned error joins every failure.
func (n *NameCache) Load(ctx context.Context, dir Directory) error {
	agents, agentErr := dir.Agents(ctx)
	channels, channelErr := dir.Channels(ctx)

	n.mu.Lock()
	for _, e := range agents {
		if e.ID != "" && e.Name != "" {
			n.agents[e.ID] = e.Name
		}
	}
	for _, e := range channels {
		if e.ID != "" && e.Name != "" {
			n.channels[e.ID] = e.Name
		}
	}
	n.mu.Unlock()

	var errs []error
	if agentErr != nil {
		errs = append(errs, fmt.Errorf("loading agents: %w", agentErr))
	}
	if channelErr != nil {
		errs = append(errs, fmt.Errorf("loading channels: %w", channelErr))
	}
	return errors.Join(errs...)
}

// AgentName returns the display name of agent id.
func (n *NameCache) AgentName(id string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	name, ok := n.agents[id]
	return name, ok
}

// ChannelName returns the display name of channel id.
func (n *NameCache) ChannelName(id string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	name, ok := n.channels[id]
	return name, ok
}

// Len returns the number of cached agents and channels.
func (n *NameCache) Len() (agents, channels int) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.agents), len(n.channels)
}
