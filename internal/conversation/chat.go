// ABOUTME: ChatID sum type naming a channel or a direct-message conversation.
// ABOUTME: Converts identifiers to and from a flat storage key.

package conversation

import (
	"fmt"
	"strings"
)

// Chat kinds used in storage keys.
const (
	KindChannel = "channel"
	KindDirect  = "dm"
)

// ChatID identifies one conversation. Implemented only by Channel and
// DirectMessage.
type ChatID interface {
	// Kind is KindChannel or KindDirect.
	Kind() string
	// Ref is the channel name or the counterpart id.
	Ref() string
	// IsGroup reports whether more than two participants can post.
	IsGroup() bool

	isChatID()
}

// Channel is a broadcast conversation, named by its human-readable name.
type Channel struct {
	Name string
}

func (Channel) Kind() string { return KindChannel }
func (c Channel) Ref() string { return c.Name }
func (Channel) IsGroup() bool { return true }
func (Channel) isChatID() {}
func (c Channel) String() string { return "#" + c.Name }

// DirectMessage is a one-to-one conversation with the agent CounterpartID.
type DirectMessage struct {
	CounterpartID string
}

func (DirectMessage) Kind() string { return KindDirect }
func (d DirectMessage) Ref() string { return d.CounterpartID }
func (DirectMessage) IsGroup() bool { return false }
func (DirectMessage) isChatID() {}
func (d DirectMessage) String() string { return "@" + d.CounterpartID }

// Key returns "<kind>:<ref>", e.g. "channel:general".
func Key(chat ChatID) string {
	return chat.Kind() + ":" + chat.Ref()
}

// FromParts builds a ChatID from a kind and a ref.
func FromParts(kind, ref string) (ChatID, error) {
	if ref == "" {
		return nil, fmt.Errorf("chat %s: empty ref", kind)
	}
	switch kind {
	case KindChannel:
		return Channel{Name: ref}, nil
	case KindDirect:
		return DirectMessage{CounterpartID: ref}, nil
	default:
		return nil, fmt.Errorf("unknown chat kind %q", kind)
	}
}

// ParseKey is the inverse of Key. It also accepts the "#name" and "@id"
// shorthands.
func ParseKey(s string) (ChatID, error) {
	switch {
	case strings.HasPrefix(s, "#"):
		return FromParts(KindChannel, s[1:])
	case strings.HasPrefix(s, "@"):
		return FromParts(KindDirect, s[1:])
	}

	kind, ref, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid chat key %q", s)
	}
	return FromParts(kind, ref)
}
