// ABOUTME: Tests for the merged conversation log and chat identifiers.
// ABOUTME: Covers reconciliation uniqueness, idempotent merge, and key round trips.

package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmed(id string, chat ChatID, sender, content string) Message {
	return Message{
		ID:        id,
		Chat:      chat,
		SenderID:  sender,
		Content:   content,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLog_ReconcileReplacesOptimistic(t *testing.T) {
	log := NewLog()
	general := Channel{Name: "general"}

	opt := log.AddOptimistic(general, "self", "Me", "hi")
	assert.True(t, strings.HasPrefix(opt.ID, LocalIDPrefix))
	assert.Equal(t, Optimistic, opt.Origin)

	stored, result, replaced := log.Merge(confirmed("m1", general, "self", "hi"))
	assert.Equal(t, Reconciled, result)
	assert.Equal(t, opt.ID, replaced)
	assert.Equal(t, "Me", stored.SenderLabel, "label carried over from the optimistic record")

	msgs := log.Messages(general)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, Confirmed, msgs[0].Origin)
}

func TestLog_ReconcileFirstUnmatchedOnly(t *testing.T) {
	log := NewLog()
	general := Channel{Name: "general"}

	first := log.AddOptimistic(general, "self", "", "ok")
	second := log.AddOptimistic(general, "self", "", "ok")

	_, result, replaced := log.Merge(confirmed("m1", general, "self", "ok"))
	assert.Equal(t, Reconciled, result)
	assert.Equal(t, first.ID, replaced)

	_, result, replaced = log.Merge(confirmed("m2", general, "self", "ok"))
	assert.Equal(t, Reconciled, result)
	assert.Equal(t, second.ID, replaced)

	msgs := log.Messages(general)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestLog_ReconcileKeepsPosition(t *testing.T) {
	log := NewLog()
	general := Channel{Name: "general"}

	log.AddOptimistic(general, "self", "", "mine")
	log.Merge(confirmed("m1", general, "agent-b", "theirs"))
	log.Merge(confirmed("m2", general, "self", "mine"))

	msgs := log.Messages(general)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m1", msgs[1].ID)
}

func TestLog_MismatchAppends(t *testing.T) {
	log := NewLog()
	general := Channel{Name: "general"}
	dm := DirectMessage{CounterpartID: "agent-b"}

	log.AddOptimistic(general, "self", "", "hi")

	tests := []struct {
		name string
		msg  Message
	}{
		{"different content", confirmed("m1", general, "self", "hello")},
		{"different sender", confirmed("m2", general, "agent-b", "hi")},
		{"different chat", confirmed("m3", dm, "self", "hi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result, _ := log.Merge(tt.msg)
			assert.Equal(t, Appended, result)
		})
	}

	assert.Len(t, log.Messages(general), 3)
	assert.Len(t, log.Messages(dm), 1)
}

func TestLog_MergeIsIdempotent(t *testing.T) {
	log := NewLog()
	dm := DirectMessage{CounterpartID: "agent-b"}

	_, result, _ := log.Merge(confirmed("m7", dm, "agent-b", "ping"))
	assert.Equal(t, Appended, result)

	_, result, _ = log.Merge(confirmed("m7", dm, "agent-b", "ping"))
	assert.Equal(t, Duplicate, result)

	assert.Len(t, log.Messages(dm), 1)
}

func TestLog_MessagesReturnsCopy(t *testing.T) {
	log := NewLog()
	general := Channel{Name: "general"}
	log.Merge(confirmed("m1", general, "agent-b", "hi"))

	msgs := log.Messages(general)
	msgs[0].Content = "changed"
	assert.Equal(t, "hi", log.Messages(general)[0].Content)
	assert.Empty(t, log.Messages(Channel{Name: "random"}))
}

func TestLog_LastActivityAndChats(t *testing.T) {
	log := NewLog()
	general := Channel{Name: "general"}

	_, ok := log.LastActivity(general)
	assert.False(t, ok)

	log.Merge(confirmed("m1", general, "agent-b", "hi"))
	later := confirmed("m2", general, "agent-b", "again")
	later.Timestamp = later.Timestamp.Add(time.Minute)
	log.Merge(later)

	ts, ok := log.LastActivity(general)
	require.True(t, ok)
	assert.Equal(t, later.Timestamp, ts)
	assert.Equal(t, []ChatID{general}, log.Chats())
}

func TestChatID_KeyRoundTrip(t *testing.T) {
	chats := []ChatID{
		Channel{Name: "general"},
		DirectMessage{CounterpartID: "agent-7"},
		Channel{Name: "with:colon"},
	}
	for _, chat := range chats {
		got, err := ParseKey(Key(chat))
		require.NoError(t, err)
		assert.Equal(t, chat, got)
	}

	assert.True(t, Channel{Name: "x"}.IsGroup())
	assert.False(t, DirectMessage{CounterpartID: "x"}.IsGroup())
}

func TestParseKey(t *testing.T) {
	got, err := ParseKey("#general")
	require.NoError(t, err)
	assert.Equal(t, Channel{Name: "general"}, got)

	got, err = ParseKey("@agent-7")
	require.NoError(t, err)
	assert.Equal(t, DirectMessage{CounterpartID: "agent-7"}, got)

	for _, bad := range []string{"", "general", "room:x", "channel:", "#", "@"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, "key %q", bad)
	}
}
