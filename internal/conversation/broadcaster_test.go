// ABOUTME: Tests for Broadcaster fan-out of log updates
// ABOUTME: Covers subscribe, publish, isolation, unsubscribe, context cancellation, close

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeUpdate(id string, chat ChatID) Update {
	return Update{Message: Message{
		ID:        id,
		Chat:      chat,
		SenderID:  "agent-b",
		Content:   "hello from " + id,
		Timestamp: time.Now(),
		Origin:    Confirmed,
	}}
}

func TestBroadcaster_MultipleSubscribersReceiveSameUpdate(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	general := Channel{Name: "general"}
	ch1, _ := b.Subscribe(t.Context(), general)
	ch2, _ := b.Subscribe(t.Context(), general)

	b.Publish(general, makeUpdate("m1", general))

	for i, ch := range []<-chan Update{ch1, ch2} {
		select {
		case u := <-ch:
			assert.Equal(t, "m1", u.Message.ID, "subscriber %d got wrong update", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_ChatsAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	general := Channel{Name: "general"}
	dm := DirectMessage{CounterpartID: "general"}
	chGeneral, _ := b.Subscribe(t.Context(), general)
	chDM, _ := b.Subscribe(t.Context(), dm)

	b.Publish(dm, makeUpdate("m2", dm))

	select {
	case u := <-chDM:
		assert.Equal(t, "m2", u.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("dm subscriber timed out")
	}

	select {
	case u := <-chGeneral:
		t.Fatalf("channel subscriber got update for another chat: %s", u.Message.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	general := Channel{Name: "general"}
	ch, subID := b.Subscribe(t.Context(), general)
	b.Unsubscribe(general, subID)

	_, ok := <-ch
	assert.False(t, ok)

	// Second unsubscribe is a no-op.
	b.Unsubscribe(general, subID)
	b.Publish(general, makeUpdate("m3", general))
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, Channel{Name: "general"})
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	general := Channel{Name: "general"}
	ch, _ := b.Subscribe(t.Context(), general)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(general, makeUpdate("m", general))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_CloseClosesAll(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context(), Channel{Name: "a"})
	ch2, _ := b.Subscribe(t.Context(), DirectMessage{CounterpartID: "b"})
	b.Close()

	for _, ch := range []<-chan Update{ch1, ch2} {
		_, ok := <-ch
		assert.False(t, ok)
	}

	late, _ := b.Subscribe(t.Context(), Channel{Name: "a"})
	_, ok := <-late
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	general := Channel{Name: "general"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			_, _ = b.Subscribe(ctx, general)
			cancel()
		}()
		go func() {
			defer wg.Done()
			b.Publish(general, makeUpdate("m", general))
		}()
	}
	wg.Wait()
	require.NotPanics(t, func() { b.Publish(general, makeUpdate("m", general)) })
}
