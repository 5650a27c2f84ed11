package service

import (
	"context"
	"testing"
	"time"

	"threadhub/internal/model"
)

func event(threadID string, seq int64) *model.MessageEvent {
	return &model.MessageEvent{ThreadID: threadID, Seq: seq}
}

func receive(t *testing.T, ch <-chan *model.MessageEvent) *model.MessageEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestStreamHubReplaysSinceSeqThenLive(t *testing.T) {
	hub := NewStreamHub()
	for seq := int64(1); seq <= 3; seq++ {
		hub.Publish(event("t1", seq))
	}

	ch, cancel := hub.Subscribe(context.Background(), "t1", 1)
	defer cancel()

	if got := receive(t, ch).Seq; got != 2 {
		t.Fatalf("first replayed seq = %d, want 2", got)
	}
	if got := receive(t, ch).Seq; got != 3 {
		t.Fatalf("second replayed seq = %d, want 3", got)
	}

	hub.Publish(event("t1", 4))
	hub.Publish(event("other", 1))
	if got := receive(t, ch).Seq; got != 4 {
		t.Fatalf("live seq = %d, want 4", got)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestStreamHubRingBufferIsBounded(t *testing.T) {
	hub := NewStreamHub()
	for seq := int64(1); seq <= ringBufferSize+10; seq++ {
		hub.Publish(event("t1", seq))
	}
	got := hub.recent("t1", 0)
	if len(got) != ringBufferSize {
		t.Fatalf("buffered = %d, want %d", len(got), ringBufferSize)
	}
	if got[0].Seq != 11 {
		t.Fatalf("oldest seq = %d, want 11", got[0].Seq)
	}
}

func TestStreamHubCancelUnsubscribes(t *testing.T) {
	hub := NewStreamHub()
	ctx, cancelCtx := context.WithCancel(context.Background())
	ch, cancel := hub.Subscribe(ctx, "t1", 0)
	if hub.subscriberCount("t1") != 1 {
		t.Fatalf("subscribers = %d", hub.subscriberCount("t1"))
	}

	cancelCtx()
	deadline := time.Now().Add(time.Second)
	for hub.subscriberCount("t1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	cancel() // second cancel is a no-op
}

func TestStreamHubDropsSlowConsumer(t *testing.T) {
	hub := NewStreamHub()
	ch, cancel := hub.Subscribe(context.Background(), "t1", 0)
	defer cancel()

	for seq := int64(1); seq <= 100; seq++ {
		hub.Publish(event("t1", seq))
	}
	if n := hub.subscriberCount("t1"); n != 0 {
		t.Fatalf("subscribers = %d, want the lagging one dropped", n)
	}

	// Everything delivered before the drop is contiguous, then the channel
	// closes so the consumer knows to reconnect.
	var last int64
	for ev := range ch {
		if ev.Seq != last+1 {
			t.Fatalf("gap: got seq %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
	if last == 0 || last >= 100 {
		t.Fatalf("last delivered seq = %d", last)
	}

	// Reconnecting from the last delivered seq replays the rest.
	replay, cancelReplay := hub.Subscribe(context.Background(), "t1", last)
	defer cancelReplay()
	if got := receive(t, replay).Seq; got != last+1 {
		t.Fatalf("replay starts at %d, want %d", got, last+1)
	}
	if got := len(replay); got != int(100-last-1) {
		t.Fatalf("replay queued = %d, want %d", got, 100-last-1)
	}
}

func (h *StreamHub) recent(threadID string, sinceSeq int64) []*model.MessageEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*model.MessageEvent
	for _, ev := range h.recentEvents[threadID] {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out
}

func (h *StreamHub) subscriberCount(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[threadID])
}
