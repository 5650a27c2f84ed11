package service

import (
	"context"
	"sync"

	"threadhub/internal/model"
)

const ringBufferSize = 500

type subscriber struct {
	ch   chan *model.MessageEvent
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// StreamHub distributes message events to live subscribers of a thread.
// It keeps an in-memory ring buffer of the last 500 events per thread
// and a fan-out map of thread → subscribers. A subscriber that falls
// behind is dropped: its channel is closed.
type StreamHub struct {
	mu sync.Mutex
	// threadID → list of subscribers
	subscribers map[string][]*subscriber
	// threadID → recent events (ring buffer, max 500)
	recentEvents map[string][]*model.MessageEvent
}

func NewStreamHub() *StreamHub {
	return &StreamHub{
		subscribers:  make(map[string][]*subscriber),
		recentEvents: make(map[string][]*model.MessageEvent),
	}
}

// Publish appends the event to the thread's ring buffer and sends it to all
// subscribers of the thread.
func (h *StreamHub) Publish(event *model.MessageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := append(h.recentEvents[event.ThreadID], event)
	if len(buf) > ringBufferSize {
		buf = buf[len(buf)-ringBufferSize:]
	}
	h.recentEvents[event.ThreadID] = buf

	subs := h.subscribers[event.ThreadID]
	kept := subs[:0]
	for _, sub := range subs {
		select {
		case sub.ch <- event:
			kept = append(kept, sub)
		default:
			// Slow consumer: unsubscribe and close its channel. It
			// reconnects and replays from the last seq it saw, so no
			// event is skipped.
			sub.close()
		}
	}
	h.setSubscribers(event.ThreadID, kept)
}

// setSubscribers must be called with mu held.
func (h *StreamHub) setSubscribers(threadID string, subs []*subscriber) {
	if len(subs) == 0 {
		delete(h.subscribers, threadID)
		return
	}
	h.subscribers[threadID] = subs
}

// Subscribe registers a live subscriber for a thread. Buffered events with
// seq > sinceSeq are replayed first. The returned cancel function must be
// called to unsubscribe; it closes the channel. The channel is also closed
// when the subscriber is dropped for falling behind.
func (h *StreamHub) Subscribe(ctx context.Context, threadID string, sinceSeq int64) (<-chan *model.MessageEvent, func()) {
	h.mu.Lock()

	toReplay := make([]*model.MessageEvent, 0)
	for _, ev := range h.recentEvents[threadID] {
		if ev.Seq > sinceSeq {
			toReplay = append(toReplay, ev)
		}
	}

	// Replay happens under the lock so live events cannot overtake it; the
	// channel is sized to hold the whole replay.
	ch := make(chan *model.MessageEvent, len(toReplay)+64)
	for _, ev := range toReplay {
		ch <- ev
	}
	sub := &subscriber{ch: ch}
	h.subscribers[threadID] = append(h.subscribers[threadID], sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[threadID]
		updated := subs[:0]
		for _, s := range subs {
			if s != sub {
				updated = append(updated, s)
			}
		}
		h.setSubscribers(threadID, updated)
		sub.close()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel
}

// Forget drops the buffered events of a deleted thread.
func (h *StreamHub) Forget(threadID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.recentEvents, threadID)
}
