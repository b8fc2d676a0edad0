package memory

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

// Hub fans events out to subscribers in the same process. Slow subscribers
// lose events rather than stall publishers.
type Hub struct {
	mtx  sync.Mutex
	subs map[string]map[chan polls.Event]struct{}
	size int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 100
	}
	return &Hub{subs: map[string]map[chan polls.Event]struct{}{}, size: buffer}
}

func (h *Hub) Publish(_ context.Context, ev polls.Event) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for ch := range h.subs[ev.PollID] {
		select {
		case ch <- ev:
		default:
			log.Warnf("hub, slow subscriber, dropped=%s poll=%s", ev.Type, ev.PollID)
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, pollID string) (<-chan polls.Event, error) {
	ch := make(chan polls.Event, h.size)

	h.mtx.Lock()
	if h.subs[pollID] == nil {
		h.subs[pollID] = map[chan polls.Event]struct{}{}
	}
	h.subs[pollID][ch] = struct{}{}
	h.mtx.Unlock()

	go func() {
		<-ctx.Done()
		h.mtx.Lock()
		delete(h.subs[pollID], ch)
		if len(h.subs[pollID]) == 0 {
			delete(h.subs, pollID)
		}
		close(ch)
		h.mtx.Unlock()
	}()
	return ch, nil
}

// Subscribers reports how many subscribers pollID has. Test helper.
func (h *Hub) Subscribers(pollID string) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.subs[pollID])
}
