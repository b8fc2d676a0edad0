package redis

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ polls.Hub = (*Hub)(nil)

func Channel(pollID string) string {
	return fmt.Sprintf("events:poll:%s", pollID)
}

// Hub publishes poll events on redis and fans them back out to local
// subscribers, so every instance sees every vote. One PubSub connection is
// shared; a channel is subscribed while it has at least one local listener.
type Hub struct {
	client *Client
	pubsub *PubSub
	size   int

	mtx  sync.Mutex
	subs map[string][]chan polls.Event
	done chan struct{}
}

func NewHub(ctx context.Context, client *Client, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 100
	}
	h := &Hub{
		client: client,
		pubsub: client.Subscribe(ctx),
		size:   buffer,
		subs:   map[string][]chan polls.Event{},
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Publish(ctx context.Context, ev polls.Event) error {
	payload, err := json.MarshalToString(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	return h.client.Publish(ctx, Channel(ev.PollID), payload).Err()
}

func (h *Hub) Subscribe(ctx context.Context, pollID string) (<-chan polls.Event, error) {
	ch := make(chan polls.Event, h.size)
	event := Channel(pollID)
	if err := h.subscribe(ctx, event, ch); err != nil {
		return nil, errors.Wrap(err, "redis subscribe")
	}

	go func() {
		<-ctx.Done()
		if err := h.unsubscribe(event, ch); err != nil {
			log.Errorf("redis, err=%v", err)
		}
	}()
	return ch, nil
}

// Close drops the shared connection. Subscriber channels are closed as their
// contexts end.
func (h *Hub) Close() error {
	err := h.pubsub.Close()
	<-h.done
	return err
}

func (h *Hub) loop() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		ev := polls.Event{}
		if err := json.UnmarshalFromString(msg.Payload, &ev); err != nil {
			log.Errorf("redis, channel=%s, err=%v", msg.Channel, err)
			continue
		}
		h.mtx.Lock()
		for _, c := range h.subs[msg.Channel] {
			select {
			case c <- ev:
			default:
				log.Warnf("hub, slow subscriber, dropped=%s poll=%s", ev.Type, ev.PollID)
			}
		}
		h.mtx.Unlock()
	}
}

func filterSlice(s []chan polls.Event, r chan polls.Event) []chan polls.Event {
	for i, v := range s {
		if v == r {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func (h *Hub) subscribe(ctx context.Context, event string, ch chan polls.Event) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if v, ok := h.subs[event]; ok {
		h.subs[event] = append(v, ch)
		return nil
	}
	if err := h.pubsub.Subscribe(ctx, event); err != nil {
		return err
	}
	h.subs[event] = []chan polls.Event{ch}
	return nil
}

func (h *Hub) unsubscribe(event string, ch chan polls.Event) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	close(ch)
	left := filterSlice(h.subs[event], ch)
	if len(left) == 0 {
		delete(h.subs, event)
		return h.pubsub.Unsubscribe(context.Background(), event)
	}
	h.subs[event] = left
	return nil
}

// Subscribers reports how many local subscribers pollID has.
func (h *Hub) Subscribers(pollID string) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.subs[Channel(pollID)])
}
