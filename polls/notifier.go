package polls

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Notifier forwards events to a Broadcaster from a single goroutine. Notify
// never blocks: when the queue is full the event is dropped.
type Notifier struct {
	out     Broadcaster
	queue   chan Event
	timeout time.Duration

	mtx    sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewNotifier(out Broadcaster, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	n := &Notifier{
		out:     out,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *Notifier) Notify(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	n.mtx.RLock()
	defer n.mtx.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- ev:
	default:
		log.Warnf("notifier, queue full, dropped=%s poll=%s", ev.Type, ev.PollID)
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (n *Notifier) Close() {
	n.mtx.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mtx.Unlock()
	<-n.done
}

func (n *Notifier) loop() {
	defer close(n.done)
	for ev := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.out.Publish(ctx, ev); err != nil {
			log.Errorf("notifier, publish=%s poll=%s, err=%v", ev.Type, ev.PollID, err)
		}
		cancel()
	}
}
