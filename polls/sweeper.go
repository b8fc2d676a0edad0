package polls

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper closes polls whose expiry has passed. Admission checks expiry on its
// own, so a missed sweep only delays the CLOSED event.
type Sweeper struct {
	store    Store
	notifier *Notifier
	interval time.Duration
	now      func() time.Time

	mtx      sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(store Store, notifier *Notifier, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start sweeps once immediately, then on every interval until ctx is cancelled
// or Stop is called. Only the first call starts a loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	log.Infof("sweeper started, interval=%v", s.interval)
}

// Stop signals the loop to exit and waits for it.
func (s *Sweeper) Stop() {
	s.mtx.Lock()
	cancel := s.cancel
	s.mtx.Unlock()
	if cancel != nil {
		cancel()
		<-s.done
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns how many polls it closed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	closed, err := s.store.CloseExpired(ctx, s.now())
	if err != nil {
		log.Errorf("sweeper, err=%v", err)
		return 0
	}
	for _, p := range closed {
		pub := p.Public()
		s.notifier.Notify(Event{
			Type:       EventClosed,
			PollID:     p.ID,
			Poll:       pub,
			Options:    pub.Options,
			TotalVotes: p.TotalVotes,
		})
	}
	if len(closed) > 0 {
		log.Infof("sweeper, closed=%d expired polls", len(closed))
	}
	return len(closed)
}
