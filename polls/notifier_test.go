package polls_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

type blockingBroadcaster struct {
	release chan struct{}
	mu      sync.Mutex
	got     []polls.Event
}

func (b *blockingBroadcaster) Publish(ctx context.Context, ev polls.Event) error {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, ev)
	b.mu.Unlock()
	return nil
}

func TestNotifyNeverBlocks(t *testing.T) {
	b := &blockingBroadcaster{release: make(chan struct{})}
	n := polls.NewNotifier(b, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Notify(polls.Event{Type: polls.EventVote, PollID: "p"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a stuck broadcaster")
	}

	close(b.release)
	n.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.NotEmpty(t, b.got)
	assert.LessOrEqual(t, len(b.got), 3, "overflow is dropped")
	assert.False(t, b.got[0].Timestamp.IsZero())

	// After Close, Notify is a no-op.
	n.Notify(polls.Event{Type: polls.EventVote, PollID: "p"})
}

type failingBroadcaster struct{}

func (failingBroadcaster) Publish(context.Context, polls.Event) error {
	return errors.New("redis down")
}

func TestPublishFailureDoesNotFailVote(t *testing.T) {
	f := newFixture(t)
	n := polls.NewNotifier(failingBroadcaster{}, 4)
	defer n.Close()
	svc := polls.NewService(f.store, n, nil, polls.Config{})
	svc.FastHash()

	p, err := svc.Create(context.Background(), polls.CreateInput{
		Title: "Resilient", Options: []string{"x", "y"}, Password: "secret1", ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.NoError(t, err)

	got, err := svc.Vote(context.Background(), vote(p, 0, "f", "1.1.1.1"))
	assert.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalVotes)
}
