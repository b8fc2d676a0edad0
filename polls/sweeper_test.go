package polls_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

func TestSweepClosesExpiredPolls(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	short := f.poll(t, false)
	long, err := f.svc.Create(ctx, polls.CreateInput{
		Title: "Long running", Options: []string{"x", "y"}, Password: "secret1", ExpiresAt: f.now.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	events, err := f.hub.Subscribe(ctx, short.ID)
	require.NoError(t, err)

	s := polls.NewSweeper(f.store, f.notif, time.Hour)
	s.SetClock(func() time.Time { return f.now })

	assert.Equal(t, 0, s.Sweep(ctx))

	f.now = f.now.Add(2 * time.Hour)
	assert.Equal(t, 1, s.Sweep(ctx))
	assert.Equal(t, 0, s.Sweep(ctx), "already closed")

	view, err := f.svc.Get(ctx, short.ID, "")
	require.NoError(t, err)
	assert.True(t, view.Poll.IsClosed)
	view, err = f.svc.Get(ctx, long.ID, "")
	require.NoError(t, err)
	assert.False(t, view.Poll.IsClosed)

	ev := nextEvent(t, events, polls.EventClosed)
	assert.Equal(t, short.ID, ev.PollID)
}

func TestSweeperStartStop(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, false)
	f.now = f.now.Add(2 * time.Hour)

	s := polls.NewSweeper(f.store, f.notif, time.Hour)
	s.SetClock(func() time.Time { return f.now })
	s.Start(context.Background())

	assert.Eventually(t, func() bool {
		view, err := f.svc.Get(context.Background(), p.ID, "")
		return err == nil && view.Poll.IsClosed
	}, 2*time.Second, 10*time.Millisecond, "start sweeps immediately")

	s.Stop()
}

func TestSweeperStartTwice(t *testing.T) {
	f := newFixture(t)
	s := polls.NewSweeper(f.store, f.notif, time.Hour)
	s.SetClock(func() time.Time { return f.now })

	s.Start(context.Background())
	s.Start(context.Background())
	assert.NotPanics(t, s.Stop)
	assert.NotPanics(t, s.Stop, "stop is idempotent")
}
