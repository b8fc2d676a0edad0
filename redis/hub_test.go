package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

func testHub(t *testing.T) (*Hub, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+m.Addr())
	require.NoError(t, err)
	h := NewHub(context.Background(), client, 4)
	t.Cleanup(func() {
		_ = h.Close()
		_ = client.Close()
	})
	return h, m
}

func waitSubscribed(t *testing.T, m *miniredis.Miniredis, pollID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.PubSubNumSub(Channel(pollID))[Channel(pollID)] == n
	}, time.Second, 5*time.Millisecond)
}

func recv(t *testing.T, ch <-chan polls.Event) polls.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return polls.Event{}
}

func TestNewClientBadURI(t *testing.T) {
	_, err := NewClient(context.Background(), "not a uri")
	assert.Error(t, err)
}

func TestHubRoundTrip(t *testing.T) {
	h, m := testHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := h.Subscribe(ctx, "p1")
	require.NoError(t, err)
	b, err := h.Subscribe(ctx, "p1")
	require.NoError(t, err)
	other, err := h.Subscribe(ctx, "p2")
	require.NoError(t, err)
	waitSubscribed(t, m, "p1", 1)

	sent := polls.Event{
		Type:       polls.EventVote,
		PollID:     "p1",
		TotalVotes: 3,
		Options:    []polls.Option{{ID: "o1", Text: "A", VoteCount: 3}},
		LastVote:   &polls.LastVote{OptionID: "o1"},
		Timestamp:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.Publish(ctx, sent))

	for _, ch := range []<-chan polls.Event{a, b} {
		got := recv(t, ch)
		assert.Equal(t, polls.EventVote, got.Type)
		assert.EqualValues(t, 3, got.TotalVotes)
		require.NotNil(t, got.LastVote)
		assert.Equal(t, "o1", got.LastVote.OptionID)
		assert.True(t, sent.Timestamp.Equal(got.Timestamp))
	}

	select {
	case ev := <-other:
		t.Fatalf("p2 got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h, m := testHub(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := h.Subscribe(ctx, "p1")
	require.NoError(t, err)
	waitSubscribed(t, m, "p1", 1)
	assert.Equal(t, 1, h.Subscribers("p1"))

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers("p1"))
	waitSubscribed(t, m, "p1", 0)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h, m := testHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := h.Subscribe(ctx, "p1")
	require.NoError(t, err)
	waitSubscribed(t, m, "p1", 1)

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Publish(ctx, polls.Event{Type: polls.EventVote, PollID: "p1", TotalVotes: int64(i)}))
	}

	require.Eventually(t, func() bool { return len(ch) == 4 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, ch, 4, "full subscriber buffers drop instead of blocking")
}
