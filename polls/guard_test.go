package polls_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troydota/api.vote.komodohype.dev/fingerprint"
	"github.com/troydota/api.vote.komodohype.dev/polls"
	"github.com/troydota/api.vote.komodohype.dev/polls/memory"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	hub   *memory.Hub
	notif *polls.Notifier
	svc   *polls.Service
	mail  *recordingMailer
	now   time.Time
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []polls.Invitation
	fail bool
}

func (m *recordingMailer) SendInvitation(_ context.Context, _ *polls.Poll, inv polls.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, inv)
	return nil
}

func (f *fixture) mailbox(pollID string) []string {
	f.mail.mu.Lock()
	defer f.mail.mu.Unlock()
	var out []string
	for _, inv := range f.mail.sent {
		if inv.PollID == pollID {
			out = append(out, inv.Token)
		}
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), hub: memory.NewHub(64), mail: &recordingMailer{}, now: epoch}
	f.notif = polls.NewNotifier(f.hub, 64)
	t.Cleanup(f.notif.Close)
	f.svc = polls.NewService(f.store, f.notif, f.mail, polls.Config{})
	f.svc.SetClock(func() time.Time { return f.now })
	f.svc.FastHash()
	return f
}

func (f *fixture) poll(t *testing.T, private bool, emails ...string) *polls.Poll {
	t.Helper()
	p, err := f.svc.Create(context.Background(), polls.CreateInput{
		Title:     "Where to eat",
		Options:   []string{"A", "B"},
		Password:  "secret1",
		ExpiresAt: f.now.Add(time.Hour),
		IsPrivate: private,
		Emails:    emails,
	})
	require.NoError(t, err)
	return p
}

func vote(p *polls.Poll, opt int, print, ip string) polls.VoteRequest {
	return polls.VoteRequest{
		PollID:      p.ID,
		OptionID:    p.Options[opt].ID,
		Fingerprint: fingerprint.Hint(print),
		IP:          ip,
		UserAgent:   "test",
	}
}

// nextEvent returns the next event of type want, skipping others such as the
// UPDATE queued when a poll is created.
func nextEvent(t *testing.T, events <-chan polls.Event, want polls.EventType) polls.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed")
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
			return polls.Event{}
		}
	}
}

func kind(t *testing.T, err error) polls.Kind {
	t.Helper()
	require.Error(t, err)
	return polls.KindOf(err)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.poll(t, false)

	got, err := f.svc.Vote(ctx, vote(p, 0, "f1", "1.2.3.4"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Options[0].VoteCount)
	assert.EqualValues(t, 0, got.Options[1].VoteCount)
	assert.EqualValues(t, 1, got.TotalVotes)

	_, err = f.svc.Vote(ctx, vote(p, 0, "f1", "9.9.9.9"))
	assert.Equal(t, polls.KindDuplicateDevice, kind(t, err))

	_, err = f.svc.Vote(ctx, vote(p, 1, "f2", "1.2.3.4"))
	assert.Equal(t, polls.KindDuplicateIP, kind(t, err))

	got, err = f.svc.Vote(ctx, vote(p, 1, "f3", "5.6.7.8"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Options[0].VoteCount)
	assert.EqualValues(t, 1, got.Options[1].VoteCount)
	assert.EqualValues(t, 2, got.TotalVotes)
}

func TestGuardRuleOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.poll(t, false)

	_, err := f.svc.Vote(ctx, vote(p, 0, "", "1.1.1.1"))
	assert.Equal(t, polls.KindInvalid, kind(t, err), "missing fingerprint")

	req := vote(p, 0, "f", "1.1.1.1")
	req.OptionID = ""
	_, err = f.svc.Vote(ctx, req)
	assert.Equal(t, polls.KindInvalid, kind(t, err), "missing option")

	req = vote(p, 0, "f", "1.1.1.1")
	req.PollID = "missing"
	_, err = f.svc.Vote(ctx, req)
	assert.Equal(t, polls.KindNotFound, kind(t, err))

	req = vote(p, 0, "f", "1.1.1.1")
	req.OptionID = "missing"
	_, err = f.svc.Vote(ctx, req)
	assert.Equal(t, polls.KindNotFound, kind(t, err))

	_, err = f.svc.Vote(ctx, vote(p, 0, "f1", "1.1.1.1"))
	require.NoError(t, err)

	// Same fingerprint and same ip: the fingerprint rule decides.
	_, err = f.svc.Vote(ctx, vote(p, 0, "f1", "1.1.1.1"))
	assert.Equal(t, polls.KindDuplicateDevice, kind(t, err))
}

func TestClosedPollRejectsEveryone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := f.poll(t, false)
	_, err := f.svc.Close(ctx, closed.ID, "secret1")
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, vote(closed, 0, "never-seen", "8.8.8.8"))
	assert.Equal(t, polls.KindClosed, kind(t, err))

	expired := f.poll(t, false)
	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.Vote(ctx, vote(expired, 0, "never-seen-2", "8.8.4.4"))
	assert.Equal(t, polls.KindClosed, kind(t, err), "expiry is enforced without the sweeper")
}

func TestPrivatePollNeedsUnusedInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.poll(t, true, "a@example.com", "b@example.com")

	_, err := f.svc.Vote(ctx, vote(p, 0, "f1", "1.1.1.1"))
	assert.Equal(t, polls.KindUnauthorized, kind(t, err), "no token")

	req := vote(p, 0, "f1", "1.1.1.1")
	req.Token = "forged"
	_, err = f.svc.Vote(ctx, req)
	assert.Equal(t, polls.KindUnauthorized, kind(t, err), "unknown token")

	tokens := f.mailbox(p.ID)
	require.Len(t, tokens, 2)

	req.Token = tokens[0]
	_, err = f.svc.Vote(ctx, req)
	require.NoError(t, err)

	status, err := f.svc.VerifyToken(ctx, p.ID, tokens[0])
	require.NoError(t, err)
	assert.True(t, status.IsValid)
	assert.True(t, status.HasVoted)

	req = vote(p, 1, "f2", "2.2.2.2")
	req.Token = tokens[0]
	_, err = f.svc.Vote(ctx, req)
	assert.Equal(t, polls.KindUnauthorized, kind(t, err), "consumed token")

	req.Token = tokens[1]
	_, err = f.svc.Vote(ctx, req)
	require.NoError(t, err)
}

func TestRateLimitAcrossPolls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var list []*polls.Poll
	for i := 0; i < 11; i++ {
		list = append(list, f.poll(t, false))
	}
	for i := 0; i < 10; i++ {
		_, err := f.svc.Vote(ctx, vote(list[i], 0, fmt.Sprintf("f%d", i), "7.7.7.7"))
		require.NoError(t, err, "vote %d", i+1)
	}

	_, err := f.svc.Vote(ctx, vote(list[10], 0, "f10", "7.7.7.7"))
	assert.Equal(t, polls.KindRateLimited, kind(t, err))

	// Another address is unaffected.
	_, err = f.svc.Vote(ctx, vote(list[10], 0, "f10", "7.7.7.8"))
	require.NoError(t, err)

	// Once the window has passed the first address may vote again.
	f.now = f.now.Add(polls.DefaultRateWindow + time.Second)
	fresh := f.poll(t, false)
	_, err = f.svc.Vote(ctx, vote(fresh, 0, "f11", "7.7.7.7"))
	require.NoError(t, err)
}

func TestRejectionsLeaveLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.poll(t, false)

	_, err := f.svc.Vote(ctx, vote(p, 0, "f1", "1.1.1.1"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.svc.Vote(ctx, vote(p, 1, "f1", fmt.Sprintf("2.2.2.%d", i)))
		require.Error(t, err)
	}
	assert.Len(t, f.store.Votes(p.ID), 1)

	view, err := f.svc.Get(ctx, p.ID, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.Poll.TotalVotes)
}

type failingStore struct {
	*memory.Store
	fail error
}

func (s failingStore) VoteByIP(ctx context.Context, pollID, ip string) (*polls.Vote, error) {
	return nil, s.fail
}

func TestStorageFailureIsTransient(t *testing.T) {
	mem := memory.NewStore()
	store := failingStore{Store: mem, fail: errors.New("connection reset")}
	notif := polls.NewNotifier(memory.NewHub(1), 1)
	defer notif.Close()
	svc := polls.NewService(store, notif, nil, polls.Config{})
	svc.FastHash()

	p, err := svc.Create(context.Background(), polls.CreateInput{
		Title: "Transient", Options: []string{"x", "y"}, Password: "secret1", ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Vote(context.Background(), vote(p, 0, "f", "1.1.1.1"))
	assert.Equal(t, polls.KindTransient, kind(t, err))
	assert.Equal(t, "UNAVAILABLE", polls.KindOf(err).String())
	assert.Empty(t, mem.Votes(p.ID))
}
