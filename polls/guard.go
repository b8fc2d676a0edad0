package polls

import (
	"context"
	"time"
)

const (
	DefaultRateWindow = 5 * time.Minute
	DefaultRateLimit  = 10
)

// Guard decides whether a vote attempt is admitted. It only reads the ledger.
type Guard struct {
	store      Store
	rateWindow time.Duration
	rateLimit  int64
	now        func() time.Time
}

type GuardConfig struct {
	// RateWindow is the trailing window votes from one ip are counted over,
	// across all polls.
	RateWindow time.Duration
	// RateLimit is how many votes from one ip the window holds. The attempt
	// that would exceed it is rejected.
	RateLimit int
}

func NewGuard(store Store, cfg GuardConfig) *Guard {
	g := &Guard{
		store:      store,
		rateWindow: cfg.RateWindow,
		rateLimit:  int64(cfg.RateLimit),
		now:        time.Now,
	}
	if g.rateWindow <= 0 {
		g.rateWindow = DefaultRateWindow
	}
	if g.rateLimit <= 0 {
		g.rateLimit = DefaultRateLimit
	}
	return g
}

// Admit runs the admission rules in order and returns the first rejection.
// Storage failures come back as Transient errors.
func (g *Guard) Admit(ctx context.Context, req VoteRequest) (*Admission, error) {
	if req.Fingerprint.Empty() {
		return nil, errMissingFingerprint
	}
	if req.OptionID == "" {
		return nil, errMissingOption
	}

	now := g.now()

	poll, err := g.store.GetPoll(ctx, req.PollID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, errNotFound
		}
		return nil, transient("poll lookup failed", err)
	}
	if !poll.Open(now) {
		return nil, errClosed
	}

	if poll.IsPrivate {
		if req.Token == "" {
			return nil, errUnauthorized
		}
		inv, err := g.store.FindInvitation(ctx, poll.ID, req.Token)
		if err != nil {
			return nil, transient("invitation lookup failed", err)
		}
		if inv == nil || inv.Status != InvitationPending {
			return nil, errUnauthorized
		}
	}

	if _, ok := poll.Option(req.OptionID); !ok {
		return nil, errOptionNotFound
	}

	prior, err := g.store.VoteByFingerprint(ctx, poll.ID, req.Fingerprint.String())
	if err != nil {
		return nil, transient("fingerprint lookup failed", err)
	}
	if prior != nil {
		return nil, errDuplicateDevice
	}

	// Shared addresses (NAT, offices) are blocked too, even when the
	// fingerprint differs.
	prior, err = g.store.VoteByIP(ctx, poll.ID, req.IP)
	if err != nil {
		return nil, transient("ip lookup failed", err)
	}
	if prior != nil {
		return nil, errDuplicateIP
	}

	recent, err := g.store.CountVotesByIPSince(ctx, req.IP, now.Add(-g.rateWindow))
	if err != nil {
		return nil, transient("rate lookup failed", err)
	}
	if recent >= g.rateLimit {
		return nil, errRateLimited
	}

	return &Admission{
		Request:    req,
		Private:    poll.IsPrivate,
		AdmittedAt: now,
	}, nil
}
