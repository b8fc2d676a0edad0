package polls

import (
	"context"
	"time"
)

// Store is the vote ledger and poll storage.
//
// Only RecordVote mutates counters and it must do so atomically together with
// the vote insert. Implementations translate uniqueness violations into
// ErrFingerprintTaken and ErrIPTaken.
type Store interface {
	CreatePoll(ctx context.Context, poll *Poll, invitations []Invitation) (*Poll, error)
	GetPoll(ctx context.Context, id string) (*Poll, error)
	ListPolls(ctx context.Context) ([]*Poll, error)
	ClosePoll(ctx context.Context, id string) (*Poll, error)
	DeletePoll(ctx context.Context, id string) error
	// CloseExpired closes every open poll whose expiry is not after now and
	// returns them.
	CloseExpired(ctx context.Context, now time.Time) ([]*Poll, error)

	AddInvitations(ctx context.Context, invitations []Invitation) error
	// FindInvitation, VoteByFingerprint and VoteByIP return nil, nil when
	// nothing matches.
	FindInvitation(ctx context.Context, pollID, token string) (*Invitation, error)

	VoteByFingerprint(ctx context.Context, pollID, fingerprint string) (*Vote, error)
	VoteByIP(ctx context.Context, pollID, ip string) (*Vote, error)
	CountVotesByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)

	// RecordVote inserts vote, increments the option and poll counters and,
	// when token is set, consumes the invitation. All or nothing. The poll
	// must still be open at vote.CreatedAt.
	RecordVote(ctx context.Context, vote *Vote, token string) (*Poll, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, event Event) error
}

type Subscriber interface {
	// Subscribe streams events for pollID until ctx is done.
	Subscribe(ctx context.Context, pollID string) (<-chan Event, error)
}

type Hub interface {
	Broadcaster
	Subscriber
}

type Mailer interface {
	SendInvitation(ctx context.Context, poll *Poll, invitation Invitation) error
}
