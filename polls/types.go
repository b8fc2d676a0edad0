package polls

import (
	"time"

	"github.com/troydota/api.vote.komodohype.dev/fingerprint"
)

type InvitationStatus string

const (
	InvitationPending InvitationStatus = "PENDING"
	InvitationVoted   InvitationStatus = "VOTED"
	InvitationExpired InvitationStatus = "EXPIRED"
)

type Poll struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsClosed     bool      `json:"isClosed"`
	IsPrivate    bool      `json:"isPrivate"`
	PasswordHash string    `json:"-"`
	Options      []Option  `json:"options"`
	TotalVotes   int64     `json:"totalVotes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Open reports whether votes may still be admitted at now.
func (p *Poll) Open(now time.Time) bool {
	return !p.IsClosed && now.Before(p.ExpiresAt)
}

func (p *Poll) Option(id string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Public returns a copy safe to hand to clients.
func (p *Poll) Public() *Poll {
	c := *p
	c.PasswordHash = ""
	c.Options = append([]Option(nil), p.Options...)
	return &c
}

type Option struct {
	ID        string `json:"id"`
	PollID    string `json:"pollId"`
	Text      string `json:"text"`
	VoteCount int64  `json:"votes"`
}

type Vote struct {
	ID          string           `json:"id"`
	PollID      string           `json:"pollId"`
	OptionID    string           `json:"optionId"`
	IP          string           `json:"-"`
	Fingerprint fingerprint.Hint `json:"-"`
	UserAgent   string           `json:"-"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type Invitation struct {
	ID        string           `json:"id"`
	PollID    string           `json:"pollId"`
	Email     string           `json:"email"`
	Token     string           `json:"-"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// VoteRequest is a vote attempt as received from the transport.
type VoteRequest struct {
	PollID      string
	OptionID    string
	Fingerprint fingerprint.Hint
	Token       string
	IP          string
	UserAgent   string
}

// Admission is an accepted VoteRequest, ready for the tally.
type Admission struct {
	Request    VoteRequest
	Private    bool
	AdmittedAt time.Time
}

type EventType string

const (
	EventVote    EventType = "VOTE"
	EventClosed  EventType = "CLOSED"
	EventDeleted EventType = "DELETED"
	EventUpdate  EventType = "UPDATE"
)

type LastVote struct {
	OptionID string `json:"optionId"`
}

// Event is what subscribers of a poll receive.
type Event struct {
	Type       EventType `json:"type"`
	PollID     string    `json:"pollId"`
	Options    []Option  `json:"options,omitempty"`
	TotalVotes int64     `json:"totalVotes"`
	LastVote   *LastVote `json:"lastVote,omitempty"`
	Poll       *Poll     `json:"poll,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
