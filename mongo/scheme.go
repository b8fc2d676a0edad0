package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/troydota/api.vote.komodohype.dev/fingerprint"
	"github.com/troydota/api.vote.komodohype.dev/polls"
)

type Poll struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	ExpiresAt   time.Time          `bson:"expires_at"`
	IsClosed    bool               `bson:"is_closed"`
	IsPrivate   bool               `bson:"is_private"`
	Password    string             `bson:"password"`
	Options     []PollOption       `bson:"options"`
	TotalVotes  int64              `bson:"total_votes"`
	CreatedAt   time.Time          `bson:"created_at"`
}

type PollOption struct {
	ID    primitive.ObjectID `bson:"_id"`
	Text  string             `bson:"text"`
	Votes int64              `bson:"votes"`
}

type Vote struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	PollID      primitive.ObjectID `bson:"poll_id"`
	OptionID    primitive.ObjectID `bson:"option_id"`
	IP          string             `bson:"ip"`
	Fingerprint string             `bson:"fingerprint"`
	UserAgent   string             `bson:"user_agent"`
	CreatedAt   time.Time          `bson:"created_at"`
}

type Invitation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	PollID    primitive.ObjectID `bson:"poll_id"`
	Email     string             `bson:"email"`
	Token     string             `bson:"token"`
	Status    string             `bson:"status"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (p *Poll) toDomain() *polls.Poll {
	out := &polls.Poll{
		ID:           p.ID.Hex(),
		Title:        p.Title,
		Description:  p.Description,
		ExpiresAt:    p.ExpiresAt,
		IsClosed:     p.IsClosed,
		IsPrivate:    p.IsPrivate,
		PasswordHash: p.Password,
		TotalVotes:   p.TotalVotes,
		CreatedAt:    p.CreatedAt,
		Options:      make([]polls.Option, len(p.Options)),
	}
	for i, o := range p.Options {
		out.Options[i] = polls.Option{
			ID:        o.ID.Hex(),
			PollID:    out.ID,
			Text:      o.Text,
			VoteCount: o.Votes,
		}
	}
	return out
}

func (v *Vote) toDomain() *polls.Vote {
	return &polls.Vote{
		ID:          v.ID.Hex(),
		PollID:      v.PollID.Hex(),
		OptionID:    v.OptionID.Hex(),
		IP:          v.IP,
		Fingerprint: fingerprint.Hint(v.Fingerprint),
		UserAgent:   v.UserAgent,
		CreatedAt:   v.CreatedAt,
	}
}

func (i *Invitation) toDomain() *polls.Invitation {
	return &polls.Invitation{
		ID:        i.ID.Hex(),
		PollID:    i.PollID.Hex(),
		Email:     i.Email,
		Token:     i.Token,
		Status:    polls.InvitationStatus(i.Status),
		CreatedAt: i.CreatedAt,
	}
}
