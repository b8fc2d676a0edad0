package resolvers

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
	"github.com/troydota/api.vote.komodohype.dev/utils"
)

var (
	errInternalServer = fmt.Errorf("internal server error")
	errPollNotFound   = fmt.Errorf("poll not found")
)

const stateSuccess = "SUCCESS"

type RootResolver struct {
	svc *polls.Service
	sub polls.Subscriber
}

func New(svc *polls.Service, sub polls.Subscriber) *RootResolver {
	return &RootResolver{svc: svc, sub: sub}
}

func ctxString(ctx context.Context, key string) string {
	if v, ok := ctx.Value(utils.Key(key)).(string); ok {
		return v
	}
	return ""
}

// state turns a service error into the code returned to clients. Transient
// errors are not the caller's fault and surface as GraphQL errors instead.
func state(err error) (string, *string, error) {
	if err == nil {
		return stateSuccess, nil, nil
	}
	kind := polls.KindOf(err)
	if kind == polls.KindTransient {
		log.Errorf("gql, err=%v", err)
		return "", nil, errInternalServer
	}
	var msg *string
	var e *polls.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = &e.Message
	}
	return kind.String(), msg, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

type pollResolver struct {
	poll *polls.Poll
	view *polls.View
}

func newPoll(p *polls.Poll) *pollResolver {
	if p == nil {
		return nil
	}
	return &pollResolver{poll: p}
}

func (r *pollResolver) ID() string {
	return r.poll.ID
}

func (r *pollResolver) Title() string {
	return r.poll.Title
}

func (r *pollResolver) Description() string {
	return r.poll.Description
}

func (r *pollResolver) ExpiresAt() string {
	return formatTime(r.poll.ExpiresAt)
}

func (r *pollResolver) IsClosed() bool {
	return r.poll.IsClosed
}

func (r *pollResolver) IsPrivate() bool {
	return r.poll.IsPrivate
}

func (r *pollResolver) Options() []*optionResolver {
	return newOptions(r.poll.Options)
}

func (r *pollResolver) TotalVotes() int32 {
	return int32(r.poll.TotalVotes)
}

func (r *pollResolver) CreatedAt() string {
	return formatTime(r.poll.CreatedAt)
}

func (r *pollResolver) HasVoted() bool {
	return r.view != nil && r.view.HasVoted
}

func (r *pollResolver) UserVote() *string {
	if r.view == nil || r.view.UserVote == "" {
		return nil
	}
	return &r.view.UserVote
}

type optionResolver struct {
	option polls.Option
}

func newOptions(opts []polls.Option) []*optionResolver {
	out := make([]*optionResolver, len(opts))
	for i, o := range opts {
		out[i] = &optionResolver{o}
	}
	return out
}

func (r *optionResolver) ID() string {
	return r.option.ID
}

func (r *optionResolver) Text() string {
	return r.option.Text
}

func (r *optionResolver) Votes() int32 {
	return int32(r.option.VoteCount)
}
