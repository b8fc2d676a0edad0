package resolvers

import (
	"context"
	"time"

	"github.com/troydota/api.vote.komodohype.dev/fingerprint"
	"github.com/troydota/api.vote.komodohype.dev/polls"
)

type newInput struct {
	Title       string
	Description *string
	Options     []string
	Password    string
	ExpiresAt   string
	IsPrivate   *bool
	Emails      *[]string
}

type result struct {
	State   string
	Message *string
	Poll    *pollResolver
}

type plainResult struct {
	State   string
	Message *string
}

type shareResult struct {
	State     string
	Message   *string
	Successes int32
	Failures  int32
}

func pollResult(p *polls.Poll, err error) (*result, error) {
	s, msg, err := state(err)
	if err != nil {
		return nil, err
	}
	return &result{State: s, Message: msg, Poll: newPoll(p)}, nil
}

func (r *RootResolver) New(ctx context.Context, args struct {
	Poll newInput
}) (*result, error) {
	expires, err := time.Parse(time.RFC3339, args.Poll.ExpiresAt)
	if err != nil {
		msg := "expiresAt must be an RFC3339 timestamp"
		return &result{State: polls.KindInvalid.String(), Message: &msg}, nil
	}

	in := polls.CreateInput{
		Title:     args.Poll.Title,
		Options:   args.Poll.Options,
		Password:  args.Poll.Password,
		ExpiresAt: expires,
	}
	if args.Poll.Description != nil {
		in.Description = *args.Poll.Description
	}
	if args.Poll.IsPrivate != nil {
		in.IsPrivate = *args.Poll.IsPrivate
	}
	if args.Poll.Emails != nil {
		in.Emails = *args.Poll.Emails
	}

	return pollResult(r.svc.Create(ctx, in))
}

func (r *RootResolver) Vote(ctx context.Context, args struct {
	ID          string
	Option      string
	Fingerprint string
	Token       *string
}) (*result, error) {
	req := polls.VoteRequest{
		PollID:      args.ID,
		OptionID:    args.Option,
		Fingerprint: fingerprint.Hint(args.Fingerprint),
		IP:          ctxString(ctx, "ip"),
		UserAgent:   ctxString(ctx, "ua"),
	}
	if args.Token != nil {
		req.Token = *args.Token
	}
	return pollResult(r.svc.Vote(ctx, req))
}

func (r *RootResolver) Close(ctx context.Context, args struct {
	ID       string
	Password string
}) (*result, error) {
	return pollResult(r.svc.Close(ctx, args.ID, args.Password))
}

func (r *RootResolver) Delete(ctx context.Context, args struct {
	ID       string
	Password string
}) (*plainResult, error) {
	s, msg, err := state(r.svc.Delete(ctx, args.ID, args.Password))
	if err != nil {
		return nil, err
	}
	return &plainResult{State: s, Message: msg}, nil
}

func (r *RootResolver) Share(ctx context.Context, args struct {
	ID       string
	Password string
	Emails   []string
}) (*shareResult, error) {
	res, err := r.svc.Share(ctx, args.ID, args.Password, args.Emails)
	s, msg, err := state(err)
	if err != nil {
		return nil, err
	}
	out := &shareResult{State: s, Message: msg}
	if res != nil {
		out.Successes = int32(res.Successes)
		out.Failures = int32(res.Failures)
	}
	return out, nil
}
