package resolvers

import (
	"context"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

func (r *RootResolver) Poll(ctx context.Context, args struct{ ID string }) (*pollResolver, error) {
	view, err := r.svc.Get(ctx, args.ID, ctxString(ctx, "ip"))
	if err != nil {
		if polls.KindOf(err) == polls.KindNotFound {
			return nil, nil
		}
		_, _, err = state(err)
		return nil, err
	}
	return &pollResolver{poll: view.Poll, view: view}, nil
}

func (r *RootResolver) Polls(ctx context.Context) ([]*pollResolver, error) {
	list, err := r.svc.List(ctx)
	if err != nil {
		_, _, err = state(err)
		return nil, err
	}
	out := make([]*pollResolver, len(list))
	for i, p := range list {
		out[i] = newPoll(p)
	}
	return out, nil
}

func (r *RootResolver) VerifyToken(ctx context.Context, args struct {
	ID    string
	Token string
}) (*polls.TokenStatus, error) {
	status, err := r.svc.VerifyToken(ctx, args.ID, args.Token)
	if err != nil {
		_, _, err = state(err)
		return nil, err
	}
	return status, nil
}
