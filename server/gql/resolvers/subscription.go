package resolvers

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

type eventResolver struct {
	ev polls.Event
}

func (r *eventResolver) Type() string {
	return string(r.ev.Type)
}

func (r *eventResolver) PollID() string {
	return r.ev.PollID
}

func (r *eventResolver) Options() []*optionResolver {
	return newOptions(r.ev.Options)
}

func (r *eventResolver) TotalVotes() int32 {
	return int32(r.ev.TotalVotes)
}

func (r *eventResolver) LastVote() *string {
	if r.ev.LastVote == nil {
		return nil
	}
	return &r.ev.LastVote.OptionID
}

func (r *eventResolver) Poll() *pollResolver {
	return newPoll(r.ev.Poll)
}

func (r *eventResolver) Timestamp() string {
	return formatTime(r.ev.Timestamp)
}

// Watch sends the poll's current state, then every event for it until the
// client leaves or the poll is deleted.
func (r *RootResolver) Watch(ctx context.Context, args struct{ ID string }) (<-chan *eventResolver, error) {
	view, err := r.svc.Get(ctx, args.ID, "")
	if err != nil {
		if polls.KindOf(err) == polls.KindNotFound {
			return nil, errPollNotFound
		}
		_, _, err = state(err)
		return nil, err
	}

	events, err := r.sub.Subscribe(ctx, view.Poll.ID)
	if err != nil {
		log.Errorf("hub, err=%v", err)
		return nil, errInternalServer
	}

	rChan := make(chan *eventResolver, 1)
	rChan <- &eventResolver{polls.Event{
		Type:       polls.EventUpdate,
		PollID:     view.Poll.ID,
		Options:    view.Poll.Options,
		TotalVotes: view.Poll.TotalVotes,
		Poll:       view.Poll,
		Timestamp:  time.Now(),
	}}

	go func() {
		defer close(rChan)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case rChan <- &eventResolver{ev}:
				case <-ctx.Done():
					return
				}
				if ev.Type == polls.EventDeleted {
					return
				}
			}
		}
	}()
	return rChan, nil
}
