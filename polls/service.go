package polls

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/troydota/api.vote.komodohype.dev/utils"
)

const tokenBytes = 32

// Service ties poll lifecycle, admission and tally together.
type Service struct {
	store    Store
	guard    *Guard
	tally    *Tally
	notifier *Notifier
	mailer   Mailer
	now      func() time.Time
	cost     int
}

type Config struct {
	Guard GuardConfig
}

func NewService(store Store, notifier *Notifier, mailer Mailer, cfg Config) *Service {
	return &Service{
		store:    store,
		guard:    NewGuard(store, cfg.Guard),
		tally:    NewTally(store),
		notifier: notifier,
		mailer:   mailer,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

// View is a poll as seen by one requester.
type View struct {
	Poll     *Poll
	HasVoted bool
	UserVote string
}

type ShareResult struct {
	Successes int
	Failures  int
}

type TokenStatus struct {
	IsValid  bool
	HasVoted bool
}

// Vote admits and records a vote, then announces the new tally. The announce
// is fire-and-forget and never affects the result.
func (s *Service) Vote(ctx context.Context, req VoteRequest) (*Poll, error) {
	adm, err := s.guard.Admit(ctx, req)
	if err != nil {
		log.Debugf("vote, poll=%s ip=%s rejected=%v", req.PollID, req.IP, KindOf(err))
		return nil, err
	}

	poll, err := s.tally.Apply(ctx, adm)
	if err != nil {
		if KindOf(err) == KindTransient {
			log.Errorf("vote, poll=%s, err=%v", req.PollID, err)
		}
		return nil, err
	}

	pub := poll.Public()
	s.notifier.Notify(Event{
		Type:       EventVote,
		PollID:     poll.ID,
		Options:    pub.Options,
		TotalVotes: poll.TotalVotes,
		LastVote:   &LastVote{OptionID: req.OptionID},
	})
	return pub, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Poll, error) {
	now := s.now()
	options, emails, err := in.validate(now)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, transient("password hash", err)
	}

	poll := &Poll{
		Title:        trim(in.Title),
		Description:  trim(in.Description),
		ExpiresAt:    in.ExpiresAt,
		IsPrivate:    in.IsPrivate,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	for _, o := range options {
		poll.Options = append(poll.Options, Option{Text: o})
	}

	invitations, err := newInvitations(emails, now)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreatePoll(ctx, poll, invitations)
	if err != nil {
		return nil, transient("create poll", err)
	}
	log.Infof("poll, created=%s invitations=%d", created.ID, len(invitations))

	s.mail(ctx, created, invitations)

	pub := created.Public()
	s.notifier.Notify(Event{Type: EventUpdate, PollID: created.ID, Poll: pub, Options: pub.Options})
	return pub, nil
}

// Get returns the poll and whether ip already voted on it. It never writes.
func (s *Service) Get(ctx context.Context, id, ip string) (*View, error) {
	poll, err := s.store.GetPoll(ctx, id)
	if err != nil {
		return nil, s.lookupErr(err)
	}
	view := &View{Poll: poll.Public()}
	if ip != "" {
		v, err := s.store.VoteByIP(ctx, poll.ID, ip)
		if err != nil {
			return nil, transient("vote lookup", err)
		}
		if v != nil {
			view.HasVoted = true
			view.UserVote = v.OptionID
		}
	}
	return view, nil
}

func (s *Service) List(ctx context.Context) ([]*Poll, error) {
	list, err := s.store.ListPolls(ctx)
	if err != nil {
		return nil, transient("list polls", err)
	}
	out := make([]*Poll, len(list))
	for i, p := range list {
		out[i] = p.Public()
	}
	return out, nil
}

func (s *Service) Close(ctx context.Context, id, password string) (*Poll, error) {
	if _, err := s.authorize(ctx, id, password); err != nil {
		return nil, err
	}
	poll, err := s.store.ClosePoll(ctx, id)
	if err != nil {
		return nil, s.lookupErr(err)
	}
	pub := poll.Public()
	s.notifier.Notify(Event{
		Type:       EventClosed,
		PollID:     poll.ID,
		Poll:       pub,
		Options:    pub.Options,
		TotalVotes: poll.TotalVotes,
	})
	return pub, nil
}

func (s *Service) Delete(ctx context.Context, id, password string) error {
	if _, err := s.authorize(ctx, id, password); err != nil {
		return err
	}
	if err := s.store.DeletePoll(ctx, id); err != nil {
		return s.lookupErr(err)
	}
	log.Infof("poll, deleted=%s", id)
	s.notifier.Notify(Event{Type: EventDeleted, PollID: id})
	return nil
}

// Share invites more voters by email. Delivery failures are counted, not
// returned.
func (s *Service) Share(ctx context.Context, id, password string, emails []string) (*ShareResult, error) {
	poll, err := s.authorize(ctx, id, password)
	if err != nil {
		return nil, err
	}
	valid, err := validateEmails(emails)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, newError(KindInvalid, "no emails given")
	}

	invitations, err := newInvitations(valid, s.now())
	if err != nil {
		return nil, err
	}
	for i := range invitations {
		invitations[i].PollID = poll.ID
	}
	if err := s.store.AddInvitations(ctx, invitations); err != nil {
		return nil, s.lookupErr(err)
	}

	ok := s.mail(ctx, poll, invitations)
	return &ShareResult{Successes: ok, Failures: len(invitations) - ok}, nil
}

func (s *Service) VerifyToken(ctx context.Context, id, token string) (*TokenStatus, error) {
	if token == "" {
		return &TokenStatus{}, nil
	}
	inv, err := s.store.FindInvitation(ctx, id, token)
	if err != nil {
		return nil, transient("invitation lookup", err)
	}
	if inv == nil {
		return &TokenStatus{}, nil
	}
	return &TokenStatus{IsValid: true, HasVoted: inv.Status == InvitationVoted}, nil
}

func (s *Service) authorize(ctx context.Context, id, password string) (*Poll, error) {
	poll, err := s.store.GetPoll(ctx, id)
	if err != nil {
		return nil, s.lookupErr(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(poll.PasswordHash), []byte(password)) != nil {
		return nil, errWrongPassword
	}
	return poll, nil
}

func (s *Service) lookupErr(err error) error {
	if KindOf(err) == KindNotFound {
		return errNotFound
	}
	return transient("storage", err)
}

// mail sends invitations and returns how many were handed off.
func (s *Service) mail(ctx context.Context, poll *Poll, invitations []Invitation) int {
	if s.mailer == nil {
		return 0
	}
	ok := 0
	for _, inv := range invitations {
		inv.PollID = poll.ID
		if err := s.mailer.SendInvitation(ctx, poll, inv); err != nil {
			log.Errorf("mailer, poll=%s email=%s, err=%v", poll.ID, inv.Email, err)
			continue
		}
		ok++
	}
	return ok
}

func newInvitations(emails []string, now time.Time) ([]Invitation, error) {
	out := make([]Invitation, 0, len(emails))
	for _, e := range emails {
		token, err := utils.GenerateToken(tokenBytes)
		if err != nil {
			return nil, transient("invitation token", err)
		}
		out = append(out, Invitation{
			Email:     e,
			Token:     token,
			Status:    InvitationPending,
			CreatedAt: now,
		})
	}
	return out, nil
}
