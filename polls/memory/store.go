// Package memory holds in-process implementations of the poll store and event
// hub. They back the "memory" store mode and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/troydota/api.vote.komodohype.dev/polls"
	"github.com/troydota/api.vote.komodohype.dev/utils"
)

type voteKey struct {
	pollID string
	value  string
}

// Store keeps every poll, vote and invitation in maps behind one mutex, which
// makes RecordVote trivially atomic.
type Store struct {
	mu          sync.RWMutex
	polls       map[string]*polls.Poll
	order       []string
	votes       []*polls.Vote
	byPrint     map[voteKey]*polls.Vote
	byIP        map[voteKey]*polls.Vote
	invitations map[voteKey]*polls.Invitation
}

func NewStore() *Store {
	return &Store{
		polls:       map[string]*polls.Poll{},
		byPrint:     map[voteKey]*polls.Vote{},
		byIP:        map[voteKey]*polls.Vote{},
		invitations: map[voteKey]*polls.Invitation{},
	}
}

func newID() string {
	id, err := utils.GenerateToken(12)
	if err != nil {
		panic(err)
	}
	return id
}

func clone(p *polls.Poll) *polls.Poll {
	c := *p
	c.Options = append([]polls.Option(nil), p.Options...)
	return &c
}

func (s *Store) CreatePoll(_ context.Context, poll *polls.Poll, invitations []polls.Invitation) (*polls.Poll, error) {
	p := clone(poll)
	p.ID = newID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.TotalVotes = 0
	for i := range p.Options {
		p.Options[i].ID = newID()
		p.Options[i].PollID = p.ID
		p.Options[i].VoteCount = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[p.ID] = p
	s.order = append(s.order, p.ID)
	for _, inv := range invitations {
		inv := inv
		inv.ID = newID()
		inv.PollID = p.ID
		s.invitations[voteKey{p.ID, inv.Token}] = &inv
	}
	return clone(p), nil
}

func (s *Store) GetPoll(_ context.Context, id string) (*polls.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, polls.ErrPollNotFound
	}
	return clone(p), nil
}

func (s *Store) ListPolls(_ context.Context) ([]*polls.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*polls.Poll, 0, len(s.polls))
	for _, id := range s.order {
		if p, ok := s.polls[id]; ok {
			out = append(out, clone(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ClosePoll(_ context.Context, id string) (*polls.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, polls.ErrPollNotFound
	}
	p.IsClosed = true
	return clone(p), nil
}

func (s *Store) DeletePoll(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[id]; !ok {
		return polls.ErrPollNotFound
	}
	delete(s.polls, id)

	kept := s.votes[:0]
	for _, v := range s.votes {
		if v.PollID == id {
			delete(s.byPrint, voteKey{id, v.Fingerprint.String()})
			delete(s.byIP, voteKey{id, v.IP})
			continue
		}
		kept = append(kept, v)
	}
	s.votes = kept

	for k := range s.invitations {
		if k.pollID == id {
			delete(s.invitations, k)
		}
	}
	return nil
}

func (s *Store) CloseExpired(_ context.Context, now time.Time) ([]*polls.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*polls.Poll
	for _, id := range s.order {
		p, ok := s.polls[id]
		if !ok || p.IsClosed || p.ExpiresAt.After(now) {
			continue
		}
		p.IsClosed = true
		out = append(out, clone(p))
	}
	return out, nil
}

func (s *Store) AddInvitations(_ context.Context, invitations []polls.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range invitations {
		if _, ok := s.polls[inv.PollID]; !ok {
			return polls.ErrPollNotFound
		}
	}
	for _, inv := range invitations {
		inv := inv
		inv.ID = newID()
		s.invitations[voteKey{inv.PollID, inv.Token}] = &inv
	}
	return nil
}

func (s *Store) FindInvitation(_ context.Context, pollID, token string) (*polls.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[voteKey{pollID, token}]
	if !ok {
		return nil, nil
	}
	c := *inv
	return &c, nil
}

func (s *Store) VoteByFingerprint(_ context.Context, pollID, fingerprint string) (*polls.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyVote(s.byPrint[voteKey{pollID, fingerprint}]), nil
}

func (s *Store) VoteByIP(_ context.Context, pollID, ip string) (*polls.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyVote(s.byIP[voteKey{pollID, ip}]), nil
}

func (s *Store) CountVotesByIPSince(_ context.Context, ip string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, v := range s.votes {
		if v.IP == ip && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordVote(_ context.Context, vote *polls.Vote, token string) (*polls.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[vote.PollID]
	if !ok {
		return nil, polls.ErrPollNotFound
	}
	if !p.Open(vote.CreatedAt) {
		return nil, polls.ErrPollClosed
	}
	idx := -1
	for i, o := range p.Options {
		if o.ID == vote.OptionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, polls.ErrOptionNotFound
	}
	printKey := voteKey{p.ID, vote.Fingerprint.String()}
	if _, ok := s.byPrint[printKey]; ok {
		return nil, polls.ErrFingerprintTaken
	}
	ipKey := voteKey{p.ID, vote.IP}
	if _, ok := s.byIP[ipKey]; ok {
		return nil, polls.ErrIPTaken
	}
	var inv *polls.Invitation
	if token != "" {
		inv = s.invitations[voteKey{p.ID, token}]
		if inv == nil || inv.Status != polls.InvitationPending {
			return nil, polls.ErrInvitationUsed
		}
	}

	v := *vote
	if v.ID == "" {
		v.ID = newID()
	}
	s.votes = append(s.votes, &v)
	s.byPrint[printKey] = &v
	s.byIP[ipKey] = &v
	p.Options[idx].VoteCount++
	p.TotalVotes++
	if inv != nil {
		inv.Status = polls.InvitationVoted
	}
	return clone(p), nil
}

// Votes returns a copy of the ledger for pollID. Test helper.
func (s *Store) Votes(pollID string) []polls.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []polls.Vote
	for _, v := range s.votes {
		if v.PollID == pollID {
			out = append(out, *v)
		}
	}
	return out
}

func copyVote(v *polls.Vote) *polls.Vote {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
