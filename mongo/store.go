package mongo

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

// Store keeps polls (with their options embedded), the vote ledger and
// invitations in MongoDB. Multi-document writes run in transactions, so the
// server must be a replica set member or mongos.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ polls.Store = (*Store)(nil)

func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{client: client, db: db}
}

func (s *Store) polls() *mongo.Collection       { return s.db.Collection(collPolls) }
func (s *Store) votes() *mongo.Collection       { return s.db.Collection(collVotes) }
func (s *Store) invitations() *mongo.Collection { return s.db.Collection(collInvitations) }

func (s *Store) transaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "mongo session")
	}
	defer sess.EndSession(ctx)
	return sess.WithTransaction(ctx, fn)
}

func (s *Store) CreatePoll(ctx context.Context, poll *polls.Poll, invitations []polls.Invitation) (*polls.Poll, error) {
	doc := &Poll{
		ID:          primitive.NewObjectID(),
		Title:       poll.Title,
		Description: poll.Description,
		ExpiresAt:   poll.ExpiresAt,
		IsPrivate:   poll.IsPrivate,
		Password:    poll.PasswordHash,
		CreatedAt:   poll.CreatedAt,
		Options:     make([]PollOption, len(poll.Options)),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	for i, o := range poll.Options {
		doc.Options[i] = PollOption{ID: primitive.NewObjectID(), Text: o.Text}
	}

	// Poll and options are one document; only invitations need the transaction.
	_, err := s.transaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.polls().InsertOne(sc, doc); err != nil {
			return nil, errors.Wrap(err, "insert poll")
		}
		if len(invitations) == 0 {
			return nil, nil
		}
		return nil, s.insertInvitations(sc, doc.ID, invitations)
	})
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *Store) insertInvitations(ctx context.Context, pollID primitive.ObjectID, invitations []polls.Invitation) error {
	docs := make([]interface{}, len(invitations))
	for i, inv := range invitations {
		docs[i] = &Invitation{
			PollID:    pollID,
			Email:     inv.Email,
			Token:     inv.Token,
			Status:    string(inv.Status),
			CreatedAt: inv.CreatedAt,
		}
	}
	_, err := s.invitations().InsertMany(ctx, docs)
	return errors.Wrap(err, "insert invitations")
}

func (s *Store) GetPoll(ctx context.Context, id string) (*polls.Poll, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, polls.ErrPollNotFound
	}
	doc := &Poll{}
	err = s.polls().FindOne(ctx, bson.M{"_id": oid}).Decode(doc)
	if err == mongo.ErrNoDocuments {
		return nil, polls.ErrPollNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find poll")
	}
	return doc.toDomain(), nil
}

func (s *Store) ListPolls(ctx context.Context) ([]*polls.Poll, error) {
	cur, err := s.polls().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list polls")
	}
	docs := []*Poll{}
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode polls")
	}
	out := make([]*polls.Poll, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (s *Store) ClosePoll(ctx context.Context, id string) (*polls.Poll, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, polls.ErrPollNotFound
	}
	doc := &Poll{}
	err = s.polls().FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"is_closed": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(doc)
	if err == mongo.ErrNoDocuments {
		return nil, polls.ErrPollNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "close poll")
	}
	return doc.toDomain(), nil
}

func (s *Store) DeletePoll(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return polls.ErrPollNotFound
	}
	_, err = s.transaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := s.polls().DeleteOne(sc, bson.M{"_id": oid})
		if err != nil {
			return nil, errors.Wrap(err, "delete poll")
		}
		if res.DeletedCount == 0 {
			return nil, polls.ErrPollNotFound
		}
		if _, err = s.votes().DeleteMany(sc, bson.M{"poll_id": oid}); err != nil {
			return nil, errors.Wrap(err, "delete votes")
		}
		if _, err = s.invitations().DeleteMany(sc, bson.M{"poll_id": oid}); err != nil {
			return nil, errors.Wrap(err, "delete invitations")
		}
		return nil, nil
	})
	return err
}

func (s *Store) CloseExpired(ctx context.Context, now time.Time) ([]*polls.Poll, error) {
	filter := bson.M{"is_closed": false, "expires_at": bson.M{"$lte": now}}
	cur, err := s.polls().Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "find expired")
	}
	docs := []*Poll{}
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode expired")
	}

	var out []*polls.Poll
	for _, d := range docs {
		// Another instance may have closed it in between; only report our own.
		res, err := s.polls().UpdateOne(ctx,
			bson.M{"_id": d.ID, "is_closed": false},
			bson.M{"$set": bson.M{"is_closed": true}},
		)
		if err != nil {
			return out, errors.Wrap(err, "close expired")
		}
		if res.ModifiedCount == 1 {
			d.IsClosed = true
			out = append(out, d.toDomain())
		}
	}
	return out, nil
}

func (s *Store) AddInvitations(ctx context.Context, invitations []polls.Invitation) error {
	if len(invitations) == 0 {
		return nil
	}
	oid, err := primitive.ObjectIDFromHex(invitations[0].PollID)
	if err != nil {
		return polls.ErrPollNotFound
	}
	n, err := s.polls().CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return errors.Wrap(err, "count poll")
	}
	if n == 0 {
		return polls.ErrPollNotFound
	}
	return s.insertInvitations(ctx, oid, invitations)
}

func (s *Store) FindInvitation(ctx context.Context, pollID, token string) (*polls.Invitation, error) {
	oid, err := primitive.ObjectIDFromHex(pollID)
	if err != nil {
		return nil, nil
	}
	doc := &Invitation{}
	err = s.invitations().FindOne(ctx, bson.M{"poll_id": oid, "token": token}).Decode(doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find invitation")
	}
	return doc.toDomain(), nil
}

func (s *Store) findVote(ctx context.Context, pollID, field, value string) (*polls.Vote, error) {
	oid, err := primitive.ObjectIDFromHex(pollID)
	if err != nil {
		return nil, nil
	}
	doc := &Vote{}
	err = s.votes().FindOne(ctx, bson.M{"poll_id": oid, field: value}).Decode(doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find vote by %s", field)
	}
	return doc.toDomain(), nil
}

func (s *Store) VoteByFingerprint(ctx context.Context, pollID, fingerprint string) (*polls.Vote, error) {
	return s.findVote(ctx, pollID, "fingerprint", fingerprint)
}

func (s *Store) VoteByIP(ctx context.Context, pollID, ip string) (*polls.Vote, error) {
	return s.findVote(ctx, pollID, "ip", ip)
}

func (s *Store) CountVotesByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	n, err := s.votes().CountDocuments(ctx, bson.M{"ip": ip, "created_at": bson.M{"$gte": since}})
	return n, errors.Wrap(err, "count votes by ip")
}

// RecordVote inserts the vote, consumes the invitation and increments the
// option and poll counters with $inc in one transaction. The counter update
// filters on the poll still being open, so a poll closed or deleted after
// admission aborts the whole bundle.
func (s *Store) RecordVote(ctx context.Context, vote *polls.Vote, token string) (*polls.Poll, error) {
	pid, err := primitive.ObjectIDFromHex(vote.PollID)
	if err != nil {
		return nil, polls.ErrPollNotFound
	}
	optID, err := primitive.ObjectIDFromHex(vote.OptionID)
	if err != nil {
		return nil, polls.ErrOptionNotFound
	}

	doc := &Vote{
		ID:          primitive.NewObjectID(),
		PollID:      pid,
		OptionID:    optID,
		IP:          vote.IP,
		Fingerprint: vote.Fingerprint.String(),
		UserAgent:   vote.UserAgent,
		CreatedAt:   vote.CreatedAt,
	}

	res, err := s.transaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.votes().InsertOne(sc, doc); err != nil {
			return nil, duplicateVote(err)
		}

		if token != "" {
			res, err := s.invitations().UpdateOne(sc,
				bson.M{"poll_id": pid, "token": token, "status": string(polls.InvitationPending)},
				bson.M{"$set": bson.M{"status": string(polls.InvitationVoted)}},
			)
			if err != nil {
				return nil, errors.Wrap(err, "consume invitation")
			}
			if res.ModifiedCount == 0 {
				return nil, polls.ErrInvitationUsed
			}
		}

		updated := &Poll{}
		err := s.polls().FindOneAndUpdate(sc,
			bson.M{
				"_id":         pid,
				"is_closed":   false,
				"expires_at":  bson.M{"$gt": vote.CreatedAt},
				"options._id": optID,
			},
			bson.M{"$inc": bson.M{"options.$.votes": 1, "total_votes": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(updated)
		if err == mongo.ErrNoDocuments {
			return nil, s.whyNotOpen(sc, pid, optID)
		}
		if err != nil {
			return nil, errors.Wrap(err, "increment tally")
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Poll).toDomain(), nil
}

func (s *Store) whyNotOpen(ctx context.Context, pid, optID primitive.ObjectID) error {
	doc := &Poll{}
	err := s.polls().FindOne(ctx, bson.M{"_id": pid}).Decode(doc)
	if err == mongo.ErrNoDocuments {
		return polls.ErrPollNotFound
	}
	if err != nil {
		return errors.Wrap(err, "find poll")
	}
	for _, o := range doc.Options {
		if o.ID == optID {
			return polls.ErrPollClosed
		}
	}
	return polls.ErrOptionNotFound
}

func duplicateVote(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(err, "insert vote")
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, idxPollFingerprint):
		return polls.ErrFingerprintTaken
	case strings.Contains(msg, idxPollIP):
		return polls.ErrIPTaken
	}
	return errors.Wrap(err, "insert vote")
}
