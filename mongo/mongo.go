package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collPolls       = "polls"
	collVotes       = "votes"
	collInvitations = "invitations"

	idxPollFingerprint = "poll_fingerprint"
	idxPollIP          = "poll_ip"
)

// Connect dials uri, pings the server and ensures the indexes the store relies
// on. Vote uniqueness per poll is enforced by the indexes, so a failure to
// create them is fatal.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mongo connect")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, errors.Wrap(err, "mongo ping")
	}

	db := client.Database(database)
	if err = EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	log.Infof("mongodb, connected db=%s", database)
	return client, db, nil
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collVotes).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "poll_id", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxPollFingerprint),
		},
		{
			Keys:    bson.D{{Key: "poll_id", Value: 1}, {Key: "ip", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxPollIP),
		},
		{Keys: bson.D{{Key: "ip", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return errors.Wrap(err, "mongo votes indexes")
	}

	_, err = db.Collection(collInvitations).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "poll_id", Value: 1}, {Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return errors.Wrap(err, "mongo invitations indexes")
	}

	_, err = db.Collection(collPolls).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_closed", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.M{"created_at": -1}},
	})
	return errors.Wrap(err, "mongo polls indexes")
}
