// Package store persists sessions, users, bans and messages in MongoDB.
// Session and ban expiry is enforced by TTL indexes, message history by a
// capped collection; application code never reaps expired records.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Sentinel errors surfaced to handlers; everything else is a store failure.
var (
	ErrNotFound           = errors.New("store: not found")
	ErrUsernameTaken      = errors.New("store: username taken")
	ErrReservedName       = errors.New("store: guest names are reserved")
	ErrInvalidCredentials = errors.New("store: invalid credentials")
	ErrGuestBan           = errors.New("store: cannot ban guests by username")
	ErrAdminBan           = errors.New("store: cannot ban administrators")
)

const (
	messageCapBytes = 1 << 20
	messageCapDocs  = 500
)

// Stores bundles the collection-backed stores around one client.
type Stores struct {
	Sessions *SessionStore
	Users    *UserStore
	Bans     *BanStore
	Messages *MessageStore

	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string, sessionTTL time.Duration, messageLimit int) (*Stores, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}
	db := client.Database(database)
	s := &Stores{
		client: client,
		db:     db,
	}
	s.Sessions = &SessionStore{col: db.Collection("sessions"), ttl: sessionTTL}
	s.Users = &UserStore{col: db.Collection("users")}
	s.Bans = &BanStore{col: db.Collection("bans")}
	s.Messages = &MessageStore{col: db.Collection("messages"), users: db.Collection("users"), limit: messageLimit}
	return s, nil
}

func (s *Stores) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureSchema creates the capped message collection and all indexes. Safe
// to call on every start; existing collections and indexes are left alone.
func (s *Stores) EnsureSchema(ctx context.Context) error {
	capped := options.CreateCollection().
		SetCapped(true).
		SetSizeInBytes(messageCapBytes).
		SetMaxDocuments(messageCapDocs)
	if err := s.db.CreateCollection(ctx, "messages", capped); err != nil {
		var cmdErr mongo.CommandError
		// NamespaceExists: the capped collection is already there.
		if !(errors.As(err, &cmdErr) && cmdErr.Code == 48) {
			return err
		}
	}

	ttlSeconds := int32(s.Sessions.ttl / time.Second)
	_, err := s.db.Collection("sessions").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttlSeconds),
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	// Bans expire at their own expires timestamp, and are keyed by exactly
	// one of username or ip per record.
	_, err = s.db.Collection("bans").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "ip", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	return err
}
