package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Session is a durable connection record keyed by an opaque id, optionally
// bound to a user. Lifetime is a rolling TTL refreshed on every Start.
type Session struct {
	ID      string         `bson:"_id"`
	User    *bson.ObjectID `bson:"user,omitempty"`
	Expires time.Time      `bson:"expires"`
}

type SessionStore struct {
	col *mongo.Collection
	ttl time.Duration
}

// validID reports whether an id is a well-formed v4 UUID.
func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 4
}

// Start upserts the session for the given id, refreshing its expiration.
// Malformed ids are discarded and replaced with a freshly generated one.
func (s *SessionStore) Start(ctx context.Context, id string) (*Session, error) {
	if !validID(id) {
		id = uuid.NewString()
	}
	update := bson.M{"$set": bson.M{"expires": time.Now()}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var session Session
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Regenerate replaces a session with a fresh one under a new id, binding it
// to the given user (nil clears the binding, e.g. on sign-out). The old id
// is removed and never reused, which is what defeats session fixation.
func (s *SessionStore) Regenerate(ctx context.Context, oldID string, user *bson.ObjectID) (*Session, error) {
	session := Session{
		ID:      uuid.NewString(),
		User:    user,
		Expires: time.Now(),
	}
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": oldID}); err != nil {
		return nil, err
	}
	if _, err := s.col.InsertOne(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}
