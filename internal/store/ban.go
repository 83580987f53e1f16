package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ConnorWiseman/taka/internal/guestname"
)

const (
	defaultBanDuration = 30
	defaultBanReason   = "No reason given"

	// Ban expiry is shifted back one minute relative to the requested
	// duration, absorbing the TTL monitor's sweep delay.
	banExpiryOffset = 60
)

// Ban records a username or IP ban. Exactly one of Username and IP is set
// per record; the TTL index expunges the record at Expires.
type Ban struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"-"`
	Username *string       `bson:"username,omitempty" json:"username,omitempty"`
	IP       *uint32       `bson:"ip,omitempty" json:"-"`
	Reason   string        `bson:"reason" json:"reason"`
	Expires  time.Time     `bson:"expires" json:"expires"`
}

// Type describes which criterion a ban record is keyed by.
func (b *Ban) Type() string {
	if b.Username != nil {
		return "username"
	}
	return "ip"
}

type BanStore struct {
	col *mongo.Collection
}

func banExpiry(duration int) time.Time {
	if duration <= 0 {
		duration = defaultBanDuration
	}
	return time.Now().Add(time.Duration(duration-banExpiryOffset) * time.Second)
}

func (s *BanStore) upsert(ctx context.Context, key bson.M, duration int, reason string) (*Ban, error) {
	if reason == "" {
		reason = defaultBanReason
	}
	update := bson.M{"$set": bson.M{
		"expires": banExpiry(duration),
		"reason":  reason,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var ban Ban
	if err := s.col.FindOneAndUpdate(ctx, key, update, opts).Decode(&ban); err != nil {
		return nil, err
	}
	return &ban, nil
}

// BanUsername bans a registered username for duration seconds. Guest names
// are rejected; callers fall back to an IP ban for those.
func (s *BanStore) BanUsername(ctx context.Context, username string, duration int, reason string) (*Ban, error) {
	if guestname.Check(username) {
		return nil, ErrGuestBan
	}
	return s.upsert(ctx, bson.M{"username": username}, duration, reason)
}

// BanIP bans a numeric IPv4 address for duration seconds.
func (s *BanStore) BanIP(ctx context.Context, ip uint32, duration int, reason string) (*Ban, error) {
	return s.upsert(ctx, bson.M{"ip": ip}, duration, reason)
}

// UnbanUsername lifts a username ban early.
func (s *BanStore) UnbanUsername(ctx context.Context, username string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckUsername looks for a ban record keyed by username alone, used when
// a sign-in targets a possibly banned account.
func (s *BanStore) CheckUsername(ctx context.Context, username string) (*Ban, error) {
	var ban Ban
	err := s.col.FindOne(ctx, bson.M{"username": username}).Decode(&ban)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &ban, nil
}

// Check looks for a ban matching either the username or the IP of a
// connection. A nil result means no ban is in force.
func (s *BanStore) Check(ctx context.Context, username string, ip uint32) (*Ban, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"ip": ip},
	}}
	var ban Ban
	err := s.col.FindOne(ctx, filter).Decode(&ban)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &ban, nil
}
