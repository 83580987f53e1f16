package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/ConnorWiseman/taka/internal/guestname"
	"github.com/ConnorWiseman/taka/internal/perm"
)

const (
	maxUsernameLen = 32
	maxProfileLen  = 255
)

// User is a registered account. Users are never deleted in-band.
type User struct {
	ID       bson.ObjectID `bson:"_id,omitempty"`
	Username string        `bson:"username"`
	Password string        `bson:"password"`
	Avatar   string        `bson:"avatar,omitempty"`
	URL      string        `bson:"url,omitempty"`
	Role     perm.Role     `bson:"role"`
}

type UserStore struct {
	col *mongo.Collection
}

// Register creates a new user with the given credentials. Guest-shaped
// usernames are reserved and rejected.
func (s *UserStore) Register(ctx context.Context, username, password string) (*User, error) {
	if username == "" || len(username) > maxUsernameLen || password == "" {
		return nil, ErrInvalidCredentials
	}
	if guestname.Check(username) {
		return nil, ErrReservedName
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := User{
		ID:       bson.NewObjectID(),
		Username: username,
		Password: string(hash),
		Role:     perm.RoleUser,
	}
	if _, err := s.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &user, nil
}

// Authorize compares credentials against the stored hash.
func (s *UserStore) Authorize(ctx context.Context, username, password string) (*User, error) {
	var user User
	err := s.col.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// ByID looks a user up by object id.
func (s *UserStore) ByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ByUsername looks a user up by name.
func (s *UserStore) ByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.col.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateSettings replaces the avatar and profile URL of a user. Fields
// passed as empty strings are unset rather than stored empty.
func (s *UserStore) UpdateSettings(ctx context.Context, username, avatar, url string) error {
	if len(avatar) > maxProfileLen || len(url) > maxProfileLen {
		return ErrInvalidCredentials
	}
	set := bson.M{}
	unset := bson.M{}
	if avatar != "" {
		set["avatar"] = avatar
	} else {
		unset["avatar"] = 1
	}
	if url != "" {
		set["url"] = url
	} else {
		unset["url"] = 1
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"username": username}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRole changes a user's role, for promotion and demotion.
func (s *UserStore) SetRole(ctx context.Context, username string, role perm.Role) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"username": username}, bson.M{"$set": bson.M{"role": role}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
