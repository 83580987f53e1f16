package store

import (
	"context"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ConnorWiseman/taka/internal/ipaddr"
)

const maxContentLen = 255

// Message is one row of the capped chat log. Author and GuestAuthor are
// mutually exclusive; Deleted rows stay in place until capped rollover but
// are hidden from every fetch.
type Message struct {
	ID          bson.ObjectID  `bson:"_id,omitempty"`
	Author      *bson.ObjectID `bson:"author,omitempty"`
	GuestAuthor string         `bson:"guestAuthor,omitempty"`
	Date        time.Time      `bson:"date"`
	Content     string         `bson:"content"`
	IP          uint32         `bson:"ip"`
	Deleted     bool           `bson:"deleted"`
}

// MessageView is the client-facing projection of a message. IPAddress is
// populated only for staff queries.
type MessageView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	URL       string    `json:"url,omitempty"`
	Content   string    `json:"content"`
	Date      time.Time `json:"date"`
	IPAddress string    `json:"ip_address,omitempty"`
}

type MessageStore struct {
	col   *mongo.Collection
	users *mongo.Collection
	limit int
}

// truncateContent caps a message at maxContentLen bytes, backing off to the
// nearest rune boundary so the stored text stays valid UTF-8.
func truncateContent(content string) string {
	if len(content) <= maxContentLen {
		return content
	}
	cut := maxContentLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// Add appends a message authored by a registered user (author set) or a
// guest (guest name set) and returns the stored record.
func (s *MessageStore) Add(ctx context.Context, author *bson.ObjectID, guestAuthor, content string, ip uint32) (*Message, error) {
	content = truncateContent(content)
	msg := Message{
		ID:          bson.NewObjectID(),
		Author:      author,
		GuestAuthor: guestAuthor,
		Date:        time.Now(),
		Content:     content,
		IP:          ip,
	}
	if _, err := s.col.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) fetch(ctx context.Context, filter bson.M, viewIP bool) ([]MessageView, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(s.limit))
	if !viewIP {
		opts.SetProjection(bson.M{"ip": 0})
	}
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	// Newest-first from the store; reverse for chronological rendering.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return s.project(ctx, msgs, viewIP)
}

// project resolves registered authors in one batch query and applies the
// staff/public field redaction.
func (s *MessageStore) project(ctx context.Context, msgs []Message, viewIP bool) ([]MessageView, error) {
	seen := make(map[bson.ObjectID]struct{}, len(msgs))
	ids := make([]bson.ObjectID, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		if _, ok := seen[*m.Author]; ok {
			continue
		}
		seen[*m.Author] = struct{}{}
		ids = append(ids, *m.Author)
	}

	authors := make(map[bson.ObjectID]User, len(ids))
	if len(ids) > 0 {
		cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return nil, err
		}
		var users []User
		if err := cursor.All(ctx, &users); err != nil {
			return nil, err
		}
		for _, u := range users {
			authors[u.ID] = u
		}
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := MessageView{
			ID:      m.ID.Hex(),
			Content: m.Content,
			Date:    m.Date,
		}
		if m.Author != nil {
			u := authors[*m.Author]
			view.Username = u.Username
			view.Avatar = u.Avatar
			view.URL = u.URL
		} else {
			view.Username = m.GuestAuthor
		}
		if viewIP {
			view.IPAddress = ipaddr.FromInt(m.IP)
		}
		out = append(out, view)
	}
	return out, nil
}

// View projects a single stored message for broadcast.
func (s *MessageStore) View(ctx context.Context, msg *Message, viewIP bool) (*MessageView, error) {
	views, err := s.project(ctx, []Message{*msg}, viewIP)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// FetchInitial returns the most recent page of non-deleted messages in
// chronological order.
func (s *MessageStore) FetchInitial(ctx context.Context, viewIP bool) ([]MessageView, error) {
	return s.fetch(ctx, bson.M{"deleted": bson.M{"$ne": true}}, viewIP)
}

// FetchBefore returns the page of non-deleted messages older than lastID,
// for history backfill.
func (s *MessageStore) FetchBefore(ctx context.Context, lastID string, viewIP bool) ([]MessageView, error) {
	id, err := bson.ObjectIDFromHex(lastID)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := bson.M{"$and": bson.A{
		bson.M{"deleted": bson.M{"$ne": true}},
		bson.M{"_id": bson.M{"$lt": id}},
	}}
	return s.fetch(ctx, filter, viewIP)
}

// Delete soft-deletes one message. The record stays in the capped log.
func (s *MessageStore) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"deleted": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll soft-deletes every visible message.
func (s *MessageStore) DeleteAll(ctx context.Context) error {
	_, err := s.col.UpdateMany(ctx, bson.M{"deleted": false}, bson.M{"$set": bson.M{"deleted": true}})
	return err
}
