package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/ConnorWiseman/taka/internal/guestname"
	"github.com/ConnorWiseman/taka/internal/metrics"
	"github.com/ConnorWiseman/taka/internal/perm"
	"github.com/ConnorWiseman/taka/internal/store"
)

// errRejected short-circuits the pipeline without being a store failure.
var errRejected = errors.New("chat: connection rejected")

type stage func(ctx context.Context, c *Client) error

// pipeline is the ordered list of admission stages run over every
// connecting socket. Each stage enriches the client or rejects it; a store
// failure in the early stages keeps the connection out of the rooms
// entirely.
func (s *Server) pipeline() []stage {
	return []stage{
		s.resolveSession,
		s.checkBan,
		s.joinRooms,
		s.emitInitial,
		s.registerPresence,
	}
}

func (s *Server) admit(ctx context.Context, c *Client) error {
	for _, st := range s.pipeline() {
		if err := st(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// resolveSession upserts the session named in the handshake and derives the
// connection's identity from it. A missing or malformed session id is
// replaced by the store with a freshly generated one.
func (s *Server) resolveSession(ctx context.Context, c *Client) error {
	sess, err := s.stores.Sessions.Start(ctx, c.rawSessionID)
	if err != nil {
		log.Error().Err(err).Msg("session start")
		return err
	}

	id := identity{SessionID: sess.ID, Role: perm.RoleGuest}
	if sess.User != nil {
		user, err := s.stores.Users.ByID(ctx, *sess.User)
		switch {
		case err == nil:
			id.UserID = &user.ID
			id.Username = user.Username
			id.Role = user.Role
			id.Avatar = user.Avatar
			id.URL = user.URL
		case errors.Is(err, store.ErrNotFound):
			// Stale user reference; fall through to a guest identity.
		default:
			log.Error().Err(err).Str("session", sess.ID).Msg("resolve session user")
			return err
		}
	}
	if id.Username == "" {
		id.Username = guestname.Generate(sess.ID)
	}
	c.setIdentity(id)
	return nil
}

// checkBan queries the ban store for the connection's username or address.
// A banned connection receives its notice and is then forcibly dropped; it
// never reaches the rooms.
func (s *Server) checkBan(ctx context.Context, c *Client) error {
	ban, err := s.stores.Bans.Check(ctx, c.Username(), c.ip)
	if err != nil {
		log.Error().Err(err).Str("username", c.Username()).Msg("ban check")
		return err
	}
	if ban == nil {
		return nil
	}
	id := c.Identity()
	id.Role = perm.RoleBanned
	c.setIdentity(id)
	c.emit(evtBanNotice, banNotice{Type: ban.Type(), Reason: ban.Reason, Expires: ban.Expires})
	return errRejected
}

// joinRooms registers the connection and joins its broadcast topics: the
// per-username topic plus staff or public depending on role.
func (s *Server) joinRooms(ctx context.Context, c *Client) error {
	s.hub.Register(c)
	s.hub.Join(c.Username(), c)
	if c.isStaff() {
		s.hub.Join(TopicStaff, c)
	} else {
		s.hub.Join(TopicPublic, c)
	}
	return nil
}

// emitInitial pushes the session descriptor and the most recent page of
// history. A history fetch failure is logged but does not evict an already
// admitted connection.
func (s *Server) emitInitial(ctx context.Context, c *Client) error {
	c.emit(evtSessionStart, c.sessionPayload())

	msgs, err := s.stores.Messages.FetchInitial(ctx, c.isStaff())
	if err != nil {
		log.Warn().Err(err).Msg("fetch initial messages")
		return nil
	}
	if len(msgs) > 0 {
		c.emit(evtInitialMessages, msgs)
	}
	return nil
}

// registerPresence adds this instance to the online registry, sends the
// full list to the newcomer and an incremental add to everyone else.
func (s *Server) registerPresence(ctx context.Context, c *Client) error {
	id := c.Identity()
	s.presence.Add(id.Username, id.Avatar, id.URL, c.ID)
	c.mu.Lock()
	c.presence = true
	c.mu.Unlock()

	c.emit(evtOnlineUsers, s.presence.List())
	s.hub.BroadcastAllExcept(c, marshal(evtOnlineUsersAdd, presenceAdd{
		Username: id.Username,
		Avatar:   id.Avatar,
		URL:      id.URL,
		Instance: c.ID,
	}))
	return nil
}

// cleanup undoes room membership and presence registration when a
// connection goes away, however it went away.
func (s *Server) cleanup(c *Client) {
	c.close()
	s.hub.Unregister(c)

	c.mu.Lock()
	registered := c.presence
	c.presence = false
	username := c.id.Username
	c.mu.Unlock()
	if !registered {
		return
	}
	s.presence.Remove(username, c.ID)
	s.hub.BroadcastAll(marshal(evtOnlineUsersRemove, presenceRemove{
		Username: username,
		Instance: c.ID,
	}))
	metrics.WsDisconnects.Inc()
}
