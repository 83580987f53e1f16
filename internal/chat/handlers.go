package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ConnorWiseman/taka/internal/guestname"
	"github.com/ConnorWiseman/taka/internal/ipaddr"
	"github.com/ConnorWiseman/taka/internal/metrics"
	"github.com/ConnorWiseman/taka/internal/perm"
	"github.com/ConnorWiseman/taka/internal/store"
)

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage)

// binding ties an inbound event to its handler and the permission the gate
// checks before dispatch. The permission tag always equals the event name,
// fixed here at registration time rather than looked up dynamically.
type binding struct {
	permission string
	fn         handlerFunc
}

func (s *Server) bindings() map[string]binding {
	return map[string]binding{
		perm.ActionSendMessage:     {perm.ActionSendMessage, s.handleSendMessage},
		perm.ActionLoadMessages:    {perm.ActionLoadMessages, s.handleLoadMessages},
		perm.ActionDeleteMessage:   {perm.ActionDeleteMessage, s.handleDeleteMessage},
		perm.ActionRegisterUser:    {perm.ActionRegisterUser, s.handleRegisterUser},
		perm.ActionSignInAttempt:   {perm.ActionSignInAttempt, s.handleSignInAttempt},
		perm.ActionSignOut:         {perm.ActionSignOut, s.handleSignOut},
		perm.ActionUpdateSettings:  {perm.ActionUpdateSettings, s.handleUpdateSettings},
		perm.ActionBanUsername:     {perm.ActionBanUsername, s.handleBanUsername},
		perm.ActionBanIP:           {perm.ActionBanIP, s.handleBanIP},
		perm.ActionUnbanUsername:   {perm.ActionUnbanUsername, s.handleUnbanUsername},
		perm.ActionClearChat:       {perm.ActionClearChat, s.handleClearChat},
		perm.ActionPromoteUsername: {perm.ActionPromoteUsername, s.handlePromoteUsername},
		perm.ActionDemoteUsername:  {perm.ActionDemoteUsername, s.handleDemoteUsername},
	}
}

// handleSendMessage runs the rate-limited message pipeline: refill, spam
// checks, persist, acknowledge, broadcast, and only then charge a token.
func (s *Server) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}

	c.limiter.Update()
	if c.limiter.SpamDetected() {
		s.spamBan(ctx, c)
		return
	}
	if c.limiter.SpamWarning() {
		c.emit(evtErrorNotice, errorNotice{errCodeSpamWarning})
		return
	}

	id := c.Identity()
	guestAuthor := ""
	if id.UserID == nil {
		guestAuthor = id.Username
	}
	msg, err := s.stores.Messages.Add(ctx, id.UserID, guestAuthor, req.Text, c.ip)
	if err != nil {
		log.Error().Err(err).Str("username", id.Username).Msg("persist message")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}

	publicView, err := s.stores.Messages.View(ctx, msg, false)
	if err != nil {
		log.Error().Err(err).Msg("project message")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	staffView, err := s.stores.Messages.View(ctx, msg, true)
	if err != nil {
		log.Error().Err(err).Msg("project message")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}

	// The sender gets an explicit acknowledgment and is excluded from the
	// room broadcast to avoid double delivery.
	if c.isStaff() {
		c.emit(evtConfirmMessage, staffView)
	} else {
		c.emit(evtConfirmMessage, publicView)
	}
	s.hub.BroadcastExcept(TopicPublic, c, marshal(evtNewMessage, publicView))
	s.hub.BroadcastExcept(TopicStaff, c, marshal(evtNewMessage, staffView))

	c.limiter.Decrease()
	metrics.MessagesTotal.Inc()
}

// spamBan converts persistent flooding into a temporary IP ban.
func (s *Server) spamBan(ctx context.Context, c *Client) {
	ban, err := s.stores.Bans.BanIP(ctx, c.ip, s.cfg.SpamBanSeconds, "Spamming")
	if err != nil {
		log.Error().Err(err).Str("ip", c.ipString).Msg("spam ban")
		c.close()
		return
	}
	log.Info().Str("ip", c.ipString).Str("username", c.Username()).Msg("spam detected, ip banned")
	s.enforceIPBan(ban)
}

func (s *Server) handleLoadMessages(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		LastID string `json:"last_id"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
			return
		}
	}

	if req.LastID == "" {
		msgs, err := s.stores.Messages.FetchInitial(ctx, c.isStaff())
		if err != nil {
			log.Error().Err(err).Msg("fetch initial messages")
			c.emit(evtErrorNotice, errorNotice{errCodeInternal})
			return
		}
		c.emit(evtInitialMessages, msgs)
		return
	}

	msgs, err := s.stores.Messages.FetchBefore(ctx, req.LastID, c.isStaff())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
			return
		}
		log.Error().Err(err).Msg("fetch additional messages")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	c.emit(evtAdditionalMessages, msgs)
}

// handleDeleteMessage soft-deletes and tells every client to drop the
// message from its local view, so deletion is not just a future-load fact.
func (s *Server) handleDeleteMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	if err := s.stores.Messages.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
			return
		}
		log.Error().Err(err).Str("id", req.ID).Msg("delete message")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	s.hub.BroadcastAll(marshal(evtDeleteMessage, map[string]string{"id": req.ID}))
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegisterUser(ctx context.Context, c *Client, data json.RawMessage) {
	var req credentials
	if err := json.Unmarshal(data, &req); err != nil {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	if _, err := s.stores.Users.Register(ctx, req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken), errors.Is(err, store.ErrReservedName):
			c.emit(evtErrorNotice, errorNotice{errCodeUsernameTaken})
		case errors.Is(err, store.ErrInvalidCredentials):
			c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		default:
			log.Error().Err(err).Str("username", req.Username).Msg("register user")
			c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		}
		return
	}
	log.Info().Str("username", req.Username).Msg("user registered")

	// Registration is a privilege boundary: the session id rotates even
	// though the connection stays a guest until it signs in.
	sess, err := s.stores.Sessions.Regenerate(ctx, c.Identity().SessionID, nil)
	if err != nil {
		log.Error().Err(err).Msg("regenerate session")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	s.transition(c, sess, nil)
}

func (s *Server) handleSignInAttempt(ctx context.Context, c *Client, data json.RawMessage) {
	var req credentials
	if err := json.Unmarshal(data, &req); err != nil {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	user, err := s.stores.Users.Authorize(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			c.emit(evtErrorNotice, errorNotice{errCodeInvalidCredentials})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("authorize user")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}

	// A banned account cannot be signed back into while the ban lasts.
	ban, err := s.stores.Bans.CheckUsername(ctx, user.Username)
	if err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("ban check")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	if ban != nil {
		c.emit(evtBanNotice, banNotice{Type: ban.Type(), Reason: ban.Reason, Expires: ban.Expires})
		return
	}

	sess, err := s.stores.Sessions.Regenerate(ctx, c.Identity().SessionID, &user.ID)
	if err != nil {
		log.Error().Err(err).Msg("regenerate session")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	log.Info().Str("username", user.Username).Msg("user signed in")
	s.transition(c, sess, user)
}

func (s *Server) handleSignOut(ctx context.Context, c *Client, data json.RawMessage) {
	sess, err := s.stores.Sessions.Regenerate(ctx, c.Identity().SessionID, nil)
	if err != nil {
		log.Error().Err(err).Msg("regenerate session")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	s.transition(c, sess, nil)
}

// transition applies an identity change to every connected instance that
// shares the old username room, not just the initiating connection: one
// browser session can back several tabs and all of them must flip at once.
func (s *Server) transition(c *Client, sess *store.Session, user *store.User) {
	old := c.Identity()

	next := identity{SessionID: sess.ID, Role: perm.RoleGuest}
	if user != nil {
		next.UserID = &user.ID
		next.Username = user.Username
		next.Role = user.Role
		next.Avatar = user.Avatar
		next.URL = user.URL
	} else {
		next.Username = guestname.Generate(sess.ID)
	}

	// Snapshot, then iterate: a connection joining the room mid-transition
	// must not disturb the fan-out.
	for _, m := range s.hub.Members(old.Username) {
		m.setIdentity(next)
		s.hub.Leave(old.Username, m)
		s.hub.Join(next.Username, m)
		if perm.IsStaff(next.Role) {
			s.hub.Leave(TopicPublic, m)
			s.hub.Join(TopicStaff, m)
		} else {
			s.hub.Leave(TopicStaff, m)
			s.hub.Join(TopicPublic, m)
		}
		m.emit(evtSessionUpdate, m.sessionPayload())
	}

	s.presence.Rename(old.Username, next.Username)
	if old.Username != next.Username {
		s.presence.Update(next.Username, next.Avatar, next.URL)
		s.hub.BroadcastAll(marshal(evtOnlineUsersRename, presenceRename{
			OldName: old.Username,
			NewName: next.Username,
			Avatar:  next.Avatar,
			URL:     next.URL,
		}))
	}
}

func (s *Server) handleUpdateSettings(ctx context.Context, c *Client, data json.RawMessage) {
	var req settingsUpdate
	if err := json.Unmarshal(data, &req); err != nil {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	username := c.Username()
	if err := s.stores.Users.UpdateSettings(ctx, username, req.Avatar, req.URL); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.emit(evtErrorNotice, errorNotice{errCodeUnknownUser})
		case errors.Is(err, store.ErrInvalidCredentials):
			c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		default:
			log.Error().Err(err).Str("username", username).Msg("update settings")
			c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		}
		return
	}

	for _, m := range s.hub.Members(username) {
		id := m.Identity()
		id.Avatar = req.Avatar
		id.URL = req.URL
		m.setIdentity(id)
	}
	s.presence.Update(username, req.Avatar, req.URL)
	s.hub.Broadcast(username, marshal(evtSettingsUpdate, req))
}

type banRequest struct {
	Username  string `json:"username"`
	IPAddress string `json:"ip_address"`
	Duration  int    `json:"duration"`
	Reason    string `json:"reason"`
}

func (s *Server) handleBanUsername(ctx context.Context, c *Client, data json.RawMessage) {
	var req banRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Username == "" {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}

	// Guests have no account to ban; fall back to banning the address of a
	// connected instance if one exists.
	if guestname.Check(req.Username) {
		members := s.hub.Members(req.Username)
		if len(members) == 0 {
			c.emit(evtErrorNotice, errorNotice{errCodeGuestBan})
			return
		}
		ban, err := s.stores.Bans.BanIP(ctx, members[0].ip, req.Duration, req.Reason)
		if err != nil {
			log.Error().Err(err).Str("username", req.Username).Msg("guest fallback ban")
			c.emit(evtErrorNotice, errorNotice{errCodeInternal})
			return
		}
		s.enforceIPBan(ban)
		metrics.BansTotal.Inc()
		return
	}

	target, err := s.stores.Users.ByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.emit(evtErrorNotice, errorNotice{errCodeUnknownUser})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("resolve ban target")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	if target.Role == perm.RoleAdmin {
		c.emit(evtErrorNotice, errorNotice{errCodeAdminBan})
		return
	}

	ban, err := s.stores.Bans.BanUsername(ctx, req.Username, req.Duration, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrGuestBan) {
			c.emit(evtErrorNotice, errorNotice{errCodeGuestBan})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("ban username")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	log.Info().Str("username", req.Username).Str("by", c.Username()).Msg("username banned")
	s.enforceUsernameBan(req.Username, ban)
	metrics.BansTotal.Inc()
}

func (s *Server) handleBanIP(ctx context.Context, c *Client, data json.RawMessage) {
	var req banRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	ip, err := ipaddr.ToInt(req.IPAddress)
	if err != nil {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	ban, err := s.stores.Bans.BanIP(ctx, ip, req.Duration, req.Reason)
	if err != nil {
		log.Error().Err(err).Str("ip", req.IPAddress).Msg("ban ip")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	log.Info().Str("ip", req.IPAddress).Str("by", c.Username()).Msg("ip banned")
	s.enforceIPBan(ban)
	metrics.BansTotal.Inc()
}

func (s *Server) handleUnbanUsername(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Username == "" {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	if err := s.stores.Bans.UnbanUsername(ctx, req.Username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.emit(evtErrorNotice, errorNotice{errCodeUnknownUser})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("unban username")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	log.Info().Str("username", req.Username).Str("by", c.Username()).Msg("username unbanned")
}

func (s *Server) handleClearChat(ctx context.Context, c *Client, data json.RawMessage) {
	if err := s.stores.Messages.DeleteAll(ctx); err != nil {
		log.Error().Err(err).Msg("clear chat")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	log.Info().Str("by", c.Username()).Msg("chat cleared")
	s.hub.BroadcastAll(marshal(evtClearChat, struct{}{}))
}

func (s *Server) handlePromoteUsername(ctx context.Context, c *Client, data json.RawMessage) {
	s.changeRole(ctx, c, data, perm.RoleMod)
}

func (s *Server) handleDemoteUsername(ctx context.Context, c *Client, data json.RawMessage) {
	s.changeRole(ctx, c, data, perm.RoleUser)
}

// changeRole persists a role change and applies it to every connected
// instance of the target, moving them between the staff and public topics.
func (s *Server) changeRole(ctx context.Context, c *Client, data json.RawMessage, role perm.Role) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Username == "" {
		c.emit(evtErrorNotice, errorNotice{errCodeInvalidPayload})
		return
	}
	if err := s.stores.Users.SetRole(ctx, req.Username, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.emit(evtErrorNotice, errorNotice{errCodeUnknownUser})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("set role")
		c.emit(evtErrorNotice, errorNotice{errCodeInternal})
		return
	}
	log.Info().Str("username", req.Username).Str("role", string(role)).Str("by", c.Username()).Msg("role changed")

	for _, m := range s.hub.Members(req.Username) {
		id := m.Identity()
		id.Role = role
		m.setIdentity(id)
		if perm.IsStaff(role) {
			s.hub.Leave(TopicPublic, m)
			s.hub.Join(TopicStaff, m)
		} else {
			s.hub.Leave(TopicStaff, m)
			s.hub.Join(TopicPublic, m)
		}
		m.emit(evtSessionUpdate, m.sessionPayload())
	}
}

// enforceUsernameBan neutralizes and drops every instance in the banned
// username's room. Each gets the notice before the close frame.
func (s *Server) enforceUsernameBan(username string, ban *store.Ban) {
	notice := marshal(evtBanNotice, banNotice{Type: ban.Type(), Reason: ban.Reason, Expires: ban.Expires})
	for _, m := range s.hub.Members(username) {
		id := m.Identity()
		id.Role = perm.RoleBanned
		m.setIdentity(id)
		m.trySend(notice)
		m.close()
	}
}

// enforceIPBan does the same for every connection sharing the banned
// address, whatever name it is using.
func (s *Server) enforceIPBan(ban *store.Ban) {
	if ban.IP == nil {
		return
	}
	notice := marshal(evtBanNotice, banNotice{Type: ban.Type(), Reason: ban.Reason, Expires: ban.Expires})
	for _, m := range s.hub.Clients() {
		if m.ip != *ban.IP {
			continue
		}
		id := m.Identity()
		id.Role = perm.RoleBanned
		m.setIdentity(id)
		m.trySend(notice)
		m.close()
	}
}
