package chat

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Envelope frames every protocol event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names. Inbound names live in internal/perm so the
// dispatch gate can check capabilities by event name.
const (
	evtSessionStart       = "sessionStart"
	evtSessionUpdate      = "sessionUpdate"
	evtInitialMessages    = "initialMessages"
	evtAdditionalMessages = "additionalMessages"
	evtNewMessage         = "newMessage"
	evtConfirmMessage     = "confirmMessage"
	evtDeleteMessage      = "deleteMessage"
	evtClearChat          = "clearChat"
	evtOnlineUsers        = "onlineUsers"
	evtOnlineUsersAdd     = "onlineUsersAdd"
	evtOnlineUsersRemove  = "onlineUsersRemove"
	evtOnlineUsersRename  = "onlineUsersRename"
	evtSettingsUpdate     = "settingsUpdate"
	evtBanNotice          = "banNotice"
	evtErrorNotice        = "errorNotice"
)

// Numbered errorNotice codes. Authorization denials are deliberately not
// represented: those are dropped silently at the gate.
const (
	errCodeInvalidPayload     = 1
	errCodeUsernameTaken      = 2
	errCodeInvalidCredentials = 3
	errCodeUnknownUser        = 4
	errCodeGuestBan           = 5
	errCodeAdminBan           = 6
	errCodeInternal           = 7
	errCodeSpamWarning        = 8
)

func marshal(event string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event data")
		return nil
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal envelope")
		return nil
	}
	return b
}

type errorNotice struct {
	Code int `json:"code"`
}

type sessionPayload struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	URL      string `json:"url,omitempty"`
}

type banNotice struct {
	Type    string    `json:"type"`
	Reason  string    `json:"reason"`
	Expires time.Time `json:"expires"`
}

type presenceAdd struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	URL      string `json:"url,omitempty"`
	Instance string `json:"instance"`
}

type presenceRemove struct {
	Username string `json:"username"`
	Instance string `json:"instance"`
}

type presenceRename struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
	Avatar  string `json:"avatar,omitempty"`
	URL     string `json:"url,omitempty"`
}

type settingsUpdate struct {
	Avatar string `json:"avatar,omitempty"`
	URL    string `json:"url,omitempty"`
}
