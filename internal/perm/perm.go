// Package perm holds the static role → action capability table.
package perm

// Role is a connection's privilege level.
type Role string

const (
	RoleBanned Role = "banned"
	RoleGuest  Role = "guest"
	RoleUser   Role = "user"
	RoleMod    Role = "mod"
	RoleAdmin  Role = "admin"
)

// Action names match inbound protocol event names, so the dispatch gate can
// check permissions by the event name alone. ActionViewIP has no inbound
// event; it controls ip_address projection on message queries.
const (
	ActionSendMessage     = "sendMessage"
	ActionLoadMessages    = "loadMessages"
	ActionDeleteMessage   = "deleteMessage"
	ActionRegisterUser    = "registerUser"
	ActionSignInAttempt   = "signInAttempt"
	ActionSignOut         = "signOut"
	ActionUpdateSettings  = "updateSettings"
	ActionBanUsername     = "banUsername"
	ActionBanIP           = "banIP"
	ActionUnbanUsername   = "unbanUsername"
	ActionClearChat       = "clearChat"
	ActionPromoteUsername = "promoteUsername"
	ActionDemoteUsername  = "demoteUsername"
	ActionViewIP          = "viewIP"
)

var matrix = map[Role]map[string]bool{
	RoleBanned: {},
	RoleGuest: {
		ActionSendMessage:   true,
		ActionLoadMessages:  true,
		ActionRegisterUser:  true,
		ActionSignInAttempt: true,
	},
	RoleUser: {
		ActionSendMessage:    true,
		ActionLoadMessages:   true,
		ActionSignOut:        true,
		ActionUpdateSettings: true,
	},
	RoleMod: {
		ActionSendMessage:    true,
		ActionLoadMessages:   true,
		ActionSignOut:        true,
		ActionUpdateSettings: true,
		ActionDeleteMessage:  true,
		ActionBanUsername:    true,
		ActionBanIP:          true,
		ActionUnbanUsername:  true,
		ActionClearChat:      true,
		ActionViewIP:         true,
	},
	RoleAdmin: {
		ActionSendMessage:     true,
		ActionLoadMessages:    true,
		ActionSignOut:         true,
		ActionUpdateSettings:  true,
		ActionDeleteMessage:   true,
		ActionBanUsername:     true,
		ActionBanIP:           true,
		ActionUnbanUsername:   true,
		ActionClearChat:       true,
		ActionViewIP:          true,
		ActionPromoteUsername: true,
		ActionDemoteUsername:  true,
	},
}

// Can reports whether a role may perform an action. Unknown roles and
// unknown actions always deny.
func Can(role Role, action string) bool {
	actions, ok := matrix[role]
	if !ok {
		return false
	}
	return actions[action]
}

// IsStaff reports whether a role carries moderation privileges.
func IsStaff(role Role) bool {
	return role == RoleMod || role == RoleAdmin
}

// Valid reports whether a role is one of the known roles.
func Valid(role Role) bool {
	_, ok := matrix[role]
	return ok
}
