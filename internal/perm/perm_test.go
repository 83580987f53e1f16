package perm

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		name   string
		role   Role
		action string
		want   bool
	}{
		{"guest can send", RoleGuest, ActionSendMessage, true},
		{"guest can register", RoleGuest, ActionRegisterUser, true},
		{"guest cannot delete", RoleGuest, ActionDeleteMessage, false},
		{"guest cannot view ip", RoleGuest, ActionViewIP, false},
		{"user can sign out", RoleUser, ActionSignOut, true},
		{"user cannot register twice", RoleUser, ActionRegisterUser, false},
		{"user cannot ban", RoleUser, ActionBanUsername, false},
		{"mod can ban", RoleMod, ActionBanUsername, true},
		{"mod can view ip", RoleMod, ActionViewIP, true},
		{"mod cannot promote", RoleMod, ActionPromoteUsername, false},
		{"admin can promote", RoleAdmin, ActionPromoteUsername, true},
		{"admin can demote", RoleAdmin, ActionDemoteUsername, true},
		{"banned can do nothing", RoleBanned, ActionSendMessage, false},
		{"banned cannot load", RoleBanned, ActionLoadMessages, false},
		{"unknown role denies", Role("superuser"), ActionSendMessage, false},
		{"unknown action denies", RoleAdmin, "shutdownServer", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Can(tt.role, tt.action); got != tt.want {
				t.Errorf("Can(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}

func TestBannedHasEmptyActionSet(t *testing.T) {
	actions := []string{
		ActionSendMessage, ActionLoadMessages, ActionDeleteMessage,
		ActionRegisterUser, ActionSignInAttempt, ActionSignOut,
		ActionUpdateSettings, ActionBanUsername, ActionBanIP,
		ActionUnbanUsername, ActionClearChat, ActionPromoteUsername,
		ActionDemoteUsername, ActionViewIP,
	}
	for _, a := range actions {
		if Can(RoleBanned, a) {
			t.Errorf("Can(banned, %q) = true, want false", a)
		}
	}
}

func TestIsStaff(t *testing.T) {
	staff := map[Role]bool{
		RoleBanned: false,
		RoleGuest:  false,
		RoleUser:   false,
		RoleMod:    true,
		RoleAdmin:  true,
	}
	for role, want := range staff {
		if got := IsStaff(role); got != want {
			t.Errorf("IsStaff(%q) = %v, want %v", role, got, want)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid(RoleGuest) {
		t.Error("Valid(guest) = false, want true")
	}
	if Valid(Role("root")) {
		t.Error("Valid(root) = true, want false")
	}
}
