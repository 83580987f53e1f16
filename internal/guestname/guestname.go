// Package guestname derives display names for unauthenticated connections.
package guestname

import (
	"fmt"
	"regexp"
	"strconv"
)

var guestPattern = regexp.MustCompile(`(?i)^Guest[0-9]+$`)

// Generate derives a deterministic guest name from a session id by hashing
// its trailing five hex digits mod 100000.
func Generate(sessionID string) string {
	tail := sessionID
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	value, err := strconv.ParseUint(tail, 16, 64)
	if err != nil {
		value = 0
	}
	return fmt.Sprintf("Guest%d", value%100000)
}

// Check reports whether a name is guest-shaped. Guest names are reserved:
// they cannot be registered and cannot be banned by username.
func Check(name string) bool {
	return guestPattern.MatchString(name)
}
