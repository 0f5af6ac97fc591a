// Package domain holds the value types every layer shares.
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLen = 36
	sessionIDLen      = 8
)

type (
	ConnID    string
	SessionID string
)

// Role is the part a connection plays in the session it belongs to.
type Role int

const (
	RoleNone Role = iota
	RoleSharer
	RoleController
)

func (r Role) String() string {
	switch r {
	case RoleSharer:
		return "sharer"
	case RoleController:
		return "controller"
	default:
		return "none"
	}
}

// NewSessionID cuts a short id out of a random uuid string.
// Callers are responsible for collision checks.
func NewSessionID(random string) SessionID {
	random = strings.ReplaceAll(random, "-", "")
	if len(random) > sessionIDLen {
		random = random[:sessionIDLen]
	}
	return SessionID(random)
}

// NormalizeDisplayName trims the sharer supplied label, falls back to
// User_<conn prefix> when empty and cuts it to MaxDisplayNameLen runes.
func NormalizeDisplayName(name string, conn ConnID) string {
	name = strings.TrimSpace(name)
	if name == "" {
		prefix := string(conn)
		if len(prefix) > 6 {
			prefix = prefix[:6]
		}
		return "User_" + prefix
	}
	if utf8.RuneCountInString(name) <= MaxDisplayNameLen {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxDisplayNameLen])
}
