package core

import (
	"time"

	"github.com/dkeye/Desk/internal/domain"
)

// SessionView is a read-only copy of a session taken under the store lock.
// Controllers are ordered by join time.
type SessionView struct {
	ID           domain.SessionID
	Sharer       domain.ConnID
	Controllers  []domain.ConnID
	DisplayName  string
	Quality      domain.Quality
	CreatedAt    time.Time
	LastActivity time.Time
	Active       bool
}

// SessionInfo is the list entry broadcast to clients.
type SessionInfo struct {
	ID              domain.SessionID `json:"id"`
	DisplayName     string           `json:"display_name"`
	ControllerCount int              `json:"controller_count"`
}

// Departure describes a membership a connection gave up.
// When the sharer leaves the whole session ends and Orphans lists
// the controllers that were still attached.
type Departure struct {
	SessionID domain.SessionID
	Role      domain.Role
	Ended     bool
	Sharer    domain.ConnID
	Orphans   []domain.ConnID
}

// SessionStore is the single source of truth for sessions and membership.
// Implementations serialize every call.
type SessionStore interface {
	CreateSession(sharer domain.ConnID, displayName string) (domain.SessionID, *Departure)
	JoinSession(sid domain.SessionID, controller domain.ConnID) (*Departure, error)
	LeaveSession(sid domain.SessionID, conn domain.ConnID) *Departure
	RemoveConnection(conn domain.ConnID) *Departure

	GetSession(sid domain.SessionID) (SessionView, bool)
	ListSessions() []SessionInfo
	// SetQuality fails with ErrInvalidState unless conn is a member of sid.
	SetQuality(sid domain.SessionID, conn domain.ConnID, q domain.Quality) (SessionView, error)

	// Resolve returns the active session and the role conn holds in it.
	Resolve(sid domain.SessionID, conn domain.ConnID) (SessionView, domain.Role, error)
	MembershipOf(conn domain.ConnID) (domain.SessionID, domain.Role, bool)

	// Sweep tears down sessions idle for longer than timeout.
	Sweep(timeout time.Duration) []Departure
	Count() int
}
