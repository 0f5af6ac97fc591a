package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/dkeye/Desk/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const idAttempts = 8

type session struct {
	id           domain.SessionID
	sharer       domain.ConnID
	controllers  map[domain.ConnID]uint64 // join sequence
	displayName  string
	quality      domain.Quality
	createdAt    time.Time
	lastActivity time.Time
	active       bool
}

func (s *session) orderedControllers() []domain.ConnID {
	out := make([]domain.ConnID, 0, len(s.controllers))
	for c := range s.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return s.controllers[out[i]] < s.controllers[out[j]] })
	return out
}

func (s *session) view() core.SessionView {
	return core.SessionView{
		ID:           s.id,
		Sharer:       s.sharer,
		Controllers:  s.orderedControllers(),
		DisplayName:  s.displayName,
		Quality:      s.quality,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Active:       s.active,
	}
}

type membership struct {
	sid  domain.SessionID
	role domain.Role
}

// SessionStore is the in-memory core.SessionStore. One mutex guards both the
// sessions and the connection -> membership index, so a connection is never
// seen in two sessions at once.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*session
	members  map[domain.ConnID]membership
	seq      uint64

	now   func() time.Time
	newID func() string
}

type StoreOption func(*SessionStore)

// WithClock replaces time.Now for activity timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) { s.now = now }
}

// WithIDSource replaces the random source session ids are cut from.
func WithIDSource(f func() string) StoreOption {
	return func(s *SessionStore) { s.newID = f }
}

func NewSessionStore(opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[domain.SessionID]*session),
		members:  make(map[domain.ConnID]membership),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ core.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) CreateSession(sharer domain.ConnID, displayName string) (domain.SessionID, *core.Departure) {
	name := domain.NormalizeDisplayName(displayName, sharer)

	s.mu.Lock()
	dep := s.releaseLocked(sharer)
	sid := s.nextIDLocked()
	now := s.now()
	s.sessions[sid] = &session{
		id:           sid,
		sharer:       sharer,
		controllers:  make(map[domain.ConnID]uint64),
		displayName:  name,
		quality:      domain.DefaultQuality,
		createdAt:    now,
		lastActivity: now,
		active:       true,
	}
	s.members[sharer] = membership{sid: sid, role: domain.RoleSharer}
	s.mu.Unlock()

	telemetry.SessionStarted()
	reportDeparture(dep)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("sharer", string(sharer)).Str("name", name).Msg("session created")
	return sid, dep
}

func (s *SessionStore) JoinSession(sid domain.SessionID, controller domain.ConnID) (*core.Departure, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sid]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, fmt.Errorf("join %s: %w", sid, core.ErrNotFound)
	case !sess.active:
		s.mu.Unlock()
		return nil, fmt.Errorf("join %s: session inactive: %w", sid, core.ErrInvalidState)
	case sess.sharer == controller:
		s.mu.Unlock()
		return nil, fmt.Errorf("join %s: sharer cannot control its own session: %w", sid, core.ErrInvalidState)
	}
	if _, dup := sess.controllers[controller]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("join %s: %w", sid, core.ErrAlreadyMember)
	}

	// controller is neither sharer nor member of sess, so this cannot end it.
	dep := s.releaseLocked(controller)
	s.seq++
	sess.controllers[controller] = s.seq
	sess.lastActivity = s.now()
	s.members[controller] = membership{sid: sid, role: domain.RoleController}
	count := len(sess.controllers)
	s.mu.Unlock()

	reportDeparture(dep)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("conn", string(controller)).Int("controllers", count).Msg("controller joined")
	return dep, nil
}

func (s *SessionStore) LeaveSession(sid domain.SessionID, conn domain.ConnID) *core.Departure {
	s.mu.Lock()
	var dep *core.Departure
	if sess, ok := s.sessions[sid]; ok && sess.active {
		dep = s.leaveLocked(sess, conn)
	}
	s.mu.Unlock()

	reportDeparture(dep)
	return dep
}

func (s *SessionStore) RemoveConnection(conn domain.ConnID) *core.Departure {
	s.mu.Lock()
	dep := s.releaseLocked(conn)
	s.mu.Unlock()

	reportDeparture(dep)
	return dep
}

func (s *SessionStore) GetSession(sid domain.SessionID) (core.SessionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok || !sess.active {
		return core.SessionView{}, false
	}
	sess.lastActivity = s.now()
	return sess.view(), true
}

func (s *SessionStore) ListSessions() []core.SessionInfo {
	s.mu.Lock()
	active := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.active {
			active = append(active, sess)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].createdAt.Equal(active[j].createdAt) {
			return active[i].id < active[j].id
		}
		return active[i].createdAt.Before(active[j].createdAt)
	})
	out := make([]core.SessionInfo, 0, len(active))
	for _, sess := range active {
		out = append(out, core.SessionInfo{
			ID:              sess.id,
			DisplayName:     sess.displayName,
			ControllerCount: len(sess.controllers),
		})
	}
	s.mu.Unlock()
	return out
}

// SetQuality changes the quality of sid on behalf of conn, which must be a
// member. The membership check and the change happen under one lock.
func (s *SessionStore) SetQuality(sid domain.SessionID, conn domain.ConnID, q domain.Quality) (core.SessionView, error) {
	if !q.Valid() {
		return core.SessionView{}, fmt.Errorf("set quality %s: %w: %d", sid, domain.ErrInvalidQuality, q)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok {
		return core.SessionView{}, fmt.Errorf("set quality %s: %w", sid, core.ErrNotFound)
	}
	if !sess.active {
		return core.SessionView{}, fmt.Errorf("set quality %s: %w", sid, core.ErrInvalidState)
	}
	if _, isController := sess.controllers[conn]; sess.sharer != conn && !isController {
		return core.SessionView{}, fmt.Errorf("set quality %s: %s is not a member: %w", sid, conn, core.ErrInvalidState)
	}
	sess.quality = q
	sess.lastActivity = s.now()
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("conn", string(conn)).Int("quality", int(q)).Msg("quality set")
	return sess.view(), nil
}

func (s *SessionStore) Resolve(sid domain.SessionID, conn domain.ConnID) (core.SessionView, domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok {
		return core.SessionView{}, domain.RoleNone, fmt.Errorf("resolve %s: %w", sid, core.ErrNotFound)
	}
	if !sess.active {
		return core.SessionView{}, domain.RoleNone, fmt.Errorf("resolve %s: %w", sid, core.ErrInvalidState)
	}
	role := domain.RoleNone
	if sess.sharer == conn {
		role = domain.RoleSharer
	} else if _, ok := sess.controllers[conn]; ok {
		role = domain.RoleController
	}
	if role == domain.RoleNone {
		return core.SessionView{}, domain.RoleNone, fmt.Errorf("resolve %s: %s is not a member: %w", sid, conn, core.ErrInvalidState)
	}
	sess.lastActivity = s.now()
	return sess.view(), role, nil
}

func (s *SessionStore) MembershipOf(conn domain.ConnID) (domain.SessionID, domain.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[conn]
	if !ok {
		return "", domain.RoleNone, false
	}
	return m.sid, m.role, true
}

// Sweep tears down every session whose last activity is strictly older than
// timeout, plus any record already marked inactive.
func (s *SessionStore) Sweep(timeout time.Duration) []core.Departure {
	s.mu.Lock()
	now := s.now()
	var out []core.Departure
	for _, sess := range s.sessions {
		if sess.active && now.Sub(sess.lastActivity) <= timeout {
			continue
		}
		sharer := sess.sharer
		orphans := s.teardownLocked(sess)
		out = append(out, core.Departure{
			SessionID: sess.id,
			Role:      domain.RoleSharer,
			Ended:     true,
			Sharer:    sharer,
			Orphans:   orphans,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	for i := range out {
		reportDeparture(&out[i])
	}
	return out
}

func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) nextIDLocked() domain.SessionID {
	for i := 0; ; i++ {
		id := domain.NewSessionID(s.newID())
		if i >= idAttempts {
			s.seq++
			id = domain.SessionID(fmt.Sprintf("%s%d", id, s.seq))
		}
		if _, taken := s.sessions[id]; id != "" && !taken {
			return id
		}
	}
}

// releaseLocked drops whatever membership conn holds.
func (s *SessionStore) releaseLocked(conn domain.ConnID) *core.Departure {
	m, ok := s.members[conn]
	if !ok {
		return nil
	}
	sess, ok := s.sessions[m.sid]
	if !ok {
		delete(s.members, conn)
		return nil
	}
	return s.leaveLocked(sess, conn)
}

func (s *SessionStore) leaveLocked(sess *session, conn domain.ConnID) *core.Departure {
	if conn == sess.sharer {
		orphans := s.teardownLocked(sess)
		return &core.Departure{
			SessionID: sess.id,
			Role:      domain.RoleSharer,
			Ended:     true,
			Sharer:    conn,
			Orphans:   orphans,
		}
	}
	if _, ok := sess.controllers[conn]; !ok {
		return nil
	}
	delete(sess.controllers, conn)
	delete(s.members, conn)
	sess.lastActivity = s.now()
	return &core.Departure{SessionID: sess.id, Role: domain.RoleController, Sharer: sess.sharer}
}

// teardownLocked marks the session inactive, releases every membership that
// points at it and erases the record. It returns the former controllers.
func (s *SessionStore) teardownLocked(sess *session) []domain.ConnID {
	sess.active = false
	orphans := sess.orderedControllers()
	for _, c := range append([]domain.ConnID{sess.sharer}, orphans...) {
		if m, ok := s.members[c]; ok && m.sid == sess.id {
			delete(s.members, c)
		}
	}
	delete(s.sessions, sess.id)
	return orphans
}

func reportDeparture(dep *core.Departure) {
	if dep == nil {
		return
	}
	if dep.Ended {
		telemetry.SessionEnded()
		log.Info().Str("module", "app.sessions").Str("sid", string(dep.SessionID)).Int("orphans", len(dep.Orphans)).Msg("session ended")
		return
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(dep.SessionID)).Str("role", dep.Role.String()).Msg("member left")
}
