package app

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	base   time.Time
	offset atomic.Int64
}

func newFakeClock() *fakeClock {
	return &fakeClock{base: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.base.Add(time.Duration(c.offset.Load())) }
func (c *fakeClock) Advance(d time.Duration) { c.offset.Add(int64(d)) }

func TestCreateSession(t *testing.T) {
	s := NewSessionStore()
	sid, dep := s.CreateSession("a", "Alice")
	assert.Nil(t, dep)
	assert.Len(t, sid, 8)

	view, ok := s.GetSession(sid)
	require.True(t, ok)
	assert.Equal(t, domain.ConnID("a"), view.Sharer)
	assert.Equal(t, "Alice", view.DisplayName)
	assert.Equal(t, domain.DefaultQuality, view.Quality)
	assert.Empty(t, view.Controllers)
	assert.True(t, view.Active)
}

func TestCreateSessionIsIdempotentPerConnection(t *testing.T) {
	s := NewSessionStore()
	first, _ := s.CreateSession("a", "one")
	_, err := s.JoinSession(first, "b")
	require.NoError(t, err)

	second, dep := s.CreateSession("a", "two")
	require.NotNil(t, dep)
	assert.True(t, dep.Ended)
	assert.Equal(t, first, dep.SessionID)
	assert.Equal(t, []domain.ConnID{"b"}, dep.Orphans)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, s.Count())
	_, ok := s.GetSession(first)
	assert.False(t, ok)

	_, _, ok = s.MembershipOf("b")
	assert.False(t, ok)
	sid, role, ok := s.MembershipOf("a")
	require.True(t, ok)
	assert.Equal(t, second, sid)
	assert.Equal(t, domain.RoleSharer, role)
}

func TestSessionIDCollisionsAreRetried(t *testing.T) {
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	var i int
	s := NewSessionStore(WithIDSource(func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}))

	first, _ := s.CreateSession("a", "")
	second, _ := s.CreateSession("b", "")
	assert.Equal(t, domain.SessionID("aaaaaaaa"), first)
	assert.Equal(t, domain.SessionID("bbbbbbbb"), second)
}

func TestSessionIDFallsBackWhenSourceIsStuck(t *testing.T) {
	s := NewSessionStore(WithIDSource(func() string { return "deadbeef" }))
	first, _ := s.CreateSession("a", "")
	second, _ := s.CreateSession("b", "")
	third, _ := s.CreateSession("c", "")
	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, third)
	assert.NotEqual(t, first, third)
}

func TestJoinSessionFailuresMutateNothing(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	other, _ := s.CreateSession("x", "")
	_, err := s.JoinSession(other, "b")
	require.NoError(t, err)

	_, err = s.JoinSession("missing", "b")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.JoinSession(sid, "a")
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = s.JoinSession(other, "b")
	assert.ErrorIs(t, err, core.ErrAlreadyMember)

	// b still controls other after every failure
	got, role, ok := s.MembershipOf("b")
	require.True(t, ok)
	assert.Equal(t, other, got)
	assert.Equal(t, domain.RoleController, role)
}

func TestJoinSessionAfterTeardownFails(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	s.RemoveConnection("a")

	dep, err := s.JoinSession(sid, "b")
	assert.Nil(t, dep)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, _, ok := s.MembershipOf("b")
	assert.False(t, ok)
}

func TestJoinAbandonsPriorMembership(t *testing.T) {
	s := NewSessionStore()
	s1, _ := s.CreateSession("a", "")
	s2, _ := s.CreateSession("c", "")
	_, err := s.JoinSession(s1, "b")
	require.NoError(t, err)

	dep, err := s.JoinSession(s2, "b")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, s1, dep.SessionID)
	assert.Equal(t, domain.RoleController, dep.Role)
	assert.False(t, dep.Ended)

	v1, _ := s.GetSession(s1)
	v2, _ := s.GetSession(s2)
	assert.Empty(t, v1.Controllers)
	assert.Equal(t, []domain.ConnID{"b"}, v2.Controllers)
}

func TestSharerJoiningElsewhereEndsOwnSession(t *testing.T) {
	s := NewSessionStore()
	own, _ := s.CreateSession("a", "")
	_, err := s.JoinSession(own, "b")
	require.NoError(t, err)
	target, _ := s.CreateSession("c", "")

	dep, err := s.JoinSession(target, "a")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.True(t, dep.Ended)
	assert.Equal(t, []domain.ConnID{"b"}, dep.Orphans)

	_, ok := s.GetSession(own)
	assert.False(t, ok)
}

func TestLeaveSession(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	_, err := s.JoinSession(sid, "b")
	require.NoError(t, err)

	assert.Nil(t, s.LeaveSession(sid, "stranger"))
	assert.Nil(t, s.LeaveSession("missing", "b"))

	dep := s.LeaveSession(sid, "b")
	require.NotNil(t, dep)
	assert.False(t, dep.Ended)
	view, ok := s.GetSession(sid)
	require.True(t, ok, "last controller leaving keeps the session")
	assert.Empty(t, view.Controllers)

	dep = s.LeaveSession(sid, "a")
	require.NotNil(t, dep)
	assert.True(t, dep.Ended)
	assert.Zero(t, s.Count())
}

func TestRemoveConnectionWithoutMembershipIsNoop(t *testing.T) {
	s := NewSessionStore()
	assert.Nil(t, s.RemoveConnection("ghost"))
}

func TestTeardownCompleteness(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	for _, c := range []domain.ConnID{"b", "c", "d"} {
		_, err := s.JoinSession(sid, c)
		require.NoError(t, err)
	}

	dep := s.RemoveConnection("a")
	require.NotNil(t, dep)
	assert.Equal(t, []domain.ConnID{"b", "c", "d"}, dep.Orphans)
	assert.Empty(t, s.ListSessions())
	for _, c := range []domain.ConnID{"a", "b", "c", "d"} {
		_, _, ok := s.MembershipOf(c)
		assert.False(t, ok, string(c))
	}
}

func TestListSessionsOrderedByCreation(t *testing.T) {
	clock := newFakeClock()
	s := NewSessionStore(WithClock(clock.Now))
	first, _ := s.CreateSession("a", "A")
	clock.Advance(time.Second)
	second, _ := s.CreateSession("b", "B")
	_, err := s.JoinSession(second, "c")
	require.NoError(t, err)

	assert.Equal(t, []core.SessionInfo{
		{ID: first, DisplayName: "A", ControllerCount: 0},
		{ID: second, DisplayName: "B", ControllerCount: 1},
	}, s.ListSessions())
}

func TestSetQuality(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	_, err := s.JoinSession(sid, "b")
	require.NoError(t, err)

	view, err := s.SetQuality(sid, "b", domain.QualityLow)
	require.NoError(t, err)
	assert.Equal(t, domain.QualityLow, view.Quality)
	assert.Equal(t, domain.ConnID("a"), view.Sharer)
	got, _ := s.GetSession(sid)
	assert.Equal(t, domain.QualityLow, got.Quality)

	_, err = s.SetQuality(sid, "a", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuality)
	_, err = s.SetQuality("missing", "a", domain.QualityLow)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSetQualityRequiresMembership(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	_, err := s.JoinSession(sid, "b")
	require.NoError(t, err)
	s.LeaveSession(sid, "b")

	_, err = s.SetQuality(sid, "b", domain.QualityLow)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	_, err = s.SetQuality(sid, "stranger", domain.QualityLow)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	view, _ := s.GetSession(sid)
	assert.Equal(t, domain.DefaultQuality, view.Quality)
}

func TestResolve(t *testing.T) {
	s := NewSessionStore()
	sid, _ := s.CreateSession("a", "")
	_, err := s.JoinSession(sid, "b")
	require.NoError(t, err)

	_, role, err := s.Resolve(sid, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSharer, role)

	_, role, err = s.Resolve(sid, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleController, role)

	_, _, err = s.Resolve(sid, "z")
	assert.ErrorIs(t, err, core.ErrInvalidState)
	_, _, err = s.Resolve("missing", "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReadsTouchActivity(t *testing.T) {
	clock := newFakeClock()
	s := NewSessionStore(WithClock(clock.Now))
	sid, _ := s.CreateSession("a", "")

	clock.Advance(10 * time.Minute)
	view, ok := s.GetSession(sid)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), view.LastActivity)
}

func TestSweepBoundary(t *testing.T) {
	clock := newFakeClock()
	s := NewSessionStore(WithClock(clock.Now))
	sid, _ := s.CreateSession("a", "")
	_, err := s.JoinSession(sid, "b")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	assert.Empty(t, s.Sweep(30*time.Minute), "exactly at the threshold is kept")

	clock.Advance(time.Nanosecond)
	expired := s.Sweep(30 * time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, sid, expired[0].SessionID)
	assert.Equal(t, domain.ConnID("a"), expired[0].Sharer)
	assert.Equal(t, []domain.ConnID{"b"}, expired[0].Orphans)
	assert.Zero(t, s.Count())
	_, _, ok := s.MembershipOf("b")
	assert.False(t, ok)
}

func TestExclusivityUnderConcurrency(t *testing.T) {
	s := NewSessionStore()
	const conns = 16
	var seeds []domain.SessionID
	for i := 0; i < 4; i++ {
		sid, _ := s.CreateSession(domain.ConnID(fmt.Sprintf("seed-%d", i)), "")
		seeds = append(seeds, sid)
	}

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := domain.ConnID(fmt.Sprintf("c-%d", i))
			for j := 0; j < 200; j++ {
				switch j % 4 {
				case 0:
					s.CreateSession(c, "")
				case 1:
					_, _ = s.JoinSession(seeds[(i+j)%len(seeds)], c)
				case 2:
					s.RemoveConnection(c)
				case 3:
					s.ListSessions()
				}
			}
		}(i)
	}
	wg.Wait()

	// every membership index entry matches exactly one role in one session
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, m := range s.members {
		sess, ok := s.sessions[m.sid]
		require.True(t, ok, "membership of %s points at a missing session", c)
		_, isController := sess.controllers[c]
		isSharer := sess.sharer == c
		assert.True(t, isController != isSharer, "%s must hold exactly one role", c)
	}
	for sid, sess := range s.sessions {
		_, selfControl := sess.controllers[sess.sharer]
		assert.False(t, selfControl, "sharer of %s is also a controller", sid)
		for c := range sess.controllers {
			assert.Equal(t, sid, s.members[c].sid)
		}
	}
}

func TestScenario(t *testing.T) {
	s := NewSessionStore()
	s1, _ := s.CreateSession("A", "Alice")
	assert.Equal(t, []core.SessionInfo{{ID: s1, DisplayName: "Alice"}}, s.ListSessions())

	_, err := s.JoinSession(s1, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ListSessions()[0].ControllerCount)

	view, role, err := s.Resolve(s1, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleController, role)
	assert.Equal(t, domain.ConnID("A"), view.Sharer)

	s.RemoveConnection("A")
	assert.Empty(t, s.ListSessions())
	_, err = s.JoinSession(s1, "B")
	assert.Error(t, err)
}
