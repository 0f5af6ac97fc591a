package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/dkeye/Desk/internal/telemetry"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Client      string
	Signal      core.SignalConnection
	Cancel      context.CancelFunc
	ConnectedAt time.Time
	LastSeen    time.Time
}

// Registry tracks every live connection and how to reach it.
// It knows nothing about sessions; the store refers to connections by id only.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
		now:   time.Now,
	}
}

// Bind registers a live connection. A second Bind for the same id replaces
// the transport; the old one is closed.
func (r *Registry) Bind(conn domain.ConnID, client string, sig core.SignalConnection, cancel context.CancelFunc) {
	now := r.now()
	r.mu.Lock()
	old, replaced := r.conns[conn]
	r.conns[conn] = &connEntry{
		Client:      client,
		Signal:      sig,
		Cancel:      cancel,
		ConnectedAt: now,
		LastSeen:    now,
	}
	r.mu.Unlock()

	if replaced && old.Signal != nil && old.Signal != sig {
		old.Signal.Close()
	}
	if !replaced {
		telemetry.ConnectionOpened()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Str("client", client).Msg("bound connection")
}

// Unbind forgets a connection. It reports whether the id was known.
func (r *Registry) Unbind(conn domain.ConnID) bool {
	r.mu.Lock()
	_, ok := r.conns[conn]
	delete(r.conns, conn)
	r.mu.Unlock()
	if ok {
		telemetry.ConnectionClosed()
		log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("unbound connection")
	}
	return ok
}

// Touch records inbound activity on a connection.
func (r *Registry) Touch(conn domain.ConnID) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[conn]; ok {
		e.LastSeen = now
	}
}

func (r *Registry) Alive(conn domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[conn]
	return ok
}

// LastSeen returns the time of the last inbound message on conn.
func (r *Registry) LastSeen(conn domain.ConnID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return time.Time{}, false
	}
	return e.LastSeen, true
}

// Client returns the client token the connection was opened with.
func (r *Registry) Client(conn domain.ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return "", false
	}
	return e.Client, true
}

// IDs returns a sorted snapshot of live connection ids.
func (r *Registry) IDs() []domain.ConnID {
	r.mu.RLock()
	out := make([]domain.ConnID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send implements core.Sender. The transport call happens outside the lock.
func (r *Registry) Send(to domain.ConnID, f core.Frame) error {
	r.mu.RLock()
	e, ok := r.conns[to]
	r.mu.RUnlock()
	if !ok || e.Signal == nil {
		return fmt.Errorf("connection %s: %w", to, core.ErrNotFound)
	}
	return e.Signal.TrySend(f)
}

// Cancel stops the pumps of a connection without unbinding it; the transport
// reports the disconnect once its read loop exits.
func (r *Registry) Cancel(conn domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("canceled connection")
	return true
}
