// Package host runs a sharer inside the server process. It joins the router
// through the registry like any other connection, so controllers cannot tell
// it apart from a remote sharer.
package host

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Desk/internal/app/orch"
	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const inboxSize = 256

// FramePayload is the screen_frame body the host emits.
type FramePayload struct {
	Image   []byte         `json:"image"`
	Quality domain.Quality `json:"quality"`
}

// memConn is the host's end of the registry: frames land in a channel.
type memConn struct {
	mu     sync.RWMutex
	closed bool
	inbox  chan core.Frame
}

func (c *memConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.inbox <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *memConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbox)
	}
}

type Host struct {
	Orch        *orch.Orchestrator
	Capturer    core.ScreenCapturer
	DisplayName string
	ID          domain.ConnID

	conn    *memConn
	quality atomic.Int32

	mu  sync.RWMutex
	sid domain.SessionID
}

func New(o *orch.Orchestrator, capturer core.ScreenCapturer, displayName string) *Host {
	h := &Host{
		Orch:        o,
		Capturer:    capturer,
		DisplayName: displayName,
		ID:          domain.ConnID("host-" + uuid.NewString()),
		conn:        &memConn{inbox: make(chan core.Frame, inboxSize)},
	}
	h.quality.Store(int32(domain.DefaultQuality))
	return h
}

// SessionID returns the session the host currently shares, if any.
func (h *Host) SessionID() domain.SessionID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sid
}

func (h *Host) Quality() domain.Quality {
	return domain.Quality(h.quality.Load())
}

// Run shares until ctx is done. The session is recreated if the sweeper
// expires it.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Orch.Registry.Bind(h.ID, "host", h.conn, cancel)
	defer func() {
		h.Orch.OnDisconnect(h.ID)
		h.conn.Close()
		log.Info().Str("module", "host").Str("conn", string(h.ID)).Msg("host stopped")
	}()

	h.Orch.OnConnect(h.ID)
	h.share()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-h.conn.inbox:
			if !ok {
				return nil
			}
			msg, err := core.Decode(f)
			if err != nil {
				log.Error().Err(err).Str("module", "host").Msg("decode")
				continue
			}
			h.handle(ctx, msg)
		}
	}
}

func (h *Host) share() {
	msg, err := core.NewMessage(core.KindCreateSession, "", core.CreateSessionPayload{DisplayName: h.DisplayName})
	if err != nil {
		log.Error().Err(err).Str("module", "host").Msg("create session")
		return
	}
	h.Orch.OnMessage(h.ID, msg)

	// the session_created reply can be lost to a full inbox; the store is
	// authoritative either way
	if sid, role, ok := h.Orch.Sessions.MembershipOf(h.ID); ok && role == domain.RoleSharer {
		h.setSession(sid)
	}
}

func (h *Host) setSession(sid domain.SessionID) {
	h.mu.Lock()
	changed := h.sid != sid
	h.sid = sid
	h.mu.Unlock()
	if changed {
		h.quality.Store(int32(domain.DefaultQuality))
		log.Info().Str("module", "host").Str("sid", string(sid)).Msg("sharing")
	}
}

func (h *Host) handle(ctx context.Context, msg core.Message) {
	switch msg.Type {
	case core.KindSessionCreated:
		h.setSession(msg.SessionID)
	case core.KindQualityChanged, core.KindRequestFrame:
		var p core.QualityPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Quality.Valid() {
			h.quality.Store(int32(p.Quality))
		}
		if msg.Type == core.KindRequestFrame {
			h.sendFrame(ctx, msg.SessionID)
		}
	case core.KindKeyboardEvent, core.KindMouseEvent:
		// already applied by the router's injector
	case core.KindSessionEnded:
		if msg.SessionID == h.SessionID() {
			h.mu.Lock()
			h.sid = ""
			h.mu.Unlock()
			h.share()
		}
	case core.KindError:
		log.Warn().Str("module", "host").RawJSON("payload", msg.Payload).Msg("router error")
	}
}

func (h *Host) sendFrame(ctx context.Context, sid domain.SessionID) {
	if sid == "" || sid != h.SessionID() {
		return
	}
	q := h.Quality()
	img, err := h.Capturer.Capture(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("module", "host").Str("sid", string(sid)).Msg("capture")
		return
	}
	msg, err := core.NewMessage(core.KindScreenFrame, sid, FramePayload{Image: img, Quality: q})
	if err != nil {
		log.Error().Err(err).Str("module", "host").Msg("encode frame")
		return
	}
	h.Orch.OnMessage(h.ID, msg)
}
