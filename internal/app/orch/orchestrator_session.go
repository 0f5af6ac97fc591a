package orch

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/dkeye/Desk/internal/telemetry"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleCreate(conn domain.ConnID, msg core.Message) {
	var p core.CreateSessionPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			o.reject(conn, msg, fmt.Errorf("%w: %v", core.ErrBadPayload, err))
			return
		}
	}

	sid, dep := o.Sessions.CreateSession(conn, p.DisplayName)
	o.settle(dep, reasonSharerLeft)
	telemetry.MessageRouted(string(msg.Type), "handled")
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("sid", string(sid)).Msg("create session")

	_ = o.send(conn, core.KindSessionCreated, sid, nil)
	o.broadcastSessions()
}

func (o *Orchestrator) handleJoin(conn domain.ConnID, msg core.Message) {
	if msg.SessionID == "" {
		o.reject(conn, msg, fmt.Errorf("%w: no session_id provided", core.ErrBadPayload))
		return
	}

	dep, err := o.Sessions.JoinSession(msg.SessionID, conn)
	if err != nil {
		o.reject(conn, msg, err)
		return
	}
	o.settle(dep, reasonSharerLeft)
	telemetry.MessageRouted(string(msg.Type), "handled")

	_ = o.send(conn, core.KindJoinedSession, msg.SessionID, nil)
	o.broadcastSessions()
}

// handleLeave leaves msg.SessionID, or whatever session conn is in when the
// id is omitted.
func (o *Orchestrator) handleLeave(conn domain.ConnID, msg core.Message) {
	sid := msg.SessionID
	if sid == "" {
		sid, _, _ = o.Sessions.MembershipOf(conn)
	}
	if sid == "" {
		o.reject(conn, msg, fmt.Errorf("%w: not in a session", core.ErrInvalidState))
		return
	}

	dep := o.Sessions.LeaveSession(sid, conn)
	o.settle(dep, reasonSharerLeft)
	telemetry.MessageRouted(string(msg.Type), "handled")

	_ = o.send(conn, core.KindLeftSession, sid, nil)
	if dep != nil {
		o.broadcastSessions()
	}
}

func (o *Orchestrator) handleListRequest(conn domain.ConnID) {
	telemetry.MessageRouted(string(core.KindRequestSessions), "handled")
	_ = o.send(conn, core.KindSessionsList, "", o.Sessions.ListSessions())
}

// kick removes a controller that fell behind and closes its connection.
// The notice usually cannot get through a full buffer, so the close is what
// the client actually sees.
func (o *Orchestrator) kick(sid domain.SessionID, conn domain.ConnID) {
	dep := o.Sessions.LeaveSession(sid, conn)
	if dep == nil {
		return
	}
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("conn", string(conn)).Msg("kicked slow controller")
	_ = o.send(conn, core.KindSessionEnded, sid, core.SessionEndedPayload{Reason: reasonTooSlow})
	if o.Registry != nil {
		o.Registry.Cancel(conn)
	}
	o.broadcastSessions()
}
