package orch

import (
	"github.com/dkeye/Desk/internal/app"
	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/dkeye/Desk/internal/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	reasonSharerLeft = "sharer_left"
	reasonExpired    = "expired"
	reasonTooSlow    = "too_slow"
)

// Orchestrator is the event router. It owns no state of its own: every
// decision is taken against a store snapshot and every send happens after
// the store lock is released.
type Orchestrator struct {
	Registry *app.Registry
	Sessions core.SessionStore
	Policy   app.Policy
	Injector core.InputInjector
	// Sender defaults to Registry.
	Sender core.Sender
	// AutoCreate gives every new connection a session of its own.
	AutoCreate bool
}

func (o *Orchestrator) OnConnect(conn domain.ConnID) {
	var sid domain.SessionID
	if o.AutoCreate {
		var dep *core.Departure
		sid, dep = o.Sessions.CreateSession(conn, "")
		o.settle(dep, reasonSharerLeft)
	}
	var client string
	if o.Registry != nil {
		client, _ = o.Registry.Client(conn)
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("client", client).Str("sid", string(sid)).Msg("connected")
	_ = o.send(conn, core.KindConnectionInfo, "", core.ConnectionInfoPayload{ClientID: conn, SessionID: sid})
	o.broadcastSessions()
}

func (o *Orchestrator) OnDisconnect(conn domain.ConnID) {
	dep := o.Sessions.RemoveConnection(conn)
	if o.Registry != nil {
		o.Registry.Unbind(conn)
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Bool("had_membership", dep != nil).Msg("disconnected")
	if dep == nil {
		return
	}
	o.settle(dep, reasonSharerLeft)
	o.broadcastSessions()
}

// OnExpired notifies everyone who was in a session the sweeper tore down.
func (o *Orchestrator) OnExpired(deps []core.Departure) {
	for i := range deps {
		dep := deps[i]
		_ = o.send(dep.Sharer, core.KindSessionEnded, dep.SessionID, core.SessionEndedPayload{Reason: reasonExpired})
		o.settle(&dep, reasonExpired)
	}
	if len(deps) > 0 {
		o.broadcastSessions()
	}
}

func (o *Orchestrator) OnMessage(conn domain.ConnID, msg core.Message) {
	if o.Registry != nil {
		o.Registry.Touch(conn)
	}

	switch msg.Type {
	case core.KindCreateSession:
		o.handleCreate(conn, msg)
	case core.KindJoinSession:
		o.handleJoin(conn, msg)
	case core.KindLeaveSession:
		o.handleLeave(conn, msg)
	case core.KindRequestSessions:
		o.handleListRequest(conn)
	case core.KindScreenFrame:
		o.routeFrame(conn, msg)
	case core.KindKeyboardEvent, core.KindMouseEvent:
		o.routeInput(conn, msg)
	case core.KindSetQuality:
		o.routeQuality(conn, msg)
	case core.KindRequestFrame:
		o.routeFrameRequest(conn, msg)
	default:
		o.reject(conn, msg, core.ErrUnknownType)
	}
}

func (o *Orchestrator) sender() core.Sender {
	if o.Sender != nil {
		return o.Sender
	}
	return o.Registry
}

func (o *Orchestrator) policy() app.Policy {
	if o.Policy != nil {
		return o.Policy
	}
	return app.SimplePolicy{}
}

func (o *Orchestrator) send(to domain.ConnID, kind core.Kind, sid domain.SessionID, payload any) error {
	msg, err := core.NewMessage(kind, sid, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(kind)).Msg("encode payload")
		return err
	}
	return o.sendMessage(to, msg)
}

func (o *Orchestrator) sendMessage(to domain.ConnID, msg core.Message) error {
	f, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(msg.Type)).Msg("encode message")
		return err
	}
	if err := o.sender().Send(to, f); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("to", string(to)).Str("type", string(msg.Type)).Msg("send failed")
		return err
	}
	return nil
}

// reject drops msg and tells the sender why.
func (o *Orchestrator) reject(conn domain.ConnID, msg core.Message, err error) {
	telemetry.MessageRouted(string(msg.Type), "rejected")
	log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("sid", string(msg.SessionID)).Str("type", string(msg.Type)).Msg("message rejected")
	_ = o.send(conn, core.KindError, msg.SessionID, core.ErrorPayload{
		Code:    core.ErrorCode(err),
		Message: err.Error(),
	})
}

// settle tells the controllers of an ended session that it is gone.
func (o *Orchestrator) settle(dep *core.Departure, reason string) {
	if dep == nil || !dep.Ended {
		return
	}
	for _, c := range dep.Orphans {
		_ = o.send(c, core.KindSessionEnded, dep.SessionID, core.SessionEndedPayload{Reason: reason})
	}
}

func (o *Orchestrator) broadcastSessions() {
	if o.Registry == nil {
		return
	}
	msg, err := core.NewMessage(core.KindSessionsList, "", o.Sessions.ListSessions())
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode sessions list")
		return
	}
	f, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode sessions list")
		return
	}
	for _, id := range o.Registry.IDs() {
		if err := o.sender().Send(id, f); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("to", string(id)).Msg("sessions list not delivered")
		}
	}
}
