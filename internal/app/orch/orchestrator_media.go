package orch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Desk/internal/app"
	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/dkeye/Desk/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// routeFrame fans a sharer's frame out to the controllers picked by the policy.
// The payload is forwarded untouched.
func (o *Orchestrator) routeFrame(conn domain.ConnID, msg core.Message) {
	view, role, err := o.Sessions.Resolve(msg.SessionID, conn)
	if err != nil {
		o.reject(conn, msg, err)
		return
	}
	if role != domain.RoleSharer {
		o.reject(conn, msg, fmt.Errorf("%w: only the sharer sends frames", core.ErrInvalidState))
		return
	}

	f, err := msg.Encode()
	if err != nil {
		o.reject(conn, msg, fmt.Errorf("%w: %v", core.ErrBadPayload, err))
		return
	}

	pol := o.policy()
	var slow []domain.ConnID
	for _, target := range pol.FrameTargets(view) {
		err := o.sender().Send(target, f)
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrBackpressure) && pol.OnBackPressure(view, target) == app.KickMember {
			slow = append(slow, target)
			continue
		}
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(view.ID)).Str("to", string(target)).Msg("frame dropped")
	}
	telemetry.MessageRouted(string(msg.Type), "forwarded")

	for _, c := range slow {
		o.kick(view.ID, c)
	}
}

// routeInput forwards a controller's keyboard or mouse event to the sharer
// and hands it to the local injector.
func (o *Orchestrator) routeInput(conn domain.ConnID, msg core.Message) {
	var cmd domain.InputCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		o.reject(conn, msg, fmt.Errorf("%w: %v", core.ErrBadPayload, err))
		return
	}
	want := domain.DeviceKeyboard
	if msg.Type == core.KindMouseEvent {
		want = domain.DeviceMouse
	}
	if cmd.Device == "" {
		cmd.Device = want
	}
	if cmd.Device != want {
		o.reject(conn, msg, fmt.Errorf("%w: %s carries a %s command", core.ErrBadPayload, msg.Type, cmd.Device))
		return
	}
	if err := cmd.Validate(); err != nil {
		o.reject(conn, msg, err)
		return
	}

	view, role, err := o.Sessions.Resolve(msg.SessionID, conn)
	if err != nil {
		o.reject(conn, msg, err)
		return
	}
	if role != domain.RoleController {
		o.reject(conn, msg, fmt.Errorf("%w: only controllers send input", core.ErrInvalidState))
		return
	}

	out, err := core.NewMessage(msg.Type, view.ID, cmd)
	if err != nil {
		o.reject(conn, msg, err)
		return
	}
	_ = o.sendMessage(view.Sharer, out)
	if o.Injector != nil {
		o.Injector.Apply(cmd)
	}
	if action, ok := cmd.Clipboard(); ok {
		log.Info().Str("module", "orch").Str("sid", string(view.ID)).Str("conn", string(conn)).Str("action", action).Msg("clipboard shortcut")
	}
	telemetry.MessageRouted(string(msg.Type), "forwarded")
}

// routeQuality changes the session's quality level. Any member may do it;
// both the requester and the sharer are told the new level.
func (o *Orchestrator) routeQuality(conn domain.ConnID, msg core.Message) {
	var p core.QualityPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		o.reject(conn, msg, fmt.Errorf("%w: %v", core.ErrBadPayload, err))
		return
	}
	if !p.Quality.Valid() {
		o.reject(conn, msg, fmt.Errorf("%w: %d", domain.ErrInvalidQuality, p.Quality))
		return
	}

	view, err := o.Sessions.SetQuality(msg.SessionID, conn, p.Quality)
	if err != nil {
		o.reject(conn, msg, err)
		return
	}
	telemetry.MessageRouted(string(msg.Type), "handled")

	payload := core.QualityPayload{Quality: p.Quality}
	_ = o.send(conn, core.KindQualityChanged, view.ID, payload)
	if view.Sharer != conn {
		_ = o.send(view.Sharer, core.KindQualityChanged, view.ID, payload)
	}
}

// routeFrameRequest asks the sharer for a fresh frame at the session quality.
func (o *Orchestrator) routeFrameRequest(conn domain.ConnID, msg core.Message) {
	view, role, err := o.Sessions.Resolve(msg.SessionID, conn)
	if err != nil {
		o.reject(conn, msg, err)
		return
	}
	if role != domain.RoleController {
		o.reject(conn, msg, fmt.Errorf("%w: only controllers request frames", core.ErrInvalidState))
		return
	}
	_ = o.send(view.Sharer, core.KindRequestFrame, view.ID, core.QualityPayload{Quality: view.Quality})
	telemetry.MessageRouted(string(msg.Type), "forwarded")
}
