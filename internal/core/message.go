package core

import (
	"encoding/json"

	"github.com/dkeye/Desk/internal/domain"
)

type Kind string

const (
	KindCreateSession   Kind = "create_session"
	KindJoinSession     Kind = "join_session"
	KindLeaveSession    Kind = "leave_session"
	KindRequestSessions Kind = "request_sessions"
	KindScreenFrame     Kind = "screen_frame"
	KindKeyboardEvent   Kind = "keyboard_event"
	KindMouseEvent      Kind = "mouse_event"
	KindSetQuality      Kind = "set_quality"
	KindRequestFrame    Kind = "request_frame"
	KindPing            Kind = "ping"

	KindConnectionInfo Kind = "connection_info"
	KindSessionCreated Kind = "session_created"
	KindJoinedSession  Kind = "joined_session"
	KindLeftSession    Kind = "left_session"
	KindSessionsList   Kind = "sessions_list"
	KindQualityChanged Kind = "quality_changed"
	KindSessionEnded   Kind = "session_ended"
	KindPong           Kind = "pong"
	KindError          Kind = "error"
)

// Message is the envelope exchanged with every connection.
// Payload is kind specific and passed through untouched for frames.
type Message struct {
	Type      Kind             `json:"type"`
	SessionID domain.SessionID `json:"session_id,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

type CreateSessionPayload struct {
	DisplayName string `json:"display_name"`
}

type QualityPayload struct {
	Quality domain.Quality `json:"quality"`
}

type ConnectionInfoPayload struct {
	ClientID  domain.ConnID    `json:"client_id"`
	SessionID domain.SessionID `json:"session_id,omitempty"`
}

type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a message; a nil payload is omitted.
func NewMessage(kind Kind, sid domain.SessionID, payload any) (Message, error) {
	msg := Message{Type: kind, SessionID: sid}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Encode turns the message into a wire frame.
func (m Message) Encode() (Frame, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

// Decode reads an envelope; the payload is left raw.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
