package core

import (
	"errors"

	"github.com/dkeye/Desk/internal/domain"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrInvalidState  = errors.New("invalid session state")
	ErrAlreadyMember = errors.New("already a member of the session")
	ErrBadPayload    = errors.New("bad payload")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownType   = errors.New("unknown message type")
)

const (
	CodeNotFound      = "not_found"
	CodeInvalidState  = "invalid_state"
	CodeAlreadyMember = "already_member"
	CodeBadPayload    = "bad_payload"
	CodeRateLimited   = "rate_limited"
	CodeUnknownType   = "unknown_type"
	CodeInternal      = "internal"
)

// ErrorCode maps an error to the code reported back to a client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyMember):
		return CodeAlreadyMember
	case errors.Is(err, ErrInvalidState), errors.Is(err, domain.ErrInvalidQuality):
		return CodeInvalidState
	case errors.Is(err, ErrBadPayload), errors.Is(err, domain.ErrInvalidInput):
		return CodeBadPayload
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrUnknownType):
		return CodeUnknownType
	default:
		return CodeInternal
	}
}
