package core

import (
	"context"

	"github.com/dkeye/Desk/internal/domain"
)

// ScreenCapturer produces one encoded frame at the given quality.
// The payload is opaque to the router.
type ScreenCapturer interface {
	Capture(ctx context.Context, q domain.Quality) ([]byte, error)
}

// InputInjector applies a controller command on the sharing machine.
// It is fire-and-forget: nothing it does feeds back into routing.
type InputInjector interface {
	Apply(cmd domain.InputCommand)
}
