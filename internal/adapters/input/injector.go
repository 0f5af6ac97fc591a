package input

import (
	"fmt"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Backend drives the real input device. Acquire prepares whatever per-thread
// state injection needs and returns the matching release.
type Backend interface {
	Acquire() (release func(), err error)
	Inject(cmd domain.InputCommand) error
}

// ScopedInjector wraps every command in Acquire/release. Failures are logged
// and swallowed; they never reach the router.
type ScopedInjector struct {
	Backend Backend
}

var _ core.InputInjector = (*ScopedInjector)(nil)

func NewScopedInjector(b Backend) *ScopedInjector {
	return &ScopedInjector{Backend: b}
}

func (s *ScopedInjector) Apply(cmd domain.InputCommand) {
	if err := s.apply(cmd); err != nil {
		log.Warn().Err(err).Str("module", "input").Str("device", string(cmd.Device)).Str("action", string(cmd.Action)).Msg("inject failed")
	}
}

func (s *ScopedInjector) apply(cmd domain.InputCommand) (err error) {
	release, err := s.Backend.Acquire()
	if err != nil {
		return fmt.Errorf("acquire input backend: %w", err)
	}
	defer func() {
		if release != nil {
			release()
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("input backend panic: %v", r)
		}
	}()
	return s.Backend.Inject(cmd)
}

// LogBackend only records commands. It stands in where no input device is
// reachable, e.g. on a headless server.
type LogBackend struct {
	Logger zerolog.Logger
}

func NewLogBackend() *LogBackend {
	return &LogBackend{Logger: log.With().Str("module", "input.log").Logger()}
}

func (b *LogBackend) Acquire() (func(), error) {
	return func() {}, nil
}

func (b *LogBackend) Inject(cmd domain.InputCommand) error {
	ev := b.Logger.Debug().Str("device", string(cmd.Device)).Str("action", string(cmd.Action))
	switch cmd.Device {
	case domain.DeviceKeyboard:
		ev = ev.Str("key", cmd.Key)
	case domain.DeviceMouse:
		ev = ev.Float64("x", cmd.X).Float64("y", cmd.Y).Int("button", cmd.Button).Int("delta", cmd.Delta)
	}
	ev.Msg("input")
	return nil
}
