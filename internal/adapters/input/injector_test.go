package input

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dkeye/Desk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeBackend struct {
	acquired   int
	released   int
	injected   []domain.InputCommand
	acquireErr error
	injectErr  error
	panicOn    string
}

func (f *fakeBackend) Acquire() (func(), error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func (f *fakeBackend) Inject(cmd domain.InputCommand) error {
	if cmd.Key != "" && cmd.Key == f.panicOn {
		panic("device gone")
	}
	f.injected = append(f.injected, cmd)
	return f.injectErr
}

func TestScopedInjectorReleasesAfterEachCommand(t *testing.T) {
	b := &fakeBackend{}
	inj := NewScopedInjector(b)

	inj.Apply(domain.InputCommand{Device: domain.DeviceKeyboard, Action: domain.ActionDown, Key: "a"})
	inj.Apply(domain.InputCommand{Device: domain.DeviceMouse, Action: domain.ActionMove, X: 0.5, Y: 0.5})

	assert.Equal(t, 2, b.acquired)
	assert.Equal(t, 2, b.released)
	assert.Len(t, b.injected, 2)
}

func TestScopedInjectorReleasesOnFailure(t *testing.T) {
	b := &fakeBackend{injectErr: errors.New("denied")}
	NewScopedInjector(b).Apply(domain.InputCommand{Device: domain.DeviceKeyboard, Action: domain.ActionDown, Key: "a"})
	assert.Equal(t, 1, b.released)

	b = &fakeBackend{panicOn: "boom"}
	assert.NotPanics(t, func() {
		NewScopedInjector(b).Apply(domain.InputCommand{Device: domain.DeviceKeyboard, Action: domain.ActionDown, Key: "boom"})
	})
	assert.Equal(t, 1, b.released)
}

func TestScopedInjectorAcquireError(t *testing.T) {
	b := &fakeBackend{acquireErr: errors.New("no display")}
	err := NewScopedInjector(b).apply(domain.InputCommand{Device: domain.DeviceKeyboard, Action: domain.ActionDown, Key: "a"})
	assert.ErrorContains(t, err, "no display")
	assert.Empty(t, b.injected)
	assert.Zero(t, b.released)
}

func TestLogBackendWritesCommand(t *testing.T) {
	var buf bytes.Buffer
	b := &LogBackend{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	release, err := b.Acquire()
	assert.NoError(t, err)
	defer release()

	assert.NoError(t, b.Inject(domain.InputCommand{Device: domain.DeviceKeyboard, Action: domain.ActionDown, Key: "Control+c"}))
	assert.Contains(t, buf.String(), `"key":"Control+c"`)
}
