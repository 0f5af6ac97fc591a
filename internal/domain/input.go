package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidInput = errors.New("invalid input command")

type InputDevice string

const (
	DeviceKeyboard InputDevice = "keyboard"
	DeviceMouse    InputDevice = "mouse"
)

type InputAction string

const (
	ActionDown   InputAction = "down"
	ActionUp     InputAction = "up"
	ActionMove   InputAction = "move"
	ActionClick  InputAction = "click"
	ActionScroll InputAction = "scroll"
)

const maxMouseButton = 2

// InputCommand is a normalized keyboard or mouse event coming from a controller.
// Mouse coordinates are fractions of the shared screen, 0..1.
type InputCommand struct {
	Device InputDevice `json:"device"`
	Action InputAction `json:"action"`
	Key    string      `json:"key,omitempty"`
	X      float64     `json:"x,omitempty"`
	Y      float64     `json:"y,omitempty"`
	Button int         `json:"button,omitempty"`
	Delta  int         `json:"delta,omitempty"`
}

func (c InputCommand) Validate() error {
	switch c.Device {
	case DeviceKeyboard:
		if c.Key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidInput)
		}
		if c.Action != ActionDown && c.Action != ActionUp {
			return fmt.Errorf("%w: keyboard action %q", ErrInvalidInput, c.Action)
		}
	case DeviceMouse:
		switch c.Action {
		case ActionMove, ActionClick, ActionDown, ActionUp:
			if c.X < 0 || c.X > 1 || c.Y < 0 || c.Y > 1 {
				return fmt.Errorf("%w: position (%v, %v) out of screen", ErrInvalidInput, c.X, c.Y)
			}
			if c.Button < 0 || c.Button > maxMouseButton {
				return fmt.Errorf("%w: button %d", ErrInvalidInput, c.Button)
			}
		case ActionScroll:
			if c.Delta == 0 {
				return fmt.Errorf("%w: zero scroll delta", ErrInvalidInput)
			}
		default:
			return fmt.Errorf("%w: mouse action %q", ErrInvalidInput, c.Action)
		}
	default:
		return fmt.Errorf("%w: device %q", ErrInvalidInput, c.Device)
	}
	return nil
}

// Clipboard reports whether the command is a copy or paste shortcut
// and which one ("copy" or "paste").
func (c InputCommand) Clipboard() (string, bool) {
	if c.Device != DeviceKeyboard || c.Action != ActionDown {
		return "", false
	}
	switch strings.ToLower(c.Key) {
	case "control+c":
		return "copy", true
	case "control+v":
		return "paste", true
	}
	return "", false
}
