package app

import (
	"fmt"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

type Fanout string

const (
	FanoutAll    Fanout = "multi"
	FanoutSingle Fanout = "single"
)

func ParseFanout(s string) (Fanout, error) {
	switch Fanout(s) {
	case "", FanoutAll:
		return FanoutAll, nil
	case FanoutSingle:
		return FanoutSingle, nil
	}
	return "", fmt.Errorf("unknown frame fanout %q", s)
}

// Policy decides who receives screen frames and what happens to a
// controller that cannot keep up.
type Policy interface {
	FrameTargets(view core.SessionView) []domain.ConnID
	OnBackPressure(view core.SessionView, conn domain.ConnID) BackpressureAction
}

type SimplePolicy struct {
	Fanout   Fanout
	KickSlow bool
}

func (p SimplePolicy) FrameTargets(view core.SessionView) []domain.ConnID {
	if p.Fanout == FanoutSingle {
		// the earliest joined controller is the active one
		if len(view.Controllers) == 0 {
			return nil
		}
		return view.Controllers[:1]
	}
	return view.Controllers
}

func (p SimplePolicy) OnBackPressure(core.SessionView, domain.ConnID) BackpressureAction {
	if p.KickSlow {
		return KickMember
	}
	return DropFrame
}
