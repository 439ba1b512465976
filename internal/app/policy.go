package app

import (
	"fmt"

	"github.com/dkeye/Notify/internal/domain"
)

type EvictAction int

const (
	// DropOnly forgets the handle and leaves the transport alone.
	DropOnly EvictAction = iota
	// CloseConn forgets the handle and closes its transport.
	CloseConn
)

// Policy decides what happens to a transport the registry stops tracking.
type Policy interface {
	OnSendFailure(h *Handle, err error) EvictAction
	OnCallReplaced(call domain.CallID, old *Handle) EvictAction
}

// SimplePolicy closes failed channels. A replaced call handle is closed too
// unless KeepReplaced is set, in which case its transport must notice on its own.
type SimplePolicy struct {
	KeepReplaced bool
}

func (SimplePolicy) OnSendFailure(*Handle, error) EvictAction { return CloseConn }

func (p SimplePolicy) OnCallReplaced(domain.CallID, *Handle) EvictAction {
	if p.KeepReplaced {
		return DropOnly
	}
	return CloseConn
}

// PassivePolicy never closes a transport; the adapter owns that lifecycle.
type PassivePolicy struct{}

func (PassivePolicy) OnSendFailure(*Handle, error) EvictAction { return DropOnly }

func (PassivePolicy) OnCallReplaced(domain.CallID, *Handle) EvictAction { return DropOnly }

// NewPolicy resolves a configured policy name. "simple" (or empty) selects
// SimplePolicy, "passive" selects PassivePolicy.
func NewPolicy(name string, keepReplaced bool) (Policy, error) {
	switch name {
	case "", "simple":
		return SimplePolicy{KeepReplaced: keepReplaced}, nil
	case "passive":
		return PassivePolicy{}, nil
	}
	return nil, fmt.Errorf("unknown eviction policy %q", name)
}
