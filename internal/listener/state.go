// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

// State is the listener lifecycle state. The numeric order is load-bearing:
// transitions and guards compare states, so a state is "past" another exactly
// when it is numerically greater. State never moves backward.
type State int32

const (
	StateCreated State = iota
	StateBinding
	StateBound
	StateUnbinding
	StateUnbound
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateUnbinding:
		return "unbinding"
	case StateUnbound:
		return "unbound"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
