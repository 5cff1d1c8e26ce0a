package bridge

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle position of a Terminal.
//
//	Created → Starting → Running → Stopping → Stopped
//	              ↓                     ↓
//	            Failed                Failed
//
// Created may also go straight to Stopped when Stop runs before Start.
// No state leads back to Created: a Terminal is used once.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// stateBox is an atomically updated State.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State {
	return State(b.v.Load())
}

func (b *stateBox) store(s State) {
	b.v.Store(int32(s))
}

func (b *stateBox) cas(from, to State) bool {
	return b.v.CompareAndSwap(int32(from), int32(to))
}
