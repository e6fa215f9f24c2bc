// Package events is the synchronous observer registry the tracker uses to
// report positions and lock changes to whoever is drawing them.
package events

import (
	"fmt"
	"image"
)

// Kind identifies one of the events a tracker can emit
type Kind int

const (
	Points Kind = iota // Points carries the tracked position in display coordinates
	Locked             // Locked fires when the tracker acquires its target
	Lost               // Lost fires when a locked target can no longer be followed
	Done               // Done fires after every delivered frame

	numKinds
)

var kindNames = [numKinds]string{
	Points: "points",
	Locked: "locked",
	Lost:   "lost",
	Done:   "done",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps an event name ("points", "locked", "lost", "done") to its Kind
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// Event is one emission. Points is only populated for the Points kind and
// holds a single display-space position.
type Event struct {
	Kind   Kind
	Points []image.Point
}

// Handler receives emitted events
type Handler func(Event)

// Bus dispatches events to handlers registered per kind. It is not safe for
// concurrent use; the tracker drives it from a single goroutine.
type Bus struct {
	handlers [numKinds][]Handler
}

// On registers h to run, in registration order, whenever an event of kind k
// is emitted. The same handler may be registered more than once.
func (b *Bus) On(k Kind, h Handler) {
	if k < 0 || k >= numKinds || h == nil {
		return
	}
	b.handlers[k] = append(b.handlers[k], h)
}

// Emit calls every handler registered for e.Kind before returning.
// Handlers must not emit the same kind recursively.
func (b *Bus) Emit(e Event) {
	if e.Kind < 0 || e.Kind >= numKinds {
		return
	}
	for _, h := range b.handlers[e.Kind] {
		h(e)
	}
}

// Count reports how many handlers are registered for k
func (b *Bus) Count(k Kind) int {
	if k < 0 || k >= numKinds {
		return 0
	}
	return len(b.handlers[k])
}
