// Package tracking follows one user-selected point from frame to frame with
// pyramidal optical flow and reports position, lock and loss events.
package tracking

import (
	"fmt"
	"image"

	"flowlock/events"
	"flowlock/vision"

	"github.com/google/uuid"
)

// Engine is the point-tracking state machine. It keeps a previous and a
// current pyramid and point buffer whose roles swap on every step.
//
// Engine is not safe for concurrent use. All calls, including the frame
// callbacks it registers, must come from one goroutine.
type Engine struct {
	backend vision.Backend
	surface Surface
	source  FrameSource
	bus     events.Bus

	pyramids  pair[vision.Pyramid]
	points    pair[[]vision.Point]
	status    []vision.Status
	allocated bool
	rearming  bool // done handler installed

	enabled     bool
	locked      bool
	last        image.Point
	hasReported bool
	session     string
}

// NewEngine creates a disabled engine that reports positions on surface
func NewEngine(backend vision.Backend, surface Surface) *Engine {
	e := &Engine{
		backend: backend,
		surface: surface,
		status:  make([]vision.Status, trackedPoints),
	}
	e.points.set(make([]vision.Point, trackedPoints), make([]vision.Point, trackedPoints))
	return e
}

// BindSource sets the frame source used by Enable and the re-arm loop
func (e *Engine) BindSource(src FrameSource) {
	e.source = src
}

// On subscribes h to events of kind k
func (e *Engine) On(k events.Kind, h events.Handler) {
	e.bus.On(k, h)
}

// SelectPoint starts tracking the point at (displayX, displayY) on the
// display surface. The surface must have a positive area.
func (e *Engine) SelectPoint(displayX, displayY int) error {
	e.locked = false
	e.hasReported = false
	e.session = uuid.NewString()

	p := toFrame(image.Pt(displayX, displayY), e.surface.Size())
	e.points.current()[0] = p
	debugMsg("TRACKER", fmt.Sprintf("Selected display (%d,%d) -> frame (%.1f,%.1f)",
		displayX, displayY, p.X, p.Y), e.session)

	return e.Enable()
}

// Enable starts requesting frames. It is a no-op when already enabled.
func (e *Engine) Enable() error {
	if e.enabled {
		return nil
	}
	if e.source == nil {
		debugMsg("TRACKER", "Cannot enable: "+ErrNoFrameSource.Error(), e.session)
		return ErrNoFrameSource
	}
	if err := e.allocate(); err != nil {
		debugMsg("TRACKER", "Cannot enable: "+err.Error(), e.session)
		return err
	}

	// Never flow from a frame captured before this enable
	e.pyramids.previous().Invalidate()
	e.pyramids.current().Invalidate()

	e.enabled = true
	if !e.rearming {
		e.bus.On(events.Done, func(events.Event) { e.requestFrame() })
		e.rearming = true
	}
	debugMsg("TRACKER", fmt.Sprintf("Tracking enabled, %d position subscribers",
		e.bus.Count(events.Points)), e.session)

	e.requestFrame()
	return nil
}

// Disable stops tracking. An outstanding frame request is not cancelled; the
// step it triggers only emits done.
func (e *Engine) Disable() {
	if e.enabled {
		debugMsg("TRACKER", "Tracking disabled", e.session)
	}
	e.enabled = false
}

// State returns a snapshot of the state machine
func (e *Engine) State() State {
	return State{
		Enabled:      e.enabled,
		Locked:       e.enabled && e.locked,
		LastReported: e.last,
		HasReported:  e.hasReported,
		Session:      e.session,
	}
}

// Mode returns the current tracking mode
func (e *Engine) Mode() Mode {
	return e.State().Mode()
}

// Close disables the engine and releases the pyramids. A later Enable
// allocates new ones.
func (e *Engine) Close() error {
	e.enabled = false
	if !e.allocated {
		return nil
	}
	e.allocated = false
	errPrev := e.pyramids.previous().Close()
	errCurr := e.pyramids.current().Close()
	if errPrev != nil {
		return errPrev
	}
	return errCurr
}

func (e *Engine) allocate() error {
	if e.allocated {
		return nil
	}
	prev, err := e.backend.NewPyramid(FrameWidth, FrameHeight, PyramidLevels)
	if err != nil {
		return fmt.Errorf("tracking: allocate pyramid: %w", err)
	}
	curr, err := e.backend.NewPyramid(FrameWidth, FrameHeight, PyramidLevels)
	if err != nil {
		prev.Close()
		return fmt.Errorf("tracking: allocate pyramid: %w", err)
	}
	e.pyramids.set(prev, curr)
	e.allocated = true
	return nil
}

func (e *Engine) requestFrame() {
	if e.source != nil {
		e.source.OnNextFrame(e.Step)
	}
}

// Step runs one tracking iteration on frame. It is normally invoked by the
// frame source through the callback the engine registers.
func (e *Engine) Step(frame vision.Frame) {
	if !e.enabled {
		e.bus.Emit(events.Event{Kind: events.Done})
		return
	}

	e.points.swap()
	e.pyramids.swap()

	if e.trackFlow(frame) == vision.Tracked {
		e.onTracked()
	} else {
		e.onLost()
	}

	e.bus.Emit(events.Event{Kind: events.Done})
}

func (e *Engine) trackFlow(frame vision.Frame) vision.Status {
	curr := e.pyramids.current()
	if err := e.backend.LoadBase(curr, frame); err != nil {
		debugMsg("TRACKER", "Dropping frame: "+err.Error(), e.session)
		// Keep searching from the last position, but never from this slot's old image
		curr.Invalidate()
		e.points.current()[0] = e.points.previous()[0]
		return vision.Lost
	}
	e.backend.EqualizeBase(curr)
	e.backend.BuildLevels(curr)

	e.status[0] = vision.Lost
	e.backend.TrackPoints(e.pyramids.previous(), curr,
		e.points.previous(), e.points.current(), e.status, FlowParams())
	return e.status[0]
}

func (e *Engine) onTracked() {
	pos := toDisplay(e.points.current()[0], e.surface.Size())
	acquired := !e.locked

	if acquired || pos != e.last {
		e.last = pos
		e.hasReported = true
		e.bus.Emit(events.Event{Kind: events.Points, Points: []image.Point{pos}})
	}
	if acquired {
		debugMsg("TRACKER", fmt.Sprintf("Lock acquired at (%d,%d)", pos.X, pos.Y), e.session)
		e.bus.Emit(events.Event{Kind: events.Locked})
	}
	e.locked = true
}

func (e *Engine) onLost() {
	if e.locked {
		debugMsg("TRACKER", "Lock lost", e.session)
		e.bus.Emit(events.Event{Kind: events.Lost})
	}
	e.locked = false
}
