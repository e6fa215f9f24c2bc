package tracking

import (
	"errors"
	"image"

	"flowlock/vision"
)

// Fixed tracking configuration. These are construction-time constants, not
// runtime settings.
const (
	FrameWidth    = 640
	FrameHeight   = 360
	PyramidLevels = 3
	WindowSize    = 50
	MaxIterations = 30
	Epsilon       = 0.01
	MinEigenvalue = 0.001

	trackedPoints = 1
)

// FlowParams returns the Lucas-Kanade constants every step uses
func FlowParams() vision.FlowParams {
	return vision.FlowParams{
		WindowSize:    WindowSize,
		MaxIterations: MaxIterations,
		Epsilon:       Epsilon,
		MinEigenvalue: MinEigenvalue,
	}
}

// ErrNoFrameSource is returned by Enable when no FrameSource has been bound
var ErrNoFrameSource = errors.New("tracking: no frame source bound")

// Mode represents the current mode of the tracker
type Mode int

const (
	ModeIdle      Mode = iota // Disabled
	ModeAcquiring             // Enabled, waiting for the first good track
	ModeLocked                // Enabled and following the target
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeAcquiring:
		return "ACQUIRING"
	case ModeLocked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

// State is a snapshot of the tracker's state machine
type State struct {
	Enabled      bool
	Locked       bool        // Only ever true while Enabled
	LastReported image.Point // Last display position sent with a points event
	HasReported  bool        // LastReported is set for the current selection
	Session      string      // Id of the current selection, empty before the first
}

// Mode derives the tracking mode from the state
func (s State) Mode() Mode {
	switch {
	case !s.Enabled:
		return ModeIdle
	case s.Locked:
		return ModeLocked
	default:
		return ModeAcquiring
	}
}

// FrameSource delivers frames through one-shot callbacks. Registering again
// before the pending callback fires replaces it.
type FrameSource interface {
	OnNextFrame(func(vision.Frame))
}

// Surface reports the size of the area the consumer draws the tracked point on
type Surface interface {
	Size() image.Point
}

// FixedSurface is a Surface that never changes size
type FixedSurface image.Point

func (s FixedSurface) Size() image.Point { return image.Point(s) }

// SurfaceFunc adapts a function to a Surface
type SurfaceFunc func() image.Point

func (f SurfaceFunc) Size() image.Point { return f() }
