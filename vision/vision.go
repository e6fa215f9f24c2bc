// Package vision defines the frame, point and pyramid types shared between the
// tracker and the optical-flow backend that does the numerical work.
package vision

import "image"

// Frame is a single-channel 8-bit image, row-major with stride equal to Width.
// Frames are only valid for the duration of the callback they are passed to.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// Size returns the frame dimensions
func (f Frame) Size() image.Point {
	return image.Point{X: f.Width, Y: f.Height}
}

// Point is a sub-pixel position in frame-buffer coordinates
type Point struct {
	X float64
	Y float64
}

// Status is the per-point result of a tracking call
type Status uint8

const (
	Lost Status = iota
	Tracked
)

func (s Status) String() string {
	if s == Tracked {
		return "tracked"
	}
	return "lost"
}

// FlowParams are the Lucas-Kanade tuning constants passed with every call
type FlowParams struct {
	WindowSize    int     // Full side length of the search window in pixels
	MaxIterations int     // Iteration cap per pyramid level
	Epsilon       float64 // Convergence threshold on the per-iteration update
	MinEigenvalue float64 // Points whose gradient matrix falls below this are lost
}

// Pyramid is a backend-owned multi-level image. Level 0 is full resolution.
type Pyramid interface {
	Levels() int
	Size() image.Point
	// Invalidate marks the pyramid as holding no frame
	Invalidate()
	Close() error
}

// Backend is the optical-flow implementation used by the tracker
type Backend interface {
	// NewPyramid allocates a pyramid for frames of the given size
	NewPyramid(width, height, levels int) (Pyramid, error)
	// LoadBase copies frame into level 0 of p
	LoadBase(p Pyramid, frame Frame) error
	// EqualizeBase applies histogram equalization to level 0 in place
	EqualizeBase(p Pyramid)
	// BuildLevels fills levels 1..n-1 from level 0
	BuildLevels(p Pyramid)
	// TrackPoints follows prevPts from prev to curr, writing the new
	// positions into currPts and one Status per point into status.
	TrackPoints(prev, curr Pyramid, prevPts, currPts []Point, status []Status, params FlowParams)
}
