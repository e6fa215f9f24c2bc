package tracking

import (
	"image"
	"math"

	"flowlock/vision"
)

// toFrame maps a display-surface position into frame-buffer space.
// The surface must have a positive area.
func toFrame(display image.Point, surface image.Point) vision.Point {
	return vision.Point{
		X: float64(display.X) * FrameWidth / float64(surface.X),
		Y: float64(display.Y) * FrameHeight / float64(surface.Y),
	}
}

// toDisplay maps a frame-buffer position onto the display surface, rounded
// to whole pixels so sub-pixel jitter does not count as movement.
func toDisplay(p vision.Point, surface image.Point) image.Point {
	return image.Point{
		X: roundHalfUp(p.X * float64(surface.X) / FrameWidth),
		Y: roundHalfUp(p.Y * float64(surface.Y) / FrameHeight),
	}
}

// roundHalfUp rounds halves toward positive infinity, negative values included
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
