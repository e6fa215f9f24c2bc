package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"flowlock/events"

	"gocv.io/x/gocv"
)

// debugMsgFunc is a function that will be set by main package to use unified logging
var debugMsgFunc func(component, message string, sessionID ...string)

// SetDebugFunction allows main package to provide the debug logger
func SetDebugFunction(fn func(component, message string, sessionID ...string)) {
	debugMsgFunc = fn
}

// debugMsg is a wrapper that handles nil checks
func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
		return
	}
	fmt.Printf("[%s][%s] %s\n", time.Now().Format("15:04:05.000"), component, message)
}

// Tracker is the part of the tracking engine the crosshair reacts to
type Tracker interface {
	On(k events.Kind, h events.Handler)
	Disable()
}

// Crosshair follows the tracked point on the display surface. It shows on the
// first position, turns green on lock, and on loss hides itself and stops the
// tracker.
type Crosshair struct {
	tracker Tracker

	pos     image.Point
	visible bool
	locked  bool

	size      int
	thickness int
	lockColor color.RGBA
	seekColor color.RGBA
}

// NewCrosshair creates a crosshair and subscribes it to t
func NewCrosshair(t Tracker) *Crosshair {
	c := &Crosshair{
		tracker:   t,
		size:      20,
		thickness: 2,
		lockColor: color.RGBA{0, 255, 0, 255}, // Military green once locked
		seekColor: color.RGBA{255, 0, 0, 255}, // Red until the first lock
	}
	t.On(events.Points, c.onPoints)
	t.On(events.Locked, c.onLocked)
	t.On(events.Lost, c.onLost)
	return c
}

func (c *Crosshair) onPoints(e events.Event) {
	if len(e.Points) == 0 {
		return
	}
	c.pos = e.Points[0]
	c.visible = true
}

func (c *Crosshair) onLocked(events.Event) {
	c.locked = true
	debugMsg("CROSSHAIR", "Target acquired")
}

func (c *Crosshair) onLost(events.Event) {
	debugMsg("CROSSHAIR", "Target lost")
	c.locked = false
	c.visible = false
	c.tracker.Disable()
}

// Reset hides the crosshair, for use when a new point is selected
func (c *Crosshair) Reset() {
	c.visible = false
	c.locked = false
}

// Position returns the last reported display position and whether it is shown
func (c *Crosshair) Position() (image.Point, bool) {
	return c.pos, c.visible
}

// Locked reports whether the target is currently locked
func (c *Crosshair) Locked() bool {
	return c.locked
}

// Draw renders the crosshair onto img, which must be in display coordinates
func (c *Crosshair) Draw(img *gocv.Mat) {
	if !c.visible {
		return
	}
	col := c.seekColor
	if c.locked {
		col = c.lockColor
	}
	center := c.pos

	// Horizontal arms, leaving a gap over the target
	gap := c.size / 4
	gocv.Line(img, image.Pt(center.X-c.size, center.Y), image.Pt(center.X-gap, center.Y), col, c.thickness)
	gocv.Line(img, image.Pt(center.X+gap, center.Y), image.Pt(center.X+c.size, center.Y), col, c.thickness)

	// Vertical arms
	gocv.Line(img, image.Pt(center.X, center.Y-c.size), image.Pt(center.X, center.Y-gap), col, c.thickness)
	gocv.Line(img, image.Pt(center.X, center.Y+gap), image.Pt(center.X, center.Y+c.size), col, c.thickness)

	gocv.Circle(img, center, c.size, col, 1)
	gocv.Circle(img, center, 2, col, -1)
}

// DrawStatus writes the tracker mode in the lower-left corner
func DrawStatus(img *gocv.Mat, mode string, frames int64) {
	text := fmt.Sprintf("%s  frame %d", mode, frames)
	origin := image.Pt(20, img.Rows()-20)
	gocv.PutText(img, text, origin, gocv.FontHersheySimplex, 0.5, color.RGBA{0, 150, 255, 255}, 1)
}

// DrawTerminal draws lines in a translucent box in the top-left corner,
// newest last, truncated to fit.
func DrawTerminal(img *gocv.Mat, lines []string) {
	const (
		maxMessages = 12
		maxLineLen  = 90
		lineHeight  = 14
		x, y        = 20, 20
		width       = 560
	)
	if len(lines) > maxMessages {
		lines = lines[len(lines)-maxMessages:]
	}
	height := lineHeight*max(len(lines), 1) + 10

	roi := image.Rect(x, y, x+width, y+height).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if roi.Empty() {
		return
	}
	region := img.Region(roi)
	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), roi.Dy(), roi.Dx(), region.Type())
	gocv.AddWeighted(region, 0.3, black, 0.7, 0, &region)
	black.Close()
	region.Close()

	if len(lines) == 0 {
		gocv.PutText(img, "No messages yet...", image.Pt(x+10, y+lineHeight),
			gocv.FontHersheySimplex, 0.4, color.RGBA{128, 128, 128, 255}, 1)
		return
	}

	contentY := y + lineHeight
	for _, line := range lines {
		if len(line) > maxLineLen {
			line = line[:maxLineLen-3] + "..."
		}
		gocv.PutText(img, line, image.Pt(x+10, contentY),
			gocv.FontHersheySimplex, 0.35, color.RGBA{255, 255, 255, 255}, 1)
		contentY += lineHeight
	}
}
