// Package source feeds frames from cameras, video files, streams and image
// sequences to a tracker through one-shot callbacks.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"flowlock/vision"

	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Run when the reader has no more frames
var ErrEndOfStream = errors.New("source: end of stream")

// debugMsgFunc is set by the main package to use unified logging
var debugMsgFunc func(component, message string, sessionID ...string)

// SetDebugFunction allows the main package to provide the debug logger
func SetDebugFunction(fn func(component, message string, sessionID ...string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
		return
	}
	fmt.Printf("[%s][%s] %s\n", time.Now().Format("15:04:05.000"), component, message)
}

// oneShot holds at most one pending frame callback
type oneShot struct {
	pending func(vision.Frame)
}

// OnNextFrame registers cb for the next frame, replacing any pending callback
func (o *oneShot) OnNextFrame(cb func(vision.Frame)) {
	o.pending = cb
}

// deliver passes f to the pending callback, which is cleared before it runs
// so the callback may register again. It reports whether anyone was waiting.
func (o *oneShot) deliver(f vision.Frame) bool {
	cb := o.pending
	if cb == nil {
		return false
	}
	o.pending = nil
	cb(f)
	return true
}

// reader yields BGR frames
type reader interface {
	read(dst *gocv.Mat) bool
	Close() error
}

// Player reads frames and hands them, converted to grayscale at the tracker's
// frame size, to the registered callback. Frames arriving while no callback is
// pending are dropped.
type Player struct {
	oneShot

	// Tap, when set, receives every color frame after the tracker has seen it
	Tap func(img gocv.Mat)

	r      reader
	name   string
	size   image.Point
	gray   gocv.Mat
	scaled gocv.Mat

	frames    int64
	delivered int64
}

// Open picks a reader for input: a device index ("0"), a glob of image files
// ("frames/*.png") or anything VideoCapture can open (file path or stream URL).
func Open(input string, width, height int) (*Player, error) {
	var (
		r   reader
		err error
	)
	switch kindOf(input) {
	case inputDevice:
		id, _ := strconv.Atoi(input)
		r, err = openDevice(id)
	case inputImages:
		r, err = openImages(input)
	default:
		r, err = openFile(input)
	}
	if err != nil {
		return nil, err
	}
	return newPlayer(r, input, width, height), nil
}

func newPlayer(r reader, name string, width, height int) *Player {
	return &Player{
		r:      r,
		name:   name,
		size:   image.Pt(width, height),
		gray:   gocv.NewMat(),
		scaled: gocv.NewMat(),
	}
}

// Run reads frames until ctx is cancelled or the reader is exhausted. All
// callbacks, including Tap, run on the calling goroutine.
func (p *Player) Run(ctx context.Context) error {
	img := gocv.NewMat()
	defer img.Close()

	debugMsg("SOURCE", fmt.Sprintf("Reading from %s", p.name))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := p.r.read(&img); !ok {
			debugMsg("SOURCE", fmt.Sprintf("End of %s after %d frames (%d tracked)", p.name, p.frames, p.delivered))
			return ErrEndOfStream
		}
		if img.Empty() {
			continue
		}
		p.frames++

		if p.pending != nil {
			frame, err := p.toFrame(img)
			if err != nil {
				debugMsg("SOURCE", "Skipping frame: "+err.Error())
				continue
			}
			if p.deliver(frame) {
				p.delivered++
			}
		}
		if p.Tap != nil {
			p.Tap(img)
		}
	}
}

// toFrame converts a BGR or gray mat to a tracker frame. The returned pixels
// alias the player's scratch mat and are only valid until the next call.
func (p *Player) toFrame(img gocv.Mat) (vision.Frame, error) {
	switch img.Channels() {
	case 1:
		img.CopyTo(&p.gray)
	case 3:
		gocv.CvtColor(img, &p.gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(img, &p.gray, gocv.ColorBGRAToGray)
	default:
		return vision.Frame{}, fmt.Errorf("unsupported channel count %d", img.Channels())
	}

	gocv.Resize(p.gray, &p.scaled, p.size, 0, 0, gocv.InterpolationLinear)
	pix, err := p.scaled.DataPtrUint8()
	if err != nil {
		return vision.Frame{}, err
	}
	return vision.Frame{Width: p.size.X, Height: p.size.Y, Pix: pix}, nil
}

// Frames returns how many frames were read and how many went to the tracker
func (p *Player) Frames() (read, delivered int64) {
	return p.frames, p.delivered
}

// Close releases the reader and scratch mats
func (p *Player) Close() error {
	p.gray.Close()
	p.scaled.Close()
	return p.r.Close()
}

type inputKind int

const (
	inputFile inputKind = iota
	inputDevice
	inputImages
)

func kindOf(input string) inputKind {
	if _, err := strconv.Atoi(input); err == nil {
		return inputDevice
	}
	if strings.ContainsAny(input, "*?[") && !strings.Contains(input, "://") {
		return inputImages
	}
	return inputFile
}

// captureReader wraps a gocv.VideoCapture
type captureReader struct {
	vc *gocv.VideoCapture
}

func openDevice(id int) (*captureReader, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("source: open device %d: %w", id, err)
	}
	return &captureReader{vc: vc}, nil
}

func openFile(path string) (*captureReader, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	return &captureReader{vc: vc}, nil
}

func (c *captureReader) read(dst *gocv.Mat) bool { return c.vc.Read(dst) }
func (c *captureReader) Close() error            { return c.vc.Close() }

// imageReader plays a sorted list of image files
type imageReader struct {
	paths []string
	next  int
}

func openImages(pattern string) (*imageReader, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("source: bad pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("source: no images match %q", pattern)
	}
	sort.Strings(paths)
	return &imageReader{paths: paths}, nil
}

func (r *imageReader) read(dst *gocv.Mat) bool {
	for r.next < len(r.paths) {
		path := r.paths[r.next]
		r.next++
		img := gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			debugMsg("SOURCE", "Cannot decode "+path)
			continue
		}
		img.CopyTo(dst)
		img.Close()
		return true
	}
	return false
}

func (r *imageReader) Close() error { return nil }
