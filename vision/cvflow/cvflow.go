// Package cvflow implements vision.Backend on top of OpenCV via gocv.
package cvflow

import (
	"errors"
	"fmt"
	"image"

	"flowlock/vision"

	"gocv.io/x/gocv"
)

var (
	// ErrForeignPyramid is returned when a pyramid from another backend is passed in
	ErrForeignPyramid = errors.New("cvflow: pyramid was not allocated by this backend")
	// ErrFrameSize is returned when a frame does not match the pyramid base
	ErrFrameSize = errors.New("cvflow: frame size does not match pyramid")
	// ErrPyramidClosed is returned when a released pyramid is loaded
	ErrPyramidClosed = errors.New("cvflow: pyramid is closed")
)

// pyramid holds one CV_8UC1 mat per level, each half the size of the one below
type pyramid struct {
	levels []gocv.Mat
	size   image.Point
	loaded bool
}

func (p *pyramid) Levels() int       { return len(p.levels) }
func (p *pyramid) Size() image.Point { return p.size }
func (p *pyramid) Invalidate()       { p.loaded = false }

func (p *pyramid) Close() error {
	var errs []error
	for i := range p.levels {
		if err := p.levels[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("level %d: %w", i, err))
		}
	}
	p.levels = nil
	p.loaded = false
	return errors.Join(errs...)
}

// Backend is a stateless gocv optical-flow backend
type Backend struct{}

// New returns a gocv backend
func New() *Backend {
	return &Backend{}
}

func asPyramid(p vision.Pyramid) (*pyramid, error) {
	cp, ok := p.(*pyramid)
	if !ok || cp == nil {
		return nil, ErrForeignPyramid
	}
	return cp, nil
}

// NewPyramid allocates all levels up front so steps never allocate mats
func (b *Backend) NewPyramid(width, height, levels int) (vision.Pyramid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cvflow: invalid pyramid size %dx%d", width, height)
	}
	if levels < 1 {
		return nil, fmt.Errorf("cvflow: pyramid needs at least one level, got %d", levels)
	}

	p := &pyramid{size: image.Pt(width, height)}
	w, h := width, height
	for i := 0; i < levels; i++ {
		p.levels = append(p.levels, gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1))
		// Same rounding PyrDown uses for its default output size
		w = (w + 1) / 2
		h = (h + 1) / 2
	}
	return p, nil
}

func (b *Backend) LoadBase(vp vision.Pyramid, frame vision.Frame) error {
	p, err := asPyramid(vp)
	if err != nil {
		return err
	}
	// A failed load must not leave an older frame looking current
	p.loaded = false
	if len(p.levels) == 0 {
		return ErrPyramidClosed
	}
	if frame.Size() != p.size {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize,
			frame.Width, frame.Height, p.size.X, p.size.Y)
	}
	if len(frame.Pix) < frame.Width*frame.Height {
		return fmt.Errorf("%w: %d samples for %dx%d", ErrFrameSize,
			len(frame.Pix), frame.Width, frame.Height)
	}

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC1, frame.Pix[:frame.Width*frame.Height])
	if err != nil {
		return fmt.Errorf("cvflow: wrap frame: %w", err)
	}
	defer src.Close()

	src.CopyTo(&p.levels[0])
	p.loaded = true
	return nil
}

func (b *Backend) EqualizeBase(vp vision.Pyramid) {
	p, err := asPyramid(vp)
	if err != nil || len(p.levels) == 0 {
		return
	}
	gocv.EqualizeHist(p.levels[0], &p.levels[0])
}

func (b *Backend) BuildLevels(vp vision.Pyramid) {
	p, err := asPyramid(vp)
	if err != nil {
		return
	}
	for i := 1; i < len(p.levels); i++ {
		gocv.PyrDown(p.levels[i-1], &p.levels[i], image.Point{}, gocv.BorderDefault)
	}
}

// TrackPoints runs Lucas-Kanade coarse to fine over the pyramid's own levels,
// seeding each finer level with the doubled estimate from the level above.
// The base level decides the status. Lost points keep their previous position
// so the next call searches from the last known location.
func (b *Backend) TrackPoints(vprev, vcurr vision.Pyramid, prevPts, currPts []vision.Point, status []vision.Status, params vision.FlowParams) {
	n := len(prevPts)
	if len(currPts) < n || len(status) < n {
		n = min(len(currPts), len(status))
	}

	prev, errPrev := asPyramid(vprev)
	curr, errCurr := asPyramid(vcurr)
	if errPrev != nil || errCurr != nil || !curr.loaded || len(prev.levels) != len(curr.levels) || len(curr.levels) == 0 {
		for i := 0; i < n; i++ {
			currPts[i] = prevPts[i]
			status[i] = vision.Lost
		}
		return
	}

	// Nothing to flow from yet. The point stays put and is confirmed on the
	// next frame.
	if !prev.loaded {
		for i := 0; i < n; i++ {
			currPts[i] = prevPts[i]
			status[i] = vision.Lost
		}
		return
	}

	top := len(prev.levels) - 1
	guess := make([]vision.Point, n)
	for i := 0; i < n; i++ {
		s := float64(int(1) << top)
		guess[i] = vision.Point{X: prevPts[i].X / s, Y: prevPts[i].Y / s}
	}

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, params.MaxIterations, params.Epsilon)
	win := image.Pt(params.WindowSize, params.WindowSize)

	for level := top; level >= 0; level-- {
		s := float64(int(1) << level)
		prevMat := pointsMat(prevPts[:n], 1/s)
		nextMat := pointsMat(guess, 1)
		st := gocv.NewMat()
		errMat := gocv.NewMat()

		gocv.CalcOpticalFlowPyrLKWithParams(prev.levels[level], curr.levels[level], prevMat, nextMat,
			&st, &errMat, win, 0, criteria, gocv.OptflowUseInitialFlow, params.MinEigenvalue)

		for i := 0; i < n; i++ {
			found := i < st.Rows() && st.GetUCharAt(i, 0) == 1
			est := vision.Point{
				X: float64(nextMat.GetFloatAt(i, 0)),
				Y: float64(nextMat.GetFloatAt(i, 1)),
			}
			if level > 0 {
				if !found {
					est = guess[i]
				}
				guess[i] = vision.Point{X: est.X * 2, Y: est.Y * 2}
				continue
			}
			if found {
				currPts[i] = est
				status[i] = vision.Tracked
			} else {
				currPts[i] = prevPts[i]
				status[i] = vision.Lost
			}
		}

		prevMat.Close()
		nextMat.Close()
		st.Close()
		errMat.Close()
	}
}

// pointsMat packs points into an Nx1 CV_32FC2 mat, scaling each coordinate
func pointsMat(pts []vision.Point, scale float64) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	for i, p := range pts {
		m.SetFloatAt(i, 0, float32(p.X*scale))
		m.SetFloatAt(i, 1, float32(p.Y*scale))
	}
	return m
}
