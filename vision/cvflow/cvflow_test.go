package cvflow

import (
	"math"
	"testing"

	"flowlock/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = vision.FlowParams{
	WindowSize:    50,
	MaxIterations: 30,
	Epsilon:       0.01,
	MinEigenvalue: 0.001,
}

// texture renders a smooth non-repeating pattern shifted by (dx, dy)
func texture(width, height int, dx, dy float64) vision.Frame {
	pix := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx := float64(x) - dx
			fy := float64(y) - dy
			v := 128 +
				45*math.Sin(fx/9.0) +
				35*math.Cos(fy/11.0) +
				30*math.Sin((fx+fy)/17.0)*math.Cos(fy/23.0)
			pix[y*width+x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
	return vision.Frame{Width: width, Height: height, Pix: pix}
}

func newPair(t *testing.T, b *Backend) (vision.Pyramid, vision.Pyramid) {
	t.Helper()
	prev, err := b.NewPyramid(640, 360, 3)
	require.NoError(t, err)
	curr, err := b.NewPyramid(640, 360, 3)
	require.NoError(t, err)
	t.Cleanup(func() {
		prev.Close()
		curr.Close()
	})
	return prev, curr
}

func load(t *testing.T, b *Backend, p vision.Pyramid, f vision.Frame) {
	t.Helper()
	require.NoError(t, b.LoadBase(p, f))
	b.EqualizeBase(p)
	b.BuildLevels(p)
}

func TestNewPyramidLevelSizes(t *testing.T) {
	b := New()
	vp, err := b.NewPyramid(640, 360, 3)
	require.NoError(t, err)
	defer vp.Close()

	p := vp.(*pyramid)
	require.Equal(t, 3, p.Levels())
	assert.Equal(t, 640, p.levels[0].Cols())
	assert.Equal(t, 360, p.levels[0].Rows())
	assert.Equal(t, 320, p.levels[1].Cols())
	assert.Equal(t, 180, p.levels[1].Rows())
	assert.Equal(t, 160, p.levels[2].Cols())
	assert.Equal(t, 90, p.levels[2].Rows())
}

func TestNewPyramidRejectsBadSizes(t *testing.T) {
	b := New()
	_, err := b.NewPyramid(0, 360, 3)
	assert.Error(t, err)
	_, err = b.NewPyramid(640, 360, 0)
	assert.Error(t, err)
}

func TestLoadBaseRejectsMismatchedFrame(t *testing.T) {
	b := New()
	p, _ := newPair(t, b)

	err := b.LoadBase(p, texture(320, 180, 0, 0))
	assert.ErrorIs(t, err, ErrFrameSize)

	short := vision.Frame{Width: 640, Height: 360, Pix: make([]uint8, 10)}
	assert.ErrorIs(t, b.LoadBase(p, short), ErrFrameSize)
}

type otherPyramid struct{ vision.Pyramid }

func TestLoadBaseRejectsForeignPyramid(t *testing.T) {
	b := New()
	err := b.LoadBase(otherPyramid{}, texture(640, 360, 0, 0))
	assert.ErrorIs(t, err, ErrForeignPyramid)
}

func TestTrackPointsWaitsForPreviousFrame(t *testing.T) {
	b := New()
	prev, curr := newPair(t, b)
	load(t, b, curr, texture(640, 360, 0, 0))

	prevPts := []vision.Point{{X: 300, Y: 200}}
	currPts := make([]vision.Point, 1)
	status := make([]vision.Status, 1)
	b.TrackPoints(prev, curr, prevPts, currPts, status, testParams)

	assert.Equal(t, vision.Lost, status[0])
	assert.Equal(t, prevPts[0], currPts[0])
}

func TestTrackPointsFollowsShift(t *testing.T) {
	b := New()
	prev, curr := newPair(t, b)
	load(t, b, prev, texture(640, 360, 0, 0))
	load(t, b, curr, texture(640, 360, 3, 2))

	prevPts := []vision.Point{{X: 320, Y: 180}}
	currPts := make([]vision.Point, 1)
	status := make([]vision.Status, 1)
	b.TrackPoints(prev, curr, prevPts, currPts, status, testParams)

	require.Equal(t, vision.Tracked, status[0])
	assert.InDelta(t, 323, currPts[0].X, 1.0)
	assert.InDelta(t, 182, currPts[0].Y, 1.0)
}

func TestTrackPointsLosesFlatImage(t *testing.T) {
	b := New()
	prev, curr := newPair(t, b)
	flat := vision.Frame{Width: 640, Height: 360, Pix: make([]uint8, 640*360)}
	require.NoError(t, b.LoadBase(prev, flat))
	b.BuildLevels(prev)
	require.NoError(t, b.LoadBase(curr, flat))
	b.BuildLevels(curr)

	prevPts := []vision.Point{{X: 100, Y: 100}}
	currPts := []vision.Point{{X: 5, Y: 5}}
	status := make([]vision.Status, 1)
	b.TrackPoints(prev, curr, prevPts, currPts, status, testParams)

	assert.Equal(t, vision.Lost, status[0])
	assert.Equal(t, prevPts[0], currPts[0])
}

func TestInvalidateForgetsFrame(t *testing.T) {
	b := New()
	prev, curr := newPair(t, b)
	load(t, b, prev, texture(640, 360, 0, 0))
	load(t, b, curr, texture(640, 360, 40, 40))
	prev.Invalidate()

	prevPts := []vision.Point{{X: 320, Y: 180}}
	currPts := make([]vision.Point, 1)
	status := make([]vision.Status, 1)
	b.TrackPoints(prev, curr, prevPts, currPts, status, testParams)

	assert.Equal(t, vision.Lost, status[0])
	assert.Equal(t, prevPts[0], currPts[0])
}

func TestFailedLoadForgetsOlderFrame(t *testing.T) {
	b := New()
	prev, curr := newPair(t, b)
	load(t, b, prev, texture(640, 360, 0, 0))
	load(t, b, curr, texture(640, 360, 0, 0))

	// curr still holds the same texture, but the failed load must not count
	require.ErrorIs(t, b.LoadBase(curr, texture(320, 180, 0, 0)), ErrFrameSize)
	assert.False(t, curr.(*pyramid).loaded)

	prevPts := []vision.Point{{X: 320, Y: 180}}
	currPts := make([]vision.Point, 1)
	status := make([]vision.Status, 1)
	b.TrackPoints(prev, curr, prevPts, currPts, status, testParams)
	assert.Equal(t, vision.Lost, status[0])

	// Used as the previous pyramid on the next step, it is not flowed from either
	b.TrackPoints(curr, prev, prevPts, currPts, status, testParams)
	assert.Equal(t, vision.Lost, status[0])
}

func TestLoadBaseAfterClose(t *testing.T) {
	b := New()
	p, err := b.NewPyramid(640, 360, 3)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, b.LoadBase(p, texture(640, 360, 0, 0)), ErrPyramidClosed)
	assert.NotPanics(t, func() { b.EqualizeBase(p); b.BuildLevels(p) })
}
