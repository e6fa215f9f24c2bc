package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"flowlock/config"
	"flowlock/events"
	"flowlock/overlay"
	"flowlock/source"
	"flowlock/tracking"
	"flowlock/vision/cvflow"

	"gocv.io/x/gocv"
)

const windowName = "flowlock"

// runTracking plays cfg.Input through a tracking engine until the input ends,
// the stop event fires, the user quits the window or a signal arrives.
func runTracking(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	player, err := source.Open(cfg.Input, tracking.FrameWidth, tracking.FrameHeight)
	if err != nil {
		return err
	}
	defer player.Close()

	engine := tracking.NewEngine(cvflow.New(), tracking.FixedSurface(cfg.DisplaySize()))
	defer engine.Close()
	engine.BindSource(player)

	crosshair := overlay.NewCrosshair(engine)

	engine.On(events.Points, func(e events.Event) {
		if len(e.Points) > 0 {
			debugMsgVerbose("TRACKER", fmt.Sprintf("Position (%d,%d)", e.Points[0].X, e.Points[0].Y), engine.State().Session)
		}
	})
	if cfg.StopOn != "" {
		kind, err := events.ParseKind(cfg.StopOn)
		if err != nil {
			return err
		}
		engine.On(kind, func(events.Event) {
			debugMsg("INFO", fmt.Sprintf("Stopping on %s event", kind))
			cancel()
		})
	}

	v, err := newViewer(cfg, engine, crosshair, player, cancel)
	if err != nil {
		return err
	}
	defer v.Close()
	player.Tap = v.show

	if p := cfg.Point; p != nil {
		if err := engine.SelectPoint(p.X, p.Y); err != nil {
			return fmt.Errorf("failed to select initial point: %w", err)
		}
	}

	err = player.Run(ctx)
	read, delivered := player.Frames()
	debugMsg("INFO", fmt.Sprintf("Processed %d frames, %d tracked, final mode %s", read, delivered, engine.Mode()))

	if errors.Is(err, source.ErrEndOfStream) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tracker is the part of the engine the viewer drives from the keyboard
type tracker interface {
	SelectPoint(x, y int) error
	Enable() error
	Disable()
	State() tracking.State
	Mode() tracking.Mode
}

// viewer renders each source frame at display size with the overlays and
// hands it to the output file and preview window.
type viewer struct {
	cfg       *config.Config
	tracker   tracker
	crosshair *overlay.Crosshair
	counter   interface{ Frames() (int64, int64) }
	quit      context.CancelFunc

	size    image.Point
	canvas  gocv.Mat
	bgr     gocv.Mat
	writer  *gocv.VideoWriter
	window  *gocv.Window
	history func() []string
}

func newViewer(cfg *config.Config, t tracker, c *overlay.Crosshair, counter interface{ Frames() (int64, int64) }, quit context.CancelFunc) (*viewer, error) {
	v := &viewer{
		cfg:       cfg,
		tracker:   t,
		crosshair: c,
		counter:   counter,
		quit:      quit,
		size:      cfg.DisplaySize(),
		canvas:    gocv.NewMat(),
		bgr:       gocv.NewMat(),
		history:   func() []string { return nil },
	}
	if globalDebugLogger != nil {
		v.history = globalDebugLogger.History
	}

	if cfg.Output != "" {
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				v.Close()
				return nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		w, err := gocv.VideoWriterFile(cfg.Output, codecFor(cfg.Output), cfg.FPS, v.size.X, v.size.Y, true)
		if err != nil {
			v.Close()
			return nil, fmt.Errorf("failed to open output %s: %w", cfg.Output, err)
		}
		v.writer = w
		debugMsg("INFO", fmt.Sprintf("Writing %dx%d video to %s", v.size.X, v.size.Y, cfg.Output))
	}
	if cfg.Window {
		v.window = gocv.NewWindow(windowName)
	}
	return v, nil
}

// codecFor picks a fourcc from the output file extension
func codecFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return "mp4v"
	default:
		return "MJPG"
	}
}

// show is the source tap. It runs after the tracker has processed img.
func (v *viewer) show(img gocv.Mat) {
	if v.writer == nil && v.window == nil {
		return
	}

	src := img
	if img.Channels() == 1 {
		gocv.CvtColor(img, &v.bgr, gocv.ColorGrayToBGR)
		src = v.bgr
	}
	gocv.Resize(src, &v.canvas, v.size, 0, 0, gocv.InterpolationLinear)

	v.crosshair.Draw(&v.canvas)
	if v.cfg.StatusOverlay {
		read, _ := v.counter.Frames()
		overlay.DrawStatus(&v.canvas, v.tracker.Mode().String(), read)
	}
	if v.cfg.TerminalOverlay {
		overlay.DrawTerminal(&v.canvas, v.history())
	}

	if v.writer != nil {
		if err := v.writer.Write(v.canvas); err != nil {
			debugMsg("ERROR", fmt.Sprintf("Failed to write frame: %v", err))
		}
	}
	if v.window != nil {
		v.window.IMShow(v.canvas)
		v.handleKey(v.window.WaitKey(1))
	}
}

// handleKey applies a preview-window key press
func (v *viewer) handleKey(key int) {
	switch key {
	case 'q', 27:
		debugMsg("INFO", "Quit requested")
		v.quit()
	case 's':
		v.selectFromWindow()
	case 'd':
		if v.tracker.State().Enabled {
			v.tracker.Disable()
			return
		}
		if err := v.tracker.Enable(); err != nil {
			debugMsg("ERROR", fmt.Sprintf("Failed to enable tracking: %v", err))
		}
	}
}

// selectFromWindow lets the user drag a box over the paused frame and tracks
// its center
func (v *viewer) selectFromWindow() {
	rect := v.window.SelectROI(v.canvas)
	if rect.Empty() {
		debugMsg("INFO", "Selection cancelled")
		return
	}
	v.selectAt(rect)
}

func (v *viewer) selectAt(rect image.Rectangle) {
	center := image.Pt((rect.Min.X+rect.Max.X)/2, (rect.Min.Y+rect.Max.Y)/2)
	v.crosshair.Reset()
	if err := v.tracker.SelectPoint(center.X, center.Y); err != nil {
		debugMsg("ERROR", fmt.Sprintf("Failed to select point: %v", err))
	}
}

// Close releases the writer, window and scratch mats
func (v *viewer) Close() error {
	var err error
	if v.writer != nil {
		err = v.writer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
	v.canvas.Close()
	v.bgr.Close()
	return err
}
