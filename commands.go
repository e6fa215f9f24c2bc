package main

import (
	"flag"
	"fmt"

	"flowlock/config"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the flowlock CLI
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "flowlock",
		Short:        "flowlock - optical-flow point tracker",
		Long:         "Follow a single selected point through live or recorded video with pyramidal Lucas-Kanade optical flow.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog reads its settings from the standard flag set
			return flag.CommandLine.Parse(nil)
		},
	}

	// glog flags (-v, --logtostderr, --log_dir, ...)
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cmd.AddCommand(NewTrackCommand())
	return cmd
}

// trackOptions holds the track command flags
type trackOptions struct {
	configPath      string
	input           string
	point           string
	display         string
	output          string
	fps             float64
	window          bool
	statusOverlay   bool
	terminalOverlay bool
	stopOn          string
	debug           bool
}

// NewTrackCommand creates the track command
func NewTrackCommand() *cobra.Command {
	return newTrackCommand(&trackOptions{})
}

func newTrackCommand(opts *trackOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Track a point through a video source",
		Long: `Track a point through a camera, video file, stream URL or image sequence.

The point is given in display coordinates, on a surface of --display size that
the video is stretched onto. With --window, press s to select a new point, d to
toggle tracking and q or ESC to quit.`,
		Example: `  flowlock track --input 0 --window
  flowlock track --input clip.mp4 --point 1200,600 --output tracked.avi --stop-on lost
  flowlock track --input 'frames/*.png' --display 640x360 --point 320,180
  flowlock track --config run.yaml --terminal-overlay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Debug {
				flag.Set("v", "1")
			}
			installDebugLogger(NewDebugLogger(overlayHistory))
			return runTracking(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file; flags override its values")
	f.StringVarP(&opts.input, "input", "i", "", "device index, video file, stream URL or image glob")
	f.StringVarP(&opts.point, "point", "p", "", "initial point in display coordinates, as x,y")
	f.StringVar(&opts.display, "display", "1280x720", "display surface size, as WxH")
	f.StringVarP(&opts.output, "output", "o", "", "write the annotated video to this file")
	f.Float64Var(&opts.fps, "fps", 30, "frame rate of the output video")
	f.BoolVar(&opts.window, "window", false, "show a preview window")
	f.BoolVar(&opts.statusOverlay, "status-overlay", false, "draw tracker mode and frame count")
	f.BoolVar(&opts.terminalOverlay, "terminal-overlay", false, "draw recent log messages")
	f.StringVar(&opts.stopOn, "stop-on", "", "stop when this event fires (points, locked, lost, done)")
	f.BoolVar(&opts.debug, "debug", false, "log every reported position")

	return cmd
}

// resolveConfig loads the config file, if any, and applies explicitly set flags
func resolveConfig(cmd *cobra.Command, opts *trackOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input = opts.input
	}
	if flags.Changed("display") || opts.configPath == "" {
		size, err := config.ParseSize(opts.display)
		if err != nil {
			return nil, err
		}
		cfg.Display = size
	}
	if flags.Changed("point") {
		p, err := config.ParsePoint(opts.point)
		if err != nil {
			return nil, err
		}
		cfg.Point = &p
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("fps") {
		cfg.FPS = opts.fps
	}
	if flags.Changed("window") {
		cfg.Window = opts.window
	}
	if flags.Changed("status-overlay") {
		cfg.StatusOverlay = opts.statusOverlay
	}
	if flags.Changed("terminal-overlay") {
		cfg.TerminalOverlay = opts.terminalOverlay
	}
	if flags.Changed("stop-on") {
		cfg.StopOn = opts.stopOn
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
