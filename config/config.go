// Package config loads the settings for a tracking run from a YAML file.
// Tracking constants (frame size, flow parameters) are fixed in the tracking
// package and are not configurable here.
package config

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"flowlock/events"

	"gopkg.in/yaml.v3"
)

const maxFileSize = 1 << 20

// Point is a display-surface position
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Size is a display-surface size
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config describes one tracking run
type Config struct {
	Input           string  `yaml:"input"`            // Device index, video path, stream URL or image glob
	Display         Size    `yaml:"display"`          // Surface the point is selected and drawn on
	Point           *Point  `yaml:"point"`            // Initial selection, in display coordinates
	Output          string  `yaml:"output"`           // Annotated video file, empty to disable
	FPS             float64 `yaml:"fps"`              // Output frame rate
	Window          bool    `yaml:"window"`           // Show a preview window
	StatusOverlay   bool    `yaml:"status_overlay"`   // Draw tracker mode in the lower-left corner
	TerminalOverlay bool    `yaml:"terminal_overlay"` // Draw recent log lines in the upper-left corner
	StopOn          string  `yaml:"stop_on"`          // Event name that ends the run
	Debug           bool    `yaml:"debug"`
}

// Default returns the settings used when neither file nor flags override them
func Default() *Config {
	return &Config{
		Display: Size{Width: 1280, Height: 720},
		FPS:     30,
	}
}

// Load reads a YAML config on top of Default. Omitted fields keep their
// default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Validate checks the settings needed to start a run
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display size must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	}
	if p := c.Point; p != nil {
		if p.X < 0 || p.Y < 0 || p.X >= c.Display.Width || p.Y >= c.Display.Height {
			return fmt.Errorf("point (%d,%d) is outside the %dx%d display", p.X, p.Y, c.Display.Width, c.Display.Height)
		}
	}
	if c.Output != "" && c.FPS <= 0 {
		return fmt.Errorf("fps must be positive when writing output, got %g", c.FPS)
	}
	if c.StopOn != "" {
		if _, err := events.ParseKind(c.StopOn); err != nil {
			return fmt.Errorf("stop_on: %w", err)
		}
	}
	return nil
}

// DisplaySize returns the display surface as an image.Point
func (c *Config) DisplaySize() image.Point {
	return image.Pt(c.Display.Width, c.Display.Height)
}

// ParsePoint parses "x,y"
func ParsePoint(s string) (Point, error) {
	x, y, err := parsePair(s, ",")
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}

// ParseSize parses "WxH"
func ParseSize(s string) (Size, error) {
	w, h, err := parsePair(strings.ToLower(s), "x")
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size{Width: w, Height: h}, nil
}

func parsePair(s, sep string) (int, int, error) {
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, fmt.Errorf("expected two values separated by %q", sep)
	}
	first, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, err
	}
	second, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}
