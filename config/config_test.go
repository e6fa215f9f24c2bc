package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "run.yaml", `
input: clips/harbor.mp4
display:
  width: 1920
  height: 1080
point:
  x: 900
  y: 400
output: out.avi
terminal_overlay: true
stop_on: lost
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "clips/harbor.mp4", cfg.Input)
	assert.Equal(t, Size{Width: 1920, Height: 1080}, cfg.Display)
	require.NotNil(t, cfg.Point)
	assert.Equal(t, Point{X: 900, Y: 400}, *cfg.Point)
	assert.Equal(t, "out.avi", cfg.Output)
	assert.True(t, cfg.TerminalOverlay)
	assert.Equal(t, "lost", cfg.StopOn)
	assert.Equal(t, 30.0, cfg.FPS)
	require.NoError(t, cfg.Validate())
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	cfg, err := Load(writeFile(t, "run.yml", "input: \"0\"\n"))
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 1280, Height: 720}, cfg.Display)
	assert.Nil(t, cfg.Point)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "run.json", "{}"))
	assert.ErrorContains(t, err, "extension")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "stat")

	_, err = Load(writeFile(t, "bad.yaml", "display: [1, 2"))
	assert.ErrorContains(t, err, "parse")

	_, err = Load(writeFile(t, "big.yaml", "input: x\n"+strings.Repeat("#", maxFileSize)))
	assert.ErrorContains(t, err, "too large")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no input", func(c *Config) { c.Input = "" }, "input"},
		{"zero display", func(c *Config) { c.Display = Size{} }, "display size"},
		{"point outside", func(c *Config) { c.Point = &Point{X: 1280, Y: 10} }, "outside"},
		{"negative point", func(c *Config) { c.Point = &Point{X: -1, Y: 10} }, "outside"},
		{"output without fps", func(c *Config) { c.Output = "o.avi"; c.FPS = 0 }, "fps"},
		{"unknown stop event", func(c *Config) { c.StopOn = "moved" }, "stop_on"},
		{"stop on done", func(c *Config) { c.StopOn = "done" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Input = "0"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("1200, 600")
	require.NoError(t, err)
	assert.Equal(t, Point{X: 1200, Y: 600}, p)

	_, err = ParsePoint("1200")
	assert.Error(t, err)
	_, err = ParsePoint("a,b")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("1280X720")
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 1280, Height: 720}, s)

	_, err = ParseSize("1280,720")
	assert.Error(t, err)
}

func TestDisplaySize(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1280, cfg.DisplaySize().X)
	assert.Equal(t, 720, cfg.DisplaySize().Y)
}
