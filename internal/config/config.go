// Package config holds the runtime settings of the texturedquad binary.
package config

import (
	"flag"
	"io"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	DefaultMaxFramesInFlight = 2
	maxFramesInFlightLimit   = 8
)

type Config struct {
	Title  string
	Width  int
	Height int

	AssetRoot      string
	VertexShader   string
	FragmentShader string
	Texture        string

	Validation        bool
	MaxFramesInFlight int
	// AcquireTimeout bounds swapchain image acquisition; zero waits forever.
	AcquireTimeout time.Duration
	// SpinDegreesPerSecond rotates the model about +Z.
	SpinDegreesPerSecond float64
	LogLevel             string
}

func Default() Config {
	return Config{
		Title:             "Vulkan",
		Width:             800,
		Height:            600,
		AssetRoot:         ".",
		VertexShader:      "shaders/vert.spv",
		FragmentShader:    "shaders/frag.spv",
		Texture:           "textures/texture.jpg",
		Validation:        true,
		MaxFramesInFlight: DefaultMaxFramesInFlight,
		LogLevel:          "info",
	}
}

// Parse reads command line arguments (without the program name) on top of
// the defaults and validates the result.
func Parse(args []string, output io.Writer) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("texturedquad", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Title, "title", cfg.Title, "window title")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "initial window width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "initial window height")
	fs.StringVar(&cfg.AssetRoot, "assets", cfg.AssetRoot, "directory holding shaders/ and textures/")
	fs.BoolVar(&cfg.Validation, "validation", cfg.Validation, "enable VK_LAYER_KHRONOS_validation and the debug messenger")
	fs.IntVar(&cfg.MaxFramesInFlight, "frames-in-flight", cfg.MaxFramesInFlight, "number of frames the CPU may run ahead of the GPU")
	fs.DurationVar(&cfg.AcquireTimeout, "acquire-timeout", cfg.AcquireTimeout, "swapchain acquire timeout, 0 waits forever")
	fs.Float64Var(&cfg.SpinDegreesPerSecond, "spin", cfg.SpinDegreesPerSecond, "model rotation in degrees per second")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, errors.Errorf("unexpected arguments: %v", fs.Args())
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("window size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.MaxFramesInFlight < 1 || c.MaxFramesInFlight > maxFramesInFlightLimit {
		return errors.Errorf("frames in flight must be between 1 and %d, got %d", maxFramesInFlightLimit, c.MaxFramesInFlight)
	}
	if c.AcquireTimeout < 0 {
		return errors.Errorf("acquire timeout must not be negative, got %s", c.AcquireTimeout)
	}
	if c.VertexShader == "" || c.FragmentShader == "" || c.Texture == "" {
		return errors.New("asset paths must not be empty")
	}
	return nil
}
