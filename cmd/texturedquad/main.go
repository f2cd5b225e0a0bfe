// Command texturedquad opens a window and draws a spinning textured quad
// with Vulkan until the window is closed.
//
// Assets are read relative to -assets (default: the working directory):
// shaders/vert.spv, shaders/frag.spv and textures/texture.jpg. The shaders
// are not checked in; compile them with glslc from the Vulkan SDK, then
// supply any JPEG or PNG as the texture:
//
//	go generate ./cmd/texturedquad
//	mkdir -p textures && cp ~/Pictures/photo.jpg textures/texture.jpg
//	go run ./cmd/texturedquad
//
// To run from elsewhere, point -assets at the checkout:
//
//	texturedquad -assets /path/to/texturedquad -validation=false
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/texturedquad/internal/assets"
	"github.com/vkngwrapper/texturedquad/internal/camera"
	"github.com/vkngwrapper/texturedquad/internal/config"
	"github.com/vkngwrapper/texturedquad/internal/gpu/vkng"
	"github.com/vkngwrapper/texturedquad/internal/logging"
	"github.com/vkngwrapper/texturedquad/internal/renderer"
	"github.com/vkngwrapper/texturedquad/internal/window"
)

//go:generate glslc ../../shaders/shader.vert -o ../../shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../shaders/frag.spv

func run(cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", cfg.LogLevel)
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	set, err := assets.LoadSet(context.Background(), os.DirFS(cfg.AssetRoot), assets.Paths{
		VertexShader:   cfg.VertexShader,
		FragmentShader: cfg.FragmentShader,
		Texture:        cfg.Texture,
	})
	if err != nil {
		return err
	}

	win, err := window.Open(cfg.Title, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer win.Close()

	instance, err := vkng.NewInstance(win.SDL(), vkng.InstanceOptions{
		ApplicationName: cfg.Title,
		Validation:      cfg.Validation,
	})
	if err != nil {
		return err
	}

	r, err := renderer.New(instance, win, camera.Default(), set, renderer.Options{
		MaxFramesInFlight:    cfg.MaxFramesInFlight,
		AcquireTimeout:       cfg.AcquireTimeout,
		SpinDegreesPerSecond: cfg.SpinDegreesPerSecond,
	})
	if err != nil {
		return err
	}

	err = mainLoop(win, r)
	return errors.CombineErrors(err, r.Close())
}

func mainLoop(win *window.Window, r *renderer.Renderer) error {
	for !win.PollEvents() {
		if win.Minimized() {
			win.Idle()
			continue
		}

		if err := r.DrawFrame(); err != nil {
			return err
		}
	}

	logging.Logger().Info("window closed", "frames", r.Frame(), "rebuilds", r.Rebuilds())
	return nil
}

func main() {
	// SDL and the presentation engine expect calls from the main thread.
	runtime.LockOSThread()

	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	if err = run(cfg); err != nil {
		log.Fatalf("%+v\n", err)
	}
}
