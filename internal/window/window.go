// Package window is the SDL2 windowing layer: it owns the native window,
// pumps events and reports resizes to the renderer.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
)

const idleDelayMillis = 16

type Window struct {
	window    *sdl.Window
	resized   bool
	minimized bool
}

// Open initializes SDL video and creates a resizable Vulkan-capable window.
// It must be called from the thread that will pump events.
func Open(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{window: window}, nil
}

// SDL exposes the native window for surface creation.
func (w *Window) SDL() *sdl.Window {
	return w.window
}

func (w *Window) DrawableSize() (int, int) {
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

// Resized reports whether the window changed size since ClearResized.
func (w *Window) Resized() bool {
	return w.resized
}

func (w *Window) ClearResized() {
	w.resized = false
}

func (w *Window) Minimized() bool {
	return w.minimized
}

// PollEvents drains the SDL event queue and reports whether the user asked
// to quit.
func (w *Window) PollEvents() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return true
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_MINIMIZED:
				w.minimized = true
			case sdl.WINDOWEVENT_RESTORED:
				w.minimized = false
				w.resized = true
			case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
				w.resized = true
			}
		}
	}
	return false
}

// Idle sleeps briefly; the loop calls it while there is nothing to present.
func (w *Window) Idle() {
	sdl.Delay(idleDelayMillis)
}

func (w *Window) Close() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
