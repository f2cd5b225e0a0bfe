// Package renderer draws a single textured quad through a gpu.Device: it
// selects the adapter, uploads the static resources once and then runs the
// per-frame acquire, record, submit and present loop, rebuilding the
// swapchain whenever the surface goes stale.
package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/assets"
	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

// Window is the windowing collaborator.
type Window interface {
	// DrawableSize is the surface size in pixels. Zero means minimized.
	DrawableSize() (width, height int)
	Resized() bool
	ClearResized()
}

// Camera is queried once per frame for the view matrix.
type Camera interface {
	ViewMatrix() mgl32.Mat4
}

const DefaultMaxFramesInFlight = 2

type Options struct {
	MaxFramesInFlight int
	// AcquireTimeout bounds each image acquire. Zero waits forever.
	AcquireTimeout       time.Duration
	SpinDegreesPerSecond float64

	// Vertices and Indices default to the unit quad.
	Vertices []Vertex
	Indices  []uint16

	// Elapsed defaults to a high resolution clock started by New.
	Elapsed func() time.Duration
	// OnState observes frame state changes.
	OnState func(FrameState)
}

// Renderer owns every GPU object the process creates, the instance
// included.
type Renderer struct {
	instance     gpu.Instance
	device       gpu.Device
	selection    Selection
	allocator    *Allocator
	commandPool  gpu.CommandPool
	transfer     *TransferEngine
	chain        *Chain
	pipeline     *Pipeline
	geometry     *Geometry
	texture      *Texture
	frames       *FrameRing
	orchestrator *Orchestrator

	closed bool
}

// New bootstraps the device and builds every resource the frame loop needs.
// It takes ownership of instance: on failure everything created so far,
// instance included, is destroyed and the error is marked ErrSetupFatal.
func New(instance gpu.Instance, window Window, camera Camera, set *assets.Set, opts Options) (*Renderer, error) {
	r := &Renderer{instance: instance}

	if err := r.setup(window, camera, set, opts); err != nil {
		r.Close()
		return nil, errors.Mark(err, gpu.ErrSetupFatal)
	}
	return r, nil
}

func (r *Renderer) setup(window Window, camera Camera, set *assets.Set, opts Options) error {
	if set == nil || set.Texture == nil {
		return errors.Mark(errors.New("asset set is incomplete"), gpu.ErrAssetLoad)
	}

	framesInFlight := opts.MaxFramesInFlight
	if framesInFlight == 0 {
		framesInFlight = DefaultMaxFramesInFlight
	}
	vertices, indices := opts.Vertices, opts.Indices
	if vertices == nil && indices == nil {
		vertices, indices = QuadVertices, QuadIndices
	}

	adapters, err := r.instance.Adapters()
	if err != nil {
		return errors.Wrap(err, "enumerate adapters")
	}

	r.selection, err = SelectAdapter(adapters, DeviceExtensions)
	if err != nil {
		return err
	}

	r.device, err = CreateDevice(r.instance, r.selection)
	if err != nil {
		return err
	}

	r.allocator = NewAllocator(r.device)

	r.commandPool, err = r.device.CreateCommandPool(*r.selection.Families.Graphics, core1_0.CommandPoolCreateResetBuffer)
	if err != nil {
		return gpu.SetupFailed(err, "create command pool")
	}
	r.transfer = NewTransferEngine(r.device, r.allocator, r.commandPool)

	r.chain, err = NewChain(r.device, window, r.selection.Families)
	if err != nil {
		return gpu.SetupFailed(err, "create presentation chain")
	}

	r.pipeline, err = BuildPipeline(r.device, r.chain.Format.Format, set.VertexShader, set.FragmentShader)
	if err != nil {
		return gpu.SetupFailed(err, "build pipeline")
	}

	if err = r.chain.AttachRenderPass(r.pipeline.RenderPass); err != nil {
		return gpu.SetupFailed(err, "create framebuffers")
	}

	r.geometry, err = UploadGeometry(r.transfer, vertices, indices)
	if err != nil {
		return gpu.SetupFailed(err, "upload geometry")
	}

	r.texture, err = UploadTexture(r.device, r.allocator, r.transfer, set.Texture)
	if err != nil {
		return gpu.SetupFailed(err, "upload texture")
	}

	r.frames, err = NewFrameRing(r.device, r.allocator, r.commandPool, r.pipeline.DescriptorSetLayout, framesInFlight)
	if err != nil {
		return gpu.SetupFailed(err, "create frame ring")
	}

	elapsed := opts.Elapsed
	if elapsed == nil {
		start := hrtime.Now()
		elapsed = func() time.Duration { return hrtime.Since(start) }
	}

	r.orchestrator = NewOrchestrator(r.device, window, camera, r.chain, r.pipeline, r.geometry, r.frames, OrchestratorOptions{
		AcquireTimeout:       opts.AcquireTimeout,
		SpinDegreesPerSecond: opts.SpinDegreesPerSecond,
		Elapsed:              elapsed,
		OnState:              opts.OnState,
	})

	logging.Logger().Info("renderer ready",
		"adapter", r.selection.Adapter.Name,
		"frames_in_flight", framesInFlight,
		"swapchain_images", len(r.chain.Images))
	return nil
}

func (r *Renderer) DrawFrame() error {
	if r.closed {
		return errors.New("renderer is closed")
	}
	return r.orchestrator.DrawFrame()
}

func (r *Renderer) Frame() uint64 {
	return r.orchestrator.Frame()
}

func (r *Renderer) State() FrameState {
	return r.orchestrator.State()
}

func (r *Renderer) Rebuilds() int {
	return r.orchestrator.Rebuilds()
}

func (r *Renderer) Selection() Selection {
	return r.selection
}

func (r *Renderer) Extent() core1_0.Extent2D {
	return r.chain.Extent
}

// Close waits for the device to go idle and destroys everything in reverse
// dependency order. It is safe to call more than once.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.device != nil {
		err = errors.Wrap(r.device.DeviceWaitIdle(), "wait for device idle before teardown")

		if r.chain != nil {
			r.chain.Destroy()
		}
		if r.pipeline != nil {
			r.pipeline.Destroy()
		}
		if r.frames != nil {
			r.frames.Destroy()
		}
		r.texture.Release()
		r.geometry.Release()
		if r.commandPool != 0 {
			r.device.DestroyCommandPool(r.commandPool)
		}
		r.device.Destroy()
	}

	if r.instance != nil {
		r.instance.Destroy()
	}

	logging.Logger().Info("renderer closed")
	return err
}
