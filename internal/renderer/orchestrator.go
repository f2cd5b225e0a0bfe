package renderer

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

type FrameState int

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameRecording
	FrameSubmitted
	FramePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameAcquiring:
		return "acquiring"
	case FrameRecording:
		return "recording"
	case FrameSubmitted:
		return "submitted"
	case FramePresenting:
		return "presenting"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

var clearColor = [4]float32{0, 0, 0, 1}

// Orchestrator drives one frame per DrawFrame call and rebuilds the chain
// whenever the surface goes stale.
type Orchestrator struct {
	device   gpu.Device
	window   Window
	camera   Camera
	chain    *Chain
	pipeline *Pipeline
	geometry *Geometry
	frames   *FrameRing

	acquireTimeout   time.Duration
	degreesPerSecond float64
	elapsed          func() time.Duration
	onState          func(FrameState)

	frame    uint64
	state    FrameState
	stale    bool
	rebuilds int
}

type OrchestratorOptions struct {
	AcquireTimeout       time.Duration
	SpinDegreesPerSecond float64
	// Elapsed reports time since rendering started. It drives the model
	// rotation.
	Elapsed func() time.Duration
	// OnState, when set, is called on every frame state change.
	OnState func(FrameState)
}

func NewOrchestrator(device gpu.Device, window Window, camera Camera, chain *Chain, pipeline *Pipeline, geometry *Geometry, frames *FrameRing, opts OrchestratorOptions) *Orchestrator {
	elapsed := opts.Elapsed
	if elapsed == nil {
		elapsed = func() time.Duration { return 0 }
	}

	return &Orchestrator{
		device:           device,
		window:           window,
		camera:           camera,
		chain:            chain,
		pipeline:         pipeline,
		geometry:         geometry,
		frames:           frames,
		acquireTimeout:   opts.AcquireTimeout,
		degreesPerSecond: opts.SpinDegreesPerSecond,
		elapsed:          elapsed,
		onState:          opts.OnState,
	}
}

// State is the stage DrawFrame is in. Every state but idle is transient
// within a single DrawFrame call.
func (o *Orchestrator) State() FrameState {
	return o.state
}

func (o *Orchestrator) setState(s FrameState) {
	if s == o.state {
		return
	}
	o.state = s
	if o.onState != nil {
		o.onState(s)
	}
}

// Frame is the number of frames submitted and presented so far.
func (o *Orchestrator) Frame() uint64 {
	return o.frame
}

func (o *Orchestrator) Rebuilds() int {
	return o.rebuilds
}

// DrawFrame renders and presents one frame. A stale surface rebuilds the
// chain and returns nil, possibly without drawing. Any error is fatal.
func (o *Orchestrator) DrawFrame() error {
	defer o.setState(FrameIdle)

	width, height := o.window.DrawableSize()
	if width == 0 || height == 0 {
		return nil
	}

	if o.stale || o.window.Resized() {
		o.window.ClearResized()
		if err := o.rebuild("resize"); err != nil {
			return err
		}
	}

	slot := o.frames.Slot(o.frame)

	o.setState(FrameAcquiring)
	if err := o.device.WaitForFence(slot.InFlight); err != nil {
		return errors.Wrapf(err, "wait for frame slot %d", slot.Index)
	}

	imageIndex, err := o.acquire(slot)
	if errors.Is(err, gpu.ErrPresentationStale) {
		logging.Logger().Debug("acquire reported stale surface", "error", err)
		return o.rebuild("acquire")
	} else if err != nil {
		return err
	}

	o.setState(FrameRecording)
	if err = slot.WriteUniform(o.uniforms()); err != nil {
		return errors.Wrap(err, "write uniform buffer")
	}

	if err = o.device.ResetFence(slot.InFlight); err != nil {
		return errors.Wrap(err, "reset in-flight fence")
	}
	if err = o.device.ResetCommandBuffer(slot.CommandBuffer); err != nil {
		return errors.Wrap(err, "reset command buffer")
	}
	if err = o.record(slot, imageIndex); err != nil {
		return err
	}

	err = o.device.QueueSubmit(o.device.GraphicsQueue(), gpu.Submit{
		WaitSemaphores:   []gpu.Semaphore{slot.ImageAvailable},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{slot.CommandBuffer},
		SignalSemaphores: []gpu.Semaphore{slot.RenderFinished},
	}, slot.InFlight)
	if err != nil {
		return errors.Wrap(err, "submit draw command buffer")
	}
	o.setState(FrameSubmitted)

	o.setState(FramePresenting)
	status, err := o.device.QueuePresent(o.device.PresentQueue(), o.chain.Swapchain, imageIndex, slot.RenderFinished)
	if err != nil {
		return errors.Wrap(err, "present")
	}

	o.frame++

	if status == gpu.SurfaceOutOfDate || status == gpu.SurfaceSuboptimal || o.window.Resized() {
		o.window.ClearResized()
		return o.rebuild("present: " + status.String())
	}

	return nil
}

// acquire returns ErrPresentationStale when the chain must be rebuilt before
// the frame can proceed.
func (o *Orchestrator) acquire(slot *FrameSlot) (int, error) {
	imageIndex, status, err := o.device.AcquireNextImage(o.chain.Swapchain, o.acquireTimeout, slot.ImageAvailable)
	if err != nil {
		return 0, errors.Wrap(err, "acquire next image")
	}

	switch status {
	case gpu.SurfaceOutOfDate, gpu.SurfaceTimeout:
		return 0, errors.Mark(errors.Newf("acquire: surface %s", status), gpu.ErrPresentationStale)
	}

	if imageIndex < 0 || imageIndex >= len(o.chain.Framebuffers) {
		return 0, errors.Newf("acquired image %d outside chain of %d", imageIndex, len(o.chain.Framebuffers))
	}
	return imageIndex, nil
}

func (o *Orchestrator) uniforms() *UniformBufferObject {
	return &UniformBufferObject{
		Model: ModelMatrix(o.elapsed(), o.degreesPerSecond),
		View:  o.camera.ViewMatrix(),
		Proj:  Projection(o.chain.Extent),
	}
}

func (o *Orchestrator) record(slot *FrameSlot, imageIndex int) error {
	cb := slot.CommandBuffer

	if err := o.device.BeginCommandBuffer(cb, 0); err != nil {
		return errors.Wrap(err, "begin draw command buffer")
	}

	err := o.device.CmdBeginRenderPass(cb, gpu.RenderPassBegin{
		RenderPass:  o.pipeline.RenderPass,
		Framebuffer: o.chain.Framebuffers[imageIndex],
		Extent:      o.chain.Extent,
		ClearColor:  clearColor,
	})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	o.device.CmdBindPipeline(cb, o.pipeline.Pipeline)

	extent := o.chain.Extent
	o.device.CmdSetViewport(cb, core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	o.device.CmdSetScissor(cb, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})

	o.geometry.Bind(o.device, cb)
	o.device.CmdBindDescriptorSet(cb, o.pipeline.Layout, slot.DescriptorSet)
	o.device.CmdDrawIndexed(cb, o.geometry.IndexCount)

	o.device.CmdEndRenderPass(cb)

	return errors.Wrap(o.device.EndCommandBuffer(cb), "end draw command buffer")
}

// rebuild waits for the device to go idle and replaces the chain. While the
// window has no area the rebuild is deferred to the next frame that does.
func (o *Orchestrator) rebuild(reason string) error {
	width, height := o.window.DrawableSize()
	if width == 0 || height == 0 {
		o.stale = true
		return nil
	}

	if err := o.device.DeviceWaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle before rebuild")
	}

	oldFormat := o.chain.Format
	if err := o.chain.Rebuild(); err != nil {
		return errors.Wrap(err, "rebuild swapchain")
	}
	o.stale = false
	o.rebuilds++

	if o.chain.Format != oldFormat {
		logging.Logger().Warn("surface format changed across rebuild",
			"old", oldFormat.Format,
			"new", o.chain.Format.Format)
	}
	logging.Logger().Debug("swapchain rebuilt",
		"reason", reason,
		"rebuilds", o.rebuilds,
		"width", o.chain.Extent.Width,
		"height", o.chain.Extent.Height)
	return nil
}
