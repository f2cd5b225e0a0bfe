package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

// TransferEngine records one-shot command buffers on the graphics queue and
// waits for each to finish before returning.
type TransferEngine struct {
	device    gpu.Device
	allocator *Allocator
	pool      gpu.CommandPool
	queue     gpu.Queue
}

func NewTransferEngine(device gpu.Device, allocator *Allocator, pool gpu.CommandPool) *TransferEngine {
	return &TransferEngine{
		device:    device,
		allocator: allocator,
		pool:      pool,
		queue:     device.GraphicsQueue(),
	}
}

// BeginSingleTimeCommands allocates a command buffer and begins it for a
// single submission.
func (t *TransferEngine) BeginSingleTimeCommands() (gpu.CommandBuffer, error) {
	buffers, err := t.device.AllocateCommandBuffers(t.pool, 1)
	if err != nil {
		return 0, errors.Wrap(err, "allocate transfer command buffer")
	}

	buffer := buffers[0]
	if err = t.device.BeginCommandBuffer(buffer, core1_0.CommandBufferUsageOneTimeSubmit); err != nil {
		t.device.FreeCommandBuffers(t.pool, buffer)
		return 0, errors.Wrap(err, "begin transfer command buffer")
	}
	return buffer, nil
}

// EndSingleTimeCommands submits buffer, waits for the graphics queue to go
// idle and frees buffer.
func (t *TransferEngine) EndSingleTimeCommands(buffer gpu.CommandBuffer) error {
	defer t.device.FreeCommandBuffers(t.pool, buffer)

	if err := t.device.EndCommandBuffer(buffer); err != nil {
		return errors.Wrap(err, "end transfer command buffer")
	}

	err := t.device.QueueSubmit(t.queue, gpu.Submit{
		CommandBuffers: []gpu.CommandBuffer{buffer},
	}, 0)
	if err != nil {
		return errors.Wrap(err, "submit transfer")
	}

	return errors.Wrap(t.device.QueueWaitIdle(t.queue), "wait for transfer")
}

// Run records commands through record and blocks until the queue has
// executed them.
func (t *TransferEngine) Run(record func(cb gpu.CommandBuffer) error) error {
	buffer, err := t.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	if err = record(buffer); err != nil {
		t.device.FreeCommandBuffers(t.pool, buffer)
		return err
	}

	return t.EndSingleTimeCommands(buffer)
}

func (t *TransferEngine) CopyBuffer(src, dst gpu.Buffer, size int) error {
	return t.Run(func(cb gpu.CommandBuffer) error {
		return errors.Wrap(t.device.CmdCopyBuffer(cb, src, dst, size), "copy buffer")
	})
}

func (t *TransferEngine) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	return t.Run(func(cb gpu.CommandBuffer) error {
		err := t.device.CmdCopyBufferToImage(cb, src, dst, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.Extent3D{Width: width, Height: height, Depth: 1})
		return errors.Wrap(err, "copy buffer to image")
	})
}

type layoutTransition struct {
	from core1_0.ImageLayout
	to   core1_0.ImageLayout
}

type transitionMasks struct {
	srcAccess core1_0.AccessFlags
	dstAccess core1_0.AccessFlags
	srcStage  core1_0.PipelineStageFlags
	dstStage  core1_0.PipelineStageFlags
}

var layoutTransitions = map[layoutTransition]transitionMasks{
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal}: {
		srcAccess: 0,
		dstAccess: core1_0.AccessTransferWrite,
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: core1_0.AccessTransferWrite,
		dstAccess: core1_0.AccessShaderRead,
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageFragmentShader,
	},
}

// TransitionImageLayout moves a color image between layouts with a single
// pipeline barrier. Unsupported pairs fail before anything is recorded.
func (t *TransferEngine) TransitionImageLayout(image gpu.Image, from, to core1_0.ImageLayout) error {
	masks, ok := layoutTransitions[layoutTransition{from, to}]
	if !ok {
		return errors.Mark(
			errors.Newf("unsupported layout transition: %v -> %v", from, to),
			gpu.ErrUnsupportedLayoutTransition)
	}

	return t.Run(func(cb gpu.CommandBuffer) error {
		err := t.device.CmdPipelineBarrier(cb, masks.srcStage, masks.dstStage, gpu.ImageBarrier{
			Image:         image,
			OldLayout:     from,
			NewLayout:     to,
			SrcAccessMask: masks.srcAccess,
			DstAccessMask: masks.dstAccess,
			Aspect:        core1_0.ImageAspectColor,
		})
		return errors.Wrap(err, "record layout barrier")
	})
}

// stage copies data into a new host-visible transfer source buffer.
func (t *TransferEngine) stage(data []byte) (*BufferAllocation, error) {
	staging, err := t.allocator.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}

	if err = staging.Write(data); err != nil {
		staging.Release()
		return nil, err
	}
	return staging, nil
}

// UploadBuffer creates a device-local buffer with usage plus transfer
// destination and fills it with data through a staging buffer that is
// released before returning.
func (t *TransferEngine) UploadBuffer(data []byte, usage core1_0.BufferUsageFlags) (*BufferAllocation, error) {
	staging, err := t.stage(data)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	buffer, err := t.allocator.CreateBuffer(len(data), core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	if err = t.CopyBuffer(staging.Buffer, buffer.Buffer, len(data)); err != nil {
		buffer.Release()
		return nil, err
	}
	return buffer, nil
}
