package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

// FrameSlot is everything one in-flight frame owns. A slot is reused only
// after its InFlight fence has signaled.
type FrameSlot struct {
	Index          int
	CommandBuffer  gpu.CommandBuffer
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
	Uniform        *BufferAllocation
	DescriptorSet  gpu.DescriptorSet

	uniformMapping []byte
}

// WriteUniform copies ubo into the slot's persistently mapped uniform
// buffer.
func (s *FrameSlot) WriteUniform(ubo *UniformBufferObject) error {
	data, err := encode(ubo)
	if err != nil {
		return err
	}
	copy(s.uniformMapping, data)
	return nil
}

// FrameRing is a fixed ring of frame slots addressed by frame counter.
type FrameRing struct {
	device         gpu.Device
	pool           gpu.CommandPool
	descriptorPool gpu.DescriptorPool
	slots          []*FrameSlot
}

// NewFrameRing allocates count slots from pool. Fences start signaled so
// the first wait on each slot returns at once.
func NewFrameRing(device gpu.Device, allocator *Allocator, pool gpu.CommandPool, layout gpu.DescriptorSetLayout, count int) (*FrameRing, error) {
	if count < 1 {
		return nil, errors.Newf("frame ring needs at least one slot, got %d", count)
	}

	ring := &FrameRing{device: device, pool: pool}
	if err := ring.create(allocator, layout, count); err != nil {
		ring.Destroy()
		return nil, err
	}
	return ring, nil
}

func (r *FrameRing) create(allocator *Allocator, layout gpu.DescriptorSetLayout, count int) error {
	commandBuffers, err := r.device.AllocateCommandBuffers(r.pool, count)
	if err != nil {
		return errors.Wrap(err, "allocate frame command buffers")
	}

	for i := 0; i < count; i++ {
		r.slots = append(r.slots, &FrameSlot{Index: i, CommandBuffer: commandBuffers[i]})
	}

	r.descriptorPool, err = r.device.CreateDescriptorPool(core1_0.DescriptorPoolCreateInfo{
		MaxSets: count,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: count,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}

	layouts := make([]gpu.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}
	sets, err := r.device.AllocateDescriptorSets(r.descriptorPool, layouts...)
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	for i, slot := range r.slots {
		slot.DescriptorSet = sets[i]

		slot.Uniform, err = allocator.CreateBuffer(uniformBufferSize, core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return errors.Wrapf(err, "create uniform buffer %d", i)
		}

		slot.uniformMapping, err = slot.Uniform.Map()
		if err != nil {
			return err
		}

		err = r.device.WriteUniformDescriptor(slot.DescriptorSet, 0, slot.Uniform.Buffer, 0, uniformBufferSize)
		if err != nil {
			return errors.Wrapf(err, "write descriptor set %d", i)
		}

		if slot.ImageAvailable, err = r.device.CreateSemaphore(); err != nil {
			return errors.Wrap(err, "create image available semaphore")
		}
		if slot.RenderFinished, err = r.device.CreateSemaphore(); err != nil {
			return errors.Wrap(err, "create render finished semaphore")
		}
		if slot.InFlight, err = r.device.CreateFence(true); err != nil {
			return errors.Wrap(err, "create in-flight fence")
		}
	}

	return nil
}

func (r *FrameRing) Len() int {
	return len(r.slots)
}

// Slot returns the slot for frame counter n.
func (r *FrameRing) Slot(n uint64) *FrameSlot {
	return r.slots[n%uint64(len(r.slots))]
}

// Destroy releases every slot object. Callers must wait for the device to
// go idle first.
func (r *FrameRing) Destroy() {
	var commandBuffers []gpu.CommandBuffer

	for _, slot := range r.slots {
		if slot.InFlight != 0 {
			r.device.DestroyFence(slot.InFlight)
		}
		if slot.RenderFinished != 0 {
			r.device.DestroySemaphore(slot.RenderFinished)
		}
		if slot.ImageAvailable != 0 {
			r.device.DestroySemaphore(slot.ImageAvailable)
		}
		slot.Uniform.Release()
		slot.uniformMapping = nil
		if slot.CommandBuffer != 0 {
			commandBuffers = append(commandBuffers, slot.CommandBuffer)
		}
	}

	if r.descriptorPool != 0 {
		r.device.DestroyDescriptorPool(r.descriptorPool)
		r.descriptorPool = 0
	}
	if len(commandBuffers) > 0 {
		r.device.FreeCommandBuffers(r.pool, commandBuffers...)
	}
	r.slots = nil
}
