package vkng

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

type deviceContext struct {
	physicalDevice   core1_0.PhysicalDevice
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface
	memoryTypes      []gpu.MemoryType
	graphicsFamily   int
	presentFamily    int
}

type descriptorSet struct {
	set  core1_0.DescriptorSet
	pool uint64
}

type swapchainImage struct {
	image     core1_0.Image
	swapchain uint64
}

type pooledCommandBuffer struct {
	buffer core1_0.CommandBuffer
	pool   uint64
}

// Device adapts a vkngwrapper device driver to gpu.Device. It is not safe
// for concurrent use; the renderer drives it from one goroutine.
type Device struct {
	driver             core1_0.CoreDeviceDriver
	swapchainExtension khr_swapchain.ExtensionDriver
	ctx                deviceContext

	graphicsQueue gpu.Queue
	presentQueue  gpu.Queue

	queues               handles[core1_0.Queue]
	buffers              handles[core1_0.Buffer]
	memories             handles[core1_0.DeviceMemory]
	images               handles[core1_0.Image]
	swapchainImages      handles[swapchainImage]
	imageViews           handles[core1_0.ImageView]
	commandPools         handles[core1_0.CommandPool]
	commandBuffers       handles[pooledCommandBuffer]
	semaphores           handles[core1_0.Semaphore]
	fences               handles[core1_0.Fence]
	shaderModules        handles[core1_0.ShaderModule]
	renderPasses         handles[core1_0.RenderPass]
	descriptorSetLayouts handles[core1_0.DescriptorSetLayout]
	descriptorPools      handles[core1_0.DescriptorPool]
	descriptorSets       handles[descriptorSet]
	pipelineLayouts      handles[core1_0.PipelineLayout]
	pipelines            handles[core1_0.Pipeline]
	framebuffers         handles[core1_0.Framebuffer]
	swapchains           handles[khr_swapchain.Swapchain]
}

var _ gpu.Device = (*Device)(nil)

func newDevice(driver core1_0.CoreDeviceDriver, ctx deviceContext) *Device {
	d := &Device{
		driver:               driver,
		swapchainExtension:   khr_swapchain.CreateExtensionDriverFromCoreDriver(driver),
		ctx:                  ctx,
		queues:               newHandles[core1_0.Queue](),
		buffers:              newHandles[core1_0.Buffer](),
		memories:             newHandles[core1_0.DeviceMemory](),
		images:               newHandles[core1_0.Image](),
		swapchainImages:      newHandles[swapchainImage](),
		imageViews:           newHandles[core1_0.ImageView](),
		commandPools:         newHandles[core1_0.CommandPool](),
		commandBuffers:       newHandles[pooledCommandBuffer](),
		semaphores:           newHandles[core1_0.Semaphore](),
		fences:               newHandles[core1_0.Fence](),
		shaderModules:        newHandles[core1_0.ShaderModule](),
		renderPasses:         newHandles[core1_0.RenderPass](),
		descriptorSetLayouts: newHandles[core1_0.DescriptorSetLayout](),
		descriptorPools:      newHandles[core1_0.DescriptorPool](),
		descriptorSets:       newHandles[descriptorSet](),
		pipelineLayouts:      newHandles[core1_0.PipelineLayout](),
		pipelines:            newHandles[core1_0.Pipeline](),
		framebuffers:         newHandles[core1_0.Framebuffer](),
		swapchains:           newHandles[khr_swapchain.Swapchain](),
	}

	d.graphicsQueue = gpu.Queue(d.queues.add(driver.GetQueue(ctx.graphicsFamily, 0)))
	if ctx.presentFamily == ctx.graphicsFamily {
		d.presentQueue = d.graphicsQueue
	} else {
		d.presentQueue = gpu.Queue(d.queues.add(driver.GetQueue(ctx.presentFamily, 0)))
	}
	return d
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphicsQueue }
func (d *Device) PresentQueue() gpu.Queue  { return d.presentQueue }

func (d *Device) MemoryTypes() []gpu.MemoryType {
	return d.ctx.memoryTypes
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	support, err := querySurfaceSupport(d.ctx.surfaceExtension, d.ctx.surface, d.ctx.physicalDevice)
	return support, errors.Wrap(err, "query surface support")
}

// swapchainImageBase tags image handles that belong to a swapchain.
const swapchainImageBase uint64 = 1 << 63

// image resolves either an owned image or one belonging to a swapchain.
func (d *Device) image(image gpu.Image) core1_0.Image {
	id := uint64(image)
	if id&swapchainImageBase != 0 {
		return d.swapchainImages.get(id &^ swapchainImageBase).image
	}
	return d.images.get(id)
}

func (d *Device) CreateBuffer(info core1_0.BufferCreateInfo) (gpu.Buffer, gpu.MemoryRequirements, error) {
	buffer, _, err := d.driver.CreateBuffer(nil, info)
	if err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}

	req := d.driver.GetBufferMemoryRequirements(buffer)
	return gpu.Buffer(d.buffers.add(buffer)), gpu.MemoryRequirements{
		Size:           req.Size,
		Alignment:      req.Alignment,
		MemoryTypeBits: req.MemoryTypeBits,
	}, nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	if b, ok := d.buffers.take(uint64(buffer)); ok {
		d.driver.DestroyBuffer(b, nil)
	}
}

func (d *Device) CreateImage(info core1_0.ImageCreateInfo) (gpu.Image, gpu.MemoryRequirements, error) {
	image, _, err := d.driver.CreateImage(nil, info)
	if err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}

	req := d.driver.GetImageMemoryRequirements(image)
	return gpu.Image(d.images.add(image)), gpu.MemoryRequirements{
		Size:           req.Size,
		Alignment:      req.Alignment,
		MemoryTypeBits: req.MemoryTypeBits,
	}, nil
}

func (d *Device) DestroyImage(image gpu.Image) {
	if i, ok := d.images.take(uint64(image)); ok {
		d.driver.DestroyImage(i, nil)
	}
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.DeviceMemory, error) {
	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return 0, err
	}
	return gpu.DeviceMemory(d.memories.add(memory)), nil
}

func (d *Device) FreeMemory(memory gpu.DeviceMemory) {
	if m, ok := d.memories.take(uint64(memory)); ok {
		d.driver.FreeMemory(m, nil)
	}
}

func (d *Device) BindBufferMemory(buffer gpu.Buffer, memory gpu.DeviceMemory) error {
	_, err := d.driver.BindBufferMemory(d.buffers.get(uint64(buffer)), d.memories.get(uint64(memory)), 0)
	return err
}

func (d *Device) BindImageMemory(image gpu.Image, memory gpu.DeviceMemory) error {
	_, err := d.driver.BindImageMemory(d.images.get(uint64(image)), d.memories.get(uint64(memory)), 0)
	return err
}

// MapMemory returns a slice aliasing the mapped range. It is valid until
// UnmapMemory.
func (d *Device) MapMemory(memory gpu.DeviceMemory, offset, size int) ([]byte, error) {
	ptr, _, err := d.driver.MapMemory(d.memories.get(uint64(memory)), offset, size, 0)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) UnmapMemory(memory gpu.DeviceMemory) {
	d.driver.UnmapMemory(d.memories.get(uint64(memory)))
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    d.image(desc.Image),
		ViewType: core1_0.ImageViewType2D,
		Format:   desc.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     desc.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return 0, err
	}
	return gpu.ImageView(d.imageViews.add(view)), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	if v, ok := d.imageViews.take(uint64(view)); ok {
		d.driver.DestroyImageView(v, nil)
	}
}

func (d *Device) CreateCommandPool(family int, flags core1_0.CommandPoolCreateFlags) (gpu.CommandPool, error) {
	pool, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            flags,
		QueueFamilyIndex: family,
	})
	if err != nil {
		return 0, err
	}
	return gpu.CommandPool(d.commandPools.add(pool)), nil
}

// DestroyCommandPool also forgets every command buffer allocated from it.
func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	p, ok := d.commandPools.take(uint64(pool))
	if !ok {
		return
	}
	for id, cb := range d.commandBuffers.objects {
		if cb.pool == uint64(pool) {
			delete(d.commandBuffers.objects, id)
		}
	}
	d.driver.DestroyCommandPool(p, nil)
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	buffers, _, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPools.get(uint64(pool)),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]gpu.CommandBuffer, len(buffers))
	for i, buffer := range buffers {
		ids[i] = gpu.CommandBuffer(d.commandBuffers.add(pooledCommandBuffer{buffer: buffer, pool: uint64(pool)}))
	}
	return ids, nil
}

func (d *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers ...gpu.CommandBuffer) {
	var freed []core1_0.CommandBuffer
	for _, handle := range buffers {
		if cb, ok := d.commandBuffers.take(uint64(handle)); ok {
			freed = append(freed, cb.buffer)
		}
	}
	if len(freed) > 0 {
		d.driver.FreeCommandBuffers(freed...)
	}
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer) core1_0.CommandBuffer {
	return d.commandBuffers.get(uint64(cb)).buffer
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, flags core1_0.CommandBufferUsageFlags) error {
	_, err := d.driver.BeginCommandBuffer(d.commandBuffer(cb), core1_0.CommandBufferBeginInfo{Flags: flags})
	return err
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	_, err := d.driver.EndCommandBuffer(d.commandBuffer(cb))
	return err
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	_, err := d.driver.ResetCommandBuffer(d.commandBuffer(cb), 0)
	return err
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size int) error {
	return d.driver.CmdCopyBuffer(d.commandBuffer(cb), d.buffers.get(uint64(src)), d.buffers.get(uint64(dst)),
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
}

func (d *Device) CmdCopyBufferToImage(cb gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout core1_0.ImageLayout, extent core1_0.Extent3D) error {
	return d.driver.CmdCopyBufferToImage(d.commandBuffer(cb), d.buffers.get(uint64(src)), d.image(dst), layout,
		core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: extent,
		},
	)
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...gpu.ImageBarrier) error {
	imageBarriers := make([]core1_0.ImageMemoryBarrier, len(barriers))
	for i, barrier := range barriers {
		imageBarriers[i] = core1_0.ImageMemoryBarrier{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               d.image(barrier.Image),
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     barrier.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: barrier.SrcAccessMask,
			DstAccessMask: barrier.DstAccessMask,
		}
	}
	return d.driver.CmdPipelineBarrier(d.commandBuffer(cb), srcStage, dstStage, 0, nil, nil, imageBarriers)
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) error {
	return d.driver.CmdBeginRenderPass(d.commandBuffer(cb), core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  d.renderPasses.get(uint64(begin.RenderPass)),
			Framebuffer: d.framebuffers.get(uint64(begin.Framebuffer)),
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: begin.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(begin.ClearColor),
			},
		})
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	d.driver.CmdEndRenderPass(d.commandBuffer(cb))
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, pipeline gpu.Pipeline) {
	d.driver.CmdBindPipeline(d.commandBuffer(cb), core1_0.PipelineBindPointGraphics, d.pipelines.get(uint64(pipeline)))
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, viewport core1_0.Viewport) {
	d.driver.CmdSetViewport(d.commandBuffer(cb), []core1_0.Viewport{viewport})
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, scissor core1_0.Rect2D) {
	d.driver.CmdSetScissor(d.commandBuffer(cb), []core1_0.Rect2D{scissor})
}

func (d *Device) CmdBindVertexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer) {
	d.driver.CmdBindVertexBuffers(d.commandBuffer(cb), 0, []core1_0.Buffer{d.buffers.get(uint64(buffer))}, []int{0})
}

func (d *Device) CmdBindIndexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer, indexType core1_0.IndexType) {
	d.driver.CmdBindIndexBuffer(d.commandBuffer(cb), d.buffers.get(uint64(buffer)), 0, indexType)
}

func (d *Device) CmdBindDescriptorSet(cb gpu.CommandBuffer, layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	d.driver.CmdBindDescriptorSets(d.commandBuffer(cb), core1_0.PipelineBindPointGraphics, d.pipelineLayouts.get(uint64(layout)), 0,
		[]core1_0.DescriptorSet{d.descriptorSets.get(uint64(set)).set}, nil)
}

func (d *Device) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount int) {
	d.driver.CmdDrawIndexed(d.commandBuffer(cb), indexCount, 1, 0, 0, 0)
}

func (d *Device) QueueSubmit(queue gpu.Queue, submit gpu.Submit, fence gpu.Fence) error {
	info := core1_0.SubmitInfo{
		WaitDstStageMask: submit.WaitStages,
	}
	for _, s := range submit.WaitSemaphores {
		info.WaitSemaphores = append(info.WaitSemaphores, d.semaphores.get(uint64(s)))
	}
	for _, cb := range submit.CommandBuffers {
		info.CommandBuffers = append(info.CommandBuffers, d.commandBuffer(cb))
	}
	for _, s := range submit.SignalSemaphores {
		info.SignalSemaphores = append(info.SignalSemaphores, d.semaphores.get(uint64(s)))
	}

	var signal *core1_0.Fence
	if fence != 0 {
		f := d.fences.get(uint64(fence))
		signal = &f
	}

	_, err := d.driver.QueueSubmit(d.queues.get(uint64(queue)), signal, info)
	return err
}

func (d *Device) QueueWaitIdle(queue gpu.Queue) error {
	_, err := d.driver.QueueWaitIdle(d.queues.get(uint64(queue)))
	return err
}

func (d *Device) DeviceWaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return err
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.semaphores.add(semaphore)), nil
}

func (d *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	if s, ok := d.semaphores.take(uint64(semaphore)); ok {
		d.driver.DestroySemaphore(s, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}

	fence, _, err := d.driver.CreateFence(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.Fence(d.fences.add(fence)), nil
}

func (d *Device) DestroyFence(fence gpu.Fence) {
	if f, ok := d.fences.take(uint64(fence)); ok {
		d.driver.DestroyFence(f, nil)
	}
}

func (d *Device) WaitForFence(fence gpu.Fence) error {
	_, err := d.driver.WaitForFences(true, common.NoTimeout, d.fences.get(uint64(fence)))
	return err
}

func (d *Device) ResetFence(fence gpu.Fence) error {
	_, err := d.driver.ResetFences(d.fences.get(uint64(fence)))
	return err
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	byteCode, err := bytesToBytecode(code)
	if err != nil {
		return 0, err
	}

	module, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: byteCode,
	})
	if err != nil {
		return 0, err
	}
	return gpu.ShaderModule(d.shaderModules.add(module)), nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	if m, ok := d.shaderModules.take(uint64(module)); ok {
		d.driver.DestroyShaderModule(m, nil)
	}
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	renderPass, _, err := d.driver.CreateRenderPass(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.renderPasses.add(renderPass)), nil
}

func (d *Device) DestroyRenderPass(renderPass gpu.RenderPass) {
	if r, ok := d.renderPasses.take(uint64(renderPass)); ok {
		d.driver.DestroyRenderPass(r, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (gpu.DescriptorSetLayout, error) {
	layout, _, err := d.driver.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.descriptorSetLayouts.add(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	if l, ok := d.descriptorSetLayouts.take(uint64(layout)); ok {
		d.driver.DestroyDescriptorSetLayout(l, nil)
	}
}

func (d *Device) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	pool, _, err := d.driver.CreateDescriptorPool(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.descriptorPools.add(pool)), nil
}

// DestroyDescriptorPool also forgets the sets allocated from it.
func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	p, ok := d.descriptorPools.take(uint64(pool))
	if !ok {
		return
	}
	for id, set := range d.descriptorSets.objects {
		if set.pool == uint64(pool) {
			delete(d.descriptorSets.objects, id)
		}
	}
	d.driver.DestroyDescriptorPool(p, nil)
}

func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	setLayouts := make([]core1_0.DescriptorSetLayout, len(layouts))
	for i, layout := range layouts {
		setLayouts[i] = d.descriptorSetLayouts.get(uint64(layout))
	}

	sets, _, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: d.descriptorPools.get(uint64(pool)),
		SetLayouts:     setLayouts,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]gpu.DescriptorSet, len(sets))
	for i, set := range sets {
		ids[i] = gpu.DescriptorSet(d.descriptorSets.add(descriptorSet{set: set, pool: uint64(pool)}))
	}
	return ids, nil
}

func (d *Device) WriteUniformDescriptor(set gpu.DescriptorSet, binding int, buffer gpu.Buffer, offset, size int) error {
	return d.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          d.descriptorSets.get(uint64(set)).set,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: d.buffers.get(uint64(buffer)),
					Offset: offset,
					Range:  size,
				},
			},
		},
	}, nil)
}

func (d *Device) CreatePipelineLayout(layouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	setLayouts := make([]core1_0.DescriptorSetLayout, len(layouts))
	for i, layout := range layouts {
		setLayouts[i] = d.descriptorSetLayouts.get(uint64(layout))
	}

	layout, _, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.pipelineLayouts.add(layout)), nil
}

func (d *Device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	if l, ok := d.pipelineLayouts.take(uint64(layout)); ok {
		d.driver.DestroyPipelineLayout(l, nil)
	}
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	stages := make([]core1_0.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, stage := range desc.Stages {
		stages[i] = core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: d.shaderModules.get(uint64(stage.Module)),
			Name:   stage.Entry,
		}
	}

	// Viewports and scissors are dynamic; only their count is baked in.
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: make([]core1_0.Viewport, desc.ViewportCount),
		Scissors:  make([]core1_0.Rect2D, desc.ViewportCount),
	}

	vertexInput := desc.VertexInput
	inputAssembly := desc.InputAssembly
	rasterization := desc.Rasterization
	multisample := desc.Multisample
	colorBlend := desc.ColorBlend

	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages:             stages,
			VertexInputState:   &vertexInput,
			InputAssemblyState: &inputAssembly,
			ViewportState:      viewport,
			RasterizationState: &rasterization,
			MultisampleState:   &multisample,
			ColorBlendState:    &colorBlend,
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: desc.DynamicStates,
			},
			Layout:            d.pipelineLayouts.get(uint64(desc.Layout)),
			RenderPass:        d.renderPasses.get(uint64(desc.RenderPass)),
			Subpass:           desc.Subpass,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.pipelines.add(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	if p, ok := d.pipelines.take(uint64(pipeline)); ok {
		d.driver.DestroyPipeline(p, nil)
	}
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	framebuffer, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  d.renderPasses.get(uint64(desc.RenderPass)),
		Layers:      1,
		Attachments: []core1_0.ImageView{d.imageViews.get(uint64(desc.View))},
		Width:       desc.Extent.Width,
		Height:      desc.Extent.Height,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.framebuffers.add(framebuffer)), nil
}

func (d *Device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	if f, ok := d.framebuffers.take(uint64(framebuffer)); ok {
		d.driver.DestroyFramebuffer(f, nil)
	}
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	swapchain, _, err := d.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.ctx.surface,

		MinImageCount:    desc.MinImageCount,
		ImageFormat:      desc.Format.Format,
		ImageColorSpace:  desc.Format.ColorSpace,
		ImageExtent:      desc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   desc.SharingMode,
		QueueFamilyIndices: desc.QueueFamilyIndices,

		PreTransform:   desc.PreTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    desc.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Swapchain(d.swapchains.add(swapchain)), nil
}

// DestroySwapchain also forgets the images the swapchain owned.
func (d *Device) DestroySwapchain(swapchain gpu.Swapchain) {
	s, ok := d.swapchains.take(uint64(swapchain))
	if !ok {
		return
	}
	for id, image := range d.swapchainImages.objects {
		if image.swapchain == uint64(swapchain) {
			delete(d.swapchainImages.objects, id)
		}
	}
	d.swapchainExtension.DestroySwapchain(s, nil)
}

// SwapchainImages hands out image handles from a range distinct from owned
// images so that DestroyImage never reaches a presentable image.
func (d *Device) SwapchainImages(swapchain gpu.Swapchain) ([]gpu.Image, error) {
	images, _, err := d.swapchainExtension.GetSwapchainImages(d.swapchains.get(uint64(swapchain)))
	if err != nil {
		return nil, err
	}

	ids := make([]gpu.Image, len(images))
	for i, image := range images {
		ids[i] = gpu.Image(swapchainImageBase | d.swapchainImages.add(swapchainImage{image: image, swapchain: uint64(swapchain)}))
	}
	return ids, nil
}

func (d *Device) AcquireNextImage(swapchain gpu.Swapchain, timeout time.Duration, signal gpu.Semaphore) (int, gpu.SurfaceStatus, error) {
	if timeout <= 0 {
		timeout = common.NoTimeout
	}
	semaphore := d.semaphores.get(uint64(signal))

	imageIndex, res, err := d.swapchainExtension.AcquireNextImage(d.swapchains.get(uint64(swapchain)), timeout, &semaphore, nil)
	status, classified := classify(res)
	if classified {
		return imageIndex, status, nil
	}
	if err != nil {
		return 0, gpu.SurfaceOptimal, err
	}
	return imageIndex, gpu.SurfaceOptimal, nil
}

func (d *Device) QueuePresent(queue gpu.Queue, swapchain gpu.Swapchain, imageIndex int, wait gpu.Semaphore) (gpu.SurfaceStatus, error) {
	res, err := d.swapchainExtension.QueuePresent(d.queues.get(uint64(queue)), khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{d.semaphores.get(uint64(wait))},
		Swapchains:     []khr_swapchain.Swapchain{d.swapchains.get(uint64(swapchain))},
		ImageIndices:   []int{imageIndex},
	})
	status, classified := classify(res)
	if classified {
		return status, nil
	}
	return gpu.SurfaceOptimal, err
}

// classify maps the result codes the frame loop recovers from. Anything
// else is left to the returned error.
func classify(res common.VkResult) (gpu.SurfaceStatus, bool) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.SurfaceOutOfDate, true
	case khr_swapchain.VKSuboptimal:
		return gpu.SurfaceSuboptimal, true
	case core1_0.VKTimeout:
		return gpu.SurfaceTimeout, true
	}
	return gpu.SurfaceOptimal, false
}

// Destroy destroys the logical device. Every child object must already be
// gone; leftovers are logged.
func (d *Device) Destroy() {
	if d.driver == nil {
		return
	}

	if leaked := d.buffers.len() + d.images.len() + d.memories.len() + d.imageViews.len() +
		d.commandPools.len() + d.semaphores.len() + d.fences.len() + d.pipelines.len() +
		d.framebuffers.len() + d.swapchains.len(); leaked > 0 {
		logging.Logger().Warn("device destroyed with live objects", "count", leaked)
	}

	d.driver.DestroyDevice(nil)
	d.driver = nil
}
