// Package gpu is the device vocabulary shared by the renderer and its
// backends: opaque handles, the Instance and Device contracts, and the
// error kinds the frame loop classifies on.
//
// Value types (formats, layouts, flags, fixed-function create infos) are
// vkngwrapper's core1_0 and khr_surface types. Only objects with a lifetime
// are abstracted behind handles so that a recording fake can stand in for a
// real device in tests.
package gpu

import (
	"time"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// Instance owns the API instance, the debug messenger and the presentation
// surface. It outlives every Device it creates.
type Instance interface {
	Adapters() ([]Adapter, error)
	CreateDevice(adapter Adapter, req DeviceRequest) (Device, error)
	Destroy()
}

// Device is a logical device with its graphics and present queues.
//
// Calls that the source API can only fail on device loss or misuse return
// nothing. AcquireNextImage and QueuePresent classify non-fatal surface
// results through SurfaceStatus and reserve the error for fatal failures.
type Device interface {
	GraphicsQueue() Queue
	PresentQueue() Queue
	MemoryTypes() []MemoryType
	SurfaceSupport() (SurfaceSupport, error)

	CreateBuffer(info core1_0.BufferCreateInfo) (Buffer, MemoryRequirements, error)
	DestroyBuffer(buffer Buffer)
	CreateImage(info core1_0.ImageCreateInfo) (Image, MemoryRequirements, error)
	DestroyImage(image Image)
	AllocateMemory(size int, memoryTypeIndex int) (DeviceMemory, error)
	FreeMemory(memory DeviceMemory)
	BindBufferMemory(buffer Buffer, memory DeviceMemory) error
	BindImageMemory(image Image, memory DeviceMemory) error
	MapMemory(memory DeviceMemory, offset, size int) ([]byte, error)
	UnmapMemory(memory DeviceMemory)
	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateCommandPool(family int, flags core1_0.CommandPoolCreateFlags) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers ...CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, flags core1_0.CommandBufferUsageFlags) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size int) error
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout core1_0.ImageLayout, extent core1_0.Extent3D) error
	CmdPipelineBarrier(cb CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...ImageBarrier) error
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin) error
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, pipeline Pipeline)
	CmdSetViewport(cb CommandBuffer, viewport core1_0.Viewport)
	CmdSetScissor(cb CommandBuffer, scissor core1_0.Rect2D)
	CmdBindVertexBuffer(cb CommandBuffer, buffer Buffer)
	CmdBindIndexBuffer(cb CommandBuffer, buffer Buffer, indexType core1_0.IndexType)
	CmdBindDescriptorSet(cb CommandBuffer, layout PipelineLayout, set DescriptorSet)
	CmdDrawIndexed(cb CommandBuffer, indexCount int)

	QueueSubmit(queue Queue, submit Submit, fence Fence) error
	QueueWaitIdle(queue Queue) error
	DeviceWaitIdle() error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFence blocks without a timeout.
	WaitForFence(fence Fence) error
	ResetFence(fence Fence) error

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(renderPass RenderPass)
	CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSets(pool DescriptorPool, layouts ...DescriptorSetLayout) ([]DescriptorSet, error)
	WriteUniformDescriptor(set DescriptorSet, binding int, buffer Buffer, offset, size int) error
	CreatePipelineLayout(layouts ...DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	DestroySwapchain(swapchain Swapchain)
	SwapchainImages(swapchain Swapchain) ([]Image, error)
	// AcquireNextImage waits at most timeout; zero or less waits forever.
	AcquireNextImage(swapchain Swapchain, timeout time.Duration, signal Semaphore) (int, SurfaceStatus, error)
	QueuePresent(queue Queue, swapchain Swapchain, imageIndex int, wait Semaphore) (SurfaceStatus, error)

	Destroy()
}
