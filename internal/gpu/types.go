package gpu

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Handles name objects owned by a backend. The zero value of every handle
// is the null handle.
type (
	PhysicalDevice      uint64
	Queue               uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Buffer              uint64
	DeviceMemory        uint64
	Image               uint64
	ImageView           uint64
	ShaderModule        uint64
	RenderPass          uint64
	Framebuffer         uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
	Swapchain           uint64
	Semaphore           uint64
	Fence               uint64
)

type QueueFamily struct {
	Graphics bool
	Present  bool
}

// SurfaceSupport is what a surface offers a particular adapter.
type SurfaceSupport struct {
	Capabilities khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Adapter describes one enumerated physical device together with everything
// selection needs to know about it.
type Adapter struct {
	Handle              PhysicalDevice
	Name                string
	Type                core1_0.PhysicalDeviceType
	PipelineCacheUUID   uuid.UUID
	MaxImageDimension2D int
	GeometryShader      bool
	QueueFamilies       []QueueFamily
	Extensions          map[string]struct{}
	Surface             SurfaceSupport
}

func (a Adapter) HasExtension(name string) bool {
	_, ok := a.Extensions[name]
	return ok
}

type MemoryType struct {
	PropertyFlags core1_0.MemoryPropertyFlags
	HeapIndex     int
}

type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

// DeviceRequest asks for one queue per distinct family in QueueFamilies.
type DeviceRequest struct {
	QueueFamilies  []int
	GraphicsFamily int
	PresentFamily  int
	Extensions     []string
}

type ImageViewDesc struct {
	Image  Image
	Format core1_0.Format
	Aspect core1_0.ImageAspectFlags
}

type ImageBarrier struct {
	Image         Image
	OldLayout     core1_0.ImageLayout
	NewLayout     core1_0.ImageLayout
	SrcAccessMask core1_0.AccessFlags
	DstAccessMask core1_0.AccessFlags
	Aspect        core1_0.ImageAspectFlags
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearColor  [4]float32
}

type Submit struct {
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type FramebufferDesc struct {
	RenderPass RenderPass
	View       ImageView
	Extent     core1_0.Extent2D
}

type SwapchainDesc struct {
	MinImageCount      int
	Format             khr_surface.SurfaceFormat
	PresentMode        khr_surface.PresentMode
	Extent             core1_0.Extent2D
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int
	PreTransform       khr_surface.SurfaceTransformFlags
}

type ShaderStage struct {
	Stage  core1_0.ShaderStageFlags
	Module ShaderModule
	Entry  string
}

// GraphicsPipelineDesc carries fixed-function state as vkngwrapper create
// infos; only the object references are backend handles.
type GraphicsPipelineDesc struct {
	Stages        []ShaderStage
	VertexInput   core1_0.PipelineVertexInputStateCreateInfo
	InputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	ViewportCount int
	Rasterization core1_0.PipelineRasterizationStateCreateInfo
	Multisample   core1_0.PipelineMultisampleStateCreateInfo
	ColorBlend    core1_0.PipelineColorBlendStateCreateInfo
	DynamicStates []core1_0.DynamicState
	Layout        PipelineLayout
	RenderPass    RenderPass
	Subpass       int
}

// SurfaceStatus classifies the outcome of acquire and present calls that
// did not fail outright.
type SurfaceStatus int

const (
	SurfaceOptimal SurfaceStatus = iota
	SurfaceSuboptimal
	SurfaceOutOfDate
	SurfaceTimeout
)

func (s SurfaceStatus) String() string {
	switch s {
	case SurfaceOptimal:
		return "optimal"
	case SurfaceSuboptimal:
		return "suboptimal"
	case SurfaceOutOfDate:
		return "out of date"
	case SurfaceTimeout:
		return "timeout"
	}
	return fmt.Sprintf("SurfaceStatus(%d)", int(s))
}
