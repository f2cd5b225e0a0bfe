// Package gputest provides an in-memory gpu.Instance and gpu.Device that
// record every call. The device models enough GPU ownership (fences,
// submitted command buffers, mapped memory) to report misuse as violations
// instead of hanging or corrupting memory.
package gputest

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

// ErrWouldBlock is returned by a wait that could never finish on real
// hardware, such as waiting on a fence nothing will signal.
var ErrWouldBlock = errors.New("wait would block forever")

// DefaultAdapter is a discrete GPU with one queue family that does graphics
// and presentation, the swapchain extension and an 800x600 surface.
func DefaultAdapter() gpu.Adapter {
	return gpu.Adapter{
		Handle:              1,
		Name:                "Fake Discrete GPU",
		Type:                core1_0.PhysicalDeviceTypeDiscreteGPU,
		PipelineCacheUUID:   uuid.MustParse("6f1a2b3c-4d5e-4f60-8172-8394a5b6c7d8"),
		MaxImageDimension2D: 16384,
		GeometryShader:      true,
		QueueFamilies:       []gpu.QueueFamily{{Graphics: true, Present: true}},
		Extensions: map[string]struct{}{
			khr_swapchain.ExtensionName: {},
		},
		Surface: DefaultSurface(),
	}
}

func DefaultSurface() gpu.SurfaceSupport {
	return gpu.SurfaceSupport{
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount:    2,
			MaxImageCount:    8,
			CurrentExtent:    core1_0.Extent2D{Width: 800, Height: 600},
			MinImageExtent:   core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:   core1_0.Extent2D{Width: 4096, Height: 4096},
			CurrentTransform: khr_surface.TransformIdentity,
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate},
	}
}

// DefaultMemoryTypes has a device-local type at index 0 and a host-visible,
// host-coherent type at index 1.
func DefaultMemoryTypes() []gpu.MemoryType {
	return []gpu.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
	}
}

type Instance struct {
	AdapterList []gpu.Adapter
	AdaptersErr error
	Device      *Device
	CreateErr   error

	Requests  []gpu.DeviceRequest
	Destroyed int
}

// NewInstance offers DefaultAdapter and hands out a NewDevice.
func NewInstance() *Instance {
	return &Instance{
		AdapterList: []gpu.Adapter{DefaultAdapter()},
		Device:      NewDevice(),
	}
}

func (i *Instance) Adapters() ([]gpu.Adapter, error) {
	if i.AdaptersErr != nil {
		return nil, i.AdaptersErr
	}
	return i.AdapterList, nil
}

func (i *Instance) CreateDevice(adapter gpu.Adapter, req gpu.DeviceRequest) (gpu.Device, error) {
	i.Requests = append(i.Requests, req)
	if i.CreateErr != nil {
		return nil, i.CreateErr
	}
	return i.Device, nil
}

func (i *Instance) Destroy() {
	i.Destroyed++
}

// Call is one recorded device call. Handle is the object the call created
// or acted on, when there is one.
type Call struct {
	Op     string
	Handle uint64
}

func (c Call) String() string {
	if c.Handle == 0 {
		return c.Op
	}
	return fmt.Sprintf("%s(%d)", c.Op, c.Handle)
}

type fenceState int

const (
	fenceUnsignaled fenceState = iota
	fenceSignaled
	fencePending
)

type commandBufferState int

const (
	commandBufferInitial commandBufferState = iota
	commandBufferRecording
	commandBufferExecutable
)

const (
	graphicsQueue gpu.Queue = 1
	presentQueue  gpu.Queue = 2
)

// Device is a recording gpu.Device. Exported configuration fields may be
// changed between calls; recorded fields are appended to as calls arrive.
type Device struct {
	Memory  []gpu.MemoryType
	Support gpu.SurfaceSupport
	// MemoryTypeBits is reported for every buffer and image. Zero means all
	// types are allowed.
	MemoryTypeBits uint32
	// SwapchainImageCount overrides the requested minimum image count.
	SwapchainImageCount int
	// AcquireResults and PresentResults are consumed front to back. Once
	// empty every call reports SurfaceOptimal.
	AcquireResults []gpu.SurfaceStatus
	PresentResults []gpu.SurfaceStatus
	// Fail makes the named operation return the error every time it runs.
	Fail map[string]error

	Calls        []Call
	Violations   []string
	Submits      []gpu.Submit
	FenceWaits   []gpu.Fence
	ResetSamples []bool
	Barriers     []gpu.ImageBarrier
	Viewports    []core1_0.Viewport
	Scissors     []core1_0.Rect2D
	Swapchains   []gpu.SwapchainDesc
	Pipelines    []gpu.GraphicsPipelineDesc
	RenderPasses []core1_0.RenderPassCreateInfo
	Draws        []int
	Destroyed    bool

	next            uint64
	live            map[uint64]string
	fences          map[gpu.Fence]fenceState
	commandBuffers  map[gpu.CommandBuffer]commandBufferState
	commandPools    map[gpu.CommandBuffer]gpu.CommandPool
	inFlight        map[gpu.CommandBuffer]gpu.Fence
	memory          map[gpu.DeviceMemory][]byte
	memoryTypes     map[gpu.DeviceMemory]int
	mapped          map[gpu.DeviceMemory]bool
	buffers         map[gpu.Buffer]core1_0.BufferCreateInfo
	images          map[gpu.Image]core1_0.ImageCreateInfo
	swapchainImages map[gpu.Swapchain][]gpu.Image
	descriptors     map[gpu.DescriptorSet]gpu.Buffer
	acquired        int
}

func NewDevice() *Device {
	return &Device{
		Memory:          DefaultMemoryTypes(),
		Support:         DefaultSurface(),
		live:            make(map[uint64]string),
		fences:          make(map[gpu.Fence]fenceState),
		commandBuffers:  make(map[gpu.CommandBuffer]commandBufferState),
		commandPools:    make(map[gpu.CommandBuffer]gpu.CommandPool),
		inFlight:        make(map[gpu.CommandBuffer]gpu.Fence),
		memory:          make(map[gpu.DeviceMemory][]byte),
		memoryTypes:     make(map[gpu.DeviceMemory]int),
		mapped:          make(map[gpu.DeviceMemory]bool),
		buffers:         make(map[gpu.Buffer]core1_0.BufferCreateInfo),
		images:          make(map[gpu.Image]core1_0.ImageCreateInfo),
		swapchainImages: make(map[gpu.Swapchain][]gpu.Image),
		descriptors:     make(map[gpu.DescriptorSet]gpu.Buffer),
	}
}

func (d *Device) record(op string, handle uint64) {
	d.Calls = append(d.Calls, Call{Op: op, Handle: handle})
}

func (d *Device) violate(format string, args ...any) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

func (d *Device) fail(op string) error {
	if err, ok := d.Fail[op]; ok {
		d.record(op+"!", 0)
		return err
	}
	return nil
}

func (d *Device) create(op, kind string) uint64 {
	d.next++
	h := d.next + 1000
	d.live[h] = kind
	d.record(op, h)
	return h
}

func (d *Device) destroy(op string, h uint64) {
	d.record(op, h)
	if h == 0 {
		d.violate("%s: null handle", op)
		return
	}
	if _, ok := d.live[h]; !ok {
		d.violate("%s: handle %d is not live", op, h)
		return
	}
	delete(d.live, h)
}

// Count is the number of recorded calls to op.
func (d *Device) Count(op string) int {
	n := 0
	for _, c := range d.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Ops lists recorded operation names in call order.
func (d *Device) Ops() []string {
	ops := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Live counts the objects of each kind that were created and not yet
// destroyed.
func (d *Device) Live() map[string]int {
	counts := make(map[string]int)
	for _, kind := range d.live {
		counts[kind]++
	}
	return counts
}

// Contents is the backing store of mem, mapped or not.
func (d *Device) Contents(mem gpu.DeviceMemory) []byte {
	return d.memory[mem]
}

// MemoryType is the type index mem was allocated from, or -1.
func (d *Device) MemoryType(mem gpu.DeviceMemory) int {
	if idx, ok := d.memoryTypes[mem]; ok {
		return idx
	}
	return -1
}

func (d *Device) IsMapped(mem gpu.DeviceMemory) bool {
	return d.mapped[mem]
}

func (d *Device) BufferInfo(buffer gpu.Buffer) core1_0.BufferCreateInfo {
	return d.buffers[buffer]
}

func (d *Device) ImageInfo(image gpu.Image) core1_0.ImageCreateInfo {
	return d.images[image]
}

// DescriptorBuffer is the uniform buffer last written to set.
func (d *Device) DescriptorBuffer(set gpu.DescriptorSet) gpu.Buffer {
	return d.descriptors[set]
}

func (d *Device) FenceSignaled(fence gpu.Fence) bool {
	return d.fences[fence] == fenceSignaled
}

func (d *Device) GraphicsQueue() gpu.Queue { return graphicsQueue }
func (d *Device) PresentQueue() gpu.Queue  { return presentQueue }

func (d *Device) MemoryTypes() []gpu.MemoryType {
	return d.Memory
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	d.record("SurfaceSupport", 0)
	if err := d.fail("SurfaceSupport"); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	return d.Support, nil
}

func (d *Device) typeBits() uint32 {
	if d.MemoryTypeBits == 0 {
		return ^uint32(0)
	}
	return d.MemoryTypeBits
}

func (d *Device) CreateBuffer(info core1_0.BufferCreateInfo) (gpu.Buffer, gpu.MemoryRequirements, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}
	buffer := gpu.Buffer(d.create("CreateBuffer", "Buffer"))
	d.buffers[buffer] = info
	return buffer, gpu.MemoryRequirements{Size: info.Size, Alignment: 4, MemoryTypeBits: d.typeBits()}, nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	d.destroy("DestroyBuffer", uint64(buffer))
}

func (d *Device) CreateImage(info core1_0.ImageCreateInfo) (gpu.Image, gpu.MemoryRequirements, error) {
	if err := d.fail("CreateImage"); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}
	image := gpu.Image(d.create("CreateImage", "Image"))
	d.images[image] = info
	size := info.Extent.Width * info.Extent.Height * 4
	return image, gpu.MemoryRequirements{Size: size, Alignment: 16, MemoryTypeBits: d.typeBits()}, nil
}

func (d *Device) DestroyImage(image gpu.Image) {
	d.destroy("DestroyImage", uint64(image))
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.DeviceMemory, error) {
	if err := d.fail("AllocateMemory"); err != nil {
		return 0, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.Memory) {
		d.violate("AllocateMemory: memory type %d out of range", memoryTypeIndex)
		return 0, errors.Newf("memory type %d out of range", memoryTypeIndex)
	}
	mem := gpu.DeviceMemory(d.create("AllocateMemory", "DeviceMemory"))
	d.memory[mem] = make([]byte, size)
	d.memoryTypes[mem] = memoryTypeIndex
	return mem, nil
}

func (d *Device) FreeMemory(memory gpu.DeviceMemory) {
	if d.mapped[memory] {
		d.violate("FreeMemory: memory %d is still mapped", memory)
	}
	d.destroy("FreeMemory", uint64(memory))
}

func (d *Device) BindBufferMemory(buffer gpu.Buffer, memory gpu.DeviceMemory) error {
	d.record("BindBufferMemory", uint64(buffer))
	return d.fail("BindBufferMemory")
}

func (d *Device) BindImageMemory(image gpu.Image, memory gpu.DeviceMemory) error {
	d.record("BindImageMemory", uint64(image))
	return d.fail("BindImageMemory")
}

func (d *Device) MapMemory(memory gpu.DeviceMemory, offset, size int) ([]byte, error) {
	d.record("MapMemory", uint64(memory))
	if err := d.fail("MapMemory"); err != nil {
		return nil, err
	}
	store, ok := d.memory[memory]
	if !ok {
		d.violate("MapMemory: unknown memory %d", memory)
		return nil, errors.Newf("unknown memory %d", memory)
	}
	if d.mapped[memory] {
		d.violate("MapMemory: memory %d already mapped", memory)
		return nil, errors.Newf("memory %d already mapped", memory)
	}
	if offset < 0 || offset+size > len(store) {
		d.violate("MapMemory: range [%d,%d) outside %d bytes", offset, offset+size, len(store))
		return nil, errors.New("map range out of bounds")
	}
	if !d.hostVisible(memory) {
		d.violate("MapMemory: memory %d is not host visible", memory)
	}
	d.mapped[memory] = true
	return store[offset : offset+size : offset+size], nil
}

func (d *Device) hostVisible(memory gpu.DeviceMemory) bool {
	return d.Memory[d.memoryTypes[memory]].PropertyFlags&core1_0.MemoryPropertyHostVisible != 0
}

func (d *Device) UnmapMemory(memory gpu.DeviceMemory) {
	d.record("UnmapMemory", uint64(memory))
	if !d.mapped[memory] {
		d.violate("UnmapMemory: memory %d is not mapped", memory)
	}
	delete(d.mapped, memory)
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.create("CreateImageView", "ImageView")), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	d.destroy("DestroyImageView", uint64(view))
}

func (d *Device) CreateCommandPool(family int, flags core1_0.CommandPoolCreateFlags) (gpu.CommandPool, error) {
	if err := d.fail("CreateCommandPool"); err != nil {
		return 0, err
	}
	return gpu.CommandPool(d.create("CreateCommandPool", "CommandPool")), nil
}

func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	for cb, owner := range d.commandPools {
		if owner == pool {
			delete(d.live, uint64(cb))
			delete(d.commandPools, cb)
		}
	}
	d.destroy("DestroyCommandPool", uint64(pool))
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	buffers := make([]gpu.CommandBuffer, count)
	for i := range buffers {
		cb := gpu.CommandBuffer(d.create("AllocateCommandBuffers", "CommandBuffer"))
		d.commandBuffers[cb] = commandBufferInitial
		d.commandPools[cb] = pool
		buffers[i] = cb
	}
	return buffers, nil
}

func (d *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers ...gpu.CommandBuffer) {
	for _, cb := range buffers {
		if _, busy := d.inFlight[cb]; busy {
			d.violate("FreeCommandBuffers: command buffer %d is in flight", cb)
		}
		delete(d.commandBuffers, cb)
		delete(d.commandPools, cb)
		d.destroy("FreeCommandBuffers", uint64(cb))
	}
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, flags core1_0.CommandBufferUsageFlags) error {
	d.record("BeginCommandBuffer", uint64(cb))
	if err := d.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	if _, busy := d.inFlight[cb]; busy {
		d.violate("BeginCommandBuffer: command buffer %d is in flight", cb)
	}
	d.commandBuffers[cb] = commandBufferRecording
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	d.record("EndCommandBuffer", uint64(cb))
	if err := d.fail("EndCommandBuffer"); err != nil {
		return err
	}
	if d.commandBuffers[cb] != commandBufferRecording {
		d.violate("EndCommandBuffer: command buffer %d is not recording", cb)
	}
	d.commandBuffers[cb] = commandBufferExecutable
	return nil
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	d.record("ResetCommandBuffer", uint64(cb))
	_, busy := d.inFlight[cb]
	d.ResetSamples = append(d.ResetSamples, !busy)
	if busy {
		d.violate("ResetCommandBuffer: command buffer %d is in flight", cb)
	}
	if err := d.fail("ResetCommandBuffer"); err != nil {
		return err
	}
	d.commandBuffers[cb] = commandBufferInitial
	return nil
}

func (d *Device) recording(op string, cb gpu.CommandBuffer) {
	d.record(op, uint64(cb))
	if d.commandBuffers[cb] != commandBufferRecording {
		d.violate("%s: command buffer %d is not recording", op, cb)
	}
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size int) error {
	d.recording("CmdCopyBuffer", cb)
	return d.fail("CmdCopyBuffer")
}

func (d *Device) CmdCopyBufferToImage(cb gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout core1_0.ImageLayout, extent core1_0.Extent3D) error {
	d.recording("CmdCopyBufferToImage", cb)
	return d.fail("CmdCopyBufferToImage")
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...gpu.ImageBarrier) error {
	d.recording("CmdPipelineBarrier", cb)
	if err := d.fail("CmdPipelineBarrier"); err != nil {
		return err
	}
	d.Barriers = append(d.Barriers, barriers...)
	return nil
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) error {
	d.recording("CmdBeginRenderPass", cb)
	if _, ok := d.live[uint64(begin.Framebuffer)]; !ok {
		d.violate("CmdBeginRenderPass: framebuffer %d is not live", begin.Framebuffer)
	}
	return d.fail("CmdBeginRenderPass")
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	d.recording("CmdEndRenderPass", cb)
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, pipeline gpu.Pipeline) {
	d.recording("CmdBindPipeline", cb)
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, viewport core1_0.Viewport) {
	d.recording("CmdSetViewport", cb)
	d.Viewports = append(d.Viewports, viewport)
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, scissor core1_0.Rect2D) {
	d.recording("CmdSetScissor", cb)
	d.Scissors = append(d.Scissors, scissor)
}

func (d *Device) CmdBindVertexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer) {
	d.recording("CmdBindVertexBuffer", cb)
}

func (d *Device) CmdBindIndexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer, indexType core1_0.IndexType) {
	d.recording("CmdBindIndexBuffer", cb)
}

func (d *Device) CmdBindDescriptorSet(cb gpu.CommandBuffer, layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	d.recording("CmdBindDescriptorSet", cb)
}

func (d *Device) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount int) {
	d.recording("CmdDrawIndexed", cb)
	d.Draws = append(d.Draws, indexCount)
}

func (d *Device) QueueSubmit(queue gpu.Queue, submit gpu.Submit, fence gpu.Fence) error {
	d.record("QueueSubmit", uint64(fence))
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	if fence != 0 {
		if d.fences[fence] != fenceUnsignaled {
			d.violate("QueueSubmit: fence %d is not unsignaled", fence)
		}
		d.fences[fence] = fencePending
	}
	for _, cb := range submit.CommandBuffers {
		if _, busy := d.inFlight[cb]; busy {
			d.violate("QueueSubmit: command buffer %d is already in flight", cb)
		}
		if d.commandBuffers[cb] != commandBufferExecutable {
			d.violate("QueueSubmit: command buffer %d is not executable", cb)
		}
		d.inFlight[cb] = fence
	}
	d.Submits = append(d.Submits, submit)
	return nil
}

// complete retires every submission, as if the GPU caught up.
func (d *Device) complete() {
	for fence, state := range d.fences {
		if state == fencePending {
			d.fences[fence] = fenceSignaled
		}
	}
	for cb := range d.inFlight {
		delete(d.inFlight, cb)
	}
}

func (d *Device) QueueWaitIdle(queue gpu.Queue) error {
	d.record("QueueWaitIdle", uint64(queue))
	if err := d.fail("QueueWaitIdle"); err != nil {
		return err
	}
	d.complete()
	return nil
}

func (d *Device) DeviceWaitIdle() error {
	d.record("DeviceWaitIdle", 0)
	if err := d.fail("DeviceWaitIdle"); err != nil {
		return err
	}
	d.complete()
	return nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	if err := d.fail("CreateSemaphore"); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.create("CreateSemaphore", "Semaphore")), nil
}

func (d *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	d.destroy("DestroySemaphore", uint64(semaphore))
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return 0, err
	}
	fence := gpu.Fence(d.create("CreateFence", "Fence"))
	if signaled {
		d.fences[fence] = fenceSignaled
	} else {
		d.fences[fence] = fenceUnsignaled
	}
	return fence, nil
}

func (d *Device) DestroyFence(fence gpu.Fence) {
	delete(d.fences, fence)
	d.destroy("DestroyFence", uint64(fence))
}

func (d *Device) WaitForFence(fence gpu.Fence) error {
	d.record("WaitForFence", uint64(fence))
	d.FenceWaits = append(d.FenceWaits, fence)
	if err := d.fail("WaitForFence"); err != nil {
		return err
	}

	switch d.fences[fence] {
	case fenceUnsignaled:
		d.violate("WaitForFence: fence %d is unsignaled with no pending work", fence)
		return ErrWouldBlock
	case fencePending:
		d.fences[fence] = fenceSignaled
		for cb, f := range d.inFlight {
			if f == fence {
				delete(d.inFlight, cb)
			}
		}
	}
	return nil
}

func (d *Device) ResetFence(fence gpu.Fence) error {
	d.record("ResetFence", uint64(fence))
	if err := d.fail("ResetFence"); err != nil {
		return err
	}
	if d.fences[fence] == fencePending {
		d.violate("ResetFence: fence %d has pending work", fence)
	}
	d.fences[fence] = fenceUnsignaled
	return nil
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Newf("shader code of %d bytes is not a whole number of words", len(code))
	}
	return gpu.ShaderModule(d.create("CreateShaderModule", "ShaderModule")), nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	d.destroy("DestroyShaderModule", uint64(module))
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return 0, err
	}
	d.RenderPasses = append(d.RenderPasses, info)
	return gpu.RenderPass(d.create("CreateRenderPass", "RenderPass")), nil
}

func (d *Device) DestroyRenderPass(renderPass gpu.RenderPass) {
	d.destroy("DestroyRenderPass", uint64(renderPass))
}

func (d *Device) CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (gpu.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.create("CreateDescriptorSetLayout", "DescriptorSetLayout")), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	d.destroy("DestroyDescriptorSetLayout", uint64(layout))
}

func (d *Device) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.create("CreateDescriptorPool", "DescriptorPool")), nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	d.destroy("DestroyDescriptorPool", uint64(pool))
}

// AllocateDescriptorSets hands out sets owned by pool; they are not tracked
// as live objects.
func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	d.record("AllocateDescriptorSets", uint64(pool))
	if err := d.fail("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	sets := make([]gpu.DescriptorSet, len(layouts))
	for i := range sets {
		d.next++
		sets[i] = gpu.DescriptorSet(d.next + 1000)
	}
	return sets, nil
}

func (d *Device) WriteUniformDescriptor(set gpu.DescriptorSet, binding int, buffer gpu.Buffer, offset, size int) error {
	d.record("WriteUniformDescriptor", uint64(set))
	if err := d.fail("WriteUniformDescriptor"); err != nil {
		return err
	}
	d.descriptors[set] = buffer
	return nil
}

func (d *Device) CreatePipelineLayout(layouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.create("CreatePipelineLayout", "PipelineLayout")), nil
}

func (d *Device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	d.destroy("DestroyPipelineLayout", uint64(layout))
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return 0, err
	}
	for _, stage := range desc.Stages {
		if _, ok := d.live[uint64(stage.Module)]; !ok {
			d.violate("CreateGraphicsPipeline: shader module %d is not live", stage.Module)
		}
	}
	d.Pipelines = append(d.Pipelines, desc)
	return gpu.Pipeline(d.create("CreateGraphicsPipeline", "Pipeline")), nil
}

func (d *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	d.destroy("DestroyPipeline", uint64(pipeline))
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.create("CreateFramebuffer", "Framebuffer")), nil
}

func (d *Device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	d.destroy("DestroyFramebuffer", uint64(framebuffer))
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	if err := d.fail("CreateSwapchain"); err != nil {
		return 0, err
	}
	swapchain := gpu.Swapchain(d.create("CreateSwapchain", "Swapchain"))
	d.Swapchains = append(d.Swapchains, desc)

	count := desc.MinImageCount
	if d.SwapchainImageCount > 0 {
		count = d.SwapchainImageCount
	}
	images := make([]gpu.Image, count)
	for i := range images {
		d.next++
		images[i] = gpu.Image(d.next + 1000)
	}
	d.swapchainImages[swapchain] = images
	d.acquired = 0
	return swapchain, nil
}

func (d *Device) DestroySwapchain(swapchain gpu.Swapchain) {
	delete(d.swapchainImages, swapchain)
	d.destroy("DestroySwapchain", uint64(swapchain))
}

func (d *Device) SwapchainImages(swapchain gpu.Swapchain) ([]gpu.Image, error) {
	if err := d.fail("SwapchainImages"); err != nil {
		return nil, err
	}
	images, ok := d.swapchainImages[swapchain]
	if !ok {
		return nil, errors.Newf("unknown swapchain %d", swapchain)
	}
	return images, nil
}

func (d *Device) AcquireNextImage(swapchain gpu.Swapchain, timeout time.Duration, signal gpu.Semaphore) (int, gpu.SurfaceStatus, error) {
	d.record("AcquireNextImage", uint64(swapchain))
	if err := d.fail("AcquireNextImage"); err != nil {
		return 0, gpu.SurfaceOptimal, err
	}
	images, ok := d.swapchainImages[swapchain]
	if !ok {
		d.violate("AcquireNextImage: swapchain %d is not live", swapchain)
		return 0, gpu.SurfaceOptimal, errors.Newf("unknown swapchain %d", swapchain)
	}

	status := gpu.SurfaceOptimal
	if len(d.AcquireResults) > 0 {
		status = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	if status == gpu.SurfaceOutOfDate || status == gpu.SurfaceTimeout {
		return 0, status, nil
	}

	index := d.acquired % len(images)
	d.acquired++
	return index, status, nil
}

func (d *Device) QueuePresent(queue gpu.Queue, swapchain gpu.Swapchain, imageIndex int, wait gpu.Semaphore) (gpu.SurfaceStatus, error) {
	d.record("QueuePresent", uint64(swapchain))
	if err := d.fail("QueuePresent"); err != nil {
		return gpu.SurfaceOptimal, err
	}
	if _, ok := d.swapchainImages[swapchain]; !ok {
		d.violate("QueuePresent: swapchain %d is not live", swapchain)
	}

	status := gpu.SurfaceOptimal
	if len(d.PresentResults) > 0 {
		status = d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
	}
	return status, nil
}

func (d *Device) Destroy() {
	d.record("DestroyDevice", 0)
	if len(d.inFlight) > 0 {
		d.violate("Destroy: %d command buffers still in flight", len(d.inFlight))
	}
	d.Destroyed = true
}
