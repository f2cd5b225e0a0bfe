package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

// Allocator creates buffers and images together with the device memory that
// backs them.
type Allocator struct {
	device      gpu.Device
	memoryTypes []gpu.MemoryType
}

func NewAllocator(device gpu.Device) *Allocator {
	return &Allocator{
		device:      device,
		memoryTypes: device.MemoryTypes(),
	}
}

// FindMemoryType returns the lowest memory type index allowed by typeFilter
// whose property flags include all of properties.
func FindMemoryType(types []gpu.MemoryType, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range types {
		if i >= 32 {
			break
		}
		typeBit := uint32(1) << uint(i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Mark(
		errors.Newf("no memory type in filter %#x has properties %v", typeFilter, properties),
		gpu.ErrNoSuitableMemoryType)
}

// BufferAllocation is a buffer and its bound memory. Release frees both.
type BufferAllocation struct {
	Buffer gpu.Buffer
	Memory gpu.DeviceMemory
	Size   int

	device gpu.Device
	mapped []byte
}

func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*BufferAllocation, error) {
	buffer, requirements, err := a.device.CreateBuffer(core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}

	allocation := &BufferAllocation{Buffer: buffer, Size: size, device: a.device}

	allocation.Memory, err = a.allocate(requirements, properties)
	if err != nil {
		allocation.Release()
		return nil, err
	}

	if err = a.device.BindBufferMemory(buffer, allocation.Memory); err != nil {
		allocation.Release()
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	logging.Logger().Debug("buffer created", "size", size, "usage", usage, "properties", properties)
	return allocation, nil
}

// Map maps the whole buffer and keeps it mapped until Unmap or Release.
// Repeated calls return the same mapping.
func (b *BufferAllocation) Map() ([]byte, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}

	mapped, err := b.device.MapMemory(b.Memory, 0, b.Size)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}
	b.mapped = mapped
	return mapped, nil
}

func (b *BufferAllocation) Unmap() {
	if b.mapped == nil {
		return
	}
	b.device.UnmapMemory(b.Memory)
	b.mapped = nil
}

// Write copies data into the start of the buffer through a temporary
// mapping. The buffer must be host visible.
func (b *BufferAllocation) Write(data []byte) error {
	if len(data) > b.Size {
		return errors.Errorf("write of %d bytes overflows %d byte buffer", len(data), b.Size)
	}

	wasMapped := b.mapped != nil
	mapped, err := b.Map()
	if err != nil {
		return err
	}
	copy(mapped, data)

	if !wasMapped {
		b.Unmap()
	}
	return nil
}

// Release destroys the buffer and frees its memory. It is safe to call more
// than once.
func (b *BufferAllocation) Release() {
	if b == nil {
		return
	}
	b.Unmap()
	if b.Buffer != 0 {
		b.device.DestroyBuffer(b.Buffer)
		b.Buffer = 0
	}
	if b.Memory != 0 {
		b.device.FreeMemory(b.Memory)
		b.Memory = 0
	}
}

// ImageAllocation is a 2D image and its bound memory. Release frees both.
type ImageAllocation struct {
	Image  gpu.Image
	Memory gpu.DeviceMemory
	Width  int
	Height int
	Format core1_0.Format

	device gpu.Device
}

func (a *Allocator) CreateImage(width, height int, format core1_0.Format, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags, properties core1_0.MemoryPropertyFlags) (*ImageAllocation, error) {
	image, requirements, err := a.device.CreateImage(core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}

	allocation := &ImageAllocation{
		Image:  image,
		Width:  width,
		Height: height,
		Format: format,
		device: a.device,
	}

	allocation.Memory, err = a.allocate(requirements, properties)
	if err != nil {
		allocation.Release()
		return nil, err
	}

	if err = a.device.BindImageMemory(image, allocation.Memory); err != nil {
		allocation.Release()
		return nil, errors.Wrap(err, "bind image memory")
	}

	logging.Logger().Debug("image created", "width", width, "height", height, "format", format)
	return allocation, nil
}

func (i *ImageAllocation) Release() {
	if i == nil {
		return
	}
	if i.Image != 0 {
		i.device.DestroyImage(i.Image)
		i.Image = 0
	}
	if i.Memory != 0 {
		i.device.FreeMemory(i.Memory)
		i.Memory = 0
	}
}

func (a *Allocator) allocate(requirements gpu.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (gpu.DeviceMemory, error) {
	typeIndex, err := FindMemoryType(a.memoryTypes, requirements.MemoryTypeBits, properties)
	if err != nil {
		return 0, err
	}

	memory, err := a.device.AllocateMemory(requirements.Size, typeIndex)
	if err != nil {
		return 0, errors.Wrapf(err, "allocate %d bytes from memory type %d", requirements.Size, typeIndex)
	}
	return memory, nil
}

// encode lays data out in the device byte order.
func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return buf.Bytes(), nil
}
