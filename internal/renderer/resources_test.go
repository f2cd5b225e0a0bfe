package renderer

import (
	"bytes"
	"math"
	"testing"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/assets"
	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

func TestVertexLayout(t *testing.T) {
	if size := unsafe.Sizeof(Vertex{}); size != 20 {
		t.Fatalf("Vertex is %d bytes, want 20", size)
	}

	bindings := vertexBindingDescriptions()
	if len(bindings) != 1 || bindings[0].Stride != 20 {
		t.Errorf("bindings = %+v, want one binding with stride 20", bindings)
	}

	attributes := vertexAttributeDescriptions()
	want := []struct {
		location uint32
		offset   int
		format   core1_0.Format
	}{
		{0, 0, core1_0.FormatR32G32SignedFloat},
		{1, 8, core1_0.FormatR32G32B32SignedFloat},
	}
	if len(attributes) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(attributes), len(want))
	}
	for i, w := range want {
		a := attributes[i]
		if a.Location != w.location || a.Offset != w.offset || a.Format != w.format {
			t.Errorf("attribute %d = %+v, want location %d offset %d format %v", i, a, w.location, w.offset, w.format)
		}
	}
}

func TestUploadGeometry(t *testing.T) {
	device, _, transfer := newTestTransfer(t)

	geometry, err := UploadGeometry(transfer, QuadVertices, QuadIndices)
	if err != nil {
		t.Fatalf("UploadGeometry() error = %v", err)
	}

	if geometry.IndexCount != 6 {
		t.Errorf("IndexCount = %d, want 6", geometry.IndexCount)
	}
	if geometry.IndexType != core1_0.IndexTypeUInt16 {
		t.Errorf("IndexType = %v, want uint16", geometry.IndexType)
	}
	if got := device.BufferInfo(geometry.Vertices.Buffer).Size; got != 4*20 {
		t.Errorf("vertex buffer size = %d, want 80", got)
	}
	if got := device.BufferInfo(geometry.Indices.Buffer).Size; got != 12 {
		t.Errorf("index buffer size = %d, want 12", got)
	}
	for _, b := range []*BufferAllocation{geometry.Vertices, geometry.Indices} {
		if got := device.MemoryType(b.Memory); got != 0 {
			t.Errorf("buffer %d in memory type %d, want device local", b.Buffer, got)
		}
	}

	live := device.Live()
	if live["Buffer"] != 2 || live["DeviceMemory"] != 2 {
		t.Errorf("live buffers/memory = %d/%d, want 2/2", live["Buffer"], live["DeviceMemory"])
	}
	if n := device.Count("QueueWaitIdle"); n != 2 {
		t.Errorf("QueueWaitIdle calls = %d, want 2", n)
	}

	geometry.Release()
	geometry.Release()
	if live := device.Live(); live["Buffer"] != 0 || live["DeviceMemory"] != 0 {
		t.Errorf("geometry still holds %d buffers", live["Buffer"])
	}
	assertNoViolations(t, device)
}

func TestUploadGeometryRejectsEmpty(t *testing.T) {
	_, _, transfer := newTestTransfer(t)

	if _, err := UploadGeometry(transfer, nil, QuadIndices); err == nil {
		t.Error("UploadGeometry() without vertices error = nil")
	}
	if _, err := UploadGeometry(transfer, QuadVertices, nil); err == nil {
		t.Error("UploadGeometry() without indices error = nil")
	}
}

func TestUploadGeometryReleasesOnFailure(t *testing.T) {
	device, _, transfer := newTestTransfer(t)
	copyErr := errors.New("copy failed")
	device.Fail = map[string]error{"CmdCopyBuffer": copyErr}

	if _, err := UploadGeometry(transfer, QuadVertices, QuadIndices); !errors.Is(err, copyErr) {
		t.Fatalf("UploadGeometry() error = %v, want %v", err, copyErr)
	}
	if live := device.Live(); live["Buffer"] != 0 || live["DeviceMemory"] != 0 {
		t.Errorf("failed upload left %v live", live)
	}
}

func TestUploadTexture(t *testing.T) {
	device, allocator, transfer := newTestTransfer(t)

	pixels := &assets.Pixels{Data: make([]byte, 4*2*4), Width: 4, Height: 2}
	texture, err := UploadTexture(device, allocator, transfer, pixels)
	if err != nil {
		t.Fatalf("UploadTexture() error = %v", err)
	}

	if pixels.Data != nil {
		t.Error("host pixels kept after staging")
	}

	info := device.ImageInfo(texture.Image.Image)
	if info.Format != TextureFormat {
		t.Errorf("image format = %v, want %v", info.Format, TextureFormat)
	}
	if info.Extent.Width != 4 || info.Extent.Height != 2 || info.Extent.Depth != 1 {
		t.Errorf("image extent = %+v, want 4x2x1", info.Extent)
	}
	if info.Tiling != core1_0.ImageTilingOptimal {
		t.Errorf("tiling = %v, want optimal", info.Tiling)
	}
	if info.Usage&core1_0.ImageUsageSampled == 0 || info.Usage&core1_0.ImageUsageTransferDst == 0 {
		t.Errorf("usage = %v, want sampled and transfer dst", info.Usage)
	}

	if len(device.Barriers) != 2 {
		t.Fatalf("got %d barriers, want 2", len(device.Barriers))
	}
	if device.Barriers[0].NewLayout != core1_0.ImageLayoutTransferDstOptimal ||
		device.Barriers[1].NewLayout != core1_0.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("barrier layouts = %v, %v", device.Barriers[0].NewLayout, device.Barriers[1].NewLayout)
	}

	all := device.Ops()
	first := indexOf(all, "CmdPipelineBarrier")
	copyAt := indexOf(all, "CmdCopyBufferToImage")
	if first < 0 || copyAt < first {
		t.Errorf("copy at %d recorded before first transition at %d", copyAt, first)
	}

	live := device.Live()
	if live["Buffer"] != 0 {
		t.Errorf("%d staging buffers still live", live["Buffer"])
	}
	if live["Image"] != 1 || live["ImageView"] != 1 {
		t.Errorf("live images/views = %d/%d, want 1/1", live["Image"], live["ImageView"])
	}

	texture.Release()
	if live := device.Live(); live["Image"] != 0 || live["ImageView"] != 0 || live["DeviceMemory"] != 0 {
		t.Errorf("texture left %v live", live)
	}
	assertNoViolations(t, device)
}

func TestUploadTextureRejectsBadPixels(t *testing.T) {
	tests := []struct {
		name   string
		pixels *assets.Pixels
	}{
		{"nil", nil},
		{"zero size", &assets.Pixels{Width: 0, Height: 4}},
		{"short data", &assets.Pixels{Data: make([]byte, 3), Width: 1, Height: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, allocator, transfer := newTestTransfer(t)
			if _, err := UploadTexture(device, allocator, transfer, tt.pixels); err == nil {
				t.Fatal("UploadTexture() error = nil")
			}
			if live := device.Live(); live["Buffer"] != 0 || live["Image"] != 0 {
				t.Errorf("rejected texture left %v live", live)
			}
		})
	}
}

func TestUploadTextureReleasesOnCopyFailure(t *testing.T) {
	device, allocator, transfer := newTestTransfer(t)
	device.Fail = map[string]error{"CmdCopyBufferToImage": errors.New("copy failed")}

	pixels := &assets.Pixels{Data: make([]byte, 4), Width: 1, Height: 1}
	if _, err := UploadTexture(device, allocator, transfer, pixels); err == nil {
		t.Fatal("UploadTexture() error = nil")
	}

	live := device.Live()
	for _, kind := range []string{"Buffer", "Image", "ImageView", "DeviceMemory", "CommandBuffer"} {
		if live[kind] != 0 {
			t.Errorf("%d %s live after failed upload", live[kind], kind)
		}
	}
}

func TestFrameRingSlots(t *testing.T) {
	device, allocator, transfer := newTestTransfer(t)
	layout, err := device.CreateDescriptorSetLayout(descriptorSetLayoutInfo())
	if err != nil {
		t.Fatalf("CreateDescriptorSetLayout() error = %v", err)
	}

	ring, err := NewFrameRing(device, allocator, transfer.pool, layout, 3)
	if err != nil {
		t.Fatalf("NewFrameRing() error = %v", err)
	}

	if ring.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ring.Len())
	}

	seen := map[gpu.Fence]bool{}
	for i := 0; i < 3; i++ {
		slot := ring.Slot(uint64(i))
		if slot.Index != i {
			t.Errorf("Slot(%d).Index = %d", i, slot.Index)
		}
		if !device.FenceSignaled(slot.InFlight) {
			t.Errorf("slot %d fence starts unsignaled", i)
		}
		if seen[slot.InFlight] {
			t.Errorf("slot %d shares a fence", i)
		}
		seen[slot.InFlight] = true

		if !device.IsMapped(slot.Uniform.Memory) {
			t.Errorf("slot %d uniform buffer is not persistently mapped", i)
		}
		if got := device.DescriptorBuffer(slot.DescriptorSet); got != slot.Uniform.Buffer {
			t.Errorf("slot %d descriptor points at buffer %d, want %d", i, got, slot.Uniform.Buffer)
		}
		if slot.ImageAvailable == slot.RenderFinished {
			t.Errorf("slot %d reuses one semaphore for both signals", i)
		}
	}

	for n := uint64(0); n < 9; n++ {
		if got := ring.Slot(n).Index; got != int(n%3) {
			t.Errorf("Slot(%d).Index = %d, want %d", n, got, n%3)
		}
	}

	ring.Destroy()
	device.DestroyDescriptorSetLayout(layout)
	device.DestroyCommandPool(transfer.pool)
	assertNothingLive(t, device)
	assertNoViolations(t, device)
}

func TestFrameRingRejectsEmpty(t *testing.T) {
	device, allocator, transfer := newTestTransfer(t)
	if _, err := NewFrameRing(device, allocator, transfer.pool, 0, 0); err == nil {
		t.Error("NewFrameRing(0) error = nil")
	}
}

func TestFrameRingCleansUpPartialSlots(t *testing.T) {
	device, allocator, transfer := newTestTransfer(t)
	device.Fail = map[string]error{"CreateFence": errors.New("out of memory")}

	if _, err := NewFrameRing(device, allocator, transfer.pool, 0, 2); err == nil {
		t.Fatal("NewFrameRing() error = nil")
	}

	device.DestroyCommandPool(transfer.pool)
	assertNothingLive(t, device)
	assertNoViolations(t, device)
}

func TestWriteUniformRoundTrip(t *testing.T) {
	device, allocator, transfer := newTestTransfer(t)
	ring, err := NewFrameRing(device, allocator, transfer.pool, 0, 2)
	if err != nil {
		t.Fatalf("NewFrameRing() error = %v", err)
	}
	defer ring.Destroy()

	ubo := &UniformBufferObject{
		Model: mgl32.HomogRotate3DZ(1),
		View:  testCamera().ViewMatrix(),
		Proj:  Projection(core1_0.Extent2D{Width: 800, Height: 600}),
	}

	slot := ring.Slot(1)
	if err = slot.WriteUniform(ubo); err != nil {
		t.Fatalf("WriteUniform() error = %v", err)
	}

	want, err := encode(ubo)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	if len(want) != 192 {
		t.Fatalf("encoded uniform is %d bytes, want 192", len(want))
	}
	if got := device.Contents(slot.Uniform.Memory); !bytes.Equal(got, want) {
		t.Error("uniform memory does not hold the written matrices")
	}
	if got := device.Contents(ring.Slot(0).Uniform.Memory); bytes.Equal(got, want) {
		t.Error("write leaked into another slot")
	}
}

func TestProjectionFlipsY(t *testing.T) {
	proj := Projection(core1_0.Extent2D{Width: 800, Height: 600})
	reference := mgl32.Perspective(mgl32.DegToRad(45), 800.0/600.0, 0.1, 10)

	if proj[5] != -reference[5] {
		t.Errorf("proj[5] = %v, want %v", proj[5], -reference[5])
	}
	for i := range proj {
		if i == 5 {
			continue
		}
		if proj[i] != reference[i] {
			t.Errorf("proj[%d] = %v, want %v", i, proj[i], reference[i])
		}
	}

	// A degenerate extent must not divide by zero.
	flat := Projection(core1_0.Extent2D{Width: 800})
	for i, v := range flat {
		if math.IsNaN(float64(v)) {
			t.Errorf("flat[%d] is NaN", i)
		}
	}
}

func TestModelMatrix(t *testing.T) {
	if got := ModelMatrix(5*time.Second, 0); got != mgl32.Ident4() {
		t.Errorf("zero rate model = %v, want identity", got)
	}

	// X lands near zero, so compare each component absolutely.
	rotated := ModelMatrix(time.Second, 90).Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	want := mgl32.Vec4{0, 1, 0, 1}
	for i := range want {
		if mgl32.Abs(rotated[i]-want[i]) > 1e-5 {
			t.Errorf("90 deg/s after 1s maps X to %v, want Y", rotated)
			break
		}
	}

	half := ModelMatrix(500*time.Millisecond, 90)
	quarter := ModelMatrix(250*time.Millisecond, 180)
	if !half.ApproxEqualThreshold(quarter, 1e-6) {
		t.Error("model matrix depends on more than elapsed times rate")
	}
}
