package renderer

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/assets"
	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/gpu/gputest"
)

type fakeWindow struct {
	width, height int
	resized       bool
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{width: 800, height: 600}
}

func (w *fakeWindow) DrawableSize() (int, int) { return w.width, w.height }
func (w *fakeWindow) Resized() bool            { return w.resized }
func (w *fakeWindow) ClearResized()            { w.resized = false }

type fixedCamera struct {
	view mgl32.Mat4
}

func (c fixedCamera) ViewMatrix() mgl32.Mat4 { return c.view }

func testCamera() fixedCamera {
	return fixedCamera{view: mgl32.LookAtV(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1})}
}

// spirv is a stand-in shader binary: the SPIR-V magic number and nothing
// else.
var spirv = []byte{0x03, 0x02, 0x23, 0x07}

func testAssets() *assets.Set {
	return &assets.Set{
		VertexShader:   spirv,
		FragmentShader: spirv,
		Texture: &assets.Pixels{
			Data:   make([]byte, 2*2*4),
			Width:  2,
			Height: 2,
		},
	}
}

type testRig struct {
	instance *gputest.Instance
	device   *gputest.Device
	window   *fakeWindow
	renderer *Renderer
}

func newTestRig(t *testing.T, configure func(*gputest.Instance), opts Options) *testRig {
	t.Helper()

	instance := gputest.NewInstance()
	if configure != nil {
		configure(instance)
	}
	if opts.Elapsed == nil {
		opts.Elapsed = func() time.Duration { return 0 }
	}

	rig := &testRig{
		instance: instance,
		device:   instance.Device,
		window:   newFakeWindow(),
	}

	r, err := New(instance, rig.window, testCamera(), testAssets(), opts)
	if err != nil {
		t.Fatalf("New() error = %+v", err)
	}
	rig.renderer = r
	t.Cleanup(func() { r.Close() })
	return rig
}

func (rig *testRig) drawFrames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := rig.renderer.DrawFrame(); err != nil {
			t.Fatalf("DrawFrame() #%d error = %+v", i, err)
		}
	}
}

func assertNoViolations(t *testing.T, device *gputest.Device) {
	t.Helper()
	for _, v := range device.Violations {
		t.Errorf("device violation: %s", v)
	}
}

func assertNothingLive(t *testing.T, device *gputest.Device) {
	t.Helper()
	for kind, n := range device.Live() {
		if n != 0 {
			t.Errorf("%d %s objects still live", n, kind)
		}
	}
}

// newTestTransfer wires an allocator and transfer engine to a fresh fake
// device.
func newTestTransfer(t *testing.T) (*gputest.Device, *Allocator, *TransferEngine) {
	t.Helper()
	device := gputest.NewDevice()
	pool, err := device.CreateCommandPool(0, core1_0.CommandPoolCreateResetBuffer)
	if err != nil {
		t.Fatalf("CreateCommandPool() error = %v", err)
	}
	allocator := NewAllocator(device)
	return device, allocator, NewTransferEngine(device, allocator, pool)
}

func families(graphics, present int) QueueFamilyIndices {
	return QueueFamilyIndices{Graphics: &graphics, Present: &present}
}

func ops(device *gputest.Device, from int) []string {
	return device.Ops()[from:]
}

func countIn(list []string, op string) int {
	n := 0
	for _, s := range list {
		if s == op {
			n++
		}
	}
	return n
}

func indexOf(list []string, op string) int {
	for i, s := range list {
		if s == op {
			return i
		}
	}
	return -1
}

var _ gpu.Device = (*gputest.Device)(nil)
var _ gpu.Instance = (*gputest.Instance)(nil)
