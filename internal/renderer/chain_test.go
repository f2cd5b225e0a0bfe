package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/texturedquad/internal/gpu/gputest"
)

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	unorm := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	rgba := khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	tests := []struct {
		name      string
		available []khr_surface.SurfaceFormat
		want      khr_surface.SurfaceFormat
	}{
		{"only preferred", []khr_surface.SurfaceFormat{preferred}, preferred},
		{"preferred later", []khr_surface.SurfaceFormat{unorm, rgba, preferred}, preferred},
		{"fallback to first", []khr_surface.SurfaceFormat{rgba, unorm}, rgba},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseSurfaceFormat(tt.available); got != tt.want {
				t.Errorf("ChooseSurfaceFormat() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		name      string
		available []khr_surface.PresentMode
		want      khr_surface.PresentMode
	}{
		{"immediate offered", []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate}, khr_surface.PresentModeImmediate},
		{"fifo only", []khr_surface.PresentMode{khr_surface.PresentModeFIFO}, khr_surface.PresentModeFIFO},
		{"mailbox is not preferred", []khr_surface.PresentMode{khr_surface.PresentModeMailbox, khr_surface.PresentModeFIFO}, khr_surface.PresentModeFIFO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChoosePresentMode(tt.available); got != tt.want {
				t.Errorf("ChoosePresentMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChooseExtent(t *testing.T) {
	limits := func(current core1_0.Extent2D) khr_surface.SurfaceCapabilities {
		return khr_surface.SurfaceCapabilities{
			CurrentExtent:  current,
			MinImageExtent: core1_0.Extent2D{Width: 100, Height: 100},
			MaxImageExtent: core1_0.Extent2D{Width: 1920, Height: 1080},
		}
	}

	tests := []struct {
		name          string
		current       core1_0.Extent2D
		width, height int
		want          core1_0.Extent2D
	}{
		{"current extent wins", core1_0.Extent2D{Width: 640, Height: 480}, 1024, 768, core1_0.Extent2D{Width: 640, Height: 480}},
		{"undefined uses drawable", core1_0.Extent2D{Width: undefinedExtent, Height: undefinedExtent}, 1024, 768, core1_0.Extent2D{Width: 1024, Height: 768}},
		{"negative sentinel", core1_0.Extent2D{Width: -1, Height: -1}, 800, 600, core1_0.Extent2D{Width: 800, Height: 600}},
		{"clamped above", core1_0.Extent2D{Width: -1, Height: -1}, 4000, 3000, core1_0.Extent2D{Width: 1920, Height: 1080}},
		{"clamped below", core1_0.Extent2D{Width: -1, Height: -1}, 10, 5000, core1_0.Extent2D{Width: 100, Height: 1080}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseExtent(limits(tt.current), tt.width, tt.height); got != tt.want {
				t.Errorf("ChooseExtent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max int
		want     int
	}{
		{2, 8, 3},
		{2, 0, 3},
		{3, 3, 3},
		{1, 2, 2},
	}

	for _, tt := range tests {
		caps := khr_surface.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := ChooseImageCount(caps); got != tt.want {
			t.Errorf("ChooseImageCount(min %d, max %d) = %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestNewChainSharingMode(t *testing.T) {
	tests := []struct {
		name     string
		families QueueFamilyIndices
		mode     core1_0.SharingMode
		indices  []int
	}{
		{"shared family", families(0, 0), core1_0.SharingModeExclusive, nil},
		{"split families", families(0, 2), core1_0.SharingModeConcurrent, []int{0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := gputest.NewDevice()
			chain, err := NewChain(device, newFakeWindow(), tt.families)
			if err != nil {
				t.Fatalf("NewChain() error = %v", err)
			}
			defer chain.Destroy()

			desc := device.Swapchains[0]
			if desc.SharingMode != tt.mode {
				t.Errorf("sharing mode = %v, want %v", desc.SharingMode, tt.mode)
			}
			if len(desc.QueueFamilyIndices) != len(tt.indices) {
				t.Fatalf("queue family indices = %v, want %v", desc.QueueFamilyIndices, tt.indices)
			}
			for i := range tt.indices {
				if desc.QueueFamilyIndices[i] != tt.indices[i] {
					t.Errorf("queue family indices = %v, want %v", desc.QueueFamilyIndices, tt.indices)
				}
			}
		})
	}
}

func TestNewChainNegotiates(t *testing.T) {
	device := gputest.NewDevice()
	chain, err := NewChain(device, newFakeWindow(), families(0, 0))
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}

	if chain.Format.Format != core1_0.FormatB8G8R8A8SRGB {
		t.Errorf("format = %v, want B8G8R8A8 sRGB", chain.Format.Format)
	}
	if chain.PresentMode != khr_surface.PresentModeImmediate {
		t.Errorf("present mode = %v, want immediate", chain.PresentMode)
	}
	if chain.Extent != (core1_0.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("extent = %+v, want 800x600", chain.Extent)
	}
	if len(chain.Images) != 3 || len(chain.Views) != 3 {
		t.Errorf("images/views = %d/%d, want 3/3", len(chain.Images), len(chain.Views))
	}
	if len(chain.Framebuffers) != 0 {
		t.Errorf("framebuffers created before a render pass was attached")
	}
	if device.Swapchains[0].PreTransform != khr_surface.TransformIdentity {
		t.Errorf("pre-transform = %v, want current transform", device.Swapchains[0].PreTransform)
	}

	chain.Destroy()
	chain.Destroy()
	assertNothingLive(t, device)
	assertNoViolations(t, device)
}

func TestChainRebuildKeepsShape(t *testing.T) {
	device := gputest.NewDevice()
	window := newFakeWindow()

	renderPass, err := device.CreateRenderPass(renderPassInfo(core1_0.FormatB8G8R8A8SRGB))
	if err != nil {
		t.Fatalf("CreateRenderPass() error = %v", err)
	}

	chain, err := NewChain(device, window, families(0, 0))
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}
	if err = chain.AttachRenderPass(renderPass); err != nil {
		t.Fatalf("AttachRenderPass() error = %v", err)
	}

	device.Support.Capabilities.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	sizes := [][2]int{{1024, 768}, {640, 480}, {5000, 20}, {800, 600}}

	for i, size := range sizes {
		previous := chain.Swapchain
		window.width, window.height = size[0], size[1]

		if err = chain.Rebuild(); err != nil {
			t.Fatalf("Rebuild() #%d error = %v", i, err)
		}

		if chain.Swapchain == previous {
			t.Errorf("rebuild #%d kept swapchain %d", i, previous)
		}
		if len(chain.Images) != len(chain.Views) || len(chain.Views) != len(chain.Framebuffers) {
			t.Errorf("rebuild #%d: %d images, %d views, %d framebuffers",
				i, len(chain.Images), len(chain.Views), len(chain.Framebuffers))
		}

		want := ChooseExtent(device.Support.Capabilities, size[0], size[1])
		if chain.Extent != want {
			t.Errorf("rebuild #%d extent = %+v, want %+v", i, chain.Extent, want)
		}

		live := device.Live()
		if live["Swapchain"] != 1 || live["ImageView"] != 3 || live["Framebuffer"] != 3 {
			t.Errorf("rebuild #%d live objects = %v", i, live)
		}
	}

	chain.Destroy()
	device.DestroyRenderPass(renderPass)
	assertNothingLive(t, device)
	assertNoViolations(t, device)
}

func TestNewChainRejectsEmptySurface(t *testing.T) {
	device := gputest.NewDevice()
	device.Support.PresentModes = nil

	if _, err := NewChain(device, newFakeWindow(), families(0, 0)); err == nil {
		t.Fatal("NewChain() error = nil for a surface with no present modes")
	}
	assertNothingLive(t, device)
}

func TestNewChainCleansUpPartialViews(t *testing.T) {
	device := gputest.NewDevice()
	device.Fail = map[string]error{"CreateImageView": errors.New("out of memory")}

	if _, err := NewChain(device, newFakeWindow(), families(0, 0)); err == nil {
		t.Fatal("NewChain() error = nil")
	}
	assertNothingLive(t, device)
	assertNoViolations(t, device)
}
