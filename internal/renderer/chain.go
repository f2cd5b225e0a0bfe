package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

// Surfaces report this width when the swapchain extent decides the surface
// size rather than the other way around.
const undefinedExtent = 0xFFFFFFFF

// Chain is the swapchain and everything sized to it: one view and one
// framebuffer per swapchain image.
type Chain struct {
	Swapchain    gpu.Swapchain
	Format       khr_surface.SurfaceFormat
	PresentMode  khr_surface.PresentMode
	Extent       core1_0.Extent2D
	Images       []gpu.Image
	Views        []gpu.ImageView
	Framebuffers []gpu.Framebuffer

	device     gpu.Device
	window     Window
	families   QueueFamilyIndices
	renderPass gpu.RenderPass
}

// NewChain negotiates and creates the swapchain and its image views.
// Framebuffers follow once a render pass is attached.
func NewChain(device gpu.Device, window Window, families QueueFamilyIndices) (*Chain, error) {
	chain := &Chain{
		device:   device,
		window:   window,
		families: families,
	}

	if err := chain.create(); err != nil {
		chain.Destroy()
		return nil, err
	}
	return chain, nil
}

// AttachRenderPass creates framebuffers for renderPass and keeps using it on
// every rebuild.
func (c *Chain) AttachRenderPass(renderPass gpu.RenderPass) error {
	c.renderPass = renderPass
	return c.createFramebuffers()
}

// Rebuild replaces the swapchain with one negotiated against the current
// surface. The device must be idle.
func (c *Chain) Rebuild() error {
	c.teardown()

	if err := c.create(); err != nil {
		return err
	}
	if c.renderPass == 0 {
		return nil
	}
	return c.createFramebuffers()
}

func (c *Chain) Destroy() {
	c.teardown()
	c.renderPass = 0
}

func (c *Chain) create() error {
	support, err := c.device.SurfaceSupport()
	if err != nil {
		return errors.Wrap(err, "query surface support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return errors.New("surface offers no formats or present modes")
	}

	width, height := c.window.DrawableSize()

	c.Format = ChooseSurfaceFormat(support.Formats)
	c.PresentMode = ChoosePresentMode(support.PresentModes)
	c.Extent = ChooseExtent(support.Capabilities, width, height)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if *c.families.Graphics != *c.families.Present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *c.families.Graphics, *c.families.Present)
	}

	c.Swapchain, err = c.device.CreateSwapchain(gpu.SwapchainDesc{
		MinImageCount:      ChooseImageCount(support.Capabilities),
		Format:             c.Format,
		PresentMode:        c.PresentMode,
		Extent:             c.Extent,
		SharingMode:        sharingMode,
		QueueFamilyIndices: queueFamilyIndices,
		PreTransform:       support.Capabilities.CurrentTransform,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	c.Images, err = c.device.SwapchainImages(c.Swapchain)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}

	for _, image := range c.Images {
		view, err := c.device.CreateImageView(gpu.ImageViewDesc{
			Image:  image,
			Format: c.Format.Format,
			Aspect: core1_0.ImageAspectColor,
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}
		c.Views = append(c.Views, view)
	}

	logging.Logger().Info("swapchain created",
		"images", len(c.Images),
		"format", c.Format.Format,
		"present_mode", c.PresentMode,
		"width", c.Extent.Width,
		"height", c.Extent.Height)
	return nil
}

func (c *Chain) createFramebuffers() error {
	for _, view := range c.Views {
		framebuffer, err := c.device.CreateFramebuffer(gpu.FramebufferDesc{
			RenderPass: c.renderPass,
			View:       view,
			Extent:     c.Extent,
		})
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}
		c.Framebuffers = append(c.Framebuffers, framebuffer)
	}
	return nil
}

func (c *Chain) teardown() {
	for _, framebuffer := range c.Framebuffers {
		c.device.DestroyFramebuffer(framebuffer)
	}
	c.Framebuffers = nil

	for _, view := range c.Views {
		c.device.DestroyImageView(view)
	}
	c.Views = nil
	c.Images = nil

	if c.Swapchain != 0 {
		c.device.DestroySwapchain(c.Swapchain)
		c.Swapchain = 0
	}
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB with a nonlinear sRGB color
// space and otherwise takes the first format offered.
func ChooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return available[0]
}

// ChoosePresentMode prefers immediate presentation and falls back to FIFO,
// which every surface supports.
func ChoosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == khr_surface.PresentModeImmediate {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the surface's current extent when it is defined and
// otherwise clamps the drawable size into the supported range.
func ChooseExtent(capabilities khr_surface.SurfaceCapabilities, drawableWidth, drawableHeight int) core1_0.Extent2D {
	current := capabilities.CurrentExtent
	if current.Width != -1 && current.Width != undefinedExtent {
		return current
	}

	return core1_0.Extent2D{
		Width:  clamp(drawableWidth, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(drawableHeight, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum, capped by the
// maximum when the surface has one. A maximum of zero means unbounded.
func ChooseImageCount(capabilities khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
