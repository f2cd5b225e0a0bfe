// Package vkng implements the gpu contracts on top of vkngwrapper, with the
// window surface provided by SDL2.
package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type InstanceOptions struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and routes its
	// messages to the module logger.
	Validation bool
}

// Instance owns the vkngwrapper instance, the debug messenger and the SDL
// window surface.
type Instance struct {
	driver core1_0.CoreInstanceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevices []core1_0.PhysicalDevice
}

var _ gpu.Instance = (*Instance)(nil)

// NewInstance loads the loader through SDL and creates an instance able to
// present to window. Everything created before a failure is destroyed.
func NewInstance(window *sdl.Window, opts InstanceOptions) (*Instance, error) {
	i := &Instance{}
	if err := i.create(window, opts); err != nil {
		i.Destroy()
		return nil, errors.Mark(err, gpu.ErrSetupFatal)
	}
	return i, nil
}

func (i *Instance) create(window *sdl.Window, opts InstanceOptions) error {
	globalDriver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan loader")
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "texturedquad",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	available, _, err := globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range window.VulkanGetInstanceExtensions() {
		if _, ok := available[ext]; !ok {
			return errors.Errorf("window system requires missing instance extension %s", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}

	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}
		if _, ok := layers[validationLayer]; !ok {
			return errors.Errorf("validation layer %s not available, install the Vulkan SDK or pass -validation=false", validationLayer)
		}

		info.EnabledLayerNames = append(info.EnabledLayerNames, validationLayer)
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		// Chained so instance creation and destruction are covered too.
		info.Next = debugMessengerInfo()
	}

	i.driver, _, err = globalDriver.CreateInstance(nil, info)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	if opts.Validation {
		i.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(i.driver)
		i.debugMessenger, _, err = i.debugDriver.CreateDebugUtilsMessenger(nil, debugMessengerInfo())
		if err != nil {
			return errors.Wrap(err, "create debug messenger")
		}
	}

	i.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(i.driver)
	i.surface, err = vkng_sdl2.CreateSurface(i.driver.Instance(), i.surfaceExtension, window)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}

	logging.Logger().Debug("instance created",
		"extensions", info.EnabledExtensionNames,
		"layers", info.EnabledLayerNames)
	return nil
}

// Adapters enumerates physical devices and everything adapter selection
// needs about them. Handles from a previous call are invalidated.
func (i *Instance) Adapters() ([]gpu.Adapter, error) {
	physicalDevices, _, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	i.physicalDevices = physicalDevices

	adapters := make([]gpu.Adapter, 0, len(physicalDevices))
	for index, physicalDevice := range physicalDevices {
		adapter, err := i.describe(physicalDevice)
		if err != nil {
			return nil, err
		}
		adapter.Handle = gpu.PhysicalDevice(index + 1)
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func (i *Instance) describe(physicalDevice core1_0.PhysicalDevice) (gpu.Adapter, error) {
	properties, err := i.driver.GetPhysicalDeviceProperties(physicalDevice)
	if err != nil {
		return gpu.Adapter{}, errors.Wrap(err, "query device properties")
	}

	adapter := gpu.Adapter{
		Name:                properties.Name,
		Type:                properties.Type,
		PipelineCacheUUID:   properties.PipelineCacheUUID,
		MaxImageDimension2D: int(properties.Limits.MaxImageDimension2D),
		GeometryShader:      i.driver.GetPhysicalDeviceFeatures(physicalDevice).GeometryShader,
		Extensions:          map[string]struct{}{},
	}

	for index, family := range i.driver.GetPhysicalDeviceQueueFamilyProperties(physicalDevice) {
		present, _, err := i.surfaceExtension.GetPhysicalDeviceSurfaceSupport(i.surface, physicalDevice, index)
		if err != nil {
			return adapter, errors.Wrapf(err, "query surface support of %s family %d", adapter.Name, index)
		}
		adapter.QueueFamilies = append(adapter.QueueFamilies, gpu.QueueFamily{
			Graphics: family.QueueFlags&core1_0.QueueGraphics != 0,
			Present:  present,
		})
	}

	extensions, _, err := i.driver.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		return adapter, errors.Wrapf(err, "enumerate extensions of %s", adapter.Name)
	}
	for name := range extensions {
		adapter.Extensions[name] = struct{}{}
	}

	adapter.Surface, err = querySurfaceSupport(i.surfaceExtension, i.surface, physicalDevice)
	if err != nil {
		return adapter, errors.Wrapf(err, "query surface of %s", adapter.Name)
	}
	return adapter, nil
}

func querySurfaceSupport(ext khr_surface.ExtensionDriver, surface khr_surface.Surface, physicalDevice core1_0.PhysicalDevice) (gpu.SurfaceSupport, error) {
	var support gpu.SurfaceSupport

	capabilities, _, err := ext.GetPhysicalDeviceSurfaceCapabilities(surface, physicalDevice)
	if err != nil {
		return support, err
	}
	support.Capabilities = *capabilities

	support.Formats, _, err = ext.GetPhysicalDeviceSurfaceFormats(surface, physicalDevice)
	if err != nil {
		return support, err
	}

	support.PresentModes, _, err = ext.GetPhysicalDeviceSurfacePresentModes(surface, physicalDevice)
	return support, err
}

// CreateDevice opens adapter with one queue per requested family. The
// portability subset is enabled whenever the adapter advertises it.
func (i *Instance) CreateDevice(adapter gpu.Adapter, req gpu.DeviceRequest) (gpu.Device, error) {
	index := int(adapter.Handle) - 1
	if index < 0 || index >= len(i.physicalDevices) {
		return nil, errors.Errorf("unknown adapter handle %d", adapter.Handle)
	}
	physicalDevice := i.physicalDevices[index]

	queueInfos := make([]core1_0.DeviceQueueCreateInfo, 0, len(req.QueueFamilies))
	for _, family := range req.QueueFamilies {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string{}, req.Extensions...)
	if adapter.HasExtension(khr_portability_subset.ExtensionName) {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	driver, _, err := i.driver.CreateDevice(physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueInfos,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create logical device on %s", adapter.Name)
	}

	memoryProperties := i.driver.GetPhysicalDeviceMemoryProperties(physicalDevice)
	memoryTypes := make([]gpu.MemoryType, 0, len(memoryProperties.MemoryTypes))
	for _, memoryType := range memoryProperties.MemoryTypes {
		memoryTypes = append(memoryTypes, gpu.MemoryType{
			PropertyFlags: memoryType.PropertyFlags,
			HeapIndex:     memoryType.HeapIndex,
		})
	}

	return newDevice(driver, deviceContext{
		physicalDevice:   physicalDevice,
		surfaceExtension: i.surfaceExtension,
		surface:          i.surface,
		memoryTypes:      memoryTypes,
		graphicsFamily:   req.GraphicsFamily,
		presentFamily:    req.PresentFamily,
	}), nil
}

// Destroy releases the surface, the messenger and the instance. The device
// must already be gone. Safe on a partially created instance.
func (i *Instance) Destroy() {
	if i.surface.Initialized() {
		i.surfaceExtension.DestroySurface(i.surface, nil)
		i.surface = khr_surface.Surface{}
	}

	if i.debugMessenger.Initialized() {
		i.debugDriver.DestroyDebugUtilsMessenger(i.debugMessenger, nil)
		i.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if i.driver != nil {
		i.driver.DestroyInstance(nil)
		i.driver = nil
	}
}
