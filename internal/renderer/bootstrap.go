package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
	"github.com/vkngwrapper/texturedquad/internal/logging"
)

// DeviceExtensions must be supported by any adapter the renderer selects.
var DeviceExtensions = []string{
	khr_swapchain.ExtensionName,
}

const discreteGPUBonus = 1000

type QueueFamilyIndices struct {
	Graphics *int
	Present  *int
}

func (i *QueueFamilyIndices) IsComplete() bool {
	return i.Graphics != nil && i.Present != nil
}

// Unique lists the distinct families, graphics first.
func (i *QueueFamilyIndices) Unique() []int {
	if !i.IsComplete() {
		return nil
	}
	if *i.Graphics == *i.Present {
		return []int{*i.Graphics}
	}
	return []int{*i.Graphics, *i.Present}
}

// FindQueueFamilies picks the first graphics family and the first family
// able to present, preferring a single family that does both.
func FindQueueFamilies(families []gpu.QueueFamily) QueueFamilyIndices {
	indices := QueueFamilyIndices{}

	for queueFamilyIdx, queueFamily := range families {
		if queueFamily.Graphics && queueFamily.Present {
			idx := queueFamilyIdx
			return QueueFamilyIndices{Graphics: &idx, Present: &idx}
		}
	}

	for queueFamilyIdx, queueFamily := range families {
		if queueFamily.Graphics && indices.Graphics == nil {
			indices.Graphics = new(int)
			*indices.Graphics = queueFamilyIdx
		}

		if queueFamily.Present && indices.Present == nil {
			indices.Present = new(int)
			*indices.Present = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices
}

// Selection is the adapter chosen at bootstrap and the queue families the
// logical device is created with.
type Selection struct {
	Adapter  gpu.Adapter
	Families QueueFamilyIndices
	Score    int
}

// RateAdapter scores a discrete GPU above an integrated one and larger
// maximum image sizes above smaller ones. ok is false when the adapter lacks
// a hard requirement, in which case the score is meaningless.
func RateAdapter(adapter gpu.Adapter, required []string) (score int, ok bool) {
	if !adapter.GeometryShader {
		return 0, false
	}

	families := FindQueueFamilies(adapter.QueueFamilies)
	if !families.IsComplete() {
		return 0, false
	}

	for _, extension := range required {
		if !adapter.HasExtension(extension) {
			return 0, false
		}
	}

	if len(adapter.Surface.Formats) == 0 || len(adapter.Surface.PresentModes) == 0 {
		return 0, false
	}

	if adapter.Type == core1_0.PhysicalDeviceTypeDiscreteGPU {
		score += discreteGPUBonus
	}
	score += adapter.MaxImageDimension2D

	return score, true
}

// SelectAdapter returns the first adapter in enumeration order among the
// highest scoring ones that meet every hard requirement. A lower scoring
// adapter is passed over even when it is enumerated first and would suffice.
func SelectAdapter(adapters []gpu.Adapter, required []string) (Selection, error) {
	if len(adapters) == 0 {
		return Selection{}, errors.Mark(errors.New("no GPU detected with Vulkan support"), gpu.ErrNoSuitableDevice)
	}

	var best Selection
	found := false

	for _, adapter := range adapters {
		score, ok := RateAdapter(adapter, required)
		logging.Logger().Debug("adapter rated",
			"name", adapter.Name,
			"type", adapter.Type,
			"score", score,
			"suitable", ok)
		if !ok {
			continue
		}

		if !found || score > best.Score {
			best = Selection{
				Adapter:  adapter,
				Families: FindQueueFamilies(adapter.QueueFamilies),
				Score:    score,
			}
			found = true
		}
	}

	if !found {
		return Selection{}, errors.Mark(
			errors.Newf("none of %d adapters meets the device requirements", len(adapters)),
			gpu.ErrNoSuitableDevice)
	}

	logging.Logger().Info("adapter selected",
		"name", best.Adapter.Name,
		"type", best.Adapter.Type,
		"score", best.Score,
		"pipeline_cache_uuid", best.Adapter.PipelineCacheUUID,
		"graphics_family", *best.Families.Graphics,
		"present_family", *best.Families.Present)
	return best, nil
}

// CreateDevice creates the logical device with one queue per distinct family
// in the selection.
func CreateDevice(instance gpu.Instance, selection Selection) (gpu.Device, error) {
	device, err := instance.CreateDevice(selection.Adapter, gpu.DeviceRequest{
		QueueFamilies:  selection.Families.Unique(),
		GraphicsFamily: *selection.Families.Graphics,
		PresentFamily:  *selection.Families.Present,
		Extensions:     DeviceExtensions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create logical device")
	}
	return device, nil
}
