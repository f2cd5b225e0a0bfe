package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/assets"
	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

const TextureFormat = core1_0.FormatR8G8B8A8SRGB

// Texture is a sampled image in shader-read layout together with a view over
// its single mip level.
type Texture struct {
	Image *ImageAllocation
	View  gpu.ImageView

	device gpu.Device
}

// UploadTexture stages pixels, copies them into a device-local image and
// leaves the image ready for sampling. The host pixel data is dropped once
// it has been staged.
func UploadTexture(device gpu.Device, allocator *Allocator, transfer *TransferEngine, pixels *assets.Pixels) (*Texture, error) {
	if pixels == nil || pixels.Width <= 0 || pixels.Height <= 0 {
		return nil, errors.New("texture has no pixels")
	}
	if len(pixels.Data) != pixels.Size() {
		return nil, errors.Newf("texture data is %d bytes, want %d for %dx%d",
			len(pixels.Data), pixels.Size(), pixels.Width, pixels.Height)
	}

	staging, err := transfer.stage(pixels.Data)
	if err != nil {
		return nil, err
	}
	defer staging.Release()
	pixels.Release()

	texture := &Texture{device: device}

	texture.Image, err = allocator.CreateImage(pixels.Width, pixels.Height,
		TextureFormat,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, errors.Wrap(err, "create texture image")
	}

	err = transfer.TransitionImageLayout(texture.Image.Image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	if err != nil {
		texture.Release()
		return nil, err
	}

	err = transfer.CopyBufferToImage(staging.Buffer, texture.Image.Image, pixels.Width, pixels.Height)
	if err != nil {
		texture.Release()
		return nil, err
	}

	err = transfer.TransitionImageLayout(texture.Image.Image, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	if err != nil {
		texture.Release()
		return nil, err
	}

	texture.View, err = device.CreateImageView(gpu.ImageViewDesc{
		Image:  texture.Image.Image,
		Format: TextureFormat,
		Aspect: core1_0.ImageAspectColor,
	})
	if err != nil {
		texture.Release()
		return nil, errors.Wrap(err, "create texture view")
	}

	return texture, nil
}

func (t *Texture) Release() {
	if t == nil {
		return
	}
	if t.View != 0 {
		t.device.DestroyImageView(t.View)
		t.View = 0
	}
	t.Image.Release()
}
