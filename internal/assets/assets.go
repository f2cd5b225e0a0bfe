// Package assets implements the file-loading collaborators of the renderer:
// precompiled shader binaries and decoded texture pixels.
package assets

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

// Pixels is a decoded image expanded to 8-bit RGBA, tightly packed, rows
// top to bottom. Alpha is straight, not premultiplied.
type Pixels struct {
	Data   []byte
	Width  int
	Height int
}

// Size is the byte length of the packed pixel data.
func (p *Pixels) Size() int {
	return p.Width * p.Height * 4
}

// Release drops the pixel data once it has been staged to the device.
func (p *Pixels) Release() {
	p.Data = nil
}

// Paths names the assets the renderer cannot run without.
type Paths struct {
	VertexShader   string
	FragmentShader string
	Texture        string
}

type Set struct {
	VertexShader   []byte
	FragmentShader []byte
	Texture        *Pixels
}

func LoadShader(fsys fs.FS, path string) ([]byte, error) {
	code, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read shader %s", path), gpu.ErrAssetLoad)
	}
	return code, nil
}

// LoadImage decodes any registered format (png, jpeg, bmp, tiff, webp) and
// expands it to four channels regardless of the source channel count.
func LoadImage(fsys fs.FS, path string) (*Pixels, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open texture %s", path), gpu.ErrAssetLoad)
	}
	defer file.Close()

	decoded, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode texture %s", path), gpu.ErrAssetLoad)
	}

	return ToPixels(decoded), nil
}

func ToPixels(img image.Image) *Pixels {
	bounds := img.Bounds()
	size := bounds.Dx() * bounds.Dy() * 4
	rgba, ok := img.(*image.NRGBA)
	// A sub-image shares its parent's Pix through the parent's end, so the
	// length is checked as well as the stride.
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) || len(rgba.Pix) != size {
		rgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return &Pixels{
		Data:   rgba.Pix,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
}

// LoadSet loads both shaders and the texture concurrently and reports the
// first failure.
func LoadSet(ctx context.Context, fsys fs.FS, paths Paths) (*Set, error) {
	set := &Set{}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		set.VertexShader, err = LoadShader(fsys, paths.VertexShader)
		return err
	})
	group.Go(func() error {
		var err error
		set.FragmentShader, err = LoadShader(fsys, paths.FragmentShader)
		return err
	})
	group.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		set.Texture, err = LoadImage(fsys, paths.Texture)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}
