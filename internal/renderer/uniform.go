package renderer

import (
	"time"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// UniformBufferObject is the per-frame shader payload: model, view and
// projection in column-major order.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

var uniformBufferSize = int(unsafe.Sizeof(UniformBufferObject{}))

const (
	fieldOfViewDegrees = 45
	nearPlane          = 0.1
	farPlane           = 10
)

// Projection is a right-handed perspective projection for extent with the
// Y axis flipped for Vulkan clip space.
func Projection(extent core1_0.Extent2D) mgl32.Mat4 {
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}

	proj := mgl32.Perspective(mgl32.DegToRad(fieldOfViewDegrees), aspect, nearPlane, farPlane)
	proj[5] *= -1
	return proj
}

// ModelMatrix rotates about Z by degreesPerSecond over elapsed. A zero rate
// gives the identity.
func ModelMatrix(elapsed time.Duration, degreesPerSecond float64) mgl32.Mat4 {
	if degreesPerSecond == 0 {
		return mgl32.Ident4()
	}
	angle := float32(elapsed.Seconds() * degreesPerSecond)
	return mgl32.HomogRotate3DZ(mgl32.DegToRad(angle))
}
