// Package camera supplies the view matrix for each frame.
package camera

import "github.com/go-gl/mathgl/mgl32"

// LookAt is a camera fixed at Eye, looking at Center with Up as the up
// vector.
type LookAt struct {
	Eye    mgl32.Vec3
	Center mgl32.Vec3
	Up     mgl32.Vec3
}

// Default frames the unit quad from above at an angle, Z up.
func Default() *LookAt {
	return &LookAt{
		Eye:    mgl32.Vec3{2, 2, 2},
		Center: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 0, 1},
	}
}

func (c *LookAt) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Center, c.Up)
}
