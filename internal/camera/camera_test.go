package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestViewMatrixMovesEyeToOrigin(t *testing.T) {
	cam := Default()
	view := cam.ViewMatrix()

	eye := view.Mul4x1(cam.Eye.Vec4(1))
	if !eye.Vec3().ApproxEqual(mgl32.Vec3{}) {
		t.Errorf("view * eye = %v, want origin", eye)
	}

	center := view.Mul4x1(cam.Center.Vec4(1))
	if center.Z() >= 0 {
		t.Errorf("view * center = %v, want it in front of the camera (negative Z)", center)
	}
}

func TestViewMatrixMatchesLookAt(t *testing.T) {
	cam := &LookAt{Eye: mgl32.Vec3{0, 0, 5}, Up: mgl32.Vec3{0, 1, 0}}
	want := mgl32.LookAtV(cam.Eye, cam.Center, cam.Up)
	if got := cam.ViewMatrix(); !got.ApproxEqual(want) {
		t.Errorf("ViewMatrix() = %v, want %v", got, want)
	}
}
