package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// PerspectiveCamera looks along its local +X axis with +Z up. Yaw is the
// rotation about the local Z axis applied on top of the sensor heading.
type PerspectiveCamera struct {
	Name     string
	Position r3.Vector
	Heading  float64
	Pitch    float64
	Yaw      float64
	FOVy     float64
	Aspect   float64
	Near     float64
	Far      float64
}

// RotateYaw turns the camera about its own up axis.
func (c *PerspectiveCamera) RotateYaw(angle float64) {
	c.Yaw += angle
}

// Orientation is the camera-to-world rotation.
func (c *PerspectiveCamera) Orientation() mgl64.Mat4 {
	return mgl64.HomogRotate3DZ(c.Heading + c.Yaw).Mul4(mgl64.HomogRotate3DY(-c.Pitch))
}

// HorizontalFOV derives the horizontal field of view from FOVy and Aspect.
func (c *PerspectiveCamera) HorizontalFOV() float64 {
	return 2 * math.Atan(c.Aspect*math.Tan(c.FOVy/2))
}

// Ray returns the unit world direction through the centre of pixel (px, py)
// of a width x height image.
func (c *PerspectiveCamera) Ray(px, py, width, height int) r3.Vector {
	nx := 2*(float64(px)+0.5)/float64(width) - 1
	ny := 1 - 2*(float64(py)+0.5)/float64(height)
	tanV := math.Tan(c.FOVy / 2)
	tanH := c.Aspect * tanV

	local := mgl64.Vec4{1, -nx * tanH, ny * tanV, 0}
	world := c.Orientation().Mul4x1(local)
	return r3.Vector{X: world.X(), Y: world.Y(), Z: world.Z()}.Normalize()
}
