// Package render defines the renderer backend the sensor drives and the
// pieces every backend shares: render targets, cameras, projections and the
// shader strategies invoked per drawable.
package render

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"sonar-sim-go/internal/mesh"
)

var (
	ErrAllocation  = errors.New("render resource allocation failed")
	ErrReleased    = errors.New("render resource already released")
	ErrUnsupported = errors.New("render pass option not supported")
)

type Color [3]float32

// PassOptions toggles fixed-function state for one pass. Depth passes run
// with lighting, fog and shadows off; a backend that cannot honour a flag
// rejects the pass through Check.
type PassOptions struct {
	Lighting   bool
	Fog        bool
	Shadows    bool
	Background Color
}

// Check fails with ErrUnsupported for any flag a shading-free backend
// cannot apply.
func (o PassOptions) Check() error {
	switch {
	case o.Lighting:
		return errors.Wrap(ErrUnsupported, "lighting")
	case o.Fog:
		return errors.Wrap(ErrUnsupported, "fog")
	case o.Shadows:
		return errors.Wrap(ErrUnsupported, "shadows")
	}
	return nil
}

// Surface identifies the drawable a ray hit.
type Surface struct {
	Name  string
	Retro float64
}

// Hit is one ray/scene intersection as seen from the rendering camera.
type Hit struct {
	Distance float64
	Point    r3.Vector
	Normal   r3.Vector
}

// SurfaceShader turns a hit on a drawable into a texel value.
type SurfaceShader interface {
	Shade(surface Surface, hit Hit, cam *PerspectiveCamera) Color
}

// PointShader produces the colour of one point primitive. Returning false
// discards the point.
type PointShader interface {
	ShadePoint(v mesh.Vertex) (Color, bool)
}

// Backend is the renderer the sensor submits its passes to. Calls are
// synchronous: when a render call returns, the target's back buffer holds the
// finished frame.
type Backend interface {
	NewCamera(name string) (*PerspectiveCamera, error)
	ReleaseCamera(cam *PerspectiveCamera) error
	AllocTarget(name string, width, height int, readback bool) (*Target, error)
	ReleaseTarget(t *Target) error
	RenderScene(cam *PerspectiveCamera, target *Target, shader SurfaceShader, opts PassOptions) error
	RenderPoints(target *Target, proj mgl64.Mat4, vertices []mesh.Vertex, shader PointShader, opts PassOptions) error
	Blit(target *Target, dst []float32) error
}

// ScaledOrtho builds an orthographic projection mapping the box
// [left,right]x[bottom,top]x[-near,-far] onto normalized device space.
func ScaledOrtho(left, right, bottom, top, near, far float64) mgl64.Mat4 {
	invw := 1 / (right - left)
	invh := 1 / (top - bottom)
	invd := 1 / (far - near)

	var proj mgl64.Mat4
	proj.Set(0, 0, 2*invw)
	proj.Set(0, 3, -(right+left)*invw)
	proj.Set(1, 1, 2*invh)
	proj.Set(1, 3, -(top+bottom)*invh)
	proj.Set(2, 2, -2*invd)
	proj.Set(2, 3, -(far+near)*invd)
	proj.Set(3, 3, 1)
	return proj
}

// RasterizePoints projects vertices through proj onto the target's back
// buffer, one pixel per point. Points outside the clip volume are dropped.
// Backends without a native point pipeline use it to implement RenderPoints.
func RasterizePoints(target *Target, proj mgl64.Mat4, vertices []mesh.Vertex, shader PointShader, opts PassOptions) error {
	if err := target.Clear(opts.Background); err != nil {
		return err
	}
	w, h := float64(target.Width()), float64(target.Height())
	for _, v := range vertices {
		clip := proj.Mul4x1(mgl64.Vec4{v.X, v.Y, v.Z, 1})
		ndc := clip.Vec3().Mul(1 / clip.W())
		if ndc.X() < -1 || ndc.X() > 1 || ndc.Y() < -1 || ndc.Y() > 1 || ndc.Z() < -1 || ndc.Z() > 1 {
			continue
		}
		px := int((ndc.X() + 1) / 2 * w)
		py := int((1 - ndc.Y()) / 2 * h)
		if px >= target.Width() || py >= target.Height() {
			continue
		}
		c, ok := shader.ShadePoint(v)
		if !ok {
			continue
		}
		target.Set(px, py, c)
	}
	return nil
}
