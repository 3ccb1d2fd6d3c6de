package sonar

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"sonar-sim-go/internal/mesh"
	"sonar-sim-go/internal/render"
	"sonar-sim-go/internal/types"
)

// Orthographic clip planes of the canvas camera. The canvas sits between them
// at mesh.CanvasDepth.
const (
	canvasNear = 0.01
	canvasFar  = 0.02
)

// DepthShader writes the distance from the camera to the hit and the
// surface's retro-reflectance.
type DepthShader struct{}

func (DepthShader) Shade(surface render.Surface, hit render.Hit, _ *render.PerspectiveCamera) render.Color {
	return render.Color{float32(hit.Distance), float32(surface.Retro), 0}
}

// StitchShader samples, for every mesh point, the first-pass texture its
// TextureIndex selects. Ranges outside the clip range become +Inf.
type StitchShader struct {
	Textures []*render.Target
	Near     float64
	Far      float64
}

func (s StitchShader) ShadePoint(v mesh.Vertex) (render.Color, bool) {
	if v.TextureIndex < 0 || v.TextureIndex >= len(s.Textures) {
		return render.Color{}, false
	}
	c := s.Textures[v.TextureIndex].Sample(v.U, v.V)
	r := float64(c[0])
	if r < s.Near || r >= s.Far {
		return render.Color{float32(math.Inf(1)), 0, 0}, true
	}
	return render.Color{c[0], c[1], 0}, true
}

// Compositor runs the two render passes of one frame.
type Compositor struct {
	backend   render.Backend
	camera    *render.PerspectiveCamera
	cameras   *CameraArray
	mesh      *mesh.Mesh
	composite *render.Target
	proj      mgl64.Mat4
	geom      types.ScanGeometry

	firstPass  time.Duration
	secondPass time.Duration
}

func newCompositor(backend render.Backend, geom types.ScanGeometry, cam *render.PerspectiveCamera, cameras *CameraArray, m *mesh.Mesh, composite *render.Target) *Compositor {
	w, h := m.CanvasSize()
	return &Compositor{
		backend:   backend,
		camera:    cam,
		cameras:   cameras,
		mesh:      m,
		composite: composite,
		proj:      render.ScaledOrtho(0, w, 0, h, canvasNear, canvasFar),
		geom:      geom,
	}
}

// Render draws every sub-camera's depth texture, then stitches them onto the
// composite target through the undistortion mesh. The composite front buffer
// holds the new frame when Render returns nil.
func (c *Compositor) Render() error {
	start := time.Now()
	if err := c.firstPassRender(); err != nil {
		return err
	}
	c.firstPass = time.Since(start)

	start = time.Now()
	shader := StitchShader{
		Textures: c.cameras.Textures(),
		Near:     c.geom.NearClip,
		Far:      c.geom.FarClip,
	}
	opts := render.PassOptions{Background: render.Color{0, 1, 0}}
	if err := c.backend.RenderPoints(c.composite, c.proj, c.mesh.Vertices, shader, opts); err != nil {
		return errors.Wrap(err, "second pass")
	}
	if err := c.composite.Swap(); err != nil {
		return errors.Wrap(err, "second pass swap")
	}
	c.secondPass = time.Since(start)
	return nil
}

func (c *Compositor) firstPassRender() error {
	multi := len(c.cameras.Views) > 1
	saved := c.camera.Yaw

	opts := render.PassOptions{Background: render.Color{float32(c.geom.FarClip), 0, 1}}
	for _, view := range c.cameras.Views {
		if multi {
			c.camera.RotateYaw(view.YawOffset)
		}
		if err := c.backend.RenderScene(c.camera, view.Target, DepthShader{}, opts); err != nil {
			c.camera.Yaw = saved
			return errors.Wrapf(err, "first pass camera %d", view.Index)
		}
	}
	if multi {
		c.camera.RotateYaw(c.cameras.RestoreYaw)
		// drop rounding drift so frames stay deterministic
		c.camera.Yaw = saved
	}

	// every texture must be complete before the second pass samples it
	for _, view := range c.cameras.Views {
		if err := view.Target.Swap(); err != nil {
			return errors.Wrapf(err, "first pass swap %d", view.Index)
		}
	}
	return nil
}

// LastRenderDuration is the time spent in both passes of the last frame.
func (c *Compositor) LastRenderDuration() time.Duration {
	return c.firstPass + c.secondPass
}
