package simulator

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"sonar-sim-go/internal/mesh"
	"sonar-sim-go/internal/render"
)

// Backend is a CPU renderer that ray-casts a Scene. It implements
// render.Backend.
type Backend struct {
	// Workers is the number of goroutines sharing the rows of one pass.
	Workers int
	// MaxTargets caps live render targets; 0 means no cap.
	MaxTargets int

	mu         sync.Mutex
	scene      *Scene
	targets    map[*render.Target]struct{}
	cameras    map[*render.PerspectiveCamera]struct{}
	renderErr  error
	scenePass  uint64
	pointsPass uint64
}

func NewBackend(scene *Scene, workers int) *Backend {
	if scene == nil {
		scene = &Scene{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Backend{
		Workers: workers,
		scene:   scene,
		targets: make(map[*render.Target]struct{}),
		cameras: make(map[*render.PerspectiveCamera]struct{}),
	}
}

// SetScene replaces the scene used by later passes.
func (b *Backend) SetScene(scene *Scene) {
	b.mu.Lock()
	b.scene = scene
	b.mu.Unlock()
}

// FailNextRender makes the next RenderScene call return err.
func (b *Backend) FailNextRender(err error) {
	b.mu.Lock()
	b.renderErr = err
	b.mu.Unlock()
}

// LiveTargets is the number of allocated, unreleased targets.
func (b *Backend) LiveTargets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.targets)
}

// LiveCameras is the number of cameras not yet released.
func (b *Backend) LiveCameras() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cameras)
}

// Passes reports how many scene and point passes were rendered.
func (b *Backend) Passes() (uint64, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scenePass, b.pointsPass
}

func (b *Backend) NewCamera(name string) (*render.PerspectiveCamera, error) {
	cam := &render.PerspectiveCamera{Name: name}
	b.mu.Lock()
	b.cameras[cam] = struct{}{}
	b.mu.Unlock()
	return cam, nil
}

func (b *Backend) ReleaseCamera(cam *render.PerspectiveCamera) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cameras[cam]; !ok {
		return errors.Wrapf(render.ErrReleased, "camera %s", cam.Name)
	}
	delete(b.cameras, cam)
	return nil
}

func (b *Backend) AllocTarget(name string, width, height int, readback bool) (*render.Target, error) {
	if width < 1 || height < 1 {
		return nil, errors.Wrapf(render.ErrAllocation, "target %s size %dx%d", name, width, height)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.MaxTargets > 0 && len(b.targets) >= b.MaxTargets {
		return nil, errors.Wrapf(render.ErrAllocation, "target %s: %d targets live", name, len(b.targets))
	}
	t := render.NewTarget(name, width, height, readback)
	b.targets[t] = struct{}{}
	return t, nil
}

func (b *Backend) ReleaseTarget(t *render.Target) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.targets[t]; !ok {
		return errors.Wrapf(render.ErrReleased, "target %s", t.Name())
	}
	delete(b.targets, t)
	t.Release()
	return nil
}

// RenderScene casts one ray per target pixel. Hits outside the camera's clip
// range leave the background colour in place.
func (b *Backend) RenderScene(cam *render.PerspectiveCamera, target *render.Target, shader render.SurfaceShader, opts render.PassOptions) error {
	b.mu.Lock()
	scene := b.scene
	failure := b.renderErr
	b.renderErr = nil
	b.mu.Unlock()
	if failure != nil {
		return failure
	}
	if err := opts.Check(); err != nil {
		return err
	}
	if err := target.Clear(opts.Background); err != nil {
		return err
	}

	width, height := target.Width(), target.Height()
	fwd := cam.Orientation().Mul4x1(mgl64.Vec4{1, 0, 0, 0})
	forward := r3.Vector{X: fwd.X(), Y: fwd.Y(), Z: fwd.Z()}

	rows := make(chan int, height)
	for y := 0; y < height; y++ {
		rows <- y
	}
	close(rows)

	var wg sync.WaitGroup
	wg.Add(b.Workers)
	for i := 0; i < b.Workers; i++ {
		go func() {
			defer wg.Done()
			for y := range rows {
				for x := 0; x < width; x++ {
					dir := cam.Ray(x, y, width, height)
					surface, hit, ok := scene.Cast(cam.Position, dir)
					if !ok {
						continue
					}
					depth := hit.Distance * dir.Dot(forward)
					if depth < cam.Near || depth > cam.Far {
						continue
					}
					target.Set(x, y, shader.Shade(surface, hit, cam))
				}
			}
		}()
	}
	wg.Wait()

	b.mu.Lock()
	b.scenePass++
	b.mu.Unlock()
	return nil
}

func (b *Backend) RenderPoints(target *render.Target, proj mgl64.Mat4, vertices []mesh.Vertex, shader render.PointShader, opts render.PassOptions) error {
	if err := opts.Check(); err != nil {
		return err
	}
	if err := render.RasterizePoints(target, proj, vertices, shader, opts); err != nil {
		return err
	}
	b.mu.Lock()
	b.pointsPass++
	b.mu.Unlock()
	return nil
}

// Blit reads the target's front buffer back into dst.
func (b *Backend) Blit(target *render.Target, dst []float32) error {
	return target.ReadFront(dst)
}
