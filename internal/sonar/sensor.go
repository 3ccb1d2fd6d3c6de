// Package sonar simulates a multi-beam range sensor. A Sensor renders depth
// from one to three yawed sub-cameras and stitches them into a single
// angularly uniform range image.
package sonar

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sonar-sim-go/internal/mesh"
	"sonar-sim-go/internal/render"
	"sonar-sim-go/internal/types"
)

type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateRendering
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateRendering:
		return "rendering"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Pose places the sensor in the scene. Heading is the yaw of the sensor's
// forward axis about world +Z.
type Pose struct {
	Position r3.Vector
	Heading  float64
	Pitch    float64
}

type Option func(*Sensor)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Sensor) { s.logger = logger }
}

func WithNames(names IDAllocator) Option {
	return func(s *Sensor) { s.names = names }
}

func WithPose(pose Pose) Option {
	return func(s *Sensor) { s.pose = pose }
}

func WithClock(clk clock.Clock) Option {
	return func(s *Sensor) { s.clock = clk }
}

// pipeline is everything one geometry needs. It is built completely before
// it replaces the previous one.
type pipeline struct {
	geom       types.ScanGeometry
	camera     *render.PerspectiveCamera
	cameras    *CameraArray
	mesh       *mesh.Mesh
	composite  *render.Target
	compositor *Compositor
}

func (p *pipeline) release(backend render.Backend) error {
	var err error
	if p.cameras != nil {
		err = multierr.Append(err, p.cameras.Release(backend))
		p.cameras = nil
	}
	if p.composite != nil {
		err = multierr.Append(err, backend.ReleaseTarget(p.composite))
		p.composite = nil
	}
	if p.camera != nil {
		err = multierr.Append(err, backend.ReleaseCamera(p.camera))
		p.camera = nil
	}
	return err
}

// Sensor owns the sub-cameras, mesh and render targets of one range sensor.
// It is driven from a single goroutine.
type Sensor struct {
	backend   render.Backend
	logger    *zap.SugaredLogger
	names     IDAllocator
	clock     clock.Clock
	pose      Pose
	state     State
	pipe      *pipeline
	meshes    mesh.Cache
	extractor Extractor
}

func New(backend render.Backend, opts ...Option) *Sensor {
	s := &Sensor{
		backend: backend,
		logger:  zap.NewNop().Sugar(),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.names == nil {
		s.names = NewNameArena("sonar")
	}
	return s
}

func (s *Sensor) State() State {
	return s.state
}

// Geometry returns the applied geometry, with derived fields filled.
func (s *Sensor) Geometry() (types.ScanGeometry, bool) {
	if s.pipe == nil {
		return types.ScanGeometry{}, false
	}
	return s.pipe.geom, true
}

// Mesh returns the undistortion mesh in use.
func (s *Sensor) Mesh() *mesh.Mesh {
	if s.pipe == nil {
		return nil
	}
	return s.pipe.mesh
}

// SubCameras returns the configured sub-camera views.
func (s *Sensor) SubCameras() []*SubCamera {
	if s.pipe == nil {
		return nil
	}
	return s.pipe.cameras.Views
}

// Configure validates geom and rebuilds every resource for it. On error the
// previous configuration stays in place untouched.
func (s *Sensor) Configure(geom types.ScanGeometry) error {
	if s.state == StateTornDown {
		return ErrTornDown
	}
	if err := geom.Validate(); err != nil {
		return err
	}
	geom = geom.WithDerived()

	next, err := s.build(geom)
	if err != nil {
		return err
	}
	if s.pipe != nil {
		if err := s.pipe.release(s.backend); err != nil {
			s.logger.Warnw("release previous configuration", "error", err)
		}
	}
	s.pipe = next
	s.extractor.reset()
	s.state = StateConfigured
	s.logger.Debugw("sensor configured",
		"cameras", geom.CameraCount,
		"range_count", []int{geom.RangeCountWidth, geom.RangeCountHeight},
		"image", []int{geom.ImageWidth, geom.ImageHeight},
		"total_hfov", geom.TotalHorizontalFOV(),
	)
	return nil
}

func (s *Sensor) build(geom types.ScanGeometry) (*pipeline, error) {
	m, err := s.meshes.Get(geom)
	if err != nil {
		return nil, err
	}
	p := &pipeline{geom: geom, mesh: m}
	if err := s.allocate(p); err != nil {
		return nil, multierr.Append(err, p.release(s.backend))
	}
	return p, nil
}

func (s *Sensor) allocate(p *pipeline) error {
	geom := p.geom
	cam, err := s.backend.NewCamera(s.names.Next("camera"))
	if err != nil {
		return errors.Wrap(err, "create camera")
	}
	p.camera = cam
	cam.FOVy = geom.CameraVerticalFOV
	cam.Aspect = geom.RayCountRatio
	cam.Near = geom.NearClip
	cam.Far = geom.FarClip
	s.applyPose(cam, geom)

	if p.cameras, err = newCameraArray(s.backend, geom, s.names); err != nil {
		return err
	}
	if p.composite, err = s.backend.AllocTarget(s.names.Next("second_pass"), geom.RangeCountWidth, geom.RangeCountHeight, true); err != nil {
		return errors.Wrap(err, "allocate second pass target")
	}
	p.compositor = newCompositor(s.backend, geom, cam, p.cameras, p.mesh, p.composite)
	return nil
}

func (s *Sensor) applyPose(cam *render.PerspectiveCamera, geom types.ScanGeometry) {
	cam.Position = s.pose.Position
	cam.Heading = s.pose.Heading + geom.HorizontalHalfAngle
	cam.Pitch = s.pose.Pitch
}

// SetPose moves the sensor. It takes effect on the next frame.
func (s *Sensor) SetPose(pose Pose) {
	s.pose = pose
	if s.pipe != nil {
		s.applyPose(s.pipe.camera, s.pipe.geom)
	}
}

// RenderFrame renders both passes and extracts the composite. Subscribers
// are notified before it returns. A frame that fails is not retried.
func (s *Sensor) RenderFrame(ctx context.Context) (types.ScanFrame, error) {
	switch s.state {
	case StateTornDown:
		return types.ScanFrame{}, ErrTornDown
	case StateUnconfigured:
		return types.ScanFrame{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return types.ScanFrame{}, err
	}

	s.state = StateRendering
	defer func() {
		if s.state == StateRendering {
			s.state = StateConfigured
		}
	}()

	p := s.pipe
	if p.composite.Pending() {
		// the last frame was never read back
		p.composite.Discard()
	}
	if err := p.compositor.Render(); err != nil {
		return types.ScanFrame{}, err
	}
	if err := ctx.Err(); err != nil {
		p.composite.Discard()
		return types.ScanFrame{}, err
	}

	frame, err := s.extractor.Extract(s.backend, p.composite, p.geom)
	if errors.Is(err, ErrStaleBuffer) {
		p.composite.Discard()
		s.logger.Warnw("composite buffer stale, rebuilding", "error", err)
		if rebuildErr := s.rebuild(); rebuildErr != nil {
			return types.ScanFrame{}, multierr.Append(err, rebuildErr)
		}
		return types.ScanFrame{}, err
	}
	if err != nil {
		p.composite.Discard()
		return types.ScanFrame{}, err
	}
	frame.SimTime = float64(s.clock.Now().UnixNano()) / 1e9
	return frame, nil
}

func (s *Sensor) rebuild() error {
	s.meshes.Reset()
	return s.Configure(s.pipe.geom)
}

func (s *Sensor) Subscribe(fn Callback) Connection {
	return s.extractor.Subscribe(fn)
}

func (s *Sensor) Unsubscribe(c Connection) bool {
	return s.extractor.Unsubscribe(c)
}

// LaserData is the last composite buffer read back.
func (s *Sensor) LaserData() []float32 {
	return s.extractor.LaserData()
}

// LastRenderDuration is the time the last frame spent in both passes.
func (s *Sensor) LastRenderDuration() time.Duration {
	if s.pipe == nil {
		return 0
	}
	return s.pipe.compositor.LastRenderDuration()
}

// Close releases every backend resource. Later calls return ErrTornDown.
func (s *Sensor) Close() error {
	if s.state == StateTornDown {
		return nil
	}
	s.state = StateTornDown
	if s.pipe == nil {
		return nil
	}
	err := s.pipe.release(s.backend)
	s.pipe = nil
	s.meshes.Reset()
	s.extractor.reset()
	return err
}
