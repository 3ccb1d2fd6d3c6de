package sonar

import (
	"context"
	"math"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"sonar-sim-go/internal/mesh"
	"sonar-sim-go/internal/render"
	"sonar-sim-go/internal/simulator"
	"sonar-sim-go/internal/types"
)

func testGeometry(cameras, width, height int) types.ScanGeometry {
	g := types.ScanGeometry{
		HorizontalFOV:    1.04,
		VerticalFOV:      0.26,
		NearClip:         0.1,
		FarClip:          30,
		CameraCount:      cameras,
		RangeCountWidth:  width,
		RangeCountHeight: height,
	}
	if height == 1 {
		g.VerticalFOV = 0
	}
	return g
}

func sphereScene(radius float64) *simulator.Scene {
	s := &simulator.Scene{}
	s.Add(simulator.Sphere{Name: "shell", Radius: radius, Retro: 0.5})
	return s
}

func wallScene(distance float64) *simulator.Scene {
	s := &simulator.Scene{}
	s.Add(simulator.Plane{
		Name:   "wall",
		Point:  r3.Vector{X: distance},
		Normal: r3.Vector{X: -1},
		Retro:  0.25,
	})
	return s
}

func newSensor(t *testing.T, scene *simulator.Scene, geom types.ScanGeometry) (*Sensor, *simulator.Backend) {
	t.Helper()
	backend := simulator.NewBackend(scene, 2)
	s := New(backend, WithClock(clock.NewMock()))
	require.NoError(t, s.Configure(geom))
	t.Cleanup(func() { _ = s.Close() })
	return s, backend
}

func TestYawOffsets(t *testing.T) {
	offsets, restore := YawOffsets(2, 1.04)
	require.InDeltaSlice(t, []float64{-0.52, 1.04}, offsets, 1e-12)
	require.InDelta(t, -0.52, restore, 1e-12)

	offsets, restore = YawOffsets(3, 1.0)
	require.InDeltaSlice(t, []float64{-1, 1, 1}, offsets, 1e-12)
	require.InDelta(t, -1, restore, 1e-12)

	offsets, restore = YawOffsets(1, 1.0)
	require.Equal(t, []float64{0}, offsets)
	require.Equal(t, 0.0, restore)

	require.InDeltaSlice(t, []float64{-0.52, 0.52}, Headings(2, 1.04), 1e-12)
	require.InDeltaSlice(t, []float64{-1, 0, 1}, Headings(3, 1.0), 1e-12)
}

func TestConfigureAllocatesPerCamera(t *testing.T) {
	for cameras := 1; cameras <= 3; cameras++ {
		s, backend := newSensor(t, sphereScene(5), testGeometry(cameras, 64, 4))
		require.Equal(t, StateConfigured, s.State())
		require.Len(t, s.SubCameras(), cameras)
		require.Equal(t, cameras+1, backend.LiveTargets())
		require.Equal(t, 1, backend.LiveCameras())

		geom, ok := s.Geometry()
		require.True(t, ok)
		for _, view := range s.SubCameras() {
			require.Equal(t, geom.ImageWidth, view.Target.Width())
			require.Equal(t, geom.ImageHeight, view.Target.Height())
		}
	}
}

func TestRenderFrameUniformSphere(t *testing.T) {
	for cameras := 1; cameras <= 3; cameras++ {
		s, _ := newSensor(t, sphereScene(5), testGeometry(cameras, 48, 5))
		frame, err := s.RenderFrame(context.Background())
		require.NoError(t, err)
		require.Equal(t, 48, frame.Width)
		require.Equal(t, 5, frame.Height)
		require.Equal(t, types.ChannelDepth, frame.ChannelDepth)
		require.Equal(t, types.FormatFloat32RGB, frame.Format)
		require.Len(t, frame.Ranges, 48*5*3)
		for row := 0; row < frame.Height; row++ {
			for col := 0; col < frame.Width; col++ {
				require.InDelta(t, 5, frame.Range(row, col), 1e-4, "cameras %d cell %d,%d", cameras, row, col)
				base := (row*frame.Width + col) * frame.ChannelDepth
				require.InDelta(t, 0.5, frame.Ranges[base+types.ChannelRetro], 1e-6)
				require.Equal(t, float32(0), frame.Ranges[base+2])
			}
		}
	}
}

func TestRenderFrameFlatWall(t *testing.T) {
	const distance = 4.0
	s, _ := newSensor(t, wallScene(distance), testGeometry(2, 64, 4))
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)

	m := s.Mesh()
	// the last column may repeat its neighbour's angle, so it is skipped
	for row := 0; row < frame.Height; row++ {
		for col := 0; col < frame.Width-1; col++ {
			want := distance / (math.Cos(m.Azimuth(col)) * math.Cos(m.Elevation(row)))
			got := float64(frame.Range(row, col))
			require.InEpsilon(t, want, got, 0.01, "cell %d,%d", row, col)
		}
	}
}

func TestRenderFrameNoReturnIsInfinite(t *testing.T) {
	s, _ := newSensor(t, &simulator.Scene{}, testGeometry(2, 16, 2))
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	for row := 0; row < frame.Height; row++ {
		for col := 0; col < frame.Width; col++ {
			require.True(t, math.IsInf(float64(frame.Range(row, col)), 1))
		}
	}
}

func TestRenderFrameOutOfRangeIsInfinite(t *testing.T) {
	geom := testGeometry(1, 16, 2)
	geom.FarClip = 3
	s, _ := newSensor(t, sphereScene(5), geom)
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.True(t, math.IsInf(float64(frame.Range(0, 0)), 1))
}

func TestRenderFrameRestoresYaw(t *testing.T) {
	s, _ := newSensor(t, sphereScene(5), testGeometry(3, 32, 2))
	s.SetPose(Pose{Heading: 0.4})
	for i := 0; i < 3; i++ {
		_, err := s.RenderFrame(context.Background())
		require.NoError(t, err)
		require.Equal(t, 0.0, s.pipe.camera.Yaw)
		require.Equal(t, 0.4, s.pipe.camera.Heading)
	}
}

func TestSingleCellScan(t *testing.T) {
	s, _ := newSensor(t, wallScene(3), testGeometry(2, 1, 1))
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, frame.Width)
	require.Equal(t, 1, frame.Height)
	require.InDelta(t, 3, frame.Range(0, 0), 0.01)
}

func TestReconfigure(t *testing.T) {
	s, backend := newSensor(t, sphereScene(5), testGeometry(1, 1, 1))
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Len(t, frame.Ranges, 3)

	require.NoError(t, s.Configure(testGeometry(2, 2, 2)))
	frame, err = s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, frame.Width)
	require.Equal(t, 2, frame.Height)
	require.Len(t, s.LaserData(), 2*2*3)
	require.Equal(t, 3, backend.LiveTargets())
	require.Equal(t, 1, backend.LiveCameras())
}

func TestConfigureSameGeometryIsIdempotent(t *testing.T) {
	geom := testGeometry(3, 30, 3)
	s, backend := newSensor(t, wallScene(4), geom)
	first := *s.Mesh()
	firstVertices := append([]mesh.Vertex(nil), first.Vertices...)
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	before := frame.Clone()

	require.NoError(t, s.Configure(geom))
	require.Equal(t, firstVertices, s.Mesh().Vertices)
	require.Equal(t, first.Indices, s.Mesh().Indices)
	require.Equal(t, 4, backend.LiveTargets())
	require.Equal(t, 1, backend.LiveCameras())

	frame, err = s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, before.Ranges, frame.Ranges)
}

func TestConfigureInvalidKeepsPreviousState(t *testing.T) {
	s, backend := newSensor(t, sphereScene(5), testGeometry(2, 32, 2))
	before, _ := s.Geometry()
	m := s.Mesh()

	for name, mutate := range map[string]func(*types.ScanGeometry){
		"cameras":       func(g *types.ScanGeometry) { g.CameraCount = 4 },
		"nan vfov":      func(g *types.ScanGeometry) { g.VerticalFOV = math.NaN() },
		"vha past pole": func(g *types.ScanGeometry) { g.VerticalHalfAngle = 1.5 },
	} {
		bad := testGeometry(2, 32, 2)
		mutate(&bad)
		require.ErrorIs(t, s.Configure(bad), types.ErrInvalidGeometry, name)

		after, ok := s.Geometry()
		require.True(t, ok)
		require.Equal(t, before, after, name)
		require.Same(t, m, s.Mesh(), name)
		require.Equal(t, 3, backend.LiveTargets(), name)
	}

	_, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
}

func TestConfigureAllocationFailureIsAllOrNothing(t *testing.T) {
	s, backend := newSensor(t, sphereScene(5), testGeometry(2, 32, 2))
	backend.MaxTargets = 5
	before, _ := s.Geometry()

	err := s.Configure(testGeometry(3, 32, 2))
	require.ErrorIs(t, err, render.ErrAllocation)
	require.Equal(t, 3, backend.LiveTargets())
	require.Equal(t, 1, backend.LiveCameras())

	after, _ := s.Geometry()
	require.Equal(t, before, after)
	require.Len(t, s.SubCameras(), 2)

	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 5, frame.Range(0, 0), 1e-4)
}

func TestRenderFailureIsNotRetried(t *testing.T) {
	s, backend := newSensor(t, sphereScene(5), testGeometry(2, 16, 2))
	boom := errors.New("device lost")
	backend.FailNextRender(boom)

	_, err := s.RenderFrame(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateConfigured, s.State())
	require.Equal(t, 0.0, s.pipe.camera.Yaw)
	scenePasses, pointPasses := backend.Passes()
	require.Equal(t, uint64(0), scenePasses)
	require.Equal(t, uint64(0), pointPasses)

	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), frame.Sequence)
}

func TestStaleCompositeTriggersRebuild(t *testing.T) {
	s, backend := newSensor(t, sphereScene(5), testGeometry(2, 16, 2))
	builds := s.meshes.Builds()

	// swap in a composite of the wrong size
	p := s.pipe
	require.NoError(t, backend.ReleaseTarget(p.composite))
	wrong, err := backend.AllocTarget("wrong", 8, 2, true)
	require.NoError(t, err)
	p.composite = wrong
	p.compositor = newCompositor(backend, p.geom, p.camera, p.cameras, p.mesh, wrong)

	_, err = s.RenderFrame(context.Background())
	require.ErrorIs(t, err, ErrStaleBuffer)
	require.Equal(t, builds+1, s.meshes.Builds())
	require.True(t, wrong.Released())

	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, 16, frame.Width)
	require.Equal(t, 3, backend.LiveTargets())
}

func TestSubscribers(t *testing.T) {
	s, _ := newSensor(t, sphereScene(5), testGeometry(1, 4, 1))

	var calls []string
	var second Connection
	s.Subscribe(func(ranges []float32, width, height, depth int, format string) {
		calls = append(calls, "first")
		require.Len(t, ranges, width*height*depth)
		require.Equal(t, types.FormatFloat32RGB, format)
		// unsubscribing from inside a callback still delivers this frame
		s.Unsubscribe(second)
	})
	second = s.Subscribe(func([]float32, int, int, int, string) {
		calls = append(calls, "second")
	})

	require.Equal(t, 2, s.extractor.Subscribers())

	_, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, calls)
	require.Equal(t, 1, s.extractor.Subscribers())

	_, err = s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "first"}, calls)
	require.False(t, s.Unsubscribe(second))
}

func TestRenderFrameStampsClock(t *testing.T) {
	mock := clock.NewMock()
	backend := simulator.NewBackend(sphereScene(5), 1)
	s := New(backend, WithClock(mock))
	require.NoError(t, s.Configure(testGeometry(1, 4, 1)))
	defer s.Close()

	mock.Add(1500 * 1e6)
	frame, err := s.RenderFrame(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1.5, frame.SimTime, 1e-9)
}

func TestLifecycle(t *testing.T) {
	backend := simulator.NewBackend(sphereScene(5), 1)
	s := New(backend)
	require.Equal(t, StateUnconfigured, s.State())
	_, err := s.RenderFrame(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, s.Configure(testGeometry(3, 8, 2)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.RenderFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.Close())
	require.Equal(t, StateTornDown, s.State())
	require.Equal(t, 0, backend.LiveTargets())
	require.Equal(t, 0, backend.LiveCameras())

	_, err = s.RenderFrame(context.Background())
	require.ErrorIs(t, err, ErrTornDown)
	require.ErrorIs(t, s.Configure(testGeometry(1, 8, 2)), ErrTornDown)
	require.NoError(t, s.Close())
}

func TestNameArena(t *testing.T) {
	a := NewNameArena("sonar")
	b := NewNameArena("sonar")
	require.NotEqual(t, a.Prefix(), b.Prefix())
	require.Equal(t, a.Prefix()+"/camera_1", a.Next("camera"))
	require.Equal(t, a.Prefix()+"/first_pass_2", a.Next("first_pass"))
}
