package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sonar-sim-go/internal/types"
)

func TestGeometryFromLaserCameraCount(t *testing.T) {
	cases := []struct {
		min, max float64
		cameras  int
	}{
		{-0.5, 0.5, 1},
		{-0.7, 0.7, 1},
		{-0.75, 0.75, 2},
		{-1.4, 1.4, 2},
		{-1.5, 1.5, 3},
		{-3.14, 3.14, 3},
	}
	for _, tc := range cases {
		g, err := GeometryFromLaser(LaserSpec{
			AngleMin: tc.min, AngleMax: tc.max,
			Samples: 100, RangeMin: 0.1, RangeMax: 10,
		})
		require.NoError(t, err)
		require.Equal(t, tc.cameras, g.CameraCount, "range [%v, %v]", tc.min, tc.max)
		require.InDelta(t, tc.max-tc.min, g.TotalHorizontalFOV(), 1e-12)
		require.Equal(t, 1, g.RangeCountHeight)
	}
}

func TestGeometryFromLaserRejectsEmptyRange(t *testing.T) {
	_, err := GeometryFromLaser(LaserSpec{AngleMin: 1, AngleMax: 1, Samples: 10, RangeMin: 0.1, RangeMax: 1})
	require.ErrorIs(t, err, types.ErrInvalidGeometry)
}

func TestParseGeometryLaser(t *testing.T) {
	doc := `
laser:
  angle_min: -1.0
  angle_max: 1.2
  vertical_angle_min: -0.2
  vertical_angle_max: 0.1
  samples: 640
  vertical_samples: 16
  range_min: 0.2
  range_max: 40
`
	g, err := ParseGeometry([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 2, g.CameraCount)
	require.InDelta(t, 1.1, g.HorizontalFOV, 1e-12)
	require.InDelta(t, 0.1, g.HorizontalHalfAngle, 1e-12)
	require.InDelta(t, 0.3, g.VerticalFOV, 1e-12)
	require.InDelta(t, -0.05, g.VerticalHalfAngle, 1e-12)
	require.Equal(t, 640, g.RangeCountWidth)
	require.Equal(t, 16, g.RangeCountHeight)
	require.Equal(t, 0.2, g.NearClip)
	require.Equal(t, 40.0, g.FarClip)
}

func TestParseGeometryDirect(t *testing.T) {
	doc := `
geometry:
  horizontal_fov: 1.04
  vertical_fov: 0.26
  near_clip: 0.1
  far_clip: 30
  camera_count: 3
  range_count_width: 300
  range_count_height: 4
`
	g, err := ParseGeometry([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 3, g.CameraCount)
	require.Equal(t, 300, g.RangeCountWidth)
}

func TestParseGeometryErrors(t *testing.T) {
	_, err := ParseGeometry([]byte(""))
	require.ErrorContains(t, err, "empty")

	_, err = ParseGeometry([]byte("laser: {angle_max: 1}\ngeometry: {camera_count: 1}\n"))
	require.ErrorContains(t, err, "both")

	_, err = ParseGeometry([]byte("geometry: {camera_count: 5, horizontal_fov: 1, near_clip: 0.1, far_clip: 1, range_count_width: 1, range_count_height: 1}"))
	require.ErrorIs(t, err, types.ErrInvalidGeometry)

	_, err = ParseGeometry([]byte("geometry: {camera_count: 1, horizontal_fov: 1, vertical_fov: .nan, near_clip: 0.1, far_clip: 1, range_count_width: 1, range_count_height: 1}"))
	require.ErrorIs(t, err, types.ErrInvalidGeometry)

	_, err = ParseGeometry([]byte("laser: {angle_min: -0.5, angle_max: 0.5, samples: 8, range_min: 0.1, range_max: 5, vertical_angle_min: 1.4, vertical_angle_max: 1.7, vertical_samples: 2}"))
	require.ErrorIs(t, err, types.ErrInvalidGeometry)

	_, err = ParseGeometry([]byte("laser: ["))
	require.Error(t, err)
}

func TestLoadGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("laser: {angle_min: -0.5, angle_max: 0.5, samples: 32, range_min: 0.1, range_max: 5}\n"), 0o644))
	g, err := LoadGeometry(path)
	require.NoError(t, err)
	require.Equal(t, 1, g.CameraCount)

	_, err = LoadGeometry(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaultGeometryIsValid(t *testing.T) {
	require.NoError(t, DefaultGeometry().Validate())
}
