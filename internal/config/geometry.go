package config

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"sonar-sim-go/internal/types"
)

// Horizontal extents above which the scan is split over more cameras.
const (
	twoCameraFOV   = 1.4
	threeCameraFOV = 2.8
)

// LaserSpec is the sensor description as a user writes it: scan limits
// rather than per-camera parameters.
type LaserSpec struct {
	AngleMin         float64 `yaml:"angle_min"`
	AngleMax         float64 `yaml:"angle_max"`
	VerticalAngleMin float64 `yaml:"vertical_angle_min"`
	VerticalAngleMax float64 `yaml:"vertical_angle_max"`
	Samples          int     `yaml:"samples"`
	VerticalSamples  int     `yaml:"vertical_samples"`
	RangeMin         float64 `yaml:"range_min"`
	RangeMax         float64 `yaml:"range_max"`
}

type geometryFile struct {
	Laser    *LaserSpec          `yaml:"laser"`
	Geometry *types.ScanGeometry `yaml:"geometry"`
}

// GeometryFromLaser picks the camera count for the horizontal extent and
// splits it evenly between the cameras.
func GeometryFromLaser(spec LaserSpec) (types.ScanGeometry, error) {
	hfov := spec.AngleMax - spec.AngleMin
	if !(hfov > 0) {
		return types.ScanGeometry{}, errors.Wrapf(types.ErrInvalidGeometry, "angle range [%v, %v]", spec.AngleMin, spec.AngleMax)
	}
	hfov = math.Min(hfov, 2*math.Pi)

	cameras := 1
	switch {
	case hfov > threeCameraFOV:
		cameras = 3
	case hfov > twoCameraFOV:
		cameras = 2
	}

	vertical := spec.VerticalSamples
	if vertical < 1 {
		vertical = 1
	}
	geom := types.ScanGeometry{
		HorizontalFOV:       hfov / float64(cameras),
		VerticalFOV:         spec.VerticalAngleMax - spec.VerticalAngleMin,
		HorizontalHalfAngle: (spec.AngleMax + spec.AngleMin) / 2,
		VerticalHalfAngle:   (spec.VerticalAngleMax + spec.VerticalAngleMin) / 2,
		NearClip:            spec.RangeMin,
		FarClip:             spec.RangeMax,
		CameraCount:         cameras,
		RangeCountWidth:     spec.Samples,
		RangeCountHeight:    vertical,
	}
	if err := geom.Validate(); err != nil {
		return types.ScanGeometry{}, err
	}
	return geom, nil
}

// ParseGeometry reads either a `laser:` or a `geometry:` document.
func ParseGeometry(data []byte) (types.ScanGeometry, error) {
	var doc geometryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.ScanGeometry{}, errors.Wrap(err, "parse geometry")
	}
	switch {
	case doc.Laser != nil && doc.Geometry != nil:
		return types.ScanGeometry{}, errors.New("geometry file sets both laser and geometry")
	case doc.Laser != nil:
		return GeometryFromLaser(*doc.Laser)
	case doc.Geometry != nil:
		if err := doc.Geometry.Validate(); err != nil {
			return types.ScanGeometry{}, err
		}
		return *doc.Geometry, nil
	default:
		return types.ScanGeometry{}, errors.New("geometry file is empty")
	}
}

func LoadGeometry(path string) (types.ScanGeometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ScanGeometry{}, errors.Wrapf(err, "read geometry %s", path)
	}
	return ParseGeometry(data)
}

// DefaultGeometry is a 2-camera, 8-beam sensor.
func DefaultGeometry() types.ScanGeometry {
	return types.ScanGeometry{
		HorizontalFOV:    1.04,
		VerticalFOV:      0.26,
		NearClip:         0.1,
		FarClip:          30,
		CameraCount:      2,
		RangeCountWidth:  640,
		RangeCountHeight: 8,
	}
}
