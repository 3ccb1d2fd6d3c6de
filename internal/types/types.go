package types

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidGeometry is returned for geometry that cannot be configured.
var ErrInvalidGeometry = errors.New("invalid scan geometry")

// MinImageWidth is the smallest first-pass texture width picked by WithDerived.
const MinImageWidth = 256

// ScanGeometry describes the sensor's field of view and output resolution.
// HorizontalFOV is the per-camera horizontal field of view; the scan spans
// CameraCount of them.
type ScanGeometry struct {
	HorizontalFOV       float64 `json:"horizontal_fov" yaml:"horizontal_fov"`
	VerticalFOV         float64 `json:"vertical_fov" yaml:"vertical_fov"`
	HorizontalHalfAngle float64 `json:"horizontal_half_angle" yaml:"horizontal_half_angle"`
	VerticalHalfAngle   float64 `json:"vertical_half_angle" yaml:"vertical_half_angle"`
	NearClip            float64 `json:"near_clip" yaml:"near_clip"`
	FarClip             float64 `json:"far_clip" yaml:"far_clip"`
	CameraCount         int     `json:"camera_count" yaml:"camera_count"`
	RangeCountWidth     int     `json:"range_count_width" yaml:"range_count_width"`
	RangeCountHeight    int     `json:"range_count_height" yaml:"range_count_height"`

	// First-pass parameters. Zero values are filled by WithDerived.
	CameraVerticalFOV float64 `json:"camera_vertical_fov,omitempty" yaml:"camera_vertical_fov,omitempty"`
	RayCountRatio     float64 `json:"ray_count_ratio,omitempty" yaml:"ray_count_ratio,omitempty"`
	ImageWidth        int     `json:"image_width,omitempty" yaml:"image_width,omitempty"`
	ImageHeight       int     `json:"image_height,omitempty" yaml:"image_height,omitempty"`
}

// TotalHorizontalFOV is the horizontal extent covered by all sub-cameras.
func (g ScanGeometry) TotalHorizontalFOV() float64 {
	return float64(g.CameraCount) * g.HorizontalFOV
}

// Cells is the number of scan cells in one frame.
func (g ScanGeometry) Cells() int {
	return g.RangeCountWidth * g.RangeCountHeight
}

// Validate reports the first reason the geometry cannot be configured.
func (g ScanGeometry) Validate() error {
	for name, v := range map[string]float64{
		"horizontal_fov":        g.HorizontalFOV,
		"vertical_fov":          g.VerticalFOV,
		"horizontal_half_angle": g.HorizontalHalfAngle,
		"vertical_half_angle":   g.VerticalHalfAngle,
		"near_clip":             g.NearClip,
		"far_clip":              g.FarClip,
		"camera_vertical_fov":   g.CameraVerticalFOV,
		"ray_count_ratio":       g.RayCountRatio,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidGeometry, "%s %v not finite", name, v)
		}
	}
	switch {
	case g.CameraCount < 1 || g.CameraCount > 3:
		return errors.Wrapf(ErrInvalidGeometry, "camera count %d not in [1,3]", g.CameraCount)
	case g.RangeCountWidth < 1 || g.RangeCountHeight < 1:
		return errors.Wrapf(ErrInvalidGeometry, "range count %dx%d", g.RangeCountWidth, g.RangeCountHeight)
	case !(g.HorizontalFOV > 0) || g.HorizontalFOV >= math.Pi:
		return errors.Wrapf(ErrInvalidGeometry, "horizontal fov %v", g.HorizontalFOV)
	case g.VerticalFOV < 0 || g.VerticalFOV >= math.Pi:
		return errors.Wrapf(ErrInvalidGeometry, "vertical fov %v", g.VerticalFOV)
	case g.VerticalFOV/2+math.Abs(g.VerticalHalfAngle) >= math.Pi/2:
		// the padded camera frustum would reach past the vertical
		return errors.Wrapf(ErrInvalidGeometry, "vertical extent %v+|%v| reaches the pole",
			g.VerticalFOV/2, g.VerticalHalfAngle)
	case g.CameraVerticalFOV < 0 || g.CameraVerticalFOV >= math.Pi || g.RayCountRatio < 0:
		return errors.Wrapf(ErrInvalidGeometry, "camera vfov %v ratio %v", g.CameraVerticalFOV, g.RayCountRatio)
	case !(g.NearClip > 0) || !(g.FarClip > g.NearClip):
		return errors.Wrapf(ErrInvalidGeometry, "clip planes near=%v far=%v", g.NearClip, g.FarClip)
	case g.ImageWidth < 0 || g.ImageHeight < 0:
		return errors.Wrapf(ErrInvalidGeometry, "image size %dx%d", g.ImageWidth, g.ImageHeight)
	}
	return nil
}

// WithDerived returns a copy with the first-pass parameters filled in.
// The camera vertical FOV is widened so the outermost rays still land inside
// the image at the horizontal edges of each camera.
func (g ScanGeometry) WithDerived() ScanGeometry {
	theta := g.HorizontalFOV / 2
	if g.CameraVerticalFOV == 0 {
		phiCamera := g.VerticalFOV/2 + math.Abs(g.VerticalHalfAngle)
		g.CameraVerticalFOV = 2 * math.Atan(math.Tan(phiCamera)/math.Cos(theta))
		if g.CameraVerticalFOV == 0 {
			// a single flat row still needs a non-degenerate frustum
			g.CameraVerticalFOV = 2 * math.Atan(math.Tan(theta)/float64(max(g.RangeCountWidth, 1)))
		}
	}
	if g.RayCountRatio == 0 && g.CameraVerticalFOV > 0 {
		g.RayCountRatio = math.Tan(theta) / math.Tan(g.CameraVerticalFOV/2)
	}
	if g.ImageWidth == 0 && g.CameraCount > 0 {
		perCamera := (g.RangeCountWidth + g.CameraCount - 1) / g.CameraCount
		g.ImageWidth = max(MinImageWidth, 2*perCamera)
	}
	if g.ImageHeight == 0 {
		if g.RangeCountHeight == 1 || g.RayCountRatio == 0 {
			g.ImageHeight = 1
		} else {
			g.ImageHeight = max(1, int(math.Round(float64(g.ImageWidth)/g.RayCountRatio)))
		}
	}
	return g
}
