package sonar

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"sonar-sim-go/internal/render"
	"sonar-sim-go/internal/types"
)

// SubCamera is one angular slice of the scan. The shared sensor camera is
// rotated by YawOffset right before this slice is rendered.
type SubCamera struct {
	Index     int
	YawOffset float64
	Heading   float64
	Target    *render.Target
	Viewport  Viewport
}

type Viewport struct {
	Width  int
	Height int
}

// CameraArray holds the sub-cameras of one configuration.
type CameraArray struct {
	Views      []*SubCamera
	RestoreYaw float64
}

// YawOffsets returns the yaw applied before rendering each sub-camera and the
// yaw that turns the camera back to the sensor heading afterwards. Sub-camera
// i ends up centred on (i - (count-1)/2) * hfov, so the cameras tile the total
// field of view edge to edge.
func YawOffsets(count int, hfov float64) ([]float64, float64) {
	if count <= 1 {
		return []float64{0}, 0
	}
	offsets := make([]float64, count)
	first := -float64(count-1) / 2 * hfov
	offsets[0] = first
	for i := 1; i < count; i++ {
		offsets[i] = hfov
	}
	return offsets, first
}

// Headings returns the absolute heading of every sub-camera relative to the
// sensor heading.
func Headings(count int, hfov float64) []float64 {
	offsets, _ := YawOffsets(count, hfov)
	headings := make([]float64, len(offsets))
	acc := 0.0
	for i, off := range offsets {
		acc += off
		headings[i] = acc
	}
	return headings
}

// newCameraArray allocates one depth target per sub-camera. On failure every
// target allocated so far is released again.
func newCameraArray(backend render.Backend, geom types.ScanGeometry, names IDAllocator) (*CameraArray, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	offsets, restore := YawOffsets(geom.CameraCount, geom.HorizontalFOV)
	headings := Headings(geom.CameraCount, geom.HorizontalFOV)

	array := &CameraArray{RestoreYaw: restore}
	for i := 0; i < geom.CameraCount; i++ {
		target, err := backend.AllocTarget(names.Next("first_pass"), geom.ImageWidth, geom.ImageHeight, false)
		if err != nil {
			return nil, multierr.Combine(
				errors.Wrapf(err, "allocate first pass target %d", i),
				array.Release(backend),
			)
		}
		array.Views = append(array.Views, &SubCamera{
			Index:     i,
			YawOffset: offsets[i],
			Heading:   headings[i],
			Target:    target,
			Viewport:  Viewport{Width: geom.ImageWidth, Height: geom.ImageHeight},
		})
	}
	return array, nil
}

// Textures lists the first-pass targets in sub-camera order.
func (a *CameraArray) Textures() []*render.Target {
	out := make([]*render.Target, len(a.Views))
	for i, v := range a.Views {
		out[i] = v.Target
	}
	return out
}

// Release gives every target back to the backend.
func (a *CameraArray) Release(backend render.Backend) error {
	var err error
	for _, v := range a.Views {
		if v.Target == nil {
			continue
		}
		err = multierr.Append(err, backend.ReleaseTarget(v.Target))
		v.Target = nil
	}
	a.Views = nil
	return err
}
