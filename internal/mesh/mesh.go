// Package mesh builds the undistortion mesh that maps every scan cell to a
// texel of one sub-camera depth texture.
package mesh

import (
	"math"

	"github.com/pkg/errors"

	"sonar-sim-go/internal/types"
)

// CanvasScale is the number of canvas units per scan cell.
const CanvasScale = 0.1

// CanvasDepth places the canvas between the orthographic clip planes.
const CanvasDepth = -0.015

type Topology int

const (
	Points Topology = iota
)

// Vertex is one scan cell. TextureIndex selects the sub-camera texture that
// U and V address.
type Vertex struct {
	X, Y, Z      float64
	TextureIndex int
	U, V         float64
}

type Mesh struct {
	Width    int
	Height   int
	Topology Topology
	Vertices []Vertex
	Indices  []uint32

	// angles of the first cell and per-cell steps, for reporting
	startAzimuth   float64
	azimuthStep    float64
	startElevation float64
	elevationStep  float64
}

// CanvasSize is the physical extent of the canvas the mesh is drawn on.
func (m *Mesh) CanvasSize() (float64, float64) {
	return float64(m.Width) * CanvasScale, float64(m.Height) * CanvasScale
}

// Azimuth is the scan angle of column col relative to the sensor heading.
// Positive angles are counter-clockwise.
func (m *Mesh) Azimuth(col int) float64 {
	return m.startAzimuth + float64(col)*m.azimuthStep
}

// Elevation is the scan angle of row row above the sensor's horizontal plane.
func (m *Mesh) Elevation(row int) float64 {
	return m.startElevation + float64(row)*m.elevationStep
}

// Equal reports whether two meshes are bit-identical.
func (m *Mesh) Equal(other *Mesh) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Width != other.Width || m.Height != other.Height || m.Topology != other.Topology ||
		len(m.Vertices) != len(other.Vertices) || len(m.Indices) != len(other.Indices) {
		return false
	}
	for i, v := range m.Vertices {
		o := other.Vertices[i]
		if v.TextureIndex != o.TextureIndex ||
			math.Float64bits(v.X) != math.Float64bits(o.X) ||
			math.Float64bits(v.Y) != math.Float64bits(o.Y) ||
			math.Float64bits(v.Z) != math.Float64bits(o.Z) ||
			math.Float64bits(v.U) != math.Float64bits(o.U) ||
			math.Float64bits(v.V) != math.Float64bits(o.V) {
			return false
		}
	}
	for i, idx := range m.Indices {
		if other.Indices[i] != idx {
			return false
		}
	}
	return true
}

// Build computes the undistortion mesh for geom. geom must already carry its
// derived first-pass parameters.
func Build(geom types.ScanGeometry) (*Mesh, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	w, h := geom.RangeCountWidth, geom.RangeCountHeight
	cameraFOV := geom.HorizontalFOV
	total := geom.TotalHorizontalFOV()

	// half of the scan's vertical FOV, and the half-FOV the cameras must cover
	phi := geom.VerticalFOV / 2
	phiCamera := phi + math.Abs(geom.VerticalHalfAngle)
	theta := cameraFOV / 2
	if geom.ImageHeight == 1 {
		phi = 0
	}
	if phiCamera == 0 {
		if geom.CameraVerticalFOV == 0 {
			return nil, errors.Wrap(types.ErrInvalidGeometry, "camera vertical fov not derived")
		}
		phiCamera = math.Atan(math.Tan(geom.CameraVerticalFOV/2) * math.Cos(theta))
	}

	var hstep, offset float64
	if w > 1 {
		hstep = total / float64(w-1)
	} else {
		offset = total / 2
	}
	vstep := 0.0
	if h > 1 {
		vstep = 2 * phi / float64(h-1)
	}

	m := &Mesh{
		Width:          w,
		Height:         h,
		Topology:       Points,
		Vertices:       make([]Vertex, 0, w*h),
		Indices:        make([]uint32, 0, w*h),
		startAzimuth:   geom.HorizontalHalfAngle - total/2 + offset,
		azimuthStep:    hstep,
		startElevation: geom.VerticalHalfAngle - phi,
		elevationStep:  vstep,
	}
	if h == 1 {
		m.startElevation = 0
	}

	for j := 0; j < h; j++ {
		gamma := 0.0
		if h != 1 {
			gamma = vstep*float64(j) - phi + geom.VerticalHalfAngle
		}
		y := (float64(h-j) - 0.5) * CanvasScale

		for i := 0; i < w; i++ {
			delta := hstep*float64(i) + offset

			texture := int(math.Floor(delta / cameraFOV))
			if texture > geom.CameraCount-1 {
				texture = geom.CameraCount - 1
				delta -= hstep
			}
			if texture < 0 {
				texture = 0
			}

			// angle from the centre of the selected camera
			delta = delta - float64(texture)*cameraFOV - theta

			u := 0.5 - math.Tan(delta)/(2*math.Tan(theta))
			v := 0.5 - (math.Tan(gamma)*math.Cos(theta))/(2*math.Tan(phiCamera)*math.Cos(delta))

			m.Vertices = append(m.Vertices, Vertex{
				X:            (float64(i) + 0.5) * CanvasScale,
				Y:            y,
				Z:            CanvasDepth,
				TextureIndex: texture,
				U:            u,
				V:            v,
			})
			m.Indices = append(m.Indices, uint32(w*j+i))
		}
	}
	return m, nil
}
