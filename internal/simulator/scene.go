package simulator

import (
	"math"

	"github.com/golang/geo/r3"

	"sonar-sim-go/internal/render"
)

// Primitive is an analytic shape the software backend can ray-cast.
type Primitive interface {
	Surface() render.Surface
	// Intersect returns the smallest positive ray parameter and the surface
	// normal there. dir must be a unit vector.
	Intersect(origin, dir r3.Vector) (float64, r3.Vector, bool)
}

type Plane struct {
	Name   string
	Point  r3.Vector
	Normal r3.Vector
	Retro  float64
}

func (p Plane) Surface() render.Surface { return render.Surface{Name: p.Name, Retro: p.Retro} }

func (p Plane) Intersect(origin, dir r3.Vector) (float64, r3.Vector, bool) {
	n := p.Normal.Normalize()
	denom := dir.Dot(n)
	if math.Abs(denom) < 1e-12 {
		return 0, r3.Vector{}, false
	}
	t := p.Point.Sub(origin).Dot(n) / denom
	if t <= 0 {
		return 0, r3.Vector{}, false
	}
	if denom > 0 {
		n = n.Mul(-1)
	}
	return t, n, true
}

// Sphere is hit from outside on its near side and from inside on its wall.
type Sphere struct {
	Name   string
	Center r3.Vector
	Radius float64
	Retro  float64
}

func (s Sphere) Surface() render.Surface { return render.Surface{Name: s.Name, Retro: s.Retro} }

func (s Sphere) Intersect(origin, dir r3.Vector) (float64, r3.Vector, bool) {
	oc := origin.Sub(s.Center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, r3.Vector{}, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t <= 0 {
		t = -b + sq
	}
	if t <= 0 {
		return 0, r3.Vector{}, false
	}
	n := origin.Add(dir.Mul(t)).Sub(s.Center).Normalize()
	if c < 0 {
		n = n.Mul(-1)
	}
	return t, n, true
}

// Box is an axis-aligned box.
type Box struct {
	Name  string
	Min   r3.Vector
	Max   r3.Vector
	Retro float64
}

func (b Box) Surface() render.Surface { return render.Surface{Name: b.Name, Retro: b.Retro} }

func (b Box) Intersect(origin, dir r3.Vector) (float64, r3.Vector, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	var nearAxis int
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for axis := 0; axis < 3; axis++ {
		if math.Abs(d[axis]) < 1e-12 {
			if o[axis] < lo[axis] || o[axis] > hi[axis] {
				return 0, r3.Vector{}, false
			}
			continue
		}
		t1 := (lo[axis] - o[axis]) / d[axis]
		t2 := (hi[axis] - o[axis]) / d[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
			nearAxis = axis
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, r3.Vector{}, false
		}
	}
	if tmin <= 0 {
		return 0, r3.Vector{}, false
	}
	var n [3]float64
	n[nearAxis] = -math.Copysign(1, d[nearAxis])
	return tmin, r3.Vector{X: n[0], Y: n[1], Z: n[2]}, true
}

// Scene is the set of primitives visible to every camera.
type Scene struct {
	Primitives []Primitive
}

func (s *Scene) Add(p Primitive) {
	s.Primitives = append(s.Primitives, p)
}

// Cast returns the closest hit along the ray.
func (s *Scene) Cast(origin, dir r3.Vector) (render.Surface, render.Hit, bool) {
	best := math.Inf(1)
	var surface render.Surface
	var hit render.Hit
	for _, p := range s.Primitives {
		t, n, ok := p.Intersect(origin, dir)
		if !ok || t >= best {
			continue
		}
		best = t
		surface = p.Surface()
		hit = render.Hit{Distance: t, Point: origin.Add(dir.Mul(t)), Normal: n}
	}
	return surface, hit, !math.IsInf(best, 1)
}

// DefaultScene is a ground plane with a few obstacles around the origin.
func DefaultScene() *Scene {
	s := &Scene{}
	s.Add(Plane{Name: "ground", Point: r3.Vector{Z: -1}, Normal: r3.Vector{Z: 1}, Retro: 0.2})
	s.Add(Box{Name: "wall", Min: r3.Vector{X: 6, Y: -4, Z: -1}, Max: r3.Vector{X: 6.5, Y: 4, Z: 2}, Retro: 0.8})
	s.Add(Sphere{Name: "buoy", Center: r3.Vector{X: 3, Y: 1.5}, Radius: 0.5, Retro: 1})
	s.Add(Box{Name: "crate", Min: r3.Vector{X: 2, Y: -3, Z: -1}, Max: r3.Vector{X: 3, Y: -2, Z: 0}, Retro: 0.5})
	return s
}
