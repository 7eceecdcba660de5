package core

import "math"

// OrbitPlane embeds a 2D parametric curve in 3D. TiltX and TiltZ are fixed;
// Spin is the precession about Y and grows by SpinRate every tick.
type OrbitPlane struct {
	TiltX    float64
	TiltZ    float64
	Spin     float64
	SpinRate float64
}

// Rotation returns the plane's current orientation.
func (p OrbitPlane) Rotation() Euler {
	return Euler{X: p.TiltX, Y: p.Spin, Z: p.TiltZ}
}

// Apply rotates an in-plane point into the scene frame.
func (p OrbitPlane) Apply(v Vec3) Vec3 {
	return p.Rotation().Apply(v)
}

// precess advances the spin by one tick.
func (p *OrbitPlane) precess() {
	p.Spin += p.SpinRate
}

// EllipticalPath is an ellipse centred on the origin and sampled into a fixed
// number of points over one revolution.
type EllipticalPath struct {
	RadiusX float64
	RadiusY float64

	points []Vec3
}

// NewEllipticalPath samples the ellipse once. Sample i sits at angle
// 2π·i/resolution. The table is never recomputed.
func NewEllipticalPath(radiusX, radiusY float64, resolution int) *EllipticalPath {
	points := make([]Vec3, resolution)
	for i := range points {
		theta := 2 * math.Pi * float64(i) / float64(resolution)
		points[i] = EllipsePoint(radiusX, radiusY, theta)
	}
	return &EllipticalPath{RadiusX: radiusX, RadiusY: radiusY, points: points}
}

// Resolution returns the number of samples in the path.
func (p *EllipticalPath) Resolution() int {
	return len(p.points)
}

// Point returns sample i, wrapping i into [0, Resolution).
func (p *EllipticalPath) Point(i int) Vec3 {
	n := len(p.points)
	i %= n
	if i < 0 {
		i += n
	}
	return p.points[i]
}

// Points returns a copy of the sample table.
func (p *EllipticalPath) Points() []Vec3 {
	out := make([]Vec3, len(p.points))
	copy(out, p.points)
	return out
}

// Outline returns the sample table rotated into plane.
func (p *EllipticalPath) Outline(plane OrbitPlane) []Vec3 {
	rot := plane.Rotation()
	out := make([]Vec3, len(p.points))
	for i, pt := range p.points {
		out[i] = rot.Apply(pt)
	}
	return out
}

// EllipsePoint evaluates the ellipse at theta in the XY plane. theta may be
// arbitrarily large.
func EllipsePoint(radiusX, radiusY, theta float64) Vec3 {
	s, c := math.Sincos(theta)
	return Vec3{X: radiusX * c, Y: radiusY * s}
}
