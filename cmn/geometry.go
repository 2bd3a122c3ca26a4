package cmn

import "math"

// Time is a monotonic simulation timestamp, seconds since an arbitrary
// per-space epoch. float64 seconds (rather than the mono package's int64
// nanos) gives motion-extrapolation math the precision it needs and keeps
// TimedMotionVector arithmetic simple.
type Time float64

// UpAxis tags imported geometry as Y-up or Z-up.
type UpAxis int

const (
	UpAxisY UpAxis = iota
	UpAxisZ
)

// Vector3 is a single-precision 3-vector. Positions and velocities are
// always single precision.
type Vector3 struct {
	X, Y, Z float32
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(s float32) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vector3) Dot(o Vector3) float32 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vector3) LengthSquared() float32 { return v.Dot(v) }
func (v Vector3) Length() float32        { return float32(math.Sqrt(float64(v.LengthSquared()))) }

func (v Vector3) Component(axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Quaternion is a unit orientation quaternion (x,y,z,w).
type Quaternion struct {
	X, Y, Z, W float32
}

func IdentityQuaternion() Quaternion { return Quaternion{0, 0, 0, 1} }

// TimedMotionVector is (t0, position(t0), velocity); extrapolation is
// linear.
type TimedMotionVector struct {
	T0       Time
	Position Vector3
	Velocity Vector3
}

func NewTimedMotionVector(t0 Time, pos, vel Vector3) TimedMotionVector {
	return TimedMotionVector{T0: t0, Position: pos, Velocity: vel}
}

// Extrapolate returns the linearly-extrapolated position at time t.
func (m TimedMotionVector) Extrapolate(t Time) Vector3 {
	dt := float32(t - m.T0)
	return m.Position.Add(m.Velocity.Scale(dt))
}

func (m TimedMotionVector) Speed() float32 { return m.Velocity.Length() }

// TimedMotionQuaternion is the orientation analogue of TimedMotionVector:
// (t0, orientation(t0), angular velocity expressed as an axis*rate vector).
// Extrapolation treats the angular velocity as constant and applies the
// exact axis-angle rotation of |AngularVel|*dt about AngularVel's axis; the
// result is not renormalized.
type TimedMotionQuaternion struct {
	T0          Time
	Orientation Quaternion
	AngularVel  Vector3 // axis * radians/sec
}

func NewTimedMotionQuaternion(t0 Time, q Quaternion, angVel Vector3) TimedMotionQuaternion {
	return TimedMotionQuaternion{T0: t0, Orientation: q, AngularVel: angVel}
}

func (m TimedMotionQuaternion) Extrapolate(t Time) Quaternion {
	dt := float32(t - m.T0)
	if m.AngularVel.LengthSquared() == 0 || dt == 0 {
		return m.Orientation
	}
	angle := m.AngularVel.Length() * dt
	axis := m.AngularVel.Scale(1 / m.AngularVel.Length())
	half := angle / 2
	s := float32(math.Sin(float64(half)))
	c := float32(math.Cos(float64(half)))
	dq := Quaternion{axis.X * s, axis.Y * s, axis.Z * s, c}
	return multiplyQuaternion(dq, m.Orientation)
}

func multiplyQuaternion(a, b Quaternion) Quaternion {
	return Quaternion{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}
}

// BoundingSphere is (center, radius).
type BoundingSphere struct {
	Center Vector3
	Radius float32
}

// BoundingBox is an axis-aligned min/max pair.
type BoundingBox struct {
	Min, Max Vector3
}

func NewBoundingBox(min, max Vector3) BoundingBox { return BoundingBox{Min: min, Max: max} }

func (b BoundingBox) Center() Vector3 {
	return Vector3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

func (b BoundingBox) Extents() Vector3 { return b.Max.Sub(b.Min) }

// LongAxis returns the axis (0=X,1=Y,2=Z) along which the box is longest --
// used by DCSEG split to choose the cut axis.
func (b BoundingBox) LongAxis() int {
	e := b.Extents()
	axis, best := 0, e.X
	if e.Y > best {
		axis, best = 1, e.Y
	}
	if e.Z > best {
		axis = 2
	}
	return axis
}

// Contains reports whether p lies within the closed box.
func (b BoundingBox) Contains(p Vector3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Clamp clamps p into the box -- DCSEG lookup clamps out-of-range
// coordinates into the root box.
func (b BoundingBox) Clamp(p Vector3) Vector3 {
	return Vector3{
		X: clampf(p.X, b.Min.X, b.Max.X),
		Y: clampf(p.Y, b.Min.Y, b.Max.Y),
		Z: clampf(p.Z, b.Min.Z, b.Max.Z),
	}
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Split divides the box into two halves along axis at its midpoint --
// DCSEG split divides the leaf along its long axis.
func (b BoundingBox) Split(axis int) (lo, hi BoundingBox) {
	mid := b.Min.Component(axis) + b.Extents().Component(axis)/2
	lo, hi = b, b
	switch axis {
	case 0:
		lo.Max.X, hi.Min.X = mid, mid
	case 1:
		lo.Max.Y, hi.Min.Y = mid, mid
	default:
		lo.Max.Z, hi.Min.Z = mid, mid
	}
	return
}

func (b BoundingBox) Equal(o BoundingBox) bool { return b == o }

// Union returns the smallest box containing both a and b -- used to
// recompute a parent's box after a merge.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Min: Vector3{min32(b.Min.X, o.Min.X), min32(b.Min.Y, o.Min.Y), min32(b.Min.Z, o.Min.Z)},
		Max: Vector3{max32(b.Max.X, o.Max.X), max32(b.Max.Y, o.Max.Y), max32(b.Max.Z, o.Max.Z)},
	}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// SolidAngle is a query's angular visibility threshold: an object is
// visible when its apparent solid angle is >= the threshold, so
// SolidAngleMin admits everything and SolidAngleMax is the most
// restrictive value.
type SolidAngle float64

const (
	SolidAngleMax SolidAngle = 4 * math.Pi // full sphere
	SolidAngleMin SolidAngle = 0
)

// ApparentSolidAngle computes the solid angle a sphere of the given
// BoundingSphere subtends from a viewpoint at dist away -- used by
// query-handler tick to decide addition/removal against the query's angle
// threshold.
func ApparentSolidAngle(radius, dist float32) SolidAngle {
	if dist <= 0 {
		return SolidAngleMax
	}
	// solid angle of a sphere subtended from a point, disc approximation
	sinHalf := radius / dist
	if sinHalf >= 1 {
		return SolidAngleMax
	}
	return SolidAngle(2 * math.Pi * (1 - math.Sqrt(1-float64(sinHalf*sinHalf))))
}
