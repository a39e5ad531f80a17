package scene

import "github.com/chewxy/math32"

// Plane is n·p + d = 0 with the positive half-space inside.
type Plane struct {
	Normal Vec3
	D      float32
}

// Distance returns the signed distance of p to the plane.
func (pl Plane) Distance(p Vec3) float32 { return pl.Normal.Dot(p) + pl.D }

// Frustum planes in the order left, right, bottom, top, near, far.
type Frustum [6]Plane

// FrustumFromMatrix extracts the planes of a view-projection matrix with
// [0, 1] clip depth (Gribb/Hartmann).
func FrustumFromMatrix(m Mat4) Frustum {
	row := func(r int) [4]float32 { return [4]float32{m[r], m[4+r], m[8+r], m[12+r]} }
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	plane := func(a [4]float32) Plane {
		n := Vec3{a[0], a[1], a[2]}
		l := n.Len()
		if l == 0 {
			return Plane{Normal: n, D: a[3]}
		}
		return Plane{Normal: n.Scale(1 / l), D: a[3] / l}
	}
	add := func(a, b [4]float32, s float32) [4]float32 {
		return [4]float32{a[0] + s*b[0], a[1] + s*b[1], a[2] + s*b[2], a[3] + s*b[3]}
	}
	return Frustum{
		plane(add(r3, r0, 1)),
		plane(add(r3, r0, -1)),
		plane(add(r3, r1, 1)),
		plane(add(r3, r1, -1)),
		plane(r2),
		plane(add(r3, r2, -1)),
	}
}

// IntersectsAABB reports whether the box is at least partly inside.
func (f *Frustum) IntersectsAABB(b AABB) bool {
	for _, pl := range f {
		// Positive vertex: the box corner furthest along the normal.
		var p Vec3
		for i := 0; i < 3; i++ {
			if pl.Normal[i] >= 0 {
				p[i] = b.Max[i]
			} else {
				p[i] = b.Min[i]
			}
		}
		if pl.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsSphere reports whether the sphere is at least partly inside.
func (f *Frustum) IntersectsSphere(center Vec3, radius float32) bool {
	for _, pl := range f {
		if pl.Distance(center) < -radius {
			return false
		}
	}
	return true
}

// Transform returns the axis-aligned box enclosing b transformed by m.
func (b AABB) Transform(m Mat4) AABB {
	out := AABB{
		Min: Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
	for i := 0; i < 8; i++ {
		c := b.Min
		if i&1 != 0 {
			c[0] = b.Max[0]
		}
		if i&2 != 0 {
			c[1] = b.Max[1]
		}
		if i&4 != 0 {
			c[2] = b.Max[2]
		}
		p := m.TransformPoint(c)
		for k := 0; k < 3; k++ {
			out.Min[k] = min(out.Min[k], p[k])
			out.Max[k] = max(out.Max[k], p[k])
		}
	}
	return out
}

// IntersectsSphere reports whether b overlaps the sphere.
func (b AABB) IntersectsSphere(center Vec3, radius float32) bool {
	var d float32
	for i := 0; i < 3; i++ {
		v := center[i]
		switch {
		case v < b.Min[i]:
			d += (b.Min[i] - v) * (b.Min[i] - v)
		case v > b.Max[i]:
			d += (v - b.Max[i]) * (v - b.Max[i])
		}
	}
	return d <= radius*radius
}
