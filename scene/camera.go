package scene

import "github.com/chewxy/math32"

// Camera is a perspective camera looking down its yaw and pitch.
type Camera struct {
	Position Vec3
	Yaw      float32 // radians around +Y, 0 looks down -Z
	Pitch    float32 // radians, positive looks up
	FovY     float32
	Aspect   float32
	Near     float32
	Far      float32

	view, proj Mat4
	prevVP     Mat4
	updated    bool
}

// NewCamera returns a camera at position with a 60 degree vertical field of
// view.
func NewCamera(position Vec3, aspect float32) *Camera {
	c := &Camera{
		Position: position,
		FovY:     math32.Pi / 3,
		Aspect:   aspect,
		Near:     0.1,
		Far:      1000,
	}
	c.Update()
	return c
}

// Forward returns the unit view direction.
func (c *Camera) Forward() Vec3 {
	cp := math32.Cos(c.Pitch)
	return Vec3{-math32.Sin(c.Yaw) * cp, math32.Sin(c.Pitch), -math32.Cos(c.Yaw) * cp}
}

// Update recomputes the matrices and remembers the previous
// view-projection for motion vectors.
func (c *Camera) Update() {
	if c.updated {
		c.prevVP = c.ViewProj()
	}
	c.view = LookAt(c.Position, c.Position.Add(c.Forward()), Vec3{0, 1, 0})
	c.proj = Perspective(c.FovY, c.Aspect, c.Near, c.Far)
	if !c.updated {
		c.prevVP = c.ViewProj()
		c.updated = true
	}
}

// View returns the view matrix.
func (c *Camera) View() Mat4 { return c.view }

// Proj returns the projection matrix.
func (c *Camera) Proj() Mat4 { return c.proj }

// ViewProj returns Proj * View.
func (c *Camera) ViewProj() Mat4 { return c.proj.Mul(c.view) }

// PrevViewProj returns the view-projection of the previous Update.
func (c *Camera) PrevViewProj() Mat4 { return c.prevVP }

// Frustum returns the planes of the current view-projection.
func (c *Camera) Frustum() Frustum { return FrustumFromMatrix(c.ViewProj()) }

// SetAspect changes the aspect ratio, typically after a resize.
func (c *Camera) SetAspect(aspect float32) {
	c.Aspect = aspect
	c.Update()
}

// halton returns element i (1-based) of the Halton sequence in base b.
func halton(i, b int) float32 {
	f, r := float32(1), float32(0)
	for i > 0 {
		f /= float32(b)
		r += f * float32(i%b)
		i /= b
	}
	return r
}

// JitterSamples is the length of the jitter sequence.
const JitterSamples = 16

// Jitter returns the sub-pixel offset of frame in clip space units for a
// width x height target, following the Halton(2, 3) sequence.
func Jitter(frame uint64, width, height uint32) (x, y float32) {
	i := int(frame%JitterSamples) + 1
	x = (halton(i, 2) - 0.5) * 2 / float32(width)
	y = (halton(i, 3) - 0.5) * 2 / float32(height)
	return x, y
}

// JitteredProj returns the projection offset by a clip space jitter.
func (c *Camera) JitteredProj(x, y float32) Mat4 {
	p := c.proj
	p[8] += x
	p[9] += y
	return p
}
