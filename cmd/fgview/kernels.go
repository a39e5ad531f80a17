package main

import (
	"image"
	"image/color"
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/framegraph/backend/software"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/scene"
)

// Postprocess effects without a CPU kernel of their own pass their first
// input through unchanged.
var passthroughEffects = []string{
	"SSR", "Ray Traced Reflections", "Fog", "Clouds", "TAA", "FSR",
	"Bloom Extract", "Bloom Combine", "DoF Blur", "DoF Composite", "Motion Blur",
}

func registerKernels(dev *software.Device, reg *scene.Registry, cam *scene.Camera) {
	lighting := func(inv *software.Invocation) {
		// normal, albedo, emissive, depth, then the HDR target.
		if out := inv.Texture(inv.Constants[0] + 4); out != nil {
			traceScene(out, reg, cam)
		}
	}
	dev.RegisterKernel("Deferred Lighting", lighting)
	dev.RegisterKernel("Deferred Lighting AO", lighting)
	dev.RegisterKernel("SSAO", func(inv *software.Invocation) {
		if dst := firstUAV(inv); dst != nil {
			dst.Fill([4]float32{1, 0, 0, 0})
		}
	})
	for _, label := range passthroughEffects {
		dev.RegisterKernel(label, func(inv *software.Invocation) {
			src, dst := inv.Texture(inv.Constants[0]), firstUAV(inv)
			if src != nil && dst != nil {
				resample(dst, src, func(v [4]float32) [4]float32 { return v })
			}
		})
	}
	dev.RegisterKernel("Exposure", func(inv *software.Invocation) {
		if dst := firstUAV(inv); dst != nil {
			dst.Fill([4]float32{1, 0, 0, 0})
		}
	})
	dev.RegisterKernel("Tonemap", func(inv *software.Invocation) {
		c := inv.Constants
		src := inv.Texture(c[0])
		if src == nil || len(inv.Targets) == 0 {
			return
		}
		exposure := math32.Float32frombits(c[3])
		if c[2] != 0 {
			if t := inv.Texture(c[0] + 1); t != nil {
				exposure *= t.At(0, 0)[0]
			}
		}
		curve := tonemapCurves[min(c[1], uint32(len(tonemapCurves)-1))]
		resample(inv.Targets[0], src, func(v [4]float32) [4]float32 {
			for i := range 3 {
				v[i] = gamma(curve(v[i] * exposure))
			}
			v[3] = 1
			return v
		})
	})
	dev.RegisterKernel("FXAA", func(inv *software.Invocation) {
		if src := inv.Texture(inv.Constants[0]); src != nil && len(inv.Targets) > 0 {
			resample(inv.Targets[0], src, func(v [4]float32) [4]float32 { return v })
		}
	})
}

// tonemapCurves is indexed by the tonemap operator constant.
var tonemapCurves = []func(float32) float32{
	func(x float32) float32 { return x / (1 + x) },
	hable,
	func(x float32) float32 { return min(x, 1) },
}

func hable(x float32) float32 {
	return min(hableCurve(x*2)/hableCurve(11.2), 1)
}

func hableCurve(x float32) float32 {
	const a, b, c, d, e, f = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
	return (x*(a*x+c*b)+d*e)/(x*(a*x+b)+d*f) - e/f
}

func gamma(x float32) float32 { return math32.Pow(max(x, 0), 1/2.2) }

// firstUAV scans the bound descriptor range for the output view.
func firstUAV(inv *software.Invocation) *software.Texture {
	for i := range uint32(8) {
		d, ok := inv.Heap.At(inv.Constants[0] + i).(*software.Descriptor)
		if ok && d.Kind() == gfx.ViewUAV {
			return d.Texture()
		}
	}
	return nil
}

// resample writes f(src) into dst with nearest filtering.
func resample(dst, src *software.Texture, f func([4]float32) [4]float32) {
	dd, sd := dst.Desc(), src.Desc()
	for y := range int(dd.Height) {
		sy := y * int(sd.Height) / int(dd.Height)
		for x := range int(dd.Width) {
			sx := x * int(sd.Width) / int(dd.Width)
			dst.Set(x, y, f(src.At(sx, sy)))
		}
	}
}

type box struct {
	bounds scene.AABB
	albedo [3]float32
}

// traceScene ray casts the scene boxes from the camera and shades them
// with every active light.
func traceScene(out *software.Texture, reg *scene.Registry, cam *scene.Camera) {
	var boxes []box
	for e, tb := range scene.View2[scene.Transform, scene.AABB](reg) {
		sm := scene.Get[scene.Submesh](reg, e)
		if sm == nil {
			continue
		}
		b := box{bounds: tb.B.Transform(tb.A.World), albedo: [3]float32{0.8, 0.8, 0.8}}
		if m := scene.Get[scene.Material](reg, sm.Material); m != nil {
			b.albedo = m.AlbedoFactor
		}
		boxes = append(boxes, b)
	}

	d := out.Desc()
	w, h := float32(d.Width), float32(d.Height)
	forward := cam.Forward()
	right := forward.Cross(scene.Vec3{0, 1, 0}).Normalize()
	up := right.Cross(forward)
	tanHalf := math32.Tan(cam.FovY / 2)

	for y := range int(d.Height) {
		for x := range int(d.Width) {
			px := (2*(float32(x)+0.5)/w - 1) * tanHalf * cam.Aspect
			py := (1 - 2*(float32(y)+0.5)/h) * tanHalf
			dir := forward.Add(right.Scale(px)).Add(up.Scale(py)).Normalize()
			out.Set(x, y, shade(reg, boxes, cam.Position, dir))
		}
	}
}

func shade(reg *scene.Registry, boxes []box, origin, dir scene.Vec3) [4]float32 {
	hit, t, n := intersect(boxes, origin, dir, math32.MaxFloat32)
	if hit < 0 {
		k := 0.5 + 0.5*dir[1]
		return [4]float32{0.4 + 0.2*k, 0.55 + 0.25*k, 0.8 + 0.2*k, 1}
	}
	p := origin.Add(dir.Scale(t))
	albedo := boxes[hit].albedo
	c := [3]float32{0.05 * albedo[0], 0.05 * albedo[1], 0.05 * albedo[2]}
	for _, l := range scene.View[scene.Light](reg) {
		if !l.Active {
			continue
		}
		var (
			toLight scene.Vec3
			dist    = float32(math32.MaxFloat32)
			atten   = float32(1)
		)
		if l.Type == scene.LightDirectional {
			toLight = l.Direction.Scale(-1).Normalize()
		} else {
			delta := l.Position.Sub(p)
			dist = delta.Len()
			toLight = delta.Scale(1 / dist)
			atten = max(1-dist/l.Range, 0)
		}
		ndl := n.Dot(toLight)
		if ndl <= 0 || atten == 0 {
			continue
		}
		if l.CastsShadows {
			if s, _, _ := intersect(boxes, p.Add(n.Scale(1e-3)), toLight, dist); s >= 0 {
				continue
			}
		}
		for i := range 3 {
			c[i] += albedo[i] * l.Color[i] * l.Intensity * ndl * atten
		}
	}
	return [4]float32{c[0], c[1], c[2], 1}
}

// intersect returns the nearest box hit closer than tMax, its distance and
// surface normal, or -1.
func intersect(boxes []box, origin, dir scene.Vec3, tMax float32) (int, float32, scene.Vec3) {
	best, bestT := -1, tMax
	var normal scene.Vec3
	for i, b := range boxes {
		tNear, tFar := float32(0), bestT
		axis, sign := -1, float32(0)
		miss := false
		for a := range 3 {
			if math32.Abs(dir[a]) < 1e-8 {
				if origin[a] < b.bounds.Min[a] || origin[a] > b.bounds.Max[a] {
					miss = true
					break
				}
				continue
			}
			inv := 1 / dir[a]
			t0 := (b.bounds.Min[a] - origin[a]) * inv
			t1 := (b.bounds.Max[a] - origin[a]) * inv
			s := float32(-1)
			if t0 > t1 {
				t0, t1 = t1, t0
				s = 1
			}
			if t0 > tNear {
				tNear, axis, sign = t0, a, s
			}
			tFar = min(tFar, t1)
			if tNear > tFar {
				miss = true
				break
			}
		}
		if miss || axis < 0 {
			continue
		}
		best, bestT = i, tNear
		normal = scene.Vec3{}
		normal[axis] = sign
	}
	return best, bestT, normal
}

// readback converts a backbuffer to an 8-bit image.
func readback(t *software.Texture) *image.RGBA {
	d := t.Desc()
	img := image.NewRGBA(image.Rect(0, 0, int(d.Width), int(d.Height)))
	to8 := func(v float32) uint8 {
		return uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
	}
	for y := range int(d.Height) {
		for x := range int(d.Width) {
			v := t.At(x, y)
			img.SetRGBA(x, y, color.RGBA{to8(v[0]), to8(v[1]), to8(v[2]), 255})
		}
	}
	return img
}
