package main

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/backend/software"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/scene"
)

func TestIntersect(t *testing.T) {
	boxes := []box{
		{bounds: scene.AABB{Min: scene.Vec3{-1, -1, -5}, Max: scene.Vec3{1, 1, -3}}},
		{bounds: scene.AABB{Min: scene.Vec3{-1, -1, -10}, Max: scene.Vec3{1, 1, -8}}},
	}
	tests := []struct {
		name   string
		dir    scene.Vec3
		tMax   float32
		hit    int
		t      float32
		normal scene.Vec3
	}{
		{"nearest", scene.Vec3{0, 0, -1}, 100, 0, 3, scene.Vec3{0, 0, 1}},
		{"bounded", scene.Vec3{0, 0, -1}, 2, -1, 2, scene.Vec3{}},
		{"miss", scene.Vec3{0, 1, 0}, 100, -1, 100, scene.Vec3{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, dist, n := intersect(boxes, scene.Vec3{}, tt.dir, tt.tMax)
			if hit != tt.hit || dist != tt.t || n != tt.normal {
				t.Errorf("intersect() = %d, %v, %v, want %d, %v, %v", hit, dist, n, tt.hit, tt.t, tt.normal)
			}
		})
	}
}

func TestResampleHalves(t *testing.T) {
	dev, err := software.New(backend.Config{Width: 4, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Destroy()
	tex := func(w, h uint32) *software.Texture {
		tx, err := dev.CreateTexture(&gfx.TextureDesc{Width: w, Height: h, Format: gputypes.TextureFormatRGBA16Float})
		if err != nil {
			t.Fatal(err)
		}
		return tx.(*software.Texture)
	}
	src, dst := tex(4, 4), tex(2, 2)
	src.Set(2, 2, [4]float32{1, 2, 3, 4})
	resample(dst, src, func(v [4]float32) [4]float32 { v[3] = 1; return v })
	if got := dst.At(1, 1); got != [4]float32{1, 2, 3, 1} {
		t.Errorf("dst(1, 1) = %v, want {1 2 3 1}", got)
	}
}

func TestTonemapCurvesBounded(t *testing.T) {
	for i, curve := range tonemapCurves {
		for _, x := range []float32{0, 0.5, 4, 1000} {
			if y := curve(x); y < 0 || y > 1.01 {
				t.Errorf("curve %d(%v) = %v, want in [0, 1]", i, x, y)
			}
		}
	}
}
