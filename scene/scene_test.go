package scene

import (
	"slices"
	"testing"

	"github.com/chewxy/math32"
)

func near(a, b float32) bool { return math32.Abs(a-b) < 1e-4 }

func TestMat4MulIdentity(t *testing.T) {
	m := Translation(Vec3{1, 2, 3}).Mul(Scaling(Vec3{2, 2, 2}))
	if got := Identity().Mul(m); got != m {
		t.Errorf("I*M = %v, want %v", got, m)
	}
	p := m.TransformPoint(Vec3{1, 1, 1})
	if p != (Vec3{3, 4, 5}) {
		t.Errorf("TransformPoint = %v, want [3 4 5]", p)
	}
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := Perspective(math32.Pi/2, 1, 1, 100)
	if z := proj.TransformPoint(Vec3{0, 0, -1})[2]; !near(z, 0) {
		t.Errorf("near plane depth = %v, want 0", z)
	}
	if z := proj.TransformPoint(Vec3{0, 0, -100})[2]; !near(z, 1) {
		t.Errorf("far plane depth = %v, want 1", z)
	}
}

func TestFrustumCulling(t *testing.T) {
	cam := NewCamera(Vec3{0, 0, 0}, 1)
	f := cam.Frustum()

	tests := []struct {
		name string
		box  AABB
		want bool
	}{
		{"ahead", AABB{Min: Vec3{-1, -1, -11}, Max: Vec3{1, 1, -9}}, true},
		{"behind", AABB{Min: Vec3{-1, -1, 9}, Max: Vec3{1, 1, 11}}, false},
		{"far left", AABB{Min: Vec3{-100, -1, -11}, Max: Vec3{-90, 1, -9}}, false},
		{"beyond far", AABB{Min: Vec3{-1, -1, -2000}, Max: Vec3{1, 1, -1500}}, false},
		{"straddling near", AABB{Min: Vec3{-1, -1, -1}, Max: Vec3{1, 1, 1}}, true},
	}
	for _, tt := range tests {
		if got := f.IntersectsAABB(tt.box); got != tt.want {
			t.Errorf("%s: IntersectsAABB = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b, c := r.Create(), r.Create(), r.Create()
	Add(r, a, Transform{World: Identity()})
	Add(r, b, Transform{World: Identity()})
	Add(r, b, AABB{Max: Vec3{1, 1, 1}})
	Add(r, c, AABB{})

	var both []Entity
	for e := range View2[Transform, AABB](r) {
		both = append(both, e)
	}
	if !slices.Equal(both, []Entity{b}) {
		t.Errorf("View2 = %v, want [%d]", both, b)
	}

	r.Destroy(a)
	if Count[Transform](r) != 1 || r.Valid(a) {
		t.Errorf("after Destroy: Count = %d, Valid = %v", Count[Transform](r), r.Valid(a))
	}
	if Get[Transform](r, b) == nil {
		t.Error("Get(b) = nil after destroying a")
	}
	if Add(r, a, AABB{}) != nil {
		t.Error("Add on a destroyed entity returned a component")
	}
}

func TestSetParent(t *testing.T) {
	r := NewRegistry()
	p1, p2, child := r.Create(), r.Create(), r.Create()
	r.SetParent(child, p1)
	r.SetParent(child, p2)

	if got := Get[Relationship](r, child).Parent; got != p2 {
		t.Errorf("Parent = %d, want %d", got, p2)
	}
	if n := len(Get[Relationship](r, p1).Children); n != 0 {
		t.Errorf("old parent has %d children, want 0", n)
	}
	if got := Get[Relationship](r, p2).Children; !slices.Equal(got, []Entity{child}) {
		t.Errorf("new parent children = %v", got)
	}
}

func TestComputeVisibility(t *testing.T) {
	r := NewRegistry()
	mat := r.Create()
	Add(r, mat, Material{Transparent: true})

	mesh := func(pos Vec3, m Entity) Entity {
		e := r.Create()
		Add(r, e, Transform{World: Translation(pos)})
		Add(r, e, AABB{Min: Vec3{-1, -1, -1}, Max: Vec3{1, 1, 1}})
		Add(r, e, Submesh{IndexCount: 3, Material: m})
		return e
	}
	visible := mesh(Vec3{0, 0, -10}, Null)
	behind := mesh(Vec3{0, 0, 10}, Null)
	glass := mesh(Vec3{2, 0, -10}, mat)

	sun := r.Create()
	Add(r, sun, Light{Type: LightDirectional, Active: true, CastsShadows: true})
	lamp := r.Create()
	Add(r, lamp, Light{Type: LightPoint, Position: Vec3{0, 0, 10}, Range: 3, Active: true, CastsShadows: true})
	off := r.Create()
	Add(r, off, Light{Type: LightPoint})

	var v Visibility
	ComputeVisibility(r, NewCamera(Vec3{}, 1).Frustum(), &v)

	if !slices.Equal(v.Camera, []Entity{visible}) {
		t.Errorf("Camera = %v, want [%d]", v.Camera, visible)
	}
	if !slices.Equal(v.Transparent, []Entity{glass}) {
		t.Errorf("Transparent = %v, want [%d]", v.Transparent, glass)
	}
	if !slices.Equal(v.Lights, []Entity{sun, lamp}) {
		t.Errorf("Lights = %v, want [%d %d]", v.Lights, sun, lamp)
	}
	if got := v.Casters[sun]; len(got) != 3 {
		t.Errorf("sun casters = %v, want all 3 meshes", got)
	}
	if got := v.Casters[lamp]; !slices.Equal(got, []Entity{behind}) {
		t.Errorf("lamp casters = %v, want [%d]", got, behind)
	}
}

func TestJitterSequence(t *testing.T) {
	x0, y0 := Jitter(0, 100, 100)
	x16, y16 := Jitter(JitterSamples, 100, 100)
	if x0 != x16 || y0 != y16 {
		t.Errorf("Jitter does not repeat after %d samples", JitterSamples)
	}
	for i := uint64(0); i < JitterSamples; i++ {
		x, y := Jitter(i, 100, 100)
		if math32.Abs(x) > 0.01 || math32.Abs(y) > 0.01 {
			t.Errorf("Jitter(%d) = (%v, %v), exceeds one pixel", i, x, y)
		}
	}
}
