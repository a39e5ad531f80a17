package main

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/scene"
)

const orbitRadius = 9

// buildScene populates a ground slab, a row of colored boxes and three
// lights.
func buildScene(aspect float32) (*scene.Registry, *scene.Camera) {
	reg := scene.NewRegistry()
	addBox := func(center, half scene.Vec3, albedo [3]float32, transparent bool) {
		mat := reg.Create()
		scene.Add(reg, mat, scene.Material{
			AlbedoTexture:            scene.TextureNone,
			MetallicRoughnessTexture: scene.TextureNone,
			NormalTexture:            scene.TextureNone,
			EmissiveTexture:          scene.TextureNone,
			AlbedoFactor:             albedo,
			RoughFactor:              0.6,
			Transparent:              transparent,
		})
		e := reg.Create()
		scene.Add(reg, e, scene.Transform{World: scene.Translation(center).Mul(scene.Scaling(half))})
		scene.Add(reg, e, scene.AABB{Min: scene.Vec3{-1, -1, -1}, Max: scene.Vec3{1, 1, 1}})
		scene.Add(reg, e, scene.Submesh{IndexCount: 36, Material: mat})
	}
	addBox(scene.Vec3{0, -0.6, 0}, scene.Vec3{8, 0.1, 8}, [3]float32{0.6, 0.6, 0.6}, false)
	addBox(scene.Vec3{-2.5, 0.5, 0}, scene.Vec3{1, 1, 1}, [3]float32{0.9, 0.2, 0.2}, false)
	addBox(scene.Vec3{0, 0.25, 1}, scene.Vec3{0.75, 0.75, 0.75}, [3]float32{0.2, 0.8, 0.3}, false)
	addBox(scene.Vec3{2.5, 1, -1}, scene.Vec3{0.6, 1.5, 0.6}, [3]float32{0.2, 0.3, 0.9}, false)
	addBox(scene.Vec3{1, 0, 3}, scene.Vec3{0.4, 0.4, 0.4}, [3]float32{0.9, 0.9, 0.2}, true)

	sun := reg.Create()
	scene.Add(reg, sun, scene.Light{
		Type: scene.LightDirectional, Direction: scene.Vec3{-0.4, -1, -0.3}.Normalize(),
		Color: [3]float32{1, 0.95, 0.85}, Intensity: 2, Active: true, CastsShadows: true,
	})
	lamp := reg.Create()
	scene.Add(reg, lamp, scene.Light{
		Type: scene.LightPoint, Position: scene.Vec3{0, 3, 2}, Range: 8,
		Color: [3]float32{1, 0.5, 0.2}, Intensity: 3, Active: true, CastsShadows: true,
		RayTracedShadows: true, Volumetric: true, VolumetricSteps: 16,
	})
	fill := reg.Create()
	scene.Add(reg, fill, scene.Light{
		Type: scene.LightPoint, Position: scene.Vec3{-4, 2, -3}, Range: 10,
		Color: [3]float32{0.3, 0.5, 1}, Intensity: 1.5, Active: true,
	})

	em := reg.Create()
	scene.Add(reg, em, scene.Emitter{Position: scene.Vec3{0, 2, 0}, Velocity: scene.Vec3{0, 1, 0}, SpawnRate: 200, MaxParticles: 1024})
	sky := reg.Create()
	scene.Add(reg, sky, scene.Skybox{CubeTexture: scene.TextureNone, Active: true})

	return reg, scene.NewCamera(scene.Vec3{0, 2, orbitRadius}, aspect)
}

// orbit places the camera on a circle around the origin for frame i.
func orbit(cam *scene.Camera, i int) {
	a := float32(i) * 0.05
	cam.Position = scene.Vec3{math32.Sin(a) * orbitRadius, 2.5, math32.Cos(a) * orbitRadius}
	cam.Yaw = a
	cam.Pitch = -math32.Atan2(2.5, orbitRadius)
}

// cubeGeometry creates the unit cube every submesh draws, in the mesh
// vertex layout.
func cubeGeometry(dev gfx.Device) (gfx.Buffer, gfx.Buffer, error) {
	faces := [6]struct{ n, u, v scene.Vec3 }{
		{scene.Vec3{1, 0, 0}, scene.Vec3{0, 0, -1}, scene.Vec3{0, 1, 0}},
		{scene.Vec3{-1, 0, 0}, scene.Vec3{0, 0, 1}, scene.Vec3{0, 1, 0}},
		{scene.Vec3{0, 1, 0}, scene.Vec3{1, 0, 0}, scene.Vec3{0, 0, -1}},
		{scene.Vec3{0, -1, 0}, scene.Vec3{1, 0, 0}, scene.Vec3{0, 0, 1}},
		{scene.Vec3{0, 0, 1}, scene.Vec3{1, 0, 0}, scene.Vec3{0, 1, 0}},
		{scene.Vec3{0, 0, -1}, scene.Vec3{-1, 0, 0}, scene.Vec3{0, 1, 0}},
	}
	var (
		verts []byte
		idx   []byte
	)
	put := func(vals ...float32) {
		for _, f := range vals {
			verts = binary.LittleEndian.AppendUint32(verts, math.Float32bits(f))
		}
	}
	for fi, f := range faces {
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.n.Add(f.u.Scale(c[0])).Add(f.v.Scale(c[1]))
			put(p[0], p[1], p[2], f.n[0], f.n[1], f.n[2], (c[0]+1)/2, (1-c[1])/2, f.u[0], f.u[1], f.u[2], 1)
		}
		base := uint32(fi * 4)
		for _, i := range []uint32{0, 1, 2, 0, 2, 3} {
			idx = binary.LittleEndian.AppendUint32(idx, base+i)
		}
	}

	vb, err := dev.CreateBuffer(&gfx.BufferDesc{
		Label: "Cube Vertices", Size: uint64(len(verts)), Stride: 48, CPUVisible: true,
		Usage: gputypes.BufferUsageVertex, InitialState: gfx.StateVertexAndConstantBuffer,
	})
	if err != nil {
		return nil, nil, err
	}
	ib, err := dev.CreateBuffer(&gfx.BufferDesc{
		Label: "Cube Indices", Size: uint64(len(idx)), Stride: 4, CPUVisible: true,
		Usage: gputypes.BufferUsageIndex, InitialState: gfx.StateIndexBuffer,
	})
	if err != nil {
		vb.Destroy()
		return nil, nil, err
	}
	copy(vb.Mapped(), verts)
	copy(ib.Mapped(), idx)
	return vb, ib, nil
}
