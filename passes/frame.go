// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"encoding/binary"

	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/scene"
)

// FrameConstants is the layout of the per-frame constant buffer bound at
// root slot 0 by every pass.
type FrameConstants struct {
	View         scene.Mat4
	Proj         scene.Mat4
	ViewProj     scene.Mat4
	PrevViewProj scene.Mat4

	CameraPosition [4]float32
	Jitter         [2]float32
	Resolution     [2]float32

	Time       float32
	DeltaTime  float32
	FrameIndex uint32
	LightCount uint32
}

// Bytes returns the little-endian encoding of c.
func (c *FrameConstants) Bytes() []byte {
	b, _ := binary.Append(nil, binary.LittleEndian, c)
	return b
}

// Light flags.
const (
	LightFlagShadows uint32 = 1 << iota
	LightFlagRayTracedShadows
	LightFlagVolumetric
)

// LightConstants is one element of the light table.
type LightConstants struct {
	Position  [4]float32
	Direction [4]float32

	// Color holds the intensity in its fourth component.
	Color [4]float32

	Range    float32
	OuterCos float32
	Type     uint32
	Flags    uint32
}

// PackLight converts a light component.
func PackLight(l *scene.Light) LightConstants {
	var flags uint32
	if l.CastsShadows {
		flags |= LightFlagShadows
	}
	if l.RayTracedShadows {
		flags |= LightFlagRayTracedShadows
	}
	if l.Volumetric {
		flags |= LightFlagVolumetric
	}
	return LightConstants{
		Position:  [4]float32{l.Position[0], l.Position[1], l.Position[2], 1},
		Direction: [4]float32{l.Direction[0], l.Direction[1], l.Direction[2], 0},
		Color:     [4]float32{l.Color[0], l.Color[1], l.Color[2], l.Intensity},
		Range:     l.Range,
		OuterCos:  l.OuterCos,
		Type:      uint32(l.Type),
		Flags:     flags,
	}
}

// EncodeLights returns the little-endian encoding of lights.
func EncodeLights(lights []LightConstants) []byte {
	b, _ := binary.Append(nil, binary.LittleEndian, lights)
	return b
}

// FrameData is the blackboard entry describing the frame being built.
type FrameData struct {
	Width, Height uint32
	FrameIndex    uint64
	DeltaTime     float32

	// Camera is the world space eye position.
	Camera scene.Vec3

	// ConstantsAddress is the GPU address of the FrameConstants.
	ConstantsAddress uint64

	// LightsAddress is the GPU address of the light table, indexed in
	// Scene.Visibility.Lights order.
	LightsAddress uint64

	Settings config.Postprocess
}

// SceneData is the blackboard entry holding the scene the frame draws.
type SceneData struct {
	Registry   *scene.Registry
	Visibility *scene.Visibility

	// Vertices and Indices are the shared geometry buffers. Geometry
	// passes draw nothing while they are nil.
	Vertices gfx.Buffer
	Indices  gfx.Buffer
}

// LightIndex returns the position of light in the light table, or -1.
func (s *SceneData) LightIndex(light scene.Entity) int {
	for i, e := range s.Visibility.Lights {
		if e == light {
			return i
		}
	}
	return -1
}
