// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ShaderStage is a programmable pipeline stage.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota
	StagePixel
	StageHull
	StageDomain
	StageGeometry
	StageCompute
	StageMesh
	StageAmplification
	StageLibrary
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "Vertex"
	case StagePixel:
		return "Pixel"
	case StageHull:
		return "Hull"
	case StageDomain:
		return "Domain"
	case StageGeometry:
		return "Geometry"
	case StageCompute:
		return "Compute"
	case StageMesh:
		return "Mesh"
	case StageAmplification:
		return "Amplification"
	case StageLibrary:
		return "Library"
	default:
		return fmt.Sprintf("ShaderStage(%d)", int(s))
	}
}

// Shader is compiled bytecode for one entry point.
type Shader struct {
	Stage      ShaderStage
	EntryPoint string
	Code       []byte
}

// AppendAligned places an input element right after the previous one.
const AppendAligned = ^uint32(0)

// InputElement is one vertex attribute of an input layout.
type InputElement struct {
	SemanticName  string
	SemanticIndex uint32
	Format        gputypes.VertexFormat

	// Location is the shader location the element feeds.
	Location uint32

	// Slot is the vertex buffer slot: 0 per vertex, 1 per instance.
	Slot uint32

	// Offset is the byte offset in the slot, or AppendAligned.
	Offset uint32

	StepMode gputypes.VertexStepMode
}

// InputLayout is an ordered set of vertex input elements.
type InputLayout struct {
	Elements []InputElement
}

// BufferLayouts resolves AppendAligned offsets and groups the elements by
// slot into gputypes vertex buffer layouts.
func (l InputLayout) BufferLayouts() []gputypes.VertexBufferLayout {
	var slots []gputypes.VertexBufferLayout
	offsets := map[uint32]uint64{}
	for _, e := range l.Elements {
		for uint32(len(slots)) <= e.Slot {
			slots = append(slots, gputypes.VertexBufferLayout{StepMode: gputypes.VertexStepModeVertex})
		}
		off := offsets[e.Slot]
		if e.Offset != AppendAligned {
			off = uint64(e.Offset)
		}
		s := &slots[e.Slot]
		s.StepMode = e.StepMode
		s.Attributes = append(s.Attributes, gputypes.VertexAttribute{
			Format:         e.Format,
			Offset:         off,
			ShaderLocation: e.Location,
		})
		offsets[e.Slot] = off + e.Format.Size()
		s.ArrayStride = max(s.ArrayStride, offsets[e.Slot])
	}
	return slots
}

// GraphicsPipelineDesc describes a graphics pipeline at the device level.
type GraphicsPipelineDesc struct {
	Label string

	VS Shader
	PS *Shader

	InputLayout InputLayout
	Primitive   gputypes.PrimitiveState

	ColorFormats []gputypes.TextureFormat
	Blend        *gputypes.BlendState

	DepthFormat  gputypes.TextureFormat
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction

	SampleCount uint32
}

// ComputePipelineDesc describes a compute pipeline at the device level.
type ComputePipelineDesc struct {
	Label string
	CS    Shader
}

// Pipeline is a compiled pipeline state object.
type Pipeline interface {
	Label() string
	Destroy()
}
