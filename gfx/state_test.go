// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestResourceStateString(t *testing.T) {
	tests := []struct {
		state ResourceState
		want  string
	}{
		{StateCommon, "Common"},
		{StateRenderTarget, "RenderTarget"},
		{StateAllShaderResource, "NonPixelShaderResource|PixelShaderResource"},
		{StateDepthRead | StatePixelShaderResource, "DepthRead|PixelShaderResource"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", uint32(tt.state), got, tt.want)
		}
	}
}

func TestResourceStateValid(t *testing.T) {
	tests := []struct {
		state ResourceState
		valid bool
		write bool
	}{
		{StateCommon, true, false},
		{StateRenderTarget, true, true},
		{StateUnorderedAccess, true, true},
		{StateAllShaderResource | StateCopySrc, true, false},
		{StateRenderTarget | StateUnorderedAccess, false, true},
		{StateDepthWrite | StatePixelShaderResource, false, true},
		{StateDepthRead | StateNonPixelShaderResource, true, false},
	}
	for _, tt := range tests {
		if got := tt.state.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v, want %v", tt.state, got, tt.valid)
		}
		if got := tt.state.IsWrite(); got != tt.write {
			t.Errorf("%s.IsWrite() = %v, want %v", tt.state, got, tt.write)
		}
	}
}

func TestTextureDescSizeBytes(t *testing.T) {
	d := TextureDesc{Width: 256, Height: 256, Format: gputypes.TextureFormatR8Unorm}
	if got := d.SizeBytes(); got != 256*256 {
		t.Errorf("SizeBytes() = %d, want %d", got, 256*256)
	}

	d = TextureDesc{Width: 4, Height: 4, MipLevels: 3, Format: gputypes.TextureFormatRGBA16Float}
	// 4x4 + 2x2 + 1x1 texels at 8 bytes.
	if got := d.SizeBytes(); got != (16+4+1)*8 {
		t.Errorf("SizeBytes() = %d, want %d", got, (16+4+1)*8)
	}
}

func TestInputLayoutBufferLayouts(t *testing.T) {
	l := InputLayout{Elements: []InputElement{
		{SemanticName: "POSITION", Format: gputypes.VertexFormatFloat32x3, Location: 0, Offset: AppendAligned, StepMode: gputypes.VertexStepModeVertex},
		{SemanticName: "TEXCOORD", Format: gputypes.VertexFormatFloat32x2, Location: 1, Offset: AppendAligned, StepMode: gputypes.VertexStepModeVertex},
		{SemanticName: "INSTANCE_ID", Format: gputypes.VertexFormatUint32, Location: 2, Slot: 1, Offset: AppendAligned, StepMode: gputypes.VertexStepModeInstance},
	}}

	got := l.BufferLayouts()
	if len(got) != 2 {
		t.Fatalf("len(BufferLayouts()) = %d, want 2", len(got))
	}
	if got[0].ArrayStride != 20 {
		t.Errorf("slot 0 stride = %d, want 20", got[0].ArrayStride)
	}
	if got[0].Attributes[1].Offset != 12 {
		t.Errorf("TEXCOORD offset = %d, want 12", got[0].Attributes[1].Offset)
	}
	if got[1].StepMode != gputypes.VertexStepModeInstance {
		t.Errorf("slot 1 step mode = %v, want Instance", got[1].StepMode)
	}
}
