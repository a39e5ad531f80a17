//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
)

// textureUsage maps resource states onto HAL texture usages. Present maps
// to CopySrc since offscreen backbuffers are copied out by their host.
func textureUsage(s gfx.ResourceState, format gputypes.TextureFormat) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if s&(gfx.StateRenderTarget|gfx.StateDepthWrite) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&gfx.StateDepthRead != 0 && isDepth(format) {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&gfx.StateAllShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&gfx.StateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&(gfx.StateCopySrc|gfx.StatePresent) != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if s&gfx.StateCopyDst != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

// bufferUsage maps resource states onto HAL buffer usages.
func bufferUsage(s gfx.ResourceState) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if s&gfx.StateVertexAndConstantBuffer != 0 {
		u |= gputypes.BufferUsageVertex | gputypes.BufferUsageUniform
	}
	if s&gfx.StateIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if s&(gfx.StateAllShaderResource|gfx.StateUnorderedAccess) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if s&gfx.StateIndirectArgument != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if s&gfx.StateCopySrc != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if s&gfx.StateCopyDst != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	return u
}
