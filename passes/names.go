// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
)

// Resource names shared between passes.
var (
	Backbuffer = rendergraph.NewName("Backbuffer")

	GBufferNormal   = rendergraph.NewName("GBufferNormal")
	GBufferAlbedo   = rendergraph.NewName("GBufferAlbedo")
	GBufferEmissive = rendergraph.NewName("GBufferEmissive")
	DepthStencil    = rendergraph.NewName("DepthStencil")
	Velocity        = rendergraph.NewName("VelocityBuffer")

	AmbientOcclusion = rendergraph.NewName("AmbientOcclusion")

	HDR = rendergraph.NewName("HDR_RenderTarget")

	SceneVertices = rendergraph.NewName("SceneVertexBuffer")
	SceneIndices  = rendergraph.NewName("SceneIndexBuffer")

	ParticleBuffer = rendergraph.NewName("ParticleBuffer")

	PostprocessMain   = rendergraph.NewName("PostprocessMain")
	ReflectionOutput  = rendergraph.NewName("ReflectionOutput")
	FogOutput         = rendergraph.NewName("FogOutput")
	CloudsOutput      = rendergraph.NewName("CloudsOutput")
	TAAHistory        = rendergraph.NewName("TAAHistory")
	TAAOutput         = rendergraph.NewName("TAAOutput")
	UpscalerOutput    = rendergraph.NewName("UpscalerOutput")
	BloomExtract      = rendergraph.NewName("BloomExtract")
	BloomOutput       = rendergraph.NewName("BloomOutput")
	DoFBlurred        = rendergraph.NewName("DoFBlurred")
	BokehBuffer       = rendergraph.NewName("BokehBuffer")
	DoFOutput         = rendergraph.NewName("DoFOutput")
	MotionBlurOutput  = rendergraph.NewName("MotionBlurOutput")
	ExposureHistogram = rendergraph.NewName("ExposureHistogram")
	Exposure          = rendergraph.NewName("Exposure")
	LDR               = rendergraph.NewName("LDR_RenderTarget")
)

// ShadowMap names the depth map rendered for light.
func ShadowMap(light scene.Entity) rendergraph.Name {
	return rendergraph.NewName(fmt.Sprintf("ShadowMap%d", light))
}

// ShadowMask names the ray traced visibility mask of light.
func ShadowMask(light scene.Entity) rendergraph.Name {
	return rendergraph.NewName(fmt.Sprintf("ShadowMask%d", light))
}

// Formats of the renderer's textures.
const (
	NormalFormat     = gputypes.TextureFormatRGBA16Float
	AlbedoFormat     = gputypes.TextureFormatRGBA8Unorm
	EmissiveFormat   = gputypes.TextureFormatRGBA8Unorm
	DepthFormat      = gputypes.TextureFormatDepth32Float
	VelocityFormat   = gputypes.TextureFormatRG16Float
	HDRFormat        = gputypes.TextureFormatRGBA16Float
	ShadowMapFormat  = gputypes.TextureFormatDepth32Float
	ShadowMaskFormat = gputypes.TextureFormatR8Unorm
	ExposureFormat   = gputypes.TextureFormatR32Float
	AOFormat         = gputypes.TextureFormatR32Float
)

// ShadowMapSize is the edge length of a shadow map.
const ShadowMapSize = 1024

// HistogramBins is the number of bins of the luminance histogram.
const HistogramBins = 256
