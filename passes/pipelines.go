// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/shader"
)

// Pipeline ids.
const (
	PipelineGBuffer pipeline.ID = iota + 1
	PipelineGBufferMasked
	PipelineShadowMap
	PipelineRayTracedShadows
	PipelineDeferredLighting
	PipelineForward
	PipelineSky
	PipelineParticleSimulate
	PipelineParticleDraw
	PipelineDecals
	PipelineVolumetric
	PipelineSSR
	PipelineRTR
	PipelineFog
	PipelineClouds
	PipelineTAA
	PipelineFSR
	PipelineBloomExtract
	PipelineBloomCombine
	PipelineDoFBlur
	PipelineBokehGenerate
	PipelineBokehDraw
	PipelineDoFComposite
	PipelineMotionBlur
	PipelineExposureHistogram
	PipelineExposure
	PipelineTonemap
	PipelineFXAA
	PipelineSSAO
	PipelineDeferredLightingAO
)

// MeshLayout is the vertex layout of the shared geometry buffers.
var MeshLayout = gfx.InputLayout{Elements: []gfx.InputElement{
	{SemanticName: "POSITION", Format: gputypes.VertexFormatFloat32x3, Location: 0, Offset: gfx.AppendAligned},
	{SemanticName: "NORMAL", Format: gputypes.VertexFormatFloat32x3, Location: 1, Offset: gfx.AppendAligned},
	{SemanticName: "TEXCOORD", Format: gputypes.VertexFormatFloat32x2, Location: 2, Offset: gfx.AppendAligned},
	{SemanticName: "TANGENT", Format: gputypes.VertexFormatFloat32x4, Location: 3, Offset: gfx.AppendAligned},
}}

var noVertices = &gfx.InputLayout{}

// Options select shader compilation flags.
type Options struct {
	Debug               bool
	DisableOptimization bool
}

func (o Options) flags() shader.Flags {
	var f shader.Flags
	if o.Debug {
		f |= shader.FlagDebug
	}
	if o.DisableOptimization {
		f |= shader.FlagDisableOptimization
	}
	return f
}

type keys struct{ flags shader.Flags }

func (k keys) key(path, entry string, stage gfx.ShaderStage, macros ...shader.Macro) shader.Key {
	return shader.Key{Path: path, EntryPoint: entry, Stage: stage, Model: shader.DefaultModel, Macros: macros, Flags: k.flags}
}

func (k keys) vs(path string, macros ...shader.Macro) shader.Key {
	return k.key(path, "vs_main", gfx.StageVertex, macros...)
}

func (k keys) ps(path string, macros ...shader.Macro) *shader.Key {
	key := k.key(path, "fs_main", gfx.StagePixel, macros...)
	return &key
}

func (k keys) cs(path string, macros ...shader.Macro) shader.Key {
	return k.key(path, "cs_main", gfx.StageCompute, macros...)
}

func triangles() gputypes.PrimitiveState {
	return gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList, CullMode: gputypes.CullModeBack}
}

func fullscreen() gputypes.PrimitiveState {
	return gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList}
}

func additive() *gputypes.BlendState {
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
		Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
	}
}

func alphaBlend() *gputypes.BlendState {
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorSrcAlpha, DstFactor: gputypes.BlendFactorOneMinusSrcAlpha, Operation: gputypes.BlendOperationAdd},
		Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOneMinusSrcAlpha, Operation: gputypes.BlendOperationAdd},
	}
}

// GraphicsPipelines returns the graphics pipelines of the renderer for a
// backbuffer of format target.
func GraphicsPipelines(target gputypes.TextureFormat, opts Options) map[pipeline.ID]pipeline.GraphicsDesc {
	k := keys{opts.flags()}
	gbufferFormats := []gputypes.TextureFormat{NormalFormat, AlbedoFormat, EmissiveFormat, VelocityFormat}
	return map[pipeline.ID]pipeline.GraphicsDesc{
		PipelineGBuffer: {
			Label: "GBuffer", VS: k.vs("gbuffer.wgsl"), PS: k.ps("gbuffer.wgsl"),
			InputLayout: &MeshLayout, Primitive: triangles(), ColorFormats: gbufferFormats,
			DepthFormat: DepthFormat, DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess,
		},
		PipelineGBufferMasked: {
			Label: "GBuffer Masked", VS: k.vs("gbuffer.wgsl"), PS: k.ps("gbuffer.wgsl", shader.Macro{Name: "MASK"}),
			InputLayout: &MeshLayout, Primitive: gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
			ColorFormats: gbufferFormats,
			DepthFormat:  DepthFormat, DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess,
		},
		PipelineShadowMap: {
			Label: "Shadow Map", VS: k.vs("shadow.wgsl"),
			InputLayout: &MeshLayout, Primitive: triangles(),
			DepthFormat: ShadowMapFormat, DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess,
		},
		PipelineForward: {
			Label: "Forward", VS: k.vs("forward.wgsl"), PS: k.ps("forward.wgsl"),
			InputLayout: &MeshLayout, Primitive: triangles(), ColorFormats: []gputypes.TextureFormat{HDRFormat},
			Blend: alphaBlend(), DepthFormat: DepthFormat, DepthCompare: gputypes.CompareFunctionLessEqual,
		},
		PipelineSky: {
			Label: "Sky", VS: k.vs("sky.wgsl"), PS: k.ps("sky.wgsl"),
			InputLayout: noVertices, Primitive: fullscreen(), ColorFormats: []gputypes.TextureFormat{HDRFormat},
			DepthFormat: DepthFormat, DepthCompare: gputypes.CompareFunctionLessEqual,
		},
		PipelineParticleDraw: {
			Label: "Particle Draw", VS: k.vs("particles.wgsl"), PS: k.ps("particles.wgsl"),
			InputLayout: noVertices, Primitive: fullscreen(), ColorFormats: []gputypes.TextureFormat{HDRFormat},
			Blend: additive(), DepthFormat: DepthFormat, DepthCompare: gputypes.CompareFunctionLessEqual,
		},
		PipelineDecals: {
			Label: "Decals", VS: k.vs("decals.wgsl"), PS: k.ps("decals.wgsl"),
			InputLayout: noVertices, Primitive: triangles(), ColorFormats: []gputypes.TextureFormat{HDRFormat},
			Blend: alphaBlend(),
		},
		PipelineVolumetric: {
			Label: "Volumetric Lighting", VS: k.vs("fullscreen.wgsl"), PS: k.ps("volumetric.wgsl"),
			InputLayout: noVertices, Primitive: fullscreen(), ColorFormats: []gputypes.TextureFormat{HDRFormat},
			Blend: additive(),
		},
		PipelineBokehDraw: {
			Label: "Bokeh Draw", VS: k.vs("bokeh.wgsl"), PS: k.ps("bokeh.wgsl"),
			InputLayout: noVertices, Primitive: fullscreen(), ColorFormats: []gputypes.TextureFormat{HDRFormat},
			Blend: additive(),
		},
		PipelineTonemap: {
			Label: "Tonemap", VS: k.vs("fullscreen.wgsl"), PS: k.ps("tonemap.wgsl"),
			InputLayout: noVertices, Primitive: fullscreen(), ColorFormats: []gputypes.TextureFormat{target},
		},
		PipelineFXAA: {
			Label: "FXAA", VS: k.vs("fullscreen.wgsl"), PS: k.ps("fxaa.wgsl"),
			InputLayout: noVertices, Primitive: fullscreen(), ColorFormats: []gputypes.TextureFormat{target},
		},
	}
}

// ComputePipelines returns the compute pipelines of the renderer.
func ComputePipelines(opts Options) map[pipeline.ID]pipeline.ComputeDesc {
	k := keys{opts.flags()}
	return map[pipeline.ID]pipeline.ComputeDesc{
		PipelineRayTracedShadows:  {Label: "Ray Traced Shadows", CS: k.cs("rt_shadows.wgsl")},
		PipelineDeferredLighting:  {Label: "Deferred Lighting", CS: k.cs("lighting.wgsl")},
		PipelineParticleSimulate:  {Label: "Particle Simulate", CS: k.cs("particles_sim.wgsl")},
		PipelineSSR:               {Label: "SSR", CS: k.cs("ssr.wgsl")},
		PipelineRTR:               {Label: "Ray Traced Reflections", CS: k.cs("ssr.wgsl", shader.Macro{Name: "RAY_TRACED"})},
		PipelineFog:               {Label: "Fog", CS: k.cs("fog.wgsl")},
		PipelineClouds:            {Label: "Clouds", CS: k.cs("clouds.wgsl")},
		PipelineTAA:               {Label: "TAA", CS: k.cs("taa.wgsl")},
		PipelineFSR:               {Label: "FSR", CS: k.cs("fsr.wgsl")},
		PipelineBloomExtract:      {Label: "Bloom Extract", CS: k.cs("bloom.wgsl", shader.Macro{Name: "EXTRACT"})},
		PipelineBloomCombine:      {Label: "Bloom Combine", CS: k.cs("bloom.wgsl")},
		PipelineDoFBlur:           {Label: "DoF Blur", CS: k.cs("dof.wgsl", shader.Macro{Name: "BLUR"})},
		PipelineBokehGenerate:     {Label: "Bokeh Generate", CS: k.cs("bokeh_generate.wgsl")},
		PipelineDoFComposite:      {Label: "DoF Composite", CS: k.cs("dof.wgsl")},
		PipelineMotionBlur:        {Label: "Motion Blur", CS: k.cs("motion_blur.wgsl")},
		PipelineExposureHistogram: {Label: "Exposure Histogram", CS: k.cs("exposure.wgsl", shader.Macro{Name: "HISTOGRAM"})},
		PipelineExposure:          {Label: "Exposure", CS: k.cs("exposure.wgsl")},

		PipelineSSAO:               {Label: "SSAO", CS: k.cs("ssao.wgsl")},
		PipelineDeferredLightingAO: {Label: "Deferred Lighting AO", CS: k.cs("lighting.wgsl", shader.Macro{Name: "AMBIENT_OCCLUSION"})},
	}
}

// Register builds every pipeline of the renderer into c. All pipelines are
// attempted; the errors of those that failed are joined.
func Register(c *pipeline.Cache, target gputypes.TextureFormat, opts Options) error {
	var errs []error
	for id, desc := range GraphicsPipelines(target, opts) {
		if _, err := c.AddGraphics(id, desc); err != nil {
			errs = append(errs, err)
		}
	}
	for id, desc := range ComputePipelines(opts) {
		if _, err := c.AddCompute(id, desc); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("passes: register pipelines: %w", err)
	}
	return nil
}
