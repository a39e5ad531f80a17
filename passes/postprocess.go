// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/rendergraph"
)

// effect is a full-screen compute pass reading textures and writing one
// new texture.
type effect struct {
	name      string
	pipe      pipeline.ID
	reads     []rendergraph.Name
	out       rendergraph.Name
	desc      gfx.TextureDesc
	constants []uint32
}

type effectPass struct {
	reads []rendergraph.TextureReadHandle
	out   rendergraph.TextureWriteHandle
}

func (l *Library) addEffect(g *rendergraph.Graph, e effect) rendergraph.Name {
	rendergraph.AddPass(g, e.name, rendergraph.PassCompute,
		func(d *effectPass, b *rendergraph.Builder) {
			for _, name := range e.reads {
				d.reads = append(d.reads, b.ReadTexture(name, rendergraph.ReadNonPixelShader))
			}
			b.DeclareTexture(e.out, e.desc)
			d.out = b.WriteTexture(e.out)
		},
		func(d *effectPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, e.pipe) {
				return
			}
			views := make([]gfx.Descriptor, 0, len(d.reads)+1)
			for _, h := range d.reads {
				views = append(views, ctx.SRV(h))
			}
			views = append(views, ctx.UAV(d.out))
			cmd.SetRootConstants(append([]uint32{ctx.Bind(views...)}, e.constants...)...)
			cmd.Dispatch(groups(e.desc.Width, 8), groups(e.desc.Height, 8), 1)
		}, 0)
	return e.out
}

type copyPass struct {
	src rendergraph.TextureCopySrcHandle
	dst rendergraph.TextureCopyDstHandle
}

// AddPostprocess adds the postprocess chain over the lit HDR target and
// returns the name of its last output. history is the persistent TAA
// history texture; without it TAA is skipped.
func (l *Library) AddPostprocess(g *rendergraph.Graph, history gfx.Texture) rendergraph.Name {
	fd := frameData(g)
	s := fd.Settings
	hdr := screen(fd, HDRFormat)

	rendergraph.AddPass(g, "Copy HDR", rendergraph.PassCopy,
		func(d *copyPass, b *rendergraph.Builder) {
			d.src = b.ReadCopySrcTexture(HDR)
			b.DeclareTexture(PostprocessMain, hdr)
			d.dst = b.WriteCopyDstTexture(PostprocessMain)
		},
		func(d *copyPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			cmd.CopyTexture(ctx.Texture(d.dst), ctx.Texture(d.src))
		}, 0)
	last := PostprocessMain

	switch s.Reflections {
	case config.ReflectionsSSR:
		last = l.addEffect(g, effect{name: "SSR", pipe: PipelineSSR,
			reads: []rendergraph.Name{last, GBufferNormal, DepthStencil}, out: ReflectionOutput, desc: hdr})
	case config.ReflectionsRTR:
		last = l.addEffect(g, effect{name: "Ray Traced Reflections", pipe: PipelineRTR,
			reads: []rendergraph.Name{last, GBufferNormal, DepthStencil}, out: ReflectionOutput, desc: hdr})
	}
	if s.Fog {
		last = l.addEffect(g, effect{name: "Fog", pipe: PipelineFog,
			reads: []rendergraph.Name{last, DepthStencil}, out: FogOutput, desc: hdr})
	}
	if s.Clouds {
		last = l.addEffect(g, effect{name: "Clouds", pipe: PipelineClouds,
			reads: []rendergraph.Name{last, DepthStencil}, out: CloudsOutput, desc: hdr,
			constants: []uint32{uint32(fd.FrameIndex)}})
	}

	switch s.Upscaler {
	case config.UpscalerTAA:
		if history == nil {
			slogger().Warn("passes: TAA enabled without a history texture")
			break
		}
		g.ImportTexture(TAAHistory, history, gfx.StateNonPixelShaderResource, gfx.StateNonPixelShaderResource)
		last = l.addEffect(g, effect{name: "TAA", pipe: PipelineTAA,
			reads: []rendergraph.Name{last, TAAHistory, Velocity}, out: TAAOutput, desc: hdr})
		g.ExportTexture(TAAOutput, history, gfx.StateNonPixelShaderResource)
	case config.UpscalerFSR:
		last = l.addEffect(g, effect{name: "FSR", pipe: PipelineFSR,
			reads: []rendergraph.Name{last, DepthStencil, Velocity}, out: UpscalerOutput, desc: hdr})
	}

	if s.Bloom {
		half := hdr
		half.Width, half.Height = max(hdr.Width/2, 1), max(hdr.Height/2, 1)
		l.addEffect(g, effect{name: "Bloom Extract", pipe: PipelineBloomExtract,
			reads: []rendergraph.Name{last}, out: BloomExtract, desc: half})
		last = l.addEffect(g, effect{name: "Bloom Combine", pipe: PipelineBloomCombine,
			reads: []rendergraph.Name{last, BloomExtract}, out: BloomOutput, desc: hdr})
	}
	if s.DoF {
		l.addEffect(g, effect{name: "DoF Blur", pipe: PipelineDoFBlur,
			reads: []rendergraph.Name{last}, out: DoFBlurred, desc: hdr})
		if s.Bokeh {
			l.addBokeh(g, last)
		}
		last = l.addEffect(g, effect{name: "DoF Composite", pipe: PipelineDoFComposite,
			reads: []rendergraph.Name{last, DoFBlurred, DepthStencil}, out: DoFOutput, desc: hdr})
	}
	if s.MotionBlur {
		last = l.addEffect(g, effect{name: "Motion Blur", pipe: PipelineMotionBlur,
			reads: []rendergraph.Name{last, Velocity}, out: MotionBlurOutput, desc: hdr})
	}
	if s.Exposure == config.ExposureAuto {
		l.addExposure(g, last)
	}
	return last
}

type bokehGeneratePass struct {
	color, depth rendergraph.TextureReadHandle
	bokeh        rendergraph.BufferWriteHandle
}

type bokehDrawPass struct {
	bokeh  rendergraph.BufferReadHandle
	target rendergraph.RenderTargetHandle
}

// BokehStride is the size of one bokeh sprite.
const BokehStride = 32

func (l *Library) addBokeh(g *rendergraph.Graph, input rendergraph.Name) {
	fd := frameData(g)
	count := max(fd.Width*fd.Height/64, 1)
	rendergraph.AddPass(g, "Bokeh Generate", rendergraph.PassCompute,
		func(d *bokehGeneratePass, b *rendergraph.Builder) {
			d.color = b.ReadTexture(input, rendergraph.ReadNonPixelShader)
			d.depth = b.ReadTexture(DepthStencil, rendergraph.ReadNonPixelShader)
			b.DeclareBuffer(BokehBuffer, gfx.BufferDesc{Size: uint64(count) * BokehStride, Stride: BokehStride,
				Usage: gputypes.BufferUsageStorage})
			d.bokeh = b.WriteBuffer(BokehBuffer)
		},
		func(d *bokehGeneratePass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineBokehGenerate) {
				return
			}
			cmd.SetRootConstants(ctx.Bind(ctx.SRV(d.color), ctx.SRV(d.depth), ctx.BufferUAV(d.bokeh)), count)
			cmd.Dispatch(groups(fd.Width, 8), groups(fd.Height, 8), 1)
		}, 0)
	rendergraph.AddPass(g, "Bokeh Draw", rendergraph.PassGraphics,
		func(d *bokehDrawPass, b *rendergraph.Builder) {
			d.bokeh = b.ReadBuffer(BokehBuffer, rendergraph.ReadNonPixelShader)
			d.target = b.WriteRenderTarget(DoFBlurred, rendergraph.PreservePreserve)
		},
		func(d *bokehDrawPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineBokehDraw) {
				return
			}
			cmd.SetRootConstants(ctx.Bind(ctx.BufferSRV(d.bokeh)))
			cmd.Draw(6, count, 0, 0)
		}, 0)
}

type histogramPass struct {
	color     rendergraph.TextureReadHandle
	histogram rendergraph.BufferWriteHandle
}

type exposurePass struct {
	histogram rendergraph.BufferReadHandle
	exposure  rendergraph.TextureWriteHandle
}

func (l *Library) addExposure(g *rendergraph.Graph, input rendergraph.Name) {
	fd := frameData(g)
	rendergraph.AddPass(g, "Exposure Histogram", rendergraph.PassCompute,
		func(d *histogramPass, b *rendergraph.Builder) {
			d.color = b.ReadTexture(input, rendergraph.ReadNonPixelShader)
			b.DeclareBuffer(ExposureHistogram, gfx.BufferDesc{Size: HistogramBins * 4, Stride: 4,
				Usage: gputypes.BufferUsageStorage})
			d.histogram = b.WriteBuffer(ExposureHistogram)
		},
		func(d *histogramPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineExposureHistogram) {
				return
			}
			cmd.SetRootConstants(ctx.Bind(ctx.SRV(d.color), ctx.BufferUAV(d.histogram)))
			cmd.Dispatch(groups(fd.Width, 16), groups(fd.Height, 16), 1)
		}, 0)
	rendergraph.AddPass(g, "Exposure", rendergraph.PassCompute,
		func(d *exposurePass, b *rendergraph.Builder) {
			d.histogram = b.ReadBuffer(ExposureHistogram, rendergraph.ReadNonPixelShader)
			b.DeclareTexture(Exposure, gfx.TextureDesc{Width: 1, Height: 1, Format: ExposureFormat})
			d.exposure = b.WriteTexture(Exposure)
		},
		func(d *exposurePass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineExposure) {
				return
			}
			cmd.SetRootConstants(ctx.Bind(ctx.BufferSRV(d.histogram), ctx.UAV(d.exposure)), f32(fd.DeltaTime))
			cmd.Dispatch(1, 1, 1)
		}, 0)
}
