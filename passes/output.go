// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/rendergraph"
)

func tonemapOperator(op config.TonemapOperator) uint32 {
	switch op {
	case config.TonemapHable:
		return 1
	case config.TonemapLinear:
		return 2
	}
	return 0
}

type tonemapPass struct {
	color    rendergraph.TextureReadHandle
	exposure rendergraph.TextureReadHandle
	target   rendergraph.RenderTargetHandle
}

type fxaaPass struct {
	ldr    rendergraph.TextureReadHandle
	target rendergraph.RenderTargetHandle
}

type uiPass struct {
	target rendergraph.RenderTargetHandle
}

// AddOutput tone maps input into the backbuffer, through FXAA when it is
// enabled, and records ui on top. The backbuffer must be imported as
// Backbuffer.
func (l *Library) AddOutput(g *rendergraph.Graph, input rendergraph.Name, ui UIFunc) {
	fd := frameData(g)
	s := fd.Settings

	constants := func(d *tonemapPass, ctx *rendergraph.Context) []uint32 {
		views := []gfx.Descriptor{ctx.SRV(d.color)}
		auto := uint32(0)
		if d.exposure.Valid() {
			views = append(views, ctx.SRV(d.exposure))
			auto = 1
		}
		return []uint32{ctx.Bind(views...), tonemapOperator(s.Tonemap), auto, f32(s.ExposureEV)}
	}
	setup := func(d *tonemapPass, b *rendergraph.Builder) {
		d.color = b.ReadTexture(input, rendergraph.ReadPixelShader)
		if b.IsTextureDeclared(Exposure) {
			d.exposure = b.ReadTexture(Exposure, rendergraph.ReadPixelShader)
		}
	}

	if s.FXAA {
		rendergraph.AddPass(g, "Tonemap", rendergraph.PassGraphics,
			func(d *tonemapPass, b *rendergraph.Builder) {
				setup(d, b)
				b.DeclareTexture(LDR, screen(fd, g.Device().Swapchain().Format()))
				d.target = b.WriteRenderTarget(LDR, rendergraph.DiscardPreserve)
			},
			func(d *tonemapPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
				if !l.bind(ctx, cmd, PipelineTonemap) {
					return
				}
				cmd.SetRootConstants(constants(d, ctx)...)
				cmd.Draw(3, 1, 0, 0)
			}, 0)
		rendergraph.AddPass(g, "FXAA", rendergraph.PassGraphics,
			func(d *fxaaPass, b *rendergraph.Builder) {
				d.ldr = b.ReadTexture(LDR, rendergraph.ReadPixelShader)
				d.target = b.WriteRenderTarget(Backbuffer, rendergraph.DiscardPreserve)
			},
			func(d *fxaaPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
				if !l.bind(ctx, cmd, PipelineFXAA) {
					return
				}
				cmd.SetRootConstants(ctx.Bind(ctx.SRV(d.ldr)))
				cmd.Draw(3, 1, 0, 0)
			}, 0)
	} else {
		rendergraph.AddPass(g, "Tonemap", rendergraph.PassGraphics,
			func(d *tonemapPass, b *rendergraph.Builder) {
				setup(d, b)
				d.target = b.WriteRenderTarget(Backbuffer, rendergraph.DiscardPreserve)
				b.SetViewport(fd.Width, fd.Height)
			},
			func(d *tonemapPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
				w, h := ctx.Viewport()
				cmd.BeginRenderPass(&gfx.RenderPassDesc{
					Label: "Tonemap", Width: w, Height: h,
					Colors: []gfx.ColorAttachment{{View: ctx.RTV(d.target), LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}},
				})
				cmd.SetViewport(gfx.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1})
				cmd.SetScissor(gfx.Rect{Width: w, Height: h})
				if l.bind(ctx, cmd, PipelineTonemap) {
					cmd.SetRootConstants(constants(d, ctx)...)
					cmd.Draw(3, 1, 0, 0)
				}
				cmd.EndRenderPass()
			}, rendergraph.ForceNoCull|rendergraph.SkipAutoRenderPass)
	}

	if ui == nil {
		return
	}
	rendergraph.AddPass(g, "UI", rendergraph.PassGraphics,
		func(d *uiPass, b *rendergraph.Builder) {
			d.target = b.WriteRenderTarget(Backbuffer, rendergraph.PreservePreserve)
		},
		func(_ *uiPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			ui(ctx, cmd)
		}, rendergraph.ForceNoCull)
}
