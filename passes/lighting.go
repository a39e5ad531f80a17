// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"fmt"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
)

// shadowOf returns the shadow texture produced for light, if any.
func shadowOf(b *rendergraph.Builder, light scene.Entity) (rendergraph.Name, bool) {
	if n := ShadowMap(light); b.IsTextureDeclared(n) {
		return n, true
	}
	if n := ShadowMask(light); b.IsTextureDeclared(n) {
		return n, true
	}
	return rendergraph.Name{}, false
}

// SSAO sampling parameters.
const (
	AOSamples = 16
	AORadius  = 0.5
)

type aoPass struct {
	normal, depth rendergraph.TextureReadHandle
	ao            rendergraph.TextureWriteHandle
}

// AddAmbientOcclusion computes screen-space ambient occlusion from the
// GBuffer depth and normals when the setting is on. Deferred lighting
// reads the result.
func (l *Library) AddAmbientOcclusion(g *rendergraph.Graph) {
	fd := frameData(g)
	if !fd.Settings.AmbientOcclusion {
		return
	}
	rendergraph.AddPass(g, "SSAO", rendergraph.PassCompute,
		func(d *aoPass, b *rendergraph.Builder) {
			d.normal = b.ReadTexture(GBufferNormal, rendergraph.ReadNonPixelShader)
			d.depth = b.ReadTexture(DepthStencil, rendergraph.ReadNonPixelShader)
			b.DeclareTexture(AmbientOcclusion, screen(fd, AOFormat))
			d.ao = b.WriteTexture(AmbientOcclusion)
		},
		func(d *aoPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineSSAO) {
				return
			}
			base := ctx.Bind(ctx.SRV(d.normal), ctx.SRV(d.depth), ctx.UAV(d.ao))
			cmd.SetRootConstants(base, AOSamples, f32(AORadius), uint32(fd.FrameIndex))
			cmd.Dispatch(groups(fd.Width, 8), groups(fd.Height, 8), 1)
		}, 0)
}

type lightingPass struct {
	normal, albedo, emissive, depth rendergraph.TextureReadHandle
	ao                              rendergraph.TextureReadHandle

	shadows []rendergraph.TextureReadHandle
	lights  []uint32

	hdr rendergraph.TextureWriteHandle
}

// AddDeferredLighting resolves the GBuffer into the HDR target with every
// visible light and the shadows rendered for them. The descriptor table
// holds the GBuffer, the HDR target, the AO texture when one was declared
// and then the shadows.
func (l *Library) AddDeferredLighting(g *rendergraph.Graph) {
	fd, sd := frameData(g), sceneData(g)
	rendergraph.AddPass(g, "Deferred Lighting", rendergraph.PassCompute,
		func(d *lightingPass, b *rendergraph.Builder) {
			d.normal = b.ReadTexture(GBufferNormal, rendergraph.ReadNonPixelShader)
			d.albedo = b.ReadTexture(GBufferAlbedo, rendergraph.ReadNonPixelShader)
			d.emissive = b.ReadTexture(GBufferEmissive, rendergraph.ReadNonPixelShader)
			d.depth = b.ReadTexture(DepthStencil, rendergraph.ReadNonPixelShader)
			if b.IsTextureDeclared(AmbientOcclusion) {
				d.ao = b.ReadTexture(AmbientOcclusion, rendergraph.ReadNonPixelShader)
			}
			for i, light := range sd.Visibility.Lights {
				if name, ok := shadowOf(b, light); ok {
					d.shadows = append(d.shadows, b.ReadTexture(name, rendergraph.ReadNonPixelShader))
					d.lights = append(d.lights, uint32(i))
				}
			}
			b.DeclareTexture(HDR, screen(fd, HDRFormat))
			d.hdr = b.WriteTexture(HDR)
		},
		func(d *lightingPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			id := PipelineDeferredLighting
			if d.ao.Valid() {
				id = PipelineDeferredLightingAO
			}
			if !l.bind(ctx, cmd, id) {
				return
			}
			views := []gfx.Descriptor{ctx.SRV(d.normal), ctx.SRV(d.albedo), ctx.SRV(d.emissive), ctx.SRV(d.depth), ctx.UAV(d.hdr)}
			if d.ao.Valid() {
				views = append(views, ctx.SRV(d.ao))
			}
			for _, h := range d.shadows {
				views = append(views, ctx.SRV(h))
			}
			base := ctx.Bind(views...)
			constants := append([]uint32{base, uint32(len(sd.Visibility.Lights)), uint32(len(d.shadows))}, d.lights...)
			cmd.SetRootConstants(constants...)
			cmd.Dispatch(groups(fd.Width, 16), groups(fd.Height, 16), 1)
		}, 0)
}

type volumetricPass struct {
	depth  rendergraph.TextureReadHandle
	shadow rendergraph.TextureReadHandle
	hdr    rendergraph.RenderTargetHandle
}

// AddVolumetrics blends in-scattering for every visible volumetric light
// into the HDR target.
func (l *Library) AddVolumetrics(g *rendergraph.Graph) {
	sd := sceneData(g)
	for i, light := range sd.Visibility.Lights {
		lc := scene.Get[scene.Light](sd.Registry, light)
		if lc == nil || !lc.Volumetric {
			continue
		}
		index, steps := uint32(i), max(lc.VolumetricSteps, 1)
		rendergraph.AddPass(g, fmt.Sprintf("Volumetric Lighting %d", light), rendergraph.PassGraphics,
			func(d *volumetricPass, b *rendergraph.Builder) {
				d.depth = b.ReadTexture(DepthStencil, rendergraph.ReadPixelShader)
				if name, ok := shadowOf(b, light); ok {
					d.shadow = b.ReadTexture(name, rendergraph.ReadPixelShader)
				}
				d.hdr = b.WriteRenderTarget(HDR, rendergraph.PreservePreserve)
			},
			func(d *volumetricPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
				if !l.bind(ctx, cmd, PipelineVolumetric) {
					return
				}
				views := []gfx.Descriptor{ctx.SRV(d.depth)}
				shadowed := uint32(0)
				if d.shadow.Valid() {
					views = append(views, ctx.SRV(d.shadow))
					shadowed = 1
				}
				cmd.SetRootConstants(ctx.Bind(views...), index, steps, shadowed)
				cmd.Draw(3, 1, 0, 0)
			}, 0)
	}
}
