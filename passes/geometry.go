// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
)

type geometry struct {
	vertices rendergraph.BufferReadHandle
	indices  rendergraph.BufferReadHandle
}

func (d *geometry) read(b *rendergraph.Builder) {
	if b.IsBufferDeclared(SceneVertices) && b.IsBufferDeclared(SceneIndices) {
		d.vertices = b.ReadBuffer(SceneVertices, rendergraph.ReadVertex)
		d.indices = b.ReadBuffer(SceneIndices, rendergraph.ReadIndex)
	}
}

// set binds the geometry buffers and reports whether there are any.
func (d *geometry) set(ctx *rendergraph.Context, cmd gfx.CommandList) bool {
	if !d.vertices.Valid() {
		return false
	}
	cmd.SetVertexBuffer(0, ctx.Buffer(d.vertices), 0)
	cmd.SetIndexBuffer(ctx.Buffer(d.indices), gputypes.IndexFormatUint32, 0)
	return true
}

func appendMaterial(dst []uint32, m *scene.Material) []uint32 {
	return append(dst,
		i32(m.AlbedoTexture), i32(m.MetallicRoughnessTexture), i32(m.NormalTexture), i32(m.EmissiveTexture),
		f32(m.AlbedoFactor[0]), f32(m.AlbedoFactor[1]), f32(m.AlbedoFactor[2]),
		f32(m.MetallicFactor), f32(m.RoughFactor), f32(m.EmissiveFactor), f32(m.AlphaCutoff),
	)
}

// drawSubmesh draws e with its world matrix and material appended to
// constants.
func drawSubmesh(cmd gfx.CommandList, reg *scene.Registry, e scene.Entity, constants []uint32) {
	sm := scene.Get[scene.Submesh](reg, e)
	tr := scene.Get[scene.Transform](reg, e)
	if sm == nil || tr == nil || sm.IndexCount == 0 {
		return
	}
	c := appendMatrix(constants, tr.World)
	if m := scene.Get[scene.Material](reg, sm.Material); m != nil {
		c = appendMaterial(c, m)
	}
	cmd.SetRootConstants(c...)
	cmd.DrawIndexed(sm.IndexCount, 1, sm.IndexOffset, int32(sm.VertexOffset), 0)
}

func masked(reg *scene.Registry, e scene.Entity) bool {
	sm := scene.Get[scene.Submesh](reg, e)
	if sm == nil {
		return false
	}
	m := scene.Get[scene.Material](reg, sm.Material)
	return m != nil && m.AlphaCutoff > 0
}

type gbufferPass struct {
	geometry
	normal, albedo, emissive, velocity rendergraph.RenderTargetHandle
	depth                              rendergraph.DepthStencilHandle
}

// AddGBuffer declares the GBuffer and depth buffer and draws the visible
// opaque submeshes into them.
func (l *Library) AddGBuffer(g *rendergraph.Graph) {
	fd, sd := frameData(g), sceneData(g)
	rendergraph.AddPass(g, "GBuffer", rendergraph.PassGraphics,
		func(d *gbufferPass, b *rendergraph.Builder) {
			target := func(name rendergraph.Name, format gputypes.TextureFormat) rendergraph.RenderTargetHandle {
				desc := screen(fd, format)
				desc.Clear = &gfx.ClearValue{}
				b.DeclareTexture(name, desc)
				return b.WriteRenderTarget(name, rendergraph.ClearPreserve)
			}
			d.normal = target(GBufferNormal, NormalFormat)
			d.albedo = target(GBufferAlbedo, AlbedoFormat)
			d.emissive = target(GBufferEmissive, EmissiveFormat)
			d.velocity = target(Velocity, VelocityFormat)

			depth := screen(fd, DepthFormat)
			depth.Clear = &gfx.ClearValue{Depth: 1}
			b.DeclareTexture(DepthStencil, depth)
			d.depth = b.WriteDepthStencil(DepthStencil, rendergraph.ClearPreserve)
			d.read(b)
		},
		func(d *gbufferPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if len(sd.Visibility.Camera) == 0 || !d.set(ctx, cmd) {
				return
			}
			opaque, alphaTested := partition(sd.Registry, sd.Visibility.Camera)
			if len(opaque) > 0 && l.bind(ctx, cmd, PipelineGBuffer) {
				for _, e := range opaque {
					drawSubmesh(cmd, sd.Registry, e, nil)
				}
			}
			if len(alphaTested) > 0 && l.bind(ctx, cmd, PipelineGBufferMasked) {
				for _, e := range alphaTested {
					drawSubmesh(cmd, sd.Registry, e, nil)
				}
			}
		}, 0)
}

func partition(reg *scene.Registry, entities []scene.Entity) (opaque, alphaTested []scene.Entity) {
	for _, e := range entities {
		if masked(reg, e) {
			alphaTested = append(alphaTested, e)
		} else {
			opaque = append(opaque, e)
		}
	}
	return opaque, alphaTested
}

type shadowMapPass struct {
	geometry
	depth rendergraph.DepthStencilHandle
}

// AddShadows adds one shadow pass per visible shadow casting light: a
// ray traced mask for lights that ask for it, a depth map otherwise.
func (l *Library) AddShadows(g *rendergraph.Graph) {
	sd := sceneData(g)
	for i, light := range sd.Visibility.Lights {
		lc := scene.Get[scene.Light](sd.Registry, light)
		if lc == nil || !lc.CastsShadows {
			continue
		}
		if lc.RayTracedShadows {
			l.addRayTracedShadows(g, light, uint32(i))
			continue
		}
		l.addShadowMap(g, light, uint32(i))
	}
}

func (l *Library) addShadowMap(g *rendergraph.Graph, light scene.Entity, index uint32) {
	sd := sceneData(g)
	name := ShadowMap(light)
	rendergraph.AddPass(g, fmt.Sprintf("Shadow Map %d", light), rendergraph.PassGraphics,
		func(d *shadowMapPass, b *rendergraph.Builder) {
			b.DeclareTexture(name, gfx.TextureDesc{
				Width: ShadowMapSize, Height: ShadowMapSize, Format: ShadowMapFormat,
				Clear: &gfx.ClearValue{Depth: 1},
			})
			d.depth = b.WriteDepthStencil(name, rendergraph.ClearPreserve)
			b.SetViewport(ShadowMapSize, ShadowMapSize)
			d.read(b)
		},
		func(d *shadowMapPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			casters := sd.Visibility.Casters[light]
			if len(casters) == 0 || !d.set(ctx, cmd) || !l.bind(ctx, cmd, PipelineShadowMap) {
				return
			}
			for _, e := range casters {
				drawSubmesh(cmd, sd.Registry, e, []uint32{index})
			}
		}, 0)
}

type rtShadowPass struct {
	depth rendergraph.TextureReadHandle
	mask  rendergraph.TextureWriteHandle
}

func (l *Library) addRayTracedShadows(g *rendergraph.Graph, light scene.Entity, index uint32) {
	fd := frameData(g)
	name := ShadowMask(light)
	rendergraph.AddPass(g, fmt.Sprintf("Ray Traced Shadows %d", light), rendergraph.PassCompute,
		func(d *rtShadowPass, b *rendergraph.Builder) {
			b.DeclareTexture(name, screen(fd, ShadowMaskFormat))
			d.depth = b.ReadTexture(DepthStencil, rendergraph.ReadNonPixelShader)
			d.mask = b.WriteTexture(name)
		},
		func(d *rtShadowPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineRayTracedShadows) {
				return
			}
			base := ctx.Bind(ctx.SRV(d.depth), ctx.UAV(d.mask))
			cmd.SetRootConstants(base, index)
			cmd.Dispatch(groups(fd.Width, 8), groups(fd.Height, 8), 1)
		}, 0)
}

type forwardPass struct {
	geometry
	hdr   rendergraph.RenderTargetHandle
	depth rendergraph.DepthStencilHandle
}

// AddForward draws the visible transparent submeshes back to front over
// the lit scene.
func (l *Library) AddForward(g *rendergraph.Graph) {
	fd, sd := frameData(g), sceneData(g)
	if len(sd.Visibility.Transparent) == 0 {
		return
	}
	rendergraph.AddPass(g, "Forward Transparent", rendergraph.PassGraphics,
		func(d *forwardPass, b *rendergraph.Builder) {
			d.hdr = b.WriteRenderTarget(HDR, rendergraph.PreservePreserve)
			d.depth = b.ReadDepthStencil(DepthStencil, rendergraph.PreservePreserve)
			d.read(b)
		},
		func(d *forwardPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !d.set(ctx, cmd) || !l.bind(ctx, cmd, PipelineForward) {
				return
			}
			for _, e := range backToFront(sd.Registry, sd.Visibility.Transparent, fd.Camera) {
				drawSubmesh(cmd, sd.Registry, e, nil)
			}
		}, 0)
}

// backToFront returns entities sorted by decreasing distance from eye.
func backToFront(reg *scene.Registry, entities []scene.Entity, eye scene.Vec3) []scene.Entity {
	dist := func(e scene.Entity) float32 {
		tr := scene.Get[scene.Transform](reg, e)
		if tr == nil {
			return 0
		}
		p := scene.Vec3{tr.World[12], tr.World[13], tr.World[14]}
		d := p.Sub(eye)
		return d.Dot(d)
	}
	sorted := slices.Clone(entities)
	slices.SortStableFunc(sorted, func(a, b scene.Entity) int { return cmp.Compare(dist(b), dist(a)) })
	return sorted
}

type skyPass struct {
	hdr   rendergraph.RenderTargetHandle
	depth rendergraph.DepthStencilHandle
}

// AddSky fills the background of the HDR target with the first active
// skybox.
func (l *Library) AddSky(g *rendergraph.Graph) {
	sd := sceneData(g)
	var sky *scene.Skybox
	for _, s := range scene.View[scene.Skybox](sd.Registry) {
		if s.Active {
			sky = s
			break
		}
	}
	if sky == nil {
		return
	}
	cube := sky.CubeTexture
	rendergraph.AddPass(g, "Sky", rendergraph.PassGraphics,
		func(d *skyPass, b *rendergraph.Builder) {
			d.hdr = b.WriteRenderTarget(HDR, rendergraph.PreservePreserve)
			d.depth = b.ReadDepthStencil(DepthStencil, rendergraph.PreservePreserve)
		},
		func(d *skyPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineSky) {
				return
			}
			cmd.SetRootConstants(i32(cube))
			cmd.Draw(3, 1, 0, 0)
		}, 0)
}

type decalPass struct {
	depth rendergraph.TextureReadHandle
	hdr   rendergraph.RenderTargetHandle
}

// AddDecals projects the visible decals onto the HDR target.
func (l *Library) AddDecals(g *rendergraph.Graph) {
	sd := sceneData(g)
	if len(sd.Visibility.Decals) == 0 {
		return
	}
	rendergraph.AddPass(g, "Decals", rendergraph.PassGraphics,
		func(d *decalPass, b *rendergraph.Builder) {
			d.depth = b.ReadTexture(DepthStencil, rendergraph.ReadPixelShader)
			d.hdr = b.WriteRenderTarget(HDR, rendergraph.PreservePreserve)
		},
		func(d *decalPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineDecals) {
				return
			}
			base := ctx.Bind(ctx.SRV(d.depth))
			for _, e := range sd.Visibility.Decals {
				dc := scene.Get[scene.Decal](sd.Registry, e)
				if dc == nil {
					continue
				}
				var modify uint32
				if dc.ModifyNormals {
					modify = 1
				}
				c := appendMatrix([]uint32{base}, dc.Transform)
				cmd.SetRootConstants(append(c, i32(dc.Albedo), i32(dc.Normal), modify)...)
				cmd.Draw(36, 1, 0, 0)
			}
		}, 0)
}
