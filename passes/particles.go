// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
)

// ParticleStride is the size of one GPU particle: position and life,
// velocity and age.
const ParticleStride = 32

type emitterRange struct {
	entity scene.Entity
	offset uint32
	count  uint32
	spawn  uint32
}

// ensureParticles grows the persistent particle buffer to hold capacity
// particles. A replaced buffer is retired, not destroyed.
func (l *Library) ensureParticles(dev gfx.Device, capacity uint32) error {
	size := uint64(capacity) * ParticleStride
	if l.particles != nil && l.particles.Desc().Size >= size {
		return nil
	}
	buf, err := dev.CreateBuffer(&gfx.BufferDesc{
		Label:        "Particles",
		Size:         size,
		Stride:       ParticleStride,
		Usage:        gputypes.BufferUsageStorage,
		InitialState: gfx.StateUnorderedAccess,
	})
	if err != nil {
		return fmt.Errorf("passes: particle buffer: %w", err)
	}
	if l.particles != nil {
		l.dispose(l.particles)
	}
	l.particles = buf
	return nil
}

// emitterRanges assigns every emitter of reg a stable range of the
// particle buffer and advances its spawn accumulator by dt.
func emitterRanges(reg *scene.Registry, dt float32) ([]emitterRange, uint32) {
	var (
		ranges []emitterRange
		offset uint32
	)
	for e, em := range scene.View[scene.Emitter](reg) {
		em.Accumulator += em.SpawnRate * dt
		spawn := uint32(max(em.Accumulator, 0))
		em.Accumulator -= float32(spawn)
		ranges = append(ranges, emitterRange{entity: e, offset: offset, count: em.MaxParticles, spawn: spawn})
		offset += em.MaxParticles
	}
	return ranges, offset
}

type particleSimPass struct {
	particles rendergraph.BufferWriteHandle
}

type particleDrawPass struct {
	particles rendergraph.BufferReadHandle
	hdr       rendergraph.RenderTargetHandle
	depth     rendergraph.DepthStencilHandle
}

// AddParticles simulates every emitter and draws the visible ones into
// the HDR target. Particles live in a persistent buffer imported into the
// graph.
func (l *Library) AddParticles(g *rendergraph.Graph) error {
	fd, sd := frameData(g), sceneData(g)
	ranges, capacity := emitterRanges(sd.Registry, fd.DeltaTime)
	if capacity == 0 {
		return nil
	}
	if err := l.ensureParticles(g.Device(), capacity); err != nil {
		return err
	}
	g.ImportBuffer(ParticleBuffer, l.particles, gfx.StateUnorderedAccess, gfx.StateUnorderedAccess)

	rendergraph.AddPass(g, "Particle Simulate", rendergraph.PassCompute,
		func(d *particleSimPass, b *rendergraph.Builder) {
			d.particles = b.WriteBuffer(ParticleBuffer)
		},
		func(d *particleSimPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineParticleSimulate) {
				return
			}
			base := ctx.Bind(ctx.BufferUAV(d.particles))
			for _, r := range ranges {
				em := scene.Get[scene.Emitter](sd.Registry, r.entity)
				cmd.SetRootConstants(base, r.offset, r.count, r.spawn, f32(fd.DeltaTime),
					f32(em.Position[0]), f32(em.Position[1]), f32(em.Position[2]),
					f32(em.Velocity[0]), f32(em.Velocity[1]), f32(em.Velocity[2]))
				cmd.Dispatch(groups(r.count, 256), 1, 1)
			}
		}, 0)

	if len(sd.Visibility.Emitters) == 0 {
		return nil
	}
	rendergraph.AddPass(g, "Particle Draw", rendergraph.PassGraphics,
		func(d *particleDrawPass, b *rendergraph.Builder) {
			d.particles = b.ReadBuffer(ParticleBuffer, rendergraph.ReadNonPixelShader)
			d.hdr = b.WriteRenderTarget(HDR, rendergraph.PreservePreserve)
			d.depth = b.ReadDepthStencil(DepthStencil, rendergraph.PreservePreserve)
		},
		func(d *particleDrawPass, ctx *rendergraph.Context, cmd gfx.CommandList) {
			if !l.bind(ctx, cmd, PipelineParticleDraw) {
				return
			}
			base := ctx.Bind(ctx.BufferSRV(d.particles))
			for _, r := range ranges {
				if !slices.Contains(sd.Visibility.Emitters, r.entity) {
					continue
				}
				em := scene.Get[scene.Emitter](sd.Registry, r.entity)
				cmd.SetRootConstants(base, r.offset, i32(em.Texture))
				cmd.Draw(6, r.count, 0, 0)
			}
		}, 0)
	return nil
}
