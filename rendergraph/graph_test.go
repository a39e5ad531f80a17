// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/backend/software"
	"github.com/gogpu/framegraph/descriptor"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/rendergraph"
)

type harness struct {
	dev  *software.Device
	pool *rendergraph.ResourcePool
	ring *descriptor.Ring
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dev, err := software.New(backend.Config{Width: 4, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	ring, err := descriptor.NewRing(dev.DescriptorHeap(), 0)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{dev: dev, pool: rendergraph.NewResourcePool(dev, rendergraph.PoolConfig{}), ring: ring}
	t.Cleanup(func() {
		h.pool.Destroy()
		dev.Destroy()
	})
	return h
}

func (h *harness) graph() *rendergraph.Graph {
	return rendergraph.New(rendergraph.Config{Device: h.dev, Pool: h.pool, Ring: h.ring})
}

// run compiles and executes g on command list 0.
func (h *harness) run(t *testing.T, g *rendergraph.Graph) *software.CommandList {
	t.Helper()
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	cmd := h.dev.CommandList(0)
	if err := cmd.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := g.Execute(cmd); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	if errs := h.dev.ValidationErrors(); len(errs) != 0 {
		t.Fatalf("device validation errors: %v", errs)
	}
	return cmd.(*software.CommandList)
}

func r8(w, h uint32) gfx.TextureDesc {
	return gfx.TextureDesc{Width: w, Height: h, Format: gputypes.TextureFormatR8Unorm}
}

func countKind(bs []gfx.Barrier, kind gfx.BarrierKind) int {
	n := 0
	for _, b := range bs {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

var (
	nameT  = rendergraph.NewName("T")
	nameU  = rendergraph.NewName("U")
	nameT1 = rendergraph.NewName("T1")
	nameT2 = rendergraph.NewName("T2")
	nameT3 = rendergraph.NewName("T3")
	nameX  = rendergraph.NewName("X")
	nameY  = rendergraph.NewName("Y")
)

// A clears T to 0.5, B doubles it into U.
func TestLinearChain(t *testing.T) {
	h := newHarness(t)
	double, err := h.dev.CreateComputePipeline(&gfx.ComputePipelineDesc{
		Label: "double",
		CS:    gfx.Shader{Stage: gfx.StageCompute, EntryPoint: "main", Code: []byte{1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.dev.RegisterKernel("double", func(inv *software.Invocation) {
		base := inv.Constants[0]
		src, dst := inv.Texture(base), inv.Texture(base+1)
		v := src.At(0, 0)
		dst.Set(0, 0, [4]float32{2 * v[0], 0, 0, 0})
	})

	g := h.graph()
	g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		desc := r8(1, 1)
		desc.Clear = &gfx.ClearValue{Color: [4]float32{0.5, 0, 0, 0}}
		b.DeclareTexture(nameT, desc)
		b.WriteRenderTarget(nameT, rendergraph.ClearPreserve)
	}, nil, 0)

	type doubleData struct {
		src rendergraph.TextureReadHandle
		dst rendergraph.TextureWriteHandle
	}
	rendergraph.AddPass(g, "B", rendergraph.PassCompute, func(d *doubleData, b *rendergraph.Builder) {
		d.src = b.ReadTexture(nameT, rendergraph.ReadNonPixelShader)
		b.DeclareTexture(nameU, r8(1, 1))
		d.dst = b.WriteTexture(nameU)
	}, func(d *doubleData, ctx *rendergraph.Context, cmd gfx.CommandList) {
		cmd.SetPipeline(double)
		cmd.SetRootConstants(ctx.Bind(ctx.SRV(d.src), ctx.UAV(d.dst)))
		cmd.Dispatch(1, 1, 1)
	}, 0)
	g.MarkFinal(nameU, gfx.StatePixelShaderResource)

	h.run(t, g)

	if got := g.Schedule(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Schedule() = %v, want [A B]", got)
	}
	u := g.Physical(nameU).(*software.Texture)
	if got := u.At(0, 0)[0]; got != 1.0 {
		t.Errorf("U[0] = %v, want 1.0", got)
	}

	// T is transitioned exactly once between its write in A and read in B.
	tex := g.Physical(nameT)
	n := 0
	for _, b := range g.Barriers("B") {
		if b.Resource == tex && b.Kind == gfx.BarrierTransition {
			n++
			if b.After != gfx.StateNonPixelShaderResource {
				t.Errorf("T transitioned to %s, want NonPixelShaderResource", b.After)
			}
		}
	}
	if n != 1 {
		t.Errorf("transitions of T before B = %d, want 1", n)
	}
	if h.dev.State(u) != gfx.StatePixelShaderResource {
		t.Errorf("final state of U = %s, want PixelShaderResource", h.dev.State(u))
	}
}

// T1 is still read by B while B writes T2, so the two cannot share memory.
func TestAliasingOverlappingLifetimes(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameT1, r8(256, 256))
		b.WriteRenderTarget(nameT1, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("B", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT1, rendergraph.ReadPixelShader)
		b.DeclareTexture(nameT2, r8(256, 256))
		b.WriteRenderTarget(nameT2, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("C", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT2, rendergraph.ReadPixelShader)
	}, nil, rendergraph.ForceNoCull)

	h.run(t, g)

	if g.Physical(nameT1) == g.Physical(nameT2) {
		t.Error("T1 and T2 share a backing while both are live in B")
	}
	for _, p := range g.Schedule() {
		if n := countKind(g.Barriers(p), gfx.BarrierAliasing); n != 0 {
			t.Errorf("pass %s has %d aliasing barriers, want 0", p, n)
		}
	}
}

func TestAliasingChain(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameT1, r8(256, 256))
		b.WriteRenderTarget(nameT1, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("B", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT1, rendergraph.ReadPixelShader)
		b.DeclareTexture(nameT2, r8(256, 256))
		b.WriteRenderTarget(nameT2, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("C", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT2, rendergraph.ReadPixelShader)
		b.DeclareTexture(nameT3, r8(256, 256))
		b.WriteRenderTarget(nameT3, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("D", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT3, rendergraph.ReadPixelShader)
	}, nil, rendergraph.ForceNoCull)

	h.run(t, g)

	if g.Backings() != 2 {
		t.Errorf("Backings() = %d, want 2", g.Backings())
	}
	if g.Physical(nameT1) != g.Physical(nameT3) {
		t.Fatal("T1 and T3 do not share a backing")
	}
	f1, l1, _ := g.Lifetime(nameT1)
	f3, l3, _ := g.Lifetime(nameT3)
	if !(l1 < f3 || l3 < f1) {
		t.Errorf("shared backing with overlapping lifetimes [%d,%d] and [%d,%d]", f1, l1, f3, l3)
	}

	total := 0
	for _, p := range g.Schedule() {
		total += countKind(g.Barriers(p), gfx.BarrierAliasing)
	}
	if total != 1 {
		t.Errorf("aliasing barriers = %d, want 1", total)
	}
	bs := g.Barriers("C")
	if countKind(bs, gfx.BarrierAliasing) != 1 {
		t.Fatalf("C barriers = %v, want the aliasing barrier", bs)
	}
	if bs[0].TenantBefore != "T1" || bs[0].TenantAfter != "T3" {
		t.Errorf("aliasing barrier tenants = %s -> %s, want T1 -> T3", bs[0].TenantBefore, bs[0].TenantAfter)
	}
}

func TestAliasedPreserveRejected(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameT1, r8(8, 8))
		b.WriteRenderTarget(nameT1, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("B", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT1, rendergraph.ReadPixelShader)
		b.DeclareTexture(nameT2, r8(8, 8))
		b.WriteRenderTarget(nameT2, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("C", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT2, rendergraph.ReadPixelShader)
		b.DeclareTexture(nameT3, r8(8, 8))
		b.WriteRenderTarget(nameT3, rendergraph.PreservePreserve)
	}, nil, 0)
	g.AddPass("D", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameT3, rendergraph.ReadPixelShader)
	}, nil, rendergraph.ForceNoCull)

	err := g.Compile()
	if !errors.Is(err, rendergraph.ErrAliasedPreserve) {
		t.Fatalf("Compile() error = %v, want ErrAliasedPreserve", err)
	}
	var ge *rendergraph.Error
	if !errors.As(err, &ge) || ge.Pass != "C" || ge.Resource != "T3" {
		t.Errorf("error = %#v, want pass C resource T3", ge)
	}
	if h.pool.Stats().Leased != 0 {
		t.Errorf("leases after failed Compile = %d, want 0", h.pool.Stats().Leased)
	}
}

func cullingGraph(h *harness, flagsB rendergraph.PassFlags) *rendergraph.Graph {
	g := h.graph()
	g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameX, r8(4, 4))
		b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("B", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameY, r8(4, 4))
		b.WriteRenderTarget(nameY, rendergraph.ClearPreserve)
	}, nil, flagsB)
	g.MarkFinal(nameX, gfx.StatePixelShaderResource)
	return g
}

func TestCulling(t *testing.T) {
	h := newHarness(t)
	g := cullingGraph(h, 0)
	h.run(t, g)

	if got := g.Schedule(); !slices.Equal(got, []string{"A"}) {
		t.Errorf("Schedule() = %v, want [A]", got)
	}
	if got := g.Culled(); !slices.Equal(got, []string{"B"}) {
		t.Errorf("Culled() = %v, want [B]", got)
	}
	if g.Physical(nameY) != nil {
		t.Error("culled output Y was materialized")
	}
}

func TestForceNoCull(t *testing.T) {
	h := newHarness(t)
	g := cullingGraph(h, rendergraph.ForceNoCull)
	h.run(t, g)

	if got := g.Schedule(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Schedule() = %v, want [A B]", got)
	}
	if len(g.Culled()) != 0 {
		t.Errorf("Culled() = %v, want none", g.Culled())
	}
}

func TestEmptyPass(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	ran := 0
	exec := func(*rendergraph.Context, gfx.CommandList) { ran++ }
	g.AddPass("empty", rendergraph.PassCompute, nil, exec, 0)
	g.AddPass("kept", rendergraph.PassCompute, nil, exec, rendergraph.ForceNoCull)
	h.run(t, g)

	if got := g.Schedule(); !slices.Equal(got, []string{"kept"}) {
		t.Errorf("Schedule() = %v, want [kept]", got)
	}
	if ran != 1 {
		t.Errorf("execute functions run = %d, want 1", ran)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *rendergraph.Builder)
		want  error
	}{
		{"read undeclared", func(b *rendergraph.Builder) {
			b.ReadTexture(nameX, rendergraph.ReadPixelShader)
		}, rendergraph.ErrUndeclared},
		{"write undeclared", func(b *rendergraph.Builder) {
			b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
		}, rendergraph.ErrUndeclared},
		{"declare twice", func(b *rendergraph.Builder) {
			b.DeclareTexture(nameX, r8(1, 1))
			b.DeclareTexture(nameX, r8(1, 1))
		}, rendergraph.ErrDuplicate},
		{"read before write", func(b *rendergraph.Builder) {
			b.DeclareTexture(nameX, r8(1, 1))
			b.ReadTexture(nameX, rendergraph.ReadPixelShader)
		}, rendergraph.ErrReadBeforeWrite},
		{"buffer as texture", func(b *rendergraph.Builder) {
			b.DeclareBuffer(nameX, gfx.BufferDesc{Size: 16})
			b.WriteTexture(nameX)
		}, rendergraph.ErrWrongKind},
		{"two writes", func(b *rendergraph.Builder) {
			b.DeclareTexture(nameX, r8(1, 1))
			b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
			b.WriteTexture(nameX)
		}, rendergraph.ErrIncompatibleAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			g := h.graph()
			g.AddPass("P", rendergraph.PassGraphics, tt.setup, nil, rendergraph.ForceNoCull)
			err := g.Compile()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Compile() error = %v, want %v", err, tt.want)
			}
			var ge *rendergraph.Error
			if !errors.As(err, &ge) || ge.Pass != "P" || ge.Resource != "X" {
				t.Errorf("diagnostic = %v, want pass P resource X", err)
			}
		})
	}
}

func TestReadWriteSameVersion(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	g.AddPass("A", rendergraph.PassCompute, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameX, r8(1, 1))
		b.WriteTexture(nameX)
	}, nil, 0)
	g.AddPass("B", rendergraph.PassCompute, func(b *rendergraph.Builder) {
		b.ReadTexture(nameX, rendergraph.ReadNonPixelShader)
		b.WriteTexture(nameX)
	}, nil, rendergraph.ForceNoCull)
	if err := g.Compile(); !errors.Is(err, rendergraph.ErrReadWrite) {
		t.Errorf("Compile() error = %v, want ErrReadWrite", err)
	}
}

func TestAttachmentInComputePass(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	g.AddPass("C", rendergraph.PassCompute, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameX, r8(1, 1))
		b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
	}, nil, rendergraph.ForceNoCull)
	if err := g.Compile(); !errors.Is(err, rendergraph.ErrUnsupportedAccess) {
		t.Errorf("Compile() error = %v, want ErrUnsupportedAccess", err)
	}
}

func TestUAVBarrier(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	buf := rendergraph.NewName("Counters")
	g.AddPass("Init", rendergraph.PassCompute, func(b *rendergraph.Builder) {
		b.DeclareBuffer(buf, gfx.BufferDesc{Size: 256})
		b.WriteBuffer(buf)
	}, nil, 0)
	g.AddPass("Accumulate", rendergraph.PassCompute, func(b *rendergraph.Builder) {
		b.WriteBuffer(buf)
	}, nil, 0)
	g.AddPass("Consume", rendergraph.PassCompute, func(b *rendergraph.Builder) {
		b.ReadBuffer(buf, rendergraph.ReadIndirectArgs)
	}, nil, rendergraph.ForceNoCull)
	h.run(t, g)

	bs := g.Barriers("Accumulate")
	if len(bs) != 1 || bs[0].Kind != gfx.BarrierUAV {
		t.Errorf("Accumulate barriers = %v, want one UAV barrier", bs)
	}
	bs = g.Barriers("Consume")
	if len(bs) != 1 || bs[0].After != gfx.StateIndirectArgument {
		t.Errorf("Consume barriers = %v, want UnorderedAccess -> IndirectArgument", bs)
	}
}

func TestAutoRenderPass(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	depth := rendergraph.NewName("Depth")
	g.AddPass("Geometry", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameX, r8(4, 4))
		b.DeclareTexture(depth, gfx.TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatDepth32Float,
			Clear: &gfx.ClearValue{Depth: 1}})
		b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
		b.WriteDepthStencil(depth, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("Custom", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.WriteRenderTarget(nameX, rendergraph.PreservePreserve)
		b.ReadDepthStencil(depth, rendergraph.PreservePreserve)
	}, nil, rendergraph.SkipAutoRenderPass)
	g.MarkFinal(nameX, gfx.StateCopySrc)
	cmd := h.run(t, g)

	begins := map[string]int{}
	for _, c := range cmd.Commands() {
		if c.Op == software.OpBeginRenderPass {
			begins[c.Label]++
		}
	}
	if begins["Geometry"] != 1 || begins["Custom"] != 0 {
		t.Errorf("render passes opened = %v, want Geometry once and Custom never", begins)
	}
	rp := g.RenderPass("Geometry")
	if rp == nil || rp.Depth == nil || rp.Depth.ClearDepth != 1 || len(rp.Colors) != 1 {
		t.Fatalf("RenderPass(Geometry) = %+v", rp)
	}
	if rp.Colors[0].LoadOp != gputypes.LoadOpClear {
		t.Errorf("color load op = %v, want Clear", rp.Colors[0].LoadOp)
	}
	if g.Physical(depth).(*software.Texture).At(3, 3)[0] != 1 {
		t.Error("depth was not cleared to 1")
	}
}

func TestImportExport(t *testing.T) {
	h := newHarness(t)
	backbuffer := h.dev.Swapchain().Backbuffer(0)
	history, err := h.dev.CreateTexture(&gfx.TextureDesc{
		Label: "History", Width: 4, Height: 4, Format: gputypes.TextureFormatR8Unorm,
		Usage: gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatal(err)
	}
	bb := rendergraph.NewName("Backbuffer")

	g := h.graph()
	g.ImportTexture(bb, backbuffer, gfx.StatePresent, gfx.StatePresent)
	g.AddPass("Color", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		desc := r8(4, 4)
		desc.Clear = &gfx.ClearValue{Color: [4]float32{0.25, 0, 0, 0}}
		b.DeclareTexture(nameX, desc)
		b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("Present", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.WriteRenderTarget(bb, rendergraph.ClearPreserve)
	}, nil, 0)
	g.ExportTexture(nameX, history, gfx.StateCommon)
	h.run(t, g)

	if got := history.(*software.Texture).At(2, 2)[0]; got != 0.25 {
		t.Errorf("exported texel = %v, want 0.25", got)
	}
	if st := h.dev.State(backbuffer); st != gfx.StatePresent {
		t.Errorf("backbuffer state = %s, want Present", st)
	}
	first, last, ok := g.Lifetime(bb)
	if !ok || first >= 0 || last <= len(g.Schedule()) {
		t.Errorf("imported lifetime = [%d, %d], want unbounded", first, last)
	}
}

func TestHandleOutsidePass(t *testing.T) {
	h := newHarness(t)
	g := h.graph()
	var leaked rendergraph.RenderTargetHandle
	g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameX, r8(1, 1))
		leaked = b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
	}, nil, 0)
	g.AddPass("B", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.ReadTexture(nameX, rendergraph.ReadPixelShader)
	}, func(ctx *rendergraph.Context, _ gfx.CommandList) {
		ctx.RTV(leaked)
	}, rendergraph.ForceNoCull)

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	cmd := h.dev.CommandList(0)
	_ = cmd.Begin()
	err := g.Execute(cmd)
	_ = cmd.End()

	var ge *rendergraph.Error
	if !errors.As(err, &ge) || !errors.Is(err, rendergraph.ErrHandle) || ge.Pass != "B" {
		t.Errorf("Execute() error = %v, want ErrHandle in pass B", err)
	}
}

// Independent producers give the same result in either insertion order.
func TestIndependentPassOrder(t *testing.T) {
	results := make([]float32, 2)
	for i, order := range [][]string{{"P", "Q"}, {"Q", "P"}} {
		h := newHarness(t)
		sum, _ := h.dev.CreateComputePipeline(&gfx.ComputePipelineDesc{Label: "sum", CS: gfx.Shader{Code: []byte{1}}})
		h.dev.RegisterKernel("sum", func(inv *software.Invocation) {
			base := inv.Constants[0]
			a, b := inv.Texture(base).At(0, 0)[0], inv.Texture(base+1).At(0, 0)[0]
			inv.Texture(base+2).Set(0, 0, [4]float32{a + b})
		})
		g := h.graph()
		for _, name := range order {
			switch name {
			case "P":
				addClear(g, "P", nameX, 0.25)
			case "Q":
				addClear(g, "Q", nameY, 0.5)
			}
		}
		type sumData struct {
			x, y rendergraph.TextureReadHandle
			u    rendergraph.TextureWriteHandle
		}
		rendergraph.AddPass(g, "Sum", rendergraph.PassCompute, func(d *sumData, b *rendergraph.Builder) {
			d.x = b.ReadTexture(nameX, rendergraph.ReadNonPixelShader)
			d.y = b.ReadTexture(nameY, rendergraph.ReadNonPixelShader)
			b.DeclareTexture(nameU, r8(1, 1))
			d.u = b.WriteTexture(nameU)
		}, func(d *sumData, ctx *rendergraph.Context, cmd gfx.CommandList) {
			cmd.SetPipeline(sum)
			cmd.SetRootConstants(ctx.Bind(ctx.SRV(d.x), ctx.SRV(d.y), ctx.UAV(d.u)))
			cmd.Dispatch(1, 1, 1)
		}, 0)
		g.MarkFinal(nameU, gfx.StateCommon)
		h.run(t, g)
		results[i] = g.Physical(nameU).(*software.Texture).At(0, 0)[0]
	}
	if results[0] != 0.75 || results[0] != results[1] {
		t.Errorf("results = %v, want 0.75 for both orders", results)
	}
}

func addClear(g *rendergraph.Graph, pass string, name rendergraph.Name, v float32) {
	g.AddPass(pass, rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		desc := r8(1, 1)
		desc.Clear = &gfx.ClearValue{Color: [4]float32{v}}
		b.DeclareTexture(name, desc)
		b.WriteRenderTarget(name, rendergraph.ClearPreserve)
	}, nil, 0)
}

func TestDump(t *testing.T) {
	h := newHarness(t)
	g := cullingGraph(h, 0)
	h.run(t, g)

	var sb strings.Builder
	if err := g.Dump(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{"culled B", "resource texture X [0, 1] backing 0", "render-target"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() missing %q:\n%s", want, out)
		}
	}
}
