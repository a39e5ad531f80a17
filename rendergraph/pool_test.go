// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/backend/software"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/rendergraph"
)

func TestPoolReuseAcrossFrames(t *testing.T) {
	h := newHarness(t)
	for frame := 0; frame < 3; frame++ {
		g := h.graph()
		g.AddPass("A", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
			b.DeclareTexture(nameX, r8(16, 16))
			b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
		}, nil, 0)
		g.MarkFinal(nameX, gfx.StatePixelShaderResource)
		h.run(t, g)
		h.pool.Tick()
	}
	st := h.pool.Stats()
	if st.Created != 1 {
		t.Errorf("Created = %d, want 1", st.Created)
	}
	if st.Leased != 0 || st.Resources != 1 {
		t.Errorf("Leased = %d, Resources = %d, want 0, 1", st.Leased, st.Resources)
	}
	if st.Views.Len != 1 || st.Views.Misses != 1 || st.Views.Hits != 2 {
		t.Errorf("Views = %+v, want one view created once and reused twice", st.Views)
	}
}

func TestPoolIdleEviction(t *testing.T) {
	dev, err := software.New(backend.Config{Width: 1, Height: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Destroy()
	pool := rendergraph.NewResourcePool(dev, rendergraph.PoolConfig{MaxIdleFrames: 2})
	defer pool.Destroy()
	baseline := dev.UsedBytes()

	tex, state, err := pool.AcquireTexture(r8(8, 8))
	if err != nil {
		t.Fatal(err)
	}
	if state != gfx.StateCommon {
		t.Errorf("initial state = %s, want Common", state)
	}
	pool.Release(tex, gfx.StateRenderTarget)

	again, state, _ := pool.AcquireTexture(r8(8, 8))
	if again != tex || state != gfx.StateRenderTarget {
		t.Errorf("reacquire = %v in %s, want same texture in RenderTarget", again, state)
	}
	v1, err := pool.View(again, gfx.ViewDesc{Kind: gfx.ViewSRV})
	if err != nil {
		t.Fatal(err)
	}
	if v2, _ := pool.View(again, gfx.ViewDesc{Kind: gfx.ViewSRV}); v2 != v1 {
		t.Error("View() did not reuse the cached view")
	}
	pool.Release(again, gfx.StateRenderTarget)

	for i := 0; i < 3; i++ {
		pool.Tick()
	}
	if st := pool.Stats(); st.Resources != 0 || st.EvictionCount != 1 || st.Views.Len != 0 {
		t.Errorf("after idle ticks: %s", st)
	}
	if dev.UsedBytes() != baseline {
		t.Errorf("device UsedBytes = %d, want %d", dev.UsedBytes(), baseline)
	}
}

func TestPoolBudget(t *testing.T) {
	dev, _ := software.New(backend.Config{Width: 1, Height: 1})
	defer dev.Destroy()
	// Room for one 64x64 R8 texture.
	pool := rendergraph.NewResourcePool(dev, rendergraph.PoolConfig{BudgetBytes: 64 * 64})
	defer pool.Destroy()

	a, _, err := pool.AcquireTexture(r8(64, 64))
	if err != nil {
		t.Fatal(err)
	}
	// a is leased, nothing can be evicted.
	if _, _, err := pool.AcquireTexture(gfx.TextureDesc{Width: 64, Height: 64, Format: gputypes.TextureFormatR8Uint}); !errors.Is(err, gfx.ErrOutOfMemory) {
		t.Fatalf("AcquireTexture() over budget error = %v, want ErrOutOfMemory", err)
	}
	// Once idle, the least recently used resource makes room.
	pool.Release(a, gfx.StateCommon)
	if _, _, err := pool.AcquireTexture(gfx.TextureDesc{Width: 64, Height: 64, Format: gputypes.TextureFormatR8Uint}); err != nil {
		t.Fatalf("AcquireTexture() after release error = %v", err)
	}
	if st := pool.Stats(); st.EvictionCount != 1 || st.Resources != 1 {
		t.Errorf("stats = %s, want one eviction and one resource", st)
	}
}

func TestPoolRetiresEvictedResources(t *testing.T) {
	dev, _ := software.New(backend.Config{Width: 1, Height: 1})
	defer dev.Destroy()
	dev.SetLatency(2)
	fence, err := dev.CreateFence()
	if err != nil {
		t.Fatal(err)
	}

	var retired []gfx.Resource
	pool := rendergraph.NewResourcePool(dev, rendergraph.PoolConfig{
		BudgetBytes: 64 * 64,
		Retire:      func(r gfx.Resource) { retired = append(retired, r) },
	})
	defer pool.Destroy()

	// Frame 1 renders into a and is still in flight afterwards.
	a, _, err := pool.AcquireTexture(r8(64, 64))
	if err != nil {
		t.Fatal(err)
	}
	pool.Release(a, gfx.StateRenderTarget)
	cmd := dev.CommandList(0)
	_ = cmd.Begin()
	_ = cmd.End()
	if err := dev.Submit(cmd, fence, 1); err != nil {
		t.Fatal(err)
	}
	if fence.CompletedValue() >= 1 {
		t.Fatal("frame 1 completed immediately despite latency")
	}
	used := dev.UsedBytes()

	// Frame 2 needs a different shape, which evicts a.
	if _, _, err := pool.AcquireTexture(gfx.TextureDesc{Width: 64, Height: 64, Format: gputypes.TextureFormatR8Uint}); err != nil {
		t.Fatalf("AcquireTexture() error = %v", err)
	}
	if st := pool.Stats(); st.EvictionCount != 1 {
		t.Fatalf("EvictionCount = %d, want 1", st.EvictionCount)
	}
	if len(retired) != 1 || retired[0] != gfx.Resource(a) {
		t.Fatalf("retired = %v, want the evicted texture", retired)
	}
	if dev.UsedBytes() <= used {
		t.Errorf("device UsedBytes = %d, want more than %d: evicted texture destroyed while in flight", dev.UsedBytes(), used)
	}

	if err := fence.Wait(1); err != nil {
		t.Fatal(err)
	}
	retired[0].Destroy()
	if dev.UsedBytes() != used {
		t.Errorf("device UsedBytes after retire = %d, want %d", dev.UsedBytes(), used)
	}
}

func TestCompileOutOfMemory(t *testing.T) {
	dev, _ := software.New(backend.Config{Width: 1, Height: 1})
	defer dev.Destroy()
	pool := rendergraph.NewResourcePool(dev, rendergraph.PoolConfig{BudgetBytes: 1024})
	defer pool.Destroy()

	g := rendergraph.New(rendergraph.Config{Device: dev, Pool: pool})
	g.AddPass("Big", rendergraph.PassGraphics, func(b *rendergraph.Builder) {
		b.DeclareTexture(nameX, r8(256, 256))
		b.WriteRenderTarget(nameX, rendergraph.ClearPreserve)
	}, nil, rendergraph.ForceNoCull)

	err := g.Compile()
	if !errors.Is(err, rendergraph.ErrAllocation) || !errors.Is(err, gfx.ErrOutOfMemory) {
		t.Fatalf("Compile() error = %v, want ErrAllocation wrapping ErrOutOfMemory", err)
	}
	var ge *rendergraph.Error
	if !errors.As(err, &ge) || ge.Resource != "X" {
		t.Errorf("diagnostic = %v, want resource X", err)
	}
}

func TestBlackboard(t *testing.T) {
	type frameConstants struct{ Address uint64 }
	type camera struct{ Near, Far float32 }

	bb := rendergraph.NewBlackboard()
	if rendergraph.Get[camera](bb) != nil {
		t.Fatal("Get() on empty blackboard returned a value")
	}
	rendergraph.Add(bb, frameConstants{Address: 0x1000})
	c := rendergraph.Add(bb, camera{Near: 0.1, Far: 100})
	c.Far = 500

	if got := rendergraph.Get[camera](bb); got == nil || got.Far != 500 {
		t.Errorf("Get[camera]() = %+v, want Far 500", got)
	}
	if got := rendergraph.Get[frameConstants](bb); got.Address != 0x1000 {
		t.Errorf("Get[frameConstants]().Address = %#x", got.Address)
	}
	bb.Clear()
	if rendergraph.Has[camera](bb) || bb.Len() != 0 {
		t.Error("Clear() left values behind")
	}
}

func TestNameCollisionDetection(t *testing.T) {
	a := rendergraph.NewName("GBufferNormal")
	if a != rendergraph.NewName("GBufferNormal") {
		t.Error("equal strings hash differently")
	}
	if a.Hash() == rendergraph.NewName("GBufferAlbedo").Hash() {
		t.Error("distinct names collide")
	}
	if a.String() != "GBufferNormal" {
		t.Errorf("String() = %q", a.String())
	}
}
