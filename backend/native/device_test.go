//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gfx"
)

func openNoop(t *testing.T) hal.OpenDevice {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	t.Cleanup(instance.Destroy)
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no noop adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(open.Device.Destroy)
	return open
}

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	open := openNoop(t)
	d, err := NewWithHAL(open.Device, open.Queue, backend.Config{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("NewWithHAL() error = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func newTexture(t *testing.T, d *Device, label string, format gputypes.TextureFormat) gfx.Texture {
	t.Helper()
	tex, err := d.CreateTexture(&gfx.TextureDesc{
		Label:  label,
		Width:  16,
		Height: 16,
		Format: format,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageStorageBinding,
	})
	if err != nil {
		t.Fatal(err)
	}
	return tex
}

func newView(t *testing.T, d *Device, r gfx.Resource, kind gfx.ViewKind) gfx.Descriptor {
	t.Helper()
	v, err := d.CreateView(r, &gfx.ViewDesc{Kind: kind})
	if err != nil {
		t.Fatalf("CreateView(%s) error = %v", kind, err)
	}
	return v
}

const wgsl = "@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }"

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendNative) {
		t.Fatal("native backend not registered")
	}
}

func TestNewWithHALRejectsNil(t *testing.T) {
	if _, err := NewWithHAL(nil, nil, backend.Config{Width: 4, Height: 4}); !errors.Is(err, backend.ErrInvalidConfig) {
		t.Errorf("NewWithHAL(nil) error = %v, want ErrInvalidConfig", err)
	}
}

type provider struct {
	device hal.Device
	queue  hal.Queue
}

func (p provider) HalDevice() any { return p.device }
func (p provider) HalQueue() any  { return p.queue }

func TestNewFromProvider(t *testing.T) {
	open := openNoop(t)
	d, err := NewFromProvider(provider{open.Device, open.Queue}, backend.Config{Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("NewFromProvider() error = %v", err)
	}
	d.Destroy()

	if _, err := NewFromProvider(struct{}{}, backend.Config{Width: 4, Height: 4}); !errors.Is(err, backend.ErrInvalidConfig) {
		t.Errorf("NewFromProvider(struct{}) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewFromProvider(provider{}, backend.Config{Width: 4, Height: 4}); !errors.Is(err, backend.ErrInvalidConfig) {
		t.Errorf("NewFromProvider(nil HAL) error = %v, want ErrInvalidConfig", err)
	}
}

func TestFenceTimeline(t *testing.T) {
	d := newTestDevice(t)
	f, err := d.CreateFence()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Destroy()

	cl := d.CommandList(0)
	if err := cl.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := cl.End(); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(cl, f, 3); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := f.CompletedValue(); got != 3 {
		t.Errorf("CompletedValue() = %d, want 3", got)
	}
	if err := f.Wait(3); err != nil {
		t.Errorf("Wait(3) error = %v", err)
	}
	if err := f.Wait(4); err == nil {
		t.Error("Wait(4) on a value never signaled succeeded")
	}
	if err := d.Submit(cl, f, 4); err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	if err := cl.Begin(); err != nil {
		t.Fatalf("Begin() after completed submit error = %v", err)
	}
	if err := d.Submit(cl, f, 5); err == nil {
		t.Error("Submit() of an open command list succeeded")
	}
	_ = cl.End()
}

func TestMappedBufferAndAddresses(t *testing.T) {
	d := newTestDevice(t)
	a, err := d.CreateBuffer(&gfx.BufferDesc{Label: "A", Size: 100, Usage: gputypes.BufferUsageUniform, CPUVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.CreateBuffer(&gfx.BufferDesc{Label: "B", Size: 64, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(a.Mapped()); got != 100 {
		t.Errorf("len(A.Mapped()) = %d, want 100", got)
	}
	if b.Mapped() != nil {
		t.Error("GPU-only buffer is mapped")
	}
	if b.GPUAddress()%constantsAlign != 0 || b.GPUAddress() <= a.GPUAddress() {
		t.Errorf("addresses A=0x%x B=0x%x are not increasing and aligned", a.GPUAddress(), b.GPUAddress())
	}
	tests := []struct {
		addr   uint64
		want   gfx.Buffer
		offset uint64
	}{
		{a.GPUAddress(), a, 0},
		{a.GPUAddress() + 10, a, 10},
		{b.GPUAddress() + 63, b, 63},
		{b.GPUAddress() + 64, nil, 0},
	}
	for _, tt := range tests {
		got, off, ok := d.resolve(tt.addr)
		if tt.want == nil {
			if ok {
				t.Errorf("resolve(0x%x) = %s, want none", tt.addr, got.Label())
			}
			continue
		}
		if !ok || got != tt.want || off != tt.offset {
			t.Errorf("resolve(0x%x) = %v+%d, want %s+%d", tt.addr, got, off, tt.want.Label(), tt.offset)
		}
	}
	used := d.UsedBytes()
	a.Destroy()
	if _, _, ok := d.resolve(a.GPUAddress()); ok {
		t.Error("destroyed buffer still resolves")
	}
	if got := d.UsedBytes(); got != used-100 {
		t.Errorf("UsedBytes() = %d, want %d", got, used-100)
	}
	b.Destroy()
}

func TestMemoryBudget(t *testing.T) {
	open := openNoop(t)
	d, err := NewWithHAL(open.Device, open.Queue, backend.Config{Width: 4, Height: 4, BackbufferCount: 1, MemoryBudget: 4*4*4 + 128})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy()
	if _, err := d.CreateBuffer(&gfx.BufferDesc{Label: "Big", Size: 1024}); !errors.Is(err, gfx.ErrOutOfMemory) {
		t.Errorf("CreateBuffer() over budget error = %v, want ErrOutOfMemory", err)
	}
}

func TestDrawBuildsPipelineVariants(t *testing.T) {
	d := newTestDevice(t)
	rt := newTexture(t, d, "HDR", gputypes.TextureFormatRGBA16Float)
	src := newTexture(t, d, "Albedo", gputypes.TextureFormatRGBA8Unorm)
	depth := newTexture(t, d, "Depth", gputypes.TextureFormatDepth32Float)
	cbv, err := d.CreateBuffer(&gfx.BufferDesc{Label: "Frame", Size: 256, Usage: gputypes.BufferUsageUniform, CPUVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	defer cbv.Destroy()

	table := []gfx.Descriptor{newView(t, d, src, gfx.ViewSRV), newView(t, d, depth, gfx.ViewSRV)}
	if err := d.DescriptorHeap().Copy(8, table); err != nil {
		t.Fatal(err)
	}
	p, err := d.CreateGraphicsPipeline(&gfx.GraphicsPipelineDesc{
		Label:        "Lighting",
		VS:           gfx.Shader{Stage: gfx.StageVertex, EntryPoint: "vs_main", Code: []byte(wgsl)},
		PS:           &gfx.Shader{Stage: gfx.StagePixel, EntryPoint: "fs_main", Code: []byte(wgsl)},
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA16Float},
	})
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline() error = %v", err)
	}
	defer p.Destroy()

	cl := d.CommandList(1).(*CommandList)
	if err := cl.Begin(); err != nil {
		t.Fatal(err)
	}
	cl.ResourceBarriers([]gfx.Barrier{
		gfx.Transition(rt, gfx.StateCommon, gfx.StateRenderTarget),
		gfx.Transition(src, gfx.StateCommon, gfx.StatePixelShaderResource),
	})
	cl.BeginRenderPass(&gfx.RenderPassDesc{
		Label:  "Lighting",
		Width:  16,
		Height: 16,
		Colors: []gfx.ColorAttachment{{View: newView(t, d, rt, gfx.ViewRTV), LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}},
	})
	cl.SetPipeline(p)
	cl.SetRootCBV(0, cbv.GPUAddress())
	cl.SetRootConstants(8, 1, 2)
	cl.Draw(3, 1, 0, 0)
	cl.SetRootConstants(8, 5, 6)
	cl.Draw(3, 1, 0, 0)
	// No table: the constants alone form group 1.
	cl.SetRootConstants(3)
	cl.Draw(3, 1, 0, 0)
	cl.EndRenderPass()
	if err := cl.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if got := p.(*Pipeline).Variants(); got != 2 {
		t.Errorf("Variants() = %d, want 2", got)
	}
	if got := len(cl.staging); got != 3*constantsAlign {
		t.Errorf("staged %d bytes, want %d", got, 3*constantsAlign)
	}
	if got := binary.LittleEndian.Uint32(cl.staging[constantsAlign:]); got != 5 {
		t.Errorf("second staged constant = %d, want 5", got)
	}
	if got := len(cl.groups); got != 6 {
		t.Errorf("len(groups) = %d, want 6", got)
	}
	if err := d.Submit(cl, nil, 0); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestDispatchOpensComputePass(t *testing.T) {
	d := newTestDevice(t)
	buf, err := d.CreateBuffer(&gfx.BufferDesc{Label: "Particles", Size: 1024, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()
	if err := d.DescriptorHeap().Copy(0, []gfx.Descriptor{newView(t, d, buf, gfx.ViewUAV)}); err != nil {
		t.Fatal(err)
	}
	p, err := d.CreateComputePipeline(&gfx.ComputePipelineDesc{
		Label: "Simulate",
		CS:    gfx.Shader{Stage: gfx.StageCompute, EntryPoint: "cs_main", Code: []byte(wgsl)},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Destroy()

	cl := d.CommandList(0).(*CommandList)
	if err := cl.Begin(); err != nil {
		t.Fatal(err)
	}
	cl.SetPipeline(p)
	cl.SetRootConstants(0, 64)
	cl.Dispatch(1, 1, 1)
	if cl.compute == nil {
		t.Fatal("Dispatch did not open a compute pass")
	}
	cl.ResourceBarriers([]gfx.Barrier{{Kind: gfx.BarrierUAV, Resource: buf}})
	if cl.compute != nil {
		t.Error("barrier did not close the compute pass")
	}
	cl.Dispatch(1, 1, 1)
	if err := cl.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if got := p.(*Pipeline).Variants(); got != 1 {
		t.Errorf("Variants() = %d, want 1", got)
	}
}

func TestCommandListErrors(t *testing.T) {
	d := newTestDevice(t)
	gp, err := d.CreateGraphicsPipeline(&gfx.GraphicsPipelineDesc{
		Label: "Draw",
		VS:    gfx.Shader{Stage: gfx.StageVertex, EntryPoint: "vs_main", Code: []byte(wgsl)},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer gp.Destroy()

	tests := []struct {
		name   string
		record func(cl gfx.CommandList)
	}{
		{"draw outside render pass", func(cl gfx.CommandList) {
			cl.SetPipeline(gp)
			cl.Draw(3, 1, 0, 0)
		}},
		{"dispatch with graphics pipeline", func(cl gfx.CommandList) {
			cl.SetPipeline(gp)
			cl.Dispatch(1, 1, 1)
		}},
		{"unknown root CBV address", func(cl gfx.CommandList) {
			rt := newTexture(t, d, "RT", gputypes.TextureFormatRGBA8Unorm)
			cl.BeginRenderPass(&gfx.RenderPassDesc{
				Width: 16, Height: 16,
				Colors: []gfx.ColorAttachment{{View: newView(t, d, rt, gfx.ViewRTV)}},
			})
			cl.SetPipeline(gp)
			cl.SetRootCBV(0, 0xdead0000)
			cl.Draw(3, 1, 0, 0)
			cl.EndRenderPass()
		}},
		{"pop without push", func(cl gfx.CommandList) { cl.PopMarker() }},
		{"unbalanced render pass", func(cl gfx.CommandList) {
			rt := newTexture(t, d, "RT", gputypes.TextureFormatRGBA8Unorm)
			cl.BeginRenderPass(&gfx.RenderPassDesc{
				Width: 16, Height: 16,
				Colors: []gfx.ColorAttachment{{View: newView(t, d, rt, gfx.ViewRTV)}},
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := d.CommandList(0)
			if err := cl.Begin(); err != nil {
				t.Fatal(err)
			}
			tt.record(cl)
			if err := cl.End(); err == nil {
				t.Error("End() error = nil, want recording error")
			}
		})
	}
}

func TestConstantsOverflow(t *testing.T) {
	d := newTestDevice(t)
	p, err := d.CreateComputePipeline(&gfx.ComputePipelineDesc{
		Label: "Spin",
		CS:    gfx.Shader{Stage: gfx.StageCompute, EntryPoint: "cs_main", Code: []byte(wgsl)},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Destroy()
	cl := d.CommandList(0)
	if err := cl.Begin(); err != nil {
		t.Fatal(err)
	}
	cl.SetPipeline(p)
	for i := range DefaultConstantsSize/constantsAlign + 1 {
		cl.SetRootConstants(uint32(100000 + i))
		cl.Dispatch(1, 1, 1)
	}
	if err := cl.End(); !errors.Is(err, ErrConstantsOverflow) {
		t.Errorf("End() error = %v, want ErrConstantsOverflow", err)
	}
}

func TestShaderSource(t *testing.T) {
	spirv := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	spirv = binary.LittleEndian.AppendUint32(spirv, 0x00010300)
	src, err := shaderSource(spirv)
	if err != nil {
		t.Fatal(err)
	}
	if len(src.SPIRV) != 2 || src.SPIRV[1] != 0x00010300 || src.WGSL != "" {
		t.Errorf("shaderSource(SPIR-V) = %+v", src)
	}
	if _, err := shaderSource(append(spirv, 0)); err == nil {
		t.Error("shaderSource accepted truncated SPIR-V")
	}
	src, err = shaderSource([]byte(wgsl))
	if err != nil || src.WGSL != wgsl || src.SPIRV != nil {
		t.Errorf("shaderSource(WGSL) = %+v, %v", src, err)
	}
}

func TestStateUsage(t *testing.T) {
	textures := []struct {
		state  gfx.ResourceState
		format gputypes.TextureFormat
		want   gputypes.TextureUsage
	}{
		{gfx.StateCommon, gputypes.TextureFormatRGBA8Unorm, 0},
		{gfx.StateRenderTarget, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageRenderAttachment},
		{gfx.StateUnorderedAccess, gputypes.TextureFormatRGBA16Float, gputypes.TextureUsageStorageBinding},
		{gfx.StateAllShaderResource, gputypes.TextureFormatRGBA16Float, gputypes.TextureUsageTextureBinding},
		{gfx.StateDepthRead | gfx.StatePixelShaderResource, gputypes.TextureFormatDepth32Float,
			gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding},
		{gfx.StatePresent, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureUsageCopySrc},
		{gfx.StateCopyDst, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageCopyDst},
	}
	for _, tt := range textures {
		if got := textureUsage(tt.state, tt.format); got != tt.want {
			t.Errorf("textureUsage(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
	buffers := []struct {
		state gfx.ResourceState
		want  gputypes.BufferUsage
	}{
		{gfx.StateVertexAndConstantBuffer, gputypes.BufferUsageVertex | gputypes.BufferUsageUniform},
		{gfx.StateIndexBuffer, gputypes.BufferUsageIndex},
		{gfx.StateNonPixelShaderResource, gputypes.BufferUsageStorage},
		{gfx.StateIndirectArgument | gfx.StateCopySrc, gputypes.BufferUsageIndirect | gputypes.BufferUsageCopySrc},
	}
	for _, tt := range buffers {
		if got := bufferUsage(tt.state); got != tt.want {
			t.Errorf("bufferUsage(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSwapchain(t *testing.T) {
	d := newTestDevice(t)
	sc := d.Swapchain()
	if sc.Count() != backend.DefaultBackbufferCount {
		t.Fatalf("Count() = %d, want %d", sc.Count(), backend.DefaultBackbufferCount)
	}
	for i := range 4 {
		if got, want := sc.Current(), i%sc.Count(); got != want {
			t.Errorf("Current() = %d, want %d", got, want)
		}
		if err := sc.Present(); err != nil {
			t.Fatal(err)
		}
	}
	if err := sc.Resize(8, 4); err != nil {
		t.Fatal(err)
	}
	desc := sc.Backbuffer(0).Desc()
	if desc.Width != 8 || desc.Height != 4 || sc.Current() != 0 {
		t.Errorf("after Resize: %s current=%d", desc, sc.Current())
	}
	if err := sc.Resize(0, 4); !errors.Is(err, gfx.ErrInvalidDesc) {
		t.Errorf("Resize(0, 4) error = %v, want ErrInvalidDesc", err)
	}
}
