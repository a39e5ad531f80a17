//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gfx"
)

// ErrNoAdapter is returned when no HAL adapter can be opened.
var ErrNoAdapter = errors.New("native: no GPU adapter available")

// DefaultConstantsSize is the per-slot root constant staging capacity.
const DefaultConstantsSize = 64 << 10

// constantsAlign is the uniform buffer offset alignment used for staged
// root constants.
const constantsAlign = 256

func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return nativeBackend{}
	})
}

type nativeBackend struct{}

func (nativeBackend) Name() string { return backend.BackendNative }

func (nativeBackend) Open(cfg backend.Config) (gfx.Device, error) {
	return New(cfg)
}

func slogger() *slog.Logger { return backend.Logger() }

// Device is a gfx.Device backed by a HAL device and queue.
type Device struct {
	mu sync.Mutex

	cfg backend.Config

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	owned    bool

	heap      *heap
	lists     []*CommandList
	constants []hal.Buffer
	swapchain *Swapchain

	// spans maps GPU addresses to buffers, sorted by base address.
	spans       []*Buffer
	nextAddress uint64
	usedBytes   uint64

	layouts     map[string]hal.BindGroupLayout
	pipeLayouts map[string]hal.PipelineLayout

	fences    []*Fence
	destroyed bool
}

// New opens the most capable HAL backend available and creates a device
// on its first discrete or integrated adapter.
func New(cfg backend.Config) (*Device, error) {
	b, err := hal.SelectBestBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAdapter, err)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}
	d, err := NewWithHAL(open.Device, open.Queue, cfg)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	slogger().Info("native: adapter selected", "adapter", selected.Info.Name, "variant", b.Variant())
	return d, nil
}

// NewWithHAL wraps an existing HAL device and queue. The caller keeps
// ownership of both.
func NewWithHAL(device hal.Device, queue hal.Queue, cfg backend.Config) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil HAL device or queue", backend.ErrInvalidConfig)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		cfg:         cfg,
		device:      device,
		queue:       queue,
		heap:        newHeap(cfg.DescriptorHeapSize),
		nextAddress: 0x10000,
		layouts:     make(map[string]hal.BindGroupLayout),
		pipeLayouts: make(map[string]hal.PipelineLayout),
	}
	for i := range cfg.BackbufferCount {
		enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: fmt.Sprintf("Frame%d", i)})
		if err != nil {
			d.Destroy()
			return nil, fmt.Errorf("native: command encoder: %w", err)
		}
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("RootConstants%d", i),
			Size:  DefaultConstantsSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			enc.Destroy()
			d.Destroy()
			return nil, fmt.Errorf("native: root constants: %w", err)
		}
		d.lists = append(d.lists, &CommandList{dev: d, slot: i, enc: enc})
		d.constants = append(d.constants, buf)
	}
	sc, err := newSwapchain(d, cfg.Width, cfg.Height, cfg.BackbufferCount, cfg.BackbufferFormat)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.swapchain = sc
	return d, nil
}

// halProvider is implemented by windowing hosts that share their HAL
// device, such as a gpucontext.DeviceProvider from gogpu.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider creates a device on the HAL device and queue exposed by
// provider. The provider keeps ownership of both.
func NewFromProvider(provider any, cfg backend.Config) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", backend.ErrInvalidConfig)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", backend.ErrInvalidConfig)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", backend.ErrInvalidConfig)
	}
	return NewWithHAL(device, queue, cfg)
}

// HAL returns the wrapped HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// UsedBytes returns the memory held by live textures and buffers.
func (d *Device) UsedBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usedBytes
}

// Name implements gfx.Device.
func (d *Device) Name() string { return backend.BackendNative }

// reserve is called with d.mu held.
func (d *Device) reserve(size uint64) error {
	if d.cfg.MemoryBudget > 0 && d.usedBytes+size > d.cfg.MemoryBudget {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			gfx.ErrOutOfMemory, size, d.usedBytes, d.cfg.MemoryBudget)
	}
	d.usedBytes += size
	return nil
}

// CreateTexture implements gfx.Device.
func (d *Device) CreateTexture(desc *gfx.TextureDesc) (gfx.Texture, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return nil, gfx.ErrInvalidDesc
	}
	n := desc.Normalized()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, gfx.ErrDeviceLost
	}
	if err := d.reserve(n.SizeBytes()); err != nil {
		return nil, err
	}
	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         n.Label,
		Size:          hal.Extent3D{Width: n.Width, Height: n.Height, DepthOrArrayLayers: n.Depth},
		MipLevelCount: n.MipLevels,
		SampleCount:   n.SampleCount,
		Dimension:     n.Dimension,
		Format:        n.Format,
		Usage:         n.Usage,
	})
	if err != nil {
		d.usedBytes -= n.SizeBytes()
		return nil, fmt.Errorf("native: create texture %q: %w", n.Label, err)
	}
	return &Texture{dev: d, raw: raw, desc: n}, nil
}

// CreateBuffer implements gfx.Device. CPU-visible buffers stay mapped for
// their whole lifetime.
func (d *Device) CreateBuffer(desc *gfx.BufferDesc) (gfx.Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, gfx.ErrInvalidDesc
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, gfx.ErrDeviceLost
	}
	if err := d.reserve(desc.Size); err != nil {
		return nil, err
	}
	usage := desc.Usage
	if desc.CPUVisible {
		usage |= gputypes.BufferUsageMapWrite
	}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		d.usedBytes -= desc.Size
		return nil, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}
	b := &Buffer{dev: d, raw: raw, desc: *desc, address: d.nextAddress}
	if desc.CPUVisible {
		m, err := d.device.MapBuffer(raw, 0, desc.Size)
		if err != nil {
			d.device.DestroyBuffer(raw)
			d.usedBytes -= desc.Size
			return nil, fmt.Errorf("native: map buffer %q: %w", desc.Label, err)
		}
		b.mapped = mappedBytes(m, desc.Size)
		if !m.IsCoherent {
			slogger().Debug("native: non-coherent mapping", "buffer", desc.Label)
		}
	}
	// Keep addresses 256-byte aligned like root CBV bindings require.
	d.nextAddress += (desc.Size + constantsAlign - 1) &^ (constantsAlign - 1)
	d.spans = append(d.spans, b)
	return b, nil
}

// resolve maps a GPU address to its buffer and offset. Called with d.mu
// held.
func (d *Device) resolve(address uint64) (*Buffer, uint64, bool) {
	i, found := slices.BinarySearchFunc(d.spans, address, func(b *Buffer, a uint64) int {
		switch {
		case a < b.address:
			return 1
		case a >= b.address+b.desc.Size:
			return -1
		default:
			return 0
		}
	})
	if !found {
		return nil, 0, false
	}
	b := d.spans[i]
	return b, address - b.address, true
}

func (d *Device) releaseBuffer(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	if i := slices.Index(d.spans, b); i >= 0 {
		d.spans = slices.Delete(d.spans, i, i+1)
	}
	if b.mapped != nil {
		if err := d.device.UnmapBuffer(b.raw); err != nil {
			slogger().Warn("native: unmap failed", "buffer", b.desc.Label, "error", err)
		}
		b.mapped = nil
	}
	d.device.DestroyBuffer(b.raw)
	d.usedBytes -= b.desc.Size
}

func (d *Device) releaseTexture(t *Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.destroyed {
		return
	}
	t.destroyed = true
	for _, v := range t.views {
		d.device.DestroyTextureView(v.view)
	}
	t.views = nil
	d.device.DestroyTexture(t.raw)
	d.usedBytes -= t.desc.SizeBytes()
}

// CreateView implements gfx.Device.
func (d *Device) CreateView(r gfx.Resource, desc *gfx.ViewDesc) (gfx.Descriptor, error) {
	var vd gfx.ViewDesc
	if desc != nil {
		vd = *desc
	}
	switch res := r.(type) {
	case *Texture:
		return d.textureView(res, vd)
	case *Buffer:
		if vd.Kind != gfx.ViewSRV && vd.Kind != gfx.ViewUAV {
			return nil, fmt.Errorf("%w: %s view of buffer %q", gfx.ErrInvalidDesc, vd.Kind, res.Label())
		}
		size := vd.Size
		if size == 0 {
			size = res.desc.Size - vd.Offset
		}
		if vd.Offset+size > res.desc.Size {
			return nil, fmt.Errorf("%w: view [%d, %d) of buffer %q", gfx.ErrInvalidDesc, vd.Offset, vd.Offset+size, res.Label())
		}
		return &Descriptor{kind: vd.Kind, res: res, desc: vd, offset: vd.Offset, size: size}, nil
	default:
		return nil, fmt.Errorf("%w: resource %T", gfx.ErrInvalidDesc, r)
	}
}

func (d *Device) textureView(t *Texture, vd gfx.ViewDesc) (*Descriptor, error) {
	format := vd.Format
	if format == gputypes.TextureFormatUndefined {
		format = t.desc.Format
	}
	aspect := gputypes.TextureAspectAll
	if isDepth(format) && (vd.Kind == gfx.ViewSRV || vd.ReadOnlyDepth) {
		aspect = gputypes.TextureAspectDepthOnly
	}
	layers := vd.LayerCount
	if layers == 0 {
		layers = t.desc.Depth - vd.BaseArrayLayer
	}
	dim := viewDimension(t.desc, layers)
	if vd.Kind == gfx.ViewRTV || vd.Kind == gfx.ViewDSV || vd.Kind == gfx.ViewUAV {
		dim = gputypes.TextureViewDimension2D
		if layers > 1 {
			dim = gputypes.TextureViewDimension2DArray
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.destroyed {
		return nil, fmt.Errorf("%w: view of destroyed texture %q", gfx.ErrInvalidDesc, t.Label())
	}
	view, err := d.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           t.desc.Label + "/" + vd.Kind.String(),
		Format:          format,
		Dimension:       dim,
		Aspect:          aspect,
		BaseMipLevel:    vd.BaseMipLevel,
		MipLevelCount:   vd.MipLevelCount,
		BaseArrayLayer:  vd.BaseArrayLayer,
		ArrayLayerCount: vd.LayerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("native: view of %q: %w", t.Label(), err)
	}
	desc := &Descriptor{kind: vd.Kind, res: t, desc: vd, view: view, format: format, dim: dim}
	t.views = append(t.views, desc)
	return desc, nil
}

// DescriptorHeap implements gfx.Device.
func (d *Device) DescriptorHeap() gfx.DescriptorHeap { return d.heap }

// CreateGraphicsPipeline implements gfx.Device. Shader modules are created
// immediately; HAL pipelines are created per binding signature on first
// use.
func (d *Device) CreateGraphicsPipeline(desc *gfx.GraphicsPipelineDesc) (gfx.Pipeline, error) {
	if desc == nil || len(desc.VS.Code) == 0 {
		return nil, gfx.ErrInvalidDesc
	}
	p := &Pipeline{dev: d, label: desc.Label, graphics: desc, variants: make(map[string]hal.Resource)}
	vs, err := d.shaderModule(desc.Label+"/VS", desc.VS)
	if err != nil {
		return nil, err
	}
	p.modules = append(p.modules, vs)
	if desc.PS != nil {
		ps, err := d.shaderModule(desc.Label+"/PS", *desc.PS)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.modules = append(p.modules, ps)
	}
	return p, nil
}

// CreateComputePipeline implements gfx.Device.
func (d *Device) CreateComputePipeline(desc *gfx.ComputePipelineDesc) (gfx.Pipeline, error) {
	if desc == nil || len(desc.CS.Code) == 0 {
		return nil, gfx.ErrInvalidDesc
	}
	cs, err := d.shaderModule(desc.Label+"/CS", desc.CS)
	if err != nil {
		return nil, err
	}
	return &Pipeline{dev: d, label: desc.Label, compute: desc, modules: []hal.ShaderModule{cs}, variants: make(map[string]hal.Resource)}, nil
}

func (d *Device) shaderModule(label string, s gfx.Shader) (hal.ShaderModule, error) {
	src, err := shaderSource(s.Code)
	if err != nil {
		return nil, fmt.Errorf("native: %s: %w", label, err)
	}
	m, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("native: shader module %s: %w", label, err)
	}
	return m, nil
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence() (gfx.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, gfx.ErrDeviceLost
	}
	f := &Fence{dev: d}
	d.fences = append(d.fences, f)
	return f, nil
}

// CommandList implements gfx.Device.
func (d *Device) CommandList(slot int) gfx.CommandList {
	return d.lists[slot%len(d.lists)]
}

// Submit implements gfx.Device. Staged root constants are written to the
// slot's constant buffer before the command buffer is queued.
func (d *Device) Submit(cmd gfx.CommandList, fence gfx.Fence, value uint64) error {
	l, ok := cmd.(*CommandList)
	if !ok || l.dev != d {
		return fmt.Errorf("%w: foreign command list %T", gfx.ErrInvalidDesc, cmd)
	}
	f, ok := fence.(*Fence)
	if fence != nil && (!ok || f.dev != d) {
		return fmt.Errorf("%w: foreign fence %T", gfx.ErrInvalidDesc, fence)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gfx.ErrDeviceLost
	}
	if l.recording || l.cb == nil {
		return fmt.Errorf("native: submit of open or empty command list %d", l.slot)
	}
	if len(l.staging) > 0 {
		if err := d.queue.WriteBuffer(d.constants[l.slot], 0, l.staging); err != nil {
			return fmt.Errorf("native: root constants: %w", err)
		}
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{l.cb})
	if err != nil {
		return fmt.Errorf("%w: %w", gfx.ErrDeviceLost, err)
	}
	l.submitted = index
	if f != nil {
		f.signals = append(f.signals, signal{value: value, index: index})
	}
	return nil
}

// Swapchain implements gfx.Device.
func (d *Device) Swapchain() gfx.Swapchain { return d.swapchain }

// WaitIdle implements gfx.Device.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gfx.ErrDeviceLost
	}
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("%w: %w", gfx.ErrDeviceLost, err)
	}
	return nil
}

// bindGroupLayout returns the cached layout for a signature. Called with
// d.mu held.
func (d *Device) bindGroupLayout(sig string, entries []gputypes.BindGroupLayoutEntry) (hal.BindGroupLayout, error) {
	if l, ok := d.layouts[sig]; ok {
		return l, nil
	}
	l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: sig, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("native: bind group layout %q: %w", sig, err)
	}
	d.layouts[sig] = l
	return l, nil
}

// pipelineLayout returns the cached pipeline layout for the given group
// layouts. Called with d.mu held.
func (d *Device) pipelineLayout(sig string, groups []hal.BindGroupLayout) (hal.PipelineLayout, error) {
	if l, ok := d.pipeLayouts[sig]; ok {
		return l, nil
	}
	l, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: sig, BindGroupLayouts: groups})
	if err != nil {
		return nil, fmt.Errorf("native: pipeline layout %q: %w", sig, err)
	}
	d.pipeLayouts[sig] = l
	return l, nil
}

// Destroy implements gfx.Device. Objects created from the device must be
// destroyed first.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	if d.swapchain != nil {
		d.swapchain.destroy()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("native: wait idle on destroy", "error", err)
	}
	for _, l := range d.lists {
		l.releaseGroups()
		if l.cb != nil {
			d.device.FreeCommandBuffer(l.cb)
			l.cb = nil
		}
		l.enc.Destroy()
	}
	for _, b := range d.constants {
		d.device.DestroyBuffer(b)
	}
	for _, l := range d.pipeLayouts {
		d.device.DestroyPipelineLayout(l)
	}
	for _, l := range d.layouts {
		d.device.DestroyBindGroupLayout(l)
	}
	clear(d.pipeLayouts)
	clear(d.layouts)
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}
