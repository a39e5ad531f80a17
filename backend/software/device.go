// Package software implements gfx.Device on the CPU.
//
// Command lists execute eagerly while they are recorded: clears, copies and
// barrier bookkeeping happen at the call site and Submit only advances the
// fence timeline. Texels are stored as float32 RGBA regardless of format so
// tests can compare exact values.
//
// The device validates the barrier contract: every transition must start
// from the state the resource is actually in, render pass attachments must
// be in RenderTarget / DepthWrite state, and UAV barriers require the
// UnorderedAccess state. Violations are collected and returned by
// [Device.ValidationErrors].
//
// Draws and dispatches run registered [Kernel] functions keyed by pipeline
// label, which lets tests and the headless demo produce real pixels.
package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gfx"
)

func init() {
	backend.Register(backend.BackendSoftware, func() backend.Backend {
		return softwareBackend{}
	})
}

type softwareBackend struct{}

func (softwareBackend) Name() string { return backend.BackendSoftware }

func (softwareBackend) Open(cfg backend.Config) (gfx.Device, error) {
	return New(cfg)
}

// Device is a CPU implementation of gfx.Device.
type Device struct {
	mu sync.Mutex

	cfg backend.Config

	heap      *heap
	lists     []*CommandList
	swapchain *Swapchain

	states map[gfx.Resource]gfx.ResourceState

	kernels map[string]Kernel

	usedBytes   uint64
	nextAddress uint64

	fences []*Fence

	// latency is the number of submissions a fence signal stays pending.
	latency int

	validation []error
	destroyed  bool
}

// New creates a software device.
func New(cfg backend.Config) (*Device, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		cfg:         cfg,
		heap:        newHeap(cfg.DescriptorHeapSize),
		states:      make(map[gfx.Resource]gfx.ResourceState),
		kernels:     make(map[string]Kernel),
		nextAddress: 0x10000,
	}
	d.lists = make([]*CommandList, cfg.BackbufferCount)
	for i := range d.lists {
		d.lists[i] = &CommandList{dev: d, slot: i}
	}
	sc, err := newSwapchain(d, cfg.Width, cfg.Height, cfg.BackbufferCount, cfg.BackbufferFormat)
	if err != nil {
		return nil, err
	}
	d.swapchain = sc
	return d, nil
}

// SetLatency makes fence signals complete only after n further
// submissions (or an explicit Wait), simulating frames in flight.
func (d *Device) SetLatency(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = max(n, 0)
}

// RegisterKernel binds a CPU function to every pipeline created with label.
func (d *Device) RegisterKernel(label string, k Kernel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[label] = k
}

// ValidationErrors returns the barrier contract violations observed so far.
func (d *Device) ValidationErrors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.validation...)
}

// UsedBytes returns the memory held by live textures and buffers.
func (d *Device) UsedBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usedBytes
}

// State returns the tracked state of r.
func (d *Device) State(r gfx.Resource) gfx.ResourceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[r]
}

// Name implements gfx.Device.
func (d *Device) Name() string { return backend.BackendSoftware }

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
	if err := d.reserve(n.SizeBytes()); err != nil {
		return nil, err
	}
	t := &Texture{
		dev:    d,
		desc:   n,
		texels: make([]float32, int(n.Width)*int(n.Height)*int(n.Depth)*4),
	}
	d.states[t] = n.InitialState
	return t, nil
}

// CreateBuffer implements gfx.Device.
func (d *Device) CreateBuffer(desc *gfx.BufferDesc) (gfx.Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, gfx.ErrInvalidDesc
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(desc.Size); err != nil {
		return nil, err
	}
	b := &Buffer{
		dev:     d,
		desc:    *desc,
		data:    make([]byte, desc.Size),
		address: d.nextAddress,
	}
	d.nextAddress += (desc.Size + 0xff) &^ 0xff
	d.states[b] = desc.InitialState
	return b, nil
}

func (d *Device) release(r gfx.Resource, size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.states[r]; !ok {
		return
	}
	delete(d.states, r)
	d.usedBytes -= size
}

// CreateView implements gfx.Device.
func (d *Device) CreateView(r gfx.Resource, desc *gfx.ViewDesc) (gfx.Descriptor, error) {
	if r == nil || desc == nil {
		return nil, gfx.ErrInvalidDesc
	}
	if t, ok := r.(*Texture); ok {
		usage := t.desc.Usage
		switch desc.Kind {
		case gfx.ViewRTV:
			if !usage.Contains(gputypes.TextureUsageRenderAttachment) || t.desc.Format.IsDepthStencil() {
				return nil, fmt.Errorf("%w: %s is not a render target", gfx.ErrInvalidDesc, t.desc.Label)
			}
		case gfx.ViewDSV:
			if !t.desc.Format.IsDepthStencil() {
				return nil, fmt.Errorf("%w: %s is not a depth format", gfx.ErrInvalidDesc, t.desc.Label)
			}
		case gfx.ViewUAV:
			if !usage.Contains(gputypes.TextureUsageStorageBinding) {
				return nil, fmt.Errorf("%w: %s has no storage binding", gfx.ErrInvalidDesc, t.desc.Label)
			}
		}
	}
	return &Descriptor{kind: desc.Kind, res: r, desc: *desc}, nil
}

// DescriptorHeap implements gfx.Device.
func (d *Device) DescriptorHeap() gfx.DescriptorHeap { return d.heap }

// CreateGraphicsPipeline implements gfx.Device.
func (d *Device) CreateGraphicsPipeline(desc *gfx.GraphicsPipelineDesc) (gfx.Pipeline, error) {
	if desc == nil {
		return nil, gfx.ErrInvalidDesc
	}
	if len(desc.VS.Code) == 0 {
		return nil, fmt.Errorf("%w: pipeline %q has no vertex shader", gfx.ErrInvalidDesc, desc.Label)
	}
	return &Pipeline{label: desc.Label, graphics: desc}, nil
}

// CreateComputePipeline implements gfx.Device.
func (d *Device) CreateComputePipeline(desc *gfx.ComputePipelineDesc) (gfx.Pipeline, error) {
	if desc == nil {
		return nil, gfx.ErrInvalidDesc
	}
	if len(desc.CS.Code) == 0 {
		return nil, fmt.Errorf("%w: pipeline %q has no compute shader", gfx.ErrInvalidDesc, desc.Label)
	}
	return &Pipeline{label: desc.Label, compute: desc}, nil
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence() (gfx.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &Fence{dev: d}
	d.fences = append(d.fences, f)
	return f, nil
}

// CommandList implements gfx.Device.
func (d *Device) CommandList(slot int) gfx.CommandList {
	return d.lists[slot%len(d.lists)]
}

// Submit implements gfx.Device.
func (d *Device) Submit(cmd gfx.CommandList, fence gfx.Fence, value uint64) error {
	cl, ok := cmd.(*CommandList)
	if !ok {
		return fmt.Errorf("%w: foreign command list %T", gfx.ErrUnsupported, cmd)
	}
	if cl.recording {
		return errors.New("software: submit of an open command list")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gfx.ErrDeviceLost
	}
	for _, f := range d.fences {
		f.advance(d.latency)
	}
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("%w: foreign fence %T", gfx.ErrUnsupported, fence)
		}
		f.enqueue(value, d.latency)
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
	for _, f := range d.fences {
		f.flush()
	}
	return nil
}

// Destroy implements gfx.Device.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

// transition applies a barrier to the tracked state. Caller holds d.mu.
func (d *Device) transition(b gfx.Barrier) {
	if b.Resource == nil {
		d.validation = append(d.validation, errors.New("software: barrier without resource"))
		return
	}
	cur, ok := d.states[b.Resource]
	if !ok {
		d.validation = append(d.validation, fmt.Errorf("software: barrier on destroyed resource %s", b.Resource.Label()))
		return
	}
	switch b.Kind {
	case gfx.BarrierTransition:
		if cur != b.Before {
			d.validation = append(d.validation, fmt.Errorf("software: %s: transition from %s but resource is in %s",
				b.Resource.Label(), b.Before, cur))
		}
		if !b.After.Valid() {
			d.validation = append(d.validation, fmt.Errorf("software: %s: invalid state %s", b.Resource.Label(), b.After))
		}
		d.states[b.Resource] = b.After
	case gfx.BarrierUAV:
		if cur != gfx.StateUnorderedAccess {
			d.validation = append(d.validation, fmt.Errorf("software: %s: UAV barrier in state %s", b.Resource.Label(), cur))
		}
	}
}

// expect records a violation unless r is in one of the wanted states.
// Caller holds d.mu.
func (d *Device) expect(r gfx.Resource, what string, want ...gfx.ResourceState) {
	cur := d.states[r]
	for _, w := range want {
		if cur.Has(w) && w != gfx.StateCommon {
			return
		}
	}
	d.validation = append(d.validation, fmt.Errorf("software: %s used as %s in state %s", r.Label(), what, cur))
}
