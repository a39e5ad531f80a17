//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gfx"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Texture is a HAL texture.
type Texture struct {
	dev       *Device
	raw       hal.Texture
	desc      gfx.TextureDesc
	views     []*Descriptor
	destroyed bool
}

// Label implements gfx.Resource.
func (t *Texture) Label() string { return t.desc.Label }

// Desc implements gfx.Texture.
func (t *Texture) Desc() gfx.TextureDesc { return t.desc }

// Destroy implements gfx.Resource. Views created from t are destroyed too.
func (t *Texture) Destroy() { t.dev.releaseTexture(t) }

// Raw returns the HAL texture.
func (t *Texture) Raw() hal.Texture { return t.raw }

// Buffer is a HAL buffer with a synthetic GPU address.
type Buffer struct {
	dev       *Device
	raw       hal.Buffer
	desc      gfx.BufferDesc
	address   uint64
	mapped    []byte
	destroyed bool
}

// Label implements gfx.Resource.
func (b *Buffer) Label() string { return b.desc.Label }

// Desc implements gfx.Buffer.
func (b *Buffer) Desc() gfx.BufferDesc { return b.desc }

// Destroy implements gfx.Resource.
func (b *Buffer) Destroy() { b.dev.releaseBuffer(b) }

// GPUAddress implements gfx.Buffer.
func (b *Buffer) GPUAddress() uint64 { return b.address }

// Mapped implements gfx.Buffer.
func (b *Buffer) Mapped() []byte { return b.mapped }

// Raw returns the HAL buffer.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

func mappedBytes(m hal.BufferMapping, size uint64) []byte {
	if m.Ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(m.Ptr), size)
}

// Descriptor is a texture view or a buffer range.
type Descriptor struct {
	kind gfx.ViewKind
	res  gfx.Resource
	desc gfx.ViewDesc

	// Texture views.
	view   hal.TextureView
	format gputypes.TextureFormat
	dim    gputypes.TextureViewDimension

	// Buffer ranges.
	offset, size uint64
}

// Kind implements gfx.Descriptor.
func (d *Descriptor) Kind() gfx.ViewKind { return d.kind }

// Resource implements gfx.Descriptor.
func (d *Descriptor) Resource() gfx.Resource { return d.res }

// layoutEntry returns the bind group layout entry for d at binding, and a
// short code used in layout signatures.
func (d *Descriptor) layoutEntry(binding uint32, vis gputypes.ShaderStages) (gputypes.BindGroupLayoutEntry, string, error) {
	e := gputypes.BindGroupLayoutEntry{Binding: binding, Visibility: vis}
	switch {
	case d.view == nil && d.kind == gfx.ViewSRV:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		return e, "r", nil
	case d.view == nil && d.kind == gfx.ViewUAV:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		return e, "s", nil
	case d.kind == gfx.ViewSRV && isDepth(d.format):
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeDepth,
			ViewDimension: d.dim,
		}
		return e, fmt.Sprintf("d%d", d.dim), nil
	case d.kind == gfx.ViewSRV:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: d.dim,
		}
		return e, fmt.Sprintf("t%d", d.dim), nil
	case d.kind == gfx.ViewUAV:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        d.format,
			ViewDimension: d.dim,
		}
		return e, fmt.Sprintf("w%d.%d", d.format, d.dim), nil
	default:
		return e, "", fmt.Errorf("%w: %s descriptor of %q in a heap table", gfx.ErrInvalidDesc, d.kind, d.res.Label())
	}
}

// entry returns the bind group entry for d at binding.
func (d *Descriptor) entry(binding uint32) gputypes.BindGroupEntry {
	if d.view != nil {
		return gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.TextureViewBinding{TextureView: d.view.NativeHandle()},
		}
	}
	b := d.res.(*Buffer)
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: d.offset, Size: d.size},
	}
}

// heap is the shader-visible descriptor heap. Every Copy registers a table
// so draws can find the descriptors a root constant refers to.
type heap struct {
	mu     sync.RWMutex
	slots  []gfx.Descriptor
	tables map[uint32]uint32
}

func newHeap(n uint32) *heap {
	return &heap{slots: make([]gfx.Descriptor, n), tables: make(map[uint32]uint32)}
}

func (h *heap) Capacity() uint32 { return uint32(len(h.slots)) }

func (h *heap) Copy(dst uint32, src []gfx.Descriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(dst)+uint64(len(src)) > uint64(len(h.slots)) {
		return fmt.Errorf("%w: [%d, %d) of %d", gfx.ErrDescriptorRange, dst, int(dst)+len(src), len(h.slots))
	}
	for _, d := range src {
		if _, ok := d.(*Descriptor); d != nil && !ok {
			return fmt.Errorf("%w: foreign descriptor %T", gfx.ErrInvalidDesc, d)
		}
	}
	copy(h.slots[dst:], src)
	if len(src) > 0 {
		h.tables[dst] = uint32(len(src))
	}
	return nil
}

func (h *heap) At(i uint32) gfx.Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(i) >= len(h.slots) {
		return nil
	}
	return h.slots[i]
}

// table returns the descriptors of the table starting at base, or nil.
func (h *heap) table(base uint32) []*Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.tables[base]
	if !ok {
		return nil
	}
	out := make([]*Descriptor, n)
	for i := range out {
		d, ok := h.slots[base+uint32(i)].(*Descriptor)
		if !ok {
			return nil
		}
		out[i] = d
	}
	return out
}

// Pipeline holds shader modules and the HAL pipelines built from them,
// one per binding signature.
type Pipeline struct {
	dev      *Device
	label    string
	graphics *gfx.GraphicsPipelineDesc
	compute  *gfx.ComputePipelineDesc
	modules  []hal.ShaderModule

	mu       sync.Mutex
	variants map[string]hal.Resource
}

// Label implements gfx.Pipeline.
func (p *Pipeline) Label() string { return p.label }

// Variants returns the number of HAL pipelines built so far.
func (p *Pipeline) Variants() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.variants)
}

// Destroy implements gfx.Pipeline.
func (p *Pipeline) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.variants {
		if p.compute != nil {
			p.dev.device.DestroyComputePipeline(v)
		} else {
			p.dev.device.DestroyRenderPipeline(v)
		}
	}
	clear(p.variants)
	for _, m := range p.modules {
		p.dev.device.DestroyShaderModule(m)
	}
	p.modules = nil
}

// variant returns the HAL pipeline compiled against layout, creating it on
// first use.
func (p *Pipeline) variant(sig string, layout hal.PipelineLayout) (hal.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.variants[sig]; ok {
		return v, nil
	}
	if len(p.modules) == 0 {
		return nil, fmt.Errorf("native: pipeline %q used after Destroy", p.label)
	}
	var (
		v   hal.Resource
		err error
	)
	if p.compute != nil {
		v, err = p.dev.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  p.label,
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     p.modules[0],
				EntryPoint: p.compute.CS.EntryPoint,
			},
		})
	} else {
		v, err = p.dev.device.CreateRenderPipeline(p.renderDesc(layout))
	}
	if err != nil {
		return nil, fmt.Errorf("native: pipeline %q: %w", p.label, err)
	}
	p.variants[sig] = v
	slogger().Debug("native: pipeline variant", "pipeline", p.label, "signature", sig)
	return v, nil
}

func (p *Pipeline) renderDesc(layout hal.PipelineLayout) *hal.RenderPipelineDescriptor {
	g := p.graphics
	desc := &hal.RenderPipelineDescriptor{
		Label:  p.label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     p.modules[0],
			EntryPoint: g.VS.EntryPoint,
			Buffers:    g.InputLayout.BufferLayouts(),
		},
		Primitive:   g.Primitive,
		Multisample: gputypes.MultisampleState{Count: max(g.SampleCount, 1), Mask: 0xFFFFFFFF},
	}
	if g.DepthFormat != gputypes.TextureFormatUndefined {
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            g.DepthFormat,
			DepthWriteEnabled: g.DepthWrite,
			DepthCompare:      g.DepthCompare,
		}
	}
	if g.PS != nil && len(p.modules) > 1 {
		targets := make([]gputypes.ColorTargetState, len(g.ColorFormats))
		for i, f := range g.ColorFormats {
			targets[i] = gputypes.ColorTargetState{Format: f, Blend: g.Blend, WriteMask: gputypes.ColorWriteMaskAll}
		}
		desc.Fragment = &hal.FragmentState{
			Module:     p.modules[1],
			EntryPoint: g.PS.EntryPoint,
			Targets:    targets,
		}
	}
	return desc
}

// shaderSource wraps bytecode for the HAL: SPIR-V when the code starts with
// the SPIR-V magic number, WGSL text otherwise.
func shaderSource(code []byte) (hal.ShaderSource, error) {
	if len(code) >= 4 && binary.LittleEndian.Uint32(code) == spirvMagic {
		if len(code)%4 != 0 {
			return hal.ShaderSource{}, errors.New("SPIR-V length is not a multiple of 4")
		}
		words := make([]uint32, len(code)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(code[i*4:])
		}
		return hal.ShaderSource{SPIRV: words}, nil
	}
	return hal.ShaderSource{WGSL: string(code)}, nil
}

func isDepth(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32FloatStencil8:
		return true
	default:
		return false
	}
}

func viewDimension(desc gfx.TextureDesc, layers uint32) gputypes.TextureViewDimension {
	switch {
	case desc.Dimension == gputypes.TextureDimension3D:
		return gputypes.TextureViewDimension3D
	case layers == 6 && desc.Depth == 6:
		return gputypes.TextureViewDimensionCube
	case layers > 1:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}
