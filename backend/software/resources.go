package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/framegraph/gfx"
)

// Texture is a CPU texture. Only mip 0 is stored.
type Texture struct {
	dev    *Device
	desc   gfx.TextureDesc
	texels []float32 // RGBA per texel, row-major, layer after layer
}

// Label implements gfx.Resource.
func (t *Texture) Label() string { return t.desc.Label }

// Desc implements gfx.Texture.
func (t *Texture) Desc() gfx.TextureDesc { return t.desc }

// Destroy implements gfx.Resource.
func (t *Texture) Destroy() { t.dev.release(t, t.desc.SizeBytes()) }

func (t *Texture) index(x, y int) int {
	return (y*int(t.desc.Width) + x) * 4
}

// At returns the texel at (x, y) of layer 0.
func (t *Texture) At(x, y int) [4]float32 {
	i := t.index(x, y)
	return [4]float32{t.texels[i], t.texels[i+1], t.texels[i+2], t.texels[i+3]}
}

// Set writes the texel at (x, y) of layer 0.
func (t *Texture) Set(x, y int, v [4]float32) {
	i := t.index(x, y)
	copy(t.texels[i:i+4], v[:])
}

// Fill writes v into every texel.
func (t *Texture) Fill(v [4]float32) {
	for i := 0; i < len(t.texels); i += 4 {
		copy(t.texels[i:i+4], v[:])
	}
}

// Buffer is a CPU buffer.
type Buffer struct {
	dev     *Device
	desc    gfx.BufferDesc
	data    []byte
	address uint64
}

// Label implements gfx.Resource.
func (b *Buffer) Label() string { return b.desc.Label }

// Desc implements gfx.Buffer.
func (b *Buffer) Desc() gfx.BufferDesc { return b.desc }

// Destroy implements gfx.Resource.
func (b *Buffer) Destroy() { b.dev.release(b, b.desc.Size) }

// GPUAddress implements gfx.Buffer.
func (b *Buffer) GPUAddress() uint64 { return b.address }

// Mapped implements gfx.Buffer.
func (b *Buffer) Mapped() []byte {
	if !b.desc.CPUVisible {
		return nil
	}
	return b.data
}

// Bytes returns the buffer contents regardless of visibility.
func (b *Buffer) Bytes() []byte { return b.data }

// Descriptor is a CPU descriptor.
type Descriptor struct {
	kind gfx.ViewKind
	res  gfx.Resource
	desc gfx.ViewDesc
}

// Kind implements gfx.Descriptor.
func (d *Descriptor) Kind() gfx.ViewKind { return d.kind }

// Resource implements gfx.Descriptor.
func (d *Descriptor) Resource() gfx.Resource { return d.res }

// Texture returns the viewed texture, or nil for buffer views.
func (d *Descriptor) Texture() *Texture {
	t, _ := d.res.(*Texture)
	return t
}

type heap struct {
	mu    sync.RWMutex
	slots []gfx.Descriptor
}

func newHeap(n uint32) *heap {
	return &heap{slots: make([]gfx.Descriptor, n)}
}

func (h *heap) Capacity() uint32 { return uint32(len(h.slots)) }

func (h *heap) Copy(dst uint32, src []gfx.Descriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(dst)+uint64(len(src)) > uint64(len(h.slots)) {
		return fmt.Errorf("%w: [%d, %d) of %d", gfx.ErrDescriptorRange, dst, int(dst)+len(src), len(h.slots))
	}
	copy(h.slots[dst:], src)
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

// Pipeline is a pipeline description with an optional CPU kernel.
type Pipeline struct {
	label    string
	graphics *gfx.GraphicsPipelineDesc
	compute  *gfx.ComputePipelineDesc
}

// Label implements gfx.Pipeline.
func (p *Pipeline) Label() string { return p.label }

// Destroy implements gfx.Pipeline.
func (p *Pipeline) Destroy() {}

// Graphics returns the description of a graphics pipeline, or nil.
func (p *Pipeline) Graphics() *gfx.GraphicsPipelineDesc { return p.graphics }

// Compute returns the description of a compute pipeline, or nil.
func (p *Pipeline) Compute() *gfx.ComputePipelineDesc { return p.compute }
