// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ClearValue is the optimized clear value of a render target or depth
// buffer.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

// TextureDesc describes a texture.
type TextureDesc struct {
	// Label is an optional debug name.
	Label string

	Width  uint32
	Height uint32

	// Depth is the depth of a 3D texture or the array layer count.
	// Zero is treated as 1.
	Depth uint32

	// MipLevels is the number of mip levels. Zero is treated as 1.
	MipLevels uint32

	// SampleCount is the number of samples per texel. Zero is treated as 1.
	SampleCount uint32

	Dimension gputypes.TextureDimension
	Format    gputypes.TextureFormat

	// Usage holds the bind flags the texture is created with.
	Usage gputypes.TextureUsage

	// Clear is the optional clear value used by Clear load ops.
	Clear *ClearValue

	// InitialState is the state the texture is in after creation.
	InitialState ResourceState
}

// Normalized returns a copy of d with zero counts replaced by 1.
func (d TextureDesc) Normalized() TextureDesc {
	if d.Depth == 0 {
		d.Depth = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	if d.Dimension == gputypes.TextureDimensionUndefined {
		d.Dimension = gputypes.TextureDimension2D
	}
	return d
}

// SizeBytes estimates the memory footprint of the texture.
func (d TextureDesc) SizeBytes() uint64 {
	n := d.Normalized()
	texel := uint64(BytesPerTexel(n.Format))
	var total uint64
	w, h := uint64(n.Width), uint64(n.Height)
	for mip := uint32(0); mip < n.MipLevels; mip++ {
		total += max(w, 1) * max(h, 1) * texel
		w /= 2
		h /= 2
	}
	return total * uint64(n.Depth) * uint64(n.SampleCount)
}

// String returns a short description used in diagnostics.
func (d TextureDesc) String() string {
	n := d.Normalized()
	return fmt.Sprintf("%dx%dx%d %s mips=%d samples=%d", n.Width, n.Height, n.Depth, n.Format, n.MipLevels, n.SampleCount)
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug name.
	Label string

	// Size is the size in bytes.
	Size uint64

	// Stride is the element stride of structured buffers, 0 for raw buffers.
	Stride uint32

	Usage gputypes.BufferUsage

	// CPUVisible makes the buffer host mapped for its whole lifetime.
	CPUVisible bool

	// InitialState is the state the buffer is in after creation.
	InitialState ResourceState
}

// Resource is a GPU allocation owned by a device.
type Resource interface {
	// Label returns the debug name.
	Label() string

	// Destroy releases the allocation. The resource must not be in use by
	// the GPU.
	Destroy()
}

// Texture is a GPU texture.
type Texture interface {
	Resource
	Desc() TextureDesc
}

// Buffer is a GPU buffer.
type Buffer interface {
	Resource
	Desc() BufferDesc

	// GPUAddress returns the virtual address used for root CBV bindings.
	GPUAddress() uint64

	// Mapped returns the host view of a CPU-visible buffer, or nil.
	Mapped() []byte
}

// ViewKind selects the kind of a resource view.
type ViewKind uint8

// View kinds.
const (
	ViewSRV ViewKind = iota
	ViewUAV
	ViewRTV
	ViewDSV
)

// String returns the view kind name.
func (k ViewKind) String() string {
	switch k {
	case ViewSRV:
		return "SRV"
	case ViewUAV:
		return "UAV"
	case ViewRTV:
		return "RTV"
	case ViewDSV:
		return "DSV"
	default:
		return fmt.Sprintf("ViewKind(%d)", int(k))
	}
}

// ViewDesc describes a resource view. The zero value views the whole
// resource with its own format.
type ViewDesc struct {
	Kind ViewKind

	// Format overrides the resource format when not Undefined.
	Format gputypes.TextureFormat

	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	LayerCount     uint32

	// ReadOnlyDepth creates a DSV that can be bound while the texture is
	// also read as a shader resource.
	ReadOnlyDepth bool

	// Offset and Size select a byte range of a buffer. Size 0 is the whole
	// buffer.
	Offset uint64
	Size   uint64
}

// Descriptor is a CPU (offline) descriptor. It is copied into the
// shader-visible heap before shaders can use it.
type Descriptor interface {
	Kind() ViewKind
	Resource() Resource
}

// DescriptorHeap is the single shader-visible descriptor heap.
type DescriptorHeap interface {
	// Capacity returns the number of slots.
	Capacity() uint32

	// Copy writes src into consecutive slots starting at dst.
	Copy(dst uint32, src []Descriptor) error

	// At returns the descriptor in slot i, or nil.
	At(i uint32) Descriptor
}

// BytesPerTexel returns the size of one texel of format f, or 4 for
// formats it does not know about.
func BytesPerTexel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return 1
	case gputypes.TextureFormatR16Float, gputypes.TextureFormatR16Uint,
		gputypes.TextureFormatR16Sint, gputypes.TextureFormatRG8Unorm:
		return 2
	case gputypes.TextureFormatRG16Float, gputypes.TextureFormatR32Float,
		gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG11B10Ufloat,
		gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth24Plus:
		return 4
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}
