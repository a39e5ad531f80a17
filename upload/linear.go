// Package upload provides per-frame linear allocators over CPU-visible
// buffers for constant and dynamic vertex data.
package upload

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/gfx"
)

// ConstantAlignment is the placement alignment for constant buffer views.
const ConstantAlignment = 256

// ErrExhausted is returned when an allocation does not fit.
var ErrExhausted = errors.New("upload: linear allocator exhausted")

// Allocation is a suballocation of the upload buffer.
type Allocation struct {
	Buffer     gfx.Buffer
	Offset     uint64
	Size       uint64
	GPUAddress uint64

	// CPU aliases the mapped bytes of the allocation.
	CPU []byte
}

// Linear bump-allocates from one mapped buffer. It is reset once the frame
// that used it has completed. Not safe for concurrent use.
type Linear struct {
	buf    gfx.Buffer
	offset uint64
	peak   uint64
}

// NewLinear creates a linear allocator over a new CPU-visible buffer.
func NewLinear(dev gfx.Device, label string, size uint64) (*Linear, error) {
	buf, err := dev.CreateBuffer(&gfx.BufferDesc{
		Label:        label,
		Size:         size,
		CPUVisible:   true,
		InitialState: gfx.StateGenericRead,
	})
	if err != nil {
		return nil, fmt.Errorf("upload: create %s: %w", label, err)
	}
	if buf.Mapped() == nil {
		buf.Destroy()
		return nil, fmt.Errorf("upload: %s is not mappable", label)
	}
	return &Linear{buf: buf}, nil
}

// Buffer returns the backing buffer.
func (l *Linear) Buffer() gfx.Buffer { return l.buf }

// Allocate reserves size bytes aligned to align (a power of two, or 0 for
// no alignment).
func (l *Linear) Allocate(size, align uint64) (Allocation, error) {
	off := l.offset
	if align > 1 {
		off = (off + align - 1) &^ (align - 1)
	}
	total := uint64(len(l.buf.Mapped()))
	if off+size > total {
		return Allocation{}, fmt.Errorf("%w: %d bytes at %d of %d", ErrExhausted, size, off, total)
	}
	l.offset = off + size
	l.peak = max(l.peak, l.offset)
	return Allocation{
		Buffer:     l.buf,
		Offset:     off,
		Size:       size,
		GPUAddress: l.buf.GPUAddress() + off,
		CPU:        l.buf.Mapped()[off : off+size : off+size],
	}, nil
}

// Upload copies data into a new allocation.
func (l *Linear) Upload(data []byte, align uint64) (Allocation, error) {
	a, err := l.Allocate(uint64(len(data)), align)
	if err != nil {
		return a, err
	}
	copy(a.CPU, data)
	return a, nil
}

// Used returns the bytes allocated since the last Reset.
func (l *Linear) Used() uint64 { return l.offset }

// Peak returns the largest Used value observed.
func (l *Linear) Peak() uint64 { return l.peak }

// Reset discards every allocation.
func (l *Linear) Reset() { l.offset = 0 }

// Destroy releases the backing buffer.
func (l *Linear) Destroy() {
	if l.buf != nil {
		l.buf.Destroy()
		l.buf = nil
	}
}
