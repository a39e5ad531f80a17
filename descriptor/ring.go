// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor manages the shader-visible descriptor heap.
//
// The heap is split into a reserved prefix of static descriptors and a ring
// of per-frame allocations. Allocation bumps the ring head; when a frame ends
// its head is recorded with the frame's fence value and the tail only
// advances past it once that value has completed on the GPU.
package descriptor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framegraph/gfx"
)

var (
	// ErrRingFull is returned when an allocation does not fit in the
	// retired part of the ring.
	ErrRingFull = errors.New("descriptor: ring exhausted")

	// ErrReserveTooLarge is returned when the static prefix does not leave
	// room for a ring.
	ErrReserveTooLarge = errors.New("descriptor: reserve exceeds heap capacity")
)

type frameHead struct {
	frame uint64
	head  uint64
}

// Ring allocates contiguous descriptor ranges from a heap.
// It is safe for concurrent use.
type Ring struct {
	mu sync.Mutex

	heap     gfx.DescriptorHeap
	reserved uint32
	size     uint64

	// head and tail are monotonic; positions are taken modulo size.
	head, tail uint64
	pending    []frameHead
}

// NewRing creates a ring over heap keeping the first reserve slots for
// static descriptors.
func NewRing(heap gfx.DescriptorHeap, reserve uint32) (*Ring, error) {
	if reserve >= heap.Capacity() {
		return nil, fmt.Errorf("%w: %d of %d", ErrReserveTooLarge, reserve, heap.Capacity())
	}
	return &Ring{
		heap:     heap,
		reserved: reserve,
		size:     uint64(heap.Capacity() - reserve),
	}, nil
}

// Heap returns the underlying heap.
func (r *Ring) Heap() gfx.DescriptorHeap { return r.heap }

// Reserved returns the size of the static prefix.
func (r *Ring) Reserved() uint32 { return r.reserved }

// Size returns the number of ring slots.
func (r *Ring) Size() uint32 { return uint32(r.size) }

// Used returns the number of slots not yet retired.
func (r *Ring) Used() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint32(r.head - r.tail)
}

// Allocate returns the heap index of n contiguous slots. Ranges never wrap;
// the slots skipped at the end of the ring are retired with the frame.
func (r *Ring) Allocate(n uint32) (uint32, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: zero-sized allocation", gfx.ErrDescriptorRange)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	need := uint64(n)
	pos := r.head % r.size
	if pos+need > r.size {
		// Pad to the end of the ring.
		need += r.size - pos
		pos = 0
	}
	if r.head-r.tail+need > r.size {
		return 0, fmt.Errorf("%w: %d slots requested, %d of %d in use",
			ErrRingFull, n, r.head-r.tail, r.size)
	}
	r.head += need
	return r.reserved + uint32(pos), nil
}

// AllocateAndCopy allocates len(src) slots and copies src into them.
func (r *Ring) AllocateAndCopy(src []gfx.Descriptor) (uint32, error) {
	base, err := r.Allocate(uint32(len(src)))
	if err != nil {
		return 0, err
	}
	if err := r.heap.Copy(base, src); err != nil {
		return 0, err
	}
	return base, nil
}

// FinishCurrentFrame closes the allocations made since the previous call
// and tags them with frame, the fence value signaled for it.
func (r *Ring) FinishCurrentFrame(frame uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, frameHead{frame: frame, head: r.head})
}

// ReleaseCompletedFrames retires every frame whose value is at most
// completed.
func (r *Ring) ReleaseCompletedFrames(completed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.pending {
		if f.frame > completed {
			break
		}
		r.tail = f.head
		n++
	}
	r.pending = r.pending[n:]
}

// InFlight returns the number of finished frames not yet retired.
func (r *Ring) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
