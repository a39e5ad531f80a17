// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Device errors.
var (
	// ErrOutOfMemory is returned when an allocation does not fit in device
	// memory.
	ErrOutOfMemory = errors.New("gfx: out of device memory")

	// ErrDeviceLost is returned when the device was removed or reset.
	ErrDeviceLost = errors.New("gfx: device lost")

	// ErrInvalidDesc is returned for malformed resource descriptions.
	ErrInvalidDesc = errors.New("gfx: invalid descriptor")

	// ErrDescriptorRange is returned when a heap copy runs past the heap.
	ErrDescriptorRange = errors.New("gfx: descriptor range out of bounds")

	// ErrUnsupported is returned for operations a device cannot perform.
	ErrUnsupported = errors.New("gfx: unsupported operation")
)

// Device creates resources and records and submits command lists.
//
// A Device is created by a backend and destroyed after every object created
// from it (caches, graphs, renderers).
type Device interface {
	// Name returns the backend name.
	Name() string

	CreateTexture(desc *TextureDesc) (Texture, error)
	CreateBuffer(desc *BufferDesc) (Buffer, error)

	// CreateView creates a CPU descriptor for r.
	CreateView(r Resource, desc *ViewDesc) (Descriptor, error)

	// DescriptorHeap returns the shader-visible heap.
	DescriptorHeap() DescriptorHeap

	CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc *ComputePipelineDesc) (Pipeline, error)

	CreateFence() (Fence, error)

	// CommandList returns the graphics command list owned by frame slot.
	CommandList(slot int) CommandList

	// Submit executes a closed command list and then signals fence with
	// value on the same queue.
	Submit(cmd CommandList, fence Fence, value uint64) error

	// Swapchain returns the presentation chain.
	Swapchain() Swapchain

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	Destroy()
}

// Fence is a monotonically increasing GPU timeline value.
type Fence interface {
	// CompletedValue returns the last value the GPU reached.
	CompletedValue() uint64

	// Wait blocks until the fence reaches value.
	Wait(value uint64) error

	Destroy()
}

// Swapchain is a ring of backbuffers.
type Swapchain interface {
	// Count returns the number of backbuffers.
	Count() int

	// Current returns the index of the backbuffer to render into.
	Current() int

	Backbuffer(i int) Texture
	Format() gputypes.TextureFormat

	// Present queues the current backbuffer for display and advances
	// Current.
	Present() error

	Resize(width, height uint32) error
}

// Viewport is a viewport rectangle with depth range.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle.
type Rect struct {
	X, Y, Width, Height uint32
}

// ColorAttachment is a render target bound by a render pass.
type ColorAttachment struct {
	View       Descriptor
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor [4]float32
}

// DepthAttachment is the depth-stencil target bound by a render pass.
type DepthAttachment struct {
	View         Descriptor
	DepthLoadOp  gputypes.LoadOp
	DepthStoreOp gputypes.StoreOp
	ClearDepth   float32
	ClearStencil uint8
	ReadOnly     bool
}

// RenderPassDesc describes a render pass.
type RenderPassDesc struct {
	Label         string
	Width, Height uint32
	Colors        []ColorAttachment
	Depth         *DepthAttachment
}

// CommandList records GPU commands. Command lists are not safe for
// concurrent use.
type CommandList interface {
	// Begin resets the list for recording.
	Begin() error

	// End closes the list.
	End() error

	// ResourceBarriers records a batch of barriers as one call.
	ResourceBarriers(barriers []Barrier)

	BeginRenderPass(desc *RenderPassDesc)
	EndRenderPass()

	SetViewport(v Viewport)
	SetScissor(r Rect)

	SetPipeline(p Pipeline)

	// SetRootConstants sets 32-bit constants visible to all stages; passes
	// use them to hand bindless descriptor indices to shaders.
	SetRootConstants(values ...uint32)

	// SetRootCBV binds a constant buffer by GPU address.
	SetRootCBV(slot uint32, address uint64)

	SetVertexBuffer(slot uint32, b Buffer, offset uint64)
	SetIndexBuffer(b Buffer, format gputypes.IndexFormat, offset uint64)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	CopyTexture(dst, src Texture)
	CopyBuffer(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)

	// PushMarker and PopMarker bracket a named debug region.
	PushMarker(name string)
	PopMarker()
}
