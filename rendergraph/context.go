// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"

	"github.com/gogpu/framegraph/gfx"
)

// Context resolves the handles of one pass while it executes. Misusing a
// handle aborts the pass with an *Error.
type Context struct {
	g *Graph
	p *pass
}

func (c *Context) violate(res string, err error) {
	panic(contractViolation{&Error{Pass: c.p.name, Resource: res, Err: err}})
}

func (c *Context) resolve(h handle) (*access, *resource) {
	if !h.Valid() || int(h.pass) != c.p.index || int(h.access) > len(c.p.accesses) {
		c.violate("", fmt.Errorf("%w: handle %d/%d", ErrHandle, h.pass, h.access))
	}
	a := &c.p.accesses[h.access-1]
	return a, c.g.resources[a.res]
}

// PassName returns the name of the executing pass.
func (c *Context) PassName() string { return c.p.name }

// Device returns the device.
func (c *Context) Device() gfx.Device { return c.g.dev }

// Blackboard returns the per-frame blackboard.
func (c *Context) Blackboard() *Blackboard { return c.g.bb }

// Viewport returns the size of the automatic render pass, or the size set
// with Builder.SetViewport.
func (c *Context) Viewport() (width, height uint32) {
	if c.p.renderPass != nil {
		return c.p.renderPass.Width, c.p.renderPass.Height
	}
	return c.p.viewportW, c.p.viewportH
}

// Texture returns the physical texture behind h.
func (c *Context) Texture(h TextureHandle) gfx.Texture {
	_, r := c.resolve(h.textureHandle())
	return r.texture
}

// Buffer returns the physical buffer behind h.
func (c *Context) Buffer(h BufferHandle) gfx.Buffer {
	_, r := c.resolve(h.bufferHandle())
	return r.buffer
}

func (c *Context) descriptor(h handle) gfx.Descriptor {
	a, r := c.resolve(h)
	if a.view == nil {
		c.violate(r.name.str, fmt.Errorf("%w: %s access has no view", ErrUnsupportedAccess, a.kind))
	}
	return a.view
}

// SRV returns the shader resource view of h.
func (c *Context) SRV(h TextureReadHandle) gfx.Descriptor { return c.descriptor(h.handle) }

// UAV returns the unordered access view of h.
func (c *Context) UAV(h TextureWriteHandle) gfx.Descriptor { return c.descriptor(h.handle) }

// RTV returns the render target view of h.
func (c *Context) RTV(h RenderTargetHandle) gfx.Descriptor { return c.descriptor(h.handle) }

// DSV returns the depth-stencil view of h.
func (c *Context) DSV(h DepthStencilHandle) gfx.Descriptor { return c.descriptor(h.handle) }

// BufferSRV returns the shader resource view of a buffer read by a shader.
func (c *Context) BufferSRV(h BufferReadHandle) gfx.Descriptor { return c.descriptor(h.handle) }

// BufferUAV returns the unordered access view of h.
func (c *Context) BufferUAV(h BufferWriteHandle) gfx.Descriptor { return c.descriptor(h.handle) }

// AllocateDescriptors reserves n contiguous shader-visible slots in the
// current frame's slice of the descriptor ring and returns the first index.
func (c *Context) AllocateDescriptors(n uint32) uint32 {
	if c.g.ring == nil {
		c.violate("", ErrNoDescriptorRing)
	}
	base, err := c.g.ring.Allocate(n)
	if err != nil {
		c.violate("", err)
	}
	return base
}

// CopyDescriptors writes src into the ring starting at base.
func (c *Context) CopyDescriptors(base uint32, src ...gfx.Descriptor) {
	if c.g.ring == nil {
		c.violate("", ErrNoDescriptorRing)
	}
	if err := c.g.ring.Heap().Copy(base, src); err != nil {
		c.violate("", err)
	}
}

// Bind allocates len(src) slots, copies src into them and returns the base
// index, ready to pass as a bindless root constant.
func (c *Context) Bind(src ...gfx.Descriptor) uint32 {
	base := c.AllocateDescriptors(uint32(len(src)))
	c.CopyDescriptors(base, src...)
	return base
}
