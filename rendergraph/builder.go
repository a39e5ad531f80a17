// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"

	"github.com/gogpu/framegraph/gfx"
)

// Builder records the declarations and accesses of one pass. It is only
// valid inside the setup function it was passed to.
type Builder struct {
	g *Graph
	p *pass
}

// PassName returns the name of the pass being built.
func (b *Builder) PassName() string { return b.p.name }

// Blackboard returns the per-frame blackboard.
func (b *Builder) Blackboard() *Blackboard { return b.g.bb }

func (b *Builder) fail(res string, err error) { b.g.fail(b.p.name, res, err) }

// DeclareTexture creates a transient texture owned by this pass.
func (b *Builder) DeclareTexture(name Name, desc gfx.TextureDesc) {
	if desc.Width == 0 || desc.Height == 0 {
		b.fail(name.str, fmt.Errorf("%w: zero texture size", gfx.ErrInvalidDesc))
		return
	}
	r := b.g.declare(name, kindTexture, b.p.name, b.p.index)
	if r == nil {
		return
	}
	if desc.Label == "" {
		desc.Label = name.str
	}
	r.tdesc = desc.Normalized()
}

// DeclareBuffer creates a transient buffer owned by this pass.
func (b *Builder) DeclareBuffer(name Name, desc gfx.BufferDesc) {
	if desc.Size == 0 {
		b.fail(name.str, fmt.Errorf("%w: zero buffer size", gfx.ErrInvalidDesc))
		return
	}
	r := b.g.declare(name, kindBuffer, b.p.name, b.p.index)
	if r == nil {
		return
	}
	if desc.Label == "" {
		desc.Label = name.str
	}
	r.bdesc = desc
}

// IsTextureDeclared reports whether name is a texture declared by an
// earlier pass or imported.
func (b *Builder) IsTextureDeclared(name Name) bool { return b.g.IsTextureDeclared(name) }

// IsBufferDeclared reports whether name is a buffer declared by an earlier
// pass or imported.
func (b *Builder) IsBufferDeclared(name Name) bool { return b.g.IsBufferDeclared(name) }

// SetViewport sets the size of the automatic render pass, viewport and
// scissor. It defaults to the size of the first attachment.
func (b *Builder) SetViewport(width, height uint32) {
	b.p.viewportW, b.p.viewportH = width, height
}

// ReadTexture records a shader read of name.
func (b *Builder) ReadTexture(name Name, acc ReadAccess) TextureReadHandle {
	if !acc.shader() {
		b.fail(name.str, fmt.Errorf("%w: texture read as %d", ErrUnsupportedAccess, acc))
		return TextureReadHandle{}
	}
	h := b.access(name, kindTexture, accessRead, acc, acc.state(), LoadStoreOp{})
	return TextureReadHandle{textureRef{h}}
}

// WriteTexture records an unordered access write of name.
func (b *Builder) WriteTexture(name Name) TextureWriteHandle {
	h := b.access(name, kindTexture, accessUAV, 0, gfx.StateUnorderedAccess, LoadStoreOp{})
	return TextureWriteHandle{textureRef{h}}
}

// WriteRenderTarget records a color attachment write of name.
func (b *Builder) WriteRenderTarget(name Name, op LoadStoreOp) RenderTargetHandle {
	h := b.access(name, kindTexture, accessRenderTarget, 0, gfx.StateRenderTarget, op)
	return RenderTargetHandle{textureRef{h}}
}

// WriteDepthStencil records a depth-stencil attachment write of name.
func (b *Builder) WriteDepthStencil(name Name, op LoadStoreOp) DepthStencilHandle {
	h := b.access(name, kindTexture, accessDepthStencil, 0, gfx.StateDepthWrite, op)
	return DepthStencilHandle{textureRef{h}}
}

// ReadDepthStencil binds name as a read-only depth-stencil attachment.
func (b *Builder) ReadDepthStencil(name Name, op LoadStoreOp) DepthStencilHandle {
	h := b.access(name, kindTexture, accessDepthRead, 0, gfx.StateDepthRead, op)
	return DepthStencilHandle{textureRef{h}}
}

// ReadCopySrcTexture records name as a copy source.
func (b *Builder) ReadCopySrcTexture(name Name) TextureCopySrcHandle {
	h := b.access(name, kindTexture, accessCopySrc, 0, gfx.StateCopySrc, LoadStoreOp{})
	return TextureCopySrcHandle{textureRef{h}}
}

// WriteCopyDstTexture records name as a copy destination.
func (b *Builder) WriteCopyDstTexture(name Name) TextureCopyDstHandle {
	h := b.access(name, kindTexture, accessCopyDst, 0, gfx.StateCopyDst, LoadStoreOp{})
	return TextureCopyDstHandle{textureRef{h}}
}

// ReadBuffer records a read of name.
func (b *Builder) ReadBuffer(name Name, acc ReadAccess) BufferReadHandle {
	h := b.access(name, kindBuffer, accessRead, acc, acc.state(), LoadStoreOp{})
	return BufferReadHandle{bufferRef{h}}
}

// WriteBuffer records an unordered access write of name.
func (b *Builder) WriteBuffer(name Name) BufferWriteHandle {
	h := b.access(name, kindBuffer, accessUAV, 0, gfx.StateUnorderedAccess, LoadStoreOp{})
	return BufferWriteHandle{bufferRef{h}}
}

// ReadCopySrcBuffer records name as a copy source.
func (b *Builder) ReadCopySrcBuffer(name Name) BufferCopySrcHandle {
	h := b.access(name, kindBuffer, accessCopySrc, 0, gfx.StateCopySrc, LoadStoreOp{})
	return BufferCopySrcHandle{bufferRef{h}}
}

// WriteCopyDstBuffer records name as a copy destination.
func (b *Builder) WriteCopyDstBuffer(name Name) BufferCopyDstHandle {
	h := b.access(name, kindBuffer, accessCopyDst, 0, gfx.StateCopyDst, LoadStoreOp{})
	return BufferCopyDstHandle{bufferRef{h}}
}

func (b *Builder) access(name Name, kind resourceKind, ak accessKind, ra ReadAccess, state gfx.ResourceState, op LoadStoreOp) handle {
	r := b.g.lookup(name, kind, b.p.name)
	if r == nil {
		return handle{}
	}
	p := b.p
	if ak.attachment() && p.typ != PassGraphics {
		b.fail(name.str, fmt.Errorf("%w: %s attachment in %s pass", ErrUnsupportedAccess, ak, p.typ))
		return handle{}
	}

	for _, prev := range p.accesses {
		if prev.res != r.id {
			continue
		}
		switch {
		case prev.kind.writes() && ak.writes():
			b.fail(name.str, fmt.Errorf("%w: %s and %s", ErrIncompatibleAccess, prev.kind, ak))
			return handle{}
		case prev.kind.writes() || ak.writes():
			b.fail(name.str, fmt.Errorf("%w: %s and %s", ErrReadWrite, prev.kind, ak))
			return handle{}
		case !(prev.state | state).Valid():
			b.fail(name.str, fmt.Errorf("%w: %s and %s", ErrIncompatibleAccess, prev.state, state))
			return handle{}
		}
	}

	a := access{res: r.id, kind: ak, read: ra, state: state, ops: op}
	if ak.writes() {
		p.addDep(&p.deps, r.lastWriter)
		for _, reader := range r.readers {
			p.addDep(&p.order, reader)
		}
		r.readers = r.readers[:0]
		r.lastWriter = p.index
		r.version++
	} else {
		if r.lastWriter < 0 && !r.imported {
			b.fail(name.str, ErrReadBeforeWrite)
			return handle{}
		}
		p.addDep(&p.deps, r.lastWriter)
		r.readers = append(r.readers, p.index)
	}
	a.version = r.version
	p.accesses = append(p.accesses, a)
	return handle{pass: int32(p.index), access: int32(len(p.accesses))}
}
