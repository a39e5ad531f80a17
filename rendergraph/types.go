// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
)

// PassType classifies the queue work of a pass.
type PassType uint8

// Pass types.
const (
	PassGraphics PassType = iota
	PassCompute
	PassCopy
)

func (t PassType) String() string {
	switch t {
	case PassGraphics:
		return "Graphics"
	case PassCompute:
		return "Compute"
	case PassCopy:
		return "Copy"
	}
	return "Unknown"
}

// PassFlags modify how a pass is compiled.
type PassFlags uint8

const (
	// ForceNoCull keeps the pass even when nothing consumes its outputs.
	ForceNoCull PassFlags = 1 << iota

	// SkipAutoRenderPass stops the graph from opening a render pass around
	// the execute function; the pass binds its own attachments.
	SkipAutoRenderPass
)

func (f PassFlags) String() string {
	var parts []string
	if f&ForceNoCull != 0 {
		parts = append(parts, "ForceNoCull")
	}
	if f&SkipAutoRenderPass != 0 {
		parts = append(parts, "SkipAutoRenderPass")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// LoadOp is what an attachment holds when its pass begins.
type LoadOp uint8

// Load operations.
const (
	LoadDiscard LoadOp = iota
	LoadPreserve
	LoadClear
	LoadNoAccess
)

// StoreOp is what happens to an attachment when its pass ends.
type StoreOp uint8

// Store operations.
const (
	StorePreserve StoreOp = iota
	StoreDiscard
	StoreNoAccess
)

// LoadStoreOp pairs the load and store operation of an attachment.
type LoadStoreOp struct {
	Load  LoadOp
	Store StoreOp
}

// Common attachment operations.
var (
	ClearPreserve    = LoadStoreOp{LoadClear, StorePreserve}
	PreservePreserve = LoadStoreOp{LoadPreserve, StorePreserve}
	DiscardPreserve  = LoadStoreOp{LoadDiscard, StorePreserve}
	ClearDiscard     = LoadStoreOp{LoadClear, StoreDiscard}
	PreserveDiscard  = LoadStoreOp{LoadPreserve, StoreDiscard}
	NoAccess         = LoadStoreOp{LoadNoAccess, StoreNoAccess}
)

// expectsContents reports whether the attachment keeps prior contents.
func (op LoadStoreOp) expectsContents() bool { return op.Load == LoadPreserve }

func (op LoadOp) gpu() gputypes.LoadOp {
	switch op {
	case LoadClear, LoadDiscard:
		return gputypes.LoadOpClear
	}
	return gputypes.LoadOpLoad
}

func (op StoreOp) gpu() gputypes.StoreOp {
	if op == StorePreserve {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

// ReadAccess is the shader or fixed-function stage reading a resource.
type ReadAccess uint8

// Read accesses.
const (
	ReadPixelShader ReadAccess = iota
	ReadNonPixelShader
	ReadAllShader
	ReadIndirectArgs
	ReadVertex
	ReadIndex
	ReadConstant
)

func (a ReadAccess) state() gfx.ResourceState {
	switch a {
	case ReadPixelShader:
		return gfx.StatePixelShaderResource
	case ReadNonPixelShader:
		return gfx.StateNonPixelShaderResource
	case ReadAllShader:
		return gfx.StateAllShaderResource
	case ReadIndirectArgs:
		return gfx.StateIndirectArgument
	case ReadVertex, ReadConstant:
		return gfx.StateVertexAndConstantBuffer
	case ReadIndex:
		return gfx.StateIndexBuffer
	}
	return gfx.StateCommon
}

func (a ReadAccess) shader() bool { return a <= ReadAllShader }

// accessKind is the recorded kind of a resource access.
type accessKind uint8

const (
	accessRead accessKind = iota
	accessUAV
	accessRenderTarget
	accessDepthStencil
	accessDepthRead
	accessCopySrc
	accessCopyDst
)

func (k accessKind) String() string {
	return [...]string{"read", "uav", "render-target", "depth-stencil", "depth-read", "copy-src", "copy-dst"}[k]
}

func (k accessKind) writes() bool {
	return k == accessUAV || k == accessRenderTarget || k == accessDepthStencil || k == accessCopyDst
}

func (k accessKind) attachment() bool {
	return k == accessRenderTarget || k == accessDepthStencil || k == accessDepthRead
}

// handle refers to one access record of one pass. The zero handle is
// invalid.
type handle struct {
	pass   int32
	access int32 // index + 1
}

// Valid reports whether the handle was returned by a builder.
func (h handle) Valid() bool { return h.access > 0 }

type textureRef struct{ handle }

func (r textureRef) textureHandle() handle { return r.handle }

type bufferRef struct{ handle }

func (r bufferRef) bufferHandle() handle { return r.handle }

// TextureHandle is any texture access handle.
type TextureHandle interface{ textureHandle() handle }

// BufferHandle is any buffer access handle.
type BufferHandle interface{ bufferHandle() handle }

// Texture access handles.
type (
	TextureReadHandle    struct{ textureRef }
	TextureWriteHandle   struct{ textureRef }
	RenderTargetHandle   struct{ textureRef }
	DepthStencilHandle   struct{ textureRef }
	TextureCopySrcHandle struct{ textureRef }
	TextureCopyDstHandle struct{ textureRef }
)

// Buffer access handles.
type (
	BufferReadHandle    struct{ bufferRef }
	BufferWriteHandle   struct{ bufferRef }
	BufferCopySrcHandle struct{ bufferRef }
	BufferCopyDstHandle struct{ bufferRef }
)
