// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"strings"
)

// ResourceState describes how the GPU is currently allowed to access a
// resource. States are bit flags; read states may be combined, write states
// are exclusive.
type ResourceState uint32

// Resource states.
const (
	StateCommon ResourceState = 0

	StateVertexAndConstantBuffer ResourceState = 1 << iota
	StateIndexBuffer
	StateRenderTarget
	StateUnorderedAccess
	StateDepthWrite
	StateDepthRead
	StateNonPixelShaderResource
	StatePixelShaderResource
	StateIndirectArgument
	StateCopyDst
	StateCopySrc
	StatePresent

	// StateAllShaderResource is readable from every shader stage.
	StateAllShaderResource = StateNonPixelShaderResource | StatePixelShaderResource

	// StateGenericRead is every read-only state a buffer may be in.
	StateGenericRead = StateVertexAndConstantBuffer | StateIndexBuffer |
		StateAllShaderResource | StateIndirectArgument | StateCopySrc
)

const writeStates = StateRenderTarget | StateUnorderedAccess | StateDepthWrite | StateCopyDst

var stateNames = []struct {
	s    ResourceState
	name string
}{
	{StateVertexAndConstantBuffer, "VertexAndConstantBuffer"},
	{StateIndexBuffer, "IndexBuffer"},
	{StateRenderTarget, "RenderTarget"},
	{StateUnorderedAccess, "UnorderedAccess"},
	{StateDepthWrite, "DepthWrite"},
	{StateDepthRead, "DepthRead"},
	{StateNonPixelShaderResource, "NonPixelShaderResource"},
	{StatePixelShaderResource, "PixelShaderResource"},
	{StateIndirectArgument, "IndirectArgument"},
	{StateCopyDst, "CopyDst"},
	{StateCopySrc, "CopySrc"},
	{StatePresent, "Present"},
}

// String returns the state flags joined by '|'.
func (s ResourceState) String() string {
	if s == StateCommon {
		return "Common"
	}
	var parts []string
	rest := s
	for _, n := range stateNames {
		if s&n.s != 0 {
			parts = append(parts, n.name)
			rest &^= n.s
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Has reports whether all flags of other are set in s.
func (s ResourceState) Has(other ResourceState) bool {
	return s&other == other
}

// IsWrite reports whether s contains a state that lets the GPU write.
func (s ResourceState) IsWrite() bool {
	return s&writeStates != 0
}

// IsRead reports whether s only contains read states.
func (s ResourceState) IsRead() bool {
	return s != StateCommon && !s.IsWrite()
}

// Valid reports whether s is a legal combination: at most one write state,
// and no write state mixed with read states.
func (s ResourceState) Valid() bool {
	w := s & writeStates
	if w == 0 {
		return true
	}
	if w&(w-1) != 0 {
		return false
	}
	return s == w
}
