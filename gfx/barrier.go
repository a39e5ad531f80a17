// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import "fmt"

// BarrierKind is the kind of a resource barrier.
type BarrierKind uint8

// Barrier kinds.
const (
	// BarrierTransition moves a resource from one state to another.
	BarrierTransition BarrierKind = iota

	// BarrierUAV orders two unordered-access writes to the same resource.
	BarrierUAV

	// BarrierAliasing switches the active tenant of a shared allocation.
	BarrierAliasing
)

// String returns the barrier kind name.
func (k BarrierKind) String() string {
	switch k {
	case BarrierTransition:
		return "Transition"
	case BarrierUAV:
		return "UAV"
	case BarrierAliasing:
		return "Aliasing"
	default:
		return fmt.Sprintf("BarrierKind(%d)", int(k))
	}
}

// AllSubresources selects every mip level and array layer.
var AllSubresources = SubresourceRange{}

// SubresourceRange selects mips and layers of a texture. A zero count means
// "all remaining".
type SubresourceRange struct {
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// Barrier is a single resource barrier.
type Barrier struct {
	Kind BarrierKind

	// Resource is the transitioned resource, the UAV resource, or the
	// allocation whose tenant changes.
	Resource Resource

	// Before and After are only meaningful for transitions.
	Before ResourceState
	After  ResourceState

	Subresources SubresourceRange

	// TenantBefore and TenantAfter name the virtual resources involved in an
	// aliasing barrier.
	TenantBefore string
	TenantAfter  string
}

// String formats the barrier for logs and graph dumps.
func (b Barrier) String() string {
	name := "<nil>"
	if b.Resource != nil {
		name = b.Resource.Label()
	}
	switch b.Kind {
	case BarrierTransition:
		return fmt.Sprintf("Transition(%s: %s -> %s)", name, b.Before, b.After)
	case BarrierUAV:
		return fmt.Sprintf("UAV(%s)", name)
	case BarrierAliasing:
		return fmt.Sprintf("Aliasing(%s: %s -> %s)", name, b.TenantBefore, b.TenantAfter)
	default:
		return b.Kind.String()
	}
}

// Transition is shorthand for a whole-resource transition barrier.
func Transition(r Resource, before, after ResourceState) Barrier {
	return Barrier{Kind: BarrierTransition, Resource: r, Before: before, After: after}
}
