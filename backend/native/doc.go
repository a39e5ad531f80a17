// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements gfx.Device on top of the gogpu/wgpu HAL.
//
// Resource states map onto HAL usage transitions, fences map onto queue
// submission indices and the swapchain is a ring of offscreen textures.
//
// HAL pipelines have fixed bind group layouts while gfx passes bind
// resources through root constants and a descriptor heap. The device
// bridges the two with two bind groups per draw:
//
//	group 0: root CBVs (slot 0 uniform, slot 1 read-only storage)
//	group 1: the heap table named by the first root constant, followed by
//	         the remaining root constants as a uniform block
//
// A root constant starts a heap table when it equals the destination of a
// DescriptorHeap.Copy. Pipelines are compiled lazily per layout signature.
//
// Building with the nogpu tag leaves the package empty and unregistered.
package native
