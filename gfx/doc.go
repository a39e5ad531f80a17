// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gfx defines the graphics device wrapper consumed by the frame
// graph, the shader and pipeline caches and the frame orchestrator.
//
// The wrapper is deliberately explicit: resources carry D3D12-style
// [ResourceState] values, barriers are recorded by the caller, descriptors
// are copied into a single shader-visible [DescriptorHeap], and frames are
// synchronized with monotonically increasing [Fence] values.
//
// Two implementations live under backend/:
//   - backend/software executes command lists eagerly on the CPU and is
//     used by tests and headless tools.
//   - backend/native adapts a gogpu/wgpu HAL device.
//
// Formats, usages and load/store ops are the gputypes values shared with the
// rest of the gogpu ecosystem.
package gfx
