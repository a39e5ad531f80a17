// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package passes is the pass library of the deferred renderer.
//
// Every Add function declares one feature's passes on a render graph. The
// passes talk to each other only through resource names and the
// per-frame blackboard (FrameData, SceneData); none of them knows which
// pass produced its inputs or which consumes its outputs, so the graph
// decides ordering, culling and barriers.
//
// Pipelines are registered once with Register and looked up by ID while
// executing, so a hot-reloaded pipeline is picked up the next frame.
package passes
