// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene holds the entities the frame orchestrator renders.
//
// A [Registry] is a flat entity-component store: entities are plain ids and
// components are stored per type, densely, so that [View] and [View2] walk
// only the entities carrying the requested components. The components
// describe what the renderer needs (transforms, submeshes, materials,
// lights, bounding boxes, emitters, decals, the skybox and the parent/child
// relationship); asset import fills them in, this package only stores and
// culls them.
//
// [Camera] produces the view and projection matrices and the [Frustum] used
// by [ComputeVisibility] to build the visible sets of the camera and of each
// light.
package scene
