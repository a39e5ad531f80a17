// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendergraph schedules a frame as a graph of GPU passes.
//
// A frame is described by adding passes to a [Graph]. Each pass has a setup
// function, run immediately by AddPass, that declares the virtual resources
// it creates and the accesses it makes through a [Builder], and an execute
// function that records commands later, resolving the handles returned by
// the builder through a [Context].
//
// [Graph.Compile] turns the declarations into an execution plan:
//
//   - passes that contribute nothing to an imported, exported or final
//     resource are culled, unless flagged ForceNoCull;
//   - the survivors are sorted topologically, ties broken by insertion order;
//   - transient resources get lifetimes and are packed first-fit onto pooled
//     physical resources whose lifetimes do not overlap;
//   - the state of every physical resource is tracked across passes and
//     transition, UAV and aliasing barriers are batched before each pass;
//   - graphics passes with attachments get an automatic render pass.
//
// All validation happens in Compile. [Graph.Execute] records the plan into a
// single command list; it only fails when pass code misuses a handle, which
// is reported as an [*Error] naming the pass and resource.
//
// A Graph is built, compiled and executed by one goroutine and discarded at
// the end of the frame. Physical resources outlive it in a [ResourcePool].
package rendergraph
