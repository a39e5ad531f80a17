// Package framegraph renders a scene through a render graph.
//
// # Overview
//
// A [Renderer] owns everything a frame needs beyond the scene itself: the
// shader and pipeline caches, the shader-visible descriptor ring, a pool of
// transient graph resources, per-slot upload allocators and the frame fence.
// Each call to [Renderer.Render] runs the fixed frame sequence:
//
//  1. Acquire the current backbuffer slot, waiting for its fence, and
//     recycle the descriptor ring, upload allocator and release queue.
//  2. Apply pending shader hot reloads at the frame boundary.
//  3. Update the camera and compute the visible sets.
//  4. Upload frame constants and the light table and publish their GPU
//     addresses on the blackboard.
//  5. Declare the passes: GBuffer, shadows, deferred lighting, sky,
//     forward, particles, decals, volumetrics, the postprocess chain,
//     tonemapping and the UI overlay.
//  6. Compile and execute the graph, submit, and present.
//
// # Quick Start
//
//	reg := scene.NewRegistry()
//	cam := scene.NewCamera(scene.Vec3{0, 2, 8}, 16.0/9)
//	r, err := framegraph.New(reg, cam, framegraph.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Destroy()
//	for running {
//	    if err := r.Render(dt); err != nil {
//	        break
//	    }
//	}
//
// # Frame Slots
//
// Every backbuffer has a slot moving through Free, CPURecording,
// GPUInFlight and Presenting. Acquire blocks while the slot's previous
// frame is still on the GPU. Resources replaced while frames may still
// reference them go through a release queue that destroys them only after
// as many fence values as there are slots have completed.
//
// # Errors
//
// Graph contract violations, device loss and fence wait failures are fatal.
// They are logged at Error level and handed to the fatal handler, which
// panics unless [WithFatalHandler] installs another one. Shader compile
// errors during hot reload are logged and keep the previous pipeline.
//
// # Logging
//
// framegraph is silent by default. [SetLogger] enables structured logging
// for the renderer and every sub-package.
package framegraph
