// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
)

// UIFunc records an overlay into the backbuffer inside an open render
// pass.
type UIFunc func(ctx *rendergraph.Context, cmd gfx.CommandList)

// Library adds the renderer's passes to a graph. Its persistent
// resources outlive single frames and are released with Destroy.
type Library struct {
	pipelines *pipeline.Cache
	retire    func(gfx.Resource)

	particles gfx.Buffer
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithRetire routes persistent resources replaced while frames may still
// reference them to fn instead of destroying them immediately.
func WithRetire(fn func(gfx.Resource)) LibraryOption {
	return func(l *Library) { l.retire = fn }
}

// NewLibrary returns a library drawing with the pipelines of c.
func NewLibrary(c *pipeline.Cache, opts ...LibraryOption) *Library {
	l := &Library{pipelines: c}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Destroy releases the persistent resources. The GPU must be idle.
func (l *Library) Destroy() {
	if l.particles != nil {
		l.particles.Destroy()
		l.particles = nil
	}
}

func (l *Library) dispose(r gfx.Resource) {
	if l.retire != nil {
		l.retire(r)
		return
	}
	r.Destroy()
}

// bind sets the pipeline id and the frame constant buffers. It reports
// false when id was never registered.
func (l *Library) bind(ctx *rendergraph.Context, cmd gfx.CommandList, id pipeline.ID) bool {
	p := l.pipelines.Get(id)
	if p == nil {
		slogger().Warn("passes: pipeline not registered", "pass", ctx.PassName(), "id", id)
		return false
	}
	cmd.SetPipeline(p.Object())
	if fd := rendergraph.Get[FrameData](ctx.Blackboard()); fd != nil {
		cmd.SetRootCBV(0, fd.ConstantsAddress)
		cmd.SetRootCBV(1, fd.LightsAddress)
	}
	return true
}

func frameData(g *rendergraph.Graph) *FrameData {
	fd := rendergraph.Get[FrameData](g.Blackboard())
	if fd == nil {
		panic("passes: FrameData missing from the blackboard")
	}
	return fd
}

func sceneData(g *rendergraph.Graph) *SceneData {
	sd := rendergraph.Get[SceneData](g.Blackboard())
	if sd == nil {
		panic("passes: SceneData missing from the blackboard")
	}
	return sd
}

// groups returns the number of thread groups of size covering n.
func groups(n, size uint32) uint32 { return (n + size - 1) / size }

func f32(v float32) uint32 { return math.Float32bits(v) }

func i32(v int32) uint32 { return uint32(v) }

func appendMatrix(dst []uint32, m scene.Mat4) []uint32 {
	for _, v := range m {
		dst = append(dst, f32(v))
	}
	return dst
}

// screen returns a render-resolution texture of format.
func screen(fd *FrameData, format gputypes.TextureFormat) gfx.TextureDesc {
	return gfx.TextureDesc{Width: fd.Width, Height: fd.Height, Format: format}
}

// ImportGeometry imports the shared geometry buffers of the scene, if set.
func ImportGeometry(g *rendergraph.Graph) {
	sd := sceneData(g)
	if sd.Vertices == nil || sd.Indices == nil {
		return
	}
	g.ImportBuffer(SceneVertices, sd.Vertices, gfx.StateVertexAndConstantBuffer, gfx.StateVertexAndConstantBuffer)
	g.ImportBuffer(SceneIndices, sd.Indices, gfx.StateIndexBuffer, gfx.StateIndexBuffer)
}
