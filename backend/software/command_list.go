package software

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
)

// Op identifies a recorded command.
type Op uint8

// Recorded command kinds.
const (
	OpBarriers Op = iota
	OpBeginRenderPass
	OpEndRenderPass
	OpSetPipeline
	OpDraw
	OpDispatch
	OpCopyTexture
	OpCopyBuffer
	OpMarker
)

// Command is one entry of a command list log.
type Command struct {
	Op       Op
	Label    string
	Barriers []gfx.Barrier
	Pass     *gfx.RenderPassDesc
}

// Kernel runs on the CPU for each draw or dispatch of a pipeline.
type Kernel func(inv *Invocation)

// Invocation is the state visible to a kernel.
type Invocation struct {
	Pipeline  string
	Constants []uint32
	CBVs      map[uint32]uint64
	Heap      gfx.DescriptorHeap

	// Targets and Depth are the attachments of the open render pass.
	Targets []*Texture
	Depth   *Texture

	// Groups holds the dispatch size, or the vertex and instance counts of
	// a draw in the first two components.
	Groups [3]uint32

	dev *Device
}

// Texture resolves a heap slot to a texture, or nil.
func (inv *Invocation) Texture(slot uint32) *Texture {
	d, _ := inv.Heap.At(slot).(*Descriptor)
	if d == nil {
		return nil
	}
	return d.Texture()
}

// Buffer resolves a GPU address to a buffer and offset.
func (inv *Invocation) Buffer(address uint64) (*Buffer, uint64) {
	inv.dev.mu.Lock()
	defer inv.dev.mu.Unlock()
	for r := range inv.dev.states {
		if b, ok := r.(*Buffer); ok && address >= b.address && address < b.address+b.desc.Size {
			return b, address - b.address
		}
	}
	return nil, 0
}

// CommandList records and eagerly executes commands.
type CommandList struct {
	dev  *Device
	slot int

	recording bool
	inPass    bool
	pass      *gfx.RenderPassDesc
	pipeline  *Pipeline
	constants []uint32
	cbvs      map[uint32]uint64
	markers   []string

	log []Command
}

// Commands returns the log recorded since the last Begin.
func (c *CommandList) Commands() []Command { return c.log }

// BarrierBatches returns the barrier batches recorded since the last Begin.
func (c *CommandList) BarrierBatches() [][]gfx.Barrier {
	var out [][]gfx.Barrier
	for _, cmd := range c.log {
		if cmd.Op == OpBarriers {
			out = append(out, cmd.Barriers)
		}
	}
	return out
}

func (c *CommandList) fail(format string, args ...any) {
	c.dev.mu.Lock()
	c.dev.validation = append(c.dev.validation, fmt.Errorf("software: "+format, args...))
	c.dev.mu.Unlock()
}

func (c *CommandList) check(op string) bool {
	if !c.recording {
		c.fail("%s on a closed command list", op)
		return false
	}
	return true
}

// Begin implements gfx.CommandList.
func (c *CommandList) Begin() error {
	if c.recording {
		return errors.New("software: command list already recording")
	}
	c.recording = true
	c.inPass = false
	c.pipeline = nil
	c.constants = nil
	c.cbvs = map[uint32]uint64{}
	c.markers = c.markers[:0]
	c.log = c.log[:0]
	return nil
}

// End implements gfx.CommandList.
func (c *CommandList) End() error {
	if !c.recording {
		return errors.New("software: command list not recording")
	}
	if c.inPass {
		return errors.New("software: command list closed inside a render pass")
	}
	if len(c.markers) > 0 {
		return fmt.Errorf("software: unbalanced marker %q", c.markers[len(c.markers)-1])
	}
	c.recording = false
	return nil
}

// ResourceBarriers implements gfx.CommandList.
func (c *CommandList) ResourceBarriers(barriers []gfx.Barrier) {
	if !c.check("ResourceBarriers") || len(barriers) == 0 {
		return
	}
	if c.inPass {
		c.fail("barriers inside render pass %q", c.pass.Label)
	}
	c.dev.mu.Lock()
	for _, b := range barriers {
		c.dev.transition(b)
	}
	c.dev.mu.Unlock()
	c.log = append(c.log, Command{Op: OpBarriers, Barriers: append([]gfx.Barrier(nil), barriers...)})
}

// BeginRenderPass implements gfx.CommandList. Clear load ops are applied
// immediately.
func (c *CommandList) BeginRenderPass(desc *gfx.RenderPassDesc) {
	if !c.check("BeginRenderPass") {
		return
	}
	if c.inPass {
		c.fail("render pass %q begun inside %q", desc.Label, c.pass.Label)
		return
	}
	c.inPass = true
	c.pass = desc

	c.dev.mu.Lock()
	for _, a := range desc.Colors {
		t := viewTexture(a.View)
		if t == nil {
			continue
		}
		c.dev.expect(t, "render target", gfx.StateRenderTarget)
		if a.LoadOp == gputypes.LoadOpClear {
			t.Fill(a.ClearColor)
		}
	}
	if desc.Depth != nil {
		if t := viewTexture(desc.Depth.View); t != nil {
			if desc.Depth.ReadOnly {
				c.dev.expect(t, "read-only depth", gfx.StateDepthRead)
			} else {
				c.dev.expect(t, "depth target", gfx.StateDepthWrite)
			}
			if desc.Depth.DepthLoadOp == gputypes.LoadOpClear {
				t.Fill([4]float32{desc.Depth.ClearDepth, float32(desc.Depth.ClearStencil), 0, 0})
			}
		}
	}
	c.dev.mu.Unlock()
	c.log = append(c.log, Command{Op: OpBeginRenderPass, Label: desc.Label, Pass: desc})
}

// EndRenderPass implements gfx.CommandList.
func (c *CommandList) EndRenderPass() {
	if !c.check("EndRenderPass") {
		return
	}
	if !c.inPass {
		c.fail("EndRenderPass without BeginRenderPass")
		return
	}
	c.inPass = false
	c.log = append(c.log, Command{Op: OpEndRenderPass, Label: c.pass.Label})
	c.pass = nil
}

// SetViewport implements gfx.CommandList.
func (c *CommandList) SetViewport(gfx.Viewport) { c.check("SetViewport") }

// SetScissor implements gfx.CommandList.
func (c *CommandList) SetScissor(gfx.Rect) { c.check("SetScissor") }

// SetPipeline implements gfx.CommandList.
func (c *CommandList) SetPipeline(p gfx.Pipeline) {
	if !c.check("SetPipeline") {
		return
	}
	sp, ok := p.(*Pipeline)
	if !ok {
		c.fail("foreign pipeline %T", p)
		return
	}
	c.pipeline = sp
	c.log = append(c.log, Command{Op: OpSetPipeline, Label: sp.label})
}

// SetRootConstants implements gfx.CommandList.
func (c *CommandList) SetRootConstants(values ...uint32) {
	if c.check("SetRootConstants") {
		c.constants = append(c.constants[:0], values...)
	}
}

// SetRootCBV implements gfx.CommandList.
func (c *CommandList) SetRootCBV(slot uint32, address uint64) {
	if c.check("SetRootCBV") {
		c.cbvs[slot] = address
	}
}

// SetVertexBuffer implements gfx.CommandList.
func (c *CommandList) SetVertexBuffer(_ uint32, b gfx.Buffer, _ uint64) {
	if c.check("SetVertexBuffer") {
		c.dev.mu.Lock()
		c.dev.expect(b, "vertex buffer", gfx.StateVertexAndConstantBuffer)
		c.dev.mu.Unlock()
	}
}

// SetIndexBuffer implements gfx.CommandList.
func (c *CommandList) SetIndexBuffer(b gfx.Buffer, _ gputypes.IndexFormat, _ uint64) {
	if c.check("SetIndexBuffer") {
		c.dev.mu.Lock()
		c.dev.expect(b, "index buffer", gfx.StateIndexBuffer)
		c.dev.mu.Unlock()
	}
}

// Draw implements gfx.CommandList.
func (c *CommandList) Draw(vertexCount, instanceCount, _, _ uint32) {
	if !c.check("Draw") {
		return
	}
	if !c.inPass {
		c.fail("Draw outside a render pass")
	}
	c.invoke([3]uint32{vertexCount, instanceCount, 1}, OpDraw)
}

// DrawIndexed implements gfx.CommandList.
func (c *CommandList) DrawIndexed(indexCount, instanceCount, _ uint32, _ int32, _ uint32) {
	if !c.check("DrawIndexed") {
		return
	}
	if !c.inPass {
		c.fail("DrawIndexed outside a render pass")
	}
	c.invoke([3]uint32{indexCount, instanceCount, 1}, OpDraw)
}

// Dispatch implements gfx.CommandList.
func (c *CommandList) Dispatch(x, y, z uint32) {
	if !c.check("Dispatch") {
		return
	}
	if c.inPass {
		c.fail("Dispatch inside render pass %q", c.pass.Label)
	}
	c.invoke([3]uint32{x, y, z}, OpDispatch)
}

func (c *CommandList) invoke(groups [3]uint32, op Op) {
	if c.pipeline == nil {
		c.fail("draw or dispatch without a pipeline")
		return
	}
	c.log = append(c.log, Command{Op: op, Label: c.pipeline.label})

	c.dev.mu.Lock()
	k := c.dev.kernels[c.pipeline.label]
	c.dev.mu.Unlock()
	if k == nil {
		return
	}
	inv := &Invocation{
		Pipeline:  c.pipeline.label,
		Constants: append([]uint32(nil), c.constants...),
		CBVs:      c.cbvs,
		Heap:      c.dev.heap,
		Groups:    groups,
		dev:       c.dev,
	}
	if c.inPass {
		for _, a := range c.pass.Colors {
			inv.Targets = append(inv.Targets, viewTexture(a.View))
		}
		if c.pass.Depth != nil {
			inv.Depth = viewTexture(c.pass.Depth.View)
		}
	}
	k(inv)
}

// CopyTexture implements gfx.CommandList.
func (c *CommandList) CopyTexture(dst, src gfx.Texture) {
	if !c.check("CopyTexture") {
		return
	}
	d, ok1 := dst.(*Texture)
	s, ok2 := src.(*Texture)
	if !ok1 || !ok2 {
		c.fail("foreign textures in CopyTexture")
		return
	}
	c.dev.mu.Lock()
	c.dev.expect(d, "copy destination", gfx.StateCopyDst)
	c.dev.expect(s, "copy source", gfx.StateCopySrc)
	c.dev.mu.Unlock()
	if d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height {
		c.fail("CopyTexture size mismatch %s -> %s", s.desc, d.desc)
		return
	}
	copy(d.texels, s.texels)
	c.log = append(c.log, Command{Op: OpCopyTexture, Label: s.Label() + "->" + d.Label()})
}

// CopyBuffer implements gfx.CommandList.
func (c *CommandList) CopyBuffer(dst gfx.Buffer, dstOffset uint64, src gfx.Buffer, srcOffset, size uint64) {
	if !c.check("CopyBuffer") {
		return
	}
	d, ok1 := dst.(*Buffer)
	s, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		c.fail("foreign buffers in CopyBuffer")
		return
	}
	if srcOffset+size > uint64(len(s.data)) || dstOffset+size > uint64(len(d.data)) {
		c.fail("CopyBuffer out of range")
		return
	}
	c.dev.mu.Lock()
	c.dev.expect(d, "copy destination", gfx.StateCopyDst)
	if !s.desc.CPUVisible {
		c.dev.expect(s, "copy source", gfx.StateCopySrc)
	}
	c.dev.mu.Unlock()
	copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	c.log = append(c.log, Command{Op: OpCopyBuffer, Label: s.Label() + "->" + d.Label()})
}

// PushMarker implements gfx.CommandList.
func (c *CommandList) PushMarker(name string) {
	if c.check("PushMarker") {
		c.markers = append(c.markers, name)
		c.log = append(c.log, Command{Op: OpMarker, Label: name})
	}
}

// PopMarker implements gfx.CommandList.
func (c *CommandList) PopMarker() {
	if !c.check("PopMarker") {
		return
	}
	if len(c.markers) == 0 {
		c.fail("PopMarker without PushMarker")
		return
	}
	c.markers = c.markers[:len(c.markers)-1]
}

func viewTexture(d gfx.Descriptor) *Texture {
	sd, ok := d.(*Descriptor)
	if !ok {
		return nil
	}
	return sd.Texture()
}
