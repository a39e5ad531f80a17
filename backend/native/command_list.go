//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gfx"
)

// MaxRootCBVs is the number of root constant buffer slots.
const MaxRootCBVs = 2

// ErrConstantsOverflow is recorded when a frame stages more root constants
// than the slot's constant buffer holds.
var ErrConstantsOverflow = errors.New("native: root constants overflow")

type vertexBinding struct {
	buf    *Buffer
	offset uint64
}

// CommandList records into a HAL command encoder owned by one frame slot.
// Compute passes open lazily on Dispatch and close before any other
// command.
type CommandList struct {
	dev  *Device
	slot int
	enc  hal.CommandEncoder

	cb        hal.CommandBuffer
	submitted uint64
	recording bool
	err       error

	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder

	pipeline  *Pipeline
	constants []uint32
	cbvs      [MaxRootCBVs]uint64
	viewport  *gfx.Viewport
	scissor   *gfx.Rect
	vertices  [2]vertexBinding
	index     vertexBinding
	indexFmt  gputypes.IndexFormat

	staging []byte
	groups  []hal.BindGroup
	markers []string
}

func (c *CommandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *CommandList) check(op string) bool {
	if !c.recording {
		c.fail(fmt.Errorf("native: %s on closed command list %d", op, c.slot))
		return false
	}
	return c.err == nil
}

// Begin implements gfx.CommandList. The previous submission of the slot is
// waited for before its command buffer is recycled.
func (c *CommandList) Begin() error {
	if c.recording {
		return fmt.Errorf("native: command list %d already recording", c.slot)
	}
	if c.cb != nil {
		if c.dev.queue.PollCompleted() < c.submitted {
			if err := c.dev.WaitIdle(); err != nil {
				return err
			}
		}
		c.dev.device.FreeCommandBuffer(c.cb)
		c.cb = nil
	}
	c.releaseGroups()
	*c = CommandList{
		dev:       c.dev,
		slot:      c.slot,
		enc:       c.enc,
		submitted: c.submitted,
		staging:   c.staging[:0],
		groups:    c.groups[:0],
		constants: c.constants[:0],
		markers:   c.markers[:0],
	}
	if err := c.enc.BeginEncoding(fmt.Sprintf("Frame%d", c.slot)); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	c.recording = true
	return nil
}

// End implements gfx.CommandList. It returns the first error recorded since
// Begin.
func (c *CommandList) End() error {
	if !c.recording {
		return fmt.Errorf("native: End on closed command list %d", c.slot)
	}
	c.endCompute()
	if c.render != nil {
		c.fail(errors.New("native: End inside a render pass"))
		c.render.End()
		c.render = nil
	}
	c.recording = false
	if c.err != nil {
		c.enc.DiscardEncoding()
		return c.err
	}
	cb, err := c.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	c.cb = cb
	return nil
}

func (c *CommandList) releaseGroups() {
	for _, g := range c.groups {
		c.dev.device.DestroyBindGroup(g)
	}
	c.groups = c.groups[:0]
}

func (c *CommandList) endCompute() {
	if c.compute != nil {
		c.compute.End()
		c.compute = nil
	}
}

// ResourceBarriers implements gfx.CommandList. Aliasing barriers need no
// HAL work because every transient texture owns its allocation.
func (c *CommandList) ResourceBarriers(barriers []gfx.Barrier) {
	if !c.check("ResourceBarriers") {
		return
	}
	if c.render != nil {
		c.fail(errors.New("native: barriers inside a render pass"))
		return
	}
	c.endCompute()
	var (
		textures []hal.TextureBarrier
		buffers  []hal.BufferBarrier
	)
	for _, b := range barriers {
		before, after := b.Before, b.After
		if b.Kind == gfx.BarrierUAV {
			before, after = gfx.StateUnorderedAccess, gfx.StateUnorderedAccess
		} else if b.Kind != gfx.BarrierTransition {
			continue
		}
		switch r := b.Resource.(type) {
		case *Texture:
			textures = append(textures, hal.TextureBarrier{
				Texture: r.raw,
				Range: hal.TextureRange{
					Aspect:          gputypes.TextureAspectAll,
					BaseMipLevel:    b.Subresources.BaseMipLevel,
					MipLevelCount:   b.Subresources.MipLevelCount,
					BaseArrayLayer:  b.Subresources.BaseArrayLayer,
					ArrayLayerCount: b.Subresources.LayerCount,
				},
				Usage: hal.TextureUsageTransition{
					OldUsage: textureUsage(before, r.desc.Format),
					NewUsage: textureUsage(after, r.desc.Format),
				},
			})
		case *Buffer:
			buffers = append(buffers, hal.BufferBarrier{
				Buffer: r.raw,
				Usage: hal.BufferUsageTransition{
					OldUsage: bufferUsage(before),
					NewUsage: bufferUsage(after),
				},
			})
		default:
			c.fail(fmt.Errorf("%w: barrier on %T", gfx.ErrInvalidDesc, b.Resource))
			return
		}
	}
	if len(buffers) > 0 {
		c.enc.TransitionBuffers(buffers)
	}
	if len(textures) > 0 {
		c.enc.TransitionTextures(textures)
	}
}

// BeginRenderPass implements gfx.CommandList.
func (c *CommandList) BeginRenderPass(desc *gfx.RenderPassDesc) {
	if !c.check("BeginRenderPass") {
		return
	}
	c.endCompute()
	if c.render != nil {
		c.fail(fmt.Errorf("native: render pass %q begun inside another", desc.Label))
		return
	}
	rp := &hal.RenderPassDescriptor{Label: c.label(desc.Label)}
	for _, a := range desc.Colors {
		v, ok := a.View.(*Descriptor)
		if !ok || v.view == nil {
			c.fail(fmt.Errorf("%w: color attachment of %q is not a texture view", gfx.ErrInvalidDesc, desc.Label))
			return
		}
		rp.ColorAttachments = append(rp.ColorAttachments, hal.RenderPassColorAttachment{
			View:    v.view,
			LoadOp:  a.LoadOp,
			StoreOp: a.StoreOp,
			ClearValue: gputypes.Color{
				R: float64(a.ClearColor[0]),
				G: float64(a.ClearColor[1]),
				B: float64(a.ClearColor[2]),
				A: float64(a.ClearColor[3]),
			},
		})
	}
	if a := desc.Depth; a != nil {
		v, ok := a.View.(*Descriptor)
		if !ok || v.view == nil {
			c.fail(fmt.Errorf("%w: depth attachment of %q is not a texture view", gfx.ErrInvalidDesc, desc.Label))
			return
		}
		rp.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              v.view,
			DepthLoadOp:       a.DepthLoadOp,
			DepthStoreOp:      a.DepthStoreOp,
			DepthClearValue:   a.ClearDepth,
			DepthReadOnly:     a.ReadOnly,
			StencilLoadOp:     gputypes.LoadOpLoad,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: uint32(a.ClearStencil),
			StencilReadOnly:   a.ReadOnly,
		}
	}
	c.render = c.enc.BeginRenderPass(rp)
	vp := gfx.Viewport{Width: float32(desc.Width), Height: float32(desc.Height), MaxDepth: 1}
	if c.viewport != nil {
		vp = *c.viewport
	}
	c.render.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	sc := gfx.Rect{Width: desc.Width, Height: desc.Height}
	if c.scissor != nil {
		sc = *c.scissor
	}
	c.render.SetScissorRect(sc.X, sc.Y, sc.Width, sc.Height)
}

// EndRenderPass implements gfx.CommandList.
func (c *CommandList) EndRenderPass() {
	if !c.check("EndRenderPass") {
		return
	}
	if c.render == nil {
		c.fail(errors.New("native: EndRenderPass without a render pass"))
		return
	}
	c.render.End()
	c.render = nil
	c.viewport, c.scissor = nil, nil
}

// SetViewport implements gfx.CommandList.
func (c *CommandList) SetViewport(v gfx.Viewport) {
	if !c.check("SetViewport") {
		return
	}
	c.viewport = &v
	if c.render != nil {
		c.render.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
}

// SetScissor implements gfx.CommandList.
func (c *CommandList) SetScissor(r gfx.Rect) {
	if !c.check("SetScissor") {
		return
	}
	c.scissor = &r
	if c.render != nil {
		c.render.SetScissorRect(r.X, r.Y, r.Width, r.Height)
	}
}

// SetPipeline implements gfx.CommandList. The HAL pipeline is bound at the
// next draw or dispatch, once the binding signature is known.
func (c *CommandList) SetPipeline(p gfx.Pipeline) {
	if !c.check("SetPipeline") {
		return
	}
	np, ok := p.(*Pipeline)
	if !ok {
		c.fail(fmt.Errorf("%w: pipeline %T", gfx.ErrInvalidDesc, p))
		return
	}
	c.pipeline = np
}

// SetRootConstants implements gfx.CommandList.
func (c *CommandList) SetRootConstants(values ...uint32) {
	if !c.check("SetRootConstants") {
		return
	}
	c.constants = append(c.constants[:0], values...)
}

// SetRootCBV implements gfx.CommandList.
func (c *CommandList) SetRootCBV(slot uint32, address uint64) {
	if !c.check("SetRootCBV") {
		return
	}
	if slot >= MaxRootCBVs {
		c.fail(fmt.Errorf("%w: root CBV slot %d", gfx.ErrInvalidDesc, slot))
		return
	}
	c.cbvs[slot] = address
}

// SetVertexBuffer implements gfx.CommandList.
func (c *CommandList) SetVertexBuffer(slot uint32, b gfx.Buffer, offset uint64) {
	if !c.check("SetVertexBuffer") {
		return
	}
	nb, ok := b.(*Buffer)
	if !ok || slot >= uint32(len(c.vertices)) {
		c.fail(fmt.Errorf("%w: vertex buffer slot %d", gfx.ErrInvalidDesc, slot))
		return
	}
	c.vertices[slot] = vertexBinding{buf: nb, offset: offset}
}

// SetIndexBuffer implements gfx.CommandList.
func (c *CommandList) SetIndexBuffer(b gfx.Buffer, format gputypes.IndexFormat, offset uint64) {
	if !c.check("SetIndexBuffer") {
		return
	}
	nb, ok := b.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("%w: index buffer %T", gfx.ErrInvalidDesc, b))
		return
	}
	c.index = vertexBinding{buf: nb, offset: offset}
	c.indexFmt = format
}

// Draw implements gfx.CommandList.
func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !c.prepareDraw("Draw") {
		return
	}
	c.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements gfx.CommandList.
func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if !c.prepareDraw("DrawIndexed") {
		return
	}
	if c.index.buf == nil {
		c.fail(errors.New("native: DrawIndexed without an index buffer"))
		return
	}
	c.render.SetIndexBuffer(c.index.buf.raw, c.indexFmt, c.index.offset)
	c.render.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (c *CommandList) prepareDraw(op string) bool {
	if !c.check(op) {
		return false
	}
	if c.render == nil {
		c.fail(fmt.Errorf("native: %s outside a render pass", op))
		return false
	}
	if c.pipeline == nil || c.pipeline.graphics == nil {
		c.fail(fmt.Errorf("native: %s without a graphics pipeline", op))
		return false
	}
	groups, v, err := c.bind(gputypes.ShaderStageVertex | gputypes.ShaderStageFragment)
	if err != nil {
		c.fail(err)
		return false
	}
	c.render.SetPipeline(v)
	for i, g := range groups {
		c.render.SetBindGroup(uint32(i), g, nil)
	}
	for i, vb := range c.vertices {
		if vb.buf != nil {
			c.render.SetVertexBuffer(uint32(i), vb.buf.raw, vb.offset)
		}
	}
	return true
}

// Dispatch implements gfx.CommandList.
func (c *CommandList) Dispatch(x, y, z uint32) {
	if !c.check("Dispatch") {
		return
	}
	if c.render != nil {
		c.fail(errors.New("native: Dispatch inside a render pass"))
		return
	}
	if c.pipeline == nil || c.pipeline.compute == nil {
		c.fail(errors.New("native: Dispatch without a compute pipeline"))
		return
	}
	groups, v, err := c.bind(gputypes.ShaderStageCompute)
	if err != nil {
		c.fail(err)
		return
	}
	if c.compute == nil {
		c.compute = c.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: c.label(c.pipeline.label)})
	}
	c.compute.SetPipeline(v)
	for i, g := range groups {
		c.compute.SetBindGroup(uint32(i), g, nil)
	}
	c.compute.Dispatch(x, y, z)
}

// bind builds the bind groups for the current root state and returns them
// with the pipeline variant compiled for their layouts.
func (c *CommandList) bind(vis gputypes.ShaderStages) ([]hal.BindGroup, hal.Resource, error) {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		frameLayout, tableLayout []gputypes.BindGroupLayoutEntry
		frameEntries, tableEntry []gputypes.BindGroupEntry
		frameSig, tableSig       strings.Builder
	)
	for slot, addr := range c.cbvs {
		if addr == 0 {
			continue
		}
		b, off, ok := d.resolve(addr)
		if !ok {
			return nil, nil, fmt.Errorf("%w: root CBV %d address 0x%x", gfx.ErrInvalidDesc, slot, addr)
		}
		kind, code := gputypes.BufferBindingTypeUniform, "u"
		if slot > 0 {
			kind, code = gputypes.BufferBindingTypeReadOnlyStorage, "r"
		}
		frameSig.WriteString(code)
		frameLayout = append(frameLayout, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(slot),
			Visibility: vis,
			Buffer:     &gputypes.BufferBindingLayout{Type: kind},
		})
		frameEntries = append(frameEntries, gputypes.BindGroupEntry{
			Binding:  uint32(slot),
			Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: off, Size: b.desc.Size - off},
		})
	}

	constants := c.constants
	if len(constants) > 0 {
		if table := d.heap.table(constants[0]); table != nil {
			for i, desc := range table {
				e, code, err := desc.layoutEntry(uint32(i), vis)
				if err != nil {
					return nil, nil, err
				}
				tableSig.WriteString(code)
				tableSig.WriteByte(',')
				tableLayout = append(tableLayout, e)
				tableEntry = append(tableEntry, desc.entry(uint32(i)))
			}
			constants = constants[1:]
		}
	}
	if len(constants) > 0 {
		off, err := c.stage(constants)
		if err != nil {
			return nil, nil, err
		}
		binding := uint32(len(tableLayout))
		size := uint64(len(constants) * 4)
		tableSig.WriteString("c")
		tableLayout = append(tableLayout, gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: vis,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
		tableEntry = append(tableEntry, gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.BufferBinding{Buffer: d.constants[c.slot].NativeHandle(), Offset: off, Size: size},
		})
	}

	sig := fmt.Sprintf("%d:%s|%s", vis, frameSig.String(), tableSig.String())
	layouts := make([]hal.BindGroupLayout, 0, 2)
	groups := make([]hal.BindGroup, 0, 2)
	for i, g := range []struct {
		sig     string
		layout  []gputypes.BindGroupLayoutEntry
		entries []gputypes.BindGroupEntry
	}{
		{fmt.Sprintf("%d:frame:%s", vis, frameSig.String()), frameLayout, frameEntries},
		{fmt.Sprintf("%d:table:%s", vis, tableSig.String()), tableLayout, tableEntry},
	} {
		if i == 1 && len(g.layout) == 0 {
			break
		}
		l, err := d.bindGroupLayout(g.sig, g.layout)
		if err != nil {
			return nil, nil, err
		}
		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: g.sig, Layout: l, Entries: g.entries})
		if err != nil {
			return nil, nil, fmt.Errorf("native: bind group %q: %w", g.sig, err)
		}
		c.groups = append(c.groups, bg)
		layouts = append(layouts, l)
		groups = append(groups, bg)
	}
	pl, err := d.pipelineLayout(sig, layouts)
	if err != nil {
		return nil, nil, err
	}
	v, err := c.pipeline.variant(sig, pl)
	if err != nil {
		return nil, nil, err
	}
	return groups, v, nil
}

// stage appends constants to the slot's staging block at a 256-byte
// aligned offset.
func (c *CommandList) stage(values []uint32) (uint64, error) {
	off := uint64(len(c.staging))
	need := off + uint64(len(values)*4)
	if need > DefaultConstantsSize {
		return 0, fmt.Errorf("%w: %d bytes staged in frame slot %d", ErrConstantsOverflow, need, c.slot)
	}
	for _, v := range values {
		c.staging = binary.LittleEndian.AppendUint32(c.staging, v)
	}
	for len(c.staging)%constantsAlign != 0 {
		c.staging = append(c.staging, 0)
	}
	return off, nil
}

// CopyTexture implements gfx.CommandList. Both textures must have the same
// size and format.
func (c *CommandList) CopyTexture(dst, src gfx.Texture) {
	if !c.check("CopyTexture") {
		return
	}
	d, ok1 := dst.(*Texture)
	s, ok2 := src.(*Texture)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("%w: copy between %T and %T", gfx.ErrInvalidDesc, dst, src))
		return
	}
	if d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height {
		c.fail(fmt.Errorf("%w: copy %q (%s) to %q (%s)", gfx.ErrInvalidDesc, s.Label(), s.desc, d.Label(), d.desc))
		return
	}
	c.endCompute()
	c.enc.CopyTextureToTexture(s.raw, d.raw, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: s.raw, Aspect: gputypes.TextureAspectAll},
		DstBase: hal.ImageCopyTexture{Texture: d.raw, Aspect: gputypes.TextureAspectAll},
		Size:    hal.Extent3D{Width: s.desc.Width, Height: s.desc.Height, DepthOrArrayLayers: s.desc.Depth},
	}})
}

// CopyBuffer implements gfx.CommandList.
func (c *CommandList) CopyBuffer(dst gfx.Buffer, dstOffset uint64, src gfx.Buffer, srcOffset, size uint64) {
	if !c.check("CopyBuffer") {
		return
	}
	d, ok1 := dst.(*Buffer)
	s, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("%w: copy between %T and %T", gfx.ErrInvalidDesc, dst, src))
		return
	}
	if srcOffset+size > s.desc.Size || dstOffset+size > d.desc.Size {
		c.fail(fmt.Errorf("%w: copy of %d bytes from %q+%d to %q+%d", gfx.ErrInvalidDesc, size, s.Label(), srcOffset, d.Label(), dstOffset))
		return
	}
	c.endCompute()
	c.enc.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
}

// PushMarker implements gfx.CommandList. Markers prefix the labels of the
// passes recorded inside them.
func (c *CommandList) PushMarker(name string) {
	if c.check("PushMarker") {
		c.markers = append(c.markers, name)
	}
}

// PopMarker implements gfx.CommandList.
func (c *CommandList) PopMarker() {
	if !c.check("PopMarker") {
		return
	}
	if len(c.markers) == 0 {
		c.fail(errors.New("native: PopMarker without PushMarker"))
		return
	}
	c.markers = c.markers[:len(c.markers)-1]
}

func (c *CommandList) label(name string) string {
	if len(c.markers) == 0 {
		return name
	}
	return strings.Join(c.markers, "/") + "/" + name
}
