// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"math"
	"slices"

	"github.com/gogpu/framegraph/descriptor"
	"github.com/gogpu/framegraph/gfx"
)

const (
	lifetimeStart = math.MinInt
	lifetimeEnd   = math.MaxInt
)

type resourceKind uint8

const (
	kindTexture resourceKind = iota
	kindBuffer
)

func (k resourceKind) String() string {
	if k == kindTexture {
		return "texture"
	}
	return "buffer"
}

type resource struct {
	id    int
	name  Name
	kind  resourceKind
	tdesc gfx.TextureDesc
	bdesc gfx.BufferDesc

	creator  int
	imported bool
	texture  gfx.Texture
	buffer   gfx.Buffer
	initial  gfx.ResourceState
	final    gfx.ResourceState
	hasFinal bool

	exportTexture gfx.Texture
	exportBuffer  gfx.Buffer
	exportState   gfx.ResourceState

	// Build-time dependency tracking.
	version    int
	lastWriter int
	readers    []int

	// Compile results.
	used        bool
	first, last int
	backing     *backing
}

func (r *resource) physical() gfx.Resource {
	if r.kind == kindTexture {
		return r.texture
	}
	return r.buffer
}

func (r *resource) exported() bool { return r.exportTexture != nil || r.exportBuffer != nil }

type access struct {
	res     int
	kind    accessKind
	read    ReadAccess
	state   gfx.ResourceState
	ops     LoadStoreOp
	version int
	view    gfx.Descriptor
}

type pass struct {
	index int
	name  string
	typ   PassType
	flags PassFlags
	exec  func(*Context, gfx.CommandList)

	accesses []access

	// deps carry data (read after write, write after write); order only
	// constrains scheduling (write after read).
	deps  []int
	order []int

	viewportW, viewportH uint32

	culled     bool
	barriers   []gfx.Barrier
	renderPass *gfx.RenderPassDesc
}

func (p *pass) addDep(list *[]int, other int) {
	if other >= 0 && other != p.index && !slices.Contains(*list, other) {
		*list = append(*list, other)
	}
}

// Config configures a Graph.
type Config struct {
	Device gfx.Device

	// Pool supplies physical transients. If nil the graph creates its own,
	// available through Graph.Pool.
	Pool *ResourcePool

	// Ring backs Context.AllocateDescriptors. Optional.
	Ring *descriptor.Ring

	// Blackboard is shared with the passes. If nil a fresh one is used.
	Blackboard *Blackboard
}

// Graph is the render graph of one frame.
type Graph struct {
	dev  gfx.Device
	pool *ResourcePool
	ring *descriptor.Ring
	bb   *Blackboard

	passes    []*pass
	resources []*resource
	byName    map[uint64]*resource
	names     map[uint64]string
	finals    []finalMark
	exports   []exportMark
	errs      []error

	compiled  bool
	released  bool
	schedule  []*pass
	backings  []*backing
	epilogue  epilogue
	tracks    map[gfx.Resource]*stateTrack
	barrierCt int
}

type finalMark struct {
	name  Name
	state gfx.ResourceState
}

type exportMark struct {
	name  Name
	tex   gfx.Texture
	buf   gfx.Buffer
	state gfx.ResourceState
}

// New creates an empty graph.
func New(cfg Config) *Graph {
	if cfg.Pool == nil {
		cfg.Pool = NewResourcePool(cfg.Device, PoolConfig{})
	}
	if cfg.Blackboard == nil {
		cfg.Blackboard = NewBlackboard()
	}
	return &Graph{
		dev:    cfg.Device,
		pool:   cfg.Pool,
		ring:   cfg.Ring,
		bb:     cfg.Blackboard,
		byName: make(map[uint64]*resource),
		names:  make(map[uint64]string),
		tracks: make(map[gfx.Resource]*stateTrack),
	}
}

// Blackboard returns the per-frame blackboard.
func (g *Graph) Blackboard() *Blackboard { return g.bb }

// Pool returns the resource pool.
func (g *Graph) Pool() *ResourcePool { return g.pool }

// Device returns the device.
func (g *Graph) Device() gfx.Device { return g.dev }

func (g *Graph) fail(pass string, res string, err error) {
	g.errs = append(g.errs, &Error{Pass: pass, Resource: res, Err: err})
}

// intern records the string of name and reports a collision as an error.
func (g *Graph) intern(name Name, pass string) bool {
	if s, ok := g.names[name.hash]; ok && s != name.str {
		g.fail(pass, name.str, fmt.Errorf("%w: %q and %q", ErrNameCollision, s, name.str))
		return false
	}
	g.names[name.hash] = name.str
	return true
}

func (g *Graph) lookup(name Name, kind resourceKind, pass string) *resource {
	if !g.intern(name, pass) {
		return nil
	}
	r, ok := g.byName[name.hash]
	if !ok {
		g.fail(pass, name.str, ErrUndeclared)
		return nil
	}
	if r.kind != kind {
		g.fail(pass, name.str, fmt.Errorf("%w: %s used as %s", ErrWrongKind, r.kind, kind))
		return nil
	}
	return r
}

func (g *Graph) declare(name Name, kind resourceKind, pass string, creator int) *resource {
	if !g.intern(name, pass) {
		return nil
	}
	if _, ok := g.byName[name.hash]; ok {
		g.fail(pass, name.str, ErrDuplicate)
		return nil
	}
	r := &resource{
		id:         len(g.resources),
		name:       name,
		kind:       kind,
		creator:    creator,
		lastWriter: -1,
	}
	g.resources = append(g.resources, r)
	g.byName[name.hash] = r
	return r
}

// ImportTexture makes an externally owned texture available under name. It
// is in state initial now and is left in state final after the graph runs.
// Imported resources are never aliased or released.
func (g *Graph) ImportTexture(name Name, tex gfx.Texture, initial, final gfx.ResourceState) {
	r := g.declare(name, kindTexture, "", -1)
	if r == nil {
		return
	}
	r.imported, r.texture, r.tdesc = true, tex, tex.Desc()
	r.initial, r.final, r.hasFinal = initial, final, true
}

// ImportBuffer is ImportTexture for buffers.
func (g *Graph) ImportBuffer(name Name, buf gfx.Buffer, initial, final gfx.ResourceState) {
	r := g.declare(name, kindBuffer, "", -1)
	if r == nil {
		return
	}
	r.imported, r.buffer, r.bdesc = true, buf, buf.Desc()
	r.initial, r.final, r.hasFinal = initial, final, true
}

// ExportTexture copies the final contents of name into dst after the last
// pass. dst is in state dstState before and after the copy. Exporting keeps
// the writers of name alive.
func (g *Graph) ExportTexture(name Name, dst gfx.Texture, dstState gfx.ResourceState) {
	g.exports = append(g.exports, exportMark{name: name, tex: dst, state: dstState})
}

// ExportBuffer is ExportTexture for buffers.
func (g *Graph) ExportBuffer(name Name, dst gfx.Buffer, dstState gfx.ResourceState) {
	g.exports = append(g.exports, exportMark{name: name, buf: dst, state: dstState})
}

// MarkFinal marks name as a frame output left in state. Passes writing it
// are never culled.
func (g *Graph) MarkFinal(name Name, state gfx.ResourceState) {
	g.finals = append(g.finals, finalMark{name: name, state: state})
}

// IsTextureDeclared reports whether name is a declared or imported texture.
func (g *Graph) IsTextureDeclared(name Name) bool {
	r, ok := g.byName[name.hash]
	return ok && r.kind == kindTexture
}

// IsBufferDeclared reports whether name is a declared or imported buffer.
func (g *Graph) IsBufferDeclared(name Name) bool {
	r, ok := g.byName[name.hash]
	return ok && r.kind == kindBuffer
}

// AddPass adds a pass. setup runs immediately; exec runs during Execute if
// the pass survives culling.
func (g *Graph) AddPass(name string, typ PassType, setup func(*Builder), exec func(*Context, gfx.CommandList), flags PassFlags) {
	p := &pass{
		index: len(g.passes),
		name:  name,
		typ:   typ,
		flags: flags,
		exec:  exec,
	}
	g.passes = append(g.passes, p)
	if setup != nil {
		setup(&Builder{g: g, p: p})
	}
}

// AddPass adds a pass carrying data of type T filled in by setup and read
// by exec. It returns the data so later passes may use it while building.
func AddPass[T any](g *Graph, name string, typ PassType, setup func(*T, *Builder), exec func(*T, *Context, gfx.CommandList), flags PassFlags) *T {
	data := new(T)
	var run func(*Context, gfx.CommandList)
	if exec != nil {
		run = func(ctx *Context, cmd gfx.CommandList) { exec(data, ctx, cmd) }
	}
	g.AddPass(name, typ, func(b *Builder) {
		if setup != nil {
			setup(data, b)
		}
	}, run, flags)
	return data
}

// PassCount returns the number of added passes, culled or not.
func (g *Graph) PassCount() int { return len(g.passes) }
