// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"cmp"
	"container/heap"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/internal/bitset"
)

// backing is one physical resource and the virtual resources living in it.
type backing struct {
	index   int
	key     string
	tenants []*resource
	res     gfx.Resource
	state   gfx.ResourceState // state at lease time
}

type stateTrack struct {
	state   gfx.ResourceState
	tenant  *resource
	uavPass int
}

type exportOp struct {
	src, dst gfx.Resource
	size     uint64
}

type epilogue struct {
	before  []gfx.Barrier
	exports []exportOp
	after   []gfx.Barrier
}

// Compile culls, schedules and allocates the graph and plans its barriers.
// It reports every build error, joined.
func (g *Graph) Compile() error {
	if g.compiled {
		return nil
	}
	g.resolveMarks()
	if len(g.errs) > 0 {
		return errors.Join(g.errs...)
	}

	g.cull()
	if err := g.sort(); err != nil {
		return err
	}
	g.computeLifetimes()
	if err := g.allocate(); err != nil {
		g.Release()
		return err
	}
	if err := g.createViews(); err != nil {
		g.Release()
		return err
	}
	if err := g.planBarriers(); err != nil {
		g.Release()
		return err
	}
	g.synthesizeRenderPasses()
	g.compiled = true

	slogger().Debug("rendergraph: compiled",
		"passes", len(g.passes),
		"scheduled", len(g.schedule),
		"resources", len(g.resources),
		"backings", len(g.backings),
		"barriers", g.barrierCt)
	return nil
}

func (g *Graph) resolveMarks() {
	for _, f := range g.finals {
		kind := kindTexture
		if r, ok := g.byName[f.name.hash]; ok {
			kind = r.kind
		}
		if r := g.lookup(f.name, kind, ""); r != nil {
			r.final, r.hasFinal = f.state, true
		}
	}
	for _, e := range g.exports {
		kind := kindTexture
		if e.buf != nil {
			kind = kindBuffer
		}
		r := g.lookup(e.name, kind, "")
		if r == nil {
			continue
		}
		if r.exported() {
			g.fail("", e.name.str, fmt.Errorf("%w: exported twice", ErrDuplicate))
			continue
		}
		r.exportTexture, r.exportBuffer, r.exportState = e.tex, e.buf, e.state
	}
}

// cull keeps the passes that contribute data to an imported, exported or
// final resource, plus ForceNoCull passes.
func (g *Graph) cull() {
	keep := bitset.New[uint64](len(g.passes))
	var stack []int
	for _, p := range g.passes {
		root := p.flags&ForceNoCull != 0
		for _, a := range p.accesses {
			r := g.resources[a.res]
			if a.kind.writes() && (r.imported || r.exported() || r.hasFinal) {
				root = true
			}
		}
		if root {
			keep.Set(p.index)
			stack = append(stack, p.index)
		}
	}
	for len(stack) > 0 {
		p := g.passes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		for _, d := range p.deps {
			if !keep.Has(d) {
				keep.Set(d)
				stack = append(stack, d)
			}
		}
	}
	for _, p := range g.passes {
		p.culled = !keep.Has(p.index)
		if p.culled {
			slogger().Debug("rendergraph: culled pass", "pass", p.name)
		}
	}
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// sort orders the surviving passes with Kahn's algorithm, always picking
// the ready pass added first.
func (g *Graph) sort() error {
	indegree := make([]int, len(g.passes))
	succ := make([][]int, len(g.passes))
	for _, p := range g.passes {
		if p.culled {
			continue
		}
		for _, list := range [][]int{p.deps, p.order} {
			for _, d := range list {
				if g.passes[d].culled {
					continue
				}
				succ[d] = append(succ[d], p.index)
				indegree[p.index]++
			}
		}
	}

	ready := &indexHeap{}
	for _, p := range g.passes {
		if !p.culled && indegree[p.index] == 0 {
			heap.Push(ready, p.index)
		}
	}
	g.schedule = g.schedule[:0]
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		g.schedule = append(g.schedule, g.passes[i])
		for _, s := range succ[i] {
			indegree[s]--
			if indegree[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}
	for _, p := range g.passes {
		if !p.culled && indegree[p.index] > 0 {
			return &Error{Pass: p.name, Err: errors.New("rendergraph: dependency cycle")}
		}
	}
	return nil
}

func (g *Graph) computeLifetimes() {
	for _, r := range g.resources {
		r.first, r.last = lifetimeEnd, lifetimeStart
	}
	for i, p := range g.schedule {
		for _, a := range p.accesses {
			r := g.resources[a.res]
			r.used = true
			r.first = min(r.first, i)
			r.last = max(r.last, i)
		}
	}
	for _, r := range g.resources {
		switch {
		case r.imported:
			r.used = true
			r.first, r.last = lifetimeStart, lifetimeEnd
		case r.used && (r.exported() || r.hasFinal):
			r.last = len(g.schedule)
		}
	}
}

// usage derives the usage flags a transient needs from its accesses.
func (g *Graph) usage() {
	for _, p := range g.schedule {
		for _, a := range p.accesses {
			r := g.resources[a.res]
			if r.imported {
				continue
			}
			if r.kind == kindTexture {
				r.tdesc.Usage |= textureUsage(a)
			} else {
				r.bdesc.Usage |= bufferUsage(a)
			}
		}
	}
	for _, r := range g.resources {
		if r.imported || !r.used || !r.exported() {
			continue
		}
		if r.kind == kindTexture {
			r.tdesc.Usage |= gputypes.TextureUsageCopySrc
		} else {
			r.bdesc.Usage |= gputypes.BufferUsageCopySrc
		}
	}
}

func textureUsage(a access) gputypes.TextureUsage {
	switch a.kind {
	case accessRead:
		return gputypes.TextureUsageTextureBinding
	case accessUAV:
		return gputypes.TextureUsageStorageBinding
	case accessRenderTarget, accessDepthStencil, accessDepthRead:
		return gputypes.TextureUsageRenderAttachment
	case accessCopySrc:
		return gputypes.TextureUsageCopySrc
	case accessCopyDst:
		return gputypes.TextureUsageCopyDst
	}
	return gputypes.TextureUsageNone
}

func bufferUsage(a access) gputypes.BufferUsage {
	switch a.kind {
	case accessRead:
		switch a.read {
		case ReadVertex:
			return gputypes.BufferUsageVertex
		case ReadIndex:
			return gputypes.BufferUsageIndex
		case ReadConstant:
			return gputypes.BufferUsageUniform
		case ReadIndirectArgs:
			return gputypes.BufferUsageIndirect
		}
		return gputypes.BufferUsageStorage
	case accessUAV:
		return gputypes.BufferUsageStorage
	case accessCopySrc:
		return gputypes.BufferUsageCopySrc
	case accessCopyDst:
		return gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageNone
}

// allocate packs transients onto pooled backings. Within a compatibility
// group resources are visited by first use and placed on the first backing
// whose last tenant ends before they begin.
func (g *Graph) allocate() error {
	g.usage()

	groups := map[string][]*resource{}
	var keys []string
	for _, r := range g.resources {
		if r.imported || !r.used {
			continue
		}
		var key string
		if r.kind == kindTexture {
			key = textureKey(r.tdesc)
		} else {
			key = bufferKey(r.bdesc)
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], r)
	}

	for _, key := range keys {
		group := groups[key]
		slices.SortStableFunc(group, func(a, b *resource) int {
			return cmp.Or(cmp.Compare(a.first, b.first), cmp.Compare(a.id, b.id))
		})
		var open []*backing
		for _, r := range group {
			var target *backing
			for _, b := range open {
				if b.tenants[len(b.tenants)-1].last < r.first {
					target = b
					break
				}
			}
			if target == nil {
				target = &backing{index: len(g.backings), key: key}
				g.backings = append(g.backings, target)
				open = append(open, target)
			}
			target.tenants = append(target.tenants, r)
			r.backing = target
		}
	}

	for _, b := range g.backings {
		first := b.tenants[0]
		var err error
		if first.kind == kindTexture {
			desc := first.tdesc
			if len(b.tenants) > 1 {
				desc.Label = fmt.Sprintf("Transient%d", b.index)
			}
			var t gfx.Texture
			t, b.state, err = g.pool.AcquireTexture(desc)
			b.res = t
			for _, r := range b.tenants {
				r.texture = t
			}
		} else {
			desc := first.bdesc
			var buf gfx.Buffer
			buf, b.state, err = g.pool.AcquireBuffer(desc)
			b.res = buf
			for _, r := range b.tenants {
				r.buffer = buf
			}
		}
		if err != nil {
			slogger().Error("rendergraph: transient allocation failed", "resource", first.name.str, "err", err)
			return &Error{Resource: first.name.str, Err: errors.Join(ErrAllocation, err)}
		}
	}

	for _, b := range g.backings {
		for _, r := range b.tenants[1:] {
			if err := g.checkAliasedFirstAccess(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) checkAliasedFirstAccess(r *resource) error {
	p := g.schedule[r.first]
	for _, a := range p.accesses {
		if a.res == r.id && a.kind.attachment() && a.ops.expectsContents() {
			return &Error{Pass: p.name, Resource: r.name.str, Err: ErrAliasedPreserve}
		}
	}
	return nil
}

func (g *Graph) createViews() error {
	for _, p := range g.schedule {
		for i := range p.accesses {
			a := &p.accesses[i]
			r := g.resources[a.res]
			var desc gfx.ViewDesc
			switch {
			case a.kind == accessRead && (r.kind == kindTexture || a.read.shader()):
				desc.Kind = gfx.ViewSRV
			case a.kind == accessUAV:
				desc.Kind = gfx.ViewUAV
			case a.kind == accessRenderTarget:
				desc.Kind = gfx.ViewRTV
			case a.kind == accessDepthStencil:
				desc.Kind = gfx.ViewDSV
			case a.kind == accessDepthRead:
				desc.Kind, desc.ReadOnlyDepth = gfx.ViewDSV, true
			default:
				continue
			}
			v, err := g.pool.View(r.physical(), desc)
			if err != nil {
				return &Error{Pass: p.name, Resource: r.name.str, Err: err}
			}
			a.view = v
		}
	}
	return nil
}

func (g *Graph) track(r *resource) *stateTrack {
	res := r.physical()
	t, ok := g.tracks[res]
	if !ok {
		t = &stateTrack{uavPass: -1}
		if r.imported {
			t.state = r.initial
		} else {
			t.state = r.backing.state
		}
		g.tracks[res] = t
	}
	return t
}

// planBarriers walks the schedule tracking the state of every physical
// resource and records the barriers each pass needs.
func (g *Graph) planBarriers() error {
	for i, p := range g.schedule {
		required := map[int]gfx.ResourceState{}
		var order []int
		for _, a := range p.accesses {
			if _, ok := required[a.res]; !ok {
				order = append(order, a.res)
			}
			required[a.res] |= a.state
		}

		var aliasing, transitions []gfx.Barrier
		for _, id := range order {
			r := g.resources[id]
			want := required[id]
			if !want.Valid() {
				return &Error{Pass: p.name, Resource: r.name.str,
					Err: fmt.Errorf("%w: state %s", ErrIncompatibleAccess, want)}
			}
			t := g.track(r)
			if t.tenant != nil && t.tenant != r {
				aliasing = append(aliasing, gfx.Barrier{
					Kind:         gfx.BarrierAliasing,
					Resource:     r.physical(),
					TenantBefore: t.tenant.name.str,
					TenantAfter:  r.name.str,
				})
				t.uavPass = -1
			}
			t.tenant = r
			switch {
			case t.state != want:
				transitions = append(transitions, gfx.Transition(r.physical(), t.state, want))
				t.state = want
			case want == gfx.StateUnorderedAccess && t.uavPass >= 0 && t.uavPass != i:
				transitions = append(transitions, gfx.Barrier{
					Kind:         gfx.BarrierUAV,
					Resource:     r.physical(),
					Subresources: gfx.AllSubresources,
				})
			}
			if want == gfx.StateUnorderedAccess {
				t.uavPass = i
			}
		}
		p.barriers = append(aliasing, transitions...)
		g.barrierCt += len(p.barriers)
	}
	g.planEpilogue()
	return nil
}

func (g *Graph) planEpilogue() {
	e := &g.epilogue
	for _, r := range g.resources {
		if !r.used || !r.exported() {
			continue
		}
		t := g.track(r)
		if t.state != gfx.StateCopySrc {
			e.before = append(e.before, gfx.Transition(r.physical(), t.state, gfx.StateCopySrc))
			t.state = gfx.StateCopySrc
		}
		var dst gfx.Resource
		var size uint64
		if r.kind == kindTexture {
			dst = r.exportTexture
		} else {
			dst = r.exportBuffer
			size = min(r.bdesc.Size, r.exportBuffer.Desc().Size)
		}
		if r.exportState != gfx.StateCopyDst {
			e.before = append(e.before, gfx.Transition(dst, r.exportState, gfx.StateCopyDst))
			e.after = append(e.after, gfx.Transition(dst, gfx.StateCopyDst, r.exportState))
		}
		e.exports = append(e.exports, exportOp{src: r.physical(), dst: dst, size: size})
	}
	for _, r := range g.resources {
		if !r.used || !r.hasFinal {
			continue
		}
		t := g.track(r)
		if t.state != r.final {
			e.after = append(e.after, gfx.Transition(r.physical(), t.state, r.final))
			t.state = r.final
		}
	}
	g.barrierCt += len(e.before) + len(e.after)
}

func (g *Graph) synthesizeRenderPasses() {
	for _, p := range g.schedule {
		if p.typ != PassGraphics || p.flags&SkipAutoRenderPass != 0 {
			continue
		}
		rp := &gfx.RenderPassDesc{Label: p.name, Width: p.viewportW, Height: p.viewportH}
		for _, a := range p.accesses {
			if !a.kind.attachment() {
				continue
			}
			r := g.resources[a.res]
			if rp.Width == 0 || rp.Height == 0 {
				rp.Width, rp.Height = r.tdesc.Width, r.tdesc.Height
			}
			var clear gfx.ClearValue
			if r.tdesc.Clear != nil {
				clear = *r.tdesc.Clear
			}
			if a.kind == accessRenderTarget {
				rp.Colors = append(rp.Colors, gfx.ColorAttachment{
					View:       a.view,
					LoadOp:     a.ops.Load.gpu(),
					StoreOp:    a.ops.Store.gpu(),
					ClearColor: clear.Color,
				})
				continue
			}
			rp.Depth = &gfx.DepthAttachment{
				View:         a.view,
				DepthLoadOp:  a.ops.Load.gpu(),
				DepthStoreOp: a.ops.Store.gpu(),
				ClearDepth:   clear.Depth,
				ClearStencil: clear.Stencil,
				ReadOnly:     a.kind == accessDepthRead,
			}
		}
		if len(rp.Colors) > 0 || rp.Depth != nil {
			p.renderPass = rp
		}
	}
}

// Release returns the transients to the pool in their final states. Execute
// calls it; call it directly to drop a compiled graph without executing.
func (g *Graph) Release() {
	if g.released {
		return
	}
	g.released = true
	for _, b := range g.backings {
		if b.res == nil {
			continue
		}
		state := b.state
		if t, ok := g.tracks[b.res]; ok {
			state = t.state
		}
		g.pool.Release(b.res, state)
	}
}
