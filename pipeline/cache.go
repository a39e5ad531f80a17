// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline caches pipeline state objects by id and rebuilds them
// when their shaders are recompiled.
package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/internal/parallel"
	"github.com/gogpu/framegraph/shader"
)

var (
	// ErrNilDevice is returned when creating a cache without a device.
	ErrNilDevice = errors.New("pipeline: device is nil")

	// ErrDuplicate is returned when an id is registered twice.
	ErrDuplicate = errors.New("pipeline: id already registered")

	// ErrClosed is returned after Destroy.
	ErrClosed = errors.New("pipeline: cache destroyed")
)

// ID names a pipeline. Ids are chosen by the caller, typically from an
// enumeration of every pipeline the renderer uses.
type ID uint32

// ShaderSource provides compiled shaders and recompilation events.
// *shader.Cache implements it.
type ShaderSource interface {
	GetGfxShader(key shader.Key) (gfx.Shader, error)
	InputLayout(key shader.Key) (gfx.InputLayout, error)
	Subscribe(fn func(shader.Key)) shader.Subscription
	Unsubscribe(s shader.Subscription)
}

// GraphicsDesc describes a graphics pipeline in terms of shader keys.
type GraphicsDesc struct {
	Label string

	VS shader.Key
	PS *shader.Key

	// InputLayout overrides the layout reflected from VS.
	InputLayout *gfx.InputLayout

	Primitive    gputypes.PrimitiveState
	ColorFormats []gputypes.TextureFormat
	Blend        *gputypes.BlendState
	DepthFormat  gputypes.TextureFormat
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
	SampleCount  uint32
}

func (d *GraphicsDesc) keys() []shader.Key {
	if d.PS != nil {
		return []shader.Key{d.VS, *d.PS}
	}
	return []shader.Key{d.VS}
}

// ComputeDesc describes a compute pipeline.
type ComputeDesc struct {
	Label string
	CS    shader.Key
}

// Pipeline is a stable handle to a pipeline object that may be replaced by
// a rebuild.
type Pipeline struct {
	id    ID
	label string
	obj   atomic.Pointer[object]
	gen   atomic.Uint64
}

type object struct{ p gfx.Pipeline }

// ID returns the pipeline id.
func (p *Pipeline) ID() ID { return p.id }

// Label returns the pipeline label.
func (p *Pipeline) Label() string { return p.label }

// Object returns the current device pipeline.
func (p *Pipeline) Object() gfx.Pipeline {
	if o := p.obj.Load(); o != nil {
		return o.p
	}
	return nil
}

// Generation counts successful builds, starting at 1.
func (p *Pipeline) Generation() uint64 { return p.gen.Load() }

func (p *Pipeline) swap(obj gfx.Pipeline) gfx.Pipeline {
	old := p.obj.Swap(&object{p: obj})
	p.gen.Add(1)
	if old == nil {
		return nil
	}
	return old.p
}

type entry struct {
	pipe     *Pipeline
	graphics *GraphicsDesc
	compute  *ComputeDesc
}

func (e *entry) keys() []shader.Key {
	if e.graphics != nil {
		return e.graphics.keys()
	}
	return []shader.Key{e.compute.CS}
}

// Option configures a Cache.
type Option func(*Cache)

// WithRetire routes replaced pipeline objects to fn instead of destroying
// them immediately. The frame orchestrator passes its release queue.
func WithRetire(fn func(gfx.Pipeline)) Option { return func(c *Cache) { c.retire = fn } }

// WithParallelism rebuilds pending pipelines on n goroutines. n <= 0 uses
// GOMAXPROCS. The device must support concurrent pipeline creation.
func WithParallelism(n int) Option {
	return func(c *Cache) { c.workers = parallel.NewWorkerPool(n) }
}

// Stats reports cache activity.
type Stats struct {
	Pipelines int
	Hits      uint64
	Misses    uint64
	Rebuilds  uint64
	Failures  uint64
	Pending   int
}

// Cache maps ids to pipelines. It is safe for concurrent use.
type Cache struct {
	dev     gfx.Device
	shaders ShaderSource
	sub     shader.Subscription
	retire  func(gfx.Pipeline)
	workers *parallel.WorkerPool

	mu      sync.RWMutex
	entries map[ID]*entry
	byKey   map[uint64][]ID
	pending map[ID]bool
	closed  bool

	hits     atomic.Uint64
	misses   atomic.Uint64
	rebuilds atomic.Uint64
	failures atomic.Uint64
}

// NewCache returns a cache creating pipelines on dev from shaders and
// subscribes to recompilation events.
func NewCache(dev gfx.Device, shaders ShaderSource, opts ...Option) (*Cache, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	c := &Cache{
		dev:     dev,
		shaders: shaders,
		entries: make(map[ID]*entry),
		byKey:   make(map[uint64][]ID),
		pending: make(map[ID]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sub = shaders.Subscribe(c.onRecompiled)
	return c, nil
}

// AddGraphics builds and registers a graphics pipeline.
func (c *Cache) AddGraphics(id ID, desc GraphicsDesc) (*Pipeline, error) {
	return c.add(id, &entry{graphics: &desc}, desc.Label)
}

// AddCompute builds and registers a compute pipeline.
func (c *Cache) AddCompute(id ID, desc ComputeDesc) (*Pipeline, error) {
	return c.add(id, &entry{compute: &desc}, desc.Label)
}

func (c *Cache) add(id ID, e *entry, label string) (*Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.entries[id]; ok {
		return nil, fmt.Errorf("%w: %d (%s)", ErrDuplicate, id, label)
	}
	obj, err := c.build(e)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", label, err)
	}
	e.pipe = &Pipeline{id: id, label: label}
	e.pipe.swap(obj)
	c.entries[id] = e
	for _, k := range e.keys() {
		h := k.Hash()
		if !slices.Contains(c.byKey[h], id) {
			c.byKey[h] = append(c.byKey[h], id)
		}
	}
	slogger().Debug("pipeline created", "id", id, "label", label)
	return e.pipe, nil
}

func (c *Cache) build(e *entry) (gfx.Pipeline, error) {
	if e.compute != nil {
		cs, err := c.shaders.GetGfxShader(e.compute.CS)
		if err != nil {
			return nil, err
		}
		return c.dev.CreateComputePipeline(&gfx.ComputePipelineDesc{Label: e.compute.Label, CS: cs})
	}
	d := e.graphics
	vs, err := c.shaders.GetGfxShader(d.VS)
	if err != nil {
		return nil, err
	}
	desc := &gfx.GraphicsPipelineDesc{
		Label:        d.Label,
		VS:           vs,
		Primitive:    d.Primitive,
		ColorFormats: d.ColorFormats,
		Blend:        d.Blend,
		DepthFormat:  d.DepthFormat,
		DepthWrite:   d.DepthWrite,
		DepthCompare: d.DepthCompare,
		SampleCount:  max(d.SampleCount, 1),
	}
	if d.PS != nil {
		ps, err := c.shaders.GetGfxShader(*d.PS)
		if err != nil {
			return nil, err
		}
		desc.PS = &ps
	}
	if d.InputLayout != nil {
		desc.InputLayout = *d.InputLayout
	} else {
		layout, err := c.shaders.InputLayout(d.VS)
		if err != nil {
			return nil, err
		}
		desc.InputLayout = layout
	}
	return c.dev.CreateGraphicsPipeline(desc)
}

// Get returns the pipeline registered under id, or nil.
func (c *Cache) Get(id ID) *Pipeline {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return e.pipe
}

func (c *Cache) onRecompiled(k shader.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.byKey[k.Hash()] {
		if e := c.entries[id]; e != nil && slices.ContainsFunc(e.keys(), k.Equal) {
			c.pending[id] = true
		}
	}
}

// Pending returns the number of pipelines waiting for a rebuild.
func (c *Cache) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// RebuildPending rebuilds every pipeline whose shaders were recompiled.
// It must run at a frame boundary with no command list referencing the
// old objects still recording. A failed rebuild keeps the previous object.
func (c *Cache) RebuildPending() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	ids := make([]ID, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	clear(c.pending)

	objs := make([]gfx.Pipeline, len(ids))
	berrs := make([]error, len(ids))
	work := make([]func(), len(ids))
	for i, id := range ids {
		work[i] = func() { objs[i], berrs[i] = c.build(c.entries[id]) }
	}
	if c.workers != nil && len(work) > 1 {
		c.workers.ExecuteAll(work)
	} else {
		for _, fn := range work {
			fn()
		}
	}

	var (
		rebuilt int
		errs    []error
	)
	for i, id := range ids {
		e := c.entries[id]
		obj, err := objs[i], berrs[i]
		if err != nil {
			c.failures.Add(1)
			slogger().Warn("pipeline rebuild failed, keeping previous object", "id", id, "label", e.pipe.label, "err", err)
			errs = append(errs, fmt.Errorf("pipeline %s: %w", e.pipe.label, err))
			continue
		}
		c.dispose(e.pipe.swap(obj))
		c.rebuilds.Add(1)
		rebuilt++
		slogger().Info("pipeline rebuilt", "id", id, "label", e.pipe.label, "generation", e.pipe.Generation())
	}
	return rebuilt, errors.Join(errs...)
}

func (c *Cache) dispose(p gfx.Pipeline) {
	if p == nil {
		return
	}
	if c.retire != nil {
		c.retire(p)
		return
	}
	p.Destroy()
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Pipelines: len(c.entries),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Rebuilds:  c.rebuilds.Load(),
		Failures:  c.failures.Load(),
		Pending:   len(c.pending),
	}
}

// Destroy unsubscribes from the shader source and destroys every pipeline.
func (c *Cache) Destroy() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	entries := c.entries
	c.entries = map[ID]*entry{}
	c.byKey = map[uint64][]ID{}
	clear(c.pending)
	c.mu.Unlock()

	c.shaders.Unsubscribe(c.sub)
	if c.workers != nil {
		c.workers.Close()
	}
	for _, e := range entries {
		if o := e.pipe.obj.Swap(nil); o != nil {
			o.p.Destroy()
		}
	}
}
