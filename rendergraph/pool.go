// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/internal/cache"
)

// Default pool configuration.
const (
	DefaultMaxIdleFrames = 8
	DefaultMaxViews      = 1024
)

// ErrPoolClosed is returned after Destroy.
var ErrPoolClosed = errors.New("rendergraph: resource pool closed")

// PoolConfig configures a ResourcePool.
type PoolConfig struct {
	// BudgetBytes caps the memory held by pooled resources. Zero means the
	// device is the only limit.
	BudgetBytes uint64

	// MaxIdleFrames is how many Ticks an unleased resource survives.
	// Defaults to DefaultMaxIdleFrames.
	MaxIdleFrames uint64

	// MaxViews bounds the view cache shared by every graph using the pool.
	// Defaults to DefaultMaxViews.
	MaxViews int

	// Retire receives evicted resources. Frames still in flight may
	// reference them, so it must defer destruction until their fences
	// complete. It runs with the pool locked. Nil destroys evicted
	// resources immediately, which is only safe when the GPU is idle
	// between frames.
	Retire func(gfx.Resource)
}

// PoolStats describes the pool.
type PoolStats struct {
	BudgetBytes   uint64
	UsedBytes     uint64
	LeasedBytes   uint64
	Resources     int
	Leased        int
	Created       uint64
	EvictionCount uint64
	Views         cache.Stats
}

func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d/%d resources leased, %d KB used, %d KB leased, %d created, %d evictions, %d views (%.0f%% hits)]",
		s.Leased, s.Resources, s.UsedBytes/1024, s.LeasedBytes/1024, s.Created, s.EvictionCount,
		s.Views.Len, s.Views.HitRate()*100)
}

type viewKey struct {
	res  gfx.Resource
	desc gfx.ViewDesc
}

type poolEntry struct {
	res       gfx.Resource
	key       string
	sizeBytes uint64
	state     gfx.ResourceState
	leased    bool
	lastFrame uint64
	element   *list.Element
}

// ResourcePool keeps physical textures and buffers alive across frames so
// transients of matching shape reuse them. Each resource remembers the state
// it was left in. It is safe for concurrent use.
type ResourcePool struct {
	mu sync.Mutex

	dev gfx.Device

	budgetBytes uint64
	usedBytes   uint64
	leasedBytes uint64
	maxIdle     uint64

	entries map[gfx.Resource]*poolEntry

	// lru holds idle entries, most recently released at the front.
	lru *list.List

	views *cache.Cache[viewKey, gfx.Descriptor]

	retire func(gfx.Resource)

	frame     uint64
	created   uint64
	evictions uint64
	closed    bool
}

// NewResourcePool creates a pool allocating from dev.
func NewResourcePool(dev gfx.Device, cfg PoolConfig) *ResourcePool {
	if cfg.MaxIdleFrames == 0 {
		cfg.MaxIdleFrames = DefaultMaxIdleFrames
	}
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = DefaultMaxViews
	}
	return &ResourcePool{
		dev:         dev,
		budgetBytes: cfg.BudgetBytes,
		maxIdle:     cfg.MaxIdleFrames,
		entries:     make(map[gfx.Resource]*poolEntry),
		lru:         list.New(),
		views:       cache.New[viewKey, gfx.Descriptor](cfg.MaxViews),
		retire:      cfg.Retire,
	}
}

// View returns a view of r, creating it on first use. Views live until r
// leaves the pool or the cache evicts them; callers may pass imported
// resources too.
func (p *ResourcePool) View(r gfx.Resource, desc gfx.ViewDesc) (gfx.Descriptor, error) {
	return p.views.GetOrCreate(viewKey{res: r, desc: desc}, func() (gfx.Descriptor, error) {
		return p.dev.CreateView(r, &desc)
	})
}

// ForgetViews drops the cached views of r. Owners of imported resources
// call it before destroying them.
func (p *ResourcePool) ForgetViews(r gfx.Resource) {
	p.views.DeleteFunc(func(k viewKey, _ gfx.Descriptor) bool { return k.res == r })
}

func textureKey(d gfx.TextureDesc) string {
	return fmt.Sprintf("t/%dx%dx%d/m%d/s%d/d%d/f%d/u%x",
		d.Width, d.Height, d.Depth, d.MipLevels, d.SampleCount, d.Dimension, d.Format, uint64(d.Usage))
}

func bufferKey(d gfx.BufferDesc) string {
	return fmt.Sprintf("b/%d/s%d/u%x/c%t", d.Size, d.Stride, uint64(d.Usage), d.CPUVisible)
}

// AcquireTexture leases a texture matching desc and returns the state it is
// in.
func (p *ResourcePool) AcquireTexture(desc gfx.TextureDesc) (gfx.Texture, gfx.ResourceState, error) {
	desc = desc.Normalized()
	r, st, err := p.acquire(textureKey(desc), desc.SizeBytes(), func() (gfx.Resource, error) {
		d := desc
		d.InitialState = gfx.StateCommon
		return p.dev.CreateTexture(&d)
	})
	if err != nil {
		return nil, 0, err
	}
	return r.(gfx.Texture), st, nil
}

// AcquireBuffer leases a buffer matching desc and returns the state it is in.
func (p *ResourcePool) AcquireBuffer(desc gfx.BufferDesc) (gfx.Buffer, gfx.ResourceState, error) {
	r, st, err := p.acquire(bufferKey(desc), desc.Size, func() (gfx.Resource, error) {
		d := desc
		d.InitialState = gfx.StateCommon
		return p.dev.CreateBuffer(&d)
	})
	if err != nil {
		return nil, 0, err
	}
	return r.(gfx.Buffer), st, nil
}

func (p *ResourcePool) acquire(key string, size uint64, create func() (gfx.Resource, error)) (gfx.Resource, gfx.ResourceState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, 0, ErrPoolClosed
	}

	for e := p.lru.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*poolEntry)
		if entry.key == key {
			p.lru.Remove(e)
			entry.element = nil
			entry.leased = true
			entry.lastFrame = p.frame
			p.leasedBytes += entry.sizeBytes
			return entry.res, entry.state, nil
		}
	}

	if p.budgetBytes > 0 && size > p.budgetBytes {
		return nil, 0, fmt.Errorf("%w: %d bytes exceeds pool budget %d", gfx.ErrOutOfMemory, size, p.budgetBytes)
	}
	for p.budgetBytes > 0 && p.usedBytes+size > p.budgetBytes {
		if !p.evictOldestLocked() {
			return nil, 0, fmt.Errorf("%w: %d bytes requested, %d of %d leased",
				gfx.ErrOutOfMemory, size, p.leasedBytes, p.budgetBytes)
		}
	}

	var res gfx.Resource
	for {
		var err error
		res, err = create()
		if err == nil {
			break
		}
		// A retired resource frees its memory only after its frames
		// complete, so with Retire set this drains the idle list and fails.
		if !errors.Is(err, gfx.ErrOutOfMemory) || !p.evictOldestLocked() {
			return nil, 0, err
		}
		slogger().Debug("rendergraph: evicted pooled resource after device allocation failure", "key", key)
	}

	p.entries[res] = &poolEntry{
		res:       res,
		key:       key,
		sizeBytes: size,
		state:     gfx.StateCommon,
		leased:    true,
		lastFrame: p.frame,
	}
	p.usedBytes += size
	p.leasedBytes += size
	p.created++
	return res, gfx.StateCommon, nil
}

// Release returns a leased resource in the given state.
func (p *ResourcePool) Release(r gfx.Resource, state gfx.ResourceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[r]
	if !ok || !entry.leased {
		return
	}
	entry.leased = false
	entry.state = state
	entry.lastFrame = p.frame
	entry.element = p.lru.PushFront(entry)
	p.leasedBytes -= entry.sizeBytes
}

// Tick advances the frame counter and destroys resources idle for more
// than MaxIdleFrames ticks.
func (p *ResourcePool) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame++
	for e := p.lru.Back(); e != nil; {
		prev := e.Prev()
		entry := e.Value.(*poolEntry)
		if p.frame-entry.lastFrame > p.maxIdle {
			p.removeLocked(entry)
		}
		e = prev
	}
}

// evictOldestLocked removes the least recently used idle resource.
func (p *ResourcePool) evictOldestLocked() bool {
	e := p.lru.Back()
	if e == nil {
		return false
	}
	p.removeLocked(e.Value.(*poolEntry))
	return true
}

func (p *ResourcePool) removeLocked(entry *poolEntry) {
	if entry.element != nil {
		p.lru.Remove(entry.element)
		entry.element = nil
	}
	delete(p.entries, entry.res)
	p.usedBytes -= entry.sizeBytes
	p.evictions++
	p.ForgetViews(entry.res)
	if p.retire != nil {
		p.retire(entry.res)
		return
	}
	entry.res.Destroy()
}

// Stats returns a snapshot of the pool.
func (p *ResourcePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		BudgetBytes:   p.budgetBytes,
		UsedBytes:     p.usedBytes,
		LeasedBytes:   p.leasedBytes,
		Resources:     len(p.entries),
		Leased:        len(p.entries) - p.lru.Len(),
		Created:       p.created,
		EvictionCount: p.evictions,
		Views:         p.views.Stats(),
	}
}

// Destroy releases every pooled resource, leased or not.
func (p *ResourcePool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for r := range p.entries {
		r.Destroy()
	}
	p.entries = nil
	p.lru.Init()
	p.views.Clear()
	p.usedBytes, p.leasedBytes = 0, 0
	p.closed = true
}
