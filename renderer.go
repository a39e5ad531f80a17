// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/descriptor"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/passes"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
	"github.com/gogpu/framegraph/shader"
	"github.com/gogpu/framegraph/upload"
)

// ErrClosed is returned by a Renderer after Destroy.
var ErrClosed = errors.New("framegraph: renderer closed")

// Renderer turns a scene into presented frames. It owns the shader and
// pipeline caches, the descriptor ring, the transient pool and one upload
// allocator per backbuffer slot.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	cfg       config.Config
	dev       gfx.Device
	ownDevice bool

	shaders   *shader.Cache
	pipelines *pipeline.Cache
	library   *passes.Library
	ring      *descriptor.Ring
	pool      *rendergraph.ResourcePool
	bb        *rendergraph.Blackboard
	uploads   []*upload.Linear
	slots     []frameSlot
	release   *releaseQueue

	fence      gfx.Fence
	fenceValue uint64

	registry   *scene.Registry
	camera     *scene.Camera
	visibility scene.Visibility
	vertices   gfx.Buffer
	indices    gfx.Buffer
	history    gfx.Texture
	ui         passes.UIFunc

	fatalHandler func(error)

	frame  uint64
	time   float32
	last   frameStats
	closed bool
}

type frameStats struct {
	passes, culled int
}

// New creates a renderer drawing reg through cam. Startup shader compile
// failures are returned, not handed to the fatal handler.
func New(reg *scene.Registry, cam *scene.Camera, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Renderer{
		cfg:          o.cfg,
		dev:          o.device,
		registry:     reg,
		camera:       cam,
		vertices:     o.vertices,
		indices:      o.indices,
		ui:           o.ui,
		fatalHandler: o.fatal,
		bb:           rendergraph.NewBlackboard(),
	}
	if r.fatalHandler == nil {
		r.fatalHandler = func(err error) { panic(err) }
	}
	if err := r.init(o); err != nil {
		r.Destroy()
		return nil, err
	}
	slogger().Info("framegraph: renderer ready", "backend", r.dev.Name(),
		"width", r.cfg.Width, "height", r.cfg.Height, "slots", len(r.slots))
	return r, nil
}

func (r *Renderer) init(o options) error {
	cfg := r.cfg
	if r.dev == nil {
		bc := backend.Config{
			Width:              cfg.Width,
			Height:             cfg.Height,
			BackbufferCount:    cfg.BackbufferCount,
			DescriptorHeapSize: cfg.DescriptorHeapSize,
		}
		var err error
		if cfg.Backend == "" {
			r.dev, err = backend.OpenDefault(bc)
		} else {
			r.dev, err = backend.Open(cfg.Backend, bc)
		}
		if err != nil {
			return err
		}
		r.ownDevice = true
	}

	count := r.dev.Swapchain().Count()
	r.release = newReleaseQueue(count)
	r.slots = make([]frameSlot, count)
	for i := range r.slots {
		r.slots[i].index = i
	}

	shaderOpts := []shader.Option{shader.WithWatcher(cfg.Shaders.HotReload)}
	if o.compiler != nil {
		shaderOpts = append(shaderOpts, shader.WithCompiler(o.compiler))
	}
	if o.retry != nil {
		shaderOpts = append(shaderOpts, shader.WithRetry(o.retry))
	}
	r.shaders = shader.NewCache(cfg.Shaders.Dir, cfg.Shaders.CacheDir, shaderOpts...)
	if err := r.shaders.Initialize(); err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithRetire(func(p gfx.Pipeline) {
		r.release.push(p, r.fenceValue)
	})}
	if n := cfg.Shaders.RebuildWorkers; n != 0 {
		opts = append(opts, pipeline.WithParallelism(n))
	}
	var err error
	r.pipelines, err = pipeline.NewCache(r.dev, r.shaders, opts...)
	if err != nil {
		return err
	}
	popts := passes.Options{Debug: cfg.Shaders.Debug, DisableOptimization: cfg.Shaders.DisableOptimization}
	if err := passes.Register(r.pipelines, r.dev.Swapchain().Format(), popts); err != nil {
		return fmt.Errorf("framegraph: startup pipelines: %w", err)
	}
	r.library = passes.NewLibrary(r.pipelines, passes.WithRetire(func(res gfx.Resource) {
		r.release.push(res, r.fenceValue)
	}))

	if r.ring, err = descriptor.NewRing(r.dev.DescriptorHeap(), cfg.DescriptorReserve); err != nil {
		return err
	}
	r.pool = rendergraph.NewResourcePool(r.dev, rendergraph.PoolConfig{
		BudgetBytes: cfg.TransientBudgetBytes(),
		Retire: func(res gfx.Resource) {
			r.release.push(res, r.fenceValue)
		},
	})

	for i := range count {
		l, err := upload.NewLinear(r.dev, fmt.Sprintf("Upload%d", i), cfg.UploadBufferKB<<10)
		if err != nil {
			return err
		}
		r.uploads = append(r.uploads, l)
	}
	if r.fence, err = r.dev.CreateFence(); err != nil {
		return fmt.Errorf("framegraph: create fence: %w", err)
	}
	return r.createHistory()
}

// createHistory allocates the persistent TAA history at the current
// resolution.
func (r *Renderer) createHistory() error {
	tex, err := r.dev.CreateTexture(&gfx.TextureDesc{
		Label:        "TAA History",
		Width:        r.cfg.Width,
		Height:       r.cfg.Height,
		Format:       passes.HDRFormat,
		Usage:        gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		InitialState: gfx.StateNonPixelShaderResource,
	})
	if err != nil {
		return fmt.Errorf("framegraph: create TAA history: %w", err)
	}
	r.history = tex
	return nil
}

// Device returns the device the renderer draws with.
func (r *Renderer) Device() gfx.Device { return r.dev }

// Shaders returns the shader cache.
func (r *Renderer) Shaders() *shader.Cache { return r.shaders }

// Pipelines returns the pipeline cache.
func (r *Renderer) Pipelines() *pipeline.Cache { return r.pipelines }

// Config returns the active configuration.
func (r *Renderer) Config() config.Config { return r.cfg }

// SetPostprocess replaces the postprocess settings from the next frame on.
func (r *Renderer) SetPostprocess(p config.Postprocess) error {
	c := r.cfg
	c.Postprocess = p
	if err := c.Validate(); err != nil {
		return err
	}
	r.cfg = c
	return nil
}

// SlotState returns the state of backbuffer slot i.
func (r *Renderer) SlotState(i int) SlotState { return r.slots[i].state }

// Retire destroys obj once every frame that may reference it has
// completed on the GPU.
func (r *Renderer) Retire(obj interface{ Destroy() }) {
	r.release.push(obj, r.fenceValue)
}

// fatal logs err and hands it to the fatal handler. It returns err for
// handlers that do not stop the process.
func (r *Renderer) fatal(err error) error {
	slogger().Error("framegraph: fatal", "frame", r.frame, "err", err)
	r.fatalHandler(err)
	return err
}

// Render records, submits and presents one frame advancing the scene
// clock by dt seconds. Errors are fatal and reach the fatal handler first.
func (r *Renderer) Render(dt float32) error {
	if r.closed {
		return ErrClosed
	}
	slot, err := r.acquire()
	if err != nil {
		return r.fatal(err)
	}
	if err := r.reloadShaders(); err != nil {
		r.slots[slot].abort()
		return r.fatal(err)
	}
	if err := r.renderSlot(slot, dt); err != nil {
		r.slots[slot].abort()
		return r.fatal(err)
	}
	return nil
}

// acquire waits for the current backbuffer slot and recycles the per-frame
// allocators its last frame used.
func (r *Renderer) acquire() (int, error) {
	slot := r.dev.Swapchain().Current()
	if err := r.slots[slot].acquire(r.fence); err != nil {
		return slot, err
	}
	r.recycle()
	r.uploads[slot].Reset()
	return slot, nil
}

// recycle frees whatever completed GPU work no longer references.
func (r *Renderer) recycle() {
	completed := r.fence.CompletedValue()
	for i := range r.slots {
		// Polling only; errors need a wait.
		_ = r.slots[i].retire(r.fence, false)
	}
	r.ring.ReleaseCompletedFrames(completed)
	if n := r.release.collect(completed); n > 0 {
		slogger().Debug("framegraph: released resources", "count", n, "completed", completed)
	}
	r.pool.Tick()
}

// reloadShaders recompiles changed shaders and rebuilds their pipelines at
// the frame boundary.
func (r *Renderer) reloadShaders() error {
	if !r.cfg.Shaders.HotReload {
		return nil
	}
	changed, err := r.shaders.CheckIfShadersHaveChanged()
	if err != nil {
		slogger().Warn("framegraph: shader reload", "err", err)
	}
	if len(changed) > 0 {
		slogger().Info("framegraph: shaders recompiled", "count", len(changed))
	}
	if r.pipelines.Pending() == 0 {
		return nil
	}
	if err := r.WaitForGPU(); err != nil {
		return err
	}
	n, err := r.pipelines.RebuildPending()
	if err != nil {
		slogger().Warn("framegraph: pipeline rebuild kept previous objects", "err", err)
	}
	slogger().Debug("framegraph: pipelines rebuilt", "count", n)
	return nil
}

func (r *Renderer) renderSlot(slot int, dt float32) error {
	cfg := r.cfg
	r.time += dt

	jx, jy := float32(0), float32(0)
	if cfg.Postprocess.Upscaler == config.UpscalerTAA {
		jx, jy = scene.Jitter(r.frame, cfg.Width, cfg.Height)
	}
	r.camera.Update()
	scene.ComputeVisibility(r.registry, r.camera.Frustum(), &r.visibility)

	proj := r.camera.JitteredProj(jx, jy)
	constants := passes.FrameConstants{
		View:           r.camera.View(),
		Proj:           proj,
		ViewProj:       proj.Mul(r.camera.View()),
		PrevViewProj:   r.camera.PrevViewProj(),
		CameraPosition: [4]float32{r.camera.Position[0], r.camera.Position[1], r.camera.Position[2], 1},
		Jitter:         [2]float32{jx, jy},
		Resolution:     [2]float32{float32(cfg.Width), float32(cfg.Height)},
		Time:           r.time,
		DeltaTime:      dt,
		FrameIndex:     uint32(r.frame),
		LightCount:     uint32(len(r.visibility.Lights)),
	}
	up := r.uploads[slot]
	frameAlloc, err := up.Upload(constants.Bytes(), upload.ConstantAlignment)
	if err != nil {
		return err
	}
	lights := make([]passes.LightConstants, max(len(r.visibility.Lights), 1))
	for i, e := range r.visibility.Lights {
		lights[i] = passes.PackLight(scene.Get[scene.Light](r.registry, e))
	}
	lightAlloc, err := up.Upload(passes.EncodeLights(lights), upload.ConstantAlignment)
	if err != nil {
		return err
	}

	rendergraph.Add(r.bb, passes.FrameData{
		Width:            cfg.Width,
		Height:           cfg.Height,
		FrameIndex:       r.frame,
		DeltaTime:        dt,
		Camera:           r.camera.Position,
		ConstantsAddress: frameAlloc.GPUAddress,
		LightsAddress:    lightAlloc.GPUAddress,
		Settings:         cfg.Postprocess,
	})
	rendergraph.Add(r.bb, passes.SceneData{
		Registry:   r.registry,
		Visibility: &r.visibility,
		Vertices:   r.vertices,
		Indices:    r.indices,
	})
	defer r.bb.Clear()

	g, err := r.build(slot)
	if err != nil {
		return err
	}
	if err := g.Compile(); err != nil {
		return err
	}
	r.last = frameStats{passes: len(g.Schedule()), culled: len(g.Culled())}
	slogger().Debug("framegraph: frame compiled", "frame", r.frame,
		"passes", r.last.passes, "culled", r.last.culled, "backings", g.Backings())

	cmd := r.dev.CommandList(slot)
	if err := cmd.Begin(); err != nil {
		return fmt.Errorf("framegraph: begin command list: %w", err)
	}
	if err := g.Execute(cmd); err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return fmt.Errorf("framegraph: end command list: %w", err)
	}

	r.fenceValue++
	if err := r.dev.Submit(cmd, r.fence, r.fenceValue); err != nil {
		return fmt.Errorf("framegraph: submit: %w", err)
	}
	if err := r.slots[slot].submit(r.fenceValue); err != nil {
		return err
	}
	r.ring.FinishCurrentFrame(r.fenceValue)
	if err := r.dev.Swapchain().Present(); err != nil {
		return fmt.Errorf("framegraph: present: %w", err)
	}
	if err := r.slots[slot].present(); err != nil {
		return err
	}
	r.frame++
	return nil
}

// build declares the frame's passes in their logical order.
func (r *Renderer) build(slot int) (*rendergraph.Graph, error) {
	g := rendergraph.New(rendergraph.Config{
		Device:     r.dev,
		Pool:       r.pool,
		Ring:       r.ring,
		Blackboard: r.bb,
	})
	g.ImportTexture(passes.Backbuffer, r.dev.Swapchain().Backbuffer(slot), gfx.StatePresent, gfx.StatePresent)
	passes.ImportGeometry(g)

	lib := r.library
	lib.AddGBuffer(g)
	lib.AddShadows(g)
	lib.AddAmbientOcclusion(g)
	lib.AddDeferredLighting(g)
	lib.AddSky(g)
	lib.AddForward(g)
	if err := lib.AddParticles(g); err != nil {
		return nil, err
	}
	lib.AddDecals(g)
	lib.AddVolumetrics(g)
	last := lib.AddPostprocess(g, r.history)
	lib.AddOutput(g, last, r.ui)
	return g, nil
}

// WaitForGPU blocks until every submitted frame has completed and frees
// what they held.
func (r *Renderer) WaitForGPU() error {
	if err := r.dev.WaitIdle(); err != nil {
		return fmt.Errorf("framegraph: wait for GPU: %w", err)
	}
	if r.fenceValue > 0 {
		if err := r.fence.Wait(r.fenceValue); err != nil {
			return fmt.Errorf("framegraph: wait for fence %d: %w", r.fenceValue, err)
		}
	}
	r.recycle()
	return nil
}

// Resize recreates the swapchain and the resolution dependent resources.
func (r *Renderer) Resize(width, height uint32) error {
	if r.closed {
		return ErrClosed
	}
	if width == r.cfg.Width && height == r.cfg.Height {
		return nil
	}
	c := r.cfg
	c.Width, c.Height = width, height
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.WaitForGPU(); err != nil {
		return r.fatal(err)
	}
	sc := r.dev.Swapchain()
	for i := range sc.Count() {
		r.pool.ForgetViews(sc.Backbuffer(i))
	}
	if err := sc.Resize(width, height); err != nil {
		return fmt.Errorf("framegraph: resize swapchain: %w", err)
	}
	r.cfg = c
	r.pool.ForgetViews(r.history)
	r.release.push(r.history, r.fenceValue)
	if err := r.createHistory(); err != nil {
		return r.fatal(err)
	}
	r.camera.SetAspect(float32(width) / float32(height))
	slogger().Info("framegraph: resized", "width", width, "height", height)
	return nil
}

// Stats reports renderer activity.
type Stats struct {
	Frames          uint64
	FenceValue      uint64
	FenceCompleted  uint64
	Passes          int
	Culled          int
	PendingReleases int
	Released        uint64
	DescriptorsUsed uint32
	UploadPeak      uint64
	Pool            rendergraph.PoolStats
	Shaders         shader.CacheStats
	Pipelines       pipeline.Stats
}

// Stats returns a snapshot of renderer activity.
func (r *Renderer) Stats() Stats {
	s := Stats{
		Frames:          r.frame,
		FenceValue:      r.fenceValue,
		FenceCompleted:  r.fence.CompletedValue(),
		Passes:          r.last.passes,
		Culled:          r.last.culled,
		PendingReleases: r.release.len(),
		Released:        r.release.released,
		DescriptorsUsed: r.ring.Used(),
		Pool:            r.pool.Stats(),
		Shaders:         r.shaders.Stats(),
		Pipelines:       r.pipelines.Stats(),
	}
	for _, u := range r.uploads {
		s.UploadPeak = max(s.UploadPeak, u.Peak())
	}
	return s
}

// Destroy waits for the GPU and releases everything the renderer created.
func (r *Renderer) Destroy() {
	if r.closed {
		return
	}
	r.closed = true
	if r.fence != nil && r.ring != nil && r.pool != nil {
		if err := r.WaitForGPU(); err != nil {
			slogger().Warn("framegraph: destroy without idle GPU", "err", err)
		}
	}
	if r.release != nil {
		r.release.flush()
	}
	if r.library != nil {
		r.library.Destroy()
	}
	if r.pipelines != nil {
		r.pipelines.Destroy()
	}
	if r.shaders != nil {
		r.shaders.Destroy()
	}
	if r.pool != nil {
		r.pool.Destroy()
	}
	for _, u := range r.uploads {
		u.Destroy()
	}
	if r.history != nil {
		r.history.Destroy()
	}
	if r.fence != nil {
		r.fence.Destroy()
	}
	if r.ownDevice && r.dev != nil {
		r.dev.Destroy()
	}
}
