// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes_test

import (
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/backend/software"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/descriptor"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/passes"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/scene"
	"github.com/gogpu/framegraph/shader"
)

const size = 16

type fixture struct {
	dev     *software.Device
	ring    *descriptor.Ring
	pool    *rendergraph.ResourcePool
	pipes   *pipeline.Cache
	lib     *passes.Library
	reg     *scene.Registry
	vis     *scene.Visibility
	cam     *scene.Camera
	history gfx.Texture
	geo     [2]gfx.Buffer
}

func newFixture(t *testing.T, register bool) *fixture {
	t.Helper()
	dev, err := software.New(backend.Config{Width: size, Height: size})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Destroy)
	ring, err := descriptor.NewRing(dev.DescriptorHeap(), 16)
	if err != nil {
		t.Fatal(err)
	}
	comp := shader.CompilerFunc(func(req *shader.Request) ([]byte, error) {
		return []byte(req.Profile + "\n" + req.Source), nil
	})
	shaders := shader.NewCache("../shaders", t.TempDir(), shader.WithCompiler(comp), shader.WithWatcher(false))
	if err := shaders.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(shaders.Destroy)
	pipes, err := pipeline.NewCache(dev, shaders)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pipes.Destroy)
	if register {
		if err := passes.Register(pipes, dev.Swapchain().Format(), passes.Options{}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	f := &fixture{
		dev:   dev,
		ring:  ring,
		pool:  rendergraph.NewResourcePool(dev, rendergraph.PoolConfig{}),
		pipes: pipes,
		lib:   passes.NewLibrary(pipes),
		reg:   scene.NewRegistry(),
		vis:   &scene.Visibility{},
		cam:   scene.NewCamera(scene.Vec3{0, 1, 5}, 1),
	}
	t.Cleanup(func() {
		f.lib.Destroy()
		f.pool.Destroy()
	})
	f.history, err = dev.CreateTexture(&gfx.TextureDesc{
		Label: "History", Width: size, Height: size, Format: passes.HDRFormat,
		Usage:        gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		InitialState: gfx.StateNonPixelShaderResource,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.geo[0], err = dev.CreateBuffer(&gfx.BufferDesc{Label: "Vertices", Size: 48 * 24,
		Usage: gputypes.BufferUsageVertex, InitialState: gfx.StateVertexAndConstantBuffer})
	if err != nil {
		t.Fatal(err)
	}
	f.geo[1], err = dev.CreateBuffer(&gfx.BufferDesc{Label: "Indices", Size: 4 * 36,
		Usage: gputypes.BufferUsageIndex, InitialState: gfx.StateIndexBuffer})
	if err != nil {
		t.Fatal(err)
	}
	f.populate()
	return f
}

func (f *fixture) populate() {
	r := f.reg
	unit := scene.AABB{Min: scene.Vec3{-1, -1, -1}, Max: scene.Vec3{1, 1, 1}}
	mesh := func(pos scene.Vec3, mat scene.Material) {
		m := r.Create()
		scene.Add(r, m, mat)
		e := r.Create()
		scene.Add(r, e, scene.Transform{World: scene.Translation(pos)})
		scene.Add(r, e, unit)
		scene.Add(r, e, scene.Submesh{IndexCount: 36, Material: m})
	}
	mesh(scene.Vec3{0, 0, 0}, scene.Material{AlbedoFactor: [3]float32{1, 1, 1}})
	mesh(scene.Vec3{2, 0, 0}, scene.Material{AlphaCutoff: 0.5})
	mesh(scene.Vec3{-2, 0, 0}, scene.Material{Transparent: true})

	sun := r.Create()
	scene.Add(r, sun, scene.Light{Type: scene.LightDirectional, Direction: scene.Vec3{0, -1, 0},
		Color: [3]float32{1, 1, 1}, Intensity: 2, Active: true, CastsShadows: true})
	lamp := r.Create()
	scene.Add(r, lamp, scene.Light{Type: scene.LightPoint, Position: scene.Vec3{0, 2, 0}, Range: 5,
		Color: [3]float32{1, 0.5, 0}, Intensity: 1, Active: true, CastsShadows: true, RayTracedShadows: true,
		Volumetric: true, VolumetricSteps: 8})

	em := r.Create()
	scene.Add(r, em, scene.Emitter{Position: scene.Vec3{0, 0, 0}, SpawnRate: 100, MaxParticles: 64})
	decal := r.Create()
	scene.Add(r, decal, scene.Decal{Albedo: 1, Transform: scene.Identity()})
	sky := r.Create()
	scene.Add(r, sky, scene.Skybox{CubeTexture: 2, Active: true})
}

func allOn() config.Postprocess {
	return config.Postprocess{
		AmbientOcclusion: true,
		Upscaler:         config.UpscalerTAA,
		Reflections:      config.ReflectionsSSR,
		Fog:              true,
		Clouds:           true,
		Bloom:            true,
		DoF:              true,
		Bokeh:            true,
		MotionBlur:       true,
		Exposure:         config.ExposureAuto,
		Tonemap:          config.TonemapHable,
		FXAA:             true,
	}
}

// frame builds the full pass sequence the renderer records.
func (f *fixture) frame(settings config.Postprocess, ui passes.UIFunc) *rendergraph.Graph {
	scene.ComputeVisibility(f.reg, f.cam.Frustum(), f.vis)
	bb := rendergraph.NewBlackboard()
	rendergraph.Add(bb, passes.FrameData{Width: size, Height: size, DeltaTime: 0.016, Camera: f.cam.Position, Settings: settings})
	rendergraph.Add(bb, passes.SceneData{Registry: f.reg, Visibility: f.vis, Vertices: f.geo[0], Indices: f.geo[1]})

	g := rendergraph.New(rendergraph.Config{Device: f.dev, Pool: f.pool, Ring: f.ring, Blackboard: bb})
	sc := f.dev.Swapchain()
	g.ImportTexture(passes.Backbuffer, sc.Backbuffer(sc.Current()), gfx.StatePresent, gfx.StatePresent)
	passes.ImportGeometry(g)
	f.lib.AddGBuffer(g)
	f.lib.AddShadows(g)
	f.lib.AddAmbientOcclusion(g)
	f.lib.AddDeferredLighting(g)
	f.lib.AddSky(g)
	f.lib.AddForward(g)
	if err := f.lib.AddParticles(g); err != nil {
		panic(err)
	}
	f.lib.AddDecals(g)
	f.lib.AddVolumetrics(g)
	last := f.lib.AddPostprocess(g, f.history)
	f.lib.AddOutput(g, last, ui)
	return g
}

func (f *fixture) run(t *testing.T, g *rendergraph.Graph) *software.CommandList {
	t.Helper()
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	cmd := f.dev.CommandList(0)
	if err := cmd.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := g.Execute(cmd); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	if errs := f.dev.ValidationErrors(); len(errs) != 0 {
		t.Fatalf("device validation errors: %v", errs)
	}
	return cmd.(*software.CommandList)
}

func before(t *testing.T, schedule []string, a, b string) {
	t.Helper()
	i, j := slices.Index(schedule, a), slices.Index(schedule, b)
	if i < 0 || j < 0 || i >= j {
		t.Errorf("%q (at %d) does not run before %q (at %d) in %v", a, i, b, j, schedule)
	}
}

func TestFullFrame(t *testing.T) {
	f := newFixture(t, true)
	var uiCalls int
	g := f.frame(allOn(), func(*rendergraph.Context, gfx.CommandList) { uiCalls++ })
	f.run(t, g)

	schedule := g.Schedule()
	if culled := g.Culled(); len(culled) != 0 {
		t.Errorf("Culled() = %v, want none", culled)
	}
	before(t, schedule, "GBuffer", "SSAO")
	before(t, schedule, "SSAO", "Deferred Lighting")
	before(t, schedule, "Deferred Lighting", "Copy HDR")
	before(t, schedule, "Bokeh Generate", "Bokeh Draw")
	before(t, schedule, "Bokeh Draw", "DoF Composite")
	before(t, schedule, "Exposure", "Tonemap")
	before(t, schedule, "Tonemap", "FXAA")
	before(t, schedule, "FXAA", "UI")
	for _, name := range []string{"Particle Simulate", "Particle Draw", "Decals", "Sky", "Forward Transparent", "TAA", "SSR", "Fog", "Clouds", "Motion Blur"} {
		if !slices.Contains(schedule, name) {
			t.Errorf("schedule %v lacks %q", schedule, name)
		}
	}
	if uiCalls != 1 {
		t.Errorf("ui called %d times, want 1", uiCalls)
	}
	if st := f.dev.State(f.dev.Swapchain().Backbuffer(0)); st != gfx.StatePresent {
		t.Errorf("backbuffer state = %s, want Present", st)
	}
}

func TestTonemapOwnsRenderPassWithoutFXAA(t *testing.T) {
	f := newFixture(t, true)
	s := allOn()
	s.FXAA = false
	g := f.frame(s, nil)
	cmd := f.run(t, g)

	if rp := g.RenderPass("Tonemap"); rp != nil {
		t.Errorf("RenderPass(Tonemap) = %+v, want none", rp)
	}
	var opened bool
	for _, c := range cmd.Commands() {
		if c.Op == software.OpBeginRenderPass && c.Label == "Tonemap" {
			opened = true
		}
	}
	if !opened {
		t.Error("Tonemap did not open its own render pass")
	}
	if g.IsTextureDeclared(passes.LDR) {
		t.Error("LDR target declared without FXAA")
	}
}

func TestTAAUpdatesHistory(t *testing.T) {
	f := newFixture(t, true)
	f.dev.RegisterKernel("TAA", func(inv *software.Invocation) {
		// SRVs: color, history, velocity; then the output UAV.
		inv.Texture(inv.Constants[0] + 3).Fill([4]float32{0.5, 0.25, 0, 1})
	})
	s := config.Postprocess{Upscaler: config.UpscalerTAA, Tonemap: config.TonemapLinear}
	f.run(t, f.frame(s, nil))

	if got := f.history.(*software.Texture).At(3, 3); got != [4]float32{0.5, 0.25, 0, 1} {
		t.Errorf("history texel = %v, want TAA output", got)
	}
	if st := f.dev.State(f.history); st != gfx.StateNonPixelShaderResource {
		t.Errorf("history state = %s, want NonPixelShaderResource", st)
	}
}

func TestAmbientOcclusionFeedsLighting(t *testing.T) {
	f := newFixture(t, true)
	f.dev.RegisterKernel("SSAO", func(inv *software.Invocation) {
		// SRVs: normal, depth; then the AO output.
		inv.Texture(inv.Constants[0] + 2).Fill([4]float32{0.25, 0, 0, 0})
	})
	var seen [4]float32
	var plain int
	f.dev.RegisterKernel("Deferred Lighting AO", func(inv *software.Invocation) {
		// GBuffer, depth, HDR target, then the AO texture.
		seen = inv.Texture(inv.Constants[0] + 5).At(1, 1)
	})
	f.dev.RegisterKernel("Deferred Lighting", func(*software.Invocation) { plain++ })

	s := config.Postprocess{AmbientOcclusion: true, Tonemap: config.TonemapLinear}
	g := f.frame(s, nil)
	f.run(t, g)
	before(t, g.Schedule(), "SSAO", "Deferred Lighting")
	if seen[0] != 0.25 {
		t.Errorf("lighting read AO %v, want 0.25", seen)
	}
	if plain != 0 {
		t.Error("lighting without AO ran alongside the AO variant")
	}

	s.AmbientOcclusion = false
	g = f.frame(s, nil)
	f.run(t, g)
	if slices.Contains(g.Schedule(), "SSAO") || g.IsTextureDeclared(passes.AmbientOcclusion) {
		t.Errorf("schedule %v computes AO while disabled", g.Schedule())
	}
	if plain != 1 {
		t.Errorf("lighting without AO ran %d times, want 1", plain)
	}
}

func TestMinimalChain(t *testing.T) {
	f := newFixture(t, true)
	s := config.Postprocess{Upscaler: config.UpscalerNone, Reflections: config.ReflectionsNone, Exposure: config.ExposureFixed}
	g := f.frame(s, nil)
	f.run(t, g)

	for _, name := range []string{"TAA", "Bloom Extract", "Exposure", "FXAA", "UI"} {
		if slices.Contains(g.Schedule(), name) {
			t.Errorf("schedule contains disabled pass %q", name)
		}
	}
	if g.IsTextureDeclared(passes.TAAHistory) {
		t.Error("history imported without TAA")
	}
}

func TestShadowKinds(t *testing.T) {
	f := newFixture(t, true)
	g := f.frame(config.Postprocess{}, nil)
	f.run(t, g)

	var maps, masks int
	for _, light := range f.vis.Lights {
		if g.IsTextureDeclared(passes.ShadowMap(light)) {
			maps++
		}
		if g.IsTextureDeclared(passes.ShadowMask(light)) {
			masks++
		}
	}
	if maps != 1 || masks != 1 {
		t.Errorf("shadow maps, masks = %d, %d, want 1, 1", maps, masks)
	}
}

func TestMissingPipelinesRecordNothing(t *testing.T) {
	f := newFixture(t, false)
	cmd := f.run(t, f.frame(allOn(), nil))
	for _, c := range cmd.Commands() {
		if c.Op == software.OpDraw || c.Op == software.OpDispatch {
			t.Fatalf("recorded %v with no pipelines registered", c)
		}
	}
}

func TestParticleBufferGrows(t *testing.T) {
	var retired []gfx.Resource
	f := newFixture(t, true)
	f.lib.Destroy()
	f.lib = passes.NewLibrary(f.pipes, passes.WithRetire(func(r gfx.Resource) { retired = append(retired, r) }))
	f.run(t, f.frame(config.Postprocess{}, nil))

	e := f.reg.Create()
	scene.Add(f.reg, e, scene.Emitter{SpawnRate: 1, MaxParticles: 4096})
	f.run(t, f.frame(config.Postprocess{}, nil))
	if len(retired) != 1 {
		t.Errorf("retired %d buffers, want 1", len(retired))
	}
	for _, r := range retired {
		r.Destroy()
	}
}

func TestPackLight(t *testing.T) {
	lc := passes.PackLight(&scene.Light{Type: scene.LightSpot, Color: [3]float32{1, 2, 3}, Intensity: 4,
		CastsShadows: true, Volumetric: true})
	if lc.Color != [4]float32{1, 2, 3, 4} {
		t.Errorf("Color = %v, want intensity in w", lc.Color)
	}
	if want := passes.LightFlagShadows | passes.LightFlagVolumetric; lc.Flags != want {
		t.Errorf("Flags = %b, want %b", lc.Flags, want)
	}
	if n := len(passes.EncodeLights([]passes.LightConstants{lc, lc})); n != 2*64 {
		t.Errorf("encoded size = %d, want 128", n)
	}
}
