// Command fgview renders a demo scene headlessly and, on the software
// backend, writes the final frame to a PNG file. The native backend renders
// the same frames on the GPU and reports statistics only.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	_ "github.com/gogpu/framegraph/backend/native"
	"github.com/gogpu/framegraph/backend/software"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/shader"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML or YAML config file")
		device     = flag.String("backend", "", "device backend: software or native (overrides config)")
		width      = flag.Int("width", 0, "render width (overrides config)")
		height     = flag.Int("height", 0, "render height (overrides config)")
		frames     = flag.Int("frames", 8, "frames to render before writing the output")
		scale      = flag.Float64("scale", 1, "output image scale")
		output     = flag.String("output", "frame.png", "output file")
		compile    = flag.Bool("compile", false, "compile shaders with naga (the software backend ignores bytecode)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg.Shaders.HotReload = false
	if *width > 0 {
		cfg.Width = uint32(*width)
	}
	if *height > 0 {
		cfg.Height = uint32(*height)
	}

	if *device != "" {
		cfg.Backend = *device
	}
	if cfg.Backend == "" {
		cfg.Backend = backend.BackendSoftware
	}

	dev, err := backend.Open(cfg.Backend, backend.Config{
		Width:              cfg.Width,
		Height:             cfg.Height,
		BackbufferCount:    cfg.BackbufferCount,
		DescriptorHeapSize: cfg.DescriptorHeapSize,
	})
	if err != nil {
		log.Fatalf("Failed to open %s device: %v", cfg.Backend, err)
	}
	defer dev.Destroy()
	// Only the CPU device runs the Go kernels and can be read back.
	sw, _ := dev.(*software.Device)

	vertices, indices, err := cubeGeometry(dev)
	if err != nil {
		log.Fatalf("Failed to create geometry: %v", err)
	}
	defer vertices.Destroy()
	defer indices.Destroy()

	opts := []framegraph.Option{
		framegraph.WithConfig(cfg),
		framegraph.WithDevice(dev),
		framegraph.WithGeometry(vertices, indices),
		framegraph.WithFatalHandler(func(err error) { log.Fatalf("fatal: %v", err) }),
	}
	if !*compile && sw != nil {
		opts = append(opts, framegraph.WithShaderCompiler(shader.CompilerFunc(passthrough)))
	}

	reg, cam := buildScene(float32(cfg.Width) / float32(cfg.Height))
	if sw != nil {
		registerKernels(sw, reg, cam)
	}
	r, err := framegraph.New(reg, cam, opts...)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Destroy()

	for i := 0; i < *frames; i++ {
		orbit(cam, i)
		if err := r.Render(1.0 / 60); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
	}
	if err := r.WaitForGPU(); err != nil {
		log.Fatalf("Failed to wait for GPU: %v", err)
	}

	target := dev.Name()
	if sw != nil {
		sc := dev.Swapchain()
		last := (sc.Current() + sc.Count() - 1) % sc.Count()
		img := readback(sc.Backbuffer(last).(*software.Texture))
		if *scale != 1 {
			b := img.Bounds()
			dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())**scale), int(float64(b.Dy())**scale)))
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
			img = dst
		}
		if err := savePNG(*output, img); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		target = *output
	}

	s := r.Stats()
	p := message.NewPrinter(language.English)
	p.Printf("Rendered %d frames (%d passes, %d culled) to %s\n", s.Frames, s.Passes, s.Culled, target)
	p.Printf("Upload peak %d bytes, %d shaders compiled, %d pipelines\n", s.UploadPeak, s.Shaders.Compiles, s.Pipelines.Pipelines)
	p.Printf("%v\n", s.Pool)
}

func passthrough(req *shader.Request) ([]byte, error) {
	return []byte(req.Source), nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
