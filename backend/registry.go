package backend

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/gfx"
)

// registry holds registered backends, native first.
var registry = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority(BackendNative, BackendSoftware),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory func() Backend) {
	registry.Register(name, factory)
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the names of the registered backends.
func Available() []string {
	return registry.Available()
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a backend by name, or nil if it is not registered.
func Get(name string) Backend {
	return registry.Get(name)
}

// Default returns the highest priority registered backend, or nil.
func Default() Backend {
	return registry.Best()
}

// Open opens a device on the named backend.
func Open(name string, cfg Config) (gfx.Device, error) {
	b := Get(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return open(b, cfg)
}

// OpenDefault opens a device on the highest priority backend.
func OpenDefault(cfg Config) (gfx.Device, error) {
	b := Default()
	if b == nil {
		return nil, ErrBackendNotAvailable
	}
	return open(b, cfg)
}

func open(b Backend, cfg Config) (gfx.Device, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev, err := b.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	slogger().Info("backend: device opened", "backend", b.Name(),
		"width", cfg.Width, "height", cfg.Height, "backbuffers", cfg.BackbufferCount)
	return dev, nil
}
