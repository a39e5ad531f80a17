package backend

import (
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU backend.
	BackendSoftware = "software"
	// BackendNative is the name of the gogpu/wgpu HAL backend.
	BackendNative = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrInvalidConfig is returned when a Config cannot be satisfied.
	ErrInvalidConfig = errors.New("backend: invalid config")
)

// Default device parameters.
const (
	DefaultBackbufferCount    = 3
	DefaultDescriptorHeapSize = 4096
)

// Config describes the device a backend should open.
type Config struct {
	// Width and Height size the swapchain.
	Width, Height uint32

	// BackbufferCount is the number of swapchain images and frame slots.
	// Defaults to DefaultBackbufferCount.
	BackbufferCount int

	// BackbufferFormat defaults to BGRA8Unorm.
	BackbufferFormat gputypes.TextureFormat

	// DescriptorHeapSize is the number of shader-visible descriptor slots.
	// Defaults to DefaultDescriptorHeapSize.
	DescriptorHeapSize uint32

	// MemoryBudget caps device memory in bytes. Zero means unlimited.
	MemoryBudget uint64
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.BackbufferCount <= 0 {
		c.BackbufferCount = DefaultBackbufferCount
	}
	if c.BackbufferFormat == gputypes.TextureFormatUndefined {
		c.BackbufferFormat = gputypes.TextureFormatBGRA8Unorm
	}
	if c.DescriptorHeapSize == 0 {
		c.DescriptorHeapSize = DefaultDescriptorHeapSize
	}
	return c
}

// Validate reports whether c describes a device that can be opened.
func (c Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return errors.Join(ErrInvalidConfig, errors.New("backend: zero swapchain size"))
	}
	return nil
}

// Backend opens devices.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// Open creates a device. The caller owns the device.
	Open(cfg Config) (gfx.Device, error)
}
