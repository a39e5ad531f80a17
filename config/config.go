// Package config loads renderer settings from TOML or YAML files.
//
// Every field has a default, so a file only needs the values it changes:
//
//	width = 1920
//	height = 1080
//
//	[postprocess]
//	upscaler = "taa"
//	bokeh = true
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	// ErrFormat is returned for files that are neither TOML nor YAML.
	ErrFormat = errors.New("config: unknown file format")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("config: invalid value")
)

// Format is a config file encoding.
type Format uint8

// Supported formats.
const (
	TOML Format = iota
	YAML
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrFormat, path)
}

// Upscaler selects the temporal resolve of the postprocess chain.
type Upscaler string

// Upscalers.
const (
	UpscalerNone Upscaler = "none"
	UpscalerTAA  Upscaler = "taa"
	UpscalerFSR  Upscaler = "fsr"
)

// Reflections selects the reflection technique.
type Reflections string

// Reflection techniques.
const (
	ReflectionsNone Reflections = "none"
	ReflectionsSSR  Reflections = "ssr"
	ReflectionsRTR  Reflections = "rtr"
)

// ExposureMode selects fixed or histogram based exposure.
type ExposureMode string

// Exposure modes.
const (
	ExposureFixed ExposureMode = "fixed"
	ExposureAuto  ExposureMode = "auto"
)

// TonemapOperator selects the tone mapping curve.
type TonemapOperator string

// Tonemap operators.
const (
	TonemapReinhard TonemapOperator = "reinhard"
	TonemapHable    TonemapOperator = "hable"
	TonemapLinear   TonemapOperator = "linear"
)

// Shaders configures the shader cache.
type Shaders struct {
	Dir      string `toml:"dir" yaml:"dir"`
	CacheDir string `toml:"cache_dir" yaml:"cache_dir"`

	Debug               bool `toml:"debug" yaml:"debug"`
	DisableOptimization bool `toml:"disable_optimization" yaml:"disable_optimization"`

	// HotReload polls for source changes at every frame boundary.
	HotReload bool `toml:"hot_reload" yaml:"hot_reload"`

	// RebuildWorkers is the number of goroutines rebuilding pipelines after
	// a reload. 0 rebuilds serially, negative uses GOMAXPROCS.
	RebuildWorkers int `toml:"rebuild_workers" yaml:"rebuild_workers"`
}

// Postprocess holds the postprocess chain toggles.
type Postprocess struct {
	// AmbientOcclusion computes screen-space AO from the GBuffer before
	// lighting.
	AmbientOcclusion bool `toml:"ambient_occlusion" yaml:"ambient_occlusion"`

	Upscaler    Upscaler        `toml:"upscaler" yaml:"upscaler"`
	Reflections Reflections     `toml:"reflections" yaml:"reflections"`
	Fog         bool            `toml:"fog" yaml:"fog"`
	Clouds      bool            `toml:"clouds" yaml:"clouds"`
	Bloom       bool            `toml:"bloom" yaml:"bloom"`
	DoF         bool            `toml:"dof" yaml:"dof"`
	Bokeh       bool            `toml:"bokeh" yaml:"bokeh"`
	MotionBlur  bool            `toml:"motion_blur" yaml:"motion_blur"`
	Exposure    ExposureMode    `toml:"exposure" yaml:"exposure"`
	Tonemap     TonemapOperator `toml:"tonemap" yaml:"tonemap"`
	ExposureEV  float32         `toml:"exposure_ev" yaml:"exposure_ev"`
	FXAA        bool            `toml:"fxaa" yaml:"fxaa"`
}

// Config is the complete renderer configuration.
type Config struct {
	Backend         string `toml:"backend" yaml:"backend"`
	Width           uint32 `toml:"width" yaml:"width"`
	Height          uint32 `toml:"height" yaml:"height"`
	BackbufferCount int    `toml:"backbuffer_count" yaml:"backbuffer_count"`

	// TransientBudgetMB caps the memory of pooled render graph transients.
	// Zero leaves the device as the only limit.
	TransientBudgetMB uint64 `toml:"transient_budget_mb" yaml:"transient_budget_mb"`

	// DescriptorHeapSize and DescriptorReserve size the shader-visible heap
	// and its static prefix.
	DescriptorHeapSize uint32 `toml:"descriptor_heap_size" yaml:"descriptor_heap_size"`
	DescriptorReserve  uint32 `toml:"descriptor_reserve" yaml:"descriptor_reserve"`

	// UploadBufferKB sizes each frame slot's linear upload buffer.
	UploadBufferKB uint64 `toml:"upload_buffer_kb" yaml:"upload_buffer_kb"`

	Shaders     Shaders     `toml:"shaders" yaml:"shaders"`
	Postprocess Postprocess `toml:"postprocess" yaml:"postprocess"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:            "",
		Width:              1280,
		Height:             720,
		BackbufferCount:    3,
		DescriptorHeapSize: 16384,
		DescriptorReserve:  1024,
		UploadBufferKB:     4096,
		Shaders: Shaders{
			Dir:       "shaders",
			CacheDir:  filepath.Join("shaders", "cache"),
			HotReload: true,
		},
		Postprocess: Postprocess{
			Upscaler:    UpscalerTAA,
			Reflections: ReflectionsNone,
			Fog:         false,
			Bloom:       true,
			Exposure:    ExposureFixed,
			Tonemap:     TonemapHable,
			ExposureEV:  1,
			FXAA:        true,
		},
	}
}

// Load reads path on top of the defaults.
func Load(path string) (Config, error) {
	f, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data, f)
}

// Parse decodes data on top of the defaults and validates the result.
func Parse(data []byte, f Format) (Config, error) {
	c := Default()
	var err error
	switch f {
	case TOML:
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&c)
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return Config{}, ErrFormat
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Marshal encodes c in format f.
func (c Config) Marshal(f Format) ([]byte, error) {
	switch f {
	case TOML:
		return toml.Marshal(c)
	case YAML:
		return yaml.Marshal(c)
	}
	return nil, ErrFormat
}

// Save writes c to path in the format of its extension.
func (c Config) Save(path string) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := c.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalid, c.Width, c.Height)
	case c.BackbufferCount < 2 || c.BackbufferCount > 4:
		return fmt.Errorf("%w: backbuffer_count %d not in [2, 4]", ErrInvalid, c.BackbufferCount)
	case c.DescriptorReserve >= c.DescriptorHeapSize:
		return fmt.Errorf("%w: descriptor_reserve %d >= descriptor_heap_size %d", ErrInvalid, c.DescriptorReserve, c.DescriptorHeapSize)
	case c.UploadBufferKB == 0:
		return fmt.Errorf("%w: upload_buffer_kb is zero", ErrInvalid)
	}
	p := c.Postprocess
	switch p.Upscaler {
	case UpscalerNone, UpscalerTAA, UpscalerFSR:
	default:
		return fmt.Errorf("%w: upscaler %q", ErrInvalid, p.Upscaler)
	}
	switch p.Reflections {
	case ReflectionsNone, ReflectionsSSR, ReflectionsRTR:
	default:
		return fmt.Errorf("%w: reflections %q", ErrInvalid, p.Reflections)
	}
	switch p.Exposure {
	case ExposureFixed, ExposureAuto:
	default:
		return fmt.Errorf("%w: exposure %q", ErrInvalid, p.Exposure)
	}
	switch p.Tonemap {
	case TonemapReinhard, TonemapHable, TonemapLinear:
	default:
		return fmt.Errorf("%w: tonemap %q", ErrInvalid, p.Tonemap)
	}
	if p.Bokeh && !p.DoF {
		return fmt.Errorf("%w: bokeh needs dof", ErrInvalid)
	}
	return nil
}

// TransientBudgetBytes returns TransientBudgetMB in bytes.
func (c Config) TransientBudgetBytes() uint64 { return c.TransientBudgetMB << 20 }
