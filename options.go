// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/gfx"
	"github.com/gogpu/framegraph/passes"
	"github.com/gogpu/framegraph/shader"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := framegraph.New(reg, cam,
//	    framegraph.WithConfig(cfg),
//	    framegraph.WithFatalHandler(func(err error) { os.Exit(1) }))
type Option func(*options)

type options struct {
	cfg      config.Config
	device   gfx.Device
	compiler shader.Compiler
	retry    shader.RetryFunc
	fatal    func(error)
	ui       passes.UIFunc
	vertices gfx.Buffer
	indices  gfx.Buffer
}

func defaultOptions() options {
	return options{cfg: config.Default()}
}

// WithConfig replaces the default configuration.
func WithConfig(c config.Config) Option {
	return func(o *options) {
		o.cfg = c
	}
}

// WithDevice renders on dev instead of opening one from the backend
// registry. The renderer does not destroy a device it did not open.
func WithDevice(dev gfx.Device) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithShaderCompiler replaces the naga WGSL compiler.
func WithShaderCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithRetry installs the hook consulted when a startup shader compile
// fails. Returning true recompiles the shader.
func WithRetry(fn shader.RetryFunc) Option {
	return func(o *options) {
		o.retry = fn
	}
}

// WithFatalHandler sets the function called with fatal errors after they
// are logged. The default panics.
func WithFatalHandler(fn func(error)) Option {
	return func(o *options) {
		o.fatal = fn
	}
}

// WithUI records fn into the backbuffer after the postprocess chain.
func WithUI(fn passes.UIFunc) Option {
	return func(o *options) {
		o.ui = fn
	}
}

// WithGeometry sets the shared vertex and index buffers submeshes index
// into. The buffers stay owned by the caller.
func WithGeometry(vertices, indices gfx.Buffer) Option {
	return func(o *options) {
		o.vertices = vertices
		o.indices = indices
	}
}
