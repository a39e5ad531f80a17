// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/passes"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/rendergraph"
	"github.com/gogpu/framegraph/shader"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger configures the logger for framegraph and all its sub-packages.
// By default, framegraph produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by framegraph:
//   - [slog.LevelDebug]: compile statistics, barrier counts, pool activity
//   - [slog.LevelInfo]: lifecycle events (device opened, shaders recompiled)
//   - [slog.LevelWarn]: non-fatal issues (hot reload compile errors, missing pipelines)
//   - [slog.LevelError]: fatal errors, right before the fatal handler runs
//
// Example:
//
//	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	backend.SetLogger(l)
	rendergraph.SetLogger(l)
	shader.SetLogger(l)
	pipeline.SetLogger(l)
	passes.SetLogger(l)
}

// Logger returns the current logger used by framegraph.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
