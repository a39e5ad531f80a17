// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framegraph/gfx"
)

// RetryFunc is consulted when a shader fails to compile outside hot
// reload. Returning true recompiles after the user had a chance to fix the
// source.
type RetryFunc func(key Key, err error) bool

// Subscription identifies a recompilation listener.
type Subscription uint64

// Option configures a Cache.
type Option func(*Cache)

// WithCompiler replaces the default naga compiler.
func WithCompiler(c Compiler) Option { return func(s *Cache) { s.compiler = c } }

// WithRetry enables interactive mode.
func WithRetry(fn RetryFunc) Option { return func(s *Cache) { s.retry = fn } }

// WithWatcher enables or disables file system notifications. Without a
// watcher, changes are detected by modification time alone.
func WithWatcher(on bool) Option { return func(s *Cache) { s.watch = on } }

// WithDebugDir sets the directory that receives debug bytecode copies.
// The default is "pdb" under the cache directory.
func WithDebugDir(dir string) Option { return func(s *Cache) { s.debugDir = dir } }

// CacheStats reports cache activity.
type CacheStats struct {
	Entries    int
	Compiles   uint64
	DiskHits   uint64
	Recompiles uint64
	Failures   uint64
}

type entry struct {
	key       Key
	out       *Output
	source    string
	cachePath string
	// stamp is the newest dependency modification time seen at compile.
	stamp time.Time
}

func (e *entry) deps() []string { return append([]string{e.source}, e.out.Includes...) }

// Cache compiles shaders on demand, persists them in a content addressed
// disk cache and recompiles them when their sources change.
//
// Cache is safe for concurrent use. CheckIfShadersHaveChanged should run at
// a frame boundary: listeners rebuild pipelines synchronously.
type Cache struct {
	shaderDir string
	cacheDir  string
	debugDir  string
	compiler  Compiler
	retry     RetryFunc
	watch     bool

	mu          sync.RWMutex
	initialized bool
	entries     map[uint64][]*entry
	listeners   map[Subscription]func(Key)
	nextSub     Subscription
	watcher     *watcher

	compiles   atomic.Uint64
	diskHits   atomic.Uint64
	recompiles atomic.Uint64
	failures   atomic.Uint64
}

// NewCache returns a cache reading sources from shaderDir and writing
// compiled output under cacheDir. Call Initialize before use.
func NewCache(shaderDir, cacheDir string, opts ...Option) *Cache {
	c := &Cache{
		shaderDir: shaderDir,
		cacheDir:  cacheDir,
		compiler:  NagaCompiler{},
		watch:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.debugDir == "" {
		c.debugDir = filepath.Join(cacheDir, "pdb")
	}
	return c
}

// Initialize creates the cache directory and starts watching sources.
func (c *Cache) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return fmt.Errorf("shader: create cache dir: %w", err)
	}
	if c.watch {
		w, err := newWatcher()
		if err != nil {
			slogger().Warn("shader: file watcher unavailable, using modification times", "err", err)
		} else {
			c.watcher = w
		}
	}
	c.entries = make(map[uint64][]*entry)
	c.listeners = make(map[Subscription]func(Key))
	c.initialized = true
	slogger().Debug("shader cache initialized", "shaders", c.shaderDir, "cache", c.cacheDir)
	return nil
}

// Destroy stops watching and drops every cached entry and listener.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return
	}
	if c.watcher != nil {
		if err := c.watcher.close(); err != nil {
			slogger().Warn("shader: closing watcher", "err", err)
		}
		c.watcher = nil
	}
	c.entries = nil
	c.listeners = nil
	c.initialized = false
}

// ShaderDir returns the source directory.
func (c *Cache) ShaderDir() string { return c.shaderDir }

// GetShader returns the bytecode for key, compiling it when neither memory
// nor the disk cache holds a fresh copy.
func (c *Cache) GetShader(key Key) ([]byte, error) {
	out, err := c.GetOutput(key)
	if err != nil {
		return nil, err
	}
	return out.Bytecode, nil
}

// GetGfxShader returns the bytecode for key packaged for pipeline creation.
func (c *Cache) GetGfxShader(key Key) (gfx.Shader, error) {
	key = key.normalized()
	code, err := c.GetShader(key)
	if err != nil {
		return gfx.Shader{}, err
	}
	return gfx.Shader{Stage: key.Stage, EntryPoint: key.EntryPoint, Code: code}, nil
}

// GetOutput returns the compiled output for key.
func (c *Cache) GetOutput(key Key) (*Output, error) {
	key = key.normalized()
	c.mu.RLock()
	if !c.initialized {
		c.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	if e := c.lookup(key); e != nil {
		out := e.out
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	e := &entry{
		key:       key,
		source:    c.sourcePath(key),
		cachePath: c.entryPath(key),
	}
	if out, stamp, ok := c.loadFromDisk(e); ok {
		e.out, e.stamp = out, stamp
		c.diskHits.Add(1)
		slogger().Debug("shader loaded from disk cache", "key", key)
	} else {
		for {
			err := c.compile(e)
			if err == nil {
				break
			}
			c.failures.Add(1)
			slogger().Error("shader compilation failed", "key", key, "err", err)
			if c.retry == nil || !c.retry(key, err) {
				return nil, err
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	if prev := c.lookup(key); prev != nil {
		return prev.out, nil
	}
	h := key.Hash()
	c.entries[h] = append(c.entries[h], e)
	if c.watcher != nil {
		c.watcher.watch(e.deps())
	}
	return e.out, nil
}

func (c *Cache) lookup(key Key) *entry {
	for _, e := range c.entries[key.Hash()] {
		if e.key.Equal(key) {
			return e
		}
	}
	return nil
}

func (c *Cache) entryPath(key Key) string {
	return filepath.Join(c.cacheDir, fmt.Sprintf("%016x.bin", key.Hash()))
}

func (c *Cache) sourcePath(key Key) string {
	p := key.Path
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.shaderDir, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// loadFromDisk returns the cached output when the cache file is at least
// as new as the source and every include it recorded.
func (c *Cache) loadFromDisk(e *entry) (*Output, time.Time, bool) {
	st, err := os.Stat(e.cachePath)
	if err != nil {
		return nil, time.Time{}, false
	}
	data, err := os.ReadFile(e.cachePath)
	if err != nil {
		return nil, time.Time{}, false
	}
	var out Output
	if err := out.UnmarshalBinary(data); err != nil {
		slogger().Warn("shader: ignoring cache file", "path", e.cachePath, "err", err)
		return nil, time.Time{}, false
	}
	stamp, err := newestModTime(append([]string{e.source}, out.Includes...))
	if err != nil || stamp.After(st.ModTime()) {
		return nil, time.Time{}, false
	}
	return &out, stamp, true
}

// compile preprocesses and compiles e, then writes the cache file.
func (c *Cache) compile(e *entry) error {
	profile, err := Profile(e.key.Stage, e.key.Model)
	if err != nil {
		return err
	}
	pp := newPreprocessor(c.shaderDir, e.key.Macros)
	src, err := pp.Process(e.source)
	if err != nil {
		return err
	}
	stamp, err := newestModTime(append([]string{e.source}, pp.Includes()...))
	if err != nil {
		return err
	}
	code, err := c.compiler.Compile(&Request{Key: e.key, Profile: profile, Source: src})
	c.compiles.Add(1)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCompile, e.key, err)
	}
	out := &Output{Bytecode: code, Hash: HashBytecode(code), Includes: pp.Includes()}
	if err := c.persist(e, out); err != nil {
		slogger().Warn("shader: cannot write cache file", "path", e.cachePath, "err", err)
	}
	e.out, e.stamp = out, stamp
	slogger().Info("shader compiled", "key", e.key, "hash", out.Hash, "includes", len(out.Includes))
	return nil
}

func (c *Cache) persist(e *entry, out *Output) error {
	data, err := out.MarshalBinary()
	if err != nil {
		return err
	}
	tmp := e.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, e.cachePath); err != nil {
		return err
	}
	if e.key.Flags&FlagDebug != 0 {
		if err := os.MkdirAll(c.debugDir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(c.debugDir, out.Hash.String()+".pdb"), out.Bytecode, 0o644)
	}
	return nil
}

func newestModTime(files []string) (time.Time, error) {
	var newest time.Time
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			return time.Time{}, err
		}
		if st.ModTime().After(newest) {
			newest = st.ModTime()
		}
	}
	return newest, nil
}

// CheckIfShadersHaveChanged recompiles every entry whose source or
// includes changed since it was compiled and notifies listeners of each
// recompiled key. A failed recompile keeps the previous bytecode.
func (c *Cache) CheckIfShadersHaveChanged() ([]Key, error) {
	c.mu.RLock()
	if !c.initialized {
		c.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	var dirty map[string]bool
	if c.watcher != nil {
		dirty = c.watcher.take()
	}
	var stale []*entry
	for _, bucket := range c.entries {
		for _, e := range bucket {
			if c.isStale(e, dirty) {
				stale = append(stale, e)
			}
		}
	}
	c.mu.RUnlock()

	var (
		changed []Key
		errs    []error
	)
	for _, e := range stale {
		next := &entry{key: e.key, source: e.source, cachePath: e.cachePath}
		if err := c.compile(next); err != nil {
			c.failures.Add(1)
			slogger().Warn("shader recompilation failed, keeping previous bytecode", "key", e.key, "err", err)
			// Do not retry until the files change again.
			if stamp, serr := newestModTime(e.deps()); serr == nil {
				c.mu.Lock()
				e.stamp = stamp
				c.mu.Unlock()
			}
			errs = append(errs, err)
			continue
		}
		c.mu.Lock()
		e.out, e.stamp = next.out, next.stamp
		if c.watcher != nil {
			c.watcher.watch(e.deps())
		}
		c.mu.Unlock()
		c.recompiles.Add(1)
		changed = append(changed, e.key)
	}
	for _, k := range changed {
		c.emit(k)
	}
	return changed, errors.Join(errs...)
}

func (c *Cache) isStale(e *entry, dirty map[string]bool) bool {
	for _, dep := range e.deps() {
		if dirty[dep] {
			return true
		}
		st, err := os.Stat(dep)
		if err != nil || st.ModTime().After(e.stamp) {
			return true
		}
	}
	return false
}

// Subscribe registers fn to be called with each recompiled key.
func (c *Cache) Subscribe(fn func(Key)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[Subscription]func(Key))
	}
	c.nextSub++
	c.listeners[c.nextSub] = fn
	return c.nextSub
}

// Unsubscribe removes a listener.
func (c *Cache) Unsubscribe(s Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, s)
}

func (c *Cache) emit(k Key) {
	c.mu.RLock()
	fns := make([]func(Key), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(k)
	}
}

// InputLayout reflects the vertex inputs of key's entry point.
func (c *Cache) InputLayout(key Key) (gfx.InputLayout, error) {
	key = key.normalized()
	if key.Stage != gfx.StageVertex {
		return gfx.InputLayout{}, fmt.Errorf("%w: %s is not a vertex shader", ErrReflection, key)
	}
	pp := newPreprocessor(c.shaderDir, key.Macros)
	src, err := pp.Process(c.sourcePath(key))
	if err != nil {
		return gfx.InputLayout{}, err
	}
	m, err := parseModule(src)
	if err != nil {
		return gfx.InputLayout{}, fmt.Errorf("%w: %w", ErrReflection, err)
	}
	return ReflectInputLayout(m, key.EntryPoint)
}

// Stats returns cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	n := 0
	for _, b := range c.entries {
		n += len(b)
	}
	c.mu.RUnlock()
	return CacheStats{
		Entries:    n,
		Compiles:   c.compiles.Load(),
		DiskHits:   c.diskHits.Load(),
		Recompiles: c.recompiles.Load(),
		Failures:   c.failures.Load(),
	}
}
