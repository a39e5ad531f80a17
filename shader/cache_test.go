package shader

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framegraph/gfx"
)

// echoCompiler returns the profile and preprocessed source as bytecode
// and counts invocations.
type echoCompiler struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *echoCompiler) Compile(req *Request) ([]byte, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("syntax error")
	}
	return []byte(req.Profile + "\n" + req.Source), nil
}

func newTestCache(t *testing.T, shaderDir, cacheDir string, comp Compiler, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithCompiler(comp), WithWatcher(false)}, opts...)
	c := NewCache(shaderDir, cacheDir, opts...)
	require.NoError(t, c.Initialize())
	t.Cleanup(c.Destroy)
	return c
}

// touch moves a file's modification time forward so staleness does not
// depend on file system timestamp granularity.
func touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(d)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestDiskCacheHit(t *testing.T) {
	shaders, cache := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(shaders, "common.wgsl"), "const A: f32 = 1.0;\n")
	writeFile(t, filepath.Join(shaders, "gbuffer.wgsl"), "#include \"common.wgsl\"\nfn main() {}\n")
	touch(t, filepath.Join(shaders, "common.wgsl"), -time.Hour)
	touch(t, filepath.Join(shaders, "gbuffer.wgsl"), -time.Hour)
	k1 := Key{Path: "gbuffer.wgsl", Stage: gfx.StagePixel, Model: DefaultModel}

	first := &echoCompiler{}
	c1 := newTestCache(t, shaders, cache, first)
	code1, err := c1.GetShader(k1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.calls.Load())
	assert.FileExists(t, c1.entryPath(k1))

	// Memory hit.
	_, err = c1.GetShader(k1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.calls.Load())

	// A new cache over the same directories loads from disk.
	second := &echoCompiler{}
	c2 := newTestCache(t, shaders, cache, second)
	out, err := c2.GetOutput(k1)
	require.NoError(t, err)
	assert.Zero(t, second.calls.Load())
	assert.Equal(t, code1, out.Bytecode)
	assert.Equal(t, HashBytecode(code1), out.Hash)
	assert.Equal(t, []string{filepath.Join(shaders, "common.wgsl")}, out.Includes)
	assert.EqualValues(t, 1, c2.Stats().DiskHits)

	// A newer include invalidates the disk copy.
	touch(t, filepath.Join(shaders, "common.wgsl"), time.Hour)
	third := &echoCompiler{}
	c3 := newTestCache(t, shaders, cache, third)
	_, err = c3.GetShader(k1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, third.calls.Load())
}

func TestHotReload(t *testing.T) {
	shaders := t.TempDir()
	writeFile(t, filepath.Join(shaders, "lighting.wgsl"), "fn main() { let x = 1; }\n")
	comp := &echoCompiler{}
	c := newTestCache(t, shaders, t.TempDir(), comp)

	key := Key{Path: "lighting.wgsl", Stage: gfx.StageCompute, Model: DefaultModel}
	before, err := c.GetShader(key)
	require.NoError(t, err)

	var events []Key
	sub := c.Subscribe(func(k Key) { events = append(events, k) })

	changed, err := c.CheckIfShadersHaveChanged()
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Empty(t, events)

	writeFile(t, filepath.Join(shaders, "lighting.wgsl"), "fn main() { let x = 2; }\n")
	touch(t, filepath.Join(shaders, "lighting.wgsl"), time.Hour)
	changed, err = c.CheckIfShadersHaveChanged()
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.True(t, changed[0].Equal(key))
	require.Len(t, events, 1)

	after, err := c.GetShader(key)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Contains(t, string(after), "let x = 2")

	// Nothing changed since.
	changed, err = c.CheckIfShadersHaveChanged()
	require.NoError(t, err)
	assert.Empty(t, changed)

	c.Unsubscribe(sub)
	touch(t, filepath.Join(shaders, "lighting.wgsl"), 2*time.Hour)
	changed, err = c.CheckIfShadersHaveChanged()
	require.NoError(t, err)
	assert.Len(t, changed, 1)
	assert.Len(t, events, 1, "unsubscribed listener is not called")
}

func TestHotReloadFailureKeepsBytecode(t *testing.T) {
	shaders := t.TempDir()
	src := filepath.Join(shaders, "post.wgsl")
	writeFile(t, src, "fn main() {}\n")
	comp := &echoCompiler{}
	c := newTestCache(t, shaders, t.TempDir(), comp)
	key := Key{Path: "post.wgsl", Stage: gfx.StageCompute, Model: DefaultModel}
	before, err := c.GetShader(key)
	require.NoError(t, err)

	comp.fail.Store(true)
	writeFile(t, src, "fn main() { broken\n")
	touch(t, src, time.Hour)
	changed, err := c.CheckIfShadersHaveChanged()
	assert.ErrorIs(t, err, ErrCompile)
	assert.Empty(t, changed)

	got, err := c.GetShader(key)
	require.NoError(t, err)
	assert.Equal(t, before, got)

	// Not retried until the file changes again.
	calls := comp.calls.Load()
	_, err = c.CheckIfShadersHaveChanged()
	require.NoError(t, err)
	assert.Equal(t, calls, comp.calls.Load())
}

func TestInteractiveRetry(t *testing.T) {
	shaders := t.TempDir()
	writeFile(t, filepath.Join(shaders, "ui.wgsl"), "fn main() {}\n")
	comp := &echoCompiler{}
	comp.fail.Store(true)
	retries := 0
	c := newTestCache(t, shaders, t.TempDir(), comp, WithRetry(func(Key, error) bool {
		retries++
		comp.fail.Store(false)
		return true
	}))
	_, err := c.GetShader(Key{Path: "ui.wgsl", Stage: gfx.StagePixel, Model: DefaultModel})
	require.NoError(t, err)
	assert.Equal(t, 1, retries)
	assert.EqualValues(t, 2, comp.calls.Load())

	noRetry := newTestCache(t, shaders, t.TempDir(), CompilerFunc(func(*Request) ([]byte, error) {
		return nil, errors.New("bad")
	}))
	_, err = noRetry.GetShader(Key{Path: "ui.wgsl", Stage: gfx.StagePixel, Model: DefaultModel})
	assert.ErrorIs(t, err, ErrCompile)
}

func TestDebugCopy(t *testing.T) {
	shaders, cache := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(shaders, "s.wgsl"), "fn main() {}\n")
	c := newTestCache(t, shaders, cache, &echoCompiler{})
	out, err := c.GetOutput(Key{Path: "s.wgsl", Stage: gfx.StageVertex, Model: DefaultModel, Flags: FlagDebug})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cache, "pdb", out.Hash.String()+".pdb"))
}

func TestCacheNotInitialized(t *testing.T) {
	c := NewCache(t.TempDir(), t.TempDir())
	_, err := c.GetShader(Key{Path: "x.wgsl"})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.CheckIfShadersHaveChanged()
	assert.ErrorIs(t, err, ErrNotInitialized)
}
