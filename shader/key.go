// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gogpu/naga/hlsl"

	"github.com/gogpu/framegraph/gfx"
)

// DefaultEntryPoint is used when a key names no entry point.
const DefaultEntryPoint = "main"

// Model is a shader model. It selects the target profile and gates
// stages that need newer hardware.
type Model = hlsl.ShaderModel

// DefaultModel is the shader model used when none is given.
const DefaultModel = hlsl.ShaderModel6_6

// Macro is a preprocessor definition. An empty value defines NAME as 1.
type Macro struct {
	Name  string
	Value string
}

func (m Macro) String() string {
	if m.Value == "" {
		return m.Name + "=1"
	}
	return m.Name + "=" + m.Value
}

// Flags change how a shader is compiled.
type Flags uint8

const (
	// FlagDebug embeds debug information and writes a copy of the
	// bytecode to the pdb directory.
	FlagDebug Flags = 1 << iota

	// FlagDisableOptimization compiles without optimization and with
	// extra runtime safety checks.
	FlagDisableOptimization
)

// Key identifies a shader variant.
type Key struct {
	Path       string
	EntryPoint string
	Stage      gfx.ShaderStage
	Model      Model
	Macros     []Macro
	Flags      Flags
}

func (k Key) normalized() Key {
	if k.EntryPoint == "" {
		k.EntryPoint = DefaultEntryPoint
	}
	return k
}

// Hash returns the 64-bit FNV-1a hash of every field of k. Macro order is
// significant.
func (k Key) Hash() uint64 {
	k = k.normalized()
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d\x00%d", k.Path, k.EntryPoint, k.Stage, k.Model, k.Flags)
	for _, m := range k.Macros {
		fmt.Fprintf(h, "\x00%s", m)
	}
	return h.Sum64()
}

// String returns a readable form such as "lighting.wgsl:main [ps_6_6] SHADOWS=1".
func (k Key) String() string {
	k = k.normalized()
	profile, err := Profile(k.Stage, k.Model)
	if err != nil {
		profile = k.Stage.String()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:%s [%s]", k.Path, k.EntryPoint, profile)
	for _, m := range k.Macros {
		sb.WriteByte(' ')
		sb.WriteString(m.String())
	}
	return sb.String()
}

// Equal reports whether k and o name the same variant.
func (k Key) Equal(o Key) bool {
	a, b := k.normalized(), o.normalized()
	if a.Path != b.Path || a.EntryPoint != b.EntryPoint || a.Stage != b.Stage ||
		a.Model != b.Model || a.Flags != b.Flags || len(a.Macros) != len(b.Macros) {
		return false
	}
	for i := range a.Macros {
		if a.Macros[i] != b.Macros[i] {
			return false
		}
	}
	return true
}

var stagePrefix = map[gfx.ShaderStage]string{
	gfx.StageVertex:        "vs_",
	gfx.StagePixel:         "ps_",
	gfx.StageHull:          "hs_",
	gfx.StageDomain:        "ds_",
	gfx.StageGeometry:      "gs_",
	gfx.StageCompute:       "cs_",
	gfx.StageMesh:          "ms_",
	gfx.StageAmplification: "as_",
	gfx.StageLibrary:       "lib_",
}

// Profile returns the target profile of stage under model, such as "vs_6_6".
func Profile(stage gfx.ShaderStage, model Model) (string, error) {
	prefix, ok := stagePrefix[stage]
	if !ok {
		return "", fmt.Errorf("%w: stage %d", ErrUnsupportedStage, stage)
	}
	switch stage {
	case gfx.StageMesh, gfx.StageAmplification:
		if !model.SupportsMeshShaders() {
			return "", fmt.Errorf("%w: %s shaders need a newer model than %s", ErrUnsupportedStage, stage, model)
		}
	case gfx.StageLibrary:
		if !model.SupportsRayTracing() {
			return "", fmt.Errorf("%w: %s shaders need a newer model than %s", ErrUnsupportedStage, stage, model)
		}
	}
	return prefix + model.ProfileSuffix(), nil
}
