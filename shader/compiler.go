// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/framegraph/gfx"
)

// Request is a preprocessed shader handed to a Compiler.
type Request struct {
	Key     Key
	Profile string
	Source  string
}

// Compiler turns preprocessed source into bytecode.
type Compiler interface {
	Compile(req *Request) ([]byte, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(req *Request) ([]byte, error)

// Compile calls f(req).
func (f CompilerFunc) Compile(req *Request) ([]byte, error) { return f(req) }

// NagaCompiler compiles WGSL to SPIR-V with naga.
type NagaCompiler struct {
	// Version is the SPIR-V version to emit. Zero means 1.3.
	Version spirv.Version
}

var irStage = map[gfx.ShaderStage]ir.ShaderStage{
	gfx.StageVertex:        ir.StageVertex,
	gfx.StagePixel:         ir.StageFragment,
	gfx.StageCompute:       ir.StageCompute,
	gfx.StageMesh:          ir.StageMesh,
	gfx.StageAmplification: ir.StageTask,
}

// Compile implements Compiler.
func (c NagaCompiler) Compile(req *Request) ([]byte, error) {
	module, err := parseModule(req.Source)
	if err != nil {
		return nil, err
	}
	if _, err := findEntryPoint(module, req.Key); err != nil {
		return nil, err
	}
	flags := req.Key.Flags
	if flags&FlagDisableOptimization != 0 || flags&FlagDebug != 0 {
		verrs, err := naga.Validate(module)
		if err != nil {
			return nil, err
		}
		if len(verrs) > 0 {
			errs := make([]error, len(verrs))
			for i := range verrs {
				errs[i] = verrs[i]
			}
			return nil, errors.Join(errs...)
		}
	}
	version := c.Version
	if version == (spirv.Version{}) {
		version = spirv.Version1_3
	}
	return naga.GenerateSPIRV(module, spirv.Options{
		Version:           version,
		Debug:             flags&FlagDebug != 0,
		Validation:        flags&FlagDisableOptimization != 0,
		ForceLoopBounding: flags&FlagDisableOptimization != 0,
	})
}

func parseModule(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, err
	}
	return naga.LowerWithSource(ast, source)
}

func findEntryPoint(m *ir.Module, key Key) (*ir.EntryPoint, error) {
	key = key.normalized()
	want, ok := irStage[key.Stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, key.Stage)
	}
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		if ep.Name != key.EntryPoint {
			continue
		}
		if ep.Stage != want {
			return nil, fmt.Errorf("%w: %s is not a %s entry point", ErrEntryPoint, key.EntryPoint, key.Stage)
		}
		return ep, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryPoint, key.EntryPoint)
}
