// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"github.com/gogpu/framegraph/gfx"
)

// Execute records the compiled graph into cmd and releases the transients
// back to the pool. It stops at the first pass that violates the handle
// contract and returns an *Error naming it.
func (g *Graph) Execute(cmd gfx.CommandList) error {
	if !g.compiled {
		return ErrNotCompiled
	}
	if g.released {
		return &Error{Err: ErrNotCompiled}
	}
	defer g.Release()

	for _, p := range g.schedule {
		if err := g.run(p, cmd); err != nil {
			slogger().Error("rendergraph: pass failed", "pass", err.Pass, "resource", err.Resource, "err", err.Err)
			return err
		}
	}

	e := &g.epilogue
	if len(e.before) > 0 {
		cmd.ResourceBarriers(e.before)
	}
	for _, op := range e.exports {
		switch dst := op.dst.(type) {
		case gfx.Texture:
			cmd.CopyTexture(dst, op.src.(gfx.Texture))
		case gfx.Buffer:
			cmd.CopyBuffer(dst, 0, op.src.(gfx.Buffer), 0, op.size)
		}
	}
	if len(e.after) > 0 {
		cmd.ResourceBarriers(e.after)
	}
	return nil
}

func (g *Graph) run(p *pass, cmd gfx.CommandList) (err *Error) {
	if len(p.barriers) > 0 {
		cmd.ResourceBarriers(p.barriers)
	}
	cmd.PushMarker(p.name)
	if p.renderPass != nil {
		cmd.BeginRenderPass(p.renderPass)
		w, h := p.renderPass.Width, p.renderPass.Height
		cmd.SetViewport(gfx.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1})
		cmd.SetScissor(gfx.Rect{Width: w, Height: h})
	}

	defer func() {
		if r := recover(); r != nil {
			cv, ok := r.(contractViolation)
			if !ok {
				panic(r)
			}
			err = cv.err
		}
		if p.renderPass != nil {
			cmd.EndRenderPass()
		}
		cmd.PopMarker()
	}()

	if p.exec != nil {
		p.exec(&Context{g: g, p: p}, cmd)
	}
	return nil
}
