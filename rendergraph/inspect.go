// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"bufio"
	"fmt"
	"io"

	"github.com/gogpu/framegraph/gfx"
)

// Schedule returns the names of the surviving passes in execution order.
func (g *Graph) Schedule() []string {
	out := make([]string, len(g.schedule))
	for i, p := range g.schedule {
		out[i] = p.name
	}
	return out
}

// Culled returns the names of the culled passes in insertion order.
func (g *Graph) Culled() []string {
	var out []string
	for _, p := range g.passes {
		if p.culled {
			out = append(out, p.name)
		}
	}
	return out
}

func (g *Graph) passByName(name string) *pass {
	for _, p := range g.passes {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Barriers returns the barriers batched before the named pass.
func (g *Graph) Barriers(passName string) []gfx.Barrier {
	if p := g.passByName(passName); p != nil {
		return p.barriers
	}
	return nil
}

// FinalBarriers returns the barriers recorded after the last pass.
func (g *Graph) FinalBarriers() []gfx.Barrier {
	return append(append([]gfx.Barrier(nil), g.epilogue.before...), g.epilogue.after...)
}

// RenderPass returns the automatic render pass of the named pass, or nil.
func (g *Graph) RenderPass(passName string) *gfx.RenderPassDesc {
	if p := g.passByName(passName); p != nil {
		return p.renderPass
	}
	return nil
}

// Lifetime returns the schedule indices of the first and last use of name.
// ok is false when the resource is unknown or never materialized.
func (g *Graph) Lifetime(name Name) (first, last int, ok bool) {
	r, found := g.byName[name.hash]
	if !found || !r.used {
		return 0, 0, false
	}
	return r.first, r.last, true
}

// Physical returns the physical resource behind name after Compile, or nil
// when it was never materialized.
func (g *Graph) Physical(name Name) gfx.Resource {
	r, ok := g.byName[name.hash]
	if !ok || !r.used {
		return nil
	}
	return r.physical()
}

// Backings returns the number of physical transients the graph leased.
func (g *Graph) Backings() int { return len(g.backings) }

func lifetimeString(first, last int) string {
	f, l := "-inf", "+inf"
	if first != lifetimeStart {
		f = fmt.Sprint(first)
	}
	if last != lifetimeEnd {
		l = fmt.Sprint(last)
	}
	return "[" + f + ", " + l + "]"
}

// Dump writes a readable description of the compiled graph.
func (g *Graph) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "graph: %d passes, %d scheduled, %d resources, %d backings\n",
		len(g.passes), len(g.schedule), len(g.resources), len(g.backings))
	for i, p := range g.schedule {
		fmt.Fprintf(bw, "%3d %s (%s", i, p.name, p.typ)
		if p.flags != 0 {
			fmt.Fprintf(bw, ", %s", p.flags)
		}
		fmt.Fprintln(bw, ")")
		for _, b := range p.barriers {
			fmt.Fprintf(bw, "      barrier %s\n", b)
		}
		for _, a := range p.accesses {
			r := g.resources[a.res]
			fmt.Fprintf(bw, "      %-13s %s v%d %s\n", a.kind, r.name, a.version, a.state)
		}
		if p.renderPass != nil {
			fmt.Fprintf(bw, "      render pass %dx%d, %d color\n", p.renderPass.Width, p.renderPass.Height, len(p.renderPass.Colors))
		}
	}
	for _, name := range g.Culled() {
		fmt.Fprintf(bw, "culled %s\n", name)
	}
	for _, r := range g.resources {
		if !r.used {
			continue
		}
		where := "imported"
		if r.backing != nil {
			where = fmt.Sprintf("backing %d", r.backing.index)
		}
		fmt.Fprintf(bw, "resource %s %s %s %s\n", r.kind, r.name, lifetimeString(r.first, r.last), where)
	}
	for _, b := range g.FinalBarriers() {
		fmt.Fprintf(bw, "final barrier %s\n", b)
	}
	return bw.Flush()
}
