// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"errors"
	"fmt"
)

var (
	// ErrUndeclared is reported when a pass accesses a name that no earlier
	// pass declared and that was not imported.
	ErrUndeclared = errors.New("rendergraph: undeclared resource")

	// ErrDuplicate is reported when a name is declared or imported twice.
	ErrDuplicate = errors.New("rendergraph: resource already declared")

	// ErrReadWrite is reported when a pass reads and writes the same
	// resource version.
	ErrReadWrite = errors.New("rendergraph: pass reads and writes the same resource version")

	// ErrIncompatibleAccess is reported when the accesses of one pass to a
	// resource cannot be satisfied by a single resource state.
	ErrIncompatibleAccess = errors.New("rendergraph: incompatible accesses in one pass")

	// ErrReadBeforeWrite is reported when a transient is read before any
	// pass wrote it.
	ErrReadBeforeWrite = errors.New("rendergraph: transient read before it was written")

	// ErrWrongKind is reported when a texture name is used as a buffer or
	// the other way around.
	ErrWrongKind = errors.New("rendergraph: resource kind mismatch")

	// ErrNameCollision is reported when two different names hash equally.
	ErrNameCollision = errors.New("rendergraph: resource name hash collision")

	// ErrAliasedPreserve is reported when an aliased transient's first
	// access expects prior contents.
	ErrAliasedPreserve = errors.New("rendergraph: aliased transient must be cleared or discarded by its first pass")

	// ErrUnsupportedAccess is reported for accesses a pass type cannot make,
	// such as attachments in a compute pass.
	ErrUnsupportedAccess = errors.New("rendergraph: unsupported access")

	// ErrAllocation is reported when a transient cannot be materialized.
	ErrAllocation = errors.New("rendergraph: transient allocation failed")

	// ErrNotCompiled is returned by Execute before a successful Compile.
	ErrNotCompiled = errors.New("rendergraph: graph not compiled")

	// ErrHandle is reported when an execute function resolves a handle that
	// belongs to another pass or was never returned by a builder.
	ErrHandle = errors.New("rendergraph: handle used outside its pass")

	// ErrNoDescriptorRing is reported when a pass allocates descriptors on a
	// graph without a ring.
	ErrNoDescriptorRing = errors.New("rendergraph: no descriptor ring")
)

// Error is a graph contract violation. It names the pass and the resource
// involved; either may be empty when not applicable.
type Error struct {
	Pass     string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Pass != "" && e.Resource != "":
		return fmt.Sprintf("pass %q, resource %q: %v", e.Pass, e.Resource, e.Err)
	case e.Pass != "":
		return fmt.Sprintf("pass %q: %v", e.Pass, e.Err)
	case e.Resource != "":
		return fmt.Sprintf("resource %q: %v", e.Resource, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// contractViolation is panicked by Context methods and recovered by Execute.
type contractViolation struct{ err *Error }
