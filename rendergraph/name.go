// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import "hash/fnv"

// Name identifies a virtual resource. Names compare by their 64-bit FNV-1a
// hash; the string is kept for diagnostics and collision detection.
type Name struct {
	hash uint64
	str  string
}

// NewName hashes s.
func NewName(s string) Name {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return Name{hash: h.Sum64(), str: s}
}

// Hash returns the 64-bit hash.
func (n Name) Hash() uint64 { return n.hash }

// String returns the original string.
func (n Name) String() string { return n.str }

// IsZero reports whether n was never initialized.
func (n Name) IsZero() bool { return n.hash == 0 && n.str == "" }
