// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import "reflect"

// Blackboard holds per-frame data shared between passes, one value per
// type. It is cleared at the end of every frame.
type Blackboard struct {
	values map[reflect.Type]any
}

// NewBlackboard returns an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{values: make(map[reflect.Type]any)}
}

// Add stores v, replacing any value of the same type, and returns a pointer
// to the stored copy.
func Add[T any](b *Blackboard, v T) *T {
	p := new(T)
	*p = v
	b.values[reflect.TypeFor[T]()] = p
	return p
}

// Get returns the stored value of type T, or nil.
func Get[T any](b *Blackboard) *T {
	p, _ := b.values[reflect.TypeFor[T]()].(*T)
	return p
}

// Has reports whether a value of type T is stored.
func Has[T any](b *Blackboard) bool {
	_, ok := b.values[reflect.TypeFor[T]()]
	return ok
}

// Len returns the number of stored values.
func (b *Blackboard) Len() int { return len(b.values) }

// Clear removes every value.
func (b *Blackboard) Clear() { clear(b.values) }
