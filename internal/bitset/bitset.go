// Package bitset provides a fixed-size bit set over unsigned words.
package bitset

import (
	"math/bits"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Set is a bit set of a fixed length. The zero value holds no bits.
type Set[T constraints.Unsigned] struct {
	words []T
	n     int
}

func nbit[T constraints.Unsigned]() int { return int(unsafe.Sizeof(T(0))) * 8 }

// New returns a set able to hold n bits, all unset.
func New[T constraints.Unsigned](n int) *Set[T] {
	w := nbit[T]()
	return &Set[T]{words: make([]T, (n+w-1)/w), n: n}
}

// Len returns the number of bits in the set.
func (s *Set[T]) Len() int { return s.n }

// Set sets bit i.
func (s *Set[T]) Set(i int) {
	w := nbit[T]()
	s.words[i/w] |= T(1) << (i % w)
}

// Unset clears bit i.
func (s *Set[T]) Unset(i int) {
	w := nbit[T]()
	s.words[i/w] &^= T(1) << (i % w)
}

// Has reports whether bit i is set.
func (s *Set[T]) Has(i int) bool {
	w := nbit[T]()
	return s.words[i/w]&(T(1)<<(i%w)) != 0
}

// Count returns the number of set bits.
func (s *Set[T]) Count() int {
	c := 0
	for _, word := range s.words {
		c += bits.OnesCount64(uint64(word))
	}
	return c
}

// Clear unsets every bit.
func (s *Set[T]) Clear() { clear(s.words) }
