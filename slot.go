// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/gfx"
)

// ErrSlotState is returned for an illegal frame slot transition.
var ErrSlotState = errors.New("framegraph: illegal frame slot transition")

// SlotState is the lifecycle state of a backbuffer slot.
type SlotState uint8

// Slot states, in lifecycle order.
const (
	SlotFree SlotState = iota
	SlotRecording
	SlotInFlight
	SlotPresenting
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "Free"
	case SlotRecording:
		return "CPURecording"
	case SlotInFlight:
		return "GPUInFlight"
	case SlotPresenting:
		return "Presenting"
	}
	return fmt.Sprintf("SlotState(%d)", uint8(s))
}

// frameSlot tracks one backbuffer and the fence value of the last frame
// recorded into it.
type frameSlot struct {
	index int
	state SlotState
	value uint64
}

func (s *frameSlot) transition(from, to SlotState) error {
	if s.state != from {
		return fmt.Errorf("%w: slot %d is %s, want %s for %s", ErrSlotState, s.index, s.state, from, to)
	}
	s.state = to
	return nil
}

// acquire waits until the slot's last frame has completed and starts
// recording into it.
func (s *frameSlot) acquire(fence gfx.Fence) error {
	if s.state == SlotPresenting {
		if err := s.retire(fence, true); err != nil {
			return err
		}
	}
	return s.transition(SlotFree, SlotRecording)
}

// retire frees a presenting slot once its fence value has completed. With
// wait it blocks for the value, otherwise it only polls.
func (s *frameSlot) retire(fence gfx.Fence, wait bool) error {
	if s.state != SlotPresenting {
		return nil
	}
	if fence.CompletedValue() < s.value {
		if !wait {
			return nil
		}
		if err := fence.Wait(s.value); err != nil {
			return fmt.Errorf("framegraph: wait for slot %d (fence %d): %w", s.index, s.value, err)
		}
	}
	return s.transition(SlotPresenting, SlotFree)
}

func (s *frameSlot) submit(value uint64) error {
	if err := s.transition(SlotRecording, SlotInFlight); err != nil {
		return err
	}
	s.value = value
	return nil
}

func (s *frameSlot) present() error {
	return s.transition(SlotInFlight, SlotPresenting)
}

// abort unwinds a failed frame. A slot that never reached the GPU is Free
// again; one whose frame was submitted waits on its fence like a presented
// one.
func (s *frameSlot) abort() {
	switch s.state {
	case SlotRecording:
		s.state = SlotFree
	case SlotInFlight:
		s.state = SlotPresenting
	}
}
