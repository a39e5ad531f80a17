//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
)

type signal struct {
	value uint64
	index uint64
}

// Fence is a timeline over queue submission indices: a value completes
// once the submission that signaled it has completed.
type Fence struct {
	dev       *Device
	completed uint64
	signals   []signal
	destroyed bool
}

// poll is called with dev.mu held.
func (f *Fence) poll() {
	if len(f.signals) == 0 {
		return
	}
	done := f.dev.queue.PollCompleted()
	n := 0
	for _, s := range f.signals {
		if s.index <= done {
			f.completed = max(f.completed, s.value)
			continue
		}
		f.signals[n] = s
		n++
	}
	f.signals = f.signals[:n]
}

// CompletedValue implements gfx.Fence.
func (f *Fence) CompletedValue() uint64 {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.poll()
	return f.completed
}

// Wait implements gfx.Fence. Waiting on a value that was never submitted
// fails instead of blocking forever.
func (f *Fence) Wait(value uint64) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.destroyed || f.dev.destroyed {
		return gfx.ErrDeviceLost
	}
	f.poll()
	if f.completed >= value {
		return nil
	}
	pending := false
	for _, s := range f.signals {
		pending = pending || s.value >= value
	}
	if !pending {
		return fmt.Errorf("native: wait for fence value %d that was never signaled (completed %d)", value, f.completed)
	}
	if err := f.dev.device.WaitIdle(); err != nil {
		return fmt.Errorf("%w: %w", gfx.ErrDeviceLost, err)
	}
	f.poll()
	if f.completed < value {
		return fmt.Errorf("%w: fence value %d not reached after idle (completed %d)", gfx.ErrDeviceLost, value, f.completed)
	}
	return nil
}

// Destroy implements gfx.Fence.
func (f *Fence) Destroy() {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.destroyed = true
	f.signals = nil
}

// Swapchain is a ring of offscreen backbuffers. Present only rotates the
// ring; hosts that own a surface copy the presented texture out.
type Swapchain struct {
	dev      *Device
	format   gputypes.TextureFormat
	buffers  []*Texture
	current  int
	presents int
}

func newSwapchain(d *Device, w, h uint32, count int, format gputypes.TextureFormat) (*Swapchain, error) {
	s := &Swapchain{dev: d, format: format}
	if err := s.create(w, h, count); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(w, h uint32, count int) error {
	s.buffers = s.buffers[:0]
	for i := range count {
		t, err := s.dev.CreateTexture(&gfx.TextureDesc{
			Label:        fmt.Sprintf("Backbuffer%d", i),
			Width:        w,
			Height:       h,
			Format:       s.format,
			Usage:        gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
			InitialState: gfx.StatePresent,
		})
		if err != nil {
			return err
		}
		s.buffers = append(s.buffers, t.(*Texture))
	}
	s.current = 0
	return nil
}

func (s *Swapchain) destroy() {
	for _, b := range s.buffers {
		b.Destroy()
	}
	s.buffers = nil
}

// Count implements gfx.Swapchain.
func (s *Swapchain) Count() int { return len(s.buffers) }

// Current implements gfx.Swapchain.
func (s *Swapchain) Current() int { return s.current }

// Backbuffer implements gfx.Swapchain.
func (s *Swapchain) Backbuffer(i int) gfx.Texture { return s.buffers[i] }

// Format implements gfx.Swapchain.
func (s *Swapchain) Format() gputypes.TextureFormat { return s.format }

// Present implements gfx.Swapchain.
func (s *Swapchain) Present() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.destroyed {
		return gfx.ErrDeviceLost
	}
	s.presents++
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

// Presents returns the number of completed Present calls.
func (s *Swapchain) Presents() int { return s.presents }

// Resize implements gfx.Swapchain. The caller must wait for the GPU first.
func (s *Swapchain) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return gfx.ErrInvalidDesc
	}
	n := len(s.buffers)
	s.destroy()
	return s.create(width, height, n)
}
