package software

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gfx"
)

type pendingSignal struct {
	value uint64
	delay int
}

// Fence is a CPU timeline. Signals enqueued by Submit complete after the
// device latency has elapsed or when waited on.
type Fence struct {
	dev       *Device
	completed uint64
	pending   []pendingSignal
	destroyed bool
}

// CompletedValue implements gfx.Fence.
func (f *Fence) CompletedValue() uint64 {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
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
	if f.completed >= value {
		return nil
	}
	for len(f.pending) > 0 && f.completed < value {
		f.completed = max(f.completed, f.pending[0].value)
		f.pending = f.pending[1:]
	}
	if f.completed < value {
		return fmt.Errorf("software: wait for fence value %d that was never signaled (completed %d)", value, f.completed)
	}
	return nil
}

// Destroy implements gfx.Fence.
func (f *Fence) Destroy() {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.destroyed = true
}

// enqueue, advance and flush are called with dev.mu held.
func (f *Fence) enqueue(value uint64, latency int) {
	if latency == 0 {
		f.completed = max(f.completed, value)
		return
	}
	f.pending = append(f.pending, pendingSignal{value: value, delay: latency})
}

func (f *Fence) advance(int) {
	n := 0
	for _, p := range f.pending {
		p.delay--
		if p.delay <= 0 {
			f.completed = max(f.completed, p.value)
			continue
		}
		f.pending[n] = p
		n++
	}
	f.pending = f.pending[:n]
}

func (f *Fence) flush() {
	for _, p := range f.pending {
		f.completed = max(f.completed, p.value)
	}
	f.pending = f.pending[:0]
}

// Swapchain is a ring of CPU backbuffers.
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
	for i := 0; i < count; i++ {
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

// Count implements gfx.Swapchain.
func (s *Swapchain) Count() int { return len(s.buffers) }

// Current implements gfx.Swapchain.
func (s *Swapchain) Current() int { return s.current }

// Backbuffer implements gfx.Swapchain.
func (s *Swapchain) Backbuffer(i int) gfx.Texture { return s.buffers[i] }

// Format implements gfx.Swapchain.
func (s *Swapchain) Format() gputypes.TextureFormat { return s.format }

// Present implements gfx.Swapchain. The presented backbuffer must be in the
// Present state.
func (s *Swapchain) Present() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.destroyed {
		return gfx.ErrDeviceLost
	}
	s.dev.expect(s.buffers[s.current], "present", gfx.StatePresent)
	s.presents++
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

// Presents returns the number of completed Present calls.
func (s *Swapchain) Presents() int { return s.presents }

// Resize implements gfx.Swapchain.
func (s *Swapchain) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return gfx.ErrInvalidDesc
	}
	for _, b := range s.buffers {
		b.Destroy()
	}
	return s.create(width, height, len(s.buffers))
}
