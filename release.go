// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

// destroyer is anything the GPU may still reference after the CPU drops it:
// textures, buffers, pipelines.
type destroyer interface {
	Destroy()
}

type pendingRelease struct {
	obj   destroyer
	after uint64
}

// releaseQueue defers destruction until maxInFlight fence values have
// completed past the value current at insertion.
type releaseQueue struct {
	maxInFlight uint64
	pending     []pendingRelease
	released    uint64
}

func newReleaseQueue(maxInFlight int) *releaseQueue {
	return &releaseQueue{maxInFlight: uint64(max(maxInFlight, 1))}
}

// push schedules obj for destruction. submitted is the last fence value
// handed to the GPU.
func (q *releaseQueue) push(obj destroyer, submitted uint64) {
	if obj == nil {
		return
	}
	q.pending = append(q.pending, pendingRelease{obj: obj, after: submitted + q.maxInFlight})
}

// collect destroys every entry whose retention ended at or before
// completed and returns how many it destroyed.
func (q *releaseQueue) collect(completed uint64) int {
	n := 0
	kept := q.pending[:0]
	for _, p := range q.pending {
		if p.after <= completed {
			p.obj.Destroy()
			n++
			continue
		}
		kept = append(kept, p)
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	q.released += uint64(n)
	return n
}

// flush destroys everything. The GPU must be idle.
func (q *releaseQueue) flush() {
	for _, p := range q.pending {
		p.obj.Destroy()
	}
	q.released += uint64(len(q.pending))
	clear(q.pending)
	q.pending = q.pending[:0]
}

func (q *releaseQueue) len() int { return len(q.pending) }
