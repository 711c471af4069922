// SPDX-License-Identifier: GPL-3.0-or-later

package vtime

import "container/heap"

// FireFunc is invoked when a [*Timer] expires or is cancelled.
//
// aborted is true when the timer was cancelled or the [*Scheduler] was
// reset before the timer reached its expiry; in that case the handler
// should treat the operation as having failed with "operation aborted"
// rather than having completed normally.
type FireFunc func(aborted bool)

// Timer is a single pending (or already-fired) timer entry.
//
// The zero value is not meaningful; obtain a [*Timer] from
// [*Scheduler.AddTimer].
type Timer struct {
	expiry  Time
	seq     uint64
	fire    FireFunc
	index   int // position in the heap, maintained by container/heap
	pending bool
}

// Expiry returns the time at which the timer is due to fire.
func (t *Timer) Expiry() Time { return t.expiry }

// timerHeap orders pending timers by expiry, breaking ties by insertion
// order (the sequence number), following the same min-heap-with-a-
// secondary-key idiom used by the teacher's own scheduler for tasks
// competing over limited cores.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].expiry != h[j].expiry {
		return h[i].expiry < h[j].expiry
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// callback is a pending entry on the dispatch FIFO.
type callback func()

// Scheduler is the virtual-time engine: a monotonic clock, an ordered
// timer queue, and a FIFO of ready callbacks awaiting dispatch.
//
// A Scheduler is not safe for concurrent use. The simulation is
// single-threaded and cooperative by design (see spec §5): nothing here
// takes a lock, and callers must not drive the same Scheduler from more
// than one goroutine.
type Scheduler struct {
	now     Time
	nextSeq uint64
	timers  timerHeap
	ready   []callback
	stopped bool
}

// NewScheduler creates a [*Scheduler] whose clock starts at the epoch.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.timers)
	return s
}

// Now returns the current virtual time. Read-only to clients; only
// [*Scheduler.Run] and [*Scheduler.RunOne] ever advance it.
func (s *Scheduler) Now() Time { return s.now }

// Post appends f to the dispatch FIFO. f runs during the next call to
// [*Scheduler.Run] or [*Scheduler.RunOne], never inline from Post
// itself — this bounds stack depth and preserves ordering (spec §5).
func (s *Scheduler) Post(f func()) {
	s.ready = append(s.ready, f)
}

// AddTimer arms a new timer that fires no earlier than at, invoking
// fire(false) when it expires naturally or fire(true) if it is
// cancelled first via [*Scheduler.RemoveTimer].
func (s *Scheduler) AddTimer(at Time, fire FireFunc) *Timer {
	t := &Timer{expiry: at, seq: s.nextSeq, fire: fire, pending: true}
	s.nextSeq++
	heap.Push(&s.timers, t)
	return t
}

// RemoveTimer cancels a pending timer, posting fire(true) on the
// dispatch FIFO. Removing an already-fired (or already-removed) timer
// is a no-op, per spec §4.1.
func (s *Scheduler) RemoveTimer(t *Timer) {
	if t == nil || !t.pending {
		return
	}
	heap.Remove(&s.timers, t.index)
	t.pending = false
	fire := t.fire
	s.Post(func() { fire(true) })
}

// Rearm moves a pending timer to a new expiry, preserving its handler.
// It is equivalent to removing and reinserting the timer, except that
// no "aborted" completion is posted.
func (s *Scheduler) Rearm(t *Timer, at Time) {
	if t == nil || !t.pending {
		return
	}
	heap.Remove(&s.timers, t.index)
	t.expiry = at
	t.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.timers, t)
}

// Stop marks the scheduler stopped. A stopped scheduler's [*Scheduler.Run]
// returns immediately without draining timers, though any callbacks
// already on the FIFO when Stop was called are still drained by the
// current or a subsequent Run. [*Scheduler.RunOne] does nothing while
// the scheduler is stopped.
func (s *Scheduler) Stop() {
	s.stopped = true
}

// Stopped reports whether [*Scheduler.Stop] has been called since the
// last [*Scheduler.Reset].
func (s *Scheduler) Stopped() bool {
	return s.stopped
}

// Reset discards the ready FIFO, clears all pending timers (posting an
// "aborted" completion for each onto the emptied FIFO), and un-sets the
// stopped flag. Virtual time
// itself is NOT rewound: spec.md leaves reset()'s exact behavior
// unspecified, but "monotonic virtual clock" is an invariant we never
// violate (see [SPEC_FULL.md] on Reset).
func (s *Scheduler) Reset() {
	pending := s.timers
	s.timers = nil
	heap.Init(&s.timers)
	s.ready = nil
	for _, t := range pending {
		t.pending = false
		fire := t.fire
		s.Post(func() { fire(true) })
	}
	s.stopped = false
}

// drainReady runs every callback currently on the FIFO, including ones
// posted by callbacks that ran earlier in the same drain.
func (s *Scheduler) drainReady() {
	for len(s.ready) > 0 {
		next := s.ready[0]
		s.ready = s.ready[1:]
		next()
	}
}

// Run drives the simulation to completion: it alternates between
// draining the dispatch FIFO and fast-forwarding to the next timer,
// until the scheduler is stopped or there is no more work of either
// kind (spec §4.1).
func (s *Scheduler) Run() {
	for {
		s.drainReady()
		if s.stopped {
			return
		}
		if s.timers.Len() == 0 {
			return
		}
		s.fireEarliest()
	}
}

// RunOne performs a single unit of work — one ready callback if any is
// queued, otherwise one timer expiry — and reports whether it found
// anything to do. It never advances time by more than is needed for
// that single timer. A timer expiry only posts the timer's handler, so
// the handler itself runs on a later call.
func (s *Scheduler) RunOne() bool {
	if s.stopped {
		return false
	}
	if len(s.ready) > 0 {
		next := s.ready[0]
		s.ready = s.ready[1:]
		next()
		return true
	}
	if s.timers.Len() == 0 {
		return false
	}
	s.fireEarliest()
	return true
}

// fireEarliest pops the earliest-expiring timer, advances the clock to
// its expiry if needed, and posts its natural-completion callback.
func (s *Scheduler) fireEarliest() {
	t := heap.Pop(&s.timers).(*Timer)
	t.pending = false
	if t.expiry.After(s.now) {
		s.now = t.expiry
	}
	fire := t.fire
	s.Post(func() { fire(false) })
}

// PendingTimers returns the number of timers still armed. Exposed for
// tests that assert on scheduler idleness without depending on the
// exact virtual-time value reached.
func (s *Scheduler) PendingTimers() int {
	return s.timers.Len()
}
