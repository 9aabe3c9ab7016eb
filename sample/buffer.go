// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sample

import (
	"fmt"

	"github.com/aclements/go-regionperf/pmu"
)

// DefaultCapacity is the SampleBuffer capacity used when the caller
// doesn't specify one (spec.md §3's CAP, e.g. 8192).
const DefaultCapacity = 8192

// Formatter is the external collaborator a Buffer flushes closed
// samples to. It is the only thing outside this package that ever
// sees a completed batch of samples (spec.md's "formatter collaborator",
// deliberately out of scope for its column layout — this package only
// specifies the call contract).
type Formatter interface {
	// Flush is called with exactly the closed samples in file order
	// since the last Flush, the event list they were measured
	// against, and whether this is the first Flush of the run
	// (headers should be printed exactly once, on that call).
	Flush(samples []*Sample, events []pmu.Event, headers bool) error
}

// SummaryCloser is an optional extension a Formatter can implement to
// emit a trailing summary after the run's last Flush, before the
// engine closes the output sink.
type SummaryCloser interface {
	CloseSummary(events []pmu.Event) error
}

// Buffer is a fixed-capacity ring of Sample records with periodic
// flush to a Formatter (spec.md §3 SampleBuffer, §4.3).
//
// Invariants maintained at every observable point:
//
//	flushedCount <= sampleCount
//	sampleCount - flushedCount <= Cap
//	flushedCount is always a multiple of Cap after any flush
type Buffer struct {
	events []pmu.Event
	cap    int
	slots  []Sample

	sampleCount    int
	flushedCount   int
	headersEmitted bool
}

// NewBuffer creates a Buffer bound to the given event list (used only
// to pass through to the Formatter) with the given capacity.
func NewBuffer(events []pmu.Event, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		events: events,
		cap:    capacity,
		slots:  make([]Sample, capacity),
	}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return b.cap }

// SampleCount returns the number of samples closed so far in this run.
func (b *Buffer) SampleCount() int { return b.sampleCount }

// FlushedCount returns the number of samples flushed so far.
func (b *Buffer) FlushedCount() int { return b.flushedCount }

// BeginNext returns a writable slot for the next sample's begin-side
// counters, recording begin as that sample's start. It panics if the
// ring is full without having been flushed, which would indicate a
// driver bug (maybe_flush is supposed to keep this from ever
// happening — spec.md §4.3).
//
// If the tracee exits before the caller reaches CloseCurrent (spec.md
// §4.4.3's "exits at [at start]" edge case), the caller simply never
// calls CloseCurrent for this slot: the next BeginNext overwrites it
// and SampleCount is never incremented, so the begin-side read is
// discarded without any separate bookkeeping.
func (b *Buffer) BeginNext(begin pmu.CounterVector) *Sample {
	idx := b.sampleCount - b.flushedCount
	if idx >= b.cap {
		panic(fmt.Sprintf("sample: buffer overflow: %d unflushed samples at capacity %d", idx, b.cap))
	}
	b.slots[idx] = Sample{Begin: begin}
	return &b.slots[idx]
}

// CloseCurrent finalizes the most recent BeginNext slot with end and
// increments SampleCount.
func (b *Buffer) CloseCurrent(end pmu.CounterVector) {
	idx := b.sampleCount - b.flushedCount
	b.slots[idx].close(end)
	b.sampleCount++
}

// MaybeFlush flushes the full ring to f and advances FlushedCount by
// Cap if the buffer has just reached capacity (sampleCount > 0 &&
// sampleCount % Cap == 0). It is a no-op otherwise.
func (b *Buffer) MaybeFlush(f Formatter) error {
	if b.sampleCount == 0 || b.sampleCount%b.cap != 0 {
		return nil
	}
	if err := f.Flush(b.slotPtrs(0, b.cap), b.events, !b.headersEmitted); err != nil {
		return err
	}
	b.headersEmitted = true
	b.flushedCount += b.cap
	return nil
}

// FinalFlush flushes whatever remains unflushed (sampleCount -
// flushedCount records), leaving flushedCount == sampleCount. Safe to
// call when there is nothing left to flush.
func (b *Buffer) FinalFlush(f Formatter) error {
	remaining := b.sampleCount - b.flushedCount
	if remaining == 0 {
		return nil
	}
	if err := f.Flush(b.slotPtrs(0, remaining), b.events, !b.headersEmitted); err != nil {
		return err
	}
	b.headersEmitted = true
	b.flushedCount += remaining
	return nil
}

func (b *Buffer) slotPtrs(start, end int) []*Sample {
	out := make([]*Sample, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, &b.slots[i])
	}
	return out
}
