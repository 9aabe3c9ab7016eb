// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sample

import (
	"testing"

	"github.com/aclements/go-regionperf/pmu"
)

// recordingFormatter records each Flush call for assertions.
type recordingFormatter struct {
	batches [][]*Sample
	headers []bool
}

func (r *recordingFormatter) Flush(samples []*Sample, events []pmu.Event, headers bool) error {
	// Copy: the buffer's slots are reused across flushes, so the
	// caller must not retain pointers past a Flush call returning.
	cp := make([]*Sample, len(samples))
	for i, s := range samples {
		c := *s
		cp[i] = &c
	}
	r.batches = append(r.batches, cp)
	r.headers = append(r.headers, headers)
	return nil
}

func closeOne(b *Buffer, begin, end uint64) {
	s := b.BeginNext(pmu.CounterVector{begin})
	_ = s
	b.CloseCurrent(pmu.CounterVector{end})
}

func TestBufferNoFlushBelowCapacity(t *testing.T) {
	b := NewBuffer(nil, 4)
	f := &recordingFormatter{}

	for i := 0; i < 3; i++ {
		closeOne(b, uint64(i), uint64(i+1))
		if err := b.MaybeFlush(f); err != nil {
			t.Fatalf("MaybeFlush: %v", err)
		}
	}

	if len(f.batches) != 0 {
		t.Fatalf("expected no flush yet, got %d", len(f.batches))
	}
	if b.SampleCount() != 3 || b.FlushedCount() != 0 {
		t.Fatalf("SampleCount=%d FlushedCount=%d, want 3,0", b.SampleCount(), b.FlushedCount())
	}
}

func TestBufferFlushAtCapacity(t *testing.T) {
	b := NewBuffer(nil, 4)
	f := &recordingFormatter{}

	for i := 0; i < 9; i++ {
		closeOne(b, uint64(i), uint64(i+1))
		if err := b.MaybeFlush(f); err != nil {
			t.Fatalf("MaybeFlush: %v", err)
		}
	}
	if err := b.FinalFlush(f); err != nil {
		t.Fatalf("FinalFlush: %v", err)
	}

	// Scenario 6 from spec.md §8: CAP=4, loop of 9 -> two batches of
	// 4 plus a final batch of 1, headers only on the first.
	if len(f.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(f.batches))
	}
	sizes := []int{len(f.batches[0]), len(f.batches[1]), len(f.batches[2])}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v, want [4 4 1]", sizes)
	}
	if !f.headers[0] || f.headers[1] || f.headers[2] {
		t.Fatalf("headers = %v, want [true false false]", f.headers)
	}
	if b.FlushedCount() != b.SampleCount() {
		t.Fatalf("FlushedCount=%d != SampleCount=%d after final flush", b.FlushedCount(), b.SampleCount())
	}
}

func TestBufferFinalFlushEmpty(t *testing.T) {
	b := NewBuffer(nil, 4)
	f := &recordingFormatter{}
	if err := b.FinalFlush(f); err != nil {
		t.Fatalf("FinalFlush on empty buffer: %v", err)
	}
	if len(f.batches) != 0 {
		t.Fatalf("expected no flush on an empty buffer, got %d", len(f.batches))
	}
}

func TestBufferOverflowPanics(t *testing.T) {
	b := NewBuffer(nil, 2)
	closeOne(b, 0, 1)
	closeOne(b, 1, 2)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on BeginNext beyond capacity without a flush")
		}
	}()
	b.BeginNext(pmu.CounterVector{2})
}
