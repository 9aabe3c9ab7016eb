// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sample holds one (begin, end) pair of PMU counter vectors
// per measured region, and a fixed-capacity ring that buffers closed
// samples between flushes to the report formatter (spec.md §3, §4.3).
package sample // import "github.com/aclements/go-regionperf/sample"

import "github.com/aclements/go-regionperf/pmu"

// Sample holds the begin- and end-side CounterVectors of one measured
// region execution (or, in global mode, of the whole program run). It
// is closed once End has been written.
type Sample struct {
	Begin  pmu.CounterVector
	End    pmu.CounterVector
	closed bool
}

// Closed reports whether End has been recorded yet.
func (s *Sample) Closed() bool { return s.closed }

// close finalizes the sample with the given end-side counters.
func (s *Sample) close(end pmu.CounterVector) {
	s.End = end
	s.closed = true
}

// Delta returns end[i] - begin[i] for every counter, as unsigned
// wrap-respecting subtraction (spec.md §3). Delta panics if the
// sample isn't closed or the two vectors differ in length, both of
// which indicate a driver bug rather than a runtime condition to
// recover from.
func (s *Sample) Delta() []uint64 {
	if !s.closed {
		panic("sample: Delta called on an unclosed sample")
	}
	if len(s.Begin) != len(s.End) {
		panic("sample: begin/end counter vector length mismatch")
	}
	d := make([]uint64, len(s.Begin))
	for i := range d {
		d[i] = s.End[i] - s.Begin[i] // wraps on uint64 overflow, as intended
	}
	return d
}
