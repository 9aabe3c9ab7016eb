// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import "golang.org/x/sys/unix"

// Event names one PMU counter to open against a tracee. The set of
// events a build ships is a build-time constant of this collaborator,
// not part of the engine's contract (spec.md §4.2): the engine treats
// a CounterVector as an opaque, fixed-length, fixed-order tuple.
type Event struct {
	Name   string
	Type   uint32
	Config uint64
}

// DefaultEvents is the counter set this build opens when the caller
// doesn't override it. It mirrors the generic hardware event taxonomy
// of perf_event_attr's PERF_TYPE_HARDWARE class (modeled on
// perffile.EventHardware in the go-perf file-format reader, here bound
// to live counters instead of decoded from a perf.data record).
var DefaultEvents = []Event{
	{Name: "cpu-cycles", Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_CPU_CYCLES},
	{Name: "instructions", Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_INSTRUCTIONS},
	{Name: "cache-references", Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_CACHE_REFERENCES},
	{Name: "cache-misses", Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_CACHE_MISSES},
	{Name: "branch-instructions", Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS},
	{Name: "branch-misses", Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_BRANCH_MISSES},
}

// Names returns the counter names of events, in order, for use as a
// report header row.
func Names(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}
