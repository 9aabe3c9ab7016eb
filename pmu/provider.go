// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pmu is the event provider: it opens a group of hardware
// performance-monitoring-unit counter file descriptors bound to a
// traced process and lets the tracing driver read a CounterVector
// before and after a measured region (spec.md §4.2).
package pmu // import "github.com/aclements/go-regionperf/pmu"

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CounterVector is an ordered tuple of raw counter readings, one per
// configured Event. The ordering is fixed for the lifetime of a Group.
type CounterVector []uint64

// Group is an opaque handle to a set of PMU counters opened against
// one tracee, bound together so Begin/End read them as a single unit.
// The first counter in Events is the group leader; the rest are
// opened against it so the kernel multiplexes them together.
type Group struct {
	events []Event
	fds    []int
}

// Configure opens one perf_event_open file descriptor per event in
// events, all bound to pid's task and grouped under the first event as
// leader. Each counter starts disabled; Begin enables the group.
//
// Configure fails with an error wrapping ErrUnavailable if the host
// kernel lacks PMU support or the caller lacks permission to read
// hardware counters (e.g. a restrictive perf_event_paranoid sysctl).
func Configure(pid int, events []Event) (*Group, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("pmu: no events configured")
	}

	g := &Group{events: events, fds: make([]int, 0, len(events))}
	leader := -1

	for i, ev := range events {
		attr := unix.PerfEventAttr{
			Type:   ev.Type,
			Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
			Config: ev.Config,
			Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv | unix.PerfBitInherit,
		}

		groupFd := -1
		if i > 0 {
			groupFd = leader
		}

		fd, err := unix.PerfEventOpen(&attr, pid, -1, groupFd, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("%w: perf_event_open(%s): %v", ErrUnavailable, ev.Name, err)
		}
		if i == 0 {
			leader = fd
		}
		g.fds = append(g.fds, fd)
	}

	return g, nil
}

// Begin enables the counter group and returns a baseline read. Per
// spec.md §4.2, the reset-then-enable-then-read ordering here is an
// implementation choice; callers only rely on Begin's read preceding
// any instruction in the measured region and End's read following it.
func (g *Group) Begin() (CounterVector, error) {
	for _, fd := range g.fds {
		if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0); err != nil {
			return nil, fmt.Errorf("pmu: reset counter: %w", err)
		}
	}
	for _, fd := range g.fds {
		if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
			return nil, fmt.Errorf("pmu: enable counter: %w", err)
		}
	}
	return g.read()
}

// End returns a second read of the counter group. Disabling is
// optional since only the delta between Begin and End matters; this
// implementation leaves counters running so a subsequent Begin's
// reset is always well-defined.
func (g *Group) End() (CounterVector, error) {
	return g.read()
}

func (g *Group) read() (CounterVector, error) {
	cv := make(CounterVector, len(g.fds))
	var buf [8]byte
	for i, fd := range g.fds {
		n, err := unix.Read(fd, buf[:])
		if err != nil {
			return nil, fmt.Errorf("pmu: read counter %q: %w", g.events[i].Name, err)
		}
		if n != len(buf) {
			return nil, fmt.Errorf("pmu: short read on counter %q: got %d bytes", g.events[i].Name, n)
		}
		cv[i] = *(*uint64)(unsafe.Pointer(&buf[0]))
	}
	return cv, nil
}

// Close closes every file descriptor in the group. Safe to call on a
// partially-initialized Group (as Configure does on its error path).
func (g *Group) Close() error {
	var firstErr error
	for _, fd := range g.fds {
		if err := unix.Close(fd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.fds = nil
	return firstErr
}

// Events returns the event list this group was configured with, in
// CounterVector order.
func (g *Group) Events() []Event { return g.events }
