// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"golang.org/x/sys/unix"

	"github.com/aclements/go-regionperf/pmu"
	"github.com/aclements/go-regionperf/ptrace"
)

// breakpoint is the subset of *ptrace.Breakpoint the driver touches
// after installing one. *ptrace.Breakpoint satisfies it directly.
type breakpoint interface {
	Armed() bool
}

// tracedProcess is the seam between the driver's state machine and
// the real ptrace primitive: *ptrace.Tracee satisfies it through the
// realTracee adapter below, and engine_test.go drives the state
// machine against a synthetic fake instead, per spec.md §9's note that
// the per-invocation machine is "a pure event handler... trivial to
// unit-test in isolation by driving synthetic events."
type tracedProcess interface {
	ContNoWait(sig unix.Signal) error
	Wait() (ptrace.StopEvent, error)
	Signal(sig unix.Signal) error
	Kill() error
	Install(addr uint64) (breakpoint, error)
	Remove(bp breakpoint) error
	RewindAfterTrap(stop ptrace.StopEvent) error
}

// realTracee adapts *ptrace.Tracee to tracedProcess. Install, Remove
// and RewindAfterTrap are free functions in ptrace rather than
// methods (the breakpoint primitive is stateless beyond the
// Breakpoint value itself), so this is the only place that bridges
// the two shapes.
type realTracee struct {
	*ptrace.Tracee
}

func (r realTracee) Install(addr uint64) (breakpoint, error) {
	return ptrace.Install(r.Tracee, addr)
}

func (r realTracee) Remove(bp breakpoint) error {
	return ptrace.Remove(r.Tracee, bp.(*ptrace.Breakpoint))
}

func (r realTracee) RewindAfterTrap(stop ptrace.StopEvent) error {
	return ptrace.RewindAfterTrap(r.Tracee, stop)
}

// counterSource is the subset of *pmu.Group the driver needs; *pmu.Group
// satisfies it directly. Extracted alongside tracedProcess so the
// per-invocation and global state machines can be driven in tests
// without a real perf_event_open file descriptor.
type counterSource interface {
	Begin() (pmu.CounterVector, error)
	End() (pmu.CounterVector, error)
	Close() error
}
