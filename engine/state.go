// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine is the tracing driver (C5) and signal-termination
// path (C6): it forks and attaches to a tracee, drives the ptrace
// state machine in either global or per-invocation mode, and
// coordinates the breakpoint primitive, event provider and sample
// buffer to produce a coherent report even under external
// termination (spec.md §4.4, §4.4.4).
package engine // import "github.com/aclements/go-regionperf/engine"

import (
	"errors"
	"fmt"
	"math"

	"github.com/aclements/go-regionperf/pmu"
	"github.com/aclements/go-regionperf/sample"
)

// Mode selects which state machine Engine.Run drives.
type Mode int

const (
	// ModeGlobal measures the whole program run as a single sample
	// (spec.md §4.4.2).
	ModeGlobal Mode = iota
	// ModePerInvocation measures every dynamic entry into
	// [AddrStart, AddrEnd) as its own sample (spec.md §4.4.3).
	ModePerInvocation
)

// Config is the engine's input record (spec.md §6). Argv must be
// non-empty; AddrStart and AddrEnd select ModePerInvocation only when
// both are nonzero.
type Config struct {
	AddrStart      uint64
	AddrEnd        uint64
	MaxSamples     uint32
	TimeoutSeconds uint32
	OutputPath     string
	Argv           []string

	// Events overrides the default PMU event set; nil selects
	// pmu.DefaultEvents.
	Events []pmu.Event

	// BufferCapacity overrides sample.DefaultCapacity; 0 selects the
	// default.
	BufferCapacity int
}

// Mode derives the run mode from the address pair, per spec.md §6:
// "When addr_start and addr_end are both present and nonzero,
// per-invocation mode is selected; otherwise global."
func (c *Config) Mode() Mode {
	if c.AddrStart != 0 && c.AddrEnd != 0 {
		return ModePerInvocation
	}
	return ModeGlobal
}

func (c *Config) maxSamples() uint32 {
	if c.MaxSamples == 0 {
		return math.MaxUint32
	}
	return c.MaxSamples
}

func (c *Config) events() []pmu.Event {
	if c.Events != nil {
		return c.Events
	}
	return pmu.DefaultEvents
}

func (c *Config) bufferCapacity() int {
	if c.BufferCapacity > 0 {
		return c.BufferCapacity
	}
	return sample.DefaultCapacity
}

// ErrorKind is spec.md §7's error taxonomy. Not every kind is raised
// through this type: ExternalSignal's termination is reported
// structurally via terminator.fired()/exitStatus() instead of an
// *Error (see signal.go), since C6 is a normal outcome, not a failure,
// and OutputIO covers a future streaming formatter's write errors —
// the bundled report.Writer buffers in memory and only fails on the
// final flush, which already surfaces as a logged, non-fatal error in
// Engine.finish rather than a typed one.
type ErrorKind int

const (
	StartupFailure ErrorKind = iota
	PmuUnavailable
	PtraceIO
	TraceeDied
	OutputIO
	ExternalSignal
)

func (k ErrorKind) String() string {
	switch k {
	case StartupFailure:
		return "StartupFailure"
	case PmuUnavailable:
		return "PmuUnavailable"
	case PtraceIO:
		return "PtraceIO"
	case TraceeDied:
		return "TraceeDied"
	case OutputIO:
		return "OutputIO"
	case ExternalSignal:
		return "ExternalSignal"
	}
	return "Unknown"
}

// Error wraps a failure with the taxonomy kind spec.md §7 assigns it,
// so callers can apply the matching policy (fatal vs. best-effort)
// with errors.As instead of string matching.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// state is the mutable core the driver and signal path share
// (spec.md §3 EngineState). It is owned exclusively by the driver's
// goroutine except for the read consulted by the signal path, and is
// only ever touched after the driver's own wait/select loop has
// blocked, so there is no data race between the two (see signal.go).
type state struct {
	mode              Mode
	counters          counterSource
	buffer            *sample.Buffer
	currentBreakpoint bool // true iff a breakpoint is armed
	sampleInProgress  bool
	closeSink         func() error
}
