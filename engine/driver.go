// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/sys/unix"

	"github.com/aclements/go-regionperf/pmu"
	"github.com/aclements/go-regionperf/ptrace"
	"github.com/aclements/go-regionperf/sample"
)

// Engine owns the tracee, the counter group, the sample buffer and
// the output sink for one run (spec.md §3's EngineState lifecycle:
// created after fork+initial stop, destroyed after the final flush).
type Engine struct {
	cfg    Config
	tracee tracedProcess
	fmt    sample.Formatter
	log    *log.Logger

	st state

	term *terminator
}

// alarmFunc arms the wall-clock timeout for global mode; overridden in
// tests so the state machine's ordering can be verified without a real
// pending SIGALRM.
var alarmFunc = unix.Alarm

// New launches the tracee, attaches, configures the counter group and
// registers the termination path. It performs spec.md §4.4.1's entire
// startup sequence except for opening the output sink, which the
// caller supplies so it can apply its own open/truncate policy.
func New(cfg Config, sink io.WriteCloser, sinkIsStderr bool, formatter sample.Formatter, logger *log.Logger) (*Engine, error) {
	if len(cfg.Argv) == 0 {
		return nil, wrapErr(StartupFailure, "empty program argv")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	logger.Printf("Executing %v", cfg.Argv)

	tracee, err := ptrace.Launch(cfg.Argv)
	if err != nil {
		return nil, wrapErr(StartupFailure, "launch tracee: %w", err)
	}

	counters, err := pmu.Configure(tracee.Pid, cfg.events())
	if err != nil {
		tracee.Kill()
		return nil, wrapErr(PmuUnavailable, "configure PMU: %w", err)
	}

	closeSink := func() error { return nil }
	if !sinkIsStderr {
		closeSink = sink.Close
	}

	e := &Engine{
		cfg:    cfg,
		tracee: realTracee{tracee},
		fmt:    formatter,
		log:    logger,
		st: state{
			mode:      cfg.Mode(),
			counters:  counters,
			buffer:    sample.NewBuffer(cfg.events(), cfg.bufferCapacity()),
			closeSink: closeSink,
		},
	}

	e.term = newTerminator(e)
	return e, nil
}

// Run drives the selected mode's state machine to completion (either
// the tracee exits naturally, the global-mode alarm fires, the
// per-invocation maxSamples cap is reached, or the termination path
// intervenes) and returns the process exit status spec.md §6
// specifies: zero on normal completion, nonzero if C6 fired.
func (e *Engine) Run() (exitStatus int, err error) {
	defer e.term.stop()

	switch e.st.mode {
	case ModeGlobal:
		e.log.Printf("Measuring performance counters from global execution")
		err = e.runGlobal()
	case ModePerInvocation:
		e.log.Printf("Measuring performance counters from %#x to %#x (max. samples: %d)",
			e.cfg.AddrStart, e.cfg.AddrEnd, e.cfg.maxSamples())
		err = e.runPerInvocation()
	default:
		err = fmt.Errorf("engine: unknown mode %v", e.st.mode)
	}

	if e.term.fired() {
		// C6 already produced the final flush and chose a
		// distinguished status; Run returns it, and the caller
		// (cmd/regionperf) exits the process with it.
		return e.term.exitStatus(), err
	}

	e.finish()

	if err != nil && !IsKind(err, TraceeDied) {
		// PtraceIO mid-run: flush what's already closed and report
		// nonzero, per spec.md §7's policy for PtraceIO.
		return 1, err
	}

	// A TraceeDied error is non-fatal by policy (the run still
	// produced real samples up to the point the tracee died), so it
	// exits zero, but the error is still returned for the caller to
	// log.
	return 0, err
}

// finish runs the shared tail of every exit path: flush whatever the
// buffer is still holding, let the formatter emit its trailing
// summary if it has one, then close the output sink and counter
// group. Called exactly once per run, whether it ends normally,
// on a PtraceIO error, or via the termination path.
func (e *Engine) finish() {
	if err := e.st.buffer.FinalFlush(e.fmt); err != nil {
		e.log.Printf("final flush: %v", err)
	}
	if sc, ok := e.fmt.(sample.SummaryCloser); ok {
		if err := sc.CloseSummary(e.cfg.events()); err != nil {
			e.log.Printf("closing summary: %v", err)
		}
	}
	if err := e.st.closeSink(); err != nil {
		e.log.Printf("closing output: %v", err)
	}
	e.st.counters.Close()
}

// runGlobal implements spec.md §4.4.2: one sample spanning the whole
// tracee execution, optionally bounded by a wall-clock alarm.
func (e *Engine) runGlobal() error {
	begin, err := e.st.counters.Begin()
	if err != nil {
		return wrapErr(PtraceIO, "begin counters: %w", err)
	}
	e.st.buffer.BeginNext(begin)
	e.st.sampleInProgress = true

	// Order matters: the tracee must already be running before the
	// timeout window starts, per spec.md §4.4.2 (continue, then arm
	// the alarm, then wait) and original_source/src/main.c's
	// ptrace(PTRACE_CONT, ...); alarm(timeout); waitpid(...). Arming
	// first would let the alarm's clock run during the PTRACE_CONT
	// call itself.
	if err := e.term.cont(0); err != nil {
		return err
	}
	if e.cfg.TimeoutSeconds > 0 {
		alarmFunc(uint(e.cfg.TimeoutSeconds))
	}
	ev, err := e.term.waitRaced()
	if err != nil {
		return err
	}
	if e.term.fired() {
		return nil
	}

	// A non-exit stop in global mode (e.g. the tracee raised a signal
	// other than the alarm) does not end the single global sample: the
	// engine has nothing further to arm, so it forwards the signal
	// and keeps waiting for the real exit.
	for !ev.Exited {
		ev, err = e.contAndWait(ev.Signal)
		if err != nil {
			return err
		}
		if e.term.fired() {
			return nil
		}
	}

	end, err := e.st.counters.End()
	if err != nil {
		return wrapErr(PtraceIO, "end counters: %w", err)
	}
	e.st.sampleInProgress = false
	e.st.buffer.CloseCurrent(end)
	return nil
}

// runPerInvocation implements the state machine of spec.md §4.4.3.
func (e *Engine) runPerInvocation() error {
	max := e.cfg.maxSamples()

	bp, err := e.tracee.Install(e.cfg.AddrStart)
	if err != nil {
		return wrapErr(PtraceIO, "install start breakpoint: %w", err)
	}
	e.st.currentBreakpoint = true

	ev, err := e.contAndWait(0)
	if err != nil {
		return err
	}

	for {
		if e.term.fired() {
			return nil
		}
		if ev.Exited {
			// Tracee exited at [at start]: the in-progress begin-side
			// (if any) is discarded by construction (sample.Buffer's
			// BeginNext doc comment), and sampleCount is untouched.
			return nil
		}
		if !ev.Trap {
			// Non-trap stop: forward the signal and keep waiting
			// without treating it as a sample event (spec.md §4.4.3
			// tie-break; see DESIGN.md Open Question 3).
			ev, err = e.contAndWait(ev.Signal)
			if err != nil {
				return err
			}
			continue
		}

		// [at start]
		if err := e.tracee.RewindAfterTrap(ev); err != nil {
			return wrapErr(PtraceIO, "rewind PC: %w", err)
		}
		if err := e.tracee.Remove(bp); err != nil {
			return wrapErr(PtraceIO, "remove start breakpoint: %w", err)
		}
		e.st.currentBreakpoint = false

		endBp, err := e.tracee.Install(e.cfg.AddrEnd)
		if err != nil {
			return wrapErr(PtraceIO, "install end breakpoint: %w", err)
		}
		e.st.currentBreakpoint = true

		begin, err := e.st.counters.Begin()
		if err != nil {
			return wrapErr(PtraceIO, "begin counters: %w", err)
		}
		e.st.buffer.BeginNext(begin)
		e.st.sampleInProgress = true

		ev, err = e.contAndWait(0)
		if err != nil {
			return err
		}
		if e.term.fired() {
			return nil
		}

		for !ev.Exited && !ev.Trap {
			ev, err = e.contAndWait(ev.Signal)
			if err != nil {
				return err
			}
			if e.term.fired() {
				return nil
			}
		}

		if ev.Exited {
			// Exited at [at end]: unlike the [at start] case, a sample
			// was already opened via BeginNext for this region and
			// never closed. That's a genuine anomaly (the tracee died
			// mid-region rather than between them), so it's reported
			// as TraceeDied instead of silently discarded like the
			// [at start] exit above.
			e.st.sampleInProgress = false
			return wrapErr(TraceeDied, "tracee exited mid-region (status %d)", ev.ExitStatus)
		}

		// [at end]
		if err := e.tracee.RewindAfterTrap(ev); err != nil {
			return wrapErr(PtraceIO, "rewind PC: %w", err)
		}
		if err := e.tracee.Remove(endBp); err != nil {
			return wrapErr(PtraceIO, "remove end breakpoint: %w", err)
		}
		e.st.currentBreakpoint = false

		end, err := e.st.counters.End()
		if err != nil {
			return wrapErr(PtraceIO, "end counters: %w", err)
		}
		e.st.buffer.CloseCurrent(end)
		e.st.sampleInProgress = false

		if err := e.st.buffer.MaybeFlush(e.fmt); err != nil {
			e.log.Printf("flush: %v", err)
		}

		if uint32(e.st.buffer.SampleCount()) >= max {
			e.tracee.Signal(unix.SIGTERM)
			e.tracee.Kill()
			return nil
		}

		bp, err = e.tracee.Install(e.cfg.AddrStart)
		if err != nil {
			return wrapErr(PtraceIO, "install start breakpoint: %w", err)
		}
		e.st.currentBreakpoint = true

		ev, err = e.contAndWait(0)
		if err != nil {
			return err
		}
	}
}

// contAndWait resumes the tracee (optionally redelivering sig) and
// blocks for the next stop, racing against the termination path: see
// signal.go for why the wait itself runs on a helper goroutine.
func (e *Engine) contAndWait(sig unix.Signal) (ptrace.StopEvent, error) {
	return e.term.contAndWait(sig)
}
