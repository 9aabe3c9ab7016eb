// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/aclements/go-regionperf/ptrace"
)

// terminator is C6, the termination path (spec.md §4.4.4). It races
// every wait4 the driver issues against the arrival of an external
// signal, using Go's own signal delivery (which already moves the
// handler off any real signal stack) as the async-signal-safe self-pipe
// a C implementation would need to build by hand.
//
// The driver's goroutine is the only reader of state between
// contAndWait calls; handle runs on the same goroutine (it's invoked
// from the select in waitRaced, never from a separate handler
// goroutine), so it can touch e.st directly without synchronization.
type terminator struct {
	e *Engine

	sigCh chan os.Signal

	mu       sync.Mutex
	didFire  bool
	exitCode int
}

type waitResult struct {
	ev  ptrace.StopEvent
	err error
}

// terminatingSignals are the signals that end a run early. SIGALRM is
// included because unix.Alarm, used for the global-mode timeout,
// delivers it to this process; SIGKILL is registered only for
// symmetry with the original handler set even though the kernel never
// actually lets a process catch it, making this registration a
// defensive no-op; every other signal here is an operator interrupting
// the run from outside.
var terminatingSignals = []os.Signal{
	syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGALRM, syscall.SIGKILL,
}

func newTerminator(e *Engine) *terminator {
	t := &terminator{e: e, sigCh: make(chan os.Signal, 4)}
	signal.Notify(t.sigCh, terminatingSignals...)
	return t
}

// stop unregisters the signal handler. The engine must call this
// exactly once, whether or not the termination path fired, so a
// second Engine in the same process (as in tests) doesn't inherit a
// stale registration.
func (t *terminator) stop() {
	signal.Stop(t.sigCh)
}

func (t *terminator) fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.didFire
}

func (t *terminator) exitStatus() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// contAndWait resumes the tracee and blocks for its next stop,
// selecting against the signal channel so a termination request is
// never left waiting behind a tracee that never stops again. It is
// cont and waitRaced run back to back; callers that need to do
// something (like arming an alarm) strictly between the two, such as
// runGlobal, call them separately instead.
func (t *terminator) contAndWait(sig unix.Signal) (ptrace.StopEvent, error) {
	if err := t.cont(sig); err != nil {
		return ptrace.StopEvent{}, err
	}
	return t.waitRaced()
}

// cont issues PTRACE_CONT without waiting for the result.
func (t *terminator) cont(sig unix.Signal) error {
	if t.fired() {
		return nil
	}
	if err := t.e.tracee.ContNoWait(sig); err != nil {
		return wrapErr(PtraceIO, "resume tracee: %w", err)
	}
	return nil
}

// waitRaced blocks for the tracee's next stop, selecting against the
// signal channel so a termination request is never left waiting
// behind a tracee that never stops again.
func (t *terminator) waitRaced() (ptrace.StopEvent, error) {
	if t.fired() {
		return ptrace.StopEvent{}, nil
	}

	resultCh := make(chan waitResult, 1)
	go func() {
		ev, err := t.e.tracee.Wait()
		resultCh <- waitResult{ev, err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return ptrace.StopEvent{}, wrapErr(PtraceIO, "wait for tracee: %w", r.err)
		}
		return r.ev, nil
	case s := <-t.sigCh:
		t.handle(toUnixSignal(s))
		<-resultCh // the kill issued by handle makes this return promptly
		return ptrace.StopEvent{}, nil
	}
}

func toUnixSignal(s os.Signal) unix.Signal {
	if sig, ok := s.(syscall.Signal); ok {
		return unix.Signal(sig)
	}
	return 0
}

// handle implements spec.md §4.4.4's termination sequence:
//
//  1. forward the received signal to the tracee via the same signal
//     number;
//  2. if a sample is in progress, close it using an end-side counter
//     read taken from the tracer's viewpoint rather than leaving it
//     open;
//  3. force the tracee to die so nothing is left running after this
//     process exits;
//  4. final_flush whatever the buffer is holding;
//  5. close the output sink unless it's stderr.
//
// SIGALRM (the global-mode timeout) is forwarded to the tracee exactly
// like an operator-sent signal, even though whether a tracee should
// treat a forwarded alarm as meaningful is unclear: every path through
// C6 is "user-requested termination" and yields a distinguished
// nonzero status computed the same way (128+signal, the shell
// convention).
func (t *terminator) handle(sig unix.Signal) {
	t.mu.Lock()
	t.didFire = true
	t.exitCode = 128 + int(sig)
	t.mu.Unlock()

	t.e.tracee.Signal(sig)

	if t.e.st.sampleInProgress {
		if end, err := t.e.st.counters.End(); err == nil {
			t.e.st.buffer.CloseCurrent(end)
		} else {
			t.e.log.Printf("termination: reading end counters: %v", err)
		}
		t.e.st.sampleInProgress = false
	}

	t.e.tracee.Kill()
	t.e.finish()
}
