// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ptrace drives a single traced child process: launching it,
// pinning tracer and tracee to one CPU, waiting for trace-stops, and
// resuming execution with or without a pending signal.
//
// The package assumes a single-threaded tracee and a single-threaded
// tracer: every operation here must run on the same OS thread that
// attached to the tracee, since ptrace state is per-thread in the
// kernel.
package ptrace // import "github.com/aclements/go-regionperf/ptrace"

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// PinCPU is the CPU the tracer and tracee are pinned to. Both ends of
// the trace relationship run on the same core so that PMU counters
// read by the event provider never migrate across a counter
// re-multiplexing boundary.
const PinCPU = 1

// Tracee is a child process under trace control. All methods must be
// called from the goroutine that created the Tracee, with the OS
// thread locked via runtime.LockOSThread: ptrace is a per-thread
// relationship in the kernel.
type Tracee struct {
	cmd *exec.Cmd
	Pid int
}

// StopEvent describes why a tracee wait returned.
type StopEvent struct {
	// Exited is true if the tracee has exited; Trap, Signal and PC
	// are meaningless in that case.
	Exited     bool
	ExitStatus int

	// Signal is the signal that stopped the tracee. Trap is true
	// when Signal is SIGTRAP, which covers both breakpoint hits and
	// the initial post-exec stop.
	Signal unix.Signal
	Trap   bool

	// PC is the tracee's instruction pointer at the stop, valid only
	// when Exited is false.
	PC uint64
}

// Launch locks the calling goroutine to its OS thread, forks and
// execs argv[0] with the given arguments, requesting to be traced,
// and pins both the tracer (the calling OS thread) and the future
// tracee to PinCPU before the tracee is released past its initial
// stop. It returns once the tracee has taken its post-exec
// trace-stop.
//
// The OS thread lock is never released: ptrace attaches are
// thread-local in the kernel, and this engine's single-owner-thread
// design (spec.md §5) means the thread that launches a Tracee drives
// it for the tracee's entire lifetime.
func Launch(argv []string) (*Tracee, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("ptrace: empty argv")
	}

	runtime.LockOSThread()

	// Pin the tracer to PinCPU first. A traced child inherits its
	// parent's affinity mask across execve, so setting this before
	// Start keeps both ends of the relationship on the same core for
	// the entire run, matching the measurement methodology's
	// affinity invariant (spec.md §4.4.1, §5).
	if err := pinAffinity(0, PinCPU); err != nil {
		return nil, fmt.Errorf("ptrace: set tracer affinity: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Ptrace: true,
		// A traced child gets an implicit SIGTRAP after execve,
		// which is the initial trace-stop we wait for below.
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ptrace: start tracee: %w", err)
	}

	t := &Tracee{cmd: cmd, Pid: cmd.Process.Pid}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(t.Pid, &ws, 0, nil); err != nil {
		return nil, fmt.Errorf("ptrace: wait for initial stop: %w", err)
	}
	if !ws.Stopped() {
		return nil, fmt.Errorf("ptrace: tracee did not stop after exec (status %v)", ws)
	}

	return t, nil
}

// pinAffinity pins the OS process/thread identified by pid (0 means
// the calling thread) to the given CPU.
func pinAffinity(pid, cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(pid, &set)
}

// Cont resumes the tracee, optionally redelivering sig (0 for none),
// and waits for the next trace-stop or exit.
func (t *Tracee) Cont(sig unix.Signal) (StopEvent, error) {
	if err := t.ContNoWait(sig); err != nil {
		return StopEvent{}, err
	}
	return t.Wait()
}

// ContNoWait issues PTRACE_CONT without blocking for the result,
// letting the caller wait on a goroutine instead (needed by the
// termination path, which must race the wait against an incoming
// signal rather than block the owning thread on it).
func (t *Tracee) ContNoWait(sig unix.Signal) error {
	if err := unix.PtraceCont(t.Pid, int(sig)); err != nil {
		return fmt.Errorf("ptrace: PTRACE_CONT: %w", err)
	}
	return nil
}

// Wait blocks until the tracee stops or exits.
func (t *Tracee) Wait() (StopEvent, error) {
	var ws unix.WaitStatus
	if _, err := unix.Wait4(t.Pid, &ws, 0, nil); err != nil {
		return StopEvent{}, fmt.Errorf("ptrace: wait4: %w", err)
	}

	if ws.Exited() {
		return StopEvent{Exited: true, ExitStatus: ws.ExitStatus()}, nil
	}
	if ws.Signaled() {
		return StopEvent{Exited: true, ExitStatus: 128 + int(ws.Signal())}, nil
	}
	if !ws.Stopped() {
		return StopEvent{}, fmt.Errorf("ptrace: unexpected wait status %v", ws)
	}

	sig := ws.StopSignal()
	pc, err := t.pc()
	if err != nil {
		return StopEvent{}, err
	}
	return StopEvent{Signal: sig, Trap: sig == unix.SIGTRAP, PC: pc}, nil
}

// Kill sends SIGKILL to the tracee and reaps it.
func (t *Tracee) Kill() error {
	if err := unix.Kill(t.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("ptrace: kill tracee: %w", err)
	}
	var ws unix.WaitStatus
	unix.Wait4(t.Pid, &ws, 0, nil)
	return nil
}

// Signal sends sig directly to the tracee without resuming it (used
// by the termination path, which must forward a received signal even
// while a sample is in progress, per spec.md §4.4.4 step 1).
func (t *Tracee) Signal(sig unix.Signal) error {
	if err := unix.Kill(t.Pid, sig); err != nil && err != unix.ESRCH {
		return fmt.Errorf("ptrace: signal tracee: %w", err)
	}
	return nil
}

func (t *Tracee) pc() (uint64, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.Pid, &regs); err != nil {
		return 0, fmt.Errorf("ptrace: PTRACE_GETREGS: %w", err)
	}
	return regPC(&regs), nil
}

// SetPC rewrites the tracee's instruction pointer.
func (t *Tracee) SetPC(pc uint64) error {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.Pid, &regs); err != nil {
		return fmt.Errorf("ptrace: PTRACE_GETREGS: %w", err)
	}
	setRegPC(&regs, pc)
	if err := unix.PtraceSetRegs(t.Pid, &regs); err != nil {
		return fmt.Errorf("ptrace: PTRACE_SETREGS: %w", err)
	}
	return nil
}
