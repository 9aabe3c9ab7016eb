// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package ptrace

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// needRoot skips tests that require ptrace privileges commonly denied
// in sandboxed CI containers (Yama ptrace_scope, missing CAP_SYS_PTRACE).
func needRoot(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("skipping ptrace test: requires CAP_SYS_PTRACE (run as root)")
	}
}

func TestLaunchAndExit(t *testing.T) {
	needRoot(t)

	tr, err := Launch([]string{"/bin/true"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	ev, err := tr.Cont(0)
	if err != nil {
		t.Fatalf("Cont: %v", err)
	}
	if !ev.Exited {
		t.Fatalf("expected tracee to exit, got %+v", ev)
	}
}

func TestBreakpointRoundTrip(t *testing.T) {
	needRoot(t)

	// The tracee's PC at its post-exec stop (for a dynamically linked
	// /bin/true, the program interpreter's entry point) is enough to
	// install and remove a breakpoint without ever letting the tracee
	// reach it; we only assert that memory round-trips.
	tr, err := Launch([]string{"/bin/true"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer tr.Kill()

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(tr.Pid, &regs); err != nil {
		t.Fatalf("PtraceGetRegs: %v", err)
	}
	addr := regPC(&regs)

	var before [8]byte
	if _, err := unix.PtracePeekText(tr.Pid, uintptr(addr), before[:]); err != nil {
		t.Fatalf("PtracePeekText: %v", err)
	}

	bp, err := Install(tr, addr)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !bp.Armed() {
		t.Fatal("expected breakpoint to be armed after Install")
	}

	if err := Remove(tr, bp); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if bp.Armed() {
		t.Fatal("expected breakpoint to be disarmed after Remove")
	}

	var after [8]byte
	if _, err := unix.PtracePeekText(tr.Pid, uintptr(addr), after[:]); err != nil {
		t.Fatalf("PtracePeekText: %v", err)
	}
	if before != after {
		t.Fatalf("memory did not round-trip: before=%v after=%v", before, after)
	}
}
