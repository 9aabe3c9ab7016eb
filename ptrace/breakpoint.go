// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Breakpoint is a software trap installed at one address in a
// Tracee's memory. At most one Breakpoint is expected to be armed at
// a time per tracing session (the engine's driver enforces this; the
// primitive itself is stateless beyond the struct).
//
// Breakpoint is not re-entrant for a single address: Install and
// Remove must be serialized by the caller, which in this engine means
// running the entire ptrace loop on a single goroutine with its OS
// thread locked.
type Breakpoint struct {
	Addr     uint64
	original [8]byte
	armed    bool
}

// Install overwrites the first byte at addr in the tracee's memory
// with the ISA's software-trap encoding, saving the original word so
// it can be restored bit-for-bit by Remove.
func Install(t *Tracee, addr uint64) (*Breakpoint, error) {
	bp := &Breakpoint{Addr: addr}

	n, err := unix.PtracePeekText(t.Pid, uintptr(addr), bp.original[:])
	if err != nil || n != len(bp.original) {
		return nil, fmt.Errorf("ptrace: PTRACE_PEEKTEXT at %#x: %w", addr, err)
	}

	var patched [8]byte
	copy(patched[:], bp.original[:])
	patched[0] = trapOpcode

	if n, err := unix.PtracePokeText(t.Pid, uintptr(addr), patched[:]); err != nil || n != len(patched) {
		return nil, fmt.Errorf("ptrace: PTRACE_POKETEXT at %#x: %w", addr, err)
	}

	bp.armed = true
	return bp, nil
}

// Remove restores the original word at bp.Addr and clears armed. It
// is safe to call Remove on an already-removed breakpoint.
func Remove(t *Tracee, bp *Breakpoint) error {
	if !bp.armed {
		return nil
	}
	if n, err := unix.PtracePokeText(t.Pid, uintptr(bp.Addr), bp.original[:]); err != nil || n != len(bp.original) {
		return fmt.Errorf("ptrace: PTRACE_POKETEXT restore at %#x: %w", bp.Addr, err)
	}
	bp.armed = false
	return nil
}

// Armed reports whether bp's trap is currently installed in tracee
// memory.
func (bp *Breakpoint) Armed() bool { return bp.armed }

// RewindAfterTrap decrements the tracee's program counter by the
// architecture's trap size so that, once the original instruction
// byte is restored by Remove, it will re-execute from its own start
// rather than from the middle of the trap encoding. On x86 the
// hardware advances the instruction pointer past the one-byte INT3
// before reporting the trap, so the engine must rewind before the
// tracee is ever resumed again at that address.
func RewindAfterTrap(t *Tracee, stop StopEvent) error {
	if trapSize == 0 {
		return nil
	}
	return t.SetPC(stop.PC - trapSize)
}
