// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package ptrace

import "golang.org/x/sys/unix"

// trapSize is the number of bytes the instruction pointer advances
// past a software breakpoint trap on this ISA (the INT3 opcode is one
// byte on x86).
const trapSize = 1

// trapOpcode is the one-byte software-trap encoding for this ISA
// (x86 INT3).
const trapOpcode byte = 0xCC

func regPC(regs *unix.PtraceRegs) uint64 { return regs.Rip }

func setRegPC(regs *unix.PtraceRegs, pc uint64) { regs.Rip = pc }
