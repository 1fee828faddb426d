// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugee

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// rawPtrace issues a ptrace(2) request not wrapped by golang.org/x/sys/unix
// (PTRACE_SEIZE's options form, PTRACE_INTERRUPT, PTRACE_LISTEN, and the
// PEEKUSER/POKEUSER access to struct user's debug-register array used by
// hardware watchpoints).
func rawPtrace(request uintptr, pid int, addr, data uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, request, uintptr(pid), addr, data, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

const (
	ptraceSeize     = 0x4206
	ptraceInterrupt = 0x4207
	ptraceListen    = 0x4208
	ptracePeekUser  = 3
	ptracePokeUser  = 6
)

// debugRegOffset is the byte offset of u_debugreg[n] within struct user on
// linux/amd64, used by PTRACE_PEEKUSER/POKEUSER to read and write the
// hardware debug (DR0-DR7) registers that back watchpoints (spec.md §4.E).
func debugRegOffset(n int) uintptr {
	const userRegsStructSize = 27 * 8 // struct user_regs_struct on amd64
	const uStructExtra = 8 * 8        // u_fpvalid, int, u_tsize..u_comm padding before u_debugreg, platform-specific
	return uintptr(userRegsStructSize + uStructExtra + n*8)
}

func seize(pid int, options int) error {
	if err := rawPtrace(ptraceSeize, pid, 0, uintptr(options)); err != nil {
		return err
	}
	return nil
}

func interrupt(pid int) error {
	return rawPtrace(ptraceInterrupt, pid, 0, 0)
}

func peekUser(pid int, off uintptr) (uint64, error) {
	var out uint64
	if err := rawPtrace(ptracePeekUser, pid, off, uintptr(unsafe.Pointer(&out))); err != nil {
		return 0, err
	}
	return out, nil
}

func pokeUser(pid int, off uintptr, v uint64) error {
	return rawPtrace(ptracePokeUser, pid, off, uintptr(v))
}
