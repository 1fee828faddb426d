// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch holds the x86-64-specific constants and encodings the rest
// of the debugger core needs: integer/pointer byte widths, the trap
// instruction used for software breakpoints, and the System V calling
// convention used by call injection. Cross-architecture support is an
// explicit non-goal, so unlike its ogle ancestor this package carries a
// single Architecture value instead of a family of them.
package arch

import (
	"encoding/binary"
)

// BreakpointSize is the width, in bytes, of the trap instruction patched
// into the debuggee's text on x86-64: a single INT3 (0xCC).
const BreakpointSize = 1

// BreakpointInstr is the byte written at a software breakpoint's address.
var BreakpointInstr = [BreakpointSize]byte{0xCC}

// AMD64 describes the only target architecture this debugger supports.
var AMD64 = Architecture{
	IntSize:     8,
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

// Architecture carries the byte-layout facts the DWARF type model and
// expression evaluator need when decoding debuggee memory.
type Architecture struct {
	IntSize     int
	PointerSize int
	ByteOrder   binary.ByteOrder
}

func (a *Architecture) Int(buf []byte) int64 {
	return int64(a.Uint(buf))
}

func (a *Architecture) Uint(buf []byte) uint64 {
	if len(buf) != a.IntSize {
		panic("bad IntSize")
	}
	return a.UintN(buf)
}

func (a *Architecture) Uint16(buf []byte) uint16 { return a.ByteOrder.Uint16(buf) }
func (a *Architecture) Uint32(buf []byte) uint32 { return a.ByteOrder.Uint32(buf) }
func (a *Architecture) Uint64(buf []byte) uint64 { return a.ByteOrder.Uint64(buf) }

func (a *Architecture) Int16(buf []byte) int16 { return int16(a.Uint16(buf)) }
func (a *Architecture) Int32(buf []byte) int32 { return int32(a.Uint32(buf)) }
func (a *Architecture) Int64(buf []byte) int64 { return int64(a.Uint64(buf)) }

// IntN and UintN decode an arbitrary-width (1/2/4/8-byte) little-endian
// integer, used for scalar DWARF types whose byte size isn't known until
// compile time.
func (a *Architecture) IntN(buf []byte) int64 {
	return int64(a.UintN(buf))
}

func (a *Architecture) UintN(buf []byte) uint64 {
	u := uint64(0)
	if a.ByteOrder == binary.LittleEndian {
		shift := uint(0)
		for _, c := range buf {
			u |= uint64(c) << shift
			shift += 8
		}
	} else {
		for _, c := range buf {
			u <<= 8
			u |= uint64(c)
		}
	}
	return u
}

func (a *Architecture) Uintptr(buf []byte) uint64 {
	if len(buf) != a.PointerSize {
		panic("bad PointerSize")
	}
	return a.ByteOrder.Uint64(buf)
}

// PutUintptr encodes v into buf using the architecture's pointer width,
// the inverse of Uintptr; call injection uses it to push the sentinel
// return address.
func (a *Architecture) PutUintptr(buf []byte, v uint64) {
	a.ByteOrder.PutUint64(buf, v)
}

// IntArgRegs is the System V AMD64 ABI's ordered list of integer/pointer
// argument registers. Call injection passes arguments in these registers,
// in order, and refuses a call with more arguments than there are
// registers; stack-passed arguments are not supported.
var IntArgRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
