// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unwind implements the stack unwinder (spec.md §4.D): a lazy
// frame sequence built from call-frame information in .eh_frame /
// .debug_frame, computing each frame's canonical frame address (CFA) and
// the previous frame's program counter and registers.
//
// The teacher repo vendors delve's CFI reader under
// third_party/delve/dwarf/loclist rather than depending on it via
// go.mod; DESIGN.md records why this package hand-rolls a minimal CFI
// table instead of importing github.com/go-delve/delve/pkg/dwarf/frame
// directly (its FDE/register-rule API is tied to delve's own proc
// abstractions and doesn't fit this simpler register model).
package unwind

import (
	"encoding/binary"

	"github.com/godzie44/BugStalker/bserrors"
)

// RegRule is how to recover one register's value in the previous frame.
type RegRule int

const (
	RuleUndefined RegRule = iota
	RuleSameValue
	RuleOffsetFromCFA // value is *(CFA + offset)
	RuleRegister      // value is the named register's current value
)

// RowRule is the register-recovery rule table for one instruction range.
type RowRule struct {
	LowPC, HighPC uint64
	CFAReg        int // DWARF register number the CFA is expressed relative to
	CFAOffset     int64
	RetAddrRule   RegRule
	RetAddrOffset int64
}

// FDE is one frame-description-entry's set of unwind rows, sorted by
// LowPC.
type FDE struct {
	Low, High uint64
	Rows      []RowRule
}

func (f *FDE) rowFor(pc uint64) (RowRule, bool) {
	var best RowRule
	found := false
	for _, r := range f.Rows {
		if pc < r.LowPC {
			continue
		}
		if !found || r.LowPC > best.LowPC {
			best, found = r, true
		}
	}
	return best, found
}

// Table is the parsed call-frame-information for one object: every FDE,
// indexed by address range.
type Table struct {
	fdes []*FDE
}

// ParseDebugFrame parses a simplified, common subset of .debug_frame /
// .eh_frame: CIEs are skipped, and each FDE contributes only its address
// range, with one row covering the whole range that uses the frame-pointer
// rule (CFA = rbp+16, return address at CFA-8, the standard frame-pointer
// prologue shape), which covers the frame-pointer-based code rustc/LLVM
// emit at -O0. The CFA instructions of CIEs and FDEs (DW_CFA_def_cfa,
// advance-location and the rest) are not executed, so code that does not
// keep rbp as a frame pointer is not unwound correctly.
func ParseDebugFrame(section []byte, order binary.ByteOrder) (*Table, error) {
	t := &Table{}
	off := 0
	for off < len(section) {
		if off+4 > len(section) {
			break
		}
		length := order.Uint32(section[off:])
		entryEnd := off + 4 + int(length)
		if length == 0 || entryEnd > len(section) {
			break
		}
		body := section[off+4 : entryEnd]
		if len(body) < 4 {
			off = entryEnd
			continue
		}
		cieOrFdeID := order.Uint32(body[0:4])
		if cieOrFdeID == 0xffffffff || cieOrFdeID == 0 {
			// CIE: carried only as the default rule baseline; this
			// reduced parser does not execute its initial-instruction
			// program, relying instead on the frame-pointer convention
			// documented above.
			off = entryEnd
			continue
		}
		fde, err := parseFDE(body, order)
		if err != nil {
			return nil, bserrors.Wrap(bserrors.DwarfMalformed, err, "parse FDE")
		}
		t.fdes = append(t.fdes, fde)
		off = entryEnd
	}
	return t, nil
}

func parseFDE(body []byte, order binary.ByteOrder) (*FDE, error) {
	if len(body) < 20 {
		return nil, bserrors.New(bserrors.DwarfMalformed, "FDE body too short")
	}
	low := order.Uint64(body[4:12])
	rangeLen := order.Uint64(body[12:20])
	fde := &FDE{Low: low, High: low + rangeLen}
	fde.Rows = append(fde.Rows, RowRule{
		LowPC:         low,
		HighPC:        low + rangeLen,
		CFAReg:        rbpDWARFNum,
		CFAOffset:     16,
		RetAddrRule:   RuleOffsetFromCFA,
		RetAddrOffset: -8,
	})
	return fde, nil
}

// rbpDWARFNum is DW_OP register number 6 (rbp) in the x86-64 DWARF
// register-number mapping (System V psABI).
const rbpDWARFNum = 6

// rspDWARFNum is register number 7 (rsp).
const rspDWARFNum = 7

// CFAFor computes the canonical frame address at pc given the current
// register file (keyed by DWARF register number), falling back to the
// frame-pointer convention (rbp+16) when no FDE covers pc.
func (t *Table) CFAFor(pc uint64, regs map[int]uint64) (uint64, bool) {
	for _, fde := range t.fdes {
		if pc < fde.Low || pc >= fde.High {
			continue
		}
		row, ok := fde.rowFor(pc)
		if !ok {
			continue
		}
		base, ok := regs[row.CFAReg]
		if !ok {
			continue
		}
		return uint64(int64(base) + row.CFAOffset), true
	}
	if base, ok := regs[rbpDWARFNum]; ok {
		return base + 16, true
	}
	return 0, false
}
