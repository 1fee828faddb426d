// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	"encoding/binary"

	"github.com/godzie44/BugStalker/bserrors"
)

const (
	opAddr  = 0x03
	opFbreg = 0x91
)

// evalLocation evaluates a DW_AT_location single-location-expression
// (the common case for -O0 debug info: a location list or a frame-base
// reference the producer never needs to vary across ranges) to a
// debuggee address. cfa is the frame's canonical frame address, used as
// DW_AT_frame_base's value for DW_OP_fbreg, which rustc emits almost
// universally for locals at -O0 (spec.md §4.D's CFA, threaded in from
// the unwinder's frame model).
func evalLocation(expr []byte, cfa uint64) (uint64, error) {
	if len(expr) == 0 {
		return 0, bserrors.New(bserrors.PlaceUnresolved, "empty location expression")
	}
	op := expr[0]
	switch op {
	case opAddr:
		if len(expr) < 9 {
			return 0, bserrors.New(bserrors.DwarfMalformed, "truncated DW_OP_addr")
		}
		return binary.LittleEndian.Uint64(expr[1:9]), nil
	case opFbreg:
		off, _, ok := sleb128(expr[1:])
		if !ok {
			return 0, bserrors.New(bserrors.DwarfMalformed, "truncated DW_OP_fbreg offset")
		}
		return uint64(int64(cfa) + off), nil
	default:
		return 0, bserrors.Newf(bserrors.PlaceUnresolved, "unsupported location opcode %#x", op)
	}
}

// sleb128 decodes a signed LEB128 value from buf, returning the value,
// the number of bytes consumed, and whether decoding succeeded.
func sleb128(buf []byte) (int64, int, bool) {
	var result int64
	var shift uint
	var i int
	for {
		if i >= len(buf) {
			return 0, 0, false
		}
		b := buf[i]
		result |= int64(b&0x7f) << shift
		shift += 7
		i++
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			break
		}
	}
	return result, i, true
}
