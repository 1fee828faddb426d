// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildSection assembles a minimal synthetic .debug_frame buffer: one CIE
// (recognized by its 0xffffffff id and skipped) followed by one FDE
// covering [low, low+rangeLen).
func buildSection(order binary.ByteOrder, low, rangeLen uint64) []byte {
	var buf []byte

	cieBody := make([]byte, 4)
	order.PutUint32(cieBody, 0xffffffff)
	buf = append(buf, le32(order, uint32(len(cieBody)))...)
	buf = append(buf, cieBody...)

	fdeBody := make([]byte, 20)
	order.PutUint32(fdeBody[0:4], 4) // points back at the CIE, neither 0 nor 0xffffffff
	order.PutUint64(fdeBody[4:12], low)
	order.PutUint64(fdeBody[12:20], rangeLen)
	buf = append(buf, le32(order, uint32(len(fdeBody)))...)
	buf = append(buf, fdeBody...)

	return buf
}

func le32(order binary.ByteOrder, v uint32) []byte {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return b
}

func TestParseDebugFrameSkipsCIEAndParsesFDE(t *testing.T) {
	section := buildSection(binary.LittleEndian, 0x2000, 0x50)
	tbl, err := ParseDebugFrame(section, binary.LittleEndian)
	require.NoError(t, err)
	require.Len(t, tbl.fdes, 1)
	require.Equal(t, uint64(0x2000), tbl.fdes[0].Low)
	require.Equal(t, uint64(0x2050), tbl.fdes[0].High)
}

func TestCFAForWithinFDEUsesRowRule(t *testing.T) {
	section := buildSection(binary.LittleEndian, 0x2000, 0x50)
	tbl, err := ParseDebugFrame(section, binary.LittleEndian)
	require.NoError(t, err)

	cfa, ok := tbl.CFAFor(0x2010, map[int]uint64{rbpDWARFNum: 0x7ffe0000})
	require.True(t, ok)
	require.Equal(t, uint64(0x7ffe0000+16), cfa)
}

func TestCFAForOutsideAnyFDEFallsBackToFramePointer(t *testing.T) {
	tbl := &Table{}
	cfa, ok := tbl.CFAFor(0x9999, map[int]uint64{rbpDWARFNum: 0x1000})
	require.True(t, ok)
	require.Equal(t, uint64(0x1010), cfa)
}

func TestCFAForNoRegisterAvailable(t *testing.T) {
	tbl := &Table{}
	_, ok := tbl.CFAFor(0x9999, map[int]uint64{})
	require.False(t, ok)
}
