// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMem struct {
	data map[uint64][8]byte
}

func (m *fakeMem) put(addr, val uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], val)
	m.data[addr] = b
}

func (m *fakeMem) ReadMem(tid int, addr uint64, buf []byte) error {
	b := m.data[addr]
	copy(buf, b[:])
	return nil
}

func TestReturnAddressReadsCFAMinusEight(t *testing.T) {
	mem := &fakeMem{data: make(map[uint64][8]byte)}
	rbp := uint64(0x7ffe1000)
	cfa := rbp + 16
	mem.put(cfa-8, 0x401234)

	u := New(mem, nil, &Table{}, 0)
	addr, ok, err := u.ReturnAddress(1, 0x400000, rbp, rbp-8)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0x401234), addr)
}

func TestReturnAddressZeroMeansNoCaller(t *testing.T) {
	mem := &fakeMem{data: make(map[uint64][8]byte)}
	rbp := uint64(0x7ffe1000)
	// leave cfa-8 as zero

	u := New(mem, nil, &Table{}, 0)
	_, ok, err := u.ReturnAddress(1, 0x400000, rbp, rbp-8)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCurrentCFAFallsBackToFramePointerConvention(t *testing.T) {
	mem := &fakeMem{data: make(map[uint64][8]byte)}
	u := New(mem, nil, &Table{}, 0)

	cfa, err := u.CurrentCFA(0x400000, 0x7ffe1000, 0x7ffe0ff8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x7ffe1000+16), cfa)
}
