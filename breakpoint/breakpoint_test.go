// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeMem is an in-memory MemRW standing in for a live debuggee.
type fakeMem struct {
	data map[uint64]byte
}

func newFakeMem(addrs ...uint64) *fakeMem {
	m := &fakeMem{data: make(map[uint64]byte)}
	for _, a := range addrs {
		m.data[a] = 0x55 // arbitrary non-trap original instruction byte
	}
	return m
}

func (m *fakeMem) ReadMem(tid int, addr uint64, buf []byte) error {
	for i := range buf {
		buf[i] = m.data[addr+uint64(i)]
	}
	return nil
}

func (m *fakeMem) WriteMem(tid int, addr uint64, data []byte) error {
	for i, b := range data {
		m.data[addr+uint64(i)] = b
	}
	return nil
}

func TestAddInstallsTrapAndSavesOriginalByte(t *testing.T) {
	mem := newFakeMem(0x1000)
	mgr := NewManager(mem)

	bp, err := mgr.Add(1, KindLine, Place{Kind: KindLine, SourcePath: "main.rs", Line: 10}, "user", []uint64{0x1000})
	require.NoError(t, err)
	require.Equal(t, Armed, bp.State)
	require.Equal(t, byte(0xCC), mem.data[0x1000])

	orig, ok := mgr.OriginalByte(0x1000)
	require.True(t, ok)
	require.Equal(t, byte(0x55), orig[0])
}

func TestAddSamePlaceTwiceReturnsSameBreakpoint(t *testing.T) {
	mem := newFakeMem(0x1000)
	mgr := NewManager(mem)

	place := Place{Kind: KindLine, SourcePath: "main.rs", Line: 10}
	bp1, err := mgr.Add(1, KindLine, place, "user", []uint64{0x1000})
	require.NoError(t, err)
	bp2, err := mgr.Add(1, KindLine, place, "user", []uint64{0x1000})
	require.NoError(t, err)
	require.Same(t, bp1, bp2)
	require.Len(t, mgr.List(), 1)
}

func TestAddWithNoAddressesIsPending(t *testing.T) {
	mem := newFakeMem()
	mgr := NewManager(mem)

	bp, err := mgr.Add(1, KindFunctionEntry, Place{Kind: KindFunctionEntry, MangledName: "not_loaded_yet"}, "user", nil)
	require.NoError(t, err)
	require.Equal(t, Pending, bp.State)
}

func TestRemoveRestoresOriginalByte(t *testing.T) {
	mem := newFakeMem(0x1000)
	mgr := NewManager(mem)

	bp, err := mgr.Add(1, KindAddress, Place{Kind: KindAddress, Address: 0x1000}, "user", []uint64{0x1000})
	require.NoError(t, err)

	require.NoError(t, mgr.Remove(1, bp.ID))
	require.Equal(t, byte(0x55), mem.data[0x1000])
	_, ok := mgr.AtAddr(0x1000)
	require.False(t, ok)
}

func TestRemoveUnknownIDErrors(t *testing.T) {
	mgr := NewManager(newFakeMem())
	err := mgr.Remove(1, 999)
	require.Error(t, err)
}

func TestHitAttributionRewindsPC(t *testing.T) {
	mem := newFakeMem(0x2000)
	mgr := NewManager(mem)
	bp, err := mgr.Add(1, KindAddress, Place{Kind: KindAddress, Address: 0x2000}, "user", []uint64{0x2000})
	require.NoError(t, err)

	got, rewound, ok := mgr.HitAttribution(0x2001)
	require.True(t, ok)
	require.Equal(t, bp.ID, got.ID)
	require.Equal(t, uint64(0x2000), rewound)
}

func TestHitAttributionMissNoInstalledBreakpoint(t *testing.T) {
	mgr := NewManager(newFakeMem())
	_, _, ok := mgr.HitAttribution(0x5001)
	require.False(t, ok)
}

func TestStepOffBreakpointLiftsAndReinstallsTrap(t *testing.T) {
	mem := newFakeMem(0x3000)
	mgr := NewManager(mem)
	_, err := mgr.Add(1, KindAddress, Place{Kind: KindAddress, Address: 0x3000}, "user", []uint64{0x3000})
	require.NoError(t, err)
	require.Equal(t, byte(0xCC), mem.data[0x3000])

	var sawOriginalDuringStep byte
	err = mgr.StepOffBreakpoint(1, 0x3000, func() error {
		sawOriginalDuringStep = mem.data[0x3000]
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, byte(0x55), sawOriginalDuringStep)
	require.Equal(t, byte(0xCC), mem.data[0x3000]) // re-armed after the step
}

func TestRecordHitIncrementsCount(t *testing.T) {
	mgr := NewManager(newFakeMem())
	bp, err := mgr.Add(1, KindAddress, Place{Kind: KindAddress, Address: 0x4000}, "user", nil)
	require.NoError(t, err)

	mgr.RecordHit(bp.ID)
	mgr.RecordHit(bp.ID)
	require.Equal(t, 2, mgr.List()[0].HitCount)
}
