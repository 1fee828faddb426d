// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package breakpoint

import (
	"testing"

	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/debugee"
	"github.com/stretchr/testify/require"
)

type fakeDebugRegs struct {
	regs debugee.DebugRegs
}

func (f *fakeDebugRegs) ReadDebugRegs(tid int) (debugee.DebugRegs, error) {
	return f.regs, nil
}

func (f *fakeDebugRegs) WriteDebugRegs(tid int, dr debugee.DebugRegs) error {
	f.regs = dr
	return nil
}

func TestAddWatchAssignsDistinctSlots(t *testing.T) {
	mgr := NewManager(newFakeMem())
	dw := &fakeDebugRegs{}

	wp1, err := mgr.AddWatch(1, dw, 0x1000, 8, WatchWrite, ScopeSession, 0)
	require.NoError(t, err)
	wp2, err := mgr.AddWatch(1, dw, 0x2000, 4, WatchReadWrite, ScopeSession, 0)
	require.NoError(t, err)

	require.NotEqual(t, wp1.drSlot, wp2.drSlot)
	require.Equal(t, dw.regs.Addr[wp1.drSlot], uint64(0x1000))
	require.Equal(t, dw.regs.Addr[wp2.drSlot], uint64(0x2000))
}

func TestAddWatchExhaustsHardwareLimit(t *testing.T) {
	mgr := NewManager(newFakeMem())
	dw := &fakeDebugRegs{}

	for i := 0; i < maxHardwareWatchpoints; i++ {
		_, err := mgr.AddWatch(1, dw, uint64(0x1000*(i+1)), 8, WatchWrite, ScopeSession, 0)
		require.NoError(t, err)
	}

	_, err := mgr.AddWatch(1, dw, 0x9000, 8, WatchWrite, ScopeSession, 0)
	require.Error(t, err)
	require.Equal(t, bserrors.HardwareExhausted, bserrors.KindOf(err))
}

func TestRemoveWatchClearsDebugRegister(t *testing.T) {
	mgr := NewManager(newFakeMem())
	dw := &fakeDebugRegs{}

	wp, err := mgr.AddWatch(1, dw, 0x1000, 8, WatchWrite, ScopeSession, 0)
	require.NoError(t, err)
	require.NoError(t, mgr.RemoveWatch(1, dw, wp.ID))

	require.Equal(t, uint64(0), dw.regs.Addr[wp.drSlot])
	require.Empty(t, mgr.ListWatch())
}

func TestRemoveFrameScopedOnlyDropsMatchingFrame(t *testing.T) {
	mgr := NewManager(newFakeMem())
	dw := &fakeDebugRegs{}

	inFrame, err := mgr.AddWatch(1, dw, 0x1000, 8, WatchWrite, ScopeFrame, 0xCAFE)
	require.NoError(t, err)
	sessionScoped, err := mgr.AddWatch(1, dw, 0x2000, 8, WatchWrite, ScopeSession, 0)
	require.NoError(t, err)

	mgr.RemoveFrameScoped(1, dw, 0xCAFE)

	remaining := mgr.ListWatch()
	require.Len(t, remaining, 1)
	require.Equal(t, sessionScoped.ID, remaining[0].ID)
	_ = inFrame
}

func TestWhichFiredMatchesStatusBit(t *testing.T) {
	mgr := NewManager(newFakeMem())
	dw := &fakeDebugRegs{}

	wp, err := mgr.AddWatch(1, dw, 0x1000, 8, WatchWrite, ScopeSession, 0)
	require.NoError(t, err)

	got, ok := mgr.WhichFired(1 << uint(wp.drSlot))
	require.True(t, ok)
	require.Equal(t, wp.ID, got.ID)

	_, ok = mgr.WhichFired(0)
	require.False(t, ok)
}
