// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inject

import (
	"math/big"
	"testing"

	"github.com/godzie44/BugStalker/breakpoint"
	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/debugee"
	"github.com/godzie44/BugStalker/eval"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeDbg is a minimal in-memory stand-in for *debugee.Debuggee, enough
// to drive one injected call through InjectCall without a real tracee.
type fakeDbg struct {
	mem  map[uint64]byte
	regs unix.PtraceRegs
}

func newFakeDbg(regs unix.PtraceRegs) *fakeDbg {
	return &fakeDbg{mem: make(map[uint64]byte), regs: regs}
}

func (f *fakeDbg) ReadMem(tid int, addr uint64, buf []byte) error {
	for i := range buf {
		buf[i] = f.mem[addr+uint64(i)]
	}
	return nil
}

func (f *fakeDbg) WriteMem(tid int, addr uint64, data []byte) error {
	for i, b := range data {
		f.mem[addr+uint64(i)] = b
	}
	return nil
}

func (f *fakeDbg) ReadRegs(tid int) (unix.PtraceRegs, error) { return f.regs, nil }

func (f *fakeDbg) WriteRegs(tid int, regs unix.PtraceRegs) error {
	f.regs = regs
	return nil
}

func (f *fakeDbg) Cont(tid int, signal int) error { return nil }

// Wait simulates the injected function having run to completion and
// trapped at the sentinel, leaving a return value in Rax.
func (f *fakeDbg) Wait() (debugee.WaitResult, error) {
	f.regs.Rax = 42
	return debugee.WaitResult{TID: 7}, nil
}

func TestInjectCallMarshalsArgsAndRestoresRegisters(t *testing.T) {
	dbg := newFakeDbg(unix.PtraceRegs{Rip: 0x1000, Rsp: 0x7000})
	mgr := breakpoint.NewManager(dbg)
	inj := New(dbg, mgr)

	arg := &eval.Value{IsConst: true, Const: big.NewInt(5)}
	result, err := inj.InjectCall(7, 0x2000, []*eval.Value{arg})
	require.NoError(t, err)
	require.True(t, result.IsConst)
	require.Equal(t, int64(42), result.Const.(*big.Int).Int64())

	// The thread's registers must come back exactly as they were before
	// the call, per spec.md §4.I.
	require.Equal(t, uint64(0x1000), dbg.regs.Rip)
	require.Equal(t, uint64(0x7000), dbg.regs.Rsp)
}

func TestInjectCallRefusesInsideSyscall(t *testing.T) {
	regs := unix.PtraceRegs{Rip: 0x3000, Rsp: 0x7000}
	dbg := newFakeDbg(regs)
	dbg.mem[0x2ffe] = 0x0f
	dbg.mem[0x2fff] = 0x05
	mgr := breakpoint.NewManager(dbg)
	inj := New(dbg, mgr)

	_, err := inj.InjectCall(7, 0x4000, nil)
	require.Error(t, err)
	require.Equal(t, bserrors.CallInjectionRefused, bserrors.KindOf(err))
}

func TestInjectCallRefusesTooManyArgs(t *testing.T) {
	dbg := newFakeDbg(unix.PtraceRegs{Rip: 0x1000, Rsp: 0x7000})
	mgr := breakpoint.NewManager(dbg)
	inj := New(dbg, mgr)

	args := make([]*eval.Value, 7)
	for i := range args {
		args[i] = &eval.Value{IsConst: true, Const: big.NewInt(int64(i))}
	}
	_, err := inj.InjectCall(7, 0x2000, args)
	require.Error(t, err)
	require.Equal(t, bserrors.CallInjectionRefused, bserrors.KindOf(err))
}
