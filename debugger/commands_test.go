// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAddTriggerAndList(t *testing.T) {
	f := New(nil)
	f.AddTrigger(3, []string{"print x", "continue"})
	triggers := f.ListTriggers()
	require.Equal(t, []string{"print x", "continue"}, triggers[3])
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := New(nil)
	_, err := f.Dispatch("frobnicate")
	require.Error(t, err)
}

func TestDispatchEmptyLine(t *testing.T) {
	f := New(nil)
	out, err := f.Dispatch("   ")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFormatStopExited(t *testing.T) {
	s := formatStop(StopReport{Thread: 1, Exited: true, ExitCode: 5})
	require.Equal(t, "[exited with code 5]", s)
}

func TestFormatStopWithSource(t *testing.T) {
	s := formatStop(StopReport{Thread: 7, Reason: "breakpoint", File: "main.rs", Line: 10})
	require.Equal(t, "thread 7 stopped (breakpoint) at main.rs:10", s)
}

func TestFormatStopNoSource(t *testing.T) {
	s := formatStop(StopReport{Thread: 7, Reason: "single-step", PC: 0x401000})
	require.Equal(t, "thread 7 stopped (single-step) at 0x401000", s)
}

func TestSetNamedRegisterKnown(t *testing.T) {
	var regs unix.PtraceRegs
	ok := setNamedRegister(&regs, "RIP", 0x1234)
	require.True(t, ok)
	require.Equal(t, uint64(0x1234), regs.Rip)
}

func TestSetNamedRegisterUnknown(t *testing.T) {
	var regs unix.PtraceRegs
	ok := setNamedRegister(&regs, "not-a-register", 1)
	require.False(t, ok)
}
