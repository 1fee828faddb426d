// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugee

import "golang.org/x/sys/unix"

// TraceeState is the per-thread state spec.md §3 requires: running or
// stopped-with-reason.
type TraceeState int

const (
	Running TraceeState = iota
	Stopped
)

func (s TraceeState) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// StopReason classifies why a Stopped tracee last reported a stop.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonBreakpoint
	ReasonWatchpoint
	ReasonSingleStep
	ReasonSignal
	ReasonNewThread
	ReasonExited
	ReasonForked
	ReasonExec
	ReasonUserInterrupt
)

func (r StopReason) String() string {
	switch r {
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonWatchpoint:
		return "watchpoint"
	case ReasonSingleStep:
		return "single-step"
	case ReasonSignal:
		return "signal"
	case ReasonNewThread:
		return "new-thread"
	case ReasonExited:
		return "exited"
	case ReasonForked:
		return "forked"
	case ReasonExec:
		return "exec"
	case ReasonUserInterrupt:
		return "user-interrupt"
	default:
		return "none"
	}
}

// Tracee is one thread of the debuggee. All fields are only meaningful
// while the whole-process-stop invariant holds (spec.md §3): a caller must
// never read Regs or StopReason on a Tracee that is not Stopped.
type Tracee struct {
	TID         int
	State       TraceeState
	StopReason  StopReason
	PendingStep bool
	LastSignal  unix.Signal
	Regs        unix.PtraceRegs
	ExitCode    int
}

func newTracee(tid int) *Tracee {
	return &Tracee{TID: tid, State: Running}
}
