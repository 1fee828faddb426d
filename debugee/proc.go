// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugee implements the low-level trace primitives (spec.md
// §4.A) plus the tracee state and signal-policy types that the tracer
// package's execution controller (§4.F) builds on. Every ptrace(2) call in the process is issued from one
// runtime.LockOSThread'd goroutine, generalizing the teacher's
// program/server/ptrace.go "ptraceRun" pattern from a single pid to a
// dynamic set of tracees.
package debugee

import (
	"fmt"
	"os"
	"runtime"

	"github.com/godzie44/BugStalker/bserrors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Debuggee owns the process under control: its pid, its set of tracees
// (one per thread), and the single controller goroutine authorized to
// issue trace operations, per spec.md §5's single-controller-thread rule.
type Debuggee struct {
	Pid     int
	Tracees map[int]*Tracee

	// Stdout/Stderr, when set, are inherited by the spawned child in
	// place of the controller process's own streams, so the facade can
	// capture the inferior's output and forward it as OutputLine events
	// (spec.md §6's debuggee surface) instead of letting it print
	// directly to the terminal.
	Stdout *os.File
	Stderr *os.File

	fc  chan func() error
	ec  chan error
	log *logrus.Entry
}

// NewDebuggee starts the dedicated ptrace thread. The returned Debuggee
// has no process attached yet; call Spawn or Attach.
func NewDebuggee(log *logrus.Entry) *Debuggee {
	d := &Debuggee{
		Tracees: make(map[int]*Tracee),
		fc:      make(chan func() error),
		ec:      make(chan error),
		log:     log,
	}
	go d.serve()
	return d
}

// serve is the single controller thread spec.md §5 requires: every
// ptrace(2) call must be issued from the same OS thread the process was
// attached from, so do parks a goroutine on that thread for the
// Debuggee's whole lifetime and feeds it closures over fc/ec rather than
// taking them as parameters the way the teacher's program/server/ptrace.go
// does.
func (d *Debuggee) serve() {
	runtime.LockOSThread()
	for f := range d.fc {
		d.ec <- f()
	}
}

// do hands f to the controller thread and blocks for its result; fc/ec
// are unbuffered so the error returned on ec is always the one f itself
// produced, never a stale result from a previous caller.
func (d *Debuggee) do(f func() error) error {
	d.fc <- f
	return <-d.ec
}

// Spawn forks a child, requests tracing before exec, and waits for the
// initial post-exec stop, guaranteeing the child is stopped before its
// first user instruction (spec.md §4.A).
func (d *Debuggee) Spawn(path string, argv []string, env []string, cwd string) error {
	stdout, stderr := d.Stdout, d.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	var proc *os.Process
	err := d.do(func() error {
		var err1 error
		proc, err1 = os.StartProcess(path, argv, &os.ProcAttr{
			Dir:   cwd,
			Env:   env,
			Files: []*os.File{os.Stdin, stdout, stderr},
			Sys: &unix.SysProcAttr{
				Ptrace:    true,
				Pdeathsig: unix.SIGKILL,
			},
		})
		return err1
	})
	if err != nil {
		return bserrors.Wrapf(bserrors.Denied, err, "spawn %s", path)
	}
	d.Pid = proc.Pid
	var ws unix.WaitStatus
	if err := d.do(func() error {
		_, err1 := unix.Wait4(proc.Pid, &ws, 0, nil)
		return err1
	}); err != nil {
		return bserrors.Wrapf(bserrors.TargetGone, err, "initial wait for pid %d", proc.Pid)
	}
	if err := d.do(func() error {
		return unix.PtraceSetOptions(proc.Pid, unix.PTRACE_O_TRACECLONE|unix.PTRACE_O_TRACEEXIT|unix.PTRACE_O_TRACEEXEC)
	}); err != nil {
		return bserrors.Wrap(bserrors.Denied, err, "PtraceSetOptions")
	}
	d.Tracees[proc.Pid] = &Tracee{TID: proc.Pid, State: Stopped, StopReason: ReasonExec}
	return nil
}

// Attach seizes an already-running process and every existing thread
// found under /proc/<pid>/task, per spec.md §4.A.
func (d *Debuggee) Attach(pid int) error {
	if err := d.do(func() error { return seize(pid, unix.PTRACE_O_TRACECLONE|unix.PTRACE_O_TRACEEXIT) }); err != nil {
		if err == unix.ESRCH {
			return bserrors.Wrapf(bserrors.TargetGone, err, "attach to pid %d", pid)
		}
		return bserrors.Wrapf(bserrors.Denied, err, "attach to pid %d", pid)
	}
	if err := d.do(func() error { return interrupt(pid) }); err != nil {
		return bserrors.Wrap(bserrors.Denied, err, "interrupt after seize")
	}
	d.Pid = pid
	tids, err := threadIDs(pid)
	if err != nil {
		return bserrors.Wrap(bserrors.TargetGone, err, "enumerate threads")
	}
	for _, tid := range tids {
		d.Tracees[tid] = &Tracee{TID: tid, State: Stopped, StopReason: ReasonUserInterrupt}
	}
	return nil
}

func threadIDs(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, err
	}
	var tids []int
	for _, e := range entries {
		var tid int
		if _, err := fmt.Sscanf(e.Name(), "%d", &tid); err == nil {
			tids = append(tids, tid)
		}
	}
	return tids, nil
}

// Cont resumes tid, optionally delivering signal, per the tracer's signal
// policy (spec.md §4.F).
func (d *Debuggee) Cont(tid int, signal int) error {
	err := d.do(func() error { return unix.PtraceCont(tid, signal) })
	if err != nil {
		return bserrors.Wrapf(bserrors.TargetGone, err, "cont tid %d", tid)
	}
	d.Tracees[tid].State = Running
	return nil
}

// Step single-steps tid by one machine instruction.
func (d *Debuggee) Step(tid int, signal int) error {
	err := d.do(func() error { return unix.PtraceSingleStep(tid) })
	if err != nil {
		return bserrors.Wrapf(bserrors.TargetGone, err, "step tid %d", tid)
	}
	d.Tracees[tid].State = Running
	d.Tracees[tid].PendingStep = true
	return nil
}

// Interrupt requests a thread-group stop; the tracer reports the
// resulting stop as reason = user-interrupt (spec.md §5).
func (d *Debuggee) Interrupt(tid int) error {
	if err := d.do(func() error { return interrupt(tid) }); err != nil {
		return bserrors.Wrapf(bserrors.Denied, err, "interrupt tid %d", tid)
	}
	return nil
}

// WaitResult is the outcome of a blocking Wait call.
type WaitResult struct {
	TID      int
	Status   unix.WaitStatus
	NewChild int // valid when Status reports PTRACE_EVENT_CLONE
}

// Wait blocks until any tracee changes state, per spec.md §4.A. Use
// WaitNonBlocking for polling.
func (d *Debuggee) Wait() (WaitResult, error) {
	return d.wait(0)
}

// WaitNonBlocking polls for a state change without blocking.
func (d *Debuggee) WaitNonBlocking() (WaitResult, bool, error) {
	wr, err := d.wait(unix.WNOHANG)
	if err != nil {
		return WaitResult{}, false, err
	}
	return wr, wr.TID != 0, nil
}

func (d *Debuggee) wait(flags int) (WaitResult, error) {
	var ws unix.WaitStatus
	var wpid int
	err := d.do(func() error {
		p, err1 := unix.Wait4(-1, &ws, flags|unix.WALL, nil)
		wpid = p
		return err1
	})
	if err != nil {
		return WaitResult{}, bserrors.Wrap(bserrors.TargetGone, err, "wait4")
	}
	wr := WaitResult{TID: wpid, Status: ws}
	if ws.StopSignal() == unix.SIGTRAP && ws.TrapCause() == unix.PTRACE_EVENT_CLONE {
		msg, err := d.ptraceGetEventMsg(wpid)
		if err == nil {
			wr.NewChild = int(msg)
			d.Tracees[wr.NewChild] = &Tracee{TID: wr.NewChild, State: Stopped, StopReason: ReasonNewThread}
		}
	}
	return wr, nil
}

func (d *Debuggee) ptraceGetEventMsg(tid int) (uint, error) {
	var msg uint
	err := d.do(func() error {
		m, err1 := unix.PtraceGetEventMsg(tid)
		msg = m
		return err1
	})
	return msg, err
}

// ReadMem reads len(buf) bytes of the debuggee's memory at addr into buf,
// using word-granularity PEEKTEXT with a /proc/<pid>/mem fallback for bulk
// reads, per spec.md §4.A.
func (d *Debuggee) ReadMem(tid int, addr uint64, buf []byte) error {
	if len(buf) > 64 {
		if err := d.readMemFile(tid, addr, buf); err == nil {
			return nil
		}
	}
	err := d.do(func() error {
		n, err1 := unix.PtracePeekData(tid, uintptr(addr), buf)
		if err1 != nil {
			return err1
		}
		if n != len(buf) {
			return fmt.Errorf("peeked %d bytes, want %d", n, len(buf))
		}
		return nil
	})
	if err != nil {
		return bserrors.Wrapf(bserrors.BadAddress, err, "read %d bytes at %#x", len(buf), addr)
	}
	return nil
}

func (d *Debuggee) readMemFile(tid int, addr uint64, buf []byte) error {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mem", tid))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.ReadAt(buf, int64(addr))
	return err
}

// WriteMem pokes bytes into the debuggee's memory at addr.
func (d *Debuggee) WriteMem(tid int, addr uint64, data []byte) error {
	err := d.do(func() error {
		n, err1 := unix.PtracePokeData(tid, uintptr(addr), data)
		if err1 != nil {
			return err1
		}
		if n != len(data) {
			return fmt.Errorf("poked %d bytes, want %d", n, len(data))
		}
		return nil
	})
	if err != nil {
		return bserrors.Wrapf(bserrors.BadAddress, err, "write %d bytes at %#x", len(data), addr)
	}
	return nil
}

// ReadRegs fetches tid's general-purpose registers and caches them on the
// Tracee record.
func (d *Debuggee) ReadRegs(tid int) (unix.PtraceRegs, error) {
	var regs unix.PtraceRegs
	err := d.do(func() error { return unix.PtraceGetRegs(tid, &regs) })
	if err != nil {
		return regs, bserrors.Wrapf(bserrors.TargetGone, err, "read regs for tid %d", tid)
	}
	if t, ok := d.Tracees[tid]; ok {
		t.Regs = regs
	}
	return regs, nil
}

// WriteRegs installs regs on tid.
func (d *Debuggee) WriteRegs(tid int, regs unix.PtraceRegs) error {
	err := d.do(func() error { return unix.PtraceSetRegs(tid, &regs) })
	if err != nil {
		return bserrors.Wrapf(bserrors.TargetGone, err, "write regs for tid %d", tid)
	}
	if t, ok := d.Tracees[tid]; ok {
		t.Regs = regs
	}
	return nil
}

// ReadDebugRegs reads the four hardware-watchpoint address registers plus
// the control and status registers (DR0-DR3, DR6, DR7).
func (d *Debuggee) ReadDebugRegs(tid int) (DebugRegs, error) {
	var dr DebugRegs
	err := d.do(func() error {
		for i := 0; i < 4; i++ {
			v, err := peekUser(tid, debugRegOffset(i))
			if err != nil {
				return err
			}
			dr.Addr[i] = v
		}
		status, err := peekUser(tid, debugRegOffset(6))
		if err != nil {
			return err
		}
		dr.Status = status
		ctrl, err := peekUser(tid, debugRegOffset(7))
		if err != nil {
			return err
		}
		dr.Control = ctrl
		return nil
	})
	if err != nil {
		return dr, bserrors.Wrapf(bserrors.Denied, err, "read debug regs for tid %d", tid)
	}
	return dr, nil
}

// WriteDebugRegs installs dr on tid.
func (d *Debuggee) WriteDebugRegs(tid int, dr DebugRegs) error {
	err := d.do(func() error {
		for i := 0; i < 4; i++ {
			if err := pokeUser(tid, debugRegOffset(i), dr.Addr[i]); err != nil {
				return err
			}
		}
		if err := pokeUser(tid, debugRegOffset(7), dr.Control); err != nil {
			return err
		}
		return pokeUser(tid, debugRegOffset(6), dr.Status)
	})
	if err != nil {
		return bserrors.Wrapf(bserrors.Denied, err, "write debug regs for tid %d", tid)
	}
	return nil
}

// DebugRegs mirrors the x86-64 DR0-DR7 hardware debug register file.
type DebugRegs struct {
	Addr    [4]uint64
	Status  uint64 // DR6
	Control uint64 // DR7
}
