// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracer implements the execution controller (spec.md §4.F): the
// per-thread running/stopped state machine, the whole-process stop
// protocol, the breakpoint-aware resume/step-over/step-in/step-out
// protocols, and signal routing. It generalizes the teacher's single-
// threaded, single-breakpoint dance in program/server/server.go
// (handleResume / setBreakpoints / liftBreakpoints / waitForTrap) to the
// multi-threaded model spec.md §3 and §5 describe.
package tracer

import (
	"github.com/godzie44/BugStalker/breakpoint"
	"github.com/godzie44/BugStalker/debugee"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// LineResolver is the narrow slice of the symbol index (spec.md §4.C) the
// tracer needs for step-over/step-in. Declared here rather than imported
// to keep tracer acyclic with symbol; the debugger facade wires a
// concrete *symbol.Index in.
type LineResolver interface {
	LineAt(pc uint64) (file string, line int, ok bool)
	FunctionRange(pc uint64) (low, high uint64, ok bool)
	StatementAddrsInRange(low, high uint64) []uint64
}

// FrameUnwinder is the narrow slice of the unwinder (spec.md §4.D) step-out
// needs: the return address of the selected thread's current frame, given
// its current PC/RBP/RSP (the tracer owns the register snapshot; the
// unwinder stays stateless per spec.md §9's "resolve... by identifier
// lookup" philosophy).
type FrameUnwinder interface {
	ReturnAddress(tid int, pc, rbp, rsp uint64) (uint64, bool, error)
	CurrentCFA(pc, rbp, rsp uint64) (uint64, error)
}

// Tracer is the execution controller for one debuggee.
type Tracer struct {
	Dbg    *debugee.Debuggee
	Bp     *breakpoint.Manager
	Policy *debugee.SignalPolicy
	Lines  LineResolver
	Frames FrameUnwinder
	log    *logrus.Entry

	selected int // currently selected thread id
}

func New(dbg *debugee.Debuggee, bp *breakpoint.Manager, lines LineResolver, frames FrameUnwinder, log *logrus.Entry) *Tracer {
	return &Tracer{
		Dbg:    dbg,
		Bp:     bp,
		Policy: debugee.NewSignalPolicy(),
		Lines:  lines,
		Frames: frames,
		log:    log,
	}
}

// StopEvent is what WaitForStop returns after the whole-process-stop
// protocol has brought every tracee to rest.
type StopEvent struct {
	TID    int
	Reason debugee.StopReason
	Signal unix.Signal
}

// Continue implements spec.md §4.F's resume protocol: for each stopped
// thread sitting on a breakpoint address, lift the trap, single-step over
// it, re-arm, then continue; every other thread continues directly.
func (t *Tracer) Continue() error {
	for tid, tr := range t.Dbg.Tracees {
		if tr.State != debugee.Stopped {
			continue
		}
		sig := t.Policy.DeliverySignal(tr.LastSignal)
		if bp, _ := t.Bp.AtAddr(tr.Regs.Rip); bp != nil {
			if err := t.Bp.StepOffBreakpoint(tid, tr.Regs.Rip, func() error {
				if err := t.Dbg.Step(tid, 0); err != nil {
					return err
				}
				_, err := t.Dbg.Wait()
				return err
			}); err != nil {
				return err
			}
		}
		if err := t.Dbg.Cont(tid, sig); err != nil {
			return err
		}
	}
	return nil
}

// WaitForStop blocks until a tracee stops, then interrupts and waits for
// every other running tracee, restoring the whole-process-stop invariant
// before returning control (spec.md §4.F, §5): "the tracer interrupts all
// other running threads and waits until every tracee is stopped before
// returning control to the caller."
func (t *Tracer) WaitForStop() (StopEvent, error) {
	wr, err := t.Dbg.Wait()
	if err != nil {
		return StopEvent{}, err
	}
	ev := t.classify(wr)

	for tid, tr := range t.Dbg.Tracees {
		if tid == wr.TID || tr.State != debugee.Running {
			continue
		}
		_ = t.Dbg.Interrupt(tid)
	}
	for {
		allStopped := true
		for _, tr := range t.Dbg.Tracees {
			if tr.State == debugee.Running {
				allStopped = false
				break
			}
		}
		if allStopped {
			break
		}
		if _, err := t.Dbg.Wait(); err != nil {
			return ev, err
		}
	}
	t.selected = wr.TID
	return ev, nil
}

func (t *Tracer) classify(wr debugee.WaitResult) StopEvent {
	tid := wr.TID
	tr := t.Dbg.Tracees[tid]
	if tr == nil {
		tr = &debugee.Tracee{TID: tid}
		t.Dbg.Tracees[tid] = tr
	}
	tr.State = debugee.Stopped

	if wr.Status.Exited() {
		tr.StopReason = debugee.ReasonExited
		tr.ExitCode = wr.Status.ExitStatus()
		return StopEvent{TID: tid, Reason: debugee.ReasonExited}
	}
	if wr.NewChild != 0 {
		return StopEvent{TID: wr.NewChild, Reason: debugee.ReasonNewThread}
	}
	if wr.Status.StopSignal() == unix.SIGTRAP {
		regs, err := t.Dbg.ReadRegs(tid)
		if err == nil {
			tr.Regs = regs
			if bp, _, ok := t.Bp.HitAttribution(regs.Rip); ok {
				regs.Rip -= 1
				_ = t.Dbg.WriteRegs(tid, regs)
				tr.Regs = regs
				t.Bp.RecordHit(bp.ID)
				tr.StopReason = debugee.ReasonBreakpoint
				return StopEvent{TID: tid, Reason: debugee.ReasonBreakpoint}
			}
		}
		if tr.PendingStep {
			tr.PendingStep = false
			tr.StopReason = debugee.ReasonSingleStep
			return StopEvent{TID: tid, Reason: debugee.ReasonSingleStep}
		}
	}
	sig := wr.Status.StopSignal()
	tr.LastSignal = sig
	tr.StopReason = debugee.ReasonSignal
	return StopEvent{TID: tid, Reason: debugee.ReasonSignal, Signal: sig}
}

// StepInstruction single-steps the selected thread by one machine
// instruction.
func (t *Tracer) StepInstruction(tid int) error {
	if bp, _ := t.Bp.AtAddr(t.Dbg.Tracees[tid].Regs.Rip); bp != nil {
		return t.Bp.StepOffBreakpoint(tid, t.Dbg.Tracees[tid].Regs.Rip, func() error {
			return t.Dbg.Step(tid, 0)
		})
	}
	return t.Dbg.Step(tid, 0)
}

// StepOver installs one-shot internal breakpoints at every instruction in
// the current source line's successor set within the current function
// (excluding call-target interiors), continues, and removes them once the
// resulting stop has been classified (spec.md §4.F). StepOver owns the
// single wait: it resumes, waits for exactly one stop via WaitForStop and
// returns it classified, so the caller performs no further wait (unlike
// Continue, whose caller calls WaitForStop itself).
func (t *Tracer) StepOver(tid int) (StopEvent, error) {
	pc := t.Dbg.Tracees[tid].Regs.Rip
	low, high, ok := t.Lines.FunctionRange(pc)
	if !ok {
		if err := t.StepInstruction(tid); err != nil {
			return StopEvent{}, err
		}
		return t.WaitForStop()
	}
	_, curLine, _ := t.Lines.LineAt(pc)
	addrs := t.Lines.StatementAddrsInRange(low, high)

	var ids []int
	for _, addr := range addrs {
		if file, line, ok := t.Lines.LineAt(addr); ok && line == curLine && file != "" {
			continue
		}
		bp, err := t.Bp.Add(tid, breakpoint.KindOneShotInternal, breakpoint.Place{Kind: breakpoint.KindAddress, Address: addr}, "step-over", []uint64{addr})
		if err != nil {
			continue
		}
		ids = append(ids, bp.ID)
	}
	defer func() {
		for _, id := range ids {
			_ = t.Bp.Remove(tid, id)
		}
	}()
	if err := t.Continue(); err != nil {
		return StopEvent{}, err
	}
	return t.WaitForStop()
}

// StepOut installs a one-shot breakpoint at the return address recovered
// from the unwinder, continues until it is hit, and returns the classified
// stop (see StepOver's wait-ownership note).
func (t *Tracer) StepOut(tid int) (StopEvent, error) {
	regs := t.Dbg.Tracees[tid].Regs
	retAddr, ok, err := t.Frames.ReturnAddress(tid, regs.Rip, regs.Rbp, regs.Rsp)
	if err != nil {
		return StopEvent{}, err
	}
	if !ok {
		return StopEvent{TID: tid, Reason: t.Dbg.Tracees[tid].StopReason}, nil
	}
	bp, err := t.Bp.Add(tid, breakpoint.KindOneShotInternal, breakpoint.Place{Kind: breakpoint.KindAddress, Address: retAddr}, "step-out", []uint64{retAddr})
	if err != nil {
		return StopEvent{}, err
	}
	defer t.Bp.Remove(tid, bp.ID)
	if err := t.Continue(); err != nil {
		return StopEvent{}, err
	}
	return t.WaitForStop()
}

// StepIn single-steps tid until the source line or function changes,
// classifying every intermediate stop itself (each single-step delivers
// its own SIGTRAP) and returning only the final one; the caller performs
// no further wait (see StepOver's wait-ownership note).
func (t *Tracer) StepIn(tid int) (StopEvent, error) {
	pc := t.Dbg.Tracees[tid].Regs.Rip
	startFile, startLine, _ := t.Lines.LineAt(pc)
	var ev StopEvent
	for i := 0; i < 1_000_000; i++ {
		if err := t.StepInstruction(tid); err != nil {
			return StopEvent{}, err
		}
		wr, err := t.Dbg.Wait()
		if err != nil {
			return StopEvent{}, err
		}
		ev = t.classify(wr)
		if ev.Reason != debugee.ReasonSingleStep {
			t.selected = tid
			return ev, nil
		}
		regs := t.Dbg.Tracees[tid].Regs
		file, line, ok := t.Lines.LineAt(regs.Rip)
		if !ok || file != startFile || line != startLine {
			t.selected = tid
			return ev, nil
		}
	}
	t.selected = tid
	return ev, nil
}

// SelectedThread returns the thread id the last WaitForStop selected.
func (t *Tracer) SelectedThread() int { return t.selected }
