// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inject implements call injection (spec.md §4.I): given
// function(args...) in the user's expression, it saves the selected
// thread's registers, marshals arguments into the System V AMD64
// calling convention, diverts the thread into the target function with
// a sentinel return address trapping back into a one-shot breakpoint,
// waits for the hit, reads the return register, and restores the
// thread to its prior state. Register save/restore and the sentinel
// breakpoint reuse the same primitives as the tracer's step-out
// (tracer.StepOut) and the breakpoint manager's one-shot install.
package inject

import (
	"math/big"

	"github.com/godzie44/BugStalker/arch"
	"github.com/godzie44/BugStalker/breakpoint"
	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/debugee"
	"github.com/godzie44/BugStalker/eval"
	"golang.org/x/sys/unix"
)

// RegMem is the narrow debuggee surface call injection needs, satisfied
// directly by *debugee.Debuggee.
type RegMem interface {
	ReadRegs(tid int) (unix.PtraceRegs, error)
	WriteRegs(tid int, regs unix.PtraceRegs) error
	ReadMem(tid int, addr uint64, buf []byte) error
	WriteMem(tid int, addr uint64, data []byte) error
	Cont(tid int, signal int) error
	Wait() (debugee.WaitResult, error)
}

// Injector performs call injection. It implements eval.CallInjector
// structurally, so the evaluator can invoke it without importing this
// package.
type Injector struct {
	Dbg RegMem
	Bp  *breakpoint.Manager
}

func New(dbg RegMem, bp *breakpoint.Manager) *Injector {
	return &Injector{Dbg: dbg, Bp: bp}
}

// InjectCall implements eval.CallInjector (spec.md §4.I).
func (inj *Injector) InjectCall(tid int, funcAddr uint64, args []*eval.Value) (*eval.Value, error) {
	if len(args) > len(arch.IntArgRegs) {
		return nil, bserrors.Newf(bserrors.CallInjectionRefused,
			"%d arguments exceed the %d-register calling convention this injector supports (stack-passed arguments are not implemented)",
			len(args), len(arch.IntArgRegs))
	}

	saved, err := inj.Dbg.ReadRegs(tid)
	if err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "read registers before injected call")
	}
	if inj.inSyscall(tid, saved) {
		return nil, bserrors.New(bserrors.CallInjectionRefused, "thread is inside a system call")
	}

	marshaled := make([]uint64, len(args))
	for i, a := range args {
		v, err := inj.marshalArg(tid, a)
		if err != nil {
			return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "marshal call argument")
		}
		marshaled[i] = v
	}

	// The thread's own current PC is always a valid, already-mapped
	// executable address, which makes it a safe spot to park a one-shot
	// sentinel trap: the injected call can never legitimately return
	// there on its own.
	sentinel := saved.Rip
	oneShot, err := inj.Bp.Add(tid, breakpoint.KindOneShotInternal,
		breakpoint.Place{Kind: breakpoint.KindAddress, Address: sentinel}, "call-injection", []uint64{sentinel})
	if err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "install sentinel return breakpoint")
	}
	defer inj.Bp.Remove(tid, oneShot.ID)

	call := saved
	call.Rsp -= 8
	retBuf := make([]byte, 8)
	arch.AMD64.PutUintptr(retBuf, sentinel)
	if err := inj.Dbg.WriteMem(tid, call.Rsp, retBuf); err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "push sentinel return address")
	}
	call.Rip = funcAddr
	setArgRegs(&call, marshaled)
	if err := inj.Dbg.WriteRegs(tid, call); err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "install call registers")
	}

	if err := inj.Dbg.Cont(tid, 0); err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "resume into injected call")
	}
	for {
		wr, err := inj.Dbg.Wait()
		if err != nil {
			return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "wait for injected call to return")
		}
		if wr.TID == tid {
			break
		}
	}

	resultRegs, err := inj.Dbg.ReadRegs(tid)
	if err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "read return registers")
	}
	ret := resultRegs.Rax

	if err := inj.Dbg.WriteRegs(tid, saved); err != nil {
		return nil, bserrors.Wrap(bserrors.CallInjectionRefused, err, "restore registers after injected call")
	}
	return &eval.Value{IsConst: true, Const: new(big.Int).SetUint64(ret)}, nil
}

// marshalArg reduces one evaluated argument to the single 8-byte word
// the System V convention puts in an integer/pointer argument register;
// wider or non-scalar arguments refuse injection rather than silently
// truncating.
func (inj *Injector) marshalArg(tid int, v *eval.Value) (uint64, error) {
	if v.IsConst {
		i, ok := v.Const.(*big.Int)
		if !ok {
			return 0, bserrors.New(bserrors.CallInjectionRefused, "only integer/pointer constants can be marshaled as call arguments")
		}
		return i.Uint64(), nil
	}
	if v.Type == nil {
		return v.Addr, nil
	}
	size := v.Type.Raw.Common().ByteSize
	if size <= 0 || size > 8 {
		return 0, bserrors.Newf(bserrors.CallInjectionRefused, "argument type %s cannot be marshaled into a single register", v.Type.Raw.String())
	}
	buf := make([]byte, size)
	if err := inj.Dbg.ReadMem(tid, v.Addr, buf); err != nil {
		return 0, err
	}
	return arch.AMD64.UintN(buf), nil
}

func setArgRegs(regs *unix.PtraceRegs, args []uint64) {
	for i, v := range args {
		switch arch.IntArgRegs[i] {
		case "rdi":
			regs.Rdi = v
		case "rsi":
			regs.Rsi = v
		case "rdx":
			regs.Rdx = v
		case "rcx":
			regs.Rcx = v
		case "r8":
			regs.R8 = v
		case "r9":
			regs.R9 = v
		}
	}
}

// inSyscall approximates "the thread is inside a system call" (spec.md
// §4.I's CallInjectionRefused condition) by checking whether the two
// bytes before the current PC are the `syscall` instruction (0F 05):
// without PTRACE_O_TRACESYSGOOD enabled, that is the cheapest reliable
// signal available that the last thing this thread did was enter the
// kernel.
func (inj *Injector) inSyscall(tid int, regs unix.PtraceRegs) bool {
	if regs.Rip < 2 {
		return false
	}
	buf := make([]byte, 2)
	if err := inj.Dbg.ReadMem(tid, regs.Rip-2, buf); err != nil {
		return false
	}
	return buf[0] == 0x0f && buf[1] == 0x05
}
