// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugger implements the debugger facade (spec.md §4.H): the
// stateful orchestrator that holds the debuggee, tracer, breakpoint
// manager, object catalog, and selected thread/frame, and exposes the
// command surface every front-end binds to. It generalizes the teacher's
// Server struct (program/server/server.go) from a single-process RPC
// server wrapping proxyrpc calls to an in-process facade consumed
// directly by cmd/bugstalker, per spec.md §6's "front-end surface...
// consumed by the external console/TUI and by the IDE-adapter layer".
package debugger

import (
	"bufio"
	"os"

	"github.com/godzie44/BugStalker/breakpoint"
	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/debugee"
	"github.com/godzie44/BugStalker/eval"
	"github.com/godzie44/BugStalker/inject"
	"github.com/godzie44/BugStalker/tracer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StopReport is the single event every front-end renders on a stop
// (spec.md §4.H).
type StopReport struct {
	Thread         int
	Reason         string
	PC             uint64
	File           string
	Line           int
	HitBreakpoints []int
	Exited         bool
	ExitCode       int
}

// OutputLine is one line of the inferior's captured stdout/stderr
// (spec.md §6).
type OutputLine struct {
	Stream string // "stdout" or "stderr"
	Text   string
}

// ObjectEvent reports a shared library being mapped in or out (spec.md
// §6's ObjectLoaded/ObjectUnloaded events; spec.md §8 property 8's
// pending-breakpoint-revival trigger).
type ObjectEvent struct {
	Path string
}

// launchParams remembers how the debuggee was last started, for Restart.
type launchParams struct {
	path string
	argv []string
	env  []string
	cwd  string
}

// Facade is the stateful orchestrator (spec.md §4.H).
type Facade struct {
	log *logrus.Entry

	Dbg     *debugee.Debuggee
	Bp      *breakpoint.Manager
	Tracer  *tracer.Tracer
	Object  *Object
	Libs    []*Object
	catalog *debugee.ObjectCatalog

	Evaluator *eval.Evaluator
	injector  *inject.Injector

	launch launchParams

	selectedThread int
	selectedFrame  int

	triggers map[int][]string

	onStop           func(StopReport)
	onOutput         func(OutputLine)
	onObjectLoaded   func(ObjectEvent)
	onObjectUnloaded func(ObjectEvent)
}

// New creates a facade with no debuggee attached yet; call Run.
func New(log *logrus.Entry) *Facade {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Facade{log: log, triggers: make(map[int][]string)}
}

// OnStop, OnOutput, OnObjectLoaded, and OnObjectUnloaded register the
// facade's asynchronous event sinks (spec.md §6).
func (f *Facade) OnStop(fn func(StopReport))             { f.onStop = fn }
func (f *Facade) OnOutput(fn func(OutputLine))            { f.onOutput = fn }
func (f *Facade) OnObjectLoaded(fn func(ObjectEvent))     { f.onObjectLoaded = fn }
func (f *Facade) OnObjectUnloaded(fn func(ObjectEvent))   { f.onObjectUnloaded = fn }

// Run launches path as a fresh debuggee, replacing any previous one
// (spec.md §4.H "run / restart").
func (f *Facade) Run(path string, argv []string, env []string, cwd string) (StopReport, error) {
	f.launch = launchParams{path: path, argv: argv, env: env, cwd: cwd}
	return f.start()
}

// Restart re-execs the most recently launched binary with the same
// arguments, preserving breakpoint and trigger state (spec.md §4.H).
func (f *Facade) Restart() (StopReport, error) {
	if f.launch.path == "" {
		return StopReport{}, bserrors.New(bserrors.Internal, "no previous launch to restart")
	}
	return f.start()
}

func (f *Facade) start() (StopReport, error) {
	if f.Dbg != nil {
		_ = f.Dbg.Cont(f.Dbg.Pid, 0)
	}

	dbg := debugee.NewDebuggee(f.log)

	outR, outW, err := os.Pipe()
	if err != nil {
		return StopReport{}, bserrors.Wrap(bserrors.Internal, err, "create stdout pipe")
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		return StopReport{}, bserrors.Wrap(bserrors.Internal, err, "create stderr pipe")
	}
	dbg.Stdout = outW
	dbg.Stderr = errW

	if err := dbg.Spawn(f.launch.path, f.launch.argv, f.launch.env, f.launch.cwd); err != nil {
		outW.Close()
		errW.Close()
		return StopReport{}, err
	}
	outW.Close()
	errW.Close()
	f.pipeOutput("stdout", outR)
	f.pipeOutput("stderr", errR)

	obj, err := loadObject(f.launch.path, dbg, 0)
	if err != nil {
		return StopReport{}, err
	}
	if f.Object != nil {
		f.Object.Close()
	}
	for _, lib := range f.Libs {
		lib.Close()
	}
	f.Object = obj
	f.Libs = nil

	catalog, err := debugee.LoadMain(f.launch.path)
	if err != nil {
		return StopReport{}, err
	}
	f.catalog = catalog

	// The breakpoint Manager (and the hit counts and identities it holds)
	// survives across Run/Restart, per spec.md §3's "breakpoints persist
	// across runs with identity preserved"; only its binding to the
	// process just spawned is refreshed.
	bp := f.Bp
	if bp == nil {
		bp = breakpoint.NewManager(dbg)
	} else {
		bp.Rebind(dbg)
	}
	f.Dbg = dbg
	f.Bp = bp
	f.Tracer = tracer.New(dbg, bp, obj.Symbols, obj.Unwinder, f.log)
	f.injector = inject.New(dbg, bp)
	f.Evaluator = &eval.Evaluator{Mem: dbg, Loader: obj.Loader, Funcs: obj.Symbols, Injector: f.injector}

	for _, bp := range bp.List() {
		f.tryArmPending(bp)
	}

	if err := f.catalog.RefreshBias(dbg.Pid); err != nil {
		f.log.WithError(err).Debug("load bias refresh failed")
	}

	return f.waitAndReport()
}

// refreshLibs walks the dynamic linker's link_map chain for newly mapped
// shared libraries and loads their ELF/DWARF data, firing OnObjectLoaded
// for each (spec.md §8 property 8's "re-resolved on every shared-object
// load event"). It is polled on every stop rather than trapping the
// linker's own rendezvous breakpoint, since a stop is already in hand and
// re-walking an unchanged link_map chain for paths already in f.Libs is
// cheap compared to the ELF/DWARF parse a genuinely new library requires.
func (f *Facade) refreshLibs() {
	if f.catalog == nil {
		return
	}
	links, err := f.catalog.ReadLinkMaps(f.Dbg)
	if err != nil {
		return
	}
	known := make(map[string]bool, len(f.Libs)+1)
	known[f.Object.Path] = true
	for _, lib := range f.Libs {
		known[lib.Path] = true
	}

	var fresh []string
	for _, lm := range links {
		if lm.Name != "" && !known[lm.Name] {
			known[lm.Name] = true
			fresh = append(fresh, lm.Name)
		}
	}
	if len(fresh) == 0 {
		return
	}

	var eg errgroup.Group
	loaded := make([]*Object, len(fresh))
	for i, path := range fresh {
		i, path := i, path
		eg.Go(func() error {
			obj, err := loadObject(path, f.Dbg, 0)
			if err != nil {
				f.log.WithError(err).WithField("path", path).Debug("shared library has no usable debug info")
				return nil
			}
			loaded[i] = obj
			return nil
		})
	}
	_ = eg.Wait()

	for _, obj := range loaded {
		if obj == nil {
			continue
		}
		f.Libs = append(f.Libs, obj)
		if f.onObjectLoaded != nil {
			f.onObjectLoaded(ObjectEvent{Path: obj.Path})
		}
		for _, bp := range f.Bp.List() {
			f.tryArmPending(bp)
		}
	}
}

// pipeOutput forwards r's lines as OutputLine events on stream until r
// hits EOF (the writing end closing when the inferior exits).
func (f *Facade) pipeOutput(stream string, r *os.File) {
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if f.onOutput != nil {
				f.onOutput(OutputLine{Stream: stream, Text: sc.Text()})
			}
		}
		r.Close()
	}()
}

// tryArmPending attempts to resolve a still-pending breakpoint against
// the current object catalog, implementing spec.md §8 property 8's
// revival on load.
func (f *Facade) tryArmPending(bp *breakpoint.Breakpoint) {
	if bp.State != breakpoint.Pending {
		return
	}
	var addrs []uint64
	switch bp.Place.Kind {
	case breakpoint.KindLine:
		if a, err := f.Object.Symbols.LineAddrs(bp.Place.SourcePath, bp.Place.Line); err == nil {
			addrs = a
		}
	case breakpoint.KindFunctionEntry, breakpoint.KindEntry:
		if a, err := f.Object.Symbols.FunctionAddrs(bp.Place.MangledName); err == nil {
			addrs = a
		}
	}
	if len(addrs) == 0 {
		return
	}
	if _, err := f.Bp.Add(f.Dbg.Pid, bp.Kind, bp.Place, bp.Owner, addrs); err != nil {
		f.log.WithError(err).Warn("failed to arm revived breakpoint")
	}
}

// waitAndReport blocks for the next stop and computes its StopReport,
// firing onStop if registered (spec.md §4.H). Used by the resume paths
// (Continue, StepInstruction) that only issue the resume themselves and
// leave the single wait to the caller.
func (f *Facade) waitAndReport() (StopReport, error) {
	ev, err := f.Tracer.WaitForStop()
	if err != nil {
		return StopReport{}, err
	}
	return f.reportFor(ev)
}

// reportFor turns an already-classified stop into a StopReport, firing
// onStop if registered. Split out from waitAndReport so the step paths
// (StepOver/StepOut/StepInto), whose tracer methods already perform their
// own wait internally, can reuse the same reporting logic without waiting
// a second time.
func (f *Facade) reportFor(ev tracer.StopEvent) (StopReport, error) {
	f.selectedThread = ev.TID
	f.selectedFrame = 0

	report := StopReport{Thread: ev.TID, Reason: ev.Reason.String()}
	if ev.Reason == debugee.ReasonExited {
		report.Exited = true
		if tr := f.Dbg.Tracees[ev.TID]; tr != nil {
			report.ExitCode = tr.ExitCode
		}
		if f.onStop != nil {
			f.onStop(report)
		}
		return report, nil
	}

	f.refreshLibs()

	if tr := f.Dbg.Tracees[ev.TID]; tr != nil {
		report.PC = tr.Regs.Rip
		if file, line, ok := f.Object.Symbols.LineAt(tr.Regs.Rip); ok {
			report.File, report.Line = file, line
		}
		// classify (tracer.go) already rewinds Rip to the breakpoint's own
		// address and records the hit before returning control here.
		if bp, ok := f.Bp.AtAddr(tr.Regs.Rip); ok && ev.Reason == debugee.ReasonBreakpoint {
			report.HitBreakpoints = []int{bp.ID}
			f.runTriggers(bp.ID)
		}
	}
	if f.onStop != nil {
		f.onStop(report)
	}
	return report, nil
}

func (f *Facade) runTriggers(id int) {
	cmds, ok := f.triggers[id]
	if !ok {
		return
	}
	for _, cmd := range cmds {
		if _, err := f.Dispatch(cmd); err != nil {
			f.log.WithError(err).WithField("trigger", id).Warn("trigger command failed")
		}
	}
}

// Continue implements spec.md §4.H "continue".
func (f *Facade) Continue() (StopReport, error) {
	if err := f.Tracer.Continue(); err != nil {
		return StopReport{}, err
	}
	return f.waitAndReport()
}

// StepInto, StepOver, and StepOut already resume and wait for their one
// stop inside the tracer (StepIn's instruction loop, StepOver/StepOut's
// Continue+WaitForStop), so they report that already-classified stop
// directly rather than waiting again through waitAndReport.
func (f *Facade) StepInto() (StopReport, error) {
	ev, err := f.Tracer.StepIn(f.selectedThread)
	if err != nil {
		return StopReport{}, err
	}
	return f.reportFor(ev)
}

func (f *Facade) StepOver() (StopReport, error) {
	ev, err := f.Tracer.StepOver(f.selectedThread)
	if err != nil {
		return StopReport{}, err
	}
	return f.reportFor(ev)
}

func (f *Facade) StepOut() (StopReport, error) {
	ev, err := f.Tracer.StepOut(f.selectedThread)
	if err != nil {
		return StopReport{}, err
	}
	return f.reportFor(ev)
}

// StepInstruction only issues the single-step request (tracer.
// StepInstruction does not wait), so the wait happens here exactly once.
func (f *Facade) StepInstruction() (StopReport, error) {
	if err := f.Tracer.StepInstruction(f.selectedThread); err != nil {
		return StopReport{}, err
	}
	return f.waitAndReport()
}

// ThreadInfo summarizes one tracee for spec.md §4.H "thread list".
type ThreadInfo struct {
	TID      int
	State    string
	Reason   string
	Selected bool
}

// Threads implements spec.md §4.H "thread list".
func (f *Facade) Threads() []ThreadInfo {
	out := make([]ThreadInfo, 0, len(f.Dbg.Tracees))
	for tid, tr := range f.Dbg.Tracees {
		out = append(out, ThreadInfo{TID: tid, State: tr.State.String(), Reason: tr.StopReason.String(), Selected: tid == f.selectedThread})
	}
	return out
}

// SelectThread implements spec.md §4.H "thread select".
func (f *Facade) SelectThread(tid int) error {
	if _, ok := f.Dbg.Tracees[tid]; !ok {
		return bserrors.Newf(bserrors.TargetGone, "no such thread %d", tid)
	}
	f.selectedThread = tid
	f.selectedFrame = 0
	return nil
}

// SelectFrame implements spec.md §4.H "frame select".
func (f *Facade) SelectFrame(i int) error {
	frames, err := f.framesOf(f.selectedThread, 0)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(frames) {
		return bserrors.Newf(bserrors.ExpressionError, "no frame %d", i)
	}
	f.selectedFrame = i
	return nil
}

// Quit implements spec.md §4.H "quit": releases the debuggee without
// waiting for it to exit on its own.
func (f *Facade) Quit() error {
	if f.Dbg == nil {
		return nil
	}
	for tid := range f.Dbg.Tracees {
		_ = f.Dbg.Cont(tid, 0)
	}
	if f.Object != nil {
		f.Object.Close()
	}
	for _, lib := range f.Libs {
		lib.Close()
	}
	return nil
}
