// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"debug/elf"
	"os"

	"github.com/godzie44/BugStalker/arch"
	"github.com/godzie44/BugStalker/bserrors"
	ourdwarf "github.com/godzie44/BugStalker/dwarf"
	"github.com/godzie44/BugStalker/symbol"
	"github.com/godzie44/BugStalker/unwind"
)

// Object is one loaded ELF image's debug-info catalog entry: the main
// executable or a shared library, per spec.md §3's object catalog and
// §4.H's "shared-library list" command. Generalizes the teacher's single
// Server.dwarfData field (program/server/server.go's New/loadExecutable)
// to a per-object record so Run/Restart can rebuild it and the pending-
// breakpoint-revival machinery (spec.md §8 property 8) can attach it to a
// load event.
type Object struct {
	Path   string
	Loaded uint64 // base load address; 0 for a non-PIE main executable

	file     *os.File
	elf      *elf.File
	Loader   *ourdwarf.Loader
	Types    *ourdwarf.Table
	Symbols  *symbol.Index
	CFI      *unwind.Table
	Unwinder *unwind.Unwinder
}

// loadObject parses path's ELF and DWARF sections and builds the symbol
// index, CFI table, and unwinder that sit on top of them. mem backs the
// unwinder's frame-chasing reads. base is the object's load bias (0 for a
// non-PIE main executable); it is recorded on Object but the symbol index
// and CFI table remain file-relative, so cross-object line/frame
// resolution for shared libraries is out of scope for this build (see
// DESIGN.md) — only enumeration via SharedLibraries is supported for them.
func loadObject(path string, mem unwind.MemReader, base uint64) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bserrors.Wrapf(bserrors.Denied, err, "open %s", path)
	}
	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, bserrors.Wrapf(bserrors.DwarfMalformed, err, "parse ELF headers for %s", path)
	}
	if ef.Machine != elf.EM_X86_64 {
		f.Close()
		return nil, bserrors.Newf(bserrors.DwarfMalformed, "unsupported architecture %s (only x86-64 is supported)", ef.Machine)
	}

	loader, err := ourdwarf.Open(ef)
	if err != nil {
		f.Close()
		return nil, err
	}
	syms, err := symbol.Build(loader.Data)
	if err != nil {
		f.Close()
		return nil, err
	}

	cfi := &unwind.Table{}
	if sec := ef.Section(".eh_frame"); sec != nil {
		if data, err := sec.Data(); err == nil {
			if t, err := unwind.ParseDebugFrame(data, arch.AMD64.ByteOrder); err == nil {
				cfi = t
			}
		}
	} else if sec := ef.Section(".debug_frame"); sec != nil {
		if data, err := sec.Data(); err == nil {
			if t, err := unwind.ParseDebugFrame(data, arch.AMD64.ByteOrder); err == nil {
				cfi = t
			}
		}
	}

	obj := &Object{
		Path:     path,
		Loaded:   base,
		file:     f,
		elf:      ef,
		Loader:   loader,
		Types:    ourdwarf.NewTable(ourdwarf.ObjectID(path), loader),
		Symbols:  syms,
		CFI:      cfi,
		Unwinder: unwind.New(mem, syms, cfi, 0),
	}
	return obj, nil
}

func (o *Object) Close() {
	if o.file != nil {
		o.file.Close()
	}
}
