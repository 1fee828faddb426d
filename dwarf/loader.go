// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dwarf implements the DWARF loader and type model (spec.md
// §4.B): an eager compilation-unit index, lazy per-unit DIE parsing with
// memoization, a string interner, and an on-demand, interned type table.
// ELF/DWARF section access goes through the standard library's debug/elf
// and debug/dwarf, exactly as the teacher's loadExecutable in
// program/server/server.go does with obj.DWARF() — see DESIGN.md for why
// that supersedes the teacher's own debug/dwarf fork.
package dwarf

import (
	stddwarf "debug/dwarf"
	"debug/elf"
	"sync"

	"github.com/godzie44/BugStalker/bserrors"
)

// UnitRange is one compilation unit's address range, built eagerly from
// each compile unit's DW_AT_low_pc/DW_AT_ranges so address-to-unit lookup
// does not require parsing every DIE tree up front. .debug_aranges is not
// read.
type UnitRange struct {
	Offset   stddwarf.Offset // CU header offset, used as the unit's cache key
	Name     string          // DW_AT_name of compile_unit (source path)
	Low      uint64
	High     uint64
}

// Loader owns one object's DWARF data and the lazily-populated caches
// layered over it.
type Loader struct {
	Data *stddwarf.Data
	ELF  *elf.File

	units []UnitRange

	mu       sync.Mutex
	dieCache map[stddwarf.Offset]*unitPromise
	strings  *interner
}

type unitPromise struct {
	once    sync.Once
	entries []*stddwarf.Entry
	err     error
}

// Open parses fh's ELF headers and DWARF section set, then builds the
// eager unit-range index.
func Open(fh *elf.File) (*Loader, error) {
	data, err := fh.DWARF()
	if err != nil {
		return nil, bserrors.Wrap(bserrors.DwarfMalformed, err, "parse DWARF sections")
	}
	l := &Loader{
		Data:     data,
		ELF:      fh,
		dieCache: make(map[stddwarf.Offset]*unitPromise),
		strings:  newInterner(),
	}
	if err := l.indexUnits(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) indexUnits() error {
	r := l.Data.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return bserrors.Wrap(bserrors.DwarfMalformed, err, "read compile unit header")
		}
		if entry == nil {
			break
		}
		if entry.Tag != stddwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		ur := UnitRange{Offset: entry.Offset}
		if name, ok := entry.Val(stddwarf.AttrName).(string); ok {
			ur.Name = l.strings.intern(name)
		}
		if low, ok := entry.Val(stddwarf.AttrLowpc).(uint64); ok {
			ur.Low = low
		}
		if ranges, err := l.Data.Ranges(entry); err == nil {
			for _, rg := range ranges {
				if ur.Low == 0 || rg[0] < ur.Low {
					ur.Low = rg[0]
				}
				if rg[1] > ur.High {
					ur.High = rg[1]
				}
			}
		}
		l.units = append(l.units, ur)
		r.SkipChildren()
	}
	return nil
}

// UnitForAddr finds the compilation unit containing a global address by a
// linear scan of the unit ranges; .debug_aranges is not consulted.
func (l *Loader) UnitForAddr(addr uint64) (UnitRange, bool) {
	for _, u := range l.units {
		if addr >= u.Low && addr < u.High {
			return u, true
		}
	}
	return UnitRange{}, false
}

// UnitByPath finds the compilation unit whose source path is path.
func (l *Loader) UnitByPath(path string) (UnitRange, bool) {
	for _, u := range l.units {
		if u.Name == path {
			return u, true
		}
	}
	return UnitRange{}, false
}

// Units returns every indexed compilation unit.
func (l *Loader) Units() []UnitRange { return l.units }

// entriesForUnit lazily parses and caches the full DIE tree of the unit
// starting at off, behind a per-unit sync.Once so concurrent readers wait
// on the same parse rather than duplicating work (spec.md §9: "a
// memoization table protected by a single lock; parallel readers wait on
// a per-identifier promise").
func (l *Loader) entriesForUnit(off stddwarf.Offset) ([]*stddwarf.Entry, error) {
	l.mu.Lock()
	p, ok := l.dieCache[off]
	if !ok {
		p = &unitPromise{}
		l.dieCache[off] = p
	}
	l.mu.Unlock()

	p.once.Do(func() {
		r := l.Data.Reader()
		r.Seek(off)
		var entries []*stddwarf.Entry
		depth := 0
		for {
			e, err := r.Next()
			if err != nil {
				p.err = bserrors.Wrap(bserrors.DwarfMalformed, err, "parse DIE tree")
				return
			}
			if e == nil {
				break
			}
			entries = append(entries, e)
			if e.Tag == 0 {
				depth--
			} else if e.Children {
				depth++
			}
			if depth <= 0 {
				break
			}
		}
		p.entries = entries
	})
	return p.entries, p.err
}

// EntryAt parses (or retrieves from cache) the DIE at a given offset
// within its owning unit.
func (l *Loader) EntryAt(unitOff, dieOff stddwarf.Offset) (*stddwarf.Entry, error) {
	entries, err := l.entriesForUnit(unitOff)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Offset == dieOff {
			return e, nil
		}
	}
	return nil, bserrors.Newf(bserrors.DwarfMissing, "no DIE at offset %d", dieOff)
}

// Entries returns the full parsed DIE sequence for the compile unit whose
// header begins at off, in preorder, the building block scope resolution
// (§4.G) walks to find the subprogram and variable DIEs enclosing a PC.
func (l *Loader) Entries(off stddwarf.Offset) ([]*stddwarf.Entry, error) {
	return l.entriesForUnit(off)
}

// interner de-duplicates identifier and path strings across units.
type interner struct {
	mu     sync.Mutex
	values map[string]string
}

func newInterner() *interner { return &interner{values: make(map[string]string)} }

func (in *interner) intern(s string) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if v, ok := in.values[s]; ok {
		return v
	}
	in.values[s] = s
	return s
}
