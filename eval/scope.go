// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	stddwarf "debug/dwarf"

	"github.com/godzie44/BugStalker/bserrors"
	ourdwarf "github.com/godzie44/BugStalker/dwarf"
)

// Binding is a resolved variable: its address in debuggee memory and its
// DWARF type.
type Binding struct {
	Addr uint64
	Type *ourdwarf.Type
}

// Scope resolves select-by-name expressions (spec.md §4.G) against a
// stopped frame's enclosing subprogram first, then the file-scope globals
// of the compile unit covering the PC — generalizing the teacher's
// findLocalVar/findGlobalVar pair in program/server/eval.go from Go's
// lexical scoping to DWARF's DW_TAG_subprogram/variable model.
//
// Nested DW_TAG_lexical_block shadowing within a function is not
// distinguished from the function's own locals: every variable/parameter
// DIE found between the enclosing subprogram and its next sibling is a
// candidate, with the innermost (last-declared) match preferred. This
// covers the common -O0 case without needing full block-scope nesting
// depth, which debug/dwarf's flattened entry reader does not expose
// cheaply.
type Scope struct {
	Loader *ourdwarf.Loader
	PC     uint64
	CFA    uint64 // frame base: DW_AT_frame_base resolves to this in the common "call_frame_cfa" case
}

// Resolve looks up name as a local of the function enclosing s.PC, then
// as a file-scope global in the same compile unit.
func (s *Scope) Resolve(name string) (Binding, error) {
	unit, ok := s.Loader.UnitForAddr(s.PC)
	if !ok {
		return Binding{}, bserrors.Newf(bserrors.DwarfMissing, "no compile unit covers pc %#x", s.PC)
	}
	entries, err := s.Loader.Entries(unit.Offset)
	if err != nil {
		return Binding{}, err
	}

	enclosingIdx := -1
	for i, e := range entries {
		if e.Tag != stddwarf.TagSubprogram {
			continue
		}
		low, lok := e.Val(stddwarf.AttrLowpc).(uint64)
		if !lok {
			continue
		}
		high := subprogramHighPC(e, low)
		if s.PC >= low && s.PC < high {
			enclosingIdx = i
		}
	}

	if enclosingIdx >= 0 {
		end := len(entries)
		for j := enclosingIdx + 1; j < len(entries); j++ {
			if entries[j].Tag == stddwarf.TagSubprogram {
				end = j
				break
			}
		}
		var last *Binding
		for _, e := range entries[enclosingIdx:end] {
			if e.Tag != stddwarf.TagVariable && e.Tag != stddwarf.TagFormalParameter {
				continue
			}
			dname, _ := e.Val(stddwarf.AttrName).(string)
			if dname != name {
				continue
			}
			b, err := s.resolveLocation(e)
			if err != nil {
				continue
			}
			last = &b
		}
		if last != nil {
			return *last, nil
		}
	}

	for _, e := range entries {
		if e.Tag != stddwarf.TagVariable {
			continue
		}
		dname, _ := e.Val(stddwarf.AttrName).(string)
		if dname != name {
			continue
		}
		if loc, _ := e.Val(stddwarf.AttrLocation).([]byte); len(loc) == 0 || loc[0] != opAddr {
			continue // not a static (DW_OP_addr) global
		}
		if b, err := s.resolveLocation(e); err == nil {
			return b, nil
		}
	}
	return Binding{}, bserrors.Newf(bserrors.PlaceUnresolved, "unknown identifier %q", name)
}

func (s *Scope) resolveLocation(e *stddwarf.Entry) (Binding, error) {
	loc, ok := e.Val(stddwarf.AttrLocation).([]byte)
	if !ok {
		return Binding{}, bserrors.Newf(bserrors.PlaceUnresolved, "variable has no static location")
	}
	addr, err := evalLocation(loc, s.CFA)
	if err != nil {
		return Binding{}, err
	}
	typeOff, ok := e.Val(stddwarf.AttrType).(stddwarf.Offset)
	if !ok {
		return Binding{}, bserrors.Newf(bserrors.DwarfMissing, "variable has no type attribute")
	}
	raw, err := s.Loader.Data.Type(typeOff)
	if err != nil {
		return Binding{}, bserrors.Wrap(bserrors.DwarfMalformed, err, "resolve variable type")
	}
	return Binding{Addr: addr, Type: ourdwarf.WrapType(raw)}, nil
}

func subprogramHighPC(e *stddwarf.Entry, low uint64) uint64 {
	v := e.Val(stddwarf.AttrHighpc)
	switch h := v.(type) {
	case uint64:
		if h < low {
			return low + h
		}
		return h
	case int64:
		return low + uint64(h)
	default:
		return low
	}
}

// TypeByName resolves a type name (as printed by the DWARF producer,
// e.g. "alloc::vec::Vec<i32, alloc::alloc::Global>") against every
// compile unit's type DIEs, for the `(*type)addr` / `(:type) expr` casts
// (spec.md §4.G).
func TypeByName(loader *ourdwarf.Loader, name string) (*ourdwarf.Type, error) {
	for _, unit := range loader.Units() {
		entries, err := loader.Entries(unit.Offset)
		if err != nil {
			continue
		}
		for _, e := range entries {
			switch e.Tag {
			case stddwarf.TagStructType, stddwarf.TagBaseType, stddwarf.TagTypedef,
				stddwarf.TagEnumerationType, stddwarf.TagUnionType:
			default:
				continue
			}
			dname, _ := e.Val(stddwarf.AttrName).(string)
			if dname != name {
				continue
			}
			raw, err := loader.Data.Type(e.Offset)
			if err != nil {
				continue
			}
			return ourdwarf.WrapType(raw), nil
		}
	}
	return nil, bserrors.Newf(bserrors.DwarfMissing, "no type named %q", name)
}
