// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eval implements the data-query expression evaluator (spec.md
// §4.G): a hand-written recursive-descent parser for the spec's small
// expression grammar (not go/parser, since the grammar is not Go syntax)
// and an evaluator that walks the resulting tree against live debuggee
// memory using the DWARF type model. Its result shape and untyped-constant
// handling are adapted from the teacher's evaluator in
// program/server/eval.go; see DESIGN.md.
package eval

import "math/big"

// Expr is one node of a parsed data-query expression.
type Expr interface {
	exprNode()
}

// Ident is a select-by-name operand (spec.md §4.G): a local variable
// (resolved against the current frame first) or a file-scope global.
type Ident struct {
	Name string
}

// Field is the `.` operator: named-field access into a struct/union.
type Field struct {
	X    Expr
	Name string
}

// WildcardKey is the special index key `*`, meaning "match anything" for
// associative-container iteration (spec.md §4.G).
type WildcardKey struct{}

// Index is the `[k]` operator: integer index for vectors/slices, or an
// arbitrary key expression for associative containers.
type Index struct {
	X   Expr
	Key Expr
}

// Slice is the `[a..b]` / `[a..]` operator.
type Slice struct {
	X       Expr
	Lo      Expr
	Hi      Expr // nil when the upper bound was omitted ("[a..]")
	HasHi   bool
}

// Deref is the prefix `*` operator.
type Deref struct {
	X Expr
}

// AddrOf is the prefix `&` operator.
type AddrOf struct {
	X Expr
}

// Canonical is the postfix `~` operator: render X in its canonical form,
// the literal structural layout, ignoring any specialized recognition
// (spec.md §4.G).
type Canonical struct {
	X Expr
}

// PointerCast is `(*type)addr`: reinterpret addr as a pointer to type.
type PointerCast struct {
	TypeName string
	Addr     Expr
}

// TypeCast is `(:type) expr`: reinterpret expr's bytes as type.
type TypeCast struct {
	TypeName string
	X        Expr
}

// Call is `f(args...)`, routed to call injection (spec.md §4.I) rather
// than evaluated in place.
type Call struct {
	Func Expr
	Args []Expr
}

// IntLit is an untyped integer constant.
type IntLit struct {
	Value *big.Int
}

// StringLit is a quoted string constant, used as an associative-container
// key (spec.md §4.G "`[k]` ... literal-struct key for associative
// containers").
type StringLit struct {
	Value string
}

// ArrayLit is a bracketed literal `[e0, e1, ...]`, used as (part of) an
// associative-container key; it has no standalone value, only meaning as
// a key to compare structurally against a live array/slice field.
type ArrayLit struct {
	Elems []Expr
}

// StructLitField is one `name: value` pair inside a StructLit.
type StructLitField struct {
	Name  string
	Value Expr
}

// StructLit is a brace literal key `{bar:"x", baz:*}` (spec.md §4.G): a
// set of field-name/value pairs compared structurally against a live
// struct value, where a WildcardKey value matches any field value. Like
// ArrayLit, it has no standalone value.
type StructLit struct {
	Fields []StructLitField
}

func (Ident) exprNode()       {}
func (Field) exprNode()       {}
func (Index) exprNode()       {}
func (Slice) exprNode()       {}
func (Deref) exprNode()       {}
func (AddrOf) exprNode()      {}
func (Canonical) exprNode()   {}
func (PointerCast) exprNode() {}
func (TypeCast) exprNode()    {}
func (Call) exprNode()        {}
func (IntLit) exprNode()      {}
func (StringLit) exprNode()   {}
func (WildcardKey) exprNode() {}
func (ArrayLit) exprNode()    {}
func (StructLit) exprNode()   {}
