// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	stddwarf "debug/dwarf"
	"math/big"

	"github.com/godzie44/BugStalker/bserrors"
	ourdwarf "github.com/godzie44/BugStalker/dwarf"
)

// FuncResolver resolves a function name to its entry address, the slice
// of symbol.Index the evaluator needs for `f(args...)` expressions.
type FuncResolver interface {
	FunctionAddrs(pattern string) ([]uint64, error)
}

// CallInjector performs call injection (spec.md §4.I) for `f(args...)`
// expressions, implemented by the inject package and wired in by the
// debugger facade — evaluator stays acyclic with inject by only seeing
// this narrow interface.
type CallInjector interface {
	InjectCall(tid int, funcAddr uint64, args []*Value) (*Value, error)
}

// Evaluator evaluates a parsed data-query expression against one stopped
// thread's memory and registers (spec.md §4.G).
type Evaluator struct {
	Mem      MemReader
	TID      int
	Scope    *Scope
	Loader   *ourdwarf.Loader
	Funcs    FuncResolver
	Injector CallInjector
}

// EvalString parses and evaluates src in one call.
func (e *Evaluator) EvalString(src string) (*Value, error) {
	expr, err := Parse(src)
	if err != nil {
		return nil, bserrors.Wrap(bserrors.ExpressionError, err, "parse expression")
	}
	return e.Eval(expr)
}

// Eval evaluates a parsed expression tree.
func (e *Evaluator) Eval(expr Expr) (*Value, error) {
	switch n := expr.(type) {
	case Ident:
		return e.evalIdent(n)
	case IntLit:
		return &Value{IsConst: true, Const: n.Value}, nil
	case StringLit:
		return &Value{IsConst: true, Const: n.Value}, nil
	case Field:
		return e.evalField(n)
	case Index:
		return e.evalIndex(n)
	case Slice:
		return e.evalSlice(n)
	case Deref:
		return e.evalDeref(n)
	case AddrOf:
		return e.evalAddrOf(n)
	case Canonical:
		v, err := e.Eval(n.X)
		if err != nil {
			return nil, err
		}
		cp := *v
		cp.Canonical = true
		return &cp, nil
	case PointerCast:
		return e.evalPointerCast(n)
	case TypeCast:
		return e.evalTypeCast(n)
	case Call:
		return e.evalCall(n)
	case WildcardKey:
		return nil, bserrors.New(bserrors.ExpressionError, "'*' is only valid as an index key")
	case ArrayLit:
		return nil, bserrors.New(bserrors.ExpressionError, "an array literal is only valid as an index key")
	case StructLit:
		return nil, bserrors.New(bserrors.ExpressionError, "a struct literal is only valid as an index key")
	default:
		return nil, bserrors.Newf(bserrors.ExpressionError, "unhandled expression node %T", expr)
	}
}

func (e *Evaluator) evalIdent(n Ident) (*Value, error) {
	if e.Scope == nil {
		return nil, bserrors.New(bserrors.ExpressionError, "no active frame to resolve identifiers against")
	}
	b, err := e.Scope.Resolve(n.Name)
	if err != nil {
		return nil, err
	}
	return &Value{Name: n.Name, Type: b.Type, Addr: b.Addr}, nil
}

func (e *Evaluator) evalField(n Field) (*Value, error) {
	x, err := e.Eval(n.X)
	if err != nil {
		return nil, err
	}
	if x.IsConst || x.Type == nil {
		return nil, bserrors.Newf(bserrors.ExpressionError, "%q is not a struct value", n.Name)
	}
	st, ok := stripTypedefs(x.Type.Raw).(*stddwarf.StructType)
	if !ok {
		return nil, bserrors.Newf(bserrors.ExpressionError, "cannot access field %q of non-struct type %s", n.Name, x.Type.Raw.String())
	}
	f, err := ourdwarf.Field(st, n.Name)
	if err != nil {
		return nil, err
	}
	return &Value{Name: n.Name, Type: ourdwarf.WrapType(f.Type), Addr: x.Addr + uint64(f.ByteOffset)}, nil
}

func (e *Evaluator) evalIndex(n Index) (*Value, error) {
	x, err := e.Eval(n.X)
	if err != nil {
		return nil, err
	}

	if x.Type != nil && x.Type.Specialization != nil {
		switch x.Type.Specialization.Kind {
		case ourdwarf.RecognizedHashMap, ourdwarf.RecognizedOrderedMap, ourdwarf.RecognizedSet:
			return e.evalAssociativeIndex(x, n.Key)
		}
	}

	if _, isWildcard := n.Key.(WildcardKey); isWildcard {
		return nil, bserrors.New(bserrors.ExpressionError, "wildcard index is only meaningful when enumerating an associative container, not as a standalone value")
	}
	if _, isStruct := n.Key.(StructLit); isStruct {
		return nil, bserrors.New(bserrors.ExpressionError, "struct literal index is only meaningful when enumerating an associative container, not as a standalone value")
	}
	key, err := e.Eval(n.Key)
	if err != nil {
		return nil, err
	}
	idx, ok := asInt(key)
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "index key must be an integer for sequential containers")
	}

	elemType, base, elemSize, err := sequentialElem(e.Mem, e.TID, x)
	if err != nil {
		return nil, err
	}
	return &Value{Type: elemType, Addr: base + uint64(idx)*elemSize}, nil
}

// evalAssociativeIndex implements the associative-container half of the
// `[k]` operator (spec.md §4.G): enumerate x's live entries and return the
// first whose key matches the key expression structurally, a literal
// struct's wildcard fields matching any value in that position. No match
// is an *bserrors.Error of kind ExpressionError, not a zero Value.
func (e *Evaluator) evalAssociativeIndex(x *Value, key Expr) (*Value, error) {
	raw := stripTypedefs(x.Type.Raw)
	entries, err := associativeEntries(e.Mem, e.TID, x.Addr, raw, x.Type.Specialization, e.Loader)
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		match, err := associativeKeyMatch(e.Mem, e.TID, key, ent.KeyAddr, ent.KeyType)
		if err != nil {
			// A candidate entry this recognizer can't compare against
			// doesn't abort the whole lookup; it's simply not a match.
			continue
		}
		if !match {
			continue
		}
		if ent.ValType == nil {
			return &Value{Type: ent.KeyType, Addr: ent.KeyAddr}, nil
		}
		return &Value{Type: ent.ValType, Addr: ent.ValAddr}, nil
	}
	return nil, bserrors.New(bserrors.ExpressionError, "no entry matches the given key")
}

func (e *Evaluator) evalSlice(n Slice) (*Value, error) {
	x, err := e.Eval(n.X)
	if err != nil {
		return nil, err
	}
	loVal, err := e.Eval(n.Lo)
	if err != nil {
		return nil, err
	}
	lo, ok := asInt(loVal)
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "slice bound must be an integer")
	}

	elemType, base, elemSize, containerLen, err := sequentialElemWithLen(e.Mem, e.TID, x)
	if err != nil {
		return nil, err
	}
	hi := containerLen
	if n.HasHi {
		hiVal, err := e.Eval(n.Hi)
		if err != nil {
			return nil, err
		}
		hiInt, ok := asInt(hiVal)
		if !ok {
			return nil, bserrors.New(bserrors.ExpressionError, "slice bound must be an integer")
		}
		hi = hiInt
	}
	if lo < 0 || hi < lo {
		return nil, bserrors.Newf(bserrors.ExpressionError, "invalid slice bounds [%d..%d]", lo, hi)
	}
	return &Value{Addr: base + uint64(lo)*elemSize, sliceElem: elemType, sliceLen: int(hi - lo)}, nil
}

func (e *Evaluator) evalDeref(n Deref) (*Value, error) {
	x, err := e.Eval(n.X)
	if err != nil {
		return nil, err
	}
	if x.IsConst {
		addr, ok := asInt(x)
		if !ok {
			return nil, bserrors.New(bserrors.ExpressionError, "cannot dereference a non-integer constant")
		}
		return &Value{Addr: uint64(addr)}, nil
	}
	if x.Type == nil {
		return nil, bserrors.New(bserrors.ExpressionError, "cannot dereference an untyped value")
	}
	ptrVal, pointee, err := readPointerChain(e.Mem, e.TID, x.Addr, x.Type.Raw, 0)
	if err != nil {
		return nil, bserrors.Wrap(bserrors.ExpressionError, err, "dereference")
	}
	return &Value{Type: ourdwarf.WrapType(pointee), Addr: ptrVal}, nil
}

func (e *Evaluator) evalAddrOf(n AddrOf) (*Value, error) {
	x, err := e.Eval(n.X)
	if err != nil {
		return nil, err
	}
	if x.IsConst {
		return nil, bserrors.New(bserrors.ExpressionError, "cannot take the address of a constant")
	}
	return &Value{IsConst: true, Const: new(big.Int).SetUint64(x.Addr)}, nil
}

func (e *Evaluator) evalPointerCast(n PointerCast) (*Value, error) {
	t, err := TypeByName(e.Loader, n.TypeName)
	if err != nil {
		return nil, err
	}
	addrVal, err := e.Eval(n.Addr)
	if err != nil {
		return nil, err
	}
	addr, ok := asInt(addrVal)
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "pointer cast address must be an integer")
	}
	return &Value{Type: t, Addr: uint64(addr)}, nil
}

func (e *Evaluator) evalTypeCast(n TypeCast) (*Value, error) {
	t, err := TypeByName(e.Loader, n.TypeName)
	if err != nil {
		return nil, err
	}
	x, err := e.Eval(n.X)
	if err != nil {
		return nil, err
	}
	if x.IsConst {
		return nil, bserrors.New(bserrors.ExpressionError, "cannot reinterpret a constant's bytes")
	}
	return &Value{Type: t, Addr: x.Addr}, nil
}

func (e *Evaluator) evalCall(n Call) (*Value, error) {
	if e.Injector == nil || e.Funcs == nil {
		return nil, bserrors.New(bserrors.CallInjectionRefused, "call injection is not available in this context")
	}
	ident, ok := n.Func.(Ident)
	if !ok {
		return nil, bserrors.New(bserrors.CallInjectionRefused, "call target must be a plain function name")
	}
	addrs, err := e.Funcs.FunctionAddrs(ident.Name)
	if err != nil || len(addrs) == 0 {
		return nil, bserrors.Wrapf(bserrors.CallInjectionRefused, err, "resolve function %q", ident.Name)
	}
	args := make([]*Value, len(n.Args))
	for i, a := range n.Args {
		v, err := e.Eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return e.Injector.InjectCall(e.TID, addrs[0], args)
}

// asInt extracts an integer from an integer constant, used by
// index/slice/cast operators. A memory-backed value is not read: it
// reports false.
func asInt(v *Value) (int64, bool) {
	if v.IsConst {
		if i, ok := v.Const.(*big.Int); ok {
			return i.Int64(), true
		}
		return 0, false
	}
	return 0, false
}

// sequentialElem resolves x's element type and base address for a
// single integer index, handling both a recognized vector/deque/slice
// recipe and a plain fixed-size array.
func sequentialElem(mem MemReader, tid int, x *Value) (*ourdwarf.Type, uint64, uint64, error) {
	elemType, base, elemSize, _, err := sequentialElemWithLen(mem, tid, x)
	return elemType, base, elemSize, err
}

func sequentialElemWithLen(mem MemReader, tid int, x *Value) (*ourdwarf.Type, uint64, uint64, int64, error) {
	if x.Type == nil {
		return nil, 0, 0, 0, bserrors.New(bserrors.ExpressionError, "value has no element type to index")
	}
	raw := stripTypedefs(x.Type.Raw)

	if at, ok := raw.(*stddwarf.ArrayType); ok {
		elemSize := uint64(at.Type.Common().ByteSize)
		return ourdwarf.WrapType(at.Type), x.Addr, elemSize, at.Count, nil
	}

	if x.Type.Specialization != nil {
		switch x.Type.Specialization.Kind {
		case ourdwarf.RecognizedVector, ourdwarf.RecognizedDeque, ourdwarf.RecognizedSlice:
			st, ok := raw.(*stddwarf.StructType)
			if !ok {
				return nil, 0, 0, 0, bserrors.New(bserrors.ExpressionError, "malformed vector-like type")
			}
			n, ptrField, err := vectorLenAndPtrField(mem, tid, x.Addr, st)
			if err != nil {
				return nil, 0, 0, 0, err
			}
			ptrVal, pointee, err := readPointerChain(mem, tid, x.Addr+uint64(ptrField.ByteOffset), ptrField.Type, 0)
			if err != nil {
				return nil, 0, 0, 0, err
			}
			elemType := ourdwarf.WrapType(pointee)
			return elemType, ptrVal, uint64(pointee.Common().ByteSize), int64(n), nil
		}
	}
	return nil, 0, 0, 0, bserrors.Newf(bserrors.ExpressionError, "type %s does not support index/slice access", x.Type.Raw.String())
}
