// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	stddwarf "debug/dwarf"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/godzie44/BugStalker/arch"
	"github.com/godzie44/BugStalker/bserrors"
	ourdwarf "github.com/godzie44/BugStalker/dwarf"
)

// MemReader is the narrow debuggee-memory surface value materialization
// needs, kept separate from debugee.Debuggee to avoid eval depending on
// the trace-control package.
type MemReader interface {
	ReadMem(tid int, addr uint64, buf []byte) error
}

// Value is an evaluation result (spec.md §3 "Variable/Value ...
// {name?, TypeId, storage}"): a typed view over either a debuggee-memory
// address or a literal constant produced by the parser, playing the role
// of the teacher's result{d dwarf.Type, v interface{}} pair
// (program/server/eval.go) but explicit about which storage a value
// lives in.
type Value struct {
	Name string
	Type *ourdwarf.Type // nil for an untyped constant

	IsConst   bool
	Const     interface{} // *big.Int, string, bool — set when IsConst
	Addr      uint64      // debuggee address — set when !IsConst
	Canonical bool        // `~` was applied: render structurally, ignore specialization

	// sliceElem/sliceLen are set only for Slice results, which don't map
	// onto a single DWARF type (they describe a sub-range of one).
	sliceElem *ourdwarf.Type
	sliceLen  int
}

// Render materializes v's textual form, reading debuggee memory through
// mem as needed (spec.md §4.G "native vs debug-trait rendering"). loader
// resolves the generic key/value type names a specialized associative-
// container recipe needs (spec.md §4.G's map/set recipes); it may be nil
// for a value with no such recipe.
func (v *Value) Render(mem MemReader, tid int, loader *ourdwarf.Loader) (string, error) {
	if v.IsConst {
		return renderConst(v.Const), nil
	}
	if v.sliceElem != nil {
		return renderSlice(mem, tid, v.Addr, v.sliceLen, v.sliceElem, loader, 0)
	}
	if v.Type == nil {
		return fmt.Sprintf("%#x", v.Addr), nil
	}
	return renderTyped(mem, tid, v.Addr, v.Type, v.Canonical, loader, 0)
}

func renderConst(c interface{}) string {
	switch c := c.(type) {
	case *big.Int:
		return c.String()
	case string:
		return fmt.Sprintf("%q", c)
	case bool:
		if c {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(c)
	}
}

const maxRenderDepth = 8

func renderTyped(mem MemReader, tid int, addr uint64, t *ourdwarf.Type, canonical bool, loader *ourdwarf.Loader, depth int) (string, error) {
	if depth > maxRenderDepth {
		return "...", nil
	}
	raw := stripTypedefs(t.Raw)

	if !canonical && t.Specialization != nil {
		s, err := renderSpecialized(mem, tid, addr, raw, t.Specialization, loader, depth)
		if err == nil {
			return s, nil
		}
		// Fall through to the generic structural view on recipe failure,
		// per spec.md §9's "gracefully fall back ... when no pattern
		// matches" — the same posture applies when the matched pattern's
		// recipe can't be read back.
	}

	switch rt := raw.(type) {
	case *stddwarf.BoolType, *stddwarf.CharType, *stddwarf.UcharType,
		*stddwarf.IntType, *stddwarf.UintType, *stddwarf.FloatType:
		buf := make([]byte, raw.Common().ByteSize)
		if err := mem.ReadMem(tid, addr, buf); err != nil {
			return "", err
		}
		val, err := decodeScalar(raw, buf)
		if err != nil {
			return "", err
		}
		return fmt.Sprint(val), nil

	case *stddwarf.PtrType:
		buf := make([]byte, arch.AMD64.PointerSize)
		if err := mem.ReadMem(tid, addr, buf); err != nil {
			return "", err
		}
		ptr := arch.AMD64.Uintptr(buf)
		return fmt.Sprintf("%#x", ptr), nil

	case *stddwarf.StructType:
		var b strings.Builder
		b.WriteString(rt.StructName)
		b.WriteString(" {")
		for i, f := range rt.Field {
			if i > 0 {
				b.WriteString(", ")
			}
			fieldStr, err := renderTyped(mem, tid, addr+uint64(f.ByteOffset), ourdwarf.WrapType(f.Type), canonical, loader, depth+1)
			if err != nil {
				fieldStr = fmt.Sprintf("<%v>", err)
			}
			fmt.Fprintf(&b, "%s: %s", f.Name, fieldStr)
		}
		b.WriteString("}")
		return b.String(), nil

	case *stddwarf.ArrayType:
		return renderArray(mem, tid, addr, rt, loader, depth)

	default:
		return fmt.Sprintf("<%s @ %#x>", raw.String(), addr), nil
	}
}

func renderArray(mem MemReader, tid int, addr uint64, at *stddwarf.ArrayType, loader *ourdwarf.Loader, depth int) (string, error) {
	elemSize := uint64(at.Type.Common().ByteSize)
	count := uint64(0)
	if at.Count > 0 {
		count = uint64(at.Count)
	}
	elemType := ourdwarf.WrapType(at.Type)
	var b strings.Builder
	b.WriteString("[")
	for i := uint64(0); i < count; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		s, err := renderTyped(mem, tid, addr+i*elemSize, elemType, false, loader, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	b.WriteString("]")
	return b.String(), nil
}

func renderSlice(mem MemReader, tid int, addr uint64, n int, elem *ourdwarf.Type, loader *ourdwarf.Loader, depth int) (string, error) {
	elemSize := uint64(elem.Raw.Common().ByteSize)
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		s, err := renderTyped(mem, tid, addr+uint64(i)*elemSize, elem, false, loader, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	b.WriteString("]")
	return b.String(), nil
}

// stripTypedefs follows DW_TAG_typedef/const_type/volatile_type chains to
// the underlying structural type, the way the teacher's followTypedefs
// does in program/server/eval.go.
func stripTypedefs(t stddwarf.Type) stddwarf.Type {
	for {
		switch v := t.(type) {
		case *stddwarf.TypedefType:
			t = v.Type
		case *stddwarf.QualType:
			t = v.Type
		default:
			return t
		}
	}
}

func decodeScalar(raw stddwarf.Type, buf []byte) (interface{}, error) {
	switch raw.(type) {
	case *stddwarf.BoolType:
		return buf[0] != 0, nil
	case *stddwarf.CharType:
		return int64(int8(buf[0])), nil
	case *stddwarf.UcharType:
		return uint64(buf[0]), nil
	case *stddwarf.IntType:
		return arch.AMD64.IntN(buf), nil
	case *stddwarf.UintType:
		return arch.AMD64.UintN(buf), nil
	case *stddwarf.FloatType:
		switch len(buf) {
		case 4:
			return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
		case 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
		}
	}
	return nil, bserrors.Newf(bserrors.ExpressionError, "unsupported scalar width %d", len(buf))
}
