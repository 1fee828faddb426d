// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIdent(t *testing.T) {
	expr, err := Parse("counter")
	require.NoError(t, err)
	require.Equal(t, Ident{Name: "counter"}, expr)
}

func TestParseFieldChain(t *testing.T) {
	expr, err := Parse("node.next.value")
	require.NoError(t, err)
	require.Equal(t, Field{
		X:    Field{X: Ident{Name: "node"}, Name: "next"},
		Name: "value",
	}, expr)
}

func TestParseIndex(t *testing.T) {
	expr, err := Parse("items[3]")
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	require.Equal(t, Ident{Name: "items"}, idx.X)
	lit, ok := idx.Key.(IntLit)
	require.True(t, ok)
	require.Equal(t, "3", lit.Value.String())
}

func TestParseWildcardIndex(t *testing.T) {
	expr, err := Parse("cache[*]")
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	_, ok = idx.Key.(WildcardKey)
	require.True(t, ok)
}

func TestParseSliceBounded(t *testing.T) {
	expr, err := Parse("buf[1..4]")
	require.NoError(t, err)
	sl, ok := expr.(Slice)
	require.True(t, ok)
	require.True(t, sl.HasHi)
}

func TestParseSliceOpenEnded(t *testing.T) {
	expr, err := Parse("buf[2..]")
	require.NoError(t, err)
	sl, ok := expr.(Slice)
	require.True(t, ok)
	require.False(t, sl.HasHi)
	require.Nil(t, sl.Hi)
}

func TestParseDerefAndField(t *testing.T) {
	expr, err := Parse("*cursor.next")
	require.NoError(t, err)
	deref, ok := expr.(Deref)
	require.True(t, ok)
	_, ok = deref.X.(Field)
	require.True(t, ok, "deref should bind to the postfix chain, not just the leading identifier")
}

func TestParseAddrOf(t *testing.T) {
	expr, err := Parse("&node")
	require.NoError(t, err)
	require.Equal(t, AddrOf{X: Ident{Name: "node"}}, expr)
}

func TestParseCanonical(t *testing.T) {
	expr, err := Parse("value~")
	require.NoError(t, err)
	require.Equal(t, Canonical{X: Ident{Name: "value"}}, expr)
}

func TestParsePointerCast(t *testing.T) {
	expr, err := Parse("(*Node)4096")
	require.NoError(t, err)
	pc, ok := expr.(PointerCast)
	require.True(t, ok)
	require.Equal(t, "Node", pc.TypeName)
}

func TestParseTypeCast(t *testing.T) {
	expr, err := Parse("(:u32) value")
	require.NoError(t, err)
	tc, ok := expr.(TypeCast)
	require.True(t, ok)
	require.Equal(t, "u32", tc.TypeName)
}

func TestParseQualifiedTypeCast(t *testing.T) {
	expr, err := Parse("(:alloc::vec::Vec) items")
	require.NoError(t, err)
	tc, ok := expr.(TypeCast)
	require.True(t, ok)
	require.Equal(t, "alloc::vec::Vec", tc.TypeName)
}

func TestParseCall(t *testing.T) {
	expr, err := Parse("compute(1, x)")
	require.NoError(t, err)
	call, ok := expr.(Call)
	require.True(t, ok)
	require.Equal(t, Ident{Name: "compute"}, call.Func)
	require.Len(t, call.Args, 2)
}

func TestParseStringLiteralKey(t *testing.T) {
	expr, err := Parse(`table["key"]`)
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	lit, ok := idx.Key.(StringLit)
	require.True(t, ok)
	require.Equal(t, "key", lit.Value)
}

func TestParseStructLiteralKey(t *testing.T) {
	expr, err := Parse(`m[{bar:"x", baz:*}]`)
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	lit, ok := idx.Key.(StructLit)
	require.True(t, ok)
	require.Len(t, lit.Fields, 2)

	require.Equal(t, "bar", lit.Fields[0].Name)
	strVal, ok := lit.Fields[0].Value.(StringLit)
	require.True(t, ok)
	require.Equal(t, "x", strVal.Value)

	require.Equal(t, "baz", lit.Fields[1].Name)
	_, ok = lit.Fields[1].Value.(WildcardKey)
	require.True(t, ok)
}

func TestParseArrayLiteralKey(t *testing.T) {
	expr, err := Parse("m[[1, 2]]")
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	lit, ok := idx.Key.(ArrayLit)
	require.True(t, ok)
	require.Len(t, lit.Elems, 2)
	first, ok := lit.Elems[0].(IntLit)
	require.True(t, ok)
	require.Equal(t, "1", first.Value.String())
}

func TestParseNestedStructLiteralKey(t *testing.T) {
	expr, err := Parse(`m[{bar:"x", baz:[1,2]}]`)
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	lit, ok := idx.Key.(StructLit)
	require.True(t, ok)
	require.Len(t, lit.Fields, 2)
	arr, ok := lit.Fields[1].Value.(ArrayLit)
	require.True(t, ok)
	require.Len(t, arr.Elems, 2)
}

func TestParseTrailingGarbageRejected(t *testing.T) {
	_, err := Parse("a b")
	require.Error(t, err)
}

func TestParseUnterminatedIndexRejected(t *testing.T) {
	_, err := Parse("items[1")
	require.Error(t, err)
}
