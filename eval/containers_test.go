// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenericArgsSimple(t *testing.T) {
	require.Equal(t, []string{"Foo", "i32", "RandomState"}, genericArgs("HashMap<Foo, i32, RandomState>"))
}

func TestGenericArgsNested(t *testing.T) {
	require.Equal(t, []string{"Vec<i32>", "String"}, genericArgs("BTreeMap<Vec<i32>, String>"))
}

func TestGenericArgsSet(t *testing.T) {
	require.Equal(t, []string{"Foo"}, genericArgs("HashSet<Foo>"))
}

func TestGenericArgsNoAngleBrackets(t *testing.T) {
	require.Nil(t, genericArgs("String"))
}

func TestRenderKeyLiteralScalarsAndArrays(t *testing.T) {
	expr, err := Parse(`m[[1, 2]]`)
	require.NoError(t, err)
	idx, ok := expr.(Index)
	require.True(t, ok)
	arr, ok := idx.Key.(ArrayLit)
	require.True(t, ok)
	s, err := renderKeyLiteral(arr)
	require.NoError(t, err)
	require.Equal(t, "[1, 2]", s)
}

func TestRenderKeyLiteralString(t *testing.T) {
	lit, err := Parse(`"x"`)
	require.NoError(t, err)
	s, err := renderKeyLiteral(lit)
	require.NoError(t, err)
	require.Equal(t, `"x"`, s)
}

func TestRenderKeyLiteralRejectsWildcard(t *testing.T) {
	_, err := renderKeyLiteral(WildcardKey{})
	require.Error(t, err)
}
