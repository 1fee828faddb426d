// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestIndex builds an Index directly from fixture data, bypassing
// Build's DWARF walk, since every method under test here operates purely
// on the indexed funcs/byName/byFile maps.
func newTestIndex() *Index {
	idx := &Index{byName: make(map[string]*FuncSymbol), byFile: make(map[string][]LineRow)}
	idx.funcs = []FuncSymbol{
		{Name: "main", Low: 0x1000, High: 0x1100},
		{Name: "helper", Low: 0x1100, High: 0x1200},
	}
	for i := range idx.funcs {
		idx.byName[idx.funcs[i].Name] = &idx.funcs[i]
	}
	idx.byFile["main.rs"] = []LineRow{
		{Line: 10, Addr: 0x1000, IsStmt: true},
		{Line: 11, Addr: 0x1010, IsStmt: true},
		{Line: 12, Addr: 0x1020, IsStmt: false},
		{Line: 0, Addr: 0x1100, EndOfSeq: true},
	}
	return idx
}

func TestFunctionAddrsExactName(t *testing.T) {
	idx := newTestIndex()
	addrs, err := idx.FunctionAddrs("helper")
	require.NoError(t, err)
	require.Equal(t, []uint64{0x1100}, addrs)
}

func TestFunctionAddrsRegexPattern(t *testing.T) {
	idx := newTestIndex()
	addrs, err := idx.FunctionAddrs("^h.*")
	require.NoError(t, err)
	require.Equal(t, []uint64{0x1100}, addrs)
}

func TestFunctionAddrsNoMatch(t *testing.T) {
	idx := newTestIndex()
	_, err := idx.FunctionAddrs("nonexistent")
	require.Error(t, err)
}

func TestLineAddrsOnlyStatementRows(t *testing.T) {
	idx := newTestIndex()
	addrs, err := idx.LineAddrs("main.rs", 11)
	require.NoError(t, err)
	require.Equal(t, []uint64{0x1010}, addrs)

	_, err = idx.LineAddrs("main.rs", 12) // not a statement row
	require.Error(t, err)
}

func TestLineAtFindsNearestRow(t *testing.T) {
	idx := newTestIndex()
	file, line, ok := idx.LineAt(0x1015)
	require.True(t, ok)
	require.Equal(t, "main.rs", file)
	require.Equal(t, 11, line)
}

func TestLineAtBeforeAnyRow(t *testing.T) {
	idx := newTestIndex()
	_, _, ok := idx.LineAt(0x0500)
	require.False(t, ok)
}

func TestFunctionRangeAndFunctionAt(t *testing.T) {
	idx := newTestIndex()
	low, high, ok := idx.FunctionRange(0x1150)
	require.True(t, ok)
	require.Equal(t, uint64(0x1100), low)
	require.Equal(t, uint64(0x1200), high)

	fs, ok := idx.FunctionAt(0x1050)
	require.True(t, ok)
	require.Equal(t, "main", fs.Name)

	_, ok = idx.FunctionAt(0x9000)
	require.False(t, ok)
}

func TestStatementAddrsInRangeExcludesNonStatementsAndEndOfSeq(t *testing.T) {
	idx := newTestIndex()
	addrs := idx.StatementAddrsInRange(0x1000, 0x1100)
	require.Equal(t, []uint64{0x1000, 0x1010}, addrs)
}
