// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbol implements the symbol and line index (spec.md §4.C):
// per-object maps from demangled function name to symbol, and from
// source path to the ordered (line, address) rows the line program
// produces, with "statement" rows marked as the only breakpoint-valid
// ones. Grounded on the teacher's lookupSym/lookupPC walk of a
// debug/dwarf.Reader in program/server/dwarf.go, generalized from a
// single linear DWARF scan per query into a built-once index.
package symbol

import (
	stddwarf "debug/dwarf"
	"regexp"
	"sort"

	"github.com/godzie44/BugStalker/bserrors"
)

// FuncSymbol is one function's address range and declared name.
type FuncSymbol struct {
	Name        string
	Low, High   uint64
	DIEOffset   stddwarf.Offset
	UnitOffset  stddwarf.Offset
}

// LineRow is one (line, address) pair the line program produced, for one
// source file.
type LineRow struct {
	Line      int
	Addr      uint64
	IsStmt    bool
	EndOfSeq  bool
}

// Index is the per-object symbol and line index.
type Index struct {
	funcs    []FuncSymbol
	byName   map[string]*FuncSymbol
	byFile   map[string][]LineRow
}

// Build walks every compile unit's subprogram DIEs and line program to
// construct the index. It requires only a debug/dwarf.Data (not the full
// dwarf.Loader) so it can be unit-tested against a bare *dwarf.Data.
func Build(data *stddwarf.Data) (*Index, error) {
	idx := &Index{byName: make(map[string]*FuncSymbol), byFile: make(map[string][]LineRow)}
	r := data.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, bserrors.Wrap(bserrors.DwarfMalformed, err, "walk DIE tree for symbol index")
		}
		if entry == nil {
			break
		}
		if entry.Tag == stddwarf.TagCompileUnit {
			if err := idx.indexLineProgram(data, entry); err != nil {
				return nil, err
			}
			continue
		}
		if entry.Tag != stddwarf.TagSubprogram {
			continue
		}
		name, _ := entry.Val(stddwarf.AttrName).(string)
		low, lok := entry.Val(stddwarf.AttrLowpc).(uint64)
		if name == "" || !lok {
			continue
		}
		high := highPC(entry, low)
		fs := FuncSymbol{Name: name, Low: low, High: high, DIEOffset: entry.Offset}
		idx.funcs = append(idx.funcs, fs)
	}
	sort.Slice(idx.funcs, func(i, j int) bool { return idx.funcs[i].Low < idx.funcs[j].Low })
	for i := range idx.funcs {
		idx.byName[idx.funcs[i].Name] = &idx.funcs[i]
	}
	return idx, nil
}

// highPC resolves DW_AT_high_pc, which DWARF4+ may encode either as an
// absolute address or as an offset from low_pc.
func highPC(entry *stddwarf.Entry, low uint64) uint64 {
	v := entry.Val(stddwarf.AttrHighpc)
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

func (idx *Index) indexLineProgram(data *stddwarf.Data, cu *stddwarf.Entry) error {
	lr, err := data.LineReader(cu)
	if err != nil || lr == nil {
		return nil
	}
	var entry stddwarf.LineEntry
	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		row := LineRow{Line: entry.Line, Addr: entry.Address, IsStmt: entry.IsStmt, EndOfSeq: entry.EndSequence}
		idx.byFile[entry.File.Name] = append(idx.byFile[entry.File.Name], row)
	}
	for file := range idx.byFile {
		rows := idx.byFile[file]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Addr < rows[j].Addr })
		idx.byFile[file] = rows
	}
	return nil
}

// FunctionAddrs resolves a function name to its entry address(es),
// supporting a name regex for the symbol-listing command (spec.md §4.C).
func (idx *Index) FunctionAddrs(pattern string) ([]uint64, error) {
	if fs, ok := idx.byName[pattern]; ok {
		return []uint64{fs.Low}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, bserrors.Wrap(bserrors.ExpressionError, err, "compile symbol pattern")
	}
	var addrs []uint64
	for _, fs := range idx.funcs {
		if re.MatchString(fs.Name) {
			addrs = append(addrs, fs.Low)
		}
	}
	if len(addrs) == 0 {
		return nil, bserrors.Newf(bserrors.DwarfMissing, "no function matching %q", pattern)
	}
	return addrs, nil
}

// LineAddrs resolves source:line to every instruction address the line
// program associates with it; a line may map to multiple addresses when
// inlined, each of which should receive a breakpoint (spec.md §4.C).
func (idx *Index) LineAddrs(file string, line int) ([]uint64, error) {
	rows, ok := idx.byFile[file]
	if !ok {
		return nil, bserrors.Newf(bserrors.DwarfMissing, "no line info for file %q", file)
	}
	var addrs []uint64
	for _, r := range rows {
		if r.Line == line && r.IsStmt && !r.EndOfSeq {
			addrs = append(addrs, r.Addr)
		}
	}
	if len(addrs) == 0 {
		return nil, bserrors.Newf(bserrors.DwarfMissing, "no statement at %s:%d", file, line)
	}
	return addrs, nil
}

// LineAt resolves address -> source file and line for stack rendering
// (spec.md §4.C), implementing tracer.LineResolver. No column is
// reported.
func (idx *Index) LineAt(addr uint64) (file string, line int, ok bool) {
	var bestFile string
	var bestLine int
	var bestAddr uint64
	found := false
	for f, rows := range idx.byFile {
		for _, r := range rows {
			if r.EndOfSeq || r.Addr > addr {
				continue
			}
			if !found || r.Addr > bestAddr {
				bestFile, bestLine, bestAddr, found = f, r.Line, r.Addr, true
			}
		}
	}
	return bestFile, bestLine, found
}

// FunctionRange implements tracer.LineResolver: the enclosing function's
// [low, high) for a PC.
func (idx *Index) FunctionRange(pc uint64) (low, high uint64, ok bool) {
	for _, fs := range idx.funcs {
		if pc >= fs.Low && pc < fs.High {
			return fs.Low, fs.High, true
		}
	}
	return 0, 0, false
}

// FunctionAt returns the symbol enclosing pc, used for backtrace
// rendering (spec.md §4.C "address -> source:line:column").
func (idx *Index) FunctionAt(pc uint64) (FuncSymbol, bool) {
	for _, fs := range idx.funcs {
		if pc >= fs.Low && pc < fs.High {
			return fs, true
		}
	}
	return FuncSymbol{}, false
}

// StatementAddrsInRange implements tracer.LineResolver: every statement-
// row address within [low, high), the successor set step-over installs
// one-shot breakpoints at.
func (idx *Index) StatementAddrsInRange(low, high uint64) []uint64 {
	var out []uint64
	for _, rows := range idx.byFile {
		for _, r := range rows {
			if r.IsStmt && !r.EndOfSeq && r.Addr >= low && r.Addr < high {
				out = append(out, r.Addr)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
