// Package tables implements the table loader (component C, §4.C of
// spec.md): the non-function sections — location filenames, location
// positions, the string/type/kernel-name pools, the attribute pool, and the
// function index. Types, Kernels, FunctionIndex, RegisterTypes and
// AttributeTypes share the pattern "read a u-varint count, then that many
// records"; LocationFilenames and Strings are NUL-terminated sequences, and
// LocationPositions records are read on demand by byte offset.
package tables

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/internal/container"
	"github.com/tripwire/beflow/bef/internal/reader"
	"github.com/tripwire/beflow/bef/internal/varint"
	"github.com/tripwire/beflow/bef/ir"
)

// SupportedVersion is the only FormatVersion byte this decoder accepts.
const SupportedVersion = 0

// StringTable resolves string handles (byte offsets) against the
// NUL-terminated Strings pool.
type StringTable struct {
	buf []byte
}

// Resolve reads the NUL-terminated string starting at handle. Invariant
// (spec.md §3): every referenced offset sits on a string start — Resolve
// does not scan for one.
func (t StringTable) Resolve(h ir.StringHandle) (string, error) {
	off := int(h)
	if off < 0 || off > len(t.buf) {
		return "", fmt.Errorf("string handle %d out of range [0,%d]", off, len(t.buf))
	}
	end := bytes.IndexByte(t.buf[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("string handle %d: no NUL terminator", off)
	}
	return string(t.buf[off : off+end]), nil
}

// LocationTable resolves location handles (byte offsets into the
// LocationPositions payload) to a (filename, line, column) triple.
type LocationTable struct {
	buf       []byte
	filenames []string
}

// Resolve parses the (filename_index, line, column) varint record starting
// at handle. Idempotent: the same handle always parses to the same result
// (spec.md §8 invariant 5), since it is a pure read of immutable bytes.
func (t LocationTable) Resolve(h ir.LocationHandle) (ir.SourceLoc, error) {
	off := int(h)
	if off < 0 || off > len(t.buf) {
		return ir.SourceLoc{}, fmt.Errorf("location handle %d out of range [0,%d]", off, len(t.buf))
	}
	r := reader.New(t.buf[off:])
	fi, err := r.ReadVarint()
	if err != nil {
		return ir.SourceLoc{}, fmt.Errorf("location handle %d: filename index: %w", off, err)
	}
	line, err := r.ReadVarint()
	if err != nil {
		return ir.SourceLoc{}, fmt.Errorf("location handle %d: line: %w", off, err)
	}
	col, err := r.ReadVarint()
	if err != nil {
		return ir.SourceLoc{}, fmt.Errorf("location handle %d: column: %w", off, err)
	}
	if int(fi) >= len(t.filenames) {
		return ir.SourceLoc{}, fmt.Errorf("location handle %d: filename index %d out of range [0,%d)", off, fi, len(t.filenames))
	}
	return ir.SourceLoc{Filename: t.filenames[fi], Line: int(line), Column: int(col)}, nil
}

// TypeTable resolves type handles (positional indices into the Types pool)
// to parsed IR types. Every entry is resolved once, when the Types section
// is loaded.
type TypeTable struct {
	entries []ir.Type
}

// Resolve returns the type at positional index h.
func (t TypeTable) Resolve(h ir.TypeHandle) (ir.Type, error) {
	if int(h) < 0 || int(h) >= len(t.entries) {
		return ir.Type{}, fmt.Errorf("type handle %d out of range [0,%d)", h, len(t.entries))
	}
	return t.entries[h], nil
}

// Len reports the number of entries in the pool.
func (t TypeTable) Len() int { return len(t.entries) }

// KernelNameTable resolves kernel-name handles (positional indices into the
// Kernels pool) to strings.
type KernelNameTable struct {
	entries []string
}

// Resolve returns the kernel name at positional index h.
func (t KernelNameTable) Resolve(h ir.KernelNameHandle) (string, error) {
	if int(h) < 0 || int(h) >= len(t.entries) {
		return "", fmt.Errorf("kernel-name handle %d out of range [0,%d)", h, len(t.entries))
	}
	return t.entries[h], nil
}

// FunctionKind distinguishes a BEF-bodied function from a native
// (externally implemented) one.
type FunctionKind byte

const (
	FunctionBEF    FunctionKind = 0
	FunctionNative FunctionKind = 1
)

// FunctionEntry is one record from the FunctionIndex section.
type FunctionEntry struct {
	Kind           FunctionKind
	FunctionOffset int
	Name           string // resolved; empty means unnamed
	Type           ir.FuncType
}

// Named reports whether this entry's name handle resolved to a non-empty
// string (spec.md §3: "A function is named iff its name handle resolves to
// a non-empty string").
func (e FunctionEntry) Named() bool { return e.Name != "" }

// AttrTypeEntry is one (offset, descriptor) pair from AttributeTypes.
type AttrTypeEntry struct {
	Offset     int
	Kind       ir.AttrKind
	TypeHandle ir.TypeHandle
}

// decodeDescriptor splits a packed descriptor word into its kind (low 3
// bits) and payload (remaining high bits, a type handle for
// standard/flat-array kinds and unused otherwise). This bit layout is an
// implementation choice spec.md leaves to the reader (§3: "low bits
// identify one of {...}, high bits carry either a type handle ... or are
// unused"); see DESIGN.md.
func decodeDescriptor(raw uint32) (ir.AttrKind, ir.TypeHandle) {
	return ir.AttrKind(raw & 0x7), ir.TypeHandle(raw >> 3)
}

// Tables is the full set of decoded non-function tables.
type Tables struct {
	Version       byte
	Filenames     []string
	Locations     LocationTable
	Strings       StringTable
	Types         TypeTable
	Kernels       KernelNameTable
	FunctionIndex []FunctionEntry
	Attrs         map[ir.AttrOffset]ir.Attribute
	// RegisterTypes holds, per function (in FunctionIndex order), the
	// resolved register types in declaration order. A nil inner slice
	// means RegisterTypes was absent or didn't cover that function; the
	// body decoder treats every register as ir.None in that case.
	RegisterTypes [][]ir.Type
	// AttributeNames is the shared sequential cursor bodies draw kernel
	// attribute names (and the non-strict marker) from, in FunctionIndex
	// then kernel-table order. Nil when the section was absent.
	AttributeNames *reader.Reader
}

// Load decodes every non-function table out of sections.
func Load(sections container.Sections, bag *diag.Bag, policy ir.Policy) (*Tables, error) {
	t := &Tables{Attrs: map[ir.AttrOffset]ir.Attribute{}}

	version, err := loadFormatVersion(sections[container.FormatVersion])
	if err != nil {
		return nil, bag.Fail(diag.UnsupportedVersion, ir.SourceLoc{}, "%v", err)
	}
	t.Version = version

	t.Filenames = splitNULStrings(sections[container.LocationFilenames])
	t.Locations = LocationTable{buf: sections[container.LocationPositions], filenames: t.Filenames}
	t.Strings = StringTable{buf: sections[container.Strings]}

	types, err := loadTypes(sections[container.Types], t.Strings)
	if err != nil {
		return nil, bag.Fail(diag.BadSection, ir.SourceLoc{}, "Types: %v", err)
	}
	t.Types = TypeTable{entries: types}

	kernels, err := loadKernelNames(sections[container.Kernels], t.Strings)
	if err != nil {
		return nil, bag.Fail(diag.BadSection, ir.SourceLoc{}, "Kernels: %v", err)
	}
	t.Kernels = KernelNameTable{entries: kernels}

	fi, err := loadFunctionIndex(sections[container.FunctionIndex], t.Strings, t.Types)
	if err != nil {
		return nil, bag.Fail(diag.BadSection, ir.SourceLoc{}, "FunctionIndex: %v", err)
	}
	t.FunctionIndex = fi

	regTypes, err := loadRegisterTypes(sections[container.RegisterTypes], t.Types, len(fi))
	if err != nil {
		return nil, bag.Fail(diag.BadSection, ir.SourceLoc{}, "RegisterTypes: %v", err)
	}
	t.RegisterTypes = regTypes

	attrs, err := loadAttributes(sections[container.Attributes], sections[container.AttributeTypes], t.Types, bag, policy)
	if err != nil {
		return nil, bag.Fail(diag.BadSection, ir.SourceLoc{}, "Attributes: %v", err)
	}
	t.Attrs = attrs

	if names, ok := sections[container.AttributeNames]; ok {
		t.AttributeNames = reader.New(names)
	}

	return t, nil
}

func loadFormatVersion(payload []byte) (byte, error) {
	if len(payload) != 1 {
		return 0, fmt.Errorf("FormatVersion: expected exactly 1 byte, got %d", len(payload))
	}
	if payload[0] != SupportedVersion {
		return 0, fmt.Errorf("unsupported format version %d (want %d)", payload[0], SupportedVersion)
	}
	return payload[0], nil
}

// splitNULStrings splits a concatenated NUL-terminated byte sequence into an
// ordered list of strings. It is used for LocationFilenames; the Strings
// pool is instead addressed by byte offset through StringTable.
func splitNULStrings(payload []byte) []string {
	if len(payload) == 0 {
		return nil
	}
	var out []string
	start := 0
	for i, b := range payload {
		if b == 0 {
			out = append(out, string(payload[start:i]))
			start = i + 1
		}
	}
	return out
}

// loadTypes reads a varint count followed by that many string handles
// (varints), resolving and memoizing each as an ir.Type.
func loadTypes(payload []byte, strs StringTable) ([]ir.Type, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	r := reader.New(payload)
	count, err := r.ReadCount(1)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]ir.Type, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: string handle: %w", i, err)
		}
		name, err := strs.Resolve(ir.StringHandle(h))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, ir.Type{Name: name})
	}
	return out, nil
}

// loadKernelNames reads a varint count followed by that many string
// handles, resolving each to a kernel name.
func loadKernelNames(payload []byte, strs StringTable) ([]string, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	r := reader.New(payload)
	count, err := r.ReadCount(1)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: string handle: %w", i, err)
		}
		name, err := strs.Resolve(ir.StringHandle(h))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, name)
	}
	return out, nil
}

// loadFunctionIndex reads the FunctionIndex section (§4.C): a varint count,
// then per function {kind:u8, function_offset:varint, name_offset:varint,
// arg_types, result_types}, each type array itself a varint-length array of
// type handles.
func loadFunctionIndex(payload []byte, strs StringTable, types TypeTable) ([]FunctionEntry, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	r := reader.New(payload)
	// Each record is at minimum kind(1) + function_offset(1) + name_offset(1)
	// + arg_types length(1) + result_types length(1).
	count, err := r.ReadCount(5)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]FunctionEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		kindByte, err := r.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("function %d: kind: %w", i, err)
		}
		fnOffset, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("function %d: function_offset: %w", i, err)
		}
		nameOffset, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("function %d: name_offset: %w", i, err)
		}
		name, err := strs.Resolve(ir.StringHandle(nameOffset))
		if err != nil {
			return nil, fmt.Errorf("function %d: name: %w", i, err)
		}
		args, err := readTypeHandleArray(r, types)
		if err != nil {
			return nil, fmt.Errorf("function %d: arg_types: %w", i, err)
		}
		results, err := readTypeHandleArray(r, types)
		if err != nil {
			return nil, fmt.Errorf("function %d: result_types: %w", i, err)
		}
		out = append(out, FunctionEntry{
			Kind:           FunctionKind(kindByte),
			FunctionOffset: int(fnOffset),
			Name:           name,
			Type:           ir.FuncType{Args: args, Results: results},
		})
	}
	return out, nil
}

func readTypeHandleArray(r *reader.Reader, types TypeTable) ([]ir.Type, error) {
	n, err := r.ReadCount(1)
	if err != nil {
		return nil, fmt.Errorf("length: %w", err)
	}
	out := make([]ir.Type, 0, n)
	for i := uint64(0); i < n; i++ {
		h, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		typ, err := types.Resolve(ir.TypeHandle(h))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, typ)
	}
	return out, nil
}

// loadRegisterTypes reads the RegisterTypes section: a varint function
// count, then per function a varint register count followed by that many
// type handles, in FunctionIndex order (spec.md §3 item 2: "the i-th
// sub-array"). numFunctions is the FunctionIndex length; a section with more
// sub-arrays than that is rejected, while fewer is accepted (uncovered
// functions get ir.None registers). Absence is tolerated (degradation to
// ir.None everywhere).
func loadRegisterTypes(payload []byte, types TypeTable, numFunctions int) ([][]ir.Type, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	r := reader.New(payload)
	count, err := r.ReadCount(1)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if count > uint64(numFunctions) {
		return nil, fmt.Errorf("count %d exceeds FunctionIndex length %d", count, numFunctions)
	}
	out := make([][]ir.Type, 0, count)
	for i := uint64(0); i < count; i++ {
		regs, err := readTypeHandleArray(r, types)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		out = append(out, regs)
	}
	return out, nil
}

// loadAttributes decodes the Attributes pool, driven by AttributeTypes, in
// ascending offset order (so that any offset-array's referenced attributes,
// which the writer guarantees to sit at strictly smaller offsets, are
// already resolved — spec.md §4.C "Ordering within the attribute pool").
func loadAttributes(pool, attrTypes []byte, types TypeTable, bag *diag.Bag, policy ir.Policy) (map[ir.AttrOffset]ir.Attribute, error) {
	resolved := map[ir.AttrOffset]ir.Attribute{}
	if len(attrTypes) == 0 {
		// No AttributeTypes: every attribute reference downstream becomes
		// a placeholder (§4.B, §9). There is nothing to decode here.
		return resolved, nil
	}

	entries, err := loadAttrTypeEntries(attrTypes)
	if err != nil {
		return nil, fmt.Errorf("AttributeTypes: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })

	for _, e := range entries {
		attr, err := decodeAttributeAt(pool, e, types, resolved)
		if err != nil {
			if policy == ir.Strict {
				return nil, fmt.Errorf("offset %d: %w", e.Offset, err)
			}
			bag.Warnf(diag.UnknownAttribute, "offset %d: %v; substituting placeholder", e.Offset, err)
			attr = ir.Attribute{Kind: e.Kind, Int: ir.PlaceholderValue, Placeholder: true}
		}
		resolved[ir.AttrOffset(e.Offset)] = attr
	}
	return resolved, nil
}

// loadAttrTypeEntries reads the AttributeTypes section: a varint count,
// then that many fixed 8-byte (offset:u32, descriptor:u32) records.
func loadAttrTypeEntries(payload []byte) ([]AttrTypeEntry, error) {
	r := reader.New(payload)
	count, err := r.ReadCount(8) // each record is a fixed (offset:u32, descriptor:u32)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]AttrTypeEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		off, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("entry %d: offset: %w", i, err)
		}
		desc, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("entry %d: descriptor: %w", i, err)
		}
		kind, typeHandle := decodeDescriptor(desc)
		out = append(out, AttrTypeEntry{Offset: int(off), Kind: kind, TypeHandle: typeHandle})
	}
	return out, nil
}

// standardAttrTypes orders the six scalar type-attribute encodings, used by
// the "type" attribute kind (a single byte selecting one of these).
var standardAttrTypes = []string{"i1", "i32", "i64", "f16", "f32", "f64"}

func decodeAttributeAt(pool []byte, e AttrTypeEntry, types TypeTable, resolved map[ir.AttrOffset]ir.Attribute) (ir.Attribute, error) {
	off := e.Offset
	switch e.Kind {
	case ir.AttrStandard:
		typ, err := types.Resolve(e.TypeHandle)
		if err != nil {
			return ir.Attribute{}, err
		}
		return readStandardScalar(pool, off, typ)

	case ir.AttrBool:
		if off < 0 || off >= len(pool) {
			return ir.Attribute{}, fmt.Errorf("bool attribute out of range")
		}
		return ir.Attribute{Kind: ir.AttrBool, Int: int64(pool[off])}, nil

	case ir.AttrString:
		length, start, err := varint.ReadReverse(pool, off)
		if err != nil {
			return ir.Attribute{}, fmt.Errorf("reverse length prefix: %w", err)
		}
		_ = start
		if off+int(length) > len(pool) {
			return ir.Attribute{}, fmt.Errorf("string attribute out of range")
		}
		return ir.Attribute{Kind: ir.AttrString, Str: string(pool[off : off+int(length)])}, nil

	case ir.AttrTypeAttr:
		if off < 0 || off >= len(pool) {
			return ir.Attribute{}, fmt.Errorf("type attribute out of range")
		}
		idx := int(pool[off])
		if idx < 0 || idx >= len(standardAttrTypes) {
			return ir.Attribute{}, fmt.Errorf("type attribute: unknown encoded type %d", idx)
		}
		return ir.Attribute{Kind: ir.AttrTypeAttr, AsType: ir.Type{Name: standardAttrTypes[idx]}}, nil

	case ir.AttrDenseElements:
		return readDenseElements(pool, off)

	case ir.AttrFlatArray:
		elemType, err := types.Resolve(e.TypeHandle)
		if err != nil {
			return ir.Attribute{}, err
		}
		length, _, err := varint.ReadReverse(pool, off)
		if err != nil {
			return ir.Attribute{}, fmt.Errorf("reverse length prefix: %w", err)
		}
		elems, err := readFlatArray(pool, off, int(length), elemType)
		if err != nil {
			return ir.Attribute{}, err
		}
		return ir.Attribute{Kind: ir.AttrFlatArray, ScalarType: elemType, Array: elems}, nil

	case ir.AttrOffsetArray:
		length, _, err := varint.ReadReverse(pool, off)
		if err != nil {
			return ir.Attribute{}, fmt.Errorf("reverse length prefix: %w", err)
		}
		if off < 0 || off > len(pool) || length > uint64(len(pool)-off)/8 {
			return ir.Attribute{}, fmt.Errorf("offset-array: length %d exceeds remaining pool capacity", length)
		}
		out := make([]ir.Attribute, 0, length)
		r := reader.New(pool[off:])
		for i := uint64(0); i < length; i++ {
			childOff, err := r.ReadU32()
			if err != nil {
				return ir.Attribute{}, fmt.Errorf("offset-array entry %d: offset: %w", i, err)
			}
			if _, err := r.ReadU32(); err != nil { // descriptor, unused: the child was already decoded
				return ir.Attribute{}, fmt.Errorf("offset-array entry %d: descriptor: %w", i, err)
			}
			child, ok := resolved[ir.AttrOffset(childOff)]
			if !ok {
				return ir.Attribute{}, fmt.Errorf("offset-array entry %d: referenced offset %d not yet decoded", i, childOff)
			}
			out = append(out, child)
		}
		return ir.Attribute{Kind: ir.AttrOffsetArray, Array: out}, nil

	default:
		return ir.Attribute{}, fmt.Errorf("unknown attribute descriptor kind %d", e.Kind)
	}
}

func readStandardScalar(pool []byte, off int, typ ir.Type) (ir.Attribute, error) {
	width, ok := typ.BitWidth()
	if !ok {
		return ir.Attribute{}, fmt.Errorf("standard attribute: unsupported type %q", typ)
	}
	nbytes := (width + 7) / 8
	if off < 0 || off+nbytes > len(pool) {
		return ir.Attribute{}, fmt.Errorf("standard attribute out of range")
	}
	if typ.IsFloat() {
		f, err := readFloat(pool[off:off+nbytes], width)
		if err != nil {
			return ir.Attribute{}, err
		}
		return ir.Attribute{Kind: ir.AttrStandard, Float: f, ScalarType: typ}, nil
	}
	v := readUint(pool[off : off+nbytes])
	return ir.Attribute{Kind: ir.AttrStandard, Int: int64(v), ScalarType: typ}, nil
}

func readUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		var v uint64
		for i, by := range b {
			v |= uint64(by) << (8 * i)
		}
		return v
	}
}

// readFloat decodes a 16/32/64-bit IEEE-754 float. 16-bit support exists
// because spec.md requires it even though, per §9's Open Questions, whether
// it is reachable in valid BEF is unclear.
func readFloat(b []byte, width int) (float64, error) {
	switch width {
	case 16:
		return float64(halfToFloat32(binary.LittleEndian.Uint16(b))), nil
	case 32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case 64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("unsupported float width %d", width)
	}
}

// halfToFloat32 converts an IEEE-754 binary16 value to float32.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := (h >> 10) & 0x1f
	frac := uint32(h & 0x3ff)

	var bits uint32
	switch {
	case exp == 0 && frac == 0:
		bits = sign
	case exp == 0x1f:
		bits = sign | 0xff<<23 | frac<<13
	case exp == 0:
		// Subnormal half -> normalize.
		e := 0
		f := frac
		for f&0x400 == 0 {
			f <<= 1
			e--
		}
		f &= 0x3ff
		bits = sign | uint32(int32(127-15+e+1))<<23 | f<<13
	default:
		bits = sign | (uint32(exp)-15+127)<<23 | frac<<13
	}
	return math.Float32frombits(bits)
}

func readFlatArray(pool []byte, off, length int, elemType ir.Type) ([]ir.Attribute, error) {
	width, ok := elemType.BitWidth()
	if !ok {
		return nil, fmt.Errorf("flat-array: unsupported element type %q", elemType)
	}
	nbytes := (width + 7) / 8
	if off < 0 || off > len(pool) || nbytes <= 0 || length < 0 || length > (len(pool)-off)/nbytes {
		return nil, fmt.Errorf("flat-array: length %d exceeds remaining pool capacity", length)
	}
	out := make([]ir.Attribute, 0, length)
	for i := 0; i < length; i++ {
		start := off + i*nbytes
		attr, err := readStandardScalar(pool, start, elemType)
		if err != nil {
			return nil, fmt.Errorf("flat-array entry %d: %w", i, err)
		}
		out = append(out, attr)
	}
	return out, nil
}

// readDenseElements decodes an 8-byte packed (dtype:8 | rank:56) header,
// an 8-byte element_count, rank 8-byte dimensions, and element_count
// standard elements of dtype (spec.md §4.C).
func readDenseElements(pool []byte, off int) (ir.Attribute, error) {
	r := reader.New(pool[off:])
	header, err := r.ReadU64()
	if err != nil {
		return ir.Attribute{}, fmt.Errorf("dense-elements: header: %w", err)
	}
	dtypeIdx := int(header & 0xff)
	rank := int(header >> 8)
	if dtypeIdx < 0 || dtypeIdx >= len(standardAttrTypes) {
		return ir.Attribute{}, fmt.Errorf("dense-elements: unknown dtype index %d", dtypeIdx)
	}
	dtype := ir.Type{Name: standardAttrTypes[dtypeIdx]}

	elementCount, err := r.ReadU64()
	if err != nil {
		return ir.Attribute{}, fmt.Errorf("dense-elements: element_count: %w", err)
	}

	if rank < 0 || rank > r.Remaining()/8 {
		return ir.Attribute{}, fmt.Errorf("dense-elements: rank %d exceeds remaining capacity", rank)
	}
	shape := make([]int64, 0, rank)
	for i := 0; i < rank; i++ {
		dim, err := r.ReadU64()
		if err != nil {
			return ir.Attribute{}, fmt.Errorf("dense-elements: dimension %d: %w", i, err)
		}
		shape = append(shape, int64(dim))
	}

	width, _ := dtype.BitWidth()
	nbytes := (width + 7) / 8
	if nbytes <= 0 || elementCount > uint64(r.Remaining())/uint64(nbytes) {
		return ir.Attribute{}, fmt.Errorf("dense-elements: element_count %d exceeds remaining capacity", elementCount)
	}
	elems := make([]float64, 0, elementCount)
	for i := uint64(0); i < elementCount; i++ {
		b, err := r.Take(nbytes)
		if err != nil {
			return ir.Attribute{}, fmt.Errorf("dense-elements: element %d: %w", i, err)
		}
		if dtype.IsFloat() {
			f, err := readFloat(b, width)
			if err != nil {
				return ir.Attribute{}, err
			}
			elems = append(elems, f)
		} else {
			elems = append(elems, float64(readUint(b)))
		}
	}

	return ir.Attribute{
		Kind: ir.AttrDenseElements,
		Dense: &ir.DenseElements{
			DType:    dtype,
			Shape:    shape,
			Elements: elems,
		},
	}, nil
}
