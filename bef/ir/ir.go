// Package ir defines the decoded, structured intermediate representation a
// BEF file reconstructs into: modules, functions, regions, blocks,
// operations, values, and attributes. It owns no decoding logic — that
// lives in bef/internal/{tables,body,stitch} — only the typed, strongly
// indexed shape the decoder builds and the caller (the out-of-scope
// execution runtime) consumes.
//
// Cross-entity references use strongly-typed handle newtypes rather than
// raw ints or uintptrs, so a string offset can never be passed where a type
// index was expected — the same discipline the teacher repo applies to its
// storage.HostID/storage.AlertID-shaped identifiers.
package ir

import "fmt"

// StringHandle is a byte offset into the Strings pool.
type StringHandle int

// TypeHandle is a positional index into the Types pool.
type TypeHandle int

// KernelNameHandle is a positional index into the Kernels pool.
type KernelNameHandle int

// FunctionHandle is a positional index into the FunctionIndex.
type FunctionHandle int

// AttrOffset is a byte offset into the Attributes pool.
type AttrOffset int

// LocationHandle is a byte offset into the LocationPositions payload.
type LocationHandle int

// Type is a resolved IR type. BEF types are represented textually (parsed
// from a string-pool entry); the decoder core does not interpret them
// beyond the handful of scalar names attributes need (i1/i32/i64/f16/f32/
// f64) — richer type structure belongs to the out-of-scope MLIR-level
// layer.
type Type struct {
	Name string
}

// None is the opaque placeholder type assigned to a register when
// RegisterTypes is missing or doesn't cover it (§4.C lenient degradation).
var None = Type{Name: "none"}

func (t Type) String() string { return t.Name }

// IsNone reports whether t is the opaque placeholder type.
func (t Type) IsNone() bool { return t.Name == None.Name }

// scalarWidths maps the six standard-attribute scalar type names to their
// bit width, used by the attribute decoder for fixed-width reads.
var scalarWidths = map[string]int{
	"i1": 1, "i32": 32, "i64": 64,
	"f16": 16, "f32": 32, "f64": 64,
}

// BitWidth returns the bit width of a scalar type name and whether t is one
// of the six standard-attribute scalar types.
func (t Type) BitWidth() (int, bool) {
	w, ok := scalarWidths[t.Name]
	return w, ok
}

// IsFloat reports whether t is one of the float scalar types.
func (t Type) IsFloat() bool {
	switch t.Name {
	case "f16", "f32", "f64":
		return true
	}
	return false
}

// FuncType is a function's signature: ordered argument and result types.
type FuncType struct {
	Args    []Type
	Results []Type
}

// SourceLoc is a resolved source location. The zero value means "no
// location was available"; callers should fall back to the decode's
// origin_location in that case (spec.md §6).
type SourceLoc struct {
	Filename string
	Line     int
	Column   int
}

func (l SourceLoc) String() string {
	if l.Filename == "" && l.Line == 0 && l.Column == 0 {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.Column)
}

// AttrKind identifies the shape of an Attribute's payload, mirroring the
// packed descriptor kind bits in the AttributeTypes section (spec.md §3).
type AttrKind int

const (
	AttrStandard AttrKind = iota
	AttrBool
	AttrString
	AttrTypeAttr
	AttrDenseElements
	AttrFlatArray
	AttrOffsetArray
)

func (k AttrKind) String() string {
	switch k {
	case AttrStandard:
		return "standard"
	case AttrBool:
		return "bool"
	case AttrString:
		return "string"
	case AttrTypeAttr:
		return "type"
	case AttrDenseElements:
		return "dense_elements"
	case AttrFlatArray:
		return "flat_array"
	case AttrOffsetArray:
		return "offset_array"
	default:
		return "unknown"
	}
}

// DenseElements is a ranked tensor constant: a dtype, a shape, and a flat
// row-major payload of scalar elements.
type DenseElements struct {
	DType    Type
	Shape    []int64
	Elements []float64
}

// Attribute is one decoded attribute value. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Attribute struct {
	Kind AttrKind

	Int    int64   // AttrStandard (integer scalar types), AttrBool (0/1)
	Float  float64 // AttrStandard (float scalar types)
	Str    string  // AttrString
	AsType Type    // AttrTypeAttr
	Dense  *DenseElements
	Array  []Attribute // AttrFlatArray, AttrOffsetArray

	// ScalarType is the resolved scalar type for AttrStandard/AttrFlatArray
	// element attributes (e.g. "i32", "f64").
	ScalarType Type

	// Placeholder marks an attribute the decoder could not resolve (missing
	// AttributeTypes, unknown offset, or unknown descriptor kind) and
	// substituted 0xDEADBEEF for, per spec.md §9's documented — if possibly
	// unintended — degraded-decode behavior.
	Placeholder bool
}

// PlaceholderValue is the sentinel integer substituted for attributes the
// decoder cannot resolve.
const PlaceholderValue = 0xDEADBEEF

// Value is one SSA-like value: either a block argument or a named result of
// some earlier operation in the same block.
type Value struct {
	Type Type

	// Def is the operation that produced this value, or nil if it is a
	// block argument.
	Def *Operation
	// Index is the position of this value within Def.Results, or within
	// the owning Block.Args if Def is nil.
	Index int
}

// Operation is one decoded kernel, turned into IR form.
type Operation struct {
	Name string
	Loc  SourceLoc

	Operands []*Value
	Results  []*Value
	Attrs    map[string]Attribute
	// AttrOrder preserves the order attributes were declared in, since
	// map iteration order is not stable and diagnostics/printing should be
	// deterministic.
	AttrOrder []string

	// NonStrict marks a kernel whose non-strict bit (§4.D step 9) was set.
	NonStrict bool

	// Regions holds this operation's nested regions, in declaration order.
	// Slots for unnamed function references start nil and are filled in by
	// the region stitcher (component E); a nil slot after stitching is a
	// bug, not a valid end state (see diag.UnresolvedRegion).
	Regions []*Region

	// Callee is set when one of this operation's function references named
	// a function (rather than an unnamed, inlined region).
	Callee []string
}

// Block is an ordered sequence of operations with a fixed argument list.
type Block struct {
	Args []*Value
	Ops  []*Operation
}

// Region is an ordered list of blocks. BEF regions are always
// single-block in the decoded core (spec.md §3: "a body region containing
// one block"); Blocks is a slice for structural symmetry with a future
// multi-block IR, not because BEF encodes more than one.
type Region struct {
	Loc    SourceLoc
	Blocks []*Block
}

// Function is one top-level entity owned by a Module.
type Function struct {
	Name   string
	Type   FuncType
	Native bool
	// Region is nil iff Native is true.
	Region *Region
}

// Module is the top of the ownership tree: it exclusively owns its
// functions, each function exclusively owns its region, each region its
// blocks, each block its operations (spec.md §3, "Ownership").
type Module struct {
	Functions []*Function
}
