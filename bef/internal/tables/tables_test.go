package tables

import (
	"testing"

	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/internal/container"
	"github.com/tripwire/beflow/bef/ir"
)

func TestSplitNULStrings(t *testing.T) {
	buf := []byte("abc\x00def\x00")
	got := splitNULStrings(buf)
	want := []string{"abc", "def"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("splitNULStrings() = %v, want %v", got, want)
	}
}

func TestStringTableResolve(t *testing.T) {
	st := StringTable{buf: []byte("hello\x00world\x00")}
	s, err := st.Resolve(0)
	if err != nil || s != "hello" {
		t.Fatalf("Resolve(0) = (%q, %v)", s, err)
	}
	s, err = st.Resolve(6)
	if err != nil || s != "world" {
		t.Fatalf("Resolve(6) = (%q, %v)", s, err)
	}
}

// TestAttributeString exercises scenario S3 from spec.md §8: a string
// attribute "abc" whose reverse-varint length byte 0x03 sits at offset-1.
func TestAttributeString(t *testing.T) {
	pool := []byte{0x03, 'a', 'b', 'c'}
	offset := 1 // the payload starts right after the length byte

	e := AttrTypeEntry{Offset: offset, Kind: ir.AttrString}
	attr, err := decodeAttributeAt(pool, e, TypeTable{}, nil)
	if err != nil {
		t.Fatalf("decodeAttributeAt: %v", err)
	}
	if attr.Kind != ir.AttrString || attr.Str != "abc" {
		t.Fatalf("decodeAttributeAt() = %+v, want string \"abc\"", attr)
	}
}

func TestAttributeBool(t *testing.T) {
	pool := []byte{0x01}
	attr, err := decodeAttributeAt(pool, AttrTypeEntry{Offset: 0, Kind: ir.AttrBool}, TypeTable{}, nil)
	if err != nil || attr.Kind != ir.AttrBool || attr.Int != 1 {
		t.Fatalf("decodeAttributeAt(bool) = (%+v, %v)", attr, err)
	}
}

func TestAttributeStandardI32(t *testing.T) {
	types := TypeTable{entries: []ir.Type{{Name: "i32"}}}
	pool := []byte{0x2a, 0x00, 0x00, 0x00}
	attr, err := decodeAttributeAt(pool, AttrTypeEntry{Offset: 0, Kind: ir.AttrStandard, TypeHandle: 0}, types, nil)
	if err != nil || attr.Int != 42 {
		t.Fatalf("decodeAttributeAt(i32) = (%+v, %v)", attr, err)
	}
}

// TestAttributeFlatArray exercises the AttrFlatArray kind: a reverse
// length-prefixed run of two i32 elements.
func TestAttributeFlatArray(t *testing.T) {
	types := TypeTable{entries: []ir.Type{{Name: "i32"}}}
	pool := []byte{0x02, 0x07, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00}
	e := AttrTypeEntry{Offset: 1, Kind: ir.AttrFlatArray, TypeHandle: 0}

	attr, err := decodeAttributeAt(pool, e, types, nil)
	if err != nil {
		t.Fatalf("decodeAttributeAt: %v", err)
	}
	if attr.Kind != ir.AttrFlatArray || len(attr.Array) != 2 {
		t.Fatalf("decodeAttributeAt(flat array) = %+v", attr)
	}
	if attr.Array[0].Int != 7 || attr.Array[1].Int != 9 {
		t.Fatalf("flat array elements = %+v", attr.Array)
	}
}

// TestAttributeDenseElements exercises the AttrDenseElements kind: a packed
// (dtype, rank) header, an element count, one dimension, and two i32
// elements.
func TestAttributeDenseElements(t *testing.T) {
	pool := []byte{
		0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // header: dtype=i32(1), rank=1
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // element_count=2
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // dim[0]=2
		0x05, 0x00, 0x00, 0x00, // element[0]=5
		0x06, 0x00, 0x00, 0x00, // element[1]=6
	}

	attr, err := decodeAttributeAt(pool, AttrTypeEntry{Offset: 0, Kind: ir.AttrDenseElements}, TypeTable{}, nil)
	if err != nil {
		t.Fatalf("decodeAttributeAt: %v", err)
	}
	if attr.Kind != ir.AttrDenseElements || attr.Dense == nil {
		t.Fatalf("decodeAttributeAt(dense-elements) = %+v", attr)
	}
	if attr.Dense.DType.Name != "i32" {
		t.Fatalf("dense-elements dtype = %q, want i32", attr.Dense.DType.Name)
	}
	if len(attr.Dense.Shape) != 1 || attr.Dense.Shape[0] != 2 {
		t.Fatalf("dense-elements shape = %v, want [2]", attr.Dense.Shape)
	}
	if len(attr.Dense.Elements) != 2 || attr.Dense.Elements[0] != 5 || attr.Dense.Elements[1] != 6 {
		t.Fatalf("dense-elements elements = %v, want [5 6]", attr.Dense.Elements)
	}
}

// TestLoadAttributesOffsetArrayOfDenseElements covers the boundary case
// spec.md §8 names explicitly: an attribute pool with exactly one
// offset-array whose single element is itself a dense-elements attribute.
// loadAttributes must decode the dense-elements entry first (ascending
// offset order) so the offset-array's reference to it is already resolved.
func TestLoadAttributesOffsetArrayOfDenseElements(t *testing.T) {
	pool := []byte{
		// dense-elements attribute at offset 0
		0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // header: dtype=i32(1), rank=1
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // element_count=2
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // dim[0]=2
		0x05, 0x00, 0x00, 0x00, // element[0]=5
		0x06, 0x00, 0x00, 0x00, // element[1]=6
		// offset-array at offset 33, one entry referencing offset 0
		0x01,                   // reverse length prefix: 1 entry
		0x00, 0x00, 0x00, 0x00, // childOff=0
		0x00, 0x00, 0x00, 0x00, // descriptor, unused (child already decoded)
	}
	attrTypes := []byte{
		0x02,                   // count=2
		0x00, 0x00, 0x00, 0x00, // entry0.offset=0
		0x04, 0x00, 0x00, 0x00, // entry0.descriptor: kind=AttrDenseElements(4)
		0x21, 0x00, 0x00, 0x00, // entry1.offset=33
		0x06, 0x00, 0x00, 0x00, // entry1.descriptor: kind=AttrOffsetArray(6)
	}

	bag := diag.NewBag(ir.SourceLoc{})
	resolved, err := loadAttributes(pool, attrTypes, TypeTable{}, bag, ir.Strict)
	if err != nil {
		t.Fatalf("loadAttributes: %v", err)
	}

	outer, ok := resolved[33]
	if !ok {
		t.Fatal("expected an attribute resolved at offset 33")
	}
	if outer.Kind != ir.AttrOffsetArray || len(outer.Array) != 1 {
		t.Fatalf("offset-array attribute = %+v", outer)
	}
	child := outer.Array[0]
	if child.Kind != ir.AttrDenseElements || child.Dense == nil {
		t.Fatalf("expected the offset-array's element to be a dense-elements attribute, got %+v", child)
	}
	if len(child.Dense.Elements) != 2 || child.Dense.Elements[0] != 5 || child.Dense.Elements[1] != 6 {
		t.Fatalf("nested dense-elements = %+v", child.Dense)
	}
}

// TestReadFloatHalfPrecision exercises readFloat's 16-bit path (spec.md §9's
// flagged divergence): IEEE-754 binary16 1.0 is 0x3C00.
func TestReadFloatHalfPrecision(t *testing.T) {
	got, err := readFloat([]byte{0x00, 0x3C}, 16)
	if err != nil {
		t.Fatalf("readFloat: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("readFloat(half 1.0) = %v, want 1.0", got)
	}
}

// TestHalfToFloat32Zero covers the zero/denormal-free fast path of the
// half-to-float32 conversion.
func TestHalfToFloat32Zero(t *testing.T) {
	if got := halfToFloat32(0); got != 0 {
		t.Fatalf("halfToFloat32(0) = %v, want 0", got)
	}
}

func TestLoadAttributesMissingAttributeTypes(t *testing.T) {
	bag := diag.NewBag(ir.SourceLoc{})
	resolved, err := loadAttributes([]byte{0xAA}, nil, TypeTable{}, bag, ir.Lenient)
	if err != nil {
		t.Fatalf("loadAttributes: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("expected no resolved attributes when AttributeTypes is absent, got %d", len(resolved))
	}
}

func TestLoadFunctionIndexEmpty(t *testing.T) {
	// count = 0
	fi, err := loadFunctionIndex([]byte{0x00}, StringTable{}, TypeTable{})
	if err != nil {
		t.Fatalf("loadFunctionIndex: %v", err)
	}
	if len(fi) != 0 {
		t.Fatalf("expected 0 functions, got %d", len(fi))
	}
}

func TestLoadFunctionIndexOneNamedFunction(t *testing.T) {
	strs := StringTable{buf: []byte("f\x00")}
	types := TypeTable{entries: []ir.Type{{Name: "i32"}}}

	// count=1; kind=BEF(0); function_offset=0; name_offset=0 ("f");
	// arg_types=[0] (len 1, handle 0); result_types=[0].
	payload := []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00}
	fi, err := loadFunctionIndex(payload, strs, types)
	if err != nil {
		t.Fatalf("loadFunctionIndex: %v", err)
	}
	if len(fi) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fi))
	}
	f := fi[0]
	if !f.Named() || f.Name != "f" {
		t.Fatalf("expected named function %q, got %+v", "f", f)
	}
	if len(f.Type.Args) != 1 || f.Type.Args[0].Name != "i32" {
		t.Fatalf("expected one i32 arg, got %+v", f.Type.Args)
	}
}

func TestSectionIDString(t *testing.T) {
	if container.Strings.String() != "Strings" {
		t.Fatalf("String() = %q", container.Strings.String())
	}
	if got := container.SectionID(200).String(); got != "unknown(200)" {
		t.Fatalf("String() for unknown id = %q", got)
	}
}
