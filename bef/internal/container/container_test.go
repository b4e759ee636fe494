package container

import (
	"testing"

	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/ir"
)

func section(id SectionID, payload []byte) []byte {
	out := []byte{byte(id), byte(len(payload))}
	return append(out, payload...)
}

func TestSplitBadMagic(t *testing.T) {
	bag := diag.NewBag(ir.SourceLoc{})
	_, err := Split([]byte{0x00, 0x00}, bag)
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
	var derr *diag.Error
	if !as(err, &derr) || derr.Kind() != diag.BadMagic {
		t.Fatalf("expected BadMagic, got %v", err)
	}
}

func TestSplitTruncatedMagic(t *testing.T) {
	bag := diag.NewBag(ir.SourceLoc{})
	if _, err := Split([]byte{0xBE}, bag); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestSplitEmptyFunctionIndex(t *testing.T) {
	buf := []byte{magic1, magic2}
	buf = append(buf, section(FormatVersion, []byte{0x00})...)
	buf = append(buf, section(FunctionIndex, []byte{0x00})...)
	bag := diag.NewBag(ir.SourceLoc{})

	sections, err := Split(buf, bag)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, ok := sections[FunctionIndex]; !ok {
		t.Fatal("expected FunctionIndex section to be present")
	}

	var missing int
	for _, e := range bag.Entries() {
		if e.Kind == diag.MissingOptionalTable {
			missing++
		}
	}
	if missing != 3 {
		t.Fatalf("expected 3 MissingOptionalTable warnings (AttributeTypes, AttributeNames, RegisterTypes), got %d", missing)
	}
}

func TestSplitDuplicateSectionLastWriterWins(t *testing.T) {
	buf := []byte{magic1, magic2}
	buf = append(buf, section(FormatVersion, []byte{0x00})...)
	buf = append(buf, section(FormatVersion, []byte{0x01})...)
	bag := diag.NewBag(ir.SourceLoc{})

	sections, err := Split(buf, bag)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if got := sections[FormatVersion][0]; got != 0x01 {
		t.Fatalf("expected last-writer-wins payload 0x01, got %#x", got)
	}
}

// TestSplitUnknownSectionWarns verifies a section id outside the closed set
// of 12 is kept (§4.B: additive, not rejected) but recorded as a warning
// rather than silently accepted.
func TestSplitUnknownSectionWarns(t *testing.T) {
	const unknownID = SectionID(99)
	buf := []byte{magic1, magic2}
	buf = append(buf, section(FormatVersion, []byte{0x00})...)
	buf = append(buf, section(unknownID, []byte{0xAB})...)
	bag := diag.NewBag(ir.SourceLoc{})

	sections, err := Split(buf, bag)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, ok := sections[unknownID]; !ok {
		t.Fatal("expected the unknown section's payload to still be retained")
	}

	var warnings int
	for _, e := range bag.Entries() {
		if e.Kind == diag.UnknownSection {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected 1 UnknownSection warning, got %d", warnings)
	}
}

// as is a tiny errors.As shim kept local to avoid importing errors just for
// this one assertion in tests.
func as(err error, target **diag.Error) bool {
	e, ok := err.(*diag.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
