// Package container implements the BEF outer-container parse (component B,
// §4.B of spec.md): the two-byte magic header followed by a flat sequence
// of ⟨id, varint length, payload⟩ sections.
package container

import (
	"fmt"

	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/internal/reader"
	"github.com/tripwire/beflow/bef/ir"
)

// SectionID is one of the closed set of section identifiers spec.md §3
// names. New identifiers are additive — an id outside this set is retained,
// not rejected (§4.B, §9 "Unknown section identifiers").
type SectionID byte

const (
	FormatVersion SectionID = iota
	LocationFilenames
	LocationPositions
	Strings
	Attributes
	Kernels
	Types
	Functions
	FunctionIndex
	AttributeTypes
	AttributeNames
	RegisterTypes
)

var knownNames = map[SectionID]string{
	FormatVersion:      "FormatVersion",
	LocationFilenames:  "LocationFilenames",
	LocationPositions:  "LocationPositions",
	Strings:            "Strings",
	Attributes:         "Attributes",
	Kernels:            "Kernels",
	Types:              "Types",
	Functions:          "Functions",
	FunctionIndex:      "FunctionIndex",
	AttributeTypes:     "AttributeTypes",
	AttributeNames:     "AttributeNames",
	RegisterTypes:      "RegisterTypes",
}

func (id SectionID) String() string {
	if name, ok := knownNames[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(id))
}

// optionalSections is the set of sections whose absence is a warning, not
// an error; components downstream degrade gracefully per §4.B.
var optionalSections = []SectionID{AttributeTypes, AttributeNames, RegisterTypes}

// magic1, magic2 are the two fixed bytes required at the start of a BEF
// file (spec.md §8 scenario S1: "BE F0 01 00 …").
const (
	magic1 = 0xBE
	magic2 = 0xF0
)

// Sections maps each section identifier present in the file to its
// borrowed payload. Duplicate ids are last-writer-wins (§4.B).
type Sections map[SectionID][]byte

// Split parses the outer container out of buf, recording a warning in bag
// for every missing optional section.
func Split(buf []byte, bag *diag.Bag) (Sections, error) {
	r := reader.New(buf)
	m1, err := r.ReadU8()
	if err != nil {
		return nil, bag.Fail(diag.BadMagic, ir.SourceLoc{}, "reading magic byte 1: %v", err)
	}
	m2, err := r.ReadU8()
	if err != nil {
		return nil, bag.Fail(diag.BadMagic, ir.SourceLoc{}, "reading magic byte 2: %v", err)
	}
	if m1 != magic1 || m2 != magic2 {
		return nil, bag.Fail(diag.BadMagic, ir.SourceLoc{}, "bad magic: got %02x %02x, want %02x %02x", m1, m2, magic1, magic2)
	}

	sections := Sections{}
	for !r.Empty() {
		sec, err := r.ReadSection()
		if err != nil {
			return nil, bag.Fail(diag.Truncated, ir.SourceLoc{}, "reading section header: %v", err)
		}
		id := SectionID(sec.ID)
		if _, ok := knownNames[id]; !ok {
			bag.Warnf(diag.UnknownSection, "section id %d is outside the known set; skipping its contents", sec.ID)
		}
		sections[id] = sec.Payload
	}

	for _, id := range optionalSections {
		if _, ok := sections[id]; !ok {
			bag.Warnf(diag.MissingOptionalTable, "section %s is absent; decoding will degrade gracefully", id)
		}
	}

	return sections, nil
}
