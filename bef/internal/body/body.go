// Package body implements the function-body decoder (component D, §4.D of
// spec.md) — the largest single piece of the pipeline. For each entry in
// the function index it reconstructs a register table, a kernel table, and
// a stream of kernel entries, turning each kernel into an ir.Operation and
// producing one unrooted ir.Region per BEF-bodied function. Region
// ownership is handed off to component E (bef/internal/stitch), which
// either promotes a region to a named top-level function or inlines it into
// the operation that referenced it.
package body

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/internal/container"
	"github.com/tripwire/beflow/bef/internal/reader"
	"github.com/tripwire/beflow/bef/internal/tables"
	"github.com/tripwire/beflow/bef/ir"
)

// DeferredRef records one unnamed nested-region reference discovered while
// decoding a kernel's function operands (§4.D step 8). Op.Regions[Slot]
// starts nil; the region stitcher fills it with the region decoded for
// FuncIdx once that function's own body has been processed (§4.E pass 2).
type DeferredRef struct {
	Op      *ir.Operation
	Slot    int
	FuncIdx int
}

// Result is everything DecodeAll produces.
type Result struct {
	// Regions holds one decoded region per FunctionIndex entry, in
	// FunctionIndex order. Native functions get a nil entry.
	Regions  []*ir.Region
	Deferred []DeferredRef
}

type registerState int

const (
	regDeclared registerState = iota
	regDefined
)

// register is the function-local bookkeeping for one BEF register: the
// Declared → Defined → Used* state machine of spec.md §4.D.
type register struct {
	typ          ir.Type
	declaredUses int
	state        registerState
	value        *ir.Value
	usedBy       []int // kernel indices the producer declared as consumers
	actualUses   int   // operand references actually observed
}

type kernelTableEntry struct {
	// Offset is a word index (not a byte offset) into the kernel stream.
	Offset      int
	NumOperands int
}

type decoder struct {
	tabs      *tables.Tables
	bag       *diag.Bag
	policy    ir.Policy
	log       *slog.Logger
	attrNames *reader.Reader
	deferred  []DeferredRef
}

// DecodeAll decodes every BEF-bodied function in tabs.FunctionIndex order.
func DecodeAll(sections container.Sections, tabs *tables.Tables, bag *diag.Bag, policy ir.Policy, log *slog.Logger) (*Result, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &decoder{tabs: tabs, bag: bag, policy: policy, log: log, attrNames: tabs.AttributeNames}

	payload := sections[container.Functions]
	regions := make([]*ir.Region, len(tabs.FunctionIndex))

	for i, entry := range tabs.FunctionIndex {
		if entry.Kind == tables.FunctionNative {
			d.log.Debug("skipping native function body", "index", i, "name", entry.Name)
			continue
		}
		if entry.FunctionOffset < 0 || entry.FunctionOffset > len(payload) {
			return nil, bag.Fail(diag.FunctionOutOfRange, ir.SourceLoc{}, "function %d: offset %d out of range [0,%d]", i, entry.FunctionOffset, len(payload))
		}
		region, err := d.decodeFunctionBody(i, entry, payload[entry.FunctionOffset:])
		if err != nil {
			return nil, err
		}
		regions[i] = region
		d.log.Debug("decoded function body", "index", i, "name", entry.Name, "ops", len(region.Blocks[0].Ops))
	}

	return &Result{Regions: regions, Deferred: d.deferred}, nil
}

func (d *decoder) decodeFunctionBody(idx int, entry tables.FunctionEntry, payload []byte) (*ir.Region, error) {
	r := reader.New(payload)

	locOff, err := r.ReadVarint()
	if err != nil {
		return nil, d.bag.Fail(diag.Truncated, ir.SourceLoc{}, "function %d: location offset: %v", idx, err)
	}
	loc, lerr := d.tabs.Locations.Resolve(ir.LocationHandle(locOff))
	if lerr != nil {
		d.bag.Warn(diag.BadSection, ir.SourceLoc{}, "function %d: %v; using origin location", idx, lerr)
		loc = d.bag.Origin()
	}

	regs, err := d.readRegisterTable(idx, r)
	if err != nil {
		return nil, err
	}

	kernelTable, err := readKernelTable(r)
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: kernel table: %v", idx, err)
	}

	resultRegs, err := readResultRegisters(r, len(entry.Type.Results), len(regs))
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: result registers: %v", idx, err)
	}

	if err := r.ReadAligned(4); err != nil {
		return nil, d.bag.Fail(diag.Truncated, loc, "function %d: aligning to kernel stream: %v", idx, err)
	}

	words, err := wordsFromBytes(r.Buf()[r.Pos():])
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: kernel stream: %v", idx, err)
	}

	block := &ir.Block{}
	firstOrdinary := 0
	if len(entry.Type.Args) > 0 {
		if len(kernelTable) == 0 {
			return nil, d.bag.Fail(diag.BadSection, loc, "function %d: expected an arguments pseudo-kernel, kernel table is empty", idx)
		}
		args, err := d.decodeArgumentsPseudoKernel(idx, words, kernelTable[0], regs, entry.Type.Args, loc)
		if err != nil {
			return nil, err
		}
		block.Args = args
		firstOrdinary = 1
	}

	for k := firstOrdinary; k < len(kernelTable); k++ {
		op, err := d.decodeKernel(idx, k, words, kernelTable[k], regs, loc)
		if err != nil {
			return nil, err
		}
		block.Ops = append(block.Ops, op)
	}

	ret, err := d.buildReturn(idx, resultRegs, regs, loc)
	if err != nil {
		return nil, err
	}
	block.Ops = append(block.Ops, ret)

	d.checkDeclaredUses(idx, regs, loc)

	return &ir.Region{Loc: loc, Blocks: []*ir.Block{block}}, nil
}

func (d *decoder) readRegisterTable(idx int, r *reader.Reader) ([]*register, error) {
	var regTypes []ir.Type
	if idx < len(d.tabs.RegisterTypes) {
		regTypes = d.tabs.RegisterTypes[idx]
	}

	uses, err := readVarintArray(r)
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, ir.SourceLoc{}, "function %d: register-uses array: %v", idx, err)
	}

	regs := make([]*register, len(uses))
	for i, u := range uses {
		typ := ir.None
		if i < len(regTypes) {
			typ = regTypes[i]
		}
		regs[i] = &register{typ: typ, declaredUses: int(u), state: regDeclared}
	}
	return regs, nil
}

func readVarintArray(r *reader.Reader) ([]uint64, error) {
	n, err := r.ReadCount(1)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		v, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func readKernelTable(r *reader.Reader) ([]kernelTableEntry, error) {
	n, err := r.ReadCount(2) // each entry is at least two one-byte varints
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]kernelTableEntry, n)
	for i := uint64(0); i < n; i++ {
		off, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: offset: %w", i, err)
		}
		numOperands, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: num_operands: %w", i, err)
		}
		out[i] = kernelTableEntry{Offset: int(off), NumOperands: int(numOperands)}
	}
	return out, nil
}

func readResultRegisters(r *reader.Reader, count, numRegs int) ([]int, error) {
	if count < 0 || count > r.Remaining() {
		return nil, fmt.Errorf("result count %d exceeds remaining capacity (%d bytes left)", count, r.Remaining())
	}
	out := make([]int, count)
	for i := 0; i < count; i++ {
		v, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if int(v) < 0 || int(v) >= numRegs {
			return nil, fmt.Errorf("entry %d: register index %d out of range [0,%d)", i, v, numRegs)
		}
		out[i] = int(v)
	}
	return out, nil
}

// wordsFromBytes views b as an array of little-endian 32-bit words, the
// shape the kernel entry stream is addressed in (§4.D step 6).
func wordsFromBytes(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(b))
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}

// kernelHeader is the fixed-shape prefix of a kernel entry (§3 "Kernel
// entry"): name and location handles, the four field counts, and the
// per-result used-by counts that precede the flat argument/attribute/
// function/result stream.
type kernelHeader struct {
	nameHandle     uint32
	locationOffset uint32
	numArgs        int
	numAttrs       int
	numFuncs       int
	numResults     int
	usedByCounts   []int
	streamStart    int // word index where the flat stream begins
}

func readKernelHeader(words []uint32, wordOffset int) (kernelHeader, error) {
	if wordOffset < 0 || wordOffset+6 > len(words) {
		return kernelHeader{}, fmt.Errorf("header at word %d out of range (have %d words)", wordOffset, len(words))
	}
	h := kernelHeader{
		nameHandle:     words[wordOffset],
		locationOffset: words[wordOffset+1],
		numArgs:        int(words[wordOffset+2]),
		numAttrs:       int(words[wordOffset+3]),
		numFuncs:       int(words[wordOffset+4]),
		numResults:     int(words[wordOffset+5]),
	}
	pos := wordOffset + 6
	if h.numResults < 0 || pos+h.numResults > len(words) {
		return kernelHeader{}, fmt.Errorf("used_by_counts at word %d out of range", pos)
	}
	h.usedByCounts = make([]int, h.numResults)
	for i := 0; i < h.numResults; i++ {
		h.usedByCounts[i] = int(words[pos+i])
	}
	h.streamStart = pos + h.numResults
	return h, nil
}

// kernelFields is the decoded flat u32 stream that follows a kernelHeader:
// arguments, then attribute offsets, then function indices, then results,
// then one used-by list per result — in that order, per §4.D's "cursor
// arithmetic is the only way the format indicates field boundaries."
type kernelFields struct {
	argRegIdxs      []int
	attrOffsets     []uint32
	funcIdxs        []int
	resultRegIdxs   []int
	usedByPerResult [][]int
}

func readKernelFields(words []uint32, h kernelHeader) (kernelFields, error) {
	pos := h.streamStart
	readInts := func(n int) ([]int, error) {
		if n < 0 || pos+n > len(words) {
			return nil, fmt.Errorf("stream out of range at word %d (need %d, have %d)", pos, n, len(words)-pos)
		}
		out := make([]int, n)
		for i := 0; i < n; i++ {
			out[i] = int(words[pos+i])
		}
		pos += n
		return out, nil
	}

	var f kernelFields
	var err error
	if f.argRegIdxs, err = readInts(h.numArgs); err != nil {
		return kernelFields{}, fmt.Errorf("arguments: %w", err)
	}
	attrWords, err := readInts(h.numAttrs)
	if err != nil {
		return kernelFields{}, fmt.Errorf("attributes: %w", err)
	}
	f.attrOffsets = make([]uint32, len(attrWords))
	for i, w := range attrWords {
		f.attrOffsets[i] = uint32(w)
	}
	if f.funcIdxs, err = readInts(h.numFuncs); err != nil {
		return kernelFields{}, fmt.Errorf("functions: %w", err)
	}
	if f.resultRegIdxs, err = readInts(h.numResults); err != nil {
		return kernelFields{}, fmt.Errorf("results: %w", err)
	}
	f.usedByPerResult = make([][]int, h.numResults)
	for i, cnt := range h.usedByCounts {
		ub, err := readInts(cnt)
		if err != nil {
			return kernelFields{}, fmt.Errorf("used-by list for result %d: %w", i, err)
		}
		f.usedByPerResult[i] = ub
	}
	return f, nil
}

// defineRegister transitions regs[regIdx] from Declared to Defined,
// rejecting an out-of-range index (UndefinedRegister) or a register that
// was already Defined (RegisterRedefined) — spec.md §4.D's state machine.
func (d *decoder) defineRegister(fnIdx, regIdx int, regs []*register, loc ir.SourceLoc, context string) (*register, error) {
	if regIdx < 0 || regIdx >= len(regs) {
		return nil, d.bag.Fail(diag.UndefinedRegister, loc, "function %d: %s: references out-of-range register %d", fnIdx, context, regIdx)
	}
	reg := regs[regIdx]
	if reg.state == regDefined {
		return nil, d.bag.Fail(diag.RegisterRedefined, loc, "function %d: %s: register %d redefined", fnIdx, context, regIdx)
	}
	reg.state = regDefined
	return reg, nil
}

// resolveProducedType reconciles a register's pre-declared type with the
// one independent source of a kernel's "produced type" the decoder has
// without the out-of-scope kernel registry: the function signature, for
// the synthetic arguments pseudo-kernel. A None declared type silently
// adopts it (§4.D step 9); any other mismatch is a warning, never fatal
// (§8 invariant 2's sibling rule for types).
func (d *decoder) resolveProducedType(fnIdx, argIdx int, declared, fromSignature ir.Type, loc ir.SourceLoc) ir.Type {
	if declared.IsNone() {
		return fromSignature
	}
	if declared != fromSignature {
		d.bag.Warn(diag.RegisterTypeMismatch, loc, "function %d: argument %d: register declared type %q, function signature declares %q", fnIdx, argIdx, declared, fromSignature)
	}
	return fromSignature
}

func (d *decoder) decodeArgumentsPseudoKernel(fnIdx int, words []uint32, entry kernelTableEntry, regs []*register, argTypes []ir.Type, loc ir.SourceLoc) ([]*ir.Value, error) {
	h, err := readKernelHeader(words, entry.Offset)
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: arguments pseudo-kernel: %v", fnIdx, err)
	}
	if h.numResults != len(argTypes) {
		d.bag.Warn(diag.BadSection, loc, "function %d: arguments pseudo-kernel declares %d results, function type has %d arguments", fnIdx, h.numResults, len(argTypes))
	}
	fields, err := readKernelFields(words, h)
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: arguments pseudo-kernel: %v", fnIdx, err)
	}

	args := make([]*ir.Value, 0, len(fields.resultRegIdxs))
	for p, regIdx := range fields.resultRegIdxs {
		reg, err := d.defineRegister(fnIdx, regIdx, regs, loc, "arguments pseudo-kernel")
		if err != nil {
			return nil, err
		}
		typ := reg.typ
		if p < len(argTypes) {
			typ = d.resolveProducedType(fnIdx, p, reg.typ, argTypes[p], loc)
		}
		val := &ir.Value{Type: typ, Index: p}
		reg.value = val
		if p < len(fields.usedByPerResult) {
			reg.usedBy = append(reg.usedBy, fields.usedByPerResult[p]...)
		}
		args = append(args, val)
	}
	return args, nil
}

func (d *decoder) decodeKernel(fnIdx, kernelIdx int, words []uint32, entry kernelTableEntry, regs []*register, fallbackLoc ir.SourceLoc) (*ir.Operation, error) {
	h, err := readKernelHeader(words, entry.Offset)
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, fallbackLoc, "function %d: kernel %d: %v", fnIdx, kernelIdx, err)
	}
	name, err := d.tabs.Kernels.Resolve(ir.KernelNameHandle(h.nameHandle))
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, fallbackLoc, "function %d: kernel %d: name: %v", fnIdx, kernelIdx, err)
	}
	loc, lerr := d.tabs.Locations.Resolve(ir.LocationHandle(h.locationOffset))
	if lerr != nil {
		d.bag.Warn(diag.BadSection, fallbackLoc, "function %d: kernel %d (%s): %v; using function location", fnIdx, kernelIdx, name, lerr)
		loc = fallbackLoc
	}
	if entry.NumOperands != h.numArgs {
		d.bag.Warn(diag.BadSection, loc, "function %d: kernel %d (%s): kernel-table num_operands=%d disagrees with entry num_arguments=%d", fnIdx, kernelIdx, name, entry.NumOperands, h.numArgs)
	}

	fields, err := readKernelFields(words, h)
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: kernel %d (%s): %v", fnIdx, kernelIdx, name, err)
	}

	op := &ir.Operation{Name: name, Loc: loc}

	op.Operands = make([]*ir.Value, 0, len(fields.argRegIdxs))
	for _, regIdx := range fields.argRegIdxs {
		if regIdx < 0 || regIdx >= len(regs) {
			return nil, d.bag.Fail(diag.UndefinedRegister, loc, "function %d: kernel %d (%s): operand references out-of-range register %d", fnIdx, kernelIdx, name, regIdx)
		}
		reg := regs[regIdx]
		if reg.state != regDefined {
			return nil, d.bag.Fail(diag.UndefinedRegister, loc, "function %d: kernel %d (%s): operand register %d used before its definition", fnIdx, kernelIdx, name, regIdx)
		}
		reg.actualUses++
		op.Operands = append(op.Operands, reg.value)
	}

	nonStrict, attrNames, err := d.readAttributeNames(len(fields.attrOffsets))
	if err != nil {
		return nil, d.bag.Fail(diag.BadSection, loc, "function %d: kernel %d (%s): attribute names: %v", fnIdx, kernelIdx, name, err)
	}
	op.NonStrict = nonStrict

	op.Attrs = make(map[string]ir.Attribute, len(fields.attrOffsets))
	op.AttrOrder = make([]string, 0, len(fields.attrOffsets))
	for i, off := range fields.attrOffsets {
		attrName := attrNames[i]
		attr, ok := d.tabs.Attrs[ir.AttrOffset(off)]
		if !ok {
			if d.policy == ir.Strict {
				return nil, d.bag.Fail(diag.UnknownAttribute, loc, "function %d: kernel %d (%s): attribute %q at offset %d not found", fnIdx, kernelIdx, name, attrName, off)
			}
			d.bag.Warn(diag.UnknownAttribute, loc, "function %d: kernel %d (%s): attribute %q at offset %d not found; substituting placeholder", fnIdx, kernelIdx, name, attrName, off)
			attr = ir.Attribute{Kind: ir.AttrStandard, Int: ir.PlaceholderValue, Placeholder: true}
		}
		op.Attrs[attrName] = attr
		op.AttrOrder = append(op.AttrOrder, attrName)
	}

	for _, fi := range fields.funcIdxs {
		if fi < 0 || fi >= len(d.tabs.FunctionIndex) {
			return nil, d.bag.Fail(diag.FunctionOutOfRange, loc, "function %d: kernel %d (%s): function reference %d out of range", fnIdx, kernelIdx, name, fi)
		}
		target := d.tabs.FunctionIndex[fi]
		if target.Named() {
			op.Callee = append(op.Callee, target.Name)
			continue
		}
		slot := len(op.Regions)
		op.Regions = append(op.Regions, nil)
		d.deferred = append(d.deferred, DeferredRef{Op: op, Slot: slot, FuncIdx: fi})
	}

	op.Results = make([]*ir.Value, 0, len(fields.resultRegIdxs))
	for p, regIdx := range fields.resultRegIdxs {
		reg, err := d.defineRegister(fnIdx, regIdx, regs, loc, fmt.Sprintf("kernel %d (%s)", kernelIdx, name))
		if err != nil {
			return nil, err
		}
		val := &ir.Value{Type: reg.typ, Def: op, Index: p}
		reg.value = val
		if p < len(fields.usedByPerResult) {
			reg.usedBy = append(reg.usedBy, fields.usedByPerResult[p]...)
		}
		op.Results = append(op.Results, val)
	}

	return op, nil
}

// readAttributeNames consumes the non-strict marker byte and count attribute
// name handles from the shared AttributeNames cursor (§4.D step 8). When
// the section is absent it degrades per §4.B/§9: no marker is available
// (non-strict defaults to false) and names are synthesized attr0, attr1, ….
func (d *decoder) readAttributeNames(count int) (bool, []string, error) {
	if d.attrNames == nil {
		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("attr%d", i)
		}
		return false, names, nil
	}

	marker, err := d.attrNames.ReadU8()
	if err != nil {
		return false, nil, fmt.Errorf("non-strict marker: %w", err)
	}
	nonStrict := marker != 0

	names := make([]string, count)
	for i := 0; i < count; i++ {
		h, err := d.attrNames.ReadVarint()
		if err != nil {
			return false, nil, fmt.Errorf("name %d: %w", i, err)
		}
		name, err := d.tabs.Strings.Resolve(ir.StringHandle(h))
		if err != nil {
			return false, nil, fmt.Errorf("name %d: %w", i, err)
		}
		names[i] = name
	}
	return nonStrict, names, nil
}

func (d *decoder) buildReturn(fnIdx int, resultRegs []int, regs []*register, loc ir.SourceLoc) (*ir.Operation, error) {
	ret := &ir.Operation{Name: "hex.return", Loc: loc}
	ret.Operands = make([]*ir.Value, 0, len(resultRegs))
	for _, regIdx := range resultRegs {
		reg := regs[regIdx]
		if reg.state != regDefined {
			return nil, d.bag.Fail(diag.UndefinedRegister, loc, "function %d: return: register %d used before its definition", fnIdx, regIdx)
		}
		reg.actualUses++
		ret.Operands = append(ret.Operands, reg.value)
	}
	return ret, nil
}

// checkDeclaredUses surfaces §8 invariant 2: the decoder never enforces
// that declared_uses matches the number of operand references observed,
// only warns when they disagree.
func (d *decoder) checkDeclaredUses(fnIdx int, regs []*register, loc ir.SourceLoc) {
	for i, reg := range regs {
		if reg.declaredUses != reg.actualUses {
			d.bag.Warn(diag.DeclaredUseMismatch, loc, "function %d: register %d: declared_uses=%d but observed %d operand reference(s)", fnIdx, i, reg.declaredUses, reg.actualUses)
		}
	}
}
