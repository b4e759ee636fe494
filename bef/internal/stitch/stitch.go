// Package stitch implements the region stitcher (component E, §4.E of
// spec.md), the final pass of the decode pipeline. It takes the regions
// component D decoded per FunctionIndex entry and assembles the owning
// ir.Module: named entries become top-level functions, and the deferred
// nested-region table — built while decoding kernel function-reference
// operands — is drained to move each unnamed function's region into the
// operation slot that referenced it.
package stitch

import (
	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/internal/body"
	"github.com/tripwire/beflow/bef/internal/tables"
	"github.com/tripwire/beflow/bef/ir"
)

// Stitch assembles the decoded Module from the table loader's function
// index and the body decoder's per-function regions and deferred table.
func Stitch(tabs *tables.Tables, result *body.Result, bag *diag.Bag) (*ir.Module, error) {
	mod := &ir.Module{}

	// Pass 1 (§4.E step 1): named entries become top-level functions, in
	// FunctionIndex order. Unnamed entries exist only to be inlined as
	// nested regions and never appear in mod.Functions directly.
	for i, entry := range tabs.FunctionIndex {
		if !entry.Named() {
			continue
		}
		fn := &ir.Function{
			Name:   entry.Name,
			Type:   entry.Type,
			Native: entry.Kind == tables.FunctionNative,
		}
		if !fn.Native {
			fn.Region = result.Regions[i]
		}
		mod.Functions = append(mod.Functions, fn)
	}

	// Pass 2 (§4.E step 2): drain the deferred table, in the order its
	// entries were recorded during body decoding, moving each unnamed
	// function's region into the operation slot that referenced it. consumed
	// tracks which unnamed FunctionIndex entries have been claimed, both to
	// catch the same region being wired into two different slots and to let
	// the pass-2-complete check below spot a region nobody ever claimed.
	consumed := make(map[int]bool, len(result.Deferred))
	for _, ref := range result.Deferred {
		if ref.FuncIdx < 0 || ref.FuncIdx >= len(result.Regions) {
			return nil, bag.Fail(diag.FunctionOutOfRange, ir.SourceLoc{}, "nested-region reference to function %d out of range", ref.FuncIdx)
		}
		region := result.Regions[ref.FuncIdx]
		if region == nil {
			return nil, bag.Fail(diag.UnresolvedRegion, ir.SourceLoc{}, "function %d has no decoded body to inline as a nested region (native function referenced where a region was expected?)", ref.FuncIdx)
		}
		if consumed[ref.FuncIdx] {
			return nil, bag.Fail(diag.UnresolvedRegion, ir.SourceLoc{}, "function %d's region was claimed by more than one nested-region slot", ref.FuncIdx)
		}
		consumed[ref.FuncIdx] = true
		ref.Op.Regions[ref.Slot] = region
	}

	// §4.E / §8 invariant 3: every unnamed function's region must be moved
	// exactly once. A decoded region nobody's deferred table entry claimed is
	// an orphan, not a silently dropped success.
	for i, entry := range tabs.FunctionIndex {
		if entry.Named() || entry.Kind == tables.FunctionNative {
			continue
		}
		if !consumed[i] {
			return nil, bag.Fail(diag.UnresolvedRegion, ir.SourceLoc{}, "function %d's decoded region was never claimed by a nested-region slot", i)
		}
	}

	if err := checkFullyResolved(bag, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// checkFullyResolved walks every operation reachable from mod's top-level
// functions and fails with UnresolvedRegion if any nested-region slot is
// still nil after pass 2 — a bug in the deferred table's bookkeeping, not a
// recoverable decode condition (§8 invariant 7).
func checkFullyResolved(bag *diag.Bag, mod *ir.Module) error {
	for _, fn := range mod.Functions {
		if fn.Region == nil {
			continue
		}
		if err := checkRegionResolved(bag, fn.Region); err != nil {
			return err
		}
	}
	return nil
}

func checkRegionResolved(bag *diag.Bag, r *ir.Region) error {
	for _, blk := range r.Blocks {
		for _, op := range blk.Ops {
			for i, nested := range op.Regions {
				if nested == nil {
					return bag.Fail(diag.UnresolvedRegion, op.Loc, "operation %q: nested-region slot %d was never resolved", op.Name, i)
				}
				if err := checkRegionResolved(bag, nested); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
