// Package bef decodes the Binary Executable Format (BEF): a compact,
// offset-linked container for a dataflow-graph intermediate representation.
// Decode is the single entry point; everything else in this package is a
// thin, documented re-export of the ir package's decoded shape so callers
// don't need to import bef/ir directly for common types.
package bef

import (
	"fmt"
	"log/slog"

	"github.com/tripwire/beflow/bef/diag"
	"github.com/tripwire/beflow/bef/internal/body"
	"github.com/tripwire/beflow/bef/internal/container"
	"github.com/tripwire/beflow/bef/internal/stitch"
	"github.com/tripwire/beflow/bef/internal/tables"
	"github.com/tripwire/beflow/bef/ir"
)

// Re-exports of the decoded IR shape, so a caller can write bef.Module
// instead of reaching into bef/ir for the handful of types Decode returns.
type (
	Module        = ir.Module
	Function      = ir.Function
	Region        = ir.Region
	Block         = ir.Block
	Operation     = ir.Operation
	Value         = ir.Value
	Attribute     = ir.Attribute
	AttrKind      = ir.AttrKind
	Type          = ir.Type
	SourceLoc     = ir.SourceLoc
	DenseElements = ir.DenseElements
)

// Policy selects how the decoder reacts to an attribute it cannot decode or
// find: Lenient substitutes a placeholder and records a warning, Strict
// turns the same condition into a fatal error. Missing AttributeNames or
// RegisterTypes sections degrade the same way under both policies.
type Policy = ir.Policy

const (
	Lenient = ir.Lenient
	Strict  = ir.Strict
)

// Option configures a Decode call.
type Option func(*options)

type options struct {
	policy ir.Policy
	logger *slog.Logger
}

// WithPolicy sets the decoder's degradation policy. The default is Lenient.
func WithPolicy(p ir.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the *slog.Logger the decoder reports its progress to.
// Warnings and errors are returned as diagnostics, not logged. The default
// is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// DecodeError wraps the diagnostic bag produced by a failed decode. Error()
// reports the first fatal entry; Diagnostics returns the full bag, including
// every warning recorded before the fatal one was hit.
type DecodeError struct {
	err         error
	Diagnostics []diag.Entry
}

func (e *DecodeError) Error() string { return e.err.Error() }
func (e *DecodeError) Unwrap() error { return e.err }

// Decode parses buf as a BEF file and reconstructs its ir.Module. origin is
// the source location attributed to diagnostics raised before any more
// specific location could be resolved (spec.md §6).
//
// On success, the decode may still have recorded warnings; they are in the
// second return value. On
// failure, the returned error is a *DecodeError wrapping the fatal
// diag.Entry that aborted the decode, with Diagnostics holding everything
// recorded up to that point.
func Decode(buf []byte, origin SourceLoc, opts ...Option) (*Module, []diag.Entry, error) {
	o := options{policy: ir.Lenient, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	bag := diag.NewBag(origin)

	sections, err := container.Split(buf, bag)
	if err != nil {
		return nil, bag.Entries(), &DecodeError{err: err, Diagnostics: bag.Entries()}
	}
	o.logger.Debug("split container", "sections", len(sections))

	tabs, err := tables.Load(sections, bag, o.policy)
	if err != nil {
		return nil, bag.Entries(), &DecodeError{err: err, Diagnostics: bag.Entries()}
	}
	o.logger.Debug("loaded tables", "functions", len(tabs.FunctionIndex), "types", tabs.Types.Len())

	bodies, err := body.DecodeAll(sections, tabs, bag, o.policy, o.logger)
	if err != nil {
		return nil, bag.Entries(), &DecodeError{err: err, Diagnostics: bag.Entries()}
	}

	mod, err := stitch.Stitch(tabs, bodies, bag)
	if err != nil {
		return nil, bag.Entries(), &DecodeError{err: err, Diagnostics: bag.Entries()}
	}

	o.logger.Info("decoded BEF module", "functions", len(mod.Functions), "warnings", len(bag.Entries()))
	return mod, bag.Entries(), nil
}

// Err adapts a fatal diag.Entry into a plain error, for callers that only
// want Decode's error return and not the full Diagnostics slice.
func Err(entries []diag.Entry) error {
	for _, e := range entries {
		if e.Severity == diag.Fatal {
			return fmt.Errorf("bef: %s", e.Message)
		}
	}
	return nil
}
