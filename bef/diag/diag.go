// Package diag is the decoder's diagnostic sink: the structured warning and
// fatal-error bundle every component appends to as it runs, modeled on the
// teacher's audit package (internal/audit) in spirit — an append-only,
// ordered log of what happened during one pass — but held in memory and
// returned to the caller instead of written to disk, since a decode is a
// single synchronous call with no persistent trail to keep (§5 of spec.md).
package diag

import (
	"fmt"

	"github.com/tripwire/beflow/bef/ir"
)

// Severity distinguishes a recoverable warning from a fatal error.
type Severity int

const (
	// Warning marks a diagnostic the decoder recovered from by substituting
	// a placeholder and continuing (§7: "locally recoverable").
	Warning Severity = iota
	// Fatal marks a diagnostic that aborted decoding.
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "error"
	}
	return "warning"
}

// Kind is one of the closed set of error kinds from spec.md §7.
type Kind string

const (
	BadMagic             Kind = "bad_magic"
	UnsupportedVersion   Kind = "unsupported_version"
	Truncated            Kind = "truncated"
	BadSection           Kind = "bad_section"
	StringOutOfRange     Kind = "string_out_of_range"
	TypeOutOfRange       Kind = "type_out_of_range"
	FunctionOutOfRange   Kind = "function_out_of_range"
	UndefinedRegister    Kind = "undefined_register"
	RegisterRedefined    Kind = "register_redefined"
	RegisterTypeMismatch Kind = "register_type_mismatch"
	UnresolvedRegion     Kind = "unresolved_region"
	UnknownAttribute     Kind = "unknown_attribute"
	UnknownType          Kind = "unknown_type"
	MissingOptionalTable Kind = "missing_optional_table"
	DeclaredUseMismatch  Kind = "declared_use_mismatch"
	UnknownSection       Kind = "unknown_section"
)

// fatalKinds is the subset of Kind values that §7 classifies as aborting
// decode at the site of detection. Everything else is recoverable.
var fatalKinds = map[Kind]bool{
	BadMagic:           true,
	UnsupportedVersion: true,
	Truncated:          true,
	BadSection:         true,
	StringOutOfRange:   true,
	TypeOutOfRange:     true,
	FunctionOutOfRange: true,
	UndefinedRegister:  true,
	RegisterRedefined:  true,
	UnresolvedRegion:   true,
}

// IsFatal reports whether kind aborts decoding per §7's policy table.
// RegisterTypeMismatch and DeclaredUseMismatch are deliberately absent from
// fatalKinds: §8 invariant 2 and the Open Questions in spec.md §9 downgrade
// both to warnings that surface both observed and declared counts rather
// than failing the decode.
func IsFatal(k Kind) bool { return fatalKinds[k] }

// Entry is one recorded diagnostic.
type Entry struct {
	Severity Severity
	Kind     Kind
	Message  string
	Loc      ir.SourceLoc
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s: %s (%s)", e.Severity, e.Kind, e.Message, e.Loc)
}

// Bag accumulates diagnostics in issuance order, as spec.md §7 requires for
// the bundle returned to the caller.
type Bag struct {
	entries []Entry
	origin  ir.SourceLoc
}

// NewBag returns an empty Bag. origin is used for diagnostics raised before
// any source location could be resolved (§6: "when no location is
// available, the origin_location passed by the caller is used").
func NewBag(origin ir.SourceLoc) *Bag {
	return &Bag{origin: origin}
}

// Origin returns the caller-supplied fallback location.
func (b *Bag) Origin() ir.SourceLoc { return b.origin }

// Warn records a recoverable diagnostic at loc. A zero-value loc falls back
// to the bag's origin.
func (b *Bag) Warn(kind Kind, loc ir.SourceLoc, format string, args ...any) {
	b.add(Warning, kind, loc, format, args...)
}

// Warnf is an alias for Warn kept for call sites that don't carry a location.
func (b *Bag) Warnf(kind Kind, format string, args ...any) {
	b.Warn(kind, ir.SourceLoc{}, format, args...)
}

// Fail records a fatal diagnostic and returns it as an error so call sites
// can `return nil, bag.Fail(...)` in one line, the same shape as the
// teacher's `fmt.Errorf("agent: ...: %w", err)` returns.
func (b *Bag) Fail(kind Kind, loc ir.SourceLoc, format string, args ...any) error {
	e := b.add(Fatal, kind, loc, format, args...)
	return &Error{Entry: e}
}

func (b *Bag) add(sev Severity, kind Kind, loc ir.SourceLoc, format string, args ...any) Entry {
	if loc == (ir.SourceLoc{}) {
		loc = b.origin
	}
	e := Entry{Severity: sev, Kind: kind, Message: fmt.Sprintf(format, args...), Loc: loc}
	b.entries = append(b.entries, e)
	return e
}

// Entries returns all recorded diagnostics in issuance order.
func (b *Bag) Entries() []Entry { return b.entries }

// HasFatal reports whether any recorded entry is a fatal error.
func (b *Bag) HasFatal() bool {
	for _, e := range b.entries {
		if e.Severity == Fatal {
			return true
		}
	}
	return false
}

// FirstFatal returns the first fatal entry recorded, or nil if none.
func (b *Bag) FirstFatal() *Entry {
	for i := range b.entries {
		if b.entries[i].Severity == Fatal {
			return &b.entries[i]
		}
	}
	return nil
}

// Error adapts a single fatal Entry to the error interface so it can be
// wrapped and matched with errors.As.
type Error struct {
	Entry Entry
}

func (e *Error) Error() string { return e.Entry.String() }

// Kind reports the error kind, for errors.As-style callers that want to
// branch on it without reaching into Entry.
func (e *Error) Kind() Kind { return e.Entry.Kind }
