package ir

// Policy selects how the decoder handles missing optional tables and
// unresolved attribute/type references (spec.md §9, "Design Notes").
type Policy int

const (
	// Lenient degrades gracefully: missing optional tables produce
	// placeholder data and a warning instead of aborting. This is the
	// default, matching the source format's own behavior.
	Lenient Policy = iota
	// Strict turns an attribute that cannot be decoded, or a kernel
	// attribute offset that resolves to nothing, into a fatal error instead
	// of a placeholder. Other degradations are the same as under Lenient: a
	// missing AttributeNames section still yields synthesized names and a
	// missing RegisterTypes section still yields ir.None register types.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}
