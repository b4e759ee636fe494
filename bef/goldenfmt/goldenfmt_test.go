package goldenfmt

import (
	"strings"
	"testing"

	"github.com/tripwire/beflow/bef/ir"
)

func TestRenderIdentityFunction(t *testing.T) {
	arg := &ir.Value{Type: ir.Type{Name: "i32"}}
	ret := &ir.Operation{Name: "hex.return", Operands: []*ir.Value{arg}}
	fn := &ir.Function{
		Name: "identity",
		Type: ir.FuncType{Args: []ir.Type{{Name: "i32"}}, Results: []ir.Type{{Name: "i32"}}},
		Region: &ir.Region{
			Blocks: []*ir.Block{{Args: []*ir.Value{arg}, Ops: []*ir.Operation{ret}}},
		},
	}
	mod := &ir.Module{Functions: []*ir.Function{fn}}

	out, err := Render(mod)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "name: identity") {
		t.Fatalf("expected function name in output:\n%s", out)
	}
	if !strings.Contains(out, "hex.return") {
		t.Fatalf("expected hex.return op in output:\n%s", out)
	}
	// The block argument and the return's operand are the same *ir.Value,
	// so they must render under the same assigned name.
	if strings.Count(out, "%0") < 2 {
		t.Fatalf("expected the block arg and return operand to share one rendered name:\n%s", out)
	}
}

func TestRenderNativeFunctionHasNoRegion(t *testing.T) {
	mod := &ir.Module{Functions: []*ir.Function{{Name: "extern_op", Native: true}}}
	out, err := Render(mod)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "native: true") {
		t.Fatalf("expected native: true in output:\n%s", out)
	}
}

func TestRenderAttributes(t *testing.T) {
	op := &ir.Operation{
		Name:      "tfrt_test.add",
		Attrs:     map[string]ir.Attribute{"value": {Kind: ir.AttrBool, Int: 1}},
		AttrOrder: []string{"value"},
	}
	fn := &ir.Function{
		Name:   "f",
		Region: &ir.Region{Blocks: []*ir.Block{{Ops: []*ir.Operation{op}}}},
	}
	mod := &ir.Module{Functions: []*ir.Function{fn}}

	out, err := Render(mod)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "value: bool(1)") {
		t.Fatalf("expected rendered bool attribute:\n%s", out)
	}
}
