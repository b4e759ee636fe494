// Package goldenfmt renders a decoded *ir.Module to YAML, for use as a
// human-readable golden fixture in the decoder's own tests. BEF decodes a
// graph, not a tree — ir.Value and ir.Operation hold pointers back and
// forth to each other (a result's Def points at its producing operation,
// which holds that same result) — so this package never feeds ir types
// directly to yaml.Marshal. It first projects the module into a flat,
// acyclic tree keyed by assigned SSA-style names, the same role the
// teacher's internal/config gives yaml.v3 (a declarative, structured text
// form), repointed here at decoder output instead of agent input.
package goldenfmt

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tripwire/beflow/bef/ir"
)

// Module is the YAML-serializable projection of an ir.Module.
type Module struct {
	Functions []Function `yaml:"functions"`
}

// Function is the YAML-serializable projection of an ir.Function.
type Function struct {
	Name   string      `yaml:"name"`
	Native bool        `yaml:"native,omitempty"`
	Args   []string    `yaml:"args,omitempty"`
	Ops    []Operation `yaml:"ops,omitempty"`
}

// Operation is the YAML-serializable projection of an ir.Operation.
type Operation struct {
	Name      string            `yaml:"name"`
	Operands  []string          `yaml:"operands,omitempty"`
	Results   []string          `yaml:"results,omitempty"`
	Attrs     map[string]string `yaml:"attrs,omitempty"`
	Callee    []string          `yaml:"callee,omitempty"`
	NonStrict bool              `yaml:"non_strict,omitempty"`
	Regions   []Region          `yaml:"regions,omitempty"`
}

// Region is the YAML-serializable projection of an ir.Region.
type Region struct {
	Blocks []Block `yaml:"blocks"`
}

// Block is the YAML-serializable projection of an ir.Block.
type Block struct {
	Args []string    `yaml:"args,omitempty"`
	Ops  []Operation `yaml:"ops,omitempty"`
}

// Render converts mod to its YAML golden-fixture form.
func Render(mod *ir.Module) (string, error) {
	names := map[*ir.Value]string{}
	counter := 0

	out := Module{}
	for _, fn := range mod.Functions {
		out.Functions = append(out.Functions, convertFunction(fn, names, &counter))
	}

	b, err := yaml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("goldenfmt: %w", err)
	}
	return string(b), nil
}

func convertFunction(fn *ir.Function, names map[*ir.Value]string, counter *int) Function {
	f := Function{Name: fn.Name, Native: fn.Native}
	if fn.Native || fn.Region == nil {
		return f
	}
	blk := fn.Region.Blocks[0]
	for _, a := range blk.Args {
		f.Args = append(f.Args, valueName(names, counter, a))
	}
	f.Ops = convertOps(blk.Ops, names, counter)
	return f
}

func convertOps(ops []*ir.Operation, names map[*ir.Value]string, counter *int) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		o := Operation{
			Name:      op.Name,
			NonStrict: op.NonStrict,
			Callee:    append([]string(nil), op.Callee...),
		}
		for _, operand := range op.Operands {
			o.Operands = append(o.Operands, valueName(names, counter, operand))
		}
		for _, res := range op.Results {
			o.Results = append(o.Results, valueName(names, counter, res))
		}
		if len(op.AttrOrder) > 0 {
			o.Attrs = make(map[string]string, len(op.AttrOrder))
			for _, name := range op.AttrOrder {
				o.Attrs[name] = formatAttr(op.Attrs[name])
			}
		}
		for _, region := range op.Regions {
			o.Regions = append(o.Regions, convertRegion(region, names, counter))
		}
		out = append(out, o)
	}
	return out
}

func convertRegion(r *ir.Region, names map[*ir.Value]string, counter *int) Region {
	if r == nil {
		return Region{}
	}
	reg := Region{}
	for _, blk := range r.Blocks {
		b := Block{}
		for _, a := range blk.Args {
			b.Args = append(b.Args, valueName(names, counter, a))
		}
		b.Ops = convertOps(blk.Ops, names, counter)
		reg.Blocks = append(reg.Blocks, b)
	}
	return reg
}

// valueName returns the stable rendered name for v, assigning the next
// sequential name the first time v is seen. Block arguments and operation
// results share one counter so every value in a rendered module gets a
// distinct name regardless of where it was produced.
func valueName(names map[*ir.Value]string, counter *int, v *ir.Value) string {
	if v == nil {
		return "<nil>"
	}
	if n, ok := names[v]; ok {
		return n
	}
	n := fmt.Sprintf("%%%d", *counter)
	*counter++
	names[v] = n
	return n
}

func formatAttr(a ir.Attribute) string {
	switch a.Kind {
	case ir.AttrBool:
		return fmt.Sprintf("bool(%d)", a.Int)
	case ir.AttrString:
		return fmt.Sprintf("string(%q)", a.Str)
	case ir.AttrTypeAttr:
		return fmt.Sprintf("type(%s)", a.AsType)
	case ir.AttrDenseElements:
		return fmt.Sprintf("dense<%s, shape=%v, n=%d>", a.Dense.DType, a.Dense.Shape, len(a.Dense.Elements))
	case ir.AttrFlatArray:
		return fmt.Sprintf("array<%s>[%d]", a.ScalarType, len(a.Array))
	case ir.AttrOffsetArray:
		return fmt.Sprintf("offset_array[%d]", len(a.Array))
	default:
		if a.Placeholder {
			return "placeholder"
		}
		if a.ScalarType.IsFloat() {
			return fmt.Sprintf("%s(%g)", a.ScalarType, a.Float)
		}
		return fmt.Sprintf("%s(%d)", a.ScalarType, a.Int)
	}
}
