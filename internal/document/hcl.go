package document

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParseHCL parses an HCL document made of top-level attributes.
//
// Object and tuple constructor expressions are walked syntactically so the
// written key order survives; every other expression is evaluated without
// variables or functions and converted from its cty value.
func ParseHCL(data []byte, filename string) (any, error) {
	file, diags := hclsyntax.ParseConfig(data, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s: unexpected body type %T", filename, file.Body)
	}
	if len(body.Blocks) > 0 {
		block := body.Blocks[0]
		return nil, fmt.Errorf("%s: blocks are not supported in configuration documents (found %q)", block.DefRange().String(), block.Type)
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	root := make(Map, 0, len(attrs))
	for _, attr := range attrs {
		val, err := fromExpr(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("in attribute %q: %w", attr.Name, err)
		}
		root = append(root, Entry{Key: attr.Name, Value: val})
	}
	return root, nil
}

func fromExpr(expr hclsyntax.Expression) (any, error) {
	switch e := expr.(type) {
	case *hclsyntax.ParenthesesExpr:
		return fromExpr(e.Expression)

	case *hclsyntax.ObjectConsExpr:
		m := make(Map, 0, len(e.Items))
		for _, item := range e.Items {
			keyVal, diags := item.KeyExpr.Value(nil)
			if diags.HasErrors() {
				return nil, diags
			}
			keyVal, err := convert.Convert(keyVal, cty.String)
			if err != nil || keyVal.IsNull() {
				return nil, fmt.Errorf("%s: object keys must be strings", item.KeyExpr.Range().String())
			}
			val, err := fromExpr(item.ValueExpr)
			if err != nil {
				return nil, fmt.Errorf("in key %q: %w", keyVal.AsString(), err)
			}
			m = append(m, Entry{Key: keyVal.AsString(), Value: val})
		}
		return m, nil

	case *hclsyntax.TupleConsExpr:
		list := make([]any, 0, len(e.Exprs))
		for i, item := range e.Exprs {
			val, err := fromExpr(item)
			if err != nil {
				return nil, fmt.Errorf("in element %d: %w", i, err)
			}
			list = append(list, val)
		}
		return list, nil

	default:
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		return ctyToNative(val)
	}
}

// ctyToNative converts an evaluated cty value into the document tree types.
// Whole numbers become int so they match what the YAML parser produces.
func ctyToNative(val cty.Value) (any, error) {
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is not known at load time")
	}
	if val.IsNull() {
		return nil, nil
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		// cty objects carry no declaration order; keys are emitted sorted.
		m := Map{}
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			native, err := ctyToNative(v)
			if err != nil {
				return nil, err
			}
			m = append(m, Entry{Key: k.AsString(), Value: native})
		}
		return m, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		list := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			native, err := ctyToNative(v)
			if err != nil {
				return nil, err
			}
			list = append(list, native)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
	}
}
