package builder

import (
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/vk/tracesweep/internal/paramspec"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// convertLiteral converts a scalar from a document into a value of type t.
//
// Scalars are checked through cty: the literal's implied cty type must match
// the target's (no string "5" for an int), and gocty performs the range and
// whole-number checks when narrowing numbers.
func convertLiteral(t reflect.Type, raw any) (reflect.Value, error) {
	if raw == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			return reflect.Zero(t), nil
		default:
			return reflect.Value{}, fmt.Errorf("null is not a valid %s", t)
		}
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		return assign(t, rv), nil
	}

	switch paramspec.Classify(t) {
	case paramspec.KindEnum:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("enum values must be written as names")
		}
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil

	case paramspec.KindDuration:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("durations must be written as strings such as \"1m30s\"")
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil

	case paramspec.KindPrimitive:
		return convertPrimitive(t, raw)

	default:
		return reflect.Value{}, fmt.Errorf("a literal cannot be used here")
	}
}

func convertPrimitive(t reflect.Type, raw any) (reflect.Value, error) {
	ty, err := gocty.ImpliedType(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	val, err := gocty.ToCtyValue(raw, ty)
	if err != nil {
		return reflect.Value{}, err
	}

	want := ctyTypeOf(t)
	if !ty.Equals(want) {
		return reflect.Value{}, fmt.Errorf("a %s literal cannot be used as %s", ty.FriendlyName(), want.FriendlyName())
	}

	ptr := reflect.New(t)
	if err := gocty.FromCtyValue(val, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

func ctyTypeOf(t reflect.Type) cty.Type {
	switch t.Kind() {
	case reflect.Bool:
		return cty.Bool
	case reflect.String:
		return cty.String
	default:
		return cty.Number
	}
}

// assign returns v as a value of exactly type t. The caller has checked
// that v is assignable.
func assign(t reflect.Type, v reflect.Value) reflect.Value {
	if v.Type() == t {
		return v
	}
	out := reflect.New(t).Elem()
	out.Set(v)
	return out
}
