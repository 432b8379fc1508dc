// Package backfill copies concrete values from a finished object graph into
// the still-undetermined fields of another.
//
// The walk is depth-first and total: every exported field of the target is
// visited. A Deferred field that is still unresolved takes the value of the
// source field with the same parameter name (the `param` tag, else the Go
// field name, compared case-insensitively). A nested struct, pointer,
// interface or slice field recurses with the same-named source field as the
// new source. Fields already resolved are left alone, which makes a second
// pass with the same source a no-op.
//
// A failure stops the walk. Fields filled earlier in the same call keep their
// new values; nothing is rolled back.
package backfill

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/paramspec"
	"github.com/vk/tracesweep/internal/variable"
)

// Backfiller is implemented by types that state their merge explicitly. The
// walker calls it instead of descending into the type.
type Backfiller interface {
	Backfill(source any) error
}

var backfillerType = reflect.TypeOf((*Backfiller)(nil)).Elem()

// Backfill fills the undetermined fields of target from source. target must
// be a non-nil pointer.
func Backfill(target, source any) error {
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer || tv.IsNil() {
		return fmt.Errorf("backfill target must be a non-nil pointer, got %T", target)
	}
	w := &walker{visited: make(map[uintptr]bool)}
	return w.fill(tv, reflect.ValueOf(source))
}

type walker struct {
	visited map[uintptr]bool
}

func (w *walker) fill(target, source reflect.Value) error {
	if bf, ok := asBackfiller(target); ok {
		var src any
		if source.IsValid() && source.CanInterface() {
			src = source.Interface()
		}
		return bf.Backfill(src)
	}

	switch target.Kind() {
	case reflect.Pointer:
		if target.IsNil() {
			return nil
		}
		addr := target.Pointer()
		if w.visited[addr] {
			return nil
		}
		w.visited[addr] = true
		return w.fill(target.Elem(), source)

	case reflect.Interface:
		if target.IsNil() {
			return nil
		}
		inner := target.Elem()
		if inner.Kind() == reflect.Pointer {
			return w.fill(inner, source)
		}
		// A struct held by value in an interface is not addressable; copy,
		// fill and store it back.
		cp := reflect.New(inner.Type()).Elem()
		cp.Set(inner)
		if err := w.fill(cp, source); err != nil {
			return err
		}
		if target.CanSet() {
			target.Set(cp)
		}
		return nil

	case reflect.Struct:
		return w.fillStruct(target, source)

	case reflect.Slice:
		src := deref(source)
		for i := 0; i < target.Len(); i++ {
			var elemSrc reflect.Value
			if src.IsValid() && src.Kind() == reflect.Slice && i < src.Len() {
				elemSrc = src.Index(i)
			}
			if err := w.fill(target.Index(i), elemSrc); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

func (w *walker) fillStruct(target, source reflect.Value) error {
	t := target.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := target.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := w.fill(fv, source); err != nil {
				return err
			}
			continue
		}
		if !field.IsExported() {
			continue
		}

		name := fieldName(field)
		switch paramspec.Classify(field.Type) {
		case paramspec.KindDeferred:
			if err := fillDeferred(t, name, fv, source); err != nil {
				return err
			}
		default:
			if !isNode(field.Type) {
				continue
			}
			src, _ := lookup(source, name)
			if err := w.fill(fv, src); err != nil {
				return err
			}
		}
	}
	return nil
}

func fillDeferred(owner reflect.Type, name string, fv reflect.Value, source reflect.Value) error {
	if !fv.CanAddr() {
		return nil
	}
	dv := fv.Addr().Interface().(variable.DeferredValue)
	if dv.IsResolved() {
		return nil
	}

	mismatch := func(actual, reason string) error {
		return &errs.TypeMismatchError{
			Class:    owner.String(),
			Param:    name,
			Expected: paramspec.TypeName(dv.ElemType()),
			Actual:   actual,
			Reason:   reason,
		}
	}

	src, ok := lookup(source, name)
	if !ok {
		return mismatch("nothing", fmt.Sprintf("source %s has no field named %q", typeName(source), name))
	}

	if paramspec.Classify(src.Type()) == paramspec.KindDeferred {
		inner, resolved := reflectDeferred(src)
		if !resolved {
			return mismatch("undetermined", "the source value is itself undetermined")
		}
		src = inner
	}
	for src.Kind() == reflect.Interface && !src.IsNil() && !src.Type().AssignableTo(dv.ElemType()) {
		src = src.Elem()
	}

	if err := dv.SetReflectValue(src); err != nil {
		return mismatch(src.Type().String(), err.Error())
	}
	return nil
}

func reflectDeferred(v reflect.Value) (reflect.Value, bool) {
	if v.CanAddr() {
		return v.Addr().Interface().(variable.DeferredValue).ReflectValue()
	}
	cp := reflect.New(v.Type())
	cp.Elem().Set(v)
	return cp.Interface().(variable.DeferredValue).ReflectValue()
}

// lookup finds the source value for a parameter name. Structs are searched
// by parameter name and map[string]... by key, both case-insensitively.
func lookup(source reflect.Value, name string) (reflect.Value, bool) {
	src := deref(source)
	if !src.IsValid() {
		return reflect.Value{}, false
	}

	switch src.Kind() {
	case reflect.Struct:
		t := src.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				if v, ok := lookup(src.Field(i), name); ok {
					return v, true
				}
				continue
			}
			if field.IsExported() && strings.EqualFold(fieldName(field), name) {
				return src.Field(i), true
			}
		}
	case reflect.Map:
		if src.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		iter := src.MapRange()
		for iter.Next() {
			if strings.EqualFold(iter.Key().String(), name) {
				return iter.Value(), true
			}
		}
	}
	return reflect.Value{}, false
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("param"); ok {
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

// isNode reports whether a field can contain further fields to fill.
func isNode(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Interface, reflect.Slice:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	default:
		return false
	}
}

func asBackfiller(v reflect.Value) (Backfiller, bool) {
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Type().Implements(backfillerType) {
		return v.Interface().(Backfiller), true
	}
	if v.Kind() != reflect.Pointer && v.CanAddr() && reflect.PointerTo(v.Type()).Implements(backfillerType) {
		return v.Addr().Interface().(Backfiller), true
	}
	return nil, false
}

func typeName(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}
