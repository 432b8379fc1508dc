package variable

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// DeferredValue is the reflective view of a Deferred[T] field. The builder
// uses it to place values without knowing T; backfill uses it to find fields
// still waiting for a value.
type DeferredValue interface {
	ElemType() reflect.Type
	IsResolved() bool
	ReflectValue() (reflect.Value, bool)
	SetReflectValue(v reflect.Value) error
}

// Deferred is a parameter whose value may be written as "?" in a document and
// supplied later by backfill. The zero value is unresolved.
type Deferred[T any] struct {
	value    T
	resolved bool
}

// Resolved returns a Deferred that already holds v.
func Resolved[T any](v T) Deferred[T] {
	return Deferred[T]{value: v, resolved: true}
}

// Get returns the value and whether it has been resolved.
func (d Deferred[T]) Get() (T, bool) {
	return d.value, d.resolved
}

// MustGet returns the value and panics if it is still undetermined.
func (d Deferred[T]) MustGet() T {
	if !d.resolved {
		panic(fmt.Sprintf("deferred %s value read before it was resolved", d.ElemType()))
	}
	return d.value
}

// IsResolved reports whether a value has been supplied.
func (d Deferred[T]) IsResolved() bool { return d.resolved }

// Set resolves the value.
func (d *Deferred[T]) Set(v T) {
	d.value = v
	d.resolved = true
}

// ElemType returns reflect.Type of T.
func (d Deferred[T]) ElemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ReflectValue returns the held value if resolved.
func (d Deferred[T]) ReflectValue() (reflect.Value, bool) {
	if !d.resolved {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(&d.value).Elem(), true
}

// SetReflectValue resolves the value from a reflect.Value assignable or
// convertible to T.
func (d *Deferred[T]) SetReflectValue(v reflect.Value) error {
	target := d.ElemType()
	var value T
	out := reflect.ValueOf(&value).Elem()
	switch {
	case !v.IsValid():
	case v.Type().AssignableTo(target):
		out.Set(v)
	case v.Type().ConvertibleTo(target) && kindClass(v.Kind()) == kindClass(target.Kind()):
		out.Set(v.Convert(target))
	default:
		return fmt.Errorf("cannot assign %s to deferred %s", v.Type(), target)
	}
	d.Set(value)
	return nil
}

// String renders the value, or "?" while unresolved.
func (d Deferred[T]) String() string {
	if !d.resolved {
		return UndeterminedValue
	}
	return fmt.Sprint(d.value)
}

// MarshalJSON writes the value, or the "?" marker while unresolved.
func (d Deferred[T]) MarshalJSON() ([]byte, error) {
	if !d.resolved {
		return json.Marshal(UndeterminedValue)
	}
	return json.Marshal(d.value)
}

// kindClass groups kinds between which a conversion keeps the meaning of the
// value: int to int64 is fine, int to string is not.
func kindClass(k reflect.Kind) reflect.Kind {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return reflect.Int
	case reflect.Float32, reflect.Float64:
		return reflect.Float64
	default:
		return k
	}
}
