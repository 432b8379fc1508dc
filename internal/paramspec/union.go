package paramspec

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Union is the reflective view of a OneOf parameter.
type Union interface {
	Members() []reflect.Type
	SetMember(i int, v reflect.Value) error
	Value() any
}

// OneOf holds a value of type A or of type B. Resolution tries the members
// in order; a list in a document selects the single slice-shaped member.
type OneOf[A, B any] struct {
	which int
	a     A
	b     B
}

// First returns a OneOf holding a.
func First[A, B any](a A) OneOf[A, B] {
	return OneOf[A, B]{which: 1, a: a}
}

// Second returns a OneOf holding b.
func Second[A, B any](b B) OneOf[A, B] {
	return OneOf[A, B]{which: 2, b: b}
}

func (o OneOf[A, B]) Members() []reflect.Type {
	return []reflect.Type{
		reflect.TypeOf((*A)(nil)).Elem(),
		reflect.TypeOf((*B)(nil)).Elem(),
	}
}

func (o *OneOf[A, B]) SetMember(i int, v reflect.Value) error {
	members := o.Members()
	if i < 0 || i >= len(members) {
		return fmt.Errorf("union member %d out of range", i)
	}
	if !v.Type().AssignableTo(members[i]) {
		return fmt.Errorf("cannot assign %s to union member %s", v.Type(), members[i])
	}
	switch i {
	case 0:
		o.a = v.Interface().(A)
	case 1:
		o.b = v.Interface().(B)
	}
	o.which = i + 1
	return nil
}

// Value returns whichever member is set, or nil.
func (o OneOf[A, B]) Value() any {
	switch o.which {
	case 1:
		return o.a
	case 2:
		return o.b
	default:
		return nil
	}
}

// A returns the first member if it is the one set.
func (o OneOf[A, B]) A() (A, bool) { return o.a, o.which == 1 }

// B returns the second member if it is the one set.
func (o OneOf[A, B]) B() (B, bool) { return o.b, o.which == 2 }

func (o OneOf[A, B]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}
