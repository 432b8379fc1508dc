package registry

import (
	"fmt"
	"reflect"

	"github.com/vk/tracesweep/internal/paramspec"
)

// Validator is implemented by params structs that check themselves after
// population.
type Validator interface {
	Validate() error
}

// Class is one constructible target.
type Class struct {
	Name   string
	Params reflect.Type
	Result reflect.Type

	construct func(params reflect.Value) (any, error)
}

// NewClass wraps a typed constructor. P must be a struct.
func NewClass[P, T any](name string, fn func(P) (T, error)) *Class {
	params := reflect.TypeOf((*P)(nil)).Elem()
	if params.Kind() != reflect.Struct {
		panic(fmt.Sprintf("class '%s': params type %s is not a struct", name, params))
	}
	return &Class{
		Name:   name,
		Params: params,
		Result: reflect.TypeOf((*T)(nil)).Elem(),
		construct: func(v reflect.Value) (any, error) {
			return fn(v.Interface().(P))
		},
	}
}

// StructClass treats a plain struct (or pointer to struct) as its own
// params: construction populates the struct and calls Validate when the
// pointer type implements Validator.
func StructClass(t reflect.Type) *Class {
	elem := t
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		panic(fmt.Sprintf("struct class: %s is not a struct", t))
	}
	return &Class{
		Name:   elem.Name(),
		Params: elem,
		Result: t,
		construct: func(v reflect.Value) (any, error) {
			ptr := reflect.New(elem)
			ptr.Elem().Set(v)
			if val, ok := ptr.Interface().(Validator); ok {
				if err := val.Validate(); err != nil {
					return nil, err
				}
			}
			if t.Kind() == reflect.Pointer {
				return ptr.Interface(), nil
			}
			return ptr.Elem().Interface(), nil
		},
	}
}

// New calls the constructor with a populated params struct.
func (c *Class) New(params reflect.Value) (any, error) {
	if params.Type() != c.Params {
		return nil, fmt.Errorf("class '%s' expects params %s, got %s", c.Name, c.Params, params.Type())
	}
	return c.construct(params)
}

// Specs returns the parameter list of the class.
func (c *Class) Specs() (*paramspec.Specs, error) {
	return paramspec.Inspect(c.Params)
}
