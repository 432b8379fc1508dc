package paramspec

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/variable"
	"gopkg.in/yaml.v3"
)

const (
	paramTag   = "param"
	defaultTag = "default"
)

// Param describes one keyword argument.
type Param struct {
	Name     string
	Field    string
	Index    []int
	Type     reflect.Type
	Kind     Kind
	Required bool
	Default  string
	// HasDefault distinguishes `default:""` from no default at all.
	HasDefault bool
}

// DefaultValue decodes the default tag into a fresh value of the field type.
func (p *Param) DefaultValue() (reflect.Value, error) {
	ptr := reflect.New(p.Type)
	if p.Kind == KindEnum {
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(p.Default)); err != nil {
			return reflect.Value{}, fmt.Errorf("invalid default %q for parameter %q: %w", p.Default, p.Name, err)
		}
		return ptr.Elem(), nil
	}
	if err := yaml.Unmarshal([]byte(p.Default), ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("invalid default %q for parameter %q: %w", p.Default, p.Name, err)
	}
	return ptr.Elem(), nil
}

// Specs is the parameter list of one params struct.
type Specs struct {
	Type   reflect.Type
	Params []Param
	byName map[string]int
}

// Lookup finds a parameter by name, ignoring case.
func (s *Specs) Lookup(name string) (*Param, bool) {
	i, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &s.Params[i], true
}

// Required returns the names of the required parameters in field order.
func (s *Specs) Required() []string {
	var names []string
	for _, p := range s.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// AssertDefinition checks def against the parameter list: every required
// parameter present, no key without a parameter.
func (s *Specs) AssertDefinition(class string, def *variable.Definition) error {
	var missing, unknown []string
	for _, name := range s.Required() {
		if _, ok := def.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	for _, name := range def.Names() {
		if _, ok := s.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		return &errs.ValidationError{Class: class, Missing: missing, Unknown: unknown}
	}
	return nil
}

var cache sync.Map // reflect.Type -> *Specs

// Inspect reads the params struct t. A pointer to a struct is accepted and
// inspected through.
func Inspect(t reflect.Type) (*Specs, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("params type must be a struct, got %s", TypeName(t))
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*Specs), nil
	}

	specs := &Specs{Type: t, byName: make(map[string]int)}
	if err := collect(specs, t, nil); err != nil {
		return nil, fmt.Errorf("params struct %s: %w", t, err)
	}

	actual, _ := cache.LoadOrStore(t, specs)
	return actual.(*Specs), nil
}

func collect(specs *Specs, t reflect.Type, prefix []int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag, tagged := field.Tag.Lookup(paramTag)
		if field.Anonymous && !tagged && field.Type.Kind() == reflect.Struct {
			if err := collect(specs, field.Type, index); err != nil {
				return err
			}
			continue
		}
		if !field.IsExported() || !tagged || tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" {
			return fmt.Errorf("field %s has an empty parameter name", field.Name)
		}
		optional := false
		for _, opt := range parts[1:] {
			switch opt {
			case "optional":
				optional = true
			default:
				return fmt.Errorf("field %s: unknown param tag option %q", field.Name, opt)
			}
		}

		p := Param{
			Name:  name,
			Field: field.Name,
			Index: index,
			Type:  field.Type,
			Kind:  Classify(field.Type),
		}
		if p.Kind == KindUnsupported {
			return fmt.Errorf("parameter %q has unsupported type %s", name, field.Type)
		}
		if def, ok := field.Tag.Lookup(defaultTag); ok {
			switch p.Kind {
			case KindPrimitive, KindEnum, KindDuration, KindOptional:
			default:
				return fmt.Errorf("parameter %q: defaults are not supported for %s parameters", name, p.Kind)
			}
			p.Default, p.HasDefault = def, true
			if _, err := p.DefaultValue(); err != nil {
				return err
			}
		}
		p.Required = !optional && !p.HasDefault

		folded := strings.ToLower(name)
		if prev, dup := specs.byName[folded]; dup {
			return fmt.Errorf("parameter %q declared by both %s and %s", name, specs.Params[prev].Field, field.Name)
		}
		specs.byName[folded] = len(specs.Params)
		specs.Params = append(specs.Params, p)
	}
	return nil
}
