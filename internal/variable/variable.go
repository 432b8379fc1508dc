// Package variable models configuration values that are not yet known to be
// concrete.
//
// A Variable is one of six variants:
//
//   - Literal: an already concrete scalar
//   - Definition: ordered keyword arguments for one constructor call
//   - TypedDefinition: a Definition plus the object_type tag that picks the
//     concrete class for an abstract parameter
//   - MultiVariable: a list-valued argument, each element resolved on its own
//   - Experimental: a sweep; like MultiVariable, but every element is a
//     separate alternative and may carry provenance
//   - Undetermined: a placeholder filled in later from another stage
//
// The set is closed. Code that consumes a Variable switches on the concrete
// type and treats anything else as a bug.
package variable

import (
	"fmt"
	"sort"
	"strings"
)

// Variable is the sealed sum type described in the package documentation.
type Variable interface {
	isVariable()
}

// Literal wraps a concrete value.
type Literal struct {
	Value any
}

func (Literal) isVariable() {}

// Undetermined marks a value that will be supplied by backfill.
type Undetermined struct{}

func (Undetermined) isVariable() {}

// MultiVariable is an ordered list of variables.
type MultiVariable struct {
	Items []Variable
}

func (*MultiVariable) isVariable() {}

// Provenance records, for one sweep branch, which parameters varied and the
// value each one took.
type Provenance map[string]any

// Clone returns a shallow copy; nil stays nil.
func (p Provenance) Clone() Provenance {
	if p == nil {
		return nil
	}
	out := make(Provenance, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Provenance) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Experimental is a sweep: each value is one alternative.
type Experimental struct {
	Values     []Variable
	Provenance []Provenance
}

func (*Experimental) isVariable() {}

// NewExperimental builds a sweep. When provenance is supplied it must have
// exactly one entry per value.
func NewExperimental(values []Variable, provenance []Provenance) (*Experimental, error) {
	if provenance != nil && len(provenance) != len(values) {
		return nil, fmt.Errorf("experimental variable has %d values but %d provenance entries", len(values), len(provenance))
	}
	return &Experimental{Values: values, Provenance: provenance}, nil
}

// ProvenanceAt returns the provenance for branch i, or nil.
func (e *Experimental) ProvenanceAt(i int) Provenance {
	if e.Provenance == nil || i >= len(e.Provenance) {
		return nil
	}
	return e.Provenance[i]
}

// Len returns the number of branches.
func (e *Experimental) Len() int { return len(e.Values) }

// Field is one named argument of a Definition.
type Field struct {
	Name  string
	Value Variable
}

// Definition is an ordered, case-insensitively keyed set of fields.
type Definition struct {
	fields []Field
	index  map[string]int
}

func (*Definition) isVariable() {}

// NewDefinition returns an empty definition.
func NewDefinition() *Definition {
	return &Definition{index: make(map[string]int)}
}

// Set appends a field. It fails if a key differing only in case exists.
func (d *Definition) Set(name string, v Variable) error {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	folded := strings.ToLower(name)
	if i, exists := d.index[folded]; exists {
		return fmt.Errorf("duplicate key %q (conflicts with %q)", name, d.fields[i].Name)
	}
	d.index[folded] = len(d.fields)
	d.fields = append(d.fields, Field{Name: name, Value: v})
	return nil
}

// Get looks a field up, ignoring case.
func (d *Definition) Get(name string) (Variable, bool) {
	if d == nil {
		return nil, false
	}
	i, ok := d.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return d.fields[i].Value, true
}

// Fields returns the fields in declaration order.
func (d *Definition) Fields() []Field {
	if d == nil {
		return nil
	}
	return d.fields
}

// Names returns the field names in declaration order.
func (d *Definition) Names() []string {
	names := make([]string, 0, d.Len())
	for _, f := range d.Fields() {
		names = append(names, f.Name)
	}
	return names
}

// Len returns the number of fields.
func (d *Definition) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// TypedDefinition is a Definition whose concrete class is chosen by tag.
type TypedDefinition struct {
	ObjectType string
	*Definition
}

func (*TypedDefinition) isVariable() {}

// Values flattens a variable into its concrete values (getValuesOfAllVariables).
// Sweeps and lists are expanded in order; Definitions and Undetermined are
// returned unchanged since they have no concrete value yet.
func Values(v Variable) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case Literal:
		return []any{x.Value}
	case *Experimental:
		var out []any
		for _, item := range x.Values {
			out = append(out, Values(item)...)
		}
		return out
	case *MultiVariable:
		var out []any
		for _, item := range x.Items {
			out = append(out, Values(item)...)
		}
		return out
	default:
		return []any{v}
	}
}
