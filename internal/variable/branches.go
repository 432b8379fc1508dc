package variable

import (
	"fmt"
	"reflect"
)

// BranchCollector is the reflective view of a Branches[T] field.
type BranchCollector interface {
	ElemType() reflect.Type
	AppendReflect(v reflect.Value, vars Provenance) error
}

// Branches is a parameter that receives a whole sweep (or list) as data
// instead of fanning its owner out: one value per branch, each with the
// parameters that varied to produce it.
type Branches[T any] struct {
	values     []T
	provenance []Provenance
}

// NewBranches builds a Branches value directly. provenance may be nil.
func NewBranches[T any](values []T, provenance []Provenance) (Branches[T], error) {
	if provenance != nil && len(provenance) != len(values) {
		return Branches[T]{}, fmt.Errorf("branches have %d values but %d provenance entries", len(values), len(provenance))
	}
	if provenance == nil {
		provenance = make([]Provenance, len(values))
	}
	return Branches[T]{values: values, provenance: provenance}, nil
}

// Len returns the number of branches.
func (b Branches[T]) Len() int { return len(b.values) }

// Values returns the branch values in order.
func (b Branches[T]) Values() []T { return b.values }

// ProvenanceAt returns the vars of branch i, or nil.
func (b Branches[T]) ProvenanceAt(i int) Provenance {
	if i < 0 || i >= len(b.provenance) {
		return nil
	}
	return b.provenance[i]
}

func (b Branches[T]) ElemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (b *Branches[T]) AppendReflect(v reflect.Value, vars Provenance) error {
	target := b.ElemType()
	if !v.IsValid() || !v.Type().AssignableTo(target) {
		return fmt.Errorf("cannot append %v to branches of %s", v, target)
	}
	var value T
	reflect.ValueOf(&value).Elem().Set(v)
	b.values = append(b.values, value)
	b.provenance = append(b.provenance, vars)
	return nil
}
