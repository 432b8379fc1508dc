package builder

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/paramspec"
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/variable"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// resolve dispatches on the declared type t and the variant of v. owner and
// name identify the parameter for error messages.
func (b *Builder) resolve(ctx context.Context, owner, name string, t reflect.Type, v variable.Variable) (outcome, error) {
	mismatch := func(reason string) error {
		return &errs.TypeMismatchError{
			Class:    owner,
			Param:    name,
			Expected: paramspec.TypeName(t),
			Actual:   describe(v),
			Reason:   reason,
		}
	}

	if paramspec.Classify(t) == paramspec.KindBranches {
		return b.resolveBranches(ctx, owner, name, t, v)
	}

	switch x := v.(type) {
	case nil:
		return outcome{}, mismatch("no value")
	case *variable.Experimental:
		return b.resolveSweep(ctx, owner, name, t, x)
	case variable.Undetermined:
		if paramspec.Classify(t) != paramspec.KindDeferred {
			return outcome{}, mismatch("only deferred parameters accept \"?\"")
		}
		return single(reflect.Zero(t)), nil
	case variable.Literal:
		if x.Value != nil && reflect.TypeOf(x.Value).AssignableTo(t) {
			return single(assign(t, reflect.ValueOf(x.Value))), nil
		}
	}

	switch kind := paramspec.Classify(t); kind {
	case paramspec.KindPrimitive, paramspec.KindEnum, paramspec.KindDuration:
		lit, ok := v.(variable.Literal)
		if !ok {
			return outcome{}, mismatch("")
		}
		val, err := convertLiteral(t, lit.Value)
		if err != nil {
			return outcome{}, mismatch(err.Error())
		}
		return single(val), nil

	case paramspec.KindDeferred:
		return b.resolveDeferred(ctx, owner, name, t, v)

	case paramspec.KindOptional:
		if lit, ok := v.(variable.Literal); ok && lit.Value == nil {
			return single(reflect.Zero(t)), nil
		}
		inner, err := b.resolve(ctx, owner, name, t.Elem(), v)
		if err != nil {
			return outcome{}, err
		}
		return mapBranches(inner, func(val reflect.Value) (reflect.Value, error) {
			ptr := reflect.New(t.Elem())
			ptr.Elem().Set(val)
			return ptr, nil
		})

	case paramspec.KindList:
		return b.resolveList(ctx, owner, name, t, v, mismatch)

	case paramspec.KindUnion:
		return b.resolveUnion(ctx, owner, name, t, v, mismatch)

	case paramspec.KindPrimitiveMap:
		return resolvePrimitiveMap(t, v, mismatch)

	case paramspec.KindAny:
		return b.resolveAny(ctx, owner, name, t, v, mismatch)

	case paramspec.KindCapability:
		switch x := v.(type) {
		case *variable.TypedDefinition:
			fam, ok := b.registry.Family(t)
			if !ok {
				return outcome{}, mismatch("no family is registered for this type")
			}
			class, err := fam.Lookup(x.ObjectType)
			if err != nil {
				return outcome{}, err
			}
			return b.nested(ctx, owner, name, t, class, x.Definition)
		case variable.Literal:
			if x.Value == nil {
				return single(reflect.Zero(t)), nil
			}
			return outcome{}, mismatch("")
		default:
			return outcome{}, mismatch("an abstract parameter needs an object_type")
		}

	case paramspec.KindConcrete:
		switch x := v.(type) {
		case *variable.Definition:
			class, err := b.registry.ClassFor(t)
			if err != nil {
				return outcome{}, mismatch(err.Error())
			}
			return b.nested(ctx, owner, name, t, class, x)
		case *variable.TypedDefinition:
			class, err := b.registry.ClassFor(t)
			if err != nil {
				return outcome{}, mismatch(err.Error())
			}
			if class.Name != x.ObjectType {
				return outcome{}, &errs.UnknownVariantError{Family: t.String(), Tag: x.ObjectType, Known: []string{class.Name}}
			}
			return b.nested(ctx, owner, name, t, class, x.Definition)
		case variable.Literal:
			if x.Value == nil && t.Kind() == reflect.Pointer {
				return single(reflect.Zero(t)), nil
			}
			return outcome{}, mismatch("")
		default:
			return outcome{}, mismatch("")
		}

	default:
		return outcome{}, mismatch(fmt.Sprintf("parameters of kind %s cannot be resolved", kind))
	}
}

// resolveSweep resolves every branch of a sweep. A branch that is itself a
// sweep contributes all of its branches.
func (b *Builder) resolveSweep(ctx context.Context, owner, name string, t reflect.Type, x *variable.Experimental) (outcome, error) {
	out := outcome{sweep: true}
	for i, item := range x.Values {
		inner, err := b.resolve(ctx, owner, name, t, item)
		if err != nil {
			return outcome{}, err
		}
		for _, br := range inner.branches {
			out.branches = append(out.branches, branch{
				value: br.value,
				vars:  mergeProvenance(x.ProvenanceAt(i), br.vars),
			})
		}
	}
	return out, nil
}

// nested builds class for a parameter of type t. More than one instance
// makes the outcome a sweep.
func (b *Builder) nested(ctx context.Context, owner, name string, t reflect.Type, class *registry.Class, def *variable.Definition) (outcome, error) {
	branches, err := b.build(ctx, class, def)
	if err != nil {
		var cerr *errs.ConstructionError
		if errors.As(err, &cerr) && cerr.Class != owner {
			return outcome{}, &errs.ConstructionError{Class: owner, Cause: fmt.Errorf("parameter %s: %w", name, err)}
		}
		return outcome{}, err
	}
	for i, br := range branches {
		if !br.value.Type().AssignableTo(t) {
			return outcome{}, &errs.TypeMismatchError{
				Class:    owner,
				Param:    name,
				Expected: paramspec.TypeName(t),
				Actual:   br.value.Type().String(),
				Reason:   fmt.Sprintf("class '%s' does not produce this type", class.Name),
			}
		}
		branches[i].value = assign(t, br.value)
	}
	return outcome{branches: branches, sweep: len(branches) != 1}, nil
}

// resolveBranches collects a sweep, a list or a single value into a
// Branches parameter. The owner does not fan out; every branch becomes one
// element carrying its own provenance.
func (b *Builder) resolveBranches(ctx context.Context, owner, name string, t reflect.Type, v variable.Variable) (outcome, error) {
	var (
		items []variable.Variable
		prov  func(int) variable.Provenance
	)
	switch x := v.(type) {
	case *variable.Experimental:
		items, prov = x.Values, x.ProvenanceAt
	case *variable.MultiVariable:
		items = x.Items
	default:
		items = []variable.Variable{v}
	}

	ptr := reflect.New(t)
	collector := ptr.Interface().(variable.BranchCollector)
	for i, item := range items {
		inner, err := b.resolve(ctx, owner, fmt.Sprintf("%s[%d]", name, i), collector.ElemType(), item)
		if err != nil {
			return outcome{}, err
		}
		var base variable.Provenance
		if prov != nil {
			base = prov(i)
		}
		for _, br := range inner.branches {
			if err := collector.AppendReflect(br.value, mergeProvenance(base, br.vars)); err != nil {
				return outcome{}, &errs.TypeMismatchError{
					Class:    owner,
					Param:    name,
					Expected: paramspec.TypeName(collector.ElemType()),
					Actual:   br.value.Type().String(),
					Reason:   err.Error(),
				}
			}
		}
	}
	return single(ptr.Elem()), nil
}

func (b *Builder) resolveDeferred(ctx context.Context, owner, name string, t reflect.Type, v variable.Variable) (outcome, error) {
	elem := reflect.New(t).Interface().(variable.DeferredValue).ElemType()
	inner, err := b.resolve(ctx, owner, name, elem, v)
	if err != nil {
		return outcome{}, err
	}
	return mapBranches(inner, func(val reflect.Value) (reflect.Value, error) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(variable.DeferredValue).SetReflectValue(val); err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil
	})
}

// resolveList resolves a list parameter. Elements that resolve to several
// branches are flattened into the list; the list itself is one value.
func (b *Builder) resolveList(ctx context.Context, owner, name string, t reflect.Type, v variable.Variable, mismatch func(string) error) (outcome, error) {
	var items []variable.Variable
	switch x := v.(type) {
	case *variable.MultiVariable:
		items = x.Items
	case *variable.Definition, *variable.TypedDefinition:
		items = []variable.Variable{x}
	case variable.Literal:
		if x.Value == nil {
			return single(reflect.Zero(t)), nil
		}
		return outcome{}, mismatch("expected a list")
	default:
		return outcome{}, mismatch("expected a list")
	}

	list := reflect.MakeSlice(t, 0, len(items))
	for i, item := range items {
		inner, err := b.resolve(ctx, owner, fmt.Sprintf("%s[%d]", name, i), t.Elem(), item)
		if err != nil {
			return outcome{}, err
		}
		for _, br := range inner.branches {
			list = reflect.Append(list, br.value)
		}
	}
	return single(list), nil
}

// resolveUnion picks the union member to resolve against. A list selects the
// only slice-shaped member; anything else tries the other members in order.
func (b *Builder) resolveUnion(ctx context.Context, owner, name string, t reflect.Type, v variable.Variable, mismatch func(string) error) (outcome, error) {
	members := reflect.New(t).Interface().(paramspec.Union).Members()

	setMember := func(i int) func(reflect.Value) (reflect.Value, error) {
		return func(val reflect.Value) (reflect.Value, error) {
			ptr := reflect.New(t)
			if err := ptr.Interface().(paramspec.Union).SetMember(i, val); err != nil {
				return reflect.Value{}, err
			}
			return ptr.Elem(), nil
		}
	}

	if _, ok := v.(*variable.MultiVariable); ok {
		idx := -1
		for i, m := range members {
			if paramspec.Classify(m) != paramspec.KindList {
				continue
			}
			if idx >= 0 {
				return outcome{}, mismatch("union has more than one list member")
			}
			idx = i
		}
		if idx < 0 {
			return outcome{}, mismatch("union has no list member")
		}
		inner, err := b.resolve(ctx, owner, name, members[idx], v)
		if err != nil {
			return outcome{}, err
		}
		return mapBranches(inner, setMember(idx))
	}

	for i, m := range members {
		if paramspec.Classify(m) == paramspec.KindList {
			continue
		}
		inner, err := b.resolve(ctx, owner, name, m, v)
		if errors.Is(err, errs.ErrTypeMismatch) {
			continue
		}
		if err != nil {
			return outcome{}, err
		}
		return mapBranches(inner, setMember(i))
	}
	return outcome{}, mismatch("no union member accepts this value")
}

// resolvePrimitiveMap passes a Definition of scalars through as a plain map.
// Only the three shapes accepted by paramspec.IsPrimitiveMap get here.
func resolvePrimitiveMap(t reflect.Type, v variable.Variable, mismatch func(string) error) (outcome, error) {
	switch x := v.(type) {
	case *variable.Definition:
		m := reflect.MakeMapWithSize(t, x.Len())
		for _, f := range x.Fields() {
			lit, ok := f.Value.(variable.Literal)
			if !ok {
				return outcome{}, mismatch(fmt.Sprintf("entry %q must be a plain value", f.Name))
			}
			val, err := convertLiteral(t.Elem(), lit.Value)
			if err != nil {
				return outcome{}, mismatch(fmt.Sprintf("entry %q: %v", f.Name, err))
			}
			m.SetMapIndex(reflect.ValueOf(f.Name), val)
		}
		return single(m), nil
	case variable.Literal:
		if x.Value == nil {
			return single(reflect.Zero(t)), nil
		}
		return outcome{}, mismatch("expected a mapping")
	default:
		return outcome{}, mismatch("expected a mapping")
	}
}

// resolveAny converts a Variable into plain Go values: Definitions become
// map[string]any and lists become []any. Sweeps inside a Definition fan the
// resulting map out the same way they fan out a constructor call.
func (b *Builder) resolveAny(ctx context.Context, owner, name string, t reflect.Type, v variable.Variable, mismatch func(string) error) (outcome, error) {
	switch x := v.(type) {
	case variable.Literal:
		if x.Value == nil {
			return single(reflect.Zero(t)), nil
		}
		return outcome{}, mismatch("")

	case *variable.MultiVariable:
		list := make([]any, 0, len(x.Items))
		for i, item := range x.Items {
			inner, err := b.resolve(ctx, owner, fmt.Sprintf("%s[%d]", name, i), anyType, item)
			if err != nil {
				return outcome{}, err
			}
			for _, br := range inner.branches {
				list = append(list, br.value.Interface())
			}
		}
		return checkedAny(t, reflect.ValueOf(list), mismatch)

	case *variable.Definition:
		type entry struct {
			key   string
			value any
		}
		type candidate struct {
			meta    objectMeta
			entries []entry
		}
		cands := []candidate{{}}
		for _, f := range x.Fields() {
			inner, err := b.resolve(ctx, owner, name+"."+f.Name, anyType, f.Value)
			if err != nil {
				return outcome{}, err
			}
			next := make([]candidate, 0, len(cands)*len(inner.branches))
			for _, c := range cands {
				for _, br := range inner.branches {
					n := candidate{meta: c.meta, entries: append(append([]entry(nil), c.entries...), entry{f.Name, br.value.Interface()})}
					if inner.sweep {
						n.meta = n.meta.merge(br.vars).record(f.Name, br.value.Interface())
					}
					next = append(next, n)
				}
			}
			cands = next
		}

		out := outcome{sweep: len(cands) != 1}
		for _, c := range cands {
			m := make(map[string]any, len(c.entries))
			for _, e := range c.entries {
				m[e.key] = e.value
			}
			val, err := checkedAny(t, reflect.ValueOf(m), mismatch)
			if err != nil {
				return outcome{}, err
			}
			out.branches = append(out.branches, branch{value: val.branches[0].value, vars: c.meta.provenance()})
		}
		return out, nil

	default:
		return outcome{}, mismatch("")
	}
}

func checkedAny(t reflect.Type, v reflect.Value, mismatch func(string) error) (outcome, error) {
	if !v.Type().AssignableTo(t) {
		return outcome{}, mismatch("")
	}
	return single(assign(t, v)), nil
}

// mapBranches applies fn to every branch value, keeping provenance.
func mapBranches(in outcome, fn func(reflect.Value) (reflect.Value, error)) (outcome, error) {
	out := outcome{sweep: in.sweep, branches: make([]branch, 0, len(in.branches))}
	for _, br := range in.branches {
		val, err := fn(br.value)
		if err != nil {
			return outcome{}, err
		}
		out.branches = append(out.branches, branch{value: val, vars: br.vars})
	}
	return out, nil
}

// describe names the variant of v for error messages.
func describe(v variable.Variable) string {
	switch x := v.(type) {
	case nil:
		return "nothing"
	case variable.Literal:
		if x.Value == nil {
			return "null"
		}
		return fmt.Sprintf("%T", x.Value)
	case variable.Undetermined:
		return "undetermined (\"?\")"
	case *variable.TypedDefinition:
		return fmt.Sprintf("definition with object_type %q", x.ObjectType)
	case *variable.Definition:
		return "definition"
	case *variable.MultiVariable:
		return "list"
	case *variable.Experimental:
		return "sweep"
	default:
		return fmt.Sprintf("%T", v)
	}
}
