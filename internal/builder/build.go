package builder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/metrics"
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/variable"
)

// ExperimentalVarsSetter is implemented by constructed values that want to
// know which parameters varied for them.
type ExperimentalVarsSetter interface {
	SetExperimentalVars(vars variable.Provenance)
}

// Builder constructs objects from Variables using the classes of a registry.
// A Builder keeps no state between calls and may be reused; it is not meant
// for concurrent use.
type Builder struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithMetrics counts constructed instances per class.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// New creates a Builder over reg.
func New(reg *registry.Registry, opts ...Option) *Builder {
	b := &Builder{registry: reg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// branch is one alternative produced by resolution: a value of the declared
// type and the parameters that varied to produce it.
type branch struct {
	value reflect.Value
	vars  variable.Provenance
}

// outcome is the result of resolving one Variable. A sweep outcome fans the
// frontier out; any other outcome holds exactly one branch.
type outcome struct {
	branches []branch
	sweep    bool
}

func single(v reflect.Value) outcome {
	return outcome{branches: []branch{{value: v}}}
}

// Build constructs class from def. It returns a Literal holding the instance
// when def contains no sweep, and an *Experimental holding one Literal per
// instance otherwise, with each instance's experimental vars as provenance.
func (b *Builder) Build(ctx context.Context, class *registry.Class, def *variable.Definition) (variable.Variable, error) {
	branches, err := b.build(ctx, class, def)
	if err != nil {
		return nil, err
	}
	return wrap(branches)
}

// BuildType resolves v against type t. The top level may itself be a sweep.
func (b *Builder) BuildType(ctx context.Context, t reflect.Type, v variable.Variable) (variable.Variable, error) {
	out, err := b.resolve(ctx, t.String(), "(root)", t, v)
	if err != nil {
		return nil, err
	}
	return wrap(out.branches)
}

// Instances returns the concrete values of a built Variable as T.
func Instances[T any](v variable.Variable) ([]T, error) {
	values := variable.Values(v)
	out := make([]T, 0, len(values))
	for i, value := range values {
		typed, ok := value.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("instance %d is %T, not %T", i, value, zero)
		}
		out = append(out, typed)
	}
	return out, nil
}

func wrap(branches []branch) (variable.Variable, error) {
	if len(branches) == 1 {
		return variable.Literal{Value: branches[0].value.Interface()}, nil
	}
	values := make([]variable.Variable, len(branches))
	provenance := make([]variable.Provenance, len(branches))
	for i, br := range branches {
		values[i] = variable.Literal{Value: br.value.Interface()}
		provenance[i] = br.vars
	}
	return variable.NewExperimental(values, provenance)
}

func (b *Builder) build(ctx context.Context, class *registry.Class, def *variable.Definition) ([]branch, error) {
	logger := ctxlog.FromContext(ctx).With("class", class.Name)
	logger.Debug("Build: Starting construction.", "fields", def.Names())

	specs, err := class.Specs()
	if err != nil {
		return nil, fmt.Errorf("class '%s': %w", class.Name, err)
	}
	if err := specs.AssertDefinition(class.Name, def); err != nil {
		return nil, err
	}

	frontier := []objectMeta{{}}
	for _, field := range def.Fields() {
		p, _ := specs.Lookup(field.Name)
		out, err := b.resolve(ctx, class.Name, p.Name, p.Type, field.Value)
		if err != nil {
			return nil, err
		}
		var src *source
		if constructs(field.Value) {
			src = &source{variable: field.Value, sweep: out.sweep}
		}

		next := make([]objectMeta, 0, len(frontier)*len(out.branches))
		for _, m := range frontier {
			if !out.sweep {
				next = append(next, m.bind(p, out.branches[0].value, src, 0))
				continue
			}
			for bi, br := range out.branches {
				next = append(next, m.bind(p, br.value, src, bi).merge(br.vars).record(p.Name, plain(br.value)))
			}
		}
		if out.sweep {
			logger.Debug("Build: Parameter fans out.", "param", p.Name, "branches", len(out.branches), "candidates", len(next))
		}
		frontier = next
	}

	// The first candidate holding a constructed value keeps it; every other
	// candidate builds its own, so no two instances share a nested object.
	claimed := make(map[claim]bool)
	branches := make([]branch, 0, len(frontier))
	for _, m := range frontier {
		params := reflect.New(specs.Type).Elem()
		for i := range specs.Params {
			p := &specs.Params[i]
			if !p.HasDefault {
				continue
			}
			dv, err := p.DefaultValue()
			if err != nil {
				return nil, fmt.Errorf("class '%s': %w", class.Name, err)
			}
			params.FieldByIndex(p.Index).Set(dv)
		}
		m.apply(params)

		vars := m.provenance()
		for c := m.params; c != nil; c = c.parent {
			if c.source == nil {
				continue
			}
			key := claim{source: c.source, index: c.index}
			if !claimed[key] {
				claimed[key] = true
				continue
			}
			v, err := b.rebuild(ctx, class.Name, c)
			if err != nil {
				return nil, err
			}
			params.FieldByIndex(c.param.Index).Set(v)
			if c.source.sweep {
				vars[c.param.Name] = plain(v)
			}
		}

		inst, err := construct(class, params)
		if err != nil {
			return nil, err
		}

		if setter, ok := inst.(ExperimentalVarsSetter); ok && vars != nil {
			setter.SetExperimentalVars(vars.Clone())
		}
		v := reflect.ValueOf(inst)
		if !v.IsValid() {
			v = reflect.Zero(class.Result)
		}
		branches = append(branches, branch{value: v, vars: vars})
	}

	b.metrics.ObserveBuild(class.Name, len(branches))
	logger.Debug("Build: Construction complete.", "instances", len(branches))
	return branches, nil
}

// rebuild resolves the source of c again and returns the branch c holds.
func (b *Builder) rebuild(ctx context.Context, owner string, c *binding) (reflect.Value, error) {
	out, err := b.resolve(ctx, owner, c.param.Name, c.param.Type, c.source.variable)
	if err != nil {
		return reflect.Value{}, err
	}
	if c.index >= len(out.branches) {
		return reflect.Value{}, fmt.Errorf("class '%s': parameter %s resolved to %d branches, want more than %d", owner, c.param.Name, len(out.branches), c.index)
	}
	return out.branches[c.index].value, nil
}

// construct calls the class constructor. A returned error or a panic becomes
// a ConstructionError owned by the class.
func construct(class *registry.Class, params reflect.Value) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = &errs.ConstructionError{Class: class.Name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	inst, err = class.New(params)
	if err != nil {
		return nil, &errs.ConstructionError{Class: class.Name, Cause: err}
	}
	return inst, nil
}

// constructs reports whether resolving v calls constructors.
func constructs(v variable.Variable) bool {
	switch x := v.(type) {
	case *variable.Definition, *variable.TypedDefinition:
		return true
	case *variable.MultiVariable:
		for _, item := range x.Items {
			if constructs(item) {
				return true
			}
		}
	case *variable.Experimental:
		for _, item := range x.Values {
			if constructs(item) {
				return true
			}
		}
	}
	return false
}

// plain returns the value recorded as provenance for v: the inner value of a
// resolved Deferred, else v itself.
func plain(v reflect.Value) any {
	if reflect.PointerTo(v.Type()).Implements(deferredValueType) {
		cp := reflect.New(v.Type())
		cp.Elem().Set(v)
		if inner, resolved := cp.Interface().(variable.DeferredValue).ReflectValue(); resolved {
			return inner.Interface()
		}
	}
	return v.Interface()
}

var deferredValueType = reflect.TypeOf((*variable.DeferredValue)(nil)).Elem()
