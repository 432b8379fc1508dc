package builder

import (
	"reflect"

	"github.com/vk/tracesweep/internal/paramspec"
	"github.com/vk/tracesweep/internal/variable"
)

// binding is one cell of a persistent list of bound parameters. A value
// that was constructed from a nested definition keeps its source, so that
// candidates sharing the cell can build their own copy.
type binding struct {
	param  *paramspec.Param
	value  reflect.Value
	source *source
	index  int
	parent *binding
}

// source is the Variable a constructed parameter value was resolved from.
// index on the binding selects the branch of its outcome.
type source struct {
	variable variable.Variable
	sweep    bool
}

// claim identifies one constructed value: a branch of one resolution.
type claim struct {
	source *source
	index  int
}

// varEntry is one cell of a persistent list of experimental vars.
type varEntry struct {
	name   string
	value  any
	parent *varEntry
}

// objectMeta is one candidate constructor call. The zero value is the empty
// candidate. Every method returns a new objectMeta; the receiver is never
// modified, so candidates produced by a fan-out can share their history.
type objectMeta struct {
	params *binding
	vars   *varEntry
}

func (m objectMeta) bind(p *paramspec.Param, v reflect.Value, src *source, index int) objectMeta {
	m.params = &binding{param: p, value: v, source: src, index: index, parent: m.params}
	return m
}

func (m objectMeta) record(name string, value any) objectMeta {
	m.vars = &varEntry{name: name, value: value, parent: m.vars}
	return m
}

func (m objectMeta) merge(p variable.Provenance) objectMeta {
	for _, k := range p.Keys() {
		m = m.record(k, p[k])
	}
	return m
}

// apply writes the bound values into a params struct.
func (m objectMeta) apply(params reflect.Value) {
	for b := m.params; b != nil; b = b.parent {
		params.FieldByIndex(b.param.Index).Set(b.value)
	}
}

// provenance materialises the recorded vars, later entries winning. It
// returns nil when nothing varied.
func (m objectMeta) provenance() variable.Provenance {
	if m.vars == nil {
		return nil
	}
	var entries []*varEntry
	for e := m.vars; e != nil; e = e.parent {
		entries = append(entries, e)
	}
	out := make(variable.Provenance, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out[entries[i].name] = entries[i].value
	}
	return out
}

// mergeProvenance combines two provenance maps; b wins on conflicts.
func mergeProvenance(a, b variable.Provenance) variable.Provenance {
	if len(a) == 0 {
		return b.Clone()
	}
	out := a.Clone()
	for k, v := range b {
		out[k] = v
	}
	return out
}
