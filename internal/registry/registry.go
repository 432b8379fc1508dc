package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/vk/tracesweep/internal/errs"
)

// Module is the interface that all job modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Family is the lookup table of one abstract type: object_type tag -> Class.
type Family struct {
	Type    reflect.Type
	classes map[string]*Class
}

// Name is the interface name used in error messages.
func (f *Family) Name() string { return f.Type.String() }

// Lookup resolves a tag by exact match.
func (f *Family) Lookup(tag string) (*Class, error) {
	c, ok := f.classes[tag]
	if !ok {
		return nil, &errs.UnknownVariantError{Family: f.Name(), Tag: tag, Known: f.Tags()}
	}
	return c, nil
}

// Tags returns the registered tags in sorted order.
func (f *Family) Tags() []string {
	tags := make([]string, 0, len(f.classes))
	for tag := range f.classes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Registry holds all the registered families and concrete classes for a
// single application instance.
type Registry struct {
	families map[reflect.Type]*Family
	classes  map[reflect.Type]*Class
	implicit sync.Map // reflect.Type -> *Class
}

// New creates and initializes a new Registry instance.
func New(modules ...Module) *Registry {
	r := &Registry{
		families: make(map[reflect.Type]*Family),
		classes:  make(map[reflect.Type]*Class),
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Register adds c to the family of iface under the tag c.Name.
func (r *Registry) Register(iface reflect.Type, c *Class) {
	if iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("family type %s is not an interface", iface))
	}
	if !c.Result.AssignableTo(iface) && !reflect.PointerTo(c.Result).Implements(iface) {
		panic(fmt.Sprintf("class '%s' result %s does not implement %s", c.Name, c.Result, iface))
	}
	fam, ok := r.families[iface]
	if !ok {
		fam = &Family{Type: iface, classes: make(map[string]*Class)}
		r.families[iface] = fam
	}
	if _, exists := fam.classes[c.Name]; exists {
		panic(fmt.Sprintf("class with tag '%s' already registered for %s", c.Name, iface))
	}
	slog.Debug("Registering family member.", "family", iface.String(), "tag", c.Name)
	fam.classes[c.Name] = c
}

// RegisterMember is Register with the family given as a type parameter.
func RegisterMember[I any](r *Registry, c *Class) {
	r.Register(reflect.TypeOf((*I)(nil)).Elem(), c)
}

// RegisterClass makes c the constructor for values of type c.Result.
func (r *Registry) RegisterClass(c *Class) {
	if _, exists := r.classes[c.Result]; exists {
		panic(fmt.Sprintf("class for type '%s' already registered", c.Result))
	}
	slog.Debug("Registering class.", "name", c.Name, "type", c.Result.String())
	r.classes[c.Result] = c
}

// Family returns the lookup table for iface.
func (r *Registry) Family(iface reflect.Type) (*Family, bool) {
	f, ok := r.families[iface]
	return f, ok
}

// ClassFor returns the class that constructs values of type t: an
// explicitly registered one, or an implicit StructClass for structs.
func (r *Registry) ClassFor(t reflect.Type) (*Class, error) {
	if c, ok := r.classes[t]; ok {
		return c, nil
	}
	if cached, ok := r.implicit.Load(t); ok {
		return cached.(*Class), nil
	}
	elem := t
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, fmt.Errorf("no class registered for %s", t)
	}
	c, _ := r.implicit.LoadOrStore(t, StructClass(t))
	return c.(*Class), nil
}

// Classes returns every explicitly registered class, families first, in a
// stable order.
func (r *Registry) Classes() []*Class {
	var out []*Class
	for _, fam := range r.sortedFamilies() {
		for _, tag := range fam.Tags() {
			out = append(out, fam.classes[tag])
		}
	}
	types := make([]reflect.Type, 0, len(r.classes))
	for t := range r.classes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
	for _, t := range types {
		out = append(out, r.classes[t])
	}
	return out
}

func (r *Registry) sortedFamilies() []*Family {
	fams := make([]*Family, 0, len(r.families))
	for _, f := range r.families {
		fams = append(fams, f)
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i].Name() < fams[j].Name() })
	return fams
}
