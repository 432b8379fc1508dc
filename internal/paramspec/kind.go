package paramspec

import (
	"encoding"
	"reflect"
	"time"

	"github.com/vk/tracesweep/internal/variable"
)

// Kind is the shape of a declared parameter type as far as resolution cares.
type Kind int

const (
	KindUnsupported Kind = iota
	KindAny
	KindPrimitive
	KindEnum
	KindDuration
	KindOptional
	KindList
	KindPrimitiveMap
	KindUnion
	KindDeferred
	KindBranches
	KindCapability
	KindConcrete
)

var kindNames = map[Kind]string{
	KindUnsupported:  "unsupported",
	KindAny:          "any",
	KindPrimitive:    "primitive",
	KindEnum:         "enum",
	KindDuration:     "duration",
	KindOptional:     "optional",
	KindList:         "list",
	KindPrimitiveMap: "primitive map",
	KindUnion:        "union",
	KindDeferred:     "deferred",
	KindBranches:     "branches",
	KindCapability:   "capability",
	KindConcrete:     "concrete",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	deferredType        = reflect.TypeOf((*variable.DeferredValue)(nil)).Elem()
	branchesType        = reflect.TypeOf((*variable.BranchCollector)(nil)).Elem()
	unionType           = reflect.TypeOf((*Union)(nil)).Elem()
	anyMapType          = reflect.TypeOf(map[string]any(nil))
)

// Classify reports the Kind of t.
func Classify(t reflect.Type) Kind {
	if t == nil {
		return KindUnsupported
	}
	if t == durationType {
		return KindDuration
	}
	if t.Kind() == reflect.Struct {
		ptr := reflect.PointerTo(t)
		if ptr.Implements(deferredType) {
			return KindDeferred
		}
		if ptr.Implements(branchesType) {
			return KindBranches
		}
		if ptr.Implements(unionType) {
			return KindUnion
		}
	}
	if t.Kind() != reflect.Struct && t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface &&
		reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return KindEnum
	}

	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return KindAny
		}
		return KindCapability
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindPrimitive
	case reflect.Slice:
		return KindList
	case reflect.Map:
		if t == anyMapType {
			return KindAny
		}
		if IsPrimitiveMap(t) {
			return KindPrimitiveMap
		}
		return KindUnsupported
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return KindConcrete
		}
		return KindOptional
	case reflect.Struct:
		return KindConcrete
	default:
		return KindUnsupported
	}
}

// IsPrimitiveMap reports whether t is one of the three map shapes that are
// passed through as plain mappings instead of being constructed:
// map[string]string, map[string]float64 and map[string]int.
func IsPrimitiveMap(t reflect.Type) bool {
	if t.Kind() != reflect.Map || t.Key().Kind() != reflect.String {
		return false
	}
	switch t.Elem().Kind() {
	case reflect.String, reflect.Float64, reflect.Int:
		return t.Key() == reflect.TypeOf("") && t.Elem().PkgPath() == ""
	default:
		return false
	}
}

// TypeName renders t for error messages.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}
