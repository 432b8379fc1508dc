// Package paramspec reads the parameter list of a constructor from the struct
// it accepts.
//
// A constructor in this system is a function func(P) (T, error) where P is a
// plain struct. Every exported field of P carrying a `param` tag is one
// keyword argument:
//
//	type Params struct {
//		URL     string        `param:"url"`
//		Method  string        `param:"method" default:"GET"`
//		Timeout time.Duration `param:"timeout,optional"`
//	}
//
// A parameter is required unless it is marked optional or carries a default.
// Defaults are YAML scalars decoded into the field type. The resulting Specs
// are computed once per type and shared.
package paramspec
