package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/paramspec"
	"github.com/vk/tracesweep/internal/variable"
)

// Validate performs a parity check between registered classes and their Go
// params structs: every params struct must be readable, every default must
// decode, and every abstract parameter must have a family to resolve from.
func (r *Registry) Validate(ctx context.Context) error {
	var problems []string
	logger := ctxlog.FromContext(ctx)

	for _, c := range r.Classes() {
		specs, err := c.Specs()
		if err != nil {
			problems = append(problems, fmt.Sprintf("class '%s': %v", c.Name, err))
			continue
		}

		for _, p := range specs.Params {
			switch p.Kind {
			case paramspec.KindAny:
				logger.Debug("Class has a parameter of type any, which disables type checking for it.", "class", c.Name, "param", p.Name)
			case paramspec.KindCapability:
				if _, ok := r.Family(p.Type); !ok {
					problems = append(problems, fmt.Sprintf("class '%s', param '%s': no family registered for %s", c.Name, p.Name, p.Type))
				}
			case paramspec.KindList, paramspec.KindBranches:
				elem := elemType(p)
				if paramspec.Classify(elem) == paramspec.KindCapability {
					if _, ok := r.Family(elem); !ok {
						problems = append(problems, fmt.Sprintf("class '%s', param '%s': no family registered for %s", c.Name, p.Name, elem))
					}
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(problems, "\n- "))
	}

	logger.Debug("Registry validated.", "classes", len(r.Classes()))
	return nil
}

func elemType(p paramspec.Param) reflect.Type {
	if p.Kind == paramspec.KindBranches {
		return reflect.New(p.Type).Interface().(variable.BranchCollector).ElemType()
	}
	return p.Type.Elem()
}
