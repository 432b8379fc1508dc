package experiment

import (
	"reflect"

	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/registry"
)

// CriterionClass is the name the comparison criterion is registered under.
const CriterionClass = "COMPARISON_CRITERION"

// Module registers the EXPERIMENT and STEP classes and the comparison
// criterion.
type Module struct{}

func (Module) Register(r *registry.Registry) {
	r.RegisterClass(registry.NewClass(ExperimentClass, New))
	r.RegisterClass(registry.NewClass(StepClass, NewStep))

	criterion := registry.StructClass(reflect.TypeOf(&job.Criterion{}))
	criterion.Name = CriterionClass
	r.RegisterClass(criterion)
}
