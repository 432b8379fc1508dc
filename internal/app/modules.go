package app

import (
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/modules/env_vars"
	"github.com/vk/tracesweep/modules/http_request"
	"github.com/vk/tracesweep/modules/print"
	"github.com/vk/tracesweep/modules/quadratic"
)

// coreModules is the definitive list of all job modules that are compiled
// into the tracesweep binary.
var coreModules = []registry.Module{
	&print.Module{},
	&env_vars.Module{},
	&http_request.Module{},
	&quadratic.Module{},
}
