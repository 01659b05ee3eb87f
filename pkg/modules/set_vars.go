package modules

import (
	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

func init() {
	Register(&setVarsModule{})
}

// setVarsModule merges its rendered parameter mapping into the persistent
// variable frame. The interpreter performs the merge and derives changed
// from it: only a binding that actually changes value in the persistent
// frame counts, so repeated runs converge.
type setVarsModule struct{}

func (*setVarsModule) Name() string { return "set_vars" }

func (*setVarsModule) TypedParams() bool { return true }

func (m *setVarsModule) Execute(req *Request) (*engine.ModuleResult, error) {
	if req.Params.Kind() != value.KindMap {
		return nil, engine.NewErrorf(engine.KindParamInvalid,
			"set_vars: params must be a mapping, got %s", req.Params.Kind())
	}
	return &engine.ModuleResult{Vars: req.Params}, nil
}
