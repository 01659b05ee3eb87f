package modules

import (
	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/template"
)

func init() {
	Register(&debugModule{})
}

type debugParams struct {
	Msg string `yaml:"msg"`
	Var string `yaml:"var"`
}

// debugModule emits a message or the value of a named expression. It never
// reports changed.
type debugModule struct{}

func (*debugModule) Name() string { return "debug" }

func (m *debugModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params debugParams
	if s, ok := req.Params.AsString(); ok {
		params.Msg = s
	} else if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	if (params.Msg == "") == (params.Var == "") {
		return nil, engine.NewError(engine.KindParamInvalid,
			"debug: exactly one of msg or var is required")
	}

	output := params.Msg
	if params.Var != "" {
		rendered, err := template.RenderString("{{ "+params.Var+" }}", req.Vars)
		if err != nil {
			return nil, err
		}
		output = params.Var + ": " + rendered
	}
	return &engine.ModuleResult{Output: output}, nil
}
