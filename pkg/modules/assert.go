package modules

import (
	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/template"
)

func init() {
	Register(&assertModule{})
}

type assertParams struct {
	That stringList `yaml:"that" validate:"required,min=1"`
}

// assertModule evaluates boolean expressions and fails on the first false
// one. It never reports changed.
type assertModule struct{}

func (*assertModule) Name() string { return "assert" }

func (m *assertModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params assertParams
	if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	for _, expr := range params.That {
		ok, err := template.IsTruthy(expr, req.Vars)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, failed(m.Name(), req.Params, "assertion failed: %s", expr)
		}
	}
	return &engine.ModuleResult{}, nil
}
