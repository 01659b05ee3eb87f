package modules

import (
	"fmt"
	"os"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/template"
)

func init() {
	Register(&templateModule{})
}

type templateParams struct {
	Src  string `yaml:"src" validate:"required"`
	Dest string `yaml:"dest" validate:"required"`
	Mode string `yaml:"mode"`
}

// templateModule renders a source template against the current variable
// context and converges dest onto the result.
type templateModule struct{}

func (*templateModule) Name() string { return "template" }

func (m *templateModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params templateParams
	if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(params.Src)
	if err != nil {
		return nil, engine.WrapError(engine.KindModuleFailed,
			fmt.Sprintf("template: cannot read src %s", params.Src), err)
	}
	rendered, err := template.RenderString(string(raw), req.Vars)
	if err != nil {
		return nil, err
	}
	return ensureContent(m.Name(), params.Dest, []byte(rendered), params.Mode, req.CheckMode)
}
