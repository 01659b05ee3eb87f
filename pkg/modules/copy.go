package modules

import (
	"fmt"
	"os"

	"github.com/rashlabs/rash/pkg/engine"
)

func init() {
	Register(&copyModule{})
}

type copyParams struct {
	Content *string `yaml:"content"`
	Src     string  `yaml:"src"`
	Dest    string  `yaml:"dest" validate:"required"`
	Mode    string  `yaml:"mode"`
}

// copyModule converges dest onto the given content (inline or from a source
// file). It is idempotent: a second run over an unchanged target reports
// changed=false.
type copyModule struct{}

func (*copyModule) Name() string { return "copy" }

func (m *copyModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params copyParams
	if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	if (params.Content == nil) == (params.Src == "") {
		return nil, engine.NewError(engine.KindParamInvalid,
			"copy: exactly one of content or src is required")
	}

	var content []byte
	if params.Content != nil {
		content = []byte(*params.Content)
	} else {
		raw, err := os.ReadFile(params.Src)
		if err != nil {
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("copy: cannot read src %s", params.Src), err)
		}
		content = raw
	}
	return ensureContent(m.Name(), params.Dest, content, params.Mode, req.CheckMode)
}
