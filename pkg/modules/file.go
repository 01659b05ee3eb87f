package modules

import (
	"fmt"
	"os"

	"github.com/rashlabs/rash/pkg/engine"
)

func init() {
	Register(&fileModule{})
}

type fileParams struct {
	Path  string `yaml:"path" validate:"required"`
	State string `yaml:"state" validate:"omitempty,oneof=touch file directory absent"`
	Mode  string `yaml:"mode"`
}

// fileModule converges a filesystem entry onto the requested state.
type fileModule struct{}

func (*fileModule) Name() string { return "file" }

func (m *fileModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params fileParams
	if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	if params.State == "" {
		params.State = "touch"
	}

	info, statErr := os.Lstat(params.Path)
	exists := statErr == nil

	switch params.State {
	case "absent":
		if !exists {
			return &engine.ModuleResult{}, nil
		}
		if !req.CheckMode {
			if err := os.RemoveAll(params.Path); err != nil {
				return nil, engine.WrapError(engine.KindModuleFailed,
					fmt.Sprintf("file: cannot remove %s", params.Path), err)
			}
		}
		return &engine.ModuleResult{Changed: true}, nil

	case "directory":
		changed := !exists
		if exists && !info.IsDir() {
			return nil, failed(m.Name(), req.Params, "%s exists and is not a directory", params.Path)
		}
		if changed && !req.CheckMode {
			if err := os.MkdirAll(params.Path, 0o755); err != nil {
				return nil, engine.WrapError(engine.KindModuleFailed,
					fmt.Sprintf("file: cannot create %s", params.Path), err)
			}
		}
		return m.applyMode(params, changed, req.CheckMode)

	case "file":
		if !exists {
			return nil, failed(m.Name(), req.Params, "%s does not exist", params.Path)
		}
		return m.applyMode(params, false, req.CheckMode)

	default: // touch
		changed := !exists
		if changed && !req.CheckMode {
			f, err := os.OpenFile(params.Path, os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, engine.WrapError(engine.KindModuleFailed,
					fmt.Sprintf("file: cannot create %s", params.Path), err)
			}
			f.Close()
		}
		return m.applyMode(params, changed, req.CheckMode)
	}
}

// applyMode folds a mode adjustment into the result. In check mode (or when
// the entry does not exist yet) the change is reported, not applied.
func (m *fileModule) applyMode(params fileParams, changed bool, check bool) (*engine.ModuleResult, error) {
	if params.Mode == "" {
		return &engine.ModuleResult{Changed: changed}, nil
	}
	want, err := parseMode(params.Mode)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(params.Path)
	if statErr != nil {
		// Newly created in check mode: the mode change is part of the
		// creation.
		return &engine.ModuleResult{Changed: changed}, nil
	}
	if info.Mode().Perm() == want {
		return &engine.ModuleResult{Changed: changed}, nil
	}
	if !check {
		if err := os.Chmod(params.Path, want); err != nil {
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("file: cannot chmod %s", params.Path), err)
		}
	}
	return &engine.ModuleResult{Changed: true}, nil
}
