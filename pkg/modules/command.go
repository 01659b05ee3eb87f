package modules

import (
	"os"
	"strings"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/exec"
	"github.com/rashlabs/rash/pkg/value"
)

func init() {
	Register(&commandModule{})
}

type commandParams struct {
	Cmd         string   `yaml:"cmd"`
	Argv        []string `yaml:"argv"`
	Chdir       string   `yaml:"chdir"`
	Creates     string   `yaml:"creates"`
	Removes     string   `yaml:"removes"`
	TransferPid bool     `yaml:"transfer_pid"`
}

// commandModule spawns an external process and captures rc, stdout and
// stderr. With transfer_pid it replaces the engine's process image instead.
type commandModule struct{}

func (*commandModule) Name() string { return "command" }

func (m *commandModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params commandParams
	if s, ok := req.Params.AsString(); ok {
		// String short form: command: "ls -la"
		params.Cmd = s
	} else if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	if (params.Cmd == "") == (len(params.Argv) == 0) {
		return nil, engine.NewError(engine.KindParamInvalid,
			"command: exactly one of cmd or argv is required")
	}

	if params.Creates != "" {
		if _, err := os.Stat(params.Creates); err == nil {
			return &engine.ModuleResult{
				Skipped: true,
				Output:  "skipped: " + params.Creates + " exists",
			}, nil
		}
	}
	if params.Removes != "" {
		if _, err := os.Stat(params.Removes); err != nil {
			return &engine.ModuleResult{
				Skipped: true,
				Output:  "skipped: " + params.Removes + " does not exist",
			}, nil
		}
	}

	if req.CheckMode {
		return &engine.ModuleResult{Changed: true}, nil
	}

	argv := params.Argv
	if params.Cmd != "" {
		argv = []string{"/bin/sh", "-c", params.Cmd}
	}

	if params.TransferPid {
		// Replaces the process image; only returns on failure.
		if err := exec.Transfer(argv, params.Chdir); err != nil {
			return nil, err
		}
		return &engine.ModuleResult{Changed: true}, nil
	}

	result, err := exec.Run(argv, &exec.RunOptions{Chdir: params.Chdir})
	if err != nil {
		return nil, err
	}
	if result.RC != 0 {
		return nil, failed(m.Name(), req.Params, "rc %d: %s",
			result.RC, strings.TrimSpace(result.Stderr))
	}

	extra := value.NewMap()
	extra.MapSet("rc", value.IntValue(int64(result.RC)))
	extra.MapSet("stderr", value.StringValue(result.Stderr))

	return &engine.ModuleResult{
		Changed: true,
		Output:  strings.TrimRight(result.Stdout, "\n"),
		Extra:   extra,
	}, nil
}
