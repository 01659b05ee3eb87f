package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/exec"
	"github.com/rashlabs/rash/pkg/modules"
	"github.com/rashlabs/rash/pkg/telemetry"
)

// newWorkerCommand is the hidden become worker entry point: the engine
// re-executes its own binary with this subcommand, ships one module
// invocation over stdin, and reads the result from stdout. Credentials are
// switched inside ServeWorker before the module runs.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    exec.WorkerCommand,
		Short:  "Internal: execute one module invocation under different credentials",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			telemetry.Setup(telemetry.Verbosity(0))
			return exec.ServeWorker(os.Stdin, os.Stdout, runWorkerModule)
		},
	}
}

func runWorkerModule(req *exec.WorkerRequest) (*engine.ModuleResult, error) {
	m, ok := modules.Get(req.Module)
	if !ok {
		return nil, engine.NewErrorf(engine.KindModuleNotFound,
			"module %q not found", req.Module)
	}
	varsMap, _ := req.Vars.ToGo().(map[string]interface{})
	if varsMap == nil {
		varsMap = map[string]interface{}{}
	}
	global := req.Global
	if global == nil {
		global = engine.DefaultGlobalParams()
	}
	return m.Execute(&modules.Request{
		Params:    req.Params,
		Vars:      varsMap,
		CheckMode: req.CheckMode,
		Global:    global,
	})
}
