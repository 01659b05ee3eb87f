package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/executor"
	"github.com/rashlabs/rash/pkg/output"
	"github.com/rashlabs/rash/pkg/script"
	"github.com/rashlabs/rash/pkg/telemetry"
	"github.com/rashlabs/rash/pkg/vars"
)

// Execute runs the root command and maps the failure taxonomy onto the
// documented exit codes: 0 success, 1 runtime failure, 2 CLI or script
// parse failure, 3 docopt failure on the script argv.
func Execute(version, commit string) int {
	rootCmd := newRootCommand(version, commit)
	if err := rootCmd.Execute(); err != nil {
		if engine.IsKind(err, engine.KindGracefulExit) {
			return 0
		}
		log.Error().Msg(err.Error())
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch engine.KindOf(err) {
	case engine.KindCliInvalid, engine.KindScriptSyntax, engine.KindDocoptMalformed:
		return 2
	case engine.KindDocoptNoMatch, engine.KindDocoptAmbiguous:
		return 3
	case engine.KindGracefulExit:
		return 0
	default:
		return 1
	}
}

func newRootCommand(version, commit string) *cobra.Command {
	var (
		becomeOn    bool
		becomeUser  string
		checkMode   bool
		diffMode    bool
		envPairs    []string
		verbosity   int
		outputStyle string
		inlineText  string
	)

	cmd := &cobra.Command{
		Use:   "rash [options] <script_path> [script_args...]",
		Short: "Declarative shell scripting engine",
		Long: `rash executes declarative shell scripts: a YAML task list with an
optional docopt header that turns script arguments into variables.

Tasks render their parameters through a Jinja-dialect template engine and
run against the local host, reporting per-task change status.`,
		Example: `  # Run a script
  rash ./entrypoint.rh

  # Dry run with diffs
  rash --check --diff ./provision.rh

  # Script arguments after the engine options
  rash ./dots.rh install '.*zsh.*'`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			telemetry.Setup(telemetry.Verbosity(verbosity))

			style, err := engine.ParseOutputStyle(outputStyle)
			if err != nil {
				return err
			}
			overrides, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return engine.NewError(engine.KindCliInvalid, "script path required")
			}

			global := &engine.GlobalParams{
				Become:     becomeOn,
				BecomeUser: becomeUser,
				CheckMode:  checkMode,
				DiffMode:   diffMode,
				Output:     style,
			}
			return runScript(global, args[0], args[1:], inlineText, overrides)
		},
	}

	// Engine options stop at the first positional: everything after the
	// script path belongs to the script.
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().BoolVarP(&becomeOn, "become", "b", false,
		"run operations with become (does not imply password prompting)")
	cmd.Flags().StringVarP(&becomeUser, "become-user", "u", "root",
		"run operations as this user (just works with become enabled)")
	cmd.Flags().BoolVarP(&checkMode, "check", "c", false,
		"execute in dry-run mode without modifications")
	cmd.Flags().BoolVarP(&diffMode, "diff", "d", false,
		"show the differences")
	cmd.Flags().StringArrayVarP(&envPairs, "environment", "e", nil,
		"set an environment variable, KEY=VALUE (repeatable)")
	cmd.Flags().CountVarP(&verbosity, "verbose", "v",
		"verbose mode (-vv for more)")
	cmd.Flags().StringVarP(&outputStyle, "output", "o", string(engine.OutputAnsible),
		"output style: ansible or raw")
	cmd.Flags().StringVarP(&inlineText, "script", "s", "",
		"execute an inline script; <script_path> serves as the logical path")

	cmd.AddCommand(newWorkerCommand())
	return cmd
}

func parseEnvPairs(pairs []string) ([][2]string, error) {
	out := make([][2]string, 0, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, engine.NewErrorf(engine.KindCliInvalid,
				"invalid KEY=VALUE: %q", p)
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}

func runScript(global *engine.GlobalParams, scriptPath string, scriptArgs []string,
	inlineText string, overrides [][2]string) error {

	var s *script.Script
	var err error
	if inlineText != "" {
		s, err = script.LoadInline(inlineText, scriptPath)
	} else {
		s, err = script.Load(scriptPath)
	}
	if err != nil {
		return err
	}

	formatter := output.New(global.Output, global.DiffMode)

	argsFrame := vars.Frame{}
	if s.Usage != nil {
		parsed, err := s.Usage.Parse(scriptArgs)
		if err != nil {
			if engine.IsKind(err, engine.KindGracefulExit) {
				formatter.Help(s.Usage.Doc)
			}
			return err
		}
		for _, key := range parsed.MapKeys() {
			v, _ := parsed.MapGet(key)
			argsFrame[key] = v
		}
	}

	ctx := vars.New(vars.Builtins(s.Path, scriptArgs), vars.LoadEnv(overrides), argsFrame)

	tasks, err := executor.ParseProgram(s.Tasks)
	if err != nil {
		return err
	}

	runner := executor.New(global, ctx, formatter, s.Dir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			log.Warn().Msg("interrupt received, aborting after the current task")
			runner.Interrupt()
		}
	}()

	log.Debug().Str("script", s.Path).Int("tasks", len(tasks)).Msg("starting run")
	return runner.RunProgram(tasks)
}
