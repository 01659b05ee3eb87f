// Package exec is the process runtime: spawning external commands, the
// become worker round trip, and the PID-transfer path.
package exec

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/rashlabs/rash/pkg/engine"
)

// RunOptions adjust a spawned command.
type RunOptions struct {
	// Chdir is the working directory, "" for the engine's own.
	Chdir string
	// Env adds or overrides environment variables on top of the inherited
	// environment.
	Env map[string]string
}

// CommandResult is the captured outcome of a spawned command. A non-zero
// exit code is not an error at this layer; the calling module decides
// whether it is fatal.
type CommandResult struct {
	RC     int
	Stdout string
	Stderr string
}

// Run spawns argv, waits for completion, and captures stdout and stderr.
// Only a spawn failure is an error.
func Run(argv []string, opts *RunOptions) (*CommandResult, error) {
	if len(argv) == 0 {
		return nil, engine.NewError(engine.KindModuleFailed, "empty argv")
	}
	cmd := osexec.Command(argv[0], argv[1:]...)
	if opts != nil && opts.Chdir != "" {
		cmd.Dir = opts.Chdir
	}
	if opts != nil && len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Trace().Strs("argv", argv).Msg("spawning command")
	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			result.RC = exitErr.ExitCode()
			return result, nil
		}
		return nil, engine.WrapError(engine.KindModuleFailed,
			fmt.Sprintf("cannot spawn %q", argv[0]), err)
	}
	return result, nil
}

// RunShell runs a command line through /bin/sh -c.
func RunShell(cmdline string, opts *RunOptions) (*CommandResult, error) {
	return Run([]string{"/bin/sh", "-c", cmdline}, opts)
}

// Transfer replaces the engine's process image with the given command. It
// only returns on failure. Any buffered output must be flushed before the
// call; nothing after it runs.
func Transfer(argv []string, chdir string) error {
	if len(argv) == 0 {
		return engine.NewError(engine.KindModuleFailed, "empty argv")
	}
	if chdir != "" {
		if err := os.Chdir(chdir); err != nil {
			return engine.WrapError(engine.KindModuleFailed, "chdir failed", err)
		}
	}
	path, err := osexec.LookPath(argv[0])
	if err != nil {
		return engine.WrapError(engine.KindModuleFailed,
			fmt.Sprintf("cannot resolve %q", argv[0]), err)
	}
	log.Debug().Strs("argv", argv).Msg("transferring process image")
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return engine.WrapError(engine.KindModuleFailed, "exec failed", err)
	}
	return nil
}
