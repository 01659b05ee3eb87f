// Package telemetry configures the engine's diagnostic logging. The
// user-facing per-task lines are produced by pkg/output and are not log
// records; everything here goes to stderr and is silenced below the chosen
// verbosity.
package telemetry

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevelEnv is the environment fallback consulted when no -v flag is
// given. Accepted values: DEBUG, TRACE.
const LogLevelEnv = "RASH_LOG_LEVEL"

// Verbosity resolves the effective verbosity from the -v count and the
// environment fallback: 0 info, 1 debug, 2+ trace.
func Verbosity(flagCount int) int {
	if flagCount > 0 {
		return flagCount
	}
	switch strings.ToUpper(os.Getenv(LogLevelEnv)) {
	case "DEBUG":
		return 1
	case "TRACE":
		return 2
	default:
		return 0
	}
}

// Setup installs the global logger: console writer on stderr, level mapped
// from verbosity.
func Setup(verbosity int) {
	level := zerolog.InfoLevel
	switch {
	case verbosity == 1:
		level = zerolog.DebugLevel
	case verbosity >= 2:
		level = zerolog.TraceLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
