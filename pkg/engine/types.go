package engine

import (
	"github.com/rashlabs/rash/pkg/value"
)

// OutputStyle selects the user-facing per-task output format.
type OutputStyle string

const (
	// OutputAnsible prints structured task lines with banners and change
	// markers.
	OutputAnsible OutputStyle = "ansible"
	// OutputRaw prints module outputs only, omitting task names and
	// separators.
	OutputRaw OutputStyle = "raw"
)

// ParseOutputStyle validates a user-supplied output style name.
func ParseOutputStyle(s string) (OutputStyle, error) {
	switch OutputStyle(s) {
	case OutputAnsible, OutputRaw:
		return OutputStyle(s), nil
	default:
		return "", NewErrorf(KindCliInvalid, "unknown output style: %q", s)
	}
}

// GlobalParams are the engine-wide execution parameters set once by the CLI
// and never mutated afterwards.
type GlobalParams struct {
	// Become turns on privilege escalation for every task.
	Become bool
	// BecomeUser is the target user for become.
	BecomeUser string
	// CheckMode runs every module in dry-run mode.
	CheckMode bool
	// DiffMode emits unified diffs for change-producing modules.
	DiffMode bool
	// Output is the user-facing output style.
	Output OutputStyle
}

// DefaultGlobalParams returns the parameter set used when no flags are given.
func DefaultGlobalParams() *GlobalParams {
	return &GlobalParams{
		BecomeUser: "root",
		Output:     OutputAnsible,
	}
}

// ModuleResult is what a module invocation reports back to the interpreter.
type ModuleResult struct {
	// Changed reports whether the module changed (or, in check mode, would
	// have changed) observable state. Idempotent no-ops report false.
	Changed bool `json:"changed"`

	// Output is the module's primary textual output, empty if none.
	Output string `json:"output,omitempty"`

	// Extra carries module-specific structured data (command rc and stderr,
	// find matches, computed diffs).
	Extra value.Value `json:"extra,omitempty"`

	// Vars is a mapping the interpreter merges into the persistent variable
	// frame. Only set_vars populates it.
	Vars value.Value `json:"vars,omitempty"`

	// Failed and Skipped are recorded in register bindings so later tasks
	// can condition on them.
	Failed  bool `json:"failed"`
	Skipped bool `json:"skipped"`
}

// AsValue converts the result to the mapping stored by a register clause.
func (r *ModuleResult) AsValue() value.Value {
	m := value.NewMap()
	m.MapSet("changed", value.BoolValue(r.Changed))
	m.MapSet("output", value.StringValue(r.Output))
	if !r.Extra.IsZero() {
		m.MapSet("extra", r.Extra)
	} else {
		m.MapSet("extra", value.Null())
	}
	m.MapSet("failed", value.BoolValue(r.Failed))
	m.MapSet("skipped", value.BoolValue(r.Skipped))
	return m
}
