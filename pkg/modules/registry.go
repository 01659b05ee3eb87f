// Package modules implements the module registry and the core module set.
// A module receives parameters that are already rendered and stripped of
// omitted fields; its only channel back into the run is the returned
// ModuleResult.
package modules

import (
	"fmt"
	"sort"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// Request is one module invocation.
type Request struct {
	// Params is the rendered parameter mapping (or scalar, for modules
	// accepting the string short form).
	Params value.Value
	// Vars is the flattened variable context, for modules that evaluate
	// expressions (assert, debug) or render content (template).
	Vars map[string]interface{}
	// CheckMode requests a dry run: report the changed a wet run would
	// produce, without side effects.
	CheckMode bool
	// Global carries the engine-wide parameters.
	Global *engine.GlobalParams
}

// Module is a named handler executing one task invocation.
type Module interface {
	Name() string
	Execute(req *Request) (*engine.ModuleResult, error)
}

// TypedParams is implemented by modules whose parameters keep their
// rendered YAML typing instead of being forced to strings.
type TypedParams interface {
	TypedParams() bool
}

var registry = map[string]Module{}

// Register adds a module under its name. Duplicate registration is a
// programming error.
func Register(m Module) {
	if _, dup := registry[m.Name()]; dup {
		panic(fmt.Sprintf("module %q registered twice", m.Name()))
	}
	registry[m.Name()] = m
}

// Get returns the module registered under name.
func Get(name string) (Module, bool) {
	m, ok := registry[name]
	return m, ok
}

// Names returns the registered module names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// failed wraps a module runtime failure with the module name and a
// redacted parameter summary.
func failed(module string, params value.Value, format string, args ...interface{}) *engine.Error {
	return engine.NewErrorf(engine.KindModuleFailed, "%s %s: %s",
		module, params.Summary(), fmt.Sprintf(format, args...))
}
