package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nikolalohinski/gonja/v2/exec"

	"github.com/rashlabs/rash/pkg/value"
)

// engineFilters returns the filter additions and overrides layered on top of
// the gonja builtins. default is overridden to be omit-aware.
func engineFilters() *exec.FilterSet {
	return exec.NewFilterSet(map[string]exec.FilterFunction{
		"split":   filterSplit,
		"join":    filterJoin,
		"replace": filterReplace,
		"default": filterDefault,
		"first":   filterFirst,
		"last":    filterLast,
		"tojson":  filterToJSON,
		"lines":   filterLines,
		"string":  filterString,
	})
}

func errValue(format string, args ...interface{}) *exec.Value {
	return exec.AsValue(fmt.Errorf(format, args...))
}

func argAt(params *exec.VarArgs, i int) (*exec.Value, bool) {
	if params == nil || i >= len(params.Args) {
		return nil, false
	}
	return params.Args[i], true
}

func asList(in *exec.Value) ([]interface{}, bool) {
	items, ok := in.Interface().([]interface{})
	return items, ok
}

func filterSplit(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	s := in.String()
	sep, ok := argAt(params, 0)
	var parts []string
	if ok {
		parts = strings.Split(s, sep.String())
	} else {
		parts = strings.Fields(s)
	}
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return exec.AsValue(out)
}

func filterJoin(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	items, ok := asList(in)
	if !ok {
		return errValue("join: %s is not a sequence", in.String())
	}
	sep := ""
	if v, ok := argAt(params, 0); ok {
		sep = v.String()
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = value.FromGo(item).Stringify()
	}
	return exec.AsValue(strings.Join(parts, sep))
}

func filterReplace(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	oldArg, ok1 := argAt(params, 0)
	newArg, ok2 := argAt(params, 1)
	if !ok1 || !ok2 {
		return errValue("replace: expected two arguments")
	}
	return exec.AsValue(strings.ReplaceAll(in.String(), oldArg.String(), newArg.String()))
}

// filterDefault returns the fallback when the input is undefined or the omit
// sentinel, and the input itself otherwise.
func filterDefault(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	fallback, ok := argAt(params, 0)
	if !ok {
		fallback = exec.AsValue("")
	}
	if in == nil || in.IsError() || in.IsNil() {
		return fallback
	}
	if s, ok := in.Interface().(string); ok && s == value.OmitMarker {
		return fallback
	}
	return in
}

func filterFirst(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	if items, ok := asList(in); ok {
		if len(items) == 0 {
			return errValue("first: empty sequence")
		}
		return exec.AsValue(items[0])
	}
	s := in.String()
	if s == "" {
		return errValue("first: empty string")
	}
	return exec.AsValue(string(s[0]))
}

func filterLast(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	if items, ok := asList(in); ok {
		if len(items) == 0 {
			return errValue("last: empty sequence")
		}
		return exec.AsValue(items[len(items)-1])
	}
	s := in.String()
	if s == "" {
		return errValue("last: empty string")
	}
	return exec.AsValue(string(s[len(s)-1]))
}

func filterToJSON(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	b, err := json.Marshal(in.Interface())
	if err != nil {
		return errValue("tojson: %v", err)
	}
	return exec.AsValue(string(b))
}

func filterLines(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	s := strings.TrimRight(in.String(), "\n")
	if s == "" {
		return exec.AsValue([]interface{}{})
	}
	parts := strings.Split(s, "\n")
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return exec.AsValue(out)
}

func filterString(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	return exec.AsValue(value.FromGo(in.Interface()).Stringify())
}
