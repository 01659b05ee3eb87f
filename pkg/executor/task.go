// Package executor parses raw task mappings into the task program and
// interprets it: rendering parameters, evaluating conditionals and loops,
// dispatching modules, and implementing block/rescue/always error flow with
// become semantics.
package executor

import (
	"fmt"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/modules"
	"github.com/rashlabs/rash/pkg/value"
)

// Structural task keys handled by the interpreter itself rather than a
// registered module.
const (
	moduleBlock   = "block"
	moduleInclude = "include"
)

// reservedKeys are task control fields; every other key names a module.
var reservedKeys = map[string]bool{
	"name":          true,
	"when":          true,
	"loop":          true,
	"register":      true,
	"vars":          true,
	"ignore_errors": true,
	"changed_when":  true,
	"check_mode":    true,
	"become":        true,
	"become_user":   true,
	"rescue":        true,
	"always":        true,
	"environment":   true,
}

// Task is one declarative unit: exactly one module invocation (or
// structural form) plus optional control fields. Tasks are immutable once
// parsed.
type Task struct {
	Name   string
	Module string
	Params value.Value

	When        string
	Loop        value.Value
	Register    string
	Vars        value.Value
	IgnoreErr   value.Value
	ChangedWhen string
	CheckMode   *bool
	Become      *bool
	BecomeUser  string
	Environment value.Value

	Rescue []*Task
	Always []*Task
	Block  []*Task

	IncludeFile string
}

// ParseProgram parses the raw task mappings of a loaded script.
func ParseProgram(raw []value.Value) ([]*Task, error) {
	tasks := make([]*Task, 0, len(raw))
	for i, r := range raw {
		t, err := ParseTask(r)
		if err != nil {
			return nil, engine.WrapError(engine.KindOf(err),
				fmt.Sprintf("task %d", i+1), err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// ParseTask validates the task shape: exactly one module-like key, control
// fields of the right types, sub-programs parsed recursively.
func ParseTask(raw value.Value) (*Task, error) {
	if raw.Kind() != value.KindMap {
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"task must be a mapping, got %s", raw.Kind())
	}

	t := &Task{}
	var moduleKeys []string
	for _, key := range raw.MapKeys() {
		v, _ := raw.MapGet(key)
		if !reservedKeys[key] {
			moduleKeys = append(moduleKeys, key)
			continue
		}
		if err := t.setControlField(key, v); err != nil {
			return nil, err
		}
	}

	switch len(moduleKeys) {
	case 0:
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"no module key in task %s", raw.Summary())
	case 1:
	default:
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"multiple module keys in task: %v", moduleKeys)
	}

	t.Module = moduleKeys[0]
	params, _ := raw.MapGet(t.Module)
	t.Params = params

	switch t.Module {
	case moduleBlock:
		sub, err := parseSubProgram("block", params)
		if err != nil {
			return nil, err
		}
		// Privilege and dry-run fields are shared with the children unless
		// a child overrides them.
		for _, child := range sub {
			if child.Become == nil {
				child.Become = t.Become
			}
			if child.BecomeUser == "" {
				child.BecomeUser = t.BecomeUser
			}
			if child.CheckMode == nil {
				child.CheckMode = t.CheckMode
			}
		}
		t.Block = sub
	case moduleInclude:
		file, ok := stringOrFileParam(params)
		if !ok {
			return nil, engine.NewError(engine.KindScriptSyntax,
				"include: expected a file path or {file: path}")
		}
		t.IncludeFile = file
	default:
		if _, ok := modules.Get(t.Module); !ok {
			return nil, engine.NewErrorf(engine.KindModuleNotFound,
				"module %q not found; known modules: %v", t.Module, modules.Names())
		}
	}
	return t, nil
}

func (t *Task) setControlField(key string, v value.Value) error {
	asString := func() (string, error) {
		if v.Kind() == value.KindString || v.Kind() == value.KindInt ||
			v.Kind() == value.KindBool || v.Kind() == value.KindFloat {
			return v.Stringify(), nil
		}
		return "", engine.NewErrorf(engine.KindScriptSyntax,
			"%s must be a scalar, got %s", key, v.Kind())
	}

	switch key {
	case "name":
		s, err := asString()
		if err != nil {
			return err
		}
		t.Name = s
	case "when":
		s, err := asString()
		if err != nil {
			return err
		}
		t.When = s
	case "changed_when":
		s, err := asString()
		if err != nil {
			return err
		}
		t.ChangedWhen = s
	case "register":
		s, err := asString()
		if err != nil {
			return err
		}
		t.Register = s
	case "become_user":
		s, err := asString()
		if err != nil {
			return err
		}
		t.BecomeUser = s
	case "loop":
		t.Loop = v
	case "ignore_errors":
		t.IgnoreErr = v
	case "vars":
		if v.Kind() != value.KindMap {
			return engine.NewErrorf(engine.KindScriptSyntax,
				"vars must be a mapping, got %s", v.Kind())
		}
		t.Vars = v
	case "environment":
		if v.Kind() != value.KindMap {
			return engine.NewErrorf(engine.KindScriptSyntax,
				"environment must be a mapping, got %s", v.Kind())
		}
		t.Environment = v
	case "check_mode":
		b, ok := v.AsBool()
		if !ok {
			return engine.NewErrorf(engine.KindScriptSyntax,
				"check_mode must be a bool, got %s", v.Kind())
		}
		t.CheckMode = &b
	case "become":
		b, ok := v.AsBool()
		if !ok {
			return engine.NewErrorf(engine.KindScriptSyntax,
				"become must be a bool, got %s", v.Kind())
		}
		t.Become = &b
	case "rescue":
		sub, err := parseSubProgram("rescue", v)
		if err != nil {
			return err
		}
		t.Rescue = sub
	case "always":
		sub, err := parseSubProgram("always", v)
		if err != nil {
			return err
		}
		t.Always = sub
	}
	return nil
}

func parseSubProgram(field string, v value.Value) ([]*Task, error) {
	items, ok := v.AsSeq()
	if !ok {
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"%s must be a sequence of tasks, got %s", field, v.Kind())
	}
	sub := make([]*Task, 0, len(items))
	for i, item := range items {
		st, err := ParseTask(item)
		if err != nil {
			return nil, engine.WrapError(engine.KindOf(err),
				fmt.Sprintf("%s task %d", field, i+1), err)
		}
		sub = append(sub, st)
	}
	return sub, nil
}

func stringOrFileParam(params value.Value) (string, bool) {
	if s, ok := params.AsString(); ok {
		return s, true
	}
	if params.Kind() == value.KindMap {
		if f, ok := params.MapGet("file"); ok {
			if s, ok := f.AsString(); ok {
				return s, true
			}
		}
	}
	return "", false
}
