// Package template adapts the gonja Jinja-dialect engine to the execution
// engine's contract: strict undefined handling, the omit sentinel, custom
// filters, and the lookup functions.
//
// Rendering always produces a string. When a typed value is required the
// rendered string is re-parsed as YAML, which recovers booleans, numbers,
// sequences and mappings; force-string rendering skips the re-parse.
package template

import (
	"strings"
	"sync"

	"github.com/nikolalohinski/gonja/v2/builtins"
	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// maxReRenders bounds the re-rendering of expressions that themselves
// contain template markers; exceeding it is a template error.
const maxReRenders = 3

const rootTemplate = "/root"

var (
	tplConfig *config.Config
	tplEnv    *exec.Environment

	cacheMu  sync.RWMutex
	tplCache = map[string]*exec.Template{}
)

func init() {
	tplConfig = config.New()
	tplConfig.StrictUndefined = true
	tplConfig.KeepTrailingNewline = true

	ctx := exec.EmptyContext().Update(builtins.GlobalFunctions)
	ctx.Set("omit", value.OmitMarker)

	filters := exec.NewFilterSet(map[string]exec.FilterFunction{})
	filters.Update(builtins.Filters)
	filters.Update(engineFilters())

	tplEnv = &exec.Environment{
		Context:           ctx,
		Filters:           filters,
		Tests:             builtins.Tests,
		ControlStructures: builtins.ControlStructures,
		Methods:           builtins.Methods,
	}

	registerBuiltinLookups()
}

// IsTemplated reports whether s contains template markers.
func IsTemplated(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

func compile(src string) (*exec.Template, error) {
	cacheMu.RLock()
	tpl, ok := tplCache[src]
	cacheMu.RUnlock()
	if ok {
		return tpl, nil
	}

	loader, err := loaders.NewMemoryLoader(map[string]string{rootTemplate: src})
	if err != nil {
		return nil, err
	}
	tpl, err = exec.NewTemplate(rootTemplate, tplConfig, loader, tplEnv)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	tplCache[src] = tpl
	cacheMu.Unlock()
	return tpl, nil
}

func classifyRenderError(err error) *engine.Error {
	msg := err.Error()
	if strings.Contains(msg, "not defined") || strings.Contains(msg, "undefined") ||
		strings.Contains(msg, "unable to resolve") {
		return engine.WrapError(engine.KindTemplateUndefined, "undefined variable", err)
	}
	return engine.WrapError(engine.KindTemplateError, "template render failed", err)
}

// RenderString renders src against vars and returns the produced string. A
// result that is exactly the omit sentinel surfaces as an OmitParam error so
// callers can drop the surrounding field.
func RenderString(src string, vars map[string]interface{}) (string, error) {
	if !IsTemplated(src) && src != value.OmitMarker {
		return src, nil
	}
	tpl, err := compile(src)
	if err != nil {
		return "", engine.WrapError(engine.KindTemplateError, "template parse failed", err)
	}
	if vars == nil {
		vars = map[string]interface{}{}
	}
	out, err := tpl.ExecuteToString(exec.NewContext(vars))
	if err != nil {
		return "", classifyRenderError(err)
	}
	if out == value.OmitMarker {
		return "", engine.NewError(engine.KindOmitParam, value.OmitMarker)
	}
	return out, nil
}

// RenderValue renders v against vars. String leaves are rendered through the
// template engine; with forceString false the rendered text is re-parsed as
// YAML to recover typing (falling back to the raw string when the text is
// not valid YAML). Sequence elements rendering to omit are dropped; mapping
// fields rendering to omit are dropped before the caller sees them.
func RenderValue(v value.Value, vars map[string]interface{}, forceString bool) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		rendered, err := RenderString(s, vars)
		if err != nil {
			return value.Value{}, err
		}
		if forceString {
			return value.StringValue(rendered), nil
		}
		parsed, perr := value.ParseYAML(rendered)
		if perr != nil {
			return value.StringValue(rendered), nil
		}
		return parsed, nil
	case value.KindSeq:
		items, _ := v.AsSeq()
		out := make([]value.Value, 0, len(items))
		for _, item := range items {
			r, err := RenderValue(item, vars, forceString)
			if err != nil {
				if engine.IsKind(err, engine.KindOmitParam) {
					continue
				}
				return value.Value{}, err
			}
			if r.IsOmit() {
				continue
			}
			out = append(out, r)
		}
		return value.SeqValue(out...), nil
	case value.KindMap:
		return RenderMap(v, vars, forceString)
	case value.KindOmit:
		return value.Value{}, engine.NewError(engine.KindOmitParam, value.OmitMarker)
	default:
		return v, nil
	}
}

// RenderMap renders a mapping field by field. Rendered fields become visible
// to the templates of later fields, and fields whose value renders to the
// omit sentinel are removed.
func RenderMap(m value.Value, vars map[string]interface{}, forceString bool) (value.Value, error) {
	out := value.NewMap()
	scope := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		scope[k] = v
	}
	for _, key := range m.MapKeys() {
		field, _ := m.MapGet(key)
		rendered, err := RenderValue(field, scope, forceString)
		if err != nil {
			if engine.IsKind(err, engine.KindOmitParam) {
				continue
			}
			return value.Value{}, err
		}
		if rendered.IsOmit() {
			continue
		}
		out.MapSet(key, rendered)
		scope[key] = rendered.ToGo()
	}
	return out, nil
}

// IsTruthy evaluates a conditional expression (the body of when or
// changed_when, written without surrounding markers) against vars. An
// expression that still contains template markers is re-rendered to
// convergence, bounded by maxReRenders.
func IsTruthy(expr string, vars map[string]interface{}) (bool, error) {
	e := strings.TrimSpace(expr)
	for i := 0; IsTemplated(e); i++ {
		if i >= maxReRenders {
			return false, engine.NewErrorf(engine.KindTemplateError,
				"expression did not stabilise after %d renders: %q", maxReRenders, expr)
		}
		rendered, err := RenderString(e, vars)
		if err != nil {
			if engine.IsKind(err, engine.KindOmitParam) {
				return false, nil
			}
			return false, err
		}
		if strings.TrimSpace(rendered) == e {
			break
		}
		e = strings.TrimSpace(rendered)
	}
	if e == "" {
		return false, nil
	}
	out, err := RenderString("{% if "+e+" %}true{% else %}false{% endif %}", vars)
	if err != nil {
		return false, err
	}
	return out != "false", nil
}
