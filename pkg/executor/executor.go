package executor

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/exec"
	"github.com/rashlabs/rash/pkg/modules"
	"github.com/rashlabs/rash/pkg/output"
	"github.com/rashlabs/rash/pkg/script"
	"github.com/rashlabs/rash/pkg/template"
	"github.com/rashlabs/rash/pkg/value"
	"github.com/rashlabs/rash/pkg/vars"
)

// Executor interprets a task program: strictly single-threaded, in
// declaration order, one module at a time.
type Executor struct {
	global    *engine.GlobalParams
	ctx       *vars.Context
	out       *output.Formatter
	scriptDir string

	interrupted atomic.Bool
}

// New builds an executor over the given context. scriptDir anchors relative
// include paths.
func New(global *engine.GlobalParams, ctx *vars.Context, out *output.Formatter, scriptDir string) *Executor {
	return &Executor{global: global, ctx: ctx, out: out, scriptDir: scriptDir}
}

// Interrupt requests cancellation. The current module finishes; the next
// task boundary aborts.
func (e *Executor) Interrupt() {
	e.interrupted.Store(true)
}

// RunProgram executes tasks in order, stopping at the first unrecovered
// failure.
func (e *Executor) RunProgram(tasks []*Task) error {
	for _, t := range tasks {
		if e.interrupted.Load() {
			return engine.NewError(engine.KindAborted, "interrupted")
		}
		if err := e.runTask(t); err != nil {
			return err
		}
	}
	return nil
}

// runTask executes one task: task vars, loop iteration, and per-iteration
// rescue/always flow.
func (e *Executor) runTask(t *Task) error {
	tvars := e.ctx.TemplateVars()

	name := t.Module
	if t.Name != "" {
		rendered, err := template.RenderString(t.Name, tvars)
		if err == nil {
			name = rendered
		} else {
			name = t.Name
		}
	}
	if t.Module != moduleBlock && t.Module != moduleInclude {
		e.out.TaskBanner(name)
	}
	log.Debug().Str("module", t.Module).Str("task", name).Msg("running task")

	frame, err := e.taskFrame(t, tvars)
	if err != nil {
		return err
	}

	items, looping, err := e.renderLoop(t, frame, tvars)
	if err != nil {
		return err
	}

	for _, item := range items {
		if e.interrupted.Load() {
			return engine.NewError(engine.KindAborted, "interrupted")
		}
		scoped := frame.Clone()
		if looping {
			scoped["item"] = item
		}
		if err := e.runIteration(t, scoped); err != nil {
			return err
		}
	}
	return nil
}

// taskFrame renders the task-local vars. Bindings rendering to omit are
// simply not inserted.
func (e *Executor) taskFrame(t *Task, tvars map[string]interface{}) (vars.Frame, error) {
	frame := vars.Frame{}
	if t.Vars.IsZero() {
		return frame, nil
	}
	rendered, err := template.RenderMap(t.Vars, tvars, false)
	if err != nil {
		return nil, err
	}
	for _, key := range rendered.MapKeys() {
		v, _ := rendered.MapGet(key)
		frame[key] = v
	}
	return frame, nil
}

// renderLoop produces the iteration items: a single placeholder for
// loop-less tasks, otherwise the rendered sequence. Items rendering to omit
// are dropped.
func (e *Executor) renderLoop(t *Task, frame vars.Frame, tvars map[string]interface{}) ([]value.Value, bool, error) {
	if t.Loop.IsZero() {
		return []value.Value{value.Null()}, false, nil
	}

	scope := make(map[string]interface{}, len(tvars)+len(frame))
	for k, v := range tvars {
		scope[k] = v
	}
	for k, v := range frame {
		scope[k] = v.ToGo()
	}

	rendered, err := template.RenderValue(t.Loop, scope, false)
	if err != nil {
		return nil, false, err
	}
	items, ok := rendered.AsSeq()
	if !ok {
		// A loop rendering to a single scalar iterates once over it.
		if rendered.Kind() == value.KindString {
			return []value.Value{rendered}, true, nil
		}
		return nil, false, engine.NewErrorf(engine.KindTemplateError,
			"loop is not iterable, got %s", rendered.Kind())
	}
	return items, true, nil
}

// runIteration runs one loop iteration with rescue/always semantics. The
// scoped frame stays pushed through rescue and always, and is dropped on
// every exit path.
func (e *Executor) runIteration(t *Task, scoped vars.Frame) error {
	pop := e.ctx.PushFrame(scoped)
	defer pop()

	mainErr := e.runMain(t)

	if mainErr != nil && t.Rescue != nil {
		log.Error().Err(mainErr).Msg("task failed, running rescue")
		e.out.Failed(mainErr)
		if rescueErr := e.RunProgram(t.Rescue); rescueErr != nil {
			if t.Always != nil {
				if alwaysErr := e.RunProgram(t.Always); alwaysErr != nil {
					return alwaysErr
				}
			}
			return rescueErr
		}
		mainErr = nil
	} else if mainErr != nil {
		e.out.Failed(mainErr)
	}

	if t.Always != nil {
		if alwaysErr := e.RunProgram(t.Always); alwaysErr != nil {
			return alwaysErr
		}
	}
	return mainErr
}

// runMain executes the task body once: when gate, parameter rendering,
// dispatch, changed_when, ignore_errors, register.
func (e *Executor) runMain(t *Task) error {
	tvars := e.ctx.TemplateVars()

	if t.When != "" {
		ok, err := template.IsTruthy(t.When, tvars)
		if err != nil {
			return err
		}
		if !ok {
			e.out.Skipped(t.When)
			if t.Register != "" {
				e.ctx.BindRegister(t.Register, (&engine.ModuleResult{Skipped: true}).AsValue())
			}
			return nil
		}
	}

	switch t.Module {
	case moduleBlock:
		return e.RunProgram(t.Block)
	case moduleInclude:
		return e.runInclude(t, tvars)
	}

	restoreEnv, err := e.applyEnvironment(t, tvars)
	if err != nil {
		return err
	}
	defer restoreEnv()

	result, err := e.dispatch(t, tvars)
	if err != nil {
		ignore, ignErr := e.ignoreErrors(t, tvars)
		if ignErr != nil {
			return ignErr
		}
		if ignore {
			log.Warn().Err(err).Msg("ignoring task error")
			e.out.Ignored(err)
			if t.Register != "" {
				failedResult := &engine.ModuleResult{Failed: true, Output: err.Error()}
				e.ctx.BindRegister(t.Register, failedResult.AsValue())
			}
			return nil
		}
		return err
	}

	// set_vars reports changed through the persistent-frame merge, so the
	// merge runs before the changed_when override can replace the flag.
	if !result.Vars.IsZero() {
		bindings := vars.Frame{}
		for _, key := range result.Vars.MapKeys() {
			v, _ := result.Vars.MapGet(key)
			bindings[key] = v
		}
		result.Changed = e.ctx.SetPersistent(bindings)
	}

	if t.ChangedWhen != "" {
		changed, err := template.IsTruthy(t.ChangedWhen, tvars)
		if err != nil {
			return err
		}
		result.Changed = changed
	}

	if t.Register != "" {
		e.ctx.BindRegister(t.Register, result.AsValue())
	}

	e.logResult(t, result)
	return nil
}

// dispatch renders the parameters and executes the module, through the
// become worker when a privilege switch is requested.
func (e *Executor) dispatch(t *Task, tvars map[string]interface{}) (*engine.ModuleResult, error) {
	mod, ok := modules.Get(t.Module)
	if !ok {
		return nil, engine.NewErrorf(engine.KindModuleNotFound, "module %q not found", t.Module)
	}

	forceString := true
	if tp, isTyped := mod.(modules.TypedParams); isTyped && tp.TypedParams() {
		forceString = false
	}

	var params value.Value
	var err error
	switch t.Params.Kind() {
	case value.KindMap:
		params, err = template.RenderMap(t.Params, tvars, forceString)
	default:
		params, err = template.RenderValue(t.Params, tvars, forceString)
	}
	if err != nil {
		return nil, err
	}

	checkMode := e.global.CheckMode
	if t.CheckMode != nil {
		checkMode = *t.CheckMode
	}

	becomeOn := e.global.Become
	if t.Become != nil {
		becomeOn = *t.Become
	}
	becomeUser := e.global.BecomeUser
	if t.BecomeUser != "" {
		becomeUser = t.BecomeUser
	}

	if becomeOn {
		creds, err := exec.LookupUser(becomeUser)
		if err != nil {
			return nil, err
		}
		if creds.UID != exec.CurrentUID() {
			return exec.Invoke(&exec.WorkerRequest{
				Module:    t.Module,
				Params:    params,
				Vars:      value.FromGo(tvars),
				CheckMode: checkMode,
				Global:    e.global,
				User:      becomeUser,
			})
		}
	}

	return mod.Execute(&modules.Request{
		Params:    params,
		Vars:      tvars,
		CheckMode: checkMode,
		Global:    e.global,
	})
}

// runInclude loads another script and executes its tasks in the current
// context. Register bindings made inside the include stay visible after it.
func (e *Executor) runInclude(t *Task, tvars map[string]interface{}) error {
	file, err := template.RenderString(t.IncludeFile, tvars)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(e.scriptDir, file)
	}

	included, err := script.Load(file)
	if err != nil {
		return err
	}
	tasks, err := ParseProgram(included.Tasks)
	if err != nil {
		return err
	}
	log.Debug().Str("file", file).Int("tasks", len(tasks)).Msg("including script")

	sub := New(e.global, e.ctx, e.out, included.Dir)
	sub.interrupted.Store(e.interrupted.Load())
	return sub.RunProgram(tasks)
}

// applyEnvironment sets the task's environment mapping on the process,
// returning the restore function. Spawned commands inherit the process
// environment, so this covers them too.
func (e *Executor) applyEnvironment(t *Task, tvars map[string]interface{}) (func(), error) {
	if t.Environment.IsZero() {
		return func() {}, nil
	}
	rendered, err := template.RenderMap(t.Environment, tvars, true)
	if err != nil {
		return nil, err
	}

	saved := map[string]*string{}
	for _, key := range rendered.MapKeys() {
		v, _ := rendered.MapGet(key)
		if prev, ok := os.LookupEnv(key); ok {
			p := prev
			saved[key] = &p
		} else {
			saved[key] = nil
		}
		os.Setenv(key, v.Stringify())
	}
	return func() {
		for key, prev := range saved {
			if prev == nil {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, *prev)
			}
		}
	}, nil
}

// ignoreErrors evaluates the task's ignore_errors clause, which may be a
// literal bool or a template expression.
func (e *Executor) ignoreErrors(t *Task, tvars map[string]interface{}) (bool, error) {
	if t.IgnoreErr.IsZero() {
		return false, nil
	}
	if b, ok := t.IgnoreErr.AsBool(); ok {
		return b, nil
	}
	if s, ok := t.IgnoreErr.AsString(); ok {
		return template.IsTruthy(s, tvars)
	}
	return t.IgnoreErr.Truthy(), nil
}

// logResult emits the per-task line. Structural modules stay silent; the
// diff prints only under --diff.
func (e *Executor) logResult(t *Task, result *engine.ModuleResult) {
	switch {
	case result.Skipped:
		e.out.Skipped(result.Output)
	case result.Changed:
		e.out.Changed(result.Output)
	default:
		e.out.Ok(result.Output)
	}
	if e.global.DiffMode && result.Extra.Kind() == value.KindMap {
		if diff, ok := result.Extra.MapGet("diff"); ok {
			e.out.Diff(diff.Stringify())
		}
	}
}
