// Package vars implements the layered variable context. Lookup resolves
// frame by frame from the top: register bindings, then scoped frames (loop
// item above task vars), then set_vars persistents, script arguments,
// environment, and builtins. Higher frames shadow lower ones on identical
// names; there is no silent merge.
package vars

import (
	"github.com/rashlabs/rash/pkg/value"
)

// Frame is one scope layer.
type Frame map[string]value.Value

// Clone returns a shallow copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Context is the variable stack owned by the interpreter. It is not safe
// for concurrent use; the interpreter is single-threaded by design.
type Context struct {
	builtins   Frame
	env        Frame
	scriptArgs Frame
	persistent Frame
	registers  Frame
	scoped     []Frame
}

// New builds a context over the three frames that persist for the whole
// program. Any of them may be nil.
func New(builtins, env, scriptArgs Frame) *Context {
	c := &Context{
		builtins:   builtins,
		env:        env,
		scriptArgs: scriptArgs,
		persistent: Frame{},
		registers:  Frame{},
	}
	if c.builtins == nil {
		c.builtins = Frame{}
	}
	if c.env == nil {
		c.env = Frame{}
	}
	if c.scriptArgs == nil {
		c.scriptArgs = Frame{}
	}
	return c
}

// Get resolves name through the frame stack.
func (c *Context) Get(name string) (value.Value, bool) {
	if v, ok := c.registers[name]; ok {
		return v, true
	}
	for i := len(c.scoped) - 1; i >= 0; i-- {
		if v, ok := c.scoped[i][name]; ok {
			return v, true
		}
	}
	for _, f := range []Frame{c.persistent, c.scriptArgs, c.env, c.builtins} {
		if v, ok := f[name]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// PushFrame pushes a scoped frame and returns the function that drops it.
// Callers defer the pop so the frame is removed on every exit path,
// including rescue handling and panics.
func (c *Context) PushFrame(f Frame) (pop func()) {
	if f == nil {
		f = Frame{}
	}
	c.scoped = append(c.scoped, f)
	depth := len(c.scoped)
	return func() {
		if len(c.scoped) >= depth {
			c.scoped = c.scoped[:depth-1]
		}
	}
}

// SetPersistent merges bindings into the persistent frame (the set_vars
// layer) and reports whether any binding actually changed value. Omit
// values are never inserted.
func (c *Context) SetPersistent(bindings Frame) bool {
	changed := false
	for k, v := range bindings {
		if v.IsOmit() {
			continue
		}
		if old, ok := c.persistent[k]; !ok || !old.Equal(v) {
			changed = true
		}
		c.persistent[k] = v
	}
	return changed
}

// BindRegister stores a task result under name. Register bindings are
// visible to every subsequent task, including included programs.
func (c *Context) BindRegister(name string, v value.Value) {
	c.registers[name] = v
}

// TemplateVars flattens the stack into the mapping handed to the template
// engine, merging bottom-up so shadowing matches Get.
func (c *Context) TemplateVars() map[string]interface{} {
	out := map[string]interface{}{}
	merge := func(f Frame) {
		for k, v := range f {
			out[k] = v.ToGo()
		}
	}
	merge(c.builtins)
	merge(c.env)
	merge(c.scriptArgs)
	merge(c.persistent)
	for _, f := range c.scoped {
		merge(f)
	}
	merge(c.registers)
	return out
}
