package vars

import (
	"testing"

	"github.com/rashlabs/rash/pkg/value"
)

func TestGetPrecedence(t *testing.T) {
	ctx := New(
		Frame{"x": value.StringValue("builtin")},
		Frame{"x": value.StringValue("env")},
		Frame{"x": value.StringValue("args")},
	)
	if v, _ := ctx.Get("x"); v.Stringify() != "args" {
		t.Fatalf("script args must shadow env and builtins, got %v", v)
	}

	ctx.SetPersistent(Frame{"x": value.StringValue("persistent")})
	if v, _ := ctx.Get("x"); v.Stringify() != "persistent" {
		t.Fatalf("set_vars must shadow script args, got %v", v)
	}

	pop := ctx.PushFrame(Frame{"x": value.StringValue("task")})
	if v, _ := ctx.Get("x"); v.Stringify() != "task" {
		t.Fatalf("task vars must shadow set_vars, got %v", v)
	}

	item := ctx.PushFrame(Frame{"x": value.StringValue("item")})
	if v, _ := ctx.Get("x"); v.Stringify() != "item" {
		t.Fatalf("loop item frame must shadow task vars, got %v", v)
	}
	item()

	ctx.BindRegister("x", value.StringValue("register"))
	if v, _ := ctx.Get("x"); v.Stringify() != "register" {
		t.Fatalf("register must shadow everything, got %v", v)
	}

	pop()
}

func TestScopedFrameDoesNotLeak(t *testing.T) {
	ctx := New(nil, nil, nil)

	func() {
		pop := ctx.PushFrame(Frame{"x": value.IntValue(1)})
		defer pop()
		if _, ok := ctx.Get("x"); !ok {
			t.Fatal("x must resolve inside the scope")
		}
	}()

	if _, ok := ctx.Get("x"); ok {
		t.Fatal("task-scoped variable leaked past its frame")
	}
}

func TestScopedFramePoppedOnPanic(t *testing.T) {
	ctx := New(nil, nil, nil)

	func() {
		defer func() { recover() }()
		pop := ctx.PushFrame(Frame{"x": value.IntValue(1)})
		defer pop()
		panic("task blew up")
	}()

	if _, ok := ctx.Get("x"); ok {
		t.Fatal("frame survived a panic")
	}
}

func TestSetPersistentChangeDetection(t *testing.T) {
	ctx := New(nil, nil, nil)

	if !ctx.SetPersistent(Frame{"a": value.IntValue(1)}) {
		t.Error("first binding must report a change")
	}
	if ctx.SetPersistent(Frame{"a": value.IntValue(1)}) {
		t.Error("identical re-binding must not report a change")
	}
	if !ctx.SetPersistent(Frame{"a": value.IntValue(2)}) {
		t.Error("value change must report a change")
	}
}

func TestSetPersistentSkipsOmit(t *testing.T) {
	ctx := New(nil, nil, nil)
	ctx.SetPersistent(Frame{"a": value.Omit()})
	if _, ok := ctx.Get("a"); ok {
		t.Fatal("omit must never enter the context")
	}
}

func TestTemplateVarsFlattening(t *testing.T) {
	ctx := New(Frame{"base": value.StringValue("b")}, nil, nil)
	ctx.SetPersistent(Frame{"base": value.StringValue("p"), "other": value.IntValue(2)})
	pop := ctx.PushFrame(Frame{"item": value.IntValue(9)})
	defer pop()

	flat := ctx.TemplateVars()
	if flat["base"] != "p" {
		t.Errorf("base = %v", flat["base"])
	}
	if flat["item"] != int64(9) {
		t.Errorf("item = %v", flat["item"])
	}
	if flat["other"] != int64(2) {
		t.Errorf("other = %v", flat["other"])
	}
}

func TestBuiltinsFrame(t *testing.T) {
	f := Builtins("/tmp/dir/script.rh", []string{"a", "b"})
	rash := f["rash"]
	path, _ := rash.MapGet("path")
	if path.Stringify() != "/tmp/dir/script.rh" {
		t.Errorf("path = %v", path)
	}
	dir, _ := rash.MapGet("dir")
	if dir.Stringify() != "/tmp/dir" {
		t.Errorf("dir = %v", dir)
	}
	args, _ := rash.MapGet("args")
	if args.Len() != 2 {
		t.Errorf("args = %v", args)
	}
}
