package modules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

func mapParams(pairs ...interface{}) value.Value {
	m := value.NewMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.MapSet(pairs[i].(string), value.FromGo(pairs[i+1]))
	}
	return m
}

func run(t *testing.T, name string, params value.Value, check bool) (*engine.ModuleResult, error) {
	t.Helper()
	m, ok := Get(name)
	if !ok {
		t.Fatalf("module %q not registered", name)
	}
	return m.Execute(&Request{
		Params:    params,
		Vars:      map[string]interface{}{},
		CheckMode: check,
		Global:    engine.DefaultGlobalParams(),
	})
}

func TestCopyIdempotence(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.txt")
	params := mapParams("content", "hello\n", "dest", dest, "mode", "0600")

	res, err := run(t, "copy", params, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Fatal("first run must report changed")
	}

	res, err = run(t, "copy", params, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Fatal("second run must report changed=false")
	}

	raw, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "hello\n" {
		t.Errorf("content = %q", raw)
	}
	info, _ := os.Stat(dest)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o", info.Mode().Perm())
	}
}

func TestCopyCheckModePurity(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.txt")
	params := mapParams("content", "hello", "dest", dest)

	res, err := run(t, "copy", params, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Fatal("check mode must report the changed a wet run would produce")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("check mode must not touch the filesystem")
	}

	// The wet run reports the same changed flag.
	res, err = run(t, "copy", params, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Fatal("wet run after check must still report changed")
	}
}

func TestCopyDiff(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(dest, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := run(t, "copy", mapParams("content", "new\n", "dest", dest), true)
	if err != nil {
		t.Fatal(err)
	}
	diff, ok := res.Extra.MapGet("diff")
	if !ok {
		t.Fatal("expected a computed diff")
	}
	text := diff.Stringify()
	if !strings.Contains(text, "-old") || !strings.Contains(text, "+new") {
		t.Errorf("diff = %q", text)
	}
}

func TestCopyMutualExclusion(t *testing.T) {
	_, err := run(t, "copy", mapParams("dest", "/tmp/x"), false)
	if !engine.IsKind(err, engine.KindParamInvalid) {
		t.Fatalf("got %v", err)
	}
}

func TestCopyRejectsUnknownField(t *testing.T) {
	_, err := run(t, "copy", mapParams("content", "x", "dest", "/tmp/x", "bogus", "y"), false)
	if !engine.IsKind(err, engine.KindParamInvalid) {
		t.Fatalf("got %v", err)
	}
}

func TestFileStates(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "f")
	res, err := run(t, "file", mapParams("path", path), false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Error("touch on a missing file must change")
	}
	res, err = run(t, "file", mapParams("path", path), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("touch on an existing file must not change")
	}

	sub := filepath.Join(dir, "a", "b")
	res, err = run(t, "file", mapParams("path", sub, "state", "directory"), false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Error("directory creation must change")
	}

	res, err = run(t, "file", mapParams("path", path, "state", "absent"), false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Error("removal must change")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still present")
	}
	res, err = run(t, "file", mapParams("path", path, "state", "absent"), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("removing a missing file must not change")
	}
}

func TestFindMatches(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.log", ".hidden.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "d.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := run(t, "find", mapParams("paths", dir, "patterns", "*.txt"), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("find is read-only")
	}
	items, _ := res.Extra.AsSeq()
	if len(items) != 2 {
		t.Fatalf("matches = %v", res.Extra)
	}

	res, err = run(t, "find", mapParams("paths", dir, "patterns", "*.txt", "recurse", true), false)
	if err != nil {
		t.Fatal(err)
	}
	items, _ = res.Extra.AsSeq()
	if len(items) != 3 {
		t.Fatalf("recursive matches = %v", res.Extra)
	}
}

func TestSetVarsReturnsBindings(t *testing.T) {
	// Change detection happens in the interpreter's persistent-frame
	// merge; the module only hands the bindings over.
	res, err := run(t, "set_vars", mapParams("x", 1), false)
	if err != nil {
		t.Fatal(err)
	}
	x, _ := res.Vars.MapGet("x")
	if i, _ := x.AsInt(); i != 1 {
		t.Errorf("vars = %s", res.Vars)
	}

	_, err = run(t, "set_vars", value.StringValue("not a mapping"), false)
	if !engine.IsKind(err, engine.KindParamInvalid) {
		t.Fatalf("got %v", err)
	}
}

func TestAssert(t *testing.T) {
	res, err := run(t, "assert", mapParams("that", []interface{}{"1 == 1", "'a' == 'a'"}), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("assert never changes")
	}

	_, err = run(t, "assert", mapParams("that", []interface{}{"1 == 2"}), false)
	if !engine.IsKind(err, engine.KindModuleFailed) {
		t.Fatalf("got %v", err)
	}
}

func TestDebug(t *testing.T) {
	res, err := run(t, "debug", mapParams("msg", "hi"), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "hi" || res.Changed {
		t.Errorf("result = %+v", res)
	}

	m, _ := Get("debug")
	res, err = m.Execute(&Request{
		Params: mapParams("var", "x"),
		Vars:   map[string]interface{}{"x": "v"},
		Global: engine.DefaultGlobalParams(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "x: v" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCommandShortForm(t *testing.T) {
	m, _ := Get("command")
	res, err := m.Execute(&Request{
		Params: value.StringValue("echo hello"),
		Global: engine.DefaultGlobalParams(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || res.Output != "hello" {
		t.Errorf("result = %+v", res)
	}
	rc, _ := res.Extra.MapGet("rc")
	if i, _ := rc.AsInt(); i != 0 {
		t.Errorf("rc = %v", rc)
	}
}

func TestCommandArgv(t *testing.T) {
	res, err := run(t, "command",
		mapParams("argv", []interface{}{"echo", "a b"}), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "a b" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCommandNonZeroFails(t *testing.T) {
	_, err := run(t, "command", mapParams("cmd", "echo boom >&2; exit 7"), false)
	if !engine.IsKind(err, engine.KindModuleFailed) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), "rc 7") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v", err)
	}
}

func TestCommandCreatesSkips(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := run(t, "command", mapParams("cmd", "echo ran", "creates", marker), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed || !res.Skipped {
		t.Errorf("result = %+v", res)
	}

	res, err = run(t, "command", mapParams("cmd", "echo ran", "removes", marker+"-absent"), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed || !res.Skipped {
		t.Errorf("result = %+v", res)
	}
}

func TestCommandCheckMode(t *testing.T) {
	witness := filepath.Join(t.TempDir(), "w")
	res, err := run(t, "command", mapParams("cmd", "touch "+witness), true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Error("check mode must report the change it would make")
	}
	if _, err := os.Stat(witness); !os.IsNotExist(err) {
		t.Error("check mode must not spawn the command")
	}
}
