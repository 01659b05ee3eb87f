package executor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/output"
	"github.com/rashlabs/rash/pkg/script"
	"github.com/rashlabs/rash/pkg/value"
	"github.com/rashlabs/rash/pkg/vars"
)

type harness struct {
	exec *Executor
	ctx  *vars.Context
	buf  *bytes.Buffer
}

func newHarness(t *testing.T, global *engine.GlobalParams) *harness {
	t.Helper()
	color.NoColor = true
	if global == nil {
		global = engine.DefaultGlobalParams()
	}
	ctx := vars.New(vars.Builtins("/virtual/test.rh", nil), vars.LoadEnv(nil), nil)
	buf := &bytes.Buffer{}
	out := output.NewWriter(global.Output, global.DiffMode, buf)
	return &harness{
		exec: New(global, ctx, out, "/virtual"),
		ctx:  ctx,
		buf:  buf,
	}
}

func (h *harness) run(t *testing.T, source string) error {
	t.Helper()
	s, err := script.LoadInline(source, "/virtual/test.rh")
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := ParseProgram(s.Tasks)
	if err != nil {
		t.Fatal(err)
	}
	return h.exec.RunProgram(tasks)
}

func countLines(buf *bytes.Buffer, prefix string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestAssertPass(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- assert:
    that:
      - "1 == 1"
      - "rash.path != ''"
`)
	if err != nil {
		t.Fatal(err)
	}
	if countLines(h.buf, "ok:") != 1 {
		t.Errorf("output = %q", h.buf.String())
	}
}

func TestLoopWithRescue(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command:
    cmd: "exit 1"
  loop: [1, 2, 3]
  rescue:
    - debug:
        msg: r
`)
	if err != nil {
		t.Fatalf("rescued failures must not abort: %v", err)
	}
	if got := countLines(h.buf, "failed:"); got != 3 {
		t.Errorf("failed lines = %d\n%s", got, h.buf.String())
	}
	if got := countLines(h.buf, "ok: r"); got != 3 {
		t.Errorf("rescue ok lines = %d\n%s", got, h.buf.String())
	}
}

func TestRegisterAndWhen(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, nil)
	err := h.run(t, `
- find:
    paths: `+dir+`
  register: f
- debug:
    msg: matched
  when: "f.extra | length > 0"
- debug:
    msg: unmatched
  when: "f.extra | length == 0"
`)
	if err != nil {
		t.Fatal(err)
	}
	out := h.buf.String()
	if !strings.Contains(out, "ok: matched") {
		t.Errorf("gated task did not run:\n%s", out)
	}
	if strings.Contains(out, "ok: unmatched") {
		t.Errorf("inverse gate ran:\n%s", out)
	}
	if countLines(h.buf, "skipped:") != 1 {
		t.Errorf("expected one skipped line:\n%s", out)
	}
}

func TestOmitPropagation(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")
	h := newHarness(t, nil)
	// MODE is not exported, so the copy module must see no mode field at
	// all, not a null and not an empty string.
	err := h.run(t, `
- copy:
    content: data
    dest: `+dest+`
    mode: "{{ env.MODE | default(omit) }}"
`)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "data" {
		t.Errorf("content = %q", raw)
	}
	info, _ := os.Stat(dest)
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %o, want the default", info.Mode().Perm())
	}
}

func TestTaskVarsDoNotLeak(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- debug:
    msg: "{{ x }}"
  vars:
    x: 1
- debug:
    msg: "still here"
`)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := h.ctx.Get("x"); ok {
		t.Fatal("task vars leaked beyond the task")
	}
}

func TestSetVarsPersists(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- set_vars:
    x: 1
- assert:
    that:
      - "x == 1"
`)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := h.ctx.Get("x")
	if !ok {
		t.Fatal("set_vars binding missing")
	}
	if i, _ := v.AsInt(); i != 1 {
		t.Errorf("x = %v", v)
	}
}

func TestSetVarsIdempotence(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- set_vars:
    x: 1
- set_vars:
    x: 1
- set_vars:
    x: 2
`)
	if err != nil {
		t.Fatal(err)
	}
	// First binding and the value change report changed; the identical
	// re-binding reports ok.
	if got := countLines(h.buf, "changed:"); got != 2 {
		t.Errorf("changed lines = %d\n%s", got, h.buf.String())
	}
	if got := countLines(h.buf, "ok:"); got != 1 {
		t.Errorf("ok lines = %d\n%s", got, h.buf.String())
	}
}

func TestSetVarsFirstRunChangesDespiteEnvCollision(t *testing.T) {
	os.Setenv("RASH_COLLIDE", "same")
	defer os.Unsetenv("RASH_COLLIDE")

	h := newHarness(t, nil)
	// The binding value equals an existing env-derived value; the first
	// run must still report changed because the persistent frame does not
	// hold it yet.
	err := h.run(t, `
- set_vars:
    collide: same
`)
	if err != nil {
		t.Fatal(err)
	}
	if got := countLines(h.buf, "changed:"); got != 1 {
		t.Errorf("changed lines = %d\n%s", got, h.buf.String())
	}
}

func TestSkippedTaskRegisters(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command: "echo never"
  when: "false"
  register: r
- assert:
    that:
      - "r.skipped"
      - "not r.failed"
      - "not r.changed"
`)
	if err != nil {
		t.Fatalf("skipped task must still register: %v", err)
	}
}

func TestIgnoredErrorRegisters(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command: "exit 1"
  ignore_errors: true
  register: r
- assert:
    that:
      - "r.failed"
      - "not r.changed"
`)
	if err != nil {
		t.Fatalf("ignored failure must still register: %v", err)
	}
}

func TestTaskVarsWinOverSetVars(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- set_vars:
    x: global
- assert:
    that:
      - "x == 'local'"
  vars:
    x: local
- assert:
    that:
      - "x == 'global'"
`)
	if err != nil {
		t.Fatal(err)
	}
}

func TestBlockRescueAlwaysOrdering(t *testing.T) {
	h := newHarness(t, nil)

	// Success: B then A, R skipped.
	err := h.run(t, `
- block:
    - debug: {msg: B}
  rescue:
    - debug: {msg: R}
  always:
    - debug: {msg: A}
`)
	if err != nil {
		t.Fatal(err)
	}
	out := h.buf.String()
	bIdx, aIdx := strings.Index(out, "ok: B"), strings.Index(out, "ok: A")
	if bIdx < 0 || aIdx < 0 || bIdx > aIdx {
		t.Errorf("ordering wrong:\n%s", out)
	}
	if strings.Contains(out, "ok: R") {
		t.Errorf("rescue ran on success:\n%s", out)
	}

	// Failure: B, R, A in order.
	h = newHarness(t, nil)
	err = h.run(t, `
- block:
    - command: "exit 1"
  rescue:
    - debug: {msg: R}
  always:
    - debug: {msg: A}
`)
	if err != nil {
		t.Fatal(err)
	}
	out = h.buf.String()
	rIdx, aIdx := strings.Index(out, "ok: R"), strings.Index(out, "ok: A")
	if rIdx < 0 || aIdx < 0 || rIdx > aIdx {
		t.Errorf("ordering wrong:\n%s", out)
	}
}

func TestRescueSeesTaskVars(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command: "exit 1"
  vars:
    x: scoped
  rescue:
    - assert:
        that:
          - "x == 'scoped'"
`)
	if err != nil {
		t.Fatalf("rescue must run in the same scope as the body: %v", err)
	}
}

func TestAlwaysRunsOnUnrescuedFailure(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command: "exit 1"
  always:
    - debug: {msg: A}
`)
	if err == nil {
		t.Fatal("unrescued failure must propagate")
	}
	if !strings.Contains(h.buf.String(), "ok: A") {
		t.Errorf("always did not run:\n%s", h.buf.String())
	}
}

func TestIgnoreErrors(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command: "exit 1"
  ignore_errors: true
- debug: {msg: next}
`)
	if err != nil {
		t.Fatal(err)
	}
	out := h.buf.String()
	if !strings.Contains(out, "[ignoring error]") || !strings.Contains(out, "ok: next") {
		t.Errorf("output:\n%s", out)
	}
}

func TestChangedWhenOverride(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- command: "echo hi"
  changed_when: "false"
`)
	if err != nil {
		t.Fatal(err)
	}
	if countLines(h.buf, "changed:") != 0 || countLines(h.buf, "ok:") != 1 {
		t.Errorf("output:\n%s", h.buf.String())
	}
}

func TestLoopItemBinding(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- debug:
    msg: "got {{ item }}"
  loop: [a, b]
`)
	if err != nil {
		t.Fatal(err)
	}
	out := h.buf.String()
	if !strings.Contains(out, "ok: got a") || !strings.Contains(out, "ok: got b") {
		t.Errorf("output:\n%s", out)
	}
	if _, ok := h.ctx.Get("item"); ok {
		t.Fatal("item leaked past the loop")
	}
}

func TestLoopOverTemplatedSequence(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- set_vars:
    xs: [1, 2, 3]
- debug:
    msg: "{{ item }}"
  loop: "{{ xs }}"
  register: last
`)
	if err != nil {
		t.Fatal(err)
	}
	// set_vars reports changed; the three loop iterations report ok.
	if got := countLines(h.buf, "ok:"); got != 3 {
		t.Errorf("ok lines = %d\n%s", got, h.buf.String())
	}
	if got := countLines(h.buf, "changed:"); got != 1 {
		t.Errorf("changed lines = %d\n%s", got, h.buf.String())
	}
}

func TestRegisterVisibleInInclude(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "inner.rh")
	if err := os.WriteFile(inc, []byte(`
- assert:
    that:
      - "r.output == 'hi'"
- set_vars:
    from_include: yes
`), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, nil)
	err := h.run(t, `
- command: "echo hi"
  register: r
- include: `+inc+`
- assert:
    that:
      - from_include
`)
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckModePropagates(t *testing.T) {
	global := engine.DefaultGlobalParams()
	global.CheckMode = true
	dest := filepath.Join(t.TempDir(), "out")

	h := newHarness(t, global)
	err := h.run(t, `
- copy:
    content: data
    dest: `+dest+`
`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("check mode wrote to disk")
	}
	if countLines(h.buf, "changed:") != 1 {
		t.Errorf("output:\n%s", h.buf.String())
	}
}

func TestWhenSkips(t *testing.T) {
	h := newHarness(t, nil)
	err := h.run(t, `
- debug: {msg: never}
  when: "false"
`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(h.buf.String(), "ok: never") {
		t.Errorf("gated task ran:\n%s", h.buf.String())
	}
	if countLines(h.buf, "skipped:") != 1 {
		t.Errorf("output:\n%s", h.buf.String())
	}
}

func TestUnknownModule(t *testing.T) {
	h := newHarness(t, nil)
	s, err := script.LoadInline("- pacman:\n    name: vim\n", "/virtual/test.rh")
	if err != nil {
		t.Fatal(err)
	}
	_, err = ParseProgram(s.Tasks)
	if !engine.IsKind(err, engine.KindModuleNotFound) {
		t.Fatalf("got %v", err)
	}
	_ = h
}

func TestTaskShapeErrors(t *testing.T) {
	_, err := ParseTask(value.StringValue("not a mapping"))
	if !engine.IsKind(err, engine.KindScriptSyntax) {
		t.Fatalf("got %v", err)
	}

	two := value.NewMap()
	two.MapSet("command", value.StringValue("ls"))
	two.MapSet("debug", value.StringValue("x"))
	_, err = ParseTask(two)
	if !engine.IsKind(err, engine.KindScriptSyntax) {
		t.Fatalf("got %v", err)
	}

	onlyName := value.NewMap()
	onlyName.MapSet("name", value.StringValue("x"))
	_, err = ParseTask(onlyName)
	if !engine.IsKind(err, engine.KindScriptSyntax) {
		t.Fatalf("got %v", err)
	}
}
