package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/rashlabs/rash/pkg/engine"
)

func plain(t *testing.T) func() {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	return func() { color.NoColor = prev }
}

func TestAnsibleStyleLines(t *testing.T) {
	defer plain(t)()
	var buf bytes.Buffer
	f := NewWriter(engine.OutputAnsible, false, &buf)

	f.TaskBanner("install packages")
	f.Ok("")
	f.Changed("wrote /tmp/x")
	f.Skipped("condition was false")
	f.Failed(errors.New("boom"))
	f.Ignored(errors.New("boom"))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if !strings.HasPrefix(lines[0], "TASK [install packages] **") {
		t.Errorf("banner = %q", lines[0])
	}
	if len(lines[0]) != 80 {
		t.Errorf("banner width = %d", len(lines[0]))
	}
	want := []string{"ok:", "changed: wrote /tmp/x", "skipped: condition was false",
		"failed: boom", "[ignoring error] boom"}
	for i, w := range want {
		if lines[i+1] != w {
			t.Errorf("line %d = %q, want %q", i+1, lines[i+1], w)
		}
	}
}

func TestRawStyleOnlyModuleOutput(t *testing.T) {
	defer plain(t)()
	var buf bytes.Buffer
	f := NewWriter(engine.OutputRaw, false, &buf)

	f.TaskBanner("noise")
	f.Ok("payload")
	f.Changed("")
	f.Skipped("reason")
	f.Ignored(errors.New("x"))

	if buf.String() != "payload\n" {
		t.Errorf("raw output = %q", buf.String())
	}
}

func TestDiffGatedByFlag(t *testing.T) {
	defer plain(t)()
	var off, on bytes.Buffer

	NewWriter(engine.OutputAnsible, false, &off).Diff("-a\n+b\n")
	if off.Len() != 0 {
		t.Errorf("diff printed while disabled: %q", off.String())
	}

	NewWriter(engine.OutputAnsible, true, &on).Diff("--- f\n+++ f\n-a\n+b\n")
	out := on.String()
	if !strings.Contains(out, "-a") || !strings.Contains(out, "+b") {
		t.Errorf("diff = %q", out)
	}
}
