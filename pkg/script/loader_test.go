package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rashlabs/rash/pkg/engine"
)

const sample = `#!/usr/bin/env rash
#
# dots easy manage of your dotfiles.
#
# Usage:
#   ./dots (install|update) <package-filters>...
#
- name: first
  command: ls
- debug:
    msg: hi
`

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dots.rh")
	if err := os.WriteFile(path, []byte(sample), 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Tasks) != 2 {
		t.Fatalf("tasks = %d", len(s.Tasks))
	}
	if s.Usage == nil {
		t.Fatal("usage spec must be compiled from the doc block")
	}
	if s.Dir != dir {
		t.Errorf("dir = %q", s.Dir)
	}
	name, _ := s.Tasks[0].MapGet("name")
	if name.Stringify() != "first" {
		t.Errorf("task name = %v", name)
	}
}

func TestDocBlockExtraction(t *testing.T) {
	got := extractDocBlock(sample)
	want := "\ndots easy manage of your dotfiles.\n\nUsage:\n  ./dots (install|update) <package-filters>...\n\n"
	if got != want {
		t.Errorf("doc block = %q\nwant %q", got, want)
	}
}

func TestDocBlockStopsAtBody(t *testing.T) {
	got := extractDocBlock("# doc\n- command: ls\n# not doc\n")
	if got != "doc\n" {
		t.Errorf("doc block = %q", got)
	}
}

func TestNoDocBlock(t *testing.T) {
	s, err := LoadInline("- command: ls\n", "/virtual/x.rh")
	if err != nil {
		t.Fatal(err)
	}
	if s.DocBlock != "" || s.Usage != nil {
		t.Errorf("doc block = %q, usage = %v", s.DocBlock, s.Usage)
	}
}

func TestTopLevelMustBeSequence(t *testing.T) {
	_, err := LoadInline("command: ls\n", "/virtual/x.rh")
	if !engine.IsKind(err, engine.KindScriptSyntax) {
		t.Fatalf("got %v", err)
	}
}

func TestInvalidYAML(t *testing.T) {
	_, err := LoadInline("- command: [unclosed\n", "/virtual/x.rh")
	if !engine.IsKind(err, engine.KindScriptSyntax) {
		t.Fatalf("got %v", err)
	}
}

func TestInvalidUTF8(t *testing.T) {
	_, err := LoadInline("- command: \xff\xfe\n", "/virtual/x.rh")
	if !engine.IsKind(err, engine.KindScriptSyntax) {
		t.Fatalf("got %v", err)
	}
}
