// Package script loads a rash script: it validates the encoding, separates
// the shebang and the doc block from the YAML body, compiles the embedded
// usage spec, and produces the ordered task program.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/rashlabs/rash/pkg/docopt"
	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// Script is a loaded task program plus its compiled usage spec.
type Script struct {
	// Path is the canonical script path, exposed as rash.path.
	Path string
	// Dir is the script's parent directory, exposed as rash.dir.
	Dir string
	// Tasks holds the raw task mappings in declaration order.
	Tasks []value.Value
	// DocBlock is the header comment block, "" when absent.
	DocBlock string
	// Usage is the compiled usage spec, nil when the doc block has no
	// Usage section.
	Usage *docopt.Spec
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.WrapError(engine.KindScriptSyntax,
			fmt.Sprintf("cannot read script %s", path), err)
	}
	return parse(string(raw), path)
}

// LoadInline parses an inline script source; logicalPath serves as
// rash.path for the run.
func LoadInline(source, logicalPath string) (*Script, error) {
	return parse(source, logicalPath)
}

func parse(source, path string) (*Script, error) {
	if !utf8.ValidString(source) {
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"script %s is not valid UTF-8", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	s := &Script{
		Path:     abs,
		Dir:      filepath.Dir(abs),
		DocBlock: extractDocBlock(source),
	}

	if s.DocBlock != "" {
		spec, err := docopt.Compile(s.DocBlock)
		if err != nil {
			return nil, err
		}
		s.Usage = spec
	}

	tasks, err := parseBody(source, path)
	if err != nil {
		return nil, err
	}
	s.Tasks = tasks
	return s, nil
}

// extractDocBlock collects the contiguous comment lines at the head of the
// file, starting from the first non-empty line, with the shebang dropped.
// The leading marker and one following space are stripped from each line,
// matching what --help prints.
func extractDocBlock(source string) string {
	var out []string
	started := false
	for i, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if !started && trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		started = true
		if i == 0 && strings.HasPrefix(trimmed, "#!") {
			continue
		}
		text := strings.TrimPrefix(trimmed, "#")
		text = strings.TrimPrefix(text, " ")
		out = append(out, text)
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

// parseBody parses the YAML body. Comment lines (the shebang and the doc
// block included) are YAML comments, so the whole source is one document.
// The top-level node must be a sequence of mappings.
func parseBody(source, path string) ([]value.Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(source), &root); err != nil {
		return nil, engine.WrapError(engine.KindScriptSyntax,
			fmt.Sprintf("invalid YAML in %s", path), err)
	}
	if root.Kind == 0 {
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"script %s has no tasks", path)
	}

	doc, err := value.FromYAMLNode(&root)
	if err != nil {
		return nil, engine.WrapError(engine.KindScriptSyntax,
			fmt.Sprintf("invalid YAML in %s", path), err)
	}

	tasks, ok := doc.AsSeq()
	if !ok {
		return nil, engine.NewErrorf(engine.KindScriptSyntax,
			"script %s: top level must be a task sequence, got %s", path, doc.Kind())
	}
	for i, t := range tasks {
		if t.Kind() != value.KindMap {
			return nil, engine.NewErrorf(engine.KindScriptSyntax,
				"script %s: task %d must be a mapping, got %s", path, i+1, t.Kind())
		}
	}
	return tasks, nil
}
