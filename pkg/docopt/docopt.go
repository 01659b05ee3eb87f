// Package docopt compiles the Usage/Options block embedded in a script's
// header comments into a deterministic argv parser. The compiler expands
// usage patterns into flat candidate sequences ahead of time; parsing an
// argv scores the candidates and produces the variable mapping merged into
// the script's variable context.
//
// The output contract: positional atoms appear as top-level keys (lower
// cased, hyphens replaced by underscores; repeated atoms become sequences,
// absent atoms are omitted), command words appear as top-level booleans,
// and options are grouped under the "options" key.
package docopt

import (
	"fmt"
	"strings"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// Spec is a compiled usage specification.
type Spec struct {
	// Doc is the original doc block, printed verbatim for --help.
	Doc string

	options    *optionTable
	candidates []candidate
	commands   []string // every command word, declaration ordered
}

// Compile parses a doc block. It returns (nil, nil) when the block has no
// Usage section: a script without a usage spec still runs, it just gets no
// parsed arguments.
func Compile(doc string) (*Spec, error) {
	usageLines := parseUsageLines(doc)
	if len(usageLines) == 0 {
		return nil, nil
	}

	opts, err := parseOptions(doc)
	if err != nil {
		return nil, err
	}

	spec := &Spec{Doc: doc, options: opts}
	seenCommands := map[string]bool{}

	for order, line := range usageLines {
		root, err := parsePattern(line, opts)
		if err != nil {
			return nil, engine.WrapError(engine.KindDocoptMalformed,
				fmt.Sprintf("invalid usage line %q in:\n%s", line, doc), err)
		}
		cands, err := expand(root, order)
		if err != nil {
			return nil, err
		}
		spec.candidates = append(spec.candidates, cands...)
	}

	spec.candidates = prune(spec.candidates)

	for _, c := range spec.candidates {
		for _, t := range c.toks {
			if t.kind == tokCommand && !seenCommands[t.name] {
				seenCommands[t.name] = true
				spec.commands = append(spec.commands, t.name)
			}
		}
	}
	return spec, nil
}

// parseUsageLines extracts the usage pattern lines: either the remainder of
// a one-line `Usage: prog ...` or the indented lines following `Usage:`.
func parseUsageLines(doc string) []string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "usage:") {
			continue
		}
		rest := strings.TrimSpace(trimmed[len("usage:"):])
		if rest != "" {
			return []string{rest}
		}
		var out []string
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) == "" || !strings.HasPrefix(next, " ") {
				break
			}
			out = append(out, strings.TrimSpace(next))
		}
		return out
	}
	return nil
}

// Parse matches argv against the compiled usage patterns and builds the
// variable mapping. --help/-h is privileged: when present before the `--`
// anchor the returned error is GracefulExit carrying the doc block.
func (s *Spec) Parse(argv []string) (value.Value, error) {
	for _, a := range argv {
		if a == "--" {
			break
		}
		if a == "-h" || a == "--help" {
			return value.Value{}, engine.NewError(engine.KindGracefulExit, s.Doc)
		}
	}

	events, positionals, err := s.splitArgv(argv)
	if err != nil {
		return value.Value{}, err
	}

	match, err := s.matchCandidates(positionals, argv)
	if err != nil {
		return value.Value{}, err
	}

	result := value.NewMap()
	for _, cmd := range s.commands {
		result.MapSet(variableName(cmd), value.BoolValue(match.commands[cmd]))
	}
	for _, name := range match.order {
		binding := match.bindings[name]
		if binding.repeated {
			items := make([]value.Value, len(binding.values))
			for i, v := range binding.values {
				items[i] = value.StringValue(v)
			}
			result.MapSet(variableName(name), value.SeqValue(items...))
		} else {
			result.MapSet(variableName(name), value.StringValue(binding.values[0]))
		}
	}
	result.MapSet("options", s.options.resultMap(events))
	return result, nil
}

// variableName normalises an atom name: lower case, hyphens to underscores.
func variableName(atom string) string {
	return strings.ReplaceAll(strings.ToLower(atom), "-", "_")
}
