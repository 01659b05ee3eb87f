package docopt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// Option is one entry of the Options section.
type Option struct {
	// Short is the single-letter alias without the dash, "" if none.
	Short string
	// Long is the long alias without the dashes, "" if none.
	Long string
	// TakesValue reports whether the option carries an argument.
	TakesValue bool
	// Default is the documented default for value-taking options.
	Default    string
	HasDefault bool

	order int
}

// key returns the name the option is stored under in the options submap.
func (o *Option) key() string {
	if o.Long != "" {
		return variableName(o.Long)
	}
	return o.Short
}

type optionTable struct {
	byAlias map[string]*Option // keyed by "-x" and "--name"
	list    []*Option
}

var defaultRe = regexp.MustCompile(`\[default:\s*([^\]]*)\]`)

// parseOptions scans the doc block for option definition lines: lines whose
// first non-space character is a dash. A definition names its aliases, an
// optional argument placeholder, and a description that may carry a
// [default: ...] annotation.
func parseOptions(doc string) (*optionTable, error) {
	table := &optionTable{byAlias: map[string]*Option{}}
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		spec, desc := splitOptionLine(trimmed)
		opt, err := parseOptionSpec(spec)
		if err != nil {
			return nil, engine.WrapError(engine.KindDocoptMalformed,
				fmt.Sprintf("invalid option line %q", trimmed), err)
		}
		if m := defaultRe.FindStringSubmatch(desc); m != nil {
			opt.Default = m[1]
			opt.HasDefault = true
			opt.TakesValue = true
		}
		opt.order = len(table.list)
		table.list = append(table.list, opt)
		if opt.Short != "" {
			table.byAlias["-"+opt.Short] = opt
		}
		if opt.Long != "" {
			table.byAlias["--"+opt.Long] = opt
		}
	}
	return table, nil
}

// splitOptionLine separates the alias spec from the description on the
// first run of two or more spaces.
func splitOptionLine(line string) (spec, desc string) {
	if idx := strings.Index(line, "  "); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx:])
	}
	return line, ""
}

func parseOptionSpec(spec string) (*Option, error) {
	opt := &Option{}
	fields := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	for _, field := range fields {
		switch {
		case strings.HasPrefix(field, "--"):
			name, arg, joined := strings.Cut(field[2:], "=")
			if name == "" {
				return nil, fmt.Errorf("empty long option")
			}
			opt.Long = name
			if joined && arg != "" {
				opt.TakesValue = true
			}
		case strings.HasPrefix(field, "-") && len(field) >= 2:
			opt.Short = field[1:2]
			if len(field) > 2 {
				opt.TakesValue = true
			}
		default:
			// A bare placeholder after an alias: -o FILE, --number N.
			if isPlaceholder(field) {
				opt.TakesValue = true
			}
		}
	}
	if opt.Short == "" && opt.Long == "" {
		return nil, fmt.Errorf("no alias found")
	}
	return opt, nil
}

// isPlaceholder reports whether a usage word stands for an option argument:
// <name> or an all-uppercase word.
func isPlaceholder(word string) bool {
	if strings.HasPrefix(word, "<") && strings.HasSuffix(word, ">") {
		return true
	}
	if word == "" {
		return false
	}
	for _, r := range word {
		if (r < 'A' || r > 'Z') && r != '_' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// optionEvent is one occurrence of an option in the argv.
type optionEvent struct {
	opt   *Option
	value string // only for value-taking options
}

// splitArgv separates option occurrences from the positional token stream,
// honouring the `--` anchor, =-joined long values, space or attached short
// values, and stacked short flags.
func (s *Spec) splitArgv(argv []string) ([]optionEvent, []string, error) {
	var events []optionEvent
	var positionals []string

	noMatch := func(format string, args ...interface{}) error {
		return engine.NewErrorf(engine.KindDocoptNoMatch,
			"%s\nargv: %v\n%s", fmt.Sprintf(format, args...), argv, s.Doc)
	}

	i := 0
	for i < len(argv) {
		tok := argv[i]
		switch {
		case tok == "--":
			positionals = append(positionals, argv[i+1:]...)
			return events, positionals, nil

		case strings.HasPrefix(tok, "--"):
			name, val, joined := strings.Cut(tok, "=")
			opt, ok := s.options.byAlias[name]
			if !ok {
				return nil, nil, noMatch("unknown option %s", name)
			}
			if opt.TakesValue {
				if !joined {
					i++
					if i >= len(argv) {
						return nil, nil, noMatch("option %s requires a value", name)
					}
					val = argv[i]
				}
				events = append(events, optionEvent{opt: opt, value: val})
			} else {
				if joined {
					return nil, nil, noMatch("option %s does not take a value", name)
				}
				events = append(events, optionEvent{opt: opt})
			}

		case strings.HasPrefix(tok, "-") && len(tok) > 1:
			rest := tok[1:]
			for rest != "" {
				letter := rest[:1]
				rest = rest[1:]
				opt, ok := s.options.byAlias["-"+letter]
				if !ok {
					return nil, nil, noMatch("unknown option -%s", letter)
				}
				if opt.TakesValue {
					val := rest
					if val == "" {
						i++
						if i >= len(argv) {
							return nil, nil, noMatch("option -%s requires a value", letter)
						}
						val = argv[i]
					}
					events = append(events, optionEvent{opt: opt, value: val})
					rest = ""
				} else {
					events = append(events, optionEvent{opt: opt})
				}
			}

		default:
			positionals = append(positionals, tok)
		}
		i++
	}
	return events, positionals, nil
}

// resultMap builds the options submap: every declared option is present,
// value-taking options carry the last occurrence, the documented default,
// or null; flags carry booleans. Short aliases are recorded under the
// single-letter key as well.
func (t *optionTable) resultMap(events []optionEvent) value.Value {
	out := value.NewMap()
	for _, opt := range t.list {
		var v value.Value
		if opt.TakesValue {
			v = value.Null()
			if opt.HasDefault {
				v = value.StringValue(opt.Default)
			}
		} else {
			v = value.BoolValue(false)
		}
		for _, ev := range events {
			if ev.opt != opt {
				continue
			}
			if opt.TakesValue {
				v = value.StringValue(ev.value)
			} else {
				v = value.BoolValue(true)
			}
		}
		out.MapSet(opt.key(), v)
		if opt.Short != "" && opt.Long != "" {
			out.MapSet(opt.Short, v)
		}
	}
	return out
}
