package docopt

import (
	"fmt"
	"strings"

	"github.com/rashlabs/rash/pkg/engine"
)

// nodeKind tags a usage pattern tree node.
type nodeKind int

const (
	nCommand nodeKind = iota
	nPositional
	nOption
	nOptionsShortcut
	nSeq
	nAlt
	nOptional
	nRepeat
)

type node struct {
	kind     nodeKind
	word     string
	children []*node
	group    int // repeat group id, assigned when a nRepeat is created
}

func (n *node) isAtom() bool {
	switch n.kind {
	case nCommand, nPositional, nOption, nOptionsShortcut:
		return true
	default:
		return false
	}
}

// lexUsage splits a usage line into tokens: words, brackets, parentheses,
// the pipe, and the ellipsis (which may be attached to a word or group).
func lexUsage(line string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			flush()
			i++
		case c == '[' || c == ']' || c == '(' || c == ')' || c == '|':
			flush()
			toks = append(toks, string(c))
			i++
		case strings.HasPrefix(line[i:], "..."):
			flush()
			toks = append(toks, "...")
			i += 3
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	return toks
}

type groupFrame struct {
	optional bool
	alts     [][]*node
	cur      []*node
}

var repeatGroups int

// parsePattern parses one usage line (program name included) into a tree.
// The parser is a loop over an explicit group stack, not recursive descent,
// so arbitrarily nested usages cannot exhaust the call stack.
func parsePattern(line string, opts *optionTable) (*node, error) {
	toks := lexUsage(line)
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty usage line")
	}
	toks = toks[1:] // skip the program name

	stack := []*groupFrame{{}}
	top := func() *groupFrame { return stack[len(stack)-1] }

	appendAtom := func(n *node) { top().cur = append(top().cur, n) }

	closeGroup := func(optional bool) error {
		if len(stack) == 1 {
			return fmt.Errorf("unbalanced group close")
		}
		frame := top()
		if frame.optional != optional {
			return fmt.Errorf("mismatched group delimiters")
		}
		stack = stack[:len(stack)-1]

		frame.alts = append(frame.alts, frame.cur)
		var body *node
		if len(frame.alts) == 1 {
			body = &node{kind: nSeq, children: frame.alts[0]}
		} else {
			branches := make([]*node, len(frame.alts))
			for i, alt := range frame.alts {
				branches[i] = &node{kind: nSeq, children: alt}
			}
			body = &node{kind: nAlt, children: branches}
		}
		// [options] is the shortcut form, not an optional command word.
		if optional && len(frame.alts) == 1 && len(frame.alts[0]) == 1 &&
			frame.alts[0][0].kind == nCommand && frame.alts[0][0].word == "options" {
			appendAtom(&node{kind: nOptionsShortcut})
			return nil
		}
		if optional {
			body = &node{kind: nOptional, children: []*node{body}}
		}
		appendAtom(body)
		return nil
	}

	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch tok {
		case "(":
			stack = append(stack, &groupFrame{})
		case "[":
			stack = append(stack, &groupFrame{optional: true})
		case ")":
			if err := closeGroup(false); err != nil {
				return nil, err
			}
		case "]":
			if err := closeGroup(true); err != nil {
				return nil, err
			}
		case "|":
			frame := top()
			frame.alts = append(frame.alts, frame.cur)
			frame.cur = nil
		case "...":
			frame := top()
			if len(frame.cur) == 0 {
				return nil, fmt.Errorf("ellipsis without a preceding atom")
			}
			last := frame.cur[len(frame.cur)-1]
			repeatGroups++
			frame.cur[len(frame.cur)-1] = &node{
				kind:     nRepeat,
				children: []*node{last},
				group:    repeatGroups,
			}
		default:
			atom, err := wordAtom(tok, opts)
			if err != nil {
				return nil, err
			}
			if atom != nil {
				appendAtom(atom)
			}
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unbalanced group open")
	}
	frame := top()
	frame.alts = append(frame.alts, frame.cur)
	if len(frame.alts) == 1 {
		return &node{kind: nSeq, children: frame.alts[0]}, nil
	}
	branches := make([]*node, len(frame.alts))
	for i, alt := range frame.alts {
		branches[i] = &node{kind: nSeq, children: alt}
	}
	return &node{kind: nAlt, children: branches}, nil
}

func wordAtom(word string, opts *optionTable) (*node, error) {
	switch {
	case word == "--":
		// The anchor is handled by the argv splitter; in a pattern it
		// carries no information.
		return nil, nil
	case strings.HasPrefix(word, "<") && strings.HasSuffix(word, ">"):
		return &node{kind: nPositional, word: word[1 : len(word)-1]}, nil
	case strings.HasPrefix(word, "-") && word != "-":
		name, _, _ := strings.Cut(word, "=")
		if _, ok := opts.byAlias[name]; !ok {
			// Usage may name options the Options section omits; register
			// them as flags so the argv splitter accepts them.
			opt := &Option{order: len(opts.list)}
			if strings.HasPrefix(name, "--") {
				opt.Long = name[2:]
			} else if len(name) == 2 {
				opt.Short = name[1:]
			} else {
				return nil, fmt.Errorf("malformed option %q", word)
			}
			opts.list = append(opts.list, opt)
			opts.byAlias[name] = opt
		}
		return &node{kind: nOption, word: name}, nil
	case isPlaceholder(word):
		return &node{kind: nPositional, word: word}, nil
	default:
		return &node{kind: nCommand, word: word}, nil
	}
}

// tokenKind tags a flat candidate token.
type tokenKind int

const (
	tokCommand tokenKind = iota
	tokPositional
	tokOption
)

type token struct {
	kind  tokenKind
	name  string
	group int // repeat group id, 0 when the token does not repeat
}

type candidate struct {
	toks  []token
	order int
}

func (c candidate) signature() string {
	var b strings.Builder
	for _, t := range c.toks {
		fmt.Fprintf(&b, "%d:%s:%d;", t.kind, t.name, t.group)
	}
	return b.String()
}

const maxCandidates = 4096

// expand distributes Alt and Optional nodes into flat candidate sequences.
// The traversal is a FIFO work queue with a visited-signature pruner, not
// recursion: deeply nested alternations must not overflow the stack, and a
// pathological pattern is reported instead of exploding.
func expand(root *node, order int) ([]candidate, error) {
	queue := [][]*node{{root}}
	seen := map[string]bool{}
	var done []candidate

	for len(queue) > 0 {
		if len(queue)+len(done) > maxCandidates {
			return nil, engine.NewErrorf(engine.KindDocoptMalformed,
				"usage pattern expands to more than %d candidates", maxCandidates)
		}
		work := queue[0]
		queue = queue[1:]

		idx := -1
		for i, n := range work {
			if n.isAtom() {
				continue
			}
			// A repeat over an already-atomic body is terminal; flatten
			// tags its atoms with the group id.
			if n.kind == nRepeat && isAtomicSeq(n.children[0]) {
				continue
			}
			idx = i
			break
		}

		if idx < 0 {
			cand := flatten(work, order)
			sig := cand.signature()
			if !seen[sig] {
				seen[sig] = true
				done = append(done, cand)
			}
			continue
		}

		for _, variant := range step(work[idx]) {
			next := make([]*node, 0, len(work)+len(variant))
			next = append(next, work[:idx]...)
			next = append(next, variant...)
			next = append(next, work[idx+1:]...)
			queue = append(queue, next)
		}
	}
	return done, nil
}

// step rewrites one non-atom node into its expansion variants.
func step(n *node) [][]*node {
	switch n.kind {
	case nSeq:
		return [][]*node{n.children}
	case nOptional:
		return [][]*node{n.children, {}}
	case nAlt:
		variants := make([][]*node, len(n.children))
		for i, c := range n.children {
			variants[i] = []*node{c}
		}
		return variants
	case nRepeat:
		child := n.children[0]
		if isAtomicSeq(child) {
			return [][]*node{{n}} // handled by flatten
		}
		inner := step(firstNonAtomInside(child))
		variants := make([][]*node, len(inner))
		for i, v := range inner {
			variants[i] = []*node{{
				kind:     nRepeat,
				children: []*node{replaceFirstNonAtom(child, v)},
				group:    n.group,
			}}
		}
		return variants
	default:
		return [][]*node{{n}}
	}
}

func isAtomicSeq(n *node) bool {
	if n.isAtom() {
		return true
	}
	if n.kind != nSeq {
		return false
	}
	for _, c := range n.children {
		if !c.isAtom() {
			return false
		}
	}
	return true
}

func firstNonAtomInside(n *node) *node {
	if !n.isAtom() && n.kind != nSeq {
		return n
	}
	for _, c := range n.children {
		if !c.isAtom() {
			return firstNonAtomInside(c)
		}
	}
	return n
}

// replaceFirstNonAtom rebuilds n with its first non-atom descendant
// replaced by the given variant nodes.
func replaceFirstNonAtom(n *node, variant []*node) *node {
	if !n.isAtom() && n.kind != nSeq {
		return &node{kind: nSeq, children: variant}
	}
	if n.isAtom() {
		return n
	}
	out := &node{kind: nSeq}
	replaced := false
	for _, c := range n.children {
		if !replaced && !c.isAtom() {
			out.children = append(out.children, replaceFirstNonAtom(c, variant))
			replaced = true
			continue
		}
		out.children = append(out.children, c)
	}
	return out
}

// flatten converts a fully atomic work list (plus trailing atomic repeats)
// into a candidate. Atoms under a repeat carry its group id.
func flatten(work []*node, order int) candidate {
	var toks []token
	var emit func(n *node, group int)
	emit = func(n *node, group int) {
		switch n.kind {
		case nCommand:
			toks = append(toks, token{kind: tokCommand, name: n.word, group: group})
		case nPositional:
			toks = append(toks, token{kind: tokPositional, name: n.word, group: group})
		case nOption:
			toks = append(toks, token{kind: tokOption, name: n.word, group: group})
		case nOptionsShortcut:
			// Options float freely in the argv; the shortcut adds nothing
			// to the positional stream.
		case nRepeat:
			for _, c := range n.children {
				emit(c, n.group)
			}
		case nSeq:
			for _, c := range n.children {
				emit(c, group)
			}
		}
	}
	for _, n := range work {
		emit(n, 0)
	}
	return candidate{toks: toks, order: order}
}

// prune removes dominated candidates within one usage line's expansion:
// two candidates identical except for repeat markers match overlapping argv
// sets, and the repeatable one strictly subsumes the other. Candidates from
// different usage lines are never pruned against each other; declaration
// order between lines is a tie breaker, not a dominance relation.
func prune(cands []candidate) []candidate {
	type slot struct {
		idx    int
		groups int
	}
	best := map[string]slot{}
	for i, c := range cands {
		var b strings.Builder
		fmt.Fprintf(&b, "%d|", c.order)
		groups := 0
		for _, t := range c.toks {
			fmt.Fprintf(&b, "%d:%s;", t.kind, t.name)
			if t.group != 0 {
				groups++
			}
		}
		key := b.String()
		if cur, ok := best[key]; !ok || groups > cur.groups {
			best[key] = slot{idx: i, groups: groups}
		}
	}
	keep := make(map[int]bool, len(best))
	for _, s := range best {
		keep[s.idx] = true
	}
	var out []candidate
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}
