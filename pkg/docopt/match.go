package docopt

import (
	"github.com/rashlabs/rash/pkg/engine"
)

type binding struct {
	values   []string
	repeated bool
}

type matchResult struct {
	commands map[string]bool
	bindings map[string]*binding
	order    []string // binding names in match order
	loose    int
	posCount int
	declared int
}

// matchCandidates scores every candidate against the positional stream and
// returns the winner: fewest loose (positional-wildcard) matches, then
// fewest positional atoms, then declaration order. Two distinct best
// matches with different bindings are ambiguous, never silently resolved.
func (s *Spec) matchCandidates(positionals []string, argv []string) (*matchResult, error) {
	var best []*matchResult
	for _, cand := range s.candidates {
		m := matchOne(cand, positionals)
		if m == nil {
			continue
		}
		switch {
		case len(best) == 0 ||
			m.loose < best[0].loose ||
			(m.loose == best[0].loose && m.posCount < best[0].posCount):
			best = []*matchResult{m}
		case m.loose == best[0].loose && m.posCount == best[0].posCount:
			best = append(best, m)
		}
	}

	if len(best) == 0 {
		return nil, engine.NewErrorf(engine.KindDocoptNoMatch,
			"argv does not match any usage\nargv: %v\n%s", argv, s.Doc)
	}
	winner := best[0]
	for _, m := range best[1:] {
		if m.declared < winner.declared {
			winner = m
		}
	}
	for _, m := range best {
		if m != winner && m.declared == winner.declared && !sameBindings(m, winner) {
			return nil, engine.NewErrorf(engine.KindDocoptAmbiguous,
				"argv matches more than one usage\nargv: %v\n%s", argv, s.Doc)
		}
	}
	return winner, nil
}

func sameBindings(a, b *matchResult) bool {
	if len(a.bindings) != len(b.bindings) {
		return false
	}
	for name, ba := range a.bindings {
		bb, ok := b.bindings[name]
		if !ok || ba.repeated != bb.repeated || len(ba.values) != len(bb.values) {
			return false
		}
		for i := range ba.values {
			if ba.values[i] != bb.values[i] {
				return false
			}
		}
	}
	for cmd, av := range a.commands {
		if b.commands[cmd] != av {
			return false
		}
	}
	return true
}

// matchOne matches a single candidate against the stream, or returns nil.
// Repeat groups are filled arithmetically: every group repeats the same r
// times, with r chosen so the expanded candidate length equals the stream
// length exactly.
func matchOne(cand candidate, stream []string) *matchResult {
	toks := expandRepeats(cand.toks, len(stream))
	if toks == nil {
		return nil
	}

	m := &matchResult{
		commands: map[string]bool{},
		bindings: map[string]*binding{},
		declared: cand.order,
	}
	si := 0
	for _, t := range toks {
		switch t.kind {
		case tokOption:
			// Options never appear in the positional stream; the splitter
			// consumed them. An option token in the candidate is satisfied
			// vacuously here and validated by the splitter.
			continue
		case tokCommand:
			if si >= len(stream) || stream[si] != t.name {
				return nil
			}
			m.commands[t.name] = true
			si++
		case tokPositional:
			if si >= len(stream) {
				return nil
			}
			b := m.bindings[t.name]
			if b == nil {
				b = &binding{repeated: t.group != 0}
				m.bindings[t.name] = b
				m.order = append(m.order, t.name)
				m.posCount++
			}
			b.values = append(b.values, stream[si])
			m.loose++
			si++
		}
	}
	if si != len(stream) {
		return nil
	}
	return m
}

// expandRepeats inlines repeat groups so the candidate consumes exactly
// streamLen stream tokens, or returns nil when no repetition count fits.
// Option tokens do not consume stream tokens and are excluded from the
// arithmetic.
func expandRepeats(toks []token, streamLen int) []token {
	fixed := 0
	groupSize := map[int]int{}
	var groupIDs []int
	for _, t := range toks {
		if t.kind == tokOption {
			continue
		}
		if t.group == 0 {
			fixed++
			continue
		}
		if _, ok := groupSize[t.group]; !ok {
			groupIDs = append(groupIDs, t.group)
		}
		groupSize[t.group]++
	}
	if len(groupSize) == 0 {
		if fixed != streamLen {
			return nil
		}
		return toks
	}

	perRepeat := 0
	for _, size := range groupSize {
		perRepeat += size
	}
	rest := streamLen - fixed
	if rest < perRepeat || rest%perRepeat != 0 {
		return nil
	}
	r := rest / perRepeat

	var out []token
	i := 0
	for i < len(toks) {
		t := toks[i]
		if t.group == 0 {
			out = append(out, t)
			i++
			continue
		}
		// Collect the contiguous run of this group and inline it r times.
		j := i
		for j < len(toks) && toks[j].group == t.group {
			j++
		}
		run := toks[i:j]
		for k := 0; k < r; k++ {
			out = append(out, run...)
		}
		i = j
	}
	return out
}
