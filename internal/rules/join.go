package rules

import (
	"fmt"
	"iter"

	"kgraph/internal/store"
)

// Decoder resolves term codes to strings for filter evaluation.
type Decoder interface {
	Decode(code uint32) (string, error)
}

// Match is one satisfying assignment of a premise together with the ground
// facts it matched, in premise order.
type Match struct {
	Binding store.Binding
	Facts   []store.Triple
}

// Join evaluates the premise conjunction left to right. Premise i is matched
// against source(i), which lets semi-naive evaluation route one position to
// the delta and the rest to the full store.
func Join(premise []store.Pattern, source func(i int) store.Reader) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		var walk func(i int, b store.Binding) bool
		walk = func(i int, b store.Binding) bool {
			if i == len(premise) {
				facts := make([]store.Triple, len(premise))
				for k, p := range premise {
					facts[k], _ = p.Ground(b)
				}
				return yield(Match{Binding: b, Facts: facts})
			}
			for next := range store.Match(source(i), premise[i], b) {
				if !walk(i+1, next) {
					return false
				}
			}
			return true
		}
		walk(0, store.Binding{})
	}
}

// Accept applies the rule's filters to b.
func (r Rule) Accept(b store.Binding, dec Decoder) (bool, error) {
	for _, f := range r.Filters {
		code, ok := b[f.Variable]
		if !ok {
			return false, fmt.Errorf("%w: filter variable ?%s", ErrUnbound, f.Variable)
		}
		value, err := dec.Decode(code)
		if err != nil {
			return false, err
		}
		if !f.Eval(value) {
			return false, nil
		}
	}
	return true, nil
}

// Solve yields every premise match of r over src that passes the filters.
// A decoding error ends the sequence and is reported through errp.
func (r Rule) Solve(src store.Reader, dec Decoder, errp *error) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for m := range Join(r.Premise, func(int) store.Reader { return src }) {
			ok, err := r.Accept(m.Binding, dec)
			if err != nil {
				*errp = err
				return
			}
			if ok && !yield(m) {
				return
			}
		}
	}
}
