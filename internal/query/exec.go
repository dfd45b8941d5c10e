package query

import (
	"kgraph/internal/store"
)

// run executes the query and calls emit for each surviving triple, in order.
func (b *Builder) run(emit func(v View, t store.Triple) error) error {
	if b.err != nil {
		return b.err
	}
	return b.src.Read(func(v View) error {
		lookup, ok := b.lookup(v)
		if !ok {
			return nil
		}
		var seen map[store.Triple]struct{}
		if b.distinct {
			seen = make(map[store.Triple]struct{})
		}
		skipped, taken := 0, 0
		for t := range v.Scan(lookup) {
			if b.limit >= 0 && taken >= b.limit {
				break
			}
			keep, err := b.accept(v, t)
			if err != nil {
				return err
			}
			if !keep {
				continue
			}
			if seen != nil {
				if _, dup := seen[t]; dup {
					continue
				}
				seen[t] = struct{}{}
			}
			if skipped < b.offset {
				skipped++
				continue
			}
			taken++
			if err := emit(v, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// lookup narrows the scan with exact filters. It reports false when an
// exact filter names a term the view has never seen.
func (b *Builder) lookup(v View) (store.Lookup, bool) {
	var l store.Lookup
	for _, f := range b.filters {
		if f.Kind != Exact {
			continue
		}
		code, ok := v.Lookup(f.Value)
		if !ok {
			return l, false
		}
		switch f.Position {
		case Subject:
			if l.Mask&store.BindS != 0 && l.S != code {
				return l, false
			}
			l.S, l.Mask = code, l.Mask|store.BindS
		case Predicate:
			if l.Mask&store.BindP != 0 && l.P != code {
				return l, false
			}
			l.P, l.Mask = code, l.Mask|store.BindP
		case Object:
			if l.Mask&store.BindO != 0 && l.O != code {
				return l, false
			}
			l.O, l.Mask = code, l.Mask|store.BindO
		}
	}
	return l, true
}

func (b *Builder) accept(v View, t store.Triple) (bool, error) {
	for _, f := range b.filters {
		if f.Kind == Exact {
			continue
		}
		code := t.S
		switch f.Position {
		case Predicate:
			code = t.P
		case Object:
			code = t.O
		}
		term, err := v.Decode(code)
		if err != nil {
			return false, err
		}
		if !f.Accept(term) {
			return false, nil
		}
	}
	return true, nil
}

// GetTriples returns the matching encoded triples.
func (b *Builder) GetTriples() ([]store.Triple, error) {
	var out []store.Triple
	err := b.run(func(_ View, t store.Triple) error {
		out = append(out, t)
		return nil
	})
	return out, err
}

// GetDecodedTriples returns the matching triples with terms decoded.
func (b *Builder) GetDecodedTriples() ([]DecodedTriple, error) {
	var out []DecodedTriple
	err := b.run(func(v View, t store.Triple) error {
		d, err := Decode(v, t)
		if err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

// GetSubjects returns the distinct subjects of matching triples in first-seen order.
func (b *Builder) GetSubjects() ([]string, error) {
	return b.project(func(t store.Triple) uint32 { return t.S })
}

// GetPredicates returns the distinct predicates of matching triples.
func (b *Builder) GetPredicates() ([]string, error) {
	return b.project(func(t store.Triple) uint32 { return t.P })
}

// GetObjects returns the distinct objects of matching triples.
func (b *Builder) GetObjects() ([]string, error) {
	return b.project(func(t store.Triple) uint32 { return t.O })
}

func (b *Builder) project(pick func(store.Triple) uint32) ([]string, error) {
	var out []string
	seen := make(map[uint32]struct{})
	err := b.run(func(v View, t store.Triple) error {
		code := pick(t)
		if _, dup := seen[code]; dup {
			return nil
		}
		seen[code] = struct{}{}
		term, err := v.Decode(code)
		if err != nil {
			return err
		}
		out = append(out, term)
		return nil
	})
	return out, err
}

// Count returns the number of matching triples without decoding them.
func (b *Builder) Count() (int, error) {
	n := 0
	err := b.run(func(View, store.Triple) error {
		n++
		return nil
	})
	return n, err
}

// Decode resolves every position of t through v.
func Decode(v View, t store.Triple) (DecodedTriple, error) {
	s, err := v.Decode(t.S)
	if err != nil {
		return DecodedTriple{}, err
	}
	p, err := v.Decode(t.P)
	if err != nil {
		return DecodedTriple{}, err
	}
	o, err := v.Decode(t.O)
	if err != nil {
		return DecodedTriple{}, err
	}
	return DecodedTriple{Subject: s, Predicate: p, Object: o}, nil
}
