package store

import (
	"iter"
	"slices"
)

// Mask marks which positions of a Lookup are bound.
type Mask uint8

const (
	BindS Mask = 1 << iota
	BindP
	BindO
)

// Lookup selects triples by any combination of fixed positions.
// An empty mask selects every triple.
type Lookup struct {
	S, P, O uint32
	Mask    Mask
}

// Matches reports whether t agrees with every bound position of l.
func (l Lookup) Matches(t Triple) bool {
	if l.Mask&BindS != 0 && t.S != l.S {
		return false
	}
	if l.Mask&BindP != 0 && t.P != l.P {
		return false
	}
	if l.Mask&BindO != 0 && t.O != l.O {
		return false
	}
	return true
}

// Reader is the read side of a fact set.
type Reader interface {
	// Scan yields every triple matching l, in insertion order.
	Scan(l Lookup) iter.Seq[Triple]
	Contains(t Triple) bool
}

// Store is a set of facts with one hash index per triple position.
// Index buckets keep insertion order so every scan is deterministic.
// Store is not safe for concurrent mutation; callers serialize writers.
type Store struct {
	facts       map[Triple]*Fact
	order       []Triple
	bySubject   map[uint32][]Triple
	byPredicate map[uint32][]Triple
	byObject    map[uint32][]Triple
	seq         uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		facts:       make(map[Triple]*Fact),
		bySubject:   make(map[uint32][]Triple),
		byPredicate: make(map[uint32][]Triple),
		byObject:    make(map[uint32][]Triple),
	}
}

// Add inserts t with the given provenance. It returns the stored fact and
// whether it was newly inserted; an existing fact is returned unchanged.
func (s *Store) Add(t Triple, prov Provenance) (*Fact, bool) {
	if f, ok := s.facts[t]; ok {
		return f, false
	}
	s.seq++
	f := &Fact{Triple: t, Provenance: prov, Seq: s.seq}
	s.facts[t] = f
	s.order = append(s.order, t)
	s.bySubject[t.S] = append(s.bySubject[t.S], t)
	s.byPredicate[t.P] = append(s.byPredicate[t.P], t)
	s.byObject[t.O] = append(s.byObject[t.O], t)
	return f, true
}

// Remove deletes t and returns the removed fact.
func (s *Store) Remove(t Triple) (*Fact, bool) {
	f, ok := s.facts[t]
	if !ok {
		return nil, false
	}
	delete(s.facts, t)
	s.order = removeTriple(s.order, t)
	s.bySubject[t.S] = removeTriple(s.bySubject[t.S], t)
	if len(s.bySubject[t.S]) == 0 {
		delete(s.bySubject, t.S)
	}
	s.byPredicate[t.P] = removeTriple(s.byPredicate[t.P], t)
	if len(s.byPredicate[t.P]) == 0 {
		delete(s.byPredicate, t.P)
	}
	s.byObject[t.O] = removeTriple(s.byObject[t.O], t)
	if len(s.byObject[t.O]) == 0 {
		delete(s.byObject, t.O)
	}
	return f, true
}

func removeTriple(ts []Triple, t Triple) []Triple {
	if i := slices.Index(ts, t); i >= 0 {
		return slices.Delete(ts, i, i+1)
	}
	return ts
}

// Get returns the stored fact for t.
func (s *Store) Get(t Triple) (*Fact, bool) {
	f, ok := s.facts[t]
	return f, ok
}

// Contains reports whether t is stored.
func (s *Store) Contains(t Triple) bool {
	_, ok := s.facts[t]
	return ok
}

// Len returns the number of stored facts.
func (s *Store) Len() int {
	return len(s.facts)
}

// Seq returns the last assigned insertion sequence number.
func (s *Store) Seq() uint64 {
	return s.seq
}

// Triples returns all triples in insertion order.
func (s *Store) Triples() []Triple {
	return slices.Clone(s.order)
}

// Facts returns all facts in insertion order.
func (s *Store) Facts() []*Fact {
	out := make([]*Fact, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, s.facts[t])
	}
	return out
}

// Scan yields the triples matching l. When any position is bound, only the
// smallest matching index bucket is walked; otherwise every fact is visited.
// The sequence must not be consumed while the store is being mutated.
func (s *Store) Scan(l Lookup) iter.Seq[Triple] {
	return func(yield func(Triple) bool) {
		candidates, exact := s.bucket(l)
		for _, t := range candidates {
			if !exact && !l.Matches(t) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// bucket picks the narrowest candidate list for l. exact is true when every
// candidate is already known to match.
func (s *Store) bucket(l Lookup) (candidates []Triple, exact bool) {
	if l.Mask == 0 {
		return s.order, true
	}
	best := -1
	consider := func(bit Mask, idx map[uint32][]Triple, key uint32) {
		if l.Mask&bit == 0 {
			return
		}
		b := idx[key]
		if best < 0 || len(b) < best {
			best = len(b)
			candidates = b
			exact = l.Mask == bit
		}
	}
	consider(BindS, s.bySubject, l.S)
	consider(BindP, s.byPredicate, l.P)
	consider(BindO, s.byObject, l.O)
	return candidates, exact
}

// RollbackTo removes every fact inserted after sequence number seq.
// Facts inserted later always form a suffix of each index bucket, so the
// cost is proportional to the number of removed facts.
func (s *Store) RollbackTo(seq uint64) int {
	cut := len(s.order)
	for cut > 0 && s.facts[s.order[cut-1]].Seq > seq {
		cut--
	}
	removed := s.order[cut:]
	for i := len(removed) - 1; i >= 0; i-- {
		t := removed[i]
		delete(s.facts, t)
		truncateLast(s.bySubject, t.S)
		truncateLast(s.byPredicate, t.P)
		truncateLast(s.byObject, t.O)
	}
	n := len(removed)
	s.order = s.order[:cut]
	return n
}

func truncateLast(idx map[uint32][]Triple, key uint32) {
	b := idx[key]
	if len(b) <= 1 {
		delete(idx, key)
		return
	}
	idx[key] = b[:len(b)-1]
}
