// Package query provides a composable, lazily executed triple query builder.
//
// A Builder only records filters. Each terminal call (GetTriples, Count, ...)
// executes against the current state of its Source, so calling a terminal
// twice reflects any facts added or removed in between.
package query

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"kgraph/internal/store"
)

// ErrInvalidArgument is returned for out-of-range builder arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// View is a consistent, read-only window onto a fact set.
type View interface {
	Scan(l store.Lookup) iter.Seq[store.Triple]
	Lookup(term string) (uint32, bool)
	Decode(code uint32) (string, error)
}

// Source hands out views. Implementations hold whatever lock keeps the
// view stable for the duration of fn.
type Source interface {
	Read(fn func(View) error) error
}

// DecodedTriple is a triple with its terms resolved to strings.
type DecodedTriple struct {
	Subject   string `json:"subject" yaml:"subject"`
	Predicate string `json:"predicate" yaml:"predicate"`
	Object    string `json:"object" yaml:"object"`
}

func (t DecodedTriple) String() string {
	return t.Subject + " " + t.Predicate + " " + t.Object + " ."
}

// Position names a triple position.
type Position uint8

const (
	Subject Position = iota
	Predicate
	Object
)

func (p Position) String() string {
	switch p {
	case Subject:
		return "subject"
	case Predicate:
		return "predicate"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// MatchKind selects how a text filter compares a decoded term.
type MatchKind uint8

const (
	Exact MatchKind = iota
	Contains
	Prefix
	Suffix
)

// TextFilter constrains one position of a triple by its decoded text.
type TextFilter struct {
	Position Position
	Kind     MatchKind
	Value    string
}

// Accept reports whether term satisfies the filter.
func (f TextFilter) Accept(term string) bool {
	switch f.Kind {
	case Exact:
		return term == f.Value
	case Contains:
		return strings.Contains(term, f.Value)
	case Prefix:
		return strings.HasPrefix(term, f.Value)
	case Suffix:
		return strings.HasSuffix(term, f.Value)
	default:
		return false
	}
}

// Builder accumulates query options. Every method returns a new Builder and
// leaves the receiver untouched, so partially built queries can be shared.
type Builder struct {
	src      Source
	filters  []TextFilter
	distinct bool
	limit    int
	offset   int
	err      error
}

// New creates a builder that reads from src.
func New(src Source) *Builder {
	return &Builder{src: src, limit: -1}
}

func (b *Builder) with(f TextFilter) *Builder {
	c := b.clone()
	c.filters = append(c.filters, f)
	return c
}

func (b *Builder) clone() *Builder {
	c := *b
	c.filters = append([]TextFilter(nil), b.filters...)
	return &c
}

// Filter adds an arbitrary text filter.
func (b *Builder) Filter(f TextFilter) *Builder { return b.with(f) }

// Filters returns the text filters recorded so far.
func (b *Builder) Filters() []TextFilter { return append([]TextFilter(nil), b.filters...) }

func (b *Builder) WithSubject(s string) *Builder {
	return b.with(TextFilter{Position: Subject, Kind: Exact, Value: s})
}

func (b *Builder) WithSubjectLike(substr string) *Builder {
	return b.with(TextFilter{Position: Subject, Kind: Contains, Value: substr})
}

func (b *Builder) WithSubjectStarting(prefix string) *Builder {
	return b.with(TextFilter{Position: Subject, Kind: Prefix, Value: prefix})
}

func (b *Builder) WithSubjectEnding(suffix string) *Builder {
	return b.with(TextFilter{Position: Subject, Kind: Suffix, Value: suffix})
}

func (b *Builder) WithPredicate(p string) *Builder {
	return b.with(TextFilter{Position: Predicate, Kind: Exact, Value: p})
}

func (b *Builder) WithPredicateLike(substr string) *Builder {
	return b.with(TextFilter{Position: Predicate, Kind: Contains, Value: substr})
}

func (b *Builder) WithPredicateStarting(prefix string) *Builder {
	return b.with(TextFilter{Position: Predicate, Kind: Prefix, Value: prefix})
}

func (b *Builder) WithPredicateEnding(suffix string) *Builder {
	return b.with(TextFilter{Position: Predicate, Kind: Suffix, Value: suffix})
}

func (b *Builder) WithObject(o string) *Builder {
	return b.with(TextFilter{Position: Object, Kind: Exact, Value: o})
}

func (b *Builder) WithObjectLike(substr string) *Builder {
	return b.with(TextFilter{Position: Object, Kind: Contains, Value: substr})
}

func (b *Builder) WithObjectStarting(prefix string) *Builder {
	return b.with(TextFilter{Position: Object, Kind: Prefix, Value: prefix})
}

func (b *Builder) WithObjectEnding(suffix string) *Builder {
	return b.with(TextFilter{Position: Object, Kind: Suffix, Value: suffix})
}

// Distinct drops repeated (s, p, o) triples.
func (b *Builder) Distinct() *Builder {
	c := b.clone()
	c.distinct = true
	return c
}

// Limit caps the number of triples returned. A negative n records
// ErrInvalidArgument on the returned builder: Err reports it at once, and
// every terminal call returns it.
func (b *Builder) Limit(n int) *Builder {
	c := b.clone()
	if n < 0 {
		c.err = fmt.Errorf("%w: limit %d must be >= 0", ErrInvalidArgument, n)
		return c
	}
	c.limit = n
	return c
}

// Offset skips the first n triples.
func (b *Builder) Offset(n int) *Builder {
	c := b.clone()
	if n < 0 {
		c.err = fmt.Errorf("%w: offset %d must be >= 0", ErrInvalidArgument, n)
		return c
	}
	c.offset = n
	return c
}

// Err returns the first argument error recorded on the builder.
func (b *Builder) Err() error { return b.err }
