// Package export writes knowledge graph snapshots for downstream readers:
// an N-Triples text dump and a SQLite database.
package export

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"kgraph/internal/config"
	"kgraph/internal/core"
	"kgraph/internal/store"
)

const (
	xsdInteger = "http://www.w3.org/2001/XMLSchema#integer"
	xsdDecimal = "http://www.w3.org/2001/XMLSchema#decimal"
)

var (
	// RFC 3986 scheme followed by a colon.
	absoluteIRI = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)
	integerLex  = regexp.MustCompile(`^[+-]?[0-9]+$`)
	decimalLex  = regexp.MustCompile(`^[+-]?([0-9]+\.[0-9]*|\.[0-9]+)$`)
)

// NTriplesOptions controls N-Triples output.
type NTriplesOptions struct {
	// BaseIRI prefixes terms that are not absolute IRIs. Empty means
	// config.DefaultBaseIRI.
	BaseIRI string
}

// NTriples writes every fact of snap in insertion order. Subjects and
// predicates are written as absolute IRIs. Objects in xsd:integer or
// xsd:decimal lexical form are written as typed literals. Derived facts carry
// a trailing comment naming their rule.
func NTriples(w io.Writer, snap core.Snapshot, opts NTriplesOptions) error {
	base := opts.BaseIRI
	if base == "" {
		base = config.DefaultBaseIRI
	}
	bw := bufio.NewWriter(w)
	for _, f := range snap.Facts {
		line, err := ntriple(snap, f, base)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func ntriple(snap core.Snapshot, f store.Fact, base string) (string, error) {
	s, err := snap.Decode(f.S)
	if err != nil {
		return "", err
	}
	p, err := snap.Decode(f.P)
	if err != nil {
		return "", err
	}
	o, err := snap.Decode(f.O)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(resource(base, s))
	b.WriteByte(' ')
	b.WriteString(resource(base, p))
	b.WriteByte(' ')
	b.WriteString(object(base, o))
	b.WriteString(" .")
	if !f.IsAsserted() {
		fmt.Fprintf(&b, " # derived by rule %d", f.RuleID)
	}
	b.WriteByte('\n')
	return b.String(), nil
}

func object(base, term string) string {
	switch {
	case integerLex.MatchString(term):
		return fmt.Sprintf("%q^^<%s>", term, xsdInteger)
	case decimalLex.MatchString(term):
		return fmt.Sprintf("%q^^<%s>", term, xsdDecimal)
	default:
		return resource(base, term)
	}
}

// resource writes term as an IRI, resolving it against base unless it
// already names a scheme.
func resource(base, term string) string {
	if absoluteIRI.MatchString(term) {
		return iri(term)
	}
	return iri(base + term)
}

// iri wraps term in angle brackets, escaping characters IRIREF forbids.
func iri(term string) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range term {
		switch {
		case r <= 0x20, strings.ContainsRune("<>\"{}|^`\\", r):
			fmt.Fprintf(&b, "\\u%04X", r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('>')
	return b.String()
}
