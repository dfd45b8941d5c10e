// Package store holds ground facts as encoded triples with subject, predicate
// and object indices, and matches triple patterns against them.
package store

import (
	"fmt"
	"slices"
)

// Triple is a ground fact of term codes.
type Triple struct {
	S, P, O uint32
}

// String returns the encoded form "(s p o)".
func (t Triple) String() string {
	return fmt.Sprintf("(%d %d %d)", t.S, t.P, t.O)
}

// Origin says how a fact first entered the store.
type Origin uint8

const (
	// Asserted facts were added by a caller and are treated as ground truth.
	Asserted Origin = iota
	// Derived facts were produced by an inference rule.
	Derived
)

func (o Origin) String() string {
	switch o {
	case Asserted:
		return "asserted"
	case Derived:
		return "derived"
	default:
		return "unknown"
	}
}

// Provenance tags a fact with its origin and, for derived facts, the rule
// that produced it.
type Provenance struct {
	Origin Origin
	RuleID uint32
}

// AssertedProvenance is the provenance of caller-supplied facts.
var AssertedProvenance = Provenance{Origin: Asserted}

// DerivedBy returns the provenance of a fact produced by ruleID.
func DerivedBy(ruleID uint32) Provenance {
	return Provenance{Origin: Derived, RuleID: ruleID}
}

func (p Provenance) String() string {
	if p.Origin == Derived {
		return fmt.Sprintf("derived(%d)", p.RuleID)
	}
	return p.Origin.String()
}

// Fact is a stored triple with its bookkeeping.
type Fact struct {
	Triple
	Provenance

	// Confirmations lists rules that re-derived the fact after it was stored.
	Confirmations []uint32
	// Seq is the store-wide insertion sequence number, starting at 1.
	Seq uint64
}

// IsAsserted reports whether the fact is caller-supplied ground truth.
func (f *Fact) IsAsserted() bool {
	return f.Origin == Asserted
}

// Confirmed reports whether ruleID re-derived this fact.
func (f *Fact) Confirmed(ruleID uint32) bool {
	return slices.Contains(f.Confirmations, ruleID)
}

// Clone returns a copy that shares nothing with f.
func (f *Fact) Clone() Fact {
	c := *f
	c.Confirmations = slices.Clone(f.Confirmations)
	return c
}
