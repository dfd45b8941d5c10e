package query

import (
	"iter"

	"kgraph/internal/store"
	"kgraph/internal/terms"
)

// StoreSource serves queries from a caller-owned fact set and term table.
// It takes no locks; the caller must not mutate Facts while a query runs.
type StoreSource struct {
	Terms *terms.Table
	Facts store.Reader
}

// Read implements Source.
func (s StoreSource) Read(fn func(View) error) error {
	return fn(storeView(s))
}

type storeView StoreSource

func (v storeView) Scan(l store.Lookup) iter.Seq[store.Triple] { return v.Facts.Scan(l) }

func (v storeView) Lookup(term string) (uint32, bool) { return v.Terms.Lookup(term) }

func (v storeView) Decode(code uint32) (string, error) { return v.Terms.Decode(code) }
