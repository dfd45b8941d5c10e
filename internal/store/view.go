package store

import "iter"

// Excluding returns a read-only view of r that hides the removed triples.
func Excluding(r Reader, removed map[Triple]struct{}) Reader {
	return excluding{base: r, removed: removed}
}

type excluding struct {
	base    Reader
	removed map[Triple]struct{}
}

func (v excluding) Scan(l Lookup) iter.Seq[Triple] {
	return func(yield func(Triple) bool) {
		for t := range v.base.Scan(l) {
			if _, gone := v.removed[t]; gone {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

func (v excluding) Contains(t Triple) bool {
	if _, gone := v.removed[t]; gone {
		return false
	}
	return v.base.Contains(t)
}
