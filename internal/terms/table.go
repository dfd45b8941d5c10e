// Package terms interns strings as stable integer codes.
//
// Codes are assigned densely from zero in first-seen order and are never
// reused or reassigned for the lifetime of a Table.
package terms

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTerm is returned when decoding a code that was never assigned.
var ErrUnknownTerm = errors.New("unknown term")

// Table is an append-only string arena with a hash index from string to code.
// It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	arena []string
	index map[string]uint32
}

// NewTable creates an empty term table.
func NewTable() *Table {
	return &Table{
		index: make(map[string]uint32),
	}
}

// Encode returns the code for s, assigning the next unused code on first sight.
func (t *Table) Encode(s string) uint32 {
	t.mu.RLock()
	id, ok := t.index[s]
	t.mu.RUnlock()
	if ok {
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another writer may have interned s between the two locks.
	if id, ok := t.index[s]; ok {
		return id
	}
	id = uint32(len(t.arena))
	t.arena = append(t.arena, s)
	t.index[s] = id
	return id
}

// Lookup returns the code for s without assigning one.
func (t *Table) Lookup(s string) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.index[s]
	return id, ok
}

// Decode returns the string interned under id.
func (t *Table) Decode(id uint32) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.arena) {
		return "", fmt.Errorf("%w: %d", ErrUnknownTerm, id)
	}
	return t.arena[id], nil
}

// DecodeTriple renders an encoded triple as "s p o .".
func (t *Table) DecodeTriple(s, p, o uint32) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range [...]uint32{s, p, o} {
		if int(id) >= len(t.arena) {
			return "", fmt.Errorf("%w: %d", ErrUnknownTerm, id)
		}
	}
	return t.arena[s] + " " + t.arena[p] + " " + t.arena[o] + " .", nil
}

// Len returns the number of interned terms.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.arena)
}

// Terms returns a copy of the arena; index i holds the string for code i.
func (t *Table) Terms() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.arena))
	copy(out, t.arena)
	return out
}
