// Package triplestore provides the triple-store primitive collections
// require: the small interface DLite's collections are built against,
// plus one in-memory reference implementation so collection lifecycle
// is runnable without an external RDF engine. A pattern field set to
// Wildcard matches any value in that position; anything else matches
// the whole field value exactly.
package triplestore

import "dlite/errors"

// Wildcard, used as any of s/p/o, matches any value in that position.
const Wildcard = "*"

// Triple is one (subject, predicate, object) fact, identified by an id
// that RemoveByID can target directly.
type Triple struct {
	ID        uint64
	Subject   string
	Predicate string
	Object    string
}

func matchesField(value, pattern string) bool {
	return pattern == Wildcard || value == pattern
}

func (t Triple) matches(s, p, o string) bool {
	return matchesField(t.Subject, s) && matchesField(t.Predicate, p) && matchesField(t.Object, o)
}

// Store is the interface a collection requires of its backing triple
// store.
type Store interface {
	Add(subject, predicate, object string) (id uint64, err error)
	Remove(subject, predicate, object string) (count int, err error)
	RemoveByID(id uint64) error
	FindFirst(subject, predicate, object string) (Triple, bool)
	InitState() *IterState
	Find(state *IterState, subject, predicate, object string) (Triple, bool)
	Free()
}

// IterState is a caller-supplied iteration cursor. Callers must not
// mutate the store while iterating with it.
type IterState struct {
	pos int
}

// memStore is a slice-backed reference Store implementation.
type memStore struct {
	triples []Triple
	nextID  uint64
}

// New creates an empty in-memory triple store.
func New() Store {
	return &memStore{}
}

func (m *memStore) Add(s, p, o string) (uint64, error) {
	m.nextID++
	m.triples = append(m.triples, Triple{ID: m.nextID, Subject: s, Predicate: p, Object: o})
	return m.nextID, nil
}

func (m *memStore) Remove(s, p, o string) (int, error) {
	kept := m.triples[:0]
	count := 0
	for _, t := range m.triples {
		if t.matches(s, p, o) {
			count++
			continue
		}
		kept = append(kept, t)
	}
	m.triples = kept
	return count, nil
}

func (m *memStore) RemoveByID(id uint64) error {
	for i, t := range m.triples {
		if t.ID == id {
			m.triples = append(m.triples[:i], m.triples[i+1:]...)
			return nil
		}
	}
	return errors.Diagnose(errors.ErrAbsentMember, "no triple with id %d", id)
}

func (m *memStore) FindFirst(s, p, o string) (Triple, bool) {
	for _, t := range m.triples {
		if t.matches(s, p, o) {
			return t, true
		}
	}
	return Triple{}, false
}

func (m *memStore) InitState() *IterState {
	return &IterState{}
}

// Find returns the next triple matching the pattern at or after
// state.pos, advancing state past it. Returns ok=false once exhausted.
func (m *memStore) Find(state *IterState, s, p, o string) (Triple, bool) {
	for state.pos < len(m.triples) {
		t := m.triples[state.pos]
		state.pos++
		if t.matches(s, p, o) {
			return t, true
		}
	}
	return Triple{}, false
}

func (m *memStore) Free() {
	m.triples = nil
}
