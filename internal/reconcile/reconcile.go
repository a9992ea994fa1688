// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package reconcile merges a freshly fetched snapshot into an identity-keyed
// collection without recreating entities whose identity survived.
package reconcile

// Kind is the lifecycle transition an entity went through.
type Kind int

const (
	Created Kind = iota
	Updated
	Removed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event records one lifecycle transition. Changed is only meaningful for
// Updated and reports whether any attribute value actually differed.
type Event[E any] struct {
	Kind    Kind
	Entity  E
	Changed bool
}

// Adapter tells Reconcile how to key, build and update entities of type E from
// records of type R. E is expected to be a pointer so Update mutates in place.
type Adapter[K comparable, E any, R any] struct {
	EntityKey func(E) K
	RecordKey func(R) K
	New       func(R) E
	// Update applies r to e and reports whether anything changed.
	Update func(e E, r R) bool
}

// Reconcile returns the collection that results from merging fetched into
// existing, together with the lifecycle events in the order they happened:
// removals in existing order first, then creates and updates in fetched order.
//
// Survivors keep their relative order and new entities are appended after them.
// The key set of the result equals the key set of fetched. When fetched
// contains the same key more than once the later records update the entity
// created or matched by the first one.
func Reconcile[K comparable, E any, R any](existing []E, fetched []R, a Adapter[K, E, R]) ([]E, []Event[E]) {
	wanted := make(map[K]struct{}, len(fetched))
	for _, r := range fetched {
		wanted[a.RecordKey(r)] = struct{}{}
	}

	events := make([]Event[E], 0, len(existing)+len(fetched))
	result := make([]E, 0, len(fetched))
	index := make(map[K]E, len(fetched))

	for _, e := range existing {
		key := a.EntityKey(e)
		if _, ok := wanted[key]; !ok {
			events = append(events, Event[E]{Kind: Removed, Entity: e})
			continue
		}
		if _, dup := index[key]; dup {
			// a duplicate already in existing collapses into the first one
			events = append(events, Event[E]{Kind: Removed, Entity: e})
			continue
		}
		index[key] = e
		result = append(result, e)
	}

	for _, r := range fetched {
		key := a.RecordKey(r)
		if e, ok := index[key]; ok {
			changed := a.Update(e, r)
			events = append(events, Event[E]{Kind: Updated, Entity: e, Changed: changed})
			continue
		}

		e := a.New(r)
		index[key] = e
		result = append(result, e)
		events = append(events, Event[E]{Kind: Created, Entity: e})
	}

	return result, events
}

// Contains reports whether any entity in collection has the given key.
func Contains[K comparable, E any](collection []E, key K, entityKey func(E) K) bool {
	return IndexOf(collection, key, entityKey) >= 0
}

// IndexOf returns the position of the entity with the given key, or -1.
func IndexOf[K comparable, E any](collection []E, key K, entityKey func(E) K) int {
	for i, e := range collection {
		if entityKey(e) == key {
			return i
		}
	}
	return -1
}
