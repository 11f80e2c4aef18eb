package callmap

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned when no record exists for a key (or, for
// Resolve, when the whole fallback chain misses).
var ErrNotFound = errors.New("callmap: not found")

// Record is the routing record for one in-flight call. Once stored, its
// SIPURI never changes for the lifetime of the call; the only mutation
// is removal on hangup.
type Record struct {
	// SIPURI is the conferencing platform's dial-in address for the
	// call's room.
	SIPURI string `json:"sip_uri"`

	// PhoneNumber is the external party's number in its original
	// (possibly +-prefixed) form.
	PhoneNumber string `json:"phone_number"`
}

// Kind partitions correlation keys into distinct key spaces. A record
// stored under a local call ID must not be reachable through a
// call-UUID lookup of the same string, and vice versa.
type Kind string

const (
	// KindCallID is a locally generated correlation token, passed to
	// the carrier out-of-band (answer URL query parameter).
	KindCallID Kind = "cid"

	// KindCallUUID is the carrier's own identifier for a call leg.
	KindCallUUID Kind = "uuid"

	// KindNumber is a phone number, stored in whatever form the caller
	// supplied (with or without a leading +).
	KindNumber Kind = "num"
)

// Store maps correlation keys to routing records. It is shared by every
// request handler in the process and is safe for concurrent use.
//
// A single call is typically indexed under several keys at once (UUID,
// local call ID, number with and without +). Writes of those keys are
// individual operations, not a transaction: a concurrent Resolve may
// see the call under one key before the others land. The fallback
// chain in Resolve tolerates that partial visibility.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore returns an empty store. Exactly one instance is created at
// startup and injected into every component that needs it.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Put inserts or overwrites the record under key. The record is visible
// to lookups issued after Put returns.
func (s *Store) Put(kind Kind, key string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[scoped(kind, key)] = rec
}

// Get is an exact-match lookup within one key space.
func (s *Store) Get(kind Kind, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[scoped(kind, key)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Remove deletes the entry for key if present; no-op otherwise.
func (s *Store) Remove(kind Kind, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, scoped(kind, key))
}

// Len reports how many keys are currently stored (not distinct calls).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Resolve finds the routing record for an answer webhook whose
// identifiers may not match whatever identifier was stored at
// call-creation time. It degrades through increasingly loose matches:
//
//  1. exact match on callID, if non-empty
//  2. exact match on callUUID, if non-empty
//  3. exact match on toNumber as given, if non-empty
//  4. exact match on toNumber with any leading + stripped
//  5. linear scan comparing each record's stored PhoneNumber against
//     toNumber, tolerating a + prefix mismatch on either side
//
// First match wins. If two in-flight calls share a normalized number
// the scan cannot disambiguate them; callers get the first hit.
func (s *Store) Resolve(callID, callUUID, toNumber string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if callID != "" {
		if rec, ok := s.records[scoped(KindCallID, callID)]; ok {
			return rec, nil
		}
	}
	if callUUID != "" {
		if rec, ok := s.records[scoped(KindCallUUID, callUUID)]; ok {
			return rec, nil
		}
	}
	if toNumber != "" {
		if rec, ok := s.records[scoped(KindNumber, toNumber)]; ok {
			return rec, nil
		}
		bare := strings.TrimPrefix(toNumber, "+")
		if rec, ok := s.records[scoped(KindNumber, bare)]; ok {
			return rec, nil
		}
		for _, rec := range s.records {
			if numbersEqual(rec.PhoneNumber, toNumber) {
				return rec, nil
			}
		}
	}
	return Record{}, ErrNotFound
}

// numbersEqual compares two phone numbers, treating a leading + on
// either side as insignificant.
func numbersEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.TrimPrefix(a, "+") == strings.TrimPrefix(b, "+")
}

func scoped(kind Kind, key string) string {
	return string(kind) + "|" + key
}
