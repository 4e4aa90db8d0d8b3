package store

import "sync"

// ChangeOp identifies which Store operation produced a ChangeEvent.
type ChangeOp int

const (
	ChangeInsert ChangeOp = iota
	ChangeMutate
	ChangeDelete
)

// ChangeEvent describes one Store mutation, passed to the OnChange
// callback. Transfer is nil for ChangeDelete.
type ChangeEvent struct {
	Op       ChangeOp
	Key      Key
	Transfer *PendingTransfer
}

// Store is the in-memory mapping (source_domain, burn_nonce) ->
// PendingTransfer described in spec.md §3/§4.4. Inserts come from any
// Scanner/Correlator goroutine; all other mutations and deletes come
// from the single Attestation Poller goroutine (spec.md §5). Reads (the
// Status API) take a consistent snapshot under the same lock.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]*PendingTransfer

	// onChange, when set, is invoked after every insert/update/delete
	// under the lock so a checkpoint backend (SPEC_FULL.md A4) can
	// mirror the change. It must not block or re-enter the Store —
	// callers that need to do I/O in response should hand the event off
	// to a channel instead of acting on it inline.
	onChange func(ChangeEvent)
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[Key]*PendingTransfer)}
}

// OnChange registers a callback invoked after every mutation.
func (s *Store) OnChange(fn func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Insert adds transfer if its key is not already present. Returns false
// if the key already existed (idempotent re-observation, spec.md §4.3
// step 5 / §8 R1).
func (s *Store) Insert(transfer *PendingTransfer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := transfer.Key()
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = transfer
	s.notify(ChangeEvent{Op: ChangeInsert, Key: key, Transfer: transfer})
	return true
}

// Get returns the entry for key, if any.
func (s *Store) Get(key Key) (*PendingTransfer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.entries[key]
	return t, ok
}

// Delete removes key from the store. Called only on terminal-state
// transitions, per spec.md §3 invariant 5.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.notify(ChangeEvent{Op: ChangeDelete, Key: key})
}

// Snapshot returns a shallow copy of every current entry, taken under
// the Store's read lock, so the copies can be read without holding the
// lock. Changing a returned copy does not change the Store; entries
// change only through Insert, Mutate and Delete. Snapshot exists for
// readers (the Status API) and for the Poller's per-tick iteration,
// which must tolerate the store changing mid-tick (spec.md §4.5).
func (s *Store) Snapshot() []*PendingTransfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PendingTransfer, 0, len(s.entries))
	for _, t := range s.entries {
		c := *t
		out = append(out, &c)
	}
	return out
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) notify(ev ChangeEvent) {
	if s.onChange != nil {
		s.onChange(ev)
	}
}

// Mutate applies fn to the entry at key under the Store's write lock and
// reports the change to onChange. It is the only way callers other than
// Insert/Delete touch an entry's fields, so the Poller's single-writer
// discipline (spec.md §5) is enforced in one place. Returns false if key
// is absent (the entry may have been removed by a concurrent terminal
// transition observed in the same tick).
func (s *Store) Mutate(key Key, fn func(*PendingTransfer)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.entries[key]
	if !ok {
		return false
	}
	fn(t)
	s.notify(ChangeEvent{Op: ChangeMutate, Key: key, Transfer: t})
	return true
}
