// Package state holds the replicated service directory: the per-origin delta
// log (State) and the merged last-write-wins view over all logs (Combined).
package state

import (
	"encoding/json"
	"iter"
	"sync"

	"github.com/ryandielhenn/hera/pkg/clock"
)

// State is an append-only log of deltas written by a single origin. The local
// node owns one State fed by the write API; every peer has a replica State fed
// only by gossip.
type State struct {
	mu    sync.RWMutex
	clock clock.Clock
	log   []Delta // insertion order, oldest first
}

func New(c clock.Clock) *State {
	if c == nil {
		c = clock.System{}
	}
	return &State{clock: c}
}

// Put records a write stamped with the current time. Two identical calls
// produce two distinct deltas.
func (s *State) Put(service, instance string, payload json.RawMessage) Delta {
	return s.PutAt(service, instance, payload, s.clock.Now())
}

// PutAt records a write with an explicit timestamp.
func (s *State) PutAt(service, instance string, payload json.RawMessage, ts int64) Delta {
	d := Delta{
		Service:   service,
		Instance:  instance,
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: ts,
	}
	s.Apply(d)
	return d
}

// Remove writes a tombstone for the instance.
func (s *State) Remove(service, instance string) Delta {
	return s.Put(service, instance, Tombstone)
}

// Apply appends a delta as-is, keeping its original timestamp. Used for
// deltas received from peers.
func (s *State) Apply(d Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, d)
}

// Since yields every delta with a timestamp strictly greater than ts, most
// recently inserted first. Each range over the sequence takes a fresh
// snapshot of the log.
func (s *State) Since(ts int64) iter.Seq[Delta] {
	return func(yield func(Delta) bool) {
		batch := s.newerThan(ts)
		for i := len(batch) - 1; i >= 0; i-- {
			if !yield(batch[i]) {
				return
			}
		}
	}
}

// After yields the same deltas as Since in insertion order, oldest first.
// Replicas must append in this order so equal-timestamp writes from one
// origin resolve the same way on every node.
func (s *State) After(ts int64) iter.Seq[Delta] {
	return func(yield func(Delta) bool) {
		for _, d := range s.newerThan(ts) {
			if !yield(d) {
				return
			}
		}
	}
}

// newerThan snapshots the deltas with a timestamp above ts, oldest first.
func (s *State) newerThan(ts int64) []Delta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := make([]Delta, 0, len(s.log))
	for _, d := range s.log {
		if d.Timestamp > ts {
			batch = append(batch, d)
		}
	}
	return batch
}

// Expire drops every delta older than cutoff and returns how many were removed.
func (s *State) Expire(cutoff int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.log[:0]
	for _, d := range s.log {
		if d.Timestamp >= cutoff {
			kept = append(kept, d)
		}
	}
	removed := len(s.log) - len(kept)
	clear(s.log[len(kept):])
	s.log = kept
	return removed
}

// Latest returns the winning delta for a key within this log, tombstones
// included.
func (s *State) Latest(service, instance string) (Delta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  Delta
		found bool
	)
	for i := len(s.log) - 1; i >= 0; i-- {
		d := s.log[i]
		if d.Service != service || d.Instance != instance {
			continue
		}
		if !found || d.Timestamp > best.Timestamp {
			best, found = d, true
		}
	}
	return best, found
}

// Get returns the current payload for a key, treating a tombstone as absent.
func (s *State) Get(service, instance string) (json.RawMessage, bool) {
	d, ok := s.Latest(service, instance)
	if !ok || d.Deleted() {
		return nil, false
	}
	return d.Payload, true
}

// Keys lists the keys whose latest delta is not a tombstone.
func (s *State) Keys() []Key {
	s.mu.RLock()
	latest := make(map[Key]Delta)
	for i := len(s.log) - 1; i >= 0; i-- {
		d := s.log[i]
		if cur, ok := latest[d.Key()]; !ok || d.Timestamp > cur.Timestamp {
			latest[d.Key()] = d
		}
	}
	s.mu.RUnlock()

	keys := make([]Key, 0, len(latest))
	for k, d := range latest {
		if !d.Deleted() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len is the number of deltas currently held, tombstones and superseded
// writes included.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}
