package state

import (
	"encoding/json"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

type snapshot struct {
	instances map[string]map[string]Delta // service -> instance -> winner
	size      int
}

// Combined is the materialized directory over the local log and every peer
// replica. Build recomputes it from scratch and swaps it in atomically, so
// readers always see a complete snapshot.
//
// Conflicts resolve by timestamp. Deltas carry no origin on the wire, so two
// origins writing the same key at the same millisecond collide; the origin
// whose name sorts first wins. Within one origin the latest insertion wins.
type Combined struct {
	sources map[string]*State
	origins []string // sorted

	mu   sync.Mutex // serializes Build
	snap atomic.Pointer[snapshot]
}

// NewCombined builds a view over sources, keyed by origin name.
func NewCombined(sources map[string]*State) *Combined {
	origins := make([]string, 0, len(sources))
	for name := range sources {
		origins = append(origins, name)
	}
	slices.Sort(origins)

	c := &Combined{sources: sources, origins: origins}
	c.snap.Store(&snapshot{instances: map[string]map[string]Delta{}})
	return c
}

// Build folds every non-expired delta of every source into a fresh snapshot
// and returns the number of keys it holds, tombstones included.
func (c *Combined) Build() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := &snapshot{instances: make(map[string]map[string]Delta)}
	for _, origin := range c.origins {
		for d := range c.sources[origin].Since(0) {
			byInstance, ok := next.instances[d.Service]
			if !ok {
				byInstance = make(map[string]Delta)
				next.instances[d.Service] = byInstance
			}
			cur, ok := byInstance[d.Instance]
			if !ok {
				next.size++
			}
			if !ok || d.Timestamp > cur.Timestamp {
				byInstance[d.Instance] = d
			}
		}
	}
	c.snap.Store(next)
	return next.size
}

// Lookup returns the winning delta for a key from the last build, tombstones
// included.
func (c *Combined) Lookup(service, instance string) (Delta, bool) {
	d, ok := c.snap.Load().instances[service][instance]
	return d, ok
}

// Service yields (instance, payload) pairs for one service from the last
// build, skipping deleted instances.
func (c *Combined) Service(service string) iter.Seq2[string, json.RawMessage] {
	byInstance := c.snap.Load().instances[service]
	return func(yield func(string, json.RawMessage) bool) {
		for instance, d := range byInstance {
			if d.Deleted() {
				continue
			}
			if !yield(instance, d.Payload) {
				return
			}
		}
	}
}

// Services lists the services that have at least one live instance.
func (c *Combined) Services() []string {
	snap := c.snap.Load()
	out := make([]string, 0, len(snap.instances))
	for service, byInstance := range snap.instances {
		for _, d := range byInstance {
			if !d.Deleted() {
				out = append(out, service)
				break
			}
		}
	}
	slices.Sort(out)
	return out
}

// Deltas answers a gossip pull. For each origin in since that this node
// knows, it returns the deltas newer than the given timestamp in insertion
// order. Unknown origins are left out.
func (c *Combined) Deltas(since map[string]int64) map[string][]Delta {
	out := make(map[string][]Delta, len(since))
	for origin, ts := range since {
		src, ok := c.sources[origin]
		if !ok {
			continue
		}
		deltas := make([]Delta, 0)
		for d := range src.After(ts) {
			deltas = append(deltas, d)
		}
		out[origin] = deltas
	}
	return out
}

// Origins returns the known origin names in sorted order.
func (c *Combined) Origins() []string {
	return slices.Clone(c.origins)
}
