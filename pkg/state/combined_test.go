package state

import (
	"encoding/json"
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceMap(c *Combined, service string) map[string]string {
	out := map[string]string{}
	for instance, payload := range c.Service(service) {
		out[instance] = string(payload)
	}
	return out
}

func TestBuildLastWriteWinsAcrossOrigins(t *testing.T) {
	local, peer := New(nil), New(nil)
	local.PutAt("web", "i1", json.RawMessage(`"old"`), 10)
	peer.PutAt("web", "i1", json.RawMessage(`"new"`), 20)
	peer.PutAt("web", "i2", json.RawMessage(`"only-peer"`), 5)

	c := NewCombined(map[string]*State{"a": local, "b": peer})
	assert.Equal(t, 2, c.Build())

	assert.Equal(t, map[string]string{"i1": `"new"`, "i2": `"only-peer"`}, serviceMap(c, "web"))
	assert.Empty(t, serviceMap(c, "db"))
}

func TestBuildTieBreaksOnOriginName(t *testing.T) {
	a, b := New(nil), New(nil)
	a.PutAt("web", "i1", json.RawMessage(`"from-a"`), 10)
	b.PutAt("web", "i1", json.RawMessage(`"from-b"`), 10)

	// map iteration order must not matter
	for range 10 {
		c := NewCombined(map[string]*State{"b": b, "a": a})
		c.Build()
		assert.Equal(t, `"from-a"`, serviceMap(c, "web")["i1"])
	}
}

func TestBuildTieWithinOriginPrefersLatestInsert(t *testing.T) {
	s := New(nil)
	s.PutAt("web", "i1", json.RawMessage(`"first"`), 10)
	s.PutAt("web", "i1", json.RawMessage(`"second"`), 10)

	c := NewCombined(map[string]*State{"a": s})
	c.Build()
	assert.Equal(t, `"second"`, serviceMap(c, "web")["i1"])
}

func TestReplicaResolvesTieLikeOrigin(t *testing.T) {
	origin := New(nil)
	origin.PutAt("web", "i1", json.RawMessage(`"up"`), 10)
	origin.PutAt("web", "i1", Tombstone, 10)

	// two hops: origin -> replica -> second replica
	replica, second := New(nil), New(nil)
	for _, d := range NewCombined(map[string]*State{"a": origin}).Deltas(map[string]int64{"a": 0})["a"] {
		replica.Apply(d)
	}
	for _, d := range NewCombined(map[string]*State{"a": replica}).Deltas(map[string]int64{"a": 0})["a"] {
		second.Apply(d)
	}

	for name, s := range map[string]*State{"origin": origin, "replica": replica, "second": second} {
		c := NewCombined(map[string]*State{"a": s})
		c.Build()
		d, ok := c.Lookup("web", "i1")
		require.True(t, ok, name)
		assert.True(t, d.Deleted(), "%s resolved the tie to %s", name, d.Payload)
	}
}

func TestBuildHidesTombstones(t *testing.T) {
	local, peer := New(nil), New(nil)
	local.PutAt("web", "i1", json.RawMessage(`"up"`), 10)
	peer.PutAt("web", "i1", Tombstone, 20)

	c := NewCombined(map[string]*State{"a": local, "b": peer})
	c.Build()
	assert.Empty(t, serviceMap(c, "web"))
	assert.Empty(t, c.Services())

	d, ok := c.Lookup("web", "i1")
	require.True(t, ok)
	assert.True(t, d.Deleted())

	// a later real write revives the key
	local.PutAt("web", "i1", json.RawMessage(`"back"`), 30)
	c.Build()
	assert.Equal(t, map[string]string{"i1": `"back"`}, serviceMap(c, "web"))
	assert.Equal(t, []string{"web"}, c.Services())
}

func TestBuildDropsExpiredKeys(t *testing.T) {
	s := New(nil)
	s.PutAt("web", "i1", json.RawMessage(`1`), 10)
	c := NewCombined(map[string]*State{"a": s})
	c.Build()
	require.Len(t, serviceMap(c, "web"), 1)

	s.Expire(11)
	assert.Equal(t, 0, c.Build())
	_, ok := c.Lookup("web", "i1")
	assert.False(t, ok)
}

func TestServiceReadsSnapshotTakenBeforeRebuild(t *testing.T) {
	s := New(nil)
	s.PutAt("web", "i1", json.RawMessage(`1`), 10)
	c := NewCombined(map[string]*State{"a": s})
	c.Build()

	seq := c.Service("web")
	s.Expire(100)
	c.Build()

	got := maps.Collect(seq)
	assert.Len(t, got, 1, "an iterator keeps reading the snapshot it was created from")
	assert.Empty(t, serviceMap(c, "web"))
}

func TestDeltasFiltersByOriginAndTimestamp(t *testing.T) {
	local, peer := New(nil), New(nil)
	local.PutAt("web", "i1", json.RawMessage(`1`), 10)
	local.PutAt("web", "i2", json.RawMessage(`2`), 20)
	peer.PutAt("db", "p1", json.RawMessage(`3`), 15)

	c := NewCombined(map[string]*State{"self": local, "peer": peer})
	got := c.Deltas(map[string]int64{"self": 10, "peer": 0, "stranger": 0})

	require.Len(t, got, 2)
	assert.NotContains(t, got, "stranger")
	require.Len(t, got["self"], 1)
	assert.Equal(t, "i2", got["self"][0].Instance)
	assert.Equal(t, int64(20), got["self"][0].Timestamp)
	require.Len(t, got["peer"], 1)
	assert.Equal(t, "p1", got["peer"][0].Instance)

	empty := c.Deltas(map[string]int64{"self": 99})
	require.Contains(t, empty, "self")
	assert.Empty(t, empty["self"])
}

func TestOriginsSorted(t *testing.T) {
	c := NewCombined(map[string]*State{"c": New(nil), "a": New(nil), "b": New(nil)})
	assert.Equal(t, []string{"a", "b", "c"}, c.Origins())
}
