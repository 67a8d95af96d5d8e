package state

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestMergeProperties checks last-write-wins and expiry over random timestamps.
func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("greater timestamp wins regardless of source order", prop.ForAll(
		func(t1, t2 int64, swap bool) bool {
			if t1 == t2 {
				t2++
			}
			a, b := New(nil), New(nil)
			a.PutAt("svc", "i", json.RawMessage(strconv.FormatInt(t1, 10)), t1)
			b.PutAt("svc", "i", json.RawMessage(strconv.FormatInt(t2, 10)), t2)
			if swap {
				a, b = b, a
			}

			c := NewCombined(map[string]*State{"x": a, "y": b})
			c.Build()
			d, ok := c.Lookup("svc", "i")
			return ok && d.Timestamp == max(t1, t2)
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
		gen.Bool(),
	))

	properties.Property("expire keeps exactly the deltas at or after cutoff", prop.ForAll(
		func(stamps []int64, cutoff int64) bool {
			s := New(nil)
			want := 0
			for i, ts := range stamps {
				s.PutAt("svc", strconv.Itoa(i), json.RawMessage(`1`), ts)
				if ts >= cutoff {
					want++
				}
			}
			s.Expire(cutoff)
			for d := range s.Since(0) {
				if d.Timestamp < cutoff {
					return false
				}
			}
			return s.Len() == want
		},
		gen.SliceOf(gen.Int64Range(1, 1000)),
		gen.Int64Range(1, 1000),
	))

	properties.Property("build is idempotent", prop.ForAll(
		func(stamps []int64) bool {
			s := New(nil)
			for i, ts := range stamps {
				s.PutAt("svc", strconv.Itoa(i%3), json.RawMessage(strconv.Itoa(i)), ts)
			}
			c := NewCombined(map[string]*State{"x": s})
			first := c.Build()
			before := map[string]string{}
			for k, v := range c.Service("svc") {
				before[k] = string(v)
			}
			if c.Build() != first {
				return false
			}
			for k, v := range c.Service("svc") {
				if before[k] != string(v) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(1, 50)),
	))

	properties.TestingRun(t)
}
