package state

import (
	"bytes"
	"encoding/json"
)

// Tombstone is the payload written when an instance is removed. It takes part
// in last-write-wins like any other payload and is hidden from readers.
var Tombstone = json.RawMessage(`"!TOMBSTONE!"`)

// Key identifies one service instance.
type Key struct {
	Service  string
	Instance string
}

// Delta is one immutable write. Timestamps are milliseconds, assigned once by
// the origin node and carried unchanged through replication.
type Delta struct {
	Service   string
	Instance  string
	Payload   json.RawMessage
	Timestamp int64
}

func (d Delta) Key() Key {
	return Key{Service: d.Service, Instance: d.Instance}
}

// Deleted reports whether the delta is a tombstone.
func (d Delta) Deleted() bool {
	return IsTombstone(d.Payload)
}

// IsTombstone reports whether payload is the tombstone marker.
func IsTombstone(payload json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(payload), Tombstone)
}
