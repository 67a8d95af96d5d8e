package gossip

import (
	"net"
	"strconv"
	"sync/atomic"

	"github.com/ryandielhenn/hera/pkg/state"
)

// Node is a peer and the local replica of its delta log. The replica is only
// written by Apply.
type Node struct {
	Name    string
	Host    string
	Port    int
	Replica *state.State

	last atomic.Int64
}

func NewNode(name, host string, port int, replica *state.State) *Node {
	return &Node{Name: name, Host: host, Port: port, Replica: replica}
}

// Addr returns host:port.
func (n *Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// LastTimestamp is the highest timestamp ever seen in the replica. It only
// scans deltas newer than the previous answer, so it never goes backwards,
// even after expiry removes the newest delta.
func (n *Node) LastTimestamp() int64 {
	last := n.last.Load()
	for d := range n.Replica.Since(last) {
		last = max(last, d.Timestamp)
	}
	for {
		cur := n.last.Load()
		if last <= cur {
			return cur
		}
		if n.last.CompareAndSwap(cur, last) {
			return last
		}
	}
}

// Apply appends deltas to the replica with their original timestamps.
func (n *Node) Apply(deltas []state.Delta) {
	for _, d := range deltas {
		n.Replica.Apply(d)
	}
}
