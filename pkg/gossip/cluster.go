package gossip

import (
	"context"
	"math/rand"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/hera/internal/telemetry"
)

// Cluster is the static set of peers of the local node. The local node is
// never a member. Membership does not change after construction.
type Cluster struct {
	name      string
	nodes     map[string]*Node
	names     []string // sorted, for reproducible selection
	transport Transport
	rnd       *rand.Rand
	timeout   time.Duration
	health    *HealthTracker
	log       *zap.Logger
}

type Option func(*Cluster)

// WithRand sets the random source used to pick peers. Only the gossip loop
// draws from it.
func WithRand(r *rand.Rand) Option {
	return func(c *Cluster) { c.rnd = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cluster) { c.log = l }
}

// WithRoundTimeout bounds a single pull.
func WithRoundTimeout(d time.Duration) Option {
	return func(c *Cluster) { c.timeout = d }
}

func WithHealthTracker(h *HealthTracker) Option {
	return func(c *Cluster) { c.health = h }
}

// NewCluster builds the peer set for the node called name. A node in nodes
// with that name is dropped.
func NewCluster(name string, nodes []*Node, t Transport, opts ...Option) *Cluster {
	c := &Cluster{
		name:      name,
		nodes:     make(map[string]*Node, len(nodes)),
		transport: t,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		health:    NewHealthTracker(nil),
		log:       zap.NewNop(),
	}
	for _, n := range nodes {
		if n.Name == name {
			continue
		}
		c.nodes[n.Name] = n
		c.names = append(c.names, n.Name)
	}
	slices.Sort(c.names)
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("gossip")
	return c
}

func (c *Cluster) Name() string { return c.name }

// Node returns the peer called name.
func (c *Cluster) Node(name string) (*Node, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

// Nodes returns the peers sorted by name.
func (c *Cluster) Nodes() []*Node {
	out := make([]*Node, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.nodes[name])
	}
	return out
}

func (c *Cluster) Health() *HealthTracker { return c.health }

// Consume runs one gossip round: pick a random peer, pull everything newer
// than our cursors for every known origin, and apply it. A failed pull
// leaves every replica untouched. An empty peer set is a no-op.
func (c *Cluster) Consume(ctx context.Context) error {
	candidate := c.selectCandidate()
	if candidate == nil {
		telemetry.GossipRounds.WithLabelValues("", "idle").Inc()
		return nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	since := c.collectTimestamps()
	msg, err := c.transport.Pull(ctx, candidate.Addr(), since)
	c.health.Observe(candidate.Name, err)
	if err != nil {
		telemetry.GossipRounds.WithLabelValues(candidate.Name, "error").Inc()
		return err
	}
	telemetry.GossipRounds.WithLabelValues(candidate.Name, "ok").Inc()

	applied := c.applyDeltas(msg)
	c.log.Debug("gossip round",
		zap.String("peer", candidate.Name),
		zap.Int("applied", applied),
	)
	return nil
}

func (c *Cluster) selectCandidate() *Node {
	if len(c.names) == 0 {
		return nil
	}
	return c.nodes[c.names[c.rnd.Intn(len(c.names))]]
}

func (c *Cluster) collectTimestamps() map[string]int64 {
	since := make(map[string]int64, len(c.nodes))
	for name, n := range c.nodes {
		since[name] = n.LastTimestamp()
	}
	return since
}

func (c *Cluster) applyDeltas(msg Message) int {
	applied := 0
	for origin, deltas := range msg {
		n, ok := c.nodes[origin]
		if !ok {
			continue
		}
		n.Apply(deltas)
		applied += len(deltas)
		telemetry.DeltasApplied.WithLabelValues(origin).Add(float64(len(deltas)))
	}
	return applied
}
