package registry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/hera/internal/telemetry"
	"github.com/ryandielhenn/hera/pkg/clock"
	"github.com/ryandielhenn/hera/pkg/gossip"
	"github.com/ryandielhenn/hera/pkg/scheduler"
	"github.com/ryandielhenn/hera/pkg/state"
)

// Member is a cluster member's address as configured.
type Member struct {
	Host string `json:"host" mapstructure:"host" yaml:"host"`
	Port int    `json:"port" mapstructure:"port" yaml:"port"`
}

type Options struct {
	Name      string
	Members   map[string]Member // may include Name itself
	Clock     clock.Clock
	Liveness  time.Duration
	Transport gossip.Transport
	// Rand picks gossip peers; seeded from the clock when nil.
	Rand          *rand.Rand
	GossipTimeout time.Duration
	Logger        *zap.Logger
}

// Intervals are the periods of the three background tasks.
type Intervals struct {
	Gossip  time.Duration
	Rebuild time.Duration
	Purge   time.Duration
}

// Registry is one hera node: the local delta log, a replica per peer, and
// the combined directory built over all of them.
type Registry struct {
	name     string
	clock    clock.Clock
	liveness time.Duration
	local    *state.State
	cluster  *gossip.Cluster
	combined *state.Combined
	sources  map[string]*state.State
	log      *zap.Logger
}

func New(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Transport == nil {
		opts.Transport = gossip.NewHTTPTransport(opts.GossipTimeout)
	}

	local := state.New(opts.Clock)
	sources := map[string]*state.State{opts.Name: local}
	nodes := make([]*gossip.Node, 0, len(opts.Members))
	for name, m := range opts.Members {
		if name == opts.Name {
			continue
		}
		replica := state.New(opts.Clock)
		sources[name] = replica
		nodes = append(nodes, gossip.NewNode(name, m.Host, m.Port, replica))
	}

	clusterOpts := []gossip.Option{
		gossip.WithLogger(opts.Logger),
		gossip.WithRoundTimeout(opts.GossipTimeout),
		gossip.WithHealthTracker(gossip.NewHealthTracker(opts.Clock)),
	}
	if opts.Rand != nil {
		clusterOpts = append(clusterOpts, gossip.WithRand(opts.Rand))
	}

	return &Registry{
		name:     opts.Name,
		clock:    opts.Clock,
		liveness: opts.Liveness,
		local:    local,
		cluster:  gossip.NewCluster(opts.Name, nodes, opts.Transport, clusterOpts...),
		combined: state.NewCombined(sources),
		sources:  sources,
		log:      opts.Logger.Named("registry"),
	}
}

func (r *Registry) Name() string { return r.name }
func (r *Registry) Local() *state.State { return r.local }
func (r *Registry) Combined() *state.Combined { return r.combined }
func (r *Registry) Cluster() *gossip.Cluster { return r.cluster }

// Consume runs one gossip round.
func (r *Registry) Consume(ctx context.Context) error {
	return r.cluster.Consume(ctx)
}

// Rebuild recomputes the combined directory.
func (r *Registry) Rebuild(context.Context) error {
	start := time.Now()
	n := r.combined.Build()
	telemetry.RebuildDuration.Observe(time.Since(start).Seconds())
	telemetry.CombinedEntries.Set(float64(n))
	return nil
}

// Purge expires every delta, local or replicated, older than the liveness
// window. The local log is not exempt: a node's own writes disappear if they
// are not refreshed.
func (r *Registry) Purge(context.Context) error {
	cutoff := r.clock.Now() - clock.Millis(r.liveness)
	total := 0
	for origin, s := range r.sources {
		removed := s.Expire(cutoff)
		total += removed
		telemetry.DeltasExpired.WithLabelValues(origin).Add(float64(removed))
		telemetry.LogLength.WithLabelValues(origin).Set(float64(s.Len()))
	}
	if total > 0 {
		r.log.Debug("expired deltas", zap.Int("count", total), zap.Int64("cutoff", cutoff))
	}
	return nil
}

// Tasks returns the gossip, rebuild and purge loops for the scheduler.
func (r *Registry) Tasks(iv Intervals) []scheduler.Task {
	return []scheduler.Task{
		{Name: "gossip", Interval: iv.Gossip, Run: r.Consume},
		{Name: "rebuild", Interval: iv.Rebuild, Run: r.Rebuild},
		{Name: "purge", Interval: iv.Purge, Run: r.Purge},
	}
}
