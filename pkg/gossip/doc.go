// Package gossip implements pull-based anti-entropy between hera nodes. Each
// Node holds a replica of one peer's delta log; a Cluster runs gossip rounds
// that pick a random peer, send it the highest timestamp cached for every
// known origin, and append whatever newer deltas come back to the matching
// replicas.
//
// Typical usage:
//
//	c := gossip.NewCluster("a", nodes, gossip.NewHTTPTransport(2*time.Second),
//		gossip.WithRand(rand.New(rand.NewSource(1))))
//	if err := c.Consume(ctx); err != nil {
//		log.Warn("gossip round failed", zap.Error(err))
//	}
//
// Because a node answers pulls for every origin it knows, not just itself,
// writes spread transitively without a full mesh.
package gossip
