// Package discovery bootstraps the static member list from etcd. Members are
// read once at startup; the peer set does not follow later etcd changes.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ryandielhenn/hera/pkg/registry"
)

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// RegisterNode stores prefix+name -> addr under a lease that is kept alive
// until the returned cancel func is called.
func RegisterNode(ctx context.Context, cli *clientv3.Client, prefix, name, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, prefix+name, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("register %s: %w", name, err)
	}

	kctx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kctx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// LoadMembers reads every node registered under prefix. Values are host:port
// addresses; a missing port falls back to defPort.
func LoadMembers(ctx context.Context, kv clientv3.KV, prefix string, defPort int) (map[string]registry.Member, error) {
	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	members := make(map[string]registry.Member, len(resp.Kvs))
	for _, item := range resp.Kvs {
		name := strings.ToLower(strings.TrimPrefix(string(item.Key), prefix))
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		m, err := registry.ParseMember(string(item.Value), defPort)
		if err != nil {
			return nil, err
		}
		members[name] = m
	}
	return members, nil
}
