package main

import (
	"context"
	"errors"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/hera/discovery"
	"github.com/ryandielhenn/hera/internal/config"
	"github.com/ryandielhenn/hera/internal/logging"
	"github.com/ryandielhenn/hera/internal/telemetry"
	"github.com/ryandielhenn/hera/pkg/registry"
	"github.com/ryandielhenn/hera/pkg/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a registry node",
	Long: `Start a registry node.

Examples:
  # Start node a of a three node cluster described in hera.yaml
  hera start --config=hera.example.yaml --name=a --port=7001

  # Override the listen port and gossip more often
  hera start -c hera.example.yaml --name=b --port=7002 --replication-interval=1`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	addNodeFlags(startCmd)
}

func addNodeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("name", "n", "", "Name of this node in the cluster")
	f.String("host", "", "Address to bind the HTTP server to")
	f.IntP("port", "p", config.DefaultPort, "Port to bind the HTTP server to")
	f.Int("liveness", config.DefaultLiveness, "Seconds a delta lives without being refreshed, this node's own writes included")
	f.Int("replication-interval", config.DefaultReplicationInterval, "Seconds between gossip rounds")
	f.Int("rebuild-interval", config.DefaultRebuildInterval, "Seconds between rebuilds of the combined view")
	f.Int("purge-interval", config.DefaultPurgeInterval, "Seconds between expiry sweeps")
	f.Int("gossip-timeout", config.DefaultGossipTimeout, "Seconds before a gossip pull is abandoned")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "json", "json or console")
	f.StringSlice("etcd-endpoints", nil, "etcd endpoints used to bootstrap the member list (optional)")
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	members := maps.Clone(cfg.Cluster)
	if members == nil {
		members = map[string]registry.Member{}
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		unregister, err := bootstrapFromEtcd(ctx, cfg, members, log)
		if err != nil {
			return err
		}
		defer unregister()
	}

	reg := registry.New(registry.Options{
		Name:          cfg.Name,
		Members:       members,
		Liveness:      cfg.LivenessWindow(),
		GossipTimeout: cfg.Timeout(),
		Logger:        log,
	})
	log.Info("node configured",
		zap.String("name", cfg.Name),
		zap.Int("peers", len(reg.Cluster().Nodes())),
		zap.Duration("liveness", cfg.LivenessWindow()),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           reg.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	scheduler.Run(gctx, g, log.Named("scheduler"), reg.Tasks(cfg.Intervals())...)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("shut down")
	return err
}

// bootstrapFromEtcd adds members registered in etcd that the config file does
// not already name, then registers this node.
func bootstrapFromEtcd(ctx context.Context, cfg *config.Config, members map[string]registry.Member, log *zap.Logger) (func(), error) {
	cli, err := discovery.NewClient(cfg.Etcd.Endpoints)
	if err != nil {
		return nil, err
	}

	found, err := discovery.LoadMembers(ctx, cli, cfg.Etcd.Prefix, config.DefaultPort)
	if err != nil {
		cli.Close()
		return nil, err
	}
	for name, m := range found {
		if _, ok := members[name]; !ok {
			members[name] = m
			log.Info("member from etcd", zap.String("name", name), zap.String("host", m.Host), zap.Int("port", m.Port))
		}
	}

	leaseID, cancel, err := discovery.RegisterNode(ctx, cli, cfg.Etcd.Prefix, cfg.Name, advertiseAddr(cfg, members), cfg.Etcd.TTL)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return func() {
		cancel()
		revokeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_, _ = cli.Revoke(revokeCtx, leaseID)
		cli.Close()
	}, nil
}

func advertiseAddr(cfg *config.Config, members map[string]registry.Member) string {
	if self, ok := members[cfg.Name]; ok {
		return net.JoinHostPort(self.Host, strconv.Itoa(self.Port))
	}
	host := cfg.Host
	if host == "" {
		host, _ = os.Hostname()
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}
