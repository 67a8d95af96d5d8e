// Package config loads node configuration from a file, HERA_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ryandielhenn/hera/internal/logging"
	"github.com/ryandielhenn/hera/pkg/registry"
)

// Default configuration constants
const (
	DefaultPort                = 8080
	DefaultLiveness            = 300
	DefaultReplicationInterval = 5
	DefaultRebuildInterval     = 3
	DefaultPurgeInterval       = 7
	DefaultGossipTimeout       = 2
	DefaultEtcdPrefix          = "/hera/nodes/"
	DefaultEtcdTTL             = 10
)

var (
	ErrNameRequired    = errors.New("node name is required")
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
	ErrInvalidInterval = errors.New("intervals must be positive")
	ErrInvalidMember   = errors.New("invalid cluster member")
)

// Config is the node configuration. Times are in seconds.
type Config struct {
	Name                string                     `mapstructure:"name" yaml:"name"`
	Host                string                     `mapstructure:"host" yaml:"host"`
	Port                int                        `mapstructure:"port" yaml:"port"`
	Liveness            int                        `mapstructure:"liveness" yaml:"liveness"`
	ReplicationInterval int                        `mapstructure:"replication_interval" yaml:"replication_interval"`
	RebuildInterval     int                        `mapstructure:"rebuild_interval" yaml:"rebuild_interval"`
	PurgeInterval       int                        `mapstructure:"purge_interval" yaml:"purge_interval"`
	GossipTimeout       int                        `mapstructure:"gossip_timeout" yaml:"gossip_timeout"`
	Cluster             map[string]registry.Member `mapstructure:"cluster" yaml:"cluster"`
	Log                 logging.Config             `mapstructure:"log" yaml:"log"`
	Etcd                EtcdConfig                 `mapstructure:"etcd" yaml:"etcd"`
}

// EtcdConfig enables the optional etcd bootstrap when Endpoints is set.
type EtcdConfig struct {
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"`
	Prefix    string   `mapstructure:"prefix" yaml:"prefix"`
	TTL       int64    `mapstructure:"ttl" yaml:"ttl"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"name":                 "name",
	"host":                 "host",
	"port":                 "port",
	"liveness":             "liveness",
	"replication-interval": "replication_interval",
	"rebuild-interval":     "rebuild_interval",
	"purge-interval":       "purge_interval",
	"gossip-timeout":       "gossip_timeout",
	"log-level":            "log.level",
	"log-format":           "log.format",
	"etcd-endpoints":       "etcd.endpoints",
}

// Load reads path (if not empty), then environment, then any flags in fs that
// the user set. Viper folds map keys to lower case, so node names are
// lower-cased throughout.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Name = strings.ToLower(cfg.Name)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("liveness", DefaultLiveness)
	v.SetDefault("replication_interval", DefaultReplicationInterval)
	v.SetDefault("rebuild_interval", DefaultRebuildInterval)
	v.SetDefault("purge_interval", DefaultPurgeInterval)
	v.SetDefault("gossip_timeout", DefaultGossipTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("etcd.prefix", DefaultEtcdPrefix)
	v.SetDefault("etcd.ttl", DefaultEtcdTTL)
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	for _, iv := range []int{c.Liveness, c.ReplicationInterval, c.RebuildInterval, c.PurgeInterval, c.GossipTimeout} {
		if iv <= 0 {
			return ErrInvalidInterval
		}
	}
	for name, m := range c.Cluster {
		if m.Host == "" || m.Port <= 0 || m.Port > 65535 {
			return fmt.Errorf("%w: %s (%s:%d)", ErrInvalidMember, name, m.Host, m.Port)
		}
	}
	return nil
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) LivenessWindow() time.Duration {
	return time.Duration(c.Liveness) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.GossipTimeout) * time.Second
}

func (c *Config) Intervals() registry.Intervals {
	return registry.Intervals{
		Gossip:  time.Duration(c.ReplicationInterval) * time.Second,
		Rebuild: time.Duration(c.RebuildInterval) * time.Second,
		Purge:   time.Duration(c.PurgeInterval) * time.Second,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
