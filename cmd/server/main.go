package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hera",
	Short: "Peer-replicated service registry",
	Long: `hera keeps a directory of service instances on every node and
replicates it between peers with pull-based gossip. Each node serves the
merged, last-write-wins view of the whole cluster over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (yaml, json or toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
