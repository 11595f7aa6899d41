package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/vindex/internal/vconfig"
	"github.com/dreamware/vindex/internal/vlog"
)

var (
	// Version is set via ldflags during release builds.
	Version = "dev"

	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vindexd: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vindexd",
	Short:   "vindexd runs one node of a vindex search cluster",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	rootCmd.Flags().String("data-dir", "", "override the configured data directory")
	rootCmd.Flags().String("bind-addr", "", "override the configured gRPC bind address")
	rootCmd.Flags().String("operator-addr", "", "override the configured operator HTTP bind address")
	rootCmd.Flags().StringSlice("seeds", nil, "override the configured seed node addresses")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := vconfig.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	vlog.Init(vlog.Config{Level: vlog.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	log := vlog.Component("main")

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("bind_addr", cfg.BindAddr).Str("operator_addr", cfg.OperatorAddr).Msg("vindexd starting")
	return node.Run(ctx)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *vconfig.Settings) {
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("bind-addr"); v != "" {
		cfg.BindAddr = v
	}
	if v, _ := cmd.Flags().GetString("operator-addr"); v != "" {
		cfg.OperatorAddr = v
	}
	if v, _ := cmd.Flags().GetStringSlice("seeds"); len(v) > 0 {
		cfg.SeedAddrs = v
	}
}
