package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/circuitbreaker"
	"github.com/oriys/cachebridge/internal/config"
	"github.com/oriys/cachebridge/internal/engine"
	"github.com/oriys/cachebridge/internal/logging"
	"github.com/oriys/cachebridge/internal/metrics"
	"github.com/oriys/cachebridge/internal/observability"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cachebridge",
		Short:         "cachebridge - simple-cache access to configured cache engines",
		Long:          "Serves named cache configurations (memory, lru, redis, bolt, postgres, sqlite, tiered, null) over HTTP, gRPC health and MCP, or operates on them directly.",
		Version:       observability.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CACHEBRIDGE_CONFIG"), "Config file (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		serveCmd(),
		mcpCmd(),
		tokenCmd(),
		cachesCmd(),
		getCmd(),
		setCmd(),
		deleteCmd(),
		hasCmd(),
		clearCmd(),
		getManyCmd(),
		setManyCmd(),
		deleteManyCmd(),
	)
	return root
}

// loadConfig reads the config file and environment, then applies the
// --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}
	logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
	return cfg, nil
}

// openCaches builds the engines of specs. Breaker transitions are
// logged and exported as metrics.
func openCaches(ctx context.Context, specs map[string]engine.Spec) (*engine.Registry, error) {
	return engine.Build(ctx, specs, engine.BuildOptions{
		OnBreakerChange: func(name string, from, to circuitbreaker.State) {
			logging.Op().Warn("cache breaker state changed", "cache", name, "from", from.String(), "to", to.String())
			metrics.RecordBreakerTransition(name, from, to)
		},
	})
}

// withBridge opens the caches, resolves name and runs fn against it.
func withBridge(cmd *cobra.Command, name string, fn func(ctx context.Context, b *bridge.Bridge) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg, err := openCaches(ctx, selectCaches(cfg.Caches, name))
	if err != nil {
		return err
	}
	defer reg.Close()

	b, err := bridge.New(reg, name)
	if err != nil {
		return err
	}
	return fn(ctx, b)
}

// selectCaches returns the definition of name plus the layers it references, so
// a one-off command does not connect to unrelated backends.
func selectCaches(specs map[string]engine.Spec, name string) map[string]engine.Spec {
	out := make(map[string]engine.Spec)
	spec, ok := specs[name]
	if !ok {
		return out
	}
	out[name] = spec
	if spec.Engine == engine.KindTiered {
		for _, layer := range []string{spec.Tiered.L1, spec.Tiered.L2} {
			if s, ok := specs[layer]; ok {
				out[layer] = s
			}
		}
	}
	return out
}
