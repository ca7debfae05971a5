package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubfleet/hubfleet/pkg/config"
	"github.com/hubfleet/hubfleet/pkg/engine"
	"github.com/hubfleet/hubfleet/pkg/log"
	"github.com/hubfleet/hubfleet/pkg/spawner"
	"github.com/hubfleet/hubfleet/pkg/state"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagConfig string
	flagServer string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hubfleet",
	Short: "Hubfleet - per-user notebook services on a swarm engine",
	Long: `Hubfleet keeps exactly one long-running notebook service per user on a
swarm-style container engine. It derives a stable service name per user,
reconciles against the engine's view across restarts and failures, and
persists session state locally so the hub process can come and go while
user services keep running.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hubfleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "/etc/hubfleet/config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "named server within the user session")

	upCmd.Flags().String("image", "", "override the configured image")
	upCmd.Flags().String("token", "", "api token to bake into the service")
	upCmd.Flags().String("hub-api-url", "", "hub callback url handed to the service")
	upCmd.Flags().StringArray("env", nil, "extra environment entries (KEY=VALUE)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pingCmd)
}

// setup wires logging, configuration, the engine facade and the session
// store for a command invocation.
func setup() (*config.Config, *engine.Facade, state.Store, error) {
	cfg, warnings, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	for _, w := range warnings {
		logger := log.WithComponent("config")
		logger.Warn().Msg(w.String())
	}

	// Ambient DOCKER_* settings are the base; explicit config overlays.
	engCfg := engine.FromEnv()
	if cfg.Engine.Host != "" {
		engCfg.Host = cfg.Engine.Host
	}
	if cfg.Engine.TLS != nil {
		engCfg.TLS = cfg.Engine.TLS
	}

	store, err := state.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	return &cfg, engine.Init(engCfg), store, nil
}

func teardown(store state.Store) {
	engine.Shutdown()
	if store != nil {
		store.Close()
	}
}

var upCmd = &cobra.Command{
	Use:   "up <user>",
	Short: "Ensure the user's service is running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, eng, store, err := setup()
		if err != nil {
			return err
		}
		defer teardown(store)

		sp, err := spawner.New(cfg, args[0], flagServer, eng, store)
		if err != nil {
			return err
		}

		image, _ := cmd.Flags().GetString("image")
		token, _ := cmd.Flags().GetString("token")
		hubURL, _ := cmd.Flags().GetString("hub-api-url")
		envFlags, _ := cmd.Flags().GetStringArray("env")

		env := map[string]string{}
		for _, kv := range envFlags {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --env entry %q, expected KEY=VALUE", kv)
			}
			env[k] = v
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		endpoint, err := sp.EnsureRunning(ctx, spawner.StartOptions{
			Image:     image,
			APIToken:  token,
			HubAPIURL: hubURL,
			Env:       env,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s:%d\n", endpoint.Host, endpoint.Port)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <user>",
	Short: "Poll the user's service for liveness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, eng, store, err := setup()
		if err != nil {
			return err
		}
		defer teardown(store)

		sp, err := spawner.New(cfg, args[0], flagServer, eng, store)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		res, err := sp.Poll(ctx)
		if err != nil {
			return err
		}
		fmt.Println(res.Status)
		if res.Snapshot != nil {
			keys := make([]string, 0, len(res.Snapshot.Detail))
			for k := range res.Snapshot.Detail {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s: %s\n", k, res.Snapshot.Detail[k])
			}
		}
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down <user>",
	Short: "Stop the user's service and clear its record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, eng, store, err := setup()
		if err != nil {
			return err
		}
		defer teardown(store)

		sp, err := spawner.New(cfg, args[0], flagServer, eng, store)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		return sp.Stop(ctx)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted session records",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, store, err := setup()
		if err != nil {
			return err
		}
		defer teardown(store)

		records, err := store.List()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s\t%s\n", k, records[k].ServiceID)
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe engine connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, eng, store, err := setup()
		if err != nil {
			return err
		}
		defer teardown(store)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := eng.Ping(ctx); err != nil {
			return err
		}
		fmt.Println("✓ Engine reachable")
		return nil
	},
}
