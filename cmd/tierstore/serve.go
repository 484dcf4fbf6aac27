package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/tierstore/pkg/config"
	"github.com/cuemby/tierstore/pkg/coordinator"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tier store daemon",
	Long: `Run the tier store daemon: recovers placement state from its
manifest, starts the migration worker pool, policy evaluator,
reconciler and backend health monitors, and serves an admin API plus
Prometheus metrics and health endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		apiAddr, _ := cmd.Flags().GetString("api-addr")
		enablePprof, _ := cmd.Flags().GetBool("enable-pprof")

		doc, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg, boltBackends, err := doc.Build()
		if err != nil {
			return fmt.Errorf("build store config: %w", err)
		}
		defer func() {
			for _, b := range boltBackends {
				_ = b.Close()
			}
		}()

		fmt.Println("Starting tier store...")
		fmt.Printf("  Config: %s\n", configPath)
		fmt.Printf("  Tiers: %d\n", len(cfg.Tiers))

		store, err := coordinator.New(cfg)
		if err != nil {
			return fmt.Errorf("create store: %w", err)
		}
		store.Start()
		fmt.Println("✓ Coordinator started")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("coordinator", true, "running")

		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		newAdminAPI(store).register(http.DefaultServeMux)

		go func() {
			if err := http.ListenAndServe(apiAddr, nil); err != nil {
				log.Errorf("api server error: %v", err)
			}
		}()
		fmt.Printf("✓ API listening on http://%s\n", apiAddr)
		if enablePprof {
			fmt.Printf("✓ Profiling endpoints enabled at http://%s/debug/pprof/\n", apiAddr)
		}

		fmt.Println()
		fmt.Println("Store is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		if err := store.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "tierstore.yaml", "Path to store config file")
	serveCmd.Flags().String("api-addr", "127.0.0.1:9090", "Address for the admin/metrics/health API")
	serveCmd.Flags().Bool("enable-pprof", false, "Note pprof availability on the default mux")
}
