// Command node runs a worker process: it hosts Shard Regions for every
// configured entry type and, when its role matches a type's required role,
// that type's Shard Coordinator singleton too.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/shardkit/internal/appwire"
	"github.com/dreamware/shardkit/internal/config"
	"github.com/dreamware/shardkit/internal/sharding"
)

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "node",
		Short: "run a shardkit worker node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}
	config.BindFlags(root, v)
	// Establishes "worker" as this binary's effective --role default; an
	// explicit --role on the command line still overrides it during Execute.
	root.PersistentFlags().Set("role", "worker")
	root.PersistentFlags().String("name", "", "this node's stable identifier (defaults to hostname)")
	v.BindPFlag("name", root.PersistentFlags().Lookup("name"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("node: load config: %w", err)
	}

	nodeName := v.GetString("name")
	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}

	entryTypes := []appwire.EntryType{
		{Name: sharding.TypeName("counter"), Kind: "counter", Role: "coordinator", NumShards: 8},
		{Name: sharding.TypeName("kv"), Kind: "kv", Role: "coordinator", NumShards: 8},
	}

	n, err := appwire.Start(ctx, cfg, nodeName, entryTypes)
	if err != nil {
		return fmt.Errorf("node: start: %w", err)
	}

	go func() {
		n.Log.Infow("listening", "addr", cfg.ListenAddr, "advertise", cfg.AdvertiseAddr)
		if err := n.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.Log.Errorw("http server stopped", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	n.Shutdown(5 * time.Second)
	n.Log.Infow("node stopped")
	return nil
}
