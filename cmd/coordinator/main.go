// Command coordinator runs a control-plane-only process: it hosts every
// configured entry type's Shard Coordinator singleton but never entries of
// its own (each type's Region here is proxy-only), so application traffic
// always forwards to a worker node.
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
		Use:   "coordinator",
		Short: "run a shardkit coordinator-role node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}
	config.BindFlags(root, v)
	// Establishes "coordinator" as this binary's effective --role default;
	// an explicit --role on the command line still overrides it.
	root.PersistentFlags().Set("role", "coordinator")
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
		return fmt.Errorf("coordinator: load config: %w", err)
	}

	nodeName := v.GetString("name")
	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}

	// Same typeNames and required role as cmd/node registers, but Proxy so
	// this process hosts no entries of its own — only the oldest
	// coordinator-role member ends up running each type's Coordinator
	// (spec.md §4.8).
	entryTypes := []appwire.EntryType{
		{Name: sharding.TypeName("counter"), Kind: "proxy", Role: "coordinator"},
		{Name: sharding.TypeName("kv"), Kind: "proxy", Role: "coordinator"},
	}

	n, err := appwire.Start(ctx, cfg, nodeName, entryTypes)
	if err != nil {
		return fmt.Errorf("coordinator: start: %w", err)
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
	n.Log.Infow("coordinator stopped")
	return nil
}
