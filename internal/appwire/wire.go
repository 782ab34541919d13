// Package appwire is the shared bring-up sequence both cmd/node and
// cmd/coordinator run: construct the node-wide collaborators (actor system,
// membership, journal, metrics) once, start a Guardian over them, register
// this process's entry types, and mount everything on one HTTP server.
package appwire

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/allocation"
	"github.com/dreamware/shardkit/internal/clustermembership"
	"github.com/dreamware/shardkit/internal/config"
	"github.com/dreamware/shardkit/internal/entrykit"
	"github.com/dreamware/shardkit/internal/metrics"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/registry"
	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/storage"
)

// EntryType is one typeName a node offers to host, expressed at the level
// cmd/ wiring thinks in rather than registry's lower-level EntryProps.
type EntryType struct {
	Name sharding.TypeName
	// Kind selects a ready-made entrykit factory ("counter" or "kv"), or
	// "proxy" for a proxy-only type that hosts no entries. A
	// process that needs an application-specific entry should bypass
	// EntryType and call Guardian.Start directly instead.
	Kind string
	// Role is the role required to host this type's Coordinator singleton;
	// empty means any node may.
	Role string
	// NumShards sizes the hash-based ShardResolver this type gets.
	NumShards int
}

// Node is a fully wired process: its Guardian plus the HTTP server exposing
// sharding transport, health, and metrics endpoints.
type Node struct {
	Guardian *registry.Guardian
	Server   *http.Server
	Log      *zap.SugaredLogger

	journal    closer
	membership clustermembership.Provider
}

type closer interface{ Close() error }

// Start performs the whole bring-up sequence: opens the journal, joins
// membership, builds the Guardian, starts every entryType, and returns the
// Node ready to ListenAndServe.
func Start(ctx context.Context, cfg config.Config, nodeName string, entryTypes []EntryType) (*Node, error) {
	log := zap.Must(zap.NewProduction()).Sugar().With("node", nodeName)

	journal, err := openJournal(cfg)
	if err != nil {
		return nil, fmt.Errorf("appwire: open journal: %w", err)
	}

	membership, err := joinMembership(cfg, nodeName)
	if err != nil {
		return nil, fmt.Errorf("appwire: join membership: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	guardian := registry.New(registry.Config{
		BaseAddr:   cfg.AdvertiseAddr,
		Role:       cfg.Role,
		System:     actorkit.NewSystem(),
		Membership: membership,
		Journal:    journal,
		Metrics:    m,
		Logger:     log,
		HTTPMux:    mux,
		Node:       cfg,
	})

	for _, et := range entryTypes {
		props, err := entryProps(et)
		if err != nil {
			return nil, fmt.Errorf("appwire: type %q: %w", et.Name, err)
		}
		strategy := allocation.NewLeastShardStrategy(cfg.LeastShardRebalanceThreshold, cfg.LeastShardMaxSimultaneousRebalance)
		numShards := et.NumShards
		if numShards <= 0 {
			numShards = 1
		}
		ref, err := guardian.Start(ctx, et.Name, props, et.Role, cfg.RememberEntries,
			entrykit.NewIdExtractor(), entrykit.NewHashShardResolver(numShards), strategy)
		if err != nil {
			return nil, fmt.Errorf("appwire: start %q: %w", et.Name, err)
		}
		log.Infow("hosting type", "type", et.Name, "endpoint", ref)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Node{Guardian: guardian, Server: server, Log: log, journal: journal, membership: membership}, nil
}

// Shutdown stops the HTTP server within timeout and releases the journal and
// membership handles, in that order — the teacher's cmd/node shutdown shape
// (bounded Shutdown, then release collaborators) generalized to this
// process's extra collaborators.
func (n *Node) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := n.Server.Shutdown(ctx); err != nil {
		n.Log.Errorw("http server shutdown error", "err", err)
	}
	if err := n.membership.Close(); err != nil {
		n.Log.Errorw("membership close error", "err", err)
	}
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			n.Log.Errorw("journal close error", "err", err)
		}
	}
}

func entryProps(et EntryType) (registry.EntryProps, error) {
	switch et.Kind {
	case "counter":
		return registry.EntryProps{Factory: entrykit.NewCounterFactory()}, nil
	case "kv":
		return registry.EntryProps{Factory: entrykit.NewKVFactory(func() storage.Store { return storage.NewMemoryStore() })}, nil
	case "proxy":
		return registry.EntryProps{Proxy: true}, nil
	default:
		return registry.EntryProps{}, fmt.Errorf("unknown entry kind %q", et.Kind)
	}
}

// openJournal returns a durable bbolt-backed Journal when cfg.JournalPath is
// set, or an in-memory one for single-process development (never for a real
// cluster — see persistence.InMemoryJournal's own doc comment).
func openJournal(cfg config.Config) (interface {
	persistence.Journal
	closer
}, error) {
	if cfg.JournalPath == "" {
		return noCloseJournal{persistence.NewInMemoryJournal()}, nil
	}
	return persistence.OpenBoltJournal(cfg.JournalPath)
}

// noCloseJournal adapts InMemoryJournal (which owns no OS resources) to the
// Close-able interface openJournal's callers expect uniformly.
type noCloseJournal struct{ *persistence.InMemoryJournal }

func (noCloseJournal) Close() error { return nil }

// joinMembership starts a gossip-backed Provider on the host/port cfg.ListenAddr
// names, gossiping one port above the HTTP listener — memberlist owns that
// port entirely and never serves application traffic on it.
func joinMembership(cfg config.Config, nodeName string) (clustermembership.Provider, error) {
	host, portStr, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("appwire: parse listen-addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("appwire: parse listen-addr port: %w", err)
	}
	if host == "" {
		host = "0.0.0.0"
	}

	return clustermembership.NewGossipProvider(clustermembership.GossipConfig{
		Name:          nodeName,
		BindAddr:      host,
		BindPort:      port + 1,
		AdvertiseAddr: cfg.AdvertiseAddr,
		Role:          cfg.Role,
		Seeds:         cfg.Seeds,
	})
}
