package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/allocation"
	"github.com/dreamware/shardkit/internal/clustermembership"
	"github.com/dreamware/shardkit/internal/config"
	"github.com/dreamware/shardkit/internal/coordinator"
	"github.com/dreamware/shardkit/internal/metrics"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/region"
	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/transport"
)

const watcherMaxFailures = 3 // matches the teacher's node-health default

// Config bundles the node-wide collaborators every typeName's Region and
// Coordinator share. One Guardian exists per node.
type Config struct {
	// BaseAddr is this node's externally reachable HTTP root, e.g.
	// "http://10.0.0.4:7070" — normally config.Config.AdvertiseAddr.
	BaseAddr string
	// Role is this node's own role, compared against each Start call's
	// required role to decide whether to host that typeName's coordinator.
	Role string

	System     *actorkit.System
	Membership clustermembership.Provider
	Journal    persistence.Journal
	Metrics    *metrics.Metrics
	Logger     *zap.SugaredLogger

	// HTTPMux is the node's outer router; Guardian mounts one path prefix
	// per typeName onto it rather than owning the listener itself.
	HTTPMux *http.ServeMux

	// Node carries the timing/backoff knobs every Region and Coordinator
	// this Guardian starts inherit (spec.md §5's timeouts table).
	Node config.Config
}

// EntryProps bundles what a typeName needs to host entries locally. A
// proxy-only typeName (Proxy=true) leaves Factory nil; the Region it gets
// never hosts entries and is excluded from allocation.
type EntryProps struct {
	Factory sharding.EntryFactory
	Proxy   bool
}

type hosted struct {
	ref    sharding.RegionRef
	region *region.Region
}

// coordinatorHost governs one typeName's Coordinator cluster-singleton: a
// Supervisor is running only while this node both satisfies role and is the
// oldest member holding it, per spec.md §4.8. reconcile starts and stops it
// as that answer changes. region.go's oldestCoordinatorAddr picks its
// registration target from the same Snapshot, but takes its first member
// without an IsOlderThan check.
type coordinatorHost struct {
	role string
	cfg  coordinator.Config
	mux  *transport.ServeMux

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (h *coordinatorHost) reconcile(ctx context.Context, shouldHost bool, failureBackoff time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hosting := h.cancel != nil
	if shouldHost == hosting {
		return
	}
	if !shouldHost {
		h.cancel()
		h.cancel = nil
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	sup := coordinator.StartSupervisor(childCtx, h.cfg, failureBackoff)
	sup.AttachTransport(h.mux)
	h.cancel = cancel
}

// Guardian is the per-node Registry (spec.md §4.8).
type Guardian struct {
	cfg Config
	log *zap.SugaredLogger

	mu           sync.Mutex
	byType       map[sharding.TypeName]hosted
	coordinators map[sharding.TypeName]*coordinatorHost

	governOnce sync.Once
}

// New returns a Guardian ready to Start typeNames against cfg.
func New(cfg Config) *Guardian {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.Must(zap.NewProduction()).Sugar()
	}
	return &Guardian{
		cfg:          cfg,
		log:          logger,
		byType:       make(map[sharding.TypeName]hosted),
		coordinators: make(map[sharding.TypeName]*coordinatorHost),
	}
}

// isOldestCoordinator reports whether this node is the oldest member
// satisfying role (role=="" meaning "oldest of any role"), the placement
// rule a Coordinator cluster-singleton is gated on. A member is oldest iff
// Provider.IsOlderThan never ranks another role member ahead of it, so this
// holds even if a Provider's Snapshot ordering is ever imperfect.
func (g *Guardian) isOldestCoordinator(role string) bool {
	if g.cfg.Membership == nil {
		return true
	}
	members := g.cfg.Membership.Snapshot(role)
	if len(members) == 0 {
		return false
	}
	self := g.cfg.Membership.Self()
	for _, m := range members {
		if m.Name != self.Name && g.cfg.Membership.IsOlderThan(m, self) {
			return false
		}
	}
	return true
}

// governCoordinators re-evaluates every hosted typeName's coordinatorHost
// on a timer, so a demotion or promotion follows a membership change even
// between this node's own Start calls. It runs for the Guardian's whole
// lifetime, started once by the first Start call that registers a
// coordinatorHost.
func (g *Guardian) governCoordinators(ctx context.Context) {
	interval := g.cfg.Node.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.reconcileCoordinators(ctx)
		}
	}
}

func (g *Guardian) reconcileCoordinators(ctx context.Context) {
	g.mu.Lock()
	hosts := make([]*coordinatorHost, 0, len(g.coordinators))
	for _, h := range g.coordinators {
		hosts = append(hosts, h)
	}
	g.mu.Unlock()

	for _, h := range hosts {
		h.reconcile(ctx, g.isOldestCoordinator(h.role), g.cfg.Node.CoordinatorFailureBackoff)
	}
}

// Start accepts a typeName's sharding parameters and returns its Region
// endpoint (spec.md §4.8). Calling Start again for an already-started
// typeName is a no-op that returns the existing endpoint, so application
// bring-up code can call it unconditionally without tracking state itself.
//
// A Coordinator cluster-singleton is hosted on this node only if its Role
// matches role (role == "" matches any node) AND this node is currently the
// oldest member satisfying role, per isOldestCoordinator; a background
// governor keeps re-evaluating that as membership changes, demoting or
// promoting this node's Coordinator without a restart. The local Region is
// always created regardless.
func (g *Guardian) Start(
	ctx context.Context,
	typeName sharding.TypeName,
	entryProps EntryProps,
	role string,
	rememberEntries bool,
	idExtractor sharding.IdExtractor,
	shardResolver sharding.ShardResolver,
	strategy allocation.Strategy,
) (sharding.RegionRef, error) {
	if typeName == "" {
		return "", fmt.Errorf("registry: typeName must not be empty")
	}
	if !entryProps.Proxy && entryProps.Factory == nil {
		return "", fmt.Errorf("registry: typeName %q needs an EntryFactory unless Proxy is set", typeName)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.byType[typeName]; ok {
		return h.ref, nil
	}

	regionRef := sharding.RegionRef(g.cfg.BaseAddr + "/types/" + string(typeName))
	mux := transport.NewServeMux(regionRef)

	h := hosted{ref: regionRef}

	if role == "" || role == g.cfg.Role {
		ch := &coordinatorHost{
			role: role,
			mux:  mux,
			cfg: coordinator.Config{
				Self:              regionRef,
				TypeName:          typeName,
				Strategy:          strategy,
				Journal:           g.cfg.Journal,
				System:            g.cfg.System,
				Send:              transport.Send,
				ShardStartTimeout: g.cfg.Node.ShardStartTimeout,
				HandOffTimeout:    g.cfg.Node.HandOffTimeout,
				RebalanceInterval: g.cfg.Node.RebalanceInterval,
				SnapshotInterval:  g.cfg.Node.SnapshotInterval,
				Metrics:           g.cfg.Metrics,
				Logger:            g.log.With("typeName", typeName, "role", "coordinator"),
			},
		}
		ch.reconcile(ctx, g.isOldestCoordinator(role), g.cfg.Node.CoordinatorFailureBackoff)
		g.coordinators[typeName] = ch
		g.governOnce.Do(func() { go g.governCoordinators(ctx) })
	}

	watcher := transport.NewWatcher(g.cfg.Node.RetryInterval, watcherMaxFailures)
	h.region = region.Start(ctx, region.Config{
		TypeName:        typeName,
		Self:            regionRef,
		Role:            role,
		Proxy:           entryProps.Proxy,
		ShardResolver:   shardResolver,
		IdExtractor:     idExtractor,
		EntryFactory:    entryProps.Factory,
		RememberEntries: rememberEntries,
		Journal:         g.cfg.Journal,

		System:     g.cfg.System,
		Membership: g.cfg.Membership,
		Send:       transport.Send,
		Watcher:    watcher,

		RetryInterval:       g.cfg.Node.RetryInterval,
		BufferSize:          g.cfg.Node.BufferSize,
		EntryBufferSize:     g.cfg.Node.BufferSize,
		ShardFailureBackoff: g.cfg.Node.ShardFailureBackoff,
		EntryRestartBackoff: g.cfg.Node.EntryRestartBackoff,

		Metrics: g.cfg.Metrics,
		Logger:  g.log.With("typeName", typeName, "role", "region"),
	})
	h.region.AttachTransport(mux)

	g.mountTransport(typeName, mux)

	g.byType[typeName] = h
	return regionRef, nil
}

// mountTransport wires mux's tell and health handlers onto the node's
// shared HTTPMux at the path prefix that regionRef's tellURL/healthURL
// resolve to (see internal/transport's "/sharding/tell"/"/sharding/health"
// suffixes).
func (g *Guardian) mountTransport(typeName sharding.TypeName, mux *transport.ServeMux) {
	if g.cfg.HTTPMux == nil {
		return
	}
	prefix := "/types/" + string(typeName) + "/sharding/"
	g.cfg.HTTPMux.Handle(prefix+"tell", mux)
	g.cfg.HTTPMux.HandleFunc(prefix+"health", mux.HealthHandler)
}

// Lookup returns the Region endpoint typeName was Start-ed with, if any.
func (g *Guardian) Lookup(typeName sharding.TypeName) (sharding.RegionRef, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.byType[typeName]
	return h.ref, ok
}

// Tell hands msg to typeName's local Region, the entry point application
// code on this node uses to address a sharded entry without knowing which
// node currently hosts it (spec.md §4.4's delivery algorithm decides
// local/remote/buffer from there). Returns an error only if typeName was
// never Start-ed on this Guardian.
func (g *Guardian) Tell(typeName sharding.TypeName, msg sharding.Message) error {
	g.mu.Lock()
	h, ok := g.byType[typeName]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: typeName %q not started on this node", typeName)
	}
	h.region.Tell(msg)
	return nil
}
