package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/allocation"
	"github.com/dreamware/shardkit/internal/metrics"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/sharding"
)

// internal control messages, never sent across internal/transport.
type (
	// remoteMsg wraps anything that arrived over internal/transport before
	// it reaches the coordinator's own mailbox, tagging it with the
	// RegionRef it actually came from so replies can be addressed back.
	remoteMsg struct {
		from sharding.RegionRef
		msg  sharding.Message
	}

	resendHostShard struct {
		shard  sharding.ShardId
		region sharding.RegionRef
	}

	// rebalanceDone is a Rebalance Worker's report back to the coordinator
	// (spec.md §4.6).
	rebalanceDone struct {
		shard sharding.ShardId
		ok    bool
	}

	// persistenceFailed is self-sent when a Journal.Persist call errors.
	// Whether the event actually reached the log is unknown at that point,
	// so the only safe response is to stop (spec.md §4.7) rather than
	// guess and retry — Supervisor restarts it from the log.
	persistenceFailed struct{ err error }
)

// Sender is the outbound transport capability the coordinator and its
// rebalance workers need. Production wiring passes transport.Send; tests
// substitute a recording fake.
type Sender func(ctx context.Context, target, from sharding.RegionRef, kind string, msg sharding.Message) error

// Config bundles a Coordinator's fixed parameters.
type Config struct {
	Self sharding.RegionRef
	// TypeName is only used to derive PersistenceID when PersistenceID is
	// left empty; it plays no other role in coordination.
	TypeName sharding.TypeName
	// PersistenceID is the Journal key this coordinator's state recovers
	// from. Defaults to persistence.CoordinatorPersistenceID(TypeName).
	PersistenceID string
	Strategy      allocation.Strategy
	Journal       persistence.Journal
	System        *actorkit.System
	Send          Sender

	ShardStartTimeout time.Duration
	HandOffTimeout    time.Duration
	RebalanceInterval time.Duration
	SnapshotInterval  time.Duration

	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

// Coordinator is the Shard Coordinator unit (spec.md §4.5). internal/registry
// runs it as a Supervisor's watched child; application code does not
// construct it directly.
type Coordinator struct {
	cfg     Config
	mailbox *actorkit.Mailbox
	log     *zap.SugaredLogger

	state *State

	rebalanceInProgress map[sharding.ShardId]struct{}
	hostShardTimers     map[sharding.ShardId]*time.Timer
	workers             map[sharding.ShardId]actorkit.Ref
}

// Start recovers persisted state by replaying the event log (and, if
// present, folding a snapshot first), then begins the coordinator's run
// loop. Callers that need restart-on-failure semantics use StartSupervisor
// rather than calling Start themselves.
func Start(ctx context.Context, cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.Must(zap.NewProduction()).Sugar()
	}
	if cfg.PersistenceID == "" {
		cfg.PersistenceID = persistence.CoordinatorPersistenceID(string(cfg.TypeName))
	}
	c := &Coordinator{
		cfg:                 cfg,
		mailbox:             actorkit.NewMailbox("coordinator-"+uuid.NewString(), 256),
		log:                 logger,
		state:               NewState(),
		rebalanceInProgress: make(map[sharding.ShardId]struct{}),
		hostShardTimers:     make(map[sharding.ShardId]*time.Timer),
		workers:             make(map[sharding.ShardId]actorkit.Ref),
	}
	if cfg.Journal != nil {
		c.recover(ctx)
	}
	go c.run(ctx)
	return c
}

// Ref returns the coordinator's mailbox address.
func (c *Coordinator) Ref() actorkit.Ref { return c.mailbox.Ref() }

// HandleRemote is called by the transport ServeMux handlers this
// coordinator registers (see AttachTransport) to inject a decoded inbound
// message tagged with the RegionRef it arrived from.
func (c *Coordinator) HandleRemote(from sharding.RegionRef, msg sharding.Message) {
	c.mailbox.Ref().Send(remoteMsg{from: from, msg: msg}, actorkit.Ref{})
}

// NotifyPeerTerminated tells the coordinator that a known region or proxy
// is unreachable. Neither Supervisor nor internal/registry calls it, so in
// this module only this package's tests deliver such a notice.
func (c *Coordinator) NotifyPeerTerminated(region sharding.RegionRef) {
	c.mailbox.Ref().TrySend(remoteMsg{from: region, msg: peerTerminated{}}, actorkit.Ref{})
}

// peerTerminated marks a remoteMsg as a transport.Watcher-driven
// termination notice rather than an application-level reply.
type peerTerminated struct{}

func (c *Coordinator) recover(ctx context.Context) {
	var afterSeq uint64
	if offer, ok, err := c.cfg.Journal.LastSnapshot(ctx, c.cfg.PersistenceID); err == nil && ok {
		var snap persistedState
		if jsonErr := json.Unmarshal(offer.Data, &snap); jsonErr == nil {
			snap.into(c.state)
		}
		afterSeq = offer.Seq
	}
	_ = c.cfg.Journal.Replay(ctx, c.cfg.PersistenceID, afterSeq, func(seq uint64, data []byte) error {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.state.Apply(ev)
		return nil
	})
	c.onRecoveryCompleted(ctx)
}

// onRecoveryCompleted re-sends HostShard for every already-allocated
// shard and triggers allocation over whatever is left unallocated
// (spec.md §4.5). It does not watch the known regions or proxies: the
// coordinator learns of a region's termination only through
// NotifyPeerTerminated.
func (c *Coordinator) onRecoveryCompleted(ctx context.Context) {
	for shardID, region := range c.state.Shards {
		c.sendHostShard(ctx, shardID, region)
	}
	c.allocateShardHomes(ctx)
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.mailbox.Close(c.cfg.System)

	rebalanceTicker := time.NewTicker(c.cfg.RebalanceInterval)
	defer rebalanceTicker.Stop()
	snapshotTicker := time.NewTicker(c.cfg.SnapshotInterval)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.mailbox.C():
			if failed, fatal := env.Msg.(persistenceFailed); fatal {
				c.log.Errorw("persistence failed, stopping for supervisor restart", "err", failed.err)
				return
			}
			c.handle(ctx, env)
		case <-rebalanceTicker.C:
			c.onRebalanceTick(ctx)
		case <-snapshotTicker.C:
			c.snapshot(ctx)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, env actorkit.Envelope) {
	switch msg := env.Msg.(type) {
	case remoteMsg:
		c.handleRemote(ctx, msg.from, msg.msg)
	case resendHostShard:
		c.onResendHostShard(ctx, msg)
	case sharding.Terminated:
		c.onWorkerTerminated(msg)
	case rebalanceDone:
		c.onRebalanceDone(ctx, msg)
	case sharding.GetShardHome:
		// self-send from allocateShardHomes/onRemoteTerminated: no remote
		// requester, so any reply is skipped.
		c.onGetShardHome(ctx, msg, "")
	default:
		c.log.Warnw("coordinator received unrecognized message")
	}
}

func (c *Coordinator) handleRemote(ctx context.Context, from sharding.RegionRef, msg sharding.Message) {
	switch m := msg.(type) {
	case peerTerminated:
		c.onRemoteTerminated(ctx, from)
	case sharding.Register:
		c.onRegister(ctx, m)
	case sharding.RegisterProxy:
		c.onRegisterProxy(ctx, m)
	case sharding.GetShardHome:
		c.onGetShardHome(ctx, m, from)
	case sharding.ShardStarted:
		c.onShardStarted(m)
	case sharding.BeginHandOffAck:
		c.forwardToWorker(m.Shard, m)
	case sharding.ShardStopped:
		c.forwardToWorker(m.Shard, m)
	default:
		c.log.Warnw("coordinator received unrecognized remote message", "from", from)
	}
}

func (c *Coordinator) forwardToWorker(shardID sharding.ShardId, msg sharding.Message) {
	if ref, ok := c.workers[shardID]; ok {
		ref.Send(msg, c.mailbox.Ref())
	}
}

// persist appends ev to the journal and folds it into state, reporting
// whether it succeeded. A failed append self-sends persistenceFailed,
// which run() treats as fatal on its next iteration — callers must stop
// short of any side effect (acking, replying) that assumes ev took effect.
func (c *Coordinator) persist(ctx context.Context, ev Event) bool {
	if c.cfg.Journal == nil {
		c.state.Apply(ev)
		return true
	}
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Errorw("event marshal failed", "kind", ev.Kind, "err", err)
		c.mailbox.Ref().TrySend(persistenceFailed{err: err}, actorkit.Ref{})
		return false
	}
	if _, err := c.cfg.Journal.Persist(ctx, c.cfg.PersistenceID, data); err != nil {
		c.mailbox.Ref().TrySend(persistenceFailed{err: err}, actorkit.Ref{})
		return false
	}
	c.state.Apply(ev)
	return true
}

func (c *Coordinator) onRegister(ctx context.Context, m sharding.Register) {
	if c.state.KnownRegion(m.Region) {
		c.ack(ctx, m.Region)
		return
	}
	if !c.persist(ctx, Event{Kind: ShardRegionRegistered, Region: m.Region}) {
		return
	}
	c.ack(ctx, m.Region)
	if len(c.state.RegionOrder) == 1 {
		c.allocateShardHomes(ctx)
	}
}

func (c *Coordinator) onRegisterProxy(ctx context.Context, m sharding.RegisterProxy) {
	if c.state.KnownRegion(m.Region) {
		c.ack(ctx, m.Region)
		return
	}
	if !c.persist(ctx, Event{Kind: ShardRegionProxyRegistered, Region: m.Region}) {
		return
	}
	c.ack(ctx, m.Region)
}

func (c *Coordinator) ack(ctx context.Context, region sharding.RegionRef) {
	if c.cfg.Send == nil {
		return
	}
	_ = c.cfg.Send(ctx, region, c.cfg.Self, sharding.KindRegisterAck, sharding.RegisterAck{Coordinator: c.cfg.Self})
}

func (c *Coordinator) onGetShardHome(ctx context.Context, m sharding.GetShardHome, requester sharding.RegionRef) {
	if _, rebalancing := c.rebalanceInProgress[m.Shard]; rebalancing {
		return
	}
	if region, allocated := c.state.Shards[m.Shard]; allocated {
		c.replyShardHome(ctx, requester, m.Shard, region)
		return
	}
	if len(c.state.RegionOrder) == 0 {
		return
	}
	region, err := c.cfg.Strategy.Allocate(requester, m.Shard, c.state.Allocations())
	if err != nil {
		c.log.Warnw("allocation failed", "shard", m.Shard, "err", err)
		return
	}
	if !c.persist(ctx, Event{Kind: ShardHomeAllocated, Shard: m.Shard, Region: region}) {
		return
	}
	c.cfg.Metrics.IncAllocations()
	c.cfg.Metrics.SetShardsAllocated(len(c.state.Shards))
	c.sendHostShard(ctx, m.Shard, region)
	c.replyShardHome(ctx, requester, m.Shard, region)
}

func (c *Coordinator) replyShardHome(ctx context.Context, to sharding.RegionRef, shardID sharding.ShardId, region sharding.RegionRef) {
	if to == "" || c.cfg.Send == nil {
		return
	}
	_ = c.cfg.Send(ctx, to, c.cfg.Self, sharding.KindShardHome, sharding.ShardHome{Shard: shardID, Region: region})
}

func (c *Coordinator) sendHostShard(ctx context.Context, shardID sharding.ShardId, region sharding.RegionRef) {
	if c.cfg.Send != nil {
		_ = c.cfg.Send(ctx, region, c.cfg.Self, sharding.KindHostShard, sharding.HostShard{Shard: shardID})
	}
	c.scheduleResendHostShard(shardID, region)
}

func (c *Coordinator) scheduleResendHostShard(shardID sharding.ShardId, region sharding.RegionRef) {
	if t, exists := c.hostShardTimers[shardID]; exists {
		t.Stop()
	}
	self := c.mailbox.Ref()
	c.hostShardTimers[shardID] = time.AfterFunc(c.cfg.ShardStartTimeout, func() {
		self.TrySend(resendHostShard{shard: shardID, region: region}, actorkit.Ref{})
	})
}

func (c *Coordinator) onShardStarted(m sharding.ShardStarted) {
	if t, exists := c.hostShardTimers[m.Shard]; exists {
		t.Stop()
		delete(c.hostShardTimers, m.Shard)
	}
}

func (c *Coordinator) onResendHostShard(ctx context.Context, m resendHostShard) {
	if c.state.Shards[m.shard] != m.region {
		return
	}
	c.sendHostShard(ctx, m.shard, m.region)
}

// onRemoteTerminated handles a region or proxy reported unreachable through
// NotifyPeerTerminated (spec.md §4.5's "Terminated(region)").
func (c *Coordinator) onRemoteTerminated(ctx context.Context, region sharding.RegionRef) {
	if _, isProxy := c.state.RegionProxies[region]; isProxy {
		c.persist(ctx, Event{Kind: ShardRegionProxyTerminated, Region: region})
		return
	}
	if _, isRegion := c.state.Regions[region]; !isRegion {
		return
	}
	self := c.mailbox.Ref()
	for _, shardID := range c.state.Regions[region] {
		self.TrySend(sharding.GetShardHome{Shard: shardID}, actorkit.Ref{})
	}
	if !c.persist(ctx, Event{Kind: ShardRegionTerminated, Region: region}) {
		return
	}
	c.allocateShardHomes(ctx)
}

// onWorkerTerminated handles a Rebalance Worker's mailbox closing, which
// happens only after it has already reported rebalanceDone — this is just
// bookkeeping cleanup, not a distinct transition.
func (c *Coordinator) onWorkerTerminated(t sharding.Terminated) {
	ref, ok := t.Ref.(actorkit.Ref)
	if !ok {
		return
	}
	for shardID, workerRef := range c.workers {
		if workerRef.ID() == ref.ID() {
			delete(c.workers, shardID)
			return
		}
	}
}

// allocateShardHomes self-sends GetShardHome for every unallocated shard
// (spec.md §4.5).
func (c *Coordinator) allocateShardHomes(ctx context.Context) {
	self := c.mailbox.Ref()
	for shardID := range c.state.UnallocatedShards {
		self.TrySend(sharding.GetShardHome{Shard: shardID}, actorkit.Ref{})
	}
}

func (c *Coordinator) onRebalanceTick(ctx context.Context) {
	candidates := c.cfg.Strategy.Rebalance(c.state.Allocations(), c.rebalanceInProgress)
	for _, shardID := range candidates {
		region, ok := c.state.Shards[shardID]
		if !ok {
			continue
		}
		c.rebalanceInProgress[shardID] = struct{}{}
		allRegions := append([]sharding.RegionRef(nil), c.state.RegionOrder...)
		for proxy := range c.state.RegionProxies {
			allRegions = append(allRegions, proxy)
		}
		worker := startRebalanceWorker(workerConfig{
			Shard:          shardID,
			From:           region,
			HandOffTimeout: c.cfg.HandOffTimeout,
			AllRegions:     allRegions,
			Send:           c.cfg.Send,
			Parent:         c.mailbox.Ref(),
			Self:           c.cfg.Self,
			System:         c.cfg.System,
		})
		c.workers[shardID] = worker.Ref()
		if c.cfg.System != nil {
			c.cfg.System.Watch(worker.Ref(), c.mailbox.Ref())
		}
		c.cfg.Metrics.IncHandoffStarted()
	}
}

func (c *Coordinator) onRebalanceDone(ctx context.Context, m rebalanceDone) {
	delete(c.rebalanceInProgress, m.shard)
	delete(c.workers, m.shard)
	c.cfg.Metrics.IncHandoffFinished(m.ok)
	if m.ok {
		if _, stillAllocated := c.state.Shards[m.shard]; stillAllocated {
			if !c.persist(ctx, Event{Kind: ShardHomeDeallocated, Shard: m.shard}) {
				return
			}
			c.allocateShardHomes(ctx)
		}
	}
}

func (c *Coordinator) snapshot(ctx context.Context) {
	if c.cfg.Journal == nil {
		return
	}
	data, err := json.Marshal(snapshotFrom(c.state))
	if err != nil {
		return
	}
	var seq uint64
	if offer, ok, err := c.cfg.Journal.LastSnapshot(ctx, c.cfg.PersistenceID); err == nil && ok {
		seq = offer.Seq
	}
	if err := c.cfg.Journal.Replay(ctx, c.cfg.PersistenceID, seq, func(s uint64, _ []byte) error {
		seq = s
		return nil
	}); err != nil {
		return
	}
	_ = c.cfg.Journal.SaveSnapshot(ctx, c.cfg.PersistenceID, seq, data)
}
