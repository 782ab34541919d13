package region

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/clustermembership"
	"github.com/dreamware/shardkit/internal/metrics"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/shard"
	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/transport"
)

// Sender is the narrow transport capability Region needs: deliver msg to
// target, tagged with this Region's own address as the reply-to. Tests
// supply a fake; production wiring passes transport.Send.
type Sender func(ctx context.Context, target, from sharding.RegionRef, kind string, msg sharding.Message) error

// Config bundles everything a Region needs for one typeName on one node.
type Config struct {
	TypeName sharding.TypeName
	Self     sharding.RegionRef
	Role     string // role the Coordinator host must satisfy

	// Proxy marks a region that never hosts entries locally (spec.md §4.8);
	// EntryFactory is ignored when true.
	Proxy           bool
	ShardResolver   sharding.ShardResolver
	IdExtractor     sharding.IdExtractor
	EntryFactory    sharding.EntryFactory
	RememberEntries bool
	Journal         persistence.Journal

	System     *actorkit.System
	Membership clustermembership.Provider
	Send       Sender
	Watcher    *transport.Watcher

	RetryInterval       time.Duration
	BufferSize          int
	EntryBufferSize     int
	ShardFailureBackoff time.Duration
	EntryRestartBackoff time.Duration

	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

// Region is the Shard Region unit (spec.md §4.4).
type Region struct {
	cfg     Config
	mailbox *actorkit.Mailbox
	log     *zap.SugaredLogger

	stopOnce sync.Once
	stop     chan struct{}

	membersByAge []clustermembership.Member
	coordinator  sharding.RegionRef
	registered   bool

	// regionByShard is the routing table: who currently owns each shard
	// this Region knows anything about. An entry mapping to cfg.Self means
	// "local"; any other non-empty RegionRef means "remote, watched".
	regionByShard map[sharding.ShardId]sharding.RegionRef
	localShards   map[sharding.ShardId]*shard.Shard
	shardByRefID  map[string]sharding.ShardId
	handingOff    map[sharding.ShardId]struct{}
	shardBuffers  map[sharding.ShardId][]bufferedMsg
	bufferedCount int

	watchedRemotes map[sharding.RegionRef]struct{}
}

// Start begins the Region's run loop in a new goroutine and returns the
// handle other in-process units use to address it.
func Start(ctx context.Context, cfg Config) *Region {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.Must(zap.NewProduction()).Sugar()
	}
	r := &Region{
		cfg:            cfg,
		mailbox:        actorkit.NewMailbox("region-"+string(cfg.TypeName), cfg.BufferSize+16),
		log:            logger,
		stop:           make(chan struct{}),
		regionByShard:  make(map[sharding.ShardId]sharding.RegionRef),
		localShards:    make(map[sharding.ShardId]*shard.Shard),
		shardByRefID:   make(map[string]sharding.ShardId),
		handingOff:     make(map[sharding.ShardId]struct{}),
		shardBuffers:   make(map[sharding.ShardId][]bufferedMsg),
		watchedRemotes: make(map[sharding.RegionRef]struct{}),
	}
	if cfg.Watcher != nil {
		go cfg.Watcher.Start(ctx)
	}
	go r.run(ctx)
	return r
}

// Ref returns the Region's mailbox address for other local units.
func (r *Region) Ref() actorkit.Ref { return r.mailbox.Ref() }

// Stop terminates the run loop. Idempotent.
func (r *Region) Stop() { r.stopOnce.Do(func() { close(r.stop) }) }

// Tell delivers an application message as if it originated locally on this
// node (sender = this Region's own address).
func (r *Region) Tell(msg sharding.Message) {
	r.mailbox.Ref().Send(msg, actorkit.Ref{})
}

// HandleRemote is called by the transport ServeMux handlers this Region
// registers (see AttachTransport) to inject a decoded inbound message,
// tagged with the RegionRef it actually arrived from.
func (r *Region) HandleRemote(from sharding.RegionRef, msg sharding.Message) {
	r.mailbox.Ref().Send(remoteMsg{from: from, msg: msg}, actorkit.Ref{})
}

// AttachTransport registers one handler per protocol Kind this Region
// understands onto mux, decoding each Envelope body before handing it to
// HandleRemote.
func (r *Region) AttachTransport(mux *transport.ServeMux) {
	attachDecoders(mux, r)
}

func (r *Region) run(ctx context.Context) {
	defer r.mailbox.Close(r.cfg.System)

	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()

	events := r.cfg.Membership.Events()
	r.refreshMembersByAge()
	r.maybeRegister(ctx)

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case env := <-r.mailbox.C():
			r.handle(ctx, env)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.onMembershipEvent(ctx, ev)
		case <-ticker.C:
			r.onRetryTick(ctx)
		}
	}
}

func (r *Region) handle(ctx context.Context, env actorkit.Envelope) {
	switch msg := env.Msg.(type) {
	case remoteMsg:
		r.handleRemote(ctx, msg.from, msg.msg)
	case remoteTerminated:
		r.onRemoteTerminated(ctx, msg.ref)
	case sharding.Terminated:
		r.onLocalTerminated(ctx, msg)
	case sharding.ShardStopped:
		r.onLocalShardStopped(ctx, msg)
	default:
		r.deliverMessage(ctx, env.Msg, r.cfg.Self)
	}
}

func (r *Region) handleRemote(ctx context.Context, from sharding.RegionRef, msg sharding.Message) {
	switch m := msg.(type) {
	case sharding.RegisterAck:
		r.coordinator = from
		r.registered = true
		for shardID := range r.shardBuffers {
			r.requestShardHome(ctx, shardID)
		}
	case sharding.ShardHome:
		r.onShardHome(ctx, m)
	case sharding.HostShard:
		r.onHostShard(ctx, m)
	case sharding.BeginHandOff:
		r.onBeginHandOff(ctx, m)
	case sharding.HandOff:
		r.onHandOff(ctx, m)
	case Forwarded:
		r.onForwarded(ctx, m)
	default:
		r.log.Warnw("region received unrecognized remote message", "from", from)
	}
}

// deliverMessage is the delivery algorithm from spec.md §4.4.
func (r *Region) deliverMessage(ctx context.Context, msg sharding.Message, sender sharding.RegionRef) {
	if r.cfg.ShardResolver == nil {
		r.deadLetter("no-resolver")
		return
	}
	shardID := r.cfg.ShardResolver(msg)
	if shardID == "" {
		r.deadLetter("empty-shard")
		return
	}

	if home, known := r.regionByShard[shardID]; known {
		if home == r.cfg.Self {
			r.forwardLocal(shardID, msg)
		} else {
			r.forwardRemote(ctx, home, shardID, msg)
		}
		return
	}

	_, alreadyBuffering := r.shardBuffers[shardID]
	if !alreadyBuffering {
		r.requestShardHome(ctx, shardID)
	}
	if r.bufferedCount >= r.cfg.BufferSize {
		r.deadLetter("buffer-full")
		return
	}
	r.shardBuffers[shardID] = append(r.shardBuffers[shardID], bufferedMsg{msg: msg, sender: sender})
	r.bufferedCount++
	r.cfg.Metrics.SetBufferDepth(string(shardID), len(r.shardBuffers[shardID]))
}

func (r *Region) forwardLocal(shardID sharding.ShardId, msg sharding.Message) {
	if r.cfg.Proxy {
		r.log.Errorw("fatal protocol inconsistency", "err", sharding.NewFatalError("forwardLocal", sharding.ErrProxyOnly))
		return
	}
	s, ok := r.localShards[shardID]
	if !ok {
		s = r.ensureLocalShard(shardID)
	}
	s.Ref().Send(msg, r.mailbox.Ref())
}

func (r *Region) forwardRemote(ctx context.Context, home sharding.RegionRef, shardID sharding.ShardId, msg sharding.Message) {
	body, err := marshalMessage(msg)
	if err != nil {
		r.log.Warnw("failed to marshal forwarded message", "shard", shardID, "err", err)
		return
	}
	if err := r.cfg.Send(ctx, home, r.cfg.Self, sharding.KindForward, Forwarded{Shard: shardID, Body: body}); err != nil {
		r.log.Warnw("forward failed", "shard", shardID, "to", home, "err", err)
	}
}

func (r *Region) onForwarded(ctx context.Context, f Forwarded) {
	if home, known := r.regionByShard[f.Shard]; !known || home != r.cfg.Self {
		r.log.Warnw("received Forward for a shard this region does not own", "shard", f.Shard)
		return
	}
	r.forwardLocal(f.Shard, f.Body)
}

func (r *Region) deadLetter(reason string) {
	r.cfg.Metrics.IncDeadLetter(reason)
}

// ensureLocalShard lazily (re)creates the local Shard for shardID, e.g.
// after the shard's previous instance crashed. It registers a death watch
// so an unexpected termination reaches this Region's own mailbox.
func (r *Region) ensureLocalShard(shardID sharding.ShardId) *shard.Shard {
	s := shard.Start(context.Background(), shard.Config{
		TypeName:            r.cfg.TypeName,
		ShardID:             shardID,
		RememberEntries:     r.cfg.RememberEntries,
		Factory:             r.cfg.EntryFactory,
		IdExtractor:         r.cfg.IdExtractor,
		Journal:             r.cfg.Journal,
		System:              r.cfg.System,
		EntryBufferSize:     r.cfg.EntryBufferSize,
		ShardFailureBackoff: r.cfg.ShardFailureBackoff,
		EntryRestartBackoff: r.cfg.EntryRestartBackoff,
		Logger:              r.log,
	}, r.mailbox.Ref())
	r.localShards[shardID] = s
	r.shardByRefID[s.Ref().ID()] = shardID
	r.regionByShard[shardID] = r.cfg.Self
	if r.cfg.System != nil {
		r.cfg.System.Watch(s.Ref(), r.mailbox.Ref())
	}
	return s
}

func (r *Region) flushBuffer(ctx context.Context, shardID sharding.ShardId) {
	buffered := r.shardBuffers[shardID]
	delete(r.shardBuffers, shardID)
	r.bufferedCount -= len(buffered)
	r.cfg.Metrics.SetBufferDepth(string(shardID), 0)
	for _, bm := range buffered {
		r.deliverMessage(ctx, bm.msg, bm.sender)
	}
}

func (r *Region) requestShardHome(ctx context.Context, shardID sharding.ShardId) {
	if r.coordinator == "" {
		return
	}
	if err := r.cfg.Send(ctx, r.coordinator, r.cfg.Self, sharding.KindGetShardHome, sharding.GetShardHome{Shard: shardID}); err != nil {
		r.log.Warnw("GetShardHome send failed", "shard", shardID, "err", err)
	}
}

func (r *Region) onHostShard(ctx context.Context, m sharding.HostShard) {
	r.regionByShard[m.Shard] = r.cfg.Self
	if _, live := r.localShards[m.Shard]; !live {
		r.ensureLocalShard(m.Shard)
	}
	r.flushBuffer(ctx, m.Shard)
	if r.coordinator != "" {
		_ = r.cfg.Send(ctx, r.coordinator, r.cfg.Self, sharding.KindShardStarted, sharding.ShardStarted{Shard: m.Shard})
	}
}

func (r *Region) onShardHome(ctx context.Context, m sharding.ShardHome) {
	if prev, known := r.regionByShard[m.Shard]; known && prev == r.cfg.Self && m.Region != r.cfg.Self {
		r.log.Errorw("fatal protocol inconsistency", "err", sharding.NewFatalError("onShardHome", sharding.ErrUnknownShard), "shard", m.Shard)
		return
	}
	r.regionByShard[m.Shard] = m.Region
	if m.Region != r.cfg.Self {
		r.watchRemote(m.Region)
	}
	r.flushBuffer(ctx, m.Shard)
}

func (r *Region) onBeginHandOff(ctx context.Context, m sharding.BeginHandOff) {
	delete(r.regionByShard, m.Shard)
	if r.coordinator != "" {
		_ = r.cfg.Send(ctx, r.coordinator, r.cfg.Self, sharding.KindBeginHandOffAck, sharding.BeginHandOffAck{Shard: m.Shard, Region: r.cfg.Self})
	}
}

func (r *Region) onHandOff(ctx context.Context, m sharding.HandOff) {
	delete(r.shardBuffers, m.Shard)

	s, hosted := r.localShards[m.Shard]
	if !hosted {
		if r.coordinator != "" {
			_ = r.cfg.Send(ctx, r.coordinator, r.cfg.Self, sharding.KindShardStopped, sharding.ShardStopped{Shard: m.Shard})
		}
		return
	}
	r.handingOff[m.Shard] = struct{}{}
	s.Ref().Send(m, r.mailbox.Ref())
}

func (r *Region) onLocalShardStopped(ctx context.Context, m sharding.ShardStopped) {
	if s, ok := r.localShards[m.Shard]; ok {
		delete(r.shardByRefID, s.Ref().ID())
	}
	delete(r.localShards, m.Shard)
	delete(r.handingOff, m.Shard)
	if r.coordinator != "" {
		_ = r.cfg.Send(ctx, r.coordinator, r.cfg.Self, sharding.KindShardStopped, m)
	}
}

func (r *Region) onLocalTerminated(ctx context.Context, t sharding.Terminated) {
	ref, ok := t.Ref.(actorkit.Ref)
	if !ok {
		return
	}
	shardID, known := r.shardByRefID[ref.ID()]
	if !known {
		return
	}
	delete(r.shardByRefID, ref.ID())
	delete(r.localShards, shardID)

	if _, wasHandingOff := r.handingOff[shardID]; wasHandingOff {
		delete(r.handingOff, shardID)
		return
	}
	r.log.Errorw("fatal protocol inconsistency", "err", sharding.NewFatalError("onLocalTerminated", sharding.ErrUnknownShard), "shard", shardID)
}

func (r *Region) onRemoteTerminated(ctx context.Context, ref sharding.RegionRef) {
	if ref == r.coordinator {
		r.coordinator = ""
		r.registered = false
		r.maybeRegister(ctx)
		return
	}
	delete(r.watchedRemotes, ref)
	for shardID, home := range r.regionByShard {
		if home == ref {
			delete(r.regionByShard, shardID)
		}
	}
}

func (r *Region) watchRemote(ref sharding.RegionRef) {
	if _, already := r.watchedRemotes[ref]; already {
		return
	}
	r.watchedRemotes[ref] = struct{}{}
	if r.cfg.Watcher != nil {
		r.cfg.Watcher.Watch(ref, func(target sharding.RegionRef) {
			r.mailbox.Ref().TrySend(remoteTerminated{ref: target}, actorkit.Ref{})
		})
	}
}

func (r *Region) refreshMembersByAge() {
	if r.cfg.Membership == nil {
		return
	}
	r.membersByAge = r.cfg.Membership.Snapshot(r.cfg.Role)
}

// oldestCoordinatorAddr returns the address of this typeName's Coordinator
// on the first member of membersByAge. Members advertise their node's base
// address; internal/registry mounts each typeName's transport under that
// address's "/types/<typeName>" prefix.
func (r *Region) oldestCoordinatorAddr() (sharding.RegionRef, bool) {
	if len(r.membersByAge) == 0 {
		return "", false
	}
	return sharding.RegionRef(r.membersByAge[0].Addr + "/types/" + string(r.cfg.TypeName)), true
}

func (r *Region) onMembershipEvent(ctx context.Context, _ clustermembership.Event) {
	prevOldest, hadOldest := r.oldestCoordinatorAddr()
	r.refreshMembersByAge()
	newOldest, hasOldest := r.oldestCoordinatorAddr()

	oldestChanged := hadOldest != hasOldest || prevOldest != newOldest
	if oldestChanged {
		if r.coordinator != "" {
			delete(r.watchedRemotes, r.coordinator)
		}
		r.coordinator = ""
		r.registered = false
		r.maybeRegister(ctx)
	}
}

func (r *Region) onRetryTick(ctx context.Context) {
	if r.coordinator == "" {
		r.maybeRegister(ctx)
		return
	}
	for shardID := range r.shardBuffers {
		r.requestShardHome(ctx, shardID)
	}
}

func (r *Region) maybeRegister(ctx context.Context) {
	if r.registered {
		return
	}
	target, ok := r.oldestCoordinatorAddr()
	if !ok || r.cfg.Send == nil {
		return
	}
	kind := sharding.KindRegister
	var msg sharding.Message = sharding.Register{Region: r.cfg.Self}
	if r.cfg.Proxy {
		kind = sharding.KindRegisterProxy
		msg = sharding.RegisterProxy{Region: r.cfg.Self}
	}
	if err := r.cfg.Send(ctx, target, r.cfg.Self, kind, msg); err != nil {
		r.log.Debugw("register send failed, will retry", "target", target, "err", err)
	}
}
