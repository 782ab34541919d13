package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/sharding"
)

// workerConfig bundles one Rebalance Worker's fixed parameters (spec.md
// §4.6). A worker exists for exactly one shard's handoff and is discarded
// once it reports rebalanceDone.
type workerConfig struct {
	Shard          sharding.ShardId
	From           sharding.RegionRef
	HandOffTimeout time.Duration
	AllRegions     []sharding.RegionRef
	Send           Sender
	Parent         actorkit.Ref
	Self           sharding.RegionRef
	System         *actorkit.System
}

// rebalanceWorker drives one shard's handoff: collect a BeginHandOffAck
// from every region, then tell the owning region to HandOff, then wait for
// its ShardStopped, reporting rebalanceDone to the coordinator either way.
type rebalanceWorker struct {
	cfg     workerConfig
	mailbox *actorkit.Mailbox
	log     *zap.SugaredLogger
}

func startRebalanceWorker(cfg workerConfig) *rebalanceWorker {
	w := &rebalanceWorker{
		cfg:     cfg,
		mailbox: actorkit.NewMailbox("rebalance-worker-"+uuid.NewString(), 16),
		log:     zap.Must(zap.NewProduction()).Sugar().With("shard", cfg.Shard),
	}
	go w.run()
	return w
}

func (w *rebalanceWorker) Ref() actorkit.Ref { return w.mailbox.Ref() }

func (w *rebalanceWorker) run() {
	defer w.mailbox.Close(w.cfg.System)

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.HandOffTimeout)
	defer cancel()

	if !w.collectAcks(ctx) {
		w.done(false)
		return
	}
	if w.cfg.Send != nil {
		_ = w.cfg.Send(ctx, w.cfg.From, w.cfg.Self, sharding.KindHandOff, sharding.HandOff{Shard: w.cfg.Shard})
	}
	w.done(w.awaitStopped(ctx))
}

// collectAcks broadcasts BeginHandOff to every region and waits until each
// has acked or the timeout elapses. Sends fan out concurrently since a
// slow or unreachable region shouldn't delay telling the others.
func (w *rebalanceWorker) collectAcks(ctx context.Context) bool {
	pending := make(map[sharding.RegionRef]struct{}, len(w.cfg.AllRegions))
	for _, region := range w.cfg.AllRegions {
		pending[region] = struct{}{}
	}
	if len(pending) == 0 {
		return true
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range w.cfg.AllRegions {
		region := region
		g.Go(func() error {
			if w.cfg.Send == nil {
				return nil
			}
			return w.cfg.Send(gctx, region, w.cfg.Self, sharding.KindBeginHandOff, sharding.BeginHandOff{Shard: w.cfg.Shard})
		})
	}
	if err := g.Wait(); err != nil {
		w.log.Warnw("begin handoff send failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case env := <-w.mailbox.C():
			if ack, ok := env.Msg.(sharding.BeginHandOffAck); ok {
				delete(pending, ack.Region)
				if len(pending) == 0 {
					return true
				}
			}
		}
	}
}

func (w *rebalanceWorker) awaitStopped(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case env := <-w.mailbox.C():
			if stopped, ok := env.Msg.(sharding.ShardStopped); ok && stopped.Shard == w.cfg.Shard {
				return true
			}
		}
	}
}

func (w *rebalanceWorker) done(ok bool) {
	w.cfg.Parent.TrySend(rebalanceDone{shard: w.cfg.Shard, ok: ok}, w.mailbox.Ref())
}
