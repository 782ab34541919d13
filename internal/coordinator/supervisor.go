package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/sharding"
)

// Supervisor spawns the Coordinator as a watched child and restarts it
// after coordinatorFailureBackoff whenever it stops (spec.md §4.7). There
// is no resume: a stopped coordinator always recovers fresh from the
// journal, since a persistence failure leaves it unknown whether the
// triggering event actually reached the log.
type Supervisor struct {
	cfg     Config
	backoff time.Duration
	sys     *actorkit.System
	mailbox *actorkit.Mailbox // supervisor's own address, for the death watch to deliver to

	mu      sync.Mutex
	current *Coordinator
}

// StartSupervisor begins supervising a Coordinator built from cfg. cfg's
// System field is set (or created, if nil) on the Supervisor and must be
// the same System the rest of the node uses, so Watch registrations line
// up with the mailboxes that actually close.
func StartSupervisor(ctx context.Context, cfg Config, coordinatorFailureBackoff time.Duration) *Supervisor {
	if cfg.System == nil {
		cfg.System = actorkit.NewSystem()
	}
	s := &Supervisor{
		cfg:     cfg,
		backoff: coordinatorFailureBackoff,
		sys:     cfg.System,
		mailbox: actorkit.NewMailbox("coordinator-supervisor", 4),
	}
	s.spawn(ctx)
	go s.watch(ctx)
	return s
}

// Ref returns the currently running coordinator's mailbox address. It
// changes across restarts; callers that hold onto it across a long idle
// period should re-fetch rather than cache it.
func (s *Supervisor) Ref() actorkit.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Ref()
}

// HandleRemote forwards to whichever Coordinator instance is currently
// running. internal/registry wires this directly to the transport mux
// instead of AttachTransport-ing a specific (and possibly since-restarted)
// Coordinator.
func (s *Supervisor) HandleRemote(from sharding.RegionRef, msg sharding.Message) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	c.HandleRemote(from, msg)
}

func (s *Supervisor) spawn(ctx context.Context) {
	c := Start(ctx, s.cfg)
	s.sys.Watch(c.Ref(), s.mailbox.Ref())
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
}

func (s *Supervisor) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.mailbox.C():
			if _, ok := env.Msg.(sharding.Terminated); !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
			if ctx.Err() != nil {
				return
			}
			s.spawn(ctx)
		}
	}
}
