package shard

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/sharding"
)

// entryEvent is the persisted domain event shape for remember-entries
// recovery: EntryStarted(id) / EntryStopped(id) from spec.md §3.
type entryEvent struct {
	Kind string          `json:"kind"`
	ID   sharding.EntryId `json:"id"`
}

const (
	entryStarted = "started"
	entryStopped = "stopped"
)

type bufferedMsg struct {
	msg    sharding.Message
	sender actorkit.Ref
}

type snapshotTick struct{}
type persistenceFailure struct{ event entryEvent }
type retryPersistence struct{ event entryEvent }
type restartEntryTick struct{ id sharding.EntryId }

// Config bundles the fixed parameters a Shard needs for its whole life.
type Config struct {
	TypeName            sharding.TypeName
	ShardID             sharding.ShardId
	RememberEntries     bool
	Factory             sharding.EntryFactory
	IdExtractor         sharding.IdExtractor
	Journal             persistence.Journal
	System              *actorkit.System
	EntryBufferSize     int
	ShardFailureBackoff time.Duration
	EntryRestartBackoff time.Duration
	Logger              *zap.SugaredLogger
}

// Shard is the per-shard supervisor from spec.md §4.2.
type Shard struct {
	cfg     Config
	mailbox *actorkit.Mailbox
	region  actorkit.Ref

	persisted   map[sharding.EntryId]struct{}
	live        map[sharding.EntryId]*entryUnit
	byRefID     map[string]sharding.EntryId
	passivating map[sharding.EntryId]struct{}
	buffers     map[sharding.EntryId][]bufferedMsg

	handingOff bool
	stopperRef actorkit.Ref

	log *zap.SugaredLogger
}

// Start recovers persisted state (if remembering) and begins the shard's
// run loop in a new goroutine, returning the Shard; its Ref is the mailbox
// address the owning Region addresses it by.
func Start(ctx context.Context, cfg Config, region actorkit.Ref) *Shard {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.Must(zap.NewProduction()).Sugar()
	}
	s := &Shard{
		cfg:         cfg,
		mailbox:     actorkit.NewMailbox("shard-"+string(cfg.ShardID), cfg.EntryBufferSize+16),
		region:      region,
		persisted:   make(map[sharding.EntryId]struct{}),
		live:        make(map[sharding.EntryId]*entryUnit),
		byRefID:     make(map[string]sharding.EntryId),
		passivating: make(map[sharding.EntryId]struct{}),
		buffers:     make(map[sharding.EntryId][]bufferedMsg),
		log:         logger,
	}
	if cfg.RememberEntries && cfg.Journal != nil {
		s.recover(ctx)
	}
	go s.run()
	return s
}

// Ref returns the shard's mailbox address.
func (s *Shard) Ref() actorkit.Ref { return s.mailbox.Ref() }

func (s *Shard) persistenceID() string {
	return persistence.ShardPersistenceID(string(s.cfg.TypeName), string(s.cfg.ShardID))
}

func (s *Shard) recover(ctx context.Context) {
	offer, ok, err := s.cfg.Journal.LastSnapshot(ctx, s.persistenceID())
	var afterSeq uint64
	if err == nil && ok {
		var snap []sharding.EntryId
		if jsonErr := json.Unmarshal(offer.Data, &snap); jsonErr == nil {
			for _, id := range snap {
				s.persisted[id] = struct{}{}
			}
		}
		afterSeq = offer.Seq
	}
	_ = s.cfg.Journal.Replay(ctx, s.persistenceID(), afterSeq, func(seq uint64, data []byte) error {
		var ev entryEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		switch ev.Kind {
		case entryStarted:
			s.persisted[ev.ID] = struct{}{}
		case entryStopped:
			delete(s.persisted, ev.ID)
		}
		return nil
	})
	for id := range s.persisted {
		s.materialize(id)
	}
}

func (s *Shard) materialize(id sharding.EntryId) {
	if s.cfg.Factory == nil {
		return
	}
	handler, err := s.cfg.Factory(id)
	if err != nil {
		s.log.Warnw("entry factory failed during recovery", "entry", id, "err", err)
		return
	}
	u := startEntry(s.cfg.System, id, handler, s.cfg.EntryBufferSize)
	s.live[id] = u
	s.byRefID[u.ref().ID()] = id
	s.cfg.System.Watch(u.ref(), s.mailbox.Ref())
}

func (s *Shard) run() {
	defer s.mailbox.Close(s.cfg.System)
	for env := range s.mailbox.C() {
		if s.handingOff {
			if s.handleWhileHandingOff(env) {
				return
			}
			continue
		}
		switch msg := env.Msg.(type) {
		case sharding.HandOff:
			if s.handOff(msg) {
				return
			}
		case sharding.Passivate:
			s.passivate(msg)
		case sharding.Terminated:
			s.entryTerminated(msg)
		case snapshotTick:
			s.snapshot()
		case persistenceFailure:
			s.onPersistenceFailure(msg.event)
		case retryPersistence:
			s.persist(msg.event, env.Sender)
		case restartEntryTick:
			s.restart(msg.id)
		default:
			s.route(env.Msg, env.Sender)
		}
	}
}

// handleWhileHandingOff is the shard's reduced behavior once a
// Handoff-Stopper has been spawned: it only reacts to that stopper's
// termination (at which point the shard itself stops) and warns away any
// duplicate HandOff it receives in the meantime. It returns true once the
// shard's run loop should exit.
func (s *Shard) handleWhileHandingOff(env actorkit.Envelope) bool {
	switch msg := env.Msg.(type) {
	case sharding.HandOff:
		s.log.Warnw("handoff already in progress, ignoring duplicate HandOff", "shard", msg.Shard)
	case sharding.Terminated:
		if ref, ok := msg.Ref.(actorkit.Ref); ok && ref.ID() == s.stopperRef.ID() {
			return true
		}
	}
	return false
}

// route implements the "route message" operation: extract (entryId,
// payload) via IdExtractor; reject empty id to dead-letters; buffer or
// deliver per spec.md §4.2.
func (s *Shard) route(msg sharding.Message, sender actorkit.Ref) {
	if s.cfg.IdExtractor == nil {
		return
	}
	id, payload, ok := s.cfg.IdExtractor(msg)
	if !ok || id == "" {
		s.log.Warnw("dropping message with empty entry id", "shard", s.cfg.ShardID)
		return
	}

	if buf, buffering := s.buffers[id]; buffering {
		s.buffers[id] = append(buf, bufferedMsg{msg: payload, sender: sender})
		return
	}

	if u, live := s.live[id]; live {
		u.ref().Send(payload, sender)
		return
	}

	if s.cfg.RememberEntries {
		s.buffers[id] = []bufferedMsg{{msg: payload, sender: sender}}
		s.persist(entryEvent{Kind: entryStarted, ID: id}, sender)
		return
	}

	s.startAndDeliver(id, payload, sender)
}

func (s *Shard) startAndDeliver(id sharding.EntryId, payload sharding.Message, sender actorkit.Ref) {
	s.materialize(id)
	if u, ok := s.live[id]; ok {
		u.ref().Send(payload, sender)
	}
}

func (s *Shard) persist(event entryEvent, sender actorkit.Ref) {
	if s.cfg.Journal == nil {
		s.afterPersist(event)
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, err = s.cfg.Journal.Persist(context.Background(), s.persistenceID(), data)
	if err != nil {
		s.mailbox.Ref().TrySend(persistenceFailure{event: event}, s.mailbox.Ref())
		return
	}
	s.afterPersist(event)
}

func (s *Shard) afterPersist(event entryEvent) {
	switch event.Kind {
	case entryStarted:
		s.persisted[event.ID] = struct{}{}
		buf := s.buffers[event.ID]
		delete(s.buffers, event.ID)
		s.materialize(event.ID)
		if u, ok := s.live[event.ID]; ok {
			for _, m := range buf {
				u.ref().Send(m.msg, m.sender)
			}
		}
	case entryStopped:
		delete(s.persisted, event.ID)
		delete(s.live, event.ID)
	}
}

func (s *Shard) onPersistenceFailure(event entryEvent) {
	if _, exists := s.buffers[event.ID]; !exists {
		s.buffers[event.ID] = nil
	}
	time.AfterFunc(s.cfg.ShardFailureBackoff, func() {
		s.mailbox.Ref().TrySend(retryPersistence{event: event}, s.mailbox.Ref())
	})
}

// passivate marks an entry passivating, diverts new messages into an
// empty buffer, and forwards the stop message to the entry.
func (s *Shard) passivate(msg sharding.Passivate) {
	u, ok := s.live[msg.Entry]
	if !ok {
		return
	}
	s.passivating[msg.Entry] = struct{}{}
	s.buffers[msg.Entry] = nil
	stop := msg.StopMessage
	if stop == nil {
		stop = stopEntry{}
	}
	u.ref().Send(stop, s.mailbox.Ref())
}

func (s *Shard) entryTerminated(t sharding.Terminated) {
	ref, ok := t.Ref.(actorkit.Ref)
	if !ok {
		return
	}
	id, known := s.byRefID[ref.ID()]
	if !known {
		return
	}
	delete(s.byRefID, ref.ID())
	delete(s.live, id)

	if buf, wasPassivating := s.passivating[id]; wasPassivating || len(s.buffers[id]) > 0 {
		_ = buf
		delete(s.passivating, id)
		if buffered := s.buffers[id]; len(buffered) > 0 {
			delete(s.buffers, id)
			s.materialize(id)
			if u, ok := s.live[id]; ok {
				for _, m := range buffered {
					u.ref().Send(m.msg, m.sender)
				}
			}
			return
		}
		if s.cfg.RememberEntries {
			s.persist(entryEvent{Kind: entryStopped, ID: id}, s.mailbox.Ref())
		}
		return
	}

	// Unexpected termination without a preceding passivate: id stays in
	// s.persisted so the scheduled restart below (and any snapshot taken
	// in the meantime) still counts it as part of the live set.
	time.AfterFunc(s.cfg.EntryRestartBackoff, func() {
		s.mailbox.Ref().TrySend(restartEntryTick{id: id}, s.mailbox.Ref())
	})
}

func (s *Shard) restart(id sharding.EntryId) {
	if _, alreadyLive := s.live[id]; alreadyLive {
		return
	}
	if _, stillRemembered := s.persisted[id]; s.cfg.RememberEntries && !stillRemembered {
		return
	}
	s.materialize(id)
}

func (s *Shard) snapshot() {
	if !s.cfg.RememberEntries || s.cfg.Journal == nil {
		return
	}
	ids := make([]sharding.EntryId, 0, len(s.persisted))
	for id := range s.persisted {
		ids = append(ids, id)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	ctx := context.Background()
	var seq uint64
	if offer, ok, err := s.cfg.Journal.LastSnapshot(ctx, s.persistenceID()); err == nil && ok {
		seq = offer.Seq
	}
	if err := s.cfg.Journal.Replay(ctx, s.persistenceID(), seq, func(n uint64, _ []byte) error {
		seq = n
		return nil
	}); err != nil {
		return
	}
	_ = s.cfg.Journal.SaveSnapshot(ctx, s.persistenceID(), seq, data)
}

// handOff implements spec.md §4.2's HandOff handling. It returns true if
// the shard's run loop should terminate immediately (empty-entries case).
func (s *Shard) handOff(msg sharding.HandOff) bool {
	if len(s.live) == 0 {
		s.region.Send(sharding.ShardStopped{Shard: msg.Shard}, s.mailbox.Ref())
		return true
	}

	entries := make([]*entryUnit, 0, len(s.live))
	for _, u := range s.live {
		entries = append(entries, u)
	}
	stopper := startHandoffStopper(s.cfg.System, msg.Shard, s.region, entries, nil)
	s.stopperRef = stopper.mailbox.Ref()
	s.cfg.System.Watch(s.stopperRef, s.mailbox.Ref())
	s.handingOff = true
	return false
}
