package persistence

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNoSnapshot names the "no snapshot saved yet" condition. Neither Journal
// implementation here returns it: their LastSnapshot reports that case as
// ok=false with a nil error.
var ErrNoSnapshot = errors.New("persistence: no snapshot available")

// SnapshotOffer is what a Journal hands back on recovery: the most recent
// snapshot for a persistence id, tagged with the sequence number it was
// taken at so replay can resume from exactly afterSeq+1.
type SnapshotOffer struct {
	Seq  uint64
	Data []byte
}

// Journal is the append-only event log collaborator from spec.md §6. Event
// payloads are caller-encoded ([]byte — typically JSON, matching the rest
// of this module's wire format); Journal itself is opaque to their
// contents.
//
// Persist is synchronous and is expected to be fast (both implementations
// here are local-disk/in-memory); callers that preserve single-threaded-unit
// semantics (spec.md §5) call it directly from their receive loop rather
// than blocking indefinitely on it. What happens after a failure is
// caller-specific: internal/shard.Shard.persist self-sends a failure
// message and retries with backoff, since a failure there is scoped to one
// entry, while internal/coordinator.Coordinator.persist self-sends a fatal
// message and stops, since its persistence covers the whole authoritative
// shard map and a restart-and-replay is the only safe recovery.
type Journal interface {
	// Persist appends data for persistenceID and returns its assigned
	// sequence number (1-based, monotonically increasing per persistenceID).
	Persist(ctx context.Context, persistenceID string, data []byte) (seq uint64, err error)

	// Replay streams every event after afterSeq (0 meaning "from the
	// start") to fn in sequence order, stopping at the first error fn
	// returns (and returning it).
	Replay(ctx context.Context, persistenceID string, afterSeq uint64, fn func(seq uint64, data []byte) error) error

	// LastSnapshot returns the most recently saved snapshot for
	// persistenceID. ok is false (with a nil error) if none has been saved
	// yet.
	LastSnapshot(ctx context.Context, persistenceID string) (offer SnapshotOffer, ok bool, err error)

	// SaveSnapshot records data as the snapshot as of seq. Implementations
	// may use this as a cue to prune events at or before seq, matching the
	// SnapshotSelectionCriteria-style retention spec.md §6 describes.
	SaveSnapshot(ctx context.Context, persistenceID string, seq uint64, data []byte) error
}

// CoordinatorPersistenceID returns the persistence id the Coordinator for
// typeName recovers its state from, independent of which node currently
// hosts it (spec.md §6: "its canonical singleton path without address").
// Every typeName's coordinator needs its own id even when sharing one
// Journal, or their event logs would interleave into a single
// unreplayable stream.
func CoordinatorPersistenceID(typeName string) string {
	return "/sharding/" + typeName + "Coordinator"
}

// ShardPersistenceID returns the persistence id a Shard of typeName/shardId
// recovers its remembered entry set under (spec.md §6).
func ShardPersistenceID(typeName, shardID string) string {
	return "/sharding/" + typeName + "Shard/" + shardID
}

// memRecord is one in-memory journal entry.
type memRecord struct {
	seq  uint64
	data []byte
}

// memLog is a single persistence id's records plus its last snapshot.
type memLog struct {
	records  []memRecord
	snapshot *SnapshotOffer
	nextSeq  uint64
}

// InMemoryJournal is a Journal implementation backed by process memory. It
// is the default for tests and for shard types that don't set
// rememberEntries, and is what the Coordinator itself falls back to when no
// durable journal is configured (acceptable only for single-process
// development, never for a real cluster).
type InMemoryJournal struct {
	mu   sync.Mutex
	logs map[string]*memLog
}

// NewInMemoryJournal returns an empty in-memory journal.
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{logs: make(map[string]*memLog)}
}

func (j *InMemoryJournal) log(persistenceID string) *memLog {
	l, ok := j.logs[persistenceID]
	if !ok {
		l = &memLog{}
		j.logs[persistenceID] = l
	}
	return l
}

// Persist implements Journal.
func (j *InMemoryJournal) Persist(_ context.Context, persistenceID string, data []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	l := j.log(persistenceID)
	l.nextSeq++
	cp := append([]byte(nil), data...)
	l.records = append(l.records, memRecord{seq: l.nextSeq, data: cp})
	return l.nextSeq, nil
}

// Replay implements Journal.
func (j *InMemoryJournal) Replay(_ context.Context, persistenceID string, afterSeq uint64, fn func(seq uint64, data []byte) error) error {
	j.mu.Lock()
	l, ok := j.logs[persistenceID]
	var records []memRecord
	if ok {
		records = append(records, l.records...)
	}
	j.mu.Unlock()

	sort.Slice(records, func(i, k int) bool { return records[i].seq < records[k].seq })
	for _, r := range records {
		if r.seq <= afterSeq {
			continue
		}
		if err := fn(r.seq, r.data); err != nil {
			return err
		}
	}
	return nil
}

// LastSnapshot implements Journal.
func (j *InMemoryJournal) LastSnapshot(_ context.Context, persistenceID string) (SnapshotOffer, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	l, ok := j.logs[persistenceID]
	if !ok || l.snapshot == nil {
		return SnapshotOffer{}, false, nil
	}
	return *l.snapshot, true, nil
}

// SaveSnapshot implements Journal.
func (j *InMemoryJournal) SaveSnapshot(_ context.Context, persistenceID string, seq uint64, data []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	l := j.log(persistenceID)
	cp := append([]byte(nil), data...)
	l.snapshot = &SnapshotOffer{Seq: seq, Data: cp}

	// Retain only events after the snapshot, matching a real
	// SnapshotSelectionCriteria-based prune.
	kept := l.records[:0:0]
	for _, r := range l.records {
		if r.seq > seq {
			kept = append(kept, r)
		}
	}
	l.records = kept
	return nil
}
