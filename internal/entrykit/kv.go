package entrykit

import (
	"errors"

	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/storage"
)

// KVOpKind selects the operation a KVOp performs against its entry's Store.
type KVOpKind int

const (
	KVGet KVOpKind = iota
	KVPut
	KVDelete
	// KVList and KVStats ignore Field/Value and report on the whole entry
	// rather than one record inside it.
	KVList
	KVStats
)

// KVOp is the request type a KVEntry understands: Key names the entry (and
// so the shard) this operation routes to; Field/Value address a single
// record inside that entry's Store. Reply, if non-nil, receives the
// operation's result.
type KVOp struct {
	Key   sharding.EntryId
	Kind  KVOpKind
	Field string
	Value []byte
	Reply chan<- KVResult
}

// KVResult is what a KVEntry sends back on Reply. Fields besides Err are
// populated according to the KVOp's Kind: Value for KVGet, Fields for
// KVList, Stats for KVStats.
type KVResult struct {
	Value  []byte
	Fields []string
	Stats  storage.StoreStats
	Err    error
}

// EntryKey implements Keyed.
func (op KVOp) EntryKey() sharding.EntryId { return op.Key }

// KVEntry is a sharding.EntryHandler backing one entry's worth of
// key/value records with a storage.Store. Each entry owns its own Store
// instance, so Field/Value here are private to the entry they're addressed
// to; a handoff only moves the entry's id (and, if remembered, replays it
// back into existence empty), never the Store's contents.
type KVEntry struct {
	store storage.Store
}

// NewKVFactory returns a sharding.EntryFactory that gives each new entry
// its own newStore(). Pass storage.NewMemoryStore for a volatile entry,
// or any other storage.Store constructor for a durable one.
func NewKVFactory(newStore func() storage.Store) sharding.EntryFactory {
	return func(sharding.EntryId) (sharding.EntryHandler, error) {
		return &KVEntry{store: newStore()}, nil
	}
}

// Receive implements sharding.EntryHandler.
func (e *KVEntry) Receive(payload sharding.Message) error {
	op, ok := payload.(KVOp)
	if !ok {
		return nil
	}

	var res KVResult
	switch op.Kind {
	case KVGet:
		res.Value, res.Err = e.store.Get(op.Field)
	case KVPut:
		res.Err = e.store.Put(op.Field, op.Value)
	case KVDelete:
		res.Err = e.store.Delete(op.Field)
	case KVList:
		res.Fields = e.store.List()
	case KVStats:
		res.Stats = e.store.Stats()
	default:
		res.Err = errors.New("entrykit: unknown KVOp kind")
	}

	if op.Reply != nil {
		op.Reply <- res
	}
	return nil
}

// Stop implements sharding.EntryHandler. The backing Store is in-process
// and needs no explicit close; a durable storage.Store implementation that
// requires one should be closed by newStore's caller on shutdown instead,
// since KVEntry itself only sees the Store interface.
func (e *KVEntry) Stop() error { return nil }
