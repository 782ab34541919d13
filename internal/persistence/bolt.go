package persistence

import (
	"context"
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	eventsBucket    = []byte("events")
	snapshotsBucket = []byte("snapshots")
)

// BoltJournal is a Journal implementation backed by a single go.etcd.io/bbolt
// file: one events sub-bucket per persistence id (keyed by big-endian
// sequence number) and one shared snapshots bucket (keyed by persistence
// id). bbolt's single-writer-transaction model gives Persist and
// SaveSnapshot the same all-or-nothing durability spec.md §6 asks of the
// Journal collaborator, without requiring a separate database process.
type BoltJournal struct {
	db *bolt.DB
}

// OpenBoltJournal opens (creating if necessary) a bbolt-backed journal at
// path.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("persistence: open bolt journal %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltJournal{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func eventsKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// Persist implements Journal.
func (j *BoltJournal) Persist(_ context.Context, persistenceID string, data []byte) (uint64, error) {
	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(eventsBucket)
		if err != nil {
			return err
		}
		sub, err := b.CreateBucketIfNotExists([]byte(persistenceID))
		if err != nil {
			return err
		}
		seq, err = sub.NextSequence()
		if err != nil {
			return err
		}
		return sub.Put(eventsKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("persistence: persist %q: %w", persistenceID, err)
	}
	return seq, nil
}

// Replay implements Journal.
func (j *BoltJournal) Replay(_ context.Context, persistenceID string, afterSeq uint64, fn func(seq uint64, data []byte) error) error {
	return j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		if b == nil {
			return nil
		}
		sub := b.Bucket([]byte(persistenceID))
		if sub == nil {
			return nil
		}
		c := sub.Cursor()
		start := eventsKey(afterSeq + 1)
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			seq := binary.BigEndian.Uint64(k)
			cp := append([]byte(nil), v...)
			if err := fn(seq, cp); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastSnapshot implements Journal.
func (j *BoltJournal) LastSnapshot(_ context.Context, persistenceID string) (SnapshotOffer, bool, error) {
	var offer SnapshotOffer
	found := false
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(persistenceID))
		if v == nil {
			return nil
		}
		if len(v) < 8 {
			return fmt.Errorf("corrupt snapshot record for %q", persistenceID)
		}
		found = true
		offer = SnapshotOffer{
			Seq:  binary.BigEndian.Uint64(v[:8]),
			Data: append([]byte(nil), v[8:]...),
		}
		return nil
	})
	if err != nil {
		return SnapshotOffer{}, false, err
	}
	return offer, found, nil
}

// SaveSnapshot implements Journal. It also prunes events at or before seq,
// matching the retention a real SnapshotSelectionCriteria-based store would
// apply.
func (j *BoltJournal) SaveSnapshot(_ context.Context, persistenceID string, seq uint64, data []byte) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		sb, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		if err != nil {
			return err
		}
		buf := make([]byte, 8+len(data))
		binary.BigEndian.PutUint64(buf[:8], seq)
		copy(buf[8:], data)
		if err := sb.Put([]byte(persistenceID), buf); err != nil {
			return err
		}

		eb, err := tx.CreateBucketIfNotExists(eventsBucket)
		if err != nil {
			return err
		}
		sub, err := eb.CreateBucketIfNotExists([]byte(persistenceID))
		if err != nil {
			return err
		}
		c := sub.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) > seq {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := sub.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
