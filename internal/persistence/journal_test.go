package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/persistence"
)

func TestInMemoryJournalPersistAndReplay(t *testing.T) {
	j := persistence.NewInMemoryJournal()
	ctx := context.Background()

	seq1, err := j.Persist(ctx, "p1", []byte("a"))
	require.NoError(t, err)
	seq2, err := j.Persist(ctx, "p1", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)

	var got []string
	err = j.Replay(ctx, "p1", 0, func(seq uint64, data []byte) error {
		got = append(got, string(data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestInMemoryJournalReplayAfterSeq(t *testing.T) {
	j := persistence.NewInMemoryJournal()
	ctx := context.Background()

	_, _ = j.Persist(ctx, "p1", []byte("a"))
	_, _ = j.Persist(ctx, "p1", []byte("b"))
	_, _ = j.Persist(ctx, "p1", []byte("c"))

	var got []string
	err := j.Replay(ctx, "p1", 1, func(seq uint64, data []byte) error {
		got = append(got, string(data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestInMemoryJournalSnapshotPrunesOlderEvents(t *testing.T) {
	j := persistence.NewInMemoryJournal()
	ctx := context.Background()

	_, _ = j.Persist(ctx, "p1", []byte("a"))
	seq2, _ := j.Persist(ctx, "p1", []byte("b"))
	_, _ = j.Persist(ctx, "p1", []byte("c"))

	require.NoError(t, j.SaveSnapshot(ctx, "p1", seq2, []byte("snap-at-2")))

	offer, ok, err := j.LastSnapshot(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seq2, offer.Seq)
	assert.Equal(t, "snap-at-2", string(offer.Data))

	var got []string
	err = j.Replay(ctx, "p1", 0, func(seq uint64, data []byte) error {
		got = append(got, string(data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got)
}

func TestInMemoryJournalNoSnapshotYet(t *testing.T) {
	j := persistence.NewInMemoryJournal()
	_, ok, err := j.LastSnapshot(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryJournalIsolatesPersistenceIDs(t *testing.T) {
	j := persistence.NewInMemoryJournal()
	ctx := context.Background()

	_, _ = j.Persist(ctx, "a", []byte("x"))
	_, _ = j.Persist(ctx, "b", []byte("y"))

	var gotA []string
	_ = j.Replay(ctx, "a", 0, func(_ uint64, data []byte) error {
		gotA = append(gotA, string(data))
		return nil
	})
	assert.Equal(t, []string{"x"}, gotA)
}
