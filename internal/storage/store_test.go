package storage_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/storage"
)

func TestMemoryStoreGetPutDelete(t *testing.T) {
	store := storage.NewMemoryStore()

	_, err := store.Get("title")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	require.NoError(t, store.Put("title", []byte("hello")))
	value, err := store.Get("title")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)

	require.NoError(t, store.Put("title", []byte("updated")))
	value, err = store.Get("title")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), value)

	require.NoError(t, store.Delete("title"))
	_, err = store.Get("title")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	// Delete of an already-absent key is not an error.
	require.NoError(t, store.Delete("title"))
}

func TestMemoryStoreGetReturnsACopy(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("k", []byte("value")))

	got, err := store.Get("k")
	require.NoError(t, err)
	got[0] = 'X'

	again, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestMemoryStoreListAndStats(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("a", []byte("12345")))
	require.NoError(t, store.Put("b", []byte("12")))

	assert.ElementsMatch(t, []string{"a", "b"}, store.List())
	assert.Equal(t, storage.StoreStats{Keys: 2, Bytes: 7}, store.Stats())

	require.NoError(t, store.Delete("a"))
	assert.Equal(t, storage.StoreStats{Keys: 1, Bytes: 2}, store.Stats())
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := storage.NewMemoryStore()
	const goroutines = 50
	const opsPer = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPer; j++ {
				key := fmt.Sprintf("g%d-k%d", id, j)
				require.NoError(t, store.Put(key, []byte(key)))
				_, err := store.Get(key)
				require.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, goroutines*opsPer, store.Stats().Keys)
}
