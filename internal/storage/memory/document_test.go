package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/VitaminP8/commentree/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMemoryStorage_SetGet(t *testing.T) {
	store := NewDocumentMemoryStorage()
	ctx := context.Background()

	t.Run("Set then Get returns the document", func(t *testing.T) {
		err := store.Set(ctx, "thread/T1", document.Fields{"ownerId": "U1"})
		require.NoError(t, err)

		snap, err := store.Get(ctx, "thread/T1")
		require.NoError(t, err)
		assert.Equal(t, "T1", snap.ID)
		assert.Equal(t, "U1", snap.Data["ownerId"])
	})

	t.Run("Get of missing document", func(t *testing.T) {
		_, err := store.Get(ctx, "thread/missing")
		assert.ErrorIs(t, err, document.ErrNotFound)
	})

	t.Run("Snapshot is a copy", func(t *testing.T) {
		snap, err := store.Get(ctx, "thread/T1")
		require.NoError(t, err)
		snap.Data["ownerId"] = "changed"

		again, err := store.Get(ctx, "thread/T1")
		require.NoError(t, err)
		assert.Equal(t, "U1", again.Data["ownerId"])
	})
}

func TestDocumentMemoryStorage_ListOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base.Add(2 * time.Minute), base, base.Add(time.Minute), base.Add(time.Minute)}
	i := 0
	store := NewDocumentMemoryStorage().WithClock(func() time.Time {
		ts := times[i%len(times)]
		i++
		return ts
	})
	ctx := context.Background()

	var ids []string
	for n := 0; n < 4; n++ {
		id, err := store.Add(ctx, "thread/T1/comments", document.Fields{"n": n})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	docs, err := store.List(ctx, "thread/T1/comments")
	require.NoError(t, err)
	require.Len(t, docs, 4)

	// по createdAt, одинаковое время - по порядку вставки
	assert.Equal(t, ids[1], docs[0].ID)
	assert.Equal(t, ids[2], docs[1].ID)
	assert.Equal(t, ids[3], docs[2].ID)
	assert.Equal(t, ids[0], docs[3].ID)
}

func TestDocumentMemoryStorage_NestedCollections(t *testing.T) {
	store := NewDocumentMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "thread/T1/comments/C1", document.Fields{"text": "parent"}))
	require.NoError(t, store.Set(ctx, "thread/T1/comments/C1/replies/R1", document.Fields{"text": "child"}))

	t.Run("Count only sees direct members", func(t *testing.T) {
		n, err := store.Count(ctx, "thread/T1/comments")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Delete does not cascade", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "thread/T1/comments/C1"))

		_, err := store.Get(ctx, "thread/T1/comments/C1/replies/R1")
		assert.NoError(t, err)
	})

	t.Run("Update of missing document", func(t *testing.T) {
		err := store.Update(ctx, "thread/T1/comments/C1", document.Fields{"text": "x"})
		assert.ErrorIs(t, err, document.ErrNotFound)
	})
}

func TestDocumentMemoryStorage_ConcurrentArrayUnion(t *testing.T) {
	store := NewDocumentMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "thread/T1/comments/C1", document.Fields{"likes": []string{}}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Update(ctx, "thread/T1/comments/C1", document.Fields{"likes": document.ArrayUnion(fmt.Sprint("U", i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := store.Get(ctx, "thread/T1/comments/C1")
	require.NoError(t, err)
	assert.Len(t, snap.Data["likes"], 20)
}
