// Package storetest regroupe les tests de conformité communs à tous les
// backends store.Docs.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/store"
)

type counter struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// Run exécute la suite sur un backend neuf par sous-test.
func Run(t *testing.T, open func(t *testing.T) store.Docs) {
	t.Run("GetMissing", func(t *testing.T) {
		d := open(t)
		_, err := d.Get(context.Background(), store.CollectionRefunds, "absent")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CreateThenDuplicate", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()

		require.NoError(t, store.CreateJSON(ctx, d, store.CollectionRefunds, "r1", &counter{ID: "r1"}))
		err := store.CreateJSON(ctx, d, store.CollectionRefunds, "r1", &counter{ID: "r1", Value: 9})
		require.ErrorIs(t, err, store.ErrExists)

		got, err := store.GetJSON[counter](ctx, d, store.CollectionRefunds, "r1")
		require.NoError(t, err)
		require.Equal(t, 0, got.Value, "la création refusée ne doit rien écrire")
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		d := open(t)
		_, err := store.UpdateJSON(context.Background(), d, store.CollectionSurge, "absent", func(c *counter) error {
			c.Value++
			return nil
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("MutationErrorAborts", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		require.NoError(t, store.CreateJSON(ctx, d, store.CollectionSurge, "e1", &counter{ID: "e1", Value: 1}))

		boom := errors.New("boom")
		_, err := store.UpdateJSON(ctx, d, store.CollectionSurge, "e1", func(c *counter) error {
			c.Value = 100
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.GetJSON[counter](ctx, d, store.CollectionSurge, "e1")
		require.NoError(t, err)
		require.Equal(t, 1, got.Value)
	})

	t.Run("ConcurrentUpdatesAreNotLost", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpsertJSON(ctx, d, store.CollectionSurge, "hot", func(c *counter, _ bool) error {
					c.ID = "hot"
					c.Value++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.GetJSON[counter](ctx, d, store.CollectionSurge, "hot")
		require.NoError(t, err)
		require.Equal(t, workers, got.Value)
	})

	t.Run("ListIsScopedToCollection", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		require.NoError(t, store.CreateJSON(ctx, d, store.CollectionEventCodes, "b", &counter{ID: "b"}))
		require.NoError(t, store.CreateJSON(ctx, d, store.CollectionEventCodes, "a", &counter{ID: "a"}))
		require.NoError(t, store.CreateJSON(ctx, d, store.CollectionAudit, "z", &counter{ID: "z"}))

		raws, err := d.List(ctx, store.CollectionEventCodes)
		require.NoError(t, err)
		require.Len(t, raws, 2)

		var first counter
		require.NoError(t, json.Unmarshal(raws[0], &first))
		require.Equal(t, "a", first.ID)

		empty, err := d.List(ctx, store.CollectionRefunds)
		require.NoError(t, err)
		require.Empty(t, empty)
	})
}
