package redisstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/store/redisstore"
	"billetterie_back_end/internal/store/storetest"
)

func newTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisstore.New(client), mr
}

func TestRedisConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Docs {
		s, _ := newTestStore(t)
		return s
	})
}

func TestRedisIndexSkipsVanishedDocuments(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, store.CollectionRefunds, "r1", func([]byte) ([]byte, error) {
		return []byte(`{"id":"r1"}`), nil
	}))
	require.NoError(t, s.Update(ctx, store.CollectionRefunds, "r2", func([]byte) ([]byte, error) {
		return []byte(`{"id":"r2"}`), nil
	}))

	// Clé expirée ou supprimée hors application : l'index la garde encore.
	mr.Del("doc:" + store.CollectionRefunds + ":r1")

	raws, err := s.List(ctx, store.CollectionRefunds)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	require.JSONEq(t, `{"id":"r2"}`, string(raws[0]))
}
