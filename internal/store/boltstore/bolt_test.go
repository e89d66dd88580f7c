package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/store/boltstore"
	"billetterie_back_end/internal/store/storetest"
)

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Docs {
		return newTestStore(t)
	})
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := boltstore.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, store.CollectionRefunds, "r1", func([]byte) ([]byte, error) {
		return []byte(`{"id":"r1"}`), nil
	}))
	require.NoError(t, s.Close())

	s, err = boltstore.New(path)
	require.NoError(t, err)
	defer s.Close()

	raw, err := s.Get(ctx, store.CollectionRefunds, "r1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"r1"}`, string(raw))
}
