package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/logger"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/store"
)

type recordingSink struct {
	entries []models.AuditLog
	err     error
}

func (s *recordingSink) Write(_ context.Context, e models.AuditLog) error {
	s.entries = append(s.entries, e)
	return s.err
}

func TestRecordAssignsIDAndMirrors(t *testing.T) {
	sink := &recordingSink{}
	trail := NewTrail(store.NewMemory(), logger.Discard(), sink)

	admin := models.Actor{ID: "admin-1", Name: "Alice"}
	entry := Values(Entry(admin, ActionRefundApprove, ResourceRefund, "r1"), nil, map[string]string{"status": "approved"})

	got, err := trail.Record(context.Background(), entry)
	require.NoError(t, err)
	require.NotEmpty(t, got.ID)
	require.False(t, got.Timestamp.IsZero())
	require.JSONEq(t, `{"status":"approved"}`, got.NewValue)
	require.Len(t, sink.entries, 1)
	require.Equal(t, got.ID, sink.entries[0].ID)
}

func TestMirrorFailureDoesNotFailRecord(t *testing.T) {
	sink := &recordingSink{err: errors.New("elastic down")}
	trail := NewTrail(store.NewMemory(), logger.Discard(), sink)

	_, err := trail.Record(context.Background(), Entry(models.SystemActor, ActionSurgeToggle, ResourceSurge, "evt-1"))
	require.NoError(t, err)

	entries, err := trail.List(context.Background(), Filter{Resource: ResourceSurge})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestListFiltersAndOrdersNewestFirst(t *testing.T) {
	trail := NewTrail(store.NewMemory(), logger.Discard())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i, id := range []string{"r1", "r2", "r1"} {
		e := Entry(models.Actor{ID: "admin-1"}, ActionRefundApprove, ResourceRefund, id)
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if i == 1 {
			e = Failed(e, errors.New("déjà signé"))
		}
		_, err := trail.Record(ctx, e)
		require.NoError(t, err)
	}

	byResource, err := trail.List(ctx, Filter{Resource: ResourceRefund, ResourceID: "r1"})
	require.NoError(t, err)
	require.Len(t, byResource, 2)
	require.True(t, byResource[0].Timestamp.After(byResource[1].Timestamp))

	failed := false
	onlyFailed, err := trail.List(ctx, Filter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	require.Equal(t, "r2", onlyFailed[0].ResourceID)
	require.Equal(t, "déjà signé", onlyFailed[0].ErrorMsg)

	limited, err := trail.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
