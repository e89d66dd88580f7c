package surge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/logger"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/store"
)

var operator = models.Actor{ID: "partner-1", Name: "Salle Pleyel", Role: "partner"}

func newTestService(t *testing.T) (*Service, *audit.Trail) {
	t.Helper()
	docs := store.NewMemory()
	trail := audit.NewTrail(docs, logger.Discard())
	return NewService(docs, trail, logger.Discard()), trail
}

func TestGetUnknownEventIsNormal(t *testing.T) {
	svc, _ := newTestService(t)
	st, err := svc.Get(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Equal(t, models.SurgeNormal, st.Status)
	require.Nil(t, st.Reason)
	require.Zero(t, st.Stats.Waiting)
}

func TestToggleThenAdmitScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	st, changed, err := svc.Toggle(ctx, "evt-1", true, "queue_depth", models.TriggerManual, operator)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.SurgeActive, st.Status)
	require.Equal(t, "queue_depth", *st.Reason)

	_, err = svc.Join(ctx, "evt-1", 30)
	require.NoError(t, err)

	st, moved, err := svc.Admit(ctx, "evt-1", 50, operator)
	require.NoError(t, err)
	require.Equal(t, int64(30), moved)
	require.Equal(t, int64(0), st.Stats.Waiting)
	require.Equal(t, int64(30), st.Stats.Admitted)
}

func TestAdmitRequiresSurge(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Admit(context.Background(), "evt-1", 10, operator)
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAdmitRejectsNonPositiveCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Toggle(ctx, "evt-1", true, "", models.TriggerManual, operator)
	require.NoError(t, err)

	for _, n := range []int64{0, -5} {
		_, _, err := svc.Admit(ctx, "evt-1", n, operator)
		require.ErrorIs(t, err, apperr.ErrValidation)
	}
}

func TestAdmissionNeverExceedsWaitingPool(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Toggle(ctx, "evt-1", true, "", models.TriggerManual, operator)
	require.NoError(t, err)
	_, err = svc.Join(ctx, "evt-1", 7)
	require.NoError(t, err)

	remaining := int64(7)
	for _, count := range []int64{3, 1, 10, 4} {
		st, moved, err := svc.Admit(ctx, "evt-1", count, operator)
		require.NoError(t, err)
		require.Equal(t, min(count, remaining), moved)
		remaining -= moved
		require.Equal(t, remaining, st.Stats.Waiting)
		require.GreaterOrEqual(t, st.Stats.Waiting, int64(0))
	}
}

func TestConcurrentAdmitsDoNotDoubleAdmit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Toggle(ctx, "evt-1", true, "queue_depth", models.TriggerManual, operator)
	require.NoError(t, err)
	_, err = svc.Join(ctx, "evt-1", 100)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, moved, err := svc.Admit(ctx, "evt-1", 7, operator)
			assert.NoError(t, err)
			mu.Lock()
			total += moved
			mu.Unlock()
		}()
	}
	wg.Wait()

	st, err := svc.Get(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), total)
	require.Equal(t, int64(100), st.Stats.Admitted)
	require.Equal(t, int64(0), st.Stats.Waiting)
}

func TestToggleIsIdempotent(t *testing.T) {
	svc, trail := newTestService(t)
	ctx := context.Background()

	_, changed, err := svc.Toggle(ctx, "evt-1", true, "queue_depth", models.TriggerManual, operator)
	require.NoError(t, err)
	require.True(t, changed)
	_, err = svc.Join(ctx, "evt-1", 4)
	require.NoError(t, err)

	st, changed, err := svc.Toggle(ctx, "evt-1", true, "payment_latency", models.TriggerManual, operator)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, models.SurgeActive, st.Status)
	require.Equal(t, "queue_depth", *st.Reason)
	require.Equal(t, int64(4), st.Stats.Waiting)
	require.Zero(t, st.Analytics.ConversionStats.Admitted)

	entries, err := trail.List(ctx, audit.Filter{Action: audit.ActionSurgeToggle})
	require.NoError(t, err)
	require.Len(t, entries, 1, "le second basculement ne laisse aucune trace")
}

func TestToggleBackToNormalClearsReason(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Toggle(ctx, "evt-1", true, "queue_depth", models.TriggerManual, operator)
	require.NoError(t, err)

	st, changed, err := svc.Toggle(ctx, "evt-1", false, "", models.TriggerManual, operator)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.SurgeNormal, st.Status)
	require.Nil(t, st.Reason)
}

func TestToggleReasonRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Toggle(ctx, "evt-1", true, "", models.TriggerSystem, models.SystemActor)
	require.ErrorIs(t, err, apperr.ErrValidation, "le système doit motiver")

	_, _, err = svc.Toggle(ctx, "evt-1", true, "Queue Depth!", models.TriggerManual, operator)
	require.ErrorIs(t, err, apperr.ErrValidation)

	st, _, err := svc.Toggle(ctx, "evt-1", true, "", models.TriggerManual, operator)
	require.NoError(t, err, "un opérateur peut déclencher sans motif")
	require.Nil(t, st.Reason)
}

func TestFunnelCounters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordFunnelEvent(ctx, "evt-1", models.FunnelConsumed)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	for _, k := range []models.FunnelKind{
		models.FunnelAdmitted, models.FunnelAdmitted, models.FunnelConsumed,
		models.FunnelAbandonedPreReserve, models.FunnelPaymentFailed, models.FunnelConsumed,
	} {
		_, err := svc.RecordFunnelEvent(ctx, "evt-1", k)
		require.NoError(t, err)
	}

	st, err := svc.RecordFunnelEvent(ctx, "evt-1", models.FunnelAdmitted)
	require.NoError(t, err)
	cs := st.Analytics.ConversionStats
	require.Equal(t, int64(3), cs.Admitted)
	require.Equal(t, int64(2), cs.Consumed)
	require.Equal(t, int64(1), cs.AbandonedPreReserve)
	require.Equal(t, int64(1), cs.PaymentFailed)
	require.LessOrEqual(t, cs.Consumed, cs.Admitted)

	_, err = svc.RecordFunnelEvent(ctx, "evt-1", "teleported")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestJoinOnlyDuringSurge(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Join(context.Background(), "evt-1", 1)
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDisplayReason(t *testing.T) {
	r := "payment_latency_spike"
	require.Equal(t, "payment latency spike", DisplayReason(&r))
	require.Equal(t, "", DisplayReason(nil))
}

func TestMonitorTriggersAndReleases(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := NewMonitor(svc, Thresholds{QueueDepth: 100, PaymentLatency: 2 * time.Second}, logger.Discard())

	st, err := m.Observe(ctx, "evt-1", Sample{QueueDepth: 20, PaymentLatencyMs: 2500})
	require.NoError(t, err)
	require.Equal(t, models.SurgeActive, st.Status)
	require.Equal(t, models.TriggerSystem, st.Trigger)
	require.Equal(t, ReasonPaymentLatency, *st.Reason)

	st, err = m.Observe(ctx, "evt-1", Sample{QueueDepth: 90, PaymentLatencyMs: 100})
	require.NoError(t, err)
	require.Equal(t, models.SurgeActive, st.Status, "90 est au-dessus de 80 % du seuil")

	st, err = m.Observe(ctx, "evt-1", Sample{QueueDepth: 10, PaymentLatencyMs: 100})
	require.NoError(t, err)
	require.Equal(t, models.SurgeNormal, st.Status)
}

func TestMonitorNeverReleasesManualSurge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := NewMonitor(svc, Thresholds{QueueDepth: 100}, logger.Discard())

	_, _, err := svc.Toggle(ctx, "evt-1", true, "", models.TriggerManual, operator)
	require.NoError(t, err)

	st, err := m.Observe(ctx, "evt-1", Sample{})
	require.NoError(t, err)
	require.Equal(t, models.SurgeActive, st.Status)
	require.Equal(t, models.TriggerManual, st.Trigger)

	st, err = m.Observe(ctx, "evt-1", Sample{QueueDepth: 500})
	require.NoError(t, err)
	require.Equal(t, models.TriggerManual, st.Trigger, "pas de double déclenchement")
}

func TestOperatorTakesOverSystemSurge(t *testing.T) {
	svc, trail := newTestService(t)
	ctx := context.Background()
	m := NewMonitor(svc, Thresholds{QueueDepth: 100}, logger.Discard())

	st, err := m.Observe(ctx, "evt-1", Sample{QueueDepth: 500})
	require.NoError(t, err)
	require.Equal(t, models.TriggerSystem, st.Trigger)

	st, changed, err := svc.Toggle(ctx, "evt-1", true, "", models.TriggerManual, operator)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.TriggerManual, st.Trigger)
	require.Equal(t, ReasonQueueDepth, *st.Reason, "le motif système est conservé")

	st, err = m.Observe(ctx, "evt-1", Sample{QueueDepth: 1})
	require.NoError(t, err)
	require.Equal(t, models.SurgeActive, st.Status)

	_, changed, err = svc.Toggle(ctx, "evt-1", true, "", models.TriggerManual, operator)
	require.NoError(t, err)
	require.False(t, changed)

	entries, err := trail.List(ctx, audit.Filter{UserID: operator.ID, Action: audit.ActionSurgeToggle})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
