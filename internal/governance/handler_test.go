package governance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/cache"
	"billetterie_back_end/internal/eventcodes"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/refunds"
	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/surge"
	"billetterie_back_end/internal/validation"
)

const (
	longReason = "Revente frauduleuse de billets constatée"
	proof      = "https://evidence.billetterie.test/case/42"
)

var admin = models.Actor{ID: "admin-1", Name: "Alice", Role: "admin"}

type harness struct {
	handler *Handler
	bans    *cache.Local
	trail   *audit.Trail
	refunds *refunds.Service
	surge   *surge.Service
	codes   *eventcodes.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	docs := store.NewMemory()
	trail := audit.NewTrail(docs, log)
	bans := cache.NewLocal()
	refundSvc := refunds.NewService(docs, refunds.Policy{SingleThreshold: 2000, DualThreshold: 5000}, nopQueue{}, trail, log)
	surgeSvc := surge.NewService(docs, trail, log)
	codeSvc := eventcodes.NewService(docs, trail, log)

	return &harness{
		handler: NewHandler(bans, codeSvc, surgeSvc, refundSvc, trail, log),
		bans:    bans,
		trail:   trail,
		refunds: refundSvc,
		surge:   surgeSvc,
		codes:   codeSvc,
	}
}

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string) error { return nil }

func TestDecodeEnforcesTierRules(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"motif trop court", Envelope{Action: ActionUnbanUser, TargetID: "u", Reason: "ok"}, false},
		{"palier 1 sans preuve", Envelope{Action: ActionUnbanUser, TargetID: "u", Reason: "erreur"}, true},
		{"palier 2 motif court", Envelope{Action: ActionBanUser, TargetID: "u", Reason: "spam spam", Evidence: proof}, false},
		{"palier 2 sans preuve", Envelope{Action: ActionBanUser, TargetID: "u", Reason: longReason}, false},
		{"palier 2 preuve non http", Envelope{Action: ActionBanUser, TargetID: "u", Reason: longReason, Evidence: "ftp://x/y"}, false},
		{"palier 2 complet", Envelope{Action: ActionBanUser, TargetID: "u", Reason: longReason, Evidence: proof}, true},
		{"palier 3 sans preuve", Envelope{Action: ActionVoidRefund, TargetID: "r", Reason: longReason}, false},
		{"cible absente", Envelope{Action: ActionUnbanUser, Reason: "erreur"}, false},
		{"action inconnue", Envelope{Action: "delete_everything", TargetID: "u", Reason: longReason}, false},
		{"catégorie invalide", Envelope{Action: ActionForceSurge, TargetID: "e", Reason: longReason, Evidence: proof,
			Params: json.RawMessage(`{"category":"Queue Depth"}`)}, false},
		{"params inconnus", Envelope{Action: ActionForceSurge, TargetID: "e", Reason: longReason, Evidence: proof,
			Params: json.RawMessage(`{"colour":"red"}`)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.env)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}

func TestTierOf(t *testing.T) {
	tier, ok := TierOf(ActionVoidRefund)
	require.True(t, ok)
	assert.Equal(t, validation.Tier3, tier)

	_, ok = TierOf("nope")
	assert.False(t, ok)
}

func TestPartnerScope(t *testing.T) {
	assert.True(t, Allowed(ScopePartner, ActionRevokeEventCode))
	assert.True(t, Allowed(ScopePartner, ActionForceSurge))
	assert.False(t, Allowed(ScopePartner, ActionBanUser))
	assert.False(t, Allowed(ScopePartner, ActionVoidRefund))
	assert.True(t, Allowed(ScopeAdmin, ActionVoidRefund))

	h := newHarness(t)
	_, err := h.handler.Dispatch(context.Background(), Envelope{
		Action: ActionBanUser, TargetID: "u", Reason: longReason, Evidence: proof,
	}, admin, ScopePartner)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestBanIsIdempotentAndAudited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	env := Envelope{Action: ActionBanUser, TargetID: "user-9", Reason: longReason, Evidence: proof}

	res, err := h.handler.Dispatch(ctx, env, admin, ScopeAdmin)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Tier)

	res, err = h.handler.Dispatch(ctx, env, admin, ScopeAdmin)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	banned, _ := h.bans.IsBanned(ctx, "user-9")
	assert.True(t, banned)

	entries, err := h.trail.List(ctx, audit.Filter{ResourceID: "user-9"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, longReason, entries[0].Reason)
	assert.Equal(t, proof, entries[0].Evidence)
}

func TestCannotBanSelf(t *testing.T) {
	h := newHarness(t)
	_, err := h.handler.Dispatch(context.Background(), Envelope{
		Action: ActionBanUser, TargetID: admin.ID, Reason: longReason, Evidence: proof,
	}, admin, ScopeAdmin)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	entries, _ := h.trail.List(context.Background(), audit.Filter{ResourceID: admin.ID})
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}

func TestForceAndReleaseSurge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.handler.Dispatch(ctx, Envelope{
		Action: ActionForceSurge, TargetID: "evt-1", Reason: longReason, Evidence: proof,
		Params: json.RawMessage(`{"category":"bot_traffic"}`),
	}, admin, ScopeAdmin)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	st, err := h.surge.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.SurgeActive, st.Status)
	require.NotNil(t, st.Reason)
	assert.Equal(t, "bot_traffic", *st.Reason)

	res, err = h.handler.Dispatch(ctx, Envelope{
		Action: ActionReleaseSurge, TargetID: "evt-1", Reason: "fin de vague",
	}, admin, ScopeAdmin)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	st, _ = h.surge.Get(ctx, "evt-1")
	assert.Equal(t, models.SurgeNormal, st.Status)
}

func TestVoidRefundRejectsPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	r, err := h.refunds.Create(ctx, refunds.CreateInput{
		OrderID: "o-1", EventID: "e-1", CustomerID: "c-1", Amount: 9000, Reason: "annulation",
	}, admin)
	require.NoError(t, err)

	_, err = h.handler.Dispatch(ctx, Envelope{
		Action: ActionVoidRefund, TargetID: r.ID, Reason: longReason, Evidence: proof,
	}, admin, ScopeAdmin)
	require.NoError(t, err)

	got, err := h.refunds.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundRejected, got.Status)
	assert.Equal(t, longReason, got.RejectionReason)
}

func TestRevokeEventCodeThroughGovernance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	code, err := h.codes.Create(ctx, eventcodes.CreateInput{EventID: "evt-1"}, admin)
	require.NoError(t, err)

	env := Envelope{Action: ActionRevokeEventCode, TargetID: code.ID, Reason: "code divulgué"}
	res, err := h.handler.Dispatch(ctx, env, admin, ScopePartner)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = h.handler.Dispatch(ctx, env, admin, ScopePartner)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}
