package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/apptest"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/models"
)

func do(t *testing.T, app *apptest.App, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	app.Engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type refundResponse struct {
	Refund struct {
		ID                string              `json:"id"`
		Status            models.RefundStatus `json:"status"`
		ApprovalType      models.ApprovalType `json:"approvalType"`
		DisplayStatus     string              `json:"displayStatus"`
		SignaturesMissing int                 `json:"signaturesMissing"`
		RejectionReason   string              `json:"rejectionReason"`
	} `json:"refund"`
}

func createRefund(t *testing.T, app *apptest.App, amount int64) string {
	t.Helper()
	w := do(t, app, http.MethodPost, "/api/admin/refunds", apptest.ServiceToken, map[string]any{
		"orderId": "order-1", "eventId": "evt-1", "customerId": "cust-1",
		"amount": amount, "reason": "Annulation client",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[refundResponse](t, w).Refund.ID
}

func TestHealthIsPublic(t *testing.T) {
	app := apptest.New(t)
	w := do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	app := apptest.New(t)

	w := do(t, app, http.MethodGet, "/api/admin/refunds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, app, http.MethodGet, "/api/admin/refunds", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPartnerCannotReachAdminConsole(t *testing.T) {
	app := apptest.New(t)
	w := do(t, app, http.MethodGet, "/api/admin/refunds", apptest.Token(t, apptest.Partner), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDualApprovalOverHTTP(t *testing.T) {
	app := apptest.New(t)
	id := createRefund(t, app, 8500)
	alice := apptest.Token(t, apptest.Alice)
	bob := apptest.Token(t, apptest.Bob)

	w := do(t, app, http.MethodPost, "/api/admin/refunds/"+id+"/approve", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[refundResponse](t, w)
	assert.Equal(t, models.RefundPending, first.Refund.Status)
	assert.Equal(t, 1, first.Refund.SignaturesMissing)

	w = do(t, app, http.MethodPost, "/api/admin/refunds/"+id+"/approve", alice, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[handlers.ErrorBody](t, w)
	assert.Equal(t, apperr.KindDuplicateApprover, body.Code)

	w = do(t, app, http.MethodPost, "/api/admin/refunds/"+id+"/approve", bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RefundApproved, decode[refundResponse](t, w).Refund.Status)
	assert.Equal(t, 1, app.Queue.Len())

	entries, err := app.Trail.List(context.Background(), audit.Filter{ResourceID: id})
	require.NoError(t, err)
	var failed int
	for _, e := range entries {
		if !e.Success {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRejectWithEmptyBody(t *testing.T) {
	app := apptest.New(t)
	id := createRefund(t, app, 3000)

	w := do(t, app, http.MethodPost, "/api/admin/refunds/"+id+"/reject", apptest.Token(t, apptest.Alice), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[refundResponse](t, w)
	assert.Equal(t, models.RefundRejected, got.Refund.Status)
	assert.Equal(t, "Rejected by administrator", got.Refund.RejectionReason)
}

func TestListDefaultsToPending(t *testing.T) {
	app := apptest.New(t)
	createRefund(t, app, 3000)
	createRefund(t, app, 500) // auto : approved d'emblée

	w := do(t, app, http.MethodGet, "/api/admin/refunds", apptest.Token(t, apptest.Alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 1, got.Count)

	w = do(t, app, http.MethodGet, "/api/admin/refunds?status=bogus", apptest.Token(t, apptest.Alice), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownRefundIs404(t *testing.T) {
	app := apptest.New(t)
	w := do(t, app, http.MethodPost, "/api/admin/refunds/nope/approve", apptest.Token(t, apptest.Alice), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperr.KindNotFound, decode[handlers.ErrorBody](t, w).Code)
}

type surgeResponse struct {
	Status  models.SurgeStatus `json:"status"`
	Stats   models.SurgeStats  `json:"stats"`
	Changed *bool              `json:"changed"`
	Moved   *int64             `json:"moved"`
}

func TestSurgeToggleAndAdmit(t *testing.T) {
	app := apptest.New(t)
	partner := apptest.Token(t, apptest.Partner)
	path := "/api/events/evt-7/surge"

	w := do(t, app, http.MethodGet, path, partner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-Poll-Interval"))
	assert.Equal(t, models.SurgeNormal, decode[surgeResponse](t, w).Status)

	w = do(t, app, http.MethodPost, path, partner, map[string]any{"action": "admit", "count": 5})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, app, http.MethodPost, path, partner, map[string]any{"action": "toggle", "enabled": true, "reason": "queue_depth"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	toggled := decode[surgeResponse](t, w)
	require.NotNil(t, toggled.Changed)
	assert.True(t, *toggled.Changed)

	w = do(t, app, http.MethodPost, path, partner, map[string]any{"action": "toggle", "enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, *decode[surgeResponse](t, w).Changed)

	w = do(t, app, http.MethodPost, path, apptest.ServiceToken, map[string]any{"action": "join", "count": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, app, http.MethodPost, path, apptest.ServiceToken, map[string]any{"action": "admit", "count": 50})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, app, http.MethodPost, path, partner, map[string]any{"action": "admit", "count": 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	admitted := decode[surgeResponse](t, w)
	assert.EqualValues(t, 30, *admitted.Moved)
	assert.Equal(t, models.SurgeStats{Waiting: 0, Admitted: 30}, admitted.Stats)

	w = do(t, app, http.MethodPost, path, partner, map[string]any{"action": "admit", "count": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, app, http.MethodPost, path, partner, map[string]any{"action": "dance"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventCodeLifecycle(t *testing.T) {
	app := apptest.New(t)
	partner := apptest.Token(t, apptest.Partner)

	w := do(t, app, http.MethodPost, "/api/event-codes", partner, map[string]any{"eventId": "evt-2", "type": "full"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	code := decode[struct {
		Code models.EventCode `json:"code"`
	}](t, w).Code

	w = do(t, app, http.MethodPost, "/api/event-codes/scan", apptest.ServiceToken, map[string]any{"eventId": "evt-2", "code": code.Code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, app, http.MethodGet, "/api/event-codes/"+code.ID+"/qr", partner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	for i, want := range []bool{true, false} {
		w = do(t, app, http.MethodDelete, "/api/event-codes?id="+code.ID, partner, nil)
		require.Equal(t, http.StatusOK, w.Code, "tentative %d", i)
		got := decode[struct {
			Changed bool `json:"changed"`
		}](t, w)
		assert.Equal(t, want, got.Changed)
	}

	w = do(t, app, http.MethodPost, "/api/event-codes/scan", apptest.ServiceToken, map[string]any{"eventId": "evt-2", "code": code.Code})
	assert.GreaterOrEqual(t, w.Code, 400)

	w = do(t, app, http.MethodDelete, "/api/event-codes", partner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGovernanceActions(t *testing.T) {
	app := apptest.New(t)
	alice := apptest.Token(t, apptest.Alice)

	ban := map[string]any{
		"action":   "ban_user",
		"targetId": "user-42",
		"reason":   "Revente frauduleuse de billets constatée",
	}
	w := do(t, app, http.MethodPost, "/api/admin/actions", alice, ban)
	require.Equal(t, http.StatusBadRequest, w.Code, "une action de palier 2 exige une preuve")

	ban["evidence"] = "https://evidence.billetterie.test/case/42"
	w = do(t, app, http.MethodPost, "/api/admin/actions", alice, ban)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	banned, err := app.Bans.IsBanned(context.Background(), "user-42")
	require.NoError(t, err)
	assert.True(t, banned)

	victim := apptest.Token(t, models.Actor{ID: "user-42", Name: "Mallory", Role: "partner"})
	w = do(t, app, http.MethodGet, "/api/event-codes?eventId=evt-1", victim, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, app, http.MethodPost, "/api/actions", apptest.Token(t, apptest.Partner), ban)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, app, http.MethodGet, "/api/admin/audit?action=governance.ban_user", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuditSearchWithoutElastic(t *testing.T) {
	app := apptest.New(t)
	w := do(t, app, http.MethodGet, "/api/admin/audit/search?q=ban", apptest.Token(t, apptest.Alice), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSurgeSamplesRestrictedToServices(t *testing.T) {
	app := apptest.New(t)
	sample := map[string]any{"queueDepth": 10, "paymentLatencyMs": 100}

	w := do(t, app, http.MethodPost, "/api/events/evt-1/surge/samples", apptest.Token(t, apptest.Partner), sample)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, app, http.MethodPost, "/api/events/evt-1/surge/samples", apptest.ServiceToken, sample)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
