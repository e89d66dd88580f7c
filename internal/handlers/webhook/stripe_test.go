package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/logger"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/refunds"
	"billetterie_back_end/internal/services/settlement"
	"billetterie_back_end/internal/store"
)

const testSecret = "whsec_test"

// processingRefund crée une demande « auto » et la place en règlement.
func processingRefund(t *testing.T) (*refunds.Service, string) {
	t.Helper()
	ctx := context.Background()
	docs := store.NewMemory()
	trail := audit.NewTrail(docs, logger.Discard())
	svc := refunds.NewService(docs, refunds.Policy{SingleThreshold: 2000, DualThreshold: 5000},
		settlement.NewMemoryQueue(4), trail, logger.Discard())

	r, err := svc.Create(ctx, refunds.CreateInput{
		OrderID: "ord-1", EventID: "evt-1", CustomerID: "cus-1", Amount: 900, Reason: "Concert annulé",
	}, models.SystemActor)
	require.NoError(t, err)
	_, err = svc.MarkProcessing(ctx, r.ID)
	require.NoError(t, err)
	return svc, r.ID
}

func refundEvent(t *testing.T, refundID string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":          "evt_1",
		"object":      "event",
		"type":        "refund.updated",
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "re_fake",
				"object":   "refund",
				"status":   "succeeded",
				"metadata": map[string]string{settlement.MetadataRefundID: refundID},
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func post(h *Stripe, payload []byte, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/webhooks/stripe", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func statusOf(t *testing.T, svc *refunds.Service, id string) models.RefundStatus {
	t.Helper()
	r, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

func TestWebhookWithoutSecretRefusesEvents(t *testing.T) {
	svc, id := processingRefund(t)

	w := post(NewStripe(svc, "", logger.Discard()), refundEvent(t, id), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.RefundProcessing, statusOf(t, svc, id))
}

func TestWebhookRejectsForgedSignature(t *testing.T) {
	svc, id := processingRefund(t)
	payload := refundEvent(t, id)
	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"})

	h := NewStripe(svc, testSecret, logger.Discard())
	assert.Equal(t, http.StatusBadRequest, post(h, payload, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(h, payload, forged.Header).Code)
	assert.Equal(t, models.RefundProcessing, statusOf(t, svc, id))
}

func TestWebhookSignedEventSettles(t *testing.T) {
	svc, id := processingRefund(t)
	payload := refundEvent(t, id)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})

	h := NewStripe(svc, testSecret, logger.Discard())
	w := post(h, payload, signed.Header)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RefundCompleted, statusOf(t, svc, id))

	w = post(h, payload, signed.Header)
	assert.Equal(t, http.StatusOK, w.Code, "un événement rejoué reste acquitté")
}

func TestUnsignedConstructorForLocalUse(t *testing.T) {
	svc, id := processingRefund(t)

	w := post(NewUnsignedStripe(svc, logger.Discard()), refundEvent(t, id), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RefundCompleted, statusOf(t, svc, id))
}
