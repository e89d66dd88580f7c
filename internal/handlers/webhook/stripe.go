package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/services/settlement"
)

const MaxBodyBytes = int64(65536)

type Stripe struct {
	refunds  settlement.Refunds
	secret   string
	unsigned bool
	log      logrus.FieldLogger
}

// NewStripe vérifie la signature de chaque événement. Sans secret, tous les
// événements sont refusés.
func NewStripe(refunds settlement.Refunds, secret string, log logrus.FieldLogger) *Stripe {
	return &Stripe{refunds: refunds, secret: secret, log: log}
}

// NewUnsignedStripe accepte des événements non signés. Réservé aux tests et
// au développement local avec le CLI Stripe.
func NewUnsignedStripe(refunds settlement.Refunds, log logrus.FieldLogger) *Stripe {
	return &Stripe{refunds: refunds, unsigned: true, log: log}
}

// Handle : POST /api/webhooks/stripe
func (h *Stripe) Handle(c *gin.Context) {
	if h.secret == "" && !h.unsigned {
		h.log.Error("❌ Webhook Stripe reçu sans STRIPE_WEBHOOK_SECRET configuré")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook Stripe non configuré"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := c.GetRawData()
	if err != nil {
		h.log.WithError(err).Warn("❌ Lecture payload échouée")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	var event stripe.Event
	if h.unsigned {
		if err := json.Unmarshal(payload, &event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
			return
		}
	} else {
		event, err = webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
		if err != nil {
			h.log.WithError(err).Warn("❌ Signature Stripe invalide")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature invalide"})
			return
		}
	}

	h.log.WithField("type", event.Type).Info("📥 Événement Stripe reçu")
	err = settlement.HandleStripeEvent(c.Request.Context(), h.refunds, event, h.log)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
		// Stripe rejouerait indéfiniment un événement que l'on ne peut pas appliquer.
		h.log.WithError(err).Warn("⚠️ Événement Stripe non applicable")
		c.Status(http.StatusOK)
	default:
		h.log.WithError(err).Error("❌ Traitement du webhook Stripe échoué")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
	}
}
