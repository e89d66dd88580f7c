package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v83"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/refunds"
)

// Refunds est la partie du service de remboursement pilotée par le worker.
type Refunds interface {
	Get(ctx context.Context, id string) (*models.RefundRequest, error)
	MarkProcessing(ctx context.Context, id string) (*models.RefundRequest, error)
	AttachGatewayRef(ctx context.Context, id, gatewayRefundID string) (*models.RefundRequest, error)
	MarkSettled(ctx context.Context, id string, outcome refunds.Settlement) (*models.RefundRequest, error)
}

const dequeueWait = 2 * time.Second

type Worker struct {
	queue   Queue
	refunds Refunds
	gateway Gateway
	log     logrus.FieldLogger
}

func NewWorker(queue Queue, refunds Refunds, gateway Gateway, log logrus.FieldLogger) *Worker {
	return &Worker{queue: queue, refunds: refunds, gateway: gateway, log: log}
}

// Run lance n consommateurs et rend la main quand ctx est annulé.
func (w *Worker) Run(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	w.log.Info("🛑 Workers de règlement arrêtés")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		id, err := w.queue.Dequeue(ctx, dequeueWait)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.log.WithError(err).Error("❌ Lecture de la file de règlement échouée")
			select {
			case <-time.After(dequeueWait):
			case <-ctx.Done():
				return
			}
			continue
		}
		if id == "" {
			continue
		}
		if err := w.Process(ctx, id); err != nil {
			w.log.WithError(err).WithField("refund_id", id).Error("❌ Règlement interrompu")
		}
	}
}

// Process règle une demande. Une demande qui n'est plus approved (travail
// redélivré, déjà réglée) est ignorée.
func (w *Worker) Process(ctx context.Context, id string) error {
	log := w.log.WithField("refund_id", id)

	r, err := w.refunds.MarkProcessing(ctx, id)
	if errors.Is(err, apperr.ErrInvalidState) || errors.Is(err, apperr.ErrNotFound) {
		log.WithError(err).Warn("⚠️ Travail de règlement ignoré")
		return nil
	}
	if err != nil {
		return err
	}

	res, err := w.gateway.Refund(ctx, *r)
	if err != nil {
		log.WithError(err).Error("❌ Erreur passerelle de paiement")
		_, err = w.refunds.MarkSettled(ctx, id, refunds.Settlement{Succeeded: false, FailureReason: err.Error()})
		return err
	}

	switch res.Outcome {
	case OutcomeSucceeded:
		_, err = w.refunds.MarkSettled(ctx, id, refunds.Settlement{GatewayRefundID: res.GatewayRefundID, Succeeded: true})
		if err == nil {
			log.WithField("gateway_refund_id", res.GatewayRefundID).Info("✅ Remboursement réglé")
		}
	case OutcomeFailed:
		_, err = w.refunds.MarkSettled(ctx, id, refunds.Settlement{
			GatewayRefundID: res.GatewayRefundID,
			Succeeded:       false,
			FailureReason:   res.FailureReason,
		})
	default:
		_, err = w.refunds.AttachGatewayRef(ctx, id, res.GatewayRefundID)
		if err == nil {
			log.WithField("gateway_refund_id", res.GatewayRefundID).Info("⏳ Règlement en attente du webhook")
		}
	}
	return err
}

// HandleStripeEvent clôt un règlement à partir d'un webhook Stripe. Les
// événements sans rapport sont ignorés ; un webhook rejoué est sans effet.
func HandleStripeEvent(ctx context.Context, svc Refunds, event stripe.Event, log logrus.FieldLogger) error {
	switch event.Type {
	case "refund.updated", "refund.failed", "charge.refund.updated":
	default:
		log.WithField("type", event.Type).Debug("ℹ️ Événement Stripe ignoré")
		return nil
	}

	var sr stripe.Refund
	if err := json.Unmarshal(event.Data.Raw, &sr); err != nil {
		return apperr.Validation("remboursement Stripe illisible: %v", err)
	}

	id := sr.Metadata[MetadataRefundID]
	if id == "" {
		log.WithField("gateway_refund_id", sr.ID).Warn("⚠️ Remboursement Stripe sans demande associée")
		return nil
	}

	res := resultFromStripe(&sr)
	if res.Outcome == OutcomePending {
		return nil
	}

	_, err := svc.MarkSettled(ctx, id, refunds.Settlement{
		GatewayRefundID: res.GatewayRefundID,
		Succeeded:       res.Outcome == OutcomeSucceeded,
		FailureReason:   res.FailureReason,
	})
	if err != nil {
		return fmt.Errorf("clôture du règlement %s: %w", id, err)
	}
	log.WithFields(logrus.Fields{"refund_id": id, "outcome": res.Outcome}).Info("📥 Règlement clôturé par webhook")
	return nil
}
