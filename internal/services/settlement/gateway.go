package settlement

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/refund"

	"billetterie_back_end/internal/models"
)

// Outcome est la réponse synchrone de la passerelle.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

type Result struct {
	GatewayRefundID string
	Outcome         Outcome
	FailureReason   string
}

type Gateway interface {
	Refund(ctx context.Context, r models.RefundRequest) (Result, error)
}

// MetadataRefundID relie un remboursement Stripe à sa demande.
const MetadataRefundID = "refund_request_id"

// StripeGateway utilise la clé globale stripe.Key posée au démarrage.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

// Refund crée le remboursement Stripe. La clé d'idempotence dérivée de la
// demande empêche un second versement si le même travail est redélivré.
func (g *StripeGateway) Refund(_ context.Context, r models.RefundRequest) (Result, error) {
	if r.PaymentIntentID == "" {
		return Result{}, errors.New("aucun PaymentIntent associé à la demande")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(r.PaymentIntentID),
		Amount:        stripe.Int64(r.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata(MetadataRefundID, r.ID)
	params.AddMetadata("order_id", r.OrderID)
	params.SetIdempotencyKey("refund-request-" + r.ID)

	sr, err := refund.New(params)
	if err != nil {
		return Result{}, err
	}
	return resultFromStripe(sr), nil
}

func resultFromStripe(sr *stripe.Refund) Result {
	res := Result{GatewayRefundID: sr.ID}
	switch sr.Status {
	case stripe.RefundStatusSucceeded:
		res.Outcome = OutcomeSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		res.Outcome = OutcomeFailed
		res.FailureReason = strings.TrimSpace(string(sr.FailureReason))
		if res.FailureReason == "" {
			res.FailureReason = string(sr.Status)
		}
	default:
		res.Outcome = OutcomePending
	}
	return res
}
