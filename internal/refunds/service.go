package refunds

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/metrics"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/validation"
)

// Enqueuer met une demande approuvée en file de règlement.
type Enqueuer interface {
	Enqueue(ctx context.Context, refundID string) error
}

// Notifier est prévenu des décisions (approbation, rejet, règlement).
type Notifier interface {
	RefundDecided(ctx context.Context, r models.RefundRequest) error
}

type Service struct {
	docs     store.Docs
	policy   Policy
	queue    Enqueuer
	trail    *audit.Trail
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(docs store.Docs, policy Policy, queue Enqueuer, trail *audit.Trail, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		docs:   docs,
		policy: policy,
		queue:  queue,
		trail:  trail,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	OrderID         string `json:"orderId" validate:"required"`
	EventID         string `json:"eventId" validate:"required"`
	CustomerID      string `json:"customerId" validate:"required"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
	Reason          string `json:"reason" validate:"required,max=1000"`
	IsPartial       bool   `json:"isPartial"`
	Flagged         bool   `json:"flagged"`
}

// Create enregistre une demande issue du flux d'annulation. Une demande
// « auto » est approuvée d'emblée et part en règlement.
func (s *Service) Create(ctx context.Context, in CreateInput, actor models.Actor) (*models.RefundRequest, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	approvalType := s.policy.Classify(in.Amount, in.IsPartial, in.Flagged)
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "EUR"
	}

	r := &models.RefundRequest{
		ID:                uuid.NewString(),
		OrderID:           in.OrderID,
		EventID:           in.EventID,
		CustomerID:        in.CustomerID,
		PaymentIntentID:   in.PaymentIntentID,
		Amount:            in.Amount,
		Currency:          currency,
		Reason:            strings.TrimSpace(in.Reason),
		IsPartial:         in.IsPartial,
		Flagged:           in.Flagged,
		ApprovalType:      approvalType,
		ApproversRequired: RequiredApprovers(approvalType),
		Approvers:         []models.Approver{},
		Status:            models.RefundPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if approvalType == models.ApprovalAuto {
		r.Status = models.RefundApproved
	}

	if err := store.CreateJSON(ctx, s.docs, store.CollectionRefunds, r.ID, r); err != nil {
		return nil, s.storeErr(err)
	}

	metrics.RefundTransitions.WithLabelValues(string(r.Status)).Inc()
	s.trail.Log(ctx, audit.Values(audit.Entry(actor, audit.ActionRefundCreate, audit.ResourceRefund, r.ID), nil, r))
	s.log.WithFields(logrus.Fields{
		"refund_id":     r.ID,
		"order_id":      r.OrderID,
		"approval_type": r.ApprovalType,
	}).Info("💰 Demande de remboursement créée")

	if r.Status == models.RefundApproved {
		s.enqueue(ctx, *r)
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.RefundRequest, error) {
	r, err := store.GetJSON[models.RefundRequest](ctx, s.docs, store.CollectionRefunds, id)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return r, nil
}

// List filtre par statut ; "all" retourne tout. Plus récentes d'abord.
func (s *Service) List(ctx context.Context, status string) ([]models.RefundRequest, error) {
	if status != "all" && !KnownStatus(models.RefundStatus(status)) {
		return nil, apperr.Validation("statut inconnu %q", status)
	}

	all, err := store.ListJSON[models.RefundRequest](ctx, s.docs, store.CollectionRefunds)
	if err != nil {
		return nil, err
	}

	out := make([]models.RefundRequest, 0, len(all))
	for _, r := range all {
		if status == "all" || string(r.Status) == status {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RecordApproval ajoute la signature de approver. Le comptage des signatures
// se fait dans la même mise à jour atomique que l'ajout : deux admins
// concurrents sont tous deux comptés, jamais au-delà du quota.
func (s *Service) RecordApproval(ctx context.Context, id string, approver models.Actor) (*models.RefundRequest, error) {
	if approver.ID == "" {
		return nil, apperr.Validation("identifiant d'approbateur manquant")
	}
	now := s.now().UTC()

	r, err := store.UpdateJSON(ctx, s.docs, store.CollectionRefunds, id, func(r *models.RefundRequest) error {
		if r.Status != models.RefundPending {
			return apperr.InvalidState("la demande est %s, seule une demande pending peut être approuvée", r.Status)
		}
		if r.HasApprover(approver.ID) {
			return apperr.DuplicateApprover("vous avez déjà approuvé cette demande")
		}
		if len(r.Approvers) >= r.ApproversRequired {
			return apperr.InvalidState("toutes les signatures sont déjà recueillies")
		}

		r.Approvers = append(r.Approvers, models.Approver{
			ApproverID:   approver.ID,
			ApproverName: approver.Name,
			Timestamp:    now,
		})
		if len(r.Approvers) >= r.ApproversRequired {
			r.Status = models.RefundApproved
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = s.storeErr(err)
		s.trail.Log(ctx, audit.Failed(audit.Entry(approver, audit.ActionRefundApprove, audit.ResourceRefund, id), err))
		return nil, err
	}

	metrics.RefundSignatures.Inc()
	s.trail.Log(ctx, audit.Values(audit.Entry(approver, audit.ActionRefundApprove, audit.ResourceRefund, id),
		nil, map[string]interface{}{"status": r.Status, "approvers": len(r.Approvers)}))

	log := s.log.WithFields(logrus.Fields{"refund_id": id, "approver_id": approver.ID})
	if r.Status != models.RefundApproved {
		log.Infof("✍️ Signature %d/%d enregistrée", len(r.Approvers), r.ApproversRequired)
		return r, nil
	}

	log.Info("✅ Remboursement approuvé")
	metrics.RefundTransitions.WithLabelValues(string(models.RefundApproved)).Inc()
	s.enqueue(ctx, *r)
	s.notify(ctx, *r)
	return r, nil
}

// RecordRejection : un seul rejet suffit quel que soit le type d'approbation.
// Les signatures déjà recueillies restent en place pour l'audit.
func (s *Service) RecordRejection(ctx context.Context, id string, approver models.Actor, reason string) (*models.RefundRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("un motif de rejet est obligatoire")
	}
	if approver.ID == "" {
		return nil, apperr.Validation("identifiant d'approbateur manquant")
	}
	now := s.now().UTC()

	r, err := store.UpdateJSON(ctx, s.docs, store.CollectionRefunds, id, func(r *models.RefundRequest) error {
		if r.Status != models.RefundPending {
			return apperr.InvalidState("la demande est %s, seule une demande pending peut être rejetée", r.Status)
		}
		r.Status = models.RefundRejected
		r.RejectedBy = approver.ID
		r.RejectionReason = reason
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = s.storeErr(err)
		s.trail.Log(ctx, audit.Failed(audit.Entry(approver, audit.ActionRefundReject, audit.ResourceRefund, id), err))
		return nil, err
	}

	entry := audit.Entry(approver, audit.ActionRefundReject, audit.ResourceRefund, id)
	entry.Reason = reason
	s.trail.Log(ctx, entry)
	metrics.RefundTransitions.WithLabelValues(string(models.RefundRejected)).Inc()
	s.log.WithFields(logrus.Fields{"refund_id": id, "approver_id": approver.ID}).Info("❌ Remboursement rejeté")
	s.notify(ctx, *r)
	return r, nil
}

// MarkProcessing fait passer une demande approuvée en cours de règlement.
func (s *Service) MarkProcessing(ctx context.Context, id string) (*models.RefundRequest, error) {
	r, err := s.transition(ctx, id, models.RefundProcessing, func(*models.RefundRequest) {})
	if err != nil {
		return nil, err
	}
	s.trail.Log(ctx, audit.Entry(models.SystemActor, audit.ActionRefundProcessing, audit.ResourceRefund, id))
	return r, nil
}

// AttachGatewayRef mémorise l'identifiant du remboursement côté passerelle.
func (s *Service) AttachGatewayRef(ctx context.Context, id, gatewayRefundID string) (*models.RefundRequest, error) {
	now := s.now().UTC()
	r, err := store.UpdateJSON(ctx, s.docs, store.CollectionRefunds, id, func(r *models.RefundRequest) error {
		if r.Status != models.RefundProcessing {
			return apperr.InvalidState("la demande est %s, aucun règlement en cours", r.Status)
		}
		r.GatewayRefundID = gatewayRefundID
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	return r, nil
}

var errAlreadySettled = errors.New("règlement déjà clôturé avec cette issue")

// Settlement décrit l'issue d'un règlement.
type Settlement struct {
	GatewayRefundID string
	Succeeded       bool
	FailureReason   string
}

// MarkSettled clôt un règlement. Une notification répétée pour la même issue
// (webhook rejoué) est sans effet.
func (s *Service) MarkSettled(ctx context.Context, id string, outcome Settlement) (*models.RefundRequest, error) {
	target := models.RefundFailed
	if outcome.Succeeded {
		target = models.RefundCompleted
	}

	now := s.now().UTC()
	r, err := store.UpdateJSON(ctx, s.docs, store.CollectionRefunds, id, func(r *models.RefundRequest) error {
		if r.Status == target {
			return errAlreadySettled
		}
		if !CanTransition(r.Status, target) {
			return apperr.InvalidState("transition %s → %s interdite", r.Status, target)
		}
		r.Status = target
		if outcome.GatewayRefundID != "" {
			r.GatewayRefundID = outcome.GatewayRefundID
		}
		r.FailureReason = outcome.FailureReason
		r.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		return s.Get(ctx, id)
	}
	if err != nil {
		return nil, s.storeErr(err)
	}
	metrics.RefundTransitions.WithLabelValues(string(target)).Inc()

	entry := audit.Entry(models.SystemActor, audit.ActionRefundSettle, audit.ResourceRefund, id)
	entry = audit.Values(entry, nil, map[string]interface{}{"status": r.Status, "gateway_refund_id": r.GatewayRefundID})
	if !outcome.Succeeded {
		entry = audit.Failed(entry, errors.New(outcome.FailureReason))
	}
	s.trail.Log(ctx, entry)

	outcomeLabel := "completed"
	if !outcome.Succeeded {
		outcomeLabel = "failed"
	}
	metrics.SettlementOutcomes.WithLabelValues(outcomeLabel).Inc()
	s.notify(ctx, *r)
	return r, nil
}

// Requeue remet manuellement en file une demande restée approved (par
// exemple après un échec de mise en file). Aucun retry automatique n'existe.
func (s *Service) Requeue(ctx context.Context, id string, actor models.Actor) (*models.RefundRequest, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RefundApproved {
		return nil, apperr.InvalidState("la demande est %s, seule une demande approved peut être remise en file", r.Status)
	}
	if s.queue == nil {
		return nil, apperr.InvalidState("aucune file de règlement configurée")
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return nil, err
	}
	s.trail.Log(ctx, audit.Entry(actor, audit.ActionRefundRequeue, audit.ResourceRefund, id))
	return r, nil
}

func (s *Service) transition(ctx context.Context, id string, to models.RefundStatus, mutate func(*models.RefundRequest)) (*models.RefundRequest, error) {
	now := s.now().UTC()
	r, err := store.UpdateJSON(ctx, s.docs, store.CollectionRefunds, id, func(r *models.RefundRequest) error {
		if !CanTransition(r.Status, to) {
			return apperr.InvalidState("transition %s → %s interdite", r.Status, to)
		}
		r.Status = to
		mutate(r)
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	metrics.RefundTransitions.WithLabelValues(string(to)).Inc()
	return r, nil
}

// enqueue ne défait jamais l'approbation : un échec est journalisé et
// tracé, la demande reste approved jusqu'à une remise en file manuelle.
func (s *Service) enqueue(ctx context.Context, r models.RefundRequest) {
	log := s.log.WithField("refund_id", r.ID)
	if s.queue == nil {
		log.Warn("⚠️ Aucune file de règlement configurée")
		return
	}
	if err := s.queue.Enqueue(ctx, r.ID); err != nil {
		log.WithError(err).Error("❌ Mise en file du règlement échouée")
		s.trail.Log(ctx, audit.Failed(audit.Entry(models.SystemActor, audit.ActionRefundEnqueueFail, audit.ResourceRefund, r.ID), err))
		return
	}
	log.Info("📤 Règlement mis en file")
}

func (s *Service) notify(ctx context.Context, r models.RefundRequest) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RefundDecided(ctx, r); err != nil {
		s.log.WithError(err).WithField("refund_id", r.ID).Warn("⚠️ Notification de décision non envoyée")
	}
}

func (s *Service) storeErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Demande de remboursement introuvable")
	case errors.Is(err, store.ErrExists):
		return apperr.Conflict("Demande de remboursement déjà existante")
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict("Demande modifiée simultanément, réessayez")
	default:
		return err
	}
}
