// Package audit tient la piste d'audit partagée par les remboursements, la
// gestion de surcharge, les codes d'accès et les actions d'administration.
//
// Le magasin de documents fait foi ; les miroirs (Scylla, Elasticsearch)
// sont alimentés en best effort.
package audit

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/store"
)

// Actions d'audit prédéfinies
const (
	ActionRefundCreate      = "refund.create"
	ActionRefundApprove     = "refund.approve"
	ActionRefundReject      = "refund.reject"
	ActionRefundProcessing  = "refund.processing"
	ActionRefundSettle      = "refund.settle"
	ActionRefundEnqueueFail = "refund.enqueue_failed"
	ActionRefundRequeue     = "refund.requeue"

	ActionSurgeToggle = "surge.toggle"
	ActionSurgeAdmit  = "surge.admit"

	ActionCodeCreate = "event_code.create"
	ActionCodeRevoke = "event_code.revoke"

	ActionGovernance = "governance"

	ActionEvidenceUpload = "evidence.upload"
)

// Resources d'audit
const (
	ResourceRefund    = "refund"
	ResourceSurge     = "surge"
	ResourceEventCode = "event_code"
	ResourceUser      = "user"
	ResourceEvidence  = "evidence"
)

// Sink reçoit une copie de chaque entrée committée.
type Sink interface {
	Write(ctx context.Context, entry models.AuditLog) error
}

type Trail struct {
	docs    store.Docs
	mirrors []Sink
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewTrail(docs store.Docs, log logrus.FieldLogger, mirrors ...Sink) *Trail {
	return &Trail{docs: docs, mirrors: mirrors, log: log, now: time.Now}
}

// Entry prépare une entrée signée par actor.
func Entry(actor models.Actor, action, resource, resourceID string) models.AuditLog {
	return models.AuditLog{
		UserID:     actor.ID,
		UserName:   actor.Name,
		UserEmail:  actor.Email,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Success:    true,
	}
}

// Values sérialise les états avant/après d'une entrée.
func Values(entry models.AuditLog, oldValue, newValue any) models.AuditLog {
	if oldValue != nil {
		if b, err := json.Marshal(oldValue); err == nil {
			entry.OldValue = string(b)
		}
	}
	if newValue != nil {
		if b, err := json.Marshal(newValue); err == nil {
			entry.NewValue = string(b)
		}
	}
	return entry
}

// Failed marque l'entrée comme une tentative échouée.
func Failed(entry models.AuditLog, err error) models.AuditLog {
	entry.Success = false
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	return entry
}

// Record ajoute l'entrée à la piste. L'identifiant est un UUIDv7, trié
// chronologiquement.
func (t *Trail) Record(ctx context.Context, entry models.AuditLog) (models.AuditLog, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return entry, err
	}
	entry.ID = id.String()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.now().UTC()
	}

	if err := store.CreateJSON(ctx, t.docs, store.CollectionAudit, entry.ID, &entry); err != nil {
		return entry, err
	}

	for _, m := range t.mirrors {
		if err := m.Write(ctx, entry); err != nil {
			t.log.WithError(err).WithField("audit_id", entry.ID).Warn("⚠️ Miroir d'audit indisponible")
		}
	}
	return entry, nil
}

// Log enregistre sans faire échouer l'appelant : la piste ne doit jamais
// bloquer une transition déjà committée.
func (t *Trail) Log(ctx context.Context, entry models.AuditLog) {
	if _, err := t.Record(ctx, entry); err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"action":      entry.Action,
			"resource_id": entry.ResourceID,
		}).Error("❌ Erreur enregistrement log audit")
	}
}

type Filter struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Success    *bool
	Limit      int
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// List retourne les entrées correspondant au filtre, plus récentes d'abord.
func (t *Trail) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	all, err := store.ListJSON[models.AuditLog](ctx, t.docs, store.CollectionAudit)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	out := make([]models.AuditLog, 0, len(all))
	for _, e := range all {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if f.Success != nil && e.Success != *f.Success {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
