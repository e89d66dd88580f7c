package surge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/metrics"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/validation"
)

// PollInterval est la période de rafraîchissement des consoles. Un état
// affiché peut donc avoir jusqu'à un intervalle de retard.
const PollInterval = 10 * time.Second

var errUnchanged = errors.New("état inchangé")

type Service struct {
	docs  store.Docs
	trail *audit.Trail
	log   logrus.FieldLogger
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(docs store.Docs, trail *audit.Trail, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{docs: docs, trail: trail, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) initial(eventID string) models.SurgeState {
	return models.SurgeState{
		EventID:   eventID,
		Status:    models.SurgeNormal,
		UpdatedAt: s.now().UTC(),
	}
}

// Get retourne l'état courant ; un événement jamais touché est en normal.
func (s *Service) Get(ctx context.Context, eventID string) (*models.SurgeState, error) {
	if eventID == "" {
		return nil, apperr.Validation("eventId manquant")
	}
	st, err := store.GetJSON[models.SurgeState](ctx, s.docs, store.CollectionSurge, eventID)
	if errors.Is(err, store.ErrNotFound) {
		initial := s.initial(eventID)
		return &initial, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Toggle bascule entre normal et surge. Demander l'état déjà en place est
// sans effet : ni écriture, ni audit, ni compteur. Seule exception, une
// activation manuelle sur une surcharge système la rend manuelle.
func (s *Service) Toggle(ctx context.Context, eventID string, enabled bool, reason string, trigger models.SurgeTrigger, actor models.Actor) (*models.SurgeState, bool, error) {
	return s.toggle(ctx, eventID, enabled, reason, trigger, actor, nil)
}

// ReleaseSystemSurge ne désactive que les surcharges déclenchées par le
// système ; une surcharge manuelle reste en place.
func (s *Service) ReleaseSystemSurge(ctx context.Context, eventID string) (*models.SurgeState, bool, error) {
	return s.toggle(ctx, eventID, false, "", models.TriggerSystem, models.SystemActor, func(st *models.SurgeState) bool {
		return st.Trigger == models.TriggerSystem
	})
}

func (s *Service) toggle(ctx context.Context, eventID string, enabled bool, reason string, trigger models.SurgeTrigger, actor models.Actor, guard func(*models.SurgeState) bool) (*models.SurgeState, bool, error) {
	if eventID == "" {
		return nil, false, apperr.Validation("eventId manquant")
	}
	reason = strings.TrimSpace(reason)
	if reason != "" {
		if err := validation.SurgeReason(reason); err != nil {
			return nil, false, err
		}
	}
	if trigger == "" {
		trigger = models.TriggerManual
	}
	if trigger == models.TriggerSystem && enabled && reason == "" {
		return nil, false, apperr.Validation("un déclenchement système doit indiquer un motif")
	}

	target := models.SurgeNormal
	if enabled {
		target = models.SurgeActive
	}
	now := s.now().UTC()

	var (
		previous        models.SurgeStatus
		previousTrigger models.SurgeTrigger
	)
	st, err := store.UpsertJSON(ctx, s.docs, store.CollectionSurge, eventID, func(st *models.SurgeState, exists bool) error {
		if !exists {
			*st = s.initial(eventID)
		}
		previous, previousTrigger = st.Status, st.Trigger

		// Un opérateur qui confirme une surcharge système en prend la main :
		// le moniteur ne pourra plus la relâcher.
		if st.Status == target && enabled && trigger == models.TriggerManual && st.Trigger == models.TriggerSystem {
			st.Trigger = models.TriggerManual
			if reason != "" {
				st.Reason = &reason
			}
			st.UpdatedAt = now
			return nil
		}
		if st.Status == target {
			return errUnchanged
		}
		if guard != nil && !guard(st) {
			return errUnchanged
		}

		st.Status = target
		if enabled {
			st.Trigger = trigger
			st.Reason = nil
			if reason != "" {
				st.Reason = &reason
			}
		} else {
			st.Trigger = ""
			st.Reason = nil
		}
		st.ChangedAt = &now
		st.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errUnchanged) {
		current, err := s.Get(ctx, eventID)
		return current, false, err
	}
	if err != nil {
		return nil, false, s.storeErr(err)
	}

	metrics.SurgeToggles.WithLabelValues(string(target), string(trigger)).Inc()
	entry := audit.Entry(actor, audit.ActionSurgeToggle, audit.ResourceSurge, eventID)
	entry.Reason = reason
	s.trail.Log(ctx, audit.Values(entry,
		map[string]interface{}{"status": previous, "trigger": previousTrigger},
		map[string]interface{}{"status": st.Status, "trigger": trigger}))

	log := s.log.WithFields(logrus.Fields{"event_id": eventID, "trigger": trigger})
	if enabled {
		log.WithField("reason", reason).Warn("🚦 Mode surcharge activé")
	} else {
		log.Info("🟢 Retour à la vente normale")
	}
	return st, true, nil
}

// Admit fait sortir min(count, waiting) sessions de la salle d'attente, en
// une seule mise à jour atomique par événement.
func (s *Service) Admit(ctx context.Context, eventID string, count int64, actor models.Actor) (*models.SurgeState, int64, error) {
	now := s.now().UTC()

	var moved int64
	st, err := store.UpsertJSON(ctx, s.docs, store.CollectionSurge, eventID, func(st *models.SurgeState, exists bool) error {
		if !exists {
			*st = s.initial(eventID)
		}
		if st.Status != models.SurgeActive {
			return apperr.InvalidState("l'admission par lot n'est possible qu'en mode surcharge")
		}
		if err := validation.Positive("count", count); err != nil {
			return err
		}

		moved = min(count, st.Stats.Waiting)
		st.Stats.Waiting -= moved
		st.Stats.Admitted += moved
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, 0, s.storeErr(err)
	}

	metrics.SurgeAdmitted.Add(float64(moved))
	entry := audit.Entry(actor, audit.ActionSurgeAdmit, audit.ResourceSurge, eventID)
	s.trail.Log(ctx, audit.Values(entry,
		map[string]int64{"requested": count},
		map[string]int64{"admitted": moved, "waiting": st.Stats.Waiting}))

	s.log.WithFields(logrus.Fields{
		"event_id":  eventID,
		"requested": count,
		"admitted":  moved,
		"waiting":   st.Stats.Waiting,
	}).Info("🎟️ Lot admis")
	return st, moved, nil
}

// Join place count sessions en salle d'attente. Hors surcharge, les
// sessions passent directement et n'ont rien à rejoindre.
func (s *Service) Join(ctx context.Context, eventID string, count int64) (*models.SurgeState, error) {
	now := s.now().UTC()
	st, err := store.UpsertJSON(ctx, s.docs, store.CollectionSurge, eventID, func(st *models.SurgeState, exists bool) error {
		if !exists {
			*st = s.initial(eventID)
		}
		if st.Status != models.SurgeActive {
			return apperr.InvalidState("pas de salle d'attente hors mode surcharge")
		}
		if err := validation.Positive("count", count); err != nil {
			return err
		}
		st.Stats.Waiting += count
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	return st, nil
}

func KnownFunnelKind(k models.FunnelKind) bool {
	switch k {
	case models.FunnelAdmitted, models.FunnelConsumed, models.FunnelAbandonedPreReserve, models.FunnelPaymentFailed:
		return true
	}
	return false
}

// RecordFunnelEvent incrémente le compteur de conversion. Un consumed qui
// ferait dépasser admitted est refusé.
func (s *Service) RecordFunnelEvent(ctx context.Context, eventID string, kind models.FunnelKind) (*models.SurgeState, error) {
	if !KnownFunnelKind(kind) {
		return nil, apperr.Validation("type d'événement de tunnel inconnu %q", kind)
	}
	now := s.now().UTC()

	st, err := store.UpsertJSON(ctx, s.docs, store.CollectionSurge, eventID, func(st *models.SurgeState, exists bool) error {
		if !exists {
			*st = s.initial(eventID)
		}
		cs := &st.Analytics.ConversionStats
		switch kind {
		case models.FunnelAdmitted:
			cs.Admitted++
		case models.FunnelConsumed:
			if cs.Consumed >= cs.Admitted {
				return apperr.InvalidState("consumed ne peut pas dépasser admitted")
			}
			cs.Consumed++
		case models.FunnelAbandonedPreReserve:
			cs.AbandonedPreReserve++
		case models.FunnelPaymentFailed:
			cs.PaymentFailed++
		}
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	metrics.FunnelEvents.WithLabelValues(string(kind)).Inc()
	return st, nil
}

// DisplayReason rend un jeton snake_case lisible (queue_depth → queue depth).
func DisplayReason(reason *string) string {
	if reason == nil {
		return ""
	}
	return strings.ReplaceAll(*reason, "_", " ")
}

func (s *Service) storeErr(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return apperr.Conflict("état de surcharge modifié simultanément, réessayez")
	}
	return err
}
