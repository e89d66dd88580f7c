package surge

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/models"
)

// Motifs posés par le déclenchement système.
const (
	ReasonQueueDepth     = "queue_depth"
	ReasonPaymentLatency = "payment_latency"
)

// Sample est une mesure remontée par le tunnel de vente.
type Sample struct {
	QueueDepth       int64 `json:"queueDepth" validate:"gte=0"`
	PaymentLatencyMs int64 `json:"paymentLatencyMs" validate:"gte=0"`
}

func (s Sample) PaymentLatency() time.Duration {
	return time.Duration(s.PaymentLatencyMs) * time.Millisecond
}

// Thresholds : une limite nulle désactive le critère.
type Thresholds struct {
	QueueDepth     int64
	PaymentLatency time.Duration
}

// recoveryRatio évite les bascules en rafale autour du seuil.
const recoveryRatio = 0.8

// Breach retourne le motif du premier seuil franchi.
func (t Thresholds) Breach(s Sample) (string, bool) {
	if t.QueueDepth > 0 && s.QueueDepth >= t.QueueDepth {
		return ReasonQueueDepth, true
	}
	if t.PaymentLatency > 0 && s.PaymentLatency() >= t.PaymentLatency {
		return ReasonPaymentLatency, true
	}
	return "", false
}

// Recovered exige que toutes les mesures soient repassées sous 80 % des seuils.
func (t Thresholds) Recovered(s Sample) bool {
	if t.QueueDepth > 0 && float64(s.QueueDepth) >= float64(t.QueueDepth)*recoveryRatio {
		return false
	}
	if t.PaymentLatency > 0 && float64(s.PaymentLatency()) >= float64(t.PaymentLatency)*recoveryRatio {
		return false
	}
	return true
}

// Monitor applique le déclenchement système à partir des mesures.
type Monitor struct {
	svc        *Service
	thresholds Thresholds
	log        logrus.FieldLogger
}

func NewMonitor(svc *Service, thresholds Thresholds, log logrus.FieldLogger) *Monitor {
	return &Monitor{svc: svc, thresholds: thresholds, log: log}
}

// Observe active la surcharge au franchissement d'un seuil et la relâche
// au retour à la normale, sans jamais toucher une surcharge manuelle.
func (m *Monitor) Observe(ctx context.Context, eventID string, sample Sample) (*models.SurgeState, error) {
	if reason, breach := m.thresholds.Breach(sample); breach {
		st, changed, err := m.svc.Toggle(ctx, eventID, true, reason, models.TriggerSystem, models.SystemActor)
		if err == nil && changed {
			m.log.WithFields(logrus.Fields{
				"event_id":    eventID,
				"queue_depth": sample.QueueDepth,
				"latency_ms":  sample.PaymentLatencyMs,
			}).Warn("📈 Seuil franchi, surcharge déclenchée")
		}
		return st, err
	}

	if m.thresholds.Recovered(sample) {
		st, _, err := m.svc.ReleaseSystemSurge(ctx, eventID)
		return st, err
	}
	return m.svc.Get(ctx, eventID)
}
