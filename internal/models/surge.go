package models

import "time"

type SurgeStatus string

const (
	SurgeNormal SurgeStatus = "normal"
	SurgeActive SurgeStatus = "surge"
)

// SurgeTrigger distingue un déclenchement opérateur d'un déclenchement système.
type SurgeTrigger string

const (
	TriggerManual SurgeTrigger = "manual"
	TriggerSystem SurgeTrigger = "system"
)

type FunnelKind string

const (
	FunnelAdmitted            FunnelKind = "admitted"
	FunnelConsumed            FunnelKind = "consumed"
	FunnelAbandonedPreReserve FunnelKind = "abandoned_pre_reserve"
	FunnelPaymentFailed       FunnelKind = "payment_failed"
)

type SurgeStats struct {
	Waiting  int64 `json:"waiting"`
	Admitted int64 `json:"admitted"`
}

type ConversionStats struct {
	Admitted            int64 `json:"admitted"`
	Consumed            int64 `json:"consumed"`
	AbandonedPreReserve int64 `json:"abandoned_pre_reserve"`
	PaymentFailed       int64 `json:"payment_failed"`
}

type SurgeAnalytics struct {
	ConversionStats ConversionStats `json:"conversion_stats"`
}

type SurgeState struct {
	EventID   string         `json:"eventId"`
	Status    SurgeStatus    `json:"status"`
	Reason    *string        `json:"reason"`
	Trigger   SurgeTrigger   `json:"trigger,omitempty"`
	Stats     SurgeStats     `json:"stats"`
	Analytics SurgeAnalytics `json:"analytics"`
	ChangedAt *time.Time     `json:"changedAt,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
