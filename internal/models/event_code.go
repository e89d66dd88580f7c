package models

import "time"

type CodeType string

const (
	CodeFull     CodeType = "full"
	CodeScanOnly CodeType = "scan_only"
)

// EventCode est un jeton d'accès porte/scanner. La révocation est définitive.
type EventCode struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	EventID    string     `json:"eventId"`
	Type       CodeType   `json:"type"`
	Gate       *string    `json:"gate"`
	IsRevoked  bool       `json:"isRevoked"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	RevokedBy  string     `json:"revokedBy,omitempty"`
	UsageCount int64      `json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
