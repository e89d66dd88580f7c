package models

import "time"

type ApprovalType string

const (
	ApprovalAuto   ApprovalType = "auto"
	ApprovalSingle ApprovalType = "single"
	ApprovalDual   ApprovalType = "dual"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundApproved   RefundStatus = "approved"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
	RefundRejected   RefundStatus = "rejected"
)

// Approver est une contre-signature d'administrateur.
type Approver struct {
	ApproverID   string    `json:"approverId"`
	ApproverName string    `json:"approverName"`
	Timestamp    time.Time `json:"timestamp"`
}

type RefundRequest struct {
	ID                string       `json:"id"`
	OrderID           string       `json:"orderId"`
	EventID           string       `json:"eventId"`
	CustomerID        string       `json:"customerId"`
	PaymentIntentID   string       `json:"paymentIntentId,omitempty"`
	Amount            int64        `json:"amount"` // unités mineures
	Currency          string       `json:"currency"`
	Reason            string       `json:"reason"`
	IsPartial         bool         `json:"isPartial"`
	Flagged           bool         `json:"flagged"`
	ApprovalType      ApprovalType `json:"approvalType"`
	ApproversRequired int          `json:"approversRequired"`
	Approvers         []Approver   `json:"approvers"`
	Status            RefundStatus `json:"status"`
	RejectedBy        string       `json:"rejectedBy,omitempty"`
	RejectionReason   string       `json:"rejectionReason,omitempty"`
	GatewayRefundID   string       `json:"gatewayRefundId,omitempty"`
	FailureReason     string       `json:"failureReason,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// HasApprover indique si approverID a déjà contre-signé.
func (r *RefundRequest) HasApprover(approverID string) bool {
	for _, a := range r.Approvers {
		if a.ApproverID == approverID {
			return true
		}
	}
	return false
}
