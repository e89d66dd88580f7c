package refunds

import "billetterie_back_end/internal/models"

// Policy décide à la création du nombre de signatures exigées.
// Les seuils sont exprimés en unités mineures.
type Policy struct {
	SingleThreshold int64
	DualThreshold   int64
}

// Classify : signalée → dual ; >= DualThreshold → dual ; >= SingleThreshold
// ou remboursement partiel → single ; sinon auto.
func (p Policy) Classify(amount int64, isPartial, flagged bool) models.ApprovalType {
	switch {
	case flagged, amount >= p.DualThreshold:
		return models.ApprovalDual
	case isPartial, amount >= p.SingleThreshold:
		return models.ApprovalSingle
	default:
		return models.ApprovalAuto
	}
}

func RequiredApprovers(t models.ApprovalType) int {
	switch t {
	case models.ApprovalDual:
		return 2
	case models.ApprovalSingle:
		return 1
	default:
		return 0
	}
}

var transitions = map[models.RefundStatus][]models.RefundStatus{
	models.RefundPending:    {models.RefundApproved, models.RefundRejected},
	models.RefundApproved:   {models.RefundProcessing},
	models.RefundProcessing: {models.RefundCompleted, models.RefundFailed},
}

func CanTransition(from, to models.RefundStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.RefundStatus) bool {
	return len(transitions[s]) == 0
}

func KnownStatus(s models.RefundStatus) bool {
	switch s {
	case models.RefundPending, models.RefundApproved, models.RefundProcessing,
		models.RefundCompleted, models.RefundFailed, models.RefundRejected:
		return true
	}
	return false
}

// Statuts d'affichage dérivés, jamais persistés.
const (
	DisplayAwaitingApproval  = "awaiting_approval"
	DisplayPartiallyApproved = "partially_approved"
)

// DeriveDisplayStatus rend explicite l'état « une signature sur deux »,
// qui n'est encodé que par pending + approvers non vide.
func DeriveDisplayStatus(r models.RefundRequest) string {
	if r.Status != models.RefundPending {
		return string(r.Status)
	}
	if len(r.Approvers) > 0 {
		return DisplayPartiallyApproved
	}
	return DisplayAwaitingApproval
}

// View est la représentation renvoyée aux consoles.
type View struct {
	models.RefundRequest
	DisplayStatus     string `json:"displayStatus"`
	SignaturesMissing int    `json:"signaturesMissing"`
}

func NewView(r models.RefundRequest) View {
	missing := 0
	if r.Status == models.RefundPending {
		missing = r.ApproversRequired - len(r.Approvers)
	}
	return View{
		RefundRequest:     r,
		DisplayStatus:     DeriveDisplayStatus(r),
		SignaturesMissing: missing,
	}
}
