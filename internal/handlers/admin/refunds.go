package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/middleware"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/refunds"
	"billetterie_back_end/internal/validation"
)

type RefundService interface {
	Create(ctx context.Context, in refunds.CreateInput, actor models.Actor) (*models.RefundRequest, error)
	Get(ctx context.Context, id string) (*models.RefundRequest, error)
	List(ctx context.Context, status string) ([]models.RefundRequest, error)
	RecordApproval(ctx context.Context, id string, approver models.Actor) (*models.RefundRequest, error)
	RecordRejection(ctx context.Context, id string, approver models.Actor, reason string) (*models.RefundRequest, error)
	Requeue(ctx context.Context, id string, actor models.Actor) (*models.RefundRequest, error)
}

type Refunds struct {
	svc RefundService
}

func NewRefunds(svc RefundService) *Refunds {
	return &Refunds{svc: svc}
}

// List : GET /api/admin/refunds?status=pending|all|<statut>
func (h *Refunds) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.DefaultQuery("status", "pending"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	views := make([]refunds.View, 0, len(list))
	for _, r := range list {
		views = append(views, refunds.NewView(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"refunds": views,
		"count":   len(views),
	})
}

func (h *Refunds) Get(c *gin.Context) {
	r, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": refunds.NewView(*r)})
}

// Create est appelé par le flux d'annulation de commandes (jeton de service)
// ou par un administrateur.
func (h *Refunds) Create(c *gin.Context) {
	var in refunds.CreateInput
	if !handlers.BindJSON(c, &in, false) {
		return
	}

	r, err := h.svc.Create(c.Request.Context(), in, middleware.ActorFrom(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Demande de remboursement créée",
		"refund":  refunds.NewView(*r),
	})
}

func (h *Refunds) Approve(c *gin.Context) {
	r, err := h.svc.RecordApproval(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	message := "Signature enregistrée, en attente d'une seconde approbation"
	if r.Status == models.RefundApproved {
		message = "Remboursement approuvé, règlement en cours"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"refund":  refunds.NewView(*r),
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject : sans motif fourni, le motif par défaut est appliqué.
func (h *Refunds) Reject(c *gin.Context) {
	var req rejectRequest
	if !handlers.BindJSON(c, &req, true) {
		return
	}

	r, err := h.svc.RecordRejection(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c), validation.RejectionReason(req.Reason))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Demande de remboursement rejetée",
		"refund":  refunds.NewView(*r),
	})
}

// Requeue remet en file une demande approved dont la mise en file a échoué.
func (h *Refunds) Requeue(c *gin.Context) {
	r, err := h.svc.Requeue(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Règlement remis en file",
		"refund":  refunds.NewView(*r),
	})
}
