package eventcodes

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/eventcodes"
	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/middleware"
	"billetterie_back_end/internal/models"
)

type CodeService interface {
	Create(ctx context.Context, in eventcodes.CreateInput, actor models.Actor) (*models.EventCode, error)
	List(ctx context.Context, eventID string) ([]models.EventCode, error)
	Revoke(ctx context.Context, id string, actor models.Actor, reason string) (*models.EventCode, bool, error)
	RecordScan(ctx context.Context, in eventcodes.ScanInput) (*models.EventCode, error)
	QR(ctx context.Context, id string) ([]byte, error)
}

type Codes struct {
	svc CodeService
}

func NewCodes(svc CodeService) *Codes {
	return &Codes{svc: svc}
}

// List : GET /api/event-codes?eventId=
func (h *Codes) List(c *gin.Context) {
	codes, err := h.svc.List(c.Request.Context(), c.Query("eventId"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

func (h *Codes) Create(c *gin.Context) {
	var in eventcodes.CreateInput
	if !handlers.BindJSON(c, &in, false) {
		return
	}

	code, err := h.svc.Create(c.Request.Context(), in, middleware.ActorFrom(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code})
}

// Revoke : DELETE /api/event-codes?id=. Révocation douce et idempotente, le
// code reste consultable.
func (h *Codes) Revoke(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		handlers.RespondError(c, apperr.Validation("paramètre id requis"))
		return
	}

	code, changed, err := h.svc.Revoke(c.Request.Context(), id, middleware.ActorFrom(c), c.Query("reason"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	message := "Code révoqué"
	if !changed {
		message = "Code déjà révoqué"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"changed": changed,
		"code":    code,
	})
}

// Scan : POST /api/event-codes/scan, appelé par le matériel de contrôle.
func (h *Codes) Scan(c *gin.Context) {
	var in eventcodes.ScanInput
	if !handlers.BindJSON(c, &in, false) {
		return
	}

	code, err := h.svc.RecordScan(c.Request.Context(), in)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"code":  code,
	})
}

func (h *Codes) QR(c *gin.Context) {
	png, err := h.svc.QR(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
