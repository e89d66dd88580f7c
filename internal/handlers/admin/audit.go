package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/models"
)

type AuditSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.AuditLog, error)
}

type Audit struct {
	trail    *audit.Trail
	searcher AuditSearcher
}

// NewAudit : searcher peut être nil quand Elasticsearch n'est pas configuré.
func NewAudit(trail *audit.Trail, searcher AuditSearcher) *Audit {
	return &Audit{trail: trail, searcher: searcher}
}

// List récupère les logs d'audit avec filtres
func (h *Audit) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	f := audit.Filter{
		UserID:     c.Query("user_id"),
		Action:     c.Query("action"),
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resource_id"),
		Limit:      limit,
	}
	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			handlers.RespondError(c, apperr.Validation("paramètre success invalide"))
			return
		}
		f.Success = &success
	}

	logs, err := h.trail.List(c.Request.Context(), f)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// Search interroge le miroir Elasticsearch en plein texte.
func (h *Audit) Search(c *gin.Context) {
	if h.searcher == nil {
		handlers.Unavailable(c, "Elasticsearch")
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		handlers.RespondError(c, apperr.Validation("paramètre q requis"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.searcher.Search(c.Request.Context(), q, limit)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
		"query": q,
	})
}
