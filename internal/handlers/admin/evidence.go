package admin

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/services"
)

type EvidenceStore interface {
	Upload(ctx context.Context, userID, filename, contentType string, size int64, r io.Reader) (*services.Upload, error)
}

type Evidence struct {
	store EvidenceStore
}

// NewEvidence : store peut être nil quand MinIO n'est pas configuré.
func NewEvidence(store EvidenceStore) *Evidence {
	return &Evidence{store: store}
}

// Upload : POST /api/admin/evidence (multipart, champ "file").
func (h *Evidence) Upload(c *gin.Context) {
	if h.store == nil {
		handlers.Unavailable(c, "Stockage des preuves")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxEvidenceSize+(1<<20))
	file, err := c.FormFile("file")
	if err != nil {
		handlers.RespondError(c, apperr.Validation("fichier manquant"))
		return
	}

	f, err := file.Open()
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	defer f.Close()

	up, err := h.store.Upload(c.Request.Context(), c.GetString("user_id"), file.Filename,
		file.Header.Get("Content-Type"), file.Size, f)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	c.Set("audit_resource_id", up.Key)
	c.JSON(http.StatusCreated, gin.H{
		"key": up.Key,
		"url": up.URL,
	})
}
