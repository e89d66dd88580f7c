package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/audit"
)

// AuditCriticalActions trace les routes sensibles qui ne passent pas par un
// service déjà audité (téléversement de preuves, lectures de la piste).
func AuditCriticalActions(trail *audit.Trail, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resourceID := c.Param("id")

		c.Next()

		if id := c.GetString("audit_resource_id"); id != "" {
			resourceID = id
		}
		entry := audit.Entry(ActorFrom(c), action, resource, resourceID)
		if status := c.Writer.Status(); status >= 200 && status < 300 {
			trail.Log(c.Request.Context(), entry)
			return
		}

		msg := "Action échouée"
		if len(c.Errors) > 0 {
			msg = c.Errors.Last().Error()
		}
		trail.Log(c.Request.Context(), audit.Failed(entry, errors.New(msg)))
	}
}
