package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/cache"
	"billetterie_back_end/internal/handlers/admin"
	"billetterie_back_end/internal/handlers/eventcodes"
	"billetterie_back_end/internal/handlers/events"
	"billetterie_back_end/internal/handlers/webhook"
	"billetterie_back_end/internal/metrics"
	"billetterie_back_end/internal/middleware"
)

// Deps regroupe les handlers construits par main.
type Deps struct {
	Auth     *middleware.Auth
	Counter  cache.Counter
	Trail    *audit.Trail
	Log      logrus.FieldLogger
	Refunds  *admin.Refunds
	Audit    *admin.Audit
	Actions  *admin.Actions
	Evidence *admin.Evidence
	Surge    *events.Surge
	Codes    *eventcodes.Codes
	Stripe   *webhook.Stripe
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")

	// Webhooks (signature vérifiée par le handler)
	api.POST("/webhooks/stripe", d.Stripe.Handle)

	// Scanners de porte et sondes du tunnel : limite plus large
	scanners := api.Group("", d.Auth.Required(),
		middleware.RateLimit(d.Counter, "scanner", middleware.ScanMaxRequests, middleware.APICooldown, d.Log))
	{
		scanners.POST("/event-codes/scan",
			middleware.RequireRole(middleware.RoleService, middleware.RoleAdmin, middleware.RolePartner), d.Codes.Scan)
		scanners.POST("/events/:id/surge/samples",
			middleware.RequireRole(middleware.RoleService, middleware.RoleAdmin), d.Surge.Sample)
	}

	authed := api.Group("", d.Auth.Required(), middleware.APIRateLimit(d.Counter, d.Log))

	// Console admin
	adm := authed.Group("/admin")
	{
		adm.POST("/refunds", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleService), d.Refunds.Create)

		staff := adm.Group("", middleware.RequireAdmin)
		staff.GET("/refunds", d.Refunds.List)
		staff.GET("/refunds/:id", d.Refunds.Get)
		staff.POST("/refunds/:id/approve", d.Refunds.Approve)
		staff.POST("/refunds/:id/reject", d.Refunds.Reject)
		staff.POST("/refunds/:id/requeue", d.Refunds.Requeue)

		staff.GET("/audit", d.Audit.List)
		staff.GET("/audit/search", d.Audit.Search)

		staff.POST("/actions", d.Actions.Admin)
		staff.POST("/evidence",
			middleware.AuditCriticalActions(d.Trail, audit.ActionEvidenceUpload, audit.ResourceEvidence),
			d.Evidence.Upload)
	}

	// Tableau de bord partenaire
	partner := authed.Group("", middleware.RequireRole(middleware.RoleAdmin, middleware.RolePartner))
	{
		partner.POST("/actions", d.Actions.Partner)
		partner.POST("/evidence",
			middleware.AuditCriticalActions(d.Trail, audit.ActionEvidenceUpload, audit.ResourceEvidence),
			d.Evidence.Upload)

		partner.GET("/event-codes", d.Codes.List)
		partner.POST("/event-codes", d.Codes.Create)
		partner.DELETE("/event-codes", d.Codes.Revoke)
		partner.GET("/event-codes/:id/qr", d.Codes.QR)

		partner.GET("/events/:id/surge", d.Surge.Get)
	}

	// Le tunnel de vente (jeton de service) alimente aussi la salle d'attente
	authed.POST("/events/:id/surge",
		middleware.RequireRole(middleware.RoleAdmin, middleware.RolePartner, middleware.RoleService), d.Surge.Post)
}
