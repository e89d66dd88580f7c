// Package apptest assemble l'API complète sur le magasin mémoire pour les
// tests de bout en bout.
package apptest

import (
	"io"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/cache"
	"billetterie_back_end/internal/eventcodes"
	"billetterie_back_end/internal/governance"
	"billetterie_back_end/internal/handlers/admin"
	eventcodeshttp "billetterie_back_end/internal/handlers/eventcodes"
	"billetterie_back_end/internal/handlers/events"
	"billetterie_back_end/internal/handlers/webhook"
	"billetterie_back_end/internal/middleware"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/refunds"
	"billetterie_back_end/internal/routes"
	"billetterie_back_end/internal/services/settlement"
	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/surge"
	"billetterie_back_end/internal/utils"
)

const (
	Secret       = "test-secret"
	ServiceToken = "service-token"
)

var (
	Alice   = models.Actor{ID: "admin-alice", Name: "Alice", Email: "alice@billetterie.test", Role: middleware.RoleAdmin}
	Bob     = models.Actor{ID: "admin-bob", Name: "Bob", Email: "bob@billetterie.test", Role: middleware.RoleAdmin}
	Partner = models.Actor{ID: "partner-1", Name: "Salle Pleyel", Role: middleware.RolePartner}
)

type App struct {
	Engine  *gin.Engine
	Docs    store.Docs
	Trail   *audit.Trail
	Queue   *settlement.MemoryQueue
	Bans    *cache.Local
	Refunds *refunds.Service
	Surge   *surge.Service
	Codes   *eventcodes.Service
}

// New assemble l'API avec les seuils par défaut (2000 / 5000 centimes).
func New(t testing.TB) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	docs := store.NewMemory()
	t.Cleanup(func() { _ = docs.Close() })

	trail := audit.NewTrail(docs, log)
	local := cache.NewLocal()
	queue := settlement.NewMemoryQueue(64)

	refundSvc := refunds.NewService(docs, refunds.Policy{SingleThreshold: 2000, DualThreshold: 5000}, queue, trail, log)
	surgeSvc := surge.NewService(docs, trail, log)
	monitor := surge.NewMonitor(surgeSvc, surge.Thresholds{QueueDepth: 500, PaymentLatency: 4 * time.Second}, log)
	codeSvc := eventcodes.NewService(docs, trail, log)
	dispatcher := governance.NewHandler(local, codeSvc, surgeSvc, refundSvc, trail, log)

	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Auth:     middleware.NewAuth(Secret, ServiceToken, local, log),
		Counter:  local,
		Trail:    trail,
		Log:      log,
		Refunds:  admin.NewRefunds(refundSvc),
		Audit:    admin.NewAudit(trail, nil),
		Actions:  admin.NewActions(dispatcher),
		Evidence: admin.NewEvidence(nil),
		Surge:    events.NewSurge(surgeSvc, monitor, 10),
		Codes:    eventcodeshttp.NewCodes(codeSvc),
		Stripe:   webhook.NewStripe(refundSvc, "", log),
	})

	return &App{
		Engine:  r,
		Docs:    docs,
		Trail:   trail,
		Queue:   queue,
		Bans:    local,
		Refunds: refundSvc,
		Surge:   surgeSvc,
		Codes:   codeSvc,
	}
}

// Token signe un JWT valide une heure pour actor.
func Token(t testing.TB, actor models.Actor) string {
	t.Helper()
	token, err := utils.GenerateJWT(Secret, actor, time.Hour)
	require.NoError(t, err)
	return token
}
