package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/cache"
	"billetterie_back_end/internal/config"
	"billetterie_back_end/internal/database"
	"billetterie_back_end/internal/eventcodes"
	"billetterie_back_end/internal/governance"
	"billetterie_back_end/internal/handlers/admin"
	eventcodeshttp "billetterie_back_end/internal/handlers/eventcodes"
	"billetterie_back_end/internal/handlers/events"
	"billetterie_back_end/internal/handlers/webhook"
	"billetterie_back_end/internal/logger"
	"billetterie_back_end/internal/middleware"
	"billetterie_back_end/internal/refunds"
	"billetterie_back_end/internal/routes"
	"billetterie_back_end/internal/services"
	"billetterie_back_end/internal/services/settlement"
	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/store/boltstore"
	"billetterie_back_end/internal/store/redisstore"
	"billetterie_back_end/internal/store/scyllastore"
	"billetterie_back_end/internal/surge"
	"billetterie_back_end/internal/utils"
)

const memoryQueueCapacity = 1024

func main() {
	config.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET manquant")
	}

	clients, err := database.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("❌ Échec connexion aux bases de données")
	}
	defer clients.Close()

	docs, err := openStore(cfg, clients)
	if err != nil {
		log.WithError(err).Fatal("❌ Échec ouverture du magasin de documents")
	}
	defer docs.Close()
	log.WithField("backend", cfg.StoreBackend).Info("✅ Magasin de documents prêt")

	// Piste d'audit et miroirs
	var (
		mirrors  []audit.Sink
		searcher admin.AuditSearcher
	)
	if clients.Scylla != nil {
		sink, err := audit.NewScyllaSink(clients.Scylla)
		if err != nil {
			log.WithError(err).Fatal("❌ Miroir d'audit Scylla")
		}
		mirrors = append(mirrors, sink)
	}
	if clients.Elastic != nil {
		sink := audit.NewElasticSink(clients.Elastic, cfg.Elastic.Index)
		mirrors = append(mirrors, sink)
		searcher = sink
	}
	trail := audit.NewTrail(docs, log, mirrors...)

	// Cache partagé
	var (
		bans    cache.Bans
		counter cache.Counter
		queue   settlement.Queue
	)
	if clients.Redis != nil {
		r := cache.NewRedis(clients.Redis)
		bans, counter = r, r
		queue = settlement.NewRedisQueue(clients.Redis)
	} else {
		l := cache.NewLocal()
		bans, counter = l, l
		queue = settlement.NewMemoryQueue(memoryQueueCapacity)
		log.Warn("⚠️ Redis non configuré : bannissements, limites et file de règlement restent locaux")
	}

	// Services métier
	refundSvc := refunds.NewService(docs,
		refunds.Policy{SingleThreshold: cfg.Refunds.SingleThreshold, DualThreshold: cfg.Refunds.DualThreshold},
		queue, trail, log,
		refunds.WithNotifier(utils.NewMailer(cfg.SMTP, log)),
	)
	surgeSvc := surge.NewService(docs, trail, log)
	monitor := surge.NewMonitor(surgeSvc, surge.Thresholds{
		QueueDepth:     cfg.Surge.QueueDepthLimit,
		PaymentLatency: cfg.Surge.PaymentLatencyLimit,
	}, log)
	codeSvc := eventcodes.NewService(docs, trail, log)
	dispatcher := governance.NewHandler(bans, codeSvc, surgeSvc, refundSvc, trail, log)

	var evidence admin.EvidenceStore
	if clients.MinIO != nil {
		evidence = services.NewEvidence(clients.MinIO, cfg.MinIO.Bucket)
	}

	// Worker de règlement
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	if cfg.Stripe.SecretKey != "" {
		if cfg.Stripe.WebhookSecret == "" {
			log.Fatal("❌ STRIPE_WEBHOOK_SECRET manquant : les règlements ne peuvent pas être clôturés sans webhook signé")
		}
		gateway := settlement.NewStripeGateway(cfg.Stripe.SecretKey)
		worker := settlement.NewWorker(queue, refundSvc, gateway, log)
		go func() {
			worker.Run(ctx, cfg.Surge.SettlementWorkerCount)
			close(workerDone)
		}()
		log.Info("✅ Stripe initialisé, workers de règlement démarrés")
	} else {
		close(workerDone)
		log.Warn("⚠️ STRIPE_SECRET_KEY absente : les remboursements approuvés restent en file")
	}

	// HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Poll-Interval", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Auth:     middleware.NewAuth(cfg.JWTSecret, cfg.ServiceToken, bans, log),
		Counter:  counter,
		Trail:    trail,
		Log:      log,
		Refunds:  admin.NewRefunds(refundSvc),
		Audit:    admin.NewAudit(trail, searcher),
		Actions:  admin.NewActions(dispatcher),
		Evidence: admin.NewEvidence(evidence),
		Surge:    events.NewSurge(surgeSvc, monitor, int(cfg.Surge.PollInterval.Seconds())),
		Codes:    eventcodeshttp.NewCodes(codeSvc),
		Stripe:   webhook.NewStripe(refundSvc, cfg.Stripe.WebhookSecret, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("🚀 Serveur billetterie lancé")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Serveur HTTP arrêté")
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Arrêt demandé")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("❌ Arrêt du serveur HTTP")
	}
	<-workerDone
}

func openStore(cfg config.Config, clients *database.Clients) (store.Docs, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "bolt":
		return boltstore.New(cfg.BoltPath)
	case "redis":
		if clients.Redis == nil {
			return nil, errors.New("STORE_BACKEND=redis exige REDIS_HOST")
		}
		return redisstore.New(clients.Redis), nil
	case "scylla":
		if clients.Scylla == nil {
			return nil, errors.New("STORE_BACKEND=scylla exige SCYLLA_HOSTS")
		}
		if err := scyllastore.EnsureSchema(clients.Scylla); err != nil {
			return nil, err
		}
		return scyllastore.New(clients.Scylla), nil
	default:
		return nil, fmt.Errorf("STORE_BACKEND inconnu: %q", cfg.StoreBackend)
	}
}
