package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load charge le fichier .env s'il existe.
func Load() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
}

type Config struct {
	Port         string
	LogLevel     string
	StoreBackend string
	BoltPath     string
	CORSOrigins  []string

	JWTSecret    string
	ServiceToken string

	Redis   RedisConfig
	Scylla  ScyllaConfig
	Elastic ElasticConfig
	MinIO   MinIOConfig
	Stripe  StripeConfig
	SMTP    SMTPConfig

	Refunds RefundPolicyConfig
	Surge   SurgeConfig
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type ScyllaConfig struct {
	Hosts      []string
	Keyspace   string
	Username   string
	Password   string
	SSLEnabled bool
	CACertPath string
}

type ElasticConfig struct {
	URL      string
	User     string
	Password string
	Index    string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	NotifyTo []string
}

// RefundPolicyConfig exprime les seuils en unités mineures (centimes).
type RefundPolicyConfig struct {
	SingleThreshold int64
	DualThreshold   int64
}

type SurgeConfig struct {
	PollInterval          time.Duration
	QueueDepthLimit       int64
	PaymentLatencyLimit   time.Duration
	SettlementWorkerCount int
}

// FromEnv lit la configuration typée depuis l'environnement.
func FromEnv() Config {
	return Config{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		StoreBackend: getEnv("STORE_BACKEND", "bolt"),
		BoltPath:     getEnv("BOLT_PATH", "billetterie.db"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		ServiceToken: os.Getenv("SERVICE_TOKEN"),
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Scylla: ScyllaConfig{
			Hosts:      splitList(os.Getenv("SCYLLA_HOSTS")),
			Keyspace:   getEnv("SCYLLA_KS_TICKETING_KEYSPACE", "billetterie"),
			Username:   os.Getenv("SCYLLA_KS_TICKETING_ROLE"),
			Password:   os.Getenv("SCYLLA_KS_TICKETING_PASSWORD"),
			SSLEnabled: strings.ToLower(os.Getenv("SCYLLA_SSL_ENABLED")) == "true",
			CACertPath: os.Getenv("SCYLLA_SSL_CA_PATH"),
		},
		Elastic: ElasticConfig{
			URL:      os.Getenv("ELASTIC_URL"),
			User:     os.Getenv("ELASTIC_USER"),
			Password: os.Getenv("ELASTIC_PASSWORD"),
			Index:    getEnv("ELASTIC_AUDIT_INDEX", "audit_logs"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
			Bucket:    getEnv("MINIO_BUCKET", "billetterie-evidence"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "noreply@billetterie.local"),
			NotifyTo: splitList(os.Getenv("REFUND_NOTIFY_EMAIL")),
		},
		Refunds: RefundPolicyConfig{
			SingleThreshold: getInt64("REFUND_SINGLE_THRESHOLD", 2000),
			DualThreshold:   getInt64("REFUND_DUAL_THRESHOLD", 5000),
		},
		Surge: SurgeConfig{
			PollInterval:          getDuration("SURGE_POLL_INTERVAL", 10*time.Second),
			QueueDepthLimit:       getInt64("SURGE_QUEUE_DEPTH_LIMIT", 500),
			PaymentLatencyLimit:   getDuration("SURGE_PAYMENT_LATENCY_LIMIT", 4*time.Second),
			SettlementWorkerCount: getInt("SETTLEMENT_WORKERS", 2),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
