package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/cache"
)

const (
	APIMaxRequests = 100 // par minute pour les endpoints généraux
	APICooldown    = 1 * time.Minute

	// Les scanners de porte et les sondes du tunnel sont plus bavards.
	ScanMaxRequests = 600
)

// RateLimit limite le nombre de requêtes par IP sur une fenêtre fixe.
// Une panne du compteur laisse passer la requête.
func RateLimit(counter cache.Counter, scope string, max int64, window time.Duration, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rl:%s:%s", scope, c.ClientIP())

		requests, err := counter.Hit(c.Request.Context(), key, window)
		if err != nil {
			log.WithError(err).Warn("⚠️ Compteur de débit indisponible")
			c.Next()
			return
		}

		remaining := max - requests
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", max))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if requests > max {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("Trop de requêtes. Réessayez dans %d secondes", int(window.Seconds())),
				"retry_after": int(window.Seconds()),
			})
			return
		}
		c.Next()
	}
}

// APIRateLimit applique la limite générale.
func APIRateLimit(counter cache.Counter, log logrus.FieldLogger) gin.HandlerFunc {
	return RateLimit(counter, "api", APIMaxRequests, APICooldown, log)
}
