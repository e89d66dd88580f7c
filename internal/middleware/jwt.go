package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/cache"
	"billetterie_back_end/internal/models"
)

// Rôles portés par le claim "role".
const (
	RoleAdmin   = "admin"
	RolePartner = "partner"
	RoleService = "service"
)

// Auth vérifie le bearer token : JWT HS256 signé par secret, ou jeton de
// service statique utilisé par le flux d'annulation de commandes.
type Auth struct {
	secret       []byte
	serviceToken string
	bans         cache.Bans
	log          logrus.FieldLogger
}

func NewAuth(secret, serviceToken string, bans cache.Bans, log logrus.FieldLogger) *Auth {
	return &Auth{secret: []byte(secret), serviceToken: serviceToken, bans: bans, log: log}
}

func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token manquant"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Format Authorization invalide"})
			return
		}
		tokenString := parts[1]

		if a.serviceToken != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(a.serviceToken)) == 1 {
			c.Set("user_id", RoleService)
			c.Set("name", "cancellation-flow")
			c.Set("role", RoleService)
			c.Next()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("méthode de signature inattendue: %v", token.Header["alg"])
			}
			return a.secret, nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			a.log.WithError(err).Debug("❌ Erreur parsing JWT")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			return
		}

		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id manquant"})
			return
		}

		if a.bans != nil {
			banned, err := a.bans.IsBanned(c.Request.Context(), userID)
			if err != nil {
				a.log.WithError(err).Warn("⚠️ Erreur vérification ban")
			}
			if banned {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Compte suspendu"})
				return
			}
		}

		c.Set("user_id", userID)
		c.Set("name", stringClaim(claims, "name"))
		c.Set("email", stringClaim(claims, "email"))
		c.Set("role", stringClaim(claims, "role"))
		c.Next()
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// ActorFrom reconstruit l'auteur de la requête à partir du contexte gin.
func ActorFrom(c *gin.Context) models.Actor {
	return models.Actor{
		ID:        c.GetString("user_id"),
		Name:      c.GetString("name"),
		Email:     c.GetString("email"),
		Role:      c.GetString("role"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
