package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billetterie_back_end/internal/models"
)

// GenerateJWT signe un jeton HS256 pour actor, valable ttl.
func GenerateJWT(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": actor.ID,
		"name":    actor.Name,
		"email":   actor.Email,
		"role":    actor.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
