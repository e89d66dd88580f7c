// Package handlers regroupe les helpers HTTP partagés par les surfaces
// admin, partenaire et scanner.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/apperr"
)

// ErrorBody est le corps de toute réponse 4xx/5xx. Code permet au client de
// distinguer duplicate_approver d'un échec générique.
type ErrorBody struct {
	Error string      `json:"error"`
	Code  apperr.Kind `json:"code"`
}

// RespondError traduit err en statut HTTP. Le détail d'une erreur interne
// reste dans les logs.
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.Status(err), ErrorBody{
		Error: apperr.Public(err),
		Code:  apperr.KindOf(err),
	})
}

// BindJSON décode le corps ; un corps vide est accepté quand optional est vrai,
// y compris en transfert chunked où la longueur est inconnue.
func BindJSON(c *gin.Context, v any, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		RespondError(c, apperr.Validation("Données invalides: %v", err))
		return false
	}
	return true
}

// Unavailable signale un service optionnel non configuré.
func Unavailable(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorBody{
		Error: what + " non configuré",
		Code:  apperr.KindInternal,
	})
}
