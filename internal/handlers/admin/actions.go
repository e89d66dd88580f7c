package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/governance"
	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/middleware"
	"billetterie_back_end/internal/models"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, env governance.Envelope, actor models.Actor, scope governance.Scope) (*governance.Result, error)
}

type Actions struct {
	dispatcher Dispatcher
}

func NewActions(d Dispatcher) *Actions {
	return &Actions{dispatcher: d}
}

// Admin : POST /api/admin/actions, toutes les actions.
func (h *Actions) Admin(c *gin.Context) {
	h.dispatch(c, governance.ScopeAdmin)
}

// Partner : POST /api/actions. Un administrateur garde ses droits complets
// depuis le tableau de bord partenaire.
func (h *Actions) Partner(c *gin.Context) {
	scope := governance.ScopePartner
	if c.GetString("role") == middleware.RoleAdmin {
		scope = governance.ScopeAdmin
	}
	h.dispatch(c, scope)
}

func (h *Actions) dispatch(c *gin.Context, scope governance.Scope) {
	var env governance.Envelope
	if !handlers.BindJSON(c, &env, false) {
		return
	}

	res, err := h.dispatcher.Dispatch(c.Request.Context(), env, middleware.ActorFrom(c), scope)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
