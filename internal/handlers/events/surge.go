package events

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/handlers"
	"billetterie_back_end/internal/middleware"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/surge"
	"billetterie_back_end/internal/validation"
)

type SurgeService interface {
	Get(ctx context.Context, eventID string) (*models.SurgeState, error)
	Toggle(ctx context.Context, eventID string, enabled bool, reason string, trigger models.SurgeTrigger, actor models.Actor) (*models.SurgeState, bool, error)
	Admit(ctx context.Context, eventID string, count int64, actor models.Actor) (*models.SurgeState, int64, error)
	Join(ctx context.Context, eventID string, count int64) (*models.SurgeState, error)
	RecordFunnelEvent(ctx context.Context, eventID string, kind models.FunnelKind) (*models.SurgeState, error)
}

type SampleObserver interface {
	Observe(ctx context.Context, eventID string, sample surge.Sample) (*models.SurgeState, error)
}

// Actions acceptées sur POST /api/events/:id/surge.
const (
	ActionToggle = "toggle"
	ActionAdmit  = "admit"
	ActionJoin   = "join"
	ActionFunnel = "funnel"
)

type Surge struct {
	svc          SurgeService
	monitor      SampleObserver
	pollInterval int
}

func NewSurge(svc SurgeService, monitor SampleObserver, pollSeconds int) *Surge {
	if pollSeconds <= 0 {
		pollSeconds = int(surge.PollInterval.Seconds())
	}
	return &Surge{svc: svc, monitor: monitor, pollInterval: pollSeconds}
}

// View est l'état renvoyé aux consoles. PollIntervalSeconds annonce la
// période de rafraîchissement, donc le retard maximal de l'affichage.
type View struct {
	models.SurgeState
	DisplayReason       string `json:"displayReason,omitempty"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	Changed             *bool  `json:"changed,omitempty"`
	Moved               *int64 `json:"moved,omitempty"`
}

func (h *Surge) view(st *models.SurgeState) View {
	return View{
		SurgeState:          *st,
		DisplayReason:       surge.DisplayReason(st.Reason),
		PollIntervalSeconds: h.pollInterval,
	}
}

func (h *Surge) Get(c *gin.Context) {
	st, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Header("X-Poll-Interval", fmt.Sprintf("%d", h.pollInterval))
	c.JSON(http.StatusOK, h.view(st))
}

type surgeRequest struct {
	Action  string            `json:"action"`
	Enabled *bool             `json:"enabled"`
	Reason  string            `json:"reason"`
	Count   *int64            `json:"count"`
	Kind    models.FunnelKind `json:"kind"`
}

func canOperate(role string) bool {
	return role == middleware.RoleAdmin || role == middleware.RolePartner
}

func (h *Surge) Post(c *gin.Context) {
	var req surgeRequest
	if !handlers.BindJSON(c, &req, false) {
		return
	}

	ctx := c.Request.Context()
	eventID := c.Param("id")
	actor := middleware.ActorFrom(c)

	switch req.Action {
	case ActionToggle, ActionAdmit:
		if !canOperate(actor.Role) {
			handlers.RespondError(c, apperr.Forbidden("action %s réservée au personnel", req.Action))
			return
		}
	}

	var (
		st  *models.SurgeState
		err error
		v   View
	)
	switch req.Action {
	case ActionToggle:
		if req.Enabled == nil {
			handlers.RespondError(c, apperr.Validation("champ enabled requis"))
			return
		}
		var changed bool
		st, changed, err = h.svc.Toggle(ctx, eventID, *req.Enabled, req.Reason, models.TriggerManual, actor)
		if err == nil {
			v = h.view(st)
			v.Changed = &changed
		}

	case ActionAdmit:
		if req.Count == nil {
			handlers.RespondError(c, apperr.Validation("champ count requis"))
			return
		}
		var moved int64
		st, moved, err = h.svc.Admit(ctx, eventID, *req.Count, actor)
		if err == nil {
			v = h.view(st)
			v.Moved = &moved
		}

	case ActionJoin:
		count := int64(1)
		if req.Count != nil {
			count = *req.Count
		}
		if err = validation.Positive("count", count); err == nil {
			st, err = h.svc.Join(ctx, eventID, count)
		}
		if err == nil {
			v = h.view(st)
		}

	case ActionFunnel:
		st, err = h.svc.RecordFunnelEvent(ctx, eventID, req.Kind)
		if err == nil {
			v = h.view(st)
		}

	default:
		err = apperr.Validation("action inconnue %q", req.Action)
	}

	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Sample : POST /api/events/:id/surge/samples, mesures du tunnel pour le
// déclenchement automatique.
func (h *Surge) Sample(c *gin.Context) {
	var s surge.Sample
	if !handlers.BindJSON(c, &s, false) {
		return
	}
	if err := validation.Struct(s); err != nil {
		handlers.RespondError(c, err)
		return
	}

	st, err := h.monitor.Observe(c.Request.Context(), c.Param("id"), s)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(st))
}
