package governance

import (
	"context"

	"github.com/sirupsen/logrus"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/metrics"
	"billetterie_back_end/internal/models"
)

// Scope délimite les actions autorisées selon la surface d'appel.
type Scope string

const (
	ScopeAdmin   Scope = "admin"
	ScopePartner Scope = "partner"
)

var partnerActions = map[string]bool{
	ActionRevokeEventCode: true,
	ActionForceSurge:      true,
	ActionReleaseSurge:    true,
}

// Allowed indique si l'action peut être dispatchée depuis scope.
func Allowed(scope Scope, action string) bool {
	if scope == ScopeAdmin {
		_, ok := TierOf(action)
		return ok
	}
	return partnerActions[action]
}

type Banner interface {
	Ban(ctx context.Context, userID string) error
	Unban(ctx context.Context, userID string) error
	IsBanned(ctx context.Context, userID string) (bool, error)
}

type CodeRevoker interface {
	Revoke(ctx context.Context, id string, actor models.Actor, reason string) (*models.EventCode, bool, error)
}

type SurgeToggler interface {
	Toggle(ctx context.Context, eventID string, enabled bool, reason string, trigger models.SurgeTrigger, actor models.Actor) (*models.SurgeState, bool, error)
}

type RefundRejecter interface {
	RecordRejection(ctx context.Context, id string, approver models.Actor, reason string) (*models.RefundRequest, error)
}

// Result est renvoyé tel quel au client.
type Result struct {
	Action   string `json:"action"`
	TargetID string `json:"targetId"`
	Tier     int    `json:"tier"`
	Changed  bool   `json:"changed"`
	Data     any    `json:"data,omitempty"`
}

type Handler struct {
	bans    Banner
	codes   CodeRevoker
	surge   SurgeToggler
	refunds RefundRejecter
	trail   *audit.Trail
	log     logrus.FieldLogger
}

func NewHandler(bans Banner, codes CodeRevoker, surge SurgeToggler, refunds RefundRejecter, trail *audit.Trail, log logrus.FieldLogger) *Handler {
	return &Handler{bans: bans, codes: codes, surge: surge, refunds: refunds, trail: trail, log: log}
}

// Dispatch décode, valide puis exécute l'action. Toute tentative, réussie
// ou non, laisse une entrée d'audit avec son motif et sa preuve.
func (h *Handler) Dispatch(ctx context.Context, env Envelope, actor models.Actor, scope Scope) (*Result, error) {
	if !Allowed(scope, env.Action) {
		if _, known := TierOf(env.Action); known {
			metrics.GovernanceActions.WithLabelValues(env.Action, "forbidden").Inc()
			return nil, apperr.Forbidden("action %s réservée aux administrateurs", env.Action)
		}
		metrics.GovernanceActions.WithLabelValues("unknown", "rejected").Inc()
		return nil, apperr.Validation("action inconnue %q", env.Action)
	}

	cmd, err := Decode(env)
	if err != nil {
		metrics.GovernanceActions.WithLabelValues(env.Action, "rejected").Inc()
		return nil, err
	}

	res, err := h.execute(ctx, cmd, actor)

	entry := audit.Entry(actor, audit.ActionGovernance+"."+cmd.Kind(), cmd.Resource(), cmd.Target())
	entry.Reason = cmd.Motive().Reason
	entry.Evidence = cmd.Motive().Evidence
	log := h.log.WithFields(logrus.Fields{
		"action":    cmd.Kind(),
		"target_id": cmd.Target(),
		"tier":      cmd.Tier().String(),
		"user_id":   actor.ID,
	})
	if err != nil {
		metrics.GovernanceActions.WithLabelValues(cmd.Kind(), "failed").Inc()
		h.trail.Log(ctx, audit.Failed(entry, err))
		log.WithError(err).Warn("⚠️ Action d'administration refusée")
		return nil, err
	}

	metrics.GovernanceActions.WithLabelValues(cmd.Kind(), "applied").Inc()
	h.trail.Log(ctx, audit.Values(entry, nil, map[string]interface{}{"changed": res.Changed}))
	log.WithField("changed", res.Changed).Info("🛡️ Action d'administration appliquée")
	return res, nil
}

func (h *Handler) execute(ctx context.Context, cmd Command, actor models.Actor) (*Result, error) {
	res := &Result{Action: cmd.Kind(), TargetID: cmd.Target(), Tier: int(cmd.Tier())}

	switch c := cmd.(type) {
	case BanUser:
		if c.UserID == actor.ID {
			return nil, apperr.InvalidState("impossible de se bannir soi-même")
		}
		banned, err := h.bans.IsBanned(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		if !banned {
			if err := h.bans.Ban(ctx, c.UserID); err != nil {
				return nil, err
			}
		}
		res.Changed = !banned

	case UnbanUser:
		banned, err := h.bans.IsBanned(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		if banned {
			if err := h.bans.Unban(ctx, c.UserID); err != nil {
				return nil, err
			}
		}
		res.Changed = banned

	case RevokeEventCode:
		ec, changed, err := h.codes.Revoke(ctx, c.CodeID, actor, c.Reason)
		if err != nil {
			return nil, err
		}
		res.Changed, res.Data = changed, ec

	case ForceSurge:
		st, changed, err := h.surge.Toggle(ctx, c.EventID, true, c.Category, models.TriggerManual, actor)
		if err != nil {
			return nil, err
		}
		res.Changed, res.Data = changed, st

	case ReleaseSurge:
		st, changed, err := h.surge.Toggle(ctx, c.EventID, false, "", models.TriggerManual, actor)
		if err != nil {
			return nil, err
		}
		res.Changed, res.Data = changed, st

	case VoidRefund:
		r, err := h.refunds.RecordRejection(ctx, c.RefundID, actor, c.Reason)
		if err != nil {
			return nil, err
		}
		res.Changed, res.Data = true, r

	default:
		return nil, apperr.Validation("action non prise en charge %q", cmd.Kind())
	}
	return res, nil
}
