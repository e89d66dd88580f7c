package client

import (
	"context"
	"net/http"
	"net/url"

	"billetterie_back_end/internal/eventcodes"
	"billetterie_back_end/internal/governance"
	"billetterie_back_end/internal/handlers/events"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/refunds"
	"billetterie_back_end/internal/validation"
)

type refundEnvelope struct {
	Message string       `json:"message"`
	Refund  refunds.View `json:"refund"`
}

type refundList struct {
	Refunds []refunds.View `json:"refunds"`
	Count   int            `json:"count"`
}

// ListRefunds : status vide vaut "pending".
func (c *Client) ListRefunds(ctx context.Context, status string) ([]refunds.View, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	var out refundList
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/refunds", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Refunds, nil
}

func (c *Client) GetRefund(ctx context.Context, id string) (*refunds.View, error) {
	var out refundEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/refunds/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Refund, nil
}

func (c *Client) CreateRefund(ctx context.Context, in refunds.CreateInput) (*refunds.View, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var out refundEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/refunds", nil, in, &out); err != nil {
		return nil, err
	}
	return &out.Refund, nil
}

// ApproveRefund ajoute la signature de l'appelant. Une seconde signature du
// même administrateur rend une erreur comparable à apperr.ErrDuplicateApprover.
func (c *Client) ApproveRefund(ctx context.Context, id string) (*refunds.View, error) {
	var out refundEnvelope
	err := c.exclusive("refund:"+id, func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/admin/refunds/"+url.PathEscape(id)+"/approve", nil, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out.Refund, nil
}

// RejectRefund : un motif vide est remplacé par le motif par défaut.
func (c *Client) RejectRefund(ctx context.Context, id, reason string) (*refunds.View, error) {
	body := map[string]string{"reason": validation.RejectionReason(reason)}
	var out refundEnvelope
	err := c.exclusive("refund:"+id, func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/admin/refunds/"+url.PathEscape(id)+"/reject", nil, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out.Refund, nil
}

// RefundEntity suit une demande de remboursement.
func (c *Client) RefundEntity(id string) *Entity[refunds.View] {
	return NewEntity(func(ctx context.Context) (refunds.View, error) {
		v, err := c.GetRefund(ctx, id)
		if err != nil {
			return refunds.View{}, err
		}
		return *v, nil
	})
}

func (c *Client) GetSurge(ctx context.Context, eventID string) (*events.View, error) {
	var out events.View
	if err := c.doJSON(ctx, http.MethodGet, "/api/events/"+url.PathEscape(eventID)+"/surge", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type surgeBody struct {
	Action  string `json:"action"`
	Enabled *bool  `json:"enabled,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Count   *int64 `json:"count,omitempty"`
}

func (c *Client) postSurge(ctx context.Context, eventID string, body surgeBody) (*events.View, error) {
	var out events.View
	err := c.exclusive("surge:"+eventID, func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/events/"+url.PathEscape(eventID)+"/surge", nil, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleSurge active ou désactive le mode surcharge. reason est un jeton
// snake_case, facultatif.
func (c *Client) ToggleSurge(ctx context.Context, eventID string, enabled bool, reason string) (*events.View, error) {
	if enabled && reason != "" {
		if err := validation.SurgeReason(reason); err != nil {
			return nil, err
		}
	}
	return c.postSurge(ctx, eventID, surgeBody{Action: events.ActionToggle, Enabled: &enabled, Reason: reason})
}

// Admit fait passer jusqu'à count acheteurs de la salle d'attente.
func (c *Client) Admit(ctx context.Context, eventID string, count int64) (*events.View, error) {
	if err := validation.Positive("count", count); err != nil {
		return nil, err
	}
	return c.postSurge(ctx, eventID, surgeBody{Action: events.ActionAdmit, Count: &count})
}

// SurgeEntity suit l'état de surcharge d'un événement.
func (c *Client) SurgeEntity(eventID string) *Entity[events.View] {
	return NewEntity(func(ctx context.Context) (events.View, error) {
		v, err := c.GetSurge(ctx, eventID)
		if err != nil {
			return events.View{}, err
		}
		return *v, nil
	})
}

func (c *Client) ListEventCodes(ctx context.Context, eventID string) ([]models.EventCode, error) {
	var out struct {
		Codes []models.EventCode `json:"codes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/event-codes", url.Values{"eventId": {eventID}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

func (c *Client) CreateEventCode(ctx context.Context, in eventcodes.CreateInput) (*models.EventCode, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var out struct {
		Code models.EventCode `json:"code"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/event-codes", nil, in, &out); err != nil {
		return nil, err
	}
	return &out.Code, nil
}

// RevokeEventCode est idempotent ; changed est faux si le code était déjà révoqué.
func (c *Client) RevokeEventCode(ctx context.Context, id, reason string) (code *models.EventCode, changed bool, err error) {
	var out struct {
		Changed bool             `json:"changed"`
		Code    models.EventCode `json:"code"`
	}
	q := url.Values{"id": {id}}
	if reason != "" {
		q.Set("reason", reason)
	}
	err = c.exclusive("event_code:"+id, func() error {
		return c.doJSON(ctx, http.MethodDelete, "/api/event-codes", q, nil, &out)
	})
	if err != nil {
		return nil, false, err
	}
	return &out.Code, out.Changed, nil
}

// Act envoie une action de gouvernance, validée localement avec les mêmes
// règles que le serveur. admin choisit /api/admin/actions plutôt que /api/actions.
func (c *Client) Act(ctx context.Context, env governance.Envelope, admin bool) (*governance.Result, error) {
	if _, err := governance.Decode(env); err != nil {
		return nil, err
	}
	path := "/api/actions"
	if admin {
		path = "/api/admin/actions"
	}
	var out governance.Result
	err := c.exclusive(env.Action+":"+env.TargetID, func() error {
		return c.doJSON(ctx, http.MethodPost, path, nil, env, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
