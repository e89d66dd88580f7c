// Package governance décode et valide les actions d'administration.
//
// Chaque action est une commande typée portant son niveau d'exigence
// (Tier) ; le motif et la preuve sont contrôlés par internal/validation,
// les mêmes règles que celles appliquées côté client.
package governance

import (
	"bytes"
	"encoding/json"
	"strings"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/validation"
)

const (
	ActionBanUser         = "ban_user"
	ActionUnbanUser       = "unban_user"
	ActionRevokeEventCode = "revoke_event_code"
	ActionForceSurge      = "force_surge"
	ActionReleaseSurge    = "release_surge"
	ActionVoidRefund      = "void_refund"
)

// Envelope est le corps reçu sur /api/admin/actions et /api/actions.
type Envelope struct {
	Action   string          `json:"action"`
	TargetID string          `json:"targetId"`
	Reason   string          `json:"reason"`
	Evidence string          `json:"evidence,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

type Command interface {
	Kind() string
	Tier() validation.Tier
	Target() string
	Resource() string
	Motive() Justification
	Validate() error
}

// Justification regroupe le motif et la preuve communs à toutes les commandes.
type Justification struct {
	Reason   string
	Evidence string
}

func (j Justification) Motive() Justification { return j }

func (j Justification) check(tier validation.Tier) error {
	if err := validation.Reason(j.Reason, tier); err != nil {
		return err
	}
	return validation.Evidence(j.Evidence, tier)
}

type BanUser struct {
	UserID string
	Justification
}

func (BanUser) Kind() string { return ActionBanUser }
func (BanUser) Tier() validation.Tier { return validation.Tier2 }
func (BanUser) Resource() string { return audit.ResourceUser }
func (c BanUser) Target() string { return c.UserID }
func (c BanUser) Validate() error { return c.check(c.Tier()) }

type UnbanUser struct {
	UserID string
	Justification
}

func (UnbanUser) Kind() string { return ActionUnbanUser }
func (UnbanUser) Tier() validation.Tier { return validation.Tier1 }
func (UnbanUser) Resource() string { return audit.ResourceUser }
func (c UnbanUser) Target() string { return c.UserID }
func (c UnbanUser) Validate() error { return c.check(c.Tier()) }

type RevokeEventCode struct {
	CodeID string
	Justification
}

func (RevokeEventCode) Kind() string { return ActionRevokeEventCode }
func (RevokeEventCode) Tier() validation.Tier { return validation.Tier1 }
func (RevokeEventCode) Resource() string { return audit.ResourceEventCode }
func (c RevokeEventCode) Target() string { return c.CodeID }
func (c RevokeEventCode) Validate() error { return c.check(c.Tier()) }

// ForceSurge place un événement en surcharge à la main. Category est le
// jeton snake_case affiché aux partenaires.
type ForceSurge struct {
	EventID  string
	Category string
	Justification
}

type forceSurgeParams struct {
	Category string `json:"category"`
}

func (ForceSurge) Kind() string { return ActionForceSurge }
func (ForceSurge) Tier() validation.Tier { return validation.Tier2 }
func (ForceSurge) Resource() string { return audit.ResourceSurge }
func (c ForceSurge) Target() string { return c.EventID }

func (c ForceSurge) Validate() error {
	if c.Category != "" {
		if err := validation.SurgeReason(c.Category); err != nil {
			return err
		}
	}
	return c.check(c.Tier())
}

type ReleaseSurge struct {
	EventID string
	Justification
}

func (ReleaseSurge) Kind() string { return ActionReleaseSurge }
func (ReleaseSurge) Tier() validation.Tier { return validation.Tier1 }
func (ReleaseSurge) Resource() string { return audit.ResourceSurge }
func (c ReleaseSurge) Target() string { return c.EventID }
func (c ReleaseSurge) Validate() error { return c.check(c.Tier()) }

// VoidRefund rejette d'autorité une demande encore en attente.
type VoidRefund struct {
	RefundID string
	Justification
}

func (VoidRefund) Kind() string { return ActionVoidRefund }
func (VoidRefund) Tier() validation.Tier { return validation.Tier3 }
func (VoidRefund) Resource() string { return audit.ResourceRefund }
func (c VoidRefund) Target() string { return c.RefundID }
func (c VoidRefund) Validate() error { return c.check(c.Tier()) }

// TierOf retourne le niveau d'une action connue.
func TierOf(action string) (validation.Tier, bool) {
	switch action {
	case ActionBanUser, ActionForceSurge:
		return validation.Tier2, true
	case ActionUnbanUser, ActionRevokeEventCode, ActionReleaseSurge:
		return validation.Tier1, true
	case ActionVoidRefund:
		return validation.Tier3, true
	}
	return 0, false
}

// Decode transforme l'enveloppe en commande typée et la valide.
func Decode(env Envelope) (Command, error) {
	target := strings.TrimSpace(env.TargetID)
	if target == "" {
		return nil, apperr.Validation("targetId requis")
	}
	j := Justification{
		Reason:   strings.TrimSpace(env.Reason),
		Evidence: strings.TrimSpace(env.Evidence),
	}

	var cmd Command
	switch env.Action {
	case ActionBanUser:
		cmd = BanUser{UserID: target, Justification: j}
	case ActionUnbanUser:
		cmd = UnbanUser{UserID: target, Justification: j}
	case ActionRevokeEventCode:
		cmd = RevokeEventCode{CodeID: target, Justification: j}
	case ActionForceSurge:
		var p forceSurgeParams
		if err := decodeParams(env.Params, &p); err != nil {
			return nil, err
		}
		cmd = ForceSurge{EventID: target, Category: strings.TrimSpace(p.Category), Justification: j}
	case ActionReleaseSurge:
		cmd = ReleaseSurge{EventID: target, Justification: j}
	case ActionVoidRefund:
		cmd = VoidRefund{RefundID: target, Justification: j}
	default:
		return nil, apperr.Validation("action inconnue %q", env.Action)
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("params invalides: %v", err)
	}
	return nil
}
