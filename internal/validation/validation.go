// Package validation regroupe les règles d'entrée appliquées par le serveur.
// Le client Go appelle les mêmes fonctions avant soumission : c'est une
// optimisation d'ergonomie, le serveur reste la source de vérité.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"billetterie_back_end/internal/apperr"
)

// Tier mesure le niveau de justification exigé par une action d'administration.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

const (
	MinReasonLength          = 5
	MinEscalatedReasonLength = 20
	MaxReasonLength          = 1000
)

// DefaultRejectionReason est utilisé quand l'appelant ne fournit pas de motif.
const DefaultRejectionReason = "Rejected by administrator"

var snakeToken = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("snake_token", func(fl validator.FieldLevel) bool {
		return snakeToken.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("evidence_url", func(fl validator.FieldLevel) bool {
		return EvidenceURL(fl.Field().String()) == nil
	})
	return v
}

// Struct valide les tags `validate` de v et traduit la première faute.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return apperr.Validation("champ %s invalide (%s=%s)", fe.Field(), fe.Tag(), fe.Param())
		}
		return apperr.Validation("champ %s invalide (%s)", fe.Field(), fe.Tag())
	}
	return apperr.Validation("données invalides: %v", err)
}

// Reason contrôle la longueur du motif selon le palier.
func Reason(reason string, tier Tier) error {
	reason = strings.TrimSpace(reason)
	minLen := MinReasonLength
	if tier >= Tier2 {
		minLen = MinEscalatedReasonLength
	}
	n := utf8.RuneCountInString(reason)
	if n < minLen {
		return apperr.Validation("le motif doit contenir au moins %d caractères", minLen)
	}
	if n > MaxReasonLength {
		return apperr.Validation("le motif dépasse %d caractères", MaxReasonLength)
	}
	return nil
}

// Evidence exige une URL de preuve à partir du palier 2.
func Evidence(evidence string, tier Tier) error {
	evidence = strings.TrimSpace(evidence)
	if tier < Tier2 {
		if evidence == "" {
			return nil
		}
		return EvidenceURL(evidence)
	}
	if evidence == "" {
		return apperr.Validation("une URL de preuve est obligatoire pour une action de palier %d", tier)
	}
	return EvidenceURL(evidence)
}

// EvidenceURL impose un lien http(s) absolu.
func EvidenceURL(raw string) error {
	if !strings.HasPrefix(raw, "http") {
		return apperr.Validation("la preuve doit être une URL http(s)")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.Validation("URL de preuve invalide: %q", raw)
	}
	return nil
}

// SurgeReason impose un jeton de catégorie snake_case (queue_depth, payment_latency...).
func SurgeReason(reason string) error {
	if !snakeToken.MatchString(reason) {
		return apperr.Validation("motif de surcharge invalide %q, attendu un jeton snake_case", reason)
	}
	return nil
}

// RejectionReason retourne le motif effectif d'un rejet.
func RejectionReason(reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return DefaultRejectionReason
}

// Positive refuse les quantités nulles ou négatives.
func Positive(name string, n int64) error {
	if n <= 0 {
		return apperr.Validation("%s doit être strictement positif", name)
	}
	return nil
}

func (t Tier) String() string {
	return fmt.Sprintf("tier-%d", int(t))
}
