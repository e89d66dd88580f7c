// Package eventcodes gère les codes d'accès porte/scanner des événements.
package eventcodes

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"billetterie_back_end/internal/apperr"
	"billetterie_back_end/internal/audit"
	"billetterie_back_end/internal/models"
	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/validation"
)

// Alphabet exclut les caractères ambigus à la lecture (0/O, 1/I).
const (
	Alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 6
	QRSize     = 256
)

const maxGenerateAttempts = 10

var (
	errAlreadyRevoked = errors.New("code déjà révoqué")
	errKeyTaken       = errors.New("clé réservée par un autre code")
)

type Service struct {
	docs  store.Docs
	trail *audit.Trail
	log   logrus.FieldLogger
	now   func() time.Time
	gen   func() (string, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGenerator remplace le tirage aléatoire des codes.
func WithGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.gen = gen }
}

func NewService(docs store.Docs, trail *audit.Trail, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{docs: docs, trail: trail, log: log, now: time.Now, gen: GenerateCode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCode tire un code de CodeLength caractères dans Alphabet.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

type CreateInput struct {
	EventID string          `json:"eventId" validate:"required"`
	Type    models.CodeType `json:"type" validate:"omitempty,oneof=full scan_only"`
	Gate    string          `json:"gate" validate:"max=64"`
}

// Create émet un nouveau code, unique parmi les codes de l'événement.
func (s *Service) Create(ctx context.Context, in CreateInput, actor models.Actor) (*models.EventCode, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = models.CodeFull
	}

	id := uuid.NewString()
	code, err := s.reserve(ctx, in.EventID, id)
	if err != nil {
		return nil, err
	}

	ec := &models.EventCode{
		ID:        id,
		Code:      code,
		EventID:   in.EventID,
		Type:      in.Type,
		CreatedBy: actor.ID,
		CreatedAt: s.now().UTC(),
	}
	if gate := strings.TrimSpace(in.Gate); gate != "" {
		ec.Gate = &gate
	}
	if err := store.CreateJSON(ctx, s.docs, store.CollectionEventCodes, ec.ID, ec); err != nil {
		s.release(ctx, in.EventID, code, id)
		return nil, err
	}

	entry := audit.Entry(actor, audit.ActionCodeCreate, audit.ResourceEventCode, ec.ID)
	s.trail.Log(ctx, audit.Values(entry, nil, map[string]interface{}{
		"event_id": ec.EventID,
		"type":     ec.Type,
		"gate":     ec.Gate,
	}))
	s.log.WithFields(logrus.Fields{"event_id": ec.EventID, "code_id": ec.ID}).Info("🔑 Code d'accès créé")
	return ec, nil
}

// codeKey pointe vers le document du code. CodeID vide : clé libérée.
type codeKey struct {
	CodeID string `json:"codeId"`
}

func keyOf(eventID, code string) string {
	return eventID + ":" + code
}

// reserve réserve atomiquement un code libre pour l'événement.
func (s *Service) reserve(ctx context.Context, eventID, codeID string) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate, err := s.gen()
		if err != nil {
			return "", err
		}
		_, err = store.UpsertJSON(ctx, s.docs, store.CollectionCodeKeys, keyOf(eventID, candidate), func(k *codeKey, exists bool) error {
			if exists && k.CodeID != "" {
				return store.ErrExists
			}
			k.CodeID = codeID
			return nil
		})
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", apperr.Conflict("impossible de générer un code unique pour l'événement %s", eventID)
}

// release rend une clé réservée dont le document n'a pas pu être écrit.
func (s *Service) release(ctx context.Context, eventID, code, codeID string) {
	_, err := store.UpdateJSON(ctx, s.docs, store.CollectionCodeKeys, keyOf(eventID, code), func(k *codeKey) error {
		if k.CodeID != codeID {
			return errKeyTaken
		}
		k.CodeID = ""
		return nil
	})
	if err != nil && !errors.Is(err, errKeyTaken) {
		s.log.WithError(err).WithField("event_id", eventID).Warn("⚠️ Impossible de libérer la clé du code d'accès")
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.EventCode, error) {
	ec, err := store.GetJSON[models.EventCode](ctx, s.docs, store.CollectionEventCodes, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("code d'accès %s introuvable", id)
	}
	return ec, err
}

// List retourne les codes d'un événement, révoqués compris, du plus ancien
// au plus récent.
func (s *Service) List(ctx context.Context, eventID string) ([]models.EventCode, error) {
	if eventID == "" {
		return nil, apperr.Validation("eventId manquant")
	}
	all, err := store.ListJSON[models.EventCode](ctx, s.docs, store.CollectionEventCodes)
	if err != nil {
		return nil, err
	}
	codes := make([]models.EventCode, 0)
	for _, c := range all {
		if c.EventID == eventID {
			codes = append(codes, c)
		}
	}
	sort.SliceStable(codes, func(i, j int) bool { return codes[i].CreatedAt.Before(codes[j].CreatedAt) })
	return codes, nil
}

// Revoke est définitif et idempotent : un second appel ne change rien et
// retourne changed=false.
func (s *Service) Revoke(ctx context.Context, id string, actor models.Actor, reason string) (*models.EventCode, bool, error) {
	now := s.now().UTC()
	ec, err := store.UpdateJSON(ctx, s.docs, store.CollectionEventCodes, id, func(ec *models.EventCode) error {
		if ec.IsRevoked {
			return errAlreadyRevoked
		}
		ec.IsRevoked = true
		ec.RevokedAt = &now
		ec.RevokedBy = actor.ID
		return nil
	})
	if errors.Is(err, errAlreadyRevoked) {
		current, err := s.Get(ctx, id)
		return current, false, err
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, apperr.NotFound("code d'accès %s introuvable", id)
	}
	if err != nil {
		return nil, false, storeErr(err)
	}

	entry := audit.Entry(actor, audit.ActionCodeRevoke, audit.ResourceEventCode, id)
	entry.Reason = reason
	s.trail.Log(ctx, audit.Values(entry,
		map[string]bool{"is_revoked": false},
		map[string]bool{"is_revoked": true}))
	s.log.WithFields(logrus.Fields{"event_id": ec.EventID, "code_id": id}).Warn("🚫 Code d'accès révoqué")
	return ec, true, nil
}

type ScanInput struct {
	EventID string `json:"eventId" validate:"required"`
	Code    string `json:"code" validate:"required,len=6"`
	Gate    string `json:"gate"`
}

// RecordScan enregistre un passage. Un code révoqué ou présenté à une
// autre porte que la sienne est refusé.
func (s *Service) RecordScan(ctx context.Context, in ScanInput) (*models.EventCode, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	key, err := store.GetJSON[codeKey](ctx, s.docs, store.CollectionCodeKeys, keyOf(in.EventID, in.Code))
	if errors.Is(err, store.ErrNotFound) || (err == nil && key.CodeID == "") {
		return nil, apperr.NotFound("code %s inconnu pour cet événement", in.Code)
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ec, err := store.UpdateJSON(ctx, s.docs, store.CollectionEventCodes, key.CodeID, func(ec *models.EventCode) error {
		if ec.IsRevoked {
			return apperr.InvalidState("code %s révoqué", ec.Code)
		}
		if ec.Gate != nil && in.Gate != "" && *ec.Gate != in.Gate {
			return apperr.InvalidState("code %s réservé à la porte %s", ec.Code, *ec.Gate)
		}
		ec.UsageCount++
		ec.LastUsedAt = &now
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return ec, nil
}

// QR rend le code en PNG pour impression.
func (s *Service) QR(ctx context.Context, id string) ([]byte, error) {
	ec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ec.IsRevoked {
		return nil, apperr.InvalidState("code %s révoqué", ec.Code)
	}
	return qrcode.Encode(ec.EventID+":"+ec.Code, qrcode.Medium, QRSize)
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return apperr.Conflict("code modifié simultanément, réessayez")
	}
	return err
}
