// Package store définit le magasin de documents JSON sur lequel reposent
// refunds, surge, codes d'accès et piste d'audit.
//
// Chaque backend garantit que Update est un read-modify-write atomique par
// document : deux Update concurrents sur la même clé sont sérialisés, aucune
// mise à jour n'est perdue.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CollectionRefunds    = "refunds"
	CollectionSurge      = "surge"
	CollectionEventCodes = "event_codes"
	// CollectionCodeKeys indexe les codes par "eventId:code".
	CollectionCodeKeys   = "event_code_keys"
	CollectionAudit      = "audit_logs"
)

var (
	ErrNotFound = errors.New("document introuvable")
	ErrExists   = errors.New("document déjà existant")
	// ErrConflict signale qu'un backend optimiste a épuisé ses tentatives.
	ErrConflict = errors.New("conflit d'écriture concurrente")
)

// MaxCASAttempts borne les boucles compare-and-set des backends optimistes.
const MaxCASAttempts = 32

// MutateFunc reçoit le document courant (nil s'il n'existe pas) et retourne
// la nouvelle version. Une erreur annule l'écriture et remonte telle quelle.
type MutateFunc func(current []byte) ([]byte, error)

type Docs interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Update(ctx context.Context, collection, id string, fn MutateFunc) error
	List(ctx context.Context, collection string) ([][]byte, error)
	Close() error
}

// GetJSON charge un document et le décode dans T.
func GetJSON[T any](ctx context.Context, d Docs, collection, id string) (*T, error) {
	raw, err := d.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("décodage %s/%s: %w", collection, id, err)
	}
	return &v, nil
}

// CreateJSON insère v sous id, ErrExists si la clé est déjà prise.
func CreateJSON[T any](ctx context.Context, d Docs, collection, id string, v *T) error {
	return d.Update(ctx, collection, id, func(current []byte) ([]byte, error) {
		if current != nil {
			return nil, ErrExists
		}
		return json.Marshal(v)
	})
}

// UpdateJSON applique fn de façon atomique au document existant et retourne
// l'état committé. ErrNotFound si le document n'existe pas.
func UpdateJSON[T any](ctx context.Context, d Docs, collection, id string, fn func(*T) error) (*T, error) {
	return UpsertJSON(ctx, d, collection, id, func(v *T, exists bool) error {
		if !exists {
			return ErrNotFound
		}
		return fn(v)
	})
}

// UpsertJSON applique fn au document courant, ou à la valeur zéro de T
// quand il n'existe pas encore.
func UpsertJSON[T any](ctx context.Context, d Docs, collection, id string, fn func(v *T, exists bool) error) (*T, error) {
	var committed T
	err := d.Update(ctx, collection, id, func(current []byte) ([]byte, error) {
		var v T
		if current != nil {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("décodage %s/%s: %w", collection, id, err)
			}
		}
		if err := fn(&v, current != nil); err != nil {
			return nil, err
		}
		committed = v
		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}
	return &committed, nil
}

// ListJSON décode tous les documents d'une collection.
func ListJSON[T any](ctx context.Context, d Docs, collection string) ([]T, error) {
	raws, err := d.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("décodage %s: %w", collection, err)
		}
		items = append(items, v)
	}
	return items, nil
}
