// Package boltstore fournit un magasin de documents embarqué sur BoltDB.
// Les transactions d'écriture bolt sont sérialisées, ce qui rend Update
// atomique sans boucle de retry.
package boltstore

import (
	"context"
	"time"

	bolt "github.com/boltdb/bolt"

	"billetterie_back_end/internal/store"
)

type Store struct {
	db *bolt.DB
}

// New ouvre (ou crée) la base au chemin donné et prépare les buckets connus.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{
			store.CollectionRefunds,
			store.CollectionSurge,
			store.CollectionEventCodes,
			store.CollectionCodeKeys,
			store.CollectionAudit,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, collection, id string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return store.ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return store.ErrNotFound
		}
		// Les slices bolt ne sont valides que pendant la transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, collection, id string, fn store.MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}

		var current []byte
		if v := b.Get([]byte(id)); v != nil {
			current = append([]byte(nil), v...)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), next)
	})
}

func (s *Store) List(_ context.Context, collection string) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			out = append(out, append([]byte(nil), v...))
			return nil
		})
	})
	if out == nil {
		out = [][]byte{}
	}
	return out, err
}
