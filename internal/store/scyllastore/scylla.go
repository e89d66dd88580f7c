// Package scyllastore range les documents dans ScyllaDB. Update s'appuie sur
// les transactions légères (LWT) : INSERT ... IF NOT EXISTS pour la création,
// UPDATE ... IF version = ? pour la modification.
package scyllastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"billetterie_back_end/internal/store"
)

const schemaDocuments = `CREATE TABLE IF NOT EXISTS documents (
	collection text,
	id text,
	body blob,
	version bigint,
	PRIMARY KEY ((collection), id)
)`

type Store struct {
	session *gocql.Session
}

func New(session *gocql.Session) *Store {
	return &Store{session: session}
}

// EnsureSchema crée la table des documents si elle n'existe pas encore.
func EnsureSchema(session *gocql.Session) error {
	if err := session.Query(schemaDocuments).Exec(); err != nil {
		return fmt.Errorf("création table documents: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	body, _, err := s.read(ctx, collection, id)
	return body, err
}

func (s *Store) read(ctx context.Context, collection, id string) ([]byte, int64, error) {
	var (
		body    []byte
		version int64
	)
	err := s.session.Query(`SELECT body, version FROM documents WHERE collection = ? AND id = ?`,
		collection, id).
		WithContext(ctx).
		Consistency(gocql.Consistency(gocql.LocalSerial)).
		Scan(&body, &version)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, 0, store.ErrNotFound
	}
	return body, version, err
}

// Update peut appeler fn plusieurs fois ; fn ne doit pas avoir d'effet de bord.
func (s *Store) Update(ctx context.Context, collection, id string, fn store.MutateFunc) error {
	for attempt := 0; attempt < store.MaxCASAttempts; attempt++ {
		current, version, err := s.read(ctx, collection, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var q *gocql.Query
		if current == nil {
			q = s.session.Query(`INSERT INTO documents (collection, id, body, version) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
				collection, id, next, int64(1))
		} else {
			q = s.session.Query(`UPDATE documents SET body = ?, version = ? WHERE collection = ? AND id = ? IF version = ?`,
				next, version+1, collection, id, version)
		}

		applied, err := q.WithContext(ctx).MapScanCAS(make(map[string]interface{}))
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}
	return store.ErrConflict
}

func (s *Store) List(ctx context.Context, collection string) ([][]byte, error) {
	iter := s.session.Query(`SELECT body FROM documents WHERE collection = ?`, collection).
		WithContext(ctx).
		Iter()

	out := [][]byte{}
	var body []byte
	for iter.Scan(&body) {
		out = append(out, append([]byte(nil), body...))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	s.session.Close()
	return nil
}
