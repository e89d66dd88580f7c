package store

import (
	"context"
	"sort"
	"sync"
)

// Memory est un backend en mémoire, sérialisé par un verrou unique.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, collection, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fn MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.docs[collection]
	if !ok {
		col = make(map[string][]byte)
		m.docs[collection] = col
	}

	var current []byte
	if raw, ok := col[id]; ok {
		current = append([]byte(nil), raw...)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	col[id] = next
	return nil
}

func (m *Memory) List(_ context.Context, collection string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.docs[collection]))
	for id := range m.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]byte(nil), m.docs[collection][id]...))
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
