package client

import (
	"context"
	"sync"
	"time"
)

// Entity est la copie locale d'une ressource serveur. Set et Refresh
// remplacent la valeur d'un bloc ; les abonnés sont prévenus à chaque
// changement.
type Entity[T any] struct {
	fetch func(ctx context.Context) (T, error)
	now   func() time.Time

	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	loaded    bool
	nextSub   int
	subs      map[int]func(T)
}

func NewEntity[T any](fetch func(ctx context.Context) (T, error)) *Entity[T] {
	return &Entity[T]{fetch: fetch, now: time.Now, subs: make(map[int]func(T))}
}

// Get retourne la dernière valeur connue et son âge. ok est faux tant
// qu'aucune valeur n'a été chargée.
func (e *Entity[T]) Get() (value T, age time.Duration, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.loaded {
		return value, 0, false
	}
	return e.value, e.now().Sub(e.fetchedAt), true
}

// Refresh recharge la valeur depuis le serveur. En cas d'échec la copie
// précédente est conservée.
func (e *Entity[T]) Refresh(ctx context.Context) (T, error) {
	v, err := e.fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	e.Set(v)
	return v, nil
}

// Set enregistre une valeur renvoyée par le serveur (réponse d'une mutation).
func (e *Entity[T]) Set(v T) {
	e.mu.Lock()
	e.value = v
	e.fetchedAt = e.now()
	e.loaded = true
	subs := make([]func(T), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe enregistre fn et retourne la fonction de désabonnement.
func (e *Entity[T]) Subscribe(fn func(T)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Poll rafraîchit à intervalle fixe jusqu'à l'annulation de ctx. Les erreurs
// sont remises à onErr et le sondage continue au tick suivant.
func (e *Entity[T]) Poll(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.Refresh(ctx); err != nil && ctx.Err() == nil && onErr != nil {
			onErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
