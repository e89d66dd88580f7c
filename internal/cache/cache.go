// Package cache regroupe l'état éphémère partagé entre instances :
// bannissements d'utilisateurs et compteurs de limitation de débit.
package cache

import (
	"context"
	"sync"
	"time"
)

type Bans interface {
	Ban(ctx context.Context, userID string) error
	Unban(ctx context.Context, userID string) error
	IsBanned(ctx context.Context, userID string) (bool, error)
}

type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
}

var (
	_ Bans    = (*Redis)(nil)
	_ Counter = (*Redis)(nil)
	_ Bans    = (*Local)(nil)
	_ Counter = (*Local)(nil)
)

// Local remplace Redis sur une instance unique (backends memory et bolt).
type Local struct {
	mu       sync.Mutex
	banned   map[string]bool
	counters map[string]*window
	now      func() time.Time
}

type window struct {
	count   int64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{
		banned:   make(map[string]bool),
		counters: make(map[string]*window),
		now:      time.Now,
	}
}

func (l *Local) Ban(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.banned[userID] = true
	return nil
}

func (l *Local) Unban(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.banned, userID)
	return nil
}

func (l *Local) IsBanned(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.banned[userID], nil
}

func (l *Local) Hit(_ context.Context, key string, ttl time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.counters[key]
	if !ok || now.After(w.expires) {
		w = &window{expires: now.Add(ttl)}
		l.counters[key] = w
	}
	w.count++
	return w.count, nil
}

func (l *Local) Count(_ context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters[key]
	if !ok || l.now().After(w.expires) {
		return 0, nil
	}
	return w.count, nil
}
