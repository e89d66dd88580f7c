// Package settlement règle auprès de la passerelle de paiement les
// remboursements approuvés.
//
// Une demande approuvée est mise en file ; un worker la passe en processing,
// appelle la passerelle puis la clôt (completed/failed) ou attend le webhook
// Stripe. Aucun échec n'est rejoué automatiquement.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull est renvoyé par la file mémoire saturée.
var ErrQueueFull = errors.New("file de règlement pleine")

type Queue interface {
	Enqueue(ctx context.Context, refundID string) error
	// Dequeue bloque au plus wait ; ("", nil) signifie qu'aucun travail
	// n'est arrivé.
	Dequeue(ctx context.Context, wait time.Duration) (string, error)
}

const redisQueueKey = "settlement:queue"

// RedisQueue est une liste Redis partagée entre instances (LPUSH / BRPOP).
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: redisQueueKey}
}

func (q *RedisQueue) Enqueue(ctx context.Context, refundID string) error {
	return q.client.LPush(ctx, q.key, refundID).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPOP retourne [clé, valeur].
	return res[1], nil
}

// MemoryQueue sert l'instance unique (backends memory et bolt). Son contenu
// est perdu au redémarrage : les demandes restées approved se remettent en
// file à la main.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan string, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, refundID string) error {
	select {
	case q.ch <- refundID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (string, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case id := <-q.ch:
		return id, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryQueue) Len() int { return len(q.ch) }
