package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis porte les bannissements et les compteurs de débit sur un client partagé.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func banKey(userID string) string {
	return fmt.Sprintf("banned:%s", userID)
}

// Ban bannit un utilisateur (sans expiration).
func (r *Redis) Ban(ctx context.Context, userID string) error {
	return r.client.Set(ctx, banKey(userID), "true", 0).Err()
}

func (r *Redis) Unban(ctx context.Context, userID string) error {
	return r.client.Del(ctx, banKey(userID)).Err()
}

func (r *Redis) IsBanned(ctx context.Context, userID string) (bool, error) {
	exists, err := r.client.Exists(ctx, banKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Hit incrémente le compteur de key et retourne sa valeur. La fenêtre
// démarre au premier appel.
func (r *Redis) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Count lit le compteur sans l'incrémenter.
func (r *Redis) Count(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}
