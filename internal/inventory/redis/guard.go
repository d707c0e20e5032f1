package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Guard is a fast-path gate in front of the seat map's conditional update.
// A SetNX key per seat with the hold's TTL rejects most losing contenders
// before they reach the database; the versioned seat map update remains the
// source of truth.
type Guard struct {
	Client *redis.Client
}

func NewGuard(client *redis.Client) *Guard {
	return &Guard{Client: client}
}

func seatKey(showInstanceID string, seat int) string {
	return fmt.Sprintf("seat_hold:%s:%d", showInstanceID, seat)
}

// TryLock claims every seat or none. It returns the seats that were already
// claimed by someone else; the caller treats a non-empty result as a
// conflict.
func (g *Guard) TryLock(ctx context.Context, showInstanceID string, seats []int, token string, ttl time.Duration) ([]int, error) {
	var locked []int
	for _, seat := range seats {
		ok, err := g.Client.SetNX(ctx, seatKey(showInstanceID, seat), token, ttl).Result()
		if err != nil {
			g.unlock(ctx, showInstanceID, locked, token)
			return nil, err
		}
		if !ok {
			g.unlock(ctx, showInstanceID, locked, token)
			return []int{seat}, nil
		}
		locked = append(locked, seat)
	}
	return nil, nil
}

// Unlock removes the per-seat keys owned by the given token. Keys held by
// another token are left alone; missing keys are ignored.
func (g *Guard) Unlock(ctx context.Context, showInstanceID string, seats []int, token string) error {
	var firstErr error
	for _, seat := range seats {
		if err := g.unlockOne(ctx, showInstanceID, seat, token); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *Guard) unlock(ctx context.Context, showInstanceID string, seats []int, token string) {
	for _, seat := range seats {
		_ = g.unlockOne(ctx, showInstanceID, seat, token)
	}
}

func (g *Guard) unlockOne(ctx context.Context, showInstanceID string, seat int, token string) error {
	key := seatKey(showInstanceID, seat)
	val, err := g.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // lock expired or never taken
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err = g.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
