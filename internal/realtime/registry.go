package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Registry is the shared connection registry. Every process records the
// connections it holds here so presence is visible cluster-wide. Entries are
// keyed by an opaque connection id; registration is at-least-once (SADD is
// idempotent) and unregistration of an unknown id is a no-op.
type Registry struct {
	rdb *redis.Client
}

func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb}
}

func userKey(userID string) string { return "conn:user:" + userID }
func roomKey(roomID string) string { return "conn:room:" + roomID }

func (r *Registry) Register(ctx context.Context, userID, roomID, connID string) error {
	if err := r.rdb.SAdd(ctx, userKey(userID), connID).Err(); err != nil {
		return fmt.Errorf("register user connection: %w", err)
	}
	if roomID != "" {
		if err := r.rdb.SAdd(ctx, roomKey(roomID), connID).Err(); err != nil {
			return fmt.Errorf("register room connection: %w", err)
		}
	}
	return nil
}

func (r *Registry) Unregister(ctx context.Context, userID, roomID, connID string) error {
	if err := r.rdb.SRem(ctx, userKey(userID), connID).Err(); err != nil {
		return fmt.Errorf("unregister user connection: %w", err)
	}
	if roomID != "" {
		// Redis drops empty sets, so removing the last member also removes
		// the room entry.
		if err := r.rdb.SRem(ctx, roomKey(roomID), connID).Err(); err != nil {
			return fmt.Errorf("unregister room connection: %w", err)
		}
	}
	return nil
}

// RoomConnections lists the connection ids registered for a room across all
// processes.
func (r *Registry) RoomConnections(ctx context.Context, roomID string) ([]string, error) {
	return r.rdb.SMembers(ctx, roomKey(roomID)).Result()
}

// UserOnline reports whether any process currently holds a connection for
// the user.
func (r *Registry) UserOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.rdb.SCard(ctx, userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
