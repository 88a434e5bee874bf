package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSelection means the user has not picked a device yet (or it expired).
var ErrNoSelection = errors.New("no active device selected")

// ActiveDeviceStore remembers which device each user has selected.
type ActiveDeviceStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewActiveDeviceStore returns a redis-backed store. ttl <= 0 keeps selections forever.
func NewActiveDeviceStore(client redis.Cmdable, ttl time.Duration) *ActiveDeviceStore {
	if ttl < 0 {
		ttl = 0
	}
	return &ActiveDeviceStore{client: client, ttl: ttl}
}

func (s *ActiveDeviceStore) key(userID int64) string {
	return fmt.Sprintf("plug:active-device:%d", userID)
}

// Save records deviceID as the user's selection.
func (s *ActiveDeviceStore) Save(ctx context.Context, userID int64, deviceID string) error {
	return s.client.Set(ctx, s.key(userID), deviceID, s.ttl).Err()
}

// Get returns the selected device id.
func (s *ActiveDeviceStore) Get(ctx context.Context, userID int64) (string, error) {
	id, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoSelection
		}
		return "", err
	}
	return id, nil
}

// Delete forgets the selection.
func (s *ActiveDeviceStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}
