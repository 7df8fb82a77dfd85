package redisad

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Markers keeps per-device markers as plain keys with a TTL, which gives the
// cookie-style expiry for free.
type Markers struct{ c *redis.Client }

func NewMarkers(c *redis.Client) *Markers { return &Markers{c: c} }

func markerKey(device, name string) string { return "marker:" + device + ":" + name }

func (m *Markers) Get(ctx context.Context, device, name string) (string, bool, error) {
	v, err := m.c.Get(ctx, markerKey(device, name)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (m *Markers) Set(ctx context.Context, device, name, value string, ttl time.Duration) error {
	return m.c.Set(ctx, markerKey(device, name), value, ttl).Err()
}

func (m *Markers) Clear(ctx context.Context, device, name string) error {
	return m.c.Del(ctx, markerKey(device, name)).Err()
}
