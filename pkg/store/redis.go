// Package store persists the peer's registers across restarts.
package store

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/golang/glog"

	"github.com/robotalks/fxlink/pkg/comm"
	"github.com/robotalks/fxlink/pkg/msgs"
)

// DefaultKey is the hash holding device -> value.
const DefaultKey = "fx:registers"

type hashClient interface {
	HGetAll(key string) *redis.StringStringMapCmd
	HSet(key, field string, value interface{}) *redis.BoolCmd
	Close() error
}

// RedisStore keeps registers in a Redis hash.
type RedisStore struct {
	Key string

	client hashClient
}

// NewRedisStore connects by URL, e.g. redis://localhost:6379/0.
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{Key: DefaultKey, client: redis.NewClient(opts)}, nil
}

// Load copies stored registers into r and returns the number loaded.
// Entries that don't look like a device and hex value are skipped.
func (s *RedisStore) Load(r *comm.Registers) (int, error) {
	values, err := s.client.HGetAll(s.Key).Result()
	if err != nil {
		return 0, err
	}
	var n int
	for device, value := range values {
		if !msgs.ValidDeviceName(device) || !msgs.IsHex(value) {
			glog.Warningf("store: skip %q = %q", device, value)
			continue
		}
		r.Set(device, value)
		n++
	}
	return n, nil
}

// RegisterChanged implements comm.RegisterNotifier.
func (s *RedisStore) RegisterChanged(ctx context.Context, change comm.RegisterChange) {
	if err := s.client.HSet(s.Key, change.Device, change.New).Err(); err != nil {
		glog.Errorf("store: save %s: %v", change.Device, err)
	}
}

// Close implements io.Closer.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
