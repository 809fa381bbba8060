package store

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fxlink/pkg/comm"
)

type fakeHash struct {
	values map[string]map[string]string
	err    error
	closed bool
}

func (h *fakeHash) HGetAll(key string) *redis.StringStringMapCmd {
	return redis.NewStringStringMapResult(h.values[key], h.err)
}

func (h *fakeHash) HSet(key, field string, value interface{}) *redis.BoolCmd {
	if h.err != nil {
		return redis.NewBoolResult(false, h.err)
	}
	if h.values[key] == nil {
		h.values[key] = make(map[string]string)
	}
	_, existed := h.values[key][field]
	h.values[key][field] = value.(string)
	return redis.NewBoolResult(!existed, nil)
}

func (h *fakeHash) Close() error {
	h.closed = true
	return nil
}

func TestRedisStore(t *testing.T) {
	hash := &fakeHash{values: map[string]map[string]string{
		DefaultKey: {"D0001": "0001", "D0002": "FFFFFFFE", "bad": "0000", "D0003": "xyz"},
	}}
	s := &RedisStore{Key: DefaultKey, client: hash}

	registers := comm.NewRegisters()
	n, err := s.Load(registers)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, map[string]string{"D0001": "0001", "D0002": "FFFFFFFE"}, registers.Snapshot())

	s.RegisterChanged(context.Background(), comm.RegisterChange{Device: "D0106", New: "0065"})
	require.Equal(t, "0065", hash.values[DefaultKey]["D0106"])

	require.NoError(t, s.Close())
	require.True(t, hash.closed)
}

func TestRedisStoreErrors(t *testing.T) {
	errDown := errors.New("down")
	s := &RedisStore{Key: DefaultKey, client: &fakeHash{err: errDown}}
	_, err := s.Load(comm.NewRegisters())
	require.ErrorIs(t, err, errDown)
	// logged only
	s.RegisterChanged(context.Background(), comm.RegisterChange{Device: "D0106", New: "0065"})
}

func TestNewRedisStore(t *testing.T) {
	s, err := NewRedisStore("redis://localhost:6379/1")
	require.NoError(t, err)
	require.Equal(t, DefaultKey, s.Key)
	require.NoError(t, s.Close())

	_, err = NewRedisStore("http://localhost")
	require.Error(t, err)
}

func TestNotifiersWithStore(t *testing.T) {
	hash := &fakeHash{values: map[string]map[string]string{}}
	var seen []string
	notifiers := comm.Notifiers{
		&RedisStore{Key: "k", client: hash},
		comm.RegisterChangedFunc(func(_ context.Context, change comm.RegisterChange) {
			seen = append(seen, change.Device)
		}),
	}
	notifiers.RegisterChanged(context.Background(), comm.RegisterChange{Device: "D0001", New: "0001"})
	require.Equal(t, "0001", hash.values["k"]["D0001"])
	require.Equal(t, []string{"D0001"}, seen)
}
