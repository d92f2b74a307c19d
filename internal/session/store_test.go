package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg/internal/model"
	"confreg/internal/workflow"
)

func TestEncodeDecode(t *testing.T) {
	val, err := encode(workflow.Actor{MemberID: 42, HospitalCode: "H001", MemberType: 1})
	require.NoError(t, err)

	actor, err := decode(val)
	require.NoError(t, err)
	assert.Equal(t, int64(42), actor.MemberID)
	assert.Equal(t, "H001", actor.HospitalCode)
	assert.False(t, actor.IsAdmin())

	admin, err := decode(`{"member_id":1,"member_type":99}`)
	require.NoError(t, err)
	assert.Equal(t, model.AdminMemberType, admin.MemberType)
	assert.True(t, admin.IsAdmin())
}

func TestDecodeRejectsBrokenSessions(t *testing.T) {
	_, err := decode(`{"hospital_code":"H001"}`)
	assert.Error(t, err)

	_, err = decode(`not json`)
	assert.Error(t, err)
}

func TestGetEmptyToken(t *testing.T) {
	s := NewRedisStore(nil, 0)
	_, err := s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "session:abc", Key("abc"))
}

type memRedis struct {
	redis.Cmdable
	vals map[string]string
	ttls map[string]time.Duration
	fail error
}

func newMemRedis() *memRedis {
	return &memRedis{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if m.fail != nil {
		return redis.NewStringResult("", m.fail)
	}
	v, ok := m.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.vals[key] = value.(string)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.vals[k]; ok {
			delete(m.vals, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	s := NewRedisStore(rdb, 12*time.Hour)

	_, err := s.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "tok", workflow.Actor{MemberID: 42, HospitalCode: "H001", MemberType: 1}))
	assert.Equal(t, 12*time.Hour, rdb.ttls["session:tok"])

	actor, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(42), actor.MemberID)
	assert.Equal(t, "H001", actor.HospitalCode)

	require.NoError(t, s.Delete(ctx, "tok"))
	_, err = s.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	s := NewRedisStore(rdb, time.Hour)

	rdb.vals["session:broken"] = `{"hospital_code":"H001"}`
	_, err := s.Get(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	down := errors.New("connection refused")
	rdb.fail = down
	_, err = s.Get(ctx, "tok")
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, ErrNotFound)
}
