package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  trader@example.com ", "trader@example.com", false},
		{"a@b.co", "a@b.co", false},
		{"", "", true},
		{"no-at.example.com", "", true},
		{"two@@example.com", "", true},
		{"user@localhost", "", true},
		{"sp ace@example.com", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidEmail, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	sess, err := s.Create(ctx, " trader@example.com")
	require.NoError(t, err)
	assert.Len(t, sess.Token, 48)
	assert.Equal(t, "trader@example.com", sess.Email)

	other, err := s.Create(ctx, "trader@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, other.Token)

	got, err := s.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Email, got.Email)

	require.NoError(t, s.Delete(ctx, sess.Token))
	_, err = s.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Create(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory(time.Hour))
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s, err := m.Create(context.Background(), "a@b.co")
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = m.Get(context.Background(), s.Token)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = m.Get(context.Background(), s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CreateSweepsExpired(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, err := m.Create(context.Background(), "old@b.co")
		require.NoError(t, err)
	}
	now = now.Add(30 * time.Second)
	keep, err := m.Create(context.Background(), "mid@b.co")
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	_, err = m.Create(context.Background(), "new@b.co")
	require.NoError(t, err)

	assert.Len(t, m.sessions, 2)
	_, err = m.Get(context.Background(), keep.Token)
	assert.NoError(t, err)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	exerciseStore(t, NewRedis(rdb, time.Hour))
}

func TestRedis_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedis(rdb, time.Hour)
	s, err := store.Create(context.Background(), "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+s.Token))

	mr.FastForward(time.Hour + time.Second)
	_, err = store.Get(context.Background(), s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}
