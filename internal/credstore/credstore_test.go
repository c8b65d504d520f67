package credstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoctl/internal/credstore"
)

func testStore(t *testing.T, s credstore.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty store loads as absent")

	want := credstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, s.Save(ctx, want))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	rotated := credstore.Credential{AccessToken: "access-2", RefreshToken: "refresh-2"}
	require.NoError(t, s.Save(ctx, rotated))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rotated, *got)

	require.NoError(t, s.Clear(ctx))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Clear(ctx), "clearing twice succeeds")
}

func TestMemoryStore(t *testing.T) {
	s := credstore.NewMemoryStore(nil)
	testStore(t, s)
	assert.Equal(t, 2, s.Saves())
	assert.Equal(t, 2, s.Clears())
}

func TestMemoryStore_PartialSeedIsAbsent(t *testing.T) {
	s := credstore.NewMemoryStore(&credstore.Credential{AccessToken: "only-access"})
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	testStore(t, credstore.NewFileStore(path))
}

func TestFileStore_FileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := credstore.NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), credstore.Credential{AccessToken: "a", RefreshToken: "r"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"access_token": "a"`)
	assert.Contains(t, string(data), `"refresh_token": "r"`)
}

func TestFileStore_UnreadableContentIsAbsent(t *testing.T) {
	tests := map[string]string{
		"corrupt json":    `{"access_token":`,
		"missing refresh": `{"access_token":"a","token_type":"Bearer"}`,
		"missing access":  `{"refresh_token":"r"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))

			got, err := credstore.NewFileStore(path).Load(context.Background())
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func newRedisStore(t *testing.T) (*credstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := credstore.NewRedisStore(client, "todoctl:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t)
	testStore(t, s)
}

func TestRedisStore_Keys(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, s.Save(context.Background(), credstore.Credential{AccessToken: "a", RefreshToken: "r"}))

	mr.CheckGet(t, "todoctl:accessToken", "a")
	mr.CheckGet(t, "todoctl:refreshToken", "r")

	require.NoError(t, s.Clear(context.Background()))
	assert.False(t, mr.Exists("todoctl:accessToken"))
	assert.False(t, mr.Exists("todoctl:refreshToken"))
}

func TestRedisStore_PartialKeysAreAbsent(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"only access token", "todoctl:accessToken"},
		{"only refresh token", "todoctl:refreshToken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mr := newRedisStore(t)
			require.NoError(t, mr.Set(tt.key, "value"))

			got, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestRedisStore_ServerErrors(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	mr.SetError("ERR server unavailable")

	_, err := s.Load(ctx)
	assert.ErrorContains(t, err, "failed to load credential")
	err = s.Save(ctx, credstore.Credential{AccessToken: "a", RefreshToken: "r"})
	assert.ErrorContains(t, err, "failed to save credential")
	assert.ErrorContains(t, s.Clear(ctx), "failed to clear credential")
}

func TestRedisStore_Close(t *testing.T) {
	s, _ := newRedisStore(t)
	require.NoError(t, s.Close())

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, redis.ErrClosed)
}
