package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	reg, err := Connect(context.Background(), Options{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	return reg, mr
}

func TestConnectInvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Options{URL: "://nope"})
	assert.Error(t, err)
}

func TestRegisterWritesKeyWithTTL(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "jti-1", "uid-1", 14*24*time.Hour))

	val, err := mr.Get("refresh:jti-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", val)
	assert.Equal(t, 14*24*time.Hour, mr.TTL("refresh:jti-1"))

	uid, ok, err := reg.Lookup(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "uid-1", uid)
}

func TestConsumeIsSingleUse(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "jti-1", "uid-1", time.Hour))

	ok, err := reg.Consume(ctx, "jti-1", "uid-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("refresh:jti-1"))

	ok, err = reg.Consume(ctx, "jti-1", "uid-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeRejectsOtherPrincipal(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "jti-1", "uid-1", time.Hour))

	ok, err := reg.Consume(ctx, "jti-1", "uid-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("refresh:jti-1"))
}

func TestConsumeAfterExpiry(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "jti-1", "uid-1", time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := reg.Consume(ctx, "jti-1", "uid-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "jti-race", "uid-1", time.Hour))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := reg.Consume(ctx, "jti-race", "uid-1")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestRevokeIsIdempotent(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "jti-1", "uid-1", time.Hour))
	require.NoError(t, reg.Revoke(ctx, "jti-1"))
	assert.False(t, mr.Exists("refresh:jti-1"))
	require.NoError(t, reg.Revoke(ctx, "jti-1"))
}

func TestStateIsSingleUse(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.SaveState(ctx, "github", "state-1", 10*time.Minute))
	assert.True(t, mr.Exists("oauth_state:github:state-1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("oauth_state:github:state-1"))

	ok, err := reg.ConsumeState(ctx, "github", "state-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.ConsumeState(ctx, "github", "state-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateScopedByProvider(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.SaveState(ctx, "github", "state-1", time.Minute))

	ok, err := reg.ConsumeState(ctx, "gitlab", "state-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateExpires(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.SaveState(ctx, "github", "state-1", time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := reg.ConsumeState(ctx, "github", "state-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveStateRejectsDuplicate(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.SaveState(ctx, "github", "state-1", time.Minute))
	assert.Error(t, reg.SaveState(ctx, "github", "state-1", time.Minute))
}

func TestKeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	reg, err := Connect(context.Background(), Options{URL: "redis://" + mr.Addr(), KeyPrefix: "folio:"})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Register(context.Background(), "jti-1", "uid-1", time.Hour))
	assert.True(t, mr.Exists("folio:refresh:jti-1"))
}
