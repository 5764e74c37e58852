package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr())
	require.NoError(t, err)
	prev := client
	SetClient(c)
	t.Cleanup(func() {
		_ = c.Close()
		SetClient(prev)
	})
	return mr
}

func TestAside_MissThenHit(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()

	var calls int32
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			atomic.AddInt32(&calls, 1)
			*dest = cachedThing{ID: 1, Name: "alice"}
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, UserKey(1), &first, time.Minute, fetch(&first)))
	assert.Equal(t, "alice", first.Name)
	assert.True(t, mr.Exists(UserKey(1)))

	var second cachedThing
	require.NoError(t, Aside(ctx, UserKey(1), &second, time.Minute, fetch(&second)))
	assert.Equal(t, "alice", second.Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	InvalidateUser(ctx, 1)
	assert.False(t, mr.Exists(UserKey(1)))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := withMiniredis(t)

	var dest cachedThing
	err := Aside(context.Background(), UserKey(2), &dest, time.Minute, func() error {
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists(UserKey(2)))
}

func TestAside_WithoutRedis(t *testing.T) {
	prev := client
	SetClient(nil)
	defer SetClient(prev)

	var dest cachedThing
	err := Aside(context.Background(), UserKey(3), &dest, time.Minute, func() error {
		dest = cachedThing{ID: 3, Name: "carol"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", dest.Name)
}

func TestAside_ConcurrentMissesShareOneFetch(t *testing.T) {
	withMiniredis(t)

	var calls int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]cachedThing, 8)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = Aside(context.Background(), UserKey(4), &results[i], time.Minute, func() error {
				atomic.AddInt32(&calls, 1)
				<-release
				results[i] = cachedThing{ID: 4, Name: "dave"}
				return nil
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	for _, r := range results {
		assert.Equal(t, "dave", r.Name)
	}
}

func TestSetUserTTL(t *testing.T) {
	defer SetUserTTL(0)
	SetUserTTL(30 * time.Second)
	assert.Equal(t, 30*time.Second, UserTTL)
	SetUserTTL(-1)
	assert.Equal(t, defaultUserCacheTTL, UserTTL)
}
