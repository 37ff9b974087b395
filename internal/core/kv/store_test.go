package kv

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlStore, err := NewSQL(db)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemory(),
		"redis":  NewRedis(rdb, "test:"),
		"sql":    sqlStore,
	}
}

func TestStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "users.all")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "users.all", "a"))
			require.NoError(t, s.Set(ctx, "users.all", "b"))
			v, ok, err := s.Get(ctx, "users.all")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "b", v)

			require.NoError(t, s.Remove(ctx, "users.all"))
			require.NoError(t, s.Remove(ctx, "users.all"))
			_, ok, err = s.Get(ctx, "users.all")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_Keys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "progress.u2", "x"))
			require.NoError(t, s.Set(ctx, "progress.u1", "x"))
			require.NoError(t, s.Set(ctx, "notifications.u1", "x"))

			keys, err := s.Keys(ctx, "progress.")
			require.NoError(t, err)
			assert.Equal(t, []string{"progress.u1", "progress.u2"}, keys)
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sw := s.(Swapper)

			ok, err := sw.CompareAndSwap(ctx, "k", "", false, "v1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = sw.CompareAndSwap(ctx, "k", "", false, "v2")
			require.NoError(t, err)
			assert.False(t, ok, "key exists")

			ok, err = sw.CompareAndSwap(ctx, "k", "stale", true, "v2")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = sw.CompareAndSwap(ctx, "k", "v1", true, "v2")
			require.NoError(t, err)
			assert.True(t, ok)

			v, _, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", v)
		})
	}
}

type counter struct {
	N int `json:"n"`
}

func TestUpdateJSON_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := UpdateJSON(ctx, s, "c", func(v *counter, _ bool) error {
					v.N++
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, ok, err := Load[counter](ctx, s, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, got.N)
}

func TestUpdateJSON_NoChangeSkipsWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, Save(ctx, s, "c", counter{N: 3}))
	before, _, _ := s.Get(ctx, "c")

	got, err := UpdateJSON(ctx, s, "c", func(v *counter, ok bool) error {
		require.True(t, ok)
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got.N)

	after, _, _ := s.Get(ctx, "c")
	assert.Equal(t, before, after)
}

func TestUpdateJSON_CorruptRecordTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "c", "{not json"))

	got, err := UpdateJSON(ctx, s, "c", func(v *counter, ok bool) error {
		assert.False(t, ok)
		v.N = 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.N)
}

func TestUpdate_FnErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := Update(context.Background(), NewMemory(), "k", func(string, bool) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

// noSwap advertises CompareAndSwap but cannot perform it.
type noSwap struct{ *Memory }

func (noSwap) CompareAndSwap(context.Context, string, string, bool, string) (bool, error) {
	return false, ErrCASUnsupported
}

func TestUpdate_UnsupportedSwapFallsBackToSet(t *testing.T) {
	ctx := context.Background()
	s := noSwap{NewMemory()}
	calls := 0
	got, err := Update(ctx, s, "k", func(cur string, ok bool) (string, error) {
		calls++
		return cur + "x", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, 1, calls)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestDecode_LegacyAndVersioned(t *testing.T) {
	var c counter
	require.NoError(t, Decode(`{"n":7}`, &c))
	assert.Equal(t, 7, c.N)

	raw, err := Encode(counter{N: 9})
	require.NoError(t, err)
	assert.Contains(t, raw, `"v":1`)
	require.NoError(t, Decode(raw, &c))
	assert.Equal(t, 9, c.N)

	err = Decode(`{"v":99,"data":{"n":1}}`, &c)
	assert.ErrorIs(t, err, ErrNewerSchema)

	err = Decode(`[`, &c)
	assert.ErrorIs(t, err, ErrCorrupt)
}
