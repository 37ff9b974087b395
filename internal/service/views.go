package service

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// views caches one derived value per user. Reloads for the same user are
// coalesced, so a burst of change events costs one store read.
type views[T any] struct {
	mu sync.RWMutex
	m  map[string]T
	sf singleflight.Group
}

func newViews[T any]() *views[T] {
	return &views[T]{m: make(map[string]T)}
}

func (v *views[T]) get(id string) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.m[id]
	return t, ok
}

func (v *views[T]) set(id string, t T) {
	v.mu.Lock()
	v.m[id] = t
	v.mu.Unlock()
}

func (v *views[T]) tracked(id string) bool {
	_, ok := v.get(id)
	return ok
}

func (v *views[T]) ids() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.m))
	for id := range v.m {
		out = append(out, id)
	}
	return out
}

// reload re-reads the value. fresh drops any load already in flight so the
// result reflects writes that landed before this call.
func (v *views[T]) reload(ctx context.Context, id string, fresh bool, load func(context.Context) (T, error)) (T, error) {
	if fresh {
		v.sf.Forget(id)
	}
	r, err, _ := v.sf.Do(id, func() (any, error) {
		t, err := load(ctx)
		if err != nil {
			return nil, err
		}
		v.set(id, t)
		return t, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return r.(T), nil
}

// cached returns the view, loading it on first use.
func (v *views[T]) cached(ctx context.Context, id string, load func(context.Context) (T, error)) (T, error) {
	if t, ok := v.get(id); ok {
		return t, nil
	}
	return v.reload(ctx, id, false, load)
}
