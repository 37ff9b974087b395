package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"animehub/internal/core/kv"
)

// load decodes key, falling back to empty() when the record is missing or
// unreadable. Only medium failures are returned.
func load[T any](ctx context.Context, s kv.Store, log *zap.Logger, key string, empty func() T) (T, error) {
	v, ok, err := kv.Load[T](ctx, s, key)
	switch {
	case errors.Is(err, kv.ErrCorrupt):
		log.Warn("repo: unreadable record, using empty value", zap.String("key", key), zap.Error(err))
		return empty(), nil
	case err != nil:
		return empty(), err
	case !ok:
		return empty(), nil
	}
	return v, nil
}

func mutate[T any](ctx context.Context, s kv.Store, key string, empty func() T, fn func(v T) (T, error)) (T, error) {
	return kv.UpdateJSON(ctx, s, key, func(v *T, ok bool) error {
		cur := *v
		if !ok {
			cur = empty()
		}
		next, err := fn(cur)
		if err != nil {
			if errors.Is(err, kv.ErrNoChange) {
				*v = cur
			}
			return err
		}
		*v = next
		return nil
	})
}
