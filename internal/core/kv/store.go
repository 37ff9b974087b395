// Package kv is the synchronous, string-keyed persistence medium shared by
// every tab of one profile.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNoChange aborts an Update without writing.
	ErrNoChange = errors.New("kv: no change")
	// ErrConflict is returned when optimistic retries are exhausted.
	ErrConflict = errors.New("kv: concurrent update conflict")
	// ErrCASUnsupported is returned by wrappers whose backend cannot swap.
	ErrCASUnsupported = errors.New("kv: compare-and-swap unsupported")
)

// Store is atomic per key and offers no transactions.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Swapper is implemented by backends able to write conditionally.
// prevOK=false means the key is expected to be absent.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key, prev string, prevOK bool, next string) (bool, error)
}

const maxAttempts = 8

// Update runs a read-modify-write on key. On backends implementing Swapper
// the write only lands if nobody changed the key in between, retrying fn
// otherwise; on the rest the last writer wins.
func Update(ctx context.Context, s Store, key string, fn func(cur string, ok bool) (string, error)) (string, error) {
	sw, canSwap := s.(Swapper)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cur, ok, err := s.Get(ctx, key)
		if err != nil {
			return "", err
		}
		next, err := fn(cur, ok)
		if errors.Is(err, ErrNoChange) {
			return cur, nil
		}
		if err != nil {
			return "", err
		}
		if !canSwap {
			return next, s.Set(ctx, key, next)
		}
		swapped, err := sw.CompareAndSwap(ctx, key, cur, ok, next)
		if errors.Is(err, ErrCASUnsupported) {
			return next, s.Set(ctx, key, next)
		}
		if err != nil {
			return "", err
		}
		if swapped {
			return next, nil
		}
	}
	return "", ErrConflict
}
