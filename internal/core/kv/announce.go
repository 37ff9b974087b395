package kv

import (
	"context"

	"animehub/internal/core/bus"
	"animehub/internal/core/metrics"
)

// Announcing is one tab's view of a shared medium: every successful write
// raises the storage-change signal for the other tabs.
type Announcing struct {
	base Store
	ch   bus.CrossTab
}

func NewAnnouncing(base Store, ch bus.CrossTab) *Announcing {
	return &Announcing{base: base, ch: ch}
}

func (a *Announcing) Get(ctx context.Context, key string) (string, bool, error) {
	return a.base.Get(ctx, key)
}

func (a *Announcing) Keys(ctx context.Context, prefix string) ([]string, error) {
	return a.base.Keys(ctx, prefix)
}

func (a *Announcing) Set(ctx context.Context, key, value string) error {
	if err := a.base.Set(ctx, key, value); err != nil {
		return err
	}
	metrics.StoreOps.WithLabelValues("set").Inc()
	return a.ch.Announce(ctx, key)
}

func (a *Announcing) Remove(ctx context.Context, key string) error {
	if err := a.base.Remove(ctx, key); err != nil {
		return err
	}
	metrics.StoreOps.WithLabelValues("remove").Inc()
	return a.ch.Announce(ctx, key)
}

func (a *Announcing) CompareAndSwap(ctx context.Context, key, prev string, prevOK bool, next string) (bool, error) {
	sw, ok := a.base.(Swapper)
	if !ok {
		return false, ErrCASUnsupported
	}
	swapped, err := sw.CompareAndSwap(ctx, key, prev, prevOK, next)
	if err != nil || !swapped {
		return swapped, err
	}
	metrics.StoreOps.WithLabelValues("swap").Inc()
	return true, a.ch.Announce(ctx, key)
}
