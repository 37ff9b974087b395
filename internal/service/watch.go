package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Watcher runs polling loops that stop together on Stop or when the parent
// context ends.
type Watcher struct {
	clock  clockwork.Clock
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(parent context.Context, clock clockwork.Clock, log *zap.Logger) *Watcher {
	ctx, cancel := context.WithCancel(parent)
	return &Watcher{clock: clock, log: log, ctx: ctx, cancel: cancel}
}

// Every calls fn each interval until the watcher stops. Errors are logged
// and the loop keeps going.
func (w *Watcher) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		w.log.Warn("watcher: loop disabled", zap.String("loop", name))
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		t := w.clock.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-w.ctx.Done():
				return
			case <-t.Chan():
				if err := fn(w.ctx); err != nil && w.ctx.Err() == nil {
					w.log.Warn("watcher: poll failed", zap.String("loop", name), zap.Error(err))
				}
			}
		}
	}()
}

// Stop cancels every loop and waits for them to return.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}
