package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"animehub/internal/core/metrics"
)

// Change names a key some other tab wrote. Receivers re-read the key
// instead of trusting any payload.
type Change struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// CrossTab is one tab's endpoint on the storage-change signal. A tab never
// receives the changes it announced itself, so writers refresh their own
// view after writing.
type CrossTab interface {
	Origin() string
	Announce(ctx context.Context, key string) error
	Listen(fn func(Change)) (stop func())
	Close() error
}

// Hub connects tabs living in one process.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewHub() *Hub {
	return &Hub{endpoints: make(map[string]*Endpoint)}
}

// Join creates an endpoint for a new tab.
func (h *Hub) Join() *Endpoint {
	e := &Endpoint{
		hub:     h,
		origin:  uuid.NewString(),
		pending: make(map[string]int),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints[e.origin] = e
	h.mu.Unlock()
	go e.run()
	return e
}

func (h *Hub) broadcast(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for origin, e := range h.endpoints {
		if origin == c.Origin {
			continue
		}
		e.enqueue(c)
	}
}

func (h *Hub) leave(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, e.origin)
}

// Endpoint delivers changes asynchronously. Several writes of one key that
// arrive before delivery coalesce into a single Change.
type Endpoint struct {
	hub    *Hub
	origin string

	mu        sync.Mutex
	order     []string
	pending   map[string]int
	listeners listeners

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (e *Endpoint) Origin() string { return e.origin }

func (e *Endpoint) Announce(_ context.Context, key string) error {
	metrics.CrossTabEvents.WithLabelValues("out").Inc()
	e.hub.broadcast(Change{Key: key, Origin: e.origin})
	return nil
}

func (e *Endpoint) Listen(fn func(Change)) func() { return e.listeners.add(fn) }

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.hub.leave(e)
		close(e.done)
	})
	return nil
}

func (e *Endpoint) enqueue(c Change) {
	e.mu.Lock()
	if _, ok := e.pending[c.Key]; !ok {
		e.pending[c.Key] = len(e.order)
		e.order = append(e.order, c.Key)
	}
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Endpoint) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
		e.mu.Lock()
		keys := e.order
		e.order = nil
		e.pending = make(map[string]int)
		e.mu.Unlock()

		for _, k := range keys {
			metrics.CrossTabEvents.WithLabelValues("in").Inc()
			e.listeners.dispatch(Change{Key: k})
		}
	}
}

type listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Change)
}

func (l *listeners) add(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Change))
	}
	l.next++
	id := l.next
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) dispatch(c Change) {
	l.mu.RLock()
	fns := make([]func(Change), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}
