// Package bus carries change notifications inside one tab and across tabs.
package bus

import (
	"slices"
	"sync"
)

type Handler func(payload any)

// Local is the in-tab channel. Delivery is synchronous, in subscription
// order, on the publisher's goroutine.
type Local struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]Handler
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[uint64]Handler)}
}

// Subscribe registers h on topic. The returned func removes it.
func (l *Local) Subscribe(topic string, h Handler) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	id := l.next
	if l.subs[topic] == nil {
		l.subs[topic] = make(map[uint64]Handler)
	}
	l.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[topic], id)
		})
	}
}

func (l *Local) Publish(topic string, payload any) {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.subs[topic]))
	for id := range l.subs[topic] {
		ids = append(ids, id)
	}
	hs := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		hs = append(hs, l.subs[topic][id])
	}
	l.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}
