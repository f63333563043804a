package auth

import (
	"sync"

	"github.com/sakif/pisure/internal/model"
)

// Notifier fans session changes out to subscribers. Sign-in publishes the new
// session, sign-out publishes the empty one.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(model.Session)
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(model.Session))}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (n *Notifier) Subscribe(fn func(model.Session)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Publish calls every subscriber with s. Subscribers run synchronously,
// outside the lock, so they may unsubscribe themselves.
func (n *Notifier) Publish(s model.Session) {
	n.mu.Lock()
	fns := make([]func(model.Session), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
