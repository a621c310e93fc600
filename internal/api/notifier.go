package api

import "sync"

// LogoutNotifier broadcasts the "session is unrecoverable" signal to
// subscribers such as the session owner.
type LogoutNotifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewLogoutNotifier creates a notifier with no subscribers.
func NewLogoutNotifier() *LogoutNotifier {
	return &LogoutNotifier{subs: make(map[int]func())}
}

// Subscribe registers fn and returns a func that removes it.
func (n *LogoutNotifier) Subscribe(fn func()) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

// Notify calls every subscriber synchronously, in subscription order.
// Subscribers may unsubscribe from within the callback.
func (n *LogoutNotifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for id := 0; id < n.next; id++ {
		if fn, ok := n.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
