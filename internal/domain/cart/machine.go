package cart

import (
	"slices"
	"sync"
)

// Listener receives the cart after every transition.
type Listener func(Cart)

// Machine holds the current cart and applies actions to it one at a time.
//
// Dispatch is serialized: a transition and the notification of its listeners
// complete before the next action is accepted, so listeners observe carts in
// dispatch order. Listeners must not call Dispatch or unsubscribe.
type Machine struct {
	mu        sync.Mutex
	state     Cart
	nextID    int
	listeners map[int]Listener
	order     []int
}

// NewMachine creates a Machine holding an empty cart.
func NewMachine() *Machine {
	return &Machine{listeners: make(map[int]Listener)}
}

// Dispatch applies a to the current cart, notifies listeners and returns the
// new cart.
func (m *Machine) Dispatch(a Action) Cart {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Reduce(m.state, a)
	for _, id := range m.order {
		m.listeners[id](m.state)
	}
	return m.state
}

// Snapshot returns the current cart.
func (m *Machine) Snapshot() Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is safe.
func (m *Machine) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners, id)
			if i := slices.Index(m.order, id); i >= 0 {
				m.order = slices.Delete(m.order, i, i+1)
			}
		})
	}
}
