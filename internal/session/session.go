package session

import (
	"fmt"
	"sync"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/guard"
)

// User is the cached public profile of the signed-in account.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Role    string `json:"role"`
}

// State is what the client keeps between calls.
type State struct {
	Token string `json:"token"`
	Role  string `json:"role"`
	User  *User  `json:"user,omitempty"`
}

// Empty reports whether no credentials are held.
func (s State) Empty() bool { return s.Token == "" }

// Backend persists State.
type Backend interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// Context is the shared session state. Listeners registered with Subscribe
// run synchronously after every Set and Clear, in registration order.
type Context struct {
	mu      sync.RWMutex
	backend Backend
	state   State

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(State)
	order  []int
}

// New loads the current state from backend. A nil backend keeps state in memory.
func New(backend Backend) (*Context, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	st, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Context{backend: backend, state: st, subs: make(map[int]func(State))}, nil
}

func (c *Context) Get() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Set replaces the state and notifies listeners.
func (c *Context) Set(st State) error {
	c.mu.Lock()
	if err := c.backend.Save(st); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("save session: %w", err)
	}
	c.state = st
	c.mu.Unlock()
	c.notify(st)
	return nil
}

// Clear drops all credentials and notifies listeners. The in-memory state is
// cleared even when the backend fails.
func (c *Context) Clear() error {
	c.mu.Lock()
	err := c.backend.Clear()
	c.state = State{}
	c.mu.Unlock()
	c.notify(State{})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Subscribe registers fn and returns a function that removes it.
func (c *Context) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subs, id)
			for i, v := range c.order {
				if v == id {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Snapshot is the view the access guard consults.
func (c *Context) Snapshot() guard.Snapshot {
	st := c.Get()
	return guard.Snapshot{Token: st.Token, Role: guard.Role(st.Role)}
}

func (c *Context) notify(st State) {
	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.subs[id])
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// MemoryBackend keeps state for the life of the process.
type MemoryBackend struct {
	mu    sync.Mutex
	state State
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryBackend) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	return nil
}

func (m *MemoryBackend) Clear() error {
	return m.Save(State{})
}
