// Package session tracks who is signed in for long-lived server-side work,
// such as a survey traversal that outlives the request that started it.
package session

import (
	"sync"

	"github.com/mbolis/intake-survey/model"
)

// Provider yields the current user, or nil when nobody is signed in.
type Provider interface {
	CurrentUser() *model.User
	// Subscribe registers fn to be called on every identity change.
	// The returned func removes the subscription.
	Subscribe(fn func(*model.User)) (unsubscribe func())
}

// Holder is a Provider whose user is set from the outside.
type Holder struct {
	mu     sync.RWMutex
	user   *model.User
	nextID int
	subs   map[int]func(*model.User)
}

func NewHolder(user *model.User) *Holder {
	return &Holder{user: user, subs: map[int]func(*model.User){}}
}

func (h *Holder) CurrentUser() *model.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return nil
	}
	u := *h.user
	return &u
}

// Set replaces the current user and notifies subscribers outside the lock.
func (h *Holder) Set(user *model.User) {
	h.mu.Lock()
	h.user = user
	subs := make([]func(*model.User), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
}

func (h *Holder) Subscribe(fn func(*model.User)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Hub keeps one Holder per signed-in user.
type Hub struct {
	mu      sync.Mutex
	holders map[string]*Holder
}

func NewHub() *Hub {
	return &Hub{holders: map[string]*Holder{}}
}

// SignIn returns the holder of user, refreshing its identity.
func (hub *Hub) SignIn(user model.User) *Holder {
	hub.mu.Lock()
	h, ok := hub.holders[user.ID]
	if !ok {
		h = NewHolder(&user)
		hub.holders[user.ID] = h
	}
	hub.mu.Unlock()

	if ok {
		h.Set(&user)
	}
	return h
}

// SignOut clears the identity of userID; subscribers see a nil user.
func (hub *Hub) SignOut(userID string) {
	hub.mu.Lock()
	h, ok := hub.holders[userID]
	delete(hub.holders, userID)
	hub.mu.Unlock()

	if ok {
		h.Set(nil)
	}
}
