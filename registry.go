package main

import "sync"

// Presence tracks which users currently hold open live connections.
// An empty ConnectionsFor result means offline, never an error.
type Presence interface {
	Register(userID, connID string)
	Unregister(connID string)
	ConnectionsFor(userID string) []string
}

// Registry is the in-process Presence implementation. It is the only piece of
// shared mutable state in the core, so every access goes through the mutex.
// State is not persisted; after a restart it refills as clients reconnect.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
	conns map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		users: map[string]map[string]struct{}{},
		conns: map[string]string{},
	}
}

// Register binds connID to userID, creating the user's connection set on
// first use. Registering the same connection twice is a no-op.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = map[string]struct{}{}
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	r.conns[connID] = userID
}

// Unregister drops connID from whichever user owns it. Unknown connections
// are ignored: a client may disconnect without ever having registered.
// When the last connection goes, the user's entry is removed entirely.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}

func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
