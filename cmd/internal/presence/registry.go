// Package presence contains Pipit's realtime WebSocket gateway: the live
// connection registry, per-event re-authorization, and point-to-point
// message routing with persistence-before-delivery.
package presence

import "sync"

// Registry maps a user id to its single live connection.
//
// At most one entry exists per user: a reconnect overwrites the previous
// entry (last connection wins, no multi-device fan-out). The registry is
// the sole routing mechanism; a user without an entry is simply offline.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Client
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Client)}
}

// Bind registers the client under its user id and returns the previous
// client for that user, if any. The caller decides what to do with the
// displaced connection.
func (r *Registry) Bind(c *Client) (prev *Client) {
	if r == nil || c == nil || c.UserID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.entries[c.UserID]
	r.entries[c.UserID] = c
	return prev
}

// Unbind removes the entry for userID only if it still points at connID.
// A stale disconnect from a displaced connection must not evict the entry
// of the connection that replaced it.
func (r *Registry) Unbind(userID, connID string) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.entries[userID]
	if !ok || c.ConnID != connID {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.entries[userID]
	return c, ok
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
