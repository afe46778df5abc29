package signaling

import "sync"

type slotKey struct {
	meetingID string
	role      Role
}

// Registry maps each (meeting, role) slot to the connection currently
// holding it. The last connection to acquire a slot wins.
type Registry struct {
	mu      sync.Mutex
	holders map[slotKey]string
}

func NewRegistry() *Registry {
	return &Registry{holders: make(map[slotKey]string)}
}

// Acquire installs connID as the holder of the slot. If another connection
// held it, that connection id is returned so the caller can evict it.
func (r *Registry) Acquire(meetingID string, role Role, connID string) (evicted string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{meetingID, role}
	prev, held := r.holders[key]
	r.holders[key] = connID
	if held && prev != connID {
		return prev, true
	}
	return "", false
}

// Release frees the slot only while connID still holds it. A release from a
// connection that was already superseded is a no-op.
func (r *Registry) Release(meetingID string, role Role, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{meetingID, role}
	if r.holders[key] != connID {
		return false
	}
	delete(r.holders, key)
	return true
}

// Holder returns the connection currently holding the slot.
func (r *Registry) Holder(meetingID string, role Role) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.holders[slotKey{meetingID, role}]
	return id, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}
