package registry

import (
	"sync"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"
)

// Registry maps a user to at most one live connection and owns the presence
// records. All access is serialized behind the internal lock; construct one
// per server (or per test) rather than sharing ambient state.
type Registry struct {
	mu       sync.RWMutex
	conns    map[int64]*Conn
	presence map[int64]domain.PresenceRecord
}

func New() *Registry {
	return &Registry{
		conns:    make(map[int64]*Conn),
		presence: make(map[int64]domain.PresenceRecord),
	}
}

// Register installs conn as the sole live connection for userID and returns
// the evicted prior connection, if any. The caller closes the evicted one
// with CloseSuperseded; it is already marked so its teardown skips the
// offline broadcast.
func (r *Registry) Register(userID int64, conn *Conn) (evicted *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[userID]; ok && prev != conn {
		prev.MarkSuperseded()
		evicted = prev
	}
	r.conns[userID] = conn
	r.presence[userID] = domain.PresenceRecord{
		UserID:   userID,
		Status:   domain.StatusOnline,
		LastSeen: time.Now(),
	}
	return evicted
}

// Unregister removes the mapping only if conn is still the registered
// connection, guarding against a stale close racing a newer connection.
// Reports whether the mapping was removed.
func (r *Registry) Unregister(userID int64, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[userID]; !ok || cur != conn {
		return false
	}
	delete(r.conns, userID)
	r.presence[userID] = domain.PresenceRecord{
		UserID:   userID,
		Status:   domain.StatusOffline,
		LastSeen: time.Now(),
	}
	return true
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return ok && conn.State() == StateOpen
}

// Route returns the live connection for userID, or nil when offline.
func (r *Registry) Route(userID int64) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID]
}

// Touch refreshes the last-seen time for a user whose heartbeat arrived.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.presence[userID]; ok && rec.Status == domain.StatusOnline {
		rec.LastSeen = time.Now()
		r.presence[userID] = rec
	}
}

// Presence returns the record for userID; absent entries read as offline.
func (r *Registry) Presence(userID int64) domain.PresenceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.presence[userID]; ok {
		return rec
	}
	return domain.PresenceRecord{UserID: userID, Status: domain.StatusOffline}
}

// Snapshot returns the presence records of all currently online users.
func (r *Registry) Snapshot() []domain.PresenceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PresenceRecord, 0, len(r.conns))
	for userID := range r.conns {
		if rec, ok := r.presence[userID]; ok && rec.Status == domain.StatusOnline {
			out = append(out, rec)
		}
	}
	return out
}

// Peers returns every live connection except the one for exceptID.
func (r *Registry) Peers(exceptID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for userID, conn := range r.conns {
		if userID != exceptID {
			out = append(out, conn)
		}
	}
	return out
}
