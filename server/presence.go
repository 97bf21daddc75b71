package server

import (
	"sync"

	"github.com/siredave/rps-battle/socketapi"
)

const (
	StatusAvailable = "available"
	StatusInMatch   = "in_match"
)

// PresenceEntry tracks one live connection and its availability.
type PresenceEntry struct {
	ConnID   string
	UserID   string
	Username string
	Status   string
}

// PresenceRegistry is the in-memory list of connected players. It is
// rebuilt from scratch on process restart; nothing in here persists.
type PresenceRegistry struct {
	sync.RWMutex
	entries       map[string]*PresenceEntry
	sessionHolder *SessionHolder
	logger        *Logger
}

func NewPresenceRegistry(sessionHolder *SessionHolder, logger *Logger) *PresenceRegistry {
	return &PresenceRegistry{
		entries:       make(map[string]*PresenceEntry),
		sessionHolder: sessionHolder,
		logger:        logger,
	}
}

// Announce registers a connection. Calling it twice for the same
// connection is an idempotent overwrite.
func (r *PresenceRegistry) Announce(connID string, userID string, username string) {
	r.Lock()
	r.entries[connID] = &PresenceEntry{
		ConnID:   connID,
		UserID:   userID,
		Username: username,
		Status:   StatusAvailable,
	}
	r.Unlock()

	r.broadcast()
}

// Withdraw removes the presence row. It is safe to call mid-match; an
// in-progress session is handled by the disconnect policy, not here.
func (r *PresenceRegistry) Withdraw(connID string) {
	r.Lock()
	_, ok := r.entries[connID]
	delete(r.entries, connID)
	r.Unlock()

	if ok {
		r.broadcast()
	}
}

// ClaimForMatch flips both connections to in_match as one step. It
// fails without mutation when either entry is missing or not
// available, or when any connection of either identity already holds
// an in_match entry, so an identity can be in at most one match no
// matter how many connections it keeps open. The check and both flips
// run under the registry lock, so two overlapping claims can never
// both succeed for the same identity.
func (r *PresenceRegistry) ClaimForMatch(connIDA string, connIDB string) error {
	r.Lock()
	a, okA := r.entries[connIDA]
	b, okB := r.entries[connIDB]
	if !okA || !okB || a.Status != StatusAvailable || b.Status != StatusAvailable {
		r.Unlock()
		return ErrTargetUnavailable
	}
	if a.UserID == b.UserID {
		r.Unlock()
		return ErrSelfChallenge
	}
	for _, entry := range r.entries {
		if entry.Status == StatusInMatch && (entry.UserID == a.UserID || entry.UserID == b.UserID) {
			r.Unlock()
			return ErrTargetUnavailable
		}
	}
	a.Status = StatusInMatch
	b.Status = StatusInMatch
	r.Unlock()

	r.broadcast()
	return nil
}

// ReleaseClaim returns claimed connections to available after a
// pairing that could not complete.
func (r *PresenceRegistry) ReleaseClaim(connIDs ...string) {
	r.Lock()
	changed := false
	for _, connID := range connIDs {
		if entry, ok := r.entries[connID]; ok && entry.Status == StatusInMatch {
			entry.Status = StatusAvailable
			changed = true
		}
	}
	r.Unlock()

	if changed {
		r.broadcast()
	}
}

func (r *PresenceRegistry) SetStatus(connID string, status string) {
	r.Lock()
	entry, ok := r.entries[connID]
	if ok {
		entry.Status = status
	}
	r.Unlock()

	if ok {
		r.broadcast()
	}
}

func (r *PresenceRegistry) Get(connID string) *PresenceEntry {
	r.RLock()
	defer r.RUnlock()
	entry, ok := r.entries[connID]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

// GetByUserID returns the presence row of a connected identity.
func (r *PresenceRegistry) GetByUserID(userID string) *PresenceEntry {
	r.RLock()
	defer r.RUnlock()
	for _, entry := range r.entries {
		if entry.UserID == userID {
			copied := *entry
			return &copied
		}
	}
	return nil
}

// ListAvailable lists every available player except the given identity.
func (r *PresenceRegistry) ListAvailable(excludingUserID string) []PresenceEntry {
	r.RLock()
	defer r.RUnlock()

	list := make([]PresenceEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Status != StatusAvailable || entry.UserID == excludingUserID {
			continue
		}
		list = append(list, *entry)
	}
	return list
}

//broadcast pushes the full player list to every connected session
func (r *PresenceRegistry) broadcast() {

	r.RLock()
	players := make([]socketapi.PlayerEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		players = append(players, socketapi.PlayerEntry{
			UserID:   entry.UserID,
			Username: entry.Username,
			Status:   entry.Status,
		})
	}
	r.RUnlock()

	envelope := socketapi.NewEnvelope("", socketapi.TypePlayersUpdated, &socketapi.PlayersUpdated{Players: players})

	for _, session := range r.sessionHolder.All() {
		if err := session.Send(envelope); err != nil {
			r.logger.Warnw("Could not deliver presence update", "sessionID", session.ID().String(), "error", err)
		}
	}

}
