package server

import (
	"sync"
)

// MatchHolder maintains a thread-safe map of active match sessions.
// Sessions are evicted after settlement results have been delivered.
type MatchHolder struct {
	sync.RWMutex
	matches map[string]*MatchSession
}

func NewMatchHolder() *MatchHolder {
	return &MatchHolder{
		matches: make(map[string]*MatchSession),
	}
}

func (r *MatchHolder) Get(sessionID string) *MatchSession {
	var m *MatchSession
	r.RLock()
	m = r.matches[sessionID]
	r.RUnlock()
	return m
}

// GetByUserID finds the active session an identity is part of, if any.
func (r *MatchHolder) GetByUserID(userID string) *MatchSession {
	r.RLock()
	defer r.RUnlock()
	for _, m := range r.matches {
		if m.SideIndexByUser(userID) >= 0 {
			return m
		}
	}
	return nil
}

func (r *MatchHolder) Add(m *MatchSession) {
	r.Lock()
	r.matches[m.ID] = m
	r.Unlock()
}

func (r *MatchHolder) Remove(sessionID string) {
	r.Lock()
	delete(r.matches, sessionID)
	r.Unlock()
}
